// Package senses turns outside events (chat messages, calendar changes) into
// input for the executive.
package senses

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/steward/internal/logging"
)

const maxAttachmentBytes = 8 << 20

// Inbound is one accepted Discord message
type Inbound struct {
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorName string
	Content    string
	IsDM       bool
	// ImageURL is the first image attachment, if any
	ImageURL string
}

// DiscordSense listens to Discord and hands accepted messages to onMessage
type DiscordSense struct {
	session   *discordgo.Session
	channelID string
	ownerID   string
	botID     string
	onMessage func(Inbound)
}

// DiscordConfig holds Discord connection settings
type DiscordConfig struct {
	Token     string
	ChannelID string
	// OwnerID restricts input to one user; empty accepts everyone
	OwnerID string
}

// NewDiscordSense creates a new Discord sense
func NewDiscordSense(cfg DiscordConfig, onMessage func(Inbound)) (*DiscordSense, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	sense := &DiscordSense{
		session:   session,
		channelID: cfg.ChannelID,
		ownerID:   cfg.OwnerID,
		onMessage: onMessage,
	}
	session.AddHandler(sense.handleMessage)

	// We only need message content
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return sense, nil
}

// Start connects to Discord and begins listening
func (d *DiscordSense) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.botID = d.session.State.User.ID
	logging.Info("discord-sense", "Connected as %s", d.session.State.User.Username)
	return nil
}

// Stop disconnects from Discord
func (d *DiscordSense) Stop() error {
	return d.session.Close()
}

// Session returns the underlying Discord session (for sharing with effector)
func (d *DiscordSense) Session() *discordgo.Session {
	return d.session
}

func (d *DiscordSense) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !d.accept(m) {
		return
	}
	in := d.toInbound(m)
	if in.Content == "" && in.ImageURL == "" {
		return
	}
	logging.Info("discord-sense", "Message from %s: %s", in.AuthorName, logging.Truncate(in.Content, 50))
	if d.onMessage != nil {
		d.onMessage(in)
	}
}

// accept filters out the bot itself, other bots, other channels and, when an
// owner is configured, everyone else
func (d *DiscordSense) accept(m *discordgo.MessageCreate) bool {
	if m.Author == nil || m.Author.ID == d.botID || m.Author.Bot {
		return false
	}
	if d.ownerID != "" && m.Author.ID != d.ownerID {
		return false
	}
	isDM := m.GuildID == ""
	if d.channelID != "" && m.ChannelID != d.channelID && !isDM {
		return false
	}
	return true
}

func (d *DiscordSense) toInbound(m *discordgo.MessageCreate) Inbound {
	content := m.Content
	if d.botID != "" {
		content = strings.ReplaceAll(content, "<@"+d.botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+d.botID+">", "")
	}
	in := Inbound{
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    strings.TrimSpace(content),
		IsDM:       m.GuildID == "",
	}
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			in.ImageURL = a.URL
			break
		}
	}
	return in
}

// FetchAttachment downloads an attachment for the planner
func FetchAttachment(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment larger than %d bytes", maxAttachmentBytes)
	}
	return data, nil
}
