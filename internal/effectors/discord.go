// Package effectors delivers replies and confirmation prompts to the user
package effectors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
)

// MaxMessageLength is Discord's per-message character limit
const MaxMessageLength = 2000

const typingRefresh = 8 * time.Second

// discordAPI is the part of *discordgo.Session the effector uses
type discordAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// DiscordEffector sends messages to Discord
type DiscordEffector struct {
	api   discordAPI
	retry retry.Config
}

// NewDiscordEffector creates a Discord effector sharing the sense's session
func NewDiscordEffector(session *discordgo.Session) *DiscordEffector {
	return newDiscordEffector(session)
}

func newDiscordEffector(api discordAPI) *DiscordEffector {
	return &DiscordEffector{
		api:   api,
		retry: retry.Config{MaxAttempts: 3, BaseDelay: time.Second},
	}
}

// Send posts content, split into chunks under the length limit. Server errors
// and rate limits are retried; other 4xx responses are not.
func (e *DiscordEffector) Send(ctx context.Context, channelID, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	for _, chunk := range chunkMessage(content, MaxMessageLength) {
		_, err := retry.Do(ctx, e.retry, "discord send", func(ctx context.Context) (struct{}, error) {
			_, err := e.api.ChannelMessageSend(channelID, chunk)
			return struct{}{}, classify(err)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// React adds an emoji reaction to a message
func (e *DiscordEffector) React(channelID, messageID, emoji string) error {
	return classify(e.api.MessageReactionAdd(channelID, messageID, emoji))
}

// Typing shows the typing indicator until the returned func is called
func (e *DiscordEffector) Typing(channelID string) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(typingRefresh)
		defer ticker.Stop()
		for {
			if err := e.api.ChannelTyping(channelID); err != nil {
				logging.Debug("discord-effector", "typing indicator failed: %v", err)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

// classify turns Discord REST failures into status errors so the retry
// policy can tell rate limits and server errors from client errors
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return &retry.StatusError{
			Service: "discord",
			Code:    rest.Response.StatusCode,
			Message: logging.Truncate(string(rest.ResponseBody), 200),
		}
	}
	return err
}

// chunkMessage splits content into pieces of at most maxLen bytes, preferring
// paragraph, line and word boundaries
func chunkMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		pt := findSplitPoint(content, maxLen)
		chunks = append(chunks, content[:pt])
		content = content[pt:]
	}
	return chunks
}

// findSplitPoint returns the end of the first chunk. Breaks in the first half
// are ignored so chunks stay reasonably full.
func findSplitPoint(content string, maxLen int) int {
	if len(content) <= maxLen {
		return len(content)
	}
	window := content[:maxLen]
	for _, sep := range []string{"\n\n", "\n", " "} {
		if idx := strings.LastIndex(window, sep); idx >= maxLen/2 {
			return idx + len(sep)
		}
	}
	// Forced split; never cut a rune in half
	pt := maxLen
	for pt > 0 && !utf8.RuneStart(content[pt]) {
		pt--
	}
	return pt
}
