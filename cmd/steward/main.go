package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vthunder/steward/internal/app"
	"github.com/vthunder/steward/internal/config"
	"github.com/vthunder/steward/internal/effectors"
	"github.com/vthunder/steward/internal/executive"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/senses"
)

func main() {
	defer logging.Sync()

	// Load .env file (optional - won't error if missing)
	if err := godotenv.Load(); err != nil {
		logging.Info("config", "No .env file found, using environment variables")
	} else {
		logging.Info("config", "Loaded .env file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fatal("config", "%v", err)
	}
	if cfg.DiscordToken == "" {
		fatal("config", "DISCORD_TOKEN environment variable required")
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		fatal("main", "Failed to start: %v", err)
	}
	defer a.Close()
	exec := a.NewExecutive()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		a.ServeMetrics(ctx, cfg.MetricsAddr)
	}

	// Prompts and notices go to the channel the owner last wrote in
	var channel atomic.Value
	channel.Store(cfg.DiscordChannelID)
	currentChannel := func() string { return channel.Load().(string) }

	var effector *effectors.DiscordEffector
	confirmer := effectors.NewConfirmer(a.Bridges, a.Quick, func(text string) error {
		return effector.Send(ctx, currentChannel(), text)
	})
	attachments := &http.Client{Timeout: 30 * time.Second}

	sense, err := senses.NewDiscordSense(senses.DiscordConfig{
		Token:     cfg.DiscordToken,
		ChannelID: cfg.DiscordChannelID,
		OwnerID:   cfg.DiscordOwnerID,
	}, func(in senses.Inbound) {
		channel.Store(in.ChannelID)

		// A turn waiting on a confirmation holds the user's lock, so the
		// answer has to bypass the executive
		if confirmer.HandleReply(in.Content) {
			return
		}

		msg := executive.Message{UserID: in.AuthorID, Text: in.Content}
		if in.ImageURL != "" {
			data, err := senses.FetchAttachment(ctx, attachments, in.ImageURL)
			if err != nil {
				logging.Warn("main", "Failed to fetch attachment: %v", err)
			} else {
				msg.Attachment = data
			}
		}

		stopTyping := effector.Typing(in.ChannelID)
		res, err := exec.HandleMessage(ctx, msg)
		stopTyping()
		if err != nil {
			logging.Warn("main", "Turn for %s abandoned: %v", in.AuthorID, err)
			return
		}
		if err := effector.Send(ctx, in.ChannelID, strings.Join(res.Messages, "\n")); err != nil {
			logging.Error("main", "Failed to send reply: %v", err)
		}
	})
	if err != nil {
		fatal("main", "Failed to create Discord sense: %v", err)
	}

	// Discord effector shares the session with the sense
	effector = effectors.NewDiscordEffector(sense.Session())
	if err := sense.Start(); err != nil {
		fatal("main", "Failed to start Discord sense: %v", err)
	}
	go confirmer.Run(ctx)

	if a.Calendar != nil {
		calendarSense := senses.NewCalendarSense(senses.CalendarConfig{
			Calendar: a.Calendar,
			Tokens:   a.Tokens,
			Timezone: cfg.Location,
		}, func(text string) {
			if err := effector.Send(ctx, currentChannel(), text); err != nil {
				logging.Warn("main", "Failed to send calendar notice: %v", err)
			}
		})
		go calendarSense.Run(ctx)
	}

	logging.Info("main", "All subsystems started. Press Ctrl+C to stop.")
	<-ctx.Done()

	logging.Info("main", "Shutting down...")
	if err := sense.Stop(); err != nil {
		logging.Warn("main", "Failed to stop Discord sense: %v", err)
	}
}

func fatal(subsystem, format string, args ...any) {
	logging.Error(subsystem, format, args...)
	logging.Sync()
	os.Exit(1)
}
