package senses

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/types"
)

// DefaultCalendarPollInterval is how often to check for upcoming events
const DefaultCalendarPollInterval = 5 * time.Minute

// DefaultMeetingReminderBefore is how far ahead to send meeting reminders
const DefaultMeetingReminderBefore = 15 * time.Minute

// CalendarSense watches the calendar and posts meeting reminders and a
// morning agenda
type CalendarSense struct {
	calendar       dispatch.CalendarService
	tokens         dispatch.TokenSource
	notify         func(text string)
	pollInterval   time.Duration
	reminderBefore time.Duration
	timezone       *time.Location
	now            func() time.Time

	mu              sync.Mutex
	lastPoll        time.Time
	notifiedEvents  map[string]time.Time // eventID+start -> when we notified
	lastDailyAgenda time.Time
}

// CalendarConfig holds configuration for the calendar sense
type CalendarConfig struct {
	Calendar       dispatch.CalendarService
	Tokens         dispatch.TokenSource
	PollInterval   time.Duration
	ReminderBefore time.Duration
	Timezone       *time.Location
}

// NewCalendarSense creates a calendar sense that reports through notify
func NewCalendarSense(cfg CalendarConfig, notify func(text string)) *CalendarSense {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultCalendarPollInterval
	}
	if cfg.ReminderBefore == 0 {
		cfg.ReminderBefore = DefaultMeetingReminderBefore
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &CalendarSense{
		calendar:       cfg.Calendar,
		tokens:         cfg.Tokens,
		notify:         notify,
		pollInterval:   cfg.PollInterval,
		reminderBefore: cfg.ReminderBefore,
		timezone:       cfg.Timezone,
		now:            time.Now,
		notifiedEvents: make(map[string]time.Time),
	}
}

// Run polls until ctx is done
func (c *CalendarSense) Run(ctx context.Context) {
	logging.Info("calendar-sense", "Starting with poll interval %v, reminder before %v", c.pollInterval, c.reminderBefore)
	c.poll(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info("calendar-sense", "Stopped")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *CalendarSense) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := c.now()
	c.mu.Lock()
	c.lastPoll = now
	c.mu.Unlock()

	token, err := c.tokens.AccessToken(ctx, types.ServiceCalendar)
	if err != nil || token == "" {
		logging.Debug("calendar-sense", "not signed in to calendar, skipping poll")
		return
	}

	c.checkDailyAgenda(ctx, token, now)
	c.checkUpcomingMeetings(ctx, token, now)
	c.cleanupNotifications(now)
}

func (c *CalendarSense) checkDailyAgenda(ctx context.Context, token string, now time.Time) {
	nowLocal := now.In(c.timezone)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, c.timezone)

	// Between 7 and 9 in the morning, once per day
	if hour := nowLocal.Hour(); hour < 7 || hour >= 9 {
		return
	}
	c.mu.Lock()
	lastAgenda := c.lastDailyAgenda
	c.mu.Unlock()
	if !lastAgenda.IsZero() && !lastAgenda.Before(today) {
		return
	}

	events, err := c.calendar.ListEvents(ctx, token, today, today.AddDate(0, 0, 1), "")
	if err != nil {
		logging.Warn("calendar-sense", "Failed to get today's events: %v", err)
		return
	}

	c.mu.Lock()
	c.lastDailyAgenda = now
	c.mu.Unlock()

	if len(events) == 0 {
		logging.Debug("calendar-sense", "No events today, skipping daily agenda")
		return
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	c.notify(c.formatDailyAgenda(today, events))
	logging.Info("calendar-sense", "Sent daily agenda with %d events", len(events))
}

func (c *CalendarSense) checkUpcomingMeetings(ctx context.Context, token string, now time.Time) {
	// Look past the reminder window by one poll so nothing falls between polls
	lookAhead := c.reminderBefore + c.pollInterval
	events, err := c.calendar.ListEvents(ctx, token, now, now.Add(lookAhead), "")
	if err != nil {
		logging.Warn("calendar-sense", "Failed to get upcoming events: %v", err)
		return
	}

	for _, event := range events {
		if c.allDay(event) {
			continue
		}
		timeUntil := event.Start.Sub(now)
		if timeUntil > c.reminderBefore || timeUntil < 0 {
			continue
		}

		notifyKey := fmt.Sprintf("%s-%s", event.ID, event.Start.Format(time.RFC3339))
		c.mu.Lock()
		_, alreadyNotified := c.notifiedEvents[notifyKey]
		if !alreadyNotified {
			c.notifiedEvents[notifyKey] = now
		}
		c.mu.Unlock()
		if alreadyNotified {
			continue
		}

		c.notify(meetingReminder(event, timeUntil))
		logging.Info("calendar-sense", "Sent meeting reminder: %s (in %s)", event.Title, formatDuration(timeUntil))
	}
}

// allDay reports events spanning whole local days
func (c *CalendarSense) allDay(ev types.CalendarEvent) bool {
	start := ev.Start.In(c.timezone)
	midnight := start.Hour() == 0 && start.Minute() == 0 && start.Second() == 0
	span := ev.End.Sub(ev.Start)
	return midnight && span >= 24*time.Hour && span%(24*time.Hour) == 0
}

func meetingReminder(event types.CalendarEvent, timeUntil time.Duration) string {
	content := fmt.Sprintf("Upcoming in %s: %s", formatDuration(timeUntil), event.Title)
	if event.Location != "" {
		content += fmt.Sprintf("\nLocation: %s", event.Location)
	}
	return content
}

func (c *CalendarSense) formatDailyAgenda(day time.Time, events []types.CalendarEvent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Agenda for %s:\n", day.Format("Monday, January 2")))
	for i, ev := range events {
		when := "all day"
		if !c.allDay(ev) {
			when = fmt.Sprintf("%s-%s", ev.Start.In(c.timezone).Format("15:04"), ev.End.In(c.timezone).Format("15:04"))
		}
		b.WriteString(fmt.Sprintf("%d. %s %s", i+1, when, ev.Title))
		if ev.Location != "" {
			b.WriteString(fmt.Sprintf(" (%s)", ev.Location))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *CalendarSense) cleanupNotifications(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-24 * time.Hour)
	for key, notifiedAt := range c.notifiedEvents {
		if notifiedAt.Before(cutoff) {
			delete(c.notifiedEvents, key)
		}
	}
}

// LastPoll returns when the calendar was last polled
func (c *CalendarSense) LastPoll() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPoll
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	if d < 2*time.Minute {
		return "1 minute"
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 2*time.Hour {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", int(d.Hours()))
}
