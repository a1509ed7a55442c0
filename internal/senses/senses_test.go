package senses

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/steward/internal/types"
)

func message(authorID, channelID, guildID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: channelID,
		GuildID:   guildID,
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "name-" + authorID},
	}}
}

func TestDiscordAccept(t *testing.T) {
	d := &DiscordSense{botID: "bot", channelID: "home", ownerID: "owner"}

	tests := []struct {
		name string
		msg  *discordgo.MessageCreate
		want bool
	}{
		{"owner in channel", message("owner", "home", "g", "hi"), true},
		{"owner DM", message("owner", "dm-1", "", "hi"), true},
		{"owner elsewhere", message("owner", "random", "g", "hi"), false},
		{"stranger", message("stranger", "home", "g", "hi"), false},
		{"self", message("bot", "home", "g", "hi"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.accept(tt.msg))
		})
	}

	other := message("owner", "home", "g", "hi")
	other.Author.Bot = true
	assert.False(t, d.accept(other))
}

func TestDiscordToInbound(t *testing.T) {
	d := &DiscordSense{botID: "bot"}
	m := message("owner", "home", "", "<@bot> add milk <@!bot>")
	m.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn/doc.pdf", ContentType: "application/pdf"},
		{URL: "https://cdn/shot.png", ContentType: "image/png"},
	}

	in := d.toInbound(m)
	assert.Equal(t, "add milk", in.Content)
	assert.True(t, in.IsDM)
	assert.Equal(t, "https://cdn/shot.png", in.ImageURL)
	assert.Equal(t, "name-owner", in.AuthorName)
}

func TestFetchAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	data, err := FetchAttachment(context.Background(), srv.Client(), srv.URL+"/shot.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	_, err = FetchAttachment(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)
}

type calendarStub struct {
	events []types.CalendarEvent
	calls  int
}

func (c *calendarStub) ListEvents(ctx context.Context, token string, start, end time.Time, titleFilter string) ([]types.CalendarEvent, error) {
	c.calls++
	var out []types.CalendarEvent
	for _, ev := range c.events {
		if ev.Start.Before(end) && ev.End.After(start) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *calendarStub) CreateEvent(ctx context.Context, token string, draft types.EventDraft, key string) (string, error) {
	return "", nil
}

func (c *calendarStub) UpdateEvent(ctx context.Context, token, id string, patch types.EventPatch, key string) error {
	return nil
}

func (c *calendarStub) DeleteEvent(ctx context.Context, token, id, key string) error { return nil }

func (c *calendarStub) DeleteEventsInRange(ctx context.Context, token string, start, end time.Time, titleFilter, startTimeFilter, key string) (int, error) {
	return 0, nil
}

type tokenStub string

func (s tokenStub) AccessToken(ctx context.Context, service string) (string, error) {
	return string(s), nil
}

type notes struct {
	mu   sync.Mutex
	sent []string
}

func (n *notes) add(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
}

func TestCalendarSense_RemindersAndAgenda(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	cal := &calendarStub{events: []types.CalendarEvent{
		{ID: "standup", Title: "Standup", Start: day.Add(8*time.Hour + 10*time.Minute), End: day.Add(8*time.Hour + 25*time.Minute), Location: "Room 4"},
		{ID: "holiday", Title: "Holiday", Start: day, End: day.Add(24 * time.Hour)},
		{ID: "lunch", Title: "Lunch", Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)},
	}}
	out := &notes{}
	c := NewCalendarSense(CalendarConfig{Calendar: cal, Tokens: tokenStub("t"), Timezone: time.UTC}, out.add)

	now := day.Add(8 * time.Hour)
	c.now = func() time.Time { return now }
	c.poll(context.Background())

	require.Len(t, out.sent, 2)
	assert.Equal(t, "Agenda for Monday, October 19:\n1. all day Holiday\n2. 08:10-08:25 Standup (Room 4)\n3. 12:00-13:00 Lunch", out.sent[0])
	assert.Equal(t, "Upcoming in 10 minutes: Standup\nLocation: Room 4", out.sent[1])
	assert.Equal(t, now, c.LastPoll())

	// Same window again: no duplicate agenda or reminder
	now = now.Add(5 * time.Minute)
	c.poll(context.Background())
	assert.Len(t, out.sent, 2)
}

func TestCalendarSense_SignedOut(t *testing.T) {
	cal := &calendarStub{}
	out := &notes{}
	c := NewCalendarSense(CalendarConfig{Calendar: cal, Tokens: tokenStub("")}, out.add)
	c.poll(context.Background())
	assert.Zero(t, cal.calls)
	assert.Empty(t, out.sent)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "less than a minute", formatDuration(30*time.Second))
	assert.Equal(t, "1 minute", formatDuration(90*time.Second))
	assert.Equal(t, "14 minutes", formatDuration(14*time.Minute+20*time.Second))
	assert.True(t, strings.HasSuffix(formatDuration(3*time.Hour), "hours"))
}
