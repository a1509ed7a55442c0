package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/steward/internal/types"
)

type gmail struct {
	mu    sync.Mutex
	sends []string
	// ids answered by the sent-folder search
	found string
	// failNext makes the next send fail after recording it
	failNext bool
}

func (g *gmail) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users/me/messages/send":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			raw, err := base64.RawURLEncoding.DecodeString(body["raw"])
			require.NoError(t, err)
			g.sends = append(g.sends, string(raw))
			if g.failNext {
				g.failNext = false
				g.found = "m1"
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprintf(w, `{"id":"m%d","labelIds":["SENT"]}`, len(g.sends))
		case r.URL.Path == "/users/me/messages":
			assert.Contains(t, r.URL.Query().Get("q"), "rfc822msgid:<")
			if g.found == "" {
				fmt.Fprint(w, `{}`)
				return
			}
			fmt.Fprintf(w, `{"messages":[{"id":%q}]}`, g.found)
		case r.URL.Path == "/users/me/messages/m1":
			fmt.Fprint(w, `{"id":"m1","labelIds":["SENT","INBOX"]}`)
		case r.URL.Path == "/users/me/messages/draft":
			fmt.Fprint(w, `{"id":"draft","labelIds":["DRAFT"]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, g *gmail) *Client {
	t.Helper()
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, From: "me@example.com"})
	c.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	return c
}

func TestSendEmail_ComposesMessage(t *testing.T) {
	g := &gmail{}
	c := newTestClient(t, g)

	id, err := c.SendEmail(context.Background(), "tok", types.Email{
		To:      []string{"ana@example.com"},
		Cc:      []string{"bo@example.com"},
		Subject: "Almuerzo mañana",
		Body:    "Hi\nSee you",
	}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	require.Len(t, g.sends, 1)
	raw := g.sends[0]
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.Contains(t, raw, "Cc: bo@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <key-1@steward.local>\r\n")
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nHi\r\nSee you"))
}

func TestSendEmail_RetryFindsEarlierCopy(t *testing.T) {
	g := &gmail{failNext: true}
	c := newTestClient(t, g)
	email := types.Email{To: []string{"ana@example.com"}, Subject: "Hi", Body: "x"}

	_, err := c.SendEmail(context.Background(), "tok", email, "key-2")
	require.Error(t, err)

	id, err := c.SendEmail(context.Background(), "tok", email, "key-2")
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Len(t, g.sends, 1, "the replay must not send a second copy")
}

func TestIsSent(t *testing.T) {
	c := newTestClient(t, &gmail{})
	ctx := context.Background()

	ok, err := c.IsSent(ctx, "tok", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsSent(ctx, "tok", "draft")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.IsSent(ctx, "tok", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
