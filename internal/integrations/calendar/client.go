// Package calendar is a Google Calendar v3 client. The access token is
// supplied per call so the same client serves any signed-in account.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	pageSize       = 250
)

// Client is a Google Calendar API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	calendarID string
	loc        *time.Location
}

// Config holds calendar client configuration
type Config struct {
	CalendarID string         // Calendar to act on, "primary" by default
	BaseURL    string         // Overrides the API endpoint (tests)
	Location   *time.Location // Zone events are reported in
	HTTPClient *http.Client
}

// NewClient creates a client with explicit configuration
func NewClient(cfg Config) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		calendarID: cfg.CalendarID,
		loc:        cfg.Location,
	}
}

// CalendarID returns the configured calendar ID
func (c *Client) CalendarID() string {
	return c.calendarID
}

// request makes an authenticated request to the Calendar API. HTTP failures
// come back as *retry.StatusError.
func (c *Client) request(ctx context.Context, token, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func statusError(code int, body []byte) *retry.StatusError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return &retry.StatusError{Service: "calendar", Code: code, Message: logging.Truncate(msg, 200)}
}

// googleEvent represents the Google Calendar API event format
type googleEvent struct {
	ID          string          `json:"id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Status      string          `json:"status,omitempty"`
	Start       *googleDateTime `json:"start,omitempty"`
	End         *googleDateTime `json:"end,omitempty"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventsResponse struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

func (c *Client) eventsPath(id string) string {
	p := fmt.Sprintf("/calendars/%s/events", url.PathEscape(c.calendarID))
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// ListEvents returns the events starting in [start, end), recurring events
// expanded, ordered by start. titleFilter is passed as free-text search.
func (c *Client) ListEvents(ctx context.Context, token string, start, end time.Time, titleFilter string) ([]types.CalendarEvent, error) {
	q := url.Values{}
	q.Set("timeMin", start.Format(time.RFC3339))
	q.Set("timeMax", end.Format(time.RFC3339))
	q.Set("maxResults", fmt.Sprintf("%d", pageSize))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	if titleFilter != "" {
		q.Set("q", titleFilter)
	}

	var events []types.CalendarEvent
	for {
		data, err := c.request(ctx, token, http.MethodGet, c.eventsPath("")+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var resp eventsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse events response: %w", err)
		}
		for i := range resp.Items {
			item := &resp.Items[i]
			if item.Status == "cancelled" {
				continue
			}
			ev, err := c.convertEvent(item)
			if err != nil {
				logging.Debug("calendar", "skipping malformed event %s: %v", item.ID, err)
				continue
			}
			events = append(events, ev)
		}
		if resp.NextPageToken == "" {
			return events, nil
		}
		q.Set("pageToken", resp.NextPageToken)
	}
}

// EventID derives the client-supplied event id from an idempotency key.
// Google accepts lowercase base32hex ids of 5-1024 characters, which a
// dash-stripped UUID satisfies.
func EventID(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "-", ""))
}

// CreateEvent inserts an event whose id is derived from key, so a retried
// insert that already landed comes back as 409 and counts as success
func (c *Client) CreateEvent(ctx context.Context, token string, draft types.EventDraft, key string) (string, error) {
	ev := googleEvent{
		Summary:     draft.Title,
		Description: draft.Notes,
		Location:    draft.Location,
		Start:       dateTime(draft.Start),
		End:         dateTime(draft.End),
	}
	if key != "" {
		ev.ID = EventID(key)
	}

	data, err := c.request(ctx, token, http.MethodPost, c.eventsPath(""), ev)
	if err != nil {
		if retry.IsConflict(err) && ev.ID != "" {
			logging.Info("calendar", "event %s already exists, treating insert as done", ev.ID)
			return ev.ID, nil
		}
		return "", err
	}

	var created googleEvent
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("parse created event: %w", err)
	}
	return created.ID, nil
}

// UpdateEvent patches only the fields set in patch
func (c *Client) UpdateEvent(ctx context.Context, token, eventID string, patch types.EventPatch, key string) error {
	body := map[string]any{}
	if patch.Title != nil {
		body["summary"] = *patch.Title
	}
	if patch.Location != nil {
		body["location"] = *patch.Location
	}
	if patch.Notes != nil {
		body["description"] = *patch.Notes
	}
	if patch.Start != nil {
		body["start"] = dateTime(*patch.Start)
	}
	if patch.End != nil {
		body["end"] = dateTime(*patch.End)
	}
	logging.Debug("calendar", "patch %s (key %s)", eventID, key)
	_, err := c.request(ctx, token, http.MethodPatch, c.eventsPath(eventID), body)
	return err
}

// DeleteEvent removes one event
func (c *Client) DeleteEvent(ctx context.Context, token, eventID, key string) error {
	logging.Debug("calendar", "delete %s (key %s)", eventID, key)
	_, err := c.request(ctx, token, http.MethodDelete, c.eventsPath(eventID), nil)
	return err
}

// DeleteEventsInRange deletes the events in [start, end) whose title
// contains titleFilter and, when startTimeFilter ("HH:MM") is set, that
// start at that local time. Events already gone count as deleted.
func (c *Client) DeleteEventsInRange(ctx context.Context, token string, start, end time.Time, titleFilter, startTimeFilter, key string) (int, error) {
	events, err := c.ListEvents(ctx, token, start, end, titleFilter)
	if err != nil {
		return 0, err
	}
	filter := strings.ToLower(titleFilter)

	deleted := 0
	for _, ev := range events {
		if filter != "" && !strings.Contains(strings.ToLower(ev.Title), filter) {
			continue
		}
		if startTimeFilter != "" && ev.Start.In(c.loc).Format("15:04") != startTimeFilter {
			continue
		}
		if err := c.DeleteEvent(ctx, token, ev.ID, key); err != nil && !retry.IsNotFound(err) {
			return deleted, fmt.Errorf("delete %s: %w", ev.ID, err)
		}
		deleted++
	}
	logging.Info("calendar", "deleted %d event(s) between %s and %s", deleted,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return deleted, nil
}

func dateTime(t time.Time) *googleDateTime {
	dt := &googleDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "Local" && name != "UTC" {
		dt.TimeZone = name
	}
	return dt
}

// convertEvent converts a Google Calendar event to the shared event type
func (c *Client) convertEvent(item *googleEvent) (types.CalendarEvent, error) {
	ev := types.CalendarEvent{
		ID:       item.ID,
		Title:    item.Summary,
		Location: item.Location,
		Notes:    item.Description,
	}
	var err error
	if ev.Start, err = c.parseDateTime(item.Start); err != nil {
		return types.CalendarEvent{}, fmt.Errorf("parse start: %w", err)
	}
	if ev.End, err = c.parseDateTime(item.End); err != nil {
		return types.CalendarEvent{}, fmt.Errorf("parse end: %w", err)
	}
	return ev, nil
}

func (c *Client) parseDateTime(dt *googleDateTime) (time.Time, error) {
	switch {
	case dt == nil:
		return time.Time{}, fmt.Errorf("missing")
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(c.loc), nil
	case dt.Date != "":
		// all-day events start at local midnight
		return time.ParseInLocation("2006-01-02", dt.Date, c.loc)
	}
	return time.Time{}, fmt.Errorf("empty")
}
