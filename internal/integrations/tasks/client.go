// Package tasks is a Google Tasks v1 client. Like the calendar client it
// takes the access token per call.
package tasks

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
	defaultBaseURL = "https://tasks.googleapis.com/tasks/v1"
	defaultList    = "@default"
	pageSize       = 100
)

// Client is a Google Tasks API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	listID     string
	loc        *time.Location
}

// Config holds tasks client configuration
type Config struct {
	ListID     string // Task list to act on, "@default" by default
	BaseURL    string
	Location   *time.Location // Zone due dates are reported in
	HTTPClient *http.Client
}

// NewClient creates a client with explicit configuration
func NewClient(cfg Config) *Client {
	if cfg.ListID == "" {
		cfg.ListID = defaultList
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
		listID:     cfg.ListID,
		loc:        cfg.Location,
	}
}

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
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &retry.StatusError{Service: "tasks", Code: resp.StatusCode, Message: logging.Truncate(msg, 200)}
	}
	return respBody, nil
}

// googleTask is the Tasks API representation
type googleTask struct {
	ID     string  `json:"id,omitempty"`
	Title  string  `json:"title,omitempty"`
	Notes  string  `json:"notes,omitempty"`
	Due    string  `json:"due,omitempty"`
	Status string  `json:"status,omitempty"`
	Parent string  `json:"parent,omitempty"`
	Hidden bool    `json:"hidden,omitempty"`
	Done   *string `json:"completed,omitempty"`
}

type tasksResponse struct {
	Items         []googleTask `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
}

func (c *Client) tasksPath(id string) string {
	p := fmt.Sprintf("/lists/%s/tasks", url.PathEscape(c.listID))
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// FetchTopTasks returns the top-level tasks of the list, completed ones
// included. Subtasks are left out.
func (c *Client) FetchTopTasks(ctx context.Context, token string) ([]types.TaskItem, error) {
	q := url.Values{}
	q.Set("maxResults", fmt.Sprintf("%d", pageSize))
	q.Set("showCompleted", "true")
	q.Set("showHidden", "false")

	var out []types.TaskItem
	for {
		data, err := c.request(ctx, token, http.MethodGet, c.tasksPath("")+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var resp tasksResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("parse tasks response: %w", err)
		}
		for _, item := range resp.Items {
			if item.Parent != "" || item.Hidden {
				continue
			}
			out = append(out, c.convertTask(item))
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		q.Set("pageToken", resp.NextPageToken)
	}
}

// CreateTask inserts a task at the top of the list. The Tasks API has no
// client-supplied ids, so the key is only logged.
func (c *Client) CreateTask(ctx context.Context, token string, draft types.TaskDraft, key string) (string, error) {
	body := googleTask{Title: draft.Title, Notes: draft.Notes, Status: "needsAction"}
	if draft.Due != nil {
		body.Due = formatDue(*draft.Due)
	}
	logging.Debug("tasks", "insert %q (key %s)", draft.Title, key)
	data, err := c.request(ctx, token, http.MethodPost, c.tasksPath(""), body)
	if err != nil {
		return "", err
	}
	var created googleTask
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("parse created task: %w", err)
	}
	return created.ID, nil
}

// PushTaskChanges patches only the fields set in patch
func (c *Client) PushTaskChanges(ctx context.Context, token, taskID string, patch types.TaskPatch, key string) error {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Notes != nil {
		body["notes"] = *patch.Notes
	}
	if patch.Due != nil {
		body["due"] = formatDue(*patch.Due)
	}
	if patch.Completed != nil {
		if *patch.Completed {
			body["status"] = "completed"
		} else {
			body["status"] = "needsAction"
			body["completed"] = nil
		}
	}
	logging.Debug("tasks", "patch %s (key %s)", taskID, key)
	_, err := c.request(ctx, token, http.MethodPatch, c.tasksPath(taskID), body)
	return err
}

// DeleteTask removes one task
func (c *Client) DeleteTask(ctx context.Context, token, taskID, key string) error {
	logging.Debug("tasks", "delete %s (key %s)", taskID, key)
	_, err := c.request(ctx, token, http.MethodDelete, c.tasksPath(taskID), nil)
	return err
}

// formatDue encodes the calendar date of t. The API keeps only the date.
func formatDue(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func (c *Client) convertTask(item googleTask) types.TaskItem {
	t := types.TaskItem{
		ID:        item.ID,
		Title:     item.Title,
		Notes:     item.Notes,
		Completed: item.Status == "completed",
	}
	if item.Due != "" {
		if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
			local := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, c.loc)
			t.Due = &local
		} else {
			logging.Debug("tasks", "bad due %q on %s: %v", item.Due, item.ID, err)
		}
	}
	if c.listID != defaultList {
		t.List = c.listID
	}
	return t
}
