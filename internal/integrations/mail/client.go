// Package mail sends email through the Gmail API and checks the sent folder
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

const (
	defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"
	sentLabel      = "SENT"
	attemptedKeys  = 512
)

// Client is a Gmail API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	from       string
	now        func() time.Time

	// keys already sent once; a repeat searches the sent folder first
	attempted *lru.Cache[string, struct{}]
}

// Config holds mail client configuration
type Config struct {
	From       string // Optional From header; Gmail fills in the account address otherwise
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client with explicit configuration
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	attempted, _ := lru.New[string, struct{}](attemptedKeys)
	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		from:       cfg.From,
		now:        time.Now,
		attempted:  attempted,
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
		return nil, &retry.StatusError{Service: "mail", Code: resp.StatusCode, Message: logging.Truncate(msg, 200)}
	}
	return respBody, nil
}

type message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId,omitempty"`
	LabelIDs []string `json:"labelIds,omitempty"`
}

// MessageID is the RFC 5322 Message-ID stamped on a message sent with key
func MessageID(key string) string {
	return fmt.Sprintf("<%s@steward.local>", key)
}

// SendEmail sends email. The idempotency key becomes the Message-ID header;
// when the same key is sent again the sent folder is searched first and an
// existing copy is returned instead of sending twice.
func (c *Client) SendEmail(ctx context.Context, token string, email types.Email, key string) (string, error) {
	if key != "" {
		if _, seen := c.attempted.Get(key); seen {
			id, err := c.findSent(ctx, token, MessageID(key))
			if err != nil {
				return "", fmt.Errorf("check earlier attempt: %w", err)
			}
			if id != "" {
				logging.Info("mail", "message for key %s already sent as %s", key, id)
				return id, nil
			}
		}
		c.attempted.Add(key, struct{}{})
	}

	raw := c.compose(email, key)
	data, err := c.request(ctx, token, http.MethodPost, "/users/me/messages/send", map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", err
	}
	var sent message
	if err := json.Unmarshal(data, &sent); err != nil {
		return "", fmt.Errorf("parse send response: %w", err)
	}
	logging.Info("mail", "sent %s to %s", sent.ID, strings.Join(email.To, ", "))
	return sent.ID, nil
}

// IsSent reports whether messageID exists and carries the SENT label
func (c *Client) IsSent(ctx context.Context, token, messageID string) (bool, error) {
	data, err := c.request(ctx, token, http.MethodGet,
		"/users/me/messages/"+url.PathEscape(messageID)+"?format=minimal", nil)
	if err != nil {
		if retry.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return false, fmt.Errorf("parse message: %w", err)
	}
	for _, l := range msg.LabelIDs {
		if l == sentLabel {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) findSent(ctx context.Context, token, rfcID string) (string, error) {
	q := url.Values{}
	q.Set("q", "in:sent rfc822msgid:"+rfcID)
	q.Set("maxResults", "1")
	data, err := c.request(ctx, token, http.MethodGet, "/users/me/messages?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Messages []message `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

// compose renders a plain-text RFC 5322 message
func (c *Client) compose(email types.Email, key string) []byte {
	var b bytes.Buffer
	header := func(name, value string) {
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}
	if c.from != "" {
		header("From", c.from)
	}
	header("To", strings.Join(email.To, ", "))
	if len(email.Cc) > 0 {
		header("Cc", strings.Join(email.Cc, ", "))
	}
	header("Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	header("Date", c.now().Format(time.RFC1123Z))
	if key != "" {
		header("Message-ID", MessageID(key))
	}
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(email.Body, "\n", "\r\n"))
	return b.Bytes()
}
