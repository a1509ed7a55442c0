// Package planner talks to the language model that turns a user message
// into a JSON action list, and builds the prompt it sees.
package planner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"
)

// Client handles generation via Ollama
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a new Ollama client
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second, // generation can take a while
		},
	}
}

// Model returns the generation model name
func (c *Client) Model() string {
	return c.model
}

// generateRequest is the Ollama API request format for generation
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the Ollama API response format for generation
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// SendPrompt runs one non-streaming completion. attachment, when present, is
// an image (for example a screen capture) passed to multimodal models.
func (c *Client) SendPrompt(ctx context.Context, prompt string, attachment []byte) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	reqBody := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0.1},
	}
	if len(attachment) > 0 {
		reqBody.Images = []string{base64.StdEncoding.EncodeToString(attachment)}
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &retry.StatusError{Service: "planner", Code: resp.StatusCode, Message: logging.Truncate(string(body), 200)}
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	logging.Debug("planner", "%s answered in %s (%d chars)", c.model, time.Since(start).Round(time.Millisecond), len(result.Response))
	return result.Response, nil
}
