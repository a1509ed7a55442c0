package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/integrations/google"
)

// anyService is the tokens-file key used when a service has no entry
const anyService = "*"

// StaticTokens returns the same token for every service
type StaticTokens string

func (s StaticTokens) AccessToken(ctx context.Context, service string) (string, error) {
	return string(s), nil
}

// FileTokens reads a JSON object of service to access token on every call,
// so an external refresher can rewrite the file while steward runs:
//
//	{"calendar": "ya29...", "tasks": "ya29...", "mail": "ya29...", "*": "fallback"}
//
// A missing file means nobody is signed in.
type FileTokens struct {
	Path string
}

func (f FileTokens) AccessToken(ctx context.Context, service string) (string, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read tokens: %w", err)
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return "", fmt.Errorf("parse tokens %s: %w", f.Path, err)
	}
	if tok, ok := tokens[service]; ok {
		return tok, nil
	}
	return tokens[anyService], nil
}

// Tokens picks the token source: service account key, then tokens file,
// then a static token. With none configured every service is signed out.
func (c *Config) Tokens() (dispatch.TokenSource, error) {
	switch {
	case c.GoogleCredentialsFile != "":
		sa, err := google.LoadServiceAccount(c.GoogleCredentialsFile, c.GoogleSubject)
		if err != nil {
			return nil, err
		}
		return sa, nil
	case c.GoogleTokensFile != "":
		return FileTokens{Path: c.GoogleTokensFile}, nil
	default:
		return StaticTokens(c.GoogleAccessToken), nil
	}
}
