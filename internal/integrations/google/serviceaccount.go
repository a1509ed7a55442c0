// Package google holds the pieces shared by the Google API clients
package google

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/steward/internal/types"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	tokenLifetime   = 55 * time.Minute // refresh before the 1 hour expiry
)

// Scopes requested per service
var Scopes = map[string]string{
	types.ServiceCalendar: "https://www.googleapis.com/auth/calendar.events",
	types.ServiceTasks:    "https://www.googleapis.com/auth/tasks",
	types.ServiceMail:     "https://www.googleapis.com/auth/gmail.send https://www.googleapis.com/auth/gmail.readonly",
}

// ServiceAccount mints access tokens from a service account key. Subject,
// when set, impersonates that user through domain-wide delegation (required
// for Gmail).
type ServiceAccount struct {
	httpClient *http.Client
	creds      credentials
	subject    string
	tokenURL   string

	mu     sync.Mutex
	cached map[string]cachedToken
}

type credentials struct {
	Type        string `json:"type"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

type cachedToken struct {
	token  string
	expiry time.Time
}

// LoadServiceAccount reads a service account JSON key
func LoadServiceAccount(path, subject string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return NewServiceAccount(data, subject)
}

// NewServiceAccount parses a service account JSON key
func NewServiceAccount(key []byte, subject string) (*ServiceAccount, error) {
	var creds credentials
	if err := json.Unmarshal(key, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Type != "service_account" {
		return nil, fmt.Errorf("credentials file must be a service account key (got %s)", creds.Type)
	}
	tokenURL := creds.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &ServiceAccount{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		subject:    subject,
		tokenURL:   tokenURL,
		cached:     make(map[string]cachedToken),
	}, nil
}

// AccessToken returns a cached or freshly minted token for service
func (s *ServiceAccount) AccessToken(ctx context.Context, service string) (string, error) {
	scope, ok := Scopes[service]
	if !ok {
		return "", fmt.Errorf("no scope for service %q", service)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cached[service]; ok && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	now := time.Now()
	claims := map[string]any{
		"iss":   s.creds.ClientEmail,
		"scope": scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if s.subject != "" {
		claims["sub"] = s.subject
	}
	jwt, err := s.signJWT(claims)
	if err != nil {
		return "", fmt.Errorf("sign JWT: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", jwt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed (%d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	s.cached[service] = cachedToken{token: tokenResp.AccessToken, expiry: now.Add(tokenLifetime)}
	return tokenResp.AccessToken, nil
}

// signJWT creates a signed RS256 JWT assertion
func (s *ServiceAccount) signJWT(claims map[string]any) (string, error) {
	block, _ := pem.Decode([]byte(s.creds.PrivateKey))
	if block == nil {
		return "", fmt.Errorf("failed to parse PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("private key is not RSA")
	}

	headerJSON, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	hash := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(nil, rsaKey, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
