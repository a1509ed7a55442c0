package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vthunder/steward/internal/logging"
)

// ExternalServerConfig describes an external stdio MCP server
type ExternalServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// toolCaller is the part of an MCP client session the proxy uses
type toolCaller interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Call is the payload of an external_action aimed at an MCP server
type Call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Proxy runs confirmed external actions as tool calls on an external MCP
// server. The server process starts on first use and is restarted after a
// transport failure.
type Proxy struct {
	cfg  ExternalServerConfig
	dial func(ctx context.Context) (toolCaller, error)

	mu      sync.Mutex // serializes calls and guards session
	session toolCaller
}

// NewProxy creates a proxy for an external stdio server
func NewProxy(cfg ExternalServerConfig) *Proxy {
	p := &Proxy{cfg: cfg}
	p.dial = p.startStdio
	return p
}

// Name returns the integration name
func (p *Proxy) Name() string {
	return p.cfg.Name
}

func (p *Proxy) startStdio(ctx context.Context) (toolCaller, error) {
	env := os.Environ()
	for k, v := range p.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	c, err := client.NewStdioMCPClient(p.cfg.Command, env, p.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", p.cfg.Command, err)
	}
	return c, nil
}

func (p *Proxy) connect(ctx context.Context) (toolCaller, error) {
	if p.session != nil {
		return p.session, nil
	}
	s, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "steward", Version: "0.1.0"}
	if _, err := s.Initialize(ctx, initReq); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize %s: %w", p.cfg.Name, err)
	}
	logging.Info("proxy", "%s: ready", p.cfg.Name)
	p.session = s
	return s, nil
}

// Run calls the tool named in payload and returns its text output. A tool
// error result is returned as an error so the caller can offer a retry.
func (p *Proxy) Run(ctx context.Context, payload json.RawMessage) (string, error) {
	var call Call
	if err := json.Unmarshal(payload, &call); err != nil {
		return "", fmt.Errorf("%s payload: %w", p.cfg.Name, err)
	}
	if call.Tool == "" {
		return "", fmt.Errorf("%s payload: missing tool", p.cfg.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.connect(ctx)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Tool
	req.Params.Arguments = call.Arguments
	logging.Info("proxy", "%s: calling %s", p.cfg.Name, call.Tool)

	res, err := s.CallTool(ctx, req)
	if err != nil {
		// The process may be gone; start fresh next time
		s.Close()
		p.session = nil
		return "", fmt.Errorf("%s/%s: %w", p.cfg.Name, call.Tool, err)
	}

	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "tool returned error"
		}
		return "", fmt.Errorf("%s/%s: %s", p.cfg.Name, call.Tool, text)
	}
	return text, nil
}

// Close stops the external server process
func (p *Proxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	return err
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MCPConfig represents the .mcp.json configuration file
type MCPConfig struct {
	MCPServers map[string]MCPServerEntry `json:"mcpServers"`
}

// MCPServerEntry is a single server entry in .mcp.json
type MCPServerEntry struct {
	Type    string            `json:"type,omitempty"`    // "http" for HTTP transport
	URL     string            `json:"url,omitempty"`     // for type=http
	Command string            `json:"command,omitempty"` // for stdio
	Args    []string          `json:"args,omitempty"`    // for stdio
	Env     map[string]string `json:"env,omitempty"`     // for stdio
}

// LoadMCPConfig reads and parses a .mcp.json file
func LoadMCPConfig(path string) (*MCPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse .mcp.json: %w", err)
	}
	return &cfg, nil
}

// ProxiesFromConfig returns a proxy for every stdio server in cfg, sorted by
// name. Processes start lazily on the first call.
func ProxiesFromConfig(cfg *MCPConfig) []*Proxy {
	names := make([]string, 0, len(cfg.MCPServers))
	for name := range cfg.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	var proxies []*Proxy
	for _, name := range names {
		entry := cfg.MCPServers[name]
		// Skip HTTP servers, they're not stdio proxies
		if entry.Type == "http" || entry.Command == "" {
			logging.Debug("proxy", "skipping %s: not a stdio server", name)
			continue
		}
		proxies = append(proxies, NewProxy(ExternalServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
		}))
	}
	return proxies
}
