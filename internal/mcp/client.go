package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

const defaultConnectTimeout = 5 * time.Second

// Client manages connections to configured MCP servers.
type Client struct {
	mu      sync.RWMutex
	sdk     *sdkmcp.Client
	servers map[string]*serverConn
	log     zerolog.Logger
}

type serverConn struct {
	name    string
	config  ServerConfig
	session *sdkmcp.ClientSession
	tools   []Tool
	status  Status
	err     string
}

// NewClient creates an MCP client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		sdk: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "conduit",
			Version: "1.0.0",
		}, nil),
		servers: make(map[string]*serverConn),
		log:     log.With().Str("component", "mcp").Logger(),
	}
}

// Connect adds a server and establishes its session. A failed connection
// is recorded and returned but leaves the client usable.
func (c *Client) Connect(ctx context.Context, name string, config ServerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[name]; ok {
		return fmt.Errorf("server already exists: %s", name)
	}

	if config.Disabled {
		c.servers[name] = &serverConn{name: name, config: config, status: StatusDisabled}
		return nil
	}

	conn, err := c.dial(ctx, name, config)
	if err != nil {
		c.servers[name] = &serverConn{name: name, config: config, status: StatusFailed, err: err.Error()}
		return fmt.Errorf("connect %s: %w", name, err)
	}

	c.log.Info().Str("server", name).Int("tools", len(conn.tools)).Msg("mcp server connected")
	c.servers[name] = conn
	return nil
}

func (c *Client) dial(ctx context.Context, name string, config ServerConfig) (*serverConn, error) {
	timeout := defaultConnectTimeout
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}

	conn := &serverConn{name: name, config: config}

	switch {
	case config.URL != "":
		httpClient := httpClientWithHeaders(config.Headers)
		transports := []struct {
			name      string
			transport sdkmcp.Transport
		}{
			{name: "streamable", transport: &sdkmcp.StreamableClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
			{name: "sse", transport: &sdkmcp.SSEClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
		}

		var lastErr error
		for _, candidate := range transports {
			session, err := c.open(ctx, candidate.transport, timeout, conn)
			if err != nil {
				lastErr = fmt.Errorf("%s transport: %w", candidate.name, err)
				continue
			}
			conn.session = session
			conn.status = StatusConnected
			return conn, nil
		}
		return nil, lastErr

	case len(config.Command) > 0:
		connectCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}

		session, err := c.open(connectCtx, &sdkmcp.CommandTransport{Command: cmd}, timeout, conn)
		if err != nil {
			return nil, err
		}
		conn.session = session
		conn.status = StatusConnected
		return conn, nil

	default:
		return nil, fmt.Errorf("server needs a command or a url")
	}
}

func (c *Client) open(ctx context.Context, transport sdkmcp.Transport, timeout time.Duration, conn *serverConn) (*sdkmcp.ClientSession, error) {
	session, err := c.sdk.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	listCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	conn.tools = make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		conn.tools[i] = fromSDKTool(t)
	}

	return session, nil
}

func fromSDKTool(t *sdkmcp.Tool) Tool {
	raw, err := json.Marshal(t.InputSchema)
	if err != nil || t.InputSchema == nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: raw,
	}
}

func httpClientWithHeaders(headers map[string]string) *http.Client {
	client := &http.Client{}
	if len(headers) == 0 {
		return client
	}
	client.Transport = &headerRoundTripper{headers: headers, next: http.DefaultTransport}
	return client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}

// Tools returns every tool from every connected server, names prefixed
// with the server name so two servers can advertise the same tool.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []Tool
	for name, conn := range c.servers {
		if conn.status != StatusConnected {
			continue
		}
		for _, t := range conn.tools {
			all = append(all, Tool{
				Name:        sanitizeName(name) + "_" + sanitizeName(t.Name),
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return all
}

// Execute routes a prefixed tool name back to its server and calls it.
// A result the server flags as an error comes back as a Go error; the
// caller turns it into tool-result text.
func (c *Client) Execute(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	conn, originalName := c.findTool(toolName)
	if conn == nil {
		return "", fmt.Errorf("no server found for tool: %s", toolName)
	}

	var argsMap map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
	}

	result, err := conn.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      originalName,
		Arguments: argsMap,
	})
	if err != nil {
		return "", err
	}

	var output strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(text.Text)
		}
	}

	if result.IsError {
		if output.Len() > 0 {
			return "", fmt.Errorf("tool error: %s", output.String())
		}
		return "", fmt.Errorf("tool execution failed")
	}

	return output.String(), nil
}

func (c *Client) findTool(toolName string) (*serverConn, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, conn := range c.servers {
		if conn.status != StatusConnected || conn.session == nil {
			continue
		}
		prefix := sanitizeName(name) + "_"
		if !strings.HasPrefix(toolName, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(toolName, prefix)
		for _, t := range conn.tools {
			if sanitizeName(t.Name) == suffix {
				return conn, t.Name
			}
		}
	}
	return nil, ""
}

// Status reports every configured server's state.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(c.servers))
	for name, conn := range c.servers {
		s := ServerStatus{
			Name:      name,
			Status:    conn.status,
			ToolCount: len(conn.tools),
		}
		if conn.err != "" {
			s.Error = &conn.err
		}
		statuses = append(statuses, s)
	}
	return statuses
}

// Close disconnects all servers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conn := range c.servers {
		if conn.session != nil {
			conn.session.Close()
		}
	}
	c.servers = make(map[string]*serverConn)
	return nil
}

// sanitizeName replaces non-alphanumeric characters with underscores so
// prefixed names stay valid tool identifiers.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
