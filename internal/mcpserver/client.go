package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
)

const (
	clientName    = "mcpo-simple-server"
	clientVersion = "1.0.0"
)

// Client speaks the MCP protocol on top of a Handle: the initialize
// handshake, tool discovery, and tool invocation. It never retries; retry
// policy belongs to the Controller.
type Client struct {
	handle *Handle

	// OnToolsChanged, when set, receives the refreshed manifest after the
	// child emits notifications/tools/list_changed.
	OnToolsChanged func([]Tool)
}

// NewClient wraps a spawned handle. The client installs itself as the
// handle's notification handler to observe tools/list_changed.
func NewClient(h *Handle) *Client {
	c := &Client{handle: h}
	h.SetNotificationHandler(c.handleNotification)
	return c
}

// Handle exposes the underlying process handle.
func (c *Client) Handle() *Handle { return c.handle }

// Initialize performs the first two handshake steps: the initialize request
// and the notifications/initialized notification. Any failure is reported
// as a handshake_error.
func (c *Client) Initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	}

	if _, err := c.handle.Call(ctx, "initialize", params); err != nil {
		return errf(KindHandshake, "initialize failed: %w", err)
	}

	if err := c.handle.Notify(ctx, "notifications/initialized", nil); err != nil {
		return errf(KindHandshake, "initialized notification failed: %w", err)
	}
	return nil
}

// ListTools fetches the child's tool manifest.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.handle.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, errf(KindHandshake, "tools/list failed: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errf(KindHandshake, "tools/list returned malformed result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a named tool. The child's JSON-RPC error surfaces as a
// protocol_error with the child's code; the content sequence is returned
// verbatim.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}

	raw, err := c.handle.Call(ctx, "tools/call", toolCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errf(KindProtocol, "tools/call returned malformed result: %w", err)
	}
	return &result, nil
}

// Ping issues a protocol ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.handle.Call(ctx, "ping", nil)
	return err
}

// handleNotification reacts to server-initiated frames. Only
// tools/list_changed is material: the manifest is re-fetched and handed to
// OnToolsChanged for an atomic swap on the instance.
func (c *Client) handleNotification(method string, params json.RawMessage) {
	if method != "notifications/tools/list_changed" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultHandshakeTimeout)
		defer cancel()

		tools, err := c.ListTools(ctx)
		if err != nil {
			logger.Warnf("tools/list after list_changed failed: %v", err)
			return
		}
		if fn := c.OnToolsChanged; fn != nil {
			fn(tools)
		}
	}()
}
