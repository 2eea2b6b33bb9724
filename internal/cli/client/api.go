// Package client is a thin HTTP client for the mcposerver API, used by
// the operator CLI.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsimpletool/mcpo-simple-server/internal/api"
	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
)

// Client talks to one mcposerver instance.
type Client struct {
	baseURL string
	token   string
	apiKey  string
	http    *http.Client
}

// New builds a client. Either a bearer token or an API key may be set;
// the API key wins when both are present.
func New(baseURL, token, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Login exchanges credentials for a bearer token and installs it on the
// client.
func (c *Client) Login(username, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do("POST", "/api/v1/user/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	c.token = out.AccessToken
	return out.AccessToken, nil
}

// ListServers returns the caller's server instances.
func (c *Client) ListServers() ([]api.ServerInfo, error) {
	var out []api.ServerInfo
	err := c.do("GET", "/api/v1/mcpservers", nil, &out)
	return out, err
}

// ServerStatus returns one server's status document.
func (c *Client) ServerStatus(name string) (map[string]any, error) {
	var out map[string]any
	err := c.do("GET", "/api/v1/mcpservers/"+name+"/status", nil, &out)
	return out, err
}

// StartServer starts a configured server.
func (c *Client) StartServer(name string) (api.ServerInfo, error) {
	var out api.ServerInfo
	err := c.do("POST", "/api/v1/mcpservers/"+name+"/start", nil, &out)
	return out, err
}

// StopServer stops a running server.
func (c *Client) StopServer(name string) (api.ServerInfo, error) {
	var out api.ServerInfo
	err := c.do("POST", "/api/v1/mcpservers/"+name+"/stop", nil, &out)
	return out, err
}

// RestartServer restarts a server.
func (c *Client) RestartServer(name string) (api.ServerInfo, error) {
	var out api.ServerInfo
	err := c.do("POST", "/api/v1/mcpservers/"+name+"/restart", nil, &out)
	return out, err
}

// DeleteServer stops and removes a server and its configuration.
func (c *Client) DeleteServer(name string) error {
	return c.do("DELETE", "/api/v1/mcpservers/"+name, nil, nil)
}

// AddServer registers a server from a config.json style document.
func (c *Client) AddServer(doc map[string]any) (api.ServerInfo, error) {
	var out api.ServerInfo
	err := c.do("POST", "/api/v1/mcpservers", doc, &out)
	return out, err
}

// CallTool invokes a tool and returns the shaped content sequence.
func (c *Client) CallTool(server, tool string, args map[string]any) ([]any, error) {
	var out []any
	err := c.do("POST", "/api/v1/user/tool/"+server+"/"+tool, args, &out)
	return out, err
}

// GetLogs fetches the server's in-memory log ring (admin only).
func (c *Client) GetLogs() ([]logger.LogEntry, error) {
	var out struct {
		Logs []logger.LogEntry `json:"logs"`
	}
	err := c.do("GET", "/api/v1/admin/logs", nil, &out)
	return out.Logs, err
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
			return fmt.Errorf("%s: %s", resp.Status, detail.Detail)
		}
		return fmt.Errorf("%s: %s", resp.Status, string(data))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
