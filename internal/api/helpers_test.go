package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/getsimpletool/mcpo-simple-server/internal/auth"
	"github.com/getsimpletool/mcpo-simple-server/internal/mcpserver"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

// fakeServerScript mirrors the package-level fixture used by the core
// tests: a POSIX shell MCP server good enough for handshake, discovery,
// and an echo tool.
const fakeServerScript = `
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  [ -z "$id" ] && continue
  case "$line" in
  *'"initialize"'*)
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"protocolVersion\":\"2024-11-05\",\"capabilities\":{},\"serverInfo\":{\"name\":\"fake-mcp\",\"version\":\"0.1.0\"}}}" ;;
  *'"tools/list"'*)
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"tools\":[{\"name\":\"echo\",\"description\":\"Echoes the value argument\",\"inputSchema\":{\"type\":\"object\"}}]}}" ;;
  *'"tools/call"'*)
    val=$(printf '%s' "$line" | sed -n 's/.*"value":\([0-9]*\).*/\1/p')
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"{\\\"value\\\":${val:-0}}\"}]}}" ;;
  esac
done
`

type testEnv struct {
	srv   *Server
	store *userstore.MemoryStore
	ctrl  *mcpserver.Controller

	command string
	args    []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-mcp-server.sh")
	require.NoError(t, os.WriteFile(path, []byte(fakeServerScript), 0755))

	store := userstore.NewMemoryStore()
	seedUser(t, store, "admin", "MCPOadmin", userstore.GroupAdmins)
	seedUser(t, store, "donald", "donaldduck", userstore.GroupUsers)

	authService, err := auth.NewService(store, "test-jwt-secret", "test-enc-key", time.Hour)
	require.NoError(t, err)

	ctrl := mcpserver.NewController(store, mcpserver.Options{
		HandshakeTimeout: 10 * time.Second,
		CallTimeout:      10 * time.Second,
		ShutdownGrace:    2 * time.Second,
	})
	t.Cleanup(ctrl.StopAll)

	return &testEnv{
		srv:     NewServer(ctrl, store, authService),
		store:   store,
		ctrl:    ctrl,
		command: "/bin/sh",
		args:    []string{path},
	}
}

func seedUser(t *testing.T, store *userstore.MemoryStore, username, password, group string) {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &userstore.UserConfig{
		Username:       username,
		HashedPassword: hashed,
		Group:          group,
		Env:            map[string]string{},
		McpServers:     map[string]userstore.ServerSpec{},
	}))
}

// request performs one API call; a non-empty token rides as a bearer.
func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	w := e.request(t, "POST", "/api/v1/user/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, 200, w.Code, w.Body.String())

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

// addServer registers the fake server under the given name and requires
// it to come up running.
func (e *testEnv) addServer(t *testing.T, token, name string) ServerInfo {
	t.Helper()

	w := e.request(t, "POST", "/api/v1/mcpservers", token, map[string]any{
		"mcpServers": map[string]any{
			name: map[string]any{"command": e.command, "args": e.args},
		},
	})
	require.Equal(t, 201, w.Code, w.Body.String())

	var info ServerInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, "running", info.Status)
	return info
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
