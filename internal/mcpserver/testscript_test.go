package mcpserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeServerScript is a POSIX shell MCP server used by the package tests.
// It answers the handshake, lists two tools, and implements a handful of
// behaviors keyed by tool name: echo returns the caller's value, sleepy
// stalls, missing returns a JSON-RPC error, die exits mid-call, and
// announce emits a tools/list_changed notification before answering.
const fakeServerScript = `
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  [ -z "$id" ] && continue
  case "$line" in
  *'"initialize"'*)
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"protocolVersion\":\"2024-11-05\",\"capabilities\":{},\"serverInfo\":{\"name\":\"fake-mcp\",\"version\":\"0.1.0\"}}}" ;;
  *'"tools/list"'*)
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"tools\":[{\"name\":\"echo\",\"description\":\"Echoes the value argument\",\"inputSchema\":{\"type\":\"object\"}},{\"name\":\"clock\",\"description\":\"Tells the time\",\"inputSchema\":{\"type\":\"object\"}}]}}" ;;
  *'"sleepy"'*)
    sleep 30
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"content\":[]}}" ;;
  *'"die"'*)
    exit 3 ;;
  *'"missing"'*)
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"error\":{\"code\":-32602,\"message\":\"unknown tool\"}}" ;;
  *'"announce"'*)
    echo "{\"jsonrpc\":\"2.0\",\"method\":\"notifications/tools/list_changed\"}"
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"content\":[]}}" ;;
  *'"tools/call"'*)
    val=$(printf '%s' "$line" | sed -n 's/.*"value":\([0-9]*\).*/\1/p')
    echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"{\\\"value\\\":${val:-0}}\"}]}}" ;;
  esac
done
`

// writeFakeServer writes the script to a temp file and returns a command
// line that runs it.
func writeFakeServer(t *testing.T) (command string, args []string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-mcp-server.sh")
	if err := os.WriteFile(path, []byte(fakeServerScript), 0755); err != nil {
		t.Fatalf("failed to write fake server script: %v", err)
	}
	return "/bin/sh", []string{path}
}

func spawnFake(t *testing.T, opts ...HandleOption) *Handle {
	t.Helper()
	command, args := writeFakeServer(t)
	h, err := Spawn(command, args, []string{"PATH=" + os.Getenv("PATH")}, "", opts...)
	if err != nil {
		t.Fatalf("failed to spawn fake server: %v", err)
	}
	t.Cleanup(func() { h.Shutdown(2 * time.Second) })
	return h
}
