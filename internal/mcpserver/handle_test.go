package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnUnknownCommand(t *testing.T) {
	_, err := Spawn("/nonexistent/mcp-server", nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, KindSpawn, KindOf(err))
}

func TestCallRoundTrip(t *testing.T) {
	h := spawnFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.Call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "test", Version: "0"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(result), "fake-mcp")
	assert.Greater(t, h.PID(), 0)
}

func TestConcurrentCallsCorrelateByID(t *testing.T) {
	h := spawnFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(value int) {
			defer wg.Done()

			raw, err := h.Call(ctx, "tools/call", toolCallParams{
				Name:      "echo",
				Arguments: map[string]any{"value": value},
			})
			if !assert.NoError(t, err) {
				return
			}

			var result ToolResult
			if !assert.NoError(t, json.Unmarshal(raw, &result)) || !assert.Len(t, result.Content, 1) {
				return
			}
			// The fake echoes the caller's value; a mismatch means a
			// response was delivered to the wrong waiter.
			assert.Contains(t, string(result.Content[0]), fmt.Sprintf(`{\"value\":%d}`, value))
		}(i)
	}
	wg.Wait()
}

func TestCallTimeoutDoesNotPoisonHandle(t *testing.T) {
	h := spawnFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	_, err := h.Call(ctx, "tools/call", toolCallParams{Name: "sleepy", Arguments: map[string]any{}})
	cancel()
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))

	// The pending slot is freed and the handle keeps working. The fake
	// serves requests sequentially, so wait out the sleepy stall.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel2()
	_, err = h.Call(ctx2, "tools/call", toolCallParams{Name: "echo", Arguments: map[string]any{"value": 1}})
	assert.NoError(t, err)
}

func TestChildExitFailsInFlightCalls(t *testing.T) {
	h := spawnFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.Call(ctx, "tools/call", toolCallParams{Name: "die", Arguments: map[string]any{}})
	require.Error(t, err)
	assert.Equal(t, KindChildGone, KindOf(err))

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handle never observed child exit")
	}
	assert.Equal(t, 3, h.ExitCode())

	// Calls after death fail fast.
	_, err = h.Call(ctx, "tools/call", toolCallParams{Name: "echo", Arguments: map[string]any{}})
	assert.Equal(t, KindChildGone, KindOf(err))
}

func TestNotifyWritesWithoutCorrelation(t *testing.T) {
	h := spawnFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.Notify(ctx, "notifications/initialized", nil))

	// The fake skips id-less lines; a follow-up call proves the stream
	// stayed in sync.
	_, err := h.Call(ctx, "tools/list", nil)
	assert.NoError(t, err)
}

func TestShutdownGraceful(t *testing.T) {
	command, args := writeFakeServer(t)
	h, err := Spawn(command, args, nil, "")
	require.NoError(t, err)

	// Closing stdin ends the read loop; the child exits cleanly.
	code := h.Shutdown(5 * time.Second)
	assert.Equal(t, 0, code)

	ctx := context.Background()
	_, err = h.Call(ctx, "tools/list", nil)
	assert.Equal(t, KindChildGone, KindOf(err))
}

func TestShutdownEscalatesToKill(t *testing.T) {
	// A child that ignores stdin EOF and SIGTERM must be killed. The loop
	// keeps pipe-holding grandchildren short-lived so EOF follows the kill.
	h, err := Spawn("/bin/sh", []string{"-c", "trap '' TERM; while :; do sleep 1; done"}, nil, "")
	require.NoError(t, err)

	start := time.Now()
	h.Shutdown(200 * time.Millisecond)
	assert.Less(t, time.Since(start), 10*time.Second)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("child was not reaped after kill")
	}
}

func TestMaxInflightQueuesCalls(t *testing.T) {
	h := spawnFake(t, WithMaxInflight(1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(value int) {
			defer wg.Done()
			_, err := h.Call(ctx, "tools/call", toolCallParams{
				Name:      "echo",
				Arguments: map[string]any{"value": value},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestStderrRingBufferBounds(t *testing.T) {
	rb := newRingBuffer(64)
	for i := 0; i < 100; i++ {
		rb.WriteLine(fmt.Sprintf("line-%02d", i))
	}
	tail := rb.String()
	assert.LessOrEqual(t, len(tail), 64)
	assert.True(t, strings.Contains(tail, "line-99"))
	assert.False(t, strings.Contains(tail, "line-00"))
}

func TestStderrCaptured(t *testing.T) {
	h, err := Spawn("/bin/sh", []string{"-c", "echo oops >&2; sleep 60"}, nil, "")
	require.NoError(t, err)
	defer h.Shutdown(time.Second)

	assert.Eventually(t, func() bool {
		return strings.Contains(h.StderrTail(), "oops")
	}, 3*time.Second, 50*time.Millisecond)
}

func TestUnparseableStdoutLinesAreDiscarded(t *testing.T) {
	// The child prints garbage before answering; the handle must log and
	// keep going rather than dying.
	script := `read line
echo "this is not json"
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{}}"
sleep 60`
	h, err := Spawn("/bin/sh", []string{"-c", script}, nil, "")
	require.NoError(t, err)
	defer h.Shutdown(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = h.Call(ctx, "ping", nil)
	require.NoError(t, err)
	assert.Contains(t, h.StderrTail(), "unparseable")
}
