package mcpserver

import (
	"sync"
	"time"

	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

// Status is the lifecycle state of a ServerInstance. The set is closed;
// the string form exists only for the HTTP boundary.
type Status int

const (
	StatusPending Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Key identifies a ServerInstance. Server names are unique within one user
// and may repeat across users.
type Key struct {
	Username string
	Name     string
}

func (k Key) String() string { return k.Username + "/" + k.Name }

// ServerInstance is the registry's in-memory record for one live or
// terminal child.
//
// Two locks with distinct jobs: opMu linearizes lifecycle transitions
// (start/stop/restart/delete hold it for the whole operation, including
// process I/O), while mu guards field access and is never held across I/O.
// Tool calls take neither for their duration; they snapshot the client
// under mu and run concurrently.
type ServerInstance struct {
	Key  Key
	opMu sync.Mutex // serializes lifecycle transitions for this key

	mu        sync.Mutex // guards the fields below, never held across I/O
	spec      userstore.ServerSpec
	status    Status
	pid       int
	startTime time.Time
	tools     []Tool
	lastErr   string
	handle    *Handle
	client    *Client
}

func newInstance(key Key, spec userstore.ServerSpec) *ServerInstance {
	return &ServerInstance{
		Key:    key,
		spec:   spec,
		status: StatusPending,
	}
}

// Spec returns the instance's current server spec.
func (i *ServerInstance) Spec() userstore.ServerSpec {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.spec
}

func (i *ServerInstance) setSpec(spec userstore.ServerSpec) {
	i.mu.Lock()
	i.spec = spec
	i.mu.Unlock()
}

// Status returns the current lifecycle state.
func (i *ServerInstance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// runningClient returns the MCP client when the instance is running.
func (i *ServerInstance) runningClient() (*Client, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusRunning || i.client == nil {
		return nil, false
	}
	return i.client, true
}

// setRunning installs a live handle/client pair and enters running.
func (i *ServerInstance) setRunning(h *Handle, c *Client, tools []Tool) {
	i.mu.Lock()
	i.status = StatusRunning
	i.handle = h
	i.client = c
	i.pid = h.PID()
	i.startTime = time.Now()
	i.tools = tools
	i.lastErr = ""
	i.mu.Unlock()
}

// setStatus records a transition that does not change child resources.
func (i *ServerInstance) setStatus(s Status) {
	i.mu.Lock()
	i.status = s
	i.mu.Unlock()
}

// setStopped clears child resources after a reap.
func (i *ServerInstance) setStopped() {
	i.mu.Lock()
	i.status = StatusStopped
	i.handle = nil
	i.client = nil
	i.pid = 0
	i.tools = nil
	i.mu.Unlock()
}

// setFailed records a failure and clears child resources.
func (i *ServerInstance) setFailed(reason string) {
	i.mu.Lock()
	i.status = StatusFailed
	i.handle = nil
	i.client = nil
	i.pid = 0
	i.tools = nil
	i.lastErr = reason
	i.mu.Unlock()
}

// failIfCurrent transitions to failed only when h is still the live handle;
// it returns false when a newer start already replaced it.
func (i *ServerInstance) failIfCurrent(h *Handle, reason string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handle != h || i.status != StatusRunning {
		return false
	}
	i.status = StatusFailed
	i.handle = nil
	i.client = nil
	i.pid = 0
	i.tools = nil
	i.lastErr = reason
	return true
}

// setTools atomically replaces the cached manifest (rediscovery).
func (i *ServerInstance) setTools(tools []Tool) {
	i.mu.Lock()
	i.tools = tools
	i.mu.Unlock()
}

// InstanceInfo is an immutable snapshot for status reads.
type InstanceInfo struct {
	Key       Key
	Status    Status
	PID       int
	StartTime time.Time
	Tools     []Tool
	LastError string
	Disabled  bool
}

// Uptime reports seconds since the child entered running, zero otherwise.
func (info InstanceInfo) Uptime() int {
	if info.Status != StatusRunning || info.StartTime.IsZero() {
		return 0
	}
	return int(time.Since(info.StartTime).Seconds())
}

// Snapshot captures the instance state without holding any lock afterward.
func (i *ServerInstance) Snapshot() InstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()

	tools := make([]Tool, len(i.tools))
	copy(tools, i.tools)

	return InstanceInfo{
		Key:       i.Key,
		Status:    i.status,
		PID:       i.pid,
		StartTime: i.startTime,
		Tools:     tools,
		LastError: i.lastErr,
		Disabled:  i.spec.Disabled,
	}
}
