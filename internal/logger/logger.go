// Package logger keeps a bounded in-memory history of log entries for the
// admin API, mirrors them to a rotating file, and fans them out to live
// subscribers (the SSE log stream). Secrets are redacted before an entry
// is stored anywhere.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Levels attached to entries; the HTTP layer treats them as opaque.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogEntry is a single log record.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Subscription is a live feed of log entries. Receive from C; Close when
// done. Slow subscribers miss entries rather than stall logging.
type Subscription struct {
	C  <-chan LogEntry
	id int
	ch chan LogEntry
}

const (
	historySize = 1000             // entries kept for GET /admin/logs
	maxFileSize = 5 * 1024 * 1024  // rotate after 5MB
)

// state is the process-wide logger. Entries are held in a fixed circular
// buffer: head is the next write slot, count saturates at historySize.
var state struct {
	mu    sync.Mutex
	ring  [historySize]LogEntry
	head  int
	count int

	file     *os.File
	filePath string
	fileSize int64

	nextSub int
	subs    map[int]chan LogEntry
}

// Secrets must never reach the ring, the file, or a subscriber. API keys
// are sk-mcpo-prefixed, bearer tokens are JWTs, and env values for
// *_KEY / *_SECRET / *_TOKEN / *_PASSWORD variables come from user configs.
var (
	apiKeyRegex = regexp.MustCompile(`sk-mcpo-[a-zA-Z0-9-]+`)
	jwtRegex    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
	secretRegex = regexp.MustCompile(`([A-Z0-9_]*(?:KEY|SECRET|TOKEN|PASSWORD)[A-Z0-9_]*\s*[=:]\s*)\S+`)
)

// Init opens the log file under <appDir>/logs. Logging works without Init;
// entries then stay in memory only.
func Init(appDir string) error {
	logDir := filepath.Join(appDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(logDir, "mcpo-simple-server.log")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	state.mu.Lock()
	if state.file != nil {
		state.file.Close()
	}
	state.file = f
	state.filePath = path
	state.fileSize = size
	state.mu.Unlock()
	return nil
}

// Close detaches and closes the log file.
func Close() {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.file != nil {
		state.file.Close()
		state.file = nil
	}
}

// Infof records an informational entry.
func Infof(format string, args ...any) { emit(LevelInfo, format, args...) }

// Warnf records a warning entry.
func Warnf(format string, args ...any) { emit(LevelWarn, format, args...) }

// Errorf records an error entry.
func Errorf(format string, args ...any) { emit(LevelError, format, args...) }

// Redact strips secrets from a message. Exposed so handlers can sanitize
// values before they are echoed back in error details.
func Redact(message string) string {
	message = apiKeyRegex.ReplaceAllString(message, "sk-mcpo-REDACTED")
	message = jwtRegex.ReplaceAllString(message, "JWT-REDACTED")
	message = secretRegex.ReplaceAllString(message, "${1}REDACTED")
	return message
}

func emit(level, format string, args ...any) {
	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   Redact(fmt.Sprintf(format, args...)),
	}

	fmt.Printf("[%s] [%s] %s\n", entry.Timestamp, entry.Level, entry.Message)

	state.mu.Lock()
	state.ring[state.head] = entry
	state.head = (state.head + 1) % historySize
	if state.count < historySize {
		state.count++
	}
	writeToFileLocked(entry)
	for _, ch := range state.subs {
		select {
		case ch <- entry:
		default:
			// Subscriber is behind; it misses this entry.
		}
	}
	state.mu.Unlock()
}

// writeToFileLocked appends one line, rotating to a single .old file when
// the size cap is hit. Log volume is low enough that synchronous writes
// are fine and keep every entry (no drop path, no flush on exit).
func writeToFileLocked(entry LogEntry) {
	if state.file == nil {
		return
	}

	if state.fileSize > maxFileSize {
		state.file.Close()
		os.Rename(state.filePath, state.filePath+".old")
		f, err := os.OpenFile(state.filePath, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			state.file = nil
			return
		}
		state.file = f
		state.fileSize = 0
	}

	n, err := fmt.Fprintf(state.file, "%s [%s] %s\n", entry.Timestamp, entry.Level, entry.Message)
	if err != nil {
		return
	}
	state.fileSize += int64(n)
}

// GetLogs returns the retained history, oldest first.
func GetLogs() []LogEntry {
	state.mu.Lock()
	defer state.mu.Unlock()

	out := make([]LogEntry, 0, state.count)
	start := (state.head - state.count + historySize) % historySize
	for i := 0; i < state.count; i++ {
		out = append(out, state.ring[(start+i)%historySize])
	}
	return out
}

// Subscribe registers a live feed.
func Subscribe() *Subscription {
	ch := make(chan LogEntry, 100)

	state.mu.Lock()
	if state.subs == nil {
		state.subs = make(map[int]chan LogEntry)
	}
	id := state.nextSub
	state.nextSub++
	state.subs[id] = ch
	state.mu.Unlock()

	return &Subscription{C: ch, id: id, ch: ch}
}

// Close detaches the subscription; its channel is left open for any
// in-flight receive and garbage-collected with the subscription.
func (s *Subscription) Close() {
	state.mu.Lock()
	delete(state.subs, s.id)
	state.mu.Unlock()
}
