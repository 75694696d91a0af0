// Package mcplog appends one JSONL entry per MCP tool call.
package mcplog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Entry is the schema of one JSONL line.
type Entry struct {
	Ts            string         `json:"ts"`
	Tool          string         `json:"tool"`
	Params        map[string]any `json:"params"`
	DurationMs    int64          `json:"duration_ms"`
	ResponseBytes int            `json:"response_bytes"`
	TokensEst     int            `json:"tokens_est"`
	// ToolError is set when the tool reported a failure in its result,
	// as opposed to a protocol-level Error.
	ToolError bool    `json:"tool_error,omitempty"`
	Error     *string `json:"error"`
}

// NewEntry describes a finished call that started at start.
func NewEntry(tool string, args map[string]any, start time.Time, result *mcp.CallToolResult, err error) Entry {
	rb := ResponseBytes(result)
	entry := Entry{
		Ts:            start.UTC().Format(time.RFC3339),
		Tool:          tool,
		Params:        SanitizeParams(args),
		DurationMs:    Now().Sub(start).Milliseconds(),
		ResponseBytes: rb,
		TokensEst:     rb / 4,
		ToolError:     result != nil && result.IsError,
	}
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
	}
	return entry
}

// Logger appends entries to a file. It is safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewLogger opens (or creates) the file at path for appending, creating
// parent directories. An empty path returns nil, nil; callers treat a nil
// Logger as disabled.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mcplog: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mcplog: open log file: %w", err)
	}
	return &Logger{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string { return l.path }

// Write appends a single entry. Callers usually ignore the error so a
// logging failure never changes a tool result.
func (l *Logger) Write(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

const (
	shortStringMax = 64
	shortSliceMax  = 8
)

// SanitizeParams returns a copy of args safe for logging. Strings longer
// than 64 bytes become a "{key}_len" entry and slices longer than 8
// elements a "{key}_count" entry, so long paths and pattern lists stay
// out of the log.
func SanitizeParams(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch v := v.(type) {
		case string:
			if len(v) > shortStringMax {
				out[k+"_len"] = len(v)
				continue
			}
		case []any:
			if len(v) > shortSliceMax {
				out[k+"_count"] = len(v)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ResponseBytes returns the serialized length of a result's content, or 0
// for a nil result or a marshal error.
func ResponseBytes(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	b, err := json.Marshal(result.Content)
	if err != nil {
		return 0
	}
	return len(b)
}

// Now is a replaceable clock for testing.
var Now = time.Now
