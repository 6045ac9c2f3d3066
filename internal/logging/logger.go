// Package logging provides leveled logging and run tracing for celldyn.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RunTrace for structured JSONL run events (~/.celldyn/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug.
// At this level the engine logs one line per simulation step.
const LevelTrace = slog.LevelDebug - 4

// Run trace event names.
const (
	EventRunStart    = "run.start"
	EventRunExtinct  = "run.extinct"
	EventRunComplete = "run.complete"
	EventRunFailed   = "run.failed"
)

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(level)))
}

// NewJSONLogger creates a leveled slog.Logger emitting one JSON object per
// record. The HTTP server uses it so logs can be shipped as-is.
func NewJSONLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

// New picks the handler by format: "json" or anything else for text.
func New(level, format string, w io.Writer) *slog.Logger {
	if strings.EqualFold(format, "json") {
		return NewJSONLogger(level, w)
	}
	return NewLogger(level, w)
}

func handlerOptions(level string) *slog.HandlerOptions {
	lvl := ParseLevel(level)
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
}

// RunTrace appends one JSON line per run lifecycle event. It is safe for
// concurrent use. A nil RunTrace is valid; all methods are no-ops on it.
type RunTrace struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewRunTrace opens dir/runs.jsonl for append. At "info" level (the
// default) it returns nil and creates nothing. It also returns nil when the
// file cannot be opened.
func NewRunTrace(dir, level string) *RunTrace {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "runs.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &RunTrace{w: f, c: f, now: time.Now}
}

// NewRunTraceWriter traces to w. Closing the trace does not close w.
func NewRunTraceWriter(w io.Writer) *RunTrace {
	return &RunTrace{w: w, now: time.Now}
}

// Event writes event for run with the given fields. "event", "run_id" and
// "time" are set by the trace and win over same-named fields.
func (rt *RunTrace) Event(event, runID string, fields map[string]any) {
	if rt == nil {
		return
	}

	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	entry["run_id"] = runID

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.w == nil {
		return
	}

	entry["time"] = rt.now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = rt.w.Write(data)
}

// Close closes the underlying file, if the trace owns one.
func (rt *RunTrace) Close() {
	if rt == nil {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.c != nil {
		rt.c.Close()
	}
	rt.w = nil
	rt.c = nil
}
