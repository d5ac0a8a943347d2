// Package logging provides leveled logging and tick tracing for the simulator.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TickTracer for structured JSONL lane snapshots, one line per tick
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LevelTrace is a custom slog level below Debug for per-tick output.
const LevelTrace = slog.LevelDebug - 4

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

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// TickRecord is one traced tick.
type TickRecord struct {
	Tick      int   `json:"tick"`
	Crossings int   `json:"crossings"`
	Left      []int `json:"left"`
	Right     []int `json:"right"`
}

// TickTracer writes TickRecords as JSON lines. It is safe for concurrent use.
// A nil TickTracer is safe to use; all methods are no-ops on nil receiver.
type TickTracer struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

// NewTickTracer returns a tracer writing to w, or nil when level is below trace.
func NewTickTracer(level string, w io.Writer) *TickTracer {
	if ParseLevel(level) > LevelTrace || w == nil {
		return nil
	}
	return &TickTracer{w: w}
}

// Trace writes one record. The first write error is kept and later records
// are dropped.
func (tt *TickTracer) Trace(rec TickRecord) {
	if tt == nil {
		return
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.err != nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		tt.err = err
		return
	}
	data = append(data, '\n')
	_, tt.err = tt.w.Write(data)
}

// Err returns the first write error, if any. Safe to call on nil receiver.
func (tt *TickTracer) Err() error {
	if tt == nil {
		return nil
	}
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.err
}
