package framegraph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/internal/pool"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// live backends that receive logger updates.
var (
	backendsMu sync.Mutex
	backends   = map[backend.Backend]int{}
)

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for framegraph and all its sub-packages.
// By default, framegraph produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by framegraph:
//   - [slog.LevelDebug]: per-frame diagnostics (memory report, allocations, barriers)
//   - [slog.LevelInfo]: lifecycle events (backend init, mid-frame stalls)
//   - [slog.LevelWarn]: degraded paths (usage reallocation, pool over budget)
//   - [slog.LevelError]: declaration errors and pass initialization failures
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	pool.SetLogger(l)

	backendsMu.Lock()
	defer backendsMu.Unlock()
	for be := range backends {
		propagateLogger(be, l)
	}
}

// Logger returns the current logger used by framegraph.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements the
// loggerSetter interface.
func propagateLogger(be backend.Backend, l *slog.Logger) {
	if ls, ok := be.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

// trackBackend registers be for logger updates until untrackBackend.
func trackBackend(be backend.Backend) {
	backendsMu.Lock()
	backends[be]++
	backendsMu.Unlock()
	propagateLogger(be, Logger())
}

func untrackBackend(be backend.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if backends[be] <= 1 {
		delete(backends, be)
		return
	}
	backends[be]--
}
