// Package trace registers "sqlite-trace", a database/sql driver wrapping
// modernc.org/sqlite that logs every statement with the request-scoped
// values carried by its context (trace, page and session ids).
//
//	trace.SetLogger(logger)
//	db, _ := dbopen.Open("ezpage.db", dbopen.WithDriver(trace.DriverName))
//
// Statements log at Debug, slow ones at Warn, failures at Error.
package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql driver name registered by this package.
const DriverName = "sqlite-trace"

var (
	mu     sync.RWMutex
	logger *slog.Logger
	slow   = 100 * time.Millisecond
)

// SetLogger sets the logger statements are written to. Nil restores
// slog.Default().
func SetLogger(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetSlowThreshold sets the duration above which statements log at Warn.
func SetSlowThreshold(d time.Duration) {
	mu.Lock()
	slow = d
	mu.Unlock()
}

func settings() (*slog.Logger, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default(), slow
	}
	return logger, slow
}

func init() {
	sql.Register(DriverName, &tracingDriver{Driver: &sqlite.Driver{}})
}
