// Package watch polls a SQLite database for a change token and runs a
// callback, debounced, whenever the token moves. ezpage uses it to notice
// pages written by another process sharing the database file.
//
//	w := watch.New(db, watch.Options{Interval: time.Second, Detector: watch.Column("SUM", "pages", "revision")})
//	go w.Run(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Detector reads a change token. Two different values mean something
// changed in between.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling period. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the callback
	// fires; further changes restart it. 0 fires on the next poll.
	Debounce time.Duration
	// Detector is required.
	Detector Detector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs a callback when the detector's token changes.
type Watcher struct {
	db   *sql.DB
	opts Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	runs    atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Runs    int64 `json:"runs"`
}

// New creates a Watcher. Run starts it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Version returns the last token the callback handled.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Runs:    w.runs.Load(),
	}
}

// Run polls until ctx is done. The token read at start is the baseline.
// When fn fails the token is not recorded, so the next poll retries.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context) error) {
	log := w.opts.Logger
	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: initial check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending int64
		armed   bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || (armed && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, armed = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(ctx, fn, pending)
				armed = false
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.opts.Debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if armed {
				w.fire(ctx, fn, pending)
				armed = false
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, fn func(context.Context) error, v int64) {
	if err := fn(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: callback failed", "version", v, "error", err)
		return
	}
	w.runs.Add(1)
	w.version.Store(v)
	w.opts.Logger.Debug("watch: change handled", "version", v)
}

// Column returns a Detector computing agg (MAX, SUM or COUNT) over
// table.column.
func Column(agg, table, column string) Detector {
	agg = strings.ToUpper(agg)
	switch agg {
	case "MAX", "SUM", "COUNT":
	default:
		return func(context.Context, *sql.DB) (int64, error) {
			return 0, fmt.Errorf("watch: unsupported aggregate %q", agg)
		}
	}
	query := "SELECT COALESCE(" + agg + "(" + quoteIdent(column) + "), 0) FROM " + quoteIdent(table)
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, query).Scan(&v)
		return v, err
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
