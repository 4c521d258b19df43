package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSaverClosed is returned by Flush after Close.
var ErrSaverClosed = errors.New("editor: saver closed")

// SaveFunc writes one document snapshot.
type SaveFunc func(ctx context.Context, snapshot []byte) error

// Saver debounces document snapshots: only the latest one is written, after
// Debounce of quiet or at most MaxDelay after the first unsaved change.
// Scheduling never blocks on a write in progress; a snapshot arriving
// during a write is written after it.
type Saver struct {
	cfg    SaveConfig
	save   SaveFunc
	logger *slog.Logger

	mu     sync.Mutex
	latest []byte // newest unsaved snapshot, nil when clean
	notify chan struct{}

	flushReq chan chan error
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	closeErr error // final write result, set before stopped closes

	writes   atomic.Int64
	failures atomic.Int64
}

// NewSaver starts a saver goroutine. Close stops it.
func NewSaver(cfg SaveConfig, save SaveFunc, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	s := &Saver{
		cfg:      cfg,
		save:     save,
		logger:   logger,
		notify:   make(chan struct{}, 1),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule queues snapshot for writing, replacing any unsaved one.
func (s *Saver) Schedule(snapshot []byte) {
	s.mu.Lock()
	s.latest = snapshot
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending reports whether a snapshot is waiting to be written.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest != nil
}

// Flush writes the pending snapshot now and waits for the result.
func (s *Saver) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.flushReq <- reply:
	case <-s.stopped:
		return ErrSaverClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes the pending snapshot, stops the saver and returns the
// result of that last write.
func (s *Saver) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	return s.closeErr
}

// Writes returns the number of successful and failed writes.
func (s *Saver) Writes() (ok, failed int64) {
	return s.writes.Load(), s.failures.Load()
}

func (s *Saver) run() {
	defer close(s.stopped)

	var (
		window   *time.Timer
		windowC  <-chan time.Time
		deadline *time.Timer
		deadC    <-chan time.Time
	)
	stopTimers := func() {
		if window != nil {
			window.Stop()
			window, windowC = nil, nil
		}
		if deadline != nil {
			deadline.Stop()
			deadline, deadC = nil, nil
		}
	}

	// A failed write re-arms the window with a backoff so the snapshot is
	// retried without waiting for another edit or a Flush.
	failures := 0
	retry := func(err error) {
		if err == nil {
			failures = 0
			return
		}
		failures++
		window = time.NewTimer(s.retryDelay(failures))
		windowC = window.C
	}

	for {
		select {
		case <-s.notify:
			if window != nil {
				window.Stop()
			}
			window = time.NewTimer(s.cfg.Debounce)
			windowC = window.C
			if deadline == nil {
				deadline = time.NewTimer(s.cfg.MaxDelay)
				deadC = deadline.C
			}

		case <-windowC:
			stopTimers()
			retry(s.write())

		case <-deadC:
			stopTimers()
			retry(s.write())

		case reply := <-s.flushReq:
			stopTimers()
			err := s.write()
			retry(err)
			reply <- err

		case <-s.done:
			stopTimers()
			s.closeErr = s.write()
			return
		}
	}
}

// retryDelay doubles Debounce per consecutive failure, capped at MaxDelay.
func (s *Saver) retryDelay(failures int) time.Duration {
	d := s.cfg.Debounce
	for i := 1; i < failures && d < s.cfg.MaxDelay; i++ {
		d *= 2
	}
	return min(d, s.cfg.MaxDelay)
}

// write saves the latest snapshot. On failure the snapshot stays pending
// unless a newer one replaced it meanwhile.
func (s *Saver) write() error {
	s.mu.Lock()
	snap := s.latest
	s.latest = nil
	s.mu.Unlock()
	if snap == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	err := s.save(ctx, snap)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("editor: save failed", "bytes", len(snap), "error", err)
		s.mu.Lock()
		if s.latest == nil {
			s.latest = snap
		}
		s.mu.Unlock()
		return err
	}
	s.writes.Add(1)
	return nil
}
