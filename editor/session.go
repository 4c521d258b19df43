package editor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/ezpage/action"
	"github.com/hazyhaar/ezpage/document"
	"github.com/hazyhaar/ezpage/editor/internal/store"
	"github.com/hazyhaar/ezpage/kit"
)

// ErrSessionClosed is returned by edits on a closed session.
var ErrSessionClosed = errors.New("editor: session closed")

// Session is the single editing handle of one page. Every document access
// made through it, reads included, holds one mutex, so concurrent callers
// never observe a half-applied edit.
type Session struct {
	id     string
	pageID string
	logger *slog.Logger
	cfg    *Config

	mu        sync.Mutex
	doc       *document.Document
	exec      *action.Executor
	saver     *Saver
	journal   *journal
	lastSnap  []byte
	seq       int // journal sequence, running across streams
	applied   int
	rejected  int
	recovered bool
	closed    bool
}

// ApplyReport is the outcome of applying a batch or a stream.
type ApplyReport struct {
	PageID   string   `json:"page_id"`
	Applied  int      `json:"applied"`
	Inserted []string `json:"inserted,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
	Rejected []string `json:"rejected,omitempty"` // dropped envelopes
	Error    string   `json:"error,omitempty"`
	Aborted  bool     `json:"aborted,omitempty"`
	Nodes    int      `json:"nodes"`
	Text     string   `json:"text,omitempty"` // prose around the envelopes
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// PageID returns the edited page.
func (s *Session) PageID() string { return s.pageID }

// Recovered reports whether the stored document could not be used and the
// session started from a fresh default document.
func (s *Session) Recovered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovered
}

// View runs fn with the live document under the session lock. fn must not
// retain the document or mutate it.
func (s *Session) View(fn func(*document.Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.doc)
}

// Document returns a deep copy of the current document.
func (s *Session) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Snapshot returns the serialized current document.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return document.Marshal(s.doc)
}

// Apply applies actions in order, stopping at the first failure. It
// returns how many were applied; the error is an *action.ExecError.
func (s *Session) Apply(ctx context.Context, actions []action.Action) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	n, err := s.exec.ApplyBatch(actions)
	s.commitLocked(s.scope(ctx))
	return n, err
}

// ApplyText extracts every envelope from text and applies them as one
// batch. Malformed envelopes are reported and skipped.
func (s *Session) ApplyText(ctx context.Context, text string) (*ApplyReport, error) {
	st := s.NewStream(ctx)
	_, err := st.Feed(text)
	return st.Report(), err
}

// Edit runs fn against the live document under the session lock and
// persists the result. Use it for direct edits that are not actions.
func (s *Session) Edit(ctx context.Context, fn func(*document.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	err := fn(s.doc)
	s.commitLocked(s.scope(ctx))
	return err
}

// scope tags ctx with the page and session for logging.
func (s *Session) scope(ctx context.Context) context.Context {
	return kit.WithSessionID(kit.WithPageID(ctx, s.pageID), s.id)
}

// applyLocked applies actions one by one, checking abort before each.
func (s *Session) applyLocked(actions []action.Action, abort *atomic.Bool) (int, []string, []string, error) {
	var inserted, skipped []string
	for i, a := range actions {
		if abort.Load() {
			return i, inserted, skipped, ErrStreamAborted
		}
		if err := s.exec.Apply(a); err != nil {
			return i, inserted, skipped, &action.ExecError{Index: i, Action: a, Err: err}
		}
		res := s.exec.LastResult()
		inserted = append(inserted, res.Inserted...)
		skipped = append(skipped, res.Skipped...)
	}
	return len(actions), inserted, skipped, nil
}

// commitLocked schedules a save when the document changed.
func (s *Session) commitLocked(ctx context.Context) {
	snap, err := document.Marshal(s.doc)
	if err != nil {
		s.logger.Error("editor: snapshot failed", append(kit.LogAttrs(ctx), "error", err)...)
		return
	}
	if bytes.Equal(snap, s.lastSnap) {
		return
	}
	s.lastSnap = snap
	s.saver.Schedule(snap)
}

// observe journals every executed action. Runs under the session lock.
func (s *Session) observe(a action.Action, err error) {
	rec := &store.ActionRecord{
		PageID:    s.pageID,
		SessionID: s.id,
		Seq:       s.seq,
		Kind:      string(a.Kind),
		NodeID:    a.NodeID,
		OK:        err == nil,
	}
	s.seq++
	if err != nil {
		rec.Error = err.Error()
		s.rejected++
	} else {
		s.applied++
	}
	s.journal.record(rec)
}

// rejectLocked journals an envelope the parser dropped.
func (s *Session) rejectLocked(m *action.MalformedActionError) {
	s.journal.record(&store.ActionRecord{
		PageID:    s.pageID,
		SessionID: s.id,
		Seq:       s.seq,
		Kind:      "malformed",
		Error:     m.Err.Error(),
	})
	s.seq++
	s.rejected++
}

// Flush writes the current document now.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Close refuses further edits, writes the pending snapshot and stops the
// saver.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.saver.Close()
}

// wrote reports whether data is the last snapshot the session produced.
func (s *Session) wrote(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Equal(data, s.lastSnap)
}

func (s *Session) counts() (applied, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied, s.rejected
}
