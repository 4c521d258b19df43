package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/ezpage/action"
)

// ErrStreamAborted is returned by Feed once the stream was aborted.
var ErrStreamAborted = errors.New("editor: stream aborted")

var errReadStream = errors.New("editor: read stream")

// Stream applies actions as their envelopes complete in a growing text.
// Each Feed extracts and executes under the session lock before returning,
// so actions apply in stream order. The first failing action stops the
// stream; nothing already applied is reverted.
type Stream struct {
	s       *Session
	ctx     context.Context
	parser  *action.Parser
	aborted atomic.Bool

	mu           sync.Mutex
	report       ApplyReport
	err          error
	rejectedSeen int
}

// NewStream starts a stream on the session. ctx carries request-scoped
// log values; cancelling it does not abort the stream, use ApplyStream or
// Abort for that.
func (s *Session) NewStream(ctx context.Context) *Stream {
	return &Stream{
		s:   s,
		ctx: s.scope(ctx),
		parser: action.NewParser(
			action.WithParserLogger(s.logger),
			action.WithMaxBytes(s.cfg.Stream.MaxBytes),
		),
		report: ApplyReport{PageID: s.pageID},
	}
}

// Feed appends chunk and applies every action it completes. It returns the
// number of actions applied by this call.
func (st *Stream) Feed(chunk string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.aborted.Load() {
		return 0, ErrStreamAborted
	}
	if st.err != nil {
		return 0, st.err
	}
	if err := st.parser.Feed(chunk); err != nil {
		return 0, st.fail(err)
	}
	actions := st.parser.Extract()
	rejected := st.parser.Rejected()[st.rejectedSeen:]
	st.rejectedSeen += len(rejected)

	s := st.s
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, st.fail(ErrSessionClosed)
	}
	for _, r := range rejected {
		s.rejectLocked(r)
		st.report.Rejected = append(st.report.Rejected, r.Error())
	}
	n, inserted, skipped, err := s.applyLocked(actions, &st.aborted)
	s.commitLocked(st.ctx)
	st.report.Nodes = s.doc.Count()
	s.mu.Unlock()

	st.report.Applied += n
	st.report.Inserted = append(st.report.Inserted, inserted...)
	st.report.Skipped = append(st.report.Skipped, skipped...)
	if err != nil {
		if errors.Is(err, ErrStreamAborted) {
			st.report.Aborted = true
			return n, err
		}
		return n, st.fail(err)
	}
	return n, nil
}

func (st *Stream) fail(err error) error {
	st.err = err
	st.report.Error = err.Error()
	st.s.logger.Warn("editor: stream stopped", "applied", st.report.Applied, "error", err)
	return err
}

// Abort stops further extraction and execution. Applied actions stay.
// Safe to call from any goroutine.
func (st *Stream) Abort() {
	st.aborted.Store(true)
}

// Err returns the error that stopped the stream, if any.
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Report returns a copy of what the stream did so far.
func (st *Stream) Report() *ApplyReport {
	st.mu.Lock()
	defer st.mu.Unlock()
	r := st.report
	r.Aborted = r.Aborted || st.aborted.Load()
	r.Text = st.parser.Text()
	return &r
}

// ApplyStream feeds r to a new stream chunk by chunk until EOF, the first
// failing action, or ctx cancellation, which aborts the stream.
func (s *Session) ApplyStream(ctx context.Context, r io.Reader) (*ApplyReport, error) {
	st := s.NewStream(ctx)
	stop := context.AfterFunc(ctx, st.Abort)
	defer stop()

	buf := make([]byte, s.cfg.Stream.ChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := st.Feed(string(buf[:n])); err != nil {
				return st.Report(), err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return st.Report(), nil
		}
		if rerr != nil {
			st.Abort()
			if err := ctx.Err(); err != nil {
				return st.Report(), err
			}
			return st.Report(), fmt.Errorf("%w: %w", errReadStream, rerr)
		}
		if err := ctx.Err(); err != nil {
			st.Abort()
			return st.Report(), err
		}
	}
}
