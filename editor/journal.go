package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/ezpage/editor/internal/store"
	"github.com/hazyhaar/ezpage/idgen"
	"github.com/hazyhaar/ezpage/kit"
)

// journal writes action records asynchronously. It is best-effort: a full
// queue or a failing insert is logged and never blocks editing.
type journal struct {
	w      actionWriter
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *store.ActionRecord
	wg     sync.WaitGroup
	once   sync.Once
}

func newJournal(w actionWriter, queueSize int, logger *slog.Logger) *journal {
	j := &journal{
		w:      w,
		newID:  idgen.Prefixed("act_", idgen.Default),
		logger: logger,
		ch:     make(chan *store.ActionRecord, queueSize),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

func (j *journal) record(r *store.ActionRecord) {
	if j == nil {
		return
	}
	if r.ID == "" {
		r.ID = j.newID()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	select {
	case j.ch <- r:
	default:
		j.logger.Warn("editor: journal queue full, record dropped", "page_id", r.PageID, "seq", r.Seq)
	}
}

func (j *journal) run() {
	defer j.wg.Done()
	for r := range j.ch {
		ctx, cancel := context.WithTimeout(kit.WithPageID(context.Background(), r.PageID), 5*time.Second)
		if err := j.w.InsertAction(ctx, r); err != nil {
			j.logger.Error("editor: journal insert failed", "page_id", r.PageID, "seq", r.Seq, "error", err)
		}
		cancel()
	}
}

// close drains the queue and stops the writer.
func (j *journal) close() {
	if j == nil {
		return
	}
	j.once.Do(func() { close(j.ch) })
	j.wg.Wait()
}
