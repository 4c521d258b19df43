// CLAUDE:SUMMARY Main editor orchestrator: registry, persistence, per-page sessions with load/fallback policy, stats, MCP and HTTP surfaces.
// Package editor runs page editing sessions: it loads a page document from
// persistence (falling back to a fresh default document when there is
// nothing usable), applies actions under a per-page lock, persists
// snapshots through a debounced saver and journals every action.
//
// Usage:
//
//	ed, err := editor.New(cfg, logger)
//	defer ed.Close()
//	sess, err := ed.Open(ctx, "home")
//	report, err := sess.ApplyStream(ctx, body)
//	ed.RegisterMCP(mcpServer)
//	ed.RegisterHTTP(router)
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/hazyhaar/ezpage/action"
	"github.com/hazyhaar/ezpage/dbopen"
	"github.com/hazyhaar/ezpage/document"
	"github.com/hazyhaar/ezpage/editor/internal/store"
	"github.com/hazyhaar/ezpage/horosafe"
	"github.com/hazyhaar/ezpage/idgen"
	"github.com/hazyhaar/ezpage/kit"
	"github.com/hazyhaar/ezpage/registry"
	"github.com/hazyhaar/ezpage/render"
	"github.com/hazyhaar/ezpage/trace"
	"github.com/hazyhaar/ezpage/watch"
)

var (
	// ErrClosed is returned by Open after Close.
	ErrClosed = errors.New("editor: closed")
	// ErrInvalidPageID is returned by Open for ids unusable as a key.
	ErrInvalidPageID = errors.New("editor: invalid page id")
	// ErrLoadFailed is returned by Open when the stored page cannot be read.
	// No session is kept for the page; the next Open retries the load.
	ErrLoadFailed = errors.New("editor: load failed")
	// ErrUnsupported is returned when the persistence lacks an operation.
	ErrUnsupported = errors.New("editor: not supported by persistence")
)

// Editor is the main ezpage orchestrator.
type Editor struct {
	store    *store.Store // nil when persistence was injected
	persist  Persistence
	reg      *registry.Registry
	renderer *render.Renderer
	journal  *journal
	logger   *slog.Logger
	config   *Config
	nodeIDs  idgen.Generator

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures an Editor.
type Option func(*Editor)

// WithPersistence replaces the SQLite store. The journal is kept only if p
// also accepts action records.
func WithPersistence(p Persistence) Option {
	return func(e *Editor) { e.persist = p }
}

// WithRegistry sets the component table instead of loading it from config.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Editor) { e.reg = r }
}

// WithNodeIDGenerator sets the generator for new node ids.
func WithNodeIDGenerator(gen idgen.Generator) Option {
	return func(e *Editor) { e.nodeIDs = gen }
}

// New creates an Editor. Without WithPersistence it opens the SQLite
// database at cfg.DBPath.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Editor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	e := &Editor{
		logger:   logger,
		config:   cfg,
		nodeIDs:  idgen.Node,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(e)
	}

	if e.reg == nil {
		if cfg.ComponentsFile != "" {
			reg, err := registry.LoadFile(cfg.ComponentsFile)
			if err != nil {
				return nil, err
			}
			e.reg = reg
		} else {
			e.reg = registry.Builtin()
		}
	}

	if e.persist == nil {
		var dbOpts []dbopen.Option
		if cfg.TraceSQL {
			trace.SetLogger(logger)
			dbOpts = append(dbOpts, dbopen.WithDriver(trace.DriverName))
		}
		s, err := store.Open(cfg.DBPath, dbOpts...)
		if err != nil {
			return nil, fmt.Errorf("editor: open store: %w", err)
		}
		e.store = s
		e.persist = s
	}
	if w, ok := e.persist.(actionWriter); ok && !cfg.Journal.Disabled {
		e.journal = newJournal(w, cfg.Journal.QueueSize, logger)
	}
	e.renderer = render.New(e.reg, logger)
	return e, nil
}

// Registry returns the component table.
func (e *Editor) Registry() *registry.Registry { return e.reg }

// Renderer returns the preview renderer.
func (e *Editor) Renderer() *render.Renderer { return e.renderer }

// Open returns the session of pageID, loading the page on first use.
func (e *Editor) Open(ctx context.Context, pageID string) (*Session, error) {
	if err := horosafe.ValidateIdentifier(pageID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPageID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if s, ok := e.sessions[pageID]; ok {
		return s, nil
	}

	ctx = kit.WithPageID(ctx, pageID)
	doc, recovered, err := e.load(ctx, pageID)
	if err != nil {
		return nil, err
	}
	s := e.newSession(pageID, doc, recovered)
	e.sessions[pageID] = s
	return s, nil
}

// load applies the load policy: missing, malformed and never-edited
// default pages start from a fresh default document. A page that cannot be
// read is an error; no session is created for it, so nothing can overwrite
// the stored content.
func (e *Editor) load(ctx context.Context, pageID string) (doc *document.Document, recovered bool, err error) {
	log := e.logger.With(kit.LogAttrs(ctx)...)
	opts := []document.Option{document.WithRules(e.reg.Rules()), document.WithIDGenerator(e.nodeIDs)}

	data, err := e.persist.Load(ctx, pageID)
	switch {
	case errors.Is(err, ErrPageNotFound):
		log.Debug("editor: new page")
		doc = e.reg.NewDocument(opts...)
		e.create(ctx, pageID, doc)
		return doc, false, nil
	case err != nil:
		log.Error("editor: load failed", "error", err)
		return nil, false, fmt.Errorf("%w: page %s: %w", ErrLoadFailed, pageID, err)
	}

	if document.IsDefault(data, e.reg.Canonical()) && !e.touched(ctx, pageID) {
		return e.reg.NewDocument(opts...), false, nil
	}

	doc, err = document.Unmarshal(data, opts...)
	if err == nil {
		err = doc.Validate()
	}
	if err != nil {
		log.Warn("editor: stored document malformed, starting from default document", "bytes", len(data), "error", err)
		return e.reg.NewDocument(opts...), true, nil
	}
	return doc, false, nil
}

// create records a fresh page as untouched when the persistence supports
// it. Failures are logged: the first save creates the page anyway.
func (e *Editor) create(ctx context.Context, pageID string, doc *document.Document) {
	c, ok := e.persist.(pageCreator)
	if !ok {
		return
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return
	}
	if err := c.Create(ctx, pageID, data); err != nil {
		e.logger.Warn("editor: create page failed", "page_id", pageID, "error", err)
	}
}

func (e *Editor) touched(ctx context.Context, pageID string) bool {
	tr, ok := e.persist.(touchReporter)
	if !ok {
		return false
	}
	touched, err := tr.Touched(ctx, pageID)
	if err != nil {
		e.logger.Warn("editor: touched lookup failed", "page_id", pageID, "error", err)
		return false
	}
	return touched
}

func (e *Editor) newSession(pageID string, doc *document.Document, recovered bool) *Session {
	s := &Session{
		id:        idgen.New(),
		pageID:    pageID,
		logger:    e.logger.With("page_id", pageID),
		cfg:       e.config,
		doc:       doc,
		journal:   e.journal,
		recovered: recovered,
	}
	if snap, err := document.Marshal(doc); err == nil && !recovered {
		s.lastSnap = snap
	}
	s.exec = action.NewExecutor(e.reg, doc,
		action.WithLogger(s.logger),
		action.WithStrictReplace(e.config.StrictReplace),
		action.WithObserver(s.observe),
	)
	s.saver = NewSaver(e.config.Save, func(ctx context.Context, snap []byte) error {
		return e.persist.Save(kit.WithPageID(ctx, pageID), pageID, snap)
	}, s.logger)
	return s
}

// Start launches background work tied to ctx: the external-change watcher
// when Config.Watch is enabled and the SQLite store is in use.
func (e *Editor) Start(ctx context.Context) {
	if e.store == nil || e.config.Watch.Interval <= 0 {
		return
	}
	w := watch.New(e.store.DB, watch.Options{
		Interval: e.config.Watch.Interval,
		Debounce: e.config.Watch.Debounce,
		Detector: watch.Column("SUM", "pages", "revision"),
		Logger:   e.logger,
	})
	go w.Run(ctx, e.reconcile)
}

// reconcile drops sessions whose stored page differs from what they last
// wrote and that have nothing left to save, so the next Open reloads the
// page. A page rewritten by another process is picked up this way.
func (e *Editor) reconcile(ctx context.Context) error {
	e.mu.Lock()
	sessions := maps.Clone(e.sessions)
	e.mu.Unlock()

	for pageID, s := range sessions {
		if s.saver.Pending() {
			continue
		}
		data, err := e.persist.Load(ctx, pageID)
		if errors.Is(err, ErrPageNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("editor: reconcile %s: %w", pageID, err)
		}
		if s.wrote(data) {
			continue
		}

		e.mu.Lock()
		if e.sessions[pageID] == s {
			delete(e.sessions, pageID)
		}
		e.mu.Unlock()
		if err := s.Close(); err != nil {
			e.logger.Warn("editor: close stale session", "page_id", pageID, "error", err)
		}
		e.logger.Info("editor: page changed externally, session dropped", "page_id", pageID)
	}
	return nil
}

// CloseSession flushes and forgets the session of pageID.
func (e *Editor) CloseSession(pageID string) error {
	e.mu.Lock()
	s, ok := e.sessions[pageID]
	delete(e.sessions, pageID)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Stats summarizes the page's document and journal.
func (e *Editor) Stats(ctx context.Context, pageID string) (*Stats, error) {
	s, err := e.Open(ctx, pageID)
	if err != nil {
		return nil, err
	}
	st := &Stats{PageID: pageID, Types: make(map[string]int)}
	unknown := make(map[string]bool)
	s.View(func(d *document.Document) {
		st.Nodes = d.Count()
		d.Walk(func(n *document.Node, depth int) bool {
			st.Types[n.Type]++
			st.MaxDepth = max(st.MaxDepth, depth)
			if n.Hidden {
				st.Hidden++
			}
			if _, ok := e.reg.Resolve(n.Type); !ok && !unknown[n.Type] {
				unknown[n.Type] = true
				st.Unknown = append(st.Unknown, n.Type)
			}
			return true
		})
	})
	st.Recovered = s.Recovered()
	st.Applied, st.Rejected = s.counts()
	if e.store != nil {
		if applied, rejected, err := e.store.ActionCounts(ctx, pageID); err == nil {
			st.Applied, st.Rejected = applied, rejected
		}
		if p, err := e.store.GetPage(ctx, pageID); err == nil && p != nil {
			st.Revision, st.Touched, st.UpdatedAt = p.Revision, p.Touched, p.UpdatedAt
		}
	}
	return st, nil
}

// Document returns a copy of the page's document for display. When the
// page cannot be read it returns a fresh default document, so previews
// always have something to render; nothing is cached or saved for it.
func (e *Editor) Document(ctx context.Context, pageID string) (*document.Document, error) {
	s, err := e.Open(ctx, pageID)
	if errors.Is(err, ErrLoadFailed) {
		e.logger.Warn("editor: rendering default document", "page_id", pageID, "error", err)
		return e.reg.NewDocument(document.WithRules(e.reg.Rules())), nil
	}
	if err != nil {
		return nil, err
	}
	return s.Document(), nil
}

// SetNode changes the cosmetic attributes of a node: its display name and
// hidden flag. Nil arguments are left as they are. It returns the updated
// node.
func (e *Editor) SetNode(ctx context.Context, pageID, nodeID string, displayName *string, hidden *bool) (*document.Node, error) {
	s, err := e.Open(ctx, pageID)
	if err != nil {
		return nil, err
	}
	var out *document.Node
	err = s.Edit(ctx, func(d *document.Document) error {
		if displayName != nil {
			if err := d.SetDisplayName(nodeID, *displayName); err != nil {
				return err
			}
		}
		if hidden != nil {
			if err := d.SetHidden(nodeID, *hidden); err != nil {
				return err
			}
		}
		n, err := d.Node(nodeID)
		out = n
		return err
	})
	return out, err
}

// Delete closes the session of pageID and removes the stored page with
// its journal. It returns ErrPageNotFound for unknown pages and
// ErrUnsupported when the persistence cannot delete.
func (e *Editor) Delete(ctx context.Context, pageID string) error {
	if err := horosafe.ValidateIdentifier(pageID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPageID, err)
	}
	d, ok := e.persist.(pageDeleter)
	if !ok {
		return ErrUnsupported
	}
	if err := e.CloseSession(pageID); err != nil {
		e.logger.Warn("editor: close session before delete", "page_id", pageID, "error", err)
	}
	if err := d.DeletePage(kit.WithPageID(ctx, pageID), pageID); err != nil {
		return err
	}
	e.logger.Info("editor: page deleted", "page_id", pageID)
	return nil
}

// Pages lists stored pages. Empty without the SQLite store.
func (e *Editor) Pages(ctx context.Context, limit int) ([]*PageInfo, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListPages(ctx, limit)
}

// History returns the most recent journal rows of a page, newest first.
func (e *Editor) History(ctx context.Context, pageID string, limit int) ([]*ActionRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.ListActions(ctx, pageID, limit)
}

// Close flushes and closes every session, drains the journal and closes
// the database.
func (e *Editor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := e.sessions
	e.sessions = nil
	e.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", id, err))
		}
	}
	e.journal.close()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
