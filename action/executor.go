package action

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/ezpage/document"
	"github.com/hazyhaar/ezpage/registry"
)

// Resolver looks component types up by name. *registry.Registry
// implements it.
type Resolver interface {
	Resolve(name string) (registry.Descriptor, bool)
}

// Result describes what the last applied action did.
type Result struct {
	Action   Action
	Inserted []string // ids of new top-level nodes (add, replace_all)
	Skipped  []string // unknown component names skipped by replace_all
}

// Executor validates actions against a registry and applies them to one
// document. Not safe for concurrent use; editor.Session serializes access.
type Executor struct {
	reg           Resolver
	doc           *document.Document
	logger        *slog.Logger
	strictReplace bool
	observe       func(Action, error)
	last          Result
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) ExecOption {
	return func(e *Executor) { e.logger = l }
}

// WithStrictReplace makes replace_all fail, before deleting anything, when
// one of its entries names an unknown component. By default such entries
// are skipped.
func WithStrictReplace(strict bool) ExecOption {
	return func(e *Executor) { e.strictReplace = strict }
}

// WithObserver registers fn to be called after every Apply with the action
// and its outcome. fn runs synchronously on the applying goroutine.
func WithObserver(fn func(Action, error)) ExecOption {
	return func(e *Executor) { e.observe = fn }
}

// NewExecutor binds reg and doc.
func NewExecutor(reg Resolver, doc *document.Document, opts ...ExecOption) *Executor {
	e := &Executor{reg: reg, doc: doc, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Document returns the document the executor edits.
func (e *Executor) Document() *document.Document { return e.doc }

// LastResult returns the outcome of the most recent successful Apply.
func (e *Executor) LastResult() Result { return e.last }

// Apply validates a and applies it. On error the document is unchanged,
// except for replace_all which is best-effort sequential.
func (e *Executor) Apply(a Action) error {
	res := Result{Action: a}
	var err error
	switch a.Kind {
	case KindAdd:
		err = e.add(a, &res)
	case KindUpdate:
		if err = e.requireNode(a.NodeID); err == nil {
			err = e.doc.SetProps(a.NodeID, a.Props)
		}
	case KindDelete:
		if err = e.requireNode(a.NodeID); err == nil {
			err = e.doc.DeleteNode(a.NodeID)
		}
	case KindMove:
		if err = e.requireNode(a.NodeID); err == nil {
			if err = e.requireNode(a.NewParentID); err == nil {
				err = e.doc.MoveNode(a.NodeID, a.NewParentID, index(a.Index))
			}
		}
	case KindReplaceAll:
		err = e.replaceAll(a, &res)
	default:
		err = fmt.Errorf("%w: unknown type %q", ErrMalformedAction, a.Kind)
	}
	if e.observe != nil {
		e.observe(a, err)
	}
	if err != nil {
		return err
	}
	e.last = res
	return nil
}

// ApplyBatch applies actions in order and stops at the first failure,
// returning how many were applied. Applied actions are not rolled back; the
// error is an *ExecError naming the failed one.
func (e *Executor) ApplyBatch(actions []Action) (int, error) {
	for i, a := range actions {
		if err := e.Apply(a); err != nil {
			e.logger.Warn("action: batch stopped", "index", i, "action", a.String(), "applied", i, "error", err)
			return i, &ExecError{Index: i, Action: a, Err: err}
		}
	}
	return len(actions), nil
}

func (e *Executor) requireNode(id string) error {
	if !e.doc.Has(id) {
		return &document.OpError{Op: "resolve", NodeID: id, Err: document.ErrNodeNotFound}
	}
	return nil
}

func (e *Executor) add(a Action, res *Result) error {
	if a.Component == nil {
		return fmt.Errorf("%w: add without component", ErrMalformedAction)
	}
	if err := e.requireNode(a.NodeID); err != nil {
		return err
	}
	spec, err := e.buildSpec(*a.Component)
	if err != nil {
		return err
	}
	id, err := e.doc.InsertSubtreeAt(a.NodeID, spec, index(a.Index))
	if err != nil {
		return err
	}
	res.Inserted = []string{id}
	return nil
}

func (e *Executor) replaceAll(a Action, res *Result) error {
	specs := make([]*document.Spec, 0, len(a.Components))
	for i, cs := range a.Components {
		spec, err := e.buildSpec(cs)
		if err != nil {
			if !errors.Is(err, ErrUnknownComponent) || e.strictReplace {
				return fmt.Errorf("replace_all entry %d: %w", i, err)
			}
			e.logger.Warn("action: replace_all entry skipped", "seq", a.Seq, "entry", i, "component", cs.Component, "error", err)
			res.Skipped = append(res.Skipped, cs.Component)
			continue
		}
		specs = append(specs, spec)
	}
	ids, err := e.doc.ReplaceAll(specs)
	res.Inserted = ids
	return err
}

// buildSpec instantiates cs and its children: props merged over the
// descriptor defaults, canvas flag from the descriptor, one node per slot.
func (e *Executor) buildSpec(cs ComponentSpec) (*document.Spec, error) {
	desc, ok := e.reg.Resolve(cs.Component)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, cs.Component)
	}
	spec := newSpec(desc)
	spec.Props.Merge(cs.Props)

	for _, slot := range desc.Slots {
		sd, ok := e.reg.Resolve(slot.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %q (slot %s of %s)", ErrUnknownComponent, slot.Type, slot.Name, desc.Name)
		}
		if spec.Linked == nil {
			spec.Linked = make(map[string]*document.Spec, len(desc.Slots))
		}
		spec.Linked[slot.Name] = newSpec(sd)
	}
	for _, child := range cs.Children {
		cspec, err := e.buildSpec(child)
		if err != nil {
			return nil, err
		}
		spec.Children = append(spec.Children, cspec)
	}
	return spec, nil
}

func newSpec(d registry.Descriptor) *document.Spec {
	return &document.Spec{
		Type:        d.Name,
		DisplayName: d.DisplayName,
		Props:       d.DefaultProps,
		IsCanvas:    d.IsCanvas,
	}
}

func index(i *int) int {
	if i == nil {
		return document.Append
	}
	return *i
}
