// CLAUDE:SUMMARY Page document model: flat id->node map rooted at ROOT, read queries, invariant validation, structural equality.
// Package document holds the page-document model of ezpage: a tree of
// component instances stored as a flat id -> node map rooted at "ROOT",
// the mutation engine that edits it, and the JSON codec that persists it.
//
// A Document is not safe for concurrent use. Callers sharing one across
// goroutines must guard every call, queries included, with a single lock
// (editor.Session does).
//
// Every mutation validates before touching the tree: on error the document
// is left exactly as it was. The model does not know the component registry;
// unknown type names are representable and are rejected at the edges
// (action.Executor). Structural rules that depend on the component type
// (can the node be deleted, dragged) are supplied through Rules.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/hazyhaar/ezpage/idgen"
)

// Rules answers per-type structural questions. registry.Registry provides
// an implementation; a nil Rules allows everything.
type Rules interface {
	CanDelete(typeName string) bool
	CanDrag(typeName string) bool
}

// Document is a page's node tree.
type Document struct {
	nodes map[string]*Node
	newID idgen.Generator
	rules Rules
}

// Option configures a Document.
type Option func(*Document)

// WithIDGenerator sets the generator used for fresh node ids.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(d *Document) { d.newID = gen }
}

// WithRules sets the per-type structural rules.
func WithRules(r Rules) Option {
	return func(d *Document) { d.rules = r }
}

func newDocument(opts []Option) *Document {
	d := &Document{
		nodes: make(map[string]*Node),
		newID: idgen.Node,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// New creates the default document: a single canvas ROOT of type rootType
// carrying a copy of rootProps.
func New(rootType string, rootProps Props, opts ...Option) *Document {
	d := newDocument(opts)
	d.nodes[RootID] = &Node{
		ID:          RootID,
		Type:        rootType,
		DisplayName: rootType,
		Props:       rootProps.Clone(),
		Custom:      Props{},
		Nodes:       []string{},
		LinkedNodes: map[string]string{},
		IsCanvas:    true,
	}
	return d
}

// Node returns a copy of the node with the given id.
func (d *Document) Node(id string) (*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, opErr("get", id, ErrNodeNotFound)
	}
	return n.Clone(), nil
}

// Has reports whether a node with the given id exists.
func (d *Document) Has(id string) bool {
	_, ok := d.nodes[id]
	return ok
}

// Root returns a copy of the ROOT node.
func (d *Document) Root() *Node {
	return d.nodes[RootID].Clone()
}

// Children returns copies of the ordered children of id. Linked children are
// not included; see Linked.
func (d *Document) Children(id string) ([]*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, opErr("children", id, ErrNodeNotFound)
	}
	out := make([]*Node, 0, len(n.Nodes))
	for _, cid := range n.Nodes {
		if c, ok := d.nodes[cid]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// Linked returns copies of the linked children of id keyed by slot name.
func (d *Document) Linked(id string) (map[string]*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, opErr("linked", id, ErrNodeNotFound)
	}
	out := make(map[string]*Node, len(n.LinkedNodes))
	for slot, cid := range n.LinkedNodes {
		if c, ok := d.nodes[cid]; ok {
			out[slot] = c.Clone()
		}
	}
	return out, nil
}

// IsDescendant reports whether candidate lies strictly below ancestor.
// A node is not its own descendant.
func (d *Document) IsDescendant(candidate, ancestor string) bool {
	n, ok := d.nodes[candidate]
	if !ok {
		return false
	}
	// Bounded by the node count so a corrupted parent chain cannot loop.
	for range len(d.nodes) {
		if n.Parent == "" {
			return false
		}
		if n.Parent == ancestor {
			return true
		}
		if n, ok = d.nodes[n.Parent]; !ok {
			return false
		}
	}
	return false
}

// Count returns the number of nodes, ROOT included.
func (d *Document) Count() int {
	return len(d.nodes)
}

// IDs returns every node id in sorted order.
func (d *Document) IDs() []string {
	return slices.Sorted(maps.Keys(d.nodes))
}

// Walk visits the tree depth-first from ROOT: a node, its ordered children,
// then its linked children by slot name. fn receives a copy and the depth
// (ROOT is 0); returning false skips the node's subtree.
func (d *Document) Walk(fn func(n *Node, depth int) bool) {
	seen := make(map[string]bool, len(d.nodes))
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n, ok := d.nodes[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		if !fn(n.Clone(), depth) {
			return
		}
		for _, cid := range n.Nodes {
			visit(cid, depth+1)
		}
		for _, slot := range n.Slots() {
			visit(n.LinkedNodes[slot], depth+1)
		}
	}
	visit(RootID, 0)
}

// Clone returns a deep copy sharing the id generator and rules.
func (d *Document) Clone() *Document {
	c := &Document{
		nodes: make(map[string]*Node, len(d.nodes)),
		newID: d.newID,
		rules: d.rules,
	}
	for id, n := range d.nodes {
		c.nodes[id] = n.Clone()
	}
	return c
}

// Validate checks every tree invariant: a single parentless ROOT, parent and
// child links agreeing in both directions, no node both ordered and linked,
// every node reachable from ROOT exactly once.
func (d *Document) Validate() error {
	root, ok := d.nodes[RootID]
	if !ok {
		return fmt.Errorf("%w: ROOT missing", ErrMalformedDocument)
	}
	if root.Parent != "" {
		return fmt.Errorf("%w: ROOT has parent %q", ErrMalformedDocument, root.Parent)
	}

	for id, n := range d.nodes {
		if n.ID != id {
			return fmt.Errorf("%w: node keyed %q has id %q", ErrMalformedDocument, id, n.ID)
		}
		if id != RootID && n.Parent == "" {
			return fmt.Errorf("%w: node %q has no parent", ErrMalformedDocument, id)
		}
		for _, cid := range n.Nodes {
			c, ok := d.nodes[cid]
			if !ok {
				return fmt.Errorf("%w: node %q lists missing child %q", ErrMalformedDocument, id, cid)
			}
			if c.Parent != id {
				return fmt.Errorf("%w: child %q of %q points to parent %q", ErrMalformedDocument, cid, id, c.Parent)
			}
		}
		for slot, cid := range n.LinkedNodes {
			c, ok := d.nodes[cid]
			if !ok {
				return fmt.Errorf("%w: node %q slot %q holds missing node %q", ErrMalformedDocument, id, slot, cid)
			}
			if c.Parent != id {
				return fmt.Errorf("%w: linked node %q of %q points to parent %q", ErrMalformedDocument, cid, id, c.Parent)
			}
			if slices.Contains(n.Nodes, cid) {
				return fmt.Errorf("%w: node %q is both child and linked node of %q", ErrMalformedDocument, cid, id)
			}
		}
	}

	seen := make(map[string]bool, len(d.nodes))
	var visit func(id string) error
	visit = func(id string) error {
		if seen[id] {
			return fmt.Errorf("%w: node %q reachable twice", ErrMalformedDocument, id)
		}
		seen[id] = true
		n := d.nodes[id]
		for _, cid := range n.Nodes {
			if err := visit(cid); err != nil {
				return err
			}
		}
		for _, slot := range n.Slots() {
			if err := visit(n.LinkedNodes[slot]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(RootID); err != nil {
		return err
	}
	if len(seen) != len(d.nodes) {
		for id := range d.nodes {
			if !seen[id] {
				return fmt.Errorf("%w: node %q unreachable from ROOT", ErrMalformedDocument, id)
			}
		}
	}
	return nil
}

// Equal reports whether a and b hold the same node set with the same
// relations, props and flags. Nil and empty collections compare equal.
func Equal(a, b *Document) bool {
	if len(a.nodes) != len(b.nodes) {
		return false
	}
	for id, na := range a.nodes {
		nb, ok := b.nodes[id]
		if !ok || !nodeEqual(na, nb) {
			return false
		}
	}
	return true
}

func nodeEqual(a, b *Node) bool {
	if a.ID != b.ID || a.Type != b.Type || a.DisplayName != b.DisplayName ||
		a.Parent != b.Parent || a.IsCanvas != b.IsCanvas || a.Hidden != b.Hidden {
		return false
	}
	if !slices.Equal(a.Nodes, b.Nodes) || !maps.Equal(a.LinkedNodes, b.LinkedNodes) {
		return false
	}
	return propsEqual(a.Props, b.Props) && propsEqual(a.Custom, b.Custom)
}

// propsEqual compares bags by their JSON encoding, so 3, float64(3) and
// json.Number("3") are the same value.
func propsEqual(a, b Props) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}
