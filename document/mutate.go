package document

import (
	"fmt"
	"math"
	"slices"

	"github.com/hazyhaar/ezpage/idgen"
)

// Append as an index inserts after the last child.
const Append = math.MaxInt

// idAttempts bounds fresh-id draws per node.
const idAttempts = 16

// Spec describes a subtree to insert. ID may be empty, in which case a fresh
// id is generated; explicit ids are kept (re-inserting a detached tree).
type Spec struct {
	ID          string
	Type        string
	DisplayName string
	Props       Props
	Custom      Props
	IsCanvas    bool
	Hidden      bool
	Children    []*Spec          // ordered children; the spec must be a canvas
	Linked      map[string]*Spec // named slot children
}

// plan is a validated insertion: every spec paired with its final id.
type plan struct {
	ids map[*Spec]string
}

// planInsert validates spec and assigns ids depth-first (node, children,
// then slots in sorted order) without touching the document.
func (d *Document) planInsert(spec *Spec) (*plan, error) {
	explicit := make(map[string]bool)
	var collect func(s *Spec) error
	collect = func(s *Spec) error {
		if s == nil {
			return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
		}
		if s.Type == "" {
			return fmt.Errorf("%w: empty type", ErrInvalidSpec)
		}
		if s.ID != "" {
			if explicit[s.ID] || d.Has(s.ID) {
				return fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
			}
			explicit[s.ID] = true
		}
		if len(s.Children) > 0 && !s.IsCanvas {
			return fmt.Errorf("%w: %s spec has children", ErrNotCanvas, s.Type)
		}
		for _, c := range s.Children {
			if err := collect(c); err != nil {
				return err
			}
		}
		for _, slot := range sortedSlots(s.Linked) {
			if slot == "" {
				return fmt.Errorf("%w: empty slot name", ErrInvalidSpec)
			}
			if err := collect(s.Linked[slot]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(spec); err != nil {
		return nil, err
	}

	p := &plan{ids: make(map[*Spec]string)}
	fresh := make(map[string]bool)
	taken := func(id string) bool {
		return id == RootID || d.Has(id) || explicit[id] || fresh[id]
	}
	var assign func(s *Spec) error
	assign = func(s *Spec) error {
		id := s.ID
		if id == "" {
			var err error
			if id, err = idgen.Unique(d.newID, taken, idAttempts); err != nil {
				return err
			}
			fresh[id] = true
		}
		p.ids[s] = id
		for _, c := range s.Children {
			if err := assign(c); err != nil {
				return err
			}
		}
		for _, slot := range sortedSlots(s.Linked) {
			if err := assign(s.Linked[slot]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := assign(spec); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Document) build(p *plan, s *Spec, parent string) string {
	id := p.ids[s]
	n := &Node{
		ID:          id,
		Type:        s.Type,
		DisplayName: s.DisplayName,
		Props:       s.Props.Clone(),
		Custom:      s.Custom.Clone(),
		Parent:      parent,
		Nodes:       make([]string, 0, len(s.Children)),
		LinkedNodes: make(map[string]string, len(s.Linked)),
		IsCanvas:    s.IsCanvas,
		Hidden:      s.Hidden,
	}
	if n.DisplayName == "" {
		n.DisplayName = s.Type
	}
	d.nodes[id] = n
	for _, c := range s.Children {
		n.Nodes = append(n.Nodes, d.build(p, c, id))
	}
	for _, slot := range sortedSlots(s.Linked) {
		n.LinkedNodes[slot] = d.build(p, s.Linked[slot], id)
	}
	return id
}

// InsertSubtree appends spec as the last child of parentID and returns the
// id of the new top node.
func (d *Document) InsertSubtree(parentID string, spec *Spec) (string, error) {
	return d.InsertSubtreeAt(parentID, spec, Append)
}

// InsertSubtreeAt inserts spec among parentID's children at index. Negative
// indices clamp to 0, indices past the end append.
func (d *Document) InsertSubtreeAt(parentID string, spec *Spec, index int) (string, error) {
	parent, ok := d.nodes[parentID]
	if !ok {
		return "", opErr("insert", parentID, ErrNodeNotFound)
	}
	if !parent.IsCanvas {
		return "", opErr("insert", parentID, ErrNotCanvas)
	}
	p, err := d.planInsert(spec)
	if err != nil {
		return "", opErr("insert", parentID, err)
	}
	id := d.build(p, spec, parentID)
	parent.Nodes = slices.Insert(parent.Nodes, clampIndex(index, len(parent.Nodes)), id)
	return id, nil
}

// SetProps shallow-merges delta into the node's props.
func (d *Document) SetProps(nodeID string, delta Props) error {
	n, ok := d.nodes[nodeID]
	if !ok {
		return opErr("set_props", nodeID, ErrNodeNotFound)
	}
	if n.Props == nil {
		n.Props = Props{}
	}
	n.Props.Merge(delta)
	return nil
}

// SetHidden toggles rendering of a node. Structure is unaffected.
func (d *Document) SetHidden(nodeID string, hidden bool) error {
	n, ok := d.nodes[nodeID]
	if !ok {
		return opErr("set_hidden", nodeID, ErrNodeNotFound)
	}
	n.Hidden = hidden
	return nil
}

// SetDisplayName overrides the cosmetic name of a node. An empty name
// restores the type name.
func (d *Document) SetDisplayName(nodeID, name string) error {
	n, ok := d.nodes[nodeID]
	if !ok {
		return opErr("set_display_name", nodeID, ErrNodeNotFound)
	}
	if name == "" {
		name = n.Type
	}
	n.DisplayName = name
	return nil
}

// DeleteNode removes a node and its whole subtree, including linked
// children, and excises it from its parent.
func (d *Document) DeleteNode(nodeID string) error {
	if nodeID == RootID {
		return opErr("delete", nodeID, ErrRootDeletion)
	}
	n, ok := d.nodes[nodeID]
	if !ok {
		return opErr("delete", nodeID, ErrNodeNotFound)
	}
	if d.rules != nil && !d.rules.CanDelete(n.Type) {
		return opErr("delete", nodeID, ErrRootDeletion)
	}

	for _, id := range d.subtree(nodeID) {
		delete(d.nodes, id)
	}
	if parent, ok := d.nodes[n.Parent]; ok {
		parent.detach(nodeID)
	}
	return nil
}

// subtree returns id and every id below it.
func (d *Document) subtree(id string) []string {
	var out []string
	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := d.nodes[cur]
		if !ok || seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		stack = append(stack, n.Nodes...)
		for _, cid := range n.LinkedNodes {
			stack = append(stack, cid)
		}
	}
	return out
}

// MoveNode re-parents nodeID under newParentID at index. The index refers
// to the target list after the node has been removed from its old place, so
// reordering within one parent behaves like a drag. A node held in a linked
// slot leaves the slot empty.
func (d *Document) MoveNode(nodeID, newParentID string, index int) error {
	if nodeID == RootID {
		return opErr("move", nodeID, ErrRootMove)
	}
	n, ok := d.nodes[nodeID]
	if !ok {
		return opErr("move", nodeID, ErrNodeNotFound)
	}
	target, ok := d.nodes[newParentID]
	if !ok {
		return opErr("move", newParentID, ErrNodeNotFound)
	}
	if newParentID == nodeID || d.IsDescendant(newParentID, nodeID) {
		return opErr("move", nodeID, ErrCycle)
	}
	if !target.IsCanvas {
		return opErr("move", newParentID, ErrNotCanvas)
	}
	if d.rules != nil && !d.rules.CanDrag(n.Type) {
		return opErr("move", nodeID, ErrNotDraggable)
	}

	if old, ok := d.nodes[n.Parent]; ok {
		old.detach(nodeID)
	}
	target.Nodes = slices.Insert(target.Nodes, clampIndex(index, len(target.Nodes)), nodeID)
	n.Parent = newParentID
	return nil
}

// ReplaceAll deletes every ordered child of ROOT and inserts specs in order.
// It is best-effort sequential: on failure the document keeps whatever was
// done so far and the ids inserted before the failure are returned with the
// error. Linked slots of ROOT are kept.
func (d *Document) ReplaceAll(specs []*Spec) ([]string, error) {
	root := d.nodes[RootID]
	for _, id := range slices.Clone(root.Nodes) {
		if err := d.DeleteNode(id); err != nil {
			return nil, &OpError{Op: "replace_all", NodeID: id, Err: unwrapOp(err)}
		}
	}
	inserted := make([]string, 0, len(specs))
	for i, s := range specs {
		id, err := d.InsertSubtree(RootID, s)
		if err != nil {
			return inserted, &OpError{Op: "replace_all", NodeID: RootID, Err: fmt.Errorf("entry %d: %w", i, unwrapOp(err))}
		}
		inserted = append(inserted, id)
	}
	return inserted, nil
}

func unwrapOp(err error) error {
	if oe, ok := err.(*OpError); ok {
		return oe.Err
	}
	return err
}

func sortedSlots(m map[string]*Spec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
