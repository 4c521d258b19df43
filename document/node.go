package document

import (
	"maps"
	"slices"
)

// RootID is the reserved id of a document's single top-level node.
const RootID = "ROOT"

// Node is one component instance in a page.
type Node struct {
	ID          string
	Type        string // component type name, resolved against the registry by callers
	DisplayName string // cosmetic override
	Props       Props
	Custom      Props             // opaque passthrough bag
	Parent      string            // empty only for ROOT
	Nodes       []string          // ordered child ids
	LinkedNodes map[string]string // named slot -> child id; never also in Nodes
	IsCanvas    bool
	Hidden      bool
}

// IsRoot reports whether n is the document root.
func (n *Node) IsRoot() bool { return n.ID == RootID }

// Slots returns the linked slot names in sorted order.
func (n *Node) Slots() []string {
	return slices.Sorted(maps.Keys(n.LinkedNodes))
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := *n
	c.Props = n.Props.Clone()
	c.Custom = n.Custom.Clone()
	c.Nodes = slices.Clone(n.Nodes)
	if c.Nodes == nil {
		c.Nodes = []string{}
	}
	c.LinkedNodes = maps.Clone(n.LinkedNodes)
	if c.LinkedNodes == nil {
		c.LinkedNodes = map[string]string{}
	}
	return &c
}

// slotOf returns the linked slot holding childID, if any.
func (n *Node) slotOf(childID string) (string, bool) {
	for slot, id := range n.LinkedNodes {
		if id == childID {
			return slot, true
		}
	}
	return "", false
}

// detach removes childID from n's ordered children or from its linked slot.
func (n *Node) detach(childID string) {
	if i := slices.Index(n.Nodes, childID); i >= 0 {
		n.Nodes = slices.Delete(n.Nodes, i, i+1)
		return
	}
	if slot, ok := n.slotOf(childID); ok {
		delete(n.LinkedNodes, slot)
	}
}

// clampIndex maps an arbitrary insertion index onto [0, n].
func clampIndex(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}
