package document

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

type denyRules struct {
	noDelete map[string]bool
	noDrag   map[string]bool
}

func (r denyRules) CanDelete(typ string) bool { return !r.noDelete[typ] }
func (r denyRules) CanDrag(typ string) bool   { return !r.noDrag[typ] }

func mustMarshal(t *testing.T, d *Document) []byte {
	t.Helper()
	data, err := Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func childIDs(t *testing.T, d *Document, id string) []string {
	t.Helper()
	n, err := d.Node(id)
	if err != nil {
		t.Fatalf("Node(%s): %v", id, err)
	}
	return n.Nodes
}

func TestInsertSubtree_AssignsIDsAndAppends(t *testing.T) {
	d := seedTree(t)
	id, err := d.InsertSubtree(RootID, &Spec{Type: "Footer"})
	if err != nil {
		t.Fatalf("InsertSubtree: %v", err)
	}
	if id != "n5" {
		t.Errorf("id = %q, want n5", id)
	}
	if got := childIDs(t, d, RootID); !slices.Equal(got, []string{"n1", "n5"}) {
		t.Errorf("ROOT nodes = %v", got)
	}
	n, _ := d.Node(id)
	if n.Parent != RootID || n.DisplayName != "Footer" {
		t.Errorf("node = %+v", n)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertSubtreeAt_ClampsIndex(t *testing.T) {
	tests := []struct {
		index int
		want  []string
	}{
		{-5, []string{"n5", "n2", "n3"}},
		{0, []string{"n5", "n2", "n3"}},
		{1, []string{"n2", "n5", "n3"}},
		{2, []string{"n2", "n3", "n5"}},
		{99, []string{"n2", "n3", "n5"}},
		{Append, []string{"n2", "n3", "n5"}},
	}
	for _, tt := range tests {
		d := seedTree(t)
		if _, err := d.InsertSubtreeAt("n1", &Spec{Type: "Spacer"}, tt.index); err != nil {
			t.Fatalf("index %d: %v", tt.index, err)
		}
		if got := childIDs(t, d, "n1"); !slices.Equal(got, tt.want) {
			t.Errorf("index %d: nodes = %v, want %v", tt.index, got, tt.want)
		}
	}
}

func TestInsertSubtree_Failures(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		spec   *Spec
		want   error
	}{
		{"missing parent", "ghost", &Spec{Type: "Text"}, ErrNodeNotFound},
		{"leaf parent", "n2", &Spec{Type: "Text"}, ErrNotCanvas},
		{"nil spec", RootID, nil, ErrInvalidSpec},
		{"empty type", RootID, &Spec{}, ErrInvalidSpec},
		{"id taken", RootID, &Spec{ID: "n2", Type: "Text"}, ErrDuplicateID},
		{"id is ROOT", RootID, &Spec{ID: RootID, Type: "Text"}, ErrDuplicateID},
		{"id repeated in spec", RootID, &Spec{ID: "x", Type: "Card", IsCanvas: true, Children: []*Spec{{ID: "x", Type: "Text"}}}, ErrDuplicateID},
		{"children under leaf spec", RootID, &Spec{Type: "Text", Children: []*Spec{{Type: "Text"}}}, ErrNotCanvas},
		{"bad nested child", RootID, &Spec{Type: "Card", IsCanvas: true, Children: []*Spec{{Type: "Text"}, nil}}, ErrInvalidSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := seedTree(t)
			before := mustMarshal(t, d)
			_, err := d.InsertSubtree(tt.parent, tt.spec)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if after := mustMarshal(t, d); !bytes.Equal(before, after) {
				t.Error("document changed after failed insert")
			}
		})
	}
}

func TestInsertSubtree_ExplicitIDsKept(t *testing.T) {
	d := seedTree(t)
	id, err := d.InsertSubtree(RootID, &Spec{
		ID: "hero", Type: "Card", IsCanvas: true,
		Children: []*Spec{{Type: "Text"}, {ID: "btn", Type: "Button"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "hero" {
		t.Errorf("id = %q", id)
	}
	if got := childIDs(t, d, "hero"); !slices.Equal(got, []string{"n5", "btn"}) {
		t.Errorf("nodes = %v", got)
	}
}

func TestInsertSubtree_GeneratorCollision(t *testing.T) {
	calls := 0
	gen := func() string {
		calls++
		if calls < 3 {
			return "dup"
		}
		return "fresh"
	}
	d := New("Container", nil, WithIDGenerator(gen))
	if _, err := d.InsertSubtree(RootID, &Spec{ID: "dup", Type: "Text"}); err != nil {
		t.Fatal(err)
	}
	id, err := d.InsertSubtree(RootID, &Spec{Type: "Text"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "fresh" {
		t.Errorf("id = %q, want fresh", id)
	}
}

func TestSetProps_ShallowMerge(t *testing.T) {
	d := seedTree(t)
	d.SetProps("n2", Props{"level": 2, "style": map[string]any{"color": "red"}})
	if err := d.SetProps("n2", Props{"text": "Bye", "style": map[string]any{"size": 3}}); err != nil {
		t.Fatal(err)
	}
	n, _ := d.Node("n2")
	if got, _ := n.Props.String("text"); got != "Bye" {
		t.Errorf("text = %q", got)
	}
	if n.Props["level"] != 2 {
		t.Errorf("level = %v, want preserved", n.Props["level"])
	}
	style := n.Props["style"].(map[string]any)
	if _, ok := style["color"]; ok {
		t.Error("merge is deep, want shallow")
	}
	if err := d.SetProps("ghost", Props{}); !IsNotFound(err) {
		t.Errorf("err = %v", err)
	}
}

func TestSetDisplayName(t *testing.T) {
	d := seedTree(t)
	if err := d.SetDisplayName("n2", "Intro title"); err != nil {
		t.Fatal(err)
	}
	if n, _ := d.Node("n2"); n.DisplayName != "Intro title" {
		t.Errorf("display name = %q", n.DisplayName)
	}
	if err := d.SetDisplayName("n2", ""); err != nil {
		t.Fatal(err)
	}
	if n, _ := d.Node("n2"); n.DisplayName != "Heading" {
		t.Errorf("display name = %q, want type name", n.DisplayName)
	}
	if err := d.SetDisplayName("ghost", "x"); !IsNotFound(err) {
		t.Errorf("err = %v", err)
	}
}

func TestDeleteNode_RemovesSubtree(t *testing.T) {
	d := seedTree(t)
	if err := d.DeleteNode("n3"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"n3", "n4"} {
		if d.Has(id) {
			t.Errorf("%s still present", id)
		}
	}
	if got := childIDs(t, d, "n1"); !slices.Equal(got, []string{"n2"}) {
		t.Errorf("n1 nodes = %v", got)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteNode_LinkedSlot(t *testing.T) {
	d := newTestDoc(t)
	cols, _ := d.InsertSubtree(RootID, &Spec{
		Type: "Columns",
		Linked: map[string]*Spec{
			"column-0": {Type: "Container", IsCanvas: true, Children: []*Spec{{Type: "Text"}}},
			"column-1": {Type: "Container", IsCanvas: true},
		},
	})
	if d.Count() != 5 {
		t.Fatalf("Count = %d", d.Count())
	}
	// column-0 is n2 holding n3.
	if err := d.DeleteNode("n2"); err != nil {
		t.Fatal(err)
	}
	n, _ := d.Node(cols)
	if _, ok := n.LinkedNodes["column-0"]; ok {
		t.Error("slot still set")
	}
	if d.Has("n3") {
		t.Error("slot child survived")
	}
	if err := d.DeleteNode(cols); err != nil {
		t.Fatal(err)
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteNode_Refused(t *testing.T) {
	d := seedTree(t)
	d.rules = denyRules{noDelete: map[string]bool{"Card": true}}
	before := mustMarshal(t, d)

	if err := d.DeleteNode(RootID); !errors.Is(err, ErrRootDeletion) {
		t.Errorf("ROOT: err = %v", err)
	}
	if err := d.DeleteNode("n3"); !errors.Is(err, ErrRootDeletion) {
		t.Errorf("Card: err = %v", err)
	}
	if err := d.DeleteNode("ghost"); !IsNotFound(err) {
		t.Errorf("ghost: err = %v", err)
	}
	if !bytes.Equal(before, mustMarshal(t, d)) {
		t.Error("document changed")
	}
	if err := d.DeleteNode("n4"); err != nil {
		t.Errorf("child of undeletable: %v", err)
	}
}

func TestMoveNode(t *testing.T) {
	d := seedTree(t)
	// Heading n2 from Section into Card after Text.
	if err := d.MoveNode("n2", "n3", Append); err != nil {
		t.Fatal(err)
	}
	if got := childIDs(t, d, "n3"); !slices.Equal(got, []string{"n4", "n2"}) {
		t.Errorf("n3 nodes = %v", got)
	}
	if got := childIDs(t, d, "n1"); !slices.Equal(got, []string{"n3"}) {
		t.Errorf("n1 nodes = %v", got)
	}
	n, _ := d.Node("n2")
	if n.Parent != "n3" {
		t.Errorf("parent = %q", n.Parent)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMoveNode_SameParentReorder(t *testing.T) {
	d := newTestDoc(t)
	for range 4 {
		d.InsertSubtree(RootID, &Spec{Type: "Text"})
	}
	// [n1 n2 n3 n4] -> move n1 to index 2 of [n2 n3 n4] -> [n2 n3 n1 n4]
	if err := d.MoveNode("n1", RootID, 2); err != nil {
		t.Fatal(err)
	}
	if got := childIDs(t, d, RootID); !slices.Equal(got, []string{"n2", "n3", "n1", "n4"}) {
		t.Errorf("nodes = %v", got)
	}
	if err := d.MoveNode("n4", RootID, -1); err != nil {
		t.Fatal(err)
	}
	if got := childIDs(t, d, RootID); !slices.Equal(got, []string{"n4", "n2", "n3", "n1"}) {
		t.Errorf("nodes = %v", got)
	}
}

func TestMoveNode_OutOfLinkedSlot(t *testing.T) {
	d := newTestDoc(t)
	cols, _ := d.InsertSubtree(RootID, &Spec{
		Type:   "Tabs",
		Linked: map[string]*Spec{"tab-0": {Type: "Container", IsCanvas: true}},
	})
	if err := d.MoveNode("n2", RootID, Append); err != nil {
		t.Fatal(err)
	}
	n, _ := d.Node(cols)
	if len(n.LinkedNodes) != 0 {
		t.Errorf("linked = %v", n.LinkedNodes)
	}
	if got := childIDs(t, d, RootID); !slices.Equal(got, []string{cols, "n2"}) {
		t.Errorf("ROOT nodes = %v", got)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMoveNode_Rejected(t *testing.T) {
	tests := []struct {
		name, node, parent string
		want               error
	}{
		{"root", RootID, "n1", ErrRootMove},
		{"into itself", "n1", "n1", ErrCycle},
		{"into child", "n1", "n3", ErrCycle},
		{"into grandchild", "n1", "n4", ErrCycle},
		{"leaf target", "n4", "n2", ErrNotCanvas},
		{"missing node", "ghost", RootID, ErrNodeNotFound},
		{"missing parent", "n2", "ghost", ErrNodeNotFound},
		{"not draggable", "n2", RootID, ErrNotDraggable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := seedTree(t)
			d.rules = denyRules{noDrag: map[string]bool{"Heading": true}}
			before := d.Clone()
			beforeJSON := mustMarshal(t, d)

			err := d.MoveNode(tt.node, tt.parent, 0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !Equal(before, d) {
				t.Error("document not structurally equal after rejected move")
			}
			if !bytes.Equal(beforeJSON, mustMarshal(t, d)) {
				t.Error("document bytes changed after rejected move")
			}
		})
	}
}

func TestReplaceAll(t *testing.T) {
	d := seedTree(t)
	got, err := d.ReplaceAll([]*Spec{{Type: "Navbar"}, {Type: "Section", IsCanvas: true, Children: []*Spec{{Type: "Text"}}}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"n5", "n6"}) {
		t.Errorf("inserted = %v", got)
	}
	if d.Count() != 4 {
		t.Errorf("Count = %d, want 4", d.Count())
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestReplaceAll_PartialOnFailure(t *testing.T) {
	d := seedTree(t)
	got, err := d.ReplaceAll([]*Spec{{Type: "Navbar"}, {ID: "n1", Type: "Text"}, {Type: "Footer"}})
	// n1 was deleted first, so the explicit id is free again.
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("inserted = %v", got)
	}

	got, err = d.ReplaceAll([]*Spec{{Type: "Navbar"}, {Type: ""}, {Type: "Footer"}})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err = %v, want ErrInvalidSpec", err)
	}
	if len(got) != 1 {
		t.Errorf("inserted = %v, want one", got)
	}
	if kids := childIDs(t, d, RootID); len(kids) != 1 {
		t.Errorf("ROOT nodes = %v", kids)
	}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMutations_PreserveInvariants(t *testing.T) {
	d := newTestDoc(t)
	steps := []func() error{
		func() error { _, err := d.InsertSubtree(RootID, &Spec{Type: "Section", IsCanvas: true}); return err },
		func() error { _, err := d.InsertSubtree("n1", &Spec{Type: "Card", IsCanvas: true}); return err },
		func() error { _, err := d.InsertSubtreeAt("n2", &Spec{Type: "Text"}, 0); return err },
		func() error {
			_, err := d.InsertSubtree(RootID, &Spec{Type: "Columns", Linked: map[string]*Spec{"column-0": {Type: "Container", IsCanvas: true}}})
			return err
		},
		func() error { return d.MoveNode("n2", "n5", 0) },
		func() error { return d.MoveNode("n3", RootID, 0) },
		func() error { return d.SetProps("n3", Props{"text": "x"}) },
		func() error { return d.DeleteNode("n4") },
		func() error { return d.MoveNode("n1", "n3", 0) }, // refused: leaf
		func() error { return d.DeleteNode("n1") },
	}
	for i, step := range steps {
		err := step()
		if err != nil && !IsStructural(err) {
			t.Fatalf("step %d: %v", i, err)
		}
		if verr := d.Validate(); verr != nil {
			t.Fatalf("after step %d: %v", i, verr)
		}
	}
	if d.Count() != 2 {
		t.Errorf("Count = %d, want 2 (ROOT and text)", d.Count())
	}
}
