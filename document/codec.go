package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// wireNode is the persisted shape of one node.
type wireNode struct {
	Type        wireType          `json:"type"`
	IsCanvas    bool              `json:"isCanvas"`
	Props       Props             `json:"props"`
	DisplayName string            `json:"displayName"`
	Custom      Props             `json:"custom"`
	Parent      *string           `json:"parent"`
	Hidden      bool              `json:"hidden"`
	Nodes       []string          `json:"nodes"`
	LinkedNodes map[string]string `json:"linkedNodes"`
}

// wireType is {"resolvedName": T}. A bare string is accepted on decode for
// plain HTML-element nodes written by older editors.
type wireType struct {
	ResolvedName string `json:"resolvedName"`
}

func (t *wireType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.ResolvedName = s
		return nil
	}
	var obj struct {
		ResolvedName string `json:"resolvedName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.ResolvedName = obj.ResolvedName
	return nil
}

// Marshal serializes d to its persisted JSON form. Output is deterministic:
// node ids, prop keys and slot names are emitted in sorted order.
func Marshal(d *Document) ([]byte, error) {
	out := make(map[string]wireNode, len(d.nodes))
	for id, n := range d.nodes {
		w := wireNode{
			Type:        wireType{ResolvedName: n.Type},
			IsCanvas:    n.IsCanvas,
			Props:       n.Props,
			DisplayName: n.DisplayName,
			Custom:      n.Custom,
			Hidden:      n.Hidden,
			Nodes:       n.Nodes,
			LinkedNodes: n.LinkedNodes,
		}
		if w.Props == nil {
			w.Props = Props{}
		}
		if w.Custom == nil {
			w.Custom = Props{}
		}
		if w.Nodes == nil {
			w.Nodes = []string{}
		}
		if w.LinkedNodes == nil {
			w.LinkedNodes = map[string]string{}
		}
		if n.Parent != "" {
			parent := n.Parent
			w.Parent = &parent
		}
		out[id] = w
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("document: marshal: %w", err)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return Marshal(d)
}

// Unmarshal restores a Document from its persisted form. The stored
// parent/child structure is trusted as-is; call Validate for a full check.
// Numbers in props are kept as json.Number so they round-trip exactly.
func Unmarshal(data []byte, opts ...Option) (*Document, error) {
	var raw map[string]*wireNode
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedDocument)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedDocument)
	}
	root, ok := raw[RootID]
	if !ok || root == nil {
		return nil, fmt.Errorf("%w: ROOT missing", ErrMalformedDocument)
	}
	if root.Parent != nil && *root.Parent != "" {
		return nil, fmt.Errorf("%w: ROOT has parent %q", ErrMalformedDocument, *root.Parent)
	}

	d := newDocument(opts)
	for id, w := range raw {
		if w == nil {
			return nil, fmt.Errorf("%w: node %q is null", ErrMalformedDocument, id)
		}
		n := &Node{
			ID:          id,
			Type:        w.Type.ResolvedName,
			DisplayName: w.DisplayName,
			Props:       w.Props,
			Custom:      w.Custom,
			Nodes:       w.Nodes,
			LinkedNodes: w.LinkedNodes,
			IsCanvas:    w.IsCanvas,
			Hidden:      w.Hidden,
		}
		if w.Parent != nil {
			n.Parent = *w.Parent
		}
		if n.Props == nil {
			n.Props = Props{}
		}
		if n.Custom == nil {
			n.Custom = Props{}
		}
		if n.Nodes == nil {
			n.Nodes = []string{}
		}
		if n.LinkedNodes == nil {
			n.LinkedNodes = map[string]string{}
		}
		d.nodes[id] = n
	}
	return d, nil
}

// IsDefault reports whether data is a never-edited document: ROOT is of the
// canonical container type and has no children. Undecodable input is
// malformed, not default.
//
// A page the user emptied by hand looks the same; callers that must tell the
// two apart keep a separate touched marker (see editor).
func IsDefault(data []byte, canonical string) bool {
	var raw map[string]*struct {
		Type  wireType `json:"type"`
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	root, ok := raw[RootID]
	if !ok || root == nil {
		return false
	}
	return root.Type.ResolvedName == canonical && len(root.Nodes) == 0
}
