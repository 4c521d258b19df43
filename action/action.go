// CLAUDE:SUMMARY Action records of the <ezAction> protocol: kinds, payload decoding and validation, envelope encoding.
// Package action implements the edit protocol spoken by agents that change
// a page: tag-delimited JSON envelopes embedded in streamed text,
//
//	<ezAction type="add" nodeId="ROOT">{"component":"Hero","props":{"title":"Hi"}}</ezAction>
//
// the Parser that extracts them from a growing buffer exactly once, and the
// Executor that validates them against the component registry and applies
// them to a document.
package action

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/ezpage/document"
)

// Kind is the action type carried in the envelope's type attribute.
type Kind string

const (
	KindAdd        Kind = "add"
	KindUpdate     Kind = "update"
	KindDelete     Kind = "delete"
	KindMove       Kind = "move"
	KindReplaceAll Kind = "replace_all"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAdd, KindUpdate, KindDelete, KindMove, KindReplaceAll:
		return true
	}
	return false
}

// ComponentSpec names a component to instantiate. Props are merged over
// the component's defaults; Children are instantiated under it in order.
type ComponentSpec struct {
	Component string          `json:"component"`
	Props     document.Props  `json:"props,omitempty"`
	Children  []ComponentSpec `json:"children,omitempty"`
}

// Action is one proposed edit.
type Action struct {
	Kind   Kind   `json:"kind"`
	NodeID string `json:"nodeId,omitempty"` // parent for add, subject otherwise
	Seq    int    `json:"seq"`              // position in the stream

	Component   *ComponentSpec  `json:"component,omitempty"`   // add
	Props       document.Props  `json:"props,omitempty"`       // update
	NewParentID string          `json:"newParentId,omitempty"` // move
	Index       *int            `json:"index,omitempty"`       // add, move; nil appends
	Components  []ComponentSpec `json:"components,omitempty"`  // replace_all
}

// payload is the union of every kind's JSON body.
type payload struct {
	Component   string          `json:"component"`
	Props       document.Props  `json:"props"`
	Children    []ComponentSpec `json:"children"`
	NewParentID string          `json:"newParentId"`
	Index       *int            `json:"index"`
	Components  []ComponentSpec `json:"components"`
}

// Decode builds an Action from envelope attributes and body. Missing
// required fields and undecodable bodies return an error wrapping
// ErrMalformedAction.
func Decode(kind Kind, nodeID, body string) (Action, error) {
	a := Action{Kind: kind, NodeID: nodeID}
	if !kind.Valid() {
		return a, fmt.Errorf("%w: unknown type %q", ErrMalformedAction, kind)
	}

	var p payload
	body = strings.TrimSpace(body)
	if body != "" {
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return a, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		if dec.More() {
			return a, fmt.Errorf("%w: trailing data after payload", ErrMalformedAction)
		}
	}

	switch kind {
	case KindAdd:
		if p.Component == "" {
			return a, fmt.Errorf("%w: add without component", ErrMalformedAction)
		}
		a.Component = &ComponentSpec{Component: p.Component, Props: p.Props, Children: p.Children}
		a.Index = p.Index
	case KindUpdate:
		if p.Props == nil {
			return a, fmt.Errorf("%w: update without props", ErrMalformedAction)
		}
		a.Props = p.Props
	case KindMove:
		if p.NewParentID == "" {
			return a, fmt.Errorf("%w: move without newParentId", ErrMalformedAction)
		}
		a.NewParentID = p.NewParentID
		a.Index = p.Index
	case KindReplaceAll:
		if p.Components == nil {
			return a, fmt.Errorf("%w: replace_all without components", ErrMalformedAction)
		}
		a.Components = p.Components
	}
	if kind != KindReplaceAll && nodeID == "" {
		return a, fmt.Errorf("%w: %s without nodeId", ErrMalformedAction, kind)
	}
	return a, nil
}

// Envelope renders a as protocol text.
func (a Action) Envelope() string {
	var p any
	switch a.Kind {
	case KindAdd:
		body := map[string]any{}
		if a.Component != nil {
			body["component"] = a.Component.Component
			if a.Component.Props != nil {
				body["props"] = a.Component.Props
			}
			if a.Component.Children != nil {
				body["children"] = a.Component.Children
			}
		}
		if a.Index != nil {
			body["index"] = *a.Index
		}
		p = body
	case KindUpdate:
		p = map[string]any{"props": a.Props}
	case KindMove:
		body := map[string]any{"newParentId": a.NewParentID}
		if a.Index != nil {
			body["index"] = *a.Index
		}
		p = body
	case KindReplaceAll:
		comps := a.Components
		if comps == nil {
			comps = []ComponentSpec{}
		}
		p = map[string]any{"components": comps}
	default:
		p = map[string]any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(p)

	var b strings.Builder
	b.WriteString(`<ezAction type="`)
	b.WriteString(string(a.Kind))
	b.WriteString(`"`)
	if a.NodeID != "" {
		b.WriteString(` nodeId="`)
		b.WriteString(a.NodeID)
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.Write(bytes.TrimSpace(buf.Bytes()))
	b.WriteString("</ezAction>")
	return b.String()
}

// String is a short human form used in logs and errors.
func (a Action) String() string {
	s := "#" + strconv.Itoa(a.Seq) + " " + string(a.Kind)
	if a.NodeID != "" {
		s += " " + a.NodeID
	}
	return s
}
