// CLAUDE:SUMMARY Component registry: string-keyed descriptor table (canvas flag, drag/delete rules, default props, slots), builtin seed, Rules adapter.
// Package registry is the table of component types a page may contain.
//
// The table is built once at startup, from the builtin seed or from a YAML
// file overlaying it, and is read-only afterwards: every accessor returns
// copies. Lookups of unknown names return false rather than an error so the
// action executor can decide per action whether that is fatal.
//
// Usage:
//
//	reg, err := registry.LoadFile("components.yaml")
//	desc, ok := reg.Resolve("Hero")
//	doc := document.New(reg.Canonical(), desc.DefaultProps, document.WithRules(reg.Rules()))
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hazyhaar/ezpage/document"
)

// DefaultCanonical is the container type used for ROOT unless configured.
const DefaultCanonical = "Container"

// Slot is a named linked drop zone of a component, instantiated with a node
// of Type when the component is added.
type Slot struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Descriptor describes one component type.
type Descriptor struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"displayName"`
	IsCanvas     bool           `json:"isCanvas"`
	CanDrag      bool           `json:"canDrag"`
	CanDelete    bool           `json:"canDelete"`
	DefaultProps document.Props `json:"defaultProps"`

	// Tag is the HTML element the preview renderer emits. Default: div.
	Tag string `json:"tag,omitempty"`
	// TextProp names the prop rendered as element text, if any.
	TextProp string `json:"textProp,omitempty"`
	Slots    []Slot `json:"slots,omitempty"`
}

func (d Descriptor) clone() Descriptor {
	d.DefaultProps = d.DefaultProps.Clone()
	d.Slots = slices.Clone(d.Slots)
	return d
}

// ErrInvalidDescriptor is returned by New for empty, duplicate or
// inconsistent entries.
var ErrInvalidDescriptor = errors.New("registry: invalid descriptor")

// Registry is an immutable name -> Descriptor table.
type Registry struct {
	byName    map[string]Descriptor
	canonical string
}

// New builds a registry from descs with DefaultCanonical as the canonical
// container.
func New(descs ...Descriptor) (*Registry, error) {
	return newRegistry(DefaultCanonical, descs)
}

func newRegistry(canonical string, descs []Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs)), canonical: canonical}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidDescriptor, d.Name)
		}
		if d.DisplayName == "" {
			d.DisplayName = d.Name
		}
		if d.Tag == "" {
			d.Tag = "div"
		}
		r.byName[d.Name] = d.clone()
	}

	for _, d := range r.byName {
		seen := make(map[string]bool, len(d.Slots))
		for _, s := range d.Slots {
			if s.Name == "" || seen[s.Name] {
				return nil, fmt.Errorf("%w: %s: empty or repeated slot %q", ErrInvalidDescriptor, d.Name, s.Name)
			}
			seen[s.Name] = true
			st, ok := r.byName[s.Type]
			if !ok {
				return nil, fmt.Errorf("%w: %s slot %s: unknown type %q", ErrInvalidDescriptor, d.Name, s.Name, s.Type)
			}
			if len(st.Slots) > 0 {
				return nil, fmt.Errorf("%w: %s slot %s: type %q has slots itself", ErrInvalidDescriptor, d.Name, s.Name, s.Type)
			}
		}
	}

	if c, ok := r.byName[canonical]; !ok || !c.IsCanvas {
		return nil, fmt.Errorf("%w: canonical container %q missing or not a canvas", ErrInvalidDescriptor, canonical)
	}
	return r, nil
}

// Resolve returns the descriptor for name. The bool is false for unknown
// names.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Canonical returns the container type used for ROOT and for default
// document detection.
func (r *Registry) Canonical() string { return r.canonical }

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int { return len(r.byName) }

// Descriptors returns copies of every descriptor sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, n := range r.Names() {
		out = append(out, r.byName[n].clone())
	}
	return out
}

// CanDelete reports the delete rule for typ. Unknown types are deletable so
// stray nodes can always be cleaned up.
func (r *Registry) CanDelete(typ string) bool {
	d, ok := r.byName[typ]
	return !ok || d.CanDelete
}

// CanDrag reports the drag rule for typ. Unknown types are draggable.
func (r *Registry) CanDrag(typ string) bool {
	d, ok := r.byName[typ]
	return !ok || d.CanDrag
}

// Rules exposes the per-type structural rules to a document.
func (r *Registry) Rules() document.Rules { return r }

// NewDocument returns the default document: a ROOT of the canonical type
// carrying its default props, governed by the registry's rules.
func (r *Registry) NewDocument(opts ...document.Option) *document.Document {
	c := r.byName[r.canonical]
	opts = append([]document.Option{document.WithRules(r)}, opts...)
	return document.New(c.Name, c.DefaultProps, opts...)
}
