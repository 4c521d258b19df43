package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ezpage/document"
)

// File is the YAML form of a component table.
type File struct {
	// Canonical overrides the ROOT container type. Default: Container.
	Canonical string `yaml:"canonical"`
	// Builtin includes the builtin table under the file entries. Default: true.
	Builtin    *bool       `yaml:"builtin"`
	Components []FileEntry `yaml:"components"`
}

// FileEntry is one descriptor in a File. Absent can_drag/can_delete mean
// true.
type FileEntry struct {
	Name         string         `yaml:"name"`
	DisplayName  string         `yaml:"display_name"`
	IsCanvas     bool           `yaml:"is_canvas"`
	CanDrag      *bool          `yaml:"can_drag"`
	CanDelete    *bool          `yaml:"can_delete"`
	DefaultProps map[string]any `yaml:"default_props"`
	Tag          string         `yaml:"tag"`
	TextProp     string         `yaml:"text_prop"`
	Slots        []Slot         `yaml:"slots"`
}

func (e FileEntry) descriptor() Descriptor {
	d := Descriptor{
		Name:         e.Name,
		DisplayName:  e.DisplayName,
		IsCanvas:     e.IsCanvas,
		CanDrag:      e.CanDrag == nil || *e.CanDrag,
		CanDelete:    e.CanDelete == nil || *e.CanDelete,
		DefaultProps: document.Props(e.DefaultProps).Clone(),
		Tag:          e.Tag,
		TextProp:     e.TextProp,
		Slots:        e.Slots,
	}
	return d
}

// Parse builds a registry from YAML data. File entries replace builtin
// entries of the same name.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	canonical := f.Canonical
	if canonical == "" {
		canonical = DefaultCanonical
	}

	var descs []Descriptor
	index := make(map[string]int)
	if f.Builtin == nil || *f.Builtin {
		for _, d := range builtinDescriptors() {
			index[d.Name] = len(descs)
			descs = append(descs, d)
		}
	}
	seen := make(map[string]bool, len(f.Components))
	for _, e := range f.Components {
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: duplicate %q in file", ErrInvalidDescriptor, e.Name)
		}
		seen[e.Name] = true
		d := e.descriptor()
		if i, ok := index[d.Name]; ok {
			descs[i] = d
			continue
		}
		index[d.Name] = len(descs)
		descs = append(descs, d)
	}
	return newRegistry(canonical, descs)
}

// LoadFile reads a YAML component table from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	return Parse(data)
}
