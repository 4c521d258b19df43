package document

import (
	"encoding/json"
	"slices"
)

// Props is an opaque property bag. Values are JSON-compatible: nil, bool,
// string, json.Number or float64, []any and map[string]any. The document
// never interprets them.
type Props map[string]any

// Clone returns a deep copy of p. A nil Props clones to an empty one.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge shallow-merges delta into p: keys present in delta overwrite, other
// keys are preserved. Values are deep-copied.
func (p Props) Merge(delta Props) {
	for k, v := range delta {
		p[k] = cloneValue(v)
	}
}

// String returns the value at key when it is a string.
func (p Props) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Keys returns the property names in sorted order.
func (p Props) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Props:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
