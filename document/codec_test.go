package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMarshal_WireShape(t *testing.T) {
	d := seedTree(t)
	data := mustMarshal(t, d)

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	root := raw[RootID]
	if string(root["type"]) != `{"resolvedName":"Container"}` {
		t.Errorf("type = %s", root["type"])
	}
	if string(root["parent"]) != "null" {
		t.Errorf("ROOT parent = %s, want null", root["parent"])
	}
	if string(root["nodes"]) != `["n1"]` {
		t.Errorf("nodes = %s", root["nodes"])
	}
	leaf := raw["n4"]
	for _, key := range []string{"isCanvas", "props", "displayName", "custom", "parent", "hidden", "nodes", "linkedNodes"} {
		if _, ok := leaf[key]; !ok {
			t.Errorf("leaf missing %q", key)
		}
	}
	if string(leaf["nodes"]) != "[]" || string(leaf["linkedNodes"]) != "{}" || string(leaf["props"]) != "{}" {
		t.Errorf("leaf empties = %s %s %s", leaf["nodes"], leaf["linkedNodes"], leaf["props"])
	}
	if string(leaf["parent"]) != `"n3"` {
		t.Errorf("leaf parent = %s", leaf["parent"])
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	d := seedTree(t)
	d.SetProps("n2", Props{"z": 1, "a": []any{"x", map[string]any{"k2": 1, "k1": 2}}})
	first := mustMarshal(t, d)
	for range 10 {
		if !bytes.Equal(first, mustMarshal(t, d)) {
			t.Fatal("output differs between calls")
		}
	}
	viaMethod, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, viaMethod) {
		t.Error("MarshalJSON differs from Marshal")
	}
}

func TestRoundTrip(t *testing.T) {
	d := newTestDoc(t)
	d.InsertSubtree(RootID, &Spec{
		Type:     "Section",
		IsCanvas: true,
		Hidden:   true,
		Custom:   Props{"editorNote": "keep"},
		Props:    Props{"count": 3, "ratio": 0.25, "big": json.Number("12345678901234567890"), "tags": []any{"a", nil, true}},
		Children: []*Spec{{Type: "Text", DisplayName: "Intro", Props: Props{"text": "<b>hi</b>"}}},
	})
	d.InsertSubtree(RootID, &Spec{
		Type: "Tabs",
		Linked: map[string]*Spec{
			"tab-0": {Type: "Container", IsCanvas: true, Children: []*Spec{{Type: "Button"}}},
			"tab-1": {Type: "Container", IsCanvas: true},
		},
	})

	data := mustMarshal(t, d)
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(d, back) {
		t.Fatal("round trip not structurally equal")
	}
	if err := back.Validate(); err != nil {
		t.Fatal(err)
	}
	if again := mustMarshal(t, back); !bytes.Equal(data, again) {
		t.Errorf("re-serialized bytes differ:\n%s\n%s", data, again)
	}
	n, _ := back.Node("n1")
	if n.Props["big"] != json.Number("12345678901234567890") {
		t.Errorf("big = %#v", n.Props["big"])
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name, data string
	}{
		{"not json", `{"ROOT":`},
		{"array", `[]`},
		{"null", `null`},
		{"no root", `{"a":{"type":{"resolvedName":"Text"},"parent":null}}`},
		{"root has parent", `{"ROOT":{"type":{"resolvedName":"Container"},"parent":"x"}}`},
		{"null node", `{"ROOT":{"type":{"resolvedName":"Container"}},"x":null}`},
		{"bad type", `{"ROOT":{"type":42}}`},
		{"trailing object", `{"ROOT":{"type":{"resolvedName":"Container"}}} {}`},
		{"trailing brace", `{"ROOT":{"type":{"resolvedName":"Container"}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !errors.Is(err, ErrMalformedDocument) {
				t.Errorf("err = %v, want ErrMalformedDocument", err)
			}
		})
	}
}

func TestUnmarshal_LenientFields(t *testing.T) {
	data := `{
		"ROOT": {"type": {"resolvedName": "Container"}, "isCanvas": true, "parent": null, "nodes": ["a"]},
		"a": {"type": "div", "parent": "ROOT", "props": {"n": 1.50}}
	}`
	d, err := Unmarshal([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.Node("a")
	if err != nil {
		t.Fatal(err)
	}
	if a.Type != "div" {
		t.Errorf("type = %q, want div", a.Type)
	}
	if a.Props["n"] != json.Number("1.50") {
		t.Errorf("n = %#v", a.Props["n"])
	}
	if a.Nodes == nil || a.LinkedNodes == nil || a.Custom == nil {
		t.Error("missing collections not defaulted")
	}
	if err := d.Validate(); err != nil {
		t.Error(err)
	}
	if !strings.Contains(string(mustMarshal(t, d)), `"type":{"resolvedName":"div"}`) {
		t.Error("bare type not normalized on write")
	}
}

func TestIsDefault(t *testing.T) {
	fresh := mustMarshal(t, New("Container", Props{"padding": "8px"}))
	if !IsDefault(fresh, "Container") {
		t.Error("fresh document not default")
	}
	if IsDefault(fresh, "Section") {
		t.Error("non-canonical root reported default")
	}

	d := New("Container", nil)
	d.SetProps(RootID, Props{"background": "#000"})
	if !IsDefault(mustMarshal(t, d), "Container") {
		t.Error("prop values must not affect detection")
	}
	d.InsertSubtree(RootID, &Spec{Type: "Text"})
	if IsDefault(mustMarshal(t, d), "Container") {
		t.Error("document with a child reported default")
	}

	for _, bad := range []string{``, `{`, `{}`, `{"a":{}}`} {
		if IsDefault([]byte(bad), "Container") {
			t.Errorf("IsDefault(%q) = true", bad)
		}
	}
}
