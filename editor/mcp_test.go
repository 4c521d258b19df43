package editor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/ezpage/document"
	"github.com/hazyhaar/ezpage/registry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "ezpage-test", Version: "0.1.0"}

// mcpSession registers the editor tools and returns a connected client.
func mcpSession(t *testing.T) (*Editor, *mcp.ClientSession) {
	t.Helper()
	ed := newSQLiteEditor(t)

	srv := mcp.NewServer(testImpl, nil)
	ed.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return ed, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ApplyAndGetDocument(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "ezpage_apply_actions", map[string]any{
		"page_id": "home",
		"text":    "Here you go: " + heroEnvelope,
	})
	var report ApplyReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Applied != 1 || report.Nodes != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Text != "Here you go:" {
		t.Errorf("text = %q", report.Text)
	}

	raw := callTool(t, session, "ezpage_get_document", map[string]any{"page_id": "home"})
	doc, err := document.Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if len(doc.Root().Nodes) != 1 {
		t.Errorf("ROOT nodes = %v", doc.Root().Nodes)
	}
}

func TestMCP_ApplyFailureIsReported(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "ezpage_apply_actions", map[string]any{
		"page_id": "home",
		"text":    `<ezAction type="add" nodeId="ROOT">{"component":"Marquee"}</ezAction>`,
	})
	var report ApplyReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Applied != 0 || !strings.Contains(report.Error, "Marquee") {
		t.Errorf("report = %+v", report)
	}
}

func TestMCP_MissingPageID(t *testing.T) {
	_, session := mcpSession(t)
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ezpage_stats",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("missing page_id should be a tool error")
	}
}

func TestMCP_ListComponents(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "ezpage_list_components", map[string]any{})
	var descs []registry.Descriptor
	if err := json.Unmarshal([]byte(text), &descs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(descs) != registry.Builtin().Len() {
		t.Errorf("components = %d, want %d", len(descs), registry.Builtin().Len())
	}
}

func TestMCP_OutlineStatsHistory(t *testing.T) {
	ed, session := mcpSession(t)
	callTool(t, session, "ezpage_apply_actions", map[string]any{"page_id": "home", "text": heroEnvelope})

	outline := callTool(t, session, "ezpage_outline", map[string]any{"page_id": "home"})
	if !strings.Contains(outline, "Hero `n1`") || !strings.Contains(outline, "Welcome") {
		t.Errorf("outline = %q", outline)
	}

	var st Stats
	if err := json.Unmarshal([]byte(callTool(t, session, "ezpage_stats", map[string]any{"page_id": "home"})), &st); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Nodes != 2 || st.Types["Hero"] != 1 {
		t.Errorf("stats = %+v", st)
	}

	waitFor(t, func() bool {
		rows, _ := ed.History(context.Background(), "home", 10)
		return len(rows) == 1
	})
	var rows []ActionRecord
	if err := json.Unmarshal([]byte(callTool(t, session, "ezpage_history", map[string]any{"page_id": "home"})), &rows); err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].Kind != "add" {
		t.Errorf("history = %+v", rows)
	}
}

func TestMCP_SetNode(t *testing.T) {
	ed, session := mcpSession(t)
	callTool(t, session, "ezpage_apply_actions", map[string]any{"page_id": "home", "text": heroEnvelope})

	var got struct {
		NodeID      string `json:"node_id"`
		DisplayName string `json:"display_name"`
		Hidden      bool   `json:"hidden"`
	}
	text := callTool(t, session, "ezpage_set_node", map[string]any{
		"page_id": "home", "node_id": "n1", "display_name": "Top banner", "hidden": true,
	})
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NodeID != "n1" || got.DisplayName != "Top banner" || !got.Hidden {
		t.Errorf("node = %+v", got)
	}

	// An empty name restores the type name; hidden is left as is.
	text = callTool(t, session, "ezpage_set_node", map[string]any{"page_id": "home", "node_id": "n1", "display_name": ""})
	json.Unmarshal([]byte(text), &got)
	if got.DisplayName != "Hero" || !got.Hidden {
		t.Errorf("after reset = %+v", got)
	}

	s, _ := ed.Open(context.Background(), "home")
	if n, _ := s.Document().Node("n1"); n.DisplayName != "Hero" || !n.Hidden {
		t.Errorf("session node = %+v", n)
	}

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "ezpage_set_node",
		Arguments: map[string]any{"page_id": "home", "node_id": "ghost", "hidden": true},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("unknown node should be a tool error")
	}
}
