package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/ezpage/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the ezpage tools on an MCP server.
func (e *Editor) RegisterMCP(srv *mcp.Server) {
	e.registerGetDocument(srv)
	e.registerApplyActions(srv)
	e.registerListComponents(srv)
	e.registerOutline(srv)
	e.registerStats(srv)
	e.registerHistory(srv)
	e.registerSetNode(srv)
}

// addTool registers endpoint behind the common tool middleware.
func (e *Editor) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(recoverTool, e.logTool(tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

// recoverTool turns a panic into a tool error so one bad call cannot take
// the server down.
func recoverTool(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("internal error: %v", r)
			}
		}()
		return next(ctx, req)
	}
}

func (e *Editor) logTool(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := append(kit.LogAttrs(ctx), "tool", name, "duration_ms", time.Since(start).Milliseconds())
			if err != nil {
				e.logger.Warn("editor: tool failed", append(attrs, "error", err)...)
			} else {
				e.logger.Debug("editor: tool call", attrs...)
			}
			return resp, err
		}
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type pageReq struct {
	PageID string `json:"page_id"`
	Limit  int    `json:"limit"`
}

func decodePageReq(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p pageReq
	if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
		return nil, err
	}
	if p.PageID == "" {
		return nil, fmt.Errorf("page_id is required")
	}
	return &kit.MCPDecodeResult{
		Request:   &p,
		EnrichCtx: func(ctx context.Context) context.Context { return kit.WithPageID(ctx, p.PageID) },
	}, nil
}

var pageIDProp = map[string]any{"type": "string", "description": "Page ID"}

func (e *Editor) registerGetDocument(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ezpage_get_document",
		Description: "Return the page document as its serialized JSON node map",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*pageReq)
		s, err := e.Open(ctx, p.PageID)
		if err != nil {
			return nil, err
		}
		data, err := s.Snapshot()
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	e.addTool(srv, tool, endpoint, decodePageReq)
}

func (e *Editor) registerApplyActions(srv *mcp.Server) {
	type req struct {
		PageID string `json:"page_id"`
		Text   string `json:"text"`
	}

	tool := &mcp.Tool{
		Name: "ezpage_apply_actions",
		Description: "Apply <ezAction> envelopes embedded in text to a page. " +
			`Format: <ezAction type="add|update|delete|move|replace_all" nodeId="...">{json}</ezAction>. ` +
			"Execution stops at the first failing action; earlier actions stay applied.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"text":    map[string]any{"type": "string", "description": "Text containing one or more ezAction envelopes"},
		}, []string{"page_id", "text"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		s, err := e.Open(ctx, p.PageID)
		if err != nil {
			return nil, err
		}
		// A failed action is part of the report, not a tool error.
		report, _ := s.ApplyText(ctx, p.Text)
		return report, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		if p.PageID == "" {
			return nil, fmt.Errorf("page_id is required")
		}
		return &kit.MCPDecodeResult{
			Request:   &p,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithPageID(ctx, p.PageID) },
		}, nil
	}

	e.addTool(srv, tool, endpoint, decode)
}

func (e *Editor) registerListComponents(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ezpage_list_components",
		Description: "List the component types accepted by add and replace_all, with their default props and slots",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return e.reg.Descriptors(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	e.addTool(srv, tool, endpoint, decode)
}

func (e *Editor) registerOutline(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ezpage_outline",
		Description: "Return a markdown outline of the page tree followed by the page content as markdown",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*pageReq)
		return e.outline(ctx, p.PageID)
	}

	e.addTool(srv, tool, endpoint, decodePageReq)
}

func (e *Editor) registerStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ezpage_stats",
		Description: "Node counts, depth, component usage and action counts of a page",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*pageReq)
		return e.Stats(ctx, p.PageID)
	}

	e.addTool(srv, tool, endpoint, decodePageReq)
}

func (e *Editor) registerHistory(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ezpage_history",
		Description: "Recent journaled actions of a page, newest first",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"limit":   map[string]any{"type": "integer", "description": "Max rows (default 50)"},
		}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*pageReq)
		return e.History(ctx, p.PageID, p.Limit)
	}

	e.addTool(srv, tool, endpoint, decodePageReq)
}

func (e *Editor) registerSetNode(srv *mcp.Server) {
	type req struct {
		PageID      string  `json:"page_id"`
		NodeID      string  `json:"node_id"`
		DisplayName *string `json:"display_name"`
		Hidden      *bool   `json:"hidden"`
	}

	tool := &mcp.Tool{
		Name:        "ezpage_set_node",
		Description: "Rename a node in the editor layers panel or toggle its visibility. An empty display_name restores the type name.",
		InputSchema: inputSchema(map[string]any{
			"page_id":      pageIDProp,
			"node_id":      map[string]any{"type": "string", "description": "Node ID"},
			"display_name": map[string]any{"type": "string", "description": "Name shown in the editor"},
			"hidden":       map[string]any{"type": "boolean", "description": "Hide the node from rendering"},
		}, []string{"page_id", "node_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		n, err := e.SetNode(ctx, p.PageID, p.NodeID, p.DisplayName, p.Hidden)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"node_id":      n.ID,
			"type":         n.Type,
			"display_name": n.DisplayName,
			"hidden":       n.Hidden,
		}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		if p.PageID == "" || p.NodeID == "" {
			return nil, fmt.Errorf("page_id and node_id are required")
		}
		return &kit.MCPDecodeResult{
			Request:   &p,
			EnrichCtx: func(ctx context.Context) context.Context { return kit.WithPageID(ctx, p.PageID) },
		}, nil
	}

	e.addTool(srv, tool, endpoint, decode)
}

// outline renders the tree outline and the markdown content of a page.
func (e *Editor) outline(ctx context.Context, pageID string) (string, error) {
	doc, err := e.Document(ctx, pageID)
	if err != nil {
		return "", err
	}
	md, err := e.renderer.Markdown(doc)
	if err != nil {
		return "", err
	}
	return e.renderer.Outline(doc) + "\n---\n\n" + md, nil
}
