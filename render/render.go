// CLAUDE:SUMMARY Renders a page document to sanitized preview HTML (x/net/html + bluemonday), Markdown (html-to-markdown) and an id-annotated outline for agents.
// Package render turns a page document into something a person or an agent
// can read: sanitized preview HTML, Markdown content and a structural
// outline carrying node ids.
//
// Every element of the preview carries data-node-id so a UI can map clicks
// back to nodes. Hidden nodes and their subtrees are not rendered. Prop
// values are untrusted; the output always goes through a bluemonday policy.
package render

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/ezpage/document"
	"github.com/hazyhaar/ezpage/registry"
)

// Lookup resolves component types. *registry.Registry implements it.
type Lookup interface {
	Resolve(name string) (registry.Descriptor, bool)
}

// Renderer renders documents against one component table.
type Renderer struct {
	reg         Lookup
	policy      *bluemonday.Policy
	mdConverter *converter.Converter
	logger      *slog.Logger
}

// New creates a Renderer.
func New(reg Lookup, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	policy := bluemonday.UGCPolicy()
	policy.AllowDataAttributes()
	policy.AllowElements("section", "header", "footer", "nav", "article", "video")
	policy.AllowAttrs("src", "controls", "autoplay", "width").OnElements("video")
	policy.AllowAttrs("width").OnElements("img")

	return &Renderer{
		reg:    reg,
		policy: policy,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
}

// Fragment renders the visible tree under ROOT as sanitized HTML.
func (r *Renderer) Fragment(doc *document.Document) (string, error) {
	root, err := r.tree(doc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := renderHTML(&buf, root); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Page renders a standalone HTML page around Fragment.
func (r *Renderer) Page(doc *document.Document, title string) (string, error) {
	body, err := r.Fragment(doc)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head><body>\n")
	b.WriteString(body)
	b.WriteString("\n</body></html>\n")
	return b.String(), nil
}

// Markdown renders the page content as Markdown.
func (r *Renderer) Markdown(doc *document.Document) (string, error) {
	frag, err := r.Fragment(doc)
	if err != nil {
		return "", err
	}
	md, err := r.mdConverter.ConvertString(frag)
	if err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
