package render

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/ezpage/document"
)

// attrProps are props copied verbatim onto the element when they hold a
// string. The sanitizer drops the ones an element may not carry.
var attrProps = []string{"src", "alt", "href", "width"}

func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Img, atom.Hr, atom.Br, atom.Input, atom.Source, atom.Embed, atom.Wbr:
		return true
	}
	return false
}

// tree builds the element tree of doc, ROOT included.
func (r *Renderer) tree(doc *document.Document) (*html.Node, error) {
	wrapper := &html.Node{Type: html.DocumentNode}
	seen := make(map[string]bool)
	if err := r.appendNode(doc, wrapper, document.RootID, "", seen); err != nil {
		return nil, err
	}
	return wrapper, nil
}

// appendNode renders id and its subtree under parent. A node reached a
// second time is skipped, so a corrupt tree renders each node once.
func (r *Renderer) appendNode(doc *document.Document, parent *html.Node, id, slot string, seen map[string]bool) error {
	if seen[id] {
		r.logger.Warn("render: node reached twice, skipped", "node_id", id)
		return nil
	}
	seen[id] = true
	n, err := doc.Node(id)
	if err != nil {
		return err
	}
	if n.Hidden {
		return nil
	}

	tag, textProp := "div", ""
	if desc, ok := r.reg.Resolve(n.Type); ok {
		tag, textProp = desc.Tag, desc.TextProp
	} else {
		r.logger.Debug("render: unknown component, rendering as div", "node_id", id, "type", n.Type)
	}

	el := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr: []html.Attribute{
			{Key: "data-node-id", Val: n.ID},
			{Key: "data-component", Val: n.Type},
		},
	}
	if slot != "" {
		el.Attr = append(el.Attr, html.Attribute{Key: "data-slot", Val: slot})
	}
	for _, key := range attrProps {
		if v, ok := n.Props.String(key); ok && v != "" {
			el.Attr = append(el.Attr, html.Attribute{Key: key, Val: v})
		}
	}
	parent.AppendChild(el)

	if isVoid(el.DataAtom) {
		return nil
	}
	if textProp != "" {
		if text, ok := n.Props.String(textProp); ok && text != "" {
			r.appendText(el, text)
		}
	}
	for _, cid := range n.Nodes {
		if err := r.appendNode(doc, el, cid, "", seen); err != nil {
			return err
		}
	}
	for _, s := range n.Slots() {
		if err := r.appendNode(doc, el, n.LinkedNodes[s], s, seen); err != nil {
			return err
		}
	}
	return nil
}

// appendText adds text content to el. Values that look like markup are
// sanitized and parsed as a fragment so rich text keeps its formatting.
func (r *Renderer) appendText(el *html.Node, text string) {
	if !strings.ContainsRune(text, '<') {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return
	}
	clean := r.policy.Sanitize(text)
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(clean), context)
	if err != nil {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return
	}
	for _, c := range nodes {
		el.AppendChild(c)
	}
}

func renderHTML(w io.Writer, root *html.Node) error {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(w, c); err != nil {
			return err
		}
	}
	return nil
}
