package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/ezpage/document"
)

const outlineTextMax = 60

// Outline lists the tree as a nested Markdown list, one line per node with
// its type, id, slot, hidden flag and a short text excerpt. Agents use the
// ids to address nodes in actions.
func (r *Renderer) Outline(doc *document.Document) string {
	var b strings.Builder
	doc.Walk(func(n *document.Node, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "- %s `%s`", n.Type, n.ID)
		if n.DisplayName != "" && n.DisplayName != n.Type {
			fmt.Fprintf(&b, " %q", n.DisplayName)
		}
		if slot := slotOf(doc, n); slot != "" {
			fmt.Fprintf(&b, " [slot %s]", slot)
		}
		if n.Hidden {
			b.WriteString(" [hidden]")
		}
		if desc, ok := r.reg.Resolve(n.Type); ok && desc.TextProp != "" {
			if text, ok := n.Props.String(desc.TextProp); ok && text != "" {
				fmt.Fprintf(&b, ": %s", excerpt(text))
			}
		}
		b.WriteByte('\n')
		return true
	})
	return b.String()
}

func slotOf(doc *document.Document, n *document.Node) string {
	if n.Parent == "" {
		return ""
	}
	linked, err := doc.Linked(n.Parent)
	if err != nil {
		return ""
	}
	for slot, c := range linked {
		if c.ID == n.ID {
			return slot
		}
	}
	return ""
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= outlineTextMax {
		return s
	}
	runes := []rune(s)
	return string(runes[:outlineTextMax]) + "…"
}
