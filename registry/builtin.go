package registry

import "github.com/hazyhaar/ezpage/document"

func container(name, tag string, props document.Props) Descriptor {
	return Descriptor{Name: name, IsCanvas: true, CanDrag: true, CanDelete: true, Tag: tag, DefaultProps: props}
}

func leaf(name, tag, textProp string, props document.Props) Descriptor {
	return Descriptor{Name: name, CanDrag: true, CanDelete: true, Tag: tag, TextProp: textProp, DefaultProps: props}
}

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		container("Container", "div", document.Props{
			"background":    "#ffffff",
			"padding":       "20px",
			"flexDirection": "column",
		}),
		container("Section", "section", document.Props{"padding": "40px 20px", "background": "transparent"}),
		container("Card", "article", document.Props{"padding": "16px", "radius": "8px", "shadow": "sm"}),
		leaf("Hero", "header", "title", document.Props{
			"title":           "Your headline here",
			"subtitle":        "A short supporting sentence.",
			"ctaText":         "Get started",
			"ctaLink":         "#",
			"backgroundImage": "",
		}),
		leaf("Heading", "h2", "text", document.Props{"text": "Heading", "level": 2}),
		leaf("Text", "p", "text", document.Props{"text": "Edit me", "fontSize": "16px"}),
		leaf("Button", "a", "text", document.Props{"text": "Click me", "href": "#", "variant": "primary"}),
		leaf("Image", "img", "", document.Props{"src": "", "alt": "", "width": "100%"}),
		leaf("Video", "video", "", document.Props{"src": "", "autoplay": false, "controls": true}),
		leaf("Spacer", "div", "", document.Props{"height": "32px"}),
		leaf("Divider", "hr", "", document.Props{"thickness": "1px", "color": "#e5e7eb"}),
		leaf("Navbar", "nav", "brand", document.Props{"brand": "Brand", "links": []any{}}),
		leaf("Footer", "footer", "text", document.Props{"text": "© Your company"}),
		{
			Name: "Columns", CanDrag: true, CanDelete: true, Tag: "div",
			DefaultProps: document.Props{"gap": "16px"},
			Slots:        []Slot{{Name: "column-0", Type: "Container"}, {Name: "column-1", Type: "Container"}},
		},
		{
			Name: "Tabs", CanDrag: true, CanDelete: true, Tag: "div",
			DefaultProps: document.Props{"labels": []any{"Tab 1", "Tab 2", "Tab 3"}, "active": 0},
			Slots: []Slot{
				{Name: "tab-0", Type: "Container"},
				{Name: "tab-1", Type: "Container"},
				{Name: "tab-2", Type: "Container"},
			},
		},
	}
}

// Builtin returns the default component table with Container as the
// canonical container.
func Builtin() *Registry {
	r, err := New(builtinDescriptors()...)
	if err != nil {
		panic("registry: builtin table: " + err.Error())
	}
	return r
}
