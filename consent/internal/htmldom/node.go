package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

type document struct {
	root     *html.Node
	viewport dom.Rect
	nodes    map[*html.Node]*Node
	frames   map[*html.Node]*document
	// hidden overrides style visibility after scripted effects: true hides
	// the element, false forces it shown.
	hidden map[*html.Node]bool
	drv    *Driver
}

func (doc *document) wrap(n *html.Node) *Node {
	if w, ok := doc.nodes[n]; ok {
		return w
	}
	doc.drv.nextID++
	w := &Node{n: n, doc: doc, key: fmt.Sprintf("h%d", doc.drv.nextID)}
	doc.nodes[n] = w
	return w
}

func (doc *document) visible(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "input" && strings.EqualFold(getAttr(n, "type"), "hidden") {
		return false
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if h, ok := doc.hidden[p]; ok {
			if h {
				return false
			}
			continue
		}
		if hasAttr(p, "hidden") {
			return false
		}
		st := inlineStyle(p)
		if st["display"] == "none" {
			return false
		}
		if p == n && computedStyle(p, "visibility") == "hidden" {
			return false
		}
	}
	return doc.rect(n).Area() > 0
}

func (doc *document) byID(id string) *html.Node {
	return findFirst(doc.root, func(n *html.Node) bool { return getAttr(n, "id") == id }, true)
}

// Node is an element of a static document.
type Node struct {
	n   *html.Node
	doc *document
	key string
}

var _ dom.Node = (*Node)(nil)

func (n *Node) Key() string { return n.key }
func (n *Node) Tag() string { return n.n.Data }

func (n *Node) Parent(context.Context) (dom.Node, error) {
	p := parentElement(n.n)
	if p == nil {
		return nil, nil
	}
	return n.doc.wrap(p), nil
}

func (n *Node) Children(context.Context) ([]dom.Node, error) {
	var out []dom.Node
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isShadowTemplate(c) {
			out = append(out, n.doc.wrap(c))
		}
	}
	return out, nil
}

func (n *Node) OwnText(context.Context) (string, error) {
	var parts []string
	for c := n.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if s := strings.TrimSpace(c.Data); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

func (n *Node) Text(context.Context) (string, error) {
	if !n.doc.visible(n.n) {
		return "", nil
	}
	var sb strings.Builder
	n.collect(n.n, &sb)
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func (n *Node) collect(h *html.Node, sb *strings.Builder) {
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			sb.WriteByte(' ')
		case html.ElementNode:
			switch c.Data {
			case "script", "style", "noscript", "template", "head":
				continue
			}
			if !n.doc.visible(c) {
				continue
			}
			n.collect(c, sb)
		}
	}
}

func (n *Node) Attr(_ context.Context, name string) (string, bool, error) {
	return getAttr(n.n, name), hasAttr(n.n, name), nil
}

func (n *Node) Style(_ context.Context, prop string) (string, error) {
	return computedStyle(n.n, prop), nil
}

func (n *Node) Rect(context.Context) (dom.Rect, error) {
	return n.doc.rect(n.n), nil
}

func (n *Node) Visible(context.Context) (bool, error) {
	return n.doc.visible(n.n), nil
}

func (n *Node) HTML(context.Context) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n.n); err != nil {
		return "", fmt.Errorf("htmldom: render: %w", err)
	}
	return buf.String(), nil
}

// Click records the click and applies the element's scripted effects.
func (n *Node) Click(ctx context.Context) error {
	if !n.doc.visible(n.n) {
		return fmt.Errorf("htmldom: click <%s>: %w", n.n.Data, dom.ErrNotInteractable)
	}
	text, _ := n.Text(ctx)
	if text == "" {
		text = getAttr(n.n, "value")
	}
	d := n.doc.drv
	d.clicks = append(d.clicks, Click{Key: n.key, ID: getAttr(n.n, "id"), Text: text})

	n.toggle(getAttr(n.n, "data-hide"), true)
	n.toggle(getAttr(n.n, "data-show"), false)
	if url := getAttr(n.n, "data-navigate"); url != "" {
		return d.Navigate(ctx, url, 0)
	}
	return nil
}

func (n *Node) toggle(ids string, hide bool) {
	for _, id := range strings.Fields(ids) {
		for _, doc := range []*document{n.doc, n.doc.drv.top} {
			if doc == nil {
				continue
			}
			if target := doc.byID(id); target != nil {
				doc.hidden[target] = hide
			}
		}
	}
}

func (n *Node) Input(_ context.Context, text string) error {
	if !n.doc.visible(n.n) {
		return fmt.Errorf("htmldom: input <%s>: %w", n.n.Data, dom.ErrNotInteractable)
	}
	setAttr(n.n, "value", text)
	key := getAttr(n.n, "id")
	if key == "" {
		key = n.key
	}
	n.doc.drv.inputs[key] = text
	return nil
}
