package htmldom

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// Only inline styles are modelled. Geometry comes from px or % values of
// left/top/right/bottom/width/height; an element without its own size
// takes the box of its parent.

var styleDefaults = map[string]string{
	"position":   "static",
	"z-index":    "auto",
	"display":    "block",
	"visibility": "visible",
}

func inlineStyle(n *html.Node) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(getAttr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		if k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func computedStyle(n *html.Node, prop string) string {
	if v, ok := inlineStyle(n)[prop]; ok && v != "" {
		return v
	}
	if prop == "visibility" {
		for p := parentElement(n); p != nil; p = parentElement(p) {
			if v, ok := inlineStyle(p)["visibility"]; ok && v != "" {
				return v
			}
		}
	}
	if v, ok := styleDefaults[prop]; ok {
		return v
	}
	return ""
}

// length parses "120px", "120" or "50%" against ref.
func length(v string, ref float64) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "auto" {
		return 0, false
	}
	if strings.HasSuffix(v, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return 0, false
		}
		return ref * f / 100, true
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (d *document) rect(n *html.Node) dom.Rect {
	if n == nil || n.Type != html.ElementNode || n.Data == "html" || n.Data == "body" {
		return d.viewport
	}
	parent := d.rect(parentElement(n))
	st := inlineStyle(n)
	base := parent
	if st["position"] == "fixed" {
		base = d.viewport
	}

	w, hasW := length(st["width"], base.W)
	h, hasH := length(st["height"], base.H)
	if !hasW && !hasH {
		return parent
	}
	if !hasW {
		w = parent.W
	}
	if !hasH {
		h = parent.H
	}

	x := parent.X
	if l, ok := length(st["left"], base.W); ok {
		x = base.X + l
	} else if r, ok := length(st["right"], base.W); ok {
		x = base.X + base.W - r - w
	}
	y := parent.Y
	if t, ok := length(st["top"], base.H); ok {
		y = base.Y + t
	} else if b, ok := length(st["bottom"], base.H); ok {
		y = base.Y + base.H - b - h
	}
	return dom.Rect{X: x, Y: y, W: w, H: h}
}

func parentElement(n *html.Node) *html.Node {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}
