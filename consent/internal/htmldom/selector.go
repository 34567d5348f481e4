package htmldom

import (
	"strings"

	"golang.org/x/net/html"
)

// selectorList is a parsed comma-separated selector list. Each entry is a
// chain of compound selectors joined by the descendant combinator.
//
// Supported compound forms:
//   - tag: "button", "a"
//   - .class, #id, tag.class, tag#id
//   - [attr], [attr=val], tag[attr=val]
type selectorList [][]simpleSelector

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

func parseSelectorList(list string) selectorList {
	var out selectorList
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		chain := make([]simpleSelector, len(fields))
		for i, f := range fields {
			chain[i] = parseSimpleSelector(f)
		}
		out = append(out, chain)
	}
	return out
}

// parseSimpleSelector parses "tag.class", "#id", "tag[attr=val]", etc.
func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eqIdx := strings.IndexByte(attrPart, '='); eqIdx >= 0 {
			s.attrKey = attrPart[:eqIdx]
			s.attrVal = strings.Trim(attrPart[eqIdx+1:], `"'`)
		} else {
			s.attrKey = attrPart
		}
	}
	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}
	if sel != "*" {
		s.tag = strings.ToLower(sel)
	}
	return s
}

// matches reports whether n satisfies any chain of the list. Ancestors of
// the chain are looked up without crossing stop.
func (l selectorList) matches(n, stop *html.Node) bool {
	if len(l) == 0 {
		return n.Type == html.ElementNode
	}
	for _, chain := range l {
		if matchChain(n, stop, chain) {
			return true
		}
	}
	return false
}

func matchChain(n, stop *html.Node, chain []simpleSelector) bool {
	last := len(chain) - 1
	if !matchesSelector(n, chain[last]) {
		return false
	}
	i := last - 1
	for p := n.Parent; p != nil && p != stop && i >= 0; p = p.Parent {
		if matchesSelector(p, chain[i]) {
			i--
		}
	}
	return i < 0
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(getAttr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		if !hasAttr(n, s.attrKey) {
			return false
		}
		if s.attrVal != "" && getAttr(n, s.attrKey) != s.attrVal {
			return false
		}
	}
	return true
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
