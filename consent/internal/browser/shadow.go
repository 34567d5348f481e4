package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

const (
	idxAttr  = "data-bc-idx"
	copyAttr = "data-bc-copy"
)

// copyShadowJS tags every live element of a shadow root with its index and
// appends an inert copy of the tree to the document body.
const copyShadowJS = `(root, n) => {
	Array.from(root.querySelectorAll('*')).forEach((e, i) => e.setAttribute('data-bc-idx', String(i)));
	const copy = document.createElement('div');
	copy.setAttribute('data-bc-copy', String(n));
	copy.innerHTML = root.innerHTML;
	document.body.appendChild(copy);
	return [copy];
}`

// ShadowRoots copies the open and closed shadow roots attached directly
// under body. Nested shadow trees are not followed.
func (d *Driver) ShadowRoots(ctx context.Context, body dom.Node) ([]dom.ShadowCopy, error) {
	b, err := own(body)
	if err != nil {
		return nil, err
	}
	page := b.page.Context(ctx)

	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("browser: shadow scan: %w", classify(err))
	}
	var hosts []*proto.DOMNode
	if bodyNode := findNode(doc.Root, "BODY"); bodyNode != nil {
		collectHosts(bodyNode, &hosts)
	}

	var out []dom.ShadowCopy
	for i, h := range hosts {
		hostEl, err := page.ElementFromNode(h)
		if err != nil {
			d.mgr.cfg.Logger.Debug("browser: shadow host lost", "error", err)
			continue
		}
		root, err := hostEl.ShadowRoot()
		if err != nil {
			d.mgr.cfg.Logger.Debug("browser: shadow root unavailable", "error", err)
			continue
		}
		copies, err := d.query(ctx, b.page, copyShadowJS, root.Object, i)
		if err != nil {
			return out, err
		}
		if len(copies) == 0 {
			continue
		}
		hosted, err := d.query(ctx, b.page, `(e) => [e]`, hostEl.Object)
		if err != nil || len(hosted) == 0 {
			continue
		}
		out = append(out, dom.ShadowCopy{Host: hosted[0], Root: copies[0]})
	}
	return out, nil
}

// ResolveInShadow maps an element of a copy to the live element with the
// same index inside host's shadow root.
func (d *Driver) ResolveInShadow(ctx context.Context, host, n dom.Node) (dom.Node, error) {
	h, err := own(host)
	if err != nil {
		return nil, err
	}
	idx, ok, err := n.Attr(ctx, idxAttr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("browser: resolve in shadow: untagged <%s>: %w", n.Tag(), dom.ErrNotFound)
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		return nil, fmt.Errorf("browser: resolve in shadow: bad index %q: %w", idx, dom.ErrNotFound)
	}
	root, err := h.el.Context(ctx).ShadowRoot()
	if err != nil {
		return nil, fmt.Errorf("browser: resolve in shadow: %w", classify(err))
	}
	live, err := d.query(ctx, h.page, `(r, i) => {
		const e = r.querySelector('[data-bc-idx="' + i + '"]');
		return e ? [e] : [];
	}`, root.Object, i)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("browser: resolve in shadow: index %d: %w", i, dom.ErrNotFound)
	}
	return live[0], nil
}

func (d *Driver) RemoveShadowCopies(ctx context.Context) error {
	_, err := d.page.Context(ctx).Eval(`() => document.querySelectorAll('[` + copyAttr + `]').forEach((e) => e.remove())`)
	return classify(err)
}

func findNode(n *proto.DOMNode, name string) *proto.DOMNode {
	if n == nil {
		return nil
	}
	if n.NodeName == name {
		return n
	}
	for _, c := range n.Children {
		if f := findNode(c, name); f != nil {
			return f
		}
	}
	return nil
}

func collectHosts(n *proto.DOMNode, out *[]*proto.DOMNode) {
	for _, c := range n.Children {
		if len(c.ShadowRoots) > 0 {
			*out = append(*out, c)
		}
		collectHosts(c, out)
	}
}
