package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// clickTimeout bounds rod's wait for an interactable target before the
// JS click fallback.
const clickTimeout = 3 * time.Second

// node is a live element of a session tab.
type node struct {
	d    *Driver
	el   *rod.Element
	page *rod.Page
	key  string
	tag  string
}

var _ dom.Node = (*node)(nil)

func own(n dom.Node) (*node, error) {
	r, ok := n.(*node)
	if !ok || r == nil {
		return nil, fmt.Errorf("browser: foreign node %T: %w", n, dom.ErrStale)
	}
	return r, nil
}

// keysJS stamps a per-document key on each element and returns [key, tag]
// pairs in argument order.
const keysJS = `(...els) => els.map((e) => {
	if (!e.__bck) {
		window.__bcSeq = (window.__bcSeq || 0) + 1;
		e.__bck = 'n' + window.__bcSeq;
	}
	return [e.__bck, (e.tagName || '').toLowerCase()];
})`

type ident struct{ key, tag string }

func keysOf(ctx context.Context, page *rod.Page, els rod.Elements) ([]ident, error) {
	if len(els) == 0 {
		return nil, nil
	}
	args := make([]any, len(els))
	for i, el := range els {
		args[i] = el.Object
	}
	res, err := page.Context(ctx).Evaluate(rod.Eval(keysJS, args...))
	if err != nil {
		return nil, fmt.Errorf("browser: node keys: %w", classify(err))
	}
	pairs := res.Value.Arr()
	if len(pairs) != len(els) {
		return nil, fmt.Errorf("browser: node keys: got %d for %d elements: %w", len(pairs), len(els), dom.ErrStale)
	}
	out := make([]ident, len(els))
	for i, p := range pairs {
		kv := p.Arr()
		if len(kv) == 2 {
			out[i] = ident{key: kv[0].Str(), tag: kv[1].Str()}
		}
	}
	return out, nil
}

func (n *node) Key() string { return n.key }
func (n *node) Tag() string { return n.tag }

func (n *node) Parent(ctx context.Context) (dom.Node, error) {
	nodes, err := n.d.query(ctx, n.page, `(e) => e.parentElement ? [e.parentElement] : []`, n.el.Object)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func (n *node) Children(ctx context.Context) ([]dom.Node, error) {
	nodes, err := n.d.query(ctx, n.page, `(e) => Array.from(e.children)`, n.el.Object)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Node, len(nodes))
	for i, c := range nodes {
		out[i] = c
	}
	return out, nil
}

func (n *node) OwnText(ctx context.Context) (string, error) {
	return n.str(ctx, `() => Array.from(this.childNodes)
		.filter((c) => c.nodeType === 3)
		.map((c) => c.textContent.trim())
		.filter((s) => s)
		.join(' ')`)
}

func (n *node) Text(ctx context.Context) (string, error) {
	s, err := n.str(ctx, `() => this.innerText || ''`)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(s), " "), nil
}

func (n *node) Attr(ctx context.Context, name string) (string, bool, error) {
	res, err := n.el.Context(ctx).Eval(`(a) => this.hasAttribute(a) ? [true, this.getAttribute(a)] : [false, '']`, name)
	if err != nil {
		return "", false, classify(err)
	}
	v := res.Value.Arr()
	if len(v) != 2 {
		return "", false, nil
	}
	return v[1].Str(), v[0].Bool(), nil
}

func (n *node) Style(ctx context.Context, prop string) (string, error) {
	res, err := n.el.Context(ctx).Eval(`(p) => getComputedStyle(this).getPropertyValue(p)`, prop)
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(res.Value.Str()), nil
}

func (n *node) Rect(ctx context.Context) (dom.Rect, error) {
	res, err := n.el.Context(ctx).Eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	}`)
	if err != nil {
		return dom.Rect{}, classify(err)
	}
	v := res.Value
	return dom.Rect{X: v.Get("x").Num(), Y: v.Get("y").Num(), W: v.Get("w").Num(), H: v.Get("h").Num()}, nil
}

func (n *node) Visible(ctx context.Context) (bool, error) {
	ok, err := n.el.Context(ctx).Visible()
	if err != nil {
		return false, classify(err)
	}
	return ok, nil
}

func (n *node) HTML(ctx context.Context) (string, error) {
	s, err := n.el.Context(ctx).HTML()
	if err != nil {
		return "", classify(err)
	}
	return s, nil
}

// Click issues a real mouse click. Targets covered by overlays or without
// a hit box are clicked from JS instead.
func (n *node) Click(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, clickTimeout)
	err := n.el.Context(cctx).Click(proto.InputMouseButtonLeft, 1)
	cancel()
	if err == nil {
		return nil
	}
	cerr := classify(err)
	if !errors.Is(cerr, dom.ErrNotInteractable) && !errors.Is(cerr, dom.ErrTimeout) {
		return fmt.Errorf("browser: click <%s>: %w", n.tag, cerr)
	}
	if _, err := n.el.Context(ctx).Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("browser: js click <%s>: %w", n.tag, classify(err))
	}
	return nil
}

func (n *node) Input(ctx context.Context, text string) error {
	if err := n.el.Context(ctx).Input(text); err != nil {
		return fmt.Errorf("browser: input <%s>: %w", n.tag, classify(err))
	}
	return nil
}

func (n *node) str(ctx context.Context, js string) (string, error) {
	res, err := n.el.Context(ctx).Eval(js)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}
