// CLAUDE:SUMMARY dom.Driver over a Rod stealth tab: navigation, JS-side element queries, frames, shadow-tree copies, screenshots, scripts.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

const pollInterval = 100 * time.Millisecond

// Driver is one worker session: a stealth tab of the managed browser.
// Not safe for concurrent use.
type Driver struct {
	mgr    *Manager
	page   *rod.Page
	cur    *rod.Page
	router *rod.HijackRouter

	mu         sync.Mutex
	extensions map[string]func() error
	nextExt    int
}

var _ dom.Driver = (*Driver)(nil)

// OpenSession creates a new stealth tab with the configured viewport and
// resource blocking.
func OpenSession(ctx context.Context, mgr *Manager) (*Driver, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser: %w", dom.ErrSessionDead)
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", classify(err))
	}
	page = page.Context(ctx)

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             mgr.cfg.ViewportWidth,
		Height:            mgr.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: viewport: %w", classify(err))
	}

	d := &Driver{mgr: mgr, page: page, cur: page, extensions: make(map[string]func() error)}
	router, err := mgr.block.hijack(page)
	if err != nil {
		mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
	}
	d.router = router
	return d, nil
}

// Close closes the tab.
func (d *Driver) Close() error {
	if d.router != nil {
		d.router.Stop()
	}
	if d.page != nil {
		return d.page.Close()
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	d.cur = d.page
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, classify(err))
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, classify(err))
	}
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", classify(err)
	}
	return info.URL, nil
}

func (d *Driver) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		res, err := d.cur.Context(ctx).Eval(`() => document.readyState === 'complete' && !!document.body`)
		if err != nil {
			return fmt.Errorf("browser: ready: %w", classify(err))
		}
		if res.Value.Bool() {
			return nil
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return fmt.Errorf("browser: ready: %w", dom.ErrTimeout)
		}
	}
}

func (d *Driver) Body(ctx context.Context) (dom.Node, error) {
	nodes, err := d.query(ctx, d.cur, `() => document.body ? [document.body] : []`)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("browser: body: %w", dom.ErrNotFound)
	}
	return nodes[0], nil
}

func (d *Driver) Lang(ctx context.Context) (string, error) {
	res, err := d.cur.Context(ctx).Eval(`() => document.documentElement ? (document.documentElement.lang || '') : ''`)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}

func (d *Driver) Viewport(ctx context.Context) (dom.Rect, error) {
	res, err := d.cur.Context(ctx).Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return dom.Rect{}, classify(err)
	}
	return dom.Rect{W: res.Value.Get("w").Num(), H: res.Value.Get("h").Num()}, nil
}

// findJS pre-filters elements in the page. Normalization mirrors the Go
// side loosely; callers re-check every result.
const findJS = `(root, sel, words, attrs, full) => {
	const norm = (s) => (s || '').normalize('NFD').replace(/[̀-ͯ]/g, '').toLowerCase();
	const all = root.querySelectorAll(sel || '*');
	const out = [];
	for (const el of all) {
		if (!words.length) { out.push(el); continue; }
		let hay = full ? norm(el.innerText) :
			norm(Array.from(el.childNodes).filter((n) => n.nodeType === 3).map((n) => n.textContent).join(' '));
		for (const a of attrs) hay += ' ' + norm(el.getAttribute(a));
		hay = hay.replace(/\s+/g, ' ');
		if (words.some((w) => hay.includes(w))) out.push(el);
	}
	return out;
}`

func (d *Driver) Find(ctx context.Context, root dom.Node, q dom.Query) ([]dom.Node, error) {
	r, err := own(root)
	if err != nil {
		return nil, err
	}
	words := q.Words
	if words == nil {
		words = []string{}
	}
	attrs := q.Attrs
	if attrs == nil {
		attrs = []string{}
	}
	nodes, err := d.query(ctx, r.page, findJS, r.el.Object, q.Selector, words, attrs, q.FullText)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (d *Driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (dom.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		nodes, err := d.query(ctx, d.cur, `(s) => Array.from(document.querySelectorAll(s))`, selector)
		if err != nil && dom.IsFatal(err) {
			return nil, err
		}
		for _, n := range nodes {
			if ok, err := n.Visible(ctx); err == nil && ok {
				return n, nil
			}
		}
		if err := sleepCtx(ctx, pollInterval); err != nil {
			return nil, fmt.Errorf("browser: wait visible %q: %w", selector, dom.ErrTimeout)
		}
	}
}

func (d *Driver) Frames(ctx context.Context) ([]dom.Node, error) {
	nodes, err := d.query(ctx, d.cur, `() => Array.from(document.querySelectorAll('iframe'))`)
	if err != nil {
		return nil, err
	}
	out := make([]dom.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, frame dom.Node) error {
	f, err := own(frame)
	if err != nil {
		return err
	}
	fp, err := f.el.Context(ctx).Frame()
	if err != nil {
		return fmt.Errorf("browser: switch to frame: %w", classify(err))
	}
	d.cur = fp
	return nil
}

func (d *Driver) SwitchToDefault(context.Context) error {
	d.cur = d.page
	return nil
}

func (d *Driver) Exec(ctx context.Context, js string) (string, error) {
	res, err := d.cur.Context(ctx).Eval(js)
	if err != nil {
		return "", classify(err)
	}
	if res.Type == proto.RuntimeRemoteObjectTypeString {
		return res.Value.Str(), nil
	}
	if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return "", nil
	}
	return res.Value.JSON("", ""), nil
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	data, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", classify(err))
	}
	return writeShot(path, data)
}

func (d *Driver) ScreenshotNode(ctx context.Context, n dom.Node, path string) error {
	r, err := own(n)
	if err != nil {
		return err
	}
	data, err := r.el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("browser: screenshot <%s>: %w", r.tag, classify(err))
	}
	return writeShot(path, data)
}

func writeShot(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("browser: screenshot dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// BodyHTML returns the outer HTML of the active document.
func (d *Driver) BodyHTML(ctx context.Context) (string, error) {
	res, err := d.cur.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}

// query runs js in page and wraps the returned element array.
func (d *Driver) query(ctx context.Context, page *rod.Page, js string, args ...any) ([]*node, error) {
	els, err := page.Context(ctx).ElementsByJS(rod.Eval(js, args...))
	if err != nil {
		return nil, classify(err)
	}
	keys, err := keysOf(ctx, page, els)
	if err != nil {
		return nil, err
	}
	out := make([]*node, len(els))
	for i, el := range els {
		out[i] = &node{d: d, el: el, page: page, key: keys[i].key, tag: keys[i].tag}
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
