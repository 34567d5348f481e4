// CLAUDE:SUMMARY Static dom.Driver over golang.org/x/net/html with inline-style geometry, srcdoc iframes, declarative shadow roots and scripted click effects.
// Package htmldom implements dom.Driver over parsed HTML without a browser.
// It serves offline analysis of saved pages and deterministic engine tests.
//
// Page model:
//   - geometry comes from inline px/% styles, see style.go
//   - display:none, visibility:hidden and the hidden attribute hide elements
//   - <iframe srcdoc> or an <iframe src> registered with WithPage is a
//     nested document whose viewport is the iframe box
//   - <template shadowrootmode> marks its parent as a shadow host
//   - clicking an element with data-hide / data-show toggles the elements
//     with the listed ids; data-navigate loads another registered page
package htmldom

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// Click is one recorded click.
type Click struct {
	Key  string
	ID   string
	Text string
}

// Driver is a static dom.Driver. Not safe for concurrent use.
type Driver struct {
	pages      map[string]string
	failures   map[string]error
	extensions map[string]string
	execFn     func(js string) (string, error)
	viewport   dom.Rect

	top *document
	cur *document
	url string

	nextID      int
	installed   map[string]string
	clicks      []Click
	inputs      map[string]string
	shots       []string
	navigations []string
	removed     int
}

// Option configures a Driver.
type Option func(*Driver)

// WithViewport sets the top-level viewport size. Default: 1280x720.
func WithViewport(w, h float64) Option {
	return func(d *Driver) { d.viewport = dom.Rect{W: w, H: h} }
}

// WithPage registers markup served for url by Navigate and iframe src.
func WithPage(url, markup string) Option {
	return func(d *Driver) { d.pages[url] = markup }
}

// WithFailure makes Navigate(url) fail with err.
func WithFailure(url string, err error) Option {
	return func(d *Driver) { d.failures[url] = err }
}

// WithExtension registers an extension script path whose installation hides
// every element matching selector.
func WithExtension(path, selector string) Option {
	return func(d *Driver) { d.extensions[path] = selector }
}

// WithExec sets the handler for Exec.
func WithExec(fn func(js string) (string, error)) Option {
	return func(d *Driver) { d.execFn = fn }
}

// New creates a Driver with no active document.
func New(opts ...Option) *Driver {
	d := &Driver{
		pages:      make(map[string]string),
		failures:   make(map[string]error),
		extensions: make(map[string]string),
		installed:  make(map[string]string),
		inputs:     make(map[string]string),
		viewport:   dom.Rect{W: 1280, H: 720},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Parse creates a Driver whose active document is markup.
func Parse(markup string, opts ...Option) (*Driver, error) {
	d := New(opts...)
	doc, err := d.parse(markup, d.viewport)
	if err != nil {
		return nil, err
	}
	d.top, d.cur, d.url = doc, doc, "about:blank"
	return d, nil
}

func (d *Driver) parse(markup string, viewport dom.Rect) (*document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &document{
		root:     root,
		viewport: viewport,
		nodes:    make(map[*html.Node]*Node),
		frames:   make(map[*html.Node]*document),
		hidden:   make(map[*html.Node]bool),
		drv:      d,
	}, nil
}

func (d *Driver) Navigate(_ context.Context, url string, _ time.Duration) error {
	d.navigations = append(d.navigations, url)
	if err, ok := d.failures[url]; ok {
		return err
	}
	markup, ok := d.pages[url]
	if !ok {
		return fmt.Errorf("htmldom: navigate %s: %w", url, dom.ErrUnreachable)
	}
	doc, err := d.parse(markup, d.viewport)
	if err != nil {
		return err
	}
	d.top, d.cur, d.url = doc, doc, url
	return nil
}

func (d *Driver) CurrentURL(context.Context) (string, error) { return d.url, nil }

func (d *Driver) WaitReady(context.Context, time.Duration) error {
	if d.cur == nil {
		return fmt.Errorf("htmldom: no document: %w", dom.ErrTimeout)
	}
	return nil
}

func (d *Driver) Body(context.Context) (dom.Node, error) {
	if d.cur == nil {
		return nil, fmt.Errorf("htmldom: no document: %w", dom.ErrNotFound)
	}
	body := findFirst(d.cur.root, func(n *html.Node) bool { return n.Data == "body" }, false)
	if body == nil {
		return nil, fmt.Errorf("htmldom: body: %w", dom.ErrNotFound)
	}
	return d.cur.wrap(body), nil
}

func (d *Driver) Lang(context.Context) (string, error) {
	if d.cur == nil {
		return "", nil
	}
	h := findFirst(d.cur.root, func(n *html.Node) bool { return n.Data == "html" }, false)
	if h == nil {
		return "", nil
	}
	return getAttr(h, "lang"), nil
}

func (d *Driver) Viewport(context.Context) (dom.Rect, error) {
	if d.cur == nil {
		return d.viewport, nil
	}
	return d.cur.viewport, nil
}

func (d *Driver) Find(_ context.Context, root dom.Node, q dom.Query) ([]dom.Node, error) {
	r, err := d.own(root)
	if err != nil {
		return nil, err
	}
	sel := parseSelectorList(q.Selector)
	var out []dom.Node
	walkElements(r.n, false, func(n *html.Node) {
		if n != r.n && sel.matches(n, r.n.Parent) {
			out = append(out, r.doc.wrap(n))
		}
	})
	return out, nil
}

func (d *Driver) WaitVisible(ctx context.Context, selector string, _ time.Duration) (dom.Node, error) {
	body, err := d.Body(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := d.Find(ctx, body, dom.Query{Selector: selector})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if ok, _ := n.Visible(ctx); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("htmldom: wait visible %q: %w", selector, dom.ErrTimeout)
}

func (d *Driver) Frames(context.Context) ([]dom.Node, error) {
	if d.cur == nil {
		return nil, nil
	}
	var out []dom.Node
	walkElements(d.cur.root, false, func(n *html.Node) {
		if n.Data == "iframe" {
			out = append(out, d.cur.wrap(n))
		}
	})
	return out, nil
}

func (d *Driver) SwitchToFrame(_ context.Context, frame dom.Node) error {
	f, err := d.own(frame)
	if err != nil {
		return err
	}
	if f.n.Data != "iframe" {
		return fmt.Errorf("htmldom: switch to <%s>: %w", f.n.Data, dom.ErrNotFound)
	}
	doc, ok := f.doc.frames[f.n]
	if !ok {
		markup := getAttr(f.n, "srcdoc")
		if markup == "" {
			markup = d.pages[getAttr(f.n, "src")]
		}
		r := f.doc.rect(f.n)
		doc, err = d.parse(markup, dom.Rect{W: r.W, H: r.H})
		if err != nil {
			return err
		}
		f.doc.frames[f.n] = doc
	}
	d.cur = doc
	return nil
}

func (d *Driver) SwitchToDefault(context.Context) error {
	d.cur = d.top
	return nil
}

func (d *Driver) ShadowRoots(_ context.Context, body dom.Node) ([]dom.ShadowCopy, error) {
	b, err := d.own(body)
	if err != nil {
		return nil, err
	}
	var out []dom.ShadowCopy
	walkElements(b.n, false, func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isShadowTemplate(c) {
				out = append(out, dom.ShadowCopy{Host: b.doc.wrap(n), Root: b.doc.wrap(c)})
				return
			}
		}
	})
	return out, nil
}

func (d *Driver) ResolveInShadow(_ context.Context, _ dom.Node, n dom.Node) (dom.Node, error) {
	return n, nil
}

func (d *Driver) RemoveShadowCopies(context.Context) error {
	d.removed++
	return nil
}

func (d *Driver) Exec(_ context.Context, js string) (string, error) {
	if d.execFn == nil {
		return "", nil
	}
	return d.execFn(js)
}

func (d *Driver) Screenshot(_ context.Context, path string) error {
	d.shots = append(d.shots, path)
	return nil
}

// ScreenshotNode records path like Screenshot. n must be a node of this
// driver.
func (d *Driver) ScreenshotNode(_ context.Context, n dom.Node, path string) error {
	if _, ok := n.(*Node); !ok {
		return fmt.Errorf("htmldom: screenshot of foreign node %T: %w", n, dom.ErrStale)
	}
	d.shots = append(d.shots, path)
	return nil
}

func (d *Driver) InstallExtension(_ context.Context, path string) (string, error) {
	sel, ok := d.extensions[path]
	if !ok {
		return "", fmt.Errorf("htmldom: extension %s: %w", path, dom.ErrNotFound)
	}
	for _, doc := range []*document{d.top, d.cur} {
		if doc == nil {
			continue
		}
		list := parseSelectorList(sel)
		walkElements(doc.root, true, func(n *html.Node) {
			if list.matches(n, nil) {
				doc.hidden[n] = true
			}
		})
	}
	d.nextID++
	id := fmt.Sprintf("ext-%d", d.nextID)
	d.installed[id] = path
	return id, nil
}

func (d *Driver) UninstallExtension(_ context.Context, id string) error {
	if _, ok := d.installed[id]; !ok {
		return fmt.Errorf("htmldom: extension id %s: %w", id, dom.ErrNotFound)
	}
	delete(d.installed, id)
	return nil
}

// Clicks returns the clicks issued so far, in order.
func (d *Driver) Clicks() []Click { return d.clicks }

// Screenshots returns the screenshot paths requested so far.
func (d *Driver) Screenshots() []string { return d.shots }

// Navigations returns every URL passed to Navigate.
func (d *Driver) Navigations() []string { return d.navigations }

// Inputs returns typed text keyed by the target element id attribute.
func (d *Driver) Inputs() map[string]string { return d.inputs }

// ShadowCopiesRemoved counts RemoveShadowCopies calls.
func (d *Driver) ShadowCopiesRemoved() int { return d.removed }

// Installed returns the ids of extensions currently installed.
func (d *Driver) Installed() int { return len(d.installed) }

// BodyHTML renders the active document body.
func (d *Driver) BodyHTML(context.Context) (string, error) {
	if d.cur == nil {
		return "", fmt.Errorf("htmldom: no document: %w", dom.ErrNotFound)
	}
	body := findFirst(d.cur.root, func(n *html.Node) bool { return n.Data == "body" }, false)
	if body == nil {
		return "", fmt.Errorf("htmldom: body: %w", dom.ErrNotFound)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d *Driver) own(n dom.Node) (*Node, error) {
	nn, ok := n.(*Node)
	if !ok || nn == nil {
		return nil, fmt.Errorf("htmldom: foreign node %T: %w", n, dom.ErrStale)
	}
	return nn, nil
}

func isShadowTemplate(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "template" &&
		(hasAttr(n, "shadowrootmode") || hasAttr(n, "shadowroot"))
}

// walkElements visits element descendants of root in document order.
// Template subtrees are skipped unless withTemplates is set.
func walkElements(root *html.Node, withTemplates bool, fn func(*html.Node)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "template" && !withTemplates {
				continue
			}
			fn(c)
			walk(c)
		}
	}
	if root.Type == html.ElementNode {
		fn(root)
	}
	walk(root)
}

func findFirst(root *html.Node, pred func(*html.Node) bool, withTemplates bool) *html.Node {
	var found *html.Node
	walkElements(root, withTemplates, func(n *html.Node) {
		if found == nil && pred(n) {
			found = n
		}
	})
	return found
}
