// CLAUDE:SUMMARY Banner boundary resolver: FixedAncestor, ZIndexCluster and DeepestCommon clustering, optimal tightening and banner filters.
// Package resolve turns consent-keyword candidates into banner boundaries.
//
// Strategies are tried in fixed priority and the first one that yields a
// cluster wins:
//
//  1. FixedAncestor: nearest self-or-ancestor with fixed/sticky position
//  2. ZIndexCluster: topmost positioned ancestor with an integer z-index
//  3. DeepestCommon: deepest common ancestor of all candidates
//
// Each cluster root is then tightened to its optimal element and filtered
// on viewport intersection, word count and sign-in classification.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/locate"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
)

// Config holds the resolver thresholds.
type Config struct {
	// WordThreshold is the minimum number of visible words of a banner.
	WordThreshold int
}

// Boundary is one resolved banner.
type Boundary struct {
	Root     dom.Node
	Element  dom.Node
	Strategy dom.Strategy
	Members  []locate.Candidate
}

// Keywords returns the union of member keywords in first-seen order.
func (b Boundary) Keywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range b.Members {
		for _, k := range m.Keywords {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Resolver clusters candidates. It holds no per-session state.
type Resolver struct {
	cfg    Config
	words  *words.Catalog
	logger *slog.Logger
}

// New creates a Resolver.
func New(cfg Config, cat *words.Catalog, logger *slog.Logger) *Resolver {
	if cfg.WordThreshold <= 0 {
		cfg.WordThreshold = 3
	}
	if cat == nil {
		cat = words.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, words: cat, logger: logger}
}

// cluster is a group of candidates under one root.
type cluster struct {
	root    dom.Node
	members []int
	z       int
}

// Cluster groups candidates without filtering. It is deterministic: the
// same DOM and candidates always give the same strategy and clusters.
func (r *Resolver) Cluster(ctx context.Context, scanRoot dom.Node, cands []locate.Candidate) (dom.Strategy, []Boundary, error) {
	if len(cands) == 0 {
		return dom.StrategyNone, nil, nil
	}
	t := newTree(scanRoot)
	chains := make([][]dom.Node, len(cands))
	for i, c := range cands {
		ch, err := t.chain(ctx, c.Node)
		if err != nil {
			return dom.StrategyNone, nil, err
		}
		chains[i] = ch
	}

	strategy := dom.StrategyFixedAncestor
	clusters, err := t.byFixedAncestor(ctx, chains)
	if err != nil {
		return dom.StrategyNone, nil, err
	}
	if len(clusters) == 0 {
		strategy = dom.StrategyZIndexCluster
		if clusters, err = t.byZIndex(ctx, chains); err != nil {
			return dom.StrategyNone, nil, err
		}
	}
	if len(clusters) == 0 {
		strategy = dom.StrategyDeepestCommon
		clusters = []*cluster{t.deepestCommon(chains)}
	}

	out := make([]Boundary, 0, len(clusters))
	for _, cl := range clusters {
		b := Boundary{Root: cl.root, Strategy: strategy}
		sub := make([][]dom.Node, 0, len(cl.members))
		for _, i := range cl.members {
			b.Members = append(b.Members, cands[i])
			sub = append(sub, chains[i])
		}
		opt, err := t.optimal(ctx, cl.root, sub)
		if err != nil {
			return dom.StrategyNone, nil, err
		}
		b.Element = opt
		out = append(out, b)
	}
	return strategy, out, nil
}

// Resolve clusters candidates and keeps the boundaries that intersect the
// viewport, carry enough words and are not sign-in dialogs.
func (r *Resolver) Resolve(ctx context.Context, drv dom.Driver, scanRoot dom.Node, cands []locate.Candidate, lang string) ([]Boundary, error) {
	strategy, bounds, err := r.Cluster(ctx, scanRoot, cands)
	if err != nil || len(bounds) == 0 {
		return nil, err
	}
	vp, err := drv.Viewport(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: viewport: %w", err)
	}

	seen := make(map[string]bool)
	var out []Boundary
	for _, b := range bounds {
		if seen[b.Element.Key()] {
			continue
		}
		ok, reason, err := r.accept(ctx, drv, b.Element, vp, lang)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Debug("resolve: boundary rejected", "strategy", strategy.String(), "tag", b.Element.Tag(), "reason", reason)
			continue
		}
		seen[b.Element.Key()] = true
		out = append(out, b)
	}
	return out, nil
}

func (r *Resolver) accept(ctx context.Context, drv dom.Driver, el dom.Node, vp dom.Rect, lang string) (bool, string, error) {
	in, err := InViewport(ctx, el, vp)
	if err != nil {
		return false, "", err
	}
	if !in {
		return false, "viewport", nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		return false, "", fmt.Errorf("resolve: text: %w", err)
	}
	norm := words.Normalize(text)
	if words.CountWords(norm) < r.cfg.WordThreshold {
		return false, "words", nil
	}
	signin, err := r.isSignin(ctx, drv, el, norm, lang)
	if err != nil {
		return false, "", err
	}
	if signin {
		return false, "signin", nil
	}
	return true, "", nil
}

// InViewport reports whether el is displayed and intersects vp.
func InViewport(ctx context.Context, el dom.Node, vp dom.Rect) (bool, error) {
	vis, err := el.Visible(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve: visible: %w", err)
	}
	if !vis {
		return false, nil
	}
	rect, err := el.Rect(ctx)
	if err != nil {
		return false, fmt.Errorf("resolve: rect: %w", err)
	}
	return rect.Intersects(vp), nil
}

// isSignin classifies login dialogs: a visible password field, or a
// sign-in phrase without any cookie keyword.
func (r *Resolver) isSignin(ctx context.Context, drv dom.Driver, el dom.Node, norm, lang string) (bool, error) {
	pw, err := drv.Find(ctx, el, dom.Query{Selector: "input[type=password]"})
	if err != nil {
		return false, fmt.Errorf("resolve: password lookup: %w", err)
	}
	for _, p := range pw {
		typ, _, _ := p.Attr(ctx, "type")
		if !strings.EqualFold(typ, "password") {
			continue
		}
		if vis, _ := p.Visible(ctx); vis {
			return true, nil
		}
	}
	lists := r.words.For(lang)
	en := r.words.For(words.DefaultLang)
	if !words.HasPhrase(norm, lists.Signin) && !words.HasPhrase(norm, en.Signin) {
		return false, nil
	}
	cookie := append(append([]string(nil), lists.Cookie...), en.Cookie...)
	return len(words.ContainsAny(norm, cookie)) == 0, nil
}

// tree caches ancestor chains and computed styles for one scan.
type tree struct {
	root   dom.Node
	style  map[string]string
	parent map[string]dom.Node
}

func newTree(root dom.Node) *tree {
	return &tree{root: root, style: make(map[string]string), parent: make(map[string]dom.Node)}
}

// chain returns n and its ancestors up to and including the scan root.
func (t *tree) chain(ctx context.Context, n dom.Node) ([]dom.Node, error) {
	out := []dom.Node{n}
	cur := n
	for cur.Key() != t.root.Key() {
		p, ok := t.parent[cur.Key()]
		if !ok {
			var err error
			p, err = cur.Parent(ctx)
			if err != nil {
				return nil, fmt.Errorf("resolve: parent: %w", err)
			}
			t.parent[cur.Key()] = p
		}
		if p == nil {
			break
		}
		out = append(out, p)
		cur = p
	}
	return out, nil
}

func (t *tree) css(ctx context.Context, n dom.Node, prop string) (string, error) {
	k := n.Key() + "|" + prop
	if v, ok := t.style[k]; ok {
		return v, nil
	}
	v, err := n.Style(ctx, prop)
	if err != nil {
		return "", fmt.Errorf("resolve: style %s: %w", prop, err)
	}
	v = strings.ToLower(strings.TrimSpace(v))
	t.style[k] = v
	return v, nil
}

func (t *tree) byFixedAncestor(ctx context.Context, chains [][]dom.Node) ([]*cluster, error) {
	index := make(map[string]*cluster)
	var out []*cluster
	for i, ch := range chains {
		for _, n := range ch {
			pos, err := t.css(ctx, n, "position")
			if err != nil {
				return nil, err
			}
			if pos != "fixed" && pos != "sticky" {
				continue
			}
			cl, ok := index[n.Key()]
			if !ok {
				cl = &cluster{root: n}
				index[n.Key()] = cl
				out = append(out, cl)
			}
			cl.members = append(cl.members, i)
			break
		}
	}
	return out, nil
}

func (t *tree) byZIndex(ctx context.Context, chains [][]dom.Node) ([]*cluster, error) {
	index := make(map[string]*cluster)
	var out []*cluster
	for i, ch := range chains {
		// Walk from the scan root down so the topmost context wins.
		for j := len(ch) - 1; j >= 0; j-- {
			n := ch[j]
			zs, err := t.css(ctx, n, "z-index")
			if err != nil {
				return nil, err
			}
			z, err := strconv.Atoi(zs)
			if err != nil {
				continue
			}
			pos, err := t.css(ctx, n, "position")
			if err != nil {
				return nil, err
			}
			if pos == "" || pos == "static" {
				continue
			}
			cl, ok := index[n.Key()]
			if !ok {
				cl = &cluster{root: n, z: z}
				index[n.Key()] = cl
				out = append(out, cl)
			}
			cl.members = append(cl.members, i)
			break
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].z > out[b].z })
	return out, nil
}

func (t *tree) deepestCommon(chains [][]dom.Node) *cluster {
	cl := &cluster{root: t.root}
	for i := range chains {
		cl.members = append(cl.members, i)
	}
	first := chains[0]
	// Chains run leaf to root; compare them from the root end.
	for depth := 1; depth <= len(first); depth++ {
		cand := first[len(first)-depth]
		for _, ch := range chains[1:] {
			if len(ch) < depth || ch[len(ch)-depth].Key() != cand.Key() {
				return cl
			}
		}
		cl.root = cand
	}
	return cl
}

// optimal descends from root while exactly one child lies on every member
// chain and carries all of the parent's visible text.
func (t *tree) optimal(ctx context.Context, root dom.Node, chains [][]dom.Node) (dom.Node, error) {
	onAll := func(n dom.Node) bool {
		for _, ch := range chains {
			found := false
			for _, a := range ch {
				if a.Key() == n.Key() {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	cur := root
	for {
		children, err := cur.Children(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve: children: %w", err)
		}
		var next dom.Node
		for _, c := range children {
			if onAll(c) {
				next = c
				break
			}
		}
		if next == nil {
			return cur, nil
		}
		curText, err := cur.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve: text: %w", err)
		}
		nextText, err := next.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve: text: %w", err)
		}
		if words.Normalize(curText) != words.Normalize(nextText) {
			return cur, nil
		}
		cur = next
	}
}
