// CLAUDE:SUMMARY Candidate locator: finds elements whose own text or id/class/name contain a consent keyword.
// Package locate scans a DOM subtree for consent-keyword candidates.
package locate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
)

// Attrs are the attribute names searched besides own text.
var Attrs = []string{"id", "class", "name"}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "title": true, "meta": true, "link": true,
}

// Candidate is an element that matched at least one consent keyword.
type Candidate struct {
	Node     dom.Node
	Keywords []string
}

// Locator finds candidates. It holds no per-session state.
type Locator struct {
	words  *words.Catalog
	logger *slog.Logger
}

// New creates a Locator over a word catalog. A nil catalog uses the
// embedded default.
func New(cat *words.Catalog, logger *slog.Logger) *Locator {
	if cat == nil {
		cat = words.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{words: cat, logger: logger}
}

// Find returns the elements under root whose own text or id/class/name
// attributes contain a cookie keyword of lang, deduplicated, in document
// order. An empty result is not an error.
func (l *Locator) Find(ctx context.Context, drv dom.Driver, root dom.Node, lang string) ([]Candidate, error) {
	keywords := l.words.For(lang).Cookie
	nodes, err := drv.Find(ctx, root, dom.Query{Words: keywords, Attrs: Attrs})
	if err != nil {
		return nil, fmt.Errorf("locate: find: %w", err)
	}

	seen := make(map[string]bool, len(nodes))
	var out []Candidate
	for _, n := range nodes {
		if seen[n.Key()] || skipTags[n.Tag()] {
			continue
		}
		hits, err := Match(ctx, n, keywords)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			continue
		}
		seen[n.Key()] = true
		out = append(out, Candidate{Node: n, Keywords: hits})
	}
	l.logger.Debug("locate: candidates", "lang", lang, "scanned", len(nodes), "matched", len(out))
	return out, nil
}

// Match returns the keywords found in the normalized own text or the
// id/class/name attributes of n.
func Match(ctx context.Context, n dom.Node, keywords []string) ([]string, error) {
	own, err := n.OwnText(ctx)
	if err != nil {
		return nil, fmt.Errorf("locate: own text: %w", err)
	}
	hay := []string{words.Normalize(own)}
	for _, a := range Attrs {
		v, ok, err := n.Attr(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("locate: attr %s: %w", a, err)
		}
		if ok && v != "" {
			hay = append(hay, words.Normalize(v))
		}
	}

	var hits []string
	for _, k := range keywords {
		for _, h := range hay {
			if h != "" && len(words.ContainsAny(h, []string{k})) > 0 {
				hits = append(hits, k)
				break
			}
		}
	}
	return hits, nil
}
