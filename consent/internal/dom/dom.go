// CLAUDE:SUMMARY Browser capability surface used by the detection engine: Driver, Node, Query, Rect and the tagged Banner variant.
// Package dom defines the browser-driver capability surface consumed by the
// consent engine. Two drivers implement it: a go-rod driver for live Chrome
// sessions and a static driver over parsed HTML.
//
// Every method that may block takes a context; drivers apply their own
// bounded timeouts on top of it.
package dom

import (
	"context"
	"time"
)

// Node is one element of the active document.
type Node interface {
	// Key is a stable identity for the element within its document. Two
	// Node values with the same Key refer to the same element.
	Key() string
	// Tag returns the lower-case tag name.
	Tag() string

	Parent(ctx context.Context) (Node, error)
	Children(ctx context.Context) ([]Node, error)

	// OwnText returns the concatenation of the element's direct text nodes.
	OwnText(ctx context.Context) (string, error)
	// Text returns the rendered text of the element and its descendants.
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, bool, error)
	// Style returns the computed value of a CSS property.
	Style(ctx context.Context, prop string) (string, error)
	Rect(ctx context.Context) (Rect, error)
	Visible(ctx context.Context) (bool, error)
	HTML(ctx context.Context) (string, error)

	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
}

// ShadowCopy pairs a shadow host with an accessible copy of its shadow tree.
type ShadowCopy struct {
	Host Node
	Root Node
}

// Driver is one browser session. A Driver is owned by a single worker and is
// not safe for concurrent use.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	CurrentURL(ctx context.Context) (string, error)
	// WaitReady blocks until the active document finished loading and has a
	// visible body, or the timeout elapses.
	WaitReady(ctx context.Context, timeout time.Duration) error
	Body(ctx context.Context) (Node, error)
	// Lang returns the declared language of the active document.
	Lang(ctx context.Context) (string, error)
	Viewport(ctx context.Context) (Rect, error)

	// Find returns elements under root that may satisfy q, in document
	// order. Drivers may over-approximate; callers re-check every result.
	Find(ctx context.Context, root Node, q Query) ([]Node, error)
	// WaitVisible waits for the first element matching a CSS selector in
	// the active document to become visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Node, error)

	Frames(ctx context.Context) ([]Node, error)
	SwitchToFrame(ctx context.Context, frame Node) error
	SwitchToDefault(ctx context.Context) error

	// ShadowRoots produces accessible copies of the shadow trees attached
	// under body.
	ShadowRoots(ctx context.Context, body Node) ([]ShadowCopy, error)
	// ResolveInShadow maps an element found inside a copy back to the live
	// element inside the host's shadow tree.
	ResolveInShadow(ctx context.Context, host, n Node) (Node, error)
	RemoveShadowCopies(ctx context.Context) error

	Exec(ctx context.Context, js string) (string, error)
	Screenshot(ctx context.Context, path string) error
	// ScreenshotNode captures only the box of n, which must belong to the
	// active document.
	ScreenshotNode(ctx context.Context, n Node, path string) error
	InstallExtension(ctx context.Context, path string) (string, error)
	UninstallExtension(ctx context.Context, id string) error
}

// Query selects elements under a root.
type Query struct {
	// Selector is a CSS selector list. Empty means every element.
	Selector string
	// Words are normalized keywords. Empty disables keyword filtering.
	Words []string
	// Attrs are attribute names searched for Words besides the text.
	Attrs []string
	// FullText matches Words against the rendered text instead of the
	// element's own text nodes.
	FullText bool
}

// Rect is an axis-aligned box in CSS pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns W*H, or 0 for degenerate boxes.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersects reports whether r and o overlap with a non-zero area.
func (r Rect) Intersects(o Rect) bool {
	if r.Area() == 0 || o.Area() == 0 {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}
