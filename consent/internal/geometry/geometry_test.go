package geometry

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

const page = `<html><body>
<div id="bar" style="position:fixed; bottom:0; left:0; width:100%; height:120px">
  <p>OK</p><button onclick="go()">Accept</button><script>track()</script>
</div>
<iframe id="cmp" style="width:400px; height:300px" srcdoc="<body><p>cookies</p></body>"></iframe>
</body></html>`

func byID(t *testing.T, d dom.Driver, id string) dom.Node {
	t.Helper()
	ctx := context.Background()
	body, _ := d.Body(ctx)
	nodes, err := d.Find(ctx, body, dom.Query{Selector: "#" + id})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("find #%s: %v (%d nodes)", id, err, len(nodes))
	}
	return nodes[0]
}

type goneNode struct{ dom.Node }

func (goneNode) Rect(context.Context) (dom.Rect, error) { return dom.Rect{}, dom.ErrStale }

func TestCapture_Geometry(t *testing.T) {
	d, err := htmldom.Parse(page)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	frame := byID(t, d, "cmp")
	d.SwitchToFrame(ctx, frame)
	inner, _ := d.Body(ctx)
	d.SwitchToDefault(ctx)

	banners := []dom.Banner{
		dom.Plain(byID(t, d, "bar"), dom.StrategyFixedAncestor, []string{"cookie"}),
		dom.Plain(goneNode{}, dom.StrategyDeepestCommon, nil),
		dom.Framed(frame, inner, nil),
	}
	recs, err := New(Config{}, nil).Capture(ctx, d, banners, "fr")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records: got %d, want 2 (stale banner skipped)", len(recs))
	}

	bar := recs[0]
	if bar.Kind != record.KindPlain || bar.Strategy != "fixed_ancestor" {
		t.Fatalf("bar: %+v", bar)
	}
	if bar.X != 0 || bar.Y != 600 || bar.W != 1280 || bar.H != 120 {
		t.Fatalf("bar box: %+v", bar)
	}
	if math.Abs(bar.CapturedArea-1.0/6) > 1e-9 {
		t.Fatalf("bar area: %v", bar.CapturedArea)
	}
	if bar.Lang != "fr" {
		t.Fatalf("short text should fall back to page lang, got %q", bar.Lang)
	}
	if bar.HTML != "" || bar.Text != "" {
		t.Fatal("markup captured while disabled")
	}

	cmp := recs[1]
	if cmp.Kind != record.KindFramed || cmp.Strategy != "none" {
		t.Fatalf("frame: %+v", cmp)
	}
	if cmp.W != 400 || cmp.H != 300 {
		t.Fatalf("frame box: %+v", cmp)
	}

	// Capture leaves the browser on the top-level document.
	byID(t, d, "bar")
}

func TestCapture_Markup(t *testing.T) {
	d, _ := htmldom.Parse(page)
	ctx := context.Background()
	banners := []dom.Banner{dom.Plain(byID(t, d, "bar"), dom.StrategyZIndexCluster, nil)}

	recs, err := New(Config{Markup: true, Sanitize: true, Markdown: true}, nil).Capture(ctx, d, banners, "")
	if err != nil || len(recs) != 1 {
		t.Fatalf("capture: %v %d", err, len(recs))
	}
	rec := recs[0]
	if strings.Contains(rec.HTML, "<script") || strings.Contains(rec.HTML, "onclick") {
		t.Fatalf("markup not sanitized: %s", rec.HTML)
	}
	if !strings.Contains(rec.Text, "Accept") {
		t.Fatalf("markdown: %q", rec.Text)
	}
	if rec.Lang != "en" {
		t.Fatalf("lang fallback: %q", rec.Lang)
	}
}
