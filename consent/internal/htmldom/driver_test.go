package htmldom

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

const page = `<html lang="de"><body>
<div id="bar" style="position:fixed; bottom:0; left:0; width:100%; height:120px; z-index:999">
  <p id="msg">Wir verwenden Cookies</p>
  <button id="ok" data-hide="bar">Alle akzeptieren</button>
  <button id="more" style="display:none">Mehr</button>
</div>
<iframe id="cmp" style="width:400px; height:300px; top:10px; left:10px" srcdoc="<body><p id='inner'>cookie notice</p></body>"></iframe>
<div id="host"><template shadowrootmode="open"><p>shadow cookie text</p></template></div>
</body></html>`

func mustParse(t *testing.T, markup string, opts ...Option) *Driver {
	t.Helper()
	d, err := Parse(markup, opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func byID(t *testing.T, d *Driver, id string) dom.Node {
	t.Helper()
	ctx := context.Background()
	body, err := d.Body(ctx)
	if err != nil {
		t.Fatal(err)
	}
	nodes, err := d.Find(ctx, body, dom.Query{Selector: "#" + id})
	if err != nil || len(nodes) != 1 {
		t.Fatalf("find #%s: %v (%d nodes)", id, err, len(nodes))
	}
	return nodes[0]
}

func TestDriver_Geometry(t *testing.T) {
	d := mustParse(t, page)
	ctx := context.Background()

	r, _ := byID(t, d, "bar").Rect(ctx)
	want := dom.Rect{X: 0, Y: 600, W: 1280, H: 120}
	if r != want {
		t.Fatalf("bar rect: got %+v, want %+v", r, want)
	}
	r, _ = byID(t, d, "msg").Rect(ctx)
	if r != want {
		t.Fatalf("child without size should inherit: got %+v", r)
	}
	pos, _ := byID(t, d, "bar").Style(ctx, "position")
	if pos != "fixed" {
		t.Fatalf("position: got %q", pos)
	}
	z, _ := byID(t, d, "msg").Style(ctx, "z-index")
	if z != "auto" {
		t.Fatalf("default z-index: got %q", z)
	}
}

func TestDriver_VisibilityAndText(t *testing.T) {
	d := mustParse(t, page)
	ctx := context.Background()

	if ok, _ := byID(t, d, "more").Visible(ctx); ok {
		t.Fatal("display:none button should be invisible")
	}
	text, _ := byID(t, d, "bar").Text(ctx)
	if text != "Wir verwenden Cookies Alle akzeptieren" {
		t.Fatalf("text: got %q", text)
	}
	host, _ := byID(t, d, "host").Text(ctx)
	if host != "" {
		t.Fatalf("shadow content leaked into host text: %q", host)
	}
	lang, _ := d.Lang(ctx)
	if lang != "de" {
		t.Fatalf("lang: got %q", lang)
	}
}

func TestDriver_ClickEffects(t *testing.T) {
	d := mustParse(t, page)
	ctx := context.Background()

	if err := byID(t, d, "ok").Click(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := byID(t, d, "bar").Visible(ctx); ok {
		t.Fatal("bar should be hidden after click")
	}
	if len(d.Clicks()) != 1 || d.Clicks()[0].ID != "ok" {
		t.Fatalf("clicks: got %+v", d.Clicks())
	}
	err := byID(t, d, "more").Click(ctx)
	if !errors.Is(err, dom.ErrNotInteractable) {
		t.Fatalf("click hidden: got %v", err)
	}
}

func TestDriver_Frames(t *testing.T) {
	d := mustParse(t, page)
	ctx := context.Background()

	frames, _ := d.Frames(ctx)
	if len(frames) != 1 {
		t.Fatalf("frames: got %d", len(frames))
	}
	if err := d.SwitchToFrame(ctx, frames[0]); err != nil {
		t.Fatal(err)
	}
	vp, _ := d.Viewport(ctx)
	if vp.W != 400 || vp.H != 300 {
		t.Fatalf("frame viewport: got %+v", vp)
	}
	inner := byID(t, d, "inner")
	if text, _ := inner.Text(ctx); text != "cookie notice" {
		t.Fatalf("inner text: got %q", text)
	}
	d.SwitchToDefault(ctx)
	vp, _ = d.Viewport(ctx)
	if vp.W != 1280 {
		t.Fatalf("default viewport: got %+v", vp)
	}
}

func TestDriver_ShadowRoots(t *testing.T) {
	d := mustParse(t, page)
	ctx := context.Background()
	body, _ := d.Body(ctx)

	copies, err := d.ShadowRoots(ctx, body)
	if err != nil || len(copies) != 1 {
		t.Fatalf("shadow roots: %v (%d)", err, len(copies))
	}
	text, _ := copies[0].Root.Text(ctx)
	if text != "shadow cookie text" {
		t.Fatalf("copy text: got %q", text)
	}
	nodes, _ := d.Find(ctx, body, dom.Query{Selector: "p"})
	for _, n := range nodes {
		if txt, _ := n.Text(ctx); txt == "shadow cookie text" {
			t.Fatal("Find on body must not descend into shadow trees")
		}
	}
}

func TestDriver_Navigate(t *testing.T) {
	d := New(WithPage("https://a.test", "<body>hi</body>"), WithFailure("https://slow.test", dom.ErrTimeout))
	ctx := context.Background()

	if err := d.Navigate(ctx, "https://slow.test", 0); !errors.Is(err, dom.ErrTimeout) {
		t.Fatalf("slow: got %v", err)
	}
	if err := d.Navigate(ctx, "https://missing.test", 0); !errors.Is(err, dom.ErrUnreachable) {
		t.Fatalf("missing: got %v", err)
	}
	if err := d.Navigate(ctx, "https://a.test", 0); err != nil {
		t.Fatal(err)
	}
	u, _ := d.CurrentURL(ctx)
	if u != "https://a.test" {
		t.Fatalf("url: got %q", u)
	}
}

func TestDriver_Extension(t *testing.T) {
	d := mustParse(t, page, WithExtension("/ext/nc.js", "#bar"))
	ctx := context.Background()

	id, err := d.InstallExtension(ctx, "/ext/nc.js")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := byID(t, d, "bar").Visible(ctx); ok {
		t.Fatal("extension should hide the bar")
	}
	if err := d.UninstallExtension(ctx, id); err != nil {
		t.Fatal(err)
	}
	if d.Installed() != 0 {
		t.Fatalf("installed: got %d", d.Installed())
	}
}
