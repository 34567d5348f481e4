package consent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/record"
	"github.com/hazyhaar/bannerclick/idgen"
)

const bannerPage = `<html lang="en"><body><p>Welcome to the shop.</p>
<div id="cc" style="position:fixed; bottom:0; width:100%; height:120px">
  <p>We use cookies to improve your experience on our website.</p>
  <button id="acc" data-hide="cc">Accept all</button>
</div></body></html>`

const classOnlyPage = `<html lang="en"><body>
<div id="cc" style="position:fixed; bottom:0; width:100%; height:120px">
  <p>We use cookies to improve your experience on our website.</p>
  <button id="x1" class="btn-accept-all"></button>
</div></body></html>`

const emptyPage = `<html lang="en"><body><p>Plain article text without anything special.</p></body></html>`

const framedPage = `<html lang="en"><body><p>Shop</p>
<iframe src="https://cmp.other.test/notice" style="position:fixed; bottom:0; width:100%; height:200px"></iframe>
</body></html>`

const framedNotice = `<body><div>We and our partners use cookies to measure and improve your experience.</div><button id="ok">Accept</button></body>`

// collector is a callback sink recording every persisted result.
type collector struct {
	mu      sync.Mutex
	results []*record.Result
}

func (c *collector) send(_ context.Context, res *record.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	return nil
}

func (c *collector) all() []*record.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*record.Result(nil), c.results...)
}

// sleeps records waits without sleeping.
type sleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestEngine(t *testing.T, choice record.Choice, tune func(*Options)) (*Engine, *collector, *sleeps) {
	t.Helper()
	o := NewOptions(DefaultConfig())
	o.Choice = choice
	if tune != nil {
		tune(&o)
	}
	col, sl := &collector{}, &sleeps{}
	e, err := NewWithOptions(o,
		WithSink(NewCallbackSink(col.send)),
		WithSleep(sl.sleep),
		WithIDGenerator(idgen.Sequential("id-")),
	)
	if err != nil {
		t.Fatal(err)
	}
	return e, col, sl
}

func visit(t *testing.T, e *Engine, drv dom.Driver, domain string) *record.Result {
	t.Helper()
	res, err := e.Visit(context.Background(), e.NewSession(drv), domain)
	if err != nil {
		t.Fatalf("visit %s: %v", domain, err)
	}
	return res
}

func TestVisit_AcceptExplicit(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	d := htmldom.New(htmldom.WithPage("https://shop.test", bannerPage))

	res := visit(t, e, d, "shop.test")
	v := res.Visit
	if v.ID != "id-1" || v.Seq != 1 || v.URL != "https://shop.test" || v.Status != record.StatusLoaded {
		t.Fatalf("visit: %+v", v)
	}
	if len(res.Banners) != 1 || v.Banners != 1 {
		t.Fatalf("banners: got %d (visit says %d)", len(res.Banners), v.Banners)
	}
	b := res.Banners[0]
	if b.Kind != record.KindPlain || b.Strategy != dom.StrategyFixedAncestor.String() || b.VisitID != v.ID {
		t.Fatalf("banner: %+v", b)
	}
	if b.W != 1280 || b.H != 120 {
		t.Fatalf("banner box: %vx%v", b.W, b.H)
	}
	if len(res.Interactions) != 1 {
		t.Fatalf("interactions: got %d", len(res.Interactions))
	}
	o := res.Interactions[0]
	if !o.Success || !o.Explicit || o.Source != record.SourceDirect || o.BannerID != b.ID {
		t.Fatalf("outcome: %+v", o)
	}
	if o.ButtonStatus() != 1 || v.InteractedAt.IsZero() {
		t.Fatalf("button status %d, interacted at %v", o.ButtonStatus(), v.InteractedAt)
	}
	if clicks := d.Clicks(); len(clicks) != 1 || clicks[0].ID != "acc" {
		t.Fatalf("clicks: %+v", clicks)
	}
	if got := col.all(); len(got) != 1 || got[0] != res {
		t.Fatalf("persisted %d results", len(got))
	}
}

func TestVisit_NonExplicitTier(t *testing.T) {
	t.Run("explicit only", func(t *testing.T) {
		e, _, _ := newTestEngine(t, record.ChoiceAccept, func(o *Options) { o.Interaction.NonExplicit = false })
		res := visit(t, e, htmldom.New(htmldom.WithPage("https://shop.test", classOnlyPage)), "shop.test")
		if len(res.Interactions) != 1 || res.Interactions[0].Success {
			t.Fatalf("interactions: %+v", res.Interactions)
		}
		if res.Interactions[0].ButtonStatus() != 0 {
			t.Fatalf("button status: %d", res.Interactions[0].ButtonStatus())
		}
	})
	t.Run("fuzzy", func(t *testing.T) {
		e, _, _ := newTestEngine(t, record.ChoiceAccept, nil)
		res := visit(t, e, htmldom.New(htmldom.WithPage("https://shop.test", classOnlyPage)), "shop.test")
		if len(res.Interactions) != 1 {
			t.Fatalf("interactions: %+v", res.Interactions)
		}
		o := res.Interactions[0]
		if !o.Success || o.Explicit || o.ButtonStatus() != -1 {
			t.Fatalf("outcome: %+v", o)
		}
	})
}

func TestVisit_NoBanner(t *testing.T) {
	e, col, sl := newTestEngine(t, record.ChoiceAccept, nil)
	res := visit(t, e, htmldom.New(htmldom.WithPage("https://plain.test", emptyPage)), "plain.test")

	if res.Visit.Status != record.StatusLoaded || len(res.Banners) != 0 || len(res.Interactions) != 0 {
		t.Fatalf("result: %+v", res)
	}
	step := e.Options().Detection.AttemptStep
	attempts := e.Options().Detection.Attempts
	if res.Visit.TTW != time.Duration(attempts)*step {
		t.Fatalf("ttw: got %v, want %v", res.Visit.TTW, time.Duration(attempts)*step)
	}
	n := 0
	for _, w := range sl.waits {
		if w == step {
			n++
		}
	}
	if n != attempts {
		t.Fatalf("attempt waits: got %d, want %d (%v)", n, attempts, sl.waits)
	}
	if got := col.all(); len(got) != 1 || len(got[0].Banners) != 0 {
		t.Fatalf("persisted: %+v", got)
	}
}

func TestVisit_FramedBanner(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceAccept, nil)
	d := htmldom.New(
		htmldom.WithPage("https://shop.test", framedPage),
		htmldom.WithPage("https://cmp.other.test/notice", framedNotice),
	)
	res := visit(t, e, d, "shop.test")
	if len(res.Banners) != 1 || res.Banners[0].Kind != record.KindFramed {
		t.Fatalf("banners: %+v", res.Banners)
	}
	if len(res.Interactions) != 1 || !res.Interactions[0].Success {
		t.Fatalf("interactions: %+v", res.Interactions)
	}
	if clicks := d.Clicks(); len(clicks) != 1 || clicks[0].ID != "ok" {
		t.Fatalf("clicks: %+v", clicks)
	}
}

func TestVisit_DetectOnly(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, nil)
	d := htmldom.New(htmldom.WithPage("https://shop.test", bannerPage))
	res := visit(t, e, d, "shop.test")
	if len(res.Banners) != 1 || len(res.Interactions) != 0 || len(d.Clicks()) != 0 {
		t.Fatalf("result: %+v clicks=%v", res, d.Clicks())
	}
	if !res.Visit.InteractedAt.IsZero() {
		t.Fatalf("interacted at: %v", res.Visit.InteractedAt)
	}
}

func TestVisit_Unreachable(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	res := visit(t, e, htmldom.New(), "gone.test")
	if res.Visit.Status != record.StatusUnreachable || len(res.Banners) != 0 {
		t.Fatalf("result: %+v", res.Visit)
	}
	if len(col.all()) != 1 {
		t.Fatalf("persisted: %d", len(col.all()))
	}
}

func TestVisit_SaveBody(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, func(o *Options) { o.SaveBody = true })
	res := visit(t, e, htmldom.New(htmldom.WithPage("https://shop.test", bannerPage)), "shop.test")
	if !strings.Contains(res.Visit.BodyHTML, "We use cookies") {
		t.Fatalf("body: %q", res.Visit.BodyHTML)
	}
}

// deadDriver loses its browser once the page is loaded.
type deadDriver struct {
	*htmldom.Driver
}

func (d deadDriver) Body(context.Context) (dom.Node, error) {
	return nil, fmt.Errorf("websocket closed: %w", dom.ErrSessionDead)
}

func TestVisit_SessionDead(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	d := deadDriver{htmldom.New(htmldom.WithPage("https://shop.test", bannerPage))}

	res, err := e.Visit(context.Background(), e.NewSession(d), "shop.test")
	if !errors.Is(err, dom.ErrSessionDead) {
		t.Fatalf("got %v, want session fault", err)
	}
	got := col.all()
	if len(got) != 1 || got[0].Visit.Status != record.StatusError || res.Visit.Status != record.StatusError {
		t.Fatalf("persisted: %+v", got)
	}
	if got[0].Visit.FinishedAt.IsZero() {
		t.Fatal("finished_at not set")
	}
}

func TestVisit_Cancelled(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Detection retries wait through the cancelled context.
	_, err := e.Visit(ctx, e.NewSession(htmldom.New(htmldom.WithPage("https://plain.test", emptyPage))), "plain.test")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if got := col.all(); len(got) != 1 || got[0].Visit.Status != record.StatusError {
		t.Fatalf("persisted: %+v", got)
	}
}

func TestVisit_SessionCountsVisits(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, nil)
	s := e.NewSession(htmldom.New(htmldom.WithPage("https://a.test", emptyPage), htmldom.WithPage("https://b.test", bannerPage)))
	ctx := context.Background()
	r1, _ := e.Visit(ctx, s, "a.test")
	r2, _ := e.Visit(ctx, s, "b.test")
	if r1.Visit.Seq != 1 || r2.Visit.Seq != 2 || s.Visits() != 2 {
		t.Fatalf("seq: %d %d visits=%d", r1.Visit.Seq, r2.Visit.Seq, s.Visits())
	}
	if len(r2.Banners) != 1 {
		t.Fatalf("second visit banners: %d", len(r2.Banners))
	}
}

func TestAnalyzeHTML(t *testing.T) {
	e, col, sl := newTestEngine(t, record.ChoiceAccept, nil)
	res, err := e.AnalyzeHTML(context.Background(), "saved.html", bannerPage)
	if err != nil {
		t.Fatal(err)
	}
	if res.Visit.Domain != "saved.html" || res.Visit.Status != record.StatusLoaded {
		t.Fatalf("visit: %+v", res.Visit)
	}
	if len(res.Banners) != 1 || len(res.Interactions) != 0 {
		t.Fatalf("banners=%d interactions=%d", len(res.Banners), len(res.Interactions))
	}
	if len(sl.waits) != 0 {
		t.Fatalf("offline analysis waited: %v", sl.waits)
	}
	if len(col.all()) != 1 {
		t.Fatalf("persisted: %d", len(col.all()))
	}
}

func TestAnalyzeFile(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, nil)
	path := filepath.Join(t.TempDir(), "example.test.html")
	if err := os.WriteFile(path, []byte(emptyPage), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := e.AnalyzeFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Visit.Domain != "example.test.html" || len(res.Banners) != 0 {
		t.Fatalf("result: %+v", res)
	}
	if _, err := e.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interaction.Choice = "maybe"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNew_WordsFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.Words = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for missing word lists")
	}
}

func TestVisit_DNSMPI(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	page := strings.Replace(bannerPage, "<p>Welcome to the shop.</p>",
		`<p>Welcome to the shop.</p><footer><a href="/ccpa">Do Not Sell
		My Personal Information</a></footer>`, 1)

	res := visit(t, e, htmldom.New(htmldom.WithPage("https://shop.test", page)), "shop.test")
	if res.Visit.DNSMPI != "do not sell my personal information" {
		t.Fatalf("dnsmpi: %q", res.Visit.DNSMPI)
	}
	if got := col.all(); got[0].Visit.DNSMPI != res.Visit.DNSMPI {
		t.Fatal("dnsmpi not persisted")
	}

	plain := visit(t, e, htmldom.New(htmldom.WithPage("https://plain.test", emptyPage)), "plain.test")
	if plain.Visit.DNSMPI != "" {
		t.Fatalf("dnsmpi on plain page: %q", plain.Visit.DNSMPI)
	}
}

func TestVisit_Screenshots(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, func(o *Options) {
		o.Screenshots = "/shots"
		o.NoBannerShots = true
	})

	withBanner := htmldom.New(htmldom.WithPage("https://shop.test", bannerPage))
	visit(t, e, withBanner, "shop.test")
	want := []string{"/shots/1 shop.test.png", "/shots/1 shop.test_banner1.png"}
	if got := withBanner.Screenshots(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("banner page shots: %v, want %v", got, want)
	}

	noBanner := htmldom.New(htmldom.WithPage("https://plain.test", emptyPage))
	visit(t, e, noBanner, "plain.test")
	if got := noBanner.Screenshots(); len(got) != 1 || got[0] != "/shots/nobanner/1 plain.test.png" {
		t.Fatalf("no-banner shots: %v", got)
	}

	quiet, _, _ := newTestEngine(t, record.ChoiceNone, func(o *Options) { o.Screenshots = "/shots" })
	d := htmldom.New(htmldom.WithPage("https://plain.test", emptyPage))
	visit(t, quiet, d, "plain.test")
	if got := d.Screenshots(); len(got) != 0 {
		t.Fatalf("no-banner shots taken while disabled: %v", got)
	}
}
