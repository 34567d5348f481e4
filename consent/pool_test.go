package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// fakeBrowser opens htmldom sessions serving the same pages. Navigating to
// a host listed in kill kills the session.
type fakeBrowser struct {
	pages map[string]string
	kill  map[string]bool

	mu     sync.Mutex
	opened int
	closed int
	fail   error
}

func (b *fakeBrowser) open(context.Context) (dom.Driver, func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return nil, nil, b.fail
	}
	b.opened++
	var opts []htmldom.Option
	for u, m := range b.pages {
		opts = append(opts, htmldom.WithPage(u, m))
	}
	for host := range b.kill {
		opts = append(opts,
			htmldom.WithFailure("https://"+host, fmt.Errorf("navigate: %w", dom.ErrSessionDead)))
	}
	return htmldom.New(opts...), func() error {
		b.mu.Lock()
		b.closed++
		b.mu.Unlock()
		return nil
	}, nil
}

func (b *fakeBrowser) counts() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed
}

func TestPool_Visit(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	fb := &fakeBrowser{pages: map[string]string{"https://shop.test": bannerPage}}
	p := newPool(e, 2, 0, fb.open)

	res, err := p.Visit(context.Background(), "shop.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Banners) != 1 || len(res.Interactions) != 1 {
		t.Fatalf("result: %+v", res)
	}
	if opened, closed := fb.counts(); opened != 1 || closed != 1 {
		t.Fatalf("sessions opened=%d closed=%d", opened, closed)
	}
	if len(col.all()) != 1 {
		t.Fatalf("persisted: %d", len(col.all()))
	}
}

func TestPool_VisitOpenFailure(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	fb := &fakeBrowser{fail: fmt.Errorf("no browser: %w", dom.ErrSessionDead)}
	p := newPool(e, 1, 0, fb.open)

	res, err := p.Visit(context.Background(), "shop.test")
	if !errors.Is(err, dom.ErrSessionDead) {
		t.Fatalf("got %v, want session fault", err)
	}
	if res == nil || res.Visit.Status != record.StatusError || res.Visit.Domain != "shop.test" {
		t.Fatalf("result: %+v", res)
	}
	if got := col.all(); len(got) != 1 || got[0].Visit.Status != record.StatusError {
		t.Fatalf("persisted: %+v", got)
	}
}

func TestPool_RunOneVisitPerDomain(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	fb := &fakeBrowser{pages: map[string]string{
		"https://a.test": bannerPage,
		"https://b.test": emptyPage,
		"https://c.test": bannerPage,
	}}
	p := newPool(e, 2, 0, fb.open)

	domains := []string{"a.test", "b.test", "c.test", "d.test"}
	if err := p.Run(context.Background(), domains); err != nil {
		t.Fatal(err)
	}
	got := map[string]record.Status{}
	for _, r := range col.all() {
		if _, dup := got[r.Visit.Domain]; dup {
			t.Fatalf("domain %s persisted twice", r.Visit.Domain)
		}
		got[r.Visit.Domain] = r.Visit.Status
	}
	if len(got) != len(domains) {
		t.Fatalf("persisted %d visits, want %d: %v", len(got), len(domains), got)
	}
	if got["d.test"] != record.StatusUnreachable || got["a.test"] != record.StatusLoaded {
		t.Fatalf("statuses: %v", got)
	}
	if opened, closed := fb.counts(); opened > 2 || opened != closed {
		t.Fatalf("sessions opened=%d closed=%d", opened, closed)
	}
}

func TestPool_RunReplacesDeadSession(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceAccept, nil)
	fb := &fakeBrowser{
		pages: map[string]string{"https://a.test": bannerPage, "https://c.test": bannerPage},
		kill:  map[string]bool{"b.test": true},
	}
	p := newPool(e, 1, 0, fb.open)

	if err := p.Run(context.Background(), []string{"a.test", "b.test", "c.test"}); err != nil {
		t.Fatal(err)
	}
	results := col.all()
	if len(results) != 3 {
		t.Fatalf("persisted %d visits", len(results))
	}
	if results[1].Visit.Domain != "b.test" || results[1].Visit.Status != record.StatusError {
		t.Fatalf("dead visit: %+v", results[1].Visit)
	}
	if results[2].Visit.Status != record.StatusLoaded || len(results[2].Banners) != 1 {
		t.Fatalf("visit after replacement: %+v", results[2].Visit)
	}
	// The replacement session starts counting from one.
	if results[2].Visit.Seq != 1 {
		t.Fatalf("seq after replacement: %d", results[2].Visit.Seq)
	}
	if opened, closed := fb.counts(); opened != 2 || closed != 2 {
		t.Fatalf("sessions opened=%d closed=%d", opened, closed)
	}
}

func TestPool_RunVisitsPerSession(t *testing.T) {
	e, _, _ := newTestEngine(t, record.ChoiceNone, nil)
	fb := &fakeBrowser{pages: map[string]string{"https://a.test": emptyPage}}
	p := newPool(e, 1, 2, fb.open)

	if err := p.Run(context.Background(), []string{"a.test", "a.test", "a.test", "a.test", "a.test"}); err != nil {
		t.Fatal(err)
	}
	if opened, closed := fb.counts(); opened != 3 || closed != 3 {
		t.Fatalf("sessions opened=%d closed=%d", opened, closed)
	}
}

func TestPool_RunCancelled(t *testing.T) {
	e, col, _ := newTestEngine(t, record.ChoiceNone, nil)
	fb := &fakeBrowser{pages: map[string]string{"https://a.test": emptyPage}}
	p := newPool(e, 1, 0, fb.open)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, []string{"a.test", "a.test"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if n := len(col.all()); n > 1 {
		t.Fatalf("persisted %d visits after cancel", n)
	}
}

func TestReadDomains(t *testing.T) {
	in := "example.com\n\n  news.test  \nhttps://explicit.test/path\n# tail\nignored.test\n"
	got, err := ReadDomains(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"example.com", "news.test", "https://explicit.test/path"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	got, _ = ReadDomains(strings.NewReader("a.test\n$end\nb.test"))
	if len(got) != 1 || got[0] != "a.test" {
		t.Fatalf("dollar terminator: got %v", got)
	}
}
