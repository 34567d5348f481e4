package resolve

import (
	"context"
	"testing"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/internal/locate"
)

type fixture struct {
	drv   *htmldom.Driver
	body  dom.Node
	cands []locate.Candidate
}

func setup(t *testing.T, markup string) fixture {
	t.Helper()
	d, err := htmldom.Parse(markup)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	body, err := d.Body(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cands, err := locate.New(nil, nil).Find(ctx, d, body, "en")
	if err != nil {
		t.Fatal(err)
	}
	return fixture{drv: d, body: body, cands: cands}
}

func id(t *testing.T, n dom.Node) string {
	t.Helper()
	v, _, _ := n.Attr(context.Background(), "id")
	return v
}

func TestResolve_FixedAncestor(t *testing.T) {
	f := setup(t, `<body>
		<div id="wrap" style="position:fixed; bottom:0; left:0; width:100%; height:150px">
			<div id="inner"><p>We use cookies to improve your experience.</p><button>Accept all</button></div>
		</div>
		<footer><a>Cookie policy</a></footer>
	</body>`)
	r := New(Config{}, nil, nil)

	strategy, bounds, err := r.Cluster(context.Background(), f.body, f.cands)
	if err != nil {
		t.Fatal(err)
	}
	if strategy != dom.StrategyFixedAncestor {
		t.Fatalf("strategy: got %v", strategy)
	}
	if len(bounds) != 1 || id(t, bounds[0].Root) != "wrap" {
		t.Fatalf("clusters: got %d", len(bounds))
	}
	if got := id(t, bounds[0].Element); got != "inner" {
		t.Fatalf("optimal: got %q, want inner", got)
	}

	out, err := r.Resolve(context.Background(), f.drv, f.body, f.cands, "en")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Strategy != dom.StrategyFixedAncestor {
		t.Fatalf("resolved: got %+v", out)
	}
}

func TestResolve_ZIndexOrdering(t *testing.T) {
	f := setup(t, `<body>
		<div id="low" style="position:absolute; z-index:10; top:0; width:500px; height:100px"><p>cookie notice number one here</p></div>
		<div id="high" style="position:relative; z-index:9999; top:200px; width:500px; height:100px"><p>we use cookies on this site</p></div>
		<div id="flat" style="z-index:50"><p>static cookie text is ignored</p></div>
	</body>`)
	strategy, bounds, err := New(Config{}, nil, nil).Cluster(context.Background(), f.body, f.cands)
	if err != nil {
		t.Fatal(err)
	}
	if strategy != dom.StrategyZIndexCluster {
		t.Fatalf("strategy: got %v", strategy)
	}
	if len(bounds) != 2 {
		t.Fatalf("clusters: got %d, want 2", len(bounds))
	}
	if id(t, bounds[0].Root) != "high" || id(t, bounds[1].Root) != "low" {
		t.Fatalf("order: got %s, %s", id(t, bounds[0].Root), id(t, bounds[1].Root))
	}
}

func TestResolve_DeepestCommon(t *testing.T) {
	f := setup(t, `<body>
		<main><section id="sec"><p>This site uses cookies</p><div><span>GDPR details and more text</span></div></section></main>
	</body>`)
	strategy, bounds, err := New(Config{}, nil, nil).Cluster(context.Background(), f.body, f.cands)
	if err != nil {
		t.Fatal(err)
	}
	if strategy != dom.StrategyDeepestCommon {
		t.Fatalf("strategy: got %v", strategy)
	}
	if len(bounds) != 1 || id(t, bounds[0].Root) != "sec" {
		t.Fatalf("deepest common: got %q", id(t, bounds[0].Root))
	}
}

func TestResolve_NoCandidates(t *testing.T) {
	f := setup(t, `<body><p>nothing relevant</p></body>`)
	strategy, bounds, err := New(Config{}, nil, nil).Cluster(context.Background(), f.body, f.cands)
	if err != nil || strategy != dom.StrategyNone || len(bounds) != 0 {
		t.Fatalf("got %v %d %v", strategy, len(bounds), err)
	}
}

func TestResolve_Filters(t *testing.T) {
	tests := []struct {
		name   string
		markup string
	}{
		{"outside viewport", `<body><div style="position:fixed; top:2000px; width:100px; height:50px">We use cookies on this website</div></body>`},
		{"too few words", `<body><div style="position:fixed; top:0; width:100px; height:50px">Cookies</div></body>`},
		{"hidden", `<body><div style="position:fixed; top:0; width:100px; height:50px; display:none">We use cookies on this website</div></body>`},
		{"password form", `<body><div class="consent-login" style="position:fixed; top:0; width:300px; height:300px">Cookies are required. Please enter credentials <input type="password"></div></body>`},
		{"sign-in dialog", `<body><div id="consent-modal" style="position:fixed; top:0; width:300px; height:300px">Please sign in to continue reading</div></body>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.markup)
			if len(f.cands) == 0 {
				t.Fatal("fixture should produce candidates")
			}
			out, err := New(Config{WordThreshold: 3}, nil, nil).Resolve(context.Background(), f.drv, f.body, f.cands, "en")
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != 0 {
				t.Fatalf("boundary should be filtered, got %d", len(out))
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	markup := `<body>
		<div style="position:sticky; top:0; width:100%; height:80px"><p>cookie banner text one</p></div>
		<div style="position:fixed; bottom:0; width:100%; height:80px"><p>second cookie banner text</p><p>consent choices here</p></div>
	</body>`
	var first []string
	for run := 0; run < 3; run++ {
		f := setup(t, markup)
		strategy, bounds, err := New(Config{}, nil, nil).Cluster(context.Background(), f.body, f.cands)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		got = append(got, strategy.String())
		for _, b := range bounds {
			text, _ := b.Root.Text(context.Background())
			got = append(got, text)
		}
		if run == 0 {
			first = got
			continue
		}
		if len(got) != len(first) {
			t.Fatalf("run %d: got %v, want %v", run, got, first)
		}
		for i := range got {
			if got[i] != first[i] {
				t.Fatalf("run %d: got %v, want %v", run, got, first)
			}
		}
	}
	if len(first) != 3 {
		t.Fatalf("expected two fixed clusters, got %v", first)
	}
}
