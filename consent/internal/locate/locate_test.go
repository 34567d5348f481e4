package locate

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
)

func find(t *testing.T, markup, lang string) []Candidate {
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
	cands, err := New(nil, nil).Find(ctx, d, body, lang)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return cands
}

func TestFind_TextAndAttributes(t *testing.T) {
	cands := find(t, `<body>
		<div class="CookieBanner"><span>Nous utilisons des COOKIES</span></div>
		<p>unrelated</p>
		<a id="gdpr-link">more</a>
	</body>`, "en")
	if len(cands) != 3 {
		t.Fatalf("candidates: got %d, want 3", len(cands))
	}
	if cands[0].Node.Tag() != "div" || cands[1].Node.Tag() != "span" || cands[2].Node.Tag() != "a" {
		t.Fatalf("order: got %s %s %s", cands[0].Node.Tag(), cands[1].Node.Tag(), cands[2].Node.Tag())
	}
}

func TestFind_Empty(t *testing.T) {
	cands := find(t, `<body><p>Welcome to our shop</p><script>var cookie = 1</script></body>`, "en")
	if len(cands) != 0 {
		t.Fatalf("candidates: got %d, want 0", len(cands))
	}
}

func TestFind_DiacriticsAndLanguage(t *testing.T) {
	cands := find(t, `<body><p>Vos données personnelles</p></body>`, "fr")
	if len(cands) != 1 {
		t.Fatalf("fr candidates: got %d, want 1", len(cands))
	}
	if got := find(t, `<body><p>Vos données personnelles</p></body>`, "en"); len(got) != 0 {
		t.Fatalf("en list should not match french phrase, got %d", len(got))
	}
}

// Every candidate must really contain a keyword, whatever the driver
// pre-filter returned.
func TestFind_SubsetOfMatches(t *testing.T) {
	markup := `<body><div id="a">cookie</div><div id="b">nothing</div><div class="x">Privacy and consent</div><ul><li>GDPR</li></ul></body>`
	keywords := words.Default().For("en").Cookie
	for _, c := range find(t, markup, "en") {
		own, _ := c.Node.OwnText(context.Background())
		id, _, _ := c.Node.Attr(context.Background(), "id")
		cls, _, _ := c.Node.Attr(context.Background(), "class")
		hay := words.Normalize(own + " " + id + " " + cls)
		ok := false
		for _, k := range keywords {
			if strings.Contains(hay, k) {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("candidate %s has no keyword", c.Node.Key())
		}
	}
}

func TestMatch_Keywords(t *testing.T) {
	d, _ := htmldom.Parse(`<body><div name="consent-box">We use cookies</div></body>`)
	ctx := context.Background()
	body, _ := d.Body(ctx)
	nodes, _ := d.Find(ctx, body, dom.Query{Selector: "div"})
	hits, err := Match(ctx, nodes[0], []string{"cookie", "consent", "gdpr"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: got %v", hits)
	}
}
