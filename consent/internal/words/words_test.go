package words

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Paramètres   des COOKIES ", "parametres des cookies"},
		{"Einwilligung\tÄndern", "einwilligung andern"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasPhrase_TokenBoundaries(t *testing.T) {
	if !HasPhrase("accept all", []string{"accept"}) {
		t.Fatal("accept should match accept all")
	}
	if HasPhrase("acceptable use", []string{"accept"}) {
		t.Fatal("accept should not match acceptable")
	}
	if !HasPhrase("ok, got it!", []string{"got it"}) {
		t.Fatal("multi-token phrase should match across punctuation")
	}
}

func TestContainsAny(t *testing.T) {
	hits := ContainsAny("we use cookies to improve", []string{"cookie", "gdpr", "we use"})
	if len(hits) != 2 || hits[0] != "cookie" || hits[1] != "we use" {
		t.Fatalf("hits: got %v", hits)
	}
}

func TestCatalog_Fallback(t *testing.T) {
	c := Default()
	if !c.Supported("de-AT") {
		t.Fatal("de-AT should resolve to de")
	}
	if c.Supported("xx") {
		t.Fatal("xx should not be supported")
	}
	en := c.For("xx")
	if len(en.Cookie) == 0 || en.Cookie[0] != "cookie" {
		t.Fatalf("fallback lists: got %v", en.Cookie)
	}
	fr := c.For("fr")
	found := false
	for _, w := range fr.Settings {
		if w == "parametres" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fr settings not normalized: %v", fr.Settings)
	}
}

func TestLoad_RequiresDefault(t *testing.T) {
	if _, err := Load([]byte("languages:\n  de:\n    cookie: [cookie]\n")); err == nil {
		t.Fatal("expected error without en lists")
	}
}

func TestBase(t *testing.T) {
	tests := map[string]string{"pt_BR": "pt", "EN-us": "en", "": "", "fr": "fr"}
	for in, want := range tests {
		if got := Base(in); got != want {
			t.Errorf("Base(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectLang(t *testing.T) {
	if got := DetectLang("ok"); got != "" {
		t.Fatalf("short text: got %q", got)
	}
	got := DetectLang("Wir verwenden Cookies, um Ihnen das beste Nutzererlebnis auf unserer Webseite zu bieten und die Zugriffe zu analysieren.")
	if got != "de" {
		t.Fatalf("german text: got %q", got)
	}
}

func TestCatalog_DNSMPI(t *testing.T) {
	c := Default()
	tests := []struct{ text, want string }{
		{"Privacy Policy | Do Not Sell\n  My Personal Information | Terms", "do not sell my personal information"},
		{"Your Privacy Choices", "your privacy choices"},
		{"We never sell my information to anyone", ""},
		{"do not sell my information", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.DNSMPI(tt.text); got != tt.want {
			t.Errorf("DNSMPI(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
