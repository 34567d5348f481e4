// CLAUDE:SUMMARY Language-specific consent word lists (embedded YAML) and normalized keyword matching.
// Package words holds the consent keyword lists and the normalization used
// to compare page text against them.
package words

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed lists.yaml
var embedded []byte

// DefaultLang is used when a language has no lists of its own.
const DefaultLang = "en"

// Lists are the keyword lists of one language, already normalized.
type Lists struct {
	Cookie        []string `yaml:"cookie"`
	Accept        []string `yaml:"accept"`
	Reject        []string `yaml:"reject"`
	Settings      []string `yaml:"settings"`
	Login         []string `yaml:"login"`
	Signin        []string `yaml:"signin"`
	NonAcceptable []string `yaml:"non_acceptable"`
}

func (l *Lists) normalize() {
	for _, list := range []*[]string{&l.Cookie, &l.Accept, &l.Reject, &l.Settings, &l.Login, &l.Signin, &l.NonAcceptable} {
		out := (*list)[:0]
		for _, w := range *list {
			if n := Normalize(w); n != "" {
				out = append(out, n)
			}
		}
		*list = out
	}
}

// Catalog maps languages to their lists.
type Catalog struct {
	attr   Lists
	dnsmpi []string
	langs  map[string]Lists
}

type catalogFile struct {
	Attr      Lists            `yaml:"attr"`
	DNSMPI    []string         `yaml:"dnsmpi"`
	Languages map[string]Lists `yaml:"languages"`
}

// Load parses a YAML catalog. It must define the default language.
func Load(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("words: parse: %w", err)
	}
	if _, ok := f.Languages[DefaultLang]; !ok {
		return nil, fmt.Errorf("words: catalog has no %q lists", DefaultLang)
	}
	c := &Catalog{attr: f.Attr, langs: make(map[string]Lists, len(f.Languages))}
	c.attr.normalize()
	for _, p := range f.DNSMPI {
		if n := Normalize(p); n != "" {
			c.dnsmpi = append(c.dnsmpi, n)
		}
	}
	for lang, l := range f.Languages {
		l.normalize()
		c.langs[Base(lang)] = l
	}
	return c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embedded)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// For returns the lists of lang, falling back to the default language.
func (c *Catalog) For(lang string) Lists {
	if l, ok := c.langs[Base(lang)]; ok {
		return l
	}
	return c.langs[DefaultLang]
}

// Attr returns the language-independent attribute lists used for fuzzy
// control matching.
func (c *Catalog) Attr() Lists { return c.attr }

// DNSMPI returns the first opt-out phrase of the catalog that occurs in
// text on token boundaries, or "". text need not be normalized.
func (c *Catalog) DNSMPI(text string) string {
	norm := Normalize(text)
	for _, p := range c.dnsmpi {
		if HasPhrase(norm, []string{p}) {
			return p
		}
	}
	return ""
}

// Supported reports whether lang has lists of its own.
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.langs[Base(lang)]
	return ok
}

// Languages returns the supported base languages, sorted.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.langs))
	for l := range c.langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Base reduces a BCP 47 tag ("de-AT", "pt_BR") to its base language.
// Unparseable input is lower-cased and returned as is.
func Base(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	b, _ := t.Base()
	return b.String()
}
