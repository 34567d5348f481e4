package detect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
)

// Translator translates the active page in place.
type Translator interface {
	Translate(ctx context.Context, drv dom.Driver, lang string) error
}

// URLTranslator loads the page through a translation proxy. Template may
// reference {url} (query-escaped current URL) and {lang} (source language).
type URLTranslator struct {
	Template string
	Timeout  time.Duration
}

func (t URLTranslator) Translate(ctx context.Context, drv dom.Driver, lang string) error {
	if t.Template == "" {
		return fmt.Errorf("detect: no translation template")
	}
	cur, err := drv.CurrentURL(ctx)
	if err != nil {
		return err
	}
	target := strings.NewReplacer("{url}", url.QueryEscape(cur), "{lang}", lang).Replace(t.Template)
	if err := drv.Navigate(ctx, target, t.Timeout); err != nil {
		return err
	}
	return drv.WaitReady(ctx, t.Timeout)
}
