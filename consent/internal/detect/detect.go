// CLAUDE:SUMMARY Detection retry/translate state machine around the cross-boundary banner search.
// Package detect runs banner detection for one visit: the cross-boundary
// search over the document, its iframes and, as a last resort, its shadow
// trees, wrapped in a bounded retry and translate state machine.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/locate"
	"github.com/hazyhaar/bannerclick/consent/internal/resolve"
	"github.com/hazyhaar/bannerclick/consent/internal/session"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// staleRetries caps the recovery from a stale DOM during one search.
const staleRetries = 1

// Config drives the state machine.
type Config struct {
	// Attempts is the number of extra searches after the first one.
	Attempts int
	// AttemptStep is the wait before each extra search.
	AttemptStep time.Duration
	// Translation enables the translate-and-rescan step.
	Translation bool
	// WordThreshold is the minimum word count of a banner.
	WordThreshold int
	// ReadyTimeout bounds the wait for a loaded document before a search.
	ReadyTimeout time.Duration
	// Settle is slept after the document is ready.
	Settle time.Duration
	// StaleBackoff is slept before re-running a search that hit a stale
	// element.
	StaleBackoff time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Detector.
type Option func(*Detector)

// WithSleep replaces the wait used between attempts.
func WithSleep(fn SleepFunc) Option { return func(d *Detector) { d.sleep = fn } }

// WithTranslator sets the page translator.
func WithTranslator(t Translator) Option { return func(d *Detector) { d.translator = t } }

// Detector is stateless across visits; all visit state lives in the session.
type Detector struct {
	cfg        Config
	words      *words.Catalog
	locator    *locate.Locator
	resolver   *resolve.Resolver
	translator Translator
	sleep      SleepFunc
	logger     *slog.Logger
}

// New creates a Detector.
func New(cfg Config, cat *words.Catalog, logger *slog.Logger, opts ...Option) *Detector {
	if cat == nil {
		cat = words.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		cfg:      cfg,
		words:    cat,
		locator:  locate.New(cat, logger),
		resolver: resolve.New(resolve.Config{WordThreshold: cfg.WordThreshold}, cat, logger),
		sleep:    sleepCtx,
		logger:   logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run detects the banners of the page loaded in the session and updates
// the visit: language, time-to-wait and, for translate or error
// terminals, status.
//
// A search that finds nothing is retried up to Attempts times, each after
// AttemptStep. When every attempt fails, translation is enabled and the
// page is in a supported non-English language, the page is translated and
// searched once more with that language's keywords. Any search failure
// ends in status=error with no banners. Only a dead session or a cancelled
// context is returned as an error.
func (d *Detector) Run(ctx context.Context, s *session.Session) ([]dom.Banner, error) {
	v := s.Visit

	banners, err := d.search(ctx, s, words.DefaultLang)
	if err != nil {
		return d.fail(ctx, s, err)
	}
	v.Lang = d.PageLang(ctx, s.Driver)

	for att := 0; att < d.cfg.Attempts && len(banners) == 0; att++ {
		if err := d.sleep(ctx, d.cfg.AttemptStep); err != nil {
			return d.fail(ctx, s, err)
		}
		banners, err = d.search(ctx, s, words.DefaultLang)
		if err != nil {
			return d.fail(ctx, s, err)
		}
		v.TTW = time.Duration(att+1) * d.cfg.AttemptStep
		d.logger.Debug("detect: retry", "domain", v.Domain, "attempt", att+1, "banners", len(banners))
	}

	if len(banners) == 0 && d.shouldTranslate(v.Lang) {
		if d.translator == nil {
			d.logger.Warn("detect: translation enabled without translator", "domain", v.Domain)
			return nil, nil
		}
		if err := d.translator.Translate(ctx, s.Driver, v.Lang); err != nil {
			return d.fail(ctx, s, fmt.Errorf("detect: translate: %w", err))
		}
		v.Status = record.StatusTranslated
		banners, err = d.search(ctx, s, v.Lang)
		if err != nil {
			return d.fail(ctx, s, err)
		}
		d.logger.Info("detect: translated rescan", "domain", v.Domain, "lang", v.Lang, "banners", len(banners))
	}
	return banners, nil
}

func (d *Detector) shouldTranslate(lang string) bool {
	base := words.Base(lang)
	return d.cfg.Translation && base != "" && base != words.DefaultLang && d.words.Supported(base)
}

func (d *Detector) fail(ctx context.Context, s *session.Session, err error) ([]dom.Banner, error) {
	s.Visit.Status = record.StatusError
	if dom.IsFatal(err) || ctx.Err() != nil {
		return nil, err
	}
	d.logger.Warn("detect: search failed", "domain", s.Visit.Domain, "url", s.Visit.URL, "error", err)
	return nil, nil
}

// search runs one full search, retrying once after a stale element.
func (d *Detector) search(ctx context.Context, s *session.Session, lang string) ([]dom.Banner, error) {
	for try := 0; ; try++ {
		banners, err := d.scan(ctx, s.Driver, nil, lang, false)
		if err == nil || !errors.Is(err, dom.ErrStale) || try >= staleRetries {
			return banners, err
		}
		d.logger.Debug("detect: stale element, retrying search", "domain", s.Visit.Domain)
		if err := d.sleep(ctx, d.cfg.StaleBackoff); err != nil {
			return nil, err
		}
	}
}

// PageLang returns the declared language of the page, falling back to a
// guess from its text.
func (d *Detector) PageLang(ctx context.Context, drv dom.Driver) string {
	if lang, err := drv.Lang(ctx); err == nil && lang != "" {
		return words.Base(lang)
	}
	body, err := drv.Body(ctx)
	if err != nil {
		return ""
	}
	text, err := body.Text(ctx)
	if err != nil {
		return ""
	}
	return words.DetectLang(text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
