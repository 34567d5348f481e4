// CLAUDE:SUMMARY Consent engine: one visit runs navigation, detection, interaction and extraction, then hands one Result to the sinks.
// Package consent detects cookie-consent banners on web pages and interacts
// with them.
//
// One visit runs, in order:
//
//	navigate → detect (retry/translate) → interact → extract → sink
//
// The Engine holds only read-only configuration. All mutable state of a
// visit lives in the session of the worker running it, so engines can be
// shared by any number of workers.
//
// Usage:
//
//	cfg, _ := consent.LoadConfigFile("bannerclick.yaml")
//	out, store, _ := consent.OpenSinks(cfg, logger)
//	eng, _ := consent.New(cfg, consent.WithLogger(logger), consent.WithSink(out))
//	pool := consent.NewPool(eng, cfg)
//	pool.Start(ctx)
//	res, err := pool.Visit(ctx, "example.com")
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/detect"
	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/geometry"
	"github.com/hazyhaar/bannerclick/consent/internal/interact"
	"github.com/hazyhaar/bannerclick/consent/internal/navigate"
	"github.com/hazyhaar/bannerclick/consent/internal/session"
	"github.com/hazyhaar/bannerclick/consent/internal/sink"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
	"github.com/hazyhaar/bannerclick/consent/record"
	"github.com/hazyhaar/bannerclick/idgen"
)

// Options is the immutable engine configuration derived from a Config.
type Options struct {
	Navigation  navigate.Config
	Detection   detect.Config
	Interaction interact.Config
	Capture     geometry.Config

	// Choice is the control activated on every banner. ChoiceNone only
	// detects and extracts.
	Choice record.Choice
	// Screenshots is the screenshot directory. Empty disables them.
	Screenshots string
	// NoBannerShots also captures pages on which no banner was found.
	NoBannerShots bool
	// SaveBody stores the page body markup on the visit.
	SaveBody bool
	// TranslateURL is the translation proxy template.
	TranslateURL string
	// Words is a word-list file replacing the built-in lists.
	Words string
}

// NewOptions maps a Config onto engine options.
func NewOptions(cfg *Config) Options {
	lc := cfg.Interaction.Login
	return Options{
		Navigation: navigate.Config{
			Schemes: cfg.Navigation.Schemes,
			Timeout: cfg.Navigation.PageLoadTimeout,
		},
		Detection: detect.Config{
			Attempts:      cfg.Detection.Attempts,
			AttemptStep:   cfg.Detection.AttemptStep,
			Translation:   cfg.Detection.Translation,
			WordThreshold: cfg.Detection.WordCountThreshold,
			ReadyTimeout:  cfg.Detection.ReadyTimeout,
			Settle:        cfg.Detection.Settle,
			StaleBackoff:  cfg.Detection.StaleBackoff,
		},
		Interaction: interact.Config{
			NonExplicit:      cfg.Interaction.NonExplicit,
			SettingsFallback: cfg.Interaction.SettingsFallback,
			DirectReject:     cfg.Interaction.DirectReject,
			Extension:        cfg.Interaction.Extension,
			ExtensionWait:    cfg.Interaction.ExtensionWait,
			ClickSettle:      cfg.Interaction.ClickSettle,
			Login: interact.LoginConfig{
				ContinueSelector: lc.ContinueSelector,
				EmailSelector:    lc.EmailSelector,
				PasswordSelector: lc.PasswordSelector,
				SubmitSelector:   lc.SubmitSelector,
				Email:            lc.Email,
				Password:         lc.Password,
				Wait:             lc.Wait,
			},
		},
		Capture: geometry.Config{
			Markup:   cfg.Capture.Markup,
			Sanitize: cfg.Capture.Sanitize,
			Markdown: cfg.Capture.Markdown,
		},
		Choice:        record.ParseChoice(cfg.Interaction.Choice),
		Screenshots:   cfg.Capture.Screenshots,
		NoBannerShots: cfg.Capture.NoBannerScreenshots,
		SaveBody:      cfg.Capture.SaveBody,
		TranslateURL:  cfg.Detection.TranslateURL,
		Words:         cfg.Detection.Words,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithSink sets the persistence collaborator. Default: stdout JSON lines.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithIDGenerator sets the visit and banner ID strategy. Default: UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option { return func(e *Engine) { e.ids = gen } }

// WithSleep replaces every wait of the detection and interaction steps.
func WithSleep(fn SleepFunc) Option { return func(e *Engine) { e.sleep = fn } }

// WithTranslator replaces the translation proxy.
func WithTranslator(t detect.Translator) Option { return func(e *Engine) { e.translator = t } }

// Engine runs visits. Safe for concurrent use by workers that each own
// their session.
type Engine struct {
	opts       Options
	nav        *navigate.Navigator
	det        *detect.Detector
	offline    *detect.Detector
	ctl        *interact.Controller
	geo        *geometry.Extractor
	words      *words.Catalog
	sink       Sink
	ids        idgen.Generator
	sleep      SleepFunc
	translator detect.Translator
	logger     *slog.Logger
}

// New creates an Engine from cfg.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithOptions(NewOptions(cfg), opts...)
}

// NewWithOptions creates an Engine from already mapped options.
func NewWithOptions(o Options, opts ...Option) (*Engine, error) {
	e := &Engine{opts: o}
	for _, fn := range opts {
		fn(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sink == nil {
		e.sink = sink.NewStdout(nil)
	}
	if e.ids == nil {
		e.ids = idgen.Default
	}
	if e.translator == nil && o.TranslateURL != "" {
		e.translator = detect.URLTranslator{Template: o.TranslateURL, Timeout: o.Navigation.Timeout}
	}

	cat := words.Default()
	if o.Words != "" {
		data, err := os.ReadFile(o.Words)
		if err != nil {
			return nil, fmt.Errorf("consent: word lists: %w", err)
		}
		if cat, err = words.Load(data); err != nil {
			return nil, fmt.Errorf("consent: word lists %s: %w", o.Words, err)
		}
	}

	var detOpts []detect.Option
	var ctlOpts []interact.Option
	if e.sleep != nil {
		detOpts = append(detOpts, detect.WithSleep(detect.SleepFunc(e.sleep)))
		ctlOpts = append(ctlOpts, interact.WithSleep(interact.SleepFunc(e.sleep)))
	}
	if e.translator != nil {
		detOpts = append(detOpts, detect.WithTranslator(e.translator))
	}

	offline := o.Detection
	offline.Attempts, offline.Translation, offline.Settle = 0, false, 0

	e.nav = navigate.New(o.Navigation, e.logger)
	e.det = detect.New(o.Detection, cat, e.logger, detOpts...)
	e.offline = detect.New(offline, cat, e.logger, detOpts...)
	e.ctl = interact.New(o.Interaction, cat, e.logger, ctlOpts...)
	e.geo = geometry.New(o.Capture, e.logger)
	e.words = cat
	return e, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Close closes the sink.
func (e *Engine) Close() error { return e.sink.Close() }

// NewSession wraps a driver in a fresh worker session.
func (e *Engine) NewSession(drv dom.Driver) *session.Session {
	return session.New(drv, e.logger, e.opts.Screenshots)
}

// Visit runs one visit of domain on s and hands its Result to the sink.
// Exactly one PageVisit is produced. Per-visit faults are folded into the
// visit status; only a dead session or a cancelled context is returned,
// after the visit was persisted with status error.
func (e *Engine) Visit(ctx context.Context, s *session.Session, domain string) (*record.Result, error) {
	res := &record.Result{Visit: record.PageVisit{ID: e.ids(), Domain: domain}}
	v := &res.Visit
	s.Begin(v)
	log := e.logger.With("domain", domain, "visit", v.Seq)

	nav, err := e.nav.Open(ctx, s.Driver, domain)
	if err != nil {
		return e.abort(ctx, res, err)
	}
	v.URL, v.RunURL, v.Status = nav.URL, nav.RunURL, nav.Status
	if v.Status != record.StatusLoaded {
		log.Info("consent: page not loaded", "status", v.Status)
		return e.finish(ctx, res)
	}

	if err := e.run(ctx, s, res, e.det, e.opts.Choice); err != nil {
		return e.abort(ctx, res, err)
	}
	log.Info("consent: visit done", "url", v.URL, "status", v.Status,
		"banners", len(res.Banners), "interactions", len(res.Interactions))
	return e.finish(ctx, res)
}

// run detects, interacts and extracts on the page loaded in s.
func (e *Engine) run(ctx context.Context, s *session.Session, res *record.Result, det *detect.Detector, choice record.Choice) error {
	v := &res.Visit
	drv := s.Driver

	cmp, err := detect.ProbeCMP(ctx, drv)
	if err != nil {
		if dom.IsFatal(err) {
			return err
		}
		e.logger.Debug("consent: cmp probe failed", "domain", v.Domain, "error", err)
	}
	v.CMP = cmp

	banners, err := det.Run(ctx, s)
	if err != nil {
		return err
	}
	if len(banners) > 0 {
		s.Shoot(ctx, "")
		for j, b := range banners {
			s.ShootBanner(ctx, b, j)
		}
	} else if e.opts.NoBannerShots {
		s.ShootNoBanner(ctx)
	}

	// Banners are measured before interaction: their language selects the
	// button word lists and a dismissed banner may no longer be laid out.
	type found struct {
		banner dom.Banner
		rec    record.BannerRecord
	}
	var kept []found
	for i, b := range banners {
		recs, err := e.geo.Capture(ctx, drv, []dom.Banner{b}, v.Lang)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		rec := recs[0]
		rec.ID, rec.VisitID, rec.Index, rec.Domain = e.ids(), v.ID, i, v.Domain
		kept = append(kept, found{banner: b, rec: rec})
	}

	if choice != record.ChoiceNone {
		for _, f := range kept {
			s.BannerLang = f.rec.Lang
			r, err := e.ctl.Interact(ctx, s, f.banner, f.rec.Index, choice)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			v.InteractedAt = now
			res.Interactions = append(res.Interactions, record.InteractionOutcome{
				VisitID:         v.ID,
				BannerID:        f.rec.ID,
				Choice:          r.Choice,
				Explicit:        r.Explicit,
				Success:         r.Success,
				Source:          r.Source,
				SettingsClicked: r.SettingsClicked,
				At:              now,
			})
		}
	}

	for _, f := range kept {
		rec := f.rec
		if choice != record.ChoiceNone {
			rec = e.remeasure(ctx, drv, f.banner, rec)
		}
		res.Banners = append(res.Banners, rec)
	}
	v.Banners = len(res.Banners)

	if err := e.optOut(ctx, drv, v); err != nil {
		return err
	}

	if e.opts.SaveBody {
		if bs, ok := drv.(bodySource); ok {
			body, err := bs.BodyHTML(ctx)
			if err != nil {
				if dom.IsFatal(err) {
					return err
				}
				e.logger.Warn("consent: save body", "domain", v.Domain, "error", err)
			}
			v.BodyHTML = body
		}
	}
	return nil
}

// remeasure captures a banner again after interaction. The earlier record
// is kept when the banner is gone or no longer has a box.
func (e *Engine) remeasure(ctx context.Context, drv dom.Driver, b dom.Banner, before record.BannerRecord) record.BannerRecord {
	recs, err := e.geo.Capture(ctx, drv, []dom.Banner{b}, before.Lang)
	if err != nil || len(recs) == 0 || recs[0].W*recs[0].H == 0 {
		return before
	}
	after := recs[0]
	after.ID, after.VisitID, after.Index, after.Domain = before.ID, before.VisitID, before.Index, before.Domain
	after.Lang = before.Lang
	return after
}

// optOut records the "do not sell my personal information" phrase of the
// page body, if any.
func (e *Engine) optOut(ctx context.Context, drv dom.Driver, v *record.PageVisit) error {
	text, err := bodyText(ctx, drv)
	if err != nil {
		if dom.IsFatal(err) {
			return err
		}
		e.logger.Debug("consent: dnsmpi", "domain", v.Domain, "error", err)
		return nil
	}
	v.DNSMPI = e.words.DNSMPI(text)
	return nil
}

func bodyText(ctx context.Context, drv dom.Driver) (string, error) {
	if err := drv.SwitchToDefault(ctx); err != nil {
		return "", err
	}
	body, err := drv.Body(ctx)
	if err != nil {
		return "", err
	}
	return body.Text(ctx)
}

type bodySource interface {
	BodyHTML(ctx context.Context) (string, error)
}

// abort persists a visit interrupted by a fatal fault and returns the fault.
func (e *Engine) abort(ctx context.Context, res *record.Result, err error) (*record.Result, error) {
	res.Visit.Status = record.StatusError
	e.logger.Error("consent: visit aborted", "domain", res.Visit.Domain, "error", err)
	e.finish(context.WithoutCancel(ctx), res)
	if !dom.IsFatal(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return res, nil
	}
	return res, err
}

// fail persists a visit that could not start, so every domain still yields
// exactly one PageVisit.
func (e *Engine) fail(ctx context.Context, domain string, err error) *record.Result {
	now := time.Now().UTC()
	res := &record.Result{Visit: record.PageVisit{
		ID:        e.ids(),
		Domain:    domain,
		Status:    record.StatusError,
		StartedAt: now,
	}}
	e.logger.Error("consent: visit not started", "domain", domain, "error", err)
	e.finish(context.WithoutCancel(ctx), res)
	return res
}

func (e *Engine) finish(ctx context.Context, res *record.Result) (*record.Result, error) {
	res.Visit.FinishedAt = time.Now().UTC()
	if err := e.sink.Send(ctx, res); err != nil {
		e.logger.Warn("consent: persist failed", "domain", res.Visit.Domain, "error", err)
	}
	return res, nil
}
