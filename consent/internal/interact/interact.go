// CLAUDE:SUMMARY Button classifier and interaction controller: explicit/fuzzy tiers, reject-via-settings, extension fallback, login flow.
// Package interact activates consent controls inside resolved banners.
//
// Controls are classified in two tiers. The explicit tier matches the
// visible label of a short control against the language's word list for the
// requested choice. The fuzzy tier, when enabled, matches id, class, name
// and aria-label attributes against language-independent fragments and only
// considers controls the explicit tier did not already try.
//
// A reject that finds nothing directly falls back to opening the banner's
// settings and searching the whole page for a reject control, then to the
// forced-rejection extension.
package interact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/session"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// Controls selects the elements a user can activate.
const Controls = "button, a, input, [role=button], [role=link], [onclick]"

const (
	// maxLabelTokens bounds explicit labels; longer texts are sentences
	// that merely mention a keyword.
	maxLabelTokens = 6
	// narrowAbove is the candidate count above which a page-wide reject
	// search keeps only "all" controls.
	narrowAbove = 3
	narrowMarker = "all"
)

var fuzzyAttrs = []string{"id", "class", "name", "aria-label"}

// LoginConfig drives the account-gated continue flow.
type LoginConfig struct {
	ContinueSelector string
	EmailSelector    string
	PasswordSelector string
	SubmitSelector   string
	Email            string
	Password         string
	// Wait bounds the lookup of each form element.
	Wait time.Duration
}

// Config controls the classifier and the fallback protocol.
type Config struct {
	// NonExplicit enables the attribute tier.
	NonExplicit bool
	// SettingsFallback enables reject-via-settings.
	SettingsFallback bool
	// DirectReject attempts a reject control inside the banner before any
	// fallback. When disabled the direct attempt counts as failed.
	DirectReject bool
	// Extension is the forced-rejection script. Empty disables it.
	Extension     string
	ExtensionWait time.Duration
	// ClickSettle is slept after every successful click.
	ClickSettle time.Duration
	Login       LoginConfig
}

// Result is the classification outcome of one banner.
type Result struct {
	Choice          record.Choice
	Explicit        bool
	Success         bool
	Source          record.Source
	SettingsClicked bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the wait used after clicks and around the extension.
func WithSleep(fn SleepFunc) Option { return func(c *Controller) { c.sleep = fn } }

// Controller is stateless across visits; the reached-via-settings flag
// lives in the session.
type Controller struct {
	cfg    Config
	words  *words.Catalog
	sleep  SleepFunc
	logger *slog.Logger
}

// New creates a Controller.
func New(cfg Config, cat *words.Catalog, logger *slog.Logger, opts ...Option) *Controller {
	if cat == nil {
		cat = words.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{cfg: cfg, words: cat, sleep: sleepCtx, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Interact tries to activate choice on banner idx. The browser is always
// returned to the top-level document. Only session faults are returned;
// every other failure yields an unsuccessful Result.
func (c *Controller) Interact(ctx context.Context, s *session.Session, b dom.Banner, idx int, choice record.Choice) (res Result, err error) {
	res = Result{Choice: choice}
	drv := s.Driver
	defer func() {
		if rerr := drv.SwitchToDefault(ctx); rerr != nil && err == nil && dom.IsFatal(rerr) {
			err = rerr
		}
	}()

	if b.Kind == dom.KindFramed {
		if err := drv.SwitchToFrame(ctx, b.Frame); err != nil {
			if dom.IsFatal(err) {
				return res, err
			}
			c.logger.Warn("interact: switch to frame", "banner", idx, "error", fmt.Errorf("%w: %w", ErrInteraction, err))
			return res, nil
		}
	}

	res, err = c.interact(ctx, s, b, idx, choice, false)
	if err != nil {
		if dom.IsFatal(err) {
			return res, err
		}
		c.logger.Warn("interact: failed", "banner", idx, "choice", choice, "error", fmt.Errorf("%w: %w", ErrInteraction, err))
		return res, nil
	}

	if res.Success && b.Kind == dom.KindShadowHosted {
		if err := drv.RemoveShadowCopies(ctx); err != nil {
			if dom.IsFatal(err) {
				return res, err
			}
			c.logger.Warn("interact: remove shadow copies", "error", err)
		}
	}
	c.logger.Debug("interact: done", "banner", idx, "choice", choice,
		"success", res.Success, "explicit", res.Explicit, "source", res.Source)
	return res, nil
}

func (c *Controller) interact(ctx context.Context, s *session.Session, b dom.Banner, idx int, choice record.Choice, total bool) (Result, error) {
	res := Result{Choice: choice}

	scope := b.Element
	if total {
		body, err := s.Driver.Body(ctx)
		if err != nil {
			return res, err
		}
		scope = body
	}

	if choice != record.ChoiceReject || c.cfg.DirectReject || total {
		ok, explicit, err := c.activate(ctx, s, b, scope, choice)
		if err != nil {
			return res, err
		}
		if ok {
			res.Success, res.Explicit, res.Source = true, explicit, record.SourceDirect
			if total && s.ViaSettings {
				res.Source = record.SourceViaSettings
			}
			s.Shoot(ctx, fmt.Sprintf("%s_after%d", c.suffix(s, choice), idx+1))
			if choice == record.ChoiceLogin {
				if err := c.continueFlow(ctx, s, idx); err != nil {
					return res, err
				}
			}
			return res, nil
		}
	}

	if choice != record.ChoiceReject || total {
		return res, nil
	}

	if c.cfg.SettingsFallback && !s.ViaSettings {
		set, err := c.interact(ctx, s, b, idx, record.ChoiceSettings, false)
		if err != nil {
			return res, err
		}
		if set.Success {
			s.ViaSettings = true
			res.SettingsClicked = true
			rej, err := c.interact(ctx, s, b, idx, record.ChoiceReject, true)
			if err != nil {
				return res, err
			}
			if rej.Success {
				res.Success, res.Explicit, res.Source = true, rej.Explicit, record.SourceViaSettings
				return res, nil
			}
		}
	}

	// A session already rejecting through settings leaves the banner to the
	// settings flow alone.
	if c.cfg.Extension != "" && !s.ViaSettings {
		ok, err := c.extension(ctx, s, b)
		if err != nil {
			return res, err
		}
		if ok {
			res.Success, res.Explicit, res.Source = true, true, record.SourceViaExtension
			s.Shoot(ctx, fmt.Sprintf("_Xnc_after%d", idx+1))
		}
	}
	return res, nil
}

// activate runs both tiers over scope and clicks the first visible match.
func (c *Controller) activate(ctx context.Context, s *session.Session, b dom.Banner, scope dom.Node, choice record.Choice) (clicked, explicit bool, err error) {
	controls, err := s.Driver.Find(ctx, scope, dom.Query{Selector: Controls})
	if err != nil {
		return false, false, err
	}

	lists := c.words.For(c.lang(s))
	explicitSet, err := c.explicit(ctx, controls, choice, lists)
	if err != nil {
		return false, false, err
	}
	narrowed := c.narrow(s, explicitSet, choice)
	ok, err := c.clickFirst(ctx, s, b, narrowed)
	if err != nil || ok {
		return ok, true, err
	}
	if !c.cfg.NonExplicit {
		return false, false, nil
	}

	// Explicit matches dropped by narrowing stay open to the attribute tier,
	// which is never narrowed.
	tried := make(map[string]bool, len(narrowed))
	for _, m := range narrowed {
		tried[m.node.Key()] = true
	}
	fuzzySet, err := c.fuzzy(ctx, controls, choice, lists, tried)
	if err != nil {
		return false, false, err
	}
	ok, err = c.clickFirst(ctx, s, b, fuzzySet)
	return ok, false, err
}

type match struct {
	node  dom.Node
	label string
}

func (c *Controller) explicit(ctx context.Context, controls []dom.Node, choice record.Choice, lists words.Lists) ([]match, error) {
	want := listFor(lists, choice)
	if len(want) == 0 {
		return nil, nil
	}
	var out []match
	for _, n := range controls {
		label, err := c.label(ctx, n)
		if err != nil {
			if dom.IsFatal(err) {
				return nil, err
			}
			continue
		}
		tokens := len(words.Tokens(label))
		if tokens == 0 || tokens > maxLabelTokens || !words.HasPhrase(label, want) {
			continue
		}
		if choice == record.ChoiceAccept && words.HasPhrase(label, lists.NonAcceptable) {
			continue
		}
		out = append(out, match{node: n, label: label})
	}
	return out, nil
}

func (c *Controller) fuzzy(ctx context.Context, controls []dom.Node, choice record.Choice, lists words.Lists, tried map[string]bool) ([]match, error) {
	attr := c.words.Attr()
	want := listFor(attr, choice)
	if len(want) == 0 {
		return nil, nil
	}
	var out []match
	for _, n := range controls {
		if tried[n.Key()] {
			continue
		}
		blob, err := attrBlob(ctx, n)
		if err != nil {
			if dom.IsFatal(err) {
				return nil, err
			}
			continue
		}
		if blob == "" || len(words.ContainsAny(blob, want)) == 0 {
			continue
		}
		label, err := c.label(ctx, n)
		if err != nil && dom.IsFatal(err) {
			return nil, err
		}
		if choice == record.ChoiceAccept {
			if words.HasPhrase(label, lists.NonAcceptable) ||
				len(words.ContainsAny(blob, attr.Reject)) > 0 ||
				len(words.ContainsAny(blob, attr.Settings)) > 0 {
				continue
			}
		}
		out = append(out, match{node: n, label: label})
	}
	return out, nil
}

// narrow keeps only "all" controls when an explicit reject search reached
// through settings returns more than narrowAbove candidates. The result may
// be empty.
func (c *Controller) narrow(s *session.Session, ms []match, choice record.Choice) []match {
	if choice != record.ChoiceReject || !s.ViaSettings || len(ms) <= narrowAbove {
		return ms
	}
	var out []match
	for _, m := range ms {
		if strings.Contains(m.label, narrowMarker) {
			out = append(out, m)
		}
	}
	c.logger.Debug("interact: narrowed reject candidates", "before", len(ms), "after", len(out))
	return out
}

func (c *Controller) clickFirst(ctx context.Context, s *session.Session, b dom.Banner, ms []match) (bool, error) {
	for _, m := range ms {
		target := m.node
		if b.Kind == dom.KindShadowHosted {
			live, err := s.Driver.ResolveInShadow(ctx, b.Host, m.node)
			if err != nil {
				if dom.IsFatal(err) {
					return false, err
				}
				continue
			}
			target = live
		}
		vis, err := target.Visible(ctx)
		if err != nil {
			if dom.IsFatal(err) {
				return false, err
			}
			continue
		}
		if !vis {
			continue
		}
		if err := target.Click(ctx); err != nil {
			if dom.IsFatal(err) {
				return false, err
			}
			c.logger.Debug("interact: click failed", "label", m.label, "error", err)
			continue
		}
		c.logger.Debug("interact: clicked", "label", m.label)
		if err := c.sleep(ctx, c.cfg.ClickSettle); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

// extension installs the forced-rejection script and reports whether the
// banner went away.
func (c *Controller) extension(ctx context.Context, s *session.Session, b dom.Banner) (bool, error) {
	drv := s.Driver
	if err := drv.SwitchToDefault(ctx); err != nil {
		return false, err
	}
	id, err := drv.InstallExtension(ctx, c.cfg.Extension)
	if err != nil {
		if dom.IsFatal(err) {
			return false, err
		}
		c.logger.Warn("interact: install extension", "path", c.cfg.Extension, "error", err)
		return false, nil
	}
	if err := c.sleep(ctx, c.cfg.ExtensionWait); err != nil {
		return false, err
	}
	if err := drv.UninstallExtension(ctx, id); err != nil {
		if dom.IsFatal(err) {
			return false, err
		}
		c.logger.Warn("interact: uninstall extension", "id", id, "error", err)
	}

	probe := b.Element
	switch b.Kind {
	case dom.KindFramed:
		probe = b.Frame
	case dom.KindShadowHosted:
		probe = b.Host
	}
	vis, err := probe.Visible(ctx)
	if err != nil {
		if dom.IsFatal(err) {
			return false, err
		}
		return true, nil
	}
	return !vis, nil
}

// continueFlow handles the account-gated pattern that follows a login
// click: a continue control, or a login form and then the continue control.
func (c *Controller) continueFlow(ctx context.Context, s *session.Session, idx int) error {
	lc := c.cfg.Login
	if lc.ContinueSelector == "" {
		return nil
	}
	err := c.clickSelector(ctx, s, lc.ContinueSelector, idx)
	if err == nil || dom.IsFatal(err) {
		return err
	}
	s.Shoot(ctx, fmt.Sprintf("_Xlog_after%d", idx+1))

	if err := c.fillLogin(ctx, s); err != nil {
		if dom.IsFatal(err) {
			return err
		}
		c.logger.Warn("interact: login form", "error", err)
		return nil
	}
	if err := c.clickSelector(ctx, s, lc.ContinueSelector, idx); err != nil {
		if dom.IsFatal(err) {
			return err
		}
		c.logger.Warn("interact: continue after login", "error", err)
	}
	return nil
}

func (c *Controller) clickSelector(ctx context.Context, s *session.Session, selector string, idx int) error {
	el, err := s.Driver.WaitVisible(ctx, selector, c.cfg.Login.Wait)
	if err != nil {
		return err
	}
	s.Shoot(ctx, fmt.Sprintf("_XXconbtn__before%d", idx+1))
	if err := el.Click(ctx); err != nil {
		return err
	}
	if err := c.sleep(ctx, c.cfg.ClickSettle); err != nil {
		return err
	}
	s.Shoot(ctx, fmt.Sprintf("_XXconbtn_after%d", idx+1))
	return nil
}

// ErrInteraction marks an interaction aborted by a frame switch or a
// control activation fault. The outcome is recorded as unsuccessful.
var ErrInteraction = errors.New("interact: interaction failed")

var errNoCredentials = errors.New("interact: login credentials not configured")

func (c *Controller) fillLogin(ctx context.Context, s *session.Session) error {
	lc := c.cfg.Login
	if lc.Email == "" || lc.Password == "" || lc.EmailSelector == "" || lc.PasswordSelector == "" {
		return errNoCredentials
	}
	for _, f := range []struct{ sel, value string }{
		{lc.EmailSelector, lc.Email},
		{lc.PasswordSelector, lc.Password},
	} {
		el, err := s.Driver.WaitVisible(ctx, f.sel, lc.Wait)
		if err != nil {
			return fmt.Errorf("interact: %s: %w", f.sel, err)
		}
		if err := el.Input(ctx, f.value); err != nil {
			return fmt.Errorf("interact: fill %s: %w", f.sel, err)
		}
	}
	if lc.SubmitSelector == "" {
		return nil
	}
	el, err := s.Driver.WaitVisible(ctx, lc.SubmitSelector, lc.Wait)
	if err != nil {
		return fmt.Errorf("interact: %s: %w", lc.SubmitSelector, err)
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	return c.sleep(ctx, c.cfg.ClickSettle)
}

func (c *Controller) suffix(s *session.Session, choice record.Choice) string {
	switch choice {
	case record.ChoiceAccept:
		return "_XXacc"
	case record.ChoiceReject:
		if s.ViaSettings {
			return "_XXrejINset"
		}
		return "_XXrej"
	case record.ChoiceSettings:
		return "_Xset"
	case record.ChoiceLogin:
		return "_Xlog"
	}
	return ""
}

func (c *Controller) lang(s *session.Session) string {
	if s.BannerLang != "" {
		return s.BannerLang
	}
	if s.Visit != nil && s.Visit.Lang != "" {
		return s.Visit.Lang
	}
	return words.DefaultLang
}

// label is the normalized visible label of a control. Inputs without text
// fall back to their value.
func (c *Controller) label(ctx context.Context, n dom.Node) (string, error) {
	text, err := n.Text(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" && n.Tag() == "input" {
		v, _, err := n.Attr(ctx, "value")
		if err != nil {
			return "", err
		}
		text = v
	}
	return words.Normalize(text), nil
}

func attrBlob(ctx context.Context, n dom.Node) (string, error) {
	var parts []string
	for _, a := range fuzzyAttrs {
		v, ok, err := n.Attr(ctx, a)
		if err != nil {
			return "", err
		}
		if ok && v != "" {
			parts = append(parts, v)
		}
	}
	// Attribute words are written without separators ("allowall", "optout").
	blob := words.Normalize(strings.Join(parts, " "))
	return strings.NewReplacer("-", "", "_", "").Replace(blob), nil
}

func listFor(l words.Lists, choice record.Choice) []string {
	switch choice {
	case record.ChoiceAccept:
		return l.Accept
	case record.ChoiceReject:
		return l.Reject
	case record.ChoiceSettings:
		return l.Settings
	case record.ChoiceLogin:
		return l.Login
	}
	return nil
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
