// CLAUDE:SUMMARY Per-worker session context threaded through navigation, detection and interaction.
// Package session holds the mutable state of one browser session. A Session
// is owned by exactly one worker; nothing in it is shared across sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// Session is the explicit session context of one worker.
type Session struct {
	Driver dom.Driver
	Logger *slog.Logger

	// Visit is the record being built by the current visit.
	Visit *record.PageVisit
	// ViaSettings is set once a settings control was activated during the
	// current visit's interactions.
	ViaSettings bool
	// BannerLang is the language of the banner being interacted with.
	BannerLang string

	shotDir string
	visits  int
}

// New creates a Session over a driver. shotDir enables screenshots when
// non-empty.
func New(drv dom.Driver, logger *slog.Logger, shotDir string) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{Driver: drv, Logger: logger, shotDir: shotDir}
}

// Begin starts a new visit and resets all per-visit state.
func (s *Session) Begin(v *record.PageVisit) {
	s.visits++
	v.Seq = s.visits
	if v.StartedAt.IsZero() {
		v.StartedAt = time.Now().UTC()
	}
	s.Visit = v
	s.ViaSettings = false
	s.BannerLang = ""
}

// Visits returns the number of visits started on this session.
func (s *Session) Visits() int { return s.visits }

// Shoot captures the page when screenshots are enabled. Failures are
// logged and ignored.
func (s *Session) Shoot(ctx context.Context, suffix string) {
	if s.shotDir == "" || s.Visit == nil {
		return
	}
	s.shoot(ctx, s.shotDir, suffix)
}

// ShootNoBanner captures a page on which no banner was found into the
// nobanner subdirectory.
func (s *Session) ShootNoBanner(ctx context.Context) {
	if s.shotDir == "" || s.Visit == nil {
		return
	}
	s.shoot(ctx, filepath.Join(s.shotDir, "nobanner"), "")
}

func (s *Session) shoot(ctx context.Context, dir, suffix string) {
	path := filepath.Join(dir, s.shotName(suffix))
	if err := s.Driver.Screenshot(ctx, path); err != nil {
		s.Logger.Warn("session: screenshot failed", "path", path, "error", err)
	}
}

// ShootBanner captures the j-th banner of the visit alone. Framed banners
// are captured through their iframe and shadow-hosted ones through their
// host, both in the top-level document.
func (s *Session) ShootBanner(ctx context.Context, b dom.Banner, j int) {
	if s.shotDir == "" || s.Visit == nil {
		return
	}
	target := b.Element
	switch b.Kind {
	case dom.KindFramed:
		target = b.Frame
	case dom.KindShadowHosted:
		target = b.Host
	}
	path := filepath.Join(s.shotDir, s.shotName(fmt.Sprintf("_banner%d", j+1)))
	if err := s.Driver.SwitchToDefault(ctx); err != nil {
		s.Logger.Warn("session: banner screenshot failed", "path", path, "error", err)
		return
	}
	if err := s.Driver.ScreenshotNode(ctx, target, path); err != nil {
		s.Logger.Warn("session: banner screenshot failed", "path", path, "error", err)
	}
}

func (s *Session) shotName(suffix string) string {
	return fmt.Sprintf("%d %s%s.png", s.Visit.Seq, s.Visit.Domain, suffix)
}
