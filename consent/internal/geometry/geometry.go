// CLAUDE:SUMMARY Banner geometry and metadata extraction: viewport-relative area, box, markup, language, markdown text.
// Package geometry turns resolved banners into BannerRecords.
package geometry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/words"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// Config selects the optional captures.
type Config struct {
	// Markup stores the banner's outer HTML.
	Markup bool
	// Sanitize strips scripts and handlers from stored markup.
	Sanitize bool
	// Markdown stores the banner text converted to Markdown.
	Markdown bool
}

// Extractor captures banner metadata.
type Extractor struct {
	cfg    Config
	md     *converter.Converter
	policy *bluemonday.Policy
	logger *slog.Logger
}

// New creates an Extractor.
func New(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		cfg: cfg,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		logger: logger,
	}
}

// ErrExtraction marks a banner whose geometry or metadata could not be
// read. The banner is dropped from the visit.
var ErrExtraction = errors.New("geometry: extraction failed")

// Capture extracts one record per banner. A banner whose element can no
// longer be inspected is skipped. pageLang is used when the banner text is
// too short for language detection.
func (e *Extractor) Capture(ctx context.Context, drv dom.Driver, banners []dom.Banner, pageLang string) ([]record.BannerRecord, error) {
	defer drv.SwitchToDefault(ctx)

	var out []record.BannerRecord
	for i, b := range banners {
		rec, err := e.capture(ctx, drv, b)
		if err != nil {
			if dom.IsFatal(err) {
				return out, err
			}
			e.logger.Warn("geometry: capture failed", "banner", i, "kind", b.Kind,
				"error", fmt.Errorf("%w: %w", ErrExtraction, err))
			continue
		}
		if rec.Lang == "" {
			rec.Lang = pageLang
		}
		if rec.Lang == "" {
			rec.Lang = words.DefaultLang
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *Extractor) capture(ctx context.Context, drv dom.Driver, b dom.Banner) (record.BannerRecord, error) {
	rec := record.BannerRecord{
		Kind:     kindOf(b.Kind),
		Strategy: b.Strategy.String(),
		Keywords: b.Keywords,
	}

	if err := drv.SwitchToDefault(ctx); err != nil {
		return rec, err
	}

	// A framed banner is measured by its iframe in the top-level viewport.
	// A shadow copy may not be laid out; its host is measured instead.
	box := b.Element
	switch b.Kind {
	case dom.KindFramed:
		box = b.Frame
	case dom.KindShadowHosted:
		if r, err := b.Element.Rect(ctx); err != nil || r.Area() == 0 {
			box = b.Host
		}
	}

	vp, err := drv.Viewport(ctx)
	if err != nil {
		return rec, fmt.Errorf("geometry: viewport: %w", err)
	}
	r, err := box.Rect(ctx)
	if err != nil {
		return rec, fmt.Errorf("geometry: rect: %w", err)
	}
	rec.X, rec.Y, rec.W, rec.H = r.X, r.Y, r.W, r.H
	if a := vp.Area(); a > 0 {
		rec.CapturedArea = r.Area() / a
	}

	if b.Kind == dom.KindFramed {
		if err := drv.SwitchToFrame(ctx, b.Frame); err != nil {
			return rec, fmt.Errorf("geometry: switch to frame: %w", err)
		}
	}

	text, err := b.Element.Text(ctx)
	if err != nil {
		return rec, fmt.Errorf("geometry: text: %w", err)
	}
	rec.Lang = words.DetectLang(text)

	if !e.cfg.Markup && !e.cfg.Markdown {
		return rec, nil
	}
	markup, err := b.Element.HTML(ctx)
	if err != nil {
		return rec, fmt.Errorf("geometry: html: %w", err)
	}
	if e.cfg.Sanitize {
		markup = e.policy.Sanitize(markup)
	}
	if e.cfg.Markup {
		rec.HTML = markup
	}
	if e.cfg.Markdown {
		md, err := e.md.ConvertString(markup)
		if err != nil {
			e.logger.Debug("geometry: markdown conversion failed", "error", err)
			rec.Text = text
		} else {
			rec.Text = md
		}
	}
	return rec, nil
}

func kindOf(k dom.Kind) record.Kind {
	switch k {
	case dom.KindFramed:
		return record.KindFramed
	case dom.KindShadowHosted:
		return record.KindShadowHosted
	}
	return record.KindPlain
}
