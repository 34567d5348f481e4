package consent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/bannerclick/consent/internal/htmldom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// AnalyzeHTML runs detection and extraction on saved page markup, without
// a browser and without interaction. Geometry comes from inline styles
// only. The result is handed to the sink like any visit.
func (e *Engine) AnalyzeHTML(ctx context.Context, name, markup string) (*record.Result, error) {
	drv, err := htmldom.Parse(markup)
	if err != nil {
		return nil, fmt.Errorf("consent: parse %s: %w", name, err)
	}
	s := e.NewSession(drv)

	res := &record.Result{Visit: record.PageVisit{ID: e.ids(), Domain: name, URL: name, Status: record.StatusLoaded}}
	s.Begin(&res.Visit)
	if err := e.run(ctx, s, res, e.offline, record.ChoiceNone); err != nil {
		return e.abort(ctx, res, err)
	}
	e.logger.Info("consent: analyzed", "name", name, "status", res.Visit.Status, "banners", len(res.Banners))
	return e.finish(ctx, res)
}

// AnalyzeFile reads an HTML file and analyzes it. The file's base name is
// used as the visit domain.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*record.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("consent: read %s: %w", path, err)
	}
	return e.AnalyzeHTML(ctx, filepath.Base(path), string(data))
}
