// CLAUDE:SUMMARY Page navigator: scheme fallback over a bounded list, load outcome classified into visit status.
package navigate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// DefaultSchemes is the scheme preference order.
var DefaultSchemes = []string{"https", "http"}

// Config drives navigation.
type Config struct {
	Schemes []string
	Timeout time.Duration
}

// Result is the navigation outcome. URL is empty when every scheme failed.
type Result struct {
	URL    string
	RunURL string
	Status record.Status
}

// Navigator opens domains.
type Navigator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Navigator.
func New(cfg Config, logger *slog.Logger) *Navigator {
	if len(cfg.Schemes) == 0 {
		cfg.Schemes = DefaultSchemes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{cfg: cfg, logger: logger}
}

// Open navigates to domain, trying each scheme in order. A domain that
// already carries a scheme is tried once as given. Only session faults are
// returned as errors.
func (n *Navigator) Open(ctx context.Context, drv dom.Driver, domain string) (Result, error) {
	res := Result{Status: record.StatusUnreachable}
	for _, u := range n.candidates(domain) {
		err := drv.Navigate(ctx, u, n.cfg.Timeout)
		if err == nil {
			res.URL, res.Status = u, record.StatusLoaded
			if cur, err := drv.CurrentURL(ctx); err == nil && cur != "" {
				res.RunURL = cur
			} else {
				res.RunURL = u
			}
			n.logger.Debug("navigate: loaded", "url", u, "run_url", res.RunURL)
			return res, nil
		}
		if dom.IsFatal(err) {
			return res, err
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, dom.ErrTimeout) {
			res.Status = record.StatusTimeout
		} else {
			res.Status = record.StatusUnreachable
		}
		n.logger.Info("navigate: failed", "url", u, "status", res.Status, "error", err)
	}
	return res, nil
}

func (n *Navigator) candidates(domain string) []string {
	domain = strings.TrimSpace(domain)
	if strings.Contains(domain, "://") {
		return []string{domain}
	}
	out := make([]string, 0, len(n.cfg.Schemes))
	for _, s := range n.cfg.Schemes {
		out = append(out, s+"://"+domain)
	}
	return out
}
