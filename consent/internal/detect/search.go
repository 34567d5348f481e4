package detect

import (
	"context"
	"fmt"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/internal/resolve"
)

// scan is one locate-and-resolve pass. With root nil it scans the active
// document body, then its iframes, then (only if nothing was found and
// inShadow is false) the copies of its shadow trees. The shadow pass calls
// scan with inShadow set, which bounds the recursion to one level.
func (d *Detector) scan(ctx context.Context, drv dom.Driver, root dom.Node, lang string, inShadow bool) ([]dom.Banner, error) {
	if root == nil {
		if err := drv.WaitReady(ctx, d.cfg.ReadyTimeout); err != nil {
			return nil, fmt.Errorf("detect: wait ready: %w", err)
		}
		if d.cfg.Settle > 0 {
			if err := d.sleep(ctx, d.cfg.Settle); err != nil {
				return nil, err
			}
		}
		body, err := drv.Body(ctx)
		if err != nil {
			return nil, fmt.Errorf("detect: body: %w", err)
		}
		root = body
	}

	cands, err := d.locator.Find(ctx, drv, root, lang)
	if err != nil {
		return nil, err
	}
	bounds, err := d.resolver.Resolve(ctx, drv, root, cands, lang)
	if err != nil {
		return nil, err
	}
	var banners []dom.Banner
	for _, b := range bounds {
		banners = append(banners, dom.Plain(b.Element, b.Strategy, b.Keywords()))
	}
	if inShadow {
		return banners, nil
	}

	framed, err := d.scanFrames(ctx, drv, lang)
	if err != nil {
		return nil, err
	}
	banners = append(banners, framed...)

	if len(banners) == 0 {
		return d.scanShadow(ctx, drv, root, lang)
	}
	return banners, nil
}

// scanFrames looks for consent iframes: frames in the viewport whose body
// holds a consent keyword. The frame body is the banner element.
func (d *Detector) scanFrames(ctx context.Context, drv dom.Driver, lang string) ([]dom.Banner, error) {
	frames, err := drv.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect: frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, nil
	}
	vp, err := drv.Viewport(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect: viewport: %w", err)
	}

	var out []dom.Banner
	for _, fr := range frames {
		in, err := resolve.InViewport(ctx, fr, vp)
		if err != nil {
			if dom.IsFatal(err) {
				return nil, err
			}
			continue
		}
		if !in {
			continue
		}
		b, err := d.scanFrame(ctx, drv, fr, lang)
		if err != nil {
			if dom.IsFatal(err) {
				return nil, err
			}
			d.logger.Debug("detect: frame skipped", "error", err)
			continue
		}
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (d *Detector) scanFrame(ctx context.Context, drv dom.Driver, fr dom.Node, lang string) (*dom.Banner, error) {
	if err := drv.SwitchToFrame(ctx, fr); err != nil {
		return nil, fmt.Errorf("detect: switch to frame: %w", err)
	}
	defer drv.SwitchToDefault(ctx)

	body, err := drv.Body(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect: frame body: %w", err)
	}
	cands, err := d.locator.Find(ctx, drv, body, lang)
	if err != nil || len(cands) == 0 {
		return nil, err
	}
	var keywords []string
	seen := make(map[string]bool)
	for _, c := range cands {
		for _, k := range c.Keywords {
			if !seen[k] {
				seen[k] = true
				keywords = append(keywords, k)
			}
		}
	}
	b := dom.Framed(fr, body, keywords)
	return &b, nil
}

// scanShadow searches accessible copies of the page's shadow trees and
// keeps the first banner of each copy.
func (d *Detector) scanShadow(ctx context.Context, drv dom.Driver, body dom.Node, lang string) ([]dom.Banner, error) {
	copies, err := drv.ShadowRoots(ctx, body)
	if err != nil {
		if dom.IsFatal(err) {
			return nil, err
		}
		d.logger.Debug("detect: shadow roots unavailable", "error", err)
		return nil, nil
	}
	var out []dom.Banner
	for _, c := range copies {
		found, err := d.scan(ctx, drv, c.Root, lang, true)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			b := found[0]
			out = append(out, dom.ShadowHosted(c.Host, b.Element, b.Strategy, b.Keywords))
		}
	}
	return out, nil
}
