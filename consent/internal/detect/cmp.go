package detect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/bannerclick/consent/internal/dom"
	"github.com/hazyhaar/bannerclick/consent/record"
)

// probeJS reports the IAB consent APIs exposed by the page and names the
// CMP from its SDK globals or container ids. The TCF ping callback runs
// synchronously on compliant CMPs.
const probeJS = `() => {
	const r = {cmp: typeof window.__cmp === 'function', tcfapi: typeof window.__tcfapi === 'function',
		tcfapi_locator: !!(window.frames && window.frames['__tcfapiLocator'])};
	if (r.tcfapi) {
		try { window.__tcfapi('ping', 2, (p) => { if (p) { r.cmp_id = p.cmpId || 0; } }); } catch (e) {}
	}
	const q = (s) => { try { return !!document.querySelector(s); } catch (e) { return false; } };
	const sigs = [
		['OneTrust', () => window.OneTrust || window.OptanonWrapper || q('#onetrust-banner-sdk, #onetrust-consent-sdk, .optanon-alert-box-wrapper')],
		['Cookiebot', () => window.Cookiebot || q('#CybotCookiebotDialog, #CookiebotWidget')],
		['Didomi', () => window.Didomi || q('#didomi-host')],
		['Usercentrics', () => window.UC_UI || q('#usercentrics-root')],
		['Sourcepoint', () => window._sp_ || q('[id^="sp_message_container"]')],
		['TrustArc', () => window.truste || q('#truste-consent-track')],
		['Quantcast', () => q('.qc-cmp2-container')],
	];
	for (const [name, test] of sigs) {
		try { if (test()) { r.name = name; break; } } catch (e) {}
	}
	return JSON.stringify(r);
}`

// ProbeCMP reads the page's consent API surface.
func ProbeCMP(ctx context.Context, drv dom.Driver) (record.CMPInfo, error) {
	var info record.CMPInfo
	out, err := drv.Exec(ctx, probeJS)
	if err != nil {
		return info, fmt.Errorf("detect: cmp probe: %w", err)
	}
	if out == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return info, fmt.Errorf("detect: cmp probe decode: %w", err)
	}
	return info, nil
}
