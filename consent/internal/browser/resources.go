// CLAUDE:SUMMARY Fails requests of the configured resource types (images, fonts, media, stylesheets) on session tabs.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockSet holds the CDP resource types to fail.
type blockSet map[proto.NetworkResourceType]bool

// configTypes maps configuration names to CDP resource types. Documents,
// scripts and XHR are absent: banners are script-rendered and must load.
var configTypes = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

func newBlockSet(names []string) blockSet {
	set := blockSet{}
	for _, n := range names {
		if t, ok := configTypes[strings.ToLower(strings.TrimSpace(n))]; ok {
			set[t] = true
		}
	}
	return set
}

func (s blockSet) blocks(t proto.NetworkResourceType) bool { return s[t] }

// hijack fails the blocked requests of page. The returned router must be
// stopped with the tab; nil when nothing is blocked.
func (s blockSet) hijack(page *rod.Page) (*rod.HijackRouter, error) {
	if len(s) == 0 {
		return nil, nil
	}
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if s.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
