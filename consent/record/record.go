// CLAUDE:SUMMARY Persisted consent records: PageVisit, BannerRecord, InteractionOutcome with their status/choice/source enums.
// Package record defines the records a visit hands to the persistence
// sinks: one PageVisit, zero or more BannerRecords and at most one
// InteractionOutcome per banner.
package record

import (
	"encoding/json"
	"time"
)

// Status is the aggregate outcome of a visit.
type Status string

const (
	StatusLoaded      Status = "loaded"
	StatusTimeout     Status = "timeout"
	StatusUnreachable Status = "unreachable"
	StatusTranslated  Status = "translated"
	StatusError       Status = "error"
)

// Code returns the numeric status used by BannerClick datasets.
func (s Status) Code() int {
	switch s {
	case StatusLoaded:
		return 0
	case StatusTimeout:
		return 1
	case StatusUnreachable:
		return 2
	case StatusTranslated:
		return 3
	}
	return -1
}

// Kind is the container a banner was found in.
type Kind string

const (
	KindPlain        Kind = "plain"
	KindFramed       Kind = "framed"
	KindShadowHosted Kind = "shadow_hosted"
)

// Choice is the control a visit tries to activate.
type Choice string

const (
	ChoiceNone     Choice = ""
	ChoiceAccept   Choice = "accept"
	ChoiceReject   Choice = "reject"
	ChoiceSettings Choice = "settings"
	ChoiceLogin    Choice = "login"
)

// ParseChoice maps a configuration value to a Choice. Unknown values give
// ChoiceNone.
func ParseChoice(s string) Choice {
	switch Choice(s) {
	case ChoiceAccept, ChoiceReject, ChoiceSettings, ChoiceLogin:
		return Choice(s)
	}
	return ChoiceNone
}

// Code returns the numeric choice used by BannerClick datasets.
func (c Choice) Code() int {
	switch c {
	case ChoiceAccept:
		return 1
	case ChoiceReject:
		return 2
	case ChoiceSettings:
		return 3
	case ChoiceLogin:
		return 4
	}
	return 0
}

// Source tells how a successful interaction was reached.
type Source string

const (
	SourceDirect       Source = "direct"
	SourceViaSettings  Source = "via_settings"
	SourceViaExtension Source = "via_extension"
)

// PageVisit is one navigation-to-persistence cycle for a domain.
type PageVisit struct {
	ID       string `json:"id"`
	Seq      int    `json:"seq"`
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	RunURL   string `json:"run_url"`
	Status   Status `json:"status"`
	Lang     string `json:"lang"`
	Banners  int    `json:"banners"`
	// TTW is the accumulated detection retry wait.
	TTW          time.Duration `json:"ttw"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	InteractedAt time.Time     `json:"interacted_at,omitzero"`
	CMP          CMPInfo       `json:"cmp"`
	// DNSMPI is the first "do not sell my personal information" phrase
	// found in the page body, or "".
	DNSMPI   string `json:"dnsmpi,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
}

// CMPInfo is what the page's consent APIs reveal.
type CMPInfo struct {
	CMP           bool   `json:"cmp"`
	TCFAPI        bool   `json:"tcfapi"`
	TCFAPILocator bool   `json:"tcfapi_locator"`
	CMPID         int    `json:"cmp_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

// BannerRecord is one detected banner of a visit.
type BannerRecord struct {
	ID       string `json:"id"`
	VisitID  string `json:"visit_id"`
	Index    int    `json:"index"`
	Domain   string `json:"domain"`
	Kind     Kind   `json:"kind"`
	Strategy string `json:"strategy"`
	// CapturedArea is the banner area divided by the viewport area.
	CapturedArea float64  `json:"captured_area"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	W            float64  `json:"w"`
	H            float64  `json:"h"`
	Lang         string   `json:"lang"`
	Keywords     []string `json:"keywords,omitempty"`
	HTML         string   `json:"html,omitempty"`
	Text         string   `json:"text,omitempty"`
}

// InteractionOutcome is the result of interacting with one banner.
type InteractionOutcome struct {
	VisitID  string `json:"visit_id"`
	BannerID string `json:"banner_id"`
	Choice   Choice `json:"choice"`
	// Explicit is true for a visible-text match, false for an attribute match.
	Explicit bool   `json:"explicit"`
	Success  bool   `json:"success"`
	Source   Source `json:"source,omitempty"`
	// SettingsClicked records that a settings control was activated on the
	// way to the outcome.
	SettingsClicked bool      `json:"settings_clicked"`
	At              time.Time `json:"at"`
}

// ButtonStatus encodes an outcome the way BannerClick datasets do: the
// choice code, negated for non-explicit matches, 0 on failure.
func (o InteractionOutcome) ButtonStatus() int {
	if !o.Success {
		return 0
	}
	c := o.Choice.Code()
	if o.Source == SourceViaExtension {
		c = 1
	}
	if !o.Explicit {
		c = -c
	}
	return c
}

// Result groups the records of one visit.
type Result struct {
	Visit        PageVisit            `json:"visit"`
	Banners      []BannerRecord       `json:"banners"`
	Interactions []InteractionOutcome `json:"interactions"`
}

// MarshalResult serialises a visit result to JSON.
func MarshalResult(r *Result) ([]byte, error) { return json.Marshal(r) }

// UnmarshalResult deserialises a visit result from JSON.
func UnmarshalResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
