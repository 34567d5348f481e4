// CLAUDE:SUMMARY Persistence collaborator interface: one visit, its banners and its interaction outcomes per call.
// Package sink defines output backends for visit records.
package sink

import (
	"context"

	"github.com/hazyhaar/bannerclick/consent/record"
)

// Sink is the output interface. The engine hands every sink exactly one
// Result per visit, after the visit finished.
type Sink interface {
	Send(ctx context.Context, res *record.Result) error
	Close() error
}

// Records flattens a Result into table-keyed rows in persistence order:
// the visit, then its banners, then its interactions.
func Records(res *record.Result) []Row {
	rows := make([]Row, 0, 1+len(res.Banners)+len(res.Interactions))
	rows = append(rows, Row{Table: TableVisits, Data: res.Visit})
	for _, b := range res.Banners {
		rows = append(rows, Row{Table: TableBanners, Data: b})
	}
	for _, o := range res.Interactions {
		rows = append(rows, Row{Table: TableInteractions, Data: o})
	}
	return rows
}

// Table names.
const (
	TableVisits       = "visits"
	TableBanners      = "banners"
	TableHTMLs        = "htmls"
	TableInteractions = "interactions"
)

// Row is one keyed record.
type Row struct {
	Table string `json:"table"`
	Data  any    `json:"data"`
}
