// CLAUDE:SUMMARY Transport-agnostic visit, analyze and lookup endpoints shared by the HTTP API and the MCP tools.
package consent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hazyhaar/bannerclick/consent/record"
	"github.com/hazyhaar/bannerclick/kit"
)

// Visitor runs one visit. *Pool implements it.
type Visitor interface {
	Visit(ctx context.Context, domain string) (*record.Result, error)
}

// ResultStore serves persisted results. *Store implements it.
type ResultStore interface {
	Get(ctx context.Context, visitID string) (*record.Result, error)
}

// Service exposes visits over HTTP and MCP.
type Service struct {
	// Visitor runs live visits. Nil disables them.
	Visitor Visitor
	// Engine runs offline analyses. Nil disables them.
	Engine *Engine
	// Store serves visit lookups. Nil disables them.
	Store  ResultStore
	Logger *slog.Logger
}

var (
	errNoDomain   = errors.New("domain is required")
	errNoMarkup   = errors.New("html is required")
	errNoVisitID  = errors.New("id is required")
	errDisabled   = errors.New("not available on this server")
	maxMarkupSize = 8 << 20
)

type visitRequest struct {
	Domain string `json:"domain"`
}

type analyzeRequest struct {
	Name string `json:"name,omitempty"`
	HTML string `json:"html"`
}

type getVisitRequest struct {
	ID string `json:"id"`
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// wrap logs every call of ep and turns its panics into errors.
func (s *Service) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	log := s.logger()
	return kit.Chain(kit.Logging(log, name), kit.Recover(log))(ep)
}

// visitEndpoint returns the persisted result even when the session died
// mid-visit: its status already reports the failure.
func (s *Service) visitEndpoint() kit.Endpoint {
	ep := func(ctx context.Context, req any) (any, error) {
		if s.Visitor == nil {
			return nil, errDisabled
		}
		r := req.(*visitRequest)
		domain := strings.TrimSpace(r.Domain)
		if domain == "" {
			return nil, errNoDomain
		}
		res, err := s.Visitor.Visit(ctx, domain)
		if res == nil {
			return nil, err
		}
		return res, nil
	}
	return s.wrap("visit", ep)
}

func (s *Service) analyzeEndpoint() kit.Endpoint {
	ep := func(ctx context.Context, req any) (any, error) {
		if s.Engine == nil {
			return nil, errDisabled
		}
		r := req.(*analyzeRequest)
		if strings.TrimSpace(r.HTML) == "" {
			return nil, errNoMarkup
		}
		if len(r.HTML) > maxMarkupSize {
			return nil, errors.New("html too large")
		}
		name := r.Name
		if name == "" {
			name = "inline.html"
		}
		res, err := s.Engine.AnalyzeHTML(ctx, name, r.HTML)
		if res == nil {
			return nil, err
		}
		return res, nil
	}
	return s.wrap("analyze", ep)
}

func (s *Service) getVisitEndpoint() kit.Endpoint {
	ep := func(ctx context.Context, req any) (any, error) {
		if s.Store == nil {
			return nil, errDisabled
		}
		r := req.(*getVisitRequest)
		if r.ID == "" {
			return nil, errNoVisitID
		}
		return s.Store.Get(ctx, r.ID)
	}
	return s.wrap("get_visit", ep)
}
