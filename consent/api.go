// CLAUDE:SUMMARY chi HTTP API: POST /visits, POST /analyze, GET /visits/{id}, GET /healthz.
package consent

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/bannerclick/kit"
)

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	visit := s.visitEndpoint()
	analyze := s.analyzeEndpoint()
	getVisit := s.getVisitEndpoint()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/visits", func(w http.ResponseWriter, r *http.Request) {
		var req visitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		serve(w, r, visit, &req)
	})

	r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		body := http.MaxBytesReader(w, r.Body, int64(maxMarkupSize)+4096)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		serve(w, r, analyze, &req)
	})

	r.Get("/visits/{id}", func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, getVisit, &getVisitRequest{ID: chi.URLParam(r, "id")})
	})

	return r
}

func serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	ctx := kit.WithRequestID(kit.WithTransport(r.Context(), kit.TransportHTTP), middleware.GetReqID(r.Context()))
	resp, err := ep(ctx, req)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errNoDomain), errors.Is(err, errNoMarkup), errors.Is(err, errNoVisitID):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errDisabled):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
