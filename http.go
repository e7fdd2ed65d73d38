package compick

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the JSON API on r.
//
//	POST   /resolve  {"url","selector","depth"}  -> report.Outcome
//	POST   /probe    {"url"}                     -> ancestry.ProbeResult
//	GET    /history?limit=N                      -> []history.Entry
//	DELETE /history                              -> {"cleared":N}
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Post("/resolve", s.handleResolve)
	r.Post("/probe", s.handleProbe)
	r.Get("/history", s.handleHistory)
	r.Delete("/history", s.handleClearHistory)
}

// Handler returns a router serving the JSON API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	s.RegisterHTTP(r)
	return r
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" || req.Selector == "" {
		http.Error(w, "url and selector required", http.StatusBadRequest)
		return
	}
	out, err := s.Resolve(r.Context(), req.URL, req.Selector, depthOrConfigured(req.Depth))
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	res, err := s.Probe(r.Context(), req.URL)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.History(r.Context(), limit)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.ClearHistory(r.Context())
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Service) httpError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ErrNoElement):
		status = http.StatusNotFound
	case errors.Is(err, ErrNoHistory):
		status = http.StatusNotImplemented
	}
	s.logger.Warn("compick: http request failed", "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
