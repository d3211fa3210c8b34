// Package server exposes the refine service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"colorbook-refiner/internal/refine"
)

const (
	maxBodyBytes    = 1 << 20
	defaultMaxBatch = 50
)

// Refiner is the part of *refine.Service the HTTP layer needs.
type Refiner interface {
	Refine(ctx context.Context, req refine.Request) refine.Result
	RefineBatch(ctx context.Context, reqs []refine.Request, limit int) []refine.Result
	Catalog() *refine.Catalog
	CompletionEnabled() bool
}

type Options struct {
	Refiner        Refiner
	Logger         *zap.Logger
	RequestTimeout time.Duration
	MaxConcurrent  int
	MaxBatch       int
}

type server struct {
	refiner       Refiner
	logger        *zap.Logger
	timeout       time.Duration
	maxConcurrent int
	maxBatch      int
}

type apiError struct {
	Error string `json:"error"`
}

type batchRequest struct {
	Requests []refine.Request `json:"requests"`
}

type batchResponse struct {
	Results []refine.Result `json:"results"`
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Category string                 `json:"category"`
	Scores   []refine.CategoryScore `json:"scores"`
}

func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}

	s := &server{
		refiner:       opts.Refiner,
		logger:        logger,
		timeout:       timeout,
		maxConcurrent: opts.MaxConcurrent,
		maxBatch:      maxBatch,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/refine", s.handleRefine)
		r.Post("/refine/batch", s.handleBatch)
		r.Post("/classify", s.handleClassify)
		r.Get("/categories", s.handleCategories)
		r.Get("/preferences", s.handlePreferences)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
	})
	return r
}

func (s *server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refine.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	// Rejected input still gets 200; Success=false and the fallback prompt
	// in the body carry the outcome.
	writeJSON(w, http.StatusOK, s.refiner.Refine(ctx, req))
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	switch {
	case len(req.Requests) == 0:
		writeJSON(w, http.StatusBadRequest, apiError{Error: "requests must not be empty"})
		return
	case len(req.Requests) > s.maxBatch:
		writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("at most %d requests per batch", s.maxBatch)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	results := s.refiner.RefineBatch(ctx, req.Requests, s.maxConcurrent)
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	catalog := s.refiner.Catalog()
	writeJSON(w, http.StatusOK, classifyResponse{
		Category: catalog.DetectCategory(req.Text),
		Scores:   catalog.Scores(req.Text),
	})
}

func (s *server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.refiner.Catalog().Categories()})
}

func (s *server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"fields":   refine.PreferenceFields(),
		"defaults": refine.DefaultPreferences(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"completion": s.refiner.CompletionEnabled(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
