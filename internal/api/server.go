// Package api exposes the read-only query surface the web app polls:
// list all coupons, the most recent ones, coupons by store, and
// aggregate counts. It never writes; the ingestor owns all mutation.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"couponbot/internal/domain"
	"couponbot/internal/storage"
)

// defaultLatestLimit is used when /api/coupons/latest has no limit param.
const defaultLatestLimit = 10

// Server serves the query API over HTTP.
type Server struct {
	repo   storage.Repository
	apiKey string
	log    logrus.FieldLogger
	srv    *http.Server
}

// NewServer builds the API server. With an empty apiKey the /api routes
// are served unauthenticated; only do that behind a trusted proxy.
func NewServer(addr, apiKey string, repo storage.Repository, logger logrus.FieldLogger) *Server {
	s := &Server{
		repo:   repo,
		apiKey: apiKey,
		log:    logger.WithField("component", "api"),
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/coupons", s.handleListAll)
		r.Get("/coupons/latest", s.handleListLatest)
		r.Get("/coupons/store/{store}", s.handleListByStore)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks serving the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.srv.Addr).Info("API server starting")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requireAPIKey rejects requests whose X-API-Key header does not match
// the configured key. With no key configured it passes everything.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// couponsResponse is the envelope for all listing endpoints.
type couponsResponse struct {
	Success bool                  `json:"success"`
	Count   int                   `json:"count"`
	Coupons []domain.CouponRecord `json:"coupons"`
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.ListAll(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeCoupons(w, records)
}

func (s *Server) handleListLatest(w http.ResponseWriter, r *http.Request) {
	limit := defaultLatestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "invalid limit",
			})
			return
		}
		limit = parsed
	}

	records, err := s.repo.ListRecent(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeCoupons(w, records)
}

func (s *Server) handleListByStore(w http.ResponseWriter, r *http.Request) {
	store := domain.Store(chi.URLParam(r, "store"))
	records, err := s.repo.ListByStore(r.Context(), store)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeCoupons(w, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.repo.CountByStore(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	total := 0
	byStore := make(map[string]int, len(counts))
	for store, count := range counts {
		total += count
		byStore[string(store)] = count
	}

	var lastUpdated *time.Time
	if recent, err := s.repo.ListRecent(r.Context(), 1); err == nil && len(recent) > 0 {
		lastUpdated = &recent[0].CreatedAt
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]any{
			"total":       total,
			"byStore":     byStore,
			"lastUpdated": lastUpdated,
		},
	})
}

func (s *Server) writeCoupons(w http.ResponseWriter, records []domain.CouponRecord) {
	if records == nil {
		records = []domain.CouponRecord{}
	}
	writeJSON(w, http.StatusOK, couponsResponse{
		Success: true,
		Count:   len(records),
		Coupons: records,
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("Query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "internal error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
