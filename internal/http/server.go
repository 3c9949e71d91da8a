// Package http exposes track resolution over a small JSON API and serves
// health and Prometheus metrics endpoints.
package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tracklink/internal/core"
	"tracklink/internal/resolve"
	"tracklink/internal/store"
)

// TrackResolver runs the full resolution pipeline.
type TrackResolver interface {
	Resolve(ctx context.Context, req resolve.Request) (*core.Resolution, error)
}

// TrackStore is the persistence surface the API needs.
type TrackStore interface {
	UpsertResolved(ctx context.Context, res core.Resolution, opts store.UpsertOptions) (trackID string, skipped bool, err error)
	GetByISRC(ctx context.Context, isrc string) (*store.Record, error)
	LookupUser(ctx context.Context, token string) (userID string, ok bool, err error)
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	resolver TrackResolver
	store    TrackStore
	metrics  *Metrics
}

type Metrics struct {
	ResolutionsTotal     *prometheus.CounterVec
	AdapterFailuresTotal *prometheus.CounterVec
	ConfirmedSkipsTotal  prometheus.Counter
	ResolutionDuration   prometheus.Histogram
	LinksPerResolution   prometheus.Histogram
}

func NewServer(config *core.ServerConfig, resolver TrackResolver, trackStore TrackStore, logger *zap.Logger) *Server {
	metrics := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracklink_resolutions_total",
				Help: "Total number of resolution requests",
			},
			[]string{"status"},
		),
		AdapterFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracklink_adapter_failures_total",
				Help: "Total number of provider adapter failures recovered into empty results",
			},
			[]string{"platform"},
		),
		ConfirmedSkipsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracklink_confirmed_skips_total",
				Help: "Total number of writes skipped because the track was user-confirmed",
			},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracklink_resolution_duration_seconds",
				Help:    "Time spent resolving one request end to end",
				Buckets: prometheus.DefBuckets,
			},
		),
		LinksPerResolution: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracklink_links_per_resolution",
				Help:    "Number of links surviving reconciliation per successful resolution",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.ResolutionsTotal,
		metrics.AdapterFailuresTotal,
		metrics.ConfirmedSkipsTotal,
		metrics.ResolutionDuration,
		metrics.LinksPerResolution,
	)

	s := &Server{
		config:   config,
		logger:   logger,
		resolver: resolver,
		store:    trackStore,
		metrics:  metrics,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/tracks/{isrc}", s.handleGetTrack)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"tracklink"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"tracklink"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler returns the routing handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// RecordAdapterFailure is wired into the resolver as its failure recorder.
func (s *Server) RecordAdapterFailure(platform core.Platform) {
	s.metrics.AdapterFailuresTotal.WithLabelValues(string(platform)).Inc()
}

type resolveRequest struct {
	SeedURL    string `json:"seed_url,omitempty"`
	Query      string `json:"query,omitempty"`
	Storefront string `json:"storefront,omitempty"`
	Overwrite  bool   `json:"overwrite,omitempty"`
}

type resolveResponse struct {
	TrackID string     `json:"track_id,omitempty"`
	Note    string     `json:"note,omitempty"`
	Core    core.Meta  `json:"core"`
	Links   []core.Hit `json:"links"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Keys    map[string]string `json:"keys,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.ResolutionsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}
	if (req.SeedURL == "") == (req.Query == "") {
		s.metrics.ResolutionsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "bad_request",
			"exactly one of seed_url or query is required", nil)
		return
	}

	res, err := s.resolver.Resolve(r.Context(), resolve.Request{
		SeedURL:    req.SeedURL,
		Query:      req.Query,
		Storefront: req.Storefront,
	})
	if err != nil {
		s.writeResolveError(w, req, err)
		return
	}

	opts := store.UpsertOptions{Overwrite: req.Overwrite}
	if userID := s.authenticatedUser(r); userID != "" {
		opts.UserID = userID
	}

	trackID, skipped, err := s.store.UpsertResolved(r.Context(), *res, opts)
	if err != nil {
		s.logger.Error("persistence failed",
			zap.String("isrc", res.Core.ISRC),
			zap.Error(err))
		s.metrics.ResolutionsTotal.WithLabelValues("persistence_error").Inc()
		writeError(w, http.StatusInternalServerError, "persistence_error",
			"failed to persist resolved track", keysFor(res.Core))
		return
	}

	s.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())

	if skipped {
		s.metrics.ResolutionsTotal.WithLabelValues("confirmed_skip").Inc()
		s.metrics.ConfirmedSkipsTotal.Inc()
		writeJSON(w, http.StatusOK, resolveResponse{
			TrackID: trackID,
			Note:    "track confirmed; not overwriting",
			Core:    res.Core,
			Links:   []core.Hit{},
		})
		return
	}

	s.metrics.ResolutionsTotal.WithLabelValues("ok").Inc()
	s.metrics.LinksPerResolution.Observe(float64(len(res.Links)))
	writeJSON(w, http.StatusOK, resolveResponse{
		TrackID: trackID,
		Core:    res.Core,
		Links:   res.Links,
	})
}

func (s *Server) writeResolveError(w http.ResponseWriter, req resolveRequest, err error) {
	keys := map[string]string{}
	if req.SeedURL != "" {
		keys["seed_url"] = req.SeedURL
	}
	if req.Query != "" {
		keys["query"] = req.Query
	}

	switch {
	case errors.Is(err, core.ErrUnsupportedURL):
		s.metrics.ResolutionsTotal.WithLabelValues("unsupported_url").Inc()
		writeError(w, http.StatusBadRequest, "unsupported_url", err.Error(), keys)
	case errors.Is(err, core.ErrMetadataExtraction):
		s.metrics.ResolutionsTotal.WithLabelValues("metadata_extraction_failed").Inc()
		writeError(w, http.StatusUnprocessableEntity, "metadata_extraction_failed", err.Error(), keys)
	case errors.Is(err, core.ErrNoConfidentLinks):
		s.metrics.ResolutionsTotal.WithLabelValues("no_confident_links").Inc()
		writeError(w, http.StatusFailedDependency, "no_confident_links", err.Error(), keys)
	default:
		s.logger.Error("resolution failed", zap.Error(err))
		s.metrics.ResolutionsTotal.WithLabelValues("internal_error").Inc()
		writeError(w, http.StatusInternalServerError, "internal_error",
			"resolution failed unexpectedly", keys)
	}
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	isrc := strings.ToUpper(r.PathValue("isrc"))

	rec, err := s.store.GetByISRC(r.Context(), isrc)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "no track for ISRC",
			map[string]string{"isrc": isrc})
		return
	}
	if err != nil {
		s.logger.Error("track lookup failed",
			zap.String("isrc", isrc),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error",
			"track lookup failed", nil)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		TrackID: rec.ID,
		Core:    rec.Core,
		Links:   rec.Links,
	})
}

// authenticatedUser resolves the optional bearer token to a user. A missing
// or invalid token yields the empty user; it never fails the request.
func (s *Server) authenticatedUser(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ""
	}

	userID, found, err := s.store.LookupUser(r.Context(), token)
	if err != nil {
		s.logger.Warn("token lookup failed", zap.Error(err))
		return ""
	}
	if !found {
		return ""
	}
	return userID
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string, keys map[string]string) {
	writeJSON(w, status, errorResponse{
		Error:   code,
		Message: message,
		Keys:    keys,
	})
}

func keysFor(meta core.Meta) map[string]string {
	keys := map[string]string{
		"title":  meta.Title,
		"artist": meta.Artist,
	}
	if meta.ISRC != "" {
		keys["isrc"] = meta.ISRC
	}
	return keys
}
