// Package api provides REST API endpoints for decoding reports and reading
// stored weather conditions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metar_parser/internal/metar"
	"metar_parser/internal/observability"
	"metar_parser/internal/storage"
)

const (
	maxDecodeBody = 64 << 10
	defaultLimit  = 100
	maxLimit      = 1000
)

// ConditionsStore reads the latest conditions per station.
type ConditionsStore interface {
	GetConditions(ctx context.Context, station string) (*storage.Conditions, error)
	ListByCategory(ctx context.Context, category string) ([]storage.Conditions, error)
}

// ArchiveStore queries archived reports.
type ArchiveStore interface {
	Query(ctx context.Context, p storage.QueryParams) ([]storage.StoredReport, error)
	GetByID(ctx context.Context, id int64) (*storage.StoredReport, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// HistoryStore aggregates the report history.
type HistoryStore interface {
	CategoryCounts(ctx context.Context, station string, since time.Time) (map[string]uint64, error)
}

// Stores groups the backends the API reads from. Any of them may be nil, in
// which case its endpoints answer 503.
type Stores struct {
	Conditions ConditionsStore
	Archive    ArchiveStore
	History    HistoryStore
}

// Config holds configuration for the API server.
type Config struct {
	APIKeys    []string // Valid API keys. Empty disables authentication.
	CORSOrigin string
}

// Server provides REST API access to the decoder and stored conditions.
type Server struct {
	conditions ConditionsStore
	archive    ArchiveStore
	history    HistoryStore
	metrics    *observability.Metrics
	logger     *slog.Logger
	apiKeys    map[string]bool
	corsOrigin string
}

// NewServer creates an API server.
func NewServer(cfg Config, stores Stores, metrics *observability.Metrics, logger *slog.Logger) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	return &Server{
		conditions: stores.Conditions,
		archive:    stores.Archive,
		history:    stores.History,
		metrics:    metrics,
		logger:     logger,
		apiKeys:    keys,
		corsOrigin: origin,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if len(s.apiKeys) > 0 {
				r.Use(s.authMiddleware)
			}

			r.Post("/decode", s.handleDecode)
			r.Get("/stations/{icao}", s.handleGetStation)
			r.Get("/categories/{category}", s.handleListCategory)
			r.Get("/reports", s.handleQueryReports)
			r.Get("/reports/stats", s.handleArchiveStats)
			r.Get("/reports/{id}", s.handleGetReport)
			r.Get("/history/categories", s.handleCategoryCounts)
		})
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr, "auth", len(s.apiKeys) > 0)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for browser access.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Query parameter for simple testing.
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// DecodeRequest is the JSON form of a decode request body.
type DecodeRequest struct {
	Raw string `json:"raw"`
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDecodeBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	raw := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req DecodeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
			return
		}
		raw = req.Raw
	}

	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "Report text is required")
		return
	}

	report := metar.Parse(raw)
	if s.metrics != nil {
		s.metrics.HTTPDecodes.WithLabelValues(string(report.FlightCategory)).Inc()
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	if s.conditions == nil {
		writeError(w, http.StatusServiceUnavailable, "Current conditions store not configured")
		return
	}

	station := strings.ToUpper(chi.URLParam(r, "icao"))
	if len(station) != 4 {
		writeError(w, http.StatusBadRequest, "icao must be a 4 character station identifier")
		return
	}

	cond, err := s.conditions.GetConditions(r.Context(), station)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No conditions found for station")
		return
	}
	if err != nil {
		s.logger.Error("get conditions", "station", station, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cond)
}

func (s *Server) handleListCategory(w http.ResponseWriter, r *http.Request) {
	if s.conditions == nil {
		writeError(w, http.StatusServiceUnavailable, "Current conditions store not configured")
		return
	}

	category, ok := metar.ParseFlightCategory(strings.ToUpper(chi.URLParam(r, "category")))
	if !ok {
		writeError(w, http.StatusBadRequest, "category must be one of VFR, MVFR, IFR, LIFR")
		return
	}

	list, err := s.conditions.ListByCategory(r.Context(), string(category))
	if err != nil {
		s.logger.Error("list conditions", "category", category, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []storage.Conditions{}
	}

	writeJSON(w, http.StatusOK, list)
}

// ReportResponse is the JSON form of an archived report.
type ReportResponse struct {
	ID         int64           `json:"id"`
	MessageID  int64           `json:"message_id,omitempty"`
	ReceivedAt string          `json:"received_at"`
	Source     string          `json:"source,omitempty"`
	Parser     string          `json:"parser"`
	Station    string          `json:"station"`
	Category   string          `json:"flight_category"`
	CeilingFt  int             `json:"ceiling_ft"`
	Missing    []string        `json:"missing,omitempty"`
	RawText    string          `json:"raw_text"`
	Report     json.RawMessage `json:"report,omitempty"`
}

func storedToResponse(sr storage.StoredReport) ReportResponse {
	resp := ReportResponse{
		ID:         sr.ID,
		MessageID:  sr.MessageID,
		ReceivedAt: sr.ReceivedAt.UTC().Format(time.RFC3339),
		Source:     sr.Source,
		Parser:     sr.Parser,
		Station:    sr.Station,
		Category:   sr.Category,
		CeilingFt:  sr.CeilingFt,
		Missing:    sr.Missing,
		RawText:    sr.RawText,
	}
	if sr.ReportJSON != "" && json.Valid([]byte(sr.ReportJSON)) {
		resp.Report = json.RawMessage(sr.ReportJSON)
	}
	return resp
}

func (s *Server) handleQueryReports(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Report archive not configured")
		return
	}

	q := r.URL.Query()
	params := storage.QueryParams{
		Station:   strings.ToUpper(q.Get("station")),
		Limit:     defaultLimit,
		OrderDesc: true,
	}

	if c := q.Get("category"); c != "" {
		category, ok := metar.ParseFlightCategory(strings.ToUpper(c))
		if !ok {
			writeError(w, http.StatusBadRequest, "category must be one of VFR, MVFR, IFR, LIFR")
			return
		}
		params.Category = string(category)
	}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		params.Limit = min(n, maxLimit)
	}

	reports, err := s.archive.Query(r.Context(), params)
	if err != nil {
		s.logger.Error("query reports", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]ReportResponse, 0, len(reports))
	for _, sr := range reports {
		results = append(results, storedToResponse(sr))
	}

	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Report archive not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}

	sr, err := s.archive.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		s.logger.Error("get report", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, storedToResponse(*sr))
}

// StatsResponse is the JSON form of the archive statistics.
type StatsResponse struct {
	TotalReports     int            `json:"total_reports"`
	ByCategory       map[string]int `json:"by_category"`
	ByStation        map[string]int `json:"by_station"`
	WithMissing      int            `json:"with_missing"`
	TopMissingFields map[string]int `json:"top_missing_fields"`
}

func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Report archive not configured")
		return
	}

	st, err := s.archive.GetStats(r.Context())
	if err != nil {
		s.logger.Error("archive stats", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalReports:     st.TotalReports,
		ByCategory:       st.ByCategory,
		ByStation:        st.ByStation,
		WithMissing:      st.WithMissing,
		TopMissingFields: st.TopMissingFields,
	})
}

// CategoryCountsResponse reports how many reports fell in each category
// over a window.
type CategoryCountsResponse struct {
	Station string            `json:"station,omitempty"`
	Since   string            `json:"since"`
	Counts  map[string]uint64 `json:"counts"`
}

func (s *Server) handleCategoryCounts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Report history not configured")
		return
	}

	q := r.URL.Query()
	window := 24 * time.Hour
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration (e.g. 6h)")
			return
		}
		window = d
	}

	station := strings.ToUpper(q.Get("station"))
	since := time.Now().UTC().Add(-window)

	counts, err := s.history.CategoryCounts(r.Context(), station, since)
	if err != nil {
		s.logger.Error("category counts", "station", station, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, CategoryCountsResponse{
		Station: station,
		Since:   since.Format(time.RFC3339),
		Counts:  counts,
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
