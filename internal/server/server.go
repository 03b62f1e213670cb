package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/painradar/aggregation-service/internal/aggregate"
	"github.com/painradar/aggregation-service/internal/config"
	"github.com/painradar/aggregation-service/internal/models"
	"github.com/painradar/aggregation-service/internal/storage"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Aggregator is the pipeline entry point the route layer drives.
type Aggregator interface {
	Aggregate(ctx context.Context, queries []models.SourceQuery, opts aggregate.Options) (*models.PagedResult, error)
}

// Server handles HTTP requests
type Server struct {
	config     config.ServerConfig
	sources    config.SourcesConfig
	deadline   time.Duration
	aggregator Aggregator
	sink       storage.Sink
	server     *http.Server
}

// NewServer creates a new HTTP server. sink may be nil when persistence is
// disabled; the sink-backed routes then answer 503.
func NewServer(cfg config.ServerConfig, sources config.SourcesConfig, deadline time.Duration, aggregator Aggregator, sink storage.Sink) *Server {
	s := &Server{
		config:     cfg,
		sources:    sources,
		deadline:   deadline,
		aggregator: aggregator,
		sink:       sink,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/problems", s.handleProblems)
	mux.HandleFunc("/accepted", s.handleAccepted)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleProblems validates query parameters and runs one aggregation call.
func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts, queries, err := s.parseProblemsQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deadline)
	defer cancel()

	result, err := s.aggregator.Aggregate(ctx, queries, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, "Aggregation timed out", http.StatusGatewayTimeout)
			return
		}
		http.Error(w, fmt.Sprintf("Aggregation failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) parseProblemsQuery(r *http.Request) (aggregate.Options, []models.SourceQuery, error) {
	opts := aggregate.Options{
		Category: "all",
		SortBy:   aggregate.SortConfidence,
		Page:     1,
		Limit:    defaultLimit,
	}
	params := r.URL.Query()

	if category := params.Get("category"); category != "" {
		if !models.ValidCategory(category) {
			return opts, nil, fmt.Errorf("invalid category %q", category)
		}
		opts.Category = category
	}

	if limitStr := params.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxLimit {
			return opts, nil, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
		}
		opts.Limit = limit
	}

	if pageStr := params.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return opts, nil, fmt.Errorf("page must be a positive integer")
		}
		opts.Page = page
	}

	if minConfStr := params.Get("minConfidence"); minConfStr != "" {
		minConf, err := strconv.ParseFloat(minConfStr, 64)
		if err != nil || minConf < 0 || minConf > 1 {
			return opts, nil, fmt.Errorf("minConfidence must be a number between 0 and 1")
		}
		opts.MinConfidence = minConf
	}

	if sortBy := params.Get("sortBy"); sortBy != "" {
		switch sortBy {
		case aggregate.SortConfidence, aggregate.SortEngagement, aggregate.SortRecency:
			opts.SortBy = sortBy
		default:
			return opts, nil, fmt.Errorf("invalid sortBy %q", sortBy)
		}
	}

	queries := s.sources.DefaultQueries()
	if sourcesStr := params.Get("sources"); sourcesStr != "" {
		wanted := make(map[models.SourceType]bool)
		for _, name := range strings.Split(sourcesStr, ",") {
			name = strings.TrimSpace(name)
			st := models.SourceType(name)
			valid := false
			for _, known := range models.AllSourceTypes() {
				if st == known {
					valid = true
					break
				}
			}
			if !valid {
				return opts, nil, fmt.Errorf("invalid source %q", name)
			}
			wanted[st] = true
		}
		var filtered []models.SourceQuery
		for _, q := range queries {
			if wanted[q.Source] {
				filtered = append(filtered, q)
			}
		}
		queries = filtered
	}

	return opts, queries, nil
}

// handleAccepted handles GET requests for previously persisted accepted items
func (s *Server) handleAccepted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		http.Error(w, "Persistence not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxLimit {
			http.Error(w, fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 1 {
			http.Error(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = parsed
	}

	items, err := s.sink.GetProblems(r.Context(), limit, (page-1)*limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve items: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
		"page":  page,
		"limit": limit,
	})
}

// handleStats handles GET requests for persisted-item statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		http.Error(w, "Persistence not configured", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.sink.GetStats(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve stats: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSearch handles GET requests for substring search over persisted items
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		http.Error(w, "Persistence not configured", http.StatusServiceUnavailable)
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		http.Error(w, "Missing search term", http.StatusBadRequest)
		return
	}

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > maxLimit {
			http.Error(w, fmt.Sprintf("limit must be an integer between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	items, err := s.sink.Search(r.Context(), term, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to search: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
		"query": term,
	})
}

// handleStatus handles GET requests for the background run status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		http.Error(w, "Persistence not configured", http.StatusServiceUnavailable)
		return
	}

	status, err := s.sink.GetRunStatus(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
