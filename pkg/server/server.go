// Package server exposes cron triggers and read endpoints over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/elonfeng/toolscore/internal/store"
	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/recommend"
	"github.com/elonfeng/toolscore/pkg/suggestion"
)

// Store is the read side the API serves from.
type Store interface {
	Ping(ctx context.Context) error
	ListSourceStatuses(ctx context.Context, sources ...string) ([]catalog.SourceStatus, error)
	ListTools(ctx context.Context, f store.ToolFilter) ([]catalog.Tool, error)
	GetToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error)
	ExternalScoresForTool(ctx context.Context, toolID string) ([]catalog.ExternalScore, error)
	SnapshotHistory(ctx context.Context, toolID, since string) ([]catalog.Snapshot, error)

	RecordRating(ctx context.Context, toolID string, rating float64) error
	RecordVisit(ctx context.Context, toolID string) error
	RecordUpvote(ctx context.Context, toolID string) error

	InsertSuggestion(ctx context.Context, sg *catalog.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*catalog.Suggestion, error)
	VoteSuggestion(ctx context.Context, id string) error
}

// historyDays is how far back a tool's snapshot history reaches.
const historyDays = 30

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 64 << 10

// Jobs are the operations behind the cron endpoints.
type Jobs interface {
	Sources() []string
	Collect(ctx context.Context, source string) (catalog.RunResult, error)
	Reconcile(ctx context.Context) catalog.RunResult
	MergeSuggestions(ctx context.Context) (suggestion.Result, error)
}

// Config configures the server.
type Config struct {
	Port       int
	CronSecret string
	Logger     *slog.Logger
}

// Server provides the HTTP API.
type Server struct {
	store       Store
	jobs        Jobs
	recommender *recommend.Service
	secret      string
	port        int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a new HTTP server. A nil store disables the read endpoints.
func New(s Store, jobs Jobs, rec *recommend.Service, cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		store:       s,
		jobs:        jobs,
		recommender: rec,
		secret:      cfg.CronSecret,
		port:        cfg.Port,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Post("/reconcile", s.handleReconcile)
		r.Post("/merge-suggestions", s.handleMerge)
		r.Post("/{source}", s.handleCollect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/recommend", s.handleRecommend)
		r.Get("/sources", s.handleSources)
		r.Get("/tools", s.handleTools)
		r.Get("/tools/{slug}", s.handleTool)
		r.Post("/tools/{slug}/rating", s.handleRating)
		r.Post("/tools/{slug}/visit", s.handleVisit)
		r.Post("/tools/{slug}/upvote", s.handleUpvote)

		r.Post("/suggestions", s.handleSuggest)
		r.Get("/suggestions/{id}", s.handleSuggestion)
		r.Post("/suggestions/{id}/vote", s.handleVote)
	})

	return r
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// requireCronSecret checks the bearer token in constant time. With no
// secret configured every request is rejected.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.store == nil {
		status["store"] = "not configured"
	} else if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	res, err := s.jobs.Collect(r.Context(), source)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeRun(w, res)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	writeRun(w, s.jobs.Reconcile(r.Context()))
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	res, err := s.jobs.MergeSuggestions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if res.NotConfigured {
		writeNotConfigured(w)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Success: true,
		Total:   res.Total,
		Updated: res.Merged,
		Skipped: res.Failed,
		Errors:  len(res.Errors),
	})
}

type runResponse struct {
	Success bool `json:"success"`
	Total   int  `json:"total"`
	Updated int  `json:"updated"`
	Skipped int  `json:"skipped"`
	Errors  int  `json:"errors"`
}

// writeRun reports a run. Per-tool failures are part of a successful
// response; they are visible through the error count and source status.
func writeRun(w http.ResponseWriter, res catalog.RunResult) {
	if res.NotConfigured {
		writeNotConfigured(w)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Success: true,
		Total:   res.Total,
		Updated: res.Updated,
		Skipped: res.Skipped,
		Errors:  len(res.Errors),
	})
}

func writeNotConfigured(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "store not configured, skipping"})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if s.recommender == nil {
		writeNotConfigured(w)
		return
	}
	q := r.URL.Query()
	c, err := recommend.ParseCriteria(q.Get("purpose"), q.Get("role"), q.Get("budget"), q.Get("korean"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	results, err := s.recommender.Query(r.Context(), c)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []recommend.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotConfigured(w)
		return
	}
	statuses, err := s.store.ListSourceStatuses(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type sourceInfo struct {
		catalog.SourceStatus
		Enabled bool `json:"enabled"`
	}

	enabled := make(map[string]bool)
	if s.jobs != nil {
		for _, src := range s.jobs.Sources() {
			enabled[src] = true
		}
	}
	infos := make([]sourceInfo, 0, len(statuses))
	for _, st := range statuses {
		infos = append(infos, sourceInfo{SourceStatus: st, Enabled: enabled[st.Source]})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotConfigured(w)
		return
	}
	q := r.URL.Query()
	f := store.ToolFilter{
		CategoryID: q.Get("category"),
		KoreanOnly: q.Get("korean") == "required",
		Limit:      100,
	}
	for _, p := range q["pricing"] {
		f.Pricing = append(f.Pricing, catalog.Pricing(p))
	}
	if v := q.Get("min_score"); v != "" {
		minScore, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_score"})
			return
		}
		f.MinHybrid = minScore
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	tools, err := s.store.ListTools(r.Context(), f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if tools == nil {
		tools = []catalog.Tool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  tools,
		"count": len(tools),
	})
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	tool, ok := s.toolFromPath(w, r)
	if !ok {
		return
	}

	scores, err := s.store.ExternalScoresForTool(r.Context(), tool.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if scores == nil {
		scores = []catalog.ExternalScore{}
	}

	since := s.now().UTC().AddDate(0, 0, -historyDays).Format("2006-01-02")
	history, err := s.store.SnapshotHistory(r.Context(), tool.ID, since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if history == nil {
		history = []catalog.Snapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tool":            tool,
		"external_scores": scores,
		"history":         history,
	})
}

// toolFromPath resolves the {slug} parameter. It writes the error response
// and returns false when the tool cannot be served.
func (s *Server) toolFromPath(w http.ResponseWriter, r *http.Request) (*catalog.Tool, bool) {
	if s.store == nil {
		writeNotConfigured(w)
		return nil, false
	}
	tool, err := s.store.GetToolBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tool not found"})
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return tool, true
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating float64 `json:"rating"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be between 1 and 5"})
		return
	}
	tool, ok := s.toolFromPath(w, r)
	if !ok {
		return
	}
	s.record(w, s.store.RecordRating(r.Context(), tool.ID, req.Rating))
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	tool, ok := s.toolFromPath(w, r)
	if !ok {
		return
	}
	s.record(w, s.store.RecordVisit(r.Context(), tool.ID))
}

func (s *Server) handleUpvote(w http.ResponseWriter, r *http.Request) {
	tool, ok := s.toolFromPath(w, r)
	if !ok {
		return
	}
	s.record(w, s.store.RecordUpvote(r.Context(), tool.ID))
}

func (s *Server) record(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotConfigured(w)
		return
	}
	var req struct {
		ToolName     string `json:"tool_name"`
		ToolURL      string `json:"tool_url"`
		Description  string `json:"description"`
		CategorySlug string `json:"category_slug"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.ToolName = strings.TrimSpace(req.ToolName)
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool_name is required"})
		return
	}

	sg := catalog.Suggestion{
		ToolName:     req.ToolName,
		ToolURL:      req.ToolURL,
		Description:  req.Description,
		CategorySlug: req.CategorySlug,
	}
	if err := s.store.InsertSuggestion(r.Context(), &sg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sg)
}

func (s *Server) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotConfigured(w)
		return
	}
	s.writeSuggestion(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotConfigured(w)
		return
	}
	id := chi.URLParam(r, "id")
	err := s.store.VoteSuggestion(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending suggestion " + id})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeSuggestion(w, r, id)
}

func (s *Server) writeSuggestion(w http.ResponseWriter, r *http.Request, id string) {
	sg, err := s.store.GetSuggestion(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "suggestion not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
