// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github-trending-tracker/internal/model"
	"github-trending-tracker/internal/store"
)

// Querier is the read-side store surface the API depends on.
type Querier interface {
	Query(ctx context.Context, p store.QueryParams) model.RepoPage
	LastUpdateTime(ctx context.Context) (time.Time, bool)
	AvailableDates(ctx context.Context) []string
}

// Handler is the container for API dependencies.
type Handler struct {
	db       Querier
	logger   *slog.Logger
	pageSize int
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db Querier, logger *slog.Logger, pageSize int) http.Handler {
	h := &Handler{
		db:       db,
		logger:   logger,
		pageSize: pageSize,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos", h.getRepos)
		r.Get("/last-update", h.getLastUpdate)
		r.Get("/dates", h.getDates)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reposResponse struct {
	model.RepoPage
	Topics []string `json:"topics"`
}

// getRepos handles the paginated, filterable repository view.
// GET /v1/repos?language=all&page=1&date=2025-01-02
// Store failures surface as the empty-result envelope, never as a 5xx.
func (h *Handler) getRepos(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language == "" {
		language = "all"
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	date := r.URL.Query().Get("date")

	result := h.db.Query(r.Context(), store.QueryParams{
		Language: language,
		Date:     date,
		Page:     page,
		PageSize: h.pageSize,
	})

	respondWithJSON(w, http.StatusOK, reposResponse{
		RepoPage: result,
		Topics:   pageTopics(result.Repos),
	})
}

// getLastUpdate reports when the most recent fetch batch was persisted.
// GET /v1/last-update
func (h *Handler) getLastUpdate(w http.ResponseWriter, r *http.Request) {
	t, ok := h.db.LastUpdateTime(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]any{"last_update": nil})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"last_update": t.UTC().Format(time.RFC3339),
	})
}

// getDates lists the calendar dates for which snapshots exist, newest first.
// GET /v1/dates
func (h *Handler) getDates(w http.ResponseWriter, r *http.Request) {
	dates := h.db.AvailableDates(r.Context())
	respondWithJSON(w, http.StatusOK, map[string][]string{"dates": dates})
}

// pageTopics derives the sorted distinct topic set of the current page only.
func pageTopics(repos []model.Repo) []string {
	seen := make(map[string]struct{})
	for _, r := range repos {
		for _, t := range r.Topics {
			if t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
