// Affinity - Real-Time Event Recommendation Engine
// Copyright 2026 The Affinity Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventstats/affinity

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/eventstats/affinity/internal/recommend"
)

const defaultMaxResults = 10

// RecommendationService is the query surface the handlers expose.
type RecommendationService interface {
	RecommendForUser(ctx context.Context, userID int64, maxResults int) ([]recommend.RecommendedEvent, error)
	SimilarEvents(ctx context.Context, userID, eventID int64, maxResults int) ([]recommend.RecommendedEvent, error)
	InteractionTotals(ctx context.Context, eventIDs []int64) ([]recommend.RecommendedEvent, error)
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler serves the recommendation endpoints.
type Handler struct {
	service  RecommendationService
	db       HealthChecker
	validate *validator.Validate
}

// NewHandler creates a handler over the given service.
func NewHandler(service RecommendationService, db HealthChecker) *Handler {
	return &Handler{
		service:  service,
		db:       db,
		validate: validator.New(),
	}
}

// MaxResults has no lower bound: zero or negative values are valid
// requests that produce an empty result, not client errors.
type recommendationsRequest struct {
	UserID     int64 `validate:"required,gt=0"`
	MaxResults int   `validate:"lte=1000"`
}

// Recommendations handles GET /api/v1/users/{userID}/recommendations.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid user ID", err)
		return
	}

	req := recommendationsRequest{
		UserID:     userID,
		MaxResults: intQueryParam(r, "max_results", defaultMaxResults),
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "invalid request parameters", err)
		return
	}

	results, err := h.service.RecommendForUser(r.Context(), req.UserID, req.MaxResults)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to compute recommendations", err)
		return
	}

	respondList(w, emptyAsSlice(results), len(results))
}

type similarEventsRequest struct {
	UserID     int64 `validate:"required,gt=0"`
	EventID    int64 `validate:"required,gt=0"`
	MaxResults int   `validate:"lte=1000"`
}

// SimilarEvents handles GET /api/v1/events/{eventID}/similar.
func (h *Handler) SimilarEvents(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid event ID", err)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid or missing user_id", err)
		return
	}

	req := similarEventsRequest{
		UserID:     userID,
		EventID:    eventID,
		MaxResults: intQueryParam(r, "max_results", defaultMaxResults),
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "invalid request parameters", err)
		return
	}

	results, err := h.service.SimilarEvents(r.Context(), req.UserID, req.EventID, req.MaxResults)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load similar events", err)
		return
	}

	respondList(w, emptyAsSlice(results), len(results))
}

// InteractionsCount handles GET /api/v1/events/interactions.
// Event IDs arrive as a comma-separated event_ids parameter.
func (h *Handler) InteractionsCount(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("event_ids")
	if raw == "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing event_ids", nil)
		return
	}

	parts := strings.Split(raw, ",")
	if len(parts) > 1000 {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "too many event IDs", nil)
		return
	}

	eventIDs := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid event ID "+p, err)
			return
		}
		eventIDs = append(eventIDs, id)
	}

	results, err := h.service.InteractionTotals(r.Context(), eventIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to sum interactions", err)
		return
	}

	respondList(w, emptyAsSlice(results), len(results))
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, &APIResponse{
		Success: code == http.StatusOK,
		Data:    map[string]string{"status": status},
		Meta:    &APIMeta{Timestamp: time.Now()},
	})
}

// intQueryParam extracts an integer query parameter with a default value.
func intQueryParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// emptyAsSlice maps a nil result to an empty JSON array instead of null.
func emptyAsSlice(results []recommend.RecommendedEvent) []recommend.RecommendedEvent {
	if results == nil {
		return []recommend.RecommendedEvent{}
	}
	return results
}
