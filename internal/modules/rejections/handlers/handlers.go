// Package handlers exposes the learned rejection patterns.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/rejections"
)

type overrideReloader interface {
	ReloadOverrides() error
}

// Handler serves the rejection-pattern endpoints.
type Handler struct {
	repo    *rejections.Repository
	learner overrideReloader
	log     zerolog.Logger
}

func NewHandler(repo *rejections.Repository, learner overrideReloader, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		learner: learner,
		log:     log.With().Str("handler", "rejections").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rejections", func(r chi.Router) {
		r.Get("/patterns", h.handleListPatterns)
		r.Post("/patterns/{id}/deactivate", h.handleDeactivatePattern)
	})
}

type patternJSON struct {
	ID          int64           `json:"id"`
	PatternType string          `json:"pattern_type"`
	PatternKey  string          `json:"pattern_key"`
	PatternData json.RawMessage `json:"pattern_data,omitempty"`
	HitCount    int             `json:"hit_count"`
	Confidence  float64         `json:"confidence"`
	IsActive    bool            `json:"is_active"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (h *Handler) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patternType := r.URL.Query().Get("type")
	var (
		patterns []*domain.RejectionPattern
		err      error
	)
	if patternType == "" {
		patterns, err = h.repo.ListAll()
	} else {
		patterns, err = h.repo.ListByType(patternType)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]patternJSON, 0, len(patterns))
	for _, p := range patterns {
		entry := patternJSON{
			ID:          p.ID,
			PatternType: p.PatternType,
			PatternKey:  p.PatternKey,
			HitCount:    p.HitCount,
			Confidence:  p.Confidence,
			IsActive:    p.IsActive,
			UpdatedAt:   p.UpdatedAt,
		}
		if p.PatternData != "" {
			entry.PatternData = json.RawMessage(p.PatternData)
		}
		out = append(out, entry)
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handleDeactivatePattern retires a learned pattern and reloads the matcher
// overrides so the change takes effect immediately.
func (h *Handler) handleDeactivatePattern(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid pattern id"))
		return
	}
	if err := h.repo.Deactivate(id); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.learner.ReloadOverrides(); err != nil {
		h.log.Warn().Err(err).Msg("override reload failed")
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
