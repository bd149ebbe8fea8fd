// Package handlers exposes the watched-keyword REST surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
)

// Handler serves the keyword endpoints.
type Handler struct {
	repo *keywords.Repository
	log  zerolog.Logger
}

func NewHandler(repo *keywords.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "keywords").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/keywords", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/cleanup", h.handleCleanup)
	})
}

type keywordJSON struct {
	ID                int64      `json:"id"`
	Keyword           string     `json:"keyword"`
	IsActive          bool       `json:"is_active"`
	Source            string     `json:"source"`
	Notes             string     `json:"notes,omitempty"`
	PerformanceScore  float64    `json:"performance_score"`
	TotalScans        int        `json:"total_scans"`
	TotalDealsFound   int        `json:"total_deals_found"`
	TotalGrossProfit  int        `json:"total_gross_profit"`
	Confidence        float64    `json:"confidence,omitempty"`
	LastScannedAt     *time.Time `json:"last_scanned_at,omitempty"`
	AutoDeactivatedAt *time.Time `json:"auto_deactivated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toKeywordJSON(k *domain.WatchedKeyword) keywordJSON {
	return keywordJSON{
		ID:                k.ID,
		Keyword:           k.Keyword,
		IsActive:          k.IsActive,
		Source:            k.Source,
		Notes:             k.Notes,
		PerformanceScore:  k.PerformanceScore,
		TotalScans:        k.TotalScans,
		TotalDealsFound:   k.TotalDealsFound,
		TotalGrossProfit:  k.TotalGrossProfit,
		Confidence:        k.Confidence,
		LastScannedAt:     k.LastScannedAt,
		AutoDeactivatedAt: k.AutoDeactivatedAt,
		CreatedAt:         k.CreatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	kws, err := h.repo.ListAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]keywordJSON, 0, len(kws))
	for _, k := range kws {
		out = append(out, toKeywordJSON(k))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type createKeywordRequest struct {
	Keyword string `json:"keyword"`
	Notes   string `json:"notes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createKeywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("keyword is required"))
		return
	}
	if exists, err := h.repo.Exists(req.Keyword); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	} else if exists {
		h.writeError(w, http.StatusConflict, errors.New("keyword already exists"))
		return
	}

	var id int64
	err := database.RetryBusy(func() error {
		var createErr error
		id, createErr = h.repo.Create(&domain.WatchedKeyword{
			Keyword:  req.Keyword,
			IsActive: true,
			Notes:    req.Notes,
		})
		return createErr
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	created, err := h.repo.GetByID(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toKeywordJSON(created))
}

type updateKeywordRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idFromPath(w, r)
	if !ok {
		return
	}
	var req updateKeywordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := database.RetryBusy(func() error { return h.repo.SetActive(id, req.IsActive, false) })
	if errors.Is(err, keywords.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	updated, err := h.repo.GetByID(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toKeywordJSON(updated))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idFromPath(w, r)
	if !ok {
		return
	}
	err := database.RetryBusy(func() error { return h.repo.Delete(id) })
	if errors.Is(err, keywords.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleCleanup applies the retention rules on demand.
func (h *Handler) handleCleanup(w http.ResponseWriter, _ *http.Request) {
	deleted, paused, err := h.repo.Cleanup()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.log.Info().Int("deleted", deleted).Int("paused", paused).Msg("keyword cleanup finished")
	h.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted, "paused": paused})
}

func (h *Handler) idFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid keyword id"))
		return 0, false
	}
	return id, true
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
