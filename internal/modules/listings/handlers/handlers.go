// Package handlers exposes the listing presets and condition templates.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/listings"
)

// Handler serves the listing static-data endpoints.
type Handler struct {
	repo *listings.Repository
	log  zerolog.Logger
}

func NewHandler(repo *listings.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "listings").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/listings", func(r chi.Router) {
		r.Get("/condition-templates", h.handleListTemplates)
		r.Put("/condition-templates/{key}", h.handleSaveTemplate)
		r.Get("/presets/{asin}", h.handleGetPreset)
		r.Put("/presets/{asin}", h.handleSavePreset)
	})
}

type templateJSON struct {
	ConditionKey string `json:"condition_key"`
	TemplateText string `json:"template_text"`
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates, err := h.repo.ListConditionTemplates()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]templateJSON, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateJSON{ConditionKey: t.ConditionKey, TemplateText: t.TemplateText})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	switch key {
	case domain.ConditionUsedLikeNew, domain.ConditionUsedVeryGood, domain.ConditionUsedGood, domain.ConditionUsedAcceptable:
	default:
		h.writeError(w, http.StatusBadRequest, errors.New("unknown condition key"))
		return
	}
	var req templateJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := database.RetryBusy(func() error { return h.repo.SaveConditionTemplate(key, req.TemplateText) })
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, templateJSON{ConditionKey: key, TemplateText: req.TemplateText})
}

type presetJSON struct {
	ASIN            string    `json:"asin"`
	ConditionKey    string    `json:"condition_key"`
	ConditionNote   string    `json:"condition_note,omitempty"`
	LeadTimeDays    int       `json:"lead_time_days"`
	ShippingPattern string    `json:"shipping_pattern"`
	MarginPct       float64   `json:"margin_pct"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

func (h *Handler) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	preset, err := h.repo.GetPreset(asin)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if preset == nil {
		h.writeError(w, http.StatusNotFound, errors.New("no preset for "+asin))
		return
	}
	h.writeJSON(w, http.StatusOK, presetJSON{
		ASIN:            preset.ASIN,
		ConditionKey:    preset.ConditionKey,
		ConditionNote:   preset.ConditionNote,
		LeadTimeDays:    preset.LeadTimeDays,
		ShippingPattern: preset.ShippingPattern,
		MarginPct:       preset.MarginPct,
		UpdatedAt:       preset.UpdatedAt,
	})
}

func (h *Handler) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	var req presetJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := database.RetryBusy(func() error {
		return h.repo.SavePreset(&domain.ListingPreset{
			ASIN:            asin,
			ConditionKey:    req.ConditionKey,
			ConditionNote:   req.ConditionNote,
			LeadTimeDays:    req.LeadTimeDays,
			ShippingPattern: req.ShippingPattern,
			MarginPct:       req.MarginPct,
		})
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	req.ASIN = asin
	h.writeJSON(w, http.StatusOK, req)
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
