// Package handlers exposes the deal-alert REST surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/deals"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/listings"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/rejections"
)

type lister interface {
	ListFromAlert(ctx context.Context, alert *domain.DealAlert, req listings.ListRequest) (*domain.MonitoredItem, error)
}

type rejectionLearner interface {
	SuggestReasons(alert *domain.DealAlert) []rejections.Suggestion
	AnalyzeSingleRejection(alert *domain.DealAlert, reason string) error
	ReloadOverrides() error
}

// Handler serves the deal-alert endpoints.
type Handler struct {
	alerts  *deals.Repository
	learner rejectionLearner
	lister  lister
	log     zerolog.Logger
}

func NewHandler(alerts *deals.Repository, learner rejectionLearner, l lister, log zerolog.Logger) *Handler {
	return &Handler{
		alerts:  alerts,
		learner: learner,
		lister:  l,
		log:     log.With().Str("handler", "alerts").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/reasons", h.handleSuggestReasons)
		r.Post("/{id}/reject", h.handleReject)
		r.Post("/{id}/list", h.handleListFromAlert)
	})
}

type alertJSON struct {
	ID             int64      `json:"id"`
	KeywordID      *int64     `json:"keyword_id,omitempty"`
	YahooAuctionID string     `json:"yahoo_auction_id"`
	YahooTitle     string     `json:"yahoo_title"`
	YahooURL       string     `json:"yahoo_url"`
	YahooPrice     int        `json:"yahoo_price"`
	YahooShipping  int        `json:"yahoo_shipping"`
	AmazonASIN     string     `json:"amazon_asin"`
	AmazonTitle    string     `json:"amazon_title"`
	AmazonURL      string     `json:"amazon_url"`
	SellPrice      int        `json:"sell_price"`
	GrossProfit    int        `json:"gross_profit"`
	GrossMarginPct float64    `json:"gross_margin_pct"`
	SalesRank      int        `json:"sales_rank"`
	SellsWell      bool       `json:"sells_well"`
	MatchScore     float64    `json:"match_score"`
	Status         string     `json:"status"`
	RejectedReason string     `json:"rejection_reason,omitempty"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAlertJSON(a *domain.DealAlert) alertJSON {
	return alertJSON{
		ID:             a.ID,
		KeywordID:      a.KeywordID,
		YahooAuctionID: a.YahooAuctionID,
		YahooTitle:     a.YahooTitle,
		YahooURL:       a.YahooURL,
		YahooPrice:     a.YahooPrice,
		YahooShipping:  a.YahooShipping,
		AmazonASIN:     a.AmazonASIN,
		AmazonTitle:    a.AmazonTitle,
		AmazonURL:      a.AmazonURL,
		SellPrice:      a.SellPrice,
		GrossProfit:    a.GrossProfit,
		GrossMarginPct: a.GrossMarginPct,
		SalesRank:      a.SalesRank,
		SellsWell:      a.SellsWell,
		MatchScore:     a.MatchScore,
		Status:         a.Status,
		RejectedReason: a.RejectionReason,
		NotifiedAt:     a.NotifiedAt,
		CreatedAt:      a.CreatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		alerts []*domain.DealAlert
		err    error
	)
	if status == "" {
		alerts, err = h.alerts.ListByStatus(domain.AlertStatusActive, limit)
	} else {
		alerts, err = h.alerts.ListByStatus(status, limit)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]alertJSON, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertJSON(a))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.alertFromPath(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toAlertJSON(alert))
}

func (h *Handler) handleSuggestReasons(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.alertFromPath(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.learner.SuggestReasons(alert))
}

type rejectRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// handleReject marks the alert rejected and feeds the rejection to the
// pattern learner. Learner failures do not fail the rejection itself.
func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.alertFromPath(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = domain.RejectionOther
	}
	if err := database.RetryBusy(func() error { return h.alerts.Reject(alert.ID, req.Reason, req.Note) }); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.learner.AnalyzeSingleRejection(alert, req.Reason); err != nil {
		h.log.Warn().Err(err).Int64("alert_id", alert.ID).Msg("rejection analysis failed")
	} else if err := h.learner.ReloadOverrides(); err != nil {
		h.log.Warn().Err(err).Msg("override reload failed")
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type listFromAlertRequest struct {
	EstimatedWinPrice int     `json:"estimated_win_price"`
	ShippingCost      int     `json:"shipping_cost"`
	ForwardingCost    int     `json:"forwarding_cost"`
	FeePct            float64 `json:"fee_pct"`
	MarginPct         float64 `json:"margin_pct"`
	ConditionKey      string  `json:"condition_key"`
	ConditionNote     string  `json:"condition_note"`
	LeadTimeDays      int     `json:"lead_time_days"`
	ShippingPattern   string  `json:"shipping_pattern"`
}

// handleListFromAlert turns an accepted alert into a monitored item with a
// live marketplace offer.
func (h *Handler) handleListFromAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.alertFromPath(w, r)
	if !ok {
		return
	}
	if alert.Status != domain.AlertStatusActive {
		h.writeError(w, http.StatusConflict, errors.New("alert is not active"))
		return
	}
	var req listFromAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.EstimatedWinPrice <= 0 {
		req.EstimatedWinPrice = alert.YahooPrice
	}
	item, err := h.lister.ListFromAlert(r.Context(), alert, listings.ListRequest{
		EstimatedWinPrice: req.EstimatedWinPrice,
		ShippingCost:      req.ShippingCost,
		ForwardingCost:    req.ForwardingCost,
		FeePct:            req.FeePct,
		MarginPct:         req.MarginPct,
		ConditionKey:      req.ConditionKey,
		ConditionNote:     req.ConditionNote,
		LeadTimeDays:      req.LeadTimeDays,
		ShippingPattern:   req.ShippingPattern,
	})
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"item_id":    item.ID,
		"amazon_sku": item.AmazonSKU,
		"price":      item.AmazonPrice,
	})
}

func (h *Handler) alertFromPath(w http.ResponseWriter, r *http.Request) (*domain.DealAlert, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid alert id"))
		return nil, false
	}
	alert, err := h.alerts.GetByID(id)
	if errors.Is(err, deals.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return alert, true
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
