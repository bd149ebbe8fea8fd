// Package handlers exposes the monitored-items REST surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/monitor"
)

type auctionFetcher interface {
	FetchAuction(ctx context.Context, auctionID string) (*yahoo.Auction, error)
}

// Handler serves the monitored-item endpoints.
type Handler struct {
	repo     *monitor.Repository
	service  *monitor.Service
	auctions auctionFetcher
	log      zerolog.Logger
}

func NewHandler(repo *monitor.Repository, service *monitor.Service, auctions auctionFetcher, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		service:  service,
		auctions: auctions,
		log:      log.With().Str("handler", "items").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Post("/import", h.handleImport)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleDelete)
		r.Put("/{id}/settings", h.handleUpdateSettings)
		r.Get("/{id}/history", h.handleHistory)
		r.Post("/{id}/check", h.handleCheck)
	})
}

type itemJSON struct {
	ID                   int64      `json:"id"`
	AuctionID            string     `json:"auction_id"`
	Title                string     `json:"title"`
	URL                  string     `json:"url"`
	ImageURL             string     `json:"image_url,omitempty"`
	CurrentPrice         int        `json:"current_price"`
	BuyNowPrice          int        `json:"buy_now_price,omitempty"`
	WinPrice             int        `json:"win_price,omitempty"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	BidCount             int        `json:"bid_count"`
	Status               string     `json:"status"`
	CheckIntervalSeconds int        `json:"check_interval_seconds"`
	AutoAdjustInterval   bool       `json:"auto_adjust_interval"`
	IsMonitoringActive   bool       `json:"is_monitoring_active"`
	LastCheckedAt        *time.Time `json:"last_checked_at,omitempty"`
	AmazonASIN           string     `json:"amazon_asin,omitempty"`
	AmazonSKU            string     `json:"amazon_sku,omitempty"`
	AmazonListingStatus  string     `json:"amazon_listing_status,omitempty"`
	AmazonPrice          int        `json:"amazon_price,omitempty"`
	AmazonMarginPct      float64    `json:"amazon_margin_pct,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toItemJSON(item *domain.MonitoredItem) itemJSON {
	return itemJSON{
		ID:                   item.ID,
		AuctionID:            item.AuctionID,
		Title:                item.Title,
		URL:                  item.URL,
		ImageURL:             item.ImageURL,
		CurrentPrice:         item.CurrentPrice,
		BuyNowPrice:          item.BuyNowPrice,
		WinPrice:             item.WinPrice,
		StartTime:            item.StartTime,
		EndTime:              item.EndTime,
		BidCount:             item.BidCount,
		Status:               item.Status,
		CheckIntervalSeconds: item.CheckIntervalSeconds,
		AutoAdjustInterval:   item.AutoAdjustInterval,
		IsMonitoringActive:   item.IsMonitoringActive,
		LastCheckedAt:        item.LastCheckedAt,
		AmazonASIN:           item.AmazonASIN,
		AmazonSKU:            item.AmazonSKU,
		AmazonListingStatus:  item.AmazonListingStatus,
		AmazonPrice:          item.AmazonPrice,
		AmazonMarginPct:      item.AmazonMarginPct,
		CreatedAt:            item.CreatedAt,
		UpdatedAt:            item.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		items []*domain.MonitoredItem
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		items, err = h.repo.ListActive()
	} else {
		items, err = h.repo.ListAll()
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]itemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, toItemJSON(item))
	}
	h.writeJSON(w, http.StatusOK, out)
}

type createItemRequest struct {
	AuctionID            string `json:"auction_id"`
	URL                  string `json:"url"`
	CheckIntervalSeconds int    `json:"check_interval_seconds"`
	AutoAdjustInterval   bool   `json:"auto_adjust_interval"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	input := req.AuctionID
	if input == "" {
		input = req.URL
	}
	auctionID := parseAuctionID(input)
	if auctionID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("auction_id or url is required"))
		return
	}

	if _, err := h.repo.GetByAuctionID(auctionID); err == nil {
		h.writeError(w, http.StatusConflict, errors.New("auction is already monitored"))
		return
	} else if !errors.Is(err, monitor.ErrNotFound) {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	item, err := h.createFromAuction(r.Context(), auctionID, req)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toItemJSON(item))
}

type importRequest struct {
	Auctions []string `json:"auctions"`
}

type importFailure struct {
	Input string `json:"input"`
	Error string `json:"error"`
}

type importResponse struct {
	Created []itemJSON      `json:"created"`
	Failed  []importFailure `json:"failed"`
}

// handleImport registers a batch of auctions. Per-auction failures do not
// abort the batch.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := importResponse{Created: []itemJSON{}, Failed: []importFailure{}}
	for _, input := range req.Auctions {
		auctionID := parseAuctionID(input)
		if auctionID == "" {
			resp.Failed = append(resp.Failed, importFailure{Input: input, Error: "unrecognized auction id"})
			continue
		}
		if _, err := h.repo.GetByAuctionID(auctionID); err == nil {
			resp.Failed = append(resp.Failed, importFailure{Input: input, Error: "already monitored"})
			continue
		}
		item, err := h.createFromAuction(r.Context(), auctionID, createItemRequest{})
		if err != nil {
			resp.Failed = append(resp.Failed, importFailure{Input: input, Error: err.Error()})
			continue
		}
		resp.Created = append(resp.Created, toItemJSON(item))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createFromAuction(ctx context.Context, auctionID string, req createItemRequest) (*domain.MonitoredItem, error) {
	auction, err := h.auctions.FetchAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	item := &domain.MonitoredItem{
		AuctionID:            auctionID,
		Title:                auction.Title,
		URL:                  "https://page.auctions.yahoo.co.jp/jp/auction/" + auctionID,
		ImageURL:             auction.ImageURL,
		CurrentPrice:         auction.CurrentPrice,
		WinPrice:             auction.WinPrice,
		BidCount:             auction.Bids,
		Status:               auction.Status,
		CheckIntervalSeconds: req.CheckIntervalSeconds,
		AutoAdjustInterval:   req.AutoAdjustInterval,
		IsMonitoringActive:   !auction.IsClosed,
	}
	if !auction.StartTime.IsZero() {
		t := auction.StartTime
		item.StartTime = &t
	}
	if !auction.EndTime.IsZero() {
		t := auction.EndTime
		item.EndTime = &t
	}
	id, err := h.repo.Create(item)
	if err != nil {
		return nil, err
	}
	item.ID = id
	if err := h.repo.AddHistory(nil, &domain.StatusHistory{
		ItemID:     id,
		ChangeType: domain.ChangeInitial,
		NewStatus:  item.Status,
		NewPrice:   item.CurrentPrice,
	}); err != nil {
		h.log.Warn().Err(err).Int64("item_id", id).Msg("failed to record initial history")
	}
	h.log.Info().Str("auction_id", auctionID).Int64("item_id", id).Msg("item registered")
	return item, nil
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toItemJSON(item))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	if err := database.RetryBusy(func() error { return h.repo.Delete(item.ID) }); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type updateSettingsRequest struct {
	CheckIntervalSeconds int  `json:"check_interval_seconds"`
	AutoAdjustInterval   bool `json:"auto_adjust_interval"`
	IsMonitoringActive   bool `json:"is_monitoring_active"`
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CheckIntervalSeconds <= 0 {
		req.CheckIntervalSeconds = item.CheckIntervalSeconds
	}
	err := database.RetryBusy(func() error {
		return h.repo.UpdateSettings(item.ID, req.CheckIntervalSeconds, req.AutoAdjustInterval, req.IsMonitoringActive)
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	updated, err := h.repo.GetByID(item.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemJSON(updated))
}

type historyJSON struct {
	ID          int64     `json:"id"`
	ChangeType  string    `json:"change_type"`
	OldStatus   string    `json:"old_status,omitempty"`
	NewStatus   string    `json:"new_status,omitempty"`
	OldPrice    int       `json:"old_price,omitempty"`
	NewPrice    int       `json:"new_price,omitempty"`
	OldBidCount int       `json:"old_bid_count,omitempty"`
	NewBidCount int       `json:"new_bid_count,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := h.repo.History(item.ID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]historyJSON, 0, len(history))
	for _, entry := range history {
		out = append(out, historyJSON{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			OldStatus:   entry.OldStatus,
			NewStatus:   entry.NewStatus,
			OldPrice:    entry.OldPrice,
			NewPrice:    entry.NewPrice,
			OldBidCount: entry.OldBidCount,
			NewBidCount: entry.NewBidCount,
			RecordedAt:  entry.RecordedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handleCheck polls the item immediately, outside its schedule.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	item, ok := h.itemFromPath(w, r)
	if !ok {
		return
	}
	if err := h.service.PollItem(r.Context(), item); err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	updated, err := h.repo.GetByID(item.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemJSON(updated))
}

func (h *Handler) itemFromPath(w http.ResponseWriter, r *http.Request) (*domain.MonitoredItem, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid item id"))
		return nil, false
	}
	item, err := h.repo.GetByID(id)
	if errors.Is(err, monitor.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return item, true
}

// parseAuctionID accepts a bare auction id or any auction page URL and
// returns the id, empty when unrecognized.
func parseAuctionID(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if !strings.Contains(input, "/") {
		return input
	}
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
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
