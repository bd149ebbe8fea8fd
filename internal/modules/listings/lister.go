package listings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/spapi"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/monitor"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/scoring"
)

type listingCreator interface {
	GetProductType(ctx context.Context, asin string) (string, error)
	CreateListing(ctx context.Context, sellerID, sku, productType string, attributes map[string]interface{}, offerOnly bool) (*spapi.ListingSubmission, error)
}

type alertMarker interface {
	MarkListed(id int64) error
}

// ListRequest is the operator's list-from-deal input. Zero fields fall back
// to the ASIN's preset and then to the global defaults.
type ListRequest struct {
	EstimatedWinPrice int
	ShippingCost      int
	ForwardingCost    int
	FeePct            float64
	MarginPct         float64
	ConditionKey      string
	ConditionNote     string
	LeadTimeDays      int
	ShippingPattern   string
}

// Lister turns an accepted deal alert into a monitored item with a live
// marketplace offer.
type Lister struct {
	repo     *Repository
	items    *monitor.Repository
	alerts   alertMarker
	amazon   listingCreator
	sellerID string
	log      zerolog.Logger
}

// NewLister creates the list-from-deal service.
func NewLister(repo *Repository, items *monitor.Repository, alerts alertMarker, amazon listingCreator, sellerID string, log zerolog.Logger) *Lister {
	return &Lister{
		repo:     repo,
		items:    items,
		alerts:   alerts,
		amazon:   amazon,
		sellerID: sellerID,
		log:      log.With().Str("component", "lister").Logger(),
	}
}

// ListFromAlert creates the monitored item and the marketplace offer for one
// deal alert. The SKU is derived from the auction id so a relist of the same
// auction collides instead of duplicating.
func (l *Lister) ListFromAlert(ctx context.Context, alert *domain.DealAlert, req ListRequest) (*domain.MonitoredItem, error) {
	l.applyPreset(alert.AmazonASIN, &req)

	price := scoring.CalculateAmazonPrice(req.EstimatedWinPrice+req.ShippingCost, req.ForwardingCost, req.MarginPct, req.FeePct)
	if price <= 0 {
		return nil, fmt.Errorf("margin %.1f%% plus fee %.1f%% leaves no sell price", req.MarginPct, req.FeePct)
	}

	item := &domain.MonitoredItem{
		AuctionID:          alert.YahooAuctionID,
		Title:              alert.YahooTitle,
		URL:                alert.YahooURL,
		CurrentPrice:       alert.YahooPrice,
		Status:             domain.ItemStatusActive,
		IsMonitoringActive: true,
	}
	id, err := l.items.Create(item)
	if err != nil {
		// The auction may already be monitored; reuse it.
		existing, getErr := l.items.GetByAuctionID(alert.YahooAuctionID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to create monitored item: %w", err)
		}
		item = existing
		id = existing.ID
	} else {
		item.ID = id
	}

	sku := "YAHOO-" + alert.YahooAuctionID
	productType, err := l.amazon.GetProductType(ctx, alert.AmazonASIN)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve product type for %s: %w", alert.AmazonASIN, err)
	}
	attributes := l.buildAttributes(alert.AmazonASIN, price, req)
	if _, err := l.amazon.CreateListing(ctx, l.sellerID, sku, productType, attributes, true); err != nil {
		item.AmazonListingStatus = domain.ListingStatusError
		if uerr := l.items.UpdateAmazonListing(nil, item); uerr != nil {
			l.log.Error().Err(uerr).Int64("item_id", id).Msg("failed to record listing error")
		}
		l.items.AddHistory(nil, &domain.StatusHistory{
			ItemID:     id,
			ChangeType: domain.ChangeAmazonError,
			NewStatus:  domain.ListingStatusError,
		})
		return nil, fmt.Errorf("failed to create listing %s: %w", sku, err)
	}

	item.AmazonASIN = alert.AmazonASIN
	item.AmazonSKU = sku
	item.AmazonCondition = req.ConditionKey
	item.AmazonListingStatus = domain.ListingStatusActive
	item.AmazonPrice = price
	item.EstimatedWinPrice = req.EstimatedWinPrice
	item.ShippingCost = req.ShippingCost
	item.ForwardingCost = req.ForwardingCost
	item.AmazonFeePct = req.FeePct
	item.AmazonMarginPct = req.MarginPct
	item.AmazonLeadTimeDays = req.LeadTimeDays
	item.AmazonShippingPattern = req.ShippingPattern
	item.AmazonConditionNote = req.ConditionNote
	if err := l.items.UpdateAmazonListing(nil, item); err != nil {
		return nil, err
	}
	if err := l.items.AddHistory(nil, &domain.StatusHistory{
		ItemID:     id,
		ChangeType: domain.ChangeAmazonListing,
		NewStatus:  domain.ListingStatusActive,
		NewPrice:   price,
	}); err != nil {
		return nil, err
	}
	if err := l.alerts.MarkListed(alert.ID); err != nil {
		return nil, err
	}
	if err := l.repo.SavePreset(&domain.ListingPreset{
		ASIN:            alert.AmazonASIN,
		ConditionKey:    req.ConditionKey,
		ConditionNote:   req.ConditionNote,
		LeadTimeDays:    req.LeadTimeDays,
		ShippingPattern: req.ShippingPattern,
		MarginPct:       req.MarginPct,
	}); err != nil {
		l.log.Warn().Err(err).Str("asin", alert.AmazonASIN).Msg("failed to remember listing preset")
	}

	l.log.Info().Str("sku", sku).Str("asin", alert.AmazonASIN).Int("price", price).Msg("listing created from alert")
	return item, nil
}

// applyPreset fills unset request fields from the ASIN's remembered preset,
// then from the condition template, then from hard defaults.
func (l *Lister) applyPreset(asin string, req *ListRequest) {
	preset, err := l.repo.GetPreset(asin)
	if err == nil && preset != nil {
		if req.ConditionKey == "" {
			req.ConditionKey = preset.ConditionKey
		}
		if req.ConditionNote == "" {
			req.ConditionNote = preset.ConditionNote
		}
		if req.LeadTimeDays == 0 {
			req.LeadTimeDays = preset.LeadTimeDays
		}
		if req.ShippingPattern == "" {
			req.ShippingPattern = preset.ShippingPattern
		}
		if req.MarginPct == 0 {
			req.MarginPct = preset.MarginPct
		}
	}
	if req.ConditionKey == "" {
		req.ConditionKey = domain.ConditionUsedGood
	}
	if req.ConditionNote == "" {
		if text, err := l.repo.GetConditionTemplate(req.ConditionKey); err == nil && text != "" {
			req.ConditionNote = text
		}
	}
	if req.LeadTimeDays == 0 {
		req.LeadTimeDays = 3
	}
	if req.ShippingPattern == "" {
		req.ShippingPattern = "2_3_days"
	}
	if req.MarginPct == 0 {
		req.MarginPct = 15
	}
}

func (l *Lister) buildAttributes(asin string, price int, req ListRequest) map[string]interface{} {
	attributes := map[string]interface{}{
		"merchant_suggested_asin": []map[string]interface{}{{"value": asin}},
		"condition_type":          []map[string]interface{}{{"value": conditionType(req.ConditionKey)}},
		"purchasable_offer": []map[string]interface{}{{
			"currency": "JPY",
			"our_price": []map[string]interface{}{{
				"schedule": []map[string]interface{}{{"value_with_tax": price}},
			}},
		}},
		"fulfillment_availability": []map[string]interface{}{{
			"fulfillment_channel_code":   "DEFAULT",
			"quantity":                   1,
			"lead_time_to_ship_max_days": req.LeadTimeDays,
		}},
	}
	if req.ConditionNote != "" {
		attributes["condition_note"] = []map[string]interface{}{{"value": req.ConditionNote}}
	}
	if req.ShippingPattern != "" {
		attributes["merchant_shipping_group"] = []map[string]interface{}{{"value": req.ShippingPattern}}
	}
	return attributes
}

// conditionType maps the internal condition key to the marketplace's
// condition enum.
func conditionType(key string) string {
	switch key {
	case domain.ConditionUsedLikeNew:
		return "used_like_new"
	case domain.ConditionUsedVeryGood:
		return "used_very_good"
	case domain.ConditionUsedAcceptable:
		return "used_acceptable"
	default:
		return "used_good"
	}
}
