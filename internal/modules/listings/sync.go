package listings

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/spapi"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/monitor"
)

type listingGetter interface {
	GetListing(ctx context.Context, sellerID, sku string) (*spapi.Listing, error)
}

// missThreshold: consecutive "not found" responses before a listing counts as
// deleted. One miss can be a propagation hiccup on the marketplace side.
const missThreshold = 2

// SyncChecker reconciles local listing state against the marketplace: it
// detects listings deleted out-of-band and pulls back price edits made in the
// seller console.
type SyncChecker struct {
	items    *monitor.Repository
	amazon   listingGetter
	sellerID string
	misses   map[string]int
	log      zerolog.Logger
}

// NewSyncChecker creates the listing sync checker.
func NewSyncChecker(items *monitor.Repository, amazon listingGetter, sellerID string, log zerolog.Logger) *SyncChecker {
	return &SyncChecker{
		items:    items,
		amazon:   amazon,
		sellerID: sellerID,
		misses:   make(map[string]int),
		log:      log.With().Str("component", "listing-sync").Logger(),
	}
}

// Run checks every item that carries an SKU in a live listing state. Per-item
// failures are logged and skipped.
func (s *SyncChecker) Run(ctx context.Context) error {
	items, err := s.items.ListWithSKU()
	if err != nil {
		return err
	}

	checked := 0
	for _, item := range items {
		if item.AmazonListingStatus != domain.ListingStatusActive &&
			item.AmazonListingStatus != domain.ListingStatusInactive {
			continue
		}
		if err := s.syncItem(ctx, item); err != nil {
			s.log.Error().Err(err).Str("sku", item.AmazonSKU).Msg("listing sync failed")
			continue
		}
		checked++
	}
	if checked > 0 {
		s.log.Debug().Int("checked", checked).Msg("listing sync finished")
	}
	return nil
}

func (s *SyncChecker) syncItem(ctx context.Context, item *domain.MonitoredItem) error {
	sku := item.AmazonSKU
	listing, err := s.amazon.GetListing(ctx, s.sellerID, sku)
	if err != nil {
		return err
	}

	if listing == nil {
		s.misses[sku]++
		if s.misses[sku] < missThreshold {
			s.log.Warn().Str("sku", sku).Msg("listing not found, waiting for confirmation")
			return nil
		}
		delete(s.misses, sku)
		item.AmazonSKU = ""
		item.AmazonListingStatus = domain.ListingStatusDelisted
		item.AmazonLastSyncedAt = nil
		if err := s.items.UpdateAmazonListing(nil, item); err != nil {
			return err
		}
		s.log.Info().Str("sku", sku).Msg("listing deletion confirmed")
		return s.items.AddHistory(nil, &domain.StatusHistory{
			ItemID:     item.ID,
			ChangeType: domain.ChangeAmazonDelist,
			NewStatus:  domain.ListingStatusDelisted,
		})
	}
	delete(s.misses, sku)

	if listing.Price > 0 && listing.Price != item.AmazonPrice {
		oldPrice := item.AmazonPrice
		item.AmazonPrice = listing.Price
		item.AmazonMarginPct = backComputeMargin(item)
		if err := s.items.UpdateAmazonListing(nil, item); err != nil {
			return err
		}
		s.log.Info().Str("sku", sku).Int("old", oldPrice).Int("new", listing.Price).Msg("listing price synced")
		return s.items.AddHistory(nil, &domain.StatusHistory{
			ItemID:     item.ID,
			ChangeType: domain.ChangePrice,
			OldPrice:   oldPrice,
			NewPrice:   listing.Price,
		})
	}
	return nil
}

// backComputeMargin derives the margin implied by the current listing price
// and the recorded costs, rounded to 0.1%.
func backComputeMargin(item *domain.MonitoredItem) float64 {
	if item.AmazonPrice <= 0 {
		return 0
	}
	cost := item.EstimatedWinPrice + item.ShippingCost + item.ForwardingCost
	margin := (1 - float64(cost)/float64(item.AmazonPrice) - item.AmazonFeePct/100) * 100
	return math.Round(margin*10) / 10
}
