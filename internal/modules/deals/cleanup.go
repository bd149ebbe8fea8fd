package deals

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// staleItemRetention is how long an ended, delisted item is kept before the
// cleanup pass deletes it.
const staleItemRetention = 7 * 24 * time.Hour

type auctionFetcher interface {
	FetchAuction(ctx context.Context, auctionID string) (*yahoo.Auction, error)
}

type itemPurger interface {
	PurgeStale(olderThan time.Duration) (int, error)
}

// Cleaner expires active alerts whose auctions have ended between scans and
// purges monitored items that finished their lifecycle.
type Cleaner struct {
	alerts   *Repository
	auctions auctionFetcher
	items    itemPurger
	log      zerolog.Logger
}

// NewCleaner creates the periodic alert cleaner. items may be nil when item
// purging is handled elsewhere.
func NewCleaner(alerts *Repository, auctions auctionFetcher, items itemPurger, log zerolog.Logger) *Cleaner {
	return &Cleaner{
		alerts:   alerts,
		auctions: auctions,
		items:    items,
		log:      log.With().Str("component", "alert-cleaner").Logger(),
	}
}

// Run revalidates every active alert against the live auction page. A closed
// or vanished auction expires all of its alerts. Fetch failures leave the
// alert for the next pass.
func (c *Cleaner) Run(ctx context.Context) error {
	alerts, err := c.alerts.ListByStatus(domain.AlertStatusActive, 0)
	if err != nil {
		return err
	}

	checked := make(map[string]bool)
	expired := 0
	for _, alert := range alerts {
		if checked[alert.YahooAuctionID] {
			continue
		}
		checked[alert.YahooAuctionID] = true

		auction, err := c.auctions.FetchAuction(ctx, alert.YahooAuctionID)
		switch {
		case errors.Is(err, yahoo.ErrGone):
			// Fall through to expiry.
		case err != nil:
			c.log.Warn().Err(err).Str("auction_id", alert.YahooAuctionID).Msg("revalidation fetch failed")
			continue
		case !auction.IsClosed:
			continue
		}

		n, err := c.alerts.ExpireForAuction(nil, alert.YahooAuctionID)
		if err != nil {
			return err
		}
		expired += n
	}

	purged := 0
	if c.items != nil {
		purged, err = c.items.PurgeStale(staleItemRetention)
		if err != nil {
			return err
		}
	}

	if expired > 0 || purged > 0 {
		c.log.Info().Int("alerts_expired", expired).Int("items_purged", purged).Msg("cleanup pass finished")
	}
	return nil
}
