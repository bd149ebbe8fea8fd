// Package monitor polls watched auctions, records their state changes and
// fans the changes out to registered notifiers.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

type auctionClient interface {
	FetchAuction(ctx context.Context, auctionID string) (*yahoo.Auction, error)
}

type alertExpirer interface {
	ExpireForAuction(tx *sql.Tx, auctionID string) (int, error)
}

// Notifier consumes the changes of one polled item inside the item's
// transaction. Implementations log their own NotificationLog rows; a non-nil
// error rolls the whole poll back, so delivery failures must be swallowed and
// recorded instead.
type Notifier interface {
	Notify(ctx context.Context, tx *sql.Tx, item *domain.MonitoredItem, changes []*domain.StatusHistory) error
}

// Service runs the auction polling loop.
type Service struct {
	repo      *Repository
	auctions  auctionClient
	alerts    alertExpirer
	notifiers []Notifier

	minInterval time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewService creates the monitor service. alerts may be nil.
func NewService(repo *Repository, auctions auctionClient, alerts alertExpirer, minInterval time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		auctions:    auctions,
		alerts:      alerts,
		minInterval: minInterval,
		now:         time.Now,
		log:         log.With().Str("component", "monitor").Logger(),
	}
}

// AddNotifier registers a change consumer. Notifiers run in registration
// order.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// EffectiveInterval computes the polling interval for an item: fixed unless
// auto-adjust is on and the auction end is known, in which case polling
// tightens as the end approaches.
func EffectiveInterval(item *domain.MonitoredItem, minInterval time.Duration, now time.Time) time.Duration {
	base := time.Duration(item.CheckIntervalSeconds) * time.Second
	if !item.AutoAdjustInterval || item.EndTime == nil {
		return base
	}
	remaining := item.EndTime.Sub(now)
	switch {
	case remaining <= 0:
		return base
	case remaining < 30*time.Minute:
		return minInterval
	case remaining < 2*time.Hour:
		return base / 2
	default:
		return base
	}
}

// Tick polls every active item that is due. Per-item failures are logged and
// do not stop the tick.
func (s *Service) Tick(ctx context.Context) error {
	items, err := s.repo.ListActive()
	if err != nil {
		return fmt.Errorf("failed to list items for tick: %w", err)
	}

	now := s.now().UTC()
	polled := 0
	for _, item := range items {
		if !s.due(item, now) {
			continue
		}
		if err := s.PollItem(ctx, item); err != nil {
			s.log.Error().Err(err).Str("auction_id", item.AuctionID).Msg("poll failed")
			continue
		}
		polled++
	}
	if polled > 0 {
		s.log.Debug().Int("polled", polled).Int("active", len(items)).Msg("monitor tick finished")
	}
	return nil
}

func (s *Service) due(item *domain.MonitoredItem, now time.Time) bool {
	if item.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*item.LastCheckedAt) >= EffectiveInterval(item, s.minInterval, now)
}

// PollItem fetches the auction's current state and persists every change in a
// single transaction: history rows first, then the field mutations, then the
// notifier dispatch.
func (s *Service) PollItem(ctx context.Context, item *domain.MonitoredItem) error {
	auction, err := s.auctions.FetchAuction(ctx, item.AuctionID)
	if errors.Is(err, yahoo.ErrGone) {
		// A vanished page is a terminated auction, not an error.
		auction = &yahoo.Auction{
			ID:           item.AuctionID,
			Title:        item.Title,
			CurrentPrice: item.CurrentPrice,
			Bids:         item.BidCount,
			IsClosed:     true,
			HasWinner:    false,
			Status:       domain.ItemStatusEndedNoWinner,
		}
	} else if err != nil {
		return fmt.Errorf("failed to fetch auction %s: %w", item.AuctionID, err)
	}

	changes := diffAuction(item, auction)
	wasActive := item.Status == domain.ItemStatusActive
	applyAuction(item, auction, s.now().UTC())
	leftActive := wasActive && item.Status != domain.ItemStatusActive

	return database.WithTransaction(s.repo.DB(), func(tx *sql.Tx) error {
		for _, h := range changes {
			if err := s.repo.AddHistory(tx, h); err != nil {
				return err
			}
		}
		if err := s.repo.ApplySnapshot(tx, item); err != nil {
			return err
		}
		if leftActive && s.alerts != nil {
			n, err := s.alerts.ExpireForAuction(tx, item.AuctionID)
			if err != nil {
				return err
			}
			if n > 0 {
				s.log.Info().Str("auction_id", item.AuctionID).Int("expired", n).Msg("expired open alerts for ended auction")
			}
		}
		for _, notifier := range s.notifiers {
			if err := notifier.Notify(ctx, tx, item, changes); err != nil {
				return err
			}
		}
		return nil
	})
}

// diffAuction builds one history row per differing field.
func diffAuction(item *domain.MonitoredItem, auction *yahoo.Auction) []*domain.StatusHistory {
	var changes []*domain.StatusHistory
	if auction.Status != "" && auction.Status != item.Status {
		changes = append(changes, &domain.StatusHistory{
			ItemID:     item.ID,
			ChangeType: domain.ChangeStatus,
			OldStatus:  item.Status,
			NewStatus:  auction.Status,
		})
	}
	if auction.CurrentPrice != item.CurrentPrice {
		changes = append(changes, &domain.StatusHistory{
			ItemID:     item.ID,
			ChangeType: domain.ChangePrice,
			OldPrice:   item.CurrentPrice,
			NewPrice:   auction.CurrentPrice,
		})
	}
	if auction.Bids != item.BidCount {
		changes = append(changes, &domain.StatusHistory{
			ItemID:      item.ID,
			ChangeType:  domain.ChangeBid,
			OldBidCount: item.BidCount,
			NewBidCount: auction.Bids,
		})
	}
	return changes
}

func applyAuction(item *domain.MonitoredItem, auction *yahoo.Auction, now time.Time) {
	if auction.Title != "" {
		item.Title = auction.Title
	}
	if auction.ImageURL != "" {
		item.ImageURL = auction.ImageURL
	}
	item.CurrentPrice = auction.CurrentPrice
	item.WinPrice = auction.WinPrice
	item.BidCount = auction.Bids
	if auction.Status != "" {
		item.Status = auction.Status
	}
	if !auction.StartTime.IsZero() {
		t := auction.StartTime
		item.StartTime = &t
	}
	if !auction.EndTime.IsZero() {
		t := auction.EndTime
		item.EndTime = &t
	}
	if item.Status != domain.ItemStatusActive {
		item.IsMonitoringActive = false
	}
	item.LastCheckedAt = &now
}
