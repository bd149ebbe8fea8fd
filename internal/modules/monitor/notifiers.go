package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
)

type listingDeleter interface {
	DeleteListing(ctx context.Context, sellerID, sku string) error
}

// AmazonNotifier delists the linked marketplace offer when the source auction
// ends, so a sold-out auction never leaves a purchasable listing behind.
type AmazonNotifier struct {
	repo     *Repository
	amazon   listingDeleter
	sellerID string
	log      zerolog.Logger
}

// NewAmazonNotifier creates the auto-delist notifier.
func NewAmazonNotifier(repo *Repository, amazon listingDeleter, sellerID string, log zerolog.Logger) *AmazonNotifier {
	return &AmazonNotifier{
		repo:     repo,
		amazon:   amazon,
		sellerID: sellerID,
		log:      log.With().Str("component", "amazon-notifier").Logger(),
	}
}

// Notify reacts only to a status change into an ended state on an item that
// carries a marketplace SKU. Delist failures are recorded on the item, not
// returned, so the poll transaction still commits.
func (n *AmazonNotifier) Notify(ctx context.Context, tx *sql.Tx, item *domain.MonitoredItem, changes []*domain.StatusHistory) error {
	ended := false
	for _, c := range changes {
		if c.ChangeType == domain.ChangeStatus && strings.HasPrefix(c.NewStatus, "ended") {
			ended = true
			break
		}
	}
	if !ended || item.AmazonSKU == "" {
		return nil
	}

	sku := item.AmazonSKU
	if err := n.amazon.DeleteListing(ctx, n.sellerID, sku); err != nil {
		n.log.Error().Err(err).Str("sku", sku).Str("auction_id", item.AuctionID).Msg("auto-delist failed")
		item.AmazonListingStatus = domain.ListingStatusError
		if err := n.repo.UpdateAmazonListing(tx, item); err != nil {
			return err
		}
		return n.repo.LogNotification(tx, &domain.NotificationLog{
			ItemID:    item.ID,
			Channel:   "amazon",
			EventType: "delist",
			Message:   fmt.Sprintf("SKU %s の自動取下げに失敗しました: %v", sku, err),
			Success:   false,
		})
	}

	item.AmazonSKU = ""
	item.AmazonListingStatus = domain.ListingStatusDelisted
	item.AmazonLastSyncedAt = nil
	if err := n.repo.UpdateAmazonListing(tx, item); err != nil {
		return err
	}
	if err := n.repo.AddHistory(tx, &domain.StatusHistory{
		ItemID:     item.ID,
		ChangeType: domain.ChangeAmazonDelistAuto,
		NewStatus:  domain.ListingStatusDelisted,
	}); err != nil {
		return err
	}
	n.log.Info().Str("sku", sku).Str("auction_id", item.AuctionID).Msg("listing auto-delisted for ended auction")
	return n.repo.LogNotification(tx, &domain.NotificationLog{
		ItemID:    item.ID,
		Channel:   "amazon",
		EventType: "delist",
		Message:   fmt.Sprintf("オークション終了に伴い SKU %s を取下げました", sku),
		Success:   true,
	})
}

type webhookSender interface {
	Enabled() bool
	Send(ctx context.Context, msg notify.Message) error
}

// WebhookNotifier pushes a change summary to the configured webhook sink and
// records every dispatch in the notification log.
type WebhookNotifier struct {
	repo   *Repository
	sender webhookSender
	log    zerolog.Logger
}

// NewWebhookNotifier creates the webhook notifier.
func NewWebhookNotifier(repo *Repository, sender webhookSender, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		repo:   repo,
		sender: sender,
		log:    log.With().Str("component", "webhook-notifier").Logger(),
	}
}

// Notify sends one message covering all of the item's changes. Delivery
// failures are logged with success=false and never abort the transaction.
func (n *WebhookNotifier) Notify(ctx context.Context, tx *sql.Tx, item *domain.MonitoredItem, changes []*domain.StatusHistory) error {
	if len(changes) == 0 || !n.sender.Enabled() {
		return nil
	}

	msg, eventType := buildChangeMessage(item, changes)
	err := n.sender.Send(ctx, msg)
	if err != nil {
		n.log.Error().Err(err).Str("auction_id", item.AuctionID).Msg("webhook dispatch failed")
	}
	return n.repo.LogNotification(tx, &domain.NotificationLog{
		ItemID:    item.ID,
		Channel:   "webhook",
		EventType: eventType,
		Message:   msg.Title,
		Success:   err == nil,
	})
}

// buildChangeMessage renders the changes in Japanese, status first since it is
// the most consequential.
func buildChangeMessage(item *domain.MonitoredItem, changes []*domain.StatusHistory) (notify.Message, string) {
	eventType := changes[0].ChangeType
	var fields []notify.Field
	title := "監視中の商品に変化がありました"

	for _, c := range changes {
		switch c.ChangeType {
		case domain.ChangeStatus:
			eventType = domain.ChangeStatus
			switch c.NewStatus {
			case domain.ItemStatusEndedSold:
				title = "オークションが落札されました"
			case domain.ItemStatusEndedNoWinner:
				title = "オークションが落札されずに終了しました"
			}
			fields = append(fields, notify.Field{Name: "状態", Value: fmt.Sprintf("%s → %s", c.OldStatus, c.NewStatus)})
		case domain.ChangePrice:
			fields = append(fields, notify.Field{Name: "価格", Value: fmt.Sprintf("%d円 → %d円", c.OldPrice, c.NewPrice)})
		case domain.ChangeBid:
			fields = append(fields, notify.Field{Name: "入札数", Value: fmt.Sprintf("%d → %d", c.OldBidCount, c.NewBidCount)})
		}
	}

	return notify.Message{
		Title:  title,
		Body:   item.Title,
		URL:    item.URL,
		Fields: fields,
	}, eventType
}
