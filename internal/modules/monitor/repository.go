package monitor

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// ErrNotFound is returned when a monitored item does not exist.
var ErrNotFound = errors.New("monitored item not found")

// querier is satisfied by both *sql.DB and *sql.Tx so repository reads and
// writes can run inside a caller-owned transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Repository provides persistence for monitored items, their status history
// and notification logs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new monitor repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for transaction helpers.
func (r *Repository) DB() *sql.DB { return r.db }

const itemColumns = `
	id, auction_id, title, url, image_url,
	current_price, start_price, buy_now_price, win_price,
	start_time, end_time, bid_count, status,
	check_interval_seconds, auto_adjust_interval, is_monitoring_active, last_checked_at,
	amazon_asin, amazon_sku, amazon_condition, amazon_listing_status, amazon_price,
	estimated_win_price, shipping_cost, forwarding_cost, amazon_fee_pct, amazon_margin_pct,
	amazon_lead_time_days, amazon_shipping_pattern, amazon_condition_note, amazon_last_synced_at,
	seller_central_checklist, created_at, updated_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*domain.MonitoredItem, error) {
	var item domain.MonitoredItem
	var startTime, endTime, lastChecked, lastSynced sql.NullTime
	err := row.Scan(
		&item.ID, &item.AuctionID, &item.Title, &item.URL, &item.ImageURL,
		&item.CurrentPrice, &item.StartPrice, &item.BuyNowPrice, &item.WinPrice,
		&startTime, &endTime, &item.BidCount, &item.Status,
		&item.CheckIntervalSeconds, &item.AutoAdjustInterval, &item.IsMonitoringActive, &lastChecked,
		&item.AmazonASIN, &item.AmazonSKU, &item.AmazonCondition, &item.AmazonListingStatus, &item.AmazonPrice,
		&item.EstimatedWinPrice, &item.ShippingCost, &item.ForwardingCost, &item.AmazonFeePct, &item.AmazonMarginPct,
		&item.AmazonLeadTimeDays, &item.AmazonShippingPattern, &item.AmazonConditionNote, &lastSynced,
		&item.SellerCentralChecklist, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.StartTime = nullTimePtr(startTime)
	item.EndTime = nullTimePtr(endTime)
	item.LastCheckedAt = nullTimePtr(lastChecked)
	item.AmazonLastSyncedAt = nullTimePtr(lastSynced)
	return &item, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Create inserts a new monitored item and returns its id.
func (r *Repository) Create(item *domain.MonitoredItem) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO monitored_items (
			auction_id, title, url, image_url,
			current_price, start_price, buy_now_price, win_price,
			start_time, end_time, bid_count, status,
			check_interval_seconds, auto_adjust_interval, is_monitoring_active,
			amazon_asin, amazon_sku, amazon_condition, amazon_listing_status, amazon_price,
			estimated_win_price, shipping_cost, forwarding_cost, amazon_fee_pct, amazon_margin_pct,
			amazon_lead_time_days, amazon_shipping_pattern, amazon_condition_note,
			seller_central_checklist, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.AuctionID, item.Title, item.URL, item.ImageURL,
		item.CurrentPrice, item.StartPrice, item.BuyNowPrice, item.WinPrice,
		nullTime(item.StartTime), nullTime(item.EndTime), item.BidCount, defaultString(item.Status, domain.ItemStatusActive),
		defaultInt(item.CheckIntervalSeconds, 300), item.AutoAdjustInterval, item.IsMonitoringActive,
		item.AmazonASIN, item.AmazonSKU, defaultString(item.AmazonCondition, domain.ConditionUsedGood), item.AmazonListingStatus, item.AmazonPrice,
		item.EstimatedWinPrice, item.ShippingCost, item.ForwardingCost, item.AmazonFeePct, item.AmazonMarginPct,
		item.AmazonLeadTimeDays, defaultString(item.AmazonShippingPattern, "2_3_days"), item.AmazonConditionNote,
		defaultString(item.SellerCentralChecklist, "{}"), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create monitored item: %w", err)
	}
	return res.LastInsertId()
}

// GetByID fetches one item by primary key.
func (r *Repository) GetByID(id int64) (*domain.MonitoredItem, error) {
	item, err := scanItem(r.db.QueryRow(`SELECT `+itemColumns+` FROM monitored_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// GetByAuctionID fetches one item by its auction id.
func (r *Repository) GetByAuctionID(auctionID string) (*domain.MonitoredItem, error) {
	item, err := scanItem(r.db.QueryRow(`SELECT `+itemColumns+` FROM monitored_items WHERE auction_id = ?`, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// ListAll returns every item, newest first.
func (r *Repository) ListAll() ([]*domain.MonitoredItem, error) {
	return r.list(`SELECT ` + itemColumns + ` FROM monitored_items ORDER BY created_at DESC`)
}

// ListActive returns items still being polled.
func (r *Repository) ListActive() ([]*domain.MonitoredItem, error) {
	return r.list(`SELECT ` + itemColumns + ` FROM monitored_items WHERE is_monitoring_active = 1 ORDER BY id`)
}

// ListWithSKU returns items that currently carry a marketplace SKU.
func (r *Repository) ListWithSKU() ([]*domain.MonitoredItem, error) {
	return r.list(`SELECT ` + itemColumns + ` FROM monitored_items WHERE amazon_sku != '' ORDER BY id`)
}

func (r *Repository) list(query string, args ...interface{}) ([]*domain.MonitoredItem, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored items: %w", err)
	}
	defer rows.Close()

	var items []*domain.MonitoredItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ApplySnapshot persists the polled auction state inside a caller
// transaction.
func (r *Repository) ApplySnapshot(tx querier, item *domain.MonitoredItem) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.Exec(`
		UPDATE monitored_items SET
			title = ?, image_url = ?, current_price = ?, win_price = ?,
			start_time = ?, end_time = ?, bid_count = ?, status = ?,
			is_monitoring_active = ?, last_checked_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Title, item.ImageURL, item.CurrentPrice, item.WinPrice,
		nullTime(item.StartTime), nullTime(item.EndTime), item.BidCount, item.Status,
		item.IsMonitoringActive, nullTime(item.LastCheckedAt), time.Now().UTC(),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply snapshot for item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateSettings persists operator-editable monitoring settings.
func (r *Repository) UpdateSettings(id int64, checkIntervalSeconds int, autoAdjust, active bool) error {
	_, err := r.db.Exec(`
		UPDATE monitored_items SET
			check_interval_seconds = ?, auto_adjust_interval = ?, is_monitoring_active = ?, updated_at = ?
		WHERE id = ?`,
		checkIntervalSeconds, autoAdjust, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update settings for item %d: %w", id, err)
	}
	return nil
}

// UpdateAmazonListing persists the marketplace-side listing fields.
func (r *Repository) UpdateAmazonListing(tx querier, item *domain.MonitoredItem) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.Exec(`
		UPDATE monitored_items SET
			amazon_asin = ?, amazon_sku = ?, amazon_condition = ?, amazon_listing_status = ?,
			amazon_price = ?, estimated_win_price = ?, shipping_cost = ?, forwarding_cost = ?,
			amazon_fee_pct = ?, amazon_margin_pct = ?, amazon_lead_time_days = ?,
			amazon_shipping_pattern = ?, amazon_condition_note = ?, amazon_last_synced_at = ?,
			seller_central_checklist = ?, updated_at = ?
		WHERE id = ?`,
		item.AmazonASIN, item.AmazonSKU, item.AmazonCondition, item.AmazonListingStatus,
		item.AmazonPrice, item.EstimatedWinPrice, item.ShippingCost, item.ForwardingCost,
		item.AmazonFeePct, item.AmazonMarginPct, item.AmazonLeadTimeDays,
		item.AmazonShippingPattern, item.AmazonConditionNote, nullTime(item.AmazonLastSyncedAt),
		defaultString(item.SellerCentralChecklist, "{}"), time.Now().UTC(),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update amazon listing for item %d: %w", item.ID, err)
	}
	return nil
}

// Delete removes an item; history and logs cascade.
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec(`DELETE FROM monitored_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeStale deletes ended items that no longer carry a live listing and have
// not changed within the retention window. Returns the number of rows removed.
func (r *Repository) PurgeStale(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.Exec(`
		DELETE FROM monitored_items
		WHERE status LIKE 'ended%'
		  AND amazon_sku = ''
		  AND (amazon_listing_status = '' OR amazon_listing_status = ?)
		  AND updated_at < ?`,
		domain.ListingStatusDelisted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale items: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// AddHistory appends one status-history row inside a caller transaction.
func (r *Repository) AddHistory(tx querier, h *domain.StatusHistory) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.Exec(`
		INSERT INTO status_history (
			item_id, change_type, old_status, new_status,
			old_price, new_price, old_bid_count, new_bid_count, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ItemID, h.ChangeType, h.OldStatus, h.NewStatus,
		h.OldPrice, h.NewPrice, h.OldBidCount, h.NewBidCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add history for item %d: %w", h.ItemID, err)
	}
	return nil
}

// History returns the most recent history rows for one item.
func (r *Repository) History(itemID int64, limit int) ([]*domain.StatusHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, item_id, change_type, old_status, new_status,
			old_price, new_price, old_bid_count, new_bid_count, recorded_at
		FROM status_history WHERE item_id = ? ORDER BY id DESC LIMIT ?`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var entries []*domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.ItemID, &h.ChangeType, &h.OldStatus, &h.NewStatus,
			&h.OldPrice, &h.NewPrice, &h.OldBidCount, &h.NewBidCount, &h.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

// LogNotification records one notifier dispatch.
func (r *Repository) LogNotification(tx querier, l *domain.NotificationLog) error {
	if tx == nil {
		tx = r.db
	}
	_, err := tx.Exec(`
		INSERT INTO notification_logs (item_id, channel, event_type, message, success, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ItemID, l.Channel, l.EventType, l.Message, l.Success, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log notification for item %d: %w", l.ItemID, err)
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
