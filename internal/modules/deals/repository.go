package deals

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// ErrNotFound is returned when a deal alert does not exist.
var ErrNotFound = errors.New("deal alert not found")

// Repository provides persistence for deal alerts.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new deal repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const alertColumns = `
	id, keyword_id, yahoo_auction_id, yahoo_title, yahoo_url, yahoo_price, yahoo_shipping,
	amazon_asin, amazon_title, amazon_url, sell_price, amazon_fee_pct, forwarding_cost,
	gross_profit, gross_margin_pct, sales_rank, sells_well, match_score,
	status, rejection_reason, rejection_note, rejected_at, notified_at, created_at, updated_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*domain.DealAlert, error) {
	var a domain.DealAlert
	var keywordID sql.NullInt64
	var rejectedAt, notifiedAt sql.NullTime
	err := row.Scan(
		&a.ID, &keywordID, &a.YahooAuctionID, &a.YahooTitle, &a.YahooURL, &a.YahooPrice, &a.YahooShipping,
		&a.AmazonASIN, &a.AmazonTitle, &a.AmazonURL, &a.SellPrice, &a.AmazonFeePct, &a.ForwardingCost,
		&a.GrossProfit, &a.GrossMarginPct, &a.SalesRank, &a.SellsWell, &a.MatchScore,
		&a.Status, &a.RejectionReason, &a.RejectionNote, &rejectedAt, &notifiedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if keywordID.Valid {
		a.KeywordID = &keywordID.Int64
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time.UTC()
		a.RejectedAt = &t
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time.UTC()
		a.NotifiedAt = &t
	}
	return &a, nil
}

// Create inserts a deal alert. A duplicate (auction, ASIN) pair is a silent
// no-op: the returned bool reports whether a row was actually inserted.
func (r *Repository) Create(a *domain.DealAlert) (int64, bool, error) {
	now := time.Now().UTC()
	var keywordID interface{}
	if a.KeywordID != nil {
		keywordID = *a.KeywordID
	}
	res, err := r.db.Exec(`
		INSERT OR IGNORE INTO deal_alerts (
			keyword_id, yahoo_auction_id, yahoo_title, yahoo_url, yahoo_price, yahoo_shipping,
			amazon_asin, amazon_title, amazon_url, sell_price, amazon_fee_pct, forwarding_cost,
			gross_profit, gross_margin_pct, sales_rank, sells_well, match_score,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		keywordID, a.YahooAuctionID, a.YahooTitle, a.YahooURL, a.YahooPrice, a.YahooShipping,
		a.AmazonASIN, a.AmazonTitle, a.AmazonURL, a.SellPrice, a.AmazonFeePct, a.ForwardingCost,
		a.GrossProfit, a.GrossMarginPct, a.SalesRank, a.SellsWell, a.MatchScore,
		domain.AlertStatusActive, now, now)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create deal alert: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

// GetByID fetches one alert.
func (r *Repository) GetByID(id int64) (*domain.DealAlert, error) {
	a, err := scanAlert(r.db.QueryRow(`SELECT `+alertColumns+` FROM deal_alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListByStatus returns alerts in one status, newest first.
func (r *Repository) ListByStatus(status string, limit int) ([]*domain.DealAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(`SELECT `+alertColumns+` FROM deal_alerts WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		status, limit)
}

// ListAll returns every alert, newest first. The analyzer reads the full
// history.
func (r *Repository) ListAll() ([]*domain.DealAlert, error) {
	return r.list(`SELECT ` + alertColumns + ` FROM deal_alerts ORDER BY created_at DESC`)
}

func (r *Repository) list(query string, args ...interface{}) ([]*domain.DealAlert, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.DealAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Reject marks an alert rejected with a reason the rejection learner can
// consume.
func (r *Repository) Reject(id int64, reason, note string) error {
	now := time.Now().UTC()
	res, err := r.db.Exec(`
		UPDATE deal_alerts SET status = ?, rejection_reason = ?, rejection_note = ?, rejected_at = ?, updated_at = ?
		WHERE id = ?`, domain.AlertStatusRejected, reason, note, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to reject alert %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkListed records that the operator created a marketplace listing from the
// alert.
func (r *Repository) MarkListed(id int64) error {
	_, err := r.db.Exec(`UPDATE deal_alerts SET status = ?, updated_at = ? WHERE id = ?`,
		domain.AlertStatusListed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark alert %d listed: %w", id, err)
	}
	return nil
}

// MarkNotified records the webhook dispatch time.
func (r *Repository) MarkNotified(id int64) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`UPDATE deal_alerts SET notified_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert %d notified: %w", id, err)
	}
	return nil
}

// ExpireForAuction expires all active alerts of an ended auction. Runs inside
// the caller's transaction when one is given.
func (r *Repository) ExpireForAuction(tx *sql.Tx, auctionID string) (int, error) {
	var q querier = r.db
	if tx != nil {
		q = tx
	}
	res, err := q.Exec(`
		UPDATE deal_alerts SET status = ?, updated_at = ?
		WHERE yahoo_auction_id = ? AND status = ?`,
		domain.AlertStatusExpired, time.Now().UTC(), auctionID, domain.AlertStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire alerts for auction %s: %w", auctionID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
