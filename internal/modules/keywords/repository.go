// Package keywords manages the watched search keywords driving the deal
// scanner.
package keywords

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// ErrNotFound is returned when a keyword does not exist.
var ErrNotFound = errors.New("keyword not found")

// Repository provides persistence for watched keywords.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new keyword repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const keywordColumns = `
	id, keyword, is_active, last_scanned_at, notes, source, parent_keyword_id,
	performance_score, total_scans, total_deals_found, total_gross_profit,
	scans_since_last_deal, confidence, auto_deactivated_at, created_at, updated_at`

func scanKeyword(row interface{ Scan(...interface{}) error }) (*domain.WatchedKeyword, error) {
	var k domain.WatchedKeyword
	var lastScanned, deactivated sql.NullTime
	var parentID sql.NullInt64
	err := row.Scan(
		&k.ID, &k.Keyword, &k.IsActive, &lastScanned, &k.Notes, &k.Source, &parentID,
		&k.PerformanceScore, &k.TotalScans, &k.TotalDealsFound, &k.TotalGrossProfit,
		&k.ScansSinceLastDeal, &k.Confidence, &deactivated, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastScanned.Valid {
		t := lastScanned.Time.UTC()
		k.LastScannedAt = &t
	}
	if deactivated.Valid {
		t := deactivated.Time.UTC()
		k.AutoDeactivatedAt = &t
	}
	if parentID.Valid {
		k.ParentKeywordID = &parentID.Int64
	}
	return &k, nil
}

// Create inserts a keyword. The keyword text is unique; inserting a duplicate
// returns an error.
func (r *Repository) Create(k *domain.WatchedKeyword) (int64, error) {
	now := time.Now().UTC()
	var parent interface{}
	if k.ParentKeywordID != nil {
		parent = *k.ParentKeywordID
	}
	res, err := r.db.Exec(`
		INSERT INTO watched_keywords (
			keyword, is_active, notes, source, parent_keyword_id, confidence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(k.Keyword), k.IsActive, k.Notes, defaultSource(k.Source), parent, k.Confidence, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create keyword %q: %w", k.Keyword, err)
	}
	return res.LastInsertId()
}

// GetByID fetches one keyword.
func (r *Repository) GetByID(id int64) (*domain.WatchedKeyword, error) {
	k, err := scanKeyword(r.db.QueryRow(`SELECT `+keywordColumns+` FROM watched_keywords WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return k, err
}

// Exists reports whether the exact keyword text is already watched.
func (r *Repository) Exists(keyword string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM watched_keywords WHERE keyword = ?`, strings.TrimSpace(keyword)).Scan(&n)
	return n > 0, err
}

// ListAll returns every keyword, most productive first.
func (r *Repository) ListAll() ([]*domain.WatchedKeyword, error) {
	return r.list(`SELECT ` + keywordColumns + ` FROM watched_keywords ORDER BY performance_score DESC, id`)
}

// ListActiveForScan returns active keywords in scan order: oldest
// last_scanned_at first, never-scanned first of all. This gives round-robin
// fairness across cycles.
func (r *Repository) ListActiveForScan() ([]*domain.WatchedKeyword, error) {
	return r.list(`
		SELECT ` + keywordColumns + `
		FROM watched_keywords
		WHERE is_active = 1
		ORDER BY last_scanned_at IS NOT NULL, last_scanned_at, id`)
}

// ListBySourcePrefix returns keywords whose source starts with the prefix
// ("ai_" selects all generated keywords).
func (r *Repository) ListBySourcePrefix(prefix string) ([]*domain.WatchedKeyword, error) {
	return r.list(`SELECT `+keywordColumns+` FROM watched_keywords WHERE source LIKE ? ORDER BY id`, prefix+"%")
}

func (r *Repository) list(query string, args ...interface{}) ([]*domain.WatchedKeyword, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var kws []*domain.WatchedKeyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		kws = append(kws, k)
	}
	return kws, rows.Err()
}

// MarkScanned updates the scan counters after one scan cycle touched the
// keyword.
func (r *Repository) MarkScanned(id int64) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		UPDATE watched_keywords SET
			total_scans = total_scans + 1,
			scans_since_last_deal = scans_since_last_deal + 1,
			last_scanned_at = ?, updated_at = ?
		WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark keyword %d scanned: %w", id, err)
	}
	return nil
}

// RecordDeal updates the deal counters after an alert was emitted for the
// keyword.
func (r *Repository) RecordDeal(id int64, grossProfit int) error {
	_, err := r.db.Exec(`
		UPDATE watched_keywords SET
			total_deals_found = total_deals_found + 1,
			total_gross_profit = total_gross_profit + ?,
			scans_since_last_deal = 0,
			updated_at = ?
		WHERE id = ?`, grossProfit, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record deal for keyword %d: %w", id, err)
	}
	return nil
}

// SetPerformanceScore writes the analyzer's score back onto the keyword.
func (r *Repository) SetPerformanceScore(id int64, score float64) error {
	_, err := r.db.Exec(`UPDATE watched_keywords SET performance_score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set score for keyword %d: %w", id, err)
	}
	return nil
}

// SetActive pauses or resumes a keyword. Deactivation by the discovery engine
// also records the timestamp.
func (r *Repository) SetActive(id int64, active, autoDeactivated bool) error {
	now := time.Now().UTC()
	var deactivatedAt interface{}
	if !active && autoDeactivated {
		deactivatedAt = now
	}
	_, err := r.db.Exec(`
		UPDATE watched_keywords SET is_active = ?, auto_deactivated_at = ?, updated_at = ?
		WHERE id = ?`, active, deactivatedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to set keyword %d active=%v: %w", id, active, err)
	}
	return nil
}

// Delete removes a keyword; its alerts keep a NULL keyword reference.
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec(`DELETE FROM watched_keywords WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete keyword %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAI returns the number of active generator-sourced keywords, for the
// cap on auto-added keywords. Deactivated ones free their slot.
func (r *Repository) CountAI() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM watched_keywords WHERE source LIKE 'ai_%' AND is_active = 1`).Scan(&n)
	return n, err
}

// Cleanup applies the post-cycle retention rules: unproductive AI keywords
// are deleted after 10 scans, unproductive manual ones after 50, and manual
// keywords that went dormant after finding deals are paused. Returns
// (deleted, paused).
func (r *Repository) Cleanup() (int, int, error) {
	res, err := r.db.Exec(`
		DELETE FROM watched_keywords
		WHERE total_deals_found = 0
		  AND ((source LIKE 'ai_%' AND total_scans >= 10) OR (source = 'manual' AND total_scans >= 50))`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete unproductive keywords: %w", err)
	}
	deleted, _ := res.RowsAffected()

	res, err = r.db.Exec(`
		UPDATE watched_keywords SET is_active = 0, updated_at = ?
		WHERE source = 'manual' AND is_active = 1
		  AND total_deals_found > 0 AND scans_since_last_deal >= 50`, time.Now().UTC())
	if err != nil {
		return int(deleted), 0, fmt.Errorf("failed to pause dormant keywords: %w", err)
	}
	paused, _ := res.RowsAffected()

	return int(deleted), int(paused), nil
}

func defaultSource(s string) string {
	if s == "" {
		return "manual"
	}
	return s
}
