// Package listings manages the marketplace-listing side of the pipeline:
// operator condition templates, per-ASIN listing presets, and the
// reconciliation jobs that keep auctions and marketplace offers in sync.
package listings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// Repository provides persistence for condition templates and listing
// presets.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new listings repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveConditionTemplate creates or replaces the template text for one
// condition.
func (r *Repository) SaveConditionTemplate(conditionKey, templateText string) error {
	_, err := r.db.Exec(`
		INSERT INTO condition_templates (condition_key, template_text) VALUES (?, ?)
		ON CONFLICT(condition_key) DO UPDATE SET template_text = excluded.template_text`,
		conditionKey, templateText)
	if err != nil {
		return fmt.Errorf("failed to save condition template %s: %w", conditionKey, err)
	}
	return nil
}

// GetConditionTemplate returns the template text for one condition, empty
// when none is saved.
func (r *Repository) GetConditionTemplate(conditionKey string) (string, error) {
	var text string
	err := r.db.QueryRow(`SELECT template_text FROM condition_templates WHERE condition_key = ?`, conditionKey).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return text, err
}

// ListConditionTemplates returns all saved templates.
func (r *Repository) ListConditionTemplates() ([]*domain.ConditionTemplate, error) {
	rows, err := r.db.Query(`SELECT id, condition_key, template_text FROM condition_templates ORDER BY condition_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list condition templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.ConditionTemplate
	for rows.Next() {
		var t domain.ConditionTemplate
		if err := rows.Scan(&t.ID, &t.ConditionKey, &t.TemplateText); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// SavePreset creates or replaces the listing preset for one ASIN.
func (r *Repository) SavePreset(p *domain.ListingPreset) error {
	_, err := r.db.Exec(`
		INSERT INTO listing_presets (asin, condition_key, condition_note, lead_time_days, shipping_pattern, margin_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asin) DO UPDATE SET
			condition_key = excluded.condition_key,
			condition_note = excluded.condition_note,
			lead_time_days = excluded.lead_time_days,
			shipping_pattern = excluded.shipping_pattern,
			margin_pct = excluded.margin_pct,
			updated_at = excluded.updated_at`,
		p.ASIN, p.ConditionKey, p.ConditionNote, p.LeadTimeDays, p.ShippingPattern, p.MarginPct, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save preset for %s: %w", p.ASIN, err)
	}
	return nil
}

// GetPreset returns the saved preset for an ASIN, or nil when none exists.
func (r *Repository) GetPreset(asin string) (*domain.ListingPreset, error) {
	var p domain.ListingPreset
	err := r.db.QueryRow(`
		SELECT id, asin, condition_key, condition_note, lead_time_days, shipping_pattern, margin_pct, updated_at
		FROM listing_presets WHERE asin = ?`, asin).Scan(
		&p.ID, &p.ASIN, &p.ConditionKey, &p.ConditionNote, &p.LeadTimeDays, &p.ShippingPattern, &p.MarginPct, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preset for %s: %w", asin, err)
	}
	return &p, nil
}
