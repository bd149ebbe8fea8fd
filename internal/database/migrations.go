package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// migration is one idempotent schema step. Migrations run in order at startup;
// the applied version is tracked in schema_migrations. A failed migration
// aborts startup.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "monitored_items", `
		CREATE TABLE IF NOT EXISTS monitored_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			auction_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			current_price INTEGER NOT NULL DEFAULT 0,
			start_price INTEGER NOT NULL DEFAULT 0,
			buy_now_price INTEGER NOT NULL DEFAULT 0,
			win_price INTEGER NOT NULL DEFAULT 0,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			bid_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			check_interval_seconds INTEGER NOT NULL DEFAULT 300,
			auto_adjust_interval INTEGER NOT NULL DEFAULT 1,
			is_monitoring_active INTEGER NOT NULL DEFAULT 1,
			last_checked_at TIMESTAMP,
			amazon_asin TEXT NOT NULL DEFAULT '',
			amazon_sku TEXT NOT NULL DEFAULT '',
			amazon_condition TEXT NOT NULL DEFAULT 'used_good',
			amazon_listing_status TEXT NOT NULL DEFAULT '',
			amazon_price INTEGER NOT NULL DEFAULT 0,
			estimated_win_price INTEGER NOT NULL DEFAULT 0,
			shipping_cost INTEGER NOT NULL DEFAULT 0,
			forwarding_cost INTEGER NOT NULL DEFAULT 0,
			amazon_fee_pct REAL NOT NULL DEFAULT 0,
			amazon_margin_pct REAL NOT NULL DEFAULT 0,
			amazon_lead_time_days INTEGER NOT NULL DEFAULT 0,
			amazon_shipping_pattern TEXT NOT NULL DEFAULT '2_3_days',
			amazon_condition_note TEXT NOT NULL DEFAULT '',
			amazon_last_synced_at TIMESTAMP,
			seller_central_checklist TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_monitored_items_status ON monitored_items(status);
		CREATE INDEX IF NOT EXISTS idx_monitored_items_sku ON monitored_items(amazon_sku);
	`},
	{2, "status_history", `
		CREATE TABLE IF NOT EXISTS status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL REFERENCES monitored_items(id) ON DELETE CASCADE,
			change_type TEXT NOT NULL,
			old_status TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL DEFAULT '',
			old_price INTEGER NOT NULL DEFAULT 0,
			new_price INTEGER NOT NULL DEFAULT 0,
			old_bid_count INTEGER NOT NULL DEFAULT 0,
			new_bid_count INTEGER NOT NULL DEFAULT 0,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_status_history_item ON status_history(item_id);
	`},
	{3, "notification_logs", `
		CREATE TABLE IF NOT EXISTS notification_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL REFERENCES monitored_items(id) ON DELETE CASCADE,
			channel TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 1,
			sent_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{4, "watched_keywords", `
		CREATE TABLE IF NOT EXISTS watched_keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_scanned_at TIMESTAMP,
			notes TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'manual',
			parent_keyword_id INTEGER REFERENCES watched_keywords(id) ON DELETE SET NULL,
			performance_score REAL NOT NULL DEFAULT 0,
			total_scans INTEGER NOT NULL DEFAULT 0,
			total_deals_found INTEGER NOT NULL DEFAULT 0,
			total_gross_profit INTEGER NOT NULL DEFAULT 0,
			scans_since_last_deal INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			auto_deactivated_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_watched_keywords_active ON watched_keywords(is_active);
	`},
	{5, "deal_alerts", `
		CREATE TABLE IF NOT EXISTS deal_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword_id INTEGER REFERENCES watched_keywords(id) ON DELETE SET NULL,
			yahoo_auction_id TEXT NOT NULL,
			yahoo_title TEXT NOT NULL DEFAULT '',
			yahoo_url TEXT NOT NULL DEFAULT '',
			yahoo_price INTEGER NOT NULL DEFAULT 0,
			yahoo_shipping INTEGER NOT NULL DEFAULT 0,
			amazon_asin TEXT NOT NULL,
			amazon_title TEXT NOT NULL DEFAULT '',
			amazon_url TEXT NOT NULL DEFAULT '',
			sell_price INTEGER NOT NULL DEFAULT 0,
			amazon_fee_pct REAL NOT NULL DEFAULT 0,
			forwarding_cost INTEGER NOT NULL DEFAULT 0,
			gross_profit INTEGER NOT NULL DEFAULT 0,
			gross_margin_pct REAL NOT NULL DEFAULT 0,
			sales_rank INTEGER NOT NULL DEFAULT 0,
			sells_well INTEGER NOT NULL DEFAULT 0,
			match_score REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			rejection_reason TEXT NOT NULL DEFAULT '',
			rejection_note TEXT NOT NULL DEFAULT '',
			rejected_at TIMESTAMP,
			notified_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(yahoo_auction_id, amazon_asin)
		);
		CREATE INDEX IF NOT EXISTS idx_deal_alerts_status ON deal_alerts(status);
		CREATE INDEX IF NOT EXISTS idx_deal_alerts_keyword ON deal_alerts(keyword_id);
	`},
	{6, "keyword_candidates", `
		CREATE TABLE IF NOT EXISTS keyword_candidates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			keyword TEXT NOT NULL,
			strategy TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			parent_keyword_id INTEGER REFERENCES watched_keywords(id) ON DELETE SET NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			validation_result TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_keyword_candidates_status ON keyword_candidates(status);
	`},
	{7, "discovery_logs", `
		CREATE TABLE IF NOT EXISTS discovery_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'running',
			candidates_generated INTEGER NOT NULL DEFAULT 0,
			candidates_validated INTEGER NOT NULL DEFAULT 0,
			keywords_added INTEGER NOT NULL DEFAULT 0,
			keywords_deactivated INTEGER NOT NULL DEFAULT 0,
			keepa_tokens_used INTEGER NOT NULL DEFAULT 0,
			strategy_breakdown TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT ''
		);
	`},
	{8, "rejection_patterns", `
		CREATE TABLE IF NOT EXISTS rejection_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_type TEXT NOT NULL,
			pattern_key TEXT NOT NULL,
			pattern_data TEXT NOT NULL DEFAULT '{}',
			hit_count INTEGER NOT NULL DEFAULT 1,
			confidence REAL NOT NULL DEFAULT 0.5,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(pattern_type, pattern_key)
		);
	`},
	{9, "condition_templates", `
		CREATE TABLE IF NOT EXISTS condition_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			condition_key TEXT NOT NULL UNIQUE,
			template_text TEXT NOT NULL DEFAULT ''
		);
	`},
	{10, "listing_presets", `
		CREATE TABLE IF NOT EXISTS listing_presets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asin TEXT NOT NULL UNIQUE,
			condition_key TEXT NOT NULL DEFAULT 'used_good',
			condition_note TEXT NOT NULL DEFAULT '',
			lead_time_days INTEGER NOT NULL DEFAULT 0,
			shipping_pattern TEXT NOT NULL DEFAULT '2_3_days',
			margin_pct REAL NOT NULL DEFAULT 15,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`},
}

// Migrate applies all pending migrations in order. The caller must treat an
// error as fatal; a partially migrated schema is not safe to run against.
func Migrate(db *sql.DB, log zerolog.Logger) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := WithTransaction(db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
				return fmt.Errorf("migration %d (%s): record: %w", m.version, m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}

	return nil
}
