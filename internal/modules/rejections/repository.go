// Package rejections learns matcher overrides from operator-rejected deal
// alerts. Patterns are persisted with upsert semantics and loaded into the
// matcher's override snapshot after every change.
package rejections

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

// Override-loading thresholds: a learned accessory word only takes effect
// after repeated confirmation.
const (
	accessoryMinHits       = 2
	accessoryMinConfidence = 0.6
)

// Repository provides persistence for rejection patterns.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new rejection-pattern repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert records a pattern observation: a new (type, key) pair starts at
// hit_count 1 with the given confidence; a repeat bumps hit_count and raises
// confidence by 0.1, capped at 1.0.
func (r *Repository) Upsert(patternType, patternKey, patternData string, confidence float64) error {
	if patternData == "" {
		patternData = "{}"
	}
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO rejection_patterns (pattern_type, pattern_key, pattern_data, hit_count, confidence, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, 1, ?, ?)
		ON CONFLICT(pattern_type, pattern_key) DO UPDATE SET
			hit_count = hit_count + 1,
			confidence = MIN(confidence + 0.1, 1.0),
			pattern_data = excluded.pattern_data,
			updated_at = excluded.updated_at`,
		patternType, patternKey, patternData, confidence, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern %s/%s: %w", patternType, patternKey, err)
	}
	return nil
}

// ListByType returns active patterns of one type.
func (r *Repository) ListByType(patternType string) ([]*domain.RejectionPattern, error) {
	return r.list(`
		SELECT id, pattern_type, pattern_key, pattern_data, hit_count, confidence, is_active, created_at, updated_at
		FROM rejection_patterns WHERE pattern_type = ? AND is_active = 1 ORDER BY id`, patternType)
}

// ListAll returns every pattern, most hit first.
func (r *Repository) ListAll() ([]*domain.RejectionPattern, error) {
	return r.list(`
		SELECT id, pattern_type, pattern_key, pattern_data, hit_count, confidence, is_active, created_at, updated_at
		FROM rejection_patterns ORDER BY hit_count DESC, id`)
}

func (r *Repository) list(query string, args ...interface{}) ([]*domain.RejectionPattern, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejection patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*domain.RejectionPattern
	for rows.Next() {
		var p domain.RejectionPattern
		if err := rows.Scan(&p.ID, &p.PatternType, &p.PatternKey, &p.PatternData,
			&p.HitCount, &p.Confidence, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		patterns = append(patterns, &p)
	}
	return patterns, rows.Err()
}

// Deactivate turns a pattern off without deleting its history.
func (r *Repository) Deactivate(id int64) error {
	_, err := r.db.Exec(`UPDATE rejection_patterns SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate pattern %d: %w", id, err)
	}
	return nil
}

// LoadOverrides assembles the matcher override snapshot from the persisted
// patterns and installs it. Accessory words need repeated confirmation;
// blocked pairs and title pairs apply from the first hit; the threshold delta
// is the largest active hint.
func (r *Repository) LoadOverrides(overrides *matcher.Overrides) error {
	patterns, err := r.list(`
		SELECT id, pattern_type, pattern_key, pattern_data, hit_count, confidence, is_active, created_at, updated_at
		FROM rejection_patterns WHERE is_active = 1`)
	if err != nil {
		return err
	}

	var accessoryWords []string
	var blockedPairs, blockedTitlePairs [][2]string
	var thresholdDelta float64

	for _, p := range patterns {
		switch p.PatternType {
		case domain.PatternAccessoryWord:
			if p.HitCount >= accessoryMinHits && p.Confidence >= accessoryMinConfidence {
				accessoryWords = append(accessoryWords, p.PatternKey)
			}
		case domain.PatternBlockedASIN, domain.PatternProblemPair:
			if pair, ok := splitPairKey(p.PatternKey); ok {
				blockedPairs = append(blockedPairs, pair)
			}
		case domain.PatternNeverShowPair:
			if pair, ok := splitPairKey(p.PatternKey); ok {
				blockedTitlePairs = append(blockedTitlePairs, pair)
			}
		case domain.PatternThresholdHint:
			var data struct {
				Delta float64 `json:"delta"`
			}
			if json.Unmarshal([]byte(p.PatternData), &data) == nil && data.Delta > thresholdDelta {
				thresholdDelta = data.Delta
			}
		}
	}

	overrides.Replace(accessoryWords, blockedPairs, blockedTitlePairs, thresholdDelta)
	return nil
}

// PairKey builds the canonical two-part pattern key.
func PairKey(a, b string) string {
	return a + "|" + b
}

func splitPairKey(key string) ([2]string, bool) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return [2]string{}, false
	}
	return [2]string{parts[0], parts[1]}, true
}
