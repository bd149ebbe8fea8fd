package discovery

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

// ErrNotFound is returned when a candidate or log row does not exist.
var ErrNotFound = errors.New("discovery record not found")

// Repository provides persistence for keyword candidates and discovery-cycle
// logs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new discovery repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const candidateColumns = `
	id, keyword, strategy, confidence, parent_keyword_id, reasoning,
	status, validation_result, created_at, resolved_at`

func scanCandidate(row interface{ Scan(...interface{}) error }) (*domain.KeywordCandidate, error) {
	var c domain.KeywordCandidate
	var parentID sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Keyword, &c.Strategy, &c.Confidence, &parentID, &c.Reasoning,
		&c.Status, &c.ValidationResult, &c.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentKeywordID = &parentID.Int64
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		c.ResolvedAt = &t
	}
	return &c, nil
}

// CreateCandidate inserts a keyword proposal.
func (r *Repository) CreateCandidate(c *domain.KeywordCandidate) (int64, error) {
	var parent interface{}
	if c.ParentKeywordID != nil {
		parent = *c.ParentKeywordID
	}
	res, err := r.db.Exec(`
		INSERT INTO keyword_candidates (
			keyword, strategy, confidence, parent_keyword_id, reasoning, status, validation_result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Keyword, c.Strategy, c.Confidence, parent, c.Reasoning,
		defaultStatus(c.Status), defaultJSON(c.ValidationResult), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create candidate %q: %w", c.Keyword, err)
	}
	return res.LastInsertId()
}

// GetCandidate fetches one candidate.
func (r *Repository) GetCandidate(id int64) (*domain.KeywordCandidate, error) {
	c, err := scanCandidate(r.db.QueryRow(`SELECT `+candidateColumns+` FROM keyword_candidates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCandidatesByStatus returns candidates in one status, newest first.
func (r *Repository) ListCandidatesByStatus(status string) ([]*domain.KeywordCandidate, error) {
	return r.listCandidates(`SELECT `+candidateColumns+` FROM keyword_candidates WHERE status = ? ORDER BY created_at DESC`, status)
}

// ListPendingCandidates returns candidates awaiting validation, highest
// confidence first so the token budget goes to the best proposals.
func (r *Repository) ListPendingCandidates() ([]*domain.KeywordCandidate, error) {
	return r.listCandidates(`
		SELECT ` + candidateColumns + ` FROM keyword_candidates
		WHERE status = 'pending' ORDER BY confidence DESC, id`)
}

func (r *Repository) listCandidates(query string, args ...interface{}) ([]*domain.KeywordCandidate, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var cs []*domain.KeywordCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// ResolveCandidate moves a candidate to a terminal status, recording the
// validation outcome.
func (r *Repository) ResolveCandidate(id int64, status, validationResult string) error {
	res, err := r.db.Exec(`
		UPDATE keyword_candidates SET status = ?, validation_result = ?, resolved_at = ?
		WHERE id = ?`, status, defaultJSON(validationResult), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve candidate %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CandidateExists reports whether the keyword text already has a candidate in
// any non-rejected status.
func (r *Repository) CandidateExists(keyword string) (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM keyword_candidates WHERE keyword = ? AND status != 'rejected'`, keyword).Scan(&n)
	return n > 0, err
}

// StartLog opens a discovery-cycle log row and returns its id.
func (r *Repository) StartLog() (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO discovery_logs (started_at, status) VALUES (?, ?)`,
		time.Now().UTC(), domain.DiscoveryStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to start discovery log: %w", err)
	}
	return res.LastInsertId()
}

// FinishLog closes a discovery-cycle log row with its final counters.
func (r *Repository) FinishLog(l *domain.DiscoveryLog) error {
	status := l.Status
	if status == "" {
		status = domain.DiscoveryStatusCompleted
	}
	_, err := r.db.Exec(`
		UPDATE discovery_logs SET
			finished_at = ?, status = ?, candidates_generated = ?, candidates_validated = ?,
			keywords_added = ?, keywords_deactivated = ?, keepa_tokens_used = ?,
			strategy_breakdown = ?, error_message = ?
		WHERE id = ?`,
		time.Now().UTC(), status, l.CandidatesGenerated, l.CandidatesValidated,
		l.KeywordsAdded, l.KeywordsDeactivated, l.KeepaTokensUsed,
		defaultJSON(l.StrategyBreakdown), l.ErrorMessage, l.ID)
	if err != nil {
		return fmt.Errorf("failed to finish discovery log %d: %w", l.ID, err)
	}
	return nil
}

// ListLogs returns the most recent cycle logs.
func (r *Repository) ListLogs(limit int) ([]*domain.DiscoveryLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, started_at, finished_at, status, candidates_generated, candidates_validated,
			keywords_added, keywords_deactivated, keepa_tokens_used, strategy_breakdown, error_message
		FROM discovery_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list discovery logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.DiscoveryLog
	for rows.Next() {
		var l domain.DiscoveryLog
		var finished sql.NullTime
		if err := rows.Scan(&l.ID, &l.StartedAt, &finished, &l.Status, &l.CandidatesGenerated,
			&l.CandidatesValidated, &l.KeywordsAdded, &l.KeywordsDeactivated, &l.KeepaTokensUsed,
			&l.StrategyBreakdown, &l.ErrorMessage); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time.UTC()
			l.FinishedAt = &t
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func defaultStatus(s string) string {
	if s == "" {
		return domain.CandidateStatusPending
	}
	return s
}

func defaultJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
