package discovery

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db.Conn(), zerolog.Nop()))
	return db.Conn()
}

func TestRepository_CandidateLifecycle(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, err := repo.CreateCandidate(&domain.KeywordCandidate{
		Keyword:    "gopro hero11",
		Strategy:   "series",
		Confidence: 0.75,
		Reasoning:  "hero12 found profitable deals",
	})
	require.NoError(t, err)

	c, err := repo.GetCandidate(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusPending, c.Status)
	assert.Equal(t, "{}", c.ValidationResult)
	assert.Nil(t, c.ResolvedAt)
	assert.Nil(t, c.ParentKeywordID)

	require.NoError(t, repo.ResolveCandidate(id, domain.CandidateStatusValidated, `{"yahoo_results":12}`))

	c, err = repo.GetCandidate(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CandidateStatusValidated, c.Status)
	assert.Equal(t, `{"yahoo_results":12}`, c.ValidationResult)
	assert.NotNil(t, c.ResolvedAt)

	assert.ErrorIs(t, repo.ResolveCandidate(9999, domain.CandidateStatusRejected, ""), ErrNotFound)
	_, err = repo.GetCandidate(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_CandidateParentLink(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	parentID := int64(42)
	id, err := repo.CreateCandidate(&domain.KeywordCandidate{
		Keyword:         "dyson v7",
		Strategy:        "series",
		Confidence:      0.75,
		ParentKeywordID: &parentID,
	})
	require.NoError(t, err)

	c, err := repo.GetCandidate(id)
	require.NoError(t, err)
	require.NotNil(t, c.ParentKeywordID)
	assert.Equal(t, parentID, *c.ParentKeywordID)
}

func TestRepository_ListPendingOrderedByConfidence(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	low, err := repo.CreateCandidate(&domain.KeywordCandidate{Keyword: "synonym one", Strategy: "synonym", Confidence: 0.5})
	require.NoError(t, err)
	high, err := repo.CreateCandidate(&domain.KeywordCandidate{Keyword: "demand one", Strategy: "demand", Confidence: 0.8})
	require.NoError(t, err)
	mid, err := repo.CreateCandidate(&domain.KeywordCandidate{Keyword: "brand one", Strategy: "brand", Confidence: 0.7})
	require.NoError(t, err)
	resolved, err := repo.CreateCandidate(&domain.KeywordCandidate{Keyword: "done one", Strategy: "brand", Confidence: 0.9})
	require.NoError(t, err)
	require.NoError(t, repo.ResolveCandidate(resolved, domain.CandidateStatusRejected, ""))

	pending, err := repo.ListPendingCandidates()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, high, pending[0].ID)
	assert.Equal(t, mid, pending[1].ID)
	assert.Equal(t, low, pending[2].ID)
}

func TestRepository_CandidateExists(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, err := repo.CreateCandidate(&domain.KeywordCandidate{Keyword: "nikon z6", Strategy: "brand", Confidence: 0.7})
	require.NoError(t, err)

	exists, err := repo.CandidateExists("nikon z6")
	require.NoError(t, err)
	assert.True(t, exists)

	// A rejected candidate no longer blocks re-proposal.
	require.NoError(t, repo.ResolveCandidate(id, domain.CandidateStatusRejected, ""))
	exists, err = repo.CandidateExists("nikon z6")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_DiscoveryLogs(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, err := repo.StartLog()
	require.NoError(t, err)

	logs, err := repo.ListLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.DiscoveryStatusRunning, logs[0].Status)
	assert.Nil(t, logs[0].FinishedAt)

	require.NoError(t, repo.FinishLog(&domain.DiscoveryLog{
		ID:                  id,
		CandidatesGenerated: 24,
		CandidatesValidated: 6,
		KeywordsAdded:       3,
		KeywordsDeactivated: 1,
		KeepaTokensUsed:     6,
		StrategyBreakdown:   `{"brand":10,"series":14}`,
	}))

	logs, err = repo.ListLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.DiscoveryStatusCompleted, logs[0].Status)
	assert.Equal(t, 24, logs[0].CandidatesGenerated)
	assert.Equal(t, 3, logs[0].KeywordsAdded)
	assert.NotNil(t, logs[0].FinishedAt)
	assert.Equal(t, `{"brand":10,"series":14}`, logs[0].StrategyBreakdown)
}
