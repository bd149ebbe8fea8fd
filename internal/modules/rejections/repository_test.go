package rejections

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db.Conn(), zerolog.Nop()))
	return db.Conn()
}

func TestRepository_UpsertBumpsHitCountAndConfidence(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "ダクト", "", 0.5))
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "ダクト", "", 0.5))
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "ダクト", "", 0.5))

	patterns, err := repo.ListByType(domain.PatternAccessoryWord)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].HitCount)
	assert.InDelta(t, 0.7, patterns[0].Confidence, 1e-9)
	assert.Equal(t, "{}", patterns[0].PatternData)
}

func TestRepository_UpsertCapsConfidence(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	require.NoError(t, repo.Upsert(domain.PatternThresholdHint, "global", `{"delta":0.1}`, 0.95))
	require.NoError(t, repo.Upsert(domain.PatternThresholdHint, "global", `{"delta":0.2}`, 0.95))
	require.NoError(t, repo.Upsert(domain.PatternThresholdHint, "global", `{"delta":0.2}`, 0.95))

	patterns, err := repo.ListByType(domain.PatternThresholdHint)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].HitCount)
	assert.InDelta(t, 1.0, patterns[0].Confidence, 1e-9)
	assert.Equal(t, `{"delta":0.2}`, patterns[0].PatternData, "latest data wins")
}

func TestRepository_SamePairKeyDifferentTypesAreDistinct(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	key := PairKey("x100", "B001")
	require.NoError(t, repo.Upsert(domain.PatternBlockedASIN, key, "", 1.0))
	require.NoError(t, repo.Upsert(domain.PatternNeverShowPair, key, "", 1.0))

	all, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_LoadOverrides(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	// Confirmed twice: passes both the hit and confidence gates.
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "ダクト", "", 0.6))
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "ダクト", "", 0.6))
	// Seen once: below the hit gate.
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "フィルター", "", 0.9))
	// Confirmed twice but confidence still below the gate after the bump.
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "リモコン", "", 0.4))
	require.NoError(t, repo.Upsert(domain.PatternAccessoryWord, "リモコン", "", 0.4))

	require.NoError(t, repo.Upsert(domain.PatternBlockedASIN, PairKey("x100", "B001"), "", 1.0))
	require.NoError(t, repo.Upsert(domain.PatternNeverShowPair, PairKey("タイトルA", "Title B"), "", 1.0))
	require.NoError(t, repo.Upsert(domain.PatternThresholdHint, "hint-a", `{"delta":0.05}`, 0.8))
	require.NoError(t, repo.Upsert(domain.PatternThresholdHint, "hint-b", `{"delta":0.15}`, 0.8))

	overrides := matcher.NewOverrides()
	require.NoError(t, repo.LoadOverrides(overrides))

	assert.True(t, overrides.IsAccessoryWord(matcher.NormalizeText("ダクト")))
	assert.False(t, overrides.IsAccessoryWord(matcher.NormalizeText("フィルター")), "single hit is not enough")
	assert.False(t, overrides.IsAccessoryWord(matcher.NormalizeText("リモコン")), "low confidence is not enough")

	assert.True(t, overrides.IsBlockedPair("x100", "B001"))
	assert.False(t, overrides.IsBlockedPair("x100", "B002"))
	assert.True(t, overrides.IsBlockedTitlePair("タイトルA", "Title B"))

	// An ASIN blocked with the wildcard auction side suppresses every auction.
	require.NoError(t, repo.Upsert(domain.PatternBlockedASIN, PairKey("*", "B009"), "", 0.9))
	require.NoError(t, repo.LoadOverrides(overrides))
	assert.True(t, overrides.IsBlockedPair("x100", "B009"))
	assert.True(t, overrides.IsBlockedPair("zzz", "B009"))

	assert.InDelta(t, 0.15, overrides.ThresholdDelta(), 1e-9, "largest active hint wins")
}

func TestRepository_DeactivatedPatternsAreIgnored(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	require.NoError(t, repo.Upsert(domain.PatternBlockedASIN, PairKey("x200", "B001"), "", 1.0))

	patterns, err := repo.ListByType(domain.PatternBlockedASIN)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.NoError(t, repo.Deactivate(patterns[0].ID))

	patterns, err = repo.ListByType(domain.PatternBlockedASIN)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	overrides := matcher.NewOverrides()
	require.NoError(t, repo.LoadOverrides(overrides))
	assert.False(t, overrides.IsBlockedPair("x200", "B001"))

	// The history survives for the operator view.
	all, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
