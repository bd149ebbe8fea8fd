package keywords

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

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

func mustCreate(t *testing.T, repo *Repository, keyword, source string) int64 {
	t.Helper()
	id, err := repo.Create(&domain.WatchedKeyword{Keyword: keyword, IsActive: true, Source: source})
	require.NoError(t, err)
	return id
}

func TestRepository_CreateTrimsAndDefaults(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, err := repo.Create(&domain.WatchedKeyword{Keyword: "  ソニー ヘッドホン  ", IsActive: true})
	require.NoError(t, err)

	k, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "ソニー ヘッドホン", k.Keyword)
	assert.Equal(t, "manual", k.Source)
	assert.Nil(t, k.LastScannedAt)

	exists, err := repo.Exists("ソニー ヘッドホン")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Create(&domain.WatchedKeyword{Keyword: "ソニー ヘッドホン"})
	assert.Error(t, err, "keyword text is unique")
}

func TestRepository_ListActiveForScanOrder(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	first := mustCreate(t, repo, "gopro hero12", "manual")
	never := mustCreate(t, repo, "dyson v8", "manual")
	second := mustCreate(t, repo, "nikon z6", "manual")
	inactive := mustCreate(t, repo, "古い キーワード", "manual")
	require.NoError(t, repo.SetActive(inactive, false, false))

	require.NoError(t, repo.MarkScanned(first))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.MarkScanned(second))

	kws, err := repo.ListActiveForScan()
	require.NoError(t, err)
	require.Len(t, kws, 3)

	// Never-scanned first, then oldest scan first.
	assert.Equal(t, never, kws[0].ID)
	assert.Equal(t, first, kws[1].ID)
	assert.Equal(t, second, kws[2].ID)
}

func TestRepository_ScanAndDealCounters(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id := mustCreate(t, repo, "bose quietcomfort", "manual")
	require.NoError(t, repo.MarkScanned(id))
	require.NoError(t, repo.MarkScanned(id))

	k, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, k.TotalScans)
	assert.Equal(t, 2, k.ScansSinceLastDeal)
	require.NotNil(t, k.LastScannedAt)

	require.NoError(t, repo.RecordDeal(id, 5100))
	require.NoError(t, repo.RecordDeal(id, 3200))

	k, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, k.TotalDealsFound)
	assert.Equal(t, 8300, k.TotalGrossProfit)
	assert.Equal(t, 0, k.ScansSinceLastDeal)
}

func TestRepository_Cleanup(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)

	setCounters := func(id int64, scans, deals, sinceLastDeal int) {
		t.Helper()
		_, err := db.Exec(`
			UPDATE watched_keywords
			SET total_scans = ?, total_deals_found = ?, scans_since_last_deal = ?
			WHERE id = ?`, scans, deals, sinceLastDeal, id)
		require.NoError(t, err)
	}

	aiStale := mustCreate(t, repo, "ai stale", "ai_brand")
	setCounters(aiStale, 10, 0, 10)
	aiFresh := mustCreate(t, repo, "ai fresh", "ai_brand")
	setCounters(aiFresh, 9, 0, 9)
	manualStale := mustCreate(t, repo, "manual stale", "manual")
	setCounters(manualStale, 50, 0, 50)
	manualDormant := mustCreate(t, repo, "manual dormant", "manual")
	setCounters(manualDormant, 120, 3, 50)
	manualHealthy := mustCreate(t, repo, "manual healthy", "manual")
	setCounters(manualHealthy, 120, 3, 5)

	deleted, paused, err := repo.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, paused)

	_, err = repo.GetByID(aiStale)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(manualStale)
	assert.ErrorIs(t, err, ErrNotFound)

	k, err := repo.GetByID(aiFresh)
	require.NoError(t, err)
	assert.True(t, k.IsActive)

	k, err = repo.GetByID(manualDormant)
	require.NoError(t, err)
	assert.False(t, k.IsActive, "dormant productive keyword is paused, not deleted")

	k, err = repo.GetByID(manualHealthy)
	require.NoError(t, err)
	assert.True(t, k.IsActive)
}

func TestRepository_CountAIAndSourcePrefix(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	mustCreate(t, repo, "manual one", "manual")
	mustCreate(t, repo, "ai one", "ai_brand")
	mustCreate(t, repo, "ai two", "ai_demand")

	n, err := repo.CountAI()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	generated, err := repo.ListBySourcePrefix("ai_")
	require.NoError(t, err)
	assert.Len(t, generated, 2)

	// Deactivated AI keywords no longer count against the cap.
	deactivated := mustCreate(t, repo, "ai three", "ai_series")
	require.NoError(t, repo.SetActive(deactivated, false, true))

	n, err = repo.CountAI()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRepository_SetActiveRecordsAutoDeactivation(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id := mustCreate(t, repo, "panasonic lumix", "ai_category")
	require.NoError(t, repo.SetActive(id, false, true))

	k, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.False(t, k.IsActive)
	require.NotNil(t, k.AutoDeactivatedAt)

	require.NoError(t, repo.SetActive(id, true, false))
	k, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.True(t, k.IsActive)
	assert.Nil(t, k.AutoDeactivatedAt, "reactivation clears the timestamp")
}
