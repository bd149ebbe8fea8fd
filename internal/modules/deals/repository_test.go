package deals

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

func testAlert(auctionID, asin string) *domain.DealAlert {
	return &domain.DealAlert{
		YahooAuctionID: auctionID,
		YahooTitle:     "SONY WH-1000XM4 中古",
		YahooURL:       "https://auctions.example.jp/auction/" + auctionID,
		YahooPrice:     12500,
		YahooShipping:  800,
		AmazonASIN:     asin,
		AmazonTitle:    "Sony WH-1000XM4 Wireless Headphones",
		AmazonURL:      "https://amazon.example.jp/dp/" + asin,
		SellPrice:      24000,
		AmazonFeePct:   10,
		ForwardingCost: 840,
		GrossProfit:    7360,
		GrossMarginPct: 30.7,
		SalesRank:      1200,
		SellsWell:      true,
		MatchScore:     0.82,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, inserted, err := repo.Create(testAlert("d100", "B001"))
	require.NoError(t, err)
	require.True(t, inserted)

	a, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusActive, a.Status)
	assert.Equal(t, "d100", a.YahooAuctionID)
	assert.Equal(t, 7360, a.GrossProfit)
	assert.Nil(t, a.NotifiedAt)
	assert.Nil(t, a.KeywordID)
}

func TestRepository_DuplicatePairIsNoOp(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	_, inserted, err := repo.Create(testAlert("d200", "B001"))
	require.NoError(t, err)
	require.True(t, inserted)

	// Same pair again: silently skipped even with different numbers.
	dup := testAlert("d200", "B001")
	dup.GrossProfit = 9999
	id, inserted, err := repo.Create(dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Zero(t, id)

	// Same auction against another ASIN is a distinct alert.
	_, inserted, err = repo.Create(testAlert("d200", "B002"))
	require.NoError(t, err)
	assert.True(t, inserted)

	all, err := repo.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_Reject(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, _, err := repo.Create(testAlert("d300", "B001"))
	require.NoError(t, err)

	require.NoError(t, repo.Reject(id, domain.RejectionAccessory, "イヤーパッドのみ"))

	a, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusRejected, a.Status)
	assert.Equal(t, domain.RejectionAccessory, a.RejectionReason)
	assert.Equal(t, "イヤーパッドのみ", a.RejectionNote)
	assert.NotNil(t, a.RejectedAt)

	assert.ErrorIs(t, repo.Reject(9999, domain.RejectionOther, ""), ErrNotFound)
}

func TestRepository_MarkNotifiedAndListed(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	id, _, err := repo.Create(testAlert("d400", "B001"))
	require.NoError(t, err)

	require.NoError(t, repo.MarkNotified(id))
	require.NoError(t, repo.MarkListed(id))

	a, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusListed, a.Status)
	assert.NotNil(t, a.NotifiedAt)
}

func TestRepository_ExpireForAuction(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	_, _, err := repo.Create(testAlert("d500", "B001"))
	require.NoError(t, err)
	_, _, err = repo.Create(testAlert("d500", "B002"))
	require.NoError(t, err)
	rejectedID, _, err := repo.Create(testAlert("d500", "B003"))
	require.NoError(t, err)
	require.NoError(t, repo.Reject(rejectedID, domain.RejectionOther, ""))
	otherID, _, err := repo.Create(testAlert("d501", "B001"))
	require.NoError(t, err)

	n, err := repo.ExpireForAuction(nil, "d500")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only active alerts of the ended auction expire")

	expired, err := repo.ListByStatus(domain.AlertStatusExpired, 0)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	a, err := repo.GetByID(otherID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusActive, a.Status)

	a, err = repo.GetByID(rejectedID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertStatusRejected, a.Status)
}

func TestRepository_ListByStatus(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	for _, asin := range []string{"B001", "B002", "B003"} {
		_, _, err := repo.Create(testAlert("d600", asin))
		require.NoError(t, err)
	}

	active, err := repo.ListByStatus(domain.AlertStatusActive, 2)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	rejected, err := repo.ListByStatus(domain.AlertStatusRejected, 0)
	require.NoError(t, err)
	assert.Empty(t, rejected)
}
