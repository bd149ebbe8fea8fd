package deals

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

type fakeAuctionFetcher struct {
	auctions map[string]*yahoo.Auction
	fetched  []string
}

func (f *fakeAuctionFetcher) FetchAuction(_ context.Context, auctionID string) (*yahoo.Auction, error) {
	f.fetched = append(f.fetched, auctionID)
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, yahoo.ErrGone
	}
	return a, nil
}

type fakePurger struct {
	purged int
	calls  int
}

func (f *fakePurger) PurgeStale(_ time.Duration) (int, error) {
	f.calls++
	return f.purged, nil
}

func cleanerAlert(t *testing.T, repo *Repository, auctionID string) int64 {
	t.Helper()
	id, _, err := repo.Create(&domain.DealAlert{
		YahooAuctionID: auctionID,
		YahooTitle:     "SONY WH-1000XM4 ヘッドホン",
		AmazonASIN:     "B08KRF1234",
		YahooPrice:     10000,
		SellPrice:      25000,
		GrossProfit:    8000,
		GrossMarginPct: 32,
	})
	require.NoError(t, err)
	return id
}

func TestCleaner_ExpiresEndedAndGoneAuctions(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	stillLive := cleanerAlert(t, repo, "live1")
	ended := cleanerAlert(t, repo, "done1")
	gone := cleanerAlert(t, repo, "gone1")

	auctions := &fakeAuctionFetcher{auctions: map[string]*yahoo.Auction{
		"live1": {ID: "live1", IsClosed: false},
		"done1": {ID: "done1", IsClosed: true, HasWinner: true},
	}}
	purger := &fakePurger{purged: 2}

	c := NewCleaner(repo, auctions, purger, zerolog.Nop())
	require.NoError(t, c.Run(context.Background()))

	for id, want := range map[int64]string{
		stillLive: domain.AlertStatusActive,
		ended:     domain.AlertStatusExpired,
		gone:      domain.AlertStatusExpired,
	} {
		a, err := repo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, a.Status, "alert %d", id)
	}
	assert.Equal(t, 1, purger.calls)
}

func TestCleaner_ChecksEachAuctionOnce(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	cleanerAlert(t, repo, "dup1")
	// Same auction, different product match.
	_, _, err := repo.Create(&domain.DealAlert{
		YahooAuctionID: "dup1",
		YahooTitle:     "SONY WH-1000XM4 ヘッドホン",
		AmazonASIN:     "B000000002",
		YahooPrice:     10000,
		SellPrice:      24000,
		GrossProfit:    7000,
	})
	require.NoError(t, err)

	auctions := &fakeAuctionFetcher{auctions: map[string]*yahoo.Auction{
		"dup1": {ID: "dup1", IsClosed: false},
	}}
	c := NewCleaner(repo, auctions, nil, zerolog.Nop())
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"dup1"}, auctions.fetched)
}
