package monitor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
)

type fakeAuctions struct {
	auctions map[string]*yahoo.Auction
	err      error
	fetched  []string
}

func (f *fakeAuctions) FetchAuction(_ context.Context, auctionID string) (*yahoo.Auction, error) {
	f.fetched = append(f.fetched, auctionID)
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.auctions[auctionID]
	if !ok {
		return nil, yahoo.ErrGone
	}
	return a, nil
}

type fakeExpirer struct {
	auctionIDs []string
	inTx       bool
}

func (f *fakeExpirer) ExpireForAuction(tx *sql.Tx, auctionID string) (int, error) {
	f.auctionIDs = append(f.auctionIDs, auctionID)
	f.inTx = tx != nil
	return 1, nil
}

type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteListing(_ context.Context, _, sku string) error {
	f.deleted = append(f.deleted, sku)
	return f.err
}

type fakeSender struct {
	messages []notify.Message
	err      error
}

func (f *fakeSender) Enabled() bool { return true }

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	f.messages = append(f.messages, msg)
	return f.err
}

func notificationRows(t *testing.T, db *sql.DB, itemID int64) []domain.NotificationLog {
	t.Helper()
	rows, err := db.Query(`SELECT channel, event_type, success FROM notification_logs WHERE item_id = ? ORDER BY id`, itemID)
	require.NoError(t, err)
	defer rows.Close()
	var logs []domain.NotificationLog
	for rows.Next() {
		var l domain.NotificationLog
		require.NoError(t, rows.Scan(&l.Channel, &l.EventType, &l.Success))
		logs = append(logs, l)
	}
	require.NoError(t, rows.Err())
	return logs
}

func TestEffectiveInterval(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	endIn := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	tests := []struct {
		name string
		item domain.MonitoredItem
		want time.Duration
	}{
		{
			name: "fixed interval when auto-adjust off",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, EndTime: endIn(10 * time.Minute)},
			want: 300 * time.Second,
		},
		{
			name: "no end time falls back to base",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, AutoAdjustInterval: true},
			want: 300 * time.Second,
		},
		{
			name: "already ended uses base",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, AutoAdjustInterval: true, EndTime: endIn(-time.Minute)},
			want: 300 * time.Second,
		},
		{
			name: "final half hour tightens to minimum",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, AutoAdjustInterval: true, EndTime: endIn(10 * time.Minute)},
			want: 30 * time.Second,
		},
		{
			name: "final two hours halves the base",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, AutoAdjustInterval: true, EndTime: endIn(90 * time.Minute)},
			want: 150 * time.Second,
		},
		{
			name: "far from end keeps base",
			item: domain.MonitoredItem{CheckIntervalSeconds: 300, AutoAdjustInterval: true, EndTime: endIn(6 * time.Hour)},
			want: 300 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveInterval(&tt.item, 30*time.Second, now))
		})
	}
}

func TestService_PollItemRecordsChanges(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	id, err := repo.Create(testItem("p100"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	auctions := &fakeAuctions{auctions: map[string]*yahoo.Auction{
		"p100": {
			ID:           "p100",
			Title:        "SONY WH-1000XM4 ワイヤレスヘッドホン",
			CurrentPrice: 15000,
			Bids:         7,
			Status:       domain.ItemStatusActive,
		},
	}}
	svc := NewService(repo, auctions, nil, 30*time.Second, zerolog.Nop())

	require.NoError(t, svc.PollItem(context.Background(), item))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 15000, got.CurrentPrice)
	assert.Equal(t, 7, got.BidCount)
	assert.Equal(t, domain.ItemStatusActive, got.Status)
	assert.True(t, got.IsMonitoringActive)
	assert.NotNil(t, got.LastCheckedAt)

	history, err := repo.History(id, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	types := []string{history[0].ChangeType, history[1].ChangeType}
	assert.Contains(t, types, domain.ChangePrice)
	assert.Contains(t, types, domain.ChangeBid)
}

func TestService_PollItemEndedSold(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	id, err := repo.Create(testItem("p200"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	auctions := &fakeAuctions{auctions: map[string]*yahoo.Auction{
		"p200": {
			ID:           "p200",
			Title:        "SONY WH-1000XM4 ワイヤレスヘッドホン",
			CurrentPrice: 18500,
			WinPrice:     18500,
			Bids:         12,
			IsClosed:     true,
			HasWinner:    true,
			Status:       domain.ItemStatusEndedSold,
		},
	}}
	expirer := &fakeExpirer{}
	sender := &fakeSender{}
	svc := NewService(repo, auctions, expirer, 30*time.Second, zerolog.Nop())
	svc.AddNotifier(NewWebhookNotifier(repo, sender, zerolog.Nop()))

	require.NoError(t, svc.PollItem(context.Background(), item))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusEndedSold, got.Status)
	assert.Equal(t, 18500, got.WinPrice)
	assert.False(t, got.IsMonitoringActive)

	assert.Equal(t, []string{"p200"}, expirer.auctionIDs)
	assert.True(t, expirer.inTx)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, "オークションが落札されました", sender.messages[0].Title)

	logs := notificationRows(t, db, id)
	require.Len(t, logs, 1)
	assert.Equal(t, "webhook", logs[0].Channel)
	assert.Equal(t, domain.ChangeStatus, logs[0].EventType)
	assert.True(t, logs[0].Success)
}

func TestService_PollItemGoneAuction(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	id, err := repo.Create(testItem("p300"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	expirer := &fakeExpirer{}
	svc := NewService(repo, &fakeAuctions{}, expirer, 30*time.Second, zerolog.Nop())

	require.NoError(t, svc.PollItem(context.Background(), item))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusEndedNoWinner, got.Status)
	assert.False(t, got.IsMonitoringActive)
	assert.Equal(t, []string{"p300"}, expirer.auctionIDs)

	history, err := repo.History(id, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeStatus, history[0].ChangeType)
	assert.Equal(t, domain.ItemStatusEndedNoWinner, history[0].NewStatus)
}

func TestService_PollItemFetchErrorLeavesItemUntouched(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	id, err := repo.Create(testItem("p400"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	svc := NewService(repo, &fakeAuctions{err: errors.New("timeout")}, nil, 30*time.Second, zerolog.Nop())

	require.Error(t, svc.PollItem(context.Background(), item))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, got.LastCheckedAt)
	assert.Equal(t, domain.ItemStatusActive, got.Status)
}

func TestAmazonNotifier_DelistsOnEnd(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	id, err := repo.Create(testItem("p500"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	synced := time.Now().UTC()
	item.AmazonSKU = "YAHOO-p500"
	item.AmazonListingStatus = domain.ListingStatusActive
	item.AmazonLastSyncedAt = &synced
	require.NoError(t, repo.UpdateAmazonListing(nil, item))

	auctions := &fakeAuctions{auctions: map[string]*yahoo.Auction{
		"p500": {
			ID:           "p500",
			CurrentPrice: 12500,
			Bids:         3,
			IsClosed:     true,
			HasWinner:    true,
			Status:       domain.ItemStatusEndedSold,
		},
	}}
	deleter := &fakeDeleter{}
	svc := NewService(repo, auctions, nil, 30*time.Second, zerolog.Nop())
	svc.AddNotifier(NewAmazonNotifier(repo, deleter, "SELLER1", zerolog.Nop()))

	item, err = repo.GetByID(id)
	require.NoError(t, err)
	require.NoError(t, svc.PollItem(context.Background(), item))

	assert.Equal(t, []string{"YAHOO-p500"}, deleter.deleted)

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Empty(t, got.AmazonSKU)
	assert.Equal(t, domain.ListingStatusDelisted, got.AmazonListingStatus)
	assert.Nil(t, got.AmazonLastSyncedAt)

	history, err := repo.History(id, 10)
	require.NoError(t, err)
	found := false
	for _, h := range history {
		if h.ChangeType == domain.ChangeAmazonDelistAuto {
			found = true
		}
	}
	assert.True(t, found, "expected an auto-delist history entry")

	logs := notificationRows(t, db, id)
	require.Len(t, logs, 1)
	assert.Equal(t, "amazon", logs[0].Channel)
	assert.True(t, logs[0].Success)
}

func TestAmazonNotifier_DeleteFailureMarksError(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	id, err := repo.Create(testItem("p600"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	item.AmazonSKU = "YAHOO-p600"
	item.AmazonListingStatus = domain.ListingStatusActive
	require.NoError(t, repo.UpdateAmazonListing(nil, item))

	auctions := &fakeAuctions{} // ErrGone path ends the auction
	deleter := &fakeDeleter{err: errors.New("throttled")}
	svc := NewService(repo, auctions, nil, 30*time.Second, zerolog.Nop())
	svc.AddNotifier(NewAmazonNotifier(repo, deleter, "SELLER1", zerolog.Nop()))

	item, err = repo.GetByID(id)
	require.NoError(t, err)
	require.NoError(t, svc.PollItem(context.Background(), item))

	got, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "YAHOO-p600", got.AmazonSKU, "sku stays so the delist can be retried by hand")
	assert.Equal(t, domain.ListingStatusError, got.AmazonListingStatus)

	logs := notificationRows(t, db, id)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestAmazonNotifier_IgnoresActiveItems(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	id, err := repo.Create(testItem("p700"))
	require.NoError(t, err)
	item, err := repo.GetByID(id)
	require.NoError(t, err)

	item.AmazonSKU = "YAHOO-p700"
	require.NoError(t, repo.UpdateAmazonListing(nil, item))

	auctions := &fakeAuctions{auctions: map[string]*yahoo.Auction{
		"p700": {ID: "p700", CurrentPrice: 13000, Bids: 4, Status: domain.ItemStatusActive},
	}}
	deleter := &fakeDeleter{}
	svc := NewService(repo, auctions, nil, 30*time.Second, zerolog.Nop())
	svc.AddNotifier(NewAmazonNotifier(repo, deleter, "SELLER1", zerolog.Nop()))

	item, err = repo.GetByID(id)
	require.NoError(t, err)
	require.NoError(t, svc.PollItem(context.Background(), item))

	assert.Empty(t, deleter.deleted)
}

func TestService_TickPollsOnlyDueItems(t *testing.T) {
	repo := NewRepository(openTestDB(t))

	_, err := repo.Create(testItem("t100"))
	require.NoError(t, err)

	recent := testItem("t101")
	_, err = repo.Create(recent)
	require.NoError(t, err)
	fresh, err := repo.GetByAuctionID("t101")
	require.NoError(t, err)
	now := time.Now().UTC()
	fresh.LastCheckedAt = &now
	require.NoError(t, repo.ApplySnapshot(nil, fresh))

	auctions := &fakeAuctions{auctions: map[string]*yahoo.Auction{
		"t100": {ID: "t100", CurrentPrice: 12500, Bids: 3, Status: domain.ItemStatusActive},
		"t101": {ID: "t101", CurrentPrice: 12500, Bids: 3, Status: domain.ItemStatusActive},
	}}
	svc := NewService(repo, auctions, nil, 30*time.Second, zerolog.Nop())

	require.NoError(t, svc.Tick(context.Background()))
	assert.Equal(t, []string{"t100"}, auctions.fetched)
}
