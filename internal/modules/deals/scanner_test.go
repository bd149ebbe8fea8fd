package deals

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/config"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
)

type fakeSearch struct {
	pages        map[string]map[int][]yahoo.SearchResult
	descriptions map[string]string
	fetches      int
}

func (f *fakeSearch) FetchSearch(_ context.Context, query string, page int) ([]yahoo.SearchResult, error) {
	f.fetches++
	return f.pages[query][page], nil
}

func (f *fakeSearch) FetchDescription(_ context.Context, auctionID string) (string, error) {
	return f.descriptions[auctionID], nil
}

type fakeAnalytics struct {
	products   map[string][]keepa.Product
	tokensLeft int
	searches   []string
	cleared    int
}

func (f *fakeAnalytics) ClearSearchCache() { f.cleared++ }

func (f *fakeAnalytics) TokensLeft() int { return f.tokensLeft }

func (f *fakeAnalytics) SearchProducts(_ context.Context, term string, _ int) ([]keepa.Product, error) {
	f.searches = append(f.searches, term)
	return f.products[term], nil
}

type fakeCandidates struct {
	created []*domain.KeywordCandidate
}

func (f *fakeCandidates) CreateCandidate(c *domain.KeywordCandidate) (int64, error) {
	f.created = append(f.created, c)
	return int64(len(f.created)), nil
}

func (f *fakeCandidates) CandidateExists(keyword string) (bool, error) {
	for _, c := range f.created {
		if c.Keyword == keyword {
			return true, nil
		}
	}
	return false, nil
}

type fakeNotifier struct {
	sent []notify.Message
}

func (f *fakeNotifier) Enabled() bool { return true }

func (f *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func testDealConfig() config.DealConfig {
	return config.DealConfig{
		ScanMaxPages:                  2,
		MinGrossMarginPct:             25,
		MaxGrossMarginPct:             80,
		MinGrossProfit:                2000,
		MinPriceForKeepaSearch:        1500,
		MaxKeepaSearchesPerKeyword:    3,
		DeepValidationMarginThreshold: 40,
		DefaultFeePct:                 10,
		DefaultForwardingCost:         960,
		SystemFee:                     100,
		GoodRankThreshold:             50000,
		SeriesExpansionMinProfit:      3000,
	}
}

type scannerFixture struct {
	scanner    *Scanner
	alerts     *Repository
	keywords   *keywords.Repository
	search     *fakeSearch
	analytics  *fakeAnalytics
	candidates *fakeCandidates
	notifier   *fakeNotifier
}

func newScannerFixture(t *testing.T, cfg config.DealConfig) *scannerFixture {
	t.Helper()
	db := openTestDB(t)
	f := &scannerFixture{
		alerts:     NewRepository(db),
		keywords:   keywords.NewRepository(db),
		search:     &fakeSearch{pages: map[string]map[int][]yahoo.SearchResult{}, descriptions: map[string]string{}},
		analytics:  &fakeAnalytics{products: map[string][]keepa.Product{}, tokensLeft: 100},
		candidates: &fakeCandidates{},
		notifier:   &fakeNotifier{},
	}
	f.scanner = NewScanner(f.alerts, f.keywords, f.candidates, f.search, f.analytics, nil,
		matcher.New(matcher.NewOverrides()), f.notifier, cfg, zerolog.Nop())
	return f
}

func (f *scannerFixture) addKeyword(t *testing.T, keyword string) int64 {
	t.Helper()
	id, err := f.keywords.Create(&domain.WatchedKeyword{Keyword: keyword, IsActive: true})
	require.NoError(t, err)
	return id
}

func TestScanner_EmitsAlertForProfitableMatch(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	kwID := f.addKeyword(t, "ソニー ヘッドホン")

	f.search.pages["ソニー ヘッドホン"] = map[int][]yahoo.SearchResult{
		1: {{
			AuctionID:   "a100",
			Title:       "SONY WH-1000XM4 ワイヤレスヘッドホン 中古",
			BuyNowPrice: 12500,
			Shipping:    0,
		}},
	}
	f.analytics.products["sony wh1000xm4"] = []keepa.Product{{
		ASIN:        "B001SONY",
		Title:       "ソニー WH-1000XM4 ワイヤレスヘッドホン",
		UsedPrice:   24000,
		SalesRank:   1200,
		RankDrops30: 40,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	assert.Equal(t, 1, f.analytics.cleared)
	assert.Equal(t, []string{"sony wh1000xm4"}, f.analytics.searches, "targeted search is brand plus models")

	alerts, err := f.alerts.ListByStatus(domain.AlertStatusActive, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "a100", a.YahooAuctionID)
	assert.Equal(t, "B001SONY", a.AmazonASIN)
	assert.Equal(t, 12500, a.YahooPrice)
	assert.Equal(t, 24000, a.SellPrice)
	assert.Equal(t, 8040, a.GrossProfit, "24000 - (12500+0+960+100) - 2400")
	assert.InDelta(t, 33.5, a.GrossMarginPct, 1e-9)
	assert.True(t, a.SellsWell)
	assert.NotNil(t, a.NotifiedAt)
	require.NotNil(t, a.KeywordID)
	assert.Equal(t, kwID, *a.KeywordID)

	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0].Fields[2].Value, "8040")

	kw, err := f.keywords.GetByID(kwID)
	require.NoError(t, err)
	assert.Equal(t, 1, kw.TotalDealsFound)
	assert.Equal(t, 8040, kw.TotalGrossProfit)
	assert.Equal(t, 1, kw.TotalScans)
	assert.Equal(t, 0, kw.ScansSinceLastDeal)
}

func TestScanner_SecondCycleIsDuplicateNoOp(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ソニー ヘッドホン")

	f.search.pages["ソニー ヘッドホン"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "a100", Title: "SONY WH-1000XM4 ワイヤレスヘッドホン 中古", BuyNowPrice: 12500}},
	}
	f.analytics.products["sony wh1000xm4"] = []keepa.Product{{
		ASIN: "B001SONY", Title: "ソニー WH-1000XM4 ワイヤレスヘッドホン", UsedPrice: 24000, SalesRank: 1200,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))
	require.NoError(t, f.scanner.Scan(context.Background()))

	all, err := f.alerts.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, f.notifier.sent, 1, "no webhook for the duplicate")
}

func TestScanner_StopsWhenTokensLow(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ソニー ヘッドホン")
	f.analytics.tokensLeft = 5

	require.NoError(t, f.scanner.Scan(context.Background()))

	assert.Zero(t, f.search.fetches, "no keyword is scanned at or below the floor")
	assert.Empty(t, f.analytics.searches)
}

func TestScanner_SearchBudgetSpillsToFallback(t *testing.T) {
	cfg := testDealConfig()
	cfg.MaxKeepaSearchesPerKeyword = 1
	f := newScannerFixture(t, cfg)
	f.addKeyword(t, "カメラ")

	// Two distinct (brand, models) groups plus one listing without a model.
	f.search.pages["カメラ"] = map[int][]yahoo.SearchResult{
		1: {
			{AuctionID: "a1", Title: "Canon EOS R6 ボディ", BuyNowPrice: 150000},
			{AuctionID: "a2", Title: "Nikon Z6 ボディ", BuyNowPrice: 120000},
			{AuctionID: "a3", Title: "ジャンク カメラ まとめ", BuyNowPrice: 3000},
		},
	}

	require.NoError(t, f.scanner.Scan(context.Background()))

	// One targeted search, then a single fallback search carrying the spilled
	// group and the model-less listing.
	require.Len(t, f.analytics.searches, 2)
	assert.Equal(t, "canon r6", f.analytics.searches[0])
	assert.Equal(t, "カメラ", f.analytics.searches[1])
}

func TestScanner_ApparelListingsAreDropped(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ノースフェイス")

	f.search.pages["ノースフェイス"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "a1", Title: "ノースフェイス ダウンジャケット Lサイズ", BuyNowPrice: 20000}},
	}

	require.NoError(t, f.scanner.Scan(context.Background()))

	assert.Empty(t, f.analytics.searches, "apparel produces no analytics traffic")
}

func TestScanner_RejectsLowPriceRatio(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ソニー ヘッドホン")

	// 2000 yen against a 24000 yen sell price: below the 25% parts floor,
	// even though the margin alone would look spectacular.
	f.search.pages["ソニー ヘッドホン"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "a100", Title: "SONY WH-1000XM4 ワイヤレスヘッドホン 中古", BuyNowPrice: 2000}},
	}
	f.analytics.products["sony wh1000xm4"] = []keepa.Product{{
		ASIN: "B001SONY", Title: "ソニー WH-1000XM4 ワイヤレスヘッドホン", UsedPrice: 24000, SalesRank: 1200,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	all, err := f.alerts.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScanner_RejectsThinProfit(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ソニー ヘッドホン")

	// 24000 - (18500+960+100) - 2400 = 2040 profit but margin 8.5%, below
	// the 25% floor.
	f.search.pages["ソニー ヘッドホン"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "a100", Title: "SONY WH-1000XM4 ワイヤレスヘッドホン 中古", BuyNowPrice: 18500}},
	}
	f.analytics.products["sony wh1000xm4"] = []keepa.Product{{
		ASIN: "B001SONY", Title: "ソニー WH-1000XM4 ワイヤレスヘッドホン", UsedPrice: 24000, SalesRank: 1200,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	all, err := f.alerts.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScanner_BlockedPairIsSkipped(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "ソニー ヘッドホン")
	f.scanner.matcher.Overrides().Replace(nil, [][2]string{{"a100", "B001SONY"}}, nil, 0)

	f.search.pages["ソニー ヘッドホン"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "a100", Title: "SONY WH-1000XM4 ワイヤレスヘッドホン 中古", BuyNowPrice: 12500}},
	}
	f.analytics.products["sony wh1000xm4"] = []keepa.Product{{
		ASIN: "B001SONY", Title: "ソニー WH-1000XM4 ワイヤレスヘッドホン", UsedPrice: 24000, SalesRank: 1200,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	all, err := f.alerts.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScanner_SeriesExpansion(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	kwID := f.addKeyword(t, "gopro")

	f.search.pages["gopro"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "g1", Title: "GoPro HERO12 Black 本体", BuyNowPrice: 25000}},
	}
	f.analytics.products["gopro hero12"] = []keepa.Product{{
		ASIN: "B00GOPRO12", Title: "GoPro HERO12 Black 本体", UsedPrice: 45000, SalesRank: 3000,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	alerts, err := f.alerts.ListAll()
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.GreaterOrEqual(t, alerts[0].GrossProfit, 3000)

	require.Len(t, f.candidates.created, 4)
	var kws []string
	for _, c := range f.candidates.created {
		kws = append(kws, c.Keyword)
		assert.Equal(t, "series", c.Strategy)
		assert.InDelta(t, 0.75, c.Confidence, 1e-9)
		require.NotNil(t, c.ParentKeywordID)
		assert.Equal(t, kwID, *c.ParentKeywordID)
	}
	assert.Equal(t, []string{"gopro hero10", "gopro hero11", "gopro hero13", "gopro hero14"}, kws)
}

func TestScanner_KeepaModelMatchSuppliesEvidence(t *testing.T) {
	f := newScannerFixture(t, testDealConfig())
	f.addKeyword(t, "象印 炊飯器")

	// The marketplace title has no model number; the provider's model field
	// does.
	f.search.pages["象印 炊飯器"] = map[int][]yahoo.SearchResult{
		1: {{AuctionID: "z1", Title: "象印 圧力 炊飯器 NW-JX10 中古", BuyNowPrice: 15000}},
	}
	f.analytics.products["zojirushi nwjx10"] = []keepa.Product{{
		ASIN:      "B00ZOJI",
		Title:     "象印 圧力 炊飯器",
		Model:     "NW-JX10",
		UsedPrice: 30000,
		SalesRank: 8000,
	}}

	require.NoError(t, f.scanner.Scan(context.Background()))

	alerts, err := f.alerts.ListAll()
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "B00ZOJI", alerts[0].AmazonASIN)
}
