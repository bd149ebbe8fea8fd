package discovery

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

type fakeProductSearch struct {
	products []keepa.Product
	err      error
	calls    int
}

func (f *fakeProductSearch) SearchProducts(_ context.Context, _ string, _ int) ([]keepa.Product, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func testValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinGrossMarginPct: 25,
		MinGrossProfit:    2000,
		DefaultFeePct:     10,
		ForwardingCost:    960,
		SystemFee:         100,
		GoodRankThreshold: 50000,
	}
}

func candidate(keyword string) *domain.KeywordCandidate {
	return &domain.KeywordCandidate{ID: 1, Keyword: keyword, Strategy: "brand", Confidence: 0.8}
}

func TestValidator_RejectsThinAuctionSupply(t *testing.T) {
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony wh1000xm4": {{AuctionID: "a1", Title: "SONY WH-1000XM4"}},
	}}
	products := &fakeProductSearch{}
	v := NewValidator(auction, products, matcher.New(nil), testValidatorConfig(), zerolog.Nop())

	res, err := v.Validate(context.Background(), candidate("sony wh1000xm4"), 10)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, 1, res.YahooHits)
	assert.Equal(t, 0, res.TokensUsed)
	assert.Equal(t, 0, products.calls)
}

func TestValidator_DefersWhenBudgetExhausted(t *testing.T) {
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony wh1000xm4": {
			{AuctionID: "a1", Title: "SONY WH-1000XM4"},
			{AuctionID: "a2", Title: "SONY WH-1000XM4"},
			{AuctionID: "a3", Title: "SONY WH-1000XM4"},
		},
	}}
	products := &fakeProductSearch{}
	v := NewValidator(auction, products, matcher.New(nil), testValidatorConfig(), zerolog.Nop())

	res, err := v.Validate(context.Background(), candidate("sony wh1000xm4"), 0)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeferred, res.Outcome)
	assert.Equal(t, 0, res.TokensUsed)
	assert.Equal(t, 0, products.calls)
}

func TestValidator_RejectsWhenNoProducts(t *testing.T) {
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony wh1000xm4": {
			{AuctionID: "a1", Title: "SONY WH-1000XM4"},
			{AuctionID: "a2", Title: "SONY WH-1000XM4"},
			{AuctionID: "a3", Title: "SONY WH-1000XM4"},
		},
	}}
	products := &fakeProductSearch{}
	v := NewValidator(auction, products, matcher.New(nil), testValidatorConfig(), zerolog.Nop())

	res, err := v.Validate(context.Background(), candidate("sony wh1000xm4"), 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, 1, res.TokensUsed)
	assert.Equal(t, 0, res.KeepaHits)
}

func TestValidator_AcceptsWhenPairingsClearThresholds(t *testing.T) {
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony wh1000xm4": {
			{AuctionID: "a1", Title: "SONY WH-1000XM4 ヘッドホン 中古", CurrentPrice: 10000},
			{AuctionID: "a2", Title: "SONY WH-1000XM4 ヘッドホン 中古", CurrentPrice: 12000},
			{AuctionID: "a3", Title: "SONY WH-1000XM4 ヘッドホン 中古", CurrentPrice: 9000},
		},
	}}
	products := &fakeProductSearch{products: []keepa.Product{
		{
			ASIN:      "B08KRF1234",
			Title:     "ソニー ワイヤレス ヘッドホン WH-1000XM4",
			UsedPrice: 25000,
			SalesRank: 5000,
		},
	}}
	v := NewValidator(auction, products, matcher.New(nil), testValidatorConfig(), zerolog.Nop())

	res, err := v.Validate(context.Background(), candidate("sony wh1000xm4"), 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeValid, res.Outcome)
	assert.Equal(t, 3, res.DealsFound)
	// 25000 - (9000 + 960 + 100) - 2500
	assert.Equal(t, 12440, res.BestProfit)
	assert.Equal(t, "B08KRF1234", res.BestASIN)
	assert.Equal(t, "a3", res.BestAuction)
	assert.Equal(t, 1, res.TokensUsed)
}

func TestValidator_RejectsWhenNothingMatches(t *testing.T) {
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony wh1000xm4": {
			{AuctionID: "a1", Title: "SONY WH-1000XM4 ヘッドホン", CurrentPrice: 10000},
			{AuctionID: "a2", Title: "SONY WH-1000XM4 ヘッドホン", CurrentPrice: 12000},
			{AuctionID: "a3", Title: "SONY WH-1000XM4 ヘッドホン", CurrentPrice: 9000},
		},
	}}
	products := &fakeProductSearch{products: []keepa.Product{
		{ASIN: "B000000001", Title: "Nikon D750 ボディ", UsedPrice: 90000, SalesRank: 4000},
	}}
	v := NewValidator(auction, products, matcher.New(nil), testValidatorConfig(), zerolog.Nop())

	res, err := v.Validate(context.Background(), candidate("sony wh1000xm4"), 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, 0, res.DealsFound)
	assert.Equal(t, 1, res.TokensUsed)
}
