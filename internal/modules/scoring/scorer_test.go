package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
)

func baseInput() Input {
	return Input{
		YahooPrice:        3000,
		YahooShipping:     0,
		FeePct:            10,
		ForwardingCost:    800,
		SystemFee:         100,
		GoodRankThreshold: 50000,
	}
}

func TestScoreDeal(t *testing.T) {
	product := &keepa.Product{
		ASIN:      "B08KRF1234",
		Title:     "Sony WH-1000XM4",
		UsedPrice: 10000,
		SalesRank: 45000,
	}

	deal := ScoreDeal(product, baseInput())
	require.NotNil(t, deal)

	assert.Equal(t, 3900, deal.TotalCost)
	assert.Equal(t, 1000, deal.AmazonFee)
	assert.Equal(t, 5100, deal.GrossProfit)
	assert.Equal(t, 51.0, deal.GrossMarginPct)
	assert.True(t, deal.SellsWell)
	assert.Equal(t, "used", deal.Condition)
	assert.Equal(t, 10000, deal.SellPrice)
}

func TestScoreDeal_FallsBackToNewPrice(t *testing.T) {
	product := &keepa.Product{ASIN: "B0TEST", NewPrice: 8000, SalesRank: 90000}

	deal := ScoreDeal(product, baseInput())
	require.NotNil(t, deal)
	assert.Equal(t, "new", deal.Condition)
	assert.Equal(t, 8000, deal.SellPrice)
	assert.False(t, deal.SellsWell)
}

func TestScoreDeal_NoSellPrice(t *testing.T) {
	assert.Nil(t, ScoreDeal(&keepa.Product{ASIN: "B0TEST"}, baseInput()))
}

func TestScoreDeal_FeeTooHigh(t *testing.T) {
	in := baseInput()
	in.FeePct = 100
	assert.Nil(t, ScoreDeal(&keepa.Product{UsedPrice: 10000}, in))
}

func TestScoreDeal_ForwardingTable(t *testing.T) {
	tests := []struct {
		name                  string
		length, width, height int
		expectedCost          int
		expectNil             bool
	}{
		{"size 60", 300, 200, 100, 735, false},
		{"size 100 boundary", 500, 300, 200, 960, false},
		{"size 200 boundary", 900, 600, 500, 3810, false},
		{"oversized", 1000, 700, 400, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := &keepa.Product{
				UsedPrice:     10000,
				PackageLength: tt.length,
				PackageWidth:  tt.width,
				PackageHeight: tt.height,
			}
			deal := ScoreDeal(product, baseInput())
			if tt.expectNil {
				assert.Nil(t, deal)
				return
			}
			require.NotNil(t, deal)
			assert.Equal(t, tt.expectedCost, deal.ForwardingCost)
		})
	}
}

func TestScoreDeal_FallbackForwardingWithoutDimensions(t *testing.T) {
	product := &keepa.Product{UsedPrice: 10000, PackageLength: 250}
	deal := ScoreDeal(product, baseInput())
	require.NotNil(t, deal)
	assert.Equal(t, 800, deal.ForwardingCost, "partial dimensions should use the fallback")
}

func TestTrendTags(t *testing.T) {
	assert.Contains(t, trendTags(&keepa.Product{RankDrops30: 35}), "fast_moving")
	assert.Contains(t, trendTags(&keepa.Product{RankDrops30: 15}), "steady_seller")
	assert.Contains(t, trendTags(&keepa.Product{RankDrops90: 5}), "slowing_down")
	assert.Empty(t, trendTags(&keepa.Product{}))
}

func TestCalculateAmazonPrice(t *testing.T) {
	tests := []struct {
		name                 string
		purchase, forwarding int
		marginPct, feePct    float64
		expected             int
	}{
		{"reference case", 3000, 800, 15, 10, 5070},
		{"already round", 3000, 750, 25, 25, 7500},
		{"fee plus margin too high", 3000, 800, 60, 40, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateAmazonPrice(tt.purchase, tt.forwarding, tt.marginPct, tt.feePct))
		})
	}
}
