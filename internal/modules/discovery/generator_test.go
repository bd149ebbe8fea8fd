package discovery

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

func testAnalysis() *Analysis {
	return &Analysis{
		TotalDeals: 12,
		Brands: map[string]*BrandStats{
			"sony": {Deals: 5, TotalProfit: 25000},
		},
		TypeTokens: []TokenScore{
			{Token: "headphones", Score: 5, Count: 5},
			{Token: "wireless", Score: 3, Count: 4},
		},
	}
}

func TestGenerator_BrandStrategy(t *testing.T) {
	g := NewGenerator(zerolog.Nop())

	proposals := g.brandStrategy(testAnalysis())
	require.Len(t, proposals, 2)
	assert.Equal(t, "sony headphones", proposals[0].Keyword)
	assert.Equal(t, "sony wireless", proposals[1].Keyword)
	for _, p := range proposals {
		assert.Equal(t, "brand", p.Strategy)
		assert.Equal(t, confidenceBrand, p.Confidence)
		assert.Contains(t, p.Reasoning, "5件")
	}
}

func TestGenerator_TitleStrategyPairsTokens(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	analysis := &Analysis{
		TypeTokens: []TokenScore{
			{Token: "headphones", Score: 5},
			{Token: "wireless", Score: 3},
			{Token: "vacuum", Score: 2},
			{Token: "sony", Score: 2},  // brand, excluded
			{Token: "tv", Score: 2},    // too short
			{Token: "camera", Score: 0.5}, // below score floor
		},
	}

	proposals := g.titleStrategy(analysis)
	var kws []string
	for _, p := range proposals {
		kws = append(kws, p.Keyword)
	}
	assert.Equal(t, []string{
		"headphones wireless",
		"headphones vacuum",
		"wireless vacuum",
	}, kws)
}

func TestGenerator_CategoryStrategy(t *testing.T) {
	g := NewGenerator(zerolog.Nop())

	proposals := g.categoryStrategy(testAnalysis())
	require.Len(t, proposals, len(categorySuffixes))
	assert.Equal(t, "sony 中古", proposals[0].Keyword)
	assert.Equal(t, confidenceCategory, proposals[0].Confidence)
}

func TestGenerator_SynonymStrategy(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	analysis := &Analysis{
		TopKeywords: []*domain.WatchedKeyword{
			{ID: 7, Keyword: "sony camera", PerformanceScore: 0.5},
			{ID: 8, Keyword: "dead keyword", PerformanceScore: 0},
		},
	}

	proposals := g.synonymStrategy(analysis)
	require.Len(t, proposals, 2)
	assert.Equal(t, "ソニー camera", proposals[0].Keyword)
	assert.Equal(t, "sony カメラ", proposals[1].Keyword)
	for _, p := range proposals {
		require.NotNil(t, p.ParentID)
		assert.Equal(t, int64(7), *p.ParentID)
		assert.Equal(t, confidenceSynonym, p.Confidence)
	}
}

func TestGenerator_SeriesStrategy(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	analysis := &Analysis{
		ProfitableAlerts: []*domain.DealAlert{
			{YahooTitle: "GoPro HERO12 Black 中古", GrossProfit: 8000},
		},
	}

	proposals := g.seriesStrategy(analysis)
	var kws []string
	for _, p := range proposals {
		kws = append(kws, p.Keyword)
		assert.Equal(t, confidenceSeries, p.Confidence)
	}
	assert.Equal(t, []string{"gopro hero10", "gopro hero11", "gopro hero13", "gopro hero14"}, kws)
}

func TestGenerator_DemandStrategy(t *testing.T) {
	g := NewGenerator(zerolog.Nop())
	products := []keepa.Product{
		{Brand: "Sony Corporation", Model: "WH-1000XM5", Title: "ソニー ヘッドホン", RankDrops30: 45, SalesRank: 1200},
		{Brand: "Nintendo Co., Ltd.", Title: "Nintendo Switch 有機EL HEG-001", RankDrops30: 80, SalesRank: 300},
		{Brand: "Sony Corporation", Model: "4905524963069", Title: "barcode only"},
		{Brand: "Hoshizaki Corporation", Model: "IM-25M", Title: "製氷機"},
	}

	proposals := g.DemandStrategy(products)
	var kws []string
	for _, p := range proposals {
		kws = append(kws, p.Keyword)
		assert.Equal(t, "demand", p.Strategy)
		assert.Equal(t, confidenceDemand, p.Confidence)
	}
	assert.Equal(t, []string{"sony WH-1000XM5", "nintendo heg001", "hoshizaki IM-25M"}, kws)
	assert.Contains(t, proposals[0].Reasoning, "45回")
}

func TestGenerator_DedupPrefersHigherConfidence(t *testing.T) {
	g := NewGenerator(zerolog.Nop())

	proposals := []Proposal{
		{Keyword: "sony wh1000xm4", Strategy: "title", Confidence: 0.60},
		{Keyword: "SONY WH-1000XM4", Strategy: "demand", Confidence: 0.80},
		{Keyword: "uniqlo ジャケット", Strategy: "demand", Confidence: 0.80},
		{Keyword: "makita td173d", Strategy: "series", Confidence: 0.75},
	}

	kept := g.Dedup(proposals, nil)
	require.Len(t, kept, 2)
	assert.Equal(t, "sony wh-1000xm4", kept[0].Keyword)
	assert.Equal(t, "demand", kept[0].Strategy)
	assert.Equal(t, "makita td173d", kept[1].Keyword)
}

func TestGenerator_DedupAgainstExistingKeywords(t *testing.T) {
	g := NewGenerator(zerolog.Nop())

	existing := []*domain.WatchedKeyword{{Keyword: "gopro hero12"}}
	kept := g.Dedup([]Proposal{
		{Keyword: "gopro hero12 black", Confidence: 0.7},
		{Keyword: "dyson v8", Confidence: 0.7},
	}, existing)

	require.Len(t, kept, 1)
	assert.Equal(t, "dyson v8", kept[0].Keyword)
}

func TestSubstituteSynonyms(t *testing.T) {
	assert.Equal(t, []string{"PlayStation 5 本体"}, substituteSynonyms("ps5 本体"))
	assert.Equal(t, []string{"ソニー camera", "sony カメラ"}, substituteSynonyms("Sony Camera"))
	assert.Empty(t, substituteSynonyms("未知の 単語"))
}

func TestShortBrand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sony Corporation", "sony"},
		{"Iris Ohyama Inc.", "アイリスオーヤマ"},
		{"Hoshizaki Corporation", "hoshizaki"},
		{"Tokyo Metro Co., Ltd.", "tokyo"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortBrand(tt.in), tt.in)
	}
}

func TestIsBarcode(t *testing.T) {
	assert.True(t, isBarcode("4905524963069"))
	assert.False(t, isBarcode("1234567"))     // too short
	assert.False(t, isBarcode("WH-1000XM4"))  // has letters
}
