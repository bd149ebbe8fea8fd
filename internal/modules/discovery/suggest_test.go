package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
)

type fakeSuggestFetcher struct {
	values  map[string][]string
	err     error
	queried []string
}

func (f *fakeSuggestFetcher) FetchSuggestions(_ context.Context, prefix string) ([]string, error) {
	f.queried = append(f.queried, prefix)
	if f.err != nil {
		return nil, f.err
	}
	return f.values[prefix], nil
}

type fakeAuctionSearch struct {
	results map[string][]yahoo.SearchResult
	err     error
}

func (f *fakeAuctionSearch) FetchSearch(_ context.Context, query string, _ int) ([]yahoo.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

func newTestSuggester(amazon suggestFetcher, auction auctionSearcher) *Suggester {
	s := NewSuggester(amazon, auction, zerolog.Nop())
	s.limiter = rate.NewLimiter(rate.Inf, 1)
	return s
}

func TestSuggester_CrossMatch(t *testing.T) {
	amazon := &fakeSuggestFetcher{values: map[string][]string{
		"sony": {
			"sony wh-1000xm4",
			"sony スピーカー",
			"sony wf-1000xm5",
		},
	}}
	auction := &fakeAuctionSearch{results: map[string][]yahoo.SearchResult{
		"sony": {
			{AuctionID: "a1", Title: "SONY WH-1000XM4 ヘッドホン 中古"},
		},
	}}

	analysis := &Analysis{Brands: map[string]*BrandStats{
		"sony": {Deals: 4, TotalProfit: 20000},
	}}

	s := newTestSuggester(amazon, auction)
	proposals := s.Generate(context.Background(), analysis)

	require.Len(t, proposals, 2)
	assert.Equal(t, "sony wh1000xm4", proposals[0].Keyword)
	assert.Equal(t, suggestBothSides, proposals[0].Confidence)
	assert.Equal(t, "sony wf1000xm5", proposals[1].Keyword)
	assert.Equal(t, suggestOnlyAmazon, proposals[1].Confidence)
	for _, p := range proposals {
		assert.Equal(t, "suggest", p.Strategy)
	}
}

func TestSuggester_SeedsFromBrandsThenDefaults(t *testing.T) {
	amazon := &fakeSuggestFetcher{}
	s := newTestSuggester(amazon, &fakeAuctionSearch{})

	analysis := &Analysis{Brands: map[string]*BrandStats{
		"dyson": {Deals: 4, TotalProfit: 20000},
	}}
	s.Generate(context.Background(), analysis)

	require.NotEmpty(t, amazon.queried)
	assert.Equal(t, "dyson", amazon.queried[0])
	assert.Equal(t, append([]string{"dyson"}, defaultSuggestSeeds...), amazon.queried)
}

func TestSuggester_SeedFailuresAreSkipped(t *testing.T) {
	amazon := &fakeSuggestFetcher{err: errors.New("endpoint down")}
	s := newTestSuggester(amazon, &fakeAuctionSearch{})

	proposals := s.Generate(context.Background(), nil)
	assert.Empty(t, proposals)
	assert.Len(t, amazon.queried, len(defaultSuggestSeeds))
}
