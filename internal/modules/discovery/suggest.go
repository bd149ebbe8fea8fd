package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

const (
	maxSuggestSeeds   = 10
	maxPerSeed        = 10
	suggestBothSides  = 0.75
	suggestOnlyAmazon = 0.60
)

// defaultSuggestSeeds supplement the history-derived brands so the strategy
// still produces something on a fresh install.
var defaultSuggestSeeds = []string{"sony", "panasonic", "nintendo", "canon", "makita"}

type suggestFetcher interface {
	FetchSuggestions(ctx context.Context, prefix string) ([]string, error)
}

type auctionSearcher interface {
	FetchSearch(ctx context.Context, query string, page int) ([]yahoo.SearchResult, error)
}

// Suggester cross-matches marketplace autocomplete with live auction search:
// a model number surfacing on both platforms is in demand and in supply at
// the same time.
type Suggester struct {
	amazon  suggestFetcher
	auction auctionSearcher
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewSuggester creates the suggest strategy.
func NewSuggester(amazon suggestFetcher, auction auctionSearcher, log zerolog.Logger) *Suggester {
	return &Suggester{
		amazon:  amazon,
		auction: auction,
		limiter: rate.NewLimiter(rate.Limit(2), 1), // >= 0.5s between seeds
		log:     log.With().Str("component", "discovery-suggest").Logger(),
	}
}

// Generate seeds from the profitable brands plus the default list and
// cross-matches each seed. Seed failures are logged and skipped.
func (s *Suggester) Generate(ctx context.Context, analysis *Analysis) []Proposal {
	seeds := s.seeds(analysis)

	var proposals []Proposal
	for _, seed := range seeds {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		ps, err := s.crossMatch(ctx, seed)
		if err != nil {
			s.log.Warn().Err(err).Str("seed", seed).Msg("suggest seed failed")
			continue
		}
		proposals = append(proposals, ps...)
	}
	return proposals
}

func (s *Suggester) seeds(analysis *Analysis) []string {
	seen := make(map[string]bool)
	var seeds []string
	add := func(seed string) {
		seed = strings.ToLower(strings.TrimSpace(seed))
		if seed == "" || seen[seed] || len(seeds) >= maxSuggestSeeds {
			return
		}
		seen[seed] = true
		seeds = append(seeds, seed)
	}
	if analysis != nil {
		for _, brand := range analysis.ProfitableBrands() {
			add(brand)
		}
	}
	for _, seed := range defaultSuggestSeeds {
		add(seed)
	}
	return seeds
}

// crossMatch fetches both platforms concurrently and compares the model
// numbers each surfaced for the seed.
func (s *Suggester) crossMatch(ctx context.Context, seed string) ([]Proposal, error) {
	var suggestions []string
	var results []yahoo.SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		suggestions, err = s.amazon.FetchSuggestions(gctx, seed)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.auction.FetchSearch(gctx, seed, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	auctionModels := make(map[string]bool)
	for _, r := range results {
		for _, m := range matcher.ExtractModelNumbers(matcher.Tokenize(r.Title)) {
			auctionModels[m] = true
		}
	}

	var proposals []Proposal
	seen := make(map[string]bool)
	for _, suggestion := range suggestions {
		if len(proposals) >= maxPerSeed {
			break
		}
		models := matcher.ExtractModelNumbers(matcher.Tokenize(suggestion))
		if len(models) == 0 {
			continue
		}
		keyword := seed + " " + models[0]
		if seen[keyword] {
			continue
		}
		seen[keyword] = true

		confidence := suggestOnlyAmazon
		reasoning := fmt.Sprintf("%q のオートコンプリートに出現", seed)
		if auctionModels[models[0]] {
			confidence = suggestBothSides
			reasoning = fmt.Sprintf("%q が両プラットフォームに出現", models[0])
		}
		proposals = append(proposals, Proposal{
			Keyword:    keyword,
			Strategy:   "suggest",
			Confidence: confidence,
			Reasoning:  reasoning,
		})
	}
	return proposals, nil
}
