package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/scoring"
)

// validationPairLimit caps the pairwise scoring pass at top-5 × top-5.
const validationPairLimit = 5

// Validation outcomes. A deferred candidate stays pending for the next cycle.
const (
	OutcomeValid    = "valid"
	OutcomeInvalid  = "invalid"
	OutcomeDeferred = "deferred"
)

type productSearcher interface {
	SearchProducts(ctx context.Context, term string, statsDays int) ([]keepa.Product, error)
}

// ValidationResult records what the validator observed for one candidate. It
// is persisted verbatim as the candidate's validation_result JSON.
type ValidationResult struct {
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	YahooHits   int    `json:"yahoo_hits"`
	KeepaHits   int    `json:"keepa_hits"`
	DealsFound  int    `json:"deals_found"`
	BestProfit  int    `json:"best_profit"`
	TokensUsed  int    `json:"tokens_used"`
	BestASIN    string `json:"best_asin,omitempty"`
	BestAuction string `json:"best_auction,omitempty"`
}

// ValidatorConfig carries the scoring thresholds the validator applies.
type ValidatorConfig struct {
	MinGrossMarginPct float64
	MinGrossProfit    int
	DefaultFeePct     float64
	ForwardingCost    int
	SystemFee         int
	GoodRankThreshold int
}

// Validator checks a candidate keyword against live supply and demand: the
// auction site must carry enough listings, the analytics provider must know
// matching products, and at least one pairing must clear the deal thresholds.
type Validator struct {
	auction auctionSearcher
	keepa   productSearcher
	matcher *matcher.Matcher
	cfg     ValidatorConfig
	log     zerolog.Logger
}

// NewValidator creates a candidate validator.
func NewValidator(auction auctionSearcher, products productSearcher, m *matcher.Matcher, cfg ValidatorConfig, log zerolog.Logger) *Validator {
	return &Validator{
		auction: auction,
		keepa:   products,
		matcher: m,
		cfg:     cfg,
		log:     log.With().Str("component", "discovery-validator").Logger(),
	}
}

// Validate runs the three-stage check. The auction search is free, so it runs
// before the budget gate; the analytics search costs one token.
func (v *Validator) Validate(ctx context.Context, candidate *domain.KeywordCandidate, budget int) (*ValidationResult, error) {
	results, err := v.auction.FetchSearch(ctx, candidate.Keyword, 1)
	if err != nil {
		return nil, fmt.Errorf("auction search for %q: %w", candidate.Keyword, err)
	}
	res := &ValidationResult{YahooHits: len(results)}
	if len(results) < 3 {
		res.Outcome = OutcomeInvalid
		res.Reason = "too few auction listings"
		return res, nil
	}

	if budget <= 0 {
		res.Outcome = OutcomeDeferred
		res.Reason = "token budget exhausted"
		return res, nil
	}

	products, err := v.keepa.SearchProducts(ctx, candidate.Keyword, 30)
	if err != nil {
		return nil, fmt.Errorf("product search for %q: %w", candidate.Keyword, err)
	}
	res.TokensUsed = 1
	res.KeepaHits = len(products)
	if len(products) == 0 {
		res.Outcome = OutcomeInvalid
		res.Reason = "no matching products"
		return res, nil
	}

	if len(results) > validationPairLimit {
		results = results[:validationPairLimit]
	}
	if len(products) > validationPairLimit {
		products = products[:validationPairLimit]
	}

	for _, auction := range results {
		for i := range products {
			p := &products[i]
			match := v.matcher.Match(auction.Title, p.Title)
			if !match.IsLikelyMatch {
				continue
			}
			deal := scoring.ScoreDeal(p, scoring.Input{
				YahooPrice:        auction.CurrentPrice,
				YahooShipping:     auction.Shipping,
				FeePct:            v.cfg.DefaultFeePct,
				ForwardingCost:    v.cfg.ForwardingCost,
				SystemFee:         v.cfg.SystemFee,
				GoodRankThreshold: v.cfg.GoodRankThreshold,
			})
			if deal == nil {
				continue
			}
			if deal.GrossMarginPct < v.cfg.MinGrossMarginPct || deal.GrossProfit < v.cfg.MinGrossProfit {
				continue
			}
			res.DealsFound++
			if deal.GrossProfit > res.BestProfit {
				res.BestProfit = deal.GrossProfit
				res.BestASIN = deal.ASIN
				res.BestAuction = auction.AuctionID
			}
		}
	}

	if res.DealsFound == 0 {
		res.Outcome = OutcomeInvalid
		res.Reason = "no pairing cleared the deal thresholds"
		return res, nil
	}
	res.Outcome = OutcomeValid
	return res, nil
}
