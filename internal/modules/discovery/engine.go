package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

// Auto-promotion requires the validator to have seen real deals, not just a
// confident heuristic.
const (
	autoAddMinDeals  = 3
	autoAddMinProfit = 5000
)

// budgetShare caps one cycle at a tenth of the remaining provider tokens.
const budgetShare = 0.10

type demandSource interface {
	TokensLeft() int
	ProductFinder(ctx context.Context, selection json.RawMessage, statsDays int) ([]keepa.Product, error)
}

type candidateValidator interface {
	Validate(ctx context.Context, candidate *domain.KeywordCandidate, budget int) (*ValidationResult, error)
}

type rejectionLearner interface {
	AnalyzeAllRejections() ([]string, error)
	ReloadOverrides() error
}

// proposalStrategy is a context-bound strategy run alongside the generator
// (suggest cross-match, LLM).
type proposalStrategy interface {
	Generate(ctx context.Context, analysis *Analysis) []Proposal
}

// EngineConfig carries the discovery-cycle tunables.
type EngineConfig struct {
	MinDeals            int
	TokenBudget         int
	AutoAddThreshold    float64
	MaxAIKeywords       int
	DeactivationScans   int
	DeactivationScore   float64
	DemandFinderEnabled bool
	DemandRankDrops     int
	DemandMinUsedPrice  int
	DemandPerPage       int
	DemandMaxResults    int
}

// Engine runs the full discovery cycle: mine history, generate candidates,
// validate under the token budget, promote winners, learn from rejections,
// and prune the keyword set.
type Engine struct {
	repo      *Repository
	keywords  *keywords.Repository
	analyzer  *Analyzer
	generator *Generator
	validator candidateValidator
	demand    demandSource
	suggester proposalStrategy
	llm       proposalStrategy
	learner   rejectionLearner
	cfg       EngineConfig
	log       zerolog.Logger
}

// NewEngine creates the discovery engine. The optional collaborators are
// attached with the Set methods.
func NewEngine(repo *Repository, kw *keywords.Repository, analyzer *Analyzer, generator *Generator, validator candidateValidator, cfg EngineConfig, log zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		keywords:  kw,
		analyzer:  analyzer,
		generator: generator,
		validator: validator,
		cfg:       cfg,
		log:       log.With().Str("component", "discovery-engine").Logger(),
	}
}

// SetDemandSource attaches the analytics client used for token accounting and
// the demand product finder.
func (e *Engine) SetDemandSource(d demandSource) { e.demand = d }

// SetSuggester attaches the autocomplete cross-match strategy.
func (e *Engine) SetSuggester(s proposalStrategy) { e.suggester = s }

// SetLLM attaches the chat-completion strategy.
func (e *Engine) SetLLM(s proposalStrategy) { e.llm = s }

// SetLearner attaches the rejection learner invoked at the end of each cycle.
func (e *Engine) SetLearner(l rejectionLearner) { e.learner = l }

// RunCycle executes one discovery pass and records it as a DiscoveryLog row.
func (e *Engine) RunCycle(ctx context.Context) error {
	logID, err := e.repo.StartLog()
	if err != nil {
		return err
	}
	summary := &domain.DiscoveryLog{ID: logID}

	if err := e.runCycle(ctx, summary); err != nil {
		summary.Status = domain.DiscoveryStatusError
		summary.ErrorMessage = err.Error()
		if ferr := e.repo.FinishLog(summary); ferr != nil {
			e.log.Error().Err(ferr).Msg("failed to record discovery failure")
		}
		return err
	}

	summary.Status = domain.DiscoveryStatusCompleted
	e.log.Info().
		Int("generated", summary.CandidatesGenerated).
		Int("validated", summary.CandidatesValidated).
		Int("added", summary.KeywordsAdded).
		Int("deactivated", summary.KeywordsDeactivated).
		Int("tokens_used", summary.KeepaTokensUsed).
		Msg("discovery cycle completed")
	return e.repo.FinishLog(summary)
}

func (e *Engine) runCycle(ctx context.Context, summary *domain.DiscoveryLog) error {
	analysis, err := e.analyzer.AnalyzeDealHistory()
	if err != nil {
		return fmt.Errorf("deal history analysis: %w", err)
	}

	demandProducts := e.fetchDemandProducts(ctx)

	existing, err := e.keywords.ListAll()
	if err != nil {
		return err
	}

	proposals := e.generateProposals(ctx, analysis, demandProducts, existing)
	if err := e.persistCandidates(proposals, summary); err != nil {
		return err
	}

	if err := e.validatePending(ctx, summary); err != nil {
		return err
	}

	if e.learner != nil {
		if _, err := e.learner.AnalyzeAllRejections(); err != nil {
			e.log.Warn().Err(err).Msg("rejection batch analysis failed")
		}
		if err := e.learner.ReloadOverrides(); err != nil {
			e.log.Warn().Err(err).Msg("matcher override reload failed")
		}
	}

	deactivated, err := e.deactivateUnderperformers()
	if err != nil {
		return err
	}
	summary.KeywordsDeactivated = deactivated

	if err := e.dedupKeywords(); err != nil {
		return err
	}
	return nil
}

// fetchDemandProducts queries the product finder for items selling well right
// now. Failures degrade to history-only generation.
func (e *Engine) fetchDemandProducts(ctx context.Context) []keepa.Product {
	if !e.cfg.DemandFinderEnabled || e.demand == nil {
		return nil
	}
	selection, err := json.Marshal(map[string]int{
		"salesRankDrops30_gte": e.cfg.DemandRankDrops,
		"current_USED_gte":     e.cfg.DemandMinUsedPrice,
		"perPage":              e.cfg.DemandPerPage,
	})
	if err != nil {
		return nil
	}
	products, err := e.demand.ProductFinder(ctx, selection, 30)
	if err != nil {
		e.log.Warn().Err(err).Msg("demand product finder failed")
		return nil
	}
	if len(products) > e.cfg.DemandMaxResults {
		products = products[:e.cfg.DemandMaxResults]
	}
	return products
}

// generateProposals runs the full strategy set when enough history exists,
// otherwise falls back to demand-only generation.
func (e *Engine) generateProposals(ctx context.Context, analysis *Analysis, demandProducts []keepa.Product, existing []*domain.WatchedKeyword) []Proposal {
	if analysis.TotalDeals < e.cfg.MinDeals {
		if len(demandProducts) == 0 {
			e.log.Info().Int("deals", analysis.TotalDeals).Msg("not enough history and no demand data, skipping generation")
			return nil
		}
		return e.generator.Dedup(e.generator.DemandStrategy(demandProducts), existing)
	}

	proposals := e.generator.Generate(analysis, demandProducts, existing)
	if e.suggester != nil {
		proposals = append(proposals, e.suggester.Generate(ctx, analysis)...)
	}
	if e.llm != nil {
		proposals = append(proposals, e.llm.Generate(ctx, analysis)...)
	}
	return e.generator.Dedup(proposals, existing)
}

func (e *Engine) persistCandidates(proposals []Proposal, summary *domain.DiscoveryLog) error {
	breakdown := make(map[string]int)
	for _, p := range proposals {
		exists, err := e.repo.CandidateExists(p.Keyword)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		_, err = e.repo.CreateCandidate(&domain.KeywordCandidate{
			Keyword:         p.Keyword,
			Strategy:        p.Strategy,
			Confidence:      p.Confidence,
			ParentKeywordID: p.ParentID,
			Reasoning:       p.Reasoning,
		})
		if err != nil {
			return err
		}
		breakdown[p.Strategy]++
		summary.CandidatesGenerated++
	}
	if b, err := json.Marshal(breakdown); err == nil {
		summary.StrategyBreakdown = string(b)
	}
	return nil
}

// validatePending works through the pending queue, best candidates first,
// until the token budget runs out. Deferred candidates stay pending for the
// next cycle.
func (e *Engine) validatePending(ctx context.Context, summary *domain.DiscoveryLog) error {
	if e.validator == nil {
		return nil
	}
	pending, err := e.repo.ListPendingCandidates()
	if err != nil {
		return err
	}

	budget := e.tokenBudget()
	for _, c := range pending {
		res, err := e.validator.Validate(ctx, c, budget)
		if err != nil {
			e.log.Warn().Err(err).Str("keyword", c.Keyword).Msg("candidate validation failed")
			continue
		}
		budget -= res.TokensUsed
		summary.KeepaTokensUsed += res.TokensUsed

		payload, _ := json.Marshal(res)
		switch res.Outcome {
		case OutcomeDeferred:
			// Stays pending.
		case OutcomeInvalid:
			if err := e.repo.ResolveCandidate(c.ID, domain.CandidateStatusRejected, string(payload)); err != nil {
				return err
			}
		case OutcomeValid:
			summary.CandidatesValidated++
			status := domain.CandidateStatusValidated
			if e.qualifiesForAutoAdd(c, res) {
				added, err := e.promote(c)
				if err != nil {
					return err
				}
				if added {
					status = domain.CandidateStatusAutoAdded
					summary.KeywordsAdded++
				}
			}
			if err := e.repo.ResolveCandidate(c.ID, status, string(payload)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) tokenBudget() int {
	if e.demand == nil {
		return e.cfg.TokenBudget
	}
	budget := int(float64(e.demand.TokensLeft()) * budgetShare)
	if budget > e.cfg.TokenBudget {
		budget = e.cfg.TokenBudget
	}
	return budget
}

func (e *Engine) qualifiesForAutoAdd(c *domain.KeywordCandidate, res *ValidationResult) bool {
	return c.Confidence >= e.cfg.AutoAddThreshold &&
		res.DealsFound >= autoAddMinDeals &&
		res.BestProfit >= autoAddMinProfit
}

// promote registers the candidate as a live watched keyword. Returns false
// when the active-AI-keyword cap is already reached.
func (e *Engine) promote(c *domain.KeywordCandidate) (bool, error) {
	count, err := e.keywords.CountAI()
	if err != nil {
		return false, err
	}
	if count >= e.cfg.MaxAIKeywords {
		e.log.Info().Str("keyword", c.Keyword).Msg("AI keyword cap reached, leaving candidate validated")
		return false, nil
	}
	_, err = e.keywords.Create(&domain.WatchedKeyword{
		Keyword:         c.Keyword,
		IsActive:        true,
		Source:          "ai_" + c.Strategy,
		ParentKeywordID: c.ParentKeywordID,
		Confidence:      c.Confidence,
		Notes:           c.Reasoning,
	})
	if err != nil {
		return false, err
	}
	e.log.Info().Str("keyword", c.Keyword).Str("strategy", c.Strategy).Msg("auto-added keyword")
	return true, nil
}

// deactivateUnderperformers pauses AI keywords that have been scanned enough
// to prove they do not produce deals. Manual keywords are never touched.
func (e *Engine) deactivateUnderperformers() (int, error) {
	kws, err := e.keywords.ListBySourcePrefix("ai_")
	if err != nil {
		return 0, err
	}
	deactivated := 0
	for _, kw := range kws {
		if !kw.IsActive {
			continue
		}
		if kw.TotalScans < e.cfg.DeactivationScans || kw.PerformanceScore >= e.cfg.DeactivationScore {
			continue
		}
		if err := e.keywords.SetActive(kw.ID, false, true); err != nil {
			return deactivated, err
		}
		deactivated++
		e.log.Info().Str("keyword", kw.Keyword).
			Int("scans", kw.TotalScans).
			Float64("score", kw.PerformanceScore).
			Msg("deactivated underperforming keyword")
	}
	return deactivated, nil
}

// dedupKeywords deletes the loser of every similar keyword pair. Manual beats
// AI, then more deals, then more profit, then age.
func (e *Engine) dedupKeywords() error {
	kws, err := e.keywords.ListAll()
	if err != nil {
		return err
	}

	deleted := make(map[int64]bool)
	for i := 0; i < len(kws); i++ {
		if deleted[kws[i].ID] {
			continue
		}
		for j := i + 1; j < len(kws); j++ {
			if deleted[kws[j].ID] {
				continue
			}
			if !matcher.KeywordsAreSimilar(kws[i].Keyword, kws[j].Keyword, matcher.DefaultSimilarityThreshold) {
				continue
			}
			loser := pickLoser(kws[i], kws[j])
			if err := e.keywords.Delete(loser.ID); err != nil {
				return err
			}
			deleted[loser.ID] = true
			e.log.Info().Str("keyword", loser.Keyword).Msg("deleted duplicate keyword")
			if loser.ID == kws[i].ID {
				break
			}
		}
	}
	return nil
}

// pickLoser decides which of two similar keywords to delete.
func pickLoser(a, b *domain.WatchedKeyword) *domain.WatchedKeyword {
	if a.IsManual() != b.IsManual() {
		if a.IsManual() {
			return b
		}
		return a
	}
	if a.TotalDealsFound != b.TotalDealsFound {
		if a.TotalDealsFound > b.TotalDealsFound {
			return b
		}
		return a
	}
	if a.TotalGrossProfit != b.TotalGrossProfit {
		if a.TotalGrossProfit > b.TotalGrossProfit {
			return b
		}
		return a
	}
	if a.CreatedAt.Before(b.CreatedAt) {
		return b
	}
	return a
}
