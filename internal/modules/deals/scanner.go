// Package deals finds arbitrage opportunities: it scans auction search
// results for watched keywords, matches listings against marketplace products
// through the analytics provider, costs them, and persists the survivors as
// deal alerts.
package deals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/config"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/scoring"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
)

const (
	// lowTokenFloor stops the whole cycle; the remaining keywords keep their
	// scan order for the next cycle.
	lowTokenFloor = 5
	// priceRatioFloor rejects auctions priced far below the marketplace price;
	// those are almost always parts or junk.
	priceRatioFloor = 0.25
	searchStatsDays = 30
)

type searchClient interface {
	FetchSearch(ctx context.Context, query string, page int) ([]yahoo.SearchResult, error)
	FetchDescription(ctx context.Context, auctionID string) (string, error)
}

type analyticsClient interface {
	ClearSearchCache()
	TokensLeft() int
	SearchProducts(ctx context.Context, term string, statsDays int) ([]keepa.Product, error)
}

type feeResolver interface {
	GetReferralFeePct(ctx context.Context, asin string, price int) (float64, error)
}

type candidateStore interface {
	CreateCandidate(c *domain.KeywordCandidate) (int64, error)
	CandidateExists(keyword string) (bool, error)
}

type webhookSender interface {
	Enabled() bool
	Send(ctx context.Context, msg notify.Message) error
}

// Scanner runs the periodic deal-scan cycle.
type Scanner struct {
	alerts     *Repository
	keywords   *keywords.Repository
	candidates candidateStore
	yahoo      searchClient
	analytics  analyticsClient
	fees       feeResolver
	matcher    *matcher.Matcher
	notifier   webhookSender
	cfg        config.DealConfig
	log        zerolog.Logger
}

// NewScanner wires the scan pipeline. fees and notifier may be nil; candidates
// may be nil to disable series expansion.
func NewScanner(
	alerts *Repository,
	kw *keywords.Repository,
	candidates candidateStore,
	search searchClient,
	analytics analyticsClient,
	fees feeResolver,
	m *matcher.Matcher,
	notifier webhookSender,
	cfg config.DealConfig,
	log zerolog.Logger,
) *Scanner {
	return &Scanner{
		alerts:     alerts,
		keywords:   kw,
		candidates: candidates,
		yahoo:      search,
		analytics:  analytics,
		fees:       fees,
		matcher:    m,
		notifier:   notifier,
		cfg:        cfg,
		log:        log.With().Str("component", "deal-scanner").Logger(),
	}
}

// Scan runs one cycle over all active keywords in round-robin order. Provider
// token exhaustion stops the cycle; the unscanned keywords go first next time.
func (s *Scanner) Scan(ctx context.Context) error {
	s.analytics.ClearSearchCache()

	kws, err := s.keywords.ListActiveForScan()
	if err != nil {
		return fmt.Errorf("failed to load keywords for scan: %w", err)
	}

	alerts, scanned := 0, 0
	for _, kw := range kws {
		if left := s.analytics.TokensLeft(); left >= 0 && left <= lowTokenFloor {
			s.log.Warn().Int("tokens_left", left).Msg("token balance low, stopping cycle")
			break
		}

		// Counters first: a deal found below resets scans_since_last_deal.
		if err := s.keywords.MarkScanned(kw.ID); err != nil {
			s.log.Error().Err(err).Int64("keyword_id", kw.ID).Msg("failed to update scan counters")
		}

		n, err := s.scanKeyword(ctx, kw)
		alerts += n
		if err != nil {
			var tokenErr *keepa.TokenError
			if errors.As(err, &tokenErr) {
				s.log.Warn().Int("tokens_left", tokenErr.TokensLeft).Msg("tokens exhausted mid-keyword, stopping cycle")
				break
			}
			s.log.Error().Err(err).Str("keyword", kw.Keyword).Msg("keyword scan failed")
			continue
		}
		scanned++
	}

	deleted, paused, err := s.keywords.Cleanup()
	if err != nil {
		s.log.Error().Err(err).Msg("keyword cleanup failed")
	}

	s.log.Info().
		Int("keywords_scanned", scanned).
		Int("alerts_created", alerts).
		Int("keywords_deleted", deleted).
		Int("keywords_paused", paused).
		Msg("scan cycle finished")
	return nil
}

// listingGroup gathers listings that share a brand and a model-number set, so
// one targeted analytics search serves all of them.
type listingGroup struct {
	brand    string
	models   []string
	listings []yahoo.SearchResult
}

func (s *Scanner) scanKeyword(ctx context.Context, kw *domain.WatchedKeyword) (int, error) {
	var listings []yahoo.SearchResult
	for page := 1; page <= s.cfg.ScanMaxPages; page++ {
		results, err := s.yahoo.FetchSearch(ctx, kw.Keyword, page)
		if err != nil {
			return 0, fmt.Errorf("search fetch failed for %q page %d: %w", kw.Keyword, page, err)
		}
		if len(results) == 0 {
			break
		}
		listings = append(listings, results...)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	groups, fallback := s.groupListings(listings)

	alerts, searches := 0, 0
	for _, g := range groups {
		if searches >= s.cfg.MaxKeepaSearchesPerKeyword {
			fallback = append(fallback, g.listings...)
			continue
		}
		term := strings.TrimSpace(g.brand + " " + strings.Join(g.models, " "))
		products, err := s.analytics.SearchProducts(ctx, term, searchStatsDays)
		if err != nil {
			return alerts, err
		}
		searches++
		alerts += s.matchListings(ctx, kw, g.listings, products)
	}

	if len(fallback) > 0 {
		products, err := s.analytics.SearchProducts(ctx, kw.Keyword, searchStatsDays)
		if err != nil {
			return alerts, err
		}
		alerts += s.matchListings(ctx, kw, fallback, products)
	}
	return alerts, nil
}

// groupListings splits search results into targeted groups keyed by
// (brand, model set) and a fallback bucket for everything without a usable
// buy-now price or model number. Apparel listings are dropped outright.
func (s *Scanner) groupListings(listings []yahoo.SearchResult) ([]listingGroup, []yahoo.SearchResult) {
	groups := make(map[string]*listingGroup)
	var order []string
	var fallback []yahoo.SearchResult

	for _, l := range listings {
		if matcher.IsApparel(l.Title) {
			continue
		}
		tokens := matcher.Tokenize(l.Title)
		models := matcher.ExtractModelNumbers(tokens)
		if l.BuyNowPrice <= s.cfg.MinPriceForKeepaSearch || len(models) == 0 {
			fallback = append(fallback, l)
			continue
		}

		brand := ""
		if brands := matcher.Brands(tokens); len(brands) > 0 {
			brand = brands[0]
		}
		sorted := append([]string(nil), models...)
		sort.Strings(sorted)
		key := brand + "|" + strings.Join(sorted, "|")

		g, ok := groups[key]
		if !ok {
			g = &listingGroup{brand: brand, models: sorted}
			groups[key] = g
			order = append(order, key)
		}
		g.listings = append(g.listings, l)
	}

	out := make([]listingGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, fallback
}

func (s *Scanner) matchListings(ctx context.Context, kw *domain.WatchedKeyword, listings []yahoo.SearchResult, products []keepa.Product) int {
	alerts := 0
	for _, l := range listings {
		best := s.bestDeal(ctx, l, products)
		if best == nil {
			continue
		}
		n, err := s.emitAlert(ctx, kw, l, best)
		if err != nil {
			s.log.Error().Err(err).Str("auction_id", l.AuctionID).Msg("failed to persist alert")
			continue
		}
		alerts += n
	}
	return alerts
}

// scoredDeal couples the matcher verdict with the costed candidate for one
// (listing, product) pair.
type scoredDeal struct {
	res   matcher.MatchResult
	deal  *scoring.DealCandidate
	price int
}

// bestDeal scores a listing against every candidate product and keeps the
// highest matcher score among those that survive every filter.
func (s *Scanner) bestDeal(ctx context.Context, l yahoo.SearchResult, products []keepa.Product) *scoredDeal {
	price := l.BuyNowPrice
	if price <= 0 {
		price = l.CurrentPrice
	}
	if price <= 0 {
		return nil
	}
	shipping := l.Shipping
	if shipping < 0 {
		shipping = 0
	}
	overrides := s.matcher.Overrides()

	var best *scoredDeal
	for i := range products {
		p := &products[i]
		res := s.matcher.Match(l.Title, p.Title)

		// The provider's model field can supply the model evidence a terse
		// marketplace title lacks.
		if !res.ModelMatch && p.Model != "" && len(res.YahooModels) > 0 {
			pModels := matcher.ExtractModelNumbers(matcher.Tokenize(p.Model))
			if matcher.ModelsIntersect(res.YahooModels, pModels) {
				res.KeepaModelMatch = true
				s.matcher.Revalidate(&res)
			}
		}
		if !res.IsLikelyMatch {
			continue
		}
		if overrides != nil {
			if overrides.IsBlockedPair(l.AuctionID, p.ASIN) || overrides.IsBlockedTitlePair(l.Title, p.Title) {
				continue
			}
		}

		deal := scoring.ScoreDeal(p, scoring.Input{
			YahooPrice:        price,
			YahooShipping:     shipping,
			FeePct:            s.resolveFeePct(ctx, p),
			ForwardingCost:    s.cfg.DefaultForwardingCost,
			SystemFee:         s.cfg.SystemFee,
			GoodRankThreshold: s.cfg.GoodRankThreshold,
		})
		if deal == nil {
			continue
		}
		if float64(price) < priceRatioFloor*float64(deal.SellPrice) {
			continue
		}
		if deal.GrossMarginPct >= s.cfg.DeepValidationMarginThreshold {
			if !res.PassesStrictCheck() {
				continue
			}
			if s.cfg.DeepValidationEnabled && s.failsDeepValidation(ctx, l.AuctionID) {
				continue
			}
		}
		if deal.GrossMarginPct < s.cfg.MinGrossMarginPct || deal.GrossMarginPct > s.cfg.MaxGrossMarginPct {
			continue
		}
		if deal.GrossProfit < s.cfg.MinGrossProfit {
			continue
		}

		if best == nil || res.Score > best.res.Score {
			best = &scoredDeal{res: res, deal: deal, price: price}
		}
	}
	return best
}

func (s *Scanner) resolveFeePct(ctx context.Context, p *keepa.Product) float64 {
	if s.fees == nil {
		return s.cfg.DefaultFeePct
	}
	sell := p.SellPrice()
	if sell <= 0 {
		return s.cfg.DefaultFeePct
	}
	pct, err := s.fees.GetReferralFeePct(ctx, p.ASIN, sell)
	if err != nil {
		s.log.Debug().Err(err).Str("asin", p.ASIN).Msg("fee lookup failed, using default")
		return s.cfg.DefaultFeePct
	}
	if pct <= 0 {
		return s.cfg.DefaultFeePct
	}
	return pct
}

// failsDeepValidation fetches the auction description and rejects the deal
// when accessory vocabulary shows up there. Fetch failures do not reject.
func (s *Scanner) failsDeepValidation(ctx context.Context, auctionID string) bool {
	desc, err := s.yahoo.FetchDescription(ctx, auctionID)
	if err != nil {
		s.log.Debug().Err(err).Str("auction_id", auctionID).Msg("description fetch failed, skipping deep validation")
		return false
	}
	return s.matcher.ContainsAccessorySignal(desc)
}

func (s *Scanner) emitAlert(ctx context.Context, kw *domain.WatchedKeyword, l yahoo.SearchResult, sc *scoredDeal) (int, error) {
	alert := &domain.DealAlert{
		KeywordID:      &kw.ID,
		YahooAuctionID: l.AuctionID,
		YahooTitle:     l.Title,
		YahooURL:       auctionURL(l.AuctionID),
		YahooPrice:     sc.price,
		YahooShipping:  sc.deal.YahooShipping,
		AmazonASIN:     sc.deal.ASIN,
		AmazonTitle:    sc.deal.AmazonTitle,
		AmazonURL:      productURL(sc.deal.ASIN),
		SellPrice:      sc.deal.SellPrice,
		AmazonFeePct:   sc.deal.FeePct,
		ForwardingCost: sc.deal.ForwardingCost,
		GrossProfit:    sc.deal.GrossProfit,
		GrossMarginPct: sc.deal.GrossMarginPct,
		SalesRank:      sc.deal.SalesRank,
		SellsWell:      sc.deal.SellsWell,
		MatchScore:     sc.res.Score,
	}

	id, inserted, err := s.alerts.Create(alert)
	if err != nil {
		return 0, err
	}
	if !inserted {
		return 0, nil
	}

	s.notifyAlert(ctx, id, alert)
	if err := s.keywords.RecordDeal(kw.ID, sc.deal.GrossProfit); err != nil {
		s.log.Error().Err(err).Int64("keyword_id", kw.ID).Msg("failed to record deal counters")
	}
	s.expandSeries(kw, l.Title, sc.res.YahooModels, sc.deal.GrossProfit)
	return 1, nil
}

func (s *Scanner) notifyAlert(ctx context.Context, id int64, a *domain.DealAlert) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	msg := notify.Message{
		Title: "利益商品を発見",
		Body:  a.YahooTitle,
		URL:   a.YahooURL,
		Fields: []notify.Field{
			{Name: "仕入れ", Value: fmt.Sprintf("%d円", a.YahooPrice)},
			{Name: "販売価格", Value: fmt.Sprintf("%d円", a.SellPrice)},
			{Name: "粗利", Value: fmt.Sprintf("%d円", a.GrossProfit)},
			{Name: "利益率", Value: fmt.Sprintf("%.1f%%", a.GrossMarginPct)},
			{Name: "ランキング", Value: strconv.Itoa(a.SalesRank)},
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Int64("alert_id", id).Msg("webhook delivery failed")
		return
	}
	if err := s.alerts.MarkNotified(id); err != nil {
		s.log.Error().Err(err).Int64("alert_id", id).Msg("failed to mark alert notified")
	}
}

// expandSeries proposes neighbouring models of a profitable deal as keyword
// candidates ("gopro hero12" paying off suggests hero10/11/13/14).
func (s *Scanner) expandSeries(kw *domain.WatchedKeyword, title string, models []string, grossProfit int) {
	if s.candidates == nil || grossProfit < s.cfg.SeriesExpansionMinProfit {
		return
	}

	brand := ""
	if brands := matcher.Brands(matcher.Tokenize(title)); len(brands) > 0 {
		brand = brands[0]
	}

	seen := make(map[string]bool)
	for _, model := range models {
		for _, sibling := range matcher.SeriesSiblings(model) {
			keyword := sibling
			if brand != "" {
				keyword = brand + " " + sibling
			}
			if seen[keyword] {
				continue
			}
			seen[keyword] = true

			if exists, err := s.keywords.Exists(keyword); err != nil || exists {
				continue
			}
			if exists, err := s.candidates.CandidateExists(keyword); err != nil || exists {
				continue
			}
			if _, err := s.candidates.CreateCandidate(&domain.KeywordCandidate{
				Keyword:         keyword,
				Strategy:        "series",
				Confidence:      0.75,
				ParentKeywordID: &kw.ID,
				Reasoning:       fmt.Sprintf("%s の %s が粗利%d円", kw.Keyword, model, grossProfit),
			}); err != nil {
				s.log.Error().Err(err).Str("keyword", keyword).Msg("failed to create series candidate")
			} else {
				s.log.Info().Str("keyword", keyword).Str("from_model", model).Msg("series candidate proposed")
			}
		}
	}
}

func auctionURL(auctionID string) string {
	return "https://page.auctions.yahoo.co.jp/jp/auction/" + auctionID
}

func productURL(asin string) string {
	return "https://www.amazon.co.jp/dp/" + asin
}
