// Package discovery mines the deal history for patterns, generates keyword
// candidates from them, validates candidates under a token budget, and
// promotes the winners to watched keywords.
package discovery

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

// Pattern-mining floors.
const (
	brandMinDeals = 2
	tokenMinDeals = 3
	topTypeTokens = 30

	// A brand is worth generating keywords for when its deals cleared these.
	profitableBrandAvgProfit   = 3000
	profitableBrandMinDeals    = 3
	profitableBrandTotalProfit = 15000

	profitableAlertMinProfit = 3000
)

// lowQualityWords are tokens that describe condition, color or packaging
// rather than a product; keywords built from them search everything and
// nothing.
var lowQualityWords = map[string]bool{}

var rawLowQualityWords = []string{
	"中古", "新品", "美品", "未使用", "未開封", "ジャンク", "本体", "セット",
	"純正", "付属", "箱付き", "限定", "送料無料", "動作確認済み", "まとめ売り",
	"ブラック", "ホワイト", "シルバー", "レッド", "ブルー", "ゴールド",
	"black", "white", "silver", "red", "blue", "gold",
	"黒", "白", "赤", "青", "used", "new",
}

func init() {
	for _, w := range rawLowQualityWords {
		lowQualityWords[matcher.NormalizeText(w)] = true
	}
}

type alertSource interface {
	ListAll() ([]*domain.DealAlert, error)
}

// BrandStats aggregates the deal history of one brand.
type BrandStats struct {
	Deals       int
	TotalProfit int
}

// AvgProfit returns the mean gross profit per deal.
func (b *BrandStats) AvgProfit() float64 {
	if b.Deals == 0 {
		return 0
	}
	return float64(b.TotalProfit) / float64(b.Deals)
}

// TokenScore is one mined product-type token with its weight.
type TokenScore struct {
	Token string
	Score float64
	Count int
}

// Analysis is the mined view of the deal history one discovery cycle works
// from.
type Analysis struct {
	TotalDeals int

	Brands       map[string]*BrandStats
	TypeTokens   []TokenScore
	TokenScores  map[string]float64
	PriceBuckets map[string]int

	// ProfitableAlerts holds alerts with gross profit over the series floor,
	// highest profit first.
	ProfitableAlerts []*domain.DealAlert

	// TopKeywords holds the best-scoring keywords after the write-back,
	// best first.
	TopKeywords []*domain.WatchedKeyword
}

// ProfitableBrands returns the brands worth generating keywords for, sorted
// by total profit descending.
func (a *Analysis) ProfitableBrands() []string {
	var brands []string
	for brand, stats := range a.Brands {
		if stats.AvgProfit() >= profitableBrandAvgProfit &&
			stats.Deals >= profitableBrandMinDeals &&
			stats.TotalProfit >= profitableBrandTotalProfit {
			brands = append(brands, brand)
		}
	}
	sort.Slice(brands, func(i, j int) bool {
		bi, bj := a.Brands[brands[i]], a.Brands[brands[j]]
		if bi.TotalProfit != bj.TotalProfit {
			return bi.TotalProfit > bj.TotalProfit
		}
		return brands[i] < brands[j]
	})
	return brands
}

// Analyzer scores keywords against the deal history and mines the patterns
// the generator strategies feed on.
type Analyzer struct {
	alerts   alertSource
	keywords *keywords.Repository
	now      func() time.Time
	log      zerolog.Logger
}

// NewAnalyzer creates a deal-history analyzer.
func NewAnalyzer(alerts alertSource, kw *keywords.Repository, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		alerts:   alerts,
		keywords: kw,
		now:      time.Now,
		log:      log.With().Str("component", "discovery-analyzer").Logger(),
	}
}

// AnalyzeDealHistory recomputes every keyword's performance score, writes the
// scores back, and returns the mined patterns. Rejected alerts are false
// positives and contribute nothing to pattern mining.
func (a *Analyzer) AnalyzeDealHistory() (*Analysis, error) {
	alerts, err := a.alerts.ListAll()
	if err != nil {
		return nil, err
	}
	kws, err := a.keywords.ListAll()
	if err != nil {
		return nil, err
	}

	byKeyword := make(map[int64][]*domain.DealAlert)
	var mined []*domain.DealAlert
	for _, alert := range alerts {
		if alert.KeywordID != nil {
			byKeyword[*alert.KeywordID] = append(byKeyword[*alert.KeywordID], alert)
		}
		if alert.Status != domain.AlertStatusRejected {
			mined = append(mined, alert)
		}
	}

	now := a.now().UTC()
	for _, kw := range kws {
		score := performanceScore(kw, byKeyword[kw.ID], now)
		kw.PerformanceScore = score
		if err := a.keywords.SetPerformanceScore(kw.ID, score); err != nil {
			return nil, err
		}
	}

	analysis := a.minePatterns(mined)
	analysis.TopKeywords = topKeywords(kws)

	a.log.Info().
		Int("deals", analysis.TotalDeals).
		Int("brands", len(analysis.Brands)).
		Int("type_tokens", len(analysis.TypeTokens)).
		Msg("deal history analyzed")
	return analysis, nil
}

// performanceScore blends profitability, hit rate, margin and recency into a
// [0,1] score.
func performanceScore(kw *domain.WatchedKeyword, alerts []*domain.DealAlert, now time.Time) float64 {
	deals := kw.TotalDealsFound
	var avgProfit float64
	if deals > 0 {
		avgProfit = float64(kw.TotalGrossProfit) / float64(deals)
	}
	profitScore := math.Min(avgProfit/10000, 1)

	scans := kw.TotalScans
	if scans < 1 {
		scans = 1
	}
	dealRate := math.Min(float64(deals)/float64(scans), 1)

	var marginScore, recency float64
	if len(alerts) > 0 {
		var marginSum float64
		mostRecent := alerts[0].CreatedAt
		for _, alert := range alerts {
			marginSum += alert.GrossMarginPct
			if alert.CreatedAt.After(mostRecent) {
				mostRecent = alert.CreatedAt
			}
		}
		marginScore = math.Min(marginSum/float64(len(alerts))/100, 1)

		age := now.Sub(mostRecent)
		switch {
		case age <= 7*24*time.Hour:
			recency = 1.0
		case age <= 14*24*time.Hour:
			recency = 0.5
		}
	}

	score := 0.4*profitScore + 0.3*dealRate + 0.2*marginScore + 0.1*recency
	return math.Round(score*10000) / 10000
}

func (a *Analyzer) minePatterns(alerts []*domain.DealAlert) *Analysis {
	analysis := &Analysis{
		TotalDeals:   len(alerts),
		Brands:       make(map[string]*BrandStats),
		TokenScores:  make(map[string]float64),
		PriceBuckets: make(map[string]int),
	}

	type tokenStat struct {
		count  int
		profit int
	}
	tokenStats := make(map[string]*tokenStat)

	for _, alert := range alerts {
		tokens := matcher.Tokenize(alert.YahooTitle)

		for _, brand := range matcher.Brands(tokens) {
			stats := analysis.Brands[brand]
			if stats == nil {
				stats = &BrandStats{}
				analysis.Brands[brand] = stats
			}
			stats.Deals++
			stats.TotalProfit += alert.GrossProfit
		}

		brandSet := make(map[string]bool)
		for _, b := range matcher.Brands(tokens) {
			brandSet[b] = true
		}
		seen := make(map[string]bool)
		for _, t := range matcher.MeaningfulTokens(tokens) {
			if seen[t] || brandSet[t] || lowQualityWords[t] {
				continue
			}
			if len(matcher.ExtractModelNumbers([]string{t})) > 0 {
				continue
			}
			seen[t] = true
			stats := tokenStats[t]
			if stats == nil {
				stats = &tokenStat{}
				tokenStats[t] = stats
			}
			stats.count++
			stats.profit += alert.GrossProfit
		}

		analysis.PriceBuckets[priceBucket(alert.YahooPrice)]++

		if alert.GrossProfit >= profitableAlertMinProfit {
			analysis.ProfitableAlerts = append(analysis.ProfitableAlerts, alert)
		}
	}

	for brand, stats := range analysis.Brands {
		if stats.Deals < brandMinDeals {
			delete(analysis.Brands, brand)
		}
	}

	for token, stats := range tokenStats {
		if stats.count < tokenMinDeals {
			continue
		}
		avgProfit := float64(stats.profit) / float64(stats.count)
		score := float64(stats.count) * math.Min(avgProfit/5000, 2.0)
		analysis.TokenScores[token] = score
		analysis.TypeTokens = append(analysis.TypeTokens, TokenScore{Token: token, Score: score, Count: stats.count})
	}
	sort.Slice(analysis.TypeTokens, func(i, j int) bool {
		if analysis.TypeTokens[i].Score != analysis.TypeTokens[j].Score {
			return analysis.TypeTokens[i].Score > analysis.TypeTokens[j].Score
		}
		return analysis.TypeTokens[i].Token < analysis.TypeTokens[j].Token
	})
	if len(analysis.TypeTokens) > topTypeTokens {
		analysis.TypeTokens = analysis.TypeTokens[:topTypeTokens]
	}

	sort.SliceStable(analysis.ProfitableAlerts, func(i, j int) bool {
		return analysis.ProfitableAlerts[i].GrossProfit > analysis.ProfitableAlerts[j].GrossProfit
	})

	return analysis
}

func priceBucket(price int) string {
	switch {
	case price < 3000:
		return "0-3000"
	case price < 5000:
		return "3000-5000"
	case price < 10000:
		return "5000-10000"
	case price < 30000:
		return "10000-30000"
	default:
		return "30000+"
	}
}

func topKeywords(kws []*domain.WatchedKeyword) []*domain.WatchedKeyword {
	sorted := append([]*domain.WatchedKeyword(nil), kws...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PerformanceScore > sorted[j].PerformanceScore
	})
	if len(sorted) > 10 {
		sorted = sorted[:10]
	}
	return sorted
}
