package discovery

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

// Strategy confidence levels. Demand ranks highest: it is backed by live
// marketplace sales data rather than our own history.
const (
	confidenceBrand   = 0.70
	confidenceTitle   = 0.60
	confidenceCategory = 0.65
	confidenceSynonym = 0.50
	confidenceSeries  = 0.75
	confidenceDemand  = 0.80
)

// categorySuffixes pair a profitable brand with a listing-style qualifier.
var categorySuffixes = []string{"中古", "美品", "本体", "セット", "純正"}

// longBrandForms maps manufacturer legal names, as analytics records carry
// them, to the short form buyers search with.
var longBrandForms = map[string]string{
	"sony corporation":          "sony",
	"panasonic corporation":     "panasonic",
	"canon inc.":                "canon",
	"nikon corporation":         "nikon",
	"nintendo co., ltd.":        "nintendo",
	"casio computer co., ltd.":  "casio",
	"seiko epson corporation":   "epson",
	"olympus corporation":       "olympus",
	"makita corporation":        "makita",
	"sharp corporation":         "sharp",
	"toshiba corporation":       "toshiba",
	"fujifilm corporation":      "fujifilm",
	"iris ohyama inc.":          "アイリスオーヤマ",
	"zojirushi corporation":     "象印",
	"tiger corporation":         "タイガー",
	"audio-technica corp.":      "audio-technica",
	"brother industries, ltd.":  "brother",
	"citizen watch co., ltd.":   "citizen",
	"pioneer corporation":       "pioneer",
	"mitsubishi electric corp.": "三菱",
}

// Proposal is one generated keyword candidate before persistence.
type Proposal struct {
	Keyword    string
	Strategy   string
	Confidence float64
	Reasoning  string
	ParentID   *int64
}

// Generator turns a mined Analysis into keyword proposals.
type Generator struct {
	log zerolog.Logger
}

// NewGenerator creates a candidate generator.
func NewGenerator(log zerolog.Logger) *Generator {
	return &Generator{
		log: log.With().Str("component", "discovery-generator").Logger(),
	}
}

// Generate runs the history-driven strategies and deduplicates the combined
// output against the existing keywords. demandProducts may be nil when the
// product finder is disabled.
func (g *Generator) Generate(analysis *Analysis, demandProducts []keepa.Product, existing []*domain.WatchedKeyword) []Proposal {
	var proposals []Proposal
	proposals = append(proposals, g.brandStrategy(analysis)...)
	proposals = append(proposals, g.titleStrategy(analysis)...)
	proposals = append(proposals, g.categoryStrategy(analysis)...)
	proposals = append(proposals, g.synonymStrategy(analysis)...)
	proposals = append(proposals, g.seriesStrategy(analysis)...)
	proposals = append(proposals, g.DemandStrategy(demandProducts)...)
	return g.Dedup(proposals, existing)
}

// brandStrategy crosses profitable brands with the strongest product-type
// tokens.
func (g *Generator) brandStrategy(analysis *Analysis) []Proposal {
	brands := analysis.ProfitableBrands()
	if len(brands) == 0 {
		return nil
	}

	tokens := analysis.TypeTokens
	if len(tokens) > 15 {
		tokens = tokens[:15]
	}

	var proposals []Proposal
	for _, brand := range brands {
		stats := analysis.Brands[brand]
		for _, ts := range tokens {
			if lowQualityWords[ts.Token] {
				continue
			}
			proposals = append(proposals, Proposal{
				Keyword:    brand + " " + ts.Token,
				Strategy:   "brand",
				Confidence: confidenceBrand,
				Reasoning:  fmt.Sprintf("%s で%d件の利益実績 (計%d円)", brand, stats.Deals, stats.TotalProfit),
			})
		}
	}
	return proposals
}

// titleStrategy pairs the strongest standalone title tokens.
func (g *Generator) titleStrategy(analysis *Analysis) []Proposal {
	var tokens []string
	for _, ts := range analysis.TypeTokens {
		if ts.Score < 1.0 || lowQualityWords[ts.Token] || len([]rune(ts.Token)) < 3 {
			continue
		}
		if isKnownBrand(ts.Token) {
			continue
		}
		tokens = append(tokens, ts.Token)
		if len(tokens) == 20 {
			break
		}
	}

	var proposals []Proposal
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			proposals = append(proposals, Proposal{
				Keyword:    tokens[i] + " " + tokens[j],
				Strategy:   "title",
				Confidence: confidenceTitle,
				Reasoning:  "実績タイトルの頻出トークンの組み合わせ",
			})
		}
	}
	return proposals
}

func (g *Generator) categoryStrategy(analysis *Analysis) []Proposal {
	var proposals []Proposal
	for _, brand := range analysis.ProfitableBrands() {
		for _, suffix := range categorySuffixes {
			proposals = append(proposals, Proposal{
				Keyword:    brand + " " + suffix,
				Strategy:   "category",
				Confidence: confidenceCategory,
				Reasoning:  fmt.Sprintf("%s の実績に状態語を付与", brand),
			})
		}
	}
	return proposals
}

// synonymStrategy rewrites the top keywords through the EN↔katakana and
// abbreviation tables.
func (g *Generator) synonymStrategy(analysis *Analysis) []Proposal {
	var proposals []Proposal
	for _, kw := range analysis.TopKeywords {
		if kw.PerformanceScore <= 0 {
			continue
		}
		id := kw.ID
		for _, variant := range substituteSynonyms(kw.Keyword) {
			proposals = append(proposals, Proposal{
				Keyword:    variant,
				Strategy:   "synonym",
				Confidence: confidenceSynonym,
				Reasoning:  fmt.Sprintf("実績キーワード %q の表記ゆれ", kw.Keyword),
				ParentID:   &id,
			})
		}
	}
	return proposals
}

// seriesStrategy walks sibling model numbers of the profitable alerts, most
// profitable first.
func (g *Generator) seriesStrategy(analysis *Analysis) []Proposal {
	var proposals []Proposal
	seen := make(map[string]bool)
	for _, alert := range analysis.ProfitableAlerts {
		tokens := matcher.Tokenize(alert.YahooTitle)
		brands := matcher.Brands(tokens)
		prefix := ""
		if len(brands) > 0 {
			prefix = brands[0] + " "
		}
		for _, model := range matcher.ExtractModelNumbers(tokens) {
			for _, sibling := range matcher.SeriesSiblings(model) {
				keyword := prefix + sibling
				if seen[keyword] {
					continue
				}
				seen[keyword] = true
				proposals = append(proposals, Proposal{
					Keyword:    keyword,
					Strategy:   "series",
					Confidence: confidenceSeries,
					Reasoning:  fmt.Sprintf("%s の近隣型番 (粗利%d円の実績)", model, alert.GrossProfit),
				})
			}
		}
	}
	return proposals
}

// DemandStrategy builds keywords straight from product-finder output. It is
// exported separately because the engine falls back to it when there is no
// deal history to mine.
func (g *Generator) DemandStrategy(products []keepa.Product) []Proposal {
	var proposals []Proposal
	for i := range products {
		p := &products[i]
		model := p.Model
		if isBarcode(model) {
			continue
		}
		if model == "" {
			models := matcher.ExtractModelNumbers(matcher.Tokenize(p.Title))
			if len(models) == 0 {
				continue
			}
			model = models[0]
		}

		keyword := model
		if brand := shortBrand(p.Brand); brand != "" && len([]rune(model)) >= 4 {
			keyword = brand + " " + model
		}
		proposals = append(proposals, Proposal{
			Keyword:    keyword,
			Strategy:   "demand",
			Confidence: confidenceDemand,
			Reasoning:  fmt.Sprintf("直近30日に%d回売れている (ランク%d)", p.RankDrops30, p.SalesRank),
		})
	}
	return proposals
}

// Dedup applies the shared filter: apparel out, case-normalised, nothing
// similar to an existing keyword or an earlier-kept proposal.
func (g *Generator) Dedup(proposals []Proposal, existing []*domain.WatchedKeyword) []Proposal {
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Confidence > proposals[j].Confidence
	})

	var kept []Proposal
	for _, p := range proposals {
		keyword := strings.ToLower(strings.TrimSpace(p.Keyword))
		if keyword == "" || matcher.IsApparel(keyword) {
			continue
		}
		p.Keyword = keyword

		similar := false
		for _, kw := range existing {
			if matcher.KeywordsAreSimilar(keyword, kw.Keyword, matcher.DefaultSimilarityThreshold) {
				similar = true
				break
			}
		}
		for _, k := range kept {
			if similar {
				break
			}
			if matcher.KeywordsAreSimilar(keyword, k.Keyword, matcher.DefaultSimilarityThreshold) {
				similar = true
			}
		}
		if similar {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func isKnownBrand(token string) bool {
	return len(matcher.Brands([]string{token})) > 0
}

// isBarcode rejects all-digit model fields of barcode length.
func isBarcode(model string) bool {
	if len(model) < 8 {
		return false
	}
	for _, r := range model {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// shortBrand reduces a manufacturer legal name to its searchable short form.
func shortBrand(brand string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return ""
	}
	if short, ok := longBrandForms[b]; ok {
		return short
	}
	for _, suffix := range []string{" corporation", " co., ltd.", " co.,ltd.", " inc.", " ltd.", " 株式会社"} {
		b = strings.TrimSuffix(b, suffix)
	}
	if i := strings.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	return b
}
