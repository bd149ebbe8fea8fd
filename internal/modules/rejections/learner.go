package rejections

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

// blockedASINThreshold: rejections of the same ASIN (any reason) before the
// ASIN itself is blocked.
const blockedASINThreshold = 3

// standaloneWords on the auction side mark part/junk listings.
var standaloneWords = []string{"単体", "のみ", "only", "単品", "ジャンク"}

// Suggestion is one ranked rejection-reason proposal for the operator UI.
type Suggestion struct {
	Reason     string  `json:"reason"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type alertHistory interface {
	ListAll() ([]*domain.DealAlert, error)
}

// Learner turns operator rejections into persisted matcher overrides.
type Learner struct {
	repo    *Repository
	alerts  alertHistory
	matcher *matcher.Matcher
	log     zerolog.Logger
}

// NewLearner creates a rejection learner.
func NewLearner(repo *Repository, alerts alertHistory, m *matcher.Matcher, log zerolog.Logger) *Learner {
	return &Learner{
		repo:    repo,
		alerts:  alerts,
		matcher: m,
		log:     log.With().Str("component", "rejection-learner").Logger(),
	}
}

// SuggestReasons proposes up to five ranked rejection reasons for an alert by
// re-running the matcher on its stored titles.
func (l *Learner) SuggestReasons(alert *domain.DealAlert) []Suggestion {
	res := l.matcher.Match(alert.YahooTitle, alert.AmazonTitle)

	var suggestions []Suggestion
	add := func(reason, label string, confidence float64) {
		suggestions = append(suggestions, Suggestion{Reason: reason, Label: label, Confidence: confidence})
	}

	if res.ModelConflict {
		add(domain.RejectionModelVariant, "型番が一致していません", 0.85)
	}
	if res.AccessoryConflict && res.AccessoryWord != "" {
		add(domain.RejectionAccessory, fmt.Sprintf("付属品の可能性: %s", res.AccessoryWord), 0.85)
	}
	if matcher.CountModelFamilies(res.YahooModels) > 2 {
		add(domain.RejectionAccessory, "複数機種対応の汎用品の可能性", 0.80)
	}
	if res.BrandConflict {
		add(domain.RejectionWrongProduct, "ブランドが一致していません", 0.90)
	}
	if res.TypeConflict {
		add(domain.RejectionWrongProduct, "商品種別が一致していません", 0.70)
	}
	if res.QtyConflict {
		add(domain.RejectionWrongProduct, "数量が一致していません", 0.80)
	}

	yTokens := matcher.Tokenize(alert.YahooTitle)
	for _, w := range standaloneWords {
		if containsToken(yTokens, matcher.NormalizeText(w)) {
			add(domain.RejectionAccessory, fmt.Sprintf("単体出品の可能性: %s", w), 0.60)
			break
		}
	}

	if alert.SellPrice > 0 {
		ratio := float64(alert.YahooPrice) / float64(alert.SellPrice)
		switch {
		case ratio < 0.20:
			add(domain.RejectionAccessory, "落札価格が販売価格に対して低すぎます", 0.70)
		case ratio > 0.85:
			add(domain.RejectionBadPrice, "仕入れ値が高く利益が出ません", 0.65)
		}
	}

	// Highest confidence first, one proposal per reason.
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	suggestions = dedupeByReason(suggestions)

	// A previously rejected pair on the same ASIN trumps everything.
	if l.hasProblemPattern(alert.AmazonASIN) {
		suggestions = append([]Suggestion{{
			Reason:     domain.RejectionWrongProduct,
			Label:      "このASINは過去に誤マッチとして却下されています",
			Confidence: 0.98,
		}}, suggestions...)
	}

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

// AnalyzeSingleRejection persists the patterns implied by one rejection and
// reloads the matcher overrides.
func (l *Learner) AnalyzeSingleRejection(alert *domain.DealAlert, reason string) error {
	switch reason {
	case domain.RejectionAccessory:
		for _, w := range l.accessoryCandidates(alert) {
			if err := l.repo.Upsert(domain.PatternAccessoryWord, w, "", 0.5); err != nil {
				return err
			}
			l.log.Info().Str("word", w).Msg("accessory word learned")
		}
	case domain.RejectionModelVariant:
		res := l.matcher.Match(alert.YahooTitle, alert.AmazonTitle)
		key := modelConflictKey(res.YahooModels, res.AmazonModels)
		if key != "" {
			if err := l.repo.Upsert(domain.PatternModelConflict, key, "", 0.7); err != nil {
				return err
			}
		}
	case domain.RejectionBadPrice:
		data := "{}"
		if alert.SellPrice > 0 {
			ratio := float64(alert.YahooPrice) / float64(alert.SellPrice)
			raw, _ := json.Marshal(map[string]float64{"ratio": ratio})
			data = string(raw)
		}
		if err := l.repo.Upsert(domain.PatternThresholdHint, "price_ratio", data, 0.6); err != nil {
			return err
		}
	case domain.RejectionNeverShow:
		key := PairKey(alert.YahooTitle, alert.AmazonTitle)
		if err := l.repo.Upsert(domain.PatternNeverShowPair, key, "", 1.0); err != nil {
			return err
		}
	}

	// Every rejection blocks the exact pair.
	pairKey := PairKey(alert.YahooAuctionID, alert.AmazonASIN)
	if err := l.repo.Upsert(domain.PatternProblemPair, pairKey, "", 0.8); err != nil {
		return err
	}

	if n, err := l.countRejectionsForASIN(alert.AmazonASIN); err == nil && n >= blockedASINThreshold {
		key := PairKey("*", alert.AmazonASIN)
		if err := l.repo.Upsert(domain.PatternBlockedASIN, key, "", 0.9); err != nil {
			return err
		}
		l.log.Info().Str("asin", alert.AmazonASIN).Int("rejections", n).Msg("asin blocked after repeated rejections")
	}

	return l.reloadOverrides()
}

// AnalyzeAllRejections is the batch pass run inside the discovery cycle. It
// adjusts the match threshold when the false-positive rate climbs, re-learns
// accessory words from historical accessory rejections, and returns the words
// newly activated this pass.
func (l *Learner) AnalyzeAllRejections() ([]string, error) {
	alerts, err := l.alerts.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}

	rejected := 0
	for _, a := range alerts {
		if a.Status == domain.AlertStatusRejected {
			rejected++
		}
	}
	if len(alerts) > 0 {
		rate := float64(rejected) / float64(len(alerts))
		var delta float64
		switch {
		case rate > 0.5 && rejected >= 5:
			delta = 0.05
		case rate > 0.3 && rejected >= 10:
			delta = 0.03
		}
		if delta > 0 {
			raw, _ := json.Marshal(map[string]float64{"delta": delta})
			if err := l.repo.Upsert(domain.PatternThresholdHint, "match_threshold", string(raw), 0.7); err != nil {
				return nil, err
			}
			l.log.Warn().Float64("rate", rate).Float64("delta", delta).Msg("false-positive rate high, raising match threshold")
		}
	}

	before, err := l.activeAccessoryWords()
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		if a.Status != domain.AlertStatusRejected || a.RejectionReason != domain.RejectionAccessory {
			continue
		}
		for _, w := range l.accessoryCandidates(a) {
			if err := l.repo.Upsert(domain.PatternAccessoryWord, w, "", 0.5); err != nil {
				return nil, err
			}
		}
	}
	after, err := l.activeAccessoryWords()
	if err != nil {
		return nil, err
	}

	var newWords []string
	for w := range after {
		if !before[w] {
			newWords = append(newWords, w)
		}
	}
	sort.Strings(newWords)

	return newWords, l.reloadOverrides()
}

// ReloadOverrides reinstalls the override snapshot from the persisted
// patterns.
func (l *Learner) ReloadOverrides() error {
	return l.reloadOverrides()
}

func (l *Learner) reloadOverrides() error {
	if l.matcher.Overrides() == nil {
		return nil
	}
	return l.repo.LoadOverrides(l.matcher.Overrides())
}

// accessoryCandidates picks the auction-title tokens absent from the
// marketplace title that are neither noise nor already accessory vocabulary.
func (l *Learner) accessoryCandidates(alert *domain.DealAlert) []string {
	yTokens := matcher.MeaningfulTokens(matcher.Tokenize(alert.YahooTitle))
	aTokens := matcher.Tokenize(alert.AmazonTitle)
	aSet := make(map[string]bool, len(aTokens))
	for _, t := range aTokens {
		aSet[t] = true
	}

	var words []string
	for _, t := range yTokens {
		if aSet[t] {
			continue
		}
		if l.matcher.ContainsAccessorySignal(t) {
			continue
		}
		if len(matcher.ExtractModelNumbers([]string{t})) > 0 {
			continue
		}
		words = append(words, t)
	}
	return words
}

func (l *Learner) activeAccessoryWords() (map[string]bool, error) {
	patterns, err := l.repo.ListByType(domain.PatternAccessoryWord)
	if err != nil {
		return nil, err
	}
	words := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		words[p.PatternKey] = true
	}
	return words, nil
}

func (l *Learner) hasProblemPattern(asin string) bool {
	patterns, err := l.repo.ListByType(domain.PatternProblemPair)
	if err != nil {
		return false
	}
	suffix := "|" + asin
	for _, p := range patterns {
		if strings.HasSuffix(p.PatternKey, suffix) {
			return true
		}
	}
	return false
}

func (l *Learner) countRejectionsForASIN(asin string) (int, error) {
	alerts, err := l.alerts.ListAll()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range alerts {
		if a.AmazonASIN == asin && a.Status == domain.AlertStatusRejected {
			n++
		}
	}
	return n, nil
}

func modelConflictKey(yModels, aModels []string) string {
	if len(yModels) == 0 || len(aModels) == 0 {
		return ""
	}
	y := append([]string(nil), yModels...)
	a := append([]string(nil), aModels...)
	sort.Strings(y)
	sort.Strings(a)
	return strings.Join(y, ",") + "|" + strings.Join(a, ",")
}

func dedupeByReason(suggestions []Suggestion) []Suggestion {
	seen := make(map[string]bool)
	out := suggestions[:0]
	for _, s := range suggestions {
		if seen[s.Reason] {
			continue
		}
		seen[s.Reason] = true
		out = append(out, s)
	}
	return out
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
