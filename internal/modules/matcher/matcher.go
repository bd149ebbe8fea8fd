package matcher

import (
	"regexp"
	"strconv"
)

// MatchThreshold is the base acceptance score, adjusted at runtime by the
// learned threshold delta.
const MatchThreshold = 0.40

// strictThreshold is the floor for PassesStrictCheck.
const strictThreshold = 0.55

// MatchResult is the verdict for one title pair plus diagnostic flags.
type MatchResult struct {
	Score             float64
	ModelMatch        bool
	ModelConflict     bool
	BrandMatch        bool
	BrandConflict     bool
	TypeConflict      bool
	QtyConflict       bool
	AccessoryConflict bool
	VariantMismatch   bool
	TokenOverlap      float64
	// KeepaModelMatch is set by callers comparing the analytics product's
	// model field against the auction title; it satisfies the model-evidence
	// requirement when titles alone carry no model number.
	KeepaModelMatch bool

	IsLikelyMatch bool
	// AccessoryWord is the detected accessory token, for diagnostics.
	AccessoryWord string
	YahooModels   []string
	AmazonModels  []string
}

// PassesStrictCheck applies the stricter acceptance used when gross margin
// exceeds the deep-validation cutoff.
func (r *MatchResult) PassesStrictCheck() bool {
	if !r.IsLikelyMatch {
		return false
	}
	if r.Score < strictThreshold {
		return false
	}
	return r.ModelMatch || r.KeepaModelMatch || r.TokenOverlap >= 0.40
}

// Matcher scores title pairs. It is stateless apart from the learned override
// snapshot.
type Matcher struct {
	overrides *Overrides
}

// New creates a matcher with the given override snapshot (may be nil).
func New(overrides *Overrides) *Matcher {
	return &Matcher{overrides: overrides}
}

// Overrides returns the override snapshot.
func (m *Matcher) Overrides() *Overrides {
	return m.overrides
}

// Match scores two listing titles. Deterministic and symmetric in its
// accept/reject verdict.
func (m *Matcher) Match(yahooTitle, amazonTitle string) MatchResult {
	yTokens := Tokenize(yahooTitle)
	aTokens := Tokenize(amazonTitle)
	yModels := ExtractModelNumbers(yTokens)
	aModels := ExtractModelNumbers(aTokens)

	res := MatchResult{YahooModels: yModels, AmazonModels: aModels}
	score := 0.0

	// Model numbers
	switch {
	case modelsIntersect(yModels, aModels):
		res.ModelMatch = true
		score += 0.50
	case len(yModels) > 0 && len(aModels) > 0:
		res.ModelConflict = true
		score -= 0.30
	}

	// Brands
	yBrands := brandSet(yTokens)
	aBrands := brandSet(aTokens)
	if len(yBrands) > 0 && len(aBrands) > 0 {
		if setsIntersect(yBrands, aBrands) {
			res.BrandMatch = true
			score += 0.20
		} else {
			res.BrandConflict = true
			score -= 0.10
		}
	}

	// Product-type groups
	yTypes := typeGroupSet(yTokens)
	aTypes := typeGroupSet(aTokens)
	if len(yTypes) > 0 && len(aTypes) > 0 && !setsIntersect(yTypes, aTypes) {
		res.TypeConflict = true
		score -= 0.20
	}

	// Accessory imbalance
	yAccessory := m.isAccessoryLike(yTokens, yModels)
	aAccessory := m.isAccessoryLike(aTokens, aModels)
	if yAccessory != aAccessory {
		res.AccessoryConflict = true
		if w, ok := m.firstAccessoryWord(yTokens); ok {
			res.AccessoryWord = w
		} else if w, ok := m.firstAccessoryWord(aTokens); ok {
			res.AccessoryWord = w
		}
		if m.accessoryInLead(yTokens) || m.accessoryInLead(aTokens) {
			score -= 0.60
		} else {
			score -= 0.40
		}
	}

	// Sub-model variants: same base model but different variant words is a
	// different SKU ("v8 slim" vs "v8 absolute").
	if res.ModelMatch && variantMismatch(yTokens, aTokens) {
		res.VariantMismatch = true
		score -= 0.50 // reverse the model bonus
		score -= 0.50
	}

	// Quantities
	if ExtractQuantity(yahooTitle) != ExtractQuantity(amazonTitle) {
		res.QtyConflict = true
		score -= 0.40
	}

	// Token overlap
	res.TokenOverlap = jaccard(MeaningfulTokens(yTokens), MeaningfulTokens(aTokens))
	score += 0.30 * res.TokenOverlap

	res.Score = clamp01(score)
	res.IsLikelyMatch = m.verdict(&res)
	return res
}

// verdict applies the hard-reject rules and the (adjusted) threshold.
func (m *Matcher) verdict(r *MatchResult) bool {
	if r.QtyConflict || r.BrandConflict || r.ModelConflict || r.AccessoryConflict {
		return false
	}
	// Model evidence is required: some model number on either side, or a
	// caller-supplied analytics model match.
	if len(r.YahooModels) == 0 && len(r.AmazonModels) == 0 && !r.KeepaModelMatch {
		return false
	}
	threshold := MatchThreshold
	if m.overrides != nil {
		threshold += m.overrides.ThresholdDelta()
	}
	return r.Score >= threshold
}

// Revalidate recomputes the verdict after a caller mutates KeepaModelMatch.
func (m *Matcher) Revalidate(r *MatchResult) {
	r.IsLikelyMatch = m.verdict(r)
}

func brandSet(tokens []string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokens {
		if knownBrands[t] {
			set[t] = true
		}
	}
	return set
}

func typeGroupSet(tokens []string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokens {
		if g, ok := typeGroups[t]; ok {
			set[g] = true
		}
	}
	return set
}

func setsIntersect(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func variantMismatch(yTokens, aTokens []string) bool {
	yv := variantSet(yTokens)
	av := variantSet(aTokens)
	if len(yv) == 0 && len(av) == 0 {
		return false
	}
	if len(yv) == 0 || len(av) == 0 {
		return true
	}
	return !setsIntersect(yv, av)
}

func variantSet(tokens []string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokens {
		if variantWords[t] {
			set[t] = true
		}
	}
	return set
}

// quantityPatterns reduce a title to a unit count. They run over the
// normalised text because boundary insertion separates digits from their
// counters. Japanese counters first, then English pack forms, then bare
// multipliers.
var quantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*(?:個|枚|点|袋|箱)\s*(?:せっと|入り?|いり)?`),
	// 本/台 need a trailing boundary so 本体 (main unit) never reads as a counter.
	regexp.MustCompile(`(\d+)\s*[本台](?:せっと|入り|いり)?(?:\s|$)`),
	regexp.MustCompile(`(\d+)\s*せっと`),
	regexp.MustCompile(`(\d+)\s*(?:pcs|packs?|pieces|count|ct)(?:\s|$)`),
	regexp.MustCompile(`[x×]\s*(\d+)(?:\s|$)`),
}

// ExtractQuantity reduces a title to a small positive integer, defaulting
// to 1.
func ExtractQuantity(title string) int {
	text := NormalizeText(title)
	for _, p := range quantityPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n < 1000 {
				return n
			}
		}
	}
	return 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
