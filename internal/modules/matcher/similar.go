package matcher

import "strings"

// DefaultSimilarityThreshold is the token-Jaccard cutoff for keyword dedup.
const DefaultSimilarityThreshold = 0.6

// KeywordsAreSimilar reports whether two search keywords express the same
// search intent. Different brands, or disjoint model-number sets on both
// sides, always mean different intent. Otherwise similarity is token Jaccard,
// with a character-bigram fallback for short keywords so "sony wh1000xm4" and
// "sonywh-1000xm4" still compare equal.
func KeywordsAreSimilar(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	aTokens := Tokenize(a)
	bTokens := Tokenize(b)

	aBrands := brandSet(aTokens)
	bBrands := brandSet(bTokens)
	if len(aBrands) > 0 && len(bBrands) > 0 && !setsIntersect(aBrands, bBrands) {
		return false
	}

	aModels := ExtractModelNumbers(aTokens)
	bModels := ExtractModelNumbers(bTokens)
	if len(aModels) > 0 && len(bModels) > 0 && !modelsIntersect(aModels, bModels) {
		return false
	}

	if jaccard(aTokens, bTokens) >= threshold {
		return true
	}

	if len(aTokens) <= 4 && len(bTokens) <= 4 {
		aCompact := strings.ReplaceAll(NormalizeText(a), " ", "")
		bCompact := strings.ReplaceAll(NormalizeText(b), " ", "")
		if bigramJaccard(aCompact, bCompact) >= 0.6 {
			return true
		}
	}

	return false
}

func bigramJaccard(a, b string) float64 {
	aBigrams := bigrams(a)
	bBigrams := bigrams(b)
	if len(aBigrams) == 0 || len(bBigrams) == 0 {
		return 0
	}
	inter := 0
	for g := range aBigrams {
		if bBigrams[g] {
			inter++
		}
	}
	union := len(aBigrams) + len(bBigrams) - inter
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]bool {
	runes := []rune(s)
	set := make(map[string]bool)
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = true
	}
	return set
}
