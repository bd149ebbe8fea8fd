// Package matcher decides whether an auction listing and a marketplace product
// are the same SKU. It is a pure text pipeline: normalisation, token
// canonicalisation, model-number extraction, then additive scoring.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// splitPunct is the fixed punctuation set tokens are split on, including
// full-width brackets and punctuation. Hyphens are kept so model numbers like
// WH-1000XM4 survive tokenisation.
const splitPunct = "、。・,.!?！？:;：；〜~&＆+＋/／()（）[]［］【】「」『』<>＜＞=＝*＊#＃%％@＠\"'“”‘’｜|"

// NormalizeText applies NFKC normalisation, lowercasing and katakana→hiragana
// folding, then inserts whitespace at every CJK↔Latin/digit boundary.
// Feeding an already-normalised string produces the same output.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = foldKatakana(s)
	return insertScriptBoundaries(s)
}

// foldKatakana maps katakana codepoints onto hiragana using the fixed 0x60
// block offset. The long-vowel mark ー is left intact so model numbers and
// transliterations keep their shape.
func foldKatakana(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x30A1 && r <= 0x30F6 {
			r -= 0x60
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF && r != 0x30FC: // katakana, minus long-vowel mark
		return true
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3400 && r <= 0x4DBF:
		return true
	}
	return false
}

func isLatinOrDigit(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// insertScriptBoundaries inserts a space wherever a CJK rune directly touches
// a Latin letter or digit, so "XM4ワイヤレス" tokenises as two tokens.
func insertScriptBoundaries(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			boundary := (isCJK(prev) && isLatinOrDigit(r)) || (isLatinOrDigit(prev) && isCJK(r))
			if boundary && !unicode.IsSpace(prev) && !unicode.IsSpace(r) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokenize normalises a title and splits it into canonical tokens.
// The full pipeline: normalise, split on whitespace and punctuation, split
// known brand-alias prefixes off composite tokens, canonicalise through the
// brand and synonym maps, then merge enumerated product-line pairs
// ("hero", "12") into single tokens.
func Tokenize(title string) []string {
	normalized := NormalizeText(title)

	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(splitPunct, r)
	})

	var tokens []string
	for _, f := range fields {
		for _, t := range splitBrandPrefix(f) {
			tokens = append(tokens, canonicalToken(t))
		}
	}

	return mergeProductLines(tokens)
}

// splitBrandPrefix splits a known brand alias off the front of a composite
// token ("sonywh1000xm4" → "sony", "wh1000xm4"). Aliases are tried
// longest-first. The split only applies when the remainder is non-empty and,
// for aliases shorter than 3 characters, when the remainder is all digits;
// otherwise short aliases would shred ordinary words.
func splitBrandPrefix(token string) []string {
	for _, alias := range brandAliasesByLength {
		if !strings.HasPrefix(token, alias) || len(token) == len(alias) {
			continue
		}
		rest := token[len(alias):]
		if len([]rune(alias)) < 3 && !allDigits(rest) {
			continue
		}
		return []string{alias, rest}
	}
	return []string{token}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// canonicalToken maps brand aliases and product synonyms to canonical forms.
func canonicalToken(t string) string {
	if c, ok := brandCanonical[t]; ok {
		return c
	}
	if c, ok := synonymCanonical[t]; ok {
		return c
	}
	return t
}

// mergeProductLines merges adjacent (prefix, digits) pairs for the enumerated
// product-line prefixes, so "hero 12" and "hero12" compare equal.
func mergeProductLines(tokens []string) []string {
	if len(tokens) < 2 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if i+1 < len(tokens) && productLinePrefixes[tokens[i]] && allDigits(tokens[i+1]) {
			out = append(out, tokens[i]+tokens[i+1])
			i++
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

// MeaningfulTokens filters out noise words and single characters.
func MeaningfulTokens(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if len([]rune(t)) < 2 {
			continue
		}
		if noiseWords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// jaccard computes set overlap of two token slices.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
