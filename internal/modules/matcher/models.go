package matcher

import (
	"regexp"
	"strconv"
	"strings"
)

// specUnitPattern rejects spec-unit tokens (capacities, frequencies, sizes)
// that look like model numbers but are not.
var specUnitPattern = regexp.MustCompile(`^\d+(mah|mhz|ghz|gb|tb|mb|hz|mm|cm|kg|mp|db|lm|ch|k|w|v|a)$`)

// ExtractModelNumbers returns the model-number tokens of a tokenised title.
// A model number is a token that, after stripping hyphens and the long-vowel
// mark, is at least 2 characters and contains both a letter and a digit,
// excluding spec-unit forms like "5000mah".
func ExtractModelNumbers(tokens []string) []string {
	var models []string
	seen := make(map[string]bool)
	for _, t := range tokens {
		m := stripModelToken(t)
		if len(m) < 2 {
			continue
		}
		if !hasLetterAndDigit(m) {
			continue
		}
		if specUnitPattern.MatchString(m) {
			continue
		}
		if !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}
	return models
}

func stripModelToken(t string) string {
	t = strings.ReplaceAll(t, "-", "")
	t = strings.ReplaceAll(t, "ー", "")
	return t
}

func hasLetterAndDigit(s string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}

// modelsIntersect reports whether two model-number sets share a member, either
// exactly or as a colour-suffix pair: one model being a prefix of the other
// with a purely alphabetic suffix of at least 2 characters ("wf1000xm4" vs
// "wf1000xm4sm").
func modelsIntersect(a, b []string) bool {
	for _, ma := range a {
		for _, mb := range b {
			if ma == mb {
				return true
			}
			if colorSuffixMatch(ma, mb) || colorSuffixMatch(mb, ma) {
				return true
			}
		}
	}
	return false
}

func colorSuffixMatch(base, full string) bool {
	if !strings.HasPrefix(full, base) || len(full) == len(base) {
		return false
	}
	suffix := full[len(base):]
	if len(suffix) < 2 {
		return false
	}
	for _, r := range suffix {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ModelsIntersect reports whether two model-number sets name a common product,
// treating a purely alphabetic colour suffix as the same model.
func ModelsIntersect(a, b []string) bool {
	return modelsIntersect(a, b)
}

// seriesPattern decomposes a simple model number into letter prefix, numeric
// core and letter suffix; anything more structured is not series material.
var seriesPattern = regexp.MustCompile(`^([a-z]+)(\d+)([a-z]*)$`)

// SeriesSiblings guesses neighbouring models of the same product line: hero12
// yields hero10, hero11, hero13, hero14. The numbering step is inferred from
// the number's shape (round hundreds step by 100, round tens by 10, the rest
// by 1). Non-positive neighbours are skipped. Returns nil for model numbers
// that do not decompose.
func SeriesSiblings(model string) []string {
	m := seriesPattern.FindStringSubmatch(stripModelToken(model))
	if m == nil {
		return nil
	}
	prefix, suffix := m[1], m[3]
	num, err := strconv.Atoi(m[2])
	if err != nil || num <= 0 {
		return nil
	}

	step := 1
	switch {
	case num >= 100 && num%100 == 0:
		step = 100
	case num >= 10 && num%10 == 0:
		step = 10
	}

	var siblings []string
	for _, offset := range []int{-2, -1, 1, 2} {
		n := num + offset*step
		if n <= 0 {
			continue
		}
		siblings = append(siblings, prefix+strconv.Itoa(n)+suffix)
	}
	return siblings
}

// letterPrefix returns the leading alphabetic run of a model number.
var letterPrefixPattern = regexp.MustCompile(`^[a-z]+`)

func letterPrefix(model string) string {
	return letterPrefixPattern.FindString(model)
}

// CountModelFamilies counts distinct letter-prefix groups among model numbers.
// Titles listing many families are usually "universal accessory" compatibility
// lists. Exactly one marketing-series prefix plus its aliased model-code
// prefix (one model each) counts as a single family.
func CountModelFamilies(models []string) int {
	prefixCounts := make(map[string]int)
	for _, m := range models {
		p := letterPrefix(m)
		if p == "" {
			continue
		}
		prefixCounts[p]++
	}
	if len(prefixCounts) == 2 {
		for _, pair := range seriesAliasPairs {
			if prefixCounts[pair[0]] == 1 && prefixCounts[pair[1]] == 1 {
				return 1
			}
		}
	}
	return len(prefixCounts)
}
