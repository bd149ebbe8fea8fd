package matcher

import "strings"

// isAccessoryWord reports whether a token is accessory vocabulary: an exact
// member of the accessory set (built-in or learned), a suffix of one of those
// words, or a prefix of one whose remainder ends in a confirming suffix
// ("フィルター用" stays an accessory word, "filterhouse" does not).
func (m *Matcher) isAccessoryWord(token string) bool {
	if token == "" {
		return false
	}
	if accessoryWords[token] {
		return true
	}
	if m.overrides != nil && m.overrides.IsAccessoryWord(token) {
		return true
	}
	for w := range accessoryWords {
		if w == token {
			continue
		}
		if strings.HasSuffix(w, token) && len(token) >= 2 {
			return true
		}
		if strings.HasPrefix(token, w) {
			rest := token[len(w):]
			for _, suf := range accessoryConfirmSuffixes {
				if strings.HasSuffix(rest, NormalizeText(suf)) {
					return true
				}
			}
		}
	}
	return false
}

// firstAccessoryWord returns the first accessory token in a token list, if any.
func (m *Matcher) firstAccessoryWord(tokens []string) (string, bool) {
	for _, t := range tokens {
		if m.isAccessoryWord(t) {
			return t, true
		}
	}
	return "", false
}

// isAccessoryLike reports whether a whole title looks like a part/accessory
// rather than a main product: it carries an accessory word, lists two or more
// model families (a compatibility list), or contains a 用-marked token
// ("for / compatible with").
func (m *Matcher) isAccessoryLike(tokens []string, models []string) bool {
	if _, ok := m.firstAccessoryWord(tokens); ok {
		return true
	}
	if CountModelFamilies(models) >= 2 {
		return true
	}
	for _, t := range tokens {
		if strings.HasPrefix(t, "用") || strings.HasSuffix(t, "用") {
			return true
		}
	}
	return false
}

// ContainsAccessorySignal reports whether free text (a title or an auction
// description) carries any accessory vocabulary. Used by the deep validation
// step on high-margin deals.
func (m *Matcher) ContainsAccessorySignal(text string) bool {
	_, ok := m.firstAccessoryWord(Tokenize(text))
	return ok
}

// accessoryInLead reports whether an accessory word appears among the first
// five meaningful tokens; accessory words in the lead are a stronger signal
// than buried ones.
func (m *Matcher) accessoryInLead(tokens []string) bool {
	meaningful := MeaningfulTokens(tokens)
	limit := 5
	if len(meaningful) < limit {
		limit = len(meaningful)
	}
	for _, t := range meaningful[:limit] {
		if m.isAccessoryWord(t) {
			return true
		}
	}
	return false
}
