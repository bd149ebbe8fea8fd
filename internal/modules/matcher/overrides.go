package matcher

import (
	"sync"
)

// Overrides is the mutable snapshot of learned matcher adjustments, reloaded
// from the rejection_patterns table after every rejection. Readers take the
// lock per lookup; writers replace the whole snapshot.
type Overrides struct {
	mu                sync.RWMutex
	accessoryWords    map[string]bool
	blockedPairs      map[string]bool // auctionID + "|" + asin
	blockedASINs      map[string]bool // blocked regardless of auction
	blockedTitlePairs map[string]bool // yahooTitle + "|" + amazonTitle
	thresholdDelta    float64
}

// NewOverrides creates an empty override snapshot.
func NewOverrides() *Overrides {
	return &Overrides{
		accessoryWords:    make(map[string]bool),
		blockedPairs:      make(map[string]bool),
		blockedASINs:      make(map[string]bool),
		blockedTitlePairs: make(map[string]bool),
	}
}

// Replace swaps in a freshly loaded snapshot. A blocked pair whose auction
// side is "*" blocks the ASIN for every auction.
func (o *Overrides) Replace(accessoryWords []string, blockedPairs [][2]string, blockedTitlePairs [][2]string, thresholdDelta float64) {
	aw := make(map[string]bool, len(accessoryWords))
	for _, w := range accessoryWords {
		aw[NormalizeText(w)] = true
	}
	bp := make(map[string]bool, len(blockedPairs))
	ba := make(map[string]bool)
	for _, p := range blockedPairs {
		if p[0] == "*" {
			ba[p[1]] = true
			continue
		}
		bp[p[0]+"|"+p[1]] = true
	}
	btp := make(map[string]bool, len(blockedTitlePairs))
	for _, p := range blockedTitlePairs {
		btp[p[0]+"|"+p[1]] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.accessoryWords = aw
	o.blockedPairs = bp
	o.blockedASINs = ba
	o.blockedTitlePairs = btp
	o.thresholdDelta = thresholdDelta
}

// IsAccessoryWord reports whether a learned accessory word matches the token.
func (o *Overrides) IsAccessoryWord(token string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.accessoryWords[token]
}

// IsBlockedPair reports whether the (auction, ASIN) pair was rejected before,
// or the ASIN itself is blocked for every auction.
func (o *Overrides) IsBlockedPair(auctionID, asin string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.blockedASINs[asin] || o.blockedPairs[auctionID+"|"+asin]
}

// IsBlockedTitlePair reports whether the exact title pair was rejected before.
func (o *Overrides) IsBlockedTitlePair(yahooTitle, amazonTitle string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.blockedTitlePairs[yahooTitle+"|"+amazonTitle]
}

// ThresholdDelta returns the learned match-threshold adjustment.
func (o *Overrides) ThresholdDelta() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.thresholdDelta
}
