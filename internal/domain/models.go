// Package domain defines the persisted entities shared across modules.
package domain

import "time"

// Item status values
const (
	ItemStatusActive        = "active"
	ItemStatusEndedNoWinner = "ended_no_winner"
	ItemStatusEndedSold     = "ended_sold"
)

// Amazon listing status values
const (
	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
	ListingStatusError    = "error"
	ListingStatusDelisted = "delisted"
)

// Amazon condition values
const (
	ConditionUsedLikeNew    = "used_like_new"
	ConditionUsedVeryGood   = "used_very_good"
	ConditionUsedGood       = "used_good"
	ConditionUsedAcceptable = "used_acceptable"
)

// StatusHistory change types
const (
	ChangeInitial          = "initial"
	ChangeStatus           = "status_change"
	ChangePrice            = "price_change"
	ChangeBid              = "bid_change"
	ChangeAmazonListing    = "amazon_listing"
	ChangeAmazonDelist     = "amazon_delist"
	ChangeAmazonDelistAuto = "amazon_delist_auto"
	ChangeAmazonError      = "amazon_error"
)

// DealAlert status values
const (
	AlertStatusActive   = "active"
	AlertStatusRejected = "rejected"
	AlertStatusListed   = "listed"
	AlertStatusExpired  = "expired"
)

// DealAlert rejection reasons
const (
	RejectionWrongProduct = "wrong_product"
	RejectionAccessory    = "accessory"
	RejectionModelVariant = "model_variant"
	RejectionBadPrice     = "bad_price"
	RejectionNeverShow    = "never_show"
	RejectionOther        = "other"
)

// KeywordCandidate status values
const (
	CandidateStatusPending   = "pending"
	CandidateStatusValidated = "validated"
	CandidateStatusAutoAdded = "auto_added"
	CandidateStatusApproved  = "approved"
	CandidateStatusRejected  = "rejected"
)

// Discovery cycle status values
const (
	DiscoveryStatusRunning   = "running"
	DiscoveryStatusCompleted = "completed"
	DiscoveryStatusError     = "error"
)

// RejectionPattern types
const (
	PatternAccessoryWord = "accessory_word"
	PatternProblemPair   = "problem_pair"
	PatternModelConflict = "model_conflict"
	PatternBlockedASIN   = "blocked_asin"
	PatternThresholdHint = "threshold_hint"
	PatternNeverShowPair = "never_show_pair"
)

// MonitoredItem is one tracked auction, optionally linked to an Amazon offer.
type MonitoredItem struct {
	ID                     int64
	AuctionID              string
	Title                  string
	URL                    string
	ImageURL               string
	CurrentPrice           int
	StartPrice             int
	BuyNowPrice            int
	WinPrice               int
	StartTime              *time.Time
	EndTime                *time.Time
	BidCount               int
	Status                 string
	CheckIntervalSeconds   int
	AutoAdjustInterval     bool
	IsMonitoringActive     bool
	LastCheckedAt          *time.Time
	AmazonASIN             string
	AmazonSKU              string
	AmazonCondition        string
	AmazonListingStatus    string
	AmazonPrice            int
	EstimatedWinPrice      int
	ShippingCost           int
	ForwardingCost         int
	AmazonFeePct           float64
	AmazonMarginPct        float64
	AmazonLeadTimeDays     int
	AmazonShippingPattern  string
	AmazonConditionNote    string
	AmazonLastSyncedAt     *time.Time
	SellerCentralChecklist string // opaque JSON blob
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// StatusHistory is an append-only audit entry for one MonitoredItem.
type StatusHistory struct {
	ID          int64
	ItemID      int64
	ChangeType  string
	OldStatus   string
	NewStatus   string
	OldPrice    int
	NewPrice    int
	OldBidCount int
	NewBidCount int
	RecordedAt  time.Time
}

// NotificationLog records one notifier dispatch for an item.
type NotificationLog struct {
	ID        int64
	ItemID    int64
	Channel   string
	EventType string
	Message   string
	Success   bool
	SentAt    time.Time
}

// WatchedKeyword is a search term under observation by the deal scanner.
type WatchedKeyword struct {
	ID                 int64
	Keyword            string
	IsActive           bool
	LastScannedAt      *time.Time
	Notes              string
	Source             string // manual, ai_<strategy>, ai_seed
	ParentKeywordID    *int64
	PerformanceScore   float64
	TotalScans         int
	TotalDealsFound    int
	TotalGrossProfit   int
	ScansSinceLastDeal int
	Confidence         float64
	AutoDeactivatedAt  *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsManual reports whether the keyword was entered by the operator.
// Manual keywords are never auto-deactivated, only paused when dormant.
func (k *WatchedKeyword) IsManual() bool {
	return k.Source == "manual"
}

// DealAlert is a scored (auction, Amazon product) pair above the margin floor.
type DealAlert struct {
	ID              int64
	KeywordID       *int64
	YahooAuctionID  string
	YahooTitle      string
	YahooURL        string
	YahooPrice      int
	YahooShipping   int
	AmazonASIN      string
	AmazonTitle     string
	AmazonURL       string
	SellPrice       int
	AmazonFeePct    float64
	ForwardingCost  int
	GrossProfit     int
	GrossMarginPct  float64
	SalesRank       int
	SellsWell       bool
	MatchScore      float64
	Status          string
	RejectionReason string
	RejectionNote   string
	RejectedAt      *time.Time
	NotifiedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// KeywordCandidate is a generated keyword proposal awaiting validation.
type KeywordCandidate struct {
	ID               int64
	Keyword          string
	Strategy         string
	Confidence       float64
	ParentKeywordID  *int64
	Reasoning        string
	Status           string
	ValidationResult string // opaque JSON
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// DiscoveryLog summarises one discovery cycle.
type DiscoveryLog struct {
	ID                  int64
	StartedAt           time.Time
	FinishedAt          *time.Time
	Status              string
	CandidatesGenerated int
	CandidatesValidated int
	KeywordsAdded       int
	KeywordsDeactivated int
	KeepaTokensUsed     int
	StrategyBreakdown   string // opaque JSON
	ErrorMessage        string
}

// RejectionPattern is a learned matcher override.
// Upsert semantics: on hit, hit_count += 1 and confidence += 0.1 capped at 1.0.
type RejectionPattern struct {
	ID          int64
	PatternType string
	PatternKey  string
	PatternData string // opaque JSON
	HitCount    int
	Confidence  float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConditionTemplate maps a condition enum to operator-maintained template text.
type ConditionTemplate struct {
	ID           int64
	ConditionKey string
	TemplateText string
}

// ListingPreset stores operator-saved listing defaults keyed by ASIN.
type ListingPreset struct {
	ID              int64
	ASIN            string
	ConditionKey    string
	ConditionNote   string
	LeadTimeDays    int
	ShippingPattern string
	MarginPct       float64
	UpdatedAt       time.Time
}
