// Package config provides configuration management functionality.
// Configuration is loaded from environment variables, with an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string // SQLite database path
	LogLevel    string
	Port        int
	DevMode     bool
	APIKey      string // Optional API key protecting /api/* routes

	Scraper   ScraperConfig
	Keepa     KeepaConfig
	SPAPI     SPAPIConfig
	Webhook   WebhookConfig
	Monitor   MonitorConfig
	Deal      DealConfig
	Discovery DiscoveryConfig
	LLM       LLMConfig
}

// ScraperConfig holds auction-site scraper configuration
type ScraperConfig struct {
	UserAgent      string
	Timeout        time.Duration
	BrowserEnabled bool // Fall back to a real browser when the plain fetch is blocked
	CacheTTL       time.Duration
}

// KeepaConfig holds analytics provider configuration
type KeepaConfig struct {
	APIKey  string
	Domain  int // Marketplace domain id (5 = amazon.co.jp)
	Timeout time.Duration
}

// SPAPIConfig holds marketplace SP-API credentials and settings
type SPAPIConfig struct {
	RefreshToken  string
	ClientID      string
	ClientSecret  string
	SellerID      string
	MarketplaceID string
	Endpoint      string
	Timeout       time.Duration
}

// WebhookConfig holds notification webhook settings
type WebhookConfig struct {
	URL     string
	Type    string // discord, slack, line
	Timeout time.Duration
}

// MonitorConfig holds auction monitor loop settings
type MonitorConfig struct {
	MinCheckInterval     time.Duration // Floor for per-item polling intervals
	DefaultCheckInterval time.Duration
	OrderInterval        time.Duration
	ListingSyncInterval  time.Duration
	AlertCleanupInterval time.Duration
}

// DealConfig holds deal scanner thresholds and budgets
type DealConfig struct {
	ScanInterval                  time.Duration
	ScanMaxPages                  int
	MinGrossMarginPct             float64
	MaxGrossMarginPct             float64
	MinGrossProfit                int
	MinPriceForKeepaSearch        int
	MaxKeepaSearchesPerKeyword    int
	DeepValidationMarginThreshold float64
	DeepValidationEnabled         bool
	DefaultFeePct                 float64
	DefaultForwardingCost         int
	SystemFee                     int
	GoodRankThreshold             int
	SeriesExpansionMinProfit      int
}

// DiscoveryConfig holds AI keyword discovery settings
type DiscoveryConfig struct {
	Interval            time.Duration
	MinDeals            int
	TokenBudget         int
	AutoAddThreshold    float64
	MaxAIKeywords       int
	DeactivationScans   int
	DeactivationScore   float64
	SuggestEnabled      bool
	DemandFinderEnabled bool
	DemandRankDrops     int
	DemandMinUsedPrice  int
	DemandPerPage       int
	DemandMaxResults    int
}

// LLMConfig holds the optional chat-completion keyword strategy settings
type LLMConfig struct {
	APIKey string
	Model  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dbURL := getEnv("DATABASE_URL", "data/resell.db")
	if err := ensureParentDir(dbURL); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: dbURL,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvAsInt("PORT", 8080),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		APIKey:      getEnv("API_KEY", ""),
		Scraper: ScraperConfig{
			UserAgent:      getEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
			Timeout:        getEnvAsDuration("SCRAPER_TIMEOUT", 30*time.Second),
			BrowserEnabled: getEnvAsBool("SCRAPER_BROWSER_FALLBACK", false),
			CacheTTL:       getEnvAsDuration("SCRAPER_CACHE_TTL", 30*time.Second),
		},
		Keepa: KeepaConfig{
			APIKey:  getEnv("KEEPA_API_KEY", ""),
			Domain:  getEnvAsInt("KEEPA_DOMAIN", 5),
			Timeout: getEnvAsDuration("KEEPA_TIMEOUT", 30*time.Second),
		},
		SPAPI: SPAPIConfig{
			RefreshToken:  getEnv("SP_API_REFRESH_TOKEN", ""),
			ClientID:      getEnv("SP_API_CLIENT_ID", ""),
			ClientSecret:  getEnv("SP_API_CLIENT_SECRET", ""),
			SellerID:      getEnv("SP_API_SELLER_ID", ""),
			MarketplaceID: getEnv("SP_API_MARKETPLACE_ID", "A1VC38T7YXB528"),
			Endpoint:      getEnv("SP_API_ENDPOINT", "https://sellingpartnerapi-fe.amazon.com"),
			Timeout:       getEnvAsDuration("SP_API_TIMEOUT", 30*time.Second),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("WEBHOOK_URL", ""),
			Type:    getEnv("WEBHOOK_TYPE", "discord"),
			Timeout: getEnvAsDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			MinCheckInterval:     getEnvAsDuration("MONITOR_MIN_CHECK_INTERVAL", 30*time.Second),
			DefaultCheckInterval: getEnvAsDuration("MONITOR_DEFAULT_CHECK_INTERVAL", 300*time.Second),
			OrderInterval:        getEnvAsDuration("ORDER_MONITOR_INTERVAL", 900*time.Second),
			ListingSyncInterval:  getEnvAsDuration("LISTING_SYNC_INTERVAL", 3600*time.Second),
			AlertCleanupInterval: getEnvAsDuration("ALERT_CLEANUP_INTERVAL", 1800*time.Second),
		},
		Deal: DealConfig{
			ScanInterval:                  getEnvAsDuration("DEAL_SCAN_INTERVAL", 600*time.Second),
			ScanMaxPages:                  getEnvAsInt("DEAL_SCAN_MAX_PAGES", 2),
			MinGrossMarginPct:             getEnvAsFloat("DEAL_MIN_GROSS_MARGIN_PCT", 25.0),
			MaxGrossMarginPct:             getEnvAsFloat("DEAL_MAX_GROSS_MARGIN_PCT", 80.0),
			MinGrossProfit:                getEnvAsInt("DEAL_MIN_GROSS_PROFIT", 2000),
			MinPriceForKeepaSearch:        getEnvAsInt("DEAL_MIN_PRICE_FOR_KEEPA_SEARCH", 1500),
			MaxKeepaSearchesPerKeyword:    getEnvAsInt("DEAL_MAX_KEEPA_SEARCHES_PER_KEYWORD", 3),
			DeepValidationMarginThreshold: getEnvAsFloat("DEAL_DEEP_VALIDATION_MARGIN_THRESHOLD", 40.0),
			DeepValidationEnabled:         getEnvAsBool("DEAL_DEEP_VALIDATION_ENABLED", false),
			DefaultFeePct:                 getEnvAsFloat("DEAL_DEFAULT_FEE_PCT", 10.0),
			DefaultForwardingCost:         getEnvAsInt("DEAL_DEFAULT_FORWARDING_COST", 960),
			SystemFee:                     getEnvAsInt("DEAL_SYSTEM_FEE", 100),
			GoodRankThreshold:             getEnvAsInt("DEAL_GOOD_RANK_THRESHOLD", 50000),
			SeriesExpansionMinProfit:      getEnvAsInt("SERIES_EXPANSION_MIN_PROFIT", 3000),
		},
		Discovery: DiscoveryConfig{
			Interval:            getEnvAsDuration("DISCOVERY_INTERVAL", 3600*time.Second),
			MinDeals:            getEnvAsInt("DISCOVERY_MIN_DEALS", 5),
			TokenBudget:         getEnvAsInt("DISCOVERY_TOKEN_BUDGET", 30),
			AutoAddThreshold:    getEnvAsFloat("DISCOVERY_AUTO_ADD_THRESHOLD", 0.75),
			MaxAIKeywords:       getEnvAsInt("DISCOVERY_MAX_AI_KEYWORDS", 50),
			DeactivationScans:   getEnvAsInt("DISCOVERY_DEACTIVATION_SCANS", 20),
			DeactivationScore:   getEnvAsFloat("DISCOVERY_DEACTIVATION_THRESHOLD", 0.1),
			SuggestEnabled:      getEnvAsBool("DISCOVERY_SUGGEST_ENABLED", false),
			DemandFinderEnabled: getEnvAsBool("DEMAND_FINDER_ENABLED", false),
			DemandRankDrops:     getEnvAsInt("DEMAND_FINDER_RANK_DROPS_30", 30),
			DemandMinUsedPrice:  getEnvAsInt("DEMAND_FINDER_MIN_USED_PRICE", 3000),
			DemandPerPage:       getEnvAsInt("DEMAND_FINDER_PER_PAGE", 50),
			DemandMaxResults:    getEnvAsInt("DEMAND_FINDER_MAX_RESULTS", 50),
		},
		LLM: LLMConfig{
			APIKey: getEnv("LLM_API_KEY", ""),
			Model:  getEnv("LLM_MODEL", "claude-3-5-haiku-latest"),
		},
	}

	return cfg, nil
}

func ensureParentDir(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration reads a duration either as plain seconds ("600") or as a
// Go duration string ("10m").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
