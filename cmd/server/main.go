// Package main is the entry point for the auction-to-marketplace arbitrage
// engine: it wires the scraper, analytics, marketplace and discovery modules
// onto one SQLite database, starts the background jobs and serves the
// operator API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/amazon"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/keepa"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/spapi"
	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/yahoo"
	"github.com/rinodehi1978/resell-trap-sub000/internal/config"
	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/deals"
	dealshandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/deals/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/discovery"
	discoveryhandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/discovery/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	keywordhandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/listings"
	listinghandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/listings/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/monitor"
	monitorhandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/monitor/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/rejections"
	rejectionhandlers "github.com/rinodehi1978/resell-trap-sub000/internal/modules/rejections/handlers"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
	"github.com/rinodehi1978/resell-trap-sub000/internal/scheduler"
	"github.com/rinodehi1978/resell-trap-sub000/internal/server"
	"github.com/rinodehi1978/resell-trap-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting arbitrage engine")

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabaseURL).Msg("failed to open database")
	}
	defer db.Close()
	if err := database.Migrate(db.Conn(), log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	conn := db.Conn()

	// Repositories.
	itemRepo := monitor.NewRepository(conn)
	alertRepo := deals.NewRepository(conn)
	keywordRepo := keywords.NewRepository(conn)
	discoveryRepo := discovery.NewRepository(conn)
	rejectionRepo := rejections.NewRepository(conn)
	listingRepo := listings.NewRepository(conn)

	// Matcher with persisted overrides.
	overrides := matcher.NewOverrides()
	if err := rejectionRepo.LoadOverrides(overrides); err != nil {
		log.Warn().Err(err).Msg("failed to load matcher overrides, starting without")
	}
	titleMatcher := matcher.New(overrides)

	// External clients.
	yahooClient := yahoo.NewClient(yahoo.Config{
		UserAgent:      cfg.Scraper.UserAgent,
		Timeout:        cfg.Scraper.Timeout,
		BrowserEnabled: cfg.Scraper.BrowserEnabled,
		CacheTTL:       cfg.Scraper.CacheTTL,
	}, log)
	keepaClient := keepa.NewClient(cfg.Keepa.APIKey, cfg.Keepa.Domain, cfg.Keepa.Timeout, log)
	spapiClient := spapi.NewClient(spapi.Config{
		RefreshToken:  cfg.SPAPI.RefreshToken,
		ClientID:      cfg.SPAPI.ClientID,
		ClientSecret:  cfg.SPAPI.ClientSecret,
		SellerID:      cfg.SPAPI.SellerID,
		MarketplaceID: cfg.SPAPI.MarketplaceID,
		Endpoint:      cfg.SPAPI.Endpoint,
		Timeout:       cfg.SPAPI.Timeout,
	}, log)
	webhook := notify.NewSender(cfg.Webhook.URL, cfg.Webhook.Type, cfg.Webhook.Timeout, log)

	// Monitor loop and its notifiers.
	monitorSvc := monitor.NewService(itemRepo, yahooClient, alertRepo, cfg.Monitor.MinCheckInterval, log)
	monitorSvc.AddNotifier(monitor.NewAmazonNotifier(itemRepo, spapiClient, cfg.SPAPI.SellerID, log))
	monitorSvc.AddNotifier(monitor.NewWebhookNotifier(itemRepo, webhook, log))

	// Rejection learning.
	learner := rejections.NewLearner(rejectionRepo, alertRepo, titleMatcher, log)

	// Deal scanning and alert upkeep.
	scanner := deals.NewScanner(alertRepo, keywordRepo, discoveryRepo, yahooClient, keepaClient, spapiClient, titleMatcher, webhook, cfg.Deal, log)
	cleaner := deals.NewCleaner(alertRepo, yahooClient, itemRepo, log)

	// Keyword discovery.
	analyzer := discovery.NewAnalyzer(alertRepo, keywordRepo, log)
	generator := discovery.NewGenerator(log)
	validator := discovery.NewValidator(yahooClient, keepaClient, titleMatcher, discovery.ValidatorConfig{
		MinGrossMarginPct: cfg.Deal.MinGrossMarginPct,
		MinGrossProfit:    cfg.Deal.MinGrossProfit,
		DefaultFeePct:     cfg.Deal.DefaultFeePct,
		ForwardingCost:    cfg.Deal.DefaultForwardingCost,
		SystemFee:         cfg.Deal.SystemFee,
		GoodRankThreshold: cfg.Deal.GoodRankThreshold,
	}, log)
	engine := discovery.NewEngine(discoveryRepo, keywordRepo, analyzer, generator, validator, discovery.EngineConfig{
		MinDeals:            cfg.Discovery.MinDeals,
		TokenBudget:         cfg.Discovery.TokenBudget,
		AutoAddThreshold:    cfg.Discovery.AutoAddThreshold,
		MaxAIKeywords:       cfg.Discovery.MaxAIKeywords,
		DeactivationScans:   cfg.Discovery.DeactivationScans,
		DeactivationScore:   cfg.Discovery.DeactivationScore,
		DemandFinderEnabled: cfg.Discovery.DemandFinderEnabled,
		DemandRankDrops:     cfg.Discovery.DemandRankDrops,
		DemandMinUsedPrice:  cfg.Discovery.DemandMinUsedPrice,
		DemandPerPage:       cfg.Discovery.DemandPerPage,
		DemandMaxResults:    cfg.Discovery.DemandMaxResults,
	}, log)
	engine.SetDemandSource(keepaClient)
	engine.SetLearner(learner)
	if cfg.Discovery.SuggestEnabled {
		suggestClient := amazon.NewSuggestClient(cfg.Scraper.Timeout, log)
		engine.SetSuggester(discovery.NewSuggester(suggestClient, yahooClient, log))
	}
	if llm := discovery.NewLLMStrategy(cfg.LLM.APIKey, cfg.LLM.Model, log); llm != nil {
		engine.SetLLM(llm)
	}

	// Marketplace reconciliation.
	lister := listings.NewLister(listingRepo, itemRepo, alertRepo, spapiClient, cfg.SPAPI.SellerID, log)
	syncChecker := listings.NewSyncChecker(itemRepo, spapiClient, cfg.SPAPI.SellerID, log)
	orderMonitor := listings.NewOrderMonitor(spapiClient, webhook, log)

	// Background jobs.
	sched := scheduler.New(log)
	jobs := []scheduler.Job{
		{Name: "monitor-tick", Interval: cfg.Monitor.MinCheckInterval, Run: monitorSvc.Tick},
		{Name: "deal-scan", Interval: cfg.Deal.ScanInterval, Run: scanner.Scan},
		{Name: "alert-cleanup", Interval: cfg.Monitor.AlertCleanupInterval, Run: cleaner.Run},
		{Name: "discovery-cycle", Interval: cfg.Discovery.Interval, Run: engine.RunCycle},
		{Name: "listing-sync", Interval: cfg.Monitor.ListingSyncInterval, Run: syncChecker.Run},
		{Name: "order-monitor", Interval: cfg.Monitor.OrderInterval, Run: orderMonitor.Run},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("failed to register job")
		}
	}

	// HTTP surface.
	srv := server.New(server.Config{
		Log:    log,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		Handlers: []server.RouteRegistrar{
			monitorhandlers.NewHandler(itemRepo, monitorSvc, yahooClient, log),
			dealshandlers.NewHandler(alertRepo, learner, lister, log),
			keywordhandlers.NewHandler(keywordRepo, log),
			discoveryhandlers.NewHandler(discoveryRepo, keywordRepo, engine, log),
			rejectionhandlers.NewHandler(rejectionRepo, learner, log),
			listinghandlers.NewHandler(listingRepo, log),
		},
		System: server.NewSystemHandlers(conn, cfg.DatabaseURL, log),
	})

	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	sched.Stop()
	log.Info().Msg("arbitrage engine stopped")
}
