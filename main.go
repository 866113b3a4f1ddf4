package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duel-match-system/config"
	"duel-match-system/engine"
	"duel-match-system/handlers"
	"duel-match-system/middleware"
	"duel-match-system/models"
	"duel-match-system/services"
	"duel-match-system/utils"
	"duel-match-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}
	logFile := utils.InitLogging(cfg.LogFile)
	defer logFile.Close()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&models.Player{},
		&models.Affiliate{},
		&models.Referral{},
		&models.Offer{},
		&models.Match{},
		&models.Round{},
		&models.CommissionEvent{},
		&models.LedgerEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oracle, err := services.NewPriceOracle(cfg.PriceEURPerCoin, cfg.UnitsPerCoin)
	if err != nil {
		log.Fatal("invalid price configuration: ", err)
	}
	hub := services.NewEventHub(32)
	affiliateService := services.NewAffiliateService(db, oracle)
	complianceService := services.NewComplianceService(db, cfg.BlockedCountries, cfg.L1MaxStake)

	clock := clockwork.NewRealClock()
	timers, err := engine.NewCronScheduler(clock)
	if err != nil {
		log.Fatal("failed to start match timers: ", err)
	}

	metricsRegistry := metrics.NewRegistry()
	metrics.NewRegisteredFunctionalGauge("events.dropped", metricsRegistry, hub.Dropped)

	deps := engine.Deps{
		Store:      services.NewMatchStore(db),
		Referrals:  affiliateService,
		Compliance: complianceService,
		Notifier:   hub,
		Scheduler:  timers,
		Clock:      clock,
		Metrics:    engine.NewMetrics(metricsRegistry),
	}
	if cfg.R2Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, cfg.R2AccountID, cfg.R2AccessKey, cfg.R2SecretKey, cfg.R2Bucket)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		deps.Archiver = archiver
		log.Printf("✅ Finished matches archived to R2 bucket %s", cfg.R2Bucket)
	}

	registry, err := engine.NewRegistry(cfg.Engine, deps)
	if err != nil {
		log.Fatal("failed to build match registry: ", err)
	}
	if _, err := registry.Recover(ctx); err != nil {
		log.Fatal("failed to recover matches: ", err)
	}

	maintenance, err := services.StartMaintenance(ctx, registry, cfg.SweepInterval)
	if err != nil {
		log.Fatal("failed to start maintenance scheduler: ", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:   64 * 1024,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	})

	// 🔐❗ GLOBAL: only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	origins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Accept-Language, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, handlers.Services{
		Offers:     services.NewOfferService(db, registry, oracle, cfg.MinBetEUR),
		Matches:    services.NewMatchService(db, registry, hub),
		Affiliates: affiliateService,
		Compliance: complianceService,
		Auth:       services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken),
		Metrics:    metricsRegistry,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if cfg.WalletServiceURL != "" {
		dispatcher := workers.NewTransferDispatcher(db, cfg.WalletServiceURL, cfg.ServiceToken)
		g.Go(func() error {
			workers.PollTransfers(gctx, dispatcher, cfg.TransferPollInterval)
			return nil
		})
	} else {
		log.Println("⚠️  WALLET_SERVICE_URL not set, ledger entries stay PENDING")
	}
	if cfg.SyncServiceURL != "" {
		syncWorker := workers.NewPlayerSyncWorker(db, affiliateService, cfg.SyncServiceURL, cfg.ServiceToken, cfg.PlayerSyncInterval)
		g.Go(func() error {
			syncWorker.Run(gctx)
			return nil
		})
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, players only come from the KYC webhook")
	}

	if err := g.Wait(); err != nil {
		log.Printf("Server error: %v", err)
	}

	// Live matches stay in the store; the next start voids or re-arms them.
	registry.Shutdown()
	if err := maintenance.Shutdown(); err != nil {
		log.Printf("⚠️ maintenance scheduler shutdown: %v", err)
	}
	if err := timers.Shutdown(); err != nil {
		log.Printf("⚠️ match timers shutdown: %v", err)
	}
	log.Println("👋 Shutdown complete")
}
