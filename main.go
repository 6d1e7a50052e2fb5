package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Roland735/rentbot/internal/api"
	"github.com/Roland735/rentbot/internal/api/middleware"
	"github.com/Roland735/rentbot/internal/bot"
	"github.com/Roland735/rentbot/internal/cache"
	"github.com/Roland735/rentbot/internal/config"
	"github.com/Roland735/rentbot/internal/db"
	"github.com/Roland735/rentbot/internal/events"
	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/observability"
	"github.com/Roland735/rentbot/internal/payments"
	"github.com/Roland735/rentbot/internal/services"
	"github.com/Roland735/rentbot/internal/storage"
	"github.com/Roland735/rentbot/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api' (webhooks and HTTP API), 'bg' (background tasks), 'all' (default)")

const inboundDedupeTTL = 24 * time.Hour

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient, logger); err != nil {
			logger.Error("Error disconnecting from MongoDB", zap.Error(err))
		}
	}()
	if err := db.EnsureSchema(ctx, mongoDb, logger); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient, logger); err != nil {
			logger.Error("Error disconnecting from Redis", zap.Error(err))
		}
	}()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Events
	publisher := events.New(cfg.NatsURL, logger)
	defer publisher.Close()

	// Outbound messaging
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	sender := newSender(cfg, redisClient, httpClient, metrics, logger)

	// Storage
	s3StorageService, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 storage: %w", err)
	}

	// Catalog
	bundles, err := models.ParseCreditBundles(cfg.CreditBundles)
	if err != nil {
		return fmt.Errorf("invalid CREDIT_BUNDLES: %w", err)
	}
	catalogService := services.NewCatalogService(mongoDb, redisClient, cfg.Suburbs, bundles, logger)
	if err := catalogService.Load(ctx); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	go func() {
		if err := catalogService.SubscribeToChanges(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Catalog change subscription ended", zap.Error(err))
		}
	}()

	// Task client
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	jobQueue := tasks.NewQueue(taskClient)

	// Services
	userService := services.NewUserService(mongoDb, cfg.StarterCredits)
	creditService := services.NewCreditService(mongoDb)
	sessionStore := services.NewSessionStore(mongoDb)
	listingService := services.NewListingService(mongoDb)
	photoRequestService := services.NewPhotoRequestService(mongoDb)
	moderationService := services.NewModerationService(mongoDb)
	transactionService := services.NewTransactionService(mongoDb)
	rateLimitService := services.NewRateLimitService(mongoDb, services.RateLimits{
		SearchDaily: cfg.SearchDailyLimit,
		PhotoDaily:  cfg.PhotoDailyLimit,
		Throttle:    cfg.RateThrottle,
		Window:      services.DefaultRateLimits.Window,
	})

	gateway := payments.NewPaynow(payments.Config{
		IntegrationID:  cfg.PaynowIntegrationID,
		IntegrationKey: cfg.PaynowIntegrationKey,
		InitiateURL:    cfg.PaynowInitiateURL,
		ResultURL:      cfg.PublicBaseURL + "/v1/paynow/result",
		ReturnURL:      cfg.PublicBaseURL + "/v1/ping",
		AuthEmail:      cfg.PaynowEmail,
		TestMode:       cfg.PaynowTestMode,
	}, httpClient, logger)
	paymentService := services.NewPaymentService(services.PaymentDeps{
		Transactions: transactionService,
		Credits:      creditService,
		Listings:     listingService,
		Catalog:      catalogService,
		Gateway:      gateway,
		Jobs:         jobQueue,
		Events:       publisher,
		Metrics:      metrics,
		Logger:       logger,
		PublishPrice: cfg.ListingPublishPrice,
	})

	rentBot := bot.New(bot.Deps{
		Users:      userService,
		Credits:    creditService,
		Sessions:   sessionStore,
		Listings:   listingService,
		Photos:     photoRequestService,
		Moderation: moderationService,
		RateLimits: rateLimitService,
		Catalog:    catalogService,
		Payments:   paymentService,
		Jobs:       jobQueue,
		Sender:     sender,
		Events:     publisher,
		Metrics:    metrics,
		Logger:     logger,
	}, bot.Options{
		FlowSID:      cfg.TwilioFlowSID,
		SessionTTL:   cfg.SessionTTL,
		SearchCost:   cfg.SearchCost,
		PhotoCost:    cfg.PhotoCost,
		PublishPrice: cfg.ListingPublishPrice,
	})

	taskProcessor := tasks.NewTaskProcessor(tasks.ProcessorConfig{
		ImageMaxDimension: cfg.ImageMaxDimension,
		ImageMaxSizeMB:    cfg.ImageMaxSizeMB,
		MediaUsername:     cfg.TwilioAccountSID,
		MediaPassword:     cfg.TwilioAuthToken,
		SessionTTL:        cfg.SessionTTL,
	}, sender, s3StorageService, listingService, paymentService, sessionStore, httpClient, metrics, logger)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)
	serverErrors := make(chan error, 3)

	// Service API (always runs)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, redisClient, shutdownChan, registry, logger),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Service API listening", zap.String("port", cfg.ServiceApiPort))
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("service API: %w", err)
		}
	}()

	var mainApiSrv *http.Server
	var taskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	logger.Info("Starting application", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		rateLimiter := middleware.NewRateLimiterMiddleware(cfg.RateLimitRefillRate, cfg.RateLimitBucketSize, logger)
		go rateLimiter.Cleanup(ctx)

		router := api.SetupRouter(cfg, api.RouterDeps{
			Bot:         rentBot,
			Deduper:     cache.NewDeduper(redisClient, inboundDedupeTTL),
			Payments:    paymentService,
			Users:       userService,
			Credits:     creditService,
			Moderation:  moderationService,
			Listings:    listingService,
			Catalog:     catalogService,
			Storage:     s3StorageService,
			RateLimiter: rateLimiter,
		}, logger)
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Main API listening", zap.String("port", cfg.ApiPort))
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrors <- fmt.Errorf("main API: %w", err)
			}
		}()
	}

	bgMode := func() error {
		taskSrv = tasks.NewServer(redisClient, 10, logger)
		if err := taskSrv.Start(taskProcessor.Mux()); err != nil {
			return fmt.Errorf("failed to start task server: %w", err)
		}
		scheduler, err = tasks.NewScheduler(redisClient, cfg.SessionSweepSpec, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		logger.Info("Background worker started")
		return nil
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		if err := bgMode(); err != nil {
			return err
		}
	case "all":
		apiMode()
		if err := bgMode(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid run mode: %s", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		logger.Info("Shutdown requested via Service API")
	case err := <-serverErrors:
		logger.Error("Server failed, shutting down", zap.Error(err))
	}
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		logger.Error("Service API shutdown error", zap.Error(err))
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error("Main API shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info("Server gracefully stopped")
	return nil
}

// newSender picks the WhatsApp transport. MOCK_SERVICES stores messages in
// Redis for the service API; otherwise WhatChimp is used when configured, then
// Twilio, then plain logging.
func newSender(cfg *config.Config, redisClient *redis.Client, httpClient *http.Client, metrics *observability.Metrics, logger *zap.Logger) messaging.Sender {
	var primary messaging.Sender
	switch {
	case cfg.MockServices:
		logger.Info("MOCK_SERVICES enabled: using Redis message sender")
		primary = messaging.NewRedisSender(redisClient, logger)
	case cfg.WhatChimpAPIURL != "" && cfg.WhatChimpAccessToken != "":
		logger.Info("Using WhatChimp message sender")
		primary = messaging.NewWhatChimpSender(cfg.WhatChimpAPIURL, cfg.WhatChimpAccessToken, httpClient)
	case cfg.TwilioAccountSID != "":
		logger.Info("Using Twilio message sender")
		primary = messaging.NewTwilioSender(messaging.TwilioConfig{
			AccountSID:   cfg.TwilioAccountSID,
			AuthToken:    cfg.TwilioAuthToken,
			WhatsAppFrom: cfg.TwilioWhatsAppFrom,
			APIBase:      cfg.TwilioAPIBase,
		}, httpClient)
	default:
		logger.Warn("No WhatsApp provider configured: outbound messages are only logged")
		primary = messaging.NewLoggingSender(logger)
	}

	composite := messaging.NewCompositeSender(primary)
	if cfg.LogLevel == "debug" && !isLogging(primary) {
		composite.AddSender(messaging.NewLoggingSender(logger))
	}
	return messaging.NewInstrumentedSender(composite, metrics, logger)
}

func isLogging(s messaging.Sender) bool {
	_, ok := s.(*messaging.LoggingSender)
	return ok
}
