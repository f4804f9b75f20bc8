package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"samsar/server/config"
	"samsar/server/internal/aggregator"
	"samsar/server/internal/api"
	"samsar/server/internal/controller"
	"samsar/server/internal/database"
	"samsar/server/internal/featured"
	"samsar/server/internal/fetcher"
	"samsar/server/internal/models"
	"samsar/server/internal/prefs"
	"samsar/server/internal/processor"
	"samsar/server/internal/queue"
	"samsar/server/internal/render"
	"samsar/server/internal/scheduler"
	"samsar/server/internal/validation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithError(err).Warn("Unknown LOG_LEVEL, keeping info")
	}

	// Initialize database
	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Preference writes go through the queue to the batch processor
	prefQueue := queue.NewPreferenceQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	batchProcessor := processor.NewBatchProcessor(db.GORM(), prefQueue, cfg, logger)
	batchProcessor.Start()
	store := prefs.NewStore(db, prefQueue, logger)

	validator, err := validation.NewValidator()
	if err != nil {
		logger.WithError(err).Fatal("Failed to compile record schema")
	}

	fetchOpts := fetcher.Options{
		BaseURL:        cfg.Data.BaseURL,
		HTTPClient:     &http.Client{Timeout: cfg.Fetch.Timeout},
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		IndexRetries:   cfg.Fetch.IndexRetries,
		RetryDelay:     cfg.Fetch.RetryDelay,
		Validator:      validator,
	}
	if cfg.Data.BaseURL == "" {
		logger.WithField("dir", cfg.Data.Dir).Info("Reading data tree from disk")
		fetchOpts.BaseURL = fetcher.FileBaseURL
		fetchOpts.HTTPClient = fetcher.DirHTTPClient(cfg.Data.Dir, cfg.Fetch.Timeout)
	}
	client := fetcher.NewClient(fetchOpts, logger)
	agg := aggregator.New(client, cfg.Cache.Freshness, logger)
	// Index retries included
	agg.SetFetchTimeout(cfg.Fetch.Timeout * time.Duration(cfg.Fetch.IndexRetries+2))

	renderer, err := render.NewRenderer(render.Options{
		SiteName: cfg.Contact.SiteName,
		LogoURL:  cfg.Contact.LogoURL,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load templates")
	}

	cardOptions := render.CardOptions{
		DefaultPhone: cfg.Contact.WhatsApp,
		LogoURL:      cfg.Contact.LogoURL,
		SiteURL:      cfg.Data.SiteURL,
	}

	registry := controller.NewRegistry(config.CategoriesFor, controller.Deps{
		Loader:      agg,
		Renderer:    renderer,
		Markers:     store,
		CardOptions: cardOptions,
		Logger:      logger,
	})

	scanner := featured.NewScanner(agg, config.FeaturedSources, config.GetCategory, featured.Options{
		SampleSize: cfg.Featured.SampleSize,
		Offers:     cfg.Featured.Offers,
		Requests:   cfg.Featured.Requests,
		Card:       cardOptions,
	}, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var categories []models.CategoryMeta
		for _, section := range config.Sections() {
			categories = append(categories, config.CategoriesFor(section)...)
		}
		sched = scheduler.NewScheduler(agg, registry, db, store, categories, scheduler.Options{
			WarmInterval:        cfg.Scheduler.WarmInterval,
			SessionIdleTimeout:  cfg.Scheduler.SessionIdleTimeout,
			PreferenceRetention: cfg.Scheduler.PreferenceRetention,
			Timeout:             cfg.Fetch.Timeout * 6,
		}, logger)
		sched.Start()
	}

	// Initialize handler
	handler := api.NewHandler(api.Deps{
		Registry:    registry,
		Prefs:       store,
		Records:     agg,
		Featured:    scanner,
		Renderer:    renderer,
		CardOptions: cardOptions,
	}, logger)

	// Initialize router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	api.SetupRoutes(router, handler, cfg.Server.AllowedOrigins, logger)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if sched != nil {
		sched.Stop()
	}
	// Flushes pending preference writes before the database closes
	batchProcessor.Stop()
	logger.Info("Server exited")
}
