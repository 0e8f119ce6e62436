package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stays-service/config"
	"stays-service/geocode"
	"stays-service/httpapi"
	"stays-service/models"
	"stays-service/scheduler"
	"stays-service/scraper"
	"stays-service/scraper/airbnb"
	"stays-service/scraper/booking"
	"stays-service/scraper/googlemaps"
	"stays-service/services"
	"stays-service/storage"
	"stays-service/utils"
	weatherapi "stays-service/weather"

	"github.com/redis/go-redis/v9"
)

func main() {
	refreshCity := flag.String("refresh", "", "run one refresh for `city`, print insights and exit")
	importFile := flag.String("import", "", "merge raw items from a JSON `file` and exit")
	importCity := flag.String("city", "", "city the imported items belong to")
	sourceFlag := flag.String("source", "", "source kind (airbnb, googlemaps, booking, generic)")
	flag.Parse()

	// ================== Bootstrap ====================
	logger := utils.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Config error: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	logger.Info("Stays Service")
	logger.Info("Stores: listings=%s weather=%s | TTL: listings=%s weather=%s",
		cfg.ListingStore, cfg.WeatherStore, cfg.ListingTTL, cfg.WeatherTTL)
	logger.Info("Acquisition timeout: %s | Rate delay: %dms | Retries: %d",
		cfg.AcquisitionTimeout, cfg.RateLimitDelay, cfg.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sourceName := cfg.DefaultSource
	if *sourceFlag != "" {
		sourceName = *sourceFlag
	}
	kind, err := models.ParseSourceKind(sourceName)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(2)
	}

	// =================== Storage ========================================
	listingStore, err := openListingStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Cannot open %s listing store: %v", cfg.ListingStore, err)
		os.Exit(1)
	}
	defer listingStore.Close()

	var rdb *redis.Client
	if cfg.WeatherStore == "redis" {
		if rdb, err = storage.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			logger.Error("Cannot connect to Redis: %v", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	var weatherStore storage.WeatherStore = storage.NewMemoryWeatherStore(cfg.WeatherRetention)
	if rdb != nil {
		weatherStore = storage.NewRedisWeatherStore(rdb, cfg.WeatherRetention)
	}

	var guard services.RefreshGuard
	if cfg.CoalesceRefreshes {
		guard = services.NewMemoryGuard()
		if rdb != nil {
			guard = storage.NewRedisRefreshGuard(rdb, cfg.BackgroundTimeout)
		}
	}

	// =============== Acquisition ===================================
	gateway := scraper.NewGateway(cfg.AcquisitionTimeout, cfg.MaxRetries, cfg.RetryBaseDelay, logger.Named("gateway"),
		airbnb.NewAirbnbScraper(cfg, logger),
		googlemaps.NewScraper(cfg, logger),
		booking.NewScraper(cfg, logger),
	)
	geo := geocode.NewClient(cfg.GeocodeURL)

	// =========== Services ======================
	runner := services.NewTaskRunner(cfg.BackgroundTimeout, logger.Named("tasks"))
	normalizer := services.NewNormalizer(logger.Named("normalizer"), cfg.CityCoordinates)
	merger := services.NewMerger(listingStore, normalizer, logger.Named("merger"))

	orchCfg := services.OrchestratorConfig{
		TTL:             cfg.ListingTTL,
		FetchTimeout:    cfg.AcquisitionTimeout,
		DefaultCurrency: cfg.DefaultCurrency,
		Geocode:         geo.ResolveCity,
		Guard:           guard,
	}
	if cfg.RawCSVPath != "" {
		orchCfg.Sink = storage.NewCSVWriter(cfg.RawCSVPath, logger.Named("csv"))
	}
	orch := services.NewOrchestrator(listingStore, gateway, merger, runner, orchCfg, logger.Named("stays"))

	weatherSvc := services.NewWeatherService(weatherStore, geo.ResolveCity, weatherClient(cfg), runner, guard,
		cfg.WeatherTTL, cfg.AcquisitionTimeout, logger.Named("weather"))
	insightSvc := services.NewInsightService(logger)

	// ==== One-shot modes ============================
	switch {
	case *importFile != "":
		if err := runImport(ctx, merger, *importFile, *importCity, kind, orchCfg, logger); err != nil {
			logger.Error("Import failed: %v", err)
			os.Exit(1)
		}
		return
	case *refreshCity != "":
		if err := runRefresh(ctx, orch, listingStore, insightSvc, *refreshCity, kind); err != nil {
			logger.Error("Refresh failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// ==== Scheduler ============================
	var purgers []storage.Purger
	if p, ok := listingStore.(storage.Purger); ok {
		purgers = append(purgers, p)
	}
	sched := scheduler.New(scheduler.Options{
		Cities:      cfg.RefreshCities,
		Kinds:       gateway.Kinds(),
		Listings:    orch,
		Weather:     weatherSvc,
		RefreshSpec: cfg.RefreshSchedule,
		Purgers:     purgers,
		PurgeSpec:   cfg.PurgeSchedule,
	}, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("Scheduler: %v", err)
		os.Exit(1)
	}

	// ==== HTTP server ============================
	h := httpapi.NewHandler(orch, weatherSvc, insightSvc, kind, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AcquisitionTimeout + 30*time.Second,
	}

	go func() {
		logger.Info("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error: %v", err)
			os.Exit(1)
		}
	}()

	// ==== Graceful shutdown ============================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown error: %v", err)
	}
	cancel()
	sched.Stop()
	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("Background refreshes still running at exit: %v", err)
	}
	logger.Info("Stopped.")
}

func openListingStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.ListingStore, error) {
	switch cfg.ListingStore {
	case "postgres":
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL, cfg.ListingRetention, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		if err := pg.CreateTable(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "mongo":
		m, err := storage.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.ListingRetention, logger.Named("mongo"))
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return storage.NewMemoryListingStore(cfg.ListingRetention), nil
	}
}

func weatherClient(cfg *config.Config) services.ForecastClient {
	return weatherapi.NewClient(cfg.ForecastURL)
}

// runRefresh acquires city once and prints an insight report of what is stored.
func runRefresh(ctx context.Context, orch *services.Orchestrator, store storage.ListingStore, insights *services.InsightService, city string, kind models.SourceKind) error {
	summary, err := orch.Refresh(ctx, city, kind)
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d, upserted %d, modified %d, skipped %d\n",
		summary.Processed, summary.Upserted, summary.Modified, len(summary.Skipped))

	listings, err := store.FindListings(ctx, storage.ListingQuery{City: city, Source: kind})
	if err != nil {
		return err
	}
	services.PrintInsightReport(os.Stdout, insights.Generate(city, listings))
	return nil
}

// runImport merges a JSON array of raw items, as exported by any source.
func runImport(ctx context.Context, merger *services.Merger, path, city string, kind models.SourceKind, oc services.OrchestratorConfig, logger *utils.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var items []models.RawItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	logger.Info("Importing %d %s items from %s", len(items), kind, path)

	summary, err := merger.MergeRaw(ctx, kind, items, services.NormalizeContext{
		City:            city,
		DefaultCurrency: oc.DefaultCurrency,
		Geocode:         oc.Geocode,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
