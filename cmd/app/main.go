package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/drluca/shopstream/orderform/config"
	"github.com/drluca/shopstream/orderform/internal/catalog"
	"github.com/drluca/shopstream/orderform/internal/database"
	"github.com/drluca/shopstream/orderform/internal/eventbus"
	"github.com/drluca/shopstream/orderform/internal/httpapi"
	"github.com/drluca/shopstream/orderform/internal/i18n"
	"github.com/drluca/shopstream/orderform/internal/mailer"
	"github.com/drluca/shopstream/orderform/internal/metrics"
	"github.com/drluca/shopstream/orderform/internal/processor"
	"github.com/drluca/shopstream/orderform/internal/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", ".", "directory containing app.env")
	migrate := pflag.Bool("migrate", false, "create the catalog tables before serving")
	pflag.Parse()

	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setLogLevel(cfg.LogLevel)

	log.Info().Str("appName", cfg.AppName).Msg("Application starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Initializations ---

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Database")
	}
	defer db.Close()
	if *migrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate Database")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr, err := i18n.New(cfg.Language, cfg.CurrencySuffix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize translations")
	}

	deps := processor.Deps{
		Catalog:    catalog.NewRepository(db),
		Reserver:   reservation.NewEngine(database.InventoryStore{DB: db}),
		Translator: tr,
		Metrics:    m,
	}

	// Optional catalog cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache := catalog.NewCachedLoader(deps.Catalog, rdb, cfg.CatalogCacheTTL)
		deps.Catalog = cache
		deps.Invalidator = cache
		log.Info().Dur("ttl", cfg.CatalogCacheTTL).Msg("Catalog cache enabled")
	}

	names, err := cfg.CustomerFieldNames()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid customer field configuration")
	}
	renderer, err := mailer.NewRenderer(tr, names)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize mail renderer")
	}
	deps.Renderer = renderer

	if cfg.SMTPHost != "" {
		sender, err := mailer.NewSMTPSender(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SMTP sender")
		}
		deps.Mailer = sender
	} else {
		deps.Mailer = mailer.LogSender{}
	}

	// Optional event bus
	if cfg.RabbitMQURL != "" {
		rmqManager, err := eventbus.NewRabbitMQManager(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ Manager")
		}
		defer rmqManager.Close()
		deps.Publisher = rmqManager

		restock := processor.NewRestockHandler(db, deps.Invalidator, m)
		if err := rmqManager.StartConsuming(ctx, restock.MessageHandler); err != nil {
			log.Fatal().Err(err).Msg("Failed to start consumer")
		}
	}

	orders, err := processor.New(deps, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize order processor")
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(orders, db, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Msg("Application setup complete. Press Ctrl+C to exit.")

	// --- Wait for shutdown signal ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// --- Graceful Shutdown ---
	log.Info().Msg("Application shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shut down")
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
