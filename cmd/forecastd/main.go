package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/internal/api/mlservice"
	"github.com/Alias1177/GlucoPredictor/internal/config"
	"github.com/Alias1177/GlucoPredictor/internal/database"
	"github.com/Alias1177/GlucoPredictor/internal/features"
	"github.com/Alias1177/GlucoPredictor/internal/forecast"
	"github.com/Alias1177/GlucoPredictor/internal/httpapi"
	"github.com/Alias1177/GlucoPredictor/internal/notify"
	"github.com/Alias1177/GlucoPredictor/internal/observability"
	"github.com/Alias1177/GlucoPredictor/internal/pipeline"
	"github.com/Alias1177/GlucoPredictor/internal/platform/telegram"
	"github.com/Alias1177/GlucoPredictor/internal/reconcile"
	"github.com/Alias1177/GlucoPredictor/models"
)

func main() {
	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	setupSignalHandling(cancel)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting glucose forecast service")
	printConfig(cfg)

	// 3. Storage
	store, closeStore := openStore(cfg)
	defer closeStore()

	// 4. Scorers and forecast engine
	registry := forecast.NewRegistry(forecast.NewTrendScorer(trendParams(cfg)))
	if cfg.MLAPIURL != "" {
		registry.Register(mlservice.NewClient(mlservice.ClientOptions{
			BaseURL:        cfg.MLAPIURL,
			RequestTimeout: cfg.MLRequestTimeout,
			RequestsPerSec: cfg.MLRequestsPerSec,
		}))
	}
	engine, err := forecast.NewEngine(forecast.Config{
		DeadBand:       cfg.DeadBand,
		HypoThreshold:  cfg.HypoThreshold,
		HyperThreshold: cfg.HyperThreshold,
		MinConfidence:  cfg.MinConfidence,
		Timeframe:      cfg.ForecastTimeframe,
	}, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid forecast configuration")
	}
	if _, ok := registry.Get(cfg.DefaultModel); !ok {
		log.Fatal().Str("model", cfg.DefaultModel).Strs("registered", registry.Names()).Msg("Default model is not registered")
	}

	// 5. Pipeline
	metrics := observability.NewCollector("glucose")
	options := []pipeline.Option{pipeline.WithMetrics(metrics)}

	var bot *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram bot")
		}
		log.Info().Str("username", bot.Self.UserName).Msg("Authorized on Telegram")
		options = append(options, pipeline.WithSink(notify.Fanout{telegram.NewSink(bot, store, cfg.TelegramChatID)}))
	}

	svc := pipeline.New(store, engine,
		notify.Policy{Cooldown: cfg.NotifyCooldown, LowConfidence: cfg.LowConfidence},
		reconcile.New(store, cfg.ReconcileTolerance, reconcile.WithMaxHorizon(max(cfg.ForecastHorizon, reconcile.DefaultMaxHorizon))),
		cfg.HyperThreshold,
		pipeline.Options{
			DefaultModel:        cfg.DefaultModel,
			FallbackModel:       cfg.FallbackModel,
			TriggerTimeout:      cfg.TriggerTimeout,
			MaxClockSkew:        cfg.MaxClockSkew,
			AutoTickInterval:    cfg.AutoTickInterval,
			AutoTickConcurrency: cfg.AutoTickConcurrency,
			Features: features.Options{
				GlucoseLookback: cfg.GlucoseLookback,
				MealWindow:      cfg.MealWindow,
				ActivityWindow:  cfg.ActivityWindow,
				MaxTrendPoints:  features.DefaultOptions().MaxTrendPoints,
			},
		},
		options...,
	)
	defer svc.Close()

	// 6. Background workers
	if cfg.AutoTickEnabled {
		go svc.RunScheduler(ctx)
	}
	if bot != nil {
		updateConfig := tgbotapi.NewUpdate(0)
		updateConfig.Timeout = 60
		updates := bot.GetUpdatesChan(updateConfig)
		go telegram.NewLinker(bot, store).Run(ctx, updates)
		defer bot.StopReceivingUpdates()
	}

	// 7. HTTP API
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, httpapi.Options{FallbackModel: cfg.FallbackModel, Metrics: metrics}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

// trendParams keeps the scorer's activity decay in step with the assembler's activity window
func trendParams(cfg *config.Config) forecast.TrendParams {
	params := forecast.DefaultTrendParams()
	params.ActivityWindow = cfg.ActivityWindow
	return params
}

// openStore connects to Postgres when configured and falls back to memory otherwise
func openStore(cfg *config.Config) (models.Store, func()) {
	if !cfg.UsePostgres() {
		log.Warn().Msg("DB_HOST not set, using in-memory store")
		return database.NewMemoryStore(), func() {}
	}

	db, err := database.New(database.ConnectionParams{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("Connected to database")
	return db, func() { db.Close() }
}

// setupSignalHandling cancels the root context on SIGINT or SIGTERM
func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	// Set log level from config
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

// printConfig outputs the current configuration
func printConfig(cfg *config.Config) {
	log.Info().
		Str("HTTPAddr", cfg.HTTPAddr).
		Bool("Postgres", cfg.UsePostgres()).
		Str("DefaultModel", cfg.DefaultModel).
		Str("FallbackModel", cfg.FallbackModel).
		Bool("RemoteModel", cfg.MLAPIURL != "").
		Str("Timeframe", cfg.ForecastTimeframe).
		Float64("DeadBand", cfg.DeadBand).
		Float64("HypoThreshold", cfg.HypoThreshold).
		Float64("HyperThreshold", cfg.HyperThreshold).
		Dur("NotifyCooldown", cfg.NotifyCooldown).
		Dur("ReconcileTolerance", cfg.ReconcileTolerance).
		Bool("AutoTick", cfg.AutoTickEnabled).
		Dur("AutoTickInterval", cfg.AutoTickInterval).
		Bool("Telegram", cfg.TelegramBotToken != "").
		Msg("Configuration loaded")
}
