package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/binanceclient"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/metrics"
	"cryptoSignalBot/internal/adapters/sqlite"
	"cryptoSignalBot/internal/adapters/telegram"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/resample"
	"cryptoSignalBot/internal/strategy/ruler"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel, "signal-bot")
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		TaxRate:    cfg.TaxRate,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	// 5. Metrics and operator alerts
	var recorder ports.Metrics = metrics.Nop{}
	if cfg.MetricsAddr != "" {
		r := metrics.NewRecorder()
		srv := r.Serve(ctx, cfg.MetricsAddr)
		defer func() { _ = srv.Close() }()
		recorder = r
		appLogger.Info(ctx, "Metrics endpoint started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	var notifier ports.Notifier = logger.NewLogNotifier(appLogger)
	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(telegram.Config{
			Token:  cfg.TelegramBotToken,
			ChatID: cfg.TelegramChatID,
			Prefix: "[signal-bot]",
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		notifier = tg
	}

	// 6. Initialize Strategy
	selector, err := ruler.NewSelector(ruler.DefaultTable, cfg.BaseHours, repo)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize threshold selector")
		log.Fatalf("FATAL: Failed to initialize threshold selector: %v", err)
	}
	detector, err := strategy.NewDetector(strategy.Config{
		Timeframes: resample.DefaultTimeframes,
		Policy:     cfg.CrossoverPolicy,
	}, selector, repo, appLogger, recorder)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal detector")
		log.Fatalf("FATAL: Failed to initialize signal detector: %v", err)
	}
	appLogger.Info(ctx, "Signal detector initialized")

	// 7. Initialize Execution
	poller, err := execution.NewPoller(execution.PollerConfig{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		MaxFailures: cfg.PollMaxFailures,
	}, binanceClient, repo, notifier, recorder, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize reconciliation poller")
		log.Fatalf("FATAL: Failed to initialize reconciliation poller: %v", err)
	}
	gate := execution.NewGate(execution.GateConfig{
		AllowBuy:    cfg.AllowBuy,
		AllowSell:   cfg.AllowSell,
		OrderAmount: cfg.OrderAmount,
	}, repo, appLogger)
	manager, err := execution.NewManager(execution.Config{
		SubmitAttempts: cfg.SubmitAttempts,
		SubmitBackoff:  cfg.SubmitBackoff,
	}, binanceClient, repo, gate, poller, notifier, recorder, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution manager")
		log.Fatalf("FATAL: Failed to initialize execution manager: %v", err)
	}

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(
		cfg,
		appLogger,
		binanceClient,
		repo,
		detector,
		manager,
		poller,
		recorder,
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 9. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
