package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/binanceclient"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/adapters/wshub"
	"cryptoPaperTrader/internal/app"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/risk"
	tradesignal "cryptoPaperTrader/internal/signal"
	"cryptoPaperTrader/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewConsoleLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Market Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Leverage:             cfg.Leverage,
		MakerFee:             cfg.MakerFee,
		TakerFee:             cfg.TakerFee,
		IndivisiblePosition:  cfg.IndivisiblePosition,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := feed.Ping(ctx); err != nil {
		log.Fatalf("FATAL: Binance is unreachable: %v", err)
	}

	// 5. Initialize Risk Manager and Strategy
	riskManager := risk.NewRiskManager(app.RiskFrom(cfg))
	strat, err := strategy.New(strategy.Config{
		Name:      "bracket",
		Quantity:  cfg.TradeQuantity,
		Direction: domain.DirectionLong,
		Alternate: true,
		Cooldown:  60,
	}, riskManager, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}

	// 6. Optional notification hub
	var notifiers []tradesignal.Handler
	if cfg.NotifyWSAddr != "" {
		hub := wshub.New(appLogger)
		notifiers = append(notifiers, hub)
		go func() {
			if err := wshub.Server(ctx, hub, cfg.NotifyWSAddr); err != nil {
				appLogger.Error(ctx, err, "Notification hub stopped")
			}
		}()
	}

	// 7. Initialize and run the paper trading session
	session, err := app.NewSession(app.ConfigFrom(cfg), app.Deps{
		Logger:    appLogger,
		Feed:      feed,
		Strategy:  strat,
		Risk:      riskManager,
		Trades:    repo,
		States:    repo,
		Notifiers: notifiers,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper trading session: %v", err)
	}
	if err := session.Init(ctx, nil); err != nil {
		log.Fatalf("FATAL: Failed to initialize markets: %v", err)
	}

	if err := session.Run(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Paper trading session exited with error")
		os.Exit(1)
	}

	for _, line := range session.Report() {
		appLogger.Info(context.Background(), line)
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
