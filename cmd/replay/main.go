package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/app"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/risk"
	"cryptoPaperTrader/internal/strategy"
	"cryptoPaperTrader/internal/utils"
)

// replay feeds recorded ticks through a paper trading session and prints the result.
func main() {
	input := flag.String("in", "", "Tick CSV file produced by fetch_ticks")
	save := flag.Bool("save", false, "Persist the session to DB_PATH after the replay")
	hard := flag.Bool("hard", false, "Place resting protective orders instead of soft ones")
	flag.Parse()
	if *input == "" {
		log.Fatal("usage: replay -in ticks.csv [-save] [-hard]")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewConsoleLogger(cfg.LogLevel)
	ctx := context.Background()

	riskManager := risk.NewRiskManager(app.RiskFrom(cfg))
	strat, err := strategy.New(strategy.Config{
		Name:      "bracket",
		Quantity:  cfg.TradeQuantity,
		Direction: domain.DirectionLong,
		Alternate: true,
		Hard:      *hard,
		Cooldown:  60,
	}, riskManager, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}

	deps := app.Deps{Logger: appLogger, Strategy: strat, Risk: riskManager}
	if *save {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
		}
		defer repo.Close()
		deps.Trades, deps.States = repo, repo
	}

	session, err := app.NewSession(app.ConfigFrom(cfg), deps)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper trading session: %v", err)
	}
	markets := make([]*domain.Market, 0, len(cfg.Markets))
	for _, id := range cfg.Markets {
		markets = append(markets, app.OfflineMarket(id, cfg))
	}
	if err := session.Init(ctx, markets); err != nil {
		log.Fatalf("FATAL: Failed to initialize markets: %v", err)
	}

	file, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Error opening %s: %v", *input, err)
	}
	defer file.Close()

	count := 0
	err = utils.ReadTicksCSV(file, func(t domain.Tick) error {
		session.OnTick(ctx, t)
		count++
		return nil
	})
	if err != nil {
		log.Fatalf("Error reading ticks: %v", err)
	}
	appLogger.Info(ctx, "Replay finished", map[string]interface{}{"ticks": count})

	if *save {
		if err := session.Persist(ctx); err != nil {
			log.Fatalf("Error saving session: %v", err)
		}
	}
	for _, line := range session.Report() {
		fmt.Println(line)
	}
}
