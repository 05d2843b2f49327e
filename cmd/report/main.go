package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/adapters/sqlite"
	"cryptoPaperTrader/internal/app"
	"cryptoPaperTrader/internal/domain"
)

const strategyName = "bracket"

// report prints the persisted paper account and trades without connecting to the exchange.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewConsoleLogger(logger.LevelWarn)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ids, err := repo.ListMarkets(ctx, strategyName)
	if err != nil {
		log.Fatalf("Error listing markets: %v", err)
	}
	if len(ids) == 0 {
		log.Println("No stored trades found. Run the paper trader or replay -save first.")
		return
	}

	scfg := app.ConfigFrom(cfg)
	scfg.Markets = ids
	session, err := app.NewSession(scfg, app.Deps{
		Logger:   appLogger,
		Strategy: named(strategyName),
		Trades:   repo,
		States:   repo,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize session: %v", err)
	}
	markets := make([]*domain.Market, 0, len(ids))
	for _, id := range ids {
		markets = append(markets, app.OfflineMarket(id, cfg))
	}
	if err := session.Init(ctx, markets); err != nil {
		log.Fatalf("Error restoring session: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Market\tTrade\tDirection\tState\tEntry\tExit\tP&L%\tReason\t")
	for _, id := range ids {
		mgr, _ := session.Manager(id)
		for _, t := range mgr.Trades() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.8g\t%.8g\t%.2f\t%s\t\n",
				id, t.ID(), t.Direction(), t.StateString(),
				t.EntryPrice(), t.ExitPrice(), t.ProfitLossRate()*100, t.ExitReason())
		}
	}
	w.Flush()

	fmt.Println()
	for _, line := range session.Report() {
		fmt.Println(line)
	}
}
