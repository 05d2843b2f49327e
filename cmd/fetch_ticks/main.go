package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cryptoPaperTrader/config"
	"cryptoPaperTrader/internal/adapters/binanceclient"
	"cryptoPaperTrader/internal/adapters/logger"
	"cryptoPaperTrader/internal/domain"
	"cryptoPaperTrader/internal/utils"
)

func main() {
	duration := flag.Duration("duration", 10*time.Minute, "How long to record")
	out := flag.String("out", "", "Output CSV file (default data/ticks_<markets>_<time>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewConsoleLogger(cfg.LogLevel)

	// 3. Initialize Market Feed (Binance Adapter)
	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Leverage:             cfg.Leverage,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/ticks_%s_%s.csv", strings.Join(cfg.Markets, "-"), time.Now().UTC().Format("20060102T150405"))
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Error creating %s: %v", filename, err)
	}
	defer file.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	// Ticks arrive on the websocket goroutine; the writer is only used from this one.
	ticks := make(chan domain.Tick, 1024)
	done, err := feed.StreamTicks(ctx, cfg.Markets,
		func(t domain.Tick) {
			select {
			case ticks <- t:
			default:
			}
		},
		func(err error) {
			appLogger.Error(ctx, err, "Tick stream error")
		})
	if err != nil {
		log.Fatalf("Error starting tick stream: %v", err)
	}

	writer := utils.NewTickWriter(file)
	count := 0
	appLogger.Info(ctx, "Recording ticks", map[string]interface{}{"markets": cfg.Markets, "file": filename, "duration": duration.String()})
	for {
		select {
		case t := <-ticks:
			if err := writer.Write(t); err != nil {
				log.Fatalf("Error writing CSV: %v", err)
			}
			count++
		case <-done:
			if err := writer.Flush(); err != nil {
				log.Fatalf("Error writing CSV: %v", err)
			}
			appLogger.Info(context.Background(), "Saved ticks", map[string]interface{}{"file": filename, "count": count})
			return
		}
	}
}
