package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/binanceclient"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/utils"
)

func main() {
	pairFlag := flag.String("pair", "BTC/USDT", "pair to download")
	interval := flag.String("interval", "1h", "candle interval")
	days := flag.Int("days", 90, "days of history ending now")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel, "fetch-candles")
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	ctx := context.Background()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	pair, err := domain.ParsePair(*pairFlag)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	appLogger.Info(ctx, "Fetching candles", map[string]interface{}{
		"pair": pair.String(), "interval": *interval, "start": start, "end": end,
	})
	candles, err := binanceClient.FetchCandlesRange(ctx, pair, *interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}
	appLogger.Info(ctx, "Fetched candles", map[string]interface{}{"count": len(candles)})

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Error creating %s: %v", *outDir, err)
	}
	filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", pair.Symbol(), *interval, start.Format("20060102"), end.Format("20060102")))
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
