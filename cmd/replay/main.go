package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/backtesting"
	"cryptoSignalBot/internal/strategy/resample"
	"cryptoSignalBot/internal/strategy/ruler"
	"cryptoSignalBot/internal/utils"
)

// run is one profile/period combination.
type run struct {
	profileIndex int
	period       int
	result       *backtesting.ReplayResult
	err          error
}

func main() {
	file := flag.String("file", "", "CSV file written by fetch_candles")
	pairFlag := flag.String("pair", "BTC/USDT", "pair the candles belong to")
	interval := flag.String("interval", "1h", "candle interval of the file")
	periods := flag.String("periods", "1,2,4,8", "comma-separated resampling periods in hours")
	policy := flag.String("policy", string(strategy.PolicyInclusive), "crossover policy: inclusive or strict")
	amount := flag.Float64("amount", 100, "buy size in denominator currency")
	feeRate := flag.Float64("fee", 0.001, "fee per fill as a fraction of notional")
	level := flag.String("log-level", "INFO", "log level")
	flag.Parse()

	appLogger, err := logger.NewZapLogger(logger.ParseLevel(*level), "replay")
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	ctx := context.Background()

	if *file == "" {
		log.Fatalf("FATAL: -file is required")
	}
	pair, err := domain.ParsePair(*pairFlag)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	tf, err := timeframe(*interval, *periods)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	candles, err := utils.ReadCandlesFromCSV(*file)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading candles", map[string]interface{}{"file": *file})
		log.Fatalf("Error loading candles: %v", err)
	}
	appLogger.Info(ctx, "Loaded candles", map[string]interface{}{"file": *file, "count": len(candles)})

	// Replay every profile of the ruler against every period in parallel.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var runs []run
	for i, profile := range ruler.DefaultTable.Profiles {
		for _, period := range tf.Periods {
			wg.Add(1)
			go func(i, period int, profile domain.ThresholdProfile) {
				defer wg.Done()
				result, err := backtesting.Replay(ctx, candles, backtesting.ReplayConfig{
					Pair:        pair,
					Timeframe:   tf,
					Period:      period,
					Profile:     profile,
					Policy:      strategy.CrossoverPolicy(*policy),
					OrderAmount: *amount,
					FeeRate:     *feeRate,
				})
				mu.Lock()
				runs = append(runs, run{profileIndex: i, period: period, result: result, err: err})
				mu.Unlock()
			}(i, period, profile)
		}
	}
	wg.Wait()

	sort.Slice(runs, func(a, b int) bool {
		if runs[a].profileIndex != runs[b].profileIndex {
			return runs[a].profileIndex < runs[b].profileIndex
		}
		return runs[a].period < runs[b].period
	})

	fmt.Printf("\n%-8s %-7s %-8s %-7s %-9s %-12s %-10s\n", "Profile", "Period", "Signals", "Trades", "WinRate", "Profit", "MaxDD")
	fmt.Println(strings.Repeat("-", 66))
	for _, r := range runs {
		if r.err != nil {
			appLogger.Warn(ctx, "Replay failed", map[string]interface{}{
				"profile": r.profileIndex, "period": r.period, "error": r.err.Error(),
			})
			continue
		}
		s := r.result.Summary
		fmt.Printf("%-8d %-7d %-8d %-7d %-9.2f %-12.4f %-10.4f\n",
			r.profileIndex, r.period, len(r.result.Signals), s.TotalTrades, s.WinRate*100, s.TotalProfit, s.MaxDrawdown)
	}
}

func timeframe(interval, periods string) (resample.Timeframe, error) {
	d, err := resample.IntervalDuration(interval)
	if err != nil {
		return resample.Timeframe{}, err
	}
	perHour := 1
	if d < time.Hour {
		if time.Hour%d != 0 {
			return resample.Timeframe{}, fmt.Errorf("interval %s must divide one hour", interval)
		}
		perHour = int(time.Hour / d)
	}
	tf := resample.Timeframe{Interval: interval, CandlesPerHour: perHour}
	for _, p := range strings.Split(periods, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return resample.Timeframe{}, fmt.Errorf("invalid period %q", p)
		}
		tf.Periods = append(tf.Periods, n)
	}
	return tf, nil
}
