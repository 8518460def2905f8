// ict-backtest replays a JSON-lines bar file through the engine against a
// paper book, prints per-symbol metrics and optionally writes the trade log
// and per-bar rule labels as CSV.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"go-ict/internal/analysis"
	"go-ict/internal/backtest"
	"go-ict/internal/classifier"
	"go-ict/internal/config"
	"go-ict/internal/engine"
	"go-ict/internal/feed"
	"go-ict/internal/journal"
	"go-ict/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults apply when absent)")
	barsPath := flag.String("bars", "", "JSON-lines bar file (required)")
	tradesPath := flag.String("trades", "", "write the trade log CSV here")
	labelsPath := flag.String("labels", "", "write per-bar rule labels CSV here")
	confirm := flag.Bool("confirm", false, "fold swings only once confirmed (no lookahead)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *barsPath == "" {
		fmt.Fprintln(os.Stderr, "ict-backtest: -bars is required")
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*configPath, *barsPath, *tradesPath, *labelsPath, *confirm, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "ict-backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, barsPath, tradesPath, labelsPath string, confirm bool, level string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if confirm {
		cfg.Analysis.ConfirmSwings = true
	}

	logCfg := cfg.Log
	logCfg.File = ""
	log, err := logging.Build(logCfg, level)
	if err != nil {
		return err
	}
	defer log.Sync()

	bars, err := feed.Load(barsPath)
	if err != nil {
		return err
	}
	series, err := feed.BySymbol(bars, cfg.App.Symbol)
	if err != nil {
		return err
	}

	opts := backtest.Options{Logger: log}
	if cfg.Classifier.ModelPath != "" {
		sm, err := classifier.Load(cfg.Classifier.ModelPath)
		if err != nil {
			return err
		}
		if err := sm.CheckFeatures(engine.FeatureNames); err != nil {
			return err
		}
		opts.Classifier = sm
	}
	if cfg.Journal.SQLitePath != "" {
		rec, err := journal.NewSQLiteRecorder(cfg.Journal.SQLitePath, log.Named("journal"))
		if err != nil {
			return err
		}
		defer rec.Close()
		opts.Journal = rec
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	reports, err := backtest.RunMany(ctx, cfg, series, opts)
	if err != nil {
		return err
	}
	log.Info("backtest_finished", zap.Int("series", len(reports)), zap.Duration("elapsed", time.Since(start)))
	printReports(reports)

	if tradesPath != "" {
		if err := writeTrades(tradesPath, reports); err != nil {
			return err
		}
	}
	if labelsPath != "" {
		if err := writeLabels(labelsPath, cfg, series); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(flagValue string) (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(flagValue))
	if err != nil && flagValue == "" && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func printReports(reports []backtest.Report) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBARS\tSKIPPED\tDEGENERATE\tTRADES\tWIN RATE\tPROFIT FACTOR\tNET PNL\tMAX DD\tEXPECTANCY")
	for _, r := range reports {
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f%%\t%.3f\t%.5f\t%.5f\t%.5f\n",
			r.Symbol, r.Bars, r.SkippedBars, r.DegenerateBars, m.Trades, m.WinRate*100, m.ProfitFactor, m.NetPnL, m.MaxDrawdown, m.Expectancy)
	}
	tw.Flush()
}

func writeTrades(path string, reports []backtest.Report) error {
	rows := [][]string{{"position_id", "symbol", "side", "entry_time", "exit_time", "entry_price", "exit_price", "size", "pnl", "exit_reason", "atr_entry", "vwap_entry"}}
	for _, r := range reports {
		for _, t := range r.Trades {
			rows = append(rows, []string{
				t.PositionID, t.Symbol, string(t.Side),
				t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
				ff(t.EntryPrice), ff(t.ExitPrice), ff(t.Size), ff(t.PnL),
				t.ExitReason, ff(t.ATREntry), ff(t.VWAPEntry),
			})
		}
	}
	return writeCSV(path, rows)
}

func writeLabels(path string, cfg *config.Config, series []analysis.Series) error {
	rows := [][]string{{"symbol", "time", "label"}}
	for _, s := range series {
		labels, err := backtest.Label(cfg, s.Bars)
		if err != nil {
			return fmt.Errorf("labeling %s: %w", s.Symbol, err)
		}
		for i, b := range s.Bars {
			rows = append(rows, []string{s.Symbol, b.Time.Format(time.RFC3339), string(labels[i])})
		}
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
