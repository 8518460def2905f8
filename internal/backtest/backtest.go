// Package backtest replays historical bars through the live engine against
// a paper book and summarizes the resulting trades.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"go-ict/internal/analysis"
	"go-ict/internal/bridge"
	"go-ict/internal/config"
	"go-ict/internal/engine"
	"go-ict/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options are optional collaborators of a run.
type Options struct {
	Classifier engine.Classifier
	Journal    engine.Journal
	Logger     *zap.Logger
}

// Trade is one position from entry to its final exit.
type Trade struct {
	PositionID string     `json:"positionId"`
	Symbol     string     `json:"symbol"`
	Side       model.Side `json:"side"`
	EntryTime  time.Time  `json:"entryTime"`
	ExitTime   time.Time  `json:"exitTime"`
	EntryPrice float64    `json:"entryPrice"`
	ExitPrice  float64    `json:"exitPrice"` // size-weighted over all exits
	Size       float64    `json:"size"`
	PnL        float64    `json:"pnl"`
	ExitReason string     `json:"exitReason"`
	ATREntry   float64    `json:"atrEntry"`
	VWAPEntry  float64    `json:"vwapEntry"`
}

// Report is the outcome of one series.
type Report struct {
	Symbol         string        `json:"symbol"`
	Bars           int           `json:"bars"`
	SkippedBars    int           `json:"skippedBars"`
	DegenerateBars int           `json:"degenerateBars"`
	RuleSetups     int           `json:"ruleSetups"`
	ModelSignals   int           `json:"modelSignals"`
	Trades         []Trade       `json:"trades"`
	Metrics        Metrics       `json:"metrics"`
	Account        model.Account `json:"account"`
}

type entryContext struct {
	atr  float64
	vwap float64
}

// Run replays one series. Bars that fail validation or hit a degenerate
// swing range are skipped, counted and logged; any other error aborts the
// run. Positions still open after the
// last bar are closed at its close with a MARK_CLOSE event.
func Run(ctx context.Context, cfg *config.Config, s analysis.Series, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rep := Report{Symbol: s.Symbol, Bars: len(s.Bars)}
	if len(s.Bars) == 0 {
		return rep, nil
	}

	gw := bridge.NewPaper(cfg.Gateway.Balance)
	signals, err := engine.NewSignalGenerator(cfg.Signal, cfg.Session)
	if err != nil {
		return rep, err
	}
	eng, err := engine.New(cfg, engine.Deps{
		Decider: engine.NewDecisionEngine(signals, opts.Classifier),
		Gateway: gw,
		Journal: opts.Journal,
	})
	if err != nil {
		return rep, err
	}
	eng.SetLogger(logger.With(zap.String("symbol", s.Symbol)))

	var batch analysis.Result
	if !cfg.Analysis.ConfirmSwings {
		if batch, err = analysis.Analyze(s.Bars, cfg.Analysis.SwingWindow, false); err != nil {
			return rep, err
		}
	}

	entries := make(map[string]entryContext)
	for i, b := range s.Bars {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if b.Symbol == "" {
			b.Symbol = s.Symbol
		}
		var res engine.StepResult
		if cfg.Analysis.ConfirmSwings {
			res, err = eng.Step(ctx, b)
		} else {
			res, err = eng.Process(ctx, b, batch.States[i], batch.FVGs[i])
		}
		if err != nil {
			// exits for this bar were already applied; only its decision is lost
			switch {
			case errors.Is(err, model.ErrInvalidBar):
				rep.SkippedBars++
			case errors.Is(err, model.ErrDegenerateRange):
				rep.DegenerateBars++
			default:
				return rep, fmt.Errorf("bar %d (%s): %w", i, b.Time.Format(time.RFC3339), err)
			}
			logger.Warn("backtest_bar_skipped",
				zap.String("symbol", s.Symbol),
				zap.Int("index", i),
				zap.Time("bar_time", b.Time),
				zap.Error(err),
			)
			continue
		}
		switch {
		case res.Decision.Source == model.SourceRule:
			rep.RuleSetups++
		case res.Decision.Side == model.SideBuy || res.Decision.Side == model.SideSell:
			rep.ModelSignals++
		}
		if res.Opened != nil {
			entries[res.Opened.ID] = entryContext{atr: b.ATR, vwap: b.VWAP}
		}
	}

	last := s.Bars[len(s.Bars)-1]
	eng.CloseAll(ctx, s.Symbol, model.EventMarkClose, last.Time, last.Close, "end of data")

	rep.Trades = tradesFromFills(gw.Book().Fills(), entries)
	rep.Metrics = Compute(byExit(rep.Trades), cfg.Gateway.Balance)
	rep.Account = gw.Account()
	logger.Info("backtest_complete",
		zap.String("symbol", s.Symbol),
		zap.Int("bars", rep.Bars),
		zap.Int("skipped", rep.SkippedBars),
		zap.Int("degenerate", rep.DegenerateBars),
		zap.Int("trades", len(rep.Trades)),
		zap.Float64("net_pnl", rep.Metrics.NetPnL),
	)
	return rep, nil
}

// RunMany replays independent series in parallel; reports keep input order.
func RunMany(ctx context.Context, cfg *config.Config, series []analysis.Series, opts Options) ([]Report, error) {
	reports := make([]Report, len(series))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range series {
		g.Go(func() error {
			rep, err := Run(ctx, cfg, s, opts)
			if err != nil {
				return fmt.Errorf("backtest %s: %w", s.Symbol, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func tradesFromFills(fills []model.Fill, entries map[string]entryContext) []Trade {
	byID := make(map[string]*Trade)
	exitNotional := make(map[string]float64)
	exitSize := make(map[string]float64)
	var order []string

	for _, f := range fills {
		switch f.Type {
		case model.CommandOpen:
			ec := entries[f.PositionID]
			byID[f.PositionID] = &Trade{
				PositionID: f.PositionID,
				Symbol:     f.Symbol,
				Side:       f.Side,
				EntryTime:  f.Time,
				EntryPrice: f.Price,
				Size:       f.Size,
				ATREntry:   ec.atr,
				VWAPEntry:  ec.vwap,
			}
			order = append(order, f.PositionID)
		case model.CommandClose:
			t, ok := byID[f.PositionID]
			if !ok {
				continue
			}
			t.PnL += f.PnL
			t.ExitTime = f.Time
			t.ExitReason = f.Reason
			exitNotional[f.PositionID] += f.Price * f.Size
			exitSize[f.PositionID] += f.Size
		}
	}

	trades := make([]Trade, 0, len(order))
	for _, id := range order {
		t := byID[id]
		if sz := exitSize[id]; sz > 0 {
			t.ExitPrice = exitNotional[id] / sz
		}
		trades = append(trades, *t)
	}
	slices.SortStableFunc(trades, func(a, b Trade) int { return a.EntryTime.Compare(b.EntryTime) })
	return trades
}

// byExit returns trades ordered by exit time, the order their PnL lands on
// the equity curve.
func byExit(trades []Trade) []Trade {
	out := slices.Clone(trades)
	slices.SortStableFunc(out, func(a, b Trade) int { return a.ExitTime.Compare(b.ExitTime) })
	return out
}
