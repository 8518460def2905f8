package engine

import (
	"fmt"
	"time"

	"go-ict/internal/analysis"
	"go-ict/internal/config"
	"go-ict/internal/model"

	"go.uber.org/zap"
)

// Gate names reported when a bar is rejected.
const (
	GatePassed     = ""
	GateSession    = "session"
	GateTrend      = "trend"
	GateStructure  = "structure"
	GateImbalance  = "imbalance"
	GateConfluence = "confluence"
	GatePullback   = "pullback"
)

// Session is a daily time-of-day window in a fixed location. Both bounds
// are inclusive.
type Session struct {
	Start time.Duration
	End   time.Duration
	Loc   *time.Location
}

// NewSession resolves the configured window.
func NewSession(cfg config.SessionConfig) (Session, error) {
	start, end, loc, err := cfg.Parse()
	if err != nil {
		return Session{}, err
	}
	return Session{Start: start, End: end, Loc: loc}, nil
}

// Contains reports whether t falls inside the window in the session location.
func (s Session) Contains(t time.Time) bool {
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	tod := time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second +
		time.Duration(lt.Nanosecond())
	return tod >= s.Start && tod <= s.End
}

// SignalResult is a setup (nil when rejected) and the gate that stopped it.
type SignalResult struct {
	Setup *model.TradeSetup
	Gate  string
}

// SignalGenerator evaluates the rule gates against one bar.
type SignalGenerator struct {
	session Session
	cfg     config.SignalConfig
	bands   []analysis.Band
	logger  *zap.Logger
}

// NewSignalGenerator creates a generator from signal and session configuration.
func NewSignalGenerator(cfg config.SignalConfig, sess config.SessionConfig) (*SignalGenerator, error) {
	session, err := NewSession(sess)
	if err != nil {
		return nil, fmt.Errorf("signal session: %w", err)
	}
	bands := make([]analysis.Band, 0, len(cfg.FibBands))
	for _, b := range cfg.FibBands {
		bands = append(bands, analysis.Band{From: b.From, To: b.To})
	}
	return &SignalGenerator{
		session: session,
		cfg:     cfg,
		bands:   bands,
		logger:  zap.NewNop(),
	}, nil
}

// SetLogger sets the structured logger.
func (g *SignalGenerator) SetLogger(logger *zap.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Generate returns a setup when every gate passes, nil when one rejects.
func (g *SignalGenerator) Generate(bar model.Bar, state model.StructureState, fvg model.FVG) (*model.TradeSetup, error) {
	res, err := g.Evaluate(bar, state, fvg)
	if err != nil {
		return nil, err
	}
	return res.Setup, nil
}

// Evaluate runs the gates in order and reports which one rejected the bar.
func (g *SignalGenerator) Evaluate(bar model.Bar, state model.StructureState, fvg model.FVG) (SignalResult, error) {
	if !g.session.Contains(bar.Time) {
		return SignalResult{Gate: GateSession}, nil
	}
	if err := validateSignalBar(bar); err != nil {
		return SignalResult{}, err
	}

	var side model.Side
	var want model.FVGDirection
	switch {
	case bar.EMA50H4 > bar.EMA200H4 && bar.RSIH4 > g.cfg.TrendRSI:
		side, want = model.SideBuy, model.FVGBullish
	case bar.EMA50H4 < bar.EMA200H4 && bar.RSIH4 < g.cfg.TrendRSI:
		side, want = model.SideSell, model.FVGBearish
	default:
		return SignalResult{Gate: GateTrend}, nil
	}

	if !state.Defined() {
		return SignalResult{Gate: GateStructure}, nil
	}
	if fvg.Direction != want {
		return SignalResult{Gate: GateImbalance}, nil
	}

	low, high := state.LastSwingLow, state.LastSwingHigh
	fib, err := analysis.FibonacciLevels(low, high)
	if err != nil {
		return SignalResult{}, fmt.Errorf("confluence at %s: %w", bar.Time.Format(time.RFC3339), err)
	}
	boundary := fvg.Top
	if side == model.SideSell {
		boundary = fvg.Bottom
	}
	if !g.inBands(low, high, boundary) {
		return SignalResult{Gate: GateConfluence}, nil
	}

	buf := g.cfg.PullbackATR * bar.ATR
	if !analysis.InZone(bar.Open, fvg, buf) && !analysis.InZone(bar.Close, fvg, buf) {
		return SignalResult{Gate: GatePullback}, nil
	}

	setup := g.build(bar, side, fvg, fib, low, high)
	g.logger.Debug("signal_generated",
		zap.String("symbol", bar.Symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", setup.EntryPrice),
		zap.Float64("stop", setup.Stop),
		zap.Float64("tp1", setup.TP1),
	)
	return SignalResult{Setup: setup}, nil
}

func (g *SignalGenerator) inBands(low, high, price float64) bool {
	for _, b := range g.bands {
		if b.Contains(low, high, price) {
			return true
		}
	}
	return false
}

func (g *SignalGenerator) build(bar model.Bar, side model.Side, fvg model.FVG, fib model.FibonacciLevels, low, high float64) *model.TradeSetup {
	entry := bar.Open
	atr := bar.ATR
	setup := &model.TradeSetup{
		Symbol:     bar.Symbol,
		Side:       side,
		EntryPrice: entry,
		EntryTime:  bar.Time,
		Source:     model.SourceRule,
		FVG:        fvg,
		Fib:        fib,
		ATR:        atr,
	}
	if side == model.SideBuy {
		setup.Stop = fvg.Bottom - g.cfg.StopATR*atr
		setup.TP1 = analysis.Extension(low, high, g.cfg.Extension)
		setup.TP2 = entry + g.cfg.TP2ATR*atr
		setup.TP3 = bar.VWAP + g.cfg.TP3ATR*atr
	} else {
		setup.Stop = fvg.Top + g.cfg.StopATR*atr
		setup.TP1 = analysis.ExtensionDown(low, high, g.cfg.Extension)
		setup.TP2 = entry - g.cfg.TP2ATR*atr
		setup.TP3 = bar.VWAP - g.cfg.TP3ATR*atr
	}
	return setup
}

func validateSignalBar(b model.Bar) error {
	if err := model.RequireFinite(b,
		model.FieldValue{Name: "open", Value: b.Open},
		model.FieldValue{Name: "close", Value: b.Close},
		model.FieldValue{Name: "vwap", Value: b.VWAP},
		model.FieldValue{Name: "ema50_h4", Value: b.EMA50H4},
		model.FieldValue{Name: "ema200_h4", Value: b.EMA200H4},
		model.FieldValue{Name: "rsi_h4", Value: b.RSIH4},
	); err != nil {
		return err
	}
	return model.RequirePositive(b, model.FieldValue{Name: "atr", Value: b.ATR})
}
