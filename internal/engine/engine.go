package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go-ict/internal/analysis"
	"go-ict/internal/config"
	"go-ict/internal/metrics"
	"go-ict/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by PushBar when the bar queue has no room.
var ErrQueueFull = errors.New("bar queue full")

const recentDecisions = 50

// Gateway sends orders to an executor. The bool reports whether the
// request was accepted.
type Gateway interface {
	Open(ctx context.Context, req model.OrderRequest) (bool, error)
	Close(ctx context.Context, req model.CloseRequest) (bool, error)
	CloseAll(ctx context.Context, symbol string) (bool, error)
}

// Marker is implemented by gateways that price positions from bar closes.
type Marker interface {
	Mark(symbol string, price float64, at time.Time)
}

// AccountReporter is implemented by gateways that know the account equity.
type AccountReporter interface {
	Account() model.Account
}

// Journal receives every decision and position event.
type Journal interface {
	RecordDecision(symbol string, d model.Decision, gate string) error
	RecordEvent(e model.PositionEvent) error
}

// Publisher pushes messages to dashboard clients.
type Publisher interface {
	Broadcast(msg model.WSMessage)
}

// Engine is the live orchestrator. For every bar it updates structure,
// manages open positions, then asks the decision engine for a new entry.
// All per-bar state is guarded by one mutex; bars are evaluated one at a time.
type Engine struct {
	mu       sync.Mutex
	window   int
	trackers map[string]*analysis.Tracker
	decider  *DecisionEngine
	manager  *Manager
	guard    *Guard
	gateway  Gateway
	journal  Journal
	pub      Publisher
	metrics  *metrics.Metrics
	store    *Store
	bars     chan model.Bar
	started  time.Time
	counters Counters
	recent   []model.Decision
	cfg      ConfigSnapshot
	logger   *zap.Logger
}

// StepResult is everything one bar produced.
type StepResult struct {
	Bar       model.Bar              `json:"bar"`
	Structure model.StructureState   `json:"structure"`
	FVG       model.FVG              `json:"fvg"`
	Changes   []model.PositionChange `json:"changes,omitempty"`
	Decision  model.Decision         `json:"decision"`
	Gate      string                 `json:"gate,omitempty"`
	Opened    *model.Position        `json:"opened,omitempty"`
}

// Counters tracks engine processing totals.
type Counters struct {
	BarCount       int64     `json:"barCount"`
	DecisionCount  int64     `json:"decisionCount"`
	RuleSetups     int64     `json:"ruleSetups"`
	OpenedCount    int64     `json:"openedCount"`
	ClosedCount    int64     `json:"closedCount"`
	ErrorCount     int64     `json:"errorCount"`
	LastBarAt      time.Time `json:"lastBarAt"`
	LastDecisionAt time.Time `json:"lastDecisionAt"`
	LastError      string    `json:"lastError,omitempty"`
}

// ConfigSnapshot is a serializable view of the active configuration.
type ConfigSnapshot struct {
	SwingWindow      int     `json:"swingWindow"`
	SessionStart     string  `json:"sessionStart"`
	SessionEnd       string  `json:"sessionEnd"`
	SessionLocation  string  `json:"sessionLocation"`
	MaxOpenPositions int     `json:"maxOpenPositions"`
	OrderSize        float64 `json:"orderSize"`
	GatewayMode      string  `json:"gatewayMode"`
}

// Status represents the current engine state for API consumers.
type Status struct {
	Time          time.Time        `json:"time"`
	StartedAt     time.Time        `json:"startedAt"`
	Snapshot      StoreSnapshot    `json:"snapshot"`
	PositionCount int              `json:"positionCount"`
	Guard         GuardLevel       `json:"guard"`
	Account       *model.Account   `json:"account,omitempty"`
	LastDecisions []model.Decision `json:"lastDecisions"`
	Counters      Counters         `json:"counters"`
	Config        ConfigSnapshot   `json:"config"`
	QueueDepth    int              `json:"queueDepth"`
}

// Deps are the collaborators injected into New. Journal, Publisher and
// Metrics may be nil.
type Deps struct {
	Decider   *DecisionEngine
	Gateway   Gateway
	Journal   Journal
	Publisher Publisher
	Metrics   *metrics.Metrics
}

// New creates an engine from configuration and collaborators.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Decider == nil {
		return nil, errors.New("engine: decision engine is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("engine: gateway is required")
	}
	if cfg.Analysis.SwingWindow < 1 {
		return nil, fmt.Errorf("engine: swing window must be >= 1, got %d", cfg.Analysis.SwingWindow)
	}
	queue := cfg.Gateway.QueueSize
	if queue <= 0 {
		queue = 256
	}
	return &Engine{
		window:   cfg.Analysis.SwingWindow,
		trackers: make(map[string]*analysis.Tracker),
		decider:  deps.Decider,
		manager:  NewManager(cfg.Lifecycle, nil),
		guard:    NewGuard(cfg.Risk.DrawdownLevels, nil),
		gateway:  deps.Gateway,
		journal:  deps.Journal,
		pub:      deps.Publisher,
		metrics:  deps.Metrics,
		store:    NewStore(cfg.Analysis.BarHistory),
		bars:     make(chan model.Bar, queue),
		started:  time.Now(),
		logger:   zap.NewNop(),
		cfg: ConfigSnapshot{
			SwingWindow:      cfg.Analysis.SwingWindow,
			SessionStart:     cfg.Session.Start,
			SessionEnd:       cfg.Session.End,
			SessionLocation:  cfg.Session.Location,
			MaxOpenPositions: cfg.Lifecycle.MaxOpenPositions,
			OrderSize:        cfg.Lifecycle.OrderSize,
			GatewayMode:      cfg.Gateway.Mode,
		},
	}, nil
}

// SetLogger sets the structured logger for the engine and its components.
func (e *Engine) SetLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
	e.manager.logger = logger.Named("lifecycle")
	e.guard.logger = logger.Named("guard")
	e.decider.SetLogger(logger.Named("decision"))
	e.decider.signals.SetLogger(logger.Named("signal"))
}

// Store returns the read-side state store.
func (e *Engine) Store() *Store {
	return e.store
}

// PushBar queues a bar for Run without blocking.
func (e *Engine) PushBar(b model.Bar) error {
	select {
	case e.bars <- b:
		return nil
	default:
		e.metrics.ObserveError("queue")
		return ErrQueueFull
	}
}

// Run consumes queued bars until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(5 * time.Second)
	defer heartbeat.Stop()

	e.logger.Info("engine_started",
		zap.Int("swing_window", e.cfg.SwingWindow),
		zap.String("gateway_mode", e.cfg.GatewayMode),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine_stopped")
			return ctx.Err()
		case b := <-e.bars:
			if _, err := e.Step(ctx, b); err != nil {
				e.logger.Warn("bar_failed",
					zap.String("symbol", b.Symbol),
					zap.Time("bar_time", b.Time),
					zap.Error(err),
				)
			}
		case now := <-heartbeat.C:
			e.publish("heartbeat", map[string]any{"queueDepth": len(e.bars)}, now)
		}
	}
}

// Step runs one bar through the incremental tracker and Process.
func (e *Engine) Step(ctx context.Context, b model.Bar) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.trackers[b.Symbol]
	if !ok {
		var err error
		tr, err = analysis.NewTracker(e.window)
		if err != nil {
			return StepResult{}, err
		}
		e.trackers[b.Symbol] = tr
	}
	state, fvg := tr.Push(b)
	return e.process(ctx, b, state, fvg)
}

// Process manages positions and decides on a bar whose structure and gap
// were computed by the caller (the backtest passes batch results here).
func (e *Engine) Process(ctx context.Context, b model.Bar, state model.StructureState, fvg model.FVG) (StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(ctx, b, state, fvg)
}

func (e *Engine) process(ctx context.Context, b model.Bar, state model.StructureState, fvg model.FVG) (StepResult, error) {
	res := StepResult{Bar: b, Structure: state, FVG: fvg}

	e.counters.BarCount++
	e.counters.LastBarAt = b.Time
	e.metrics.ObserveBar(b.Symbol)
	e.store.AddBar(b, state, fvg)
	e.publish("bar", res, b.Time)

	// exits first so a decision failure never blocks them
	changes, err := e.manager.OnNewBar(b, state)
	if err != nil {
		e.fail("lifecycle", err)
		return res, fmt.Errorf("managing positions: %w", err)
	}
	if m, ok := e.gateway.(Marker); ok {
		m.Mark(b.Symbol, b.Close, b.Time)
	}
	res.Changes = changes
	e.applyChanges(ctx, changes, b)

	if e.enforceGuard(ctx, b) {
		return res, nil
	}

	d, err := e.decider.Decide(ctx, b, state, fvg)
	res.Gate = e.decider.LastGate()
	if err != nil {
		e.fail("decision", err)
		e.logger.Error("decision_error",
			zap.String("symbol", b.Symbol),
			zap.Time("bar_time", b.Time),
			zap.Error(err),
		)
		return res, fmt.Errorf("deciding: %w", err)
	}
	res.Decision = d
	e.recordDecision(b.Symbol, d, res.Gate)

	if d.Actionable() {
		res.Opened = e.openFromSetup(ctx, *d.Setup)
	}
	e.metrics.SetOpenPositions(e.manager.Count())
	return res, nil
}

func (e *Engine) applyChanges(ctx context.Context, changes []model.PositionChange, b model.Bar) {
	for _, ch := range changes {
		for _, ev := range ch.Events {
			e.metrics.ObservePositionEvent(string(ev.Type), string(ev.Side))
			if e.journal != nil {
				if err := e.journal.RecordEvent(ev); err != nil {
					e.logger.Warn("journal_event_failed", zap.String("id", ev.PositionID), zap.Error(err))
				}
			}
			if ev.Size <= 0 {
				continue
			}
			ok, err := e.gateway.Close(ctx, model.CloseRequest{
				PositionID: ev.PositionID,
				Symbol:     ev.Symbol,
				Side:       ev.Side,
				Size:       ev.Size,
				Price:      ev.Price,
				Time:       ev.Time,
				Reason:     string(ev.Type),
			})
			e.metrics.ObserveOrder(string(model.CommandClose), ok && err == nil)
			if err != nil || !ok {
				e.fail("gateway", fmt.Errorf("close %s: accepted=%v err=%v", ev.PositionID, ok, err))
				e.logger.Error("close_failed",
					zap.String("id", ev.PositionID),
					zap.String("event", string(ev.Type)),
					zap.Bool("accepted", ok),
					zap.Error(err),
				)
			}
		}
		if ch.Closed {
			e.counters.ClosedCount++
		}
		e.store.UpsertPosition(ch.Position)
		e.publish("position", ch, b.Time)
	}
}

// enforceGuard closes everything when the drawdown guard demands it and
// reports whether new entries must be skipped.
func (e *Engine) enforceGuard(ctx context.Context, b model.Bar) bool {
	ar, ok := e.gateway.(AccountReporter)
	if !ok {
		return false
	}
	acct := ar.Account()
	e.metrics.SetEquity(acct.Equity)
	g := e.guard.Evaluate(acct)
	if !g.ForceClose || e.manager.Count() == 0 {
		return false
	}
	e.logger.Warn("guard_force_close",
		zap.String("level", string(g.Level)),
		zap.Float64("drawdown_pct", acct.DrawdownPct),
		zap.Int("positions", e.manager.Count()),
	)
	// every symbol closes at its own latest close, stamped with this bar's time
	var changes []model.PositionChange
	for _, sym := range e.openSymbols() {
		price := b.Close
		if sym != b.Symbol {
			if last, ok := e.store.LastBar(sym); ok {
				price = last.Close
			}
		}
		changes = append(changes, e.manager.CloseAll(sym, model.EventForced, b.Time, price, string(g.Level))...)
	}
	e.applyChanges(ctx, changes, b)
	// flatten anything the executor still holds
	if ok, err := e.gateway.CloseAll(ctx, ""); err != nil || !ok {
		e.fail("gateway", fmt.Errorf("close all: accepted=%v err=%v", ok, err))
	}
	e.metrics.SetOpenPositions(e.manager.Count())
	return true
}

func (e *Engine) openSymbols() []string {
	var syms []string
	for _, pos := range e.manager.Positions() {
		syms = append(syms, pos.Symbol)
	}
	slices.Sort(syms)
	return slices.Compact(syms)
}

func (e *Engine) openFromSetup(ctx context.Context, setup model.TradeSetup) *model.Position {
	if e.manager.Count() >= e.cfg.MaxOpenPositions {
		e.logger.Info("entry_skipped", zap.String("reason", "max_open_positions"), zap.Int("open", e.manager.Count()))
		return nil
	}
	scale := 1.0
	if ar, ok := e.gateway.(AccountReporter); ok {
		g := e.guard.Evaluate(ar.Account())
		if !g.AllowEntries {
			e.logger.Info("entry_skipped", zap.String("reason", "guard"), zap.String("level", string(g.Level)))
			return nil
		}
		scale = g.SizeScale
	}
	size := e.cfg.OrderSize * scale
	if size <= 0 {
		return nil
	}

	id := uuid.NewString()
	ok, err := e.gateway.Open(ctx, model.OrderRequest{
		PositionID: id,
		Symbol:     setup.Symbol,
		Side:       setup.Side,
		Size:       size,
		Price:      setup.EntryPrice,
		Stop:       setup.Stop,
		TakeProfit: setup.TP1,
		Time:       setup.EntryTime,
		Reason:     string(setup.Source),
	})
	e.metrics.ObserveOrder(string(model.CommandOpen), ok && err == nil)
	if err != nil || !ok {
		e.fail("gateway", fmt.Errorf("open: accepted=%v err=%v", ok, err))
		e.logger.Error("open_failed", zap.String("symbol", setup.Symbol), zap.Bool("accepted", ok), zap.Error(err))
		return nil
	}

	pos, err := e.manager.Open(id, setup, size)
	if err != nil {
		e.fail("lifecycle", err)
		return nil
	}
	e.counters.OpenedCount++
	for _, ev := range pos.Events {
		e.metrics.ObservePositionEvent(string(ev.Type), string(ev.Side))
		if e.journal != nil {
			if err := e.journal.RecordEvent(ev); err != nil {
				e.logger.Warn("journal_event_failed", zap.String("id", ev.PositionID), zap.Error(err))
			}
		}
	}
	e.store.UpsertPosition(pos)
	e.publish("position", model.PositionChange{Position: pos, Events: pos.Events}, setup.EntryTime)
	return &pos
}

func (e *Engine) recordDecision(symbol string, d model.Decision, gate string) {
	e.counters.DecisionCount++
	e.counters.LastDecisionAt = d.Time
	if d.Source == model.SourceRule {
		e.counters.RuleSetups++
	}
	e.recent = append(e.recent, d)
	if len(e.recent) > recentDecisions {
		e.recent = e.recent[len(e.recent)-recentDecisions:]
	}
	e.metrics.ObserveDecision(string(d.Source), string(d.Side))
	e.metrics.ObserveRejection(gate)
	e.store.SetDecision(symbol, d)
	if e.journal != nil {
		if err := e.journal.RecordDecision(symbol, d, gate); err != nil {
			e.logger.Warn("journal_decision_failed", zap.Error(err))
		}
	}
	e.publish("decision", d, d.Time)
}

func (e *Engine) fail(stage string, err error) {
	e.counters.ErrorCount++
	e.counters.LastError = err.Error()
	e.metrics.ObserveError(stage)
}

func (e *Engine) publish(typ string, data any, at time.Time) {
	if e.pub == nil {
		return
	}
	e.pub.Broadcast(model.WSMessage{Type: typ, Data: data, Timestamp: at})
}

// Positions returns copies of the open positions.
func (e *Engine) Positions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Positions()
}

// CloseAll force-closes every open position of symbol at price.
func (e *Engine) CloseAll(ctx context.Context, symbol string, typ model.EventType, at time.Time, price float64, reason string) []model.PositionChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	changes := e.manager.CloseAll(symbol, typ, at, price, reason)
	bar := model.Bar{Symbol: symbol, Time: at, Close: price}
	e.applyChanges(ctx, changes, bar)
	e.metrics.SetOpenPositions(e.manager.Count())
	return changes
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	snapshot := e.store.Snapshot()

	e.mu.Lock()
	counters := e.counters
	recent := make([]model.Decision, len(e.recent))
	copy(recent, e.recent)
	open := e.manager.Count()
	level := e.guard.Level()
	e.mu.Unlock()

	st := Status{
		Time:          time.Now(),
		StartedAt:     e.started,
		Snapshot:      snapshot,
		PositionCount: open,
		Guard:         level,
		LastDecisions: recent,
		Counters:      counters,
		Config:        e.cfg,
		QueueDepth:    len(e.bars),
	}
	if ar, ok := e.gateway.(AccountReporter); ok {
		acct := ar.Account()
		st.Account = &acct
	}
	return st
}
