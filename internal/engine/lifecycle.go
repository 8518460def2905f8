package engine

import (
	"fmt"
	"math"
	"slices"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns open positions and advances them one bar at a time.
//
// For each position the checks run in a fixed priority: stop-loss,
// structure reversal, breakeven, TP1, TP2, TP3. Only the first two remove a
// position; the later ones may all fire on the same bar. Target partials
// reduce Remaining by a fraction of the original size.
type Manager struct {
	cfg       config.LifecycleConfig
	positions []*model.Position
	logger    *zap.Logger
}

// NewManager creates an empty lifecycle manager.
func NewManager(cfg config.LifecycleConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Open registers a position for an accepted setup. An empty id gets a
// fresh UUID.
func (m *Manager) Open(id string, setup model.TradeSetup, size float64) (model.Position, error) {
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return model.Position{}, fmt.Errorf("position size must be > 0, got %v", size)
	}
	if setup.Side != model.SideBuy && setup.Side != model.SideSell {
		return model.Position{}, fmt.Errorf("cannot open position with side %q", setup.Side)
	}
	if id == "" {
		id = uuid.NewString()
	}
	pos := &model.Position{
		ID:         id,
		Symbol:     setup.Symbol,
		Side:       setup.Side,
		EntryPrice: setup.EntryPrice,
		EntryTime:  setup.EntryTime,
		Stop:       setup.Stop,
		TP1:        setup.TP1,
		TP2:        setup.TP2,
		TP3:        setup.TP3,
		Size:       size,
		Remaining:  size,
	}
	appendEvent(pos, model.EventOpened, setup.EntryTime, setup.EntryPrice, size, string(setup.Source))
	m.positions = append(m.positions, pos)

	m.logger.Info("position_opened",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.Stop),
		zap.Float64("size", size),
	)
	return snapshot(pos), nil
}

// OnNewBar applies one bar to every open position of the bar's symbol and
// returns one change per position that recorded at least one event.
func (m *Manager) OnNewBar(bar model.Bar, state model.StructureState) ([]model.PositionChange, error) {
	if err := model.RequireFinite(bar,
		model.FieldValue{Name: "close", Value: bar.Close},
		model.FieldValue{Name: "vwap", Value: bar.VWAP},
	); err != nil {
		return nil, err
	}
	if err := model.RequirePositive(bar, model.FieldValue{Name: "atr", Value: bar.ATR}); err != nil {
		return nil, err
	}

	var changes []model.PositionChange
	kept := m.positions[:0]
	for _, pos := range m.positions {
		if pos.Symbol != bar.Symbol {
			kept = append(kept, pos)
			continue
		}
		before := len(pos.Events)
		m.advance(pos, bar, state)
		if len(pos.Events) > before {
			changes = append(changes, model.PositionChange{
				Position: snapshot(pos),
				Events:   slices.Clone(pos.Events[before:]),
				Closed:   pos.Closed,
			})
		}
		if !pos.Closed {
			kept = append(kept, pos)
		}
	}
	clear(m.positions[len(kept):])
	m.positions = kept
	return changes, nil
}

func (m *Manager) advance(pos *model.Position, bar model.Bar, state model.StructureState) {
	price := bar.Close
	buy := pos.Side == model.SideBuy

	if (buy && price <= pos.Stop) || (!buy && price >= pos.Stop) {
		m.terminate(pos, model.EventStopLoss, bar.Time, price, "stop reached")
		return
	}
	if (buy && state.BearishMSS) || (!buy && state.BullishMSS) {
		m.terminate(pos, model.EventReversal, bar.Time, price, "opposite structure shift")
		return
	}

	if !pos.BreakevenSet && ((buy && price > bar.VWAP) || (!buy && price < bar.VWAP)) {
		pos.Stop = pos.EntryPrice
		pos.BreakevenSet = true
		appendEvent(pos, model.EventBreakeven, bar.Time, price, 0, "close crossed vwap")
	}

	if !pos.TP1Hit && reached(buy, price, pos.TP1) {
		pos.TP1Hit = true
		pos.Stop = pos.EntryPrice + pos.Side.Sign()*m.cfg.TP1StopATR*bar.ATR
		m.partial(pos, model.EventTP1, bar.Time, price, 0)
	}
	if !pos.TP2Hit && reached(buy, price, pos.TP2) {
		pos.TP2Hit = true
		m.partial(pos, model.EventTP2, bar.Time, price, 1)
	}

	if !pos.TP3Hit {
		pos.TP3 = bar.VWAP + pos.Side.Sign()*m.cfg.TP3ATR*bar.ATR
		if reached(buy, price, pos.TP3) {
			pos.TP3Hit = true
			m.partial(pos, model.EventTP3, bar.Time, price, 2)
		}
	}
}

func reached(buy bool, price, level float64) bool {
	if buy {
		return price >= level
	}
	return price <= level
}

func (m *Manager) partial(pos *model.Position, typ model.EventType, at time.Time, price float64, idx int) {
	size := 0.0
	if idx < len(m.cfg.Partials) {
		size = math.Min(pos.Size*m.cfg.Partials[idx], pos.Remaining)
	}
	pos.Remaining -= size
	appendEvent(pos, typ, at, price, size, "")
	m.logger.Info("position_target_hit",
		zap.String("id", pos.ID),
		zap.String("target", string(typ)),
		zap.Float64("price", price),
		zap.Float64("closed", size),
		zap.Float64("remaining", pos.Remaining),
		zap.Float64("stop", pos.Stop),
	)
}

func (m *Manager) terminate(pos *model.Position, typ model.EventType, at time.Time, price float64, reason string) {
	size := pos.Remaining
	pos.Remaining = 0
	pos.Closed = true
	appendEvent(pos, typ, at, price, size, reason)
	m.logger.Info("position_closed",
		zap.String("id", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(typ)),
		zap.Float64("price", price),
		zap.Float64("size", size),
	)
}

// CloseAll terminates every open position of symbol ("" means all) at price
// with the given event type. Used for forced exits and end-of-data marks.
func (m *Manager) CloseAll(symbol string, typ model.EventType, at time.Time, price float64, reason string) []model.PositionChange {
	var changes []model.PositionChange
	kept := m.positions[:0]
	for _, pos := range m.positions {
		if symbol != "" && pos.Symbol != symbol {
			kept = append(kept, pos)
			continue
		}
		before := len(pos.Events)
		m.terminate(pos, typ, at, price, reason)
		changes = append(changes, model.PositionChange{
			Position: snapshot(pos),
			Events:   slices.Clone(pos.Events[before:]),
			Closed:   true,
		})
	}
	clear(m.positions[len(kept):])
	m.positions = kept
	return changes
}

// Positions returns copies of the open positions in opening order.
func (m *Manager) Positions() []model.Position {
	out := make([]model.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, snapshot(pos))
	}
	return out
}

// Count returns the number of open positions.
func (m *Manager) Count() int { return len(m.positions) }

func appendEvent(pos *model.Position, typ model.EventType, at time.Time, price, size float64, reason string) {
	pos.Events = append(pos.Events, model.PositionEvent{
		Seq:        len(pos.Events) + 1,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Type:       typ,
		Time:       at,
		Price:      price,
		Stop:       pos.Stop,
		Size:       size,
		Reason:     reason,
	})
}

func snapshot(pos *model.Position) model.Position {
	out := *pos
	out.Events = slices.Clone(pos.Events)
	return out
}
