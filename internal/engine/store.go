package engine

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"go-ict/internal/model"
)

const closedHistory = 200

// Store is a thread-safe in-memory view of bars, structure and positions
// for API consumers. The engine writes, readers take snapshots.
type Store struct {
	mu        sync.RWMutex
	barCap    int
	bars      map[string][]model.Bar          // symbol -> recent bars (capped)
	states    map[string]model.StructureState // symbol -> latest structure
	fvgs      map[string]model.FVG            // symbol -> gap at latest bar
	positions map[string]model.Position       // id -> open position
	closed    []model.Position                // most recent closed positions
	decisions map[string]model.Decision       // symbol -> latest decision
}

// SymbolSnapshot holds the latest state for a single symbol.
type SymbolSnapshot struct {
	Symbol        string               `json:"symbol"`
	LastBar       model.Bar            `json:"lastBar"`
	BarCount      int                  `json:"barCount"`
	Structure     model.StructureState `json:"structure"`
	FVG           model.FVG            `json:"fvg"`
	Decision      *model.Decision      `json:"decision,omitempty"`
	PositionCount int                  `json:"positionCount"`
}

// StoreSnapshot is a point-in-time snapshot of all store data.
type StoreSnapshot struct {
	Symbols   []SymbolSnapshot `json:"symbols"`
	Positions []model.Position `json:"positions"`
	Closed    []model.Position `json:"closed"`
}

// NewStore creates an empty store keeping at most barCap bars per symbol.
func NewStore(barCap int) *Store {
	if barCap <= 0 {
		barCap = 500
	}
	return &Store{
		barCap:    barCap,
		bars:      make(map[string][]model.Bar),
		states:    make(map[string]model.StructureState),
		fvgs:      make(map[string]model.FVG),
		positions: make(map[string]model.Position),
		decisions: make(map[string]model.Decision),
	}
}

// AddBar appends a bar with the analysis computed at it.
func (s *Store) AddBar(b model.Bar, state model.StructureState, fvg model.FVG) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append(s.bars[b.Symbol], b)
	if len(buf) > s.barCap {
		buf = buf[len(buf)-s.barCap:]
	}
	s.bars[b.Symbol] = buf
	s.states[b.Symbol] = state
	s.fvgs[b.Symbol] = fvg
}

// SetDecision records the latest decision for a symbol.
func (s *Store) SetDecision(symbol string, d model.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[symbol] = d
}

// UpsertPosition stores an open position or moves a closed one to history.
func (s *Store) UpsertPosition(pos model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !pos.Closed {
		s.positions[pos.ID] = pos
		return
	}
	delete(s.positions, pos.ID)
	s.closed = append(s.closed, pos)
	if len(s.closed) > closedHistory {
		s.closed = s.closed[len(s.closed)-closedHistory:]
	}
}

// GetPositions returns open positions, optionally filtered by symbol.
func (s *Store) GetPositions(symbol string) []model.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		out = append(out, pos)
	}
	slices.SortFunc(out, func(a, b model.Position) int { return a.EntryTime.Compare(b.EntryTime) })
	return out
}

// GetBars returns a copy of the recent bars for a symbol.
func (s *Store) GetBars(symbol string) []model.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.bars[symbol])
}

// LastBar returns the most recent bar for a symbol, if any.
func (s *Store) LastBar(symbol string) (model.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.bars[symbol]
	if len(list) == 0 {
		return model.Bar{}, false
	}
	return list[len(list)-1], true
}

// LatestBarTime returns the newest bar time across all symbols.
func (s *Store) LatestBarTime() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	var symbol string
	for sym, list := range s.bars {
		if len(list) == 0 {
			continue
		}
		if t := list[len(list)-1].Time; t.After(latest) {
			latest, symbol = t, sym
		}
	}
	return latest, symbol
}

// Snapshot returns a point-in-time copy of all state data.
func (s *Store) Snapshot() StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	positions := make([]model.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, pos)
		counts[pos.Symbol]++
	}
	slices.SortFunc(positions, func(a, b model.Position) int { return a.EntryTime.Compare(b.EntryTime) })

	symbols := make([]SymbolSnapshot, 0, len(s.bars))
	for symbol, list := range s.bars {
		snap := SymbolSnapshot{
			Symbol:        symbol,
			BarCount:      len(list),
			Structure:     s.states[symbol],
			FVG:           s.fvgs[symbol],
			PositionCount: counts[symbol],
		}
		if len(list) > 0 {
			snap.LastBar = list[len(list)-1]
		}
		if d, ok := s.decisions[symbol]; ok {
			snap.Decision = &d
		}
		symbols = append(symbols, snap)
	}
	slices.SortFunc(symbols, func(a, b SymbolSnapshot) int { return cmp.Compare(a.Symbol, b.Symbol) })

	return StoreSnapshot{
		Symbols:   symbols,
		Positions: positions,
		Closed:    slices.Clone(s.closed),
	}
}
