package bridge

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go-ict/internal/model"

	"github.com/google/uuid"
)

const sizeEpsilon = 1e-12

type paperPosition struct {
	id        string
	symbol    string
	side      model.Side
	entry     float64
	remaining float64
}

// PaperBook is a thread-safe simulated account. Fills happen at the
// requested price; unrealized PnL uses the last mark per symbol.
type PaperBook struct {
	mu        sync.Mutex
	balance   float64
	realized  float64
	peak      float64
	positions map[string]*paperPosition
	marks     map[string]float64
	fills     []model.Fill
}

// NewPaperBook creates a book with a starting balance.
func NewPaperBook(balance float64) *PaperBook {
	return &PaperBook{
		balance:   balance,
		peak:      balance,
		positions: make(map[string]*paperPosition),
		marks:     make(map[string]float64),
	}
}

// Open adds a position under the request's ID.
func (p *PaperBook) Open(req model.OrderRequest) error {
	if req.Size <= 0 {
		return fmt.Errorf("paper open %s: size must be > 0", req.PositionID)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("paper open %s: invalid side %q", req.PositionID, req.Side)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.positions[req.PositionID]; ok {
		return fmt.Errorf("paper open %s: position already exists", req.PositionID)
	}
	p.positions[req.PositionID] = &paperPosition{
		id:        req.PositionID,
		symbol:    req.Symbol,
		side:      req.Side,
		entry:     req.Price,
		remaining: req.Size,
	}
	if _, ok := p.marks[req.Symbol]; !ok {
		p.marks[req.Symbol] = req.Price
	}
	p.fills = append(p.fills, model.Fill{
		Ticket:     uuid.NewString(),
		PositionID: req.PositionID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       model.CommandOpen,
		Size:       req.Size,
		Price:      req.Price,
		Time:       req.Time,
		Reason:     req.Reason,
	})
	return nil
}

// Close realizes PnL on up to req.Size of a position and returns the fill.
func (p *PaperBook) Close(req model.CloseRequest) (model.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[req.PositionID]
	if !ok {
		return model.Fill{}, fmt.Errorf("paper close %s: %w", req.PositionID, ErrUnknownPosition)
	}
	return p.closeLocked(pos, req.Size, req.Price, req.Time, req.Reason), nil
}

// CloseAll closes every position of symbol ("" means all) at its mark.
func (p *PaperBook) CloseAll(symbol string, at time.Time, reason string) []model.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.positions))
	for id, pos := range p.positions {
		if symbol == "" || pos.symbol == symbol {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	fills := make([]model.Fill, 0, len(ids))
	for _, id := range ids {
		pos := p.positions[id]
		price, ok := p.marks[pos.symbol]
		if !ok {
			price = pos.entry
		}
		fills = append(fills, p.closeLocked(pos, pos.remaining, price, at, reason))
	}
	return fills
}

func (p *PaperBook) closeLocked(pos *paperPosition, size, price float64, at time.Time, reason string) model.Fill {
	size = math.Min(size, pos.remaining)
	pnl := (price - pos.entry) * size * pos.side.Sign()
	pos.remaining -= size
	p.realized += pnl
	p.balance += pnl
	if pos.remaining <= sizeEpsilon {
		delete(p.positions, pos.id)
	}
	fill := model.Fill{
		Ticket:     uuid.NewString(),
		PositionID: pos.id,
		Symbol:     pos.symbol,
		Side:       pos.side,
		Type:       model.CommandClose,
		Size:       size,
		Price:      price,
		PnL:        pnl,
		Time:       at,
		Reason:     reason,
	}
	p.fills = append(p.fills, fill)
	return fill
}

// Mark sets the reference price of symbol.
func (p *PaperBook) Mark(symbol string, price float64, _ time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

// Account returns balance, equity and drawdown from the peak equity seen
// by previous calls.
func (p *PaperBook) Account() model.Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	unrealized := 0.0
	for _, pos := range p.positions {
		if mark, ok := p.marks[pos.symbol]; ok {
			unrealized += (mark - pos.entry) * pos.remaining * pos.side.Sign()
		}
	}
	equity := p.balance + unrealized
	if equity > p.peak {
		p.peak = equity
	}
	acct := model.Account{
		Balance:    p.balance,
		Equity:     equity,
		PeakEquity: p.peak,
		Realized:   p.realized,
		Unrealized: unrealized,
	}
	if p.peak > 0 {
		acct.DrawdownPct = (p.peak - equity) / p.peak * 100
	}
	return acct
}

// Fills returns a copy of every fill in execution order.
func (p *PaperBook) Fills() []model.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.fills)
}

// OpenCount returns the number of positions with remaining size.
func (p *PaperBook) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.positions)
}
