// Package bridge is the order gateway between the engine and an executor.
// Paper mode fills every request against an in-process book; queue mode
// forwards commands on a channel to an external executor process.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode represents how orders leave the process.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeQueue Mode = "queue"
)

var (
	// ErrUnknownPosition is returned when a close names a position the book does not hold.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrQueueStalled is returned by Ping when the command queue is full.
	ErrQueueStalled = errors.New("command queue full")
)

// Bridge implements the engine gateway in paper or queue mode.
type Bridge struct {
	mode   Mode
	book   *PaperBook
	cmdQ   chan model.Command
	logger *zap.Logger

	mu       sync.Mutex
	lastSent time.Time
}

// New builds a bridge from gateway configuration.
func New(cfg config.GatewayConfig, logger *zap.Logger) (*Bridge, error) {
	switch Mode(cfg.Mode) {
	case ModePaper:
		b := NewPaper(cfg.Balance)
		b.SetLogger(logger)
		return b, nil
	case ModeQueue:
		b := NewQueue(cfg.QueueSize)
		b.SetLogger(logger)
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported gateway mode %q", cfg.Mode)
	}
}

// NewPaper returns a bridge that fills orders against a paper book.
func NewPaper(balance float64) *Bridge {
	return &Bridge{mode: ModePaper, book: NewPaperBook(balance), logger: zap.NewNop()}
}

// NewQueue returns a bridge that forwards commands on a buffered channel.
func NewQueue(size int) *Bridge {
	if size <= 0 {
		size = 256
	}
	return &Bridge{mode: ModeQueue, cmdQ: make(chan model.Command, size), logger: zap.NewNop()}
}

// SetLogger sets the structured logger.
func (b *Bridge) SetLogger(logger *zap.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Mode returns the current gateway mode.
func (b *Bridge) Mode() Mode {
	return b.mode
}

// Commands exposes the outbound queue for an executor. It is nil in paper mode.
func (b *Bridge) Commands() <-chan model.Command {
	return b.cmdQ
}

// Open submits a new position.
func (b *Bridge) Open(ctx context.Context, req model.OrderRequest) (bool, error) {
	if b.book != nil {
		if err := b.book.Open(req); err != nil {
			return false, err
		}
		b.logger.Debug("paper_open", zap.String("id", req.PositionID), zap.Float64("price", req.Price))
		return true, nil
	}
	return b.send(ctx, model.Command{
		ID:         uuid.NewString(),
		Type:       model.CommandOpen,
		PositionID: req.PositionID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		Stop:       req.Stop,
		TakeProfit: req.TakeProfit,
		Reason:     req.Reason,
		Time:       req.Time,
	})
}

// Close reduces or closes one position.
func (b *Bridge) Close(ctx context.Context, req model.CloseRequest) (bool, error) {
	if b.book != nil {
		if _, err := b.book.Close(req); err != nil {
			return false, err
		}
		return true, nil
	}
	return b.send(ctx, model.Command{
		ID:         uuid.NewString(),
		Type:       model.CommandClose,
		PositionID: req.PositionID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
		Reason:     req.Reason,
		Time:       req.Time,
	})
}

// CloseAll closes every position of symbol ("" means all symbols).
func (b *Bridge) CloseAll(ctx context.Context, symbol string) (bool, error) {
	if b.book != nil {
		b.book.CloseAll(symbol, time.Now(), "CLOSE_ALL")
		return true, nil
	}
	return b.send(ctx, model.Command{
		ID:     uuid.NewString(),
		Type:   model.CommandCloseAll,
		Symbol: symbol,
		Reason: "CLOSE_ALL",
		Time:   time.Now(),
	})
}

// Mark updates the reference price of a symbol in paper mode.
func (b *Bridge) Mark(symbol string, price float64, at time.Time) {
	if b.book != nil {
		b.book.Mark(symbol, price, at)
	}
}

// Account returns the paper equity view. In queue mode it is zero.
func (b *Bridge) Account() model.Account {
	if b.book != nil {
		return b.book.Account()
	}
	return model.Account{}
}

// Book returns the paper book, nil in queue mode.
func (b *Bridge) Book() *PaperBook {
	return b.book
}

// Ping reports whether the gateway can accept commands.
func (b *Bridge) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.cmdQ != nil && len(b.cmdQ) == cap(b.cmdQ) {
		return ErrQueueStalled
	}
	return nil
}

// send forwards a command without blocking; a full queue rejects it.
func (b *Bridge) send(ctx context.Context, cmd model.Command) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case b.cmdQ <- cmd:
		b.mu.Lock()
		b.lastSent = time.Now()
		b.mu.Unlock()
		return true, nil
	default:
		b.logger.Warn("command_dropped",
			zap.String("type", string(cmd.Type)),
			zap.String("position_id", cmd.PositionID),
		)
		return false, nil
	}
}

// LastSent returns when the last command entered the queue.
func (b *Bridge) LastSent() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSent
}
