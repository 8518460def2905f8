package bridge

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/model"
)

var at = time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

func TestPaperPartialAndFullClose(t *testing.T) {
	b := NewPaper(10000)
	ctx := context.Background()

	ok, err := b.Open(ctx, model.OrderRequest{PositionID: "p1", Symbol: "XAUUSD", Side: model.SideBuy, Size: 3, Price: 100, Time: at})
	if err != nil || !ok {
		t.Fatalf("Open = %v, %v", ok, err)
	}
	if _, err := b.Open(ctx, model.OrderRequest{PositionID: "p1", Symbol: "XAUUSD", Side: model.SideBuy, Size: 1, Price: 100}); err == nil {
		t.Error("expected duplicate id error")
	}

	if _, err := b.Close(ctx, model.CloseRequest{PositionID: "p1", Size: 1, Price: 110, Time: at}); err != nil {
		t.Fatal(err)
	}
	b.Mark("XAUUSD", 104, at)
	acct := b.Account()
	if acct.Realized != 10 || acct.Unrealized != 8 || acct.Equity != 10018 {
		t.Errorf("account after partial = %+v", acct)
	}

	if _, err := b.Close(ctx, model.CloseRequest{PositionID: "p1", Size: 5, Price: 98, Time: at}); err != nil {
		t.Fatal(err)
	}
	if b.Book().OpenCount() != 0 {
		t.Errorf("position should be gone after closing the remainder")
	}
	acct = b.Account()
	if acct.Realized != 6 {
		t.Errorf("realized = %v, want 6", acct.Realized)
	}
	if acct.PeakEquity != 10018 || math.Abs(acct.DrawdownPct-12.0/10018*100) > 1e-9 {
		t.Errorf("drawdown = %+v", acct)
	}
	if n := len(b.Book().Fills()); n != 3 {
		t.Errorf("fills = %d, want 3", n)
	}
}

func TestPaperSellPnL(t *testing.T) {
	book := NewPaperBook(0)
	if err := book.Open(model.OrderRequest{PositionID: "s", Symbol: "EURUSD", Side: model.SideSell, Size: 2, Price: 50}); err != nil {
		t.Fatal(err)
	}
	fill, err := book.Close(model.CloseRequest{PositionID: "s", Size: 2, Price: 45})
	if err != nil {
		t.Fatal(err)
	}
	if fill.PnL != 10 {
		t.Errorf("sell pnl = %v, want 10", fill.PnL)
	}
}

func TestPaperCloseUnknown(t *testing.T) {
	b := NewPaper(100)
	_, err := b.Close(context.Background(), model.CloseRequest{PositionID: "nope", Size: 1})
	if !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("err = %v, want ErrUnknownPosition", err)
	}
}

func TestPaperCloseAllUsesMarks(t *testing.T) {
	book := NewPaperBook(1000)
	_ = book.Open(model.OrderRequest{PositionID: "a", Symbol: "XAUUSD", Side: model.SideBuy, Size: 1, Price: 100})
	_ = book.Open(model.OrderRequest{PositionID: "b", Symbol: "EURUSD", Side: model.SideBuy, Size: 1, Price: 1})
	book.Mark("XAUUSD", 103, at)

	fills := book.CloseAll("XAUUSD", at, "end")
	if len(fills) != 1 || fills[0].PnL != 3 {
		t.Fatalf("fills = %+v", fills)
	}
	if book.OpenCount() != 1 {
		t.Errorf("EURUSD position should stay open")
	}
}

func TestQueueForwardsCommands(t *testing.T) {
	b := NewQueue(1)
	ctx := context.Background()

	ok, err := b.Open(ctx, model.OrderRequest{PositionID: "p1", Symbol: "XAUUSD", Side: model.SideBuy, Size: 1, Price: 100})
	if err != nil || !ok {
		t.Fatalf("Open = %v, %v", ok, err)
	}
	if err := b.Ping(ctx); !errors.Is(err, ErrQueueStalled) {
		t.Errorf("Ping on full queue = %v", err)
	}
	ok, err = b.CloseAll(ctx, "XAUUSD")
	if err != nil || ok {
		t.Errorf("CloseAll on full queue = %v, %v; want rejected", ok, err)
	}

	cmd := <-b.Commands()
	if cmd.Type != model.CommandOpen || cmd.PositionID != "p1" || cmd.ID == "" {
		t.Errorf("command = %+v", cmd)
	}
	if err := b.Ping(ctx); err != nil {
		t.Errorf("Ping = %v", err)
	}
	if b.LastSent().IsZero() {
		t.Error("LastSent not recorded")
	}
}

func TestNewFromConfig(t *testing.T) {
	b, err := New(config.GatewayConfig{Mode: "queue", QueueSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Mode() != ModeQueue || cap(b.cmdQ) != 4 {
		t.Errorf("bridge = %v cap %d", b.Mode(), cap(b.cmdQ))
	}
	if _, err := New(config.GatewayConfig{Mode: "live"}, nil); err == nil {
		t.Error("expected error for unsupported mode")
	}
}
