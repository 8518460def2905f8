package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-ict/internal/bridge"
	"go-ict/internal/config"
	"go-ict/internal/model"

	"go.uber.org/zap"
)

func TestBuildWiresComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Journal.SQLitePath = filepath.Join(t.TempDir(), "journal.db")
	c, err := Build(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Journal.Close()

	if c.Bridge.Mode() != bridge.ModePaper {
		t.Errorf("mode = %s", c.Bridge.Mode())
	}
	b := model.Bar{Symbol: "XAUUSD", Time: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, ATR: 1, VWAP: 1}
	if _, err := c.Engine.Step(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	recs, err := c.Journal.RecentDecisions(10)
	if err != nil || len(recs) != 1 || recs[0].Gate != "session" {
		t.Errorf("journal decisions = %+v, %v", recs, err)
	}
	if r := c.Scheduler.Check(context.Background()); !r.GatewayOK || r.Symbol != "XAUUSD" {
		t.Errorf("health = %+v", r)
	}
}

func TestBuildMissingModel(t *testing.T) {
	cfg := config.Default()
	cfg.Classifier.ModelPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := Build(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for missing model file")
	}
}

type collect struct{ msgs chan model.WSMessage }

func (c collect) Broadcast(m model.WSMessage) { c.msgs <- m }

func TestForwardCommands(t *testing.T) {
	cmds := make(chan model.Command, 1)
	pub := collect{msgs: make(chan model.WSMessage, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ForwardCommands(ctx, cmds, pub, zap.NewNop()) }()

	cmds <- model.Command{ID: "c1", Type: model.CommandOpen}
	select {
	case msg := <-pub.msgs:
		if msg.Type != "command" || msg.Data.(model.Command).ID != "c1" {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not forwarded")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
