package engine

import (
	"testing"

	"go-ict/internal/config"
	"go-ict/internal/model"
)

func TestGuardEvaluate(t *testing.T) {
	g := NewGuard(config.Default().Risk.DrawdownLevels, nil)
	tests := []struct {
		dd      float64
		level   GuardLevel
		scale   float64
		entries bool
		force   bool
	}{
		{0, "GREEN", 1, true, false},
		{4.99, "GREEN", 1, true, false},
		{5, "YELLOW", 0.5, true, false},
		{12, "RED", 0.25, false, false},
		{25, "BLACK", 0.25, false, true},
		{1, "GREEN", 1, true, false},
	}
	for _, tt := range tests {
		got := g.Evaluate(model.Account{DrawdownPct: tt.dd})
		if got.Level != tt.level || got.AllowEntries != tt.entries || got.ForceClose != tt.force {
			t.Errorf("dd %v: got %+v", tt.dd, got)
		}
		if got.SizeScale != tt.scale {
			t.Errorf("dd %v: scale = %v, want %v", tt.dd, got.SizeScale, tt.scale)
		}
		if g.Level() != tt.level {
			t.Errorf("dd %v: Level() = %s", tt.dd, g.Level())
		}
	}
}

func TestGuardNoLevels(t *testing.T) {
	g := NewGuard(nil, nil)
	got := g.Evaluate(model.Account{DrawdownPct: 50})
	if got.Level != "NONE" || !got.AllowEntries || got.SizeScale != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateDrawdown(t *testing.T) {
	acct := UpdateDrawdown(model.Account{Equity: 1000})
	if acct.PeakEquity != 1000 || acct.DrawdownPct != 0 {
		t.Fatalf("initial = %+v", acct)
	}
	acct.Equity = 900
	acct = UpdateDrawdown(acct)
	if acct.PeakEquity != 1000 || !approx(acct.DrawdownPct, 10) {
		t.Errorf("after loss = %+v", acct)
	}
	acct.Equity = 1100
	acct = UpdateDrawdown(acct)
	if acct.PeakEquity != 1100 || acct.DrawdownPct != 0 {
		t.Errorf("new peak = %+v", acct)
	}
}
