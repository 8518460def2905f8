package engine

import (
	"errors"
	"math"
	"testing"

	"go-ict/internal/model"
)

func buySetup() model.TradeSetup {
	return model.TradeSetup{
		Symbol: "XAUUSD", Side: model.SideBuy, Source: model.SourceRule,
		EntryPrice: 100, EntryTime: at(0),
		Stop: 98, TP1: 104, TP2: 106, TP3: 101,
	}
}

func lifecycleBar(i int, close, vwap float64) model.Bar {
	b := flat(i, close)
	b.VWAP = vwap
	b.ATR = 2
	return b
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(testConfig().Lifecycle, nil)
}

func eventTypes(evs []model.PositionEvent) []model.EventType {
	out := make([]model.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func sameTypes(got []model.PositionEvent, want ...model.EventType) bool {
	types := eventTypes(got)
	if len(types) != len(want) {
		return false
	}
	for i := range want {
		if types[i] != want[i] {
			return false
		}
	}
	return true
}

func TestOpenValidation(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open("", buySetup(), 0); err == nil {
		t.Error("zero size accepted")
	}
	bad := buySetup()
	bad.Side = model.SideNoTrade
	if _, err := m.Open("", bad, 1); err == nil {
		t.Error("NoTrade side accepted")
	}
	pos, err := m.Open("", buySetup(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if pos.ID == "" || pos.Remaining != 1 || !sameTypes(pos.Events, model.EventOpened) {
		t.Errorf("position = %+v", pos)
	}
	if pos.Events[0].Seq != 1 || pos.Events[0].Reason != string(model.SourceRule) {
		t.Errorf("open event = %+v", pos.Events[0])
	}
}

func TestStopTakesPriorityOverReversal(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open("p1", buySetup(), 1); err != nil {
		t.Fatal(err)
	}
	changes, err := m.OnNewBar(lifecycleBar(1, 97.5, 99), model.StructureState{BearishMSS: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || !changes[0].Closed {
		t.Fatalf("changes = %+v", changes)
	}
	if !sameTypes(changes[0].Events, model.EventStopLoss) {
		t.Errorf("events = %v", eventTypes(changes[0].Events))
	}
	if changes[0].Events[0].Size != 1 || changes[0].Position.Remaining != 0 {
		t.Errorf("closed size = %v, remaining = %v", changes[0].Events[0].Size, changes[0].Position.Remaining)
	}
	if m.Count() != 0 {
		t.Errorf("open count = %d", m.Count())
	}
}

func TestReversalExit(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open("p1", buySetup(), 1); err != nil {
		t.Fatal(err)
	}
	// a bullish shift does not affect a buy
	changes, _ := m.OnNewBar(lifecycleBar(1, 99.5, 100), model.StructureState{BullishMSS: true})
	if len(changes) != 0 {
		t.Fatalf("unexpected changes %+v", changes)
	}
	changes, _ = m.OnNewBar(lifecycleBar(2, 101, 102), model.StructureState{BearishMSS: true})
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventReversal) {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestTargetsAndTrailingStop(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open("p1", buySetup(), 3); err != nil {
		t.Fatal(err)
	}

	// breakeven and TP1 on the same bar; TP3 = 104.2 + 0.5*2 is not reached
	changes, err := m.OnNewBar(lifecycleBar(1, 104.5, 104.2), model.StructureState{})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventBreakeven, model.EventTP1) {
		t.Fatalf("bar 1 events = %+v", changes)
	}
	pos := changes[0].Position
	if pos.Stop != 101 || !pos.BreakevenSet || !pos.TP1Hit {
		t.Errorf("after TP1: %+v", pos)
	}
	if changes[0].Events[0].Stop != 100 || changes[0].Events[0].Size != 0 {
		t.Errorf("breakeven event = %+v", changes[0].Events[0])
	}
	if !approx(pos.Remaining, 2) || !approx(changes[0].Events[1].Size, 1) {
		t.Errorf("remaining = %v", pos.Remaining)
	}
	if !approx(pos.TP3, 105.2) {
		t.Errorf("tp3 = %v", pos.TP3)
	}

	// TP2 and TP3 together; the TP3 partial is zero so the runner stays open
	changes, _ = m.OnNewBar(lifecycleBar(2, 106, 104.2), model.StructureState{})
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventTP2, model.EventTP3) {
		t.Fatalf("bar 2 events = %+v", changes)
	}
	pos = changes[0].Position
	if !approx(pos.Remaining, 1) || pos.Closed || !pos.TP3Hit {
		t.Errorf("after TP3: %+v", pos)
	}
	if changes[0].Events[1].Size != 0 {
		t.Errorf("tp3 size = %v", changes[0].Events[1].Size)
	}

	// targets never fire twice
	changes, _ = m.OnNewBar(lifecycleBar(3, 107, 104.2), model.StructureState{})
	if len(changes) != 0 {
		t.Fatalf("bar 3 events = %+v", changes)
	}

	// trailing stop at 101 closes the rest
	changes, _ = m.OnNewBar(lifecycleBar(4, 100.8, 100), model.StructureState{})
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventStopLoss) {
		t.Fatalf("bar 4 events = %+v", changes)
	}
	pos = changes[0].Position
	if !approx(changes[0].Events[0].Size, 1) || pos.Remaining != 0 || !pos.Closed {
		t.Errorf("final: %+v", pos)
	}
	for i, ev := range pos.Events {
		if ev.Seq != i+1 {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
	}
}

func TestSellLifecycle(t *testing.T) {
	m := newTestManager(t)
	setup := model.TradeSetup{
		Symbol: "XAUUSD", Side: model.SideSell, Source: model.SourceRule,
		EntryPrice: 100, EntryTime: at(0), Stop: 102, TP1: 96, TP2: 94,
	}
	if _, err := m.Open("s1", setup, 1); err != nil {
		t.Fatal(err)
	}
	changes, _ := m.OnNewBar(lifecycleBar(1, 95.5, 95.8), model.StructureState{})
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventBreakeven, model.EventTP1) {
		t.Fatalf("events = %+v", changes)
	}
	if changes[0].Position.Stop != 99 {
		t.Errorf("stop = %v, want 99", changes[0].Position.Stop)
	}
	changes, _ = m.OnNewBar(lifecycleBar(2, 99, 98), model.StructureState{})
	if len(changes) != 1 || !sameTypes(changes[0].Events, model.EventStopLoss) {
		t.Fatalf("events = %+v", changes)
	}
}

func TestOnNewBarOtherSymbolUntouched(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open("p1", buySetup(), 1); err != nil {
		t.Fatal(err)
	}
	b := lifecycleBar(1, 50, 50)
	b.Symbol = "EURUSD"
	changes, err := m.OnNewBar(b, model.StructureState{BearishMSS: true})
	if err != nil || len(changes) != 0 || m.Count() != 1 {
		t.Errorf("changes = %v, err = %v, count = %d", changes, err, m.Count())
	}
}

func TestOnNewBarInvalid(t *testing.T) {
	tests := []struct {
		field string
		set   func(*model.Bar)
	}{
		{"vwap", func(b *model.Bar) { b.VWAP = math.NaN() }},
		{"close", func(b *model.Bar) { b.Close = math.Inf(1) }},
		{"atr", func(b *model.Bar) { b.ATR = 0 }},
		{"atr", func(b *model.Bar) { b.ATR = -1 }},
	}
	for _, tt := range tests {
		m := newTestManager(t)
		if _, err := m.Open("p1", buySetup(), 1); err != nil {
			t.Fatal(err)
		}
		// close above vwap would move the stop to breakeven on a valid bar
		b := lifecycleBar(1, 100.5, 100)
		tt.set(&b)
		_, err := m.OnNewBar(b, model.StructureState{})
		var be *model.BarError
		if !errors.As(err, &be) || be.Field != tt.field {
			t.Fatalf("%s: err = %v", tt.field, err)
		}
		pos := m.Positions()[0]
		if m.Count() != 1 || len(pos.Events) != 1 || pos.BreakevenSet || pos.Stop != buySetup().Stop {
			t.Errorf("%s: an invalid bar must not change positions: %+v", tt.field, pos)
		}
	}
}

func TestManagerCloseAll(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"a", "b"} {
		if _, err := m.Open(id, buySetup(), 1); err != nil {
			t.Fatal(err)
		}
	}
	other := buySetup()
	other.Symbol = "EURUSD"
	if _, err := m.Open("c", other, 1); err != nil {
		t.Fatal(err)
	}

	changes := m.CloseAll("XAUUSD", model.EventForced, at(5), 99, "BLACK")
	if len(changes) != 2 {
		t.Fatalf("closed %d positions", len(changes))
	}
	for _, ch := range changes {
		if !ch.Closed || !sameTypes(ch.Events, model.EventForced) || ch.Events[0].Reason != "BLACK" {
			t.Errorf("change = %+v", ch)
		}
	}
	if m.Count() != 1 || m.Positions()[0].ID != "c" {
		t.Errorf("remaining = %+v", m.Positions())
	}
}
