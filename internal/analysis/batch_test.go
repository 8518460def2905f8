package analysis

import (
	"context"
	"testing"
)

func TestAnalyzeBatches(t *testing.T) {
	batches := []Series{
		{Symbol: "XAUUSD", Bars: randomWalk(1, 300)},
		{Symbol: "EURUSD", Bars: randomWalk(2, 250)},
		{Symbol: "US30", Bars: randomWalk(3, 10)},
	}
	results, err := AnalyzeBatches(context.Background(), batches, 5, true)
	if err != nil {
		t.Fatalf("AnalyzeBatches: %v", err)
	}
	if len(results) != len(batches) {
		t.Fatalf("got %d results, want %d", len(results), len(batches))
	}
	for i, res := range results {
		if res.Symbol != batches[i].Symbol {
			t.Errorf("result %d symbol = %s, want %s", i, res.Symbol, batches[i].Symbol)
		}
		single, err := Analyze(batches[i].Bars, 5, true)
		if err != nil {
			t.Fatal(err)
		}
		for k := range single.States {
			if single.States[k] != res.States[k] {
				t.Fatalf("%s bar %d: parallel state differs", res.Symbol, k)
			}
		}
	}
}

func TestAnalyzeBatchesError(t *testing.T) {
	batches := []Series{{Symbol: "XAUUSD", Bars: randomWalk(1, 20)}}
	if _, err := AnalyzeBatches(context.Background(), batches, 0, false); err == nil {
		t.Error("expected error for window 0")
	}
}

func TestAnalyzeBatchesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batches := []Series{{Symbol: "XAUUSD", Bars: randomWalk(1, 20)}}
	if _, err := AnalyzeBatches(ctx, batches, 5, false); err == nil {
		t.Error("expected context error")
	}
}
