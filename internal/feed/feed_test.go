package feed

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-ict/internal/model"
)

const sample = `# symbol,time,ohlc and indicators
{"symbol":"XAUUSD","time":"2024-03-04T00:00:00Z","open":100,"high":101,"low":99,"close":100.5,"atr":2,"vwap":100,"ema50_h4":110,"ema200_h4":100,"rsi_h4":60}

{"time":"2024-03-04T00:05:00Z","open":100.5,"high":102,"low":100,"close":101.5,"atr":2.1,"vwap":100.4,"ema50_h4":110,"ema200_h4":100,"rsi_h4":61}
{"symbol":"EURUSD","time":"2024-03-04T00:00:00Z","open":1.08,"high":1.09,"low":1.07,"close":1.085,"atr":0.002,"vwap":1.08,"ema50_h4":1.09,"ema200_h4":1.1,"rsi_h4":45}
`

func TestRead(t *testing.T) {
	bars, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("read %d bars", len(bars))
	}
	b := bars[0]
	if b.Symbol != "XAUUSD" || b.Close != 100.5 || b.EMA50H4 != 110 || b.RSIH4 != 60 {
		t.Errorf("bar 0 = %+v", b)
	}
	if !b.Time.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", b.Time)
	}
	if bars[1].ATR != 2.1 {
		t.Errorf("bar 1 atr = %v", bars[1].ATR)
	}
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"bad json":     `{"time":`,
		"missing time": `{"open":1}`,
	}
	for name, in := range tests {
		if _, err := Read(strings.NewReader(in)); err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestReadRejectsMissingIndicators(t *testing.T) {
	tests := map[string]string{
		"vwap":     `{"symbol":"XAUUSD","time":"2024-03-04T00:00:00Z","open":100,"high":101,"low":99,"close":100.5,"atr":2,"ema50_h4":110,"ema200_h4":100,"rsi_h4":60}`,
		"atr":      `{"symbol":"XAUUSD","time":"2024-03-04T00:00:00Z","open":100,"high":101,"low":99,"close":100.5,"vwap":100,"ema50_h4":110,"ema200_h4":100,"rsi_h4":60}`,
		"open":     `{"symbol":"XAUUSD","time":"2024-03-04T00:00:00Z","high":101,"low":99,"close":100.5,"atr":2,"vwap":100,"ema50_h4":110,"ema200_h4":100,"rsi_h4":60}`,
		"ema50_h4": `{"symbol":"XAUUSD","time":"2024-03-04T00:00:00Z","open":100,"high":101,"low":99,"close":100.5,"atr":2,"vwap":100,"ema200_h4":100,"rsi_h4":60}`,
	}
	for field, in := range tests {
		t.Run(field, func(t *testing.T) {
			_, err := Read(strings.NewReader(sample + in + "\n"))
			var be *model.BarError
			if !errors.As(err, &be) || !be.Missing || be.Field != field {
				t.Fatalf("err = %v, want missing %s", err, field)
			}
			if !errors.Is(err, model.ErrInvalidBar) || !strings.Contains(err.Error(), "line 6") {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.jsonl")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	bars, err := Load(path)
	if err != nil || len(bars) != 3 {
		t.Fatalf("Load = %d bars, %v", len(bars), err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBySymbol(t *testing.T) {
	bars, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	series, err := BySymbol(bars, "XAUUSD")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 2 || series[0].Symbol != "EURUSD" || series[1].Symbol != "XAUUSD" {
		t.Fatalf("series = %+v", series)
	}
	if len(series[1].Bars) != 2 || series[1].Bars[1].Symbol != "XAUUSD" {
		t.Errorf("xau bars = %+v", series[1].Bars)
	}

	dup := []model.Bar{bars[0], bars[0]}
	if _, err := BySymbol(dup, ""); err == nil {
		t.Error("expected error for non-ascending bars")
	}
}
