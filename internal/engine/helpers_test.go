package engine

import (
	"context"
	"sync"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/model"
)

// 00:00 UTC is 07:00 in Asia/Bangkok, the session open.
var sessionOpen = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return sessionOpen.Add(time.Duration(i) * 5 * time.Minute) }

func flat(i int, price float64) model.Bar {
	return model.Bar{
		Symbol: "XAUUSD", Time: at(i),
		Open: price, High: price + 0.5, Low: price - 0.5, Close: price,
		ATR: 2, VWAP: price, EMA50H4: 110, EMA200H4: 100, RSIH4: 60,
	}
}

// scenarioBars builds 43 bars: a swing low of 98 at bar 30, a swing high
// of 112 at bar 40, a structure shift closing at 113 on bar 41, and a
// bullish gap [104, 105] seen at bar 42 whose open pulls back into it.
func scenarioBars() ([]model.Bar, []model.SwingFlag) {
	bars := make([]model.Bar, 43)
	for i := range bars {
		bars[i] = flat(i, 100)
	}
	bars[30].Low = 98

	bars[39] = withOHLC(bars[39], 102, 104, 101.5, 103.8)
	bars[40] = withOHLC(bars[40], 105.2, 112, 105, 111)
	bars[41] = withOHLC(bars[41], 111, 113.5, 110.5, 113)
	bars[42] = withOHLC(bars[42], 104.5, 106.5, 104.2, 106)
	bars[42].VWAP = 104

	flags := make([]model.SwingFlag, len(bars))
	flags[30].Low = true
	flags[40].High = true
	return bars, flags
}

// detectedScenarioBars reshapes scenarioBars so the swing detector finds
// the structure on its own: lows rise after bar 30 and a trailing bar 43
// confirms bar 41. Since bar 41's high of 113.5 tops bar 40, the detected
// swing high is 113.5 at bar 41 rather than 112 at bar 40.
func detectedScenarioBars() []model.Bar {
	bars, _ := scenarioBars()
	for k := 31; k <= 38; k++ {
		low := 98 + float64(k-30)*0.5
		bars[k] = withOHLC(bars[k], low+0.2, low+1, low, low+0.8)
	}
	bars[39] = withOHLC(bars[39], 102.6, 104, 102.5, 103.8)
	last := withOHLC(flat(43, 107), 106, 107.5, 105.8, 107)
	last.VWAP = 104
	return append(bars, last)
}

func withOHLC(b model.Bar, o, h, l, c float64) model.Bar {
	b.Open, b.High, b.Low, b.Close = o, h, l, c
	return b
}

func testConfig() *config.Config {
	return config.Default()
}

func newTestGenerator() *SignalGenerator {
	cfg := testConfig()
	g, err := NewSignalGenerator(cfg.Signal, cfg.Session)
	if err != nil {
		panic(err)
	}
	return g
}

type fakeClassifier struct {
	side  model.Side
	conf  float64
	err   error
	calls int
	last  []float64
}

func (f *fakeClassifier) Predict(_ context.Context, x []float64) (model.Side, float64, error) {
	f.calls++
	f.last = x
	return f.side, f.conf, f.err
}

type fakeGateway struct {
	mu       sync.Mutex
	opens    []model.OrderRequest
	closes   []model.CloseRequest
	closeAll int
	reject   bool
	account  model.Account
}

func (g *fakeGateway) Open(_ context.Context, req model.OrderRequest) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reject {
		return false, nil
	}
	g.opens = append(g.opens, req)
	return true, nil
}

func (g *fakeGateway) Close(_ context.Context, req model.CloseRequest) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes = append(g.closes, req)
	return true, nil
}

func (g *fakeGateway) CloseAll(context.Context, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeAll++
	return true, nil
}

func (g *fakeGateway) Account() model.Account {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.account
}
