package analysis

import (
	"math"
	"math/rand"
	"time"

	"go-ict/internal/model"
)

var t0 = time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)

func bar(i int, open, high, low, close float64) model.Bar {
	return model.Bar{
		Time:  t0.Add(time.Duration(i) * 15 * time.Minute),
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
	}
}

// hl builds bars from high/low pairs with a neutral body.
func hl(highs, lows []float64) []model.Bar {
	out := make([]model.Bar, len(highs))
	for i := range highs {
		mid := (highs[i] + lows[i]) / 2
		out[i] = bar(i, mid, highs[i], lows[i], mid)
	}
	return out
}

func randomWalk(seed int64, n int) []model.Bar {
	r := rand.New(rand.NewSource(seed))
	out := make([]model.Bar, n)
	price := 100.0
	for i := range out {
		open := price
		close := open + (r.Float64()-0.5)*4
		high := math.Max(open, close) + r.Float64()*1.5
		low := math.Min(open, close) - r.Float64()*1.5
		out[i] = bar(i, open, high, low, close)
		price = close
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
