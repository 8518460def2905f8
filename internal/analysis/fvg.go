package analysis

import "go-ict/internal/model"

// FVGAt evaluates the three bars preceding index i (i-3, i-2, i-1).
//
// Bullish: all three close above their open and low[i-2] > high[i-3];
// the gap spans [high[i-3], low[i-2]].
// Bearish: all three close below their open and high[i-2] < low[i-3];
// the gap spans [high[i-2], low[i-3]].
func FVGAt(bars []model.Bar, i int) model.FVG {
	if i < 3 || i >= len(bars) {
		return model.FVG{}
	}
	c1, c2, c3 := bars[i-3], bars[i-2], bars[i-1]

	if c1.Bullish() && c2.Bullish() && c3.Bullish() && c2.Low > c1.High {
		return model.FVG{Direction: model.FVGBullish, Top: c2.Low, Bottom: c1.High}
	}
	if c1.Bearish() && c2.Bearish() && c3.Bearish() && c2.High < c1.Low {
		return model.FVG{Direction: model.FVGBearish, Top: c1.Low, Bottom: c2.High}
	}
	return model.FVG{}
}

// DetectFVG flags a gap per bar. Bars 0..2 never carry one.
func DetectFVG(bars []model.Bar) []model.FVG {
	out := make([]model.FVG, len(bars))
	for i := 3; i < len(bars); i++ {
		out[i] = FVGAt(bars, i)
	}
	return out
}

// InZone reports whether price lies within the gap widened by buffer on both sides.
func InZone(price float64, fvg model.FVG, buffer float64) bool {
	return price >= fvg.Bottom-buffer && price <= fvg.Top+buffer
}
