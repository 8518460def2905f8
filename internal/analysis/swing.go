// Package analysis implements the price-action passes over a bar series:
// swing points, market structure, fair value gaps and Fibonacci levels.
// Every batch function is pure over an immutable bar slice.
package analysis

import (
	"fmt"

	"go-ict/internal/model"
)

// HalfWindow returns window/2 using integer floor division.
//
// An even window is not rounded up or down to an odd span: windows 4 and 5
// both give half=2, so both inspect the same 5-bar span [i-2, i+2].
func HalfWindow(window int) int {
	return window / 2
}

// DetectSwingPoints flags local extremes over the symmetric span
// [i-half, i+half]. The first and last half bars are never flagged.
// Equal highs (or lows) inside the span still count as a swing.
func DetectSwingPoints(bars []model.Bar, window int) ([]model.SwingFlag, error) {
	if window < 1 {
		return nil, fmt.Errorf("swing window must be >= 1, got %d", window)
	}
	half := HalfWindow(window)
	flags := make([]model.SwingFlag, len(bars))
	for i := half; i < len(bars)-half; i++ {
		flags[i] = swingAt(bars, i, half)
	}
	return flags, nil
}

// swingAt evaluates bar i against its neighbours; the caller guarantees
// that the whole span is inside bars.
func swingAt(bars []model.Bar, i, half int) model.SwingFlag {
	hi, lo := bars[i].High, bars[i].Low
	flag := model.SwingFlag{High: true, Low: true}
	for j := i - half; j <= i+half; j++ {
		if bars[j].High > hi {
			flag.High = false
		}
		if bars[j].Low < lo {
			flag.Low = false
		}
		if !flag.High && !flag.Low {
			break
		}
	}
	return flag
}
