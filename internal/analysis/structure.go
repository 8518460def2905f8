package analysis

import "go-ict/internal/model"

// SwingUpdate carries the swing points that become known at one fold step.
type SwingUpdate struct {
	High    float64
	Low     float64
	HasHigh bool
	HasLow  bool
}

// Step folds one bar into the structure state. A swing in the update
// replaces the previous last swing of the same kind; the MSS flags are then
// evaluated against the bar's close with strict comparisons.
func Step(prev model.StructureState, close float64, swing SwingUpdate) model.StructureState {
	next := prev
	if swing.HasHigh {
		next.LastSwingHigh = swing.High
		next.HasSwingHigh = true
	}
	if swing.HasLow {
		next.LastSwingLow = swing.Low
		next.HasSwingLow = true
	}
	next.BullishMSS = next.HasSwingHigh && close > next.LastSwingHigh
	next.BearishMSS = next.HasSwingLow && close < next.LastSwingLow
	return next
}

// TrackStructure is a single left-to-right fold where the swing flagged on
// bar i is applied at bar i itself. flags must be aligned with bars.
func TrackStructure(bars []model.Bar, flags []model.SwingFlag) []model.StructureState {
	states := make([]model.StructureState, len(bars))
	var st model.StructureState
	for i, b := range bars {
		var up SwingUpdate
		if i < len(flags) {
			up = SwingUpdate{
				High:    b.High,
				Low:     b.Low,
				HasHigh: flags[i].High,
				HasLow:  flags[i].Low,
			}
		}
		st = Step(st, b.Close, up)
		states[i] = st
	}
	return states
}

// TrackStructureConfirmed applies the swing flagged on bar i only at bar
// i+half, the first bar at which the swing can be known without lookahead.
// It matches what the live Tracker produces.
func TrackStructureConfirmed(bars []model.Bar, flags []model.SwingFlag, window int) []model.StructureState {
	half := HalfWindow(window)
	states := make([]model.StructureState, len(bars))
	var st model.StructureState
	for i, b := range bars {
		var up SwingUpdate
		if j := i - half; j >= 0 && j < len(flags) {
			up = SwingUpdate{
				High:    bars[j].High,
				Low:     bars[j].Low,
				HasHigh: flags[j].High,
				HasLow:  flags[j].Low,
			}
		}
		st = Step(st, b.Close, up)
		states[i] = st
	}
	return states
}
