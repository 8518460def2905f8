package analysis

import (
	"fmt"

	"go-ict/internal/model"
)

// fvgLookback is the number of bars FVGAt needs including the current one.
const fvgLookback = 4

// Tracker is the incremental form of the batch passes. Each pushed bar
// yields the structure state and the FVG at that bar using only bars seen so
// far. A swing at index j is folded in when bar j+half arrives, which is the
// same schedule TrackStructureConfirmed uses.
//
// Tracker is not safe for concurrent use; the live engine guards it.
type Tracker struct {
	window int
	half   int
	buf    []model.Bar
	limit  int
	count  int
	state  model.StructureState
	last   model.FVG
}

// NewTracker creates a tracker for the given swing window.
func NewTracker(window int) (*Tracker, error) {
	if window < 1 {
		return nil, fmt.Errorf("swing window must be >= 1, got %d", window)
	}
	half := HalfWindow(window)
	limit := 2*half + 1
	if limit < fvgLookback {
		limit = fvgLookback
	}
	return &Tracker{
		window: window,
		half:   half,
		limit:  limit,
		buf:    make([]model.Bar, 0, limit),
	}, nil
}

// Push folds one bar and returns the state and gap at that bar.
func (t *Tracker) Push(b model.Bar) (model.StructureState, model.FVG) {
	if len(t.buf) == t.limit {
		copy(t.buf, t.buf[1:])
		t.buf = t.buf[:t.limit-1]
	}
	t.buf = append(t.buf, b)
	t.count++

	var up SwingUpdate
	span := 2*t.half + 1
	if t.count >= span {
		// candidate sits half bars behind the newest bar
		j := len(t.buf) - 1 - t.half
		flag := swingAt(t.buf, j, t.half)
		up = SwingUpdate{
			High:    t.buf[j].High,
			Low:     t.buf[j].Low,
			HasHigh: flag.High,
			HasLow:  flag.Low,
		}
	}
	t.state = Step(t.state, b.Close, up)
	t.last = FVGAt(t.buf, len(t.buf)-1)
	return t.state, t.last
}

// State returns the structure state after the last pushed bar.
func (t *Tracker) State() model.StructureState { return t.state }

// LastFVG returns the gap evaluated at the last pushed bar.
func (t *Tracker) LastFVG() model.FVG { return t.last }

// Count is the number of bars pushed so far.
func (t *Tracker) Count() int { return t.count }

// Window returns the configured swing window.
func (t *Tracker) Window() int { return t.window }

// Reset clears all state.
func (t *Tracker) Reset() {
	t.buf = t.buf[:0]
	t.count = 0
	t.state = model.StructureState{}
	t.last = model.FVG{}
}
