package analysis

import "testing"

func TestDetectSwingPoints(t *testing.T) {
	bars := hl(
		[]float64{1, 3, 2, 5, 4, 4, 1},
		[]float64{0, 2, 1, 4, 3, 3, 0},
	)
	flags, err := DetectSwingPoints(bars, 3)
	if err != nil {
		t.Fatalf("DetectSwingPoints: %v", err)
	}

	wantHigh := []bool{false, true, false, true, false, true, false}
	wantLow := []bool{false, false, true, false, true, false, false}
	for i := range bars {
		if flags[i].High != wantHigh[i] {
			t.Errorf("bar %d: swing high = %v, want %v", i, flags[i].High, wantHigh[i])
		}
		if flags[i].Low != wantLow[i] {
			t.Errorf("bar %d: swing low = %v, want %v", i, flags[i].Low, wantLow[i])
		}
	}
}

func TestDetectSwingPointsBoundaries(t *testing.T) {
	// the highest bar sits at the edge and must not be flagged
	bars := hl(
		[]float64{9, 2, 3, 2, 1, 2, 10},
		[]float64{0, 1, 2, 1, 0, 1, 9},
	)
	flags, err := DetectSwingPoints(bars, 5)
	if err != nil {
		t.Fatalf("DetectSwingPoints: %v", err)
	}
	for _, i := range []int{0, 1, 5, 6} {
		if flags[i].High || flags[i].Low {
			t.Errorf("boundary bar %d flagged: %+v", i, flags[i])
		}
	}
}

func TestDetectSwingPointsEvenWindow(t *testing.T) {
	bars := randomWalk(11, 120)
	four, err := DetectSwingPoints(bars, 4)
	if err != nil {
		t.Fatal(err)
	}
	five, err := DetectSwingPoints(bars, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bars {
		if four[i] != five[i] {
			t.Fatalf("bar %d: window 4 %+v != window 5 %+v", i, four[i], five[i])
		}
	}
}

func TestDetectSwingPointsIsLocalMax(t *testing.T) {
	bars := randomWalk(3, 300)
	const window = 7
	half := HalfWindow(window)
	flags, err := DetectSwingPoints(bars, window)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range flags {
		if !f.High {
			continue
		}
		for j := i - half; j <= i+half; j++ {
			if bars[j].High > bars[i].High {
				t.Fatalf("bar %d flagged swing high but bar %d is higher", i, j)
			}
		}
	}
}

func TestDetectSwingPointsInvalidWindow(t *testing.T) {
	if _, err := DetectSwingPoints(randomWalk(1, 10), 0); err == nil {
		t.Error("expected error for window 0")
	}
}

func TestDetectSwingPointsShortSeries(t *testing.T) {
	flags, err := DetectSwingPoints(randomWalk(1, 3), 9)
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range flags {
		if f.High || f.Low {
			t.Errorf("bar %d flagged in series shorter than window", i)
		}
	}
}
