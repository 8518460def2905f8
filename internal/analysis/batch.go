package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"go-ict/internal/model"
)

// Series is one symbol's bars in chronological order.
type Series struct {
	Symbol string
	Bars   []model.Bar
}

// Result holds every batch pass for one series, aligned by index.
type Result struct {
	Symbol string
	Flags  []model.SwingFlag
	States []model.StructureState
	FVGs   []model.FVG
}

// Analyze runs swing, structure and FVG passes over bars. When confirmed is
// set the structure is folded without lookahead (see TrackStructureConfirmed).
func Analyze(bars []model.Bar, window int, confirmed bool) (Result, error) {
	flags, err := DetectSwingPoints(bars, window)
	if err != nil {
		return Result{}, err
	}
	var states []model.StructureState
	if confirmed {
		states = TrackStructureConfirmed(bars, flags, window)
	} else {
		states = TrackStructure(bars, flags)
	}
	return Result{
		Flags:  flags,
		States: states,
		FVGs:   DetectFVG(bars),
	}, nil
}

// AnalyzeBatches analyzes independent series in parallel. Results keep the
// order of batches. The first error cancels the remaining work.
func AnalyzeBatches(ctx context.Context, batches []Series, window int, confirmed bool) ([]Result, error) {
	results := make([]Result, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Analyze(s.Bars, window, confirmed)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", s.Symbol, err)
			}
			res.Symbol = s.Symbol
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
