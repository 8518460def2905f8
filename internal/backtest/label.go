package backtest

import (
	"errors"

	"go-ict/internal/analysis"
	"go-ict/internal/config"
	"go-ict/internal/engine"
	"go-ict/internal/model"
)

// Label returns the rule side for every bar, NoTrade where no setup fires.
// Bars the rule path cannot evaluate are labeled NoTrade.
func Label(cfg *config.Config, bars []model.Bar) ([]model.Side, error) {
	res, err := analysis.Analyze(bars, cfg.Analysis.SwingWindow, cfg.Analysis.ConfirmSwings)
	if err != nil {
		return nil, err
	}
	signals, err := engine.NewSignalGenerator(cfg.Signal, cfg.Session)
	if err != nil {
		return nil, err
	}

	labels := make([]model.Side, len(bars))
	for i, b := range bars {
		labels[i] = model.SideNoTrade
		setup, err := signals.Generate(b, res.States[i], res.FVGs[i])
		switch {
		case errors.Is(err, model.ErrInvalidBar), errors.Is(err, model.ErrDegenerateRange):
			continue
		case err != nil:
			return nil, err
		case setup != nil:
			labels[i] = setup.Side
		}
	}
	return labels, nil
}
