package engine

import (
	"context"
	"fmt"
	"math"

	"go-ict/internal/model"

	"go.uber.org/zap"
)

// FeatureNames is the fixed column order of the classifier input.
var FeatureNames = []string{
	"atr", "vwap",
	"ema9", "ema21", "rsi",
	"ema50_h4", "ema200_h4", "rsi_h4",
	"bb_upper", "bb_lower", "atr_ma",
	"bb_upper_diff", "bb_lower_diff",
	"vol_imbalance",
	"mss_bullish", "mss_bearish",
	"fvg_bullish", "fvg_bearish",
}

// Classifier predicts a side and its confidence from a feature vector laid
// out as FeatureNames.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (model.Side, float64, error)
}

// Features builds the classifier input for one bar.
func Features(bar model.Bar, state model.StructureState, fvg model.FVG) []float64 {
	return []float64{
		bar.ATR, bar.VWAP,
		bar.EMA9, bar.EMA21, bar.RSI,
		bar.EMA50H4, bar.EMA200H4, bar.RSIH4,
		bar.BBUpper, bar.BBLower, bar.ATRMA,
		bar.Close - bar.BBUpper, bar.Close - bar.BBLower,
		bar.VolImbalance,
		boolFeature(state.BullishMSS), boolFeature(state.BearishMSS),
		boolFeature(fvg.Direction == model.FVGBullish), boolFeature(fvg.Direction == model.FVGBearish),
	}
}

func boolFeature(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// DecisionEngine combines the rule generator with a classifier fallback.
type DecisionEngine struct {
	signals    *SignalGenerator
	classifier Classifier
	logger     *zap.Logger

	lastGate string
}

// NewDecisionEngine wires the rule path and an optional classifier.
func NewDecisionEngine(signals *SignalGenerator, classifier Classifier) *DecisionEngine {
	return &DecisionEngine{
		signals:    signals,
		classifier: classifier,
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the structured logger.
func (d *DecisionEngine) SetLogger(logger *zap.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// LastGate returns the gate that rejected the most recent rule evaluation.
// Not safe for concurrent use with Decide.
func (d *DecisionEngine) LastGate() string { return d.lastGate }

// Decide returns the rule setup when one exists. Otherwise it asks the
// classifier; without one the decision is NoTrade with zero confidence.
func (d *DecisionEngine) Decide(ctx context.Context, bar model.Bar, state model.StructureState, fvg model.FVG) (model.Decision, error) {
	res, err := d.signals.Evaluate(bar, state, fvg)
	if err != nil {
		return model.Decision{}, fmt.Errorf("rule evaluation: %w", err)
	}
	d.lastGate = res.Gate
	if res.Setup != nil {
		return model.Decision{
			Source:     model.SourceRule,
			Side:       res.Setup.Side,
			Confidence: 1,
			Setup:      res.Setup,
			Time:       bar.Time,
		}, nil
	}

	if d.classifier == nil {
		return model.Decision{Source: model.SourceModel, Side: model.SideNoTrade, Time: bar.Time}, nil
	}

	// out of session the rule path never validated the bar
	if err := model.RequirePositive(bar, model.FieldValue{Name: "atr", Value: bar.ATR}); err != nil {
		return model.Decision{}, err
	}
	features := Features(bar, state, fvg)
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.Decision{}, &model.BarError{Field: FeatureNames[i], Value: v, Time: bar.Time}
		}
	}
	side, conf, err := d.classifier.Predict(ctx, features)
	if err != nil {
		return model.Decision{}, fmt.Errorf("classifier predict: %w", err)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return model.Decision{}, fmt.Errorf("classifier confidence %v outside [0, 1]", conf)
	}
	switch side {
	case model.SideBuy, model.SideSell, model.SideNoTrade:
	default:
		return model.Decision{}, fmt.Errorf("classifier returned unknown side %q", side)
	}

	d.logger.Debug("model_decision",
		zap.String("symbol", bar.Symbol),
		zap.String("side", string(side)),
		zap.Float64("confidence", conf),
		zap.String("rule_gate", res.Gate),
	)
	return model.Decision{Source: model.SourceModel, Side: side, Confidence: conf, Time: bar.Time}, nil
}
