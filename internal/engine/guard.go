package engine

import (
	"go-ict/internal/config"
	"go-ict/internal/model"

	"go.uber.org/zap"
)

// GuardLevel is the name of the active drawdown level.
type GuardLevel string

// Guard maps account drawdown to entry permissions and a size scale.
type Guard struct {
	levels []config.DrawdownLevel
	logger *zap.Logger
	prev   GuardLevel
}

// NewGuard creates a drawdown guard from configured levels, which must be
// sorted by threshold.
func NewGuard(levels []config.DrawdownLevel, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{levels: levels, logger: logger}
	if len(levels) > 0 {
		g.prev = GuardLevel(levels[0].Name)
	}
	return g
}

// GuardResult holds the output of a guard evaluation.
type GuardResult struct {
	Level        GuardLevel `json:"level"`
	SizeScale    float64    `json:"sizeScale"`
	AllowEntries bool       `json:"allowEntries"`
	ForceClose   bool       `json:"forceClose"`
}

// Evaluate walks the levels from the highest threshold down and returns the
// first one the drawdown reaches. With no match entries are allowed at full size.
func (g *Guard) Evaluate(acct model.Account) GuardResult {
	dd := acct.DrawdownPct
	result := GuardResult{Level: g.base(), SizeScale: 1, AllowEntries: true}

	for i := len(g.levels) - 1; i >= 0; i-- {
		lvl := g.levels[i]
		if dd >= lvl.ThresholdPercent {
			result = GuardResult{
				Level:        GuardLevel(lvl.Name),
				SizeScale:    lvl.SizeScale,
				AllowEntries: lvl.AllowEntries,
				ForceClose:   lvl.ForceClose,
			}
			break
		}
	}

	if result.Level != g.prev {
		g.logger.Warn("guard_level_changed",
			zap.String("from", string(g.prev)),
			zap.String("to", string(result.Level)),
			zap.Float64("drawdown_pct", dd),
		)
		g.prev = result.Level
	}
	return result
}

// Level returns the most recently evaluated level.
func (g *Guard) Level() GuardLevel { return g.prev }

func (g *Guard) base() GuardLevel {
	if len(g.levels) > 0 {
		return GuardLevel(g.levels[0].Name)
	}
	return "NONE"
}

// UpdateDrawdown recalculates peak equity and drawdown percent.
func UpdateDrawdown(acct model.Account) model.Account {
	if acct.Equity > acct.PeakEquity || acct.PeakEquity == 0 {
		acct.PeakEquity = acct.Equity
	}
	if acct.PeakEquity > 0 {
		acct.DrawdownPct = (acct.PeakEquity - acct.Equity) / acct.PeakEquity * 100
	}
	return acct
}
