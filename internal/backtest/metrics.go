package backtest

import (
	"math"

	"go-ict/internal/engine"
	"go-ict/internal/model"
)

// Metrics summarizes a trade list.
type Metrics struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"`
	GrossProfit float64 `json:"grossProfit"`
	GrossLoss   float64 `json:"grossLoss"`
	// ProfitFactor is +Inf when there are wins and no losses.
	ProfitFactor   float64 `json:"-"`
	NetPnL         float64 `json:"netPnl"`
	Expectancy     float64 `json:"expectancy"`
	MaxDrawdown    float64 `json:"maxDrawdown"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
}

// Compute derives the metrics from trades, which must be in exit order.
// Drawdown is measured on the closed-trade equity curve starting at balance.
func Compute(trades []Trade, balance float64) Metrics {
	m := Metrics{Trades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	acct := engine.UpdateDrawdown(model.Account{Equity: balance})
	peakPnL, cum := 0.0, 0.0
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			m.Wins++
			m.GrossProfit += t.PnL
		case t.PnL < 0:
			m.Losses++
			m.GrossLoss += -t.PnL
		}
		cum += t.PnL
		peakPnL = math.Max(peakPnL, cum)
		m.MaxDrawdown = math.Max(m.MaxDrawdown, peakPnL-cum)

		acct.Equity = balance + cum
		acct = engine.UpdateDrawdown(acct)
		m.MaxDrawdownPct = math.Max(m.MaxDrawdownPct, acct.DrawdownPct)
	}

	n := float64(m.Trades)
	m.NetPnL = cum
	m.WinRate = float64(m.Wins) / n
	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	var avgWin, avgLoss float64
	if m.Wins > 0 {
		avgWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		avgLoss = -m.GrossLoss / float64(m.Losses)
	}
	m.Expectancy = avgWin*m.WinRate + avgLoss*float64(m.Losses)/n
	return m
}
