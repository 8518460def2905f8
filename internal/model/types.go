// Package model defines shared data types used across all go-ict modules.
package model

import "time"

// Side represents a trading direction. NoTrade is only produced by the
// classifier path of the decision engine.
type Side string

const (
	SideBuy     Side = "Buy"
	SideSell    Side = "Sell"
	SideNoTrade Side = "NoTrade"
)

// Opposite returns the other trading direction.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNoTrade
	}
}

// Sign is +1 for Buy, -1 for Sell and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// DecisionSource identifies which path of the hybrid engine produced a decision.
type DecisionSource string

const (
	SourceRule  DecisionSource = "rule"
	SourceModel DecisionSource = "model"
)

// FVGDirection is the direction of a fair value gap.
type FVGDirection string

const (
	FVGNone    FVGDirection = ""
	FVGBullish FVGDirection = "bullish"
	FVGBearish FVGDirection = "bearish"
)

// EventType is the kind of transition recorded in a position's event log.
type EventType string

const (
	EventOpened    EventType = "OPENED"
	EventStopLoss  EventType = "STOP_LOSS"
	EventReversal  EventType = "REVERSAL_EXIT"
	EventBreakeven EventType = "BREAKEVEN"
	EventTP1       EventType = "TP1"
	EventTP2       EventType = "TP2"
	EventTP3       EventType = "TP3"
	EventMarkClose EventType = "MARK_CLOSE" // backtest end-of-data close
	EventForced    EventType = "FORCE_CLOSE"
)

// Terminal reports whether the event removes the position from the open set.
func (t EventType) Terminal() bool {
	switch t {
	case EventStopLoss, EventReversal, EventMarkClose, EventForced:
		return true
	}
	return false
}

// Bar is one closed candle plus the indicator values computed upstream.
// Bars are passed by value and never mutated after construction.
type Bar struct {
	Symbol string    `json:"symbol,omitempty"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	ATR          float64 `json:"atr"`
	VWAP         float64 `json:"vwap"`
	EMA9         float64 `json:"ema9"`
	EMA21        float64 `json:"ema21"`
	EMA50H4      float64 `json:"ema50_h4"`
	EMA200H4     float64 `json:"ema200_h4"`
	RSI          float64 `json:"rsi"`
	RSIH4        float64 `json:"rsi_h4"`
	BBUpper      float64 `json:"bb_upper"`
	BBLower      float64 `json:"bb_lower"`
	ATRMA        float64 `json:"atr_ma"`
	VolImbalance float64 `json:"vol_imbalance"`
}

// Bullish reports close > open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports close < open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// SwingFlag marks whether a bar is a local extreme.
type SwingFlag struct {
	High bool `json:"isSwingHigh"`
	Low  bool `json:"isSwingLow"`
}

// StructureState is the market structure as seen at one bar.
type StructureState struct {
	LastSwingHigh float64 `json:"lastSwingHigh"`
	LastSwingLow  float64 `json:"lastSwingLow"`
	HasSwingHigh  bool    `json:"hasSwingHigh"`
	HasSwingLow   bool    `json:"hasSwingLow"`
	BullishMSS    bool    `json:"bullishMss"`
	BearishMSS    bool    `json:"bearishMss"`
}

// Defined reports whether both swing extremes have been observed.
func (s StructureState) Defined() bool {
	return s.HasSwingHigh && s.HasSwingLow
}

// FVG is a fair value gap attached to a single bar.
type FVG struct {
	Direction FVGDirection `json:"direction"`
	Top       float64      `json:"top"`
	Bottom    float64      `json:"bottom"`
}

// Exists reports whether a gap was flagged.
func (f FVG) Exists() bool { return f.Direction != FVGNone }

// FibonacciLevels holds the retracement and extension prices of a swing range.
type FibonacciLevels struct {
	Fib382  float64 `json:"fib_382"`
	Fib50   float64 `json:"fib_50"`
	Fib618  float64 `json:"fib_618"`
	Ext1272 float64 `json:"ext_1272"`
}

// Map returns the levels keyed by ratio name.
func (f FibonacciLevels) Map() map[string]float64 {
	return map[string]float64{
		"fib_382":  f.Fib382,
		"fib_50":   f.Fib50,
		"fib_618":  f.Fib618,
		"ext_1272": f.Ext1272,
	}
}

// TradeSetup is an entry proposal. It is immutable once emitted.
type TradeSetup struct {
	Symbol     string          `json:"symbol,omitempty"`
	Side       Side            `json:"side"`
	EntryPrice float64         `json:"entryPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	Stop       float64         `json:"stop"`
	TP1        float64         `json:"tp1"`
	TP2        float64         `json:"tp2"`
	TP3        float64         `json:"tp3"`
	Source     DecisionSource  `json:"source"`
	FVG        FVG             `json:"fvg"`
	Fib        FibonacciLevels `json:"fib"`
	ATR        float64         `json:"atr"`
}

// Decision is the output of the hybrid decision engine.
type Decision struct {
	Source     DecisionSource `json:"source"`
	Side       Side           `json:"side"`
	Confidence float64        `json:"confidence"`
	Setup      *TradeSetup    `json:"setup,omitempty"`
	Time       time.Time      `json:"time"`
}

// Actionable reports whether the decision carries a rule setup to execute.
func (d Decision) Actionable() bool {
	return d.Source == SourceRule && d.Setup != nil
}

// Position is an open (or just closed) trade managed bar by bar.
// The boolean flags are independent and may be set in any order.
type Position struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	EntryPrice   float64         `json:"entryPrice"`
	EntryTime    time.Time       `json:"entryTime"`
	Stop         float64         `json:"stop"`
	TP1          float64         `json:"tp1"`
	TP2          float64         `json:"tp2"`
	TP3          float64         `json:"tp3"`
	Size         float64         `json:"size"`
	Remaining    float64         `json:"remaining"`
	BreakevenSet bool            `json:"breakevenSet"`
	TP1Hit       bool            `json:"tp1Hit"`
	TP2Hit       bool            `json:"tp2Hit"`
	TP3Hit       bool            `json:"tp3Hit"`
	Closed       bool            `json:"closed"`
	Events       []PositionEvent `json:"events"`
}

// PositionEvent is one entry of a position's ordered audit log.
type PositionEvent struct {
	Seq        int       `json:"seq"`
	PositionID string    `json:"positionId"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	Price      float64   `json:"price"`
	Stop       float64   `json:"stop"`
	Size       float64   `json:"size"` // size closed by this event, 0 for stop moves
	Reason     string    `json:"reason,omitempty"`
}

// PositionChange is what one bar did to one position.
type PositionChange struct {
	Position Position        `json:"position"`
	Events   []PositionEvent `json:"events"`
	Closed   bool            `json:"closed"`
}

// WSMessage represents a WebSocket message sent to dashboard clients.
type WSMessage struct {
	Type      string    `json:"type"` // bar, decision, position, heartbeat
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// APIResponse is the standard REST API response envelope.
type APIResponse struct {
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
