package model

import "time"

// CommandType identifies what an order command asks the executor to do.
type CommandType string

const (
	CommandOpen     CommandType = "OPEN"
	CommandClose    CommandType = "CLOSE"
	CommandCloseAll CommandType = "CLOSE_ALL"
)

// OrderRequest opens a new position under a caller-assigned ID.
type OrderRequest struct {
	PositionID string    `json:"positionId"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Stop       float64   `json:"stop"`
	TakeProfit float64   `json:"takeProfit"`
	Time       time.Time `json:"time"`
	Reason     string    `json:"reason,omitempty"`
}

// CloseRequest reduces or closes one position. Size is the amount to close.
type CloseRequest struct {
	PositionID string    `json:"positionId"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
	Reason     string    `json:"reason,omitempty"`
}

// Command is the wire form forwarded to an external executor.
type Command struct {
	ID         string      `json:"id"`
	Type       CommandType `json:"type"`
	PositionID string      `json:"positionId,omitempty"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side,omitempty"`
	Size       float64     `json:"size,omitempty"`
	Price      float64     `json:"price,omitempty"`
	Stop       float64     `json:"stop,omitempty"`
	TakeProfit float64     `json:"takeProfit,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Time       time.Time   `json:"time"`
}

// Account is the equity view the drawdown guard evaluates.
type Account struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	PeakEquity  float64 `json:"peakEquity"`
	DrawdownPct float64 `json:"drawdownPct"`
	Realized    float64 `json:"realized"`
	Unrealized  float64 `json:"unrealized"`
}

// Fill is one executed open or close in the paper book.
type Fill struct {
	Ticket     string      `json:"ticket"`
	PositionID string      `json:"positionId"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Type       CommandType `json:"type"`
	Size       float64     `json:"size"`
	Price      float64     `json:"price"`
	PnL        float64     `json:"pnl"`
	Time       time.Time   `json:"time"`
	Reason     string      `json:"reason,omitempty"`
}
