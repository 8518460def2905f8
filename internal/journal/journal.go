// Package journal persists decisions and position events for later audit.
package journal

import "go-ict/internal/model"

// DecisionRecord is one stored decision.
type DecisionRecord struct {
	Symbol   string         `json:"symbol"`
	Decision model.Decision `json:"decision"`
	Gate     string         `json:"gate,omitempty"`
}

// Recorder is the journal sink used by the engine and the backtest.
type Recorder interface {
	RecordDecision(symbol string, d model.Decision, gate string) error
	RecordEvent(e model.PositionEvent) error
	Events(positionID string) ([]model.PositionEvent, error)
	RecentDecisions(limit int) ([]DecisionRecord, error)
	Close() error
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// NewNoopRecorder returns a recorder that stores nothing.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordDecision(string, model.Decision, string) error { return nil }
func (NoopRecorder) RecordEvent(model.PositionEvent) error               { return nil }
func (NoopRecorder) Events(string) ([]model.PositionEvent, error)        { return nil, nil }
func (NoopRecorder) RecentDecisions(int) ([]DecisionRecord, error)       { return nil, nil }
func (NoopRecorder) Close() error                                        { return nil }
