package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidBar is wrapped by every BarError.
	ErrInvalidBar = errors.New("invalid bar")
	// ErrDegenerateRange is returned when a swing range has high <= low.
	ErrDegenerateRange = errors.New("degenerate swing range")
)

// BarError reports a required bar field that is missing or non-finite.
type BarError struct {
	Field   string
	Value   float64
	Time    time.Time
	Missing bool
}

func (e *BarError) Error() string {
	if e.Missing {
		return fmt.Sprintf("bar %s: required field %s is missing", e.Time.Format(time.RFC3339), e.Field)
	}
	return fmt.Sprintf("bar %s: field %s has invalid value %v", e.Time.Format(time.RFC3339), e.Field, e.Value)
}

func (e *BarError) Unwrap() error { return ErrInvalidBar }

// FieldValue names one bar field for validation.
type FieldValue struct {
	Name  string
	Value float64
}

// RequireFinite returns a *BarError for the first non-finite field.
func RequireFinite(b Bar, fields ...FieldValue) error {
	for _, f := range fields {
		if math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
			return &BarError{Field: f.Name, Value: f.Value, Time: b.Time}
		}
	}
	return nil
}

// RequirePositive is RequireFinite plus a strict > 0 check.
func RequirePositive(b Bar, fields ...FieldValue) error {
	if err := RequireFinite(b, fields...); err != nil {
		return err
	}
	for _, f := range fields {
		if f.Value <= 0 {
			return &BarError{Field: f.Name, Value: f.Value, Time: b.Time}
		}
	}
	return nil
}
