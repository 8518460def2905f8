package model

import "math"

// DecodeBar unmarshals one JSON bar with unmarshal. A bar without a time or
// without one of the price and indicator fields the engine depends on
// (open, high, low, close, atr, vwap, ema50_h4, ema200_h4, rsi_h4) yields a
// *BarError with Missing set. An explicit null counts as absent.
func DecodeBar(data []byte, unmarshal func([]byte, any) error) (Bar, error) {
	nan := math.NaN()
	b := Bar{
		Open: nan, High: nan, Low: nan, Close: nan,
		ATR: nan, VWAP: nan, EMA50H4: nan, EMA200H4: nan, RSIH4: nan,
	}
	if err := unmarshal(data, &b); err != nil {
		return Bar{}, err
	}
	if b.Time.IsZero() {
		return Bar{}, &BarError{Field: "time", Missing: true}
	}
	for _, f := range []FieldValue{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close},
		{"atr", b.ATR}, {"vwap", b.VWAP},
		{"ema50_h4", b.EMA50H4}, {"ema200_h4", b.EMA200H4}, {"rsi_h4", b.RSIH4},
	} {
		// JSON cannot carry NaN, so a NaN here was never written.
		if math.IsNaN(f.Value) {
			return Bar{}, &BarError{Field: f.Name, Time: b.Time, Missing: true}
		}
	}
	return b, nil
}
