// Package feed loads bar series from JSON-lines files produced by the
// upstream indicator pipeline.
package feed

import (
	"bufio"
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"

	"go-ict/internal/analysis"
	"go-ict/internal/model"

	"github.com/bytedance/sonic"
)

const maxLine = 1 << 20

// Load reads every bar from a JSON-lines file.
func Load(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bar file: %w", err)
	}
	defer f.Close()
	bars, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// Read decodes one bar per non-empty line. Lines starting with '#' are
// skipped. A bar missing a required field fails with a *model.BarError.
func Read(r io.Reader) ([]model.Bar, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	var bars []model.Bar
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		b, err := model.DecodeBar(raw, sonic.Unmarshal)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning bars: %w", err)
	}
	return bars, nil
}

// BySymbol groups bars per symbol, filling an empty symbol with
// defaultSymbol. Each series must be strictly ascending in time. Series are
// returned sorted by symbol.
func BySymbol(bars []model.Bar, defaultSymbol string) ([]analysis.Series, error) {
	groups := make(map[string][]model.Bar)
	for _, b := range bars {
		if b.Symbol == "" {
			b.Symbol = defaultSymbol
		}
		prev := groups[b.Symbol]
		if n := len(prev); n > 0 && !b.Time.After(prev[n-1].Time) {
			return nil, fmt.Errorf("%s: bar at %s is not after %s", b.Symbol, b.Time, prev[n-1].Time)
		}
		groups[b.Symbol] = append(prev, b)
	}
	out := make([]analysis.Series, 0, len(groups))
	for sym, list := range groups {
		out = append(out, analysis.Series{Symbol: sym, Bars: list})
	}
	slices.SortFunc(out, func(a, b analysis.Series) int { return cmp.Compare(a.Symbol, b.Symbol) })
	return out, nil
}
