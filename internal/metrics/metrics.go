// Package metrics exposes Prometheus collectors for the engine:
//
//	ict_bars_total{symbol}              bars processed
//	ict_decisions_total{source,side}    decisions taken
//	ict_signal_rejections_total{gate}   rule evaluations stopped by a gate
//	ict_position_events_total{type,side} lifecycle transitions
//	ict_orders_total{type,result}       gateway calls
//	ict_errors_total{stage}             bar, decision and gateway failures
//	ict_open_positions                  positions currently managed
//	ict_equity                          account equity from the gateway
//	ict_last_bar_age_seconds            staleness seen by the health check
//	ict_gateway_up                      1 when the last health probe passed
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector so tests can use a private registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	Bars           *prometheus.CounterVec
	Decisions      *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	PositionEvents *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	OpenPositions  prometheus.Gauge
	Equity         prometheus.Gauge
	LastBarAge     prometheus.Gauge
	GatewayUp      prometheus.Gauge
}

// New creates and registers the collectors on reg. A nil reg uses a fresh
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		Bars: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_bars_total", Help: "Bars processed"},
			[]string{"symbol"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_decisions_total", Help: "Decisions taken"},
			[]string{"source", "side"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_signal_rejections_total", Help: "Rule evaluations rejected by gate"},
			[]string{"gate"},
		),
		PositionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_position_events_total", Help: "Position lifecycle transitions"},
			[]string{"type", "side"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_orders_total", Help: "Gateway calls by type and result"},
			[]string{"type", "result"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ict_errors_total", Help: "Processing errors by stage"},
			[]string{"stage"},
		),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ict_open_positions", Help: "Positions currently managed",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ict_equity", Help: "Account equity reported by the gateway",
		}),
		LastBarAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ict_last_bar_age_seconds", Help: "Seconds since the newest bar",
		}),
		GatewayUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ict_gateway_up", Help: "1 when the last gateway health probe passed",
		}),
	}
	reg.MustRegister(
		m.Bars, m.Decisions, m.Rejections, m.PositionEvents, m.Orders, m.Errors,
		m.OpenPositions, m.Equity, m.LastBarAge, m.GatewayUp,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBar(symbol string) {
	if m == nil {
		return
	}
	m.Bars.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ObserveDecision(source, side string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(source, side).Inc()
}

func (m *Metrics) ObserveRejection(gate string) {
	if m == nil || gate == "" {
		return
	}
	m.Rejections.WithLabelValues(gate).Inc()
}

func (m *Metrics) ObservePositionEvent(typ, side string) {
	if m == nil {
		return
	}
	m.PositionEvents.WithLabelValues(typ, side).Inc()
}

func (m *Metrics) ObserveOrder(typ string, ok bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	m.Orders.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

func (m *Metrics) SetEquity(v float64) {
	if m == nil {
		return
	}
	m.Equity.Set(v)
}

func (m *Metrics) SetLastBarAge(seconds float64) {
	if m == nil {
		return
	}
	m.LastBarAge.Set(seconds)
}

func (m *Metrics) SetGatewayUp(up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.GatewayUp.Set(v)
}
