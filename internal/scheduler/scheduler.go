// Package scheduler runs periodic health checks on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pinger reports whether the order gateway can accept commands.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BarClock reports the newest bar seen and its symbol.
type BarClock interface {
	LatestBarTime() (time.Time, string)
}

// Report is the outcome of one health check.
type Report struct {
	Time       time.Time     `json:"time"`
	GatewayOK  bool          `json:"gatewayOk"`
	GatewayErr string        `json:"gatewayErr,omitempty"`
	LastBar    time.Time     `json:"lastBar"`
	Symbol     string        `json:"symbol,omitempty"`
	BarAge     time.Duration `json:"barAge"`
	Stale      bool          `json:"stale"`
}

// Healthy reports whether no alert was raised.
func (r Report) Healthy() bool { return r.GatewayOK && !r.Stale }

// Scheduler manages the health cron task.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	stale   time.Duration
	gateway Pinger
	bars    BarClock
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	last Report
}

// New creates a scheduler. gateway and m may be nil.
func New(cfg config.ScheduleConfig, gateway Pinger, bars BarClock, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		spec:    cfg.HealthCron,
		stale:   cfg.StaleAfter,
		gateway: gateway,
		bars:    bars,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds the health task to the cron table.
func (s *Scheduler) Register(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Check(ctx) }); err != nil {
		return fmt.Errorf("register health task %q: %w", s.spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler_started", zap.String("health_cron", s.spec))
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler_stopped")
}

// Check runs one health check, logs alerts and updates gauges.
func (s *Scheduler) Check(ctx context.Context) Report {
	now := s.now()
	r := Report{Time: now, GatewayOK: true}

	if s.gateway != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.gateway.Ping(pingCtx)
		cancel()
		if err != nil {
			r.GatewayOK = false
			r.GatewayErr = err.Error()
			s.logger.Warn("health_gateway_down", zap.Error(err))
		}
	}
	s.metrics.SetGatewayUp(r.GatewayOK)

	if s.bars != nil {
		r.LastBar, r.Symbol = s.bars.LatestBarTime()
		if !r.LastBar.IsZero() {
			r.BarAge = now.Sub(r.LastBar)
			s.metrics.SetLastBarAge(r.BarAge.Seconds())
			if s.stale > 0 && r.BarAge > s.stale {
				r.Stale = true
				s.logger.Warn("health_bars_stale",
					zap.String("symbol", r.Symbol),
					zap.Time("last_bar", r.LastBar),
					zap.Duration("age", r.BarAge),
				)
			}
		}
	}

	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	if r.Healthy() {
		s.logger.Debug("health_ok", zap.Duration("bar_age", r.BarAge))
	}
	return r
}

// Last returns the most recent report.
func (s *Scheduler) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
