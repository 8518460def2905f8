package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-ict/internal/config"
	"go-ict/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type clock struct {
	t   time.Time
	sym string
}

func (c clock) LatestBarTime() (time.Time, string) { return c.t, c.sym }

func TestCheck(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	cfg := config.ScheduleConfig{HealthCron: "@every 1m", StaleAfter: 30 * time.Minute}

	tests := []struct {
		name    string
		gateway Pinger
		bars    clock
		ok      bool
		stale   bool
		healthy bool
	}{
		{"fresh", pinger{}, clock{now.Add(-5 * time.Minute), "XAUUSD"}, true, false, true},
		{"stale", pinger{}, clock{now.Add(-time.Hour), "XAUUSD"}, true, true, false},
		{"gateway down", pinger{errors.New("queue full")}, clock{now, "XAUUSD"}, false, false, false},
		{"no bars yet", pinger{}, clock{}, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(nil)
			s := New(cfg, tt.gateway, tt.bars, m, nil)
			s.now = func() time.Time { return now }

			r := s.Check(context.Background())
			if r.GatewayOK != tt.ok || r.Stale != tt.stale || r.Healthy() != tt.healthy {
				t.Errorf("report = %+v", r)
			}
			if s.Last() != r {
				t.Error("Last() does not return the latest report")
			}
			up := testutil.ToFloat64(m.GatewayUp)
			if (up == 1) != tt.ok {
				t.Errorf("gateway gauge = %v", up)
			}
			if !tt.bars.t.IsZero() {
				if age := testutil.ToFloat64(m.LastBarAge); age != now.Sub(tt.bars.t).Seconds() {
					t.Errorf("bar age gauge = %v", age)
				}
			}
		})
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(config.ScheduleConfig{HealthCron: "not a cron"}, nil, nil, nil, nil)
	if err := s.Register(context.Background()); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestStartStop(t *testing.T) {
	s := New(config.ScheduleConfig{HealthCron: "@every 1h"}, pinger{}, nil, nil, nil)
	if err := s.Register(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Start()
	s.Stop()
}
