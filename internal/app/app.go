// Package app wires configuration, logging, the engine and its servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"go-ict/internal/api"
	"go-ict/internal/bridge"
	"go-ict/internal/classifier"
	"go-ict/internal/config"
	"go-ict/internal/engine"
	"go-ict/internal/journal"
	"go-ict/internal/logging"
	"go-ict/internal/metrics"
	"go-ict/internal/model"
	"go-ict/internal/scheduler"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const version = "0.1.0"

// App is the application lifecycle manager.
type App struct {
	cfg *config.Config
}

// New creates a new App instance.
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Components are the wired collaborators of a running daemon.
type Components struct {
	Engine    *engine.Engine
	Bridge    *bridge.Bridge
	Journal   journal.Recorder
	Metrics   *metrics.Metrics
	Hub       *api.Hub
	Server    *api.Server
	Scheduler *scheduler.Scheduler
}

// Build constructs every component from configuration without starting
// anything.
func Build(cfg *config.Config, log *zap.Logger) (*Components, error) {
	m := metrics.New(nil)

	var rec journal.Recorder = journal.NewNoopRecorder()
	if cfg.Journal.SQLitePath != "" {
		sq, err := journal.NewSQLiteRecorder(cfg.Journal.SQLitePath, log.Named("journal"))
		if err != nil {
			return nil, err
		}
		rec = sq
	}

	br, err := bridge.New(cfg.Gateway, log.Named("bridge"))
	if err != nil {
		rec.Close()
		return nil, err
	}

	signals, err := engine.NewSignalGenerator(cfg.Signal, cfg.Session)
	if err != nil {
		rec.Close()
		return nil, err
	}
	var clf engine.Classifier
	if cfg.Classifier.ModelPath != "" {
		sm, err := classifier.Load(cfg.Classifier.ModelPath)
		if err != nil {
			rec.Close()
			return nil, err
		}
		if err := sm.CheckFeatures(engine.FeatureNames); err != nil {
			rec.Close()
			return nil, fmt.Errorf("classifier %s: %w", cfg.Classifier.ModelPath, err)
		}
		clf = sm
	}

	hub := api.NewHub(log.Named("ws"))
	eng, err := engine.New(cfg, engine.Deps{
		Decider:   engine.NewDecisionEngine(signals, clf),
		Gateway:   br,
		Journal:   rec,
		Publisher: hub,
		Metrics:   m,
	})
	if err != nil {
		rec.Close()
		return nil, err
	}
	eng.SetLogger(log.Named("engine"))

	srv := api.NewServer(cfg.API.ListenAddress, eng, api.Options{
		Hub:           hub,
		Journal:       rec,
		Metrics:       m.Handler(),
		DefaultSymbol: cfg.App.Symbol,
	}, log.Named("api"))

	return &Components{
		Engine:    eng,
		Bridge:    br,
		Journal:   rec,
		Metrics:   m,
		Hub:       hub,
		Server:    srv,
		Scheduler: scheduler.New(cfg.Schedule, br, eng.Store(), m, log.Named("scheduler")),
	}, nil
}

// Run starts the engine, API server and health scheduler and blocks until
// SIGINT/SIGTERM or a fatal error.
func (a *App) Run() error {
	log, err := logging.Build(a.cfg.Log, a.cfg.App.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting ict engine",
		zap.String("version", version),
		zap.String("env", a.cfg.App.Env),
		zap.String("log_level", a.cfg.App.LogLevel),
		zap.String("gateway_mode", a.cfg.Gateway.Mode),
	)

	c, err := Build(a.cfg, log)
	if err != nil {
		return err
	}
	defer c.Journal.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Scheduler.Register(ctx); err != nil {
		return err
	}
	c.Scheduler.Start()
	defer c.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Engine.Run(ctx) })
	g.Go(func() error { return c.Server.Run(ctx) })
	if c.Bridge.Mode() == bridge.ModeQueue {
		g.Go(func() error { return ForwardCommands(ctx, c.Bridge.Commands(), c.Hub, log) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("fatal_error", zap.Error(err))
		return err
	}
	log.Info("ict engine stopped")
	return nil
}

// ForwardCommands publishes queued gateway commands to WebSocket clients,
// where an external executor subscribes to them.
func ForwardCommands(ctx context.Context, cmds <-chan model.Command, pub engine.Publisher, log *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-cmds:
			log.Debug("command_forwarded",
				zap.String("id", cmd.ID),
				zap.String("type", string(cmd.Type)),
				zap.String("position_id", cmd.PositionID),
			)
			pub.Broadcast(model.WSMessage{Type: "command", Data: cmd, Timestamp: cmd.Time})
		}
	}
}
