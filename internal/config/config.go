// Package config handles loading and validating go-ict configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // session locations resolve without a system zoneinfo

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "ICT_CONFIG"
	EnvLogLevel   = "ICT_LOG_LEVEL"
	EnvSQLitePath = "ICT_SQLITE_PATH"
)

// DefaultPath is used when neither a flag nor ICT_CONFIG names a file.
const DefaultPath = "config/config.yaml"

// Config is the root configuration structure.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Log        LogConfig        `yaml:"log"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Session    SessionConfig    `yaml:"session"`
	Signal     SignalConfig     `yaml:"signal"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Risk       RiskConfig       `yaml:"risk"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Journal    JournalConfig    `yaml:"journal"`
	API        APIConfig        `yaml:"api"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"logLevel"`
	Symbol   string `yaml:"symbol"`
}

// LogConfig configures the rotated log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// AnalysisConfig configures the swing/structure passes.
type AnalysisConfig struct {
	SwingWindow int `yaml:"swingWindow"`
	// ConfirmSwings folds swings only once confirmed in batch runs,
	// matching the live tracker.
	ConfirmSwings bool `yaml:"confirmSwings"`
	// BarHistory caps the bars kept per symbol for status/API views.
	BarHistory int `yaml:"barHistory"`
}

// SessionConfig is the trading window in local wall-clock time.
type SessionConfig struct {
	Start    string `yaml:"start"` // HH:MM
	End      string `yaml:"end"`   // HH:MM, inclusive
	Location string `yaml:"location"`
}

// FibBand is a pair of retracement ratios bounding a confluence zone.
type FibBand struct {
	From float64 `yaml:"from"`
	To   float64 `yaml:"to"`
}

// SignalConfig holds the rule generator's multipliers.
type SignalConfig struct {
	StopATR     float64   `yaml:"stopATR"`
	PullbackATR float64   `yaml:"pullbackATR"`
	TP2ATR      float64   `yaml:"tp2ATR"`
	TP3ATR      float64   `yaml:"tp3ATR"`
	Extension   float64   `yaml:"extension"`
	TrendRSI    float64   `yaml:"trendRSI"`
	FibBands    []FibBand `yaml:"fibBands"`
}

// LifecycleConfig holds position management settings.
type LifecycleConfig struct {
	TP1StopATR float64 `yaml:"tp1StopATR"`
	TP3ATR     float64 `yaml:"tp3ATR"`
	// Partials are the fractions of the original size closed at TP1, TP2
	// and TP3. They must sum to less than 1.
	Partials         []float64 `yaml:"partials"`
	MaxOpenPositions int       `yaml:"maxOpenPositions"`
	OrderSize        float64   `yaml:"orderSize"`
}

// RiskConfig holds the drawdown guard levels.
type RiskConfig struct {
	DrawdownLevels []DrawdownLevel `yaml:"drawdownLevels"`
}

// DrawdownLevel defines a single guard level.
type DrawdownLevel struct {
	Name             string  `yaml:"name"`
	ThresholdPercent float64 `yaml:"thresholdPercent"`
	SizeScale        float64 `yaml:"sizeScale"`
	AllowEntries     bool    `yaml:"allowEntries"`
	ForceClose       bool    `yaml:"forceClose"`
}

// ClassifierConfig points at the fallback model weights.
type ClassifierConfig struct {
	ModelPath string `yaml:"modelPath"`
}

// GatewayConfig selects how orders leave the engine.
type GatewayConfig struct {
	Mode      string  `yaml:"mode"` // paper | queue
	QueueSize int     `yaml:"queueSize"`
	Balance   float64 `yaml:"balance"`
}

// JournalConfig configures the decision/event journal.
type JournalConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	ListenAddress string `yaml:"listenAddress"`
}

// ScheduleConfig drives the periodic health check.
type ScheduleConfig struct {
	HealthCron string        `yaml:"healthCron"`
	StaleAfter time.Duration `yaml:"staleAfter"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and environment overrides,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// ResolvePath picks the config file: explicit flag, then ICT_CONFIG, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

// setDefaults applies sensible defaults for optional fields.
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Symbol == "" {
		c.App.Symbol = "XAUUSD"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/ict.log"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 10
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 30
	}
	if c.Analysis.SwingWindow == 0 {
		c.Analysis.SwingWindow = 5
	}
	if c.Analysis.BarHistory == 0 {
		c.Analysis.BarHistory = 500
	}
	if c.Session.Start == "" {
		c.Session.Start = "07:00"
	}
	if c.Session.End == "" {
		c.Session.End = "15:00"
	}
	if c.Session.Location == "" {
		c.Session.Location = "Asia/Bangkok"
	}
	if c.Signal.StopATR == 0 {
		c.Signal.StopATR = 0.5
	}
	if c.Signal.PullbackATR == 0 {
		c.Signal.PullbackATR = 0.5
	}
	if c.Signal.TP2ATR == 0 {
		c.Signal.TP2ATR = 2.0
	}
	if c.Signal.TP3ATR == 0 {
		c.Signal.TP3ATR = 0.5
	}
	if c.Signal.Extension == 0 {
		c.Signal.Extension = 1.272
	}
	if c.Signal.TrendRSI == 0 {
		c.Signal.TrendRSI = 50
	}
	if len(c.Signal.FibBands) == 0 {
		c.Signal.FibBands = []FibBand{{From: 0.618, To: 0.5}, {From: 0.5, To: 0.382}}
	}
	if c.Lifecycle.TP1StopATR == 0 {
		c.Lifecycle.TP1StopATR = 0.5
	}
	if c.Lifecycle.TP3ATR == 0 {
		c.Lifecycle.TP3ATR = 0.5
	}
	if len(c.Lifecycle.Partials) == 0 {
		c.Lifecycle.Partials = []float64{1.0 / 3, 1.0 / 3, 0}
	}
	if c.Lifecycle.MaxOpenPositions == 0 {
		c.Lifecycle.MaxOpenPositions = 3
	}
	if c.Lifecycle.OrderSize == 0 {
		c.Lifecycle.OrderSize = 0.01
	}
	if len(c.Risk.DrawdownLevels) == 0 {
		c.Risk.DrawdownLevels = []DrawdownLevel{
			{Name: "GREEN", ThresholdPercent: 0, SizeScale: 1.0, AllowEntries: true},
			{Name: "YELLOW", ThresholdPercent: 5, SizeScale: 0.5, AllowEntries: true},
			{Name: "RED", ThresholdPercent: 10, SizeScale: 0.25, AllowEntries: false},
			{Name: "BLACK", ThresholdPercent: 20, SizeScale: 0.25, AllowEntries: false, ForceClose: true},
		}
	}
	if c.Gateway.Mode == "" {
		c.Gateway.Mode = "paper"
	}
	if c.Gateway.QueueSize == 0 {
		c.Gateway.QueueSize = 256
	}
	if c.Gateway.Balance == 0 {
		c.Gateway.Balance = 10000
	}
	if c.API.ListenAddress == "" {
		c.API.ListenAddress = "127.0.0.1:8090"
	}
	if c.Schedule.HealthCron == "" {
		c.Schedule.HealthCron = "@every 1m"
	}
	if c.Schedule.StaleAfter == 0 {
		c.Schedule.StaleAfter = 30 * time.Minute
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		c.Journal.SQLitePath = v
	}
}

// Validate checks value ranges that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Env {
	case "dev", "staging", "prod":
	default:
		errs = append(errs, fmt.Errorf("app.env must be dev, staging or prod, got %q", c.App.Env))
	}
	if c.Analysis.SwingWindow < 1 {
		errs = append(errs, fmt.Errorf("analysis.swingWindow must be >= 1, got %d", c.Analysis.SwingWindow))
	}
	if _, _, _, err := c.Session.Parse(); err != nil {
		errs = append(errs, err)
	}
	for i, b := range c.Signal.FibBands {
		if b.From <= 0 || b.From >= 1 || b.To <= 0 || b.To >= 1 {
			errs = append(errs, fmt.Errorf("signal.fibBands[%d] ratios must be in (0, 1)", i))
		}
	}
	if c.Signal.StopATR < 0 || c.Signal.PullbackATR < 0 || c.Signal.TP2ATR < 0 || c.Signal.TP3ATR < 0 {
		errs = append(errs, errors.New("signal ATR multipliers must be >= 0"))
	}
	if len(c.Lifecycle.Partials) != 3 {
		errs = append(errs, fmt.Errorf("lifecycle.partials needs 3 entries, got %d", len(c.Lifecycle.Partials)))
	} else {
		sum := 0.0
		for i, p := range c.Lifecycle.Partials {
			if p < 0 || p >= 1 {
				errs = append(errs, fmt.Errorf("lifecycle.partials[%d] must be in [0, 1), got %v", i, p))
			}
			sum += p
		}
		if sum >= 1 {
			errs = append(errs, fmt.Errorf("lifecycle.partials must sum to < 1, got %v", sum))
		}
	}
	if c.Lifecycle.MaxOpenPositions < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.maxOpenPositions must be >= 1, got %d", c.Lifecycle.MaxOpenPositions))
	}
	if c.Lifecycle.OrderSize <= 0 {
		errs = append(errs, fmt.Errorf("lifecycle.orderSize must be > 0, got %v", c.Lifecycle.OrderSize))
	}
	for i, lvl := range c.Risk.DrawdownLevels {
		if lvl.Name == "" {
			errs = append(errs, fmt.Errorf("risk.drawdownLevels[%d].name is required", i))
		}
		if i > 0 && lvl.ThresholdPercent < c.Risk.DrawdownLevels[i-1].ThresholdPercent {
			errs = append(errs, fmt.Errorf("risk.drawdownLevels must be sorted by thresholdPercent"))
		}
	}
	switch c.Gateway.Mode {
	case "paper", "queue":
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be paper or queue, got %q", c.Gateway.Mode))
	}
	return errors.Join(errs...)
}

// Parse resolves the session bounds as offsets from local midnight.
func (s SessionConfig) Parse() (start, end time.Duration, loc *time.Location, err error) {
	start, err = parseClock(s.Start)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("session.start: %w", err)
	}
	end, err = parseClock(s.End)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("session.end: %w", err)
	}
	if end < start {
		return 0, 0, nil, fmt.Errorf("session.end %s is before session.start %s", s.End, s.Start)
	}
	loc, err = time.LoadLocation(s.Location)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("session.location: %w", err)
	}
	return start, end, loc, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parsing %q as HH:MM: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
