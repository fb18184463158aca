// Package config contains configuration types for comet.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/comet/internal/executor"
)

// Config holds the complete comet configuration.
type Config struct {
	// Version is the config file version.
	Version string `json:"version"`

	// Executor controls discovery of and dispatch to the local executor.
	Executor ExecutorSettings `json:"executor"`

	// Panel controls the loopback control surface for the UI.
	Panel PanelSettings `json:"panel"`

	// History controls the execution history store.
	History HistorySettings `json:"history"`

	// Logs controls the host application log watcher.
	Logs LogSettings `json:"logs"`

	// Logging controls comet's own logger.
	Logging LoggingSettings `json:"logging"`
}

// ExecutorSettings holds executor discovery and timing settings.
type ExecutorSettings struct {
	// Host is the loopback address the executor listens on.
	Host string `json:"host"`
	// MinPort and MaxPort bound the port range (inclusive).
	MinPort int `json:"min_port"`
	MaxPort int `json:"max_port"`
	// CheckInterval is the reconnect loop period.
	CheckInterval time.Duration `json:"check_interval"`
	// ProbeTimeout bounds a single GET /secret. Must be shorter than CheckInterval.
	ProbeTimeout time.Duration `json:"probe_timeout"`
	// ExecuteTimeout bounds a single POST /execute.
	ExecuteTimeout time.Duration `json:"execute_timeout"`
}

// PanelSettings holds the control panel listener settings.
type PanelSettings struct {
	// Listen is the loopback address the panel binds to.
	Listen string `json:"listen"`
}

// HistorySettings holds execution history settings.
type HistorySettings struct {
	// Path is the JSON file history is persisted to. Empty keeps history in memory.
	Path string `json:"path"`
	// MaxItems caps the number of records kept.
	MaxItems int `json:"max_items"`
}

// LogSettings holds log watcher settings.
type LogSettings struct {
	// Dir is the directory holding the host application's *.log files.
	Dir string `json:"dir"`
}

// LoggingSettings holds comet's own logging settings.
type LoggingSettings struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is "console" or "json".
	Format string `json:"format"`
}

// Default values not owned by the executor package.
const (
	DefaultPanelListen     = "127.0.0.1:7331"
	DefaultHistoryMaxItems = 100
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Executor: ExecutorSettings{
			Host:           executor.DefaultHost,
			MinPort:        executor.DefaultMinPort,
			MaxPort:        executor.DefaultMaxPort,
			CheckInterval:  executor.DefaultCheckInterval,
			ProbeTimeout:   executor.DefaultProbeTimeout,
			ExecuteTimeout: executor.DefaultExecuteTimeout,
		},
		Panel: PanelSettings{
			Listen: DefaultPanelListen,
		},
		History: HistorySettings{
			Path:     DefaultHistoryPath(),
			MaxItems: DefaultHistoryMaxItems,
		},
		Logs: LogSettings{
			Dir: DefaultLogDir(),
		},
		Logging: LoggingSettings{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultHistoryPath returns the default history file path.
func DefaultHistoryPath() string {
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "comet", "history.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "comet", "history.json")
	}
	return filepath.Join(os.TempDir(), "comet-history.json")
}

// DefaultLogDir returns the directory the host application writes its logs to.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Logs", "Roblox")
}

// Validate checks the configuration for errors, filling zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	e := &c.Executor

	if e.Host == "" {
		e.Host = def.Executor.Host
	}
	if e.MinPort == 0 {
		e.MinPort = def.Executor.MinPort
	}
	if e.MaxPort == 0 {
		e.MaxPort = def.Executor.MaxPort
	}
	if e.CheckInterval <= 0 {
		e.CheckInterval = def.Executor.CheckInterval
	}
	if e.ProbeTimeout <= 0 {
		e.ProbeTimeout = def.Executor.ProbeTimeout
	}
	if e.ExecuteTimeout <= 0 {
		e.ExecuteTimeout = def.Executor.ExecuteTimeout
	}
	if c.Panel.Listen == "" {
		c.Panel.Listen = def.Panel.Listen
	}
	if c.History.MaxItems <= 0 {
		c.History.MaxItems = def.History.MaxItems
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}

	var errs []error
	if !isLoopback(e.Host) {
		errs = append(errs, fmt.Errorf("executor host %q is not a loopback address", e.Host))
	}
	if e.MinPort < 1 || e.MinPort > 65535 || e.MaxPort < 1 || e.MaxPort > 65535 {
		errs = append(errs, fmt.Errorf("executor port range %d-%d is outside 1-65535", e.MinPort, e.MaxPort))
	}
	if e.MinPort > e.MaxPort {
		errs = append(errs, fmt.Errorf("executor min-port %d is greater than max-port %d", e.MinPort, e.MaxPort))
	}
	if e.ProbeTimeout >= e.CheckInterval {
		errs = append(errs, fmt.Errorf("executor probe timeout %s must be shorter than check interval %s", e.ProbeTimeout, e.CheckInterval))
	}
	if host, _, err := net.SplitHostPort(c.Panel.Listen); err != nil {
		errs = append(errs, fmt.Errorf("panel listen address %q: %w", c.Panel.Listen, err))
	} else if !isLoopback(host) {
		errs = append(errs, fmt.Errorf("panel listen address %q is not loopback", c.Panel.Listen))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging format %q must be console or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ExecutorOptions converts the executor settings into executor.Options.
func (c *Config) ExecutorOptions(logger *zap.Logger) executor.Options {
	return executor.Options{
		Host:           c.Executor.Host,
		MinPort:        c.Executor.MinPort,
		MaxPort:        c.Executor.MaxPort,
		CheckInterval:  c.Executor.CheckInterval,
		ProbeTimeout:   c.Executor.ProbeTimeout,
		ExecuteTimeout: c.Executor.ExecuteTimeout,
		Logger:         logger,
	}
}
