package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// GlobalConfigFile is the KDL configuration file name.
const GlobalConfigFile = "config.kdl"

// KDLConfig represents the KDL configuration structure.
// Uses kdl struct tags for unmarshaling.
type KDLConfig struct {
	Version  string      `kdl:"version"`
	Executor KDLExecutor `kdl:"executor"`
	Panel    KDLPanel    `kdl:"panel"`
	History  KDLHistory  `kdl:"history"`
	Logs     KDLLogs     `kdl:"logs"`
	Logging  KDLLogging  `kdl:"logging"`
}

// KDLExecutor holds executor settings from KDL. Durations are milliseconds.
type KDLExecutor struct {
	Host             string `kdl:"host"`
	MinPort          int    `kdl:"min-port"`
	MaxPort          int    `kdl:"max-port"`
	CheckIntervalMS  int    `kdl:"check-interval-ms"`
	ProbeTimeoutMS   int    `kdl:"probe-timeout-ms"`
	ExecuteTimeoutMS int    `kdl:"execute-timeout-ms"`
}

// KDLPanel holds panel settings from KDL.
type KDLPanel struct {
	Listen string `kdl:"listen"`
}

// KDLHistory holds history settings from KDL.
type KDLHistory struct {
	Path     string `kdl:"path"`
	MaxItems int    `kdl:"max-items"`
}

// KDLLogs holds log watcher settings from KDL.
type KDLLogs struct {
	Dir string `kdl:"dir"`
}

// KDLLogging holds logger settings from KDL.
type KDLLogging struct {
	Level  string `kdl:"level"`
	Format string `kdl:"format"`
}

// LoadGlobalConfig loads the configuration from the default location.
func LoadGlobalConfig() (*Config, error) {
	configPath := GlobalConfigPath()
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// If file doesn't exist, return defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return LoadConfigFile(configPath)
}

// LoadConfigFile loads configuration from a specific file path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseKDLConfig(string(data))
}

// ParseKDLConfig parses KDL configuration data.
func ParseKDLConfig(data string) (*Config, error) {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return nil, err
	}

	return kdlConfigToConfig(&kdlCfg), nil
}

// kdlConfigToConfig overlays KDL values on the defaults.
func kdlConfigToConfig(kdlCfg *KDLConfig) *Config {
	cfg := DefaultConfig()

	if kdlCfg.Version != "" {
		cfg.Version = kdlCfg.Version
	}

	e := kdlCfg.Executor
	if e.Host != "" {
		cfg.Executor.Host = e.Host
	}
	if e.MinPort > 0 {
		cfg.Executor.MinPort = e.MinPort
	}
	if e.MaxPort > 0 {
		cfg.Executor.MaxPort = e.MaxPort
	}
	if e.CheckIntervalMS > 0 {
		cfg.Executor.CheckInterval = time.Duration(e.CheckIntervalMS) * time.Millisecond
	}
	if e.ProbeTimeoutMS > 0 {
		cfg.Executor.ProbeTimeout = time.Duration(e.ProbeTimeoutMS) * time.Millisecond
	}
	if e.ExecuteTimeoutMS > 0 {
		cfg.Executor.ExecuteTimeout = time.Duration(e.ExecuteTimeoutMS) * time.Millisecond
	}

	if kdlCfg.Panel.Listen != "" {
		cfg.Panel.Listen = kdlCfg.Panel.Listen
	}
	if kdlCfg.History.Path != "" {
		cfg.History.Path = expandHome(kdlCfg.History.Path)
	}
	if kdlCfg.History.MaxItems > 0 {
		cfg.History.MaxItems = kdlCfg.History.MaxItems
	}
	if kdlCfg.Logs.Dir != "" {
		cfg.Logs.Dir = expandHome(kdlCfg.Logs.Dir)
	}
	if kdlCfg.Logging.Level != "" {
		cfg.Logging.Level = kdlCfg.Logging.Level
	}
	if kdlCfg.Logging.Format != "" {
		cfg.Logging.Format = kdlCfg.Logging.Format
	}

	return cfg
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "comet", GlobalConfigFile)
}

// WriteDefaultConfig writes a default config file with documentation.
func WriteDefaultConfig(path string) error {
	defaultKDL := `// comet configuration

version "1.0"

executor {
    // Loopback address the executor listens on
    host "127.0.0.1"
    // Inclusive port range the executor may pick from
    min-port 6969
    max-port 7069
    // Reconnect loop period; the probe timeout must be shorter
    check-interval-ms 2500
    probe-timeout-ms 1000
    execute-timeout-ms 5000
}

panel {
    // Control panel address (loopback only)
    listen "127.0.0.1:7331"
}

history {
    max-items 100
}

logging {
    // debug, info, warn, error
    level "info"
    // console or json
    format "console"
}
`
	// Create directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(strings.TrimSpace(defaultKDL)+"\n"), 0644)
}
