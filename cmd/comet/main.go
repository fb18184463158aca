package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/standardbeagle/comet/internal/config"
	"github.com/standardbeagle/comet/internal/logging"
)

const (
	appName    = "comet"
	appVersion = "0.3.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Control panel for a local script executor",
	Long: `Comet finds the script executor listening on a loopback port and sends it scripts.

It provides:
  - A loopback HTTP/WebSocket panel API for a UI front-end (comet serve)
  - An MCP server for AI coding assistants (comet mcp)
  - One-shot commands: exec, status, setting`,
	Version: appVersion,
	// Default behavior: if stdin is not a terminal, run as MCP server
	Run: func(cmd *cobra.Command, args []string) {
		if !isTerminal(os.Stdin) {
			runMCP(cmd, args)
		} else {
			cmd.Help()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config.kdl (default: $XDG_CONFIG_HOME/comet/config.kdl)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(settingCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// loadConfig reads the config file named by --config (or the global one),
// applies flag overrides and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadGlobalConfig()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func mustLoadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}
