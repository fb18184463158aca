package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/comet/internal/executor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Find the executor in the port range",
	Long: `Probe the configured port range in ascending order and report the first port
that answers the identity check. Exits 1 when no executor is found.`,
	Run: runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the result as JSON")
}

// statusReport is what `comet status --json` prints.
type statusReport struct {
	Found   bool   `json:"found"`
	Port    int    `json:"port,omitempty"`
	MinPort int    `json:"min_port"`
	MaxPort int    `json:"max_port"`
	Error   string `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, logger := mustLoadConfig(cmd)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scanner := executor.NewScanner(cfg.ExecutorOptions(logger))
	port, err := scanner.Find(ctx)

	report := statusReport{
		Found:   err == nil,
		Port:    port,
		MinPort: cfg.Executor.MinPort,
		MaxPort: cfg.Executor.MaxPort,
	}
	if err != nil {
		report.Error = err.Error()
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else if err == nil {
		fmt.Printf("Executor found on port %d\n", port)
	} else if errors.Is(err, executor.ErrRangeExhausted) {
		fmt.Printf("No executor on ports %d-%d\n", report.MinPort, report.MaxPort)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	if err != nil {
		os.Exit(1)
	}
}
