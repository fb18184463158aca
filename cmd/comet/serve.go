package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/comet/internal/panel"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the panel API and the reconnect loop",
	Long: `Run the loopback panel API for a UI front-end.

The reconnect loop probes the current port every check interval and reports
connection changes to WebSocket clients on /ws. Scripts sent through the panel
are recorded in the execution history.`,
	Run: runServe,
}

var serveListen string

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Panel listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, logger := mustLoadConfig(cmd)
	defer logger.Sync() //nolint:errcheck

	if serveListen != "" {
		cfg.Panel.Listen = serveListen
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	c := buildComponents(cfg, logger)
	defer c.Close(logger)

	p := panel.New(cfg.Panel.Listen, c.ctrl, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Serve(gctx)
	})
	g.Go(func() error {
		err := c.loop.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Info("comet serving",
		zap.String("panel", cfg.Panel.Listen),
		zap.Int("min_port", cfg.Executor.MinPort),
		zap.Int("max_port", cfg.Executor.MaxPort),
		zap.Duration("check_interval", cfg.Executor.CheckInterval))

	if err := g.Wait(); err != nil {
		logger.Error("serve failed", zap.Error(err))
		c.Close(logger)
		os.Exit(1)
	}
}
