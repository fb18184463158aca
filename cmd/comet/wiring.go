package main

import (
	"go.uber.org/zap"

	"github.com/standardbeagle/comet/internal/config"
	"github.com/standardbeagle/comet/internal/control"
	"github.com/standardbeagle/comet/internal/executor"
	"github.com/standardbeagle/comet/internal/history"
	"github.com/standardbeagle/comet/internal/logwatch"
)

// components is everything a long-running command needs.
type components struct {
	manager *executor.Manager
	loop    *executor.ReconnectLoop
	history *history.Store
	ctrl    *control.Controller
}

func buildComponents(cfg *config.Config, logger *zap.Logger) *components {
	opts := cfg.ExecutorOptions(logger)
	manager := executor.NewManager(opts, executor.NewHub(logger))
	store := history.NewStore(history.StoreConfig{
		Path:     cfg.History.Path,
		MaxItems: cfg.History.MaxItems,
		Logger:   logger,
	})

	return &components{
		manager: manager,
		loop:    executor.NewReconnectLoop(manager, opts.CheckInterval, logger),
		history: store,
		ctrl: control.New(control.Config{
			Manager: manager,
			Scanner: executor.NewScanner(opts),
			History: store,
			Logs:    &logwatch.Watcher{Dir: cfg.Logs.Dir, Logger: logger},
			Logger:  logger,
		}),
	}
}

func (c *components) Close(logger *zap.Logger) {
	c.ctrl.StopLogs()
	if err := c.history.Close(); err != nil {
		logger.Warn("failed to save history", zap.Error(err))
	}
}
