// Package control is the command surface shared by the panel and the MCP
// tool. It pairs each executor operation with history recording.
package control

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/standardbeagle/comet/internal/executor"
	"github.com/standardbeagle/comet/internal/history"
	"github.com/standardbeagle/comet/internal/logwatch"
)

var (
	// ErrSendFailed means a port was bound but the executor did not accept
	// the payload. The transport error, if any, has already unbound it.
	ErrSendFailed = errors.New("executor did not accept the script")

	// ErrEmptyScript rejects blank payloads before they reach the executor.
	ErrEmptyScript = errors.New("script is empty")

	// ErrEmptySetting rejects a setting without a key.
	ErrEmptySetting = errors.New("setting key is empty")

	// ErrNoLastScript means there is nothing in history to re-run.
	ErrNoLastScript = errors.New("no last script found")
)

// Config wires a Controller. Manager is required; the rest default.
type Config struct {
	Manager *executor.Manager
	Scanner *executor.Scanner
	History *history.Store
	Logs    *logwatch.Watcher
	Logger  *zap.Logger
}

// Controller runs the user-facing commands.
type Controller struct {
	manager *executor.Manager
	scanner *executor.Scanner
	history *history.Store
	logs    *logwatch.Watcher
	logger  *zap.Logger
}

// New creates a controller. A nil Scanner shares the manager's host, range,
// timeouts and HTTP client, a nil History keeps records in memory only and a nil
// Logs watcher has no directory.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Scanner == nil {
		cfg.Scanner = executor.NewScanner(cfg.Manager.Options())
	}
	if cfg.History == nil {
		cfg.History = history.NewStore(history.StoreConfig{Logger: cfg.Logger})
	}
	if cfg.Logs == nil {
		cfg.Logs = &logwatch.Watcher{Logger: cfg.Logger}
	}
	return &Controller{
		manager: cfg.Manager,
		scanner: cfg.Scanner,
		history: cfg.History,
		logs:    cfg.Logs,
		logger:  cfg.Logger.Named("control"),
	}
}

// Manager returns the sticky connection manager.
func (c *Controller) Manager() *executor.Manager {
	return c.manager
}

// Scanner returns the range-scan dispatcher.
func (c *Controller) Scanner() *executor.Scanner {
	return c.scanner
}

// Status returns the last committed connection state.
func (c *Controller) Status() executor.Status {
	return c.manager.Status()
}

// Send dispatches script over the sticky binding and records the outcome.
func (c *Controller) Send(ctx context.Context, script string) error {
	if strings.TrimSpace(script) == "" {
		return ErrEmptyScript
	}

	err := c.send(ctx, script)
	c.history.Add(history.NewRecord(script, err))
	return err
}

func (c *Controller) send(ctx context.Context, payload string) error {
	if !c.manager.Status().Connected {
		return executor.ErrNotConnected
	}
	if c.manager.Send(ctx, payload) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrSendFailed
}

// ChangeSetting sends "<key> <value>" over the sticky binding. Settings are
// not recorded in history.
func (c *Controller) ChangeSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptySetting
	}
	return c.send(ctx, executor.FormatSetting(key, value))
}

// Refresh runs one connect attempt against the current port.
func (c *Controller) Refresh(ctx context.Context) executor.Status {
	return c.manager.Refresh(ctx)
}

// NextPort advances the current port and drops any binding.
func (c *Controller) NextPort() executor.Status {
	return c.manager.IncrementPort()
}

// ExecuteResult is the outcome of a one-shot execution.
type ExecuteResult struct {
	Port   int    `json:"port"`
	Output string `json:"output"`
}

// ExecuteOnce scans the range for the executor and posts script to the first
// port that answers, independently of the sticky binding.
func (c *Controller) ExecuteOnce(ctx context.Context, script string) (ExecuteResult, error) {
	if strings.TrimSpace(script) == "" {
		return ExecuteResult{}, ErrEmptyScript
	}

	port, err := c.scanner.Find(ctx)
	if err != nil {
		c.history.Add(history.NewRecord(script, err))
		return ExecuteResult{}, err
	}

	if st := c.manager.Status(); st.Connected && st.BoundPort != port {
		c.logger.Warn("range scan found a different executor than the bound one",
			zap.Int("scan_port", port),
			zap.Int("bound_port", st.BoundPort))
	}

	out, err := c.scanner.ExecuteAt(ctx, port, script)
	c.history.Add(history.NewRecord(script, err))
	if err != nil {
		return ExecuteResult{Port: port}, err
	}
	return ExecuteResult{Port: port, Output: out}, nil
}

// ExecuteLast re-runs the newest script in history through ExecuteOnce.
func (c *Controller) ExecuteLast(ctx context.Context) (ExecuteResult, error) {
	last := c.history.List(1)
	if len(last) == 0 {
		return ExecuteResult{}, ErrNoLastScript
	}
	return c.ExecuteOnce(ctx, last[0].Content)
}

// History returns up to limit records, newest first. Zero means all.
func (c *Controller) History(limit int) []history.Record {
	return c.history.List(limit)
}

// ClearHistory drops every record.
func (c *Controller) ClearHistory() error {
	return c.history.Clear()
}

// WatchLogs starts tailing the host application's newest log.
func (c *Controller) WatchLogs(ctx context.Context, emit func(line string)) error {
	return c.logs.Start(ctx, emit)
}

// StopLogs stops the log tail, if running.
func (c *Controller) StopLogs() {
	c.logs.Stop()
}

// WatchingLogs reports whether the log tail is running.
func (c *Controller) WatchingLogs() bool {
	return c.logs.Watching()
}
