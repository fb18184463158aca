package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/standardbeagle/comet/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server",
	Long: `Run as an MCP (Model Context Protocol) server on stdio.

Exposes the "executor" tool so AI coding assistants can check the connection,
send scripts and settings, and run one-shot executions. The reconnect loop runs
in the background while the server is up.`,
	Run: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) {
	cfg, logger := mustLoadConfig(cmd)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	c := buildComponents(cfg, logger)
	defer c.Close(logger)

	c.loop.Start(ctx)
	defer c.loop.Stop()

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Controls a local script executor reachable on a loopback port range.

Use the executor tool:
- status / refresh / next_port to find and hold a connection
- send and setting once is_connected is true
- execute_once to run a script without holding a connection
- history to review what was sent`,
		},
	)
	tools.RegisterExecutorTool(server, tools.NewExecutorTools(c.ctrl))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("mcp server error", zap.Error(err))
		c.loop.Stop()
		c.Close(logger)
		os.Exit(1)
	}
}
