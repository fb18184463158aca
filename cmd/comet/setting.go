package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var settingCmd = &cobra.Command{
	Use:   "setting KEY VALUE...",
	Short: "Send a setting command to the executor",
	Long: `Locate the executor, connect to it, and send "KEY VALUE" over the script
channel. Extra arguments are joined into the value with single spaces.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runSetting,
}

func runSetting(cmd *cobra.Command, args []string) {
	cfg, logger := mustLoadConfig(cmd)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := buildComponents(cfg, logger)
	defer c.Close(logger)

	if err := sendSetting(ctx, c, args[0], strings.Join(args[1:], " ")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		c.Close(logger)
		os.Exit(1)
	}
	fmt.Printf("Sent %q\n", args[0]+" "+strings.Join(args[1:], " "))
}

// sendSetting binds the first executor found in the range, then sends the
// setting over the sticky connection.
func sendSetting(ctx context.Context, c *components, key, value string) error {
	scanner := c.ctrl.Scanner()
	port, err := scanner.Find(ctx)
	if err != nil {
		return err
	}
	if !c.manager.Connect(ctx, port) {
		return fmt.Errorf("executor on port %d stopped answering", port)
	}
	return c.ctrl.ChangeSetting(ctx, key, value)
}
