package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/comet/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the comet configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a documented default config.kdl",
	Run:   runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configPath(cmd))
	},
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return config.GlobalConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := configPath(cmd)
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: cannot determine config directory; pass --config")
		os.Exit(1)
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		fmt.Fprintf(os.Stderr, "Config already exists at %s (use --force to overwrite)\n", path)
		os.Exit(1)
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}
