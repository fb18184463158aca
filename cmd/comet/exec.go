package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/comet/internal/control"
)

var execCmd = &cobra.Command{
	Use:   "exec [file|-] | --last",
	Short: "Run a script once on the first executor found",
	Long: `Scan the configured port range, then post the script to the first port whose
identity probe succeeds. The executor's response body is printed to stdout.

The script is read from the named file, or from stdin when the argument is "-"
or omitted and stdin is not a terminal. --last runs the newest script in
history again.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runExec,
}

var (
	execCode string
	execLast bool
)

func init() {
	execCmd.Flags().StringVarP(&execCode, "code", "e", "", "Script text to run instead of reading a file")
	execCmd.Flags().BoolVar(&execLast, "last", false, "Run the most recent script from history again")
	execCmd.MarkFlagsMutuallyExclusive("code", "last")
}

func runExec(cmd *cobra.Command, args []string) {
	cfg, logger := mustLoadConfig(cmd)
	defer logger.Sync() //nolint:errcheck

	var script string
	var err error
	if execLast {
		if len(args) > 0 {
			err = errors.New("--last does not take a file argument")
		}
	} else {
		script, err = readScript(execCode, args, os.Stdin, isTerminal(os.Stdin))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := buildComponents(cfg, logger)
	res, err := executeScript(ctx, c.ctrl, execLast, script)
	c.Close(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(res.Output)
	if res.Output != "" && res.Output[len(res.Output)-1] != '\n' {
		fmt.Println()
	}
}

// executeScript runs script, or the newest history entry when last is set.
func executeScript(ctx context.Context, ctrl *control.Controller, last bool, script string) (control.ExecuteResult, error) {
	if last {
		return ctrl.ExecuteLast(ctx)
	}
	return ctrl.ExecuteOnce(ctx, script)
}

var errNoScript = errors.New("no script given: pass a file, -e CODE, or pipe it on stdin")

// readScript picks the script source: inline code, a file argument, or
// stdin ("-" or no argument with a non-terminal stdin).
func readScript(code string, args []string, stdin io.Reader, stdinIsTerminal bool) (string, error) {
	if code != "" {
		if len(args) > 0 {
			return "", errors.New("use either -e or a file argument, not both")
		}
		return code, nil
	}

	switch {
	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	case len(args) == 1 || !stdinIsTerminal:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		return "", errNoScript
	}
}
