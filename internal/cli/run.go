package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/intercept"
	"github.com/gzhole/cmdauditor/internal/screen"
	"github.com/gzhole/cmdauditor/internal/shellparse"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Check a command, then run it or its replacement",
	Long: `Run a command through cmdauditor outside of a shell hook. The command
and its arguments go after --. A single argument is treated as a full
command line and may use shell syntax.

The checks run even when stdin is not a terminal.

Example:
  cmdauditor run -- rm -rf build
  cmdauditor run -- 'find / -name "*.log" | xargs ls -l'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	command, err := shellparse.Join(args)
	if err != nil {
		return fmt.Errorf("cannot quote arguments: %w", err)
	}

	s, err := openSession("run")
	if err != nil {
		return err
	}
	defer s.Close()

	executor := intercept.NewShellExecutor()
	ic := intercept.New(s.checker, executor, intercept.Config{
		Interactive: func() bool { return true },
		Limits: screen.Limits{
			MaxLength:      s.cfg.Security.MaxCommandLength,
			AllowInvisible: s.cfg.Security.AllowInvisible,
		},
	})

	d, err := ic.Intercept(cmd.Context(), command)
	if err != nil {
		return err
	}

	action, err := ic.Act(cmd.Context(), command, d)
	switch action {
	case intercept.ActionRunOriginal:
		err = executor.Run(cmd.Context(), command)
	case intercept.ActionBlocked, intercept.ActionManual:
		return &ExitError{Code: 1}
	}

	if code := intercept.ExitCode(err); code != 0 {
		if code == 127 && err != nil {
			fmt.Fprintf(os.Stderr, "cmdauditor: %v\n", err)
		}
		return &ExitError{Code: code}
	}
	return nil
}
