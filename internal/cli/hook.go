package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/approval"
	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/intercept"
	"github.com/gzhole/cmdauditor/internal/screen"
)

var hookCmd = &cobra.Command{
	Use:   "hook -- <command>",
	Short: "Shell hook entry point",
	Long: `Called by the bash and zsh integration with each command line typed at
the prompt, before the shell runs it.

Exit status 0 tells the shell to run the original command. Exit status 1
tells it to skip the original, either because it was blocked or because a
replacement has already been run.

Any internal problem, including a missing AI credential, prints a warning
and exits 0 without checking, so a broken setup never locks up the shell.

Setup:
  cmdauditor setup bash
  cmdauditor setup zsh`,
	Args: cobra.ExactArgs(1),
	RunE: hookCommand,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	if os.Getenv(config.EnvBypass) == "1" {
		return nil
	}
	command := args[0]

	s, err := openSession("hook")
	if err != nil {
		fmt.Fprintln(os.Stderr, approval.Warning("%v", err))
		return nil
	}
	defer s.Close()

	ic := intercept.New(s.checker, intercept.NewShellExecutor(), intercept.Config{
		Limits: screen.Limits{
			MaxLength:      s.cfg.Security.MaxCommandLength,
			AllowInvisible: s.cfg.Security.AllowInvisible,
		},
	})
	return runHook(cmd.Context(), ic, command, s.log)
}

// runHook maps the decision for one command line to the hook's exit
// status: nil lets the shell run the original, ExitError 1 skips it.
func runHook(ctx context.Context, ic *intercept.Interceptor, command string, log *slog.Logger) error {
	d, err := ic.Intercept(ctx, command)
	if errors.Is(err, intercept.ErrRecursion) {
		log.Debug("nested hook call ignored", "command", command)
		return nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, approval.Warning("%v", err))
		return nil
	}

	action, err := ic.Act(ctx, command, d)
	if err != nil {
		log.Debug("replacement exited non-zero", "status", intercept.ExitCode(err))
	}
	if action == intercept.ActionRunOriginal {
		return nil
	}
	return &ExitError{Code: 1}
}
