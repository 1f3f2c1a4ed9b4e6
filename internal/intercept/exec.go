package intercept

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/gzhole/cmdauditor/internal/shellparse"
)

// ShellExecutor runs replacement commands. Plain literal commands naming
// an executable are run directly from their argument vector. Anything
// else goes to Shell as a single -c argument.
type ShellExecutor struct {
	Shell  string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func NewShellExecutor() *ShellExecutor {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellExecutor{
		Shell:  shell,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (e *ShellExecutor) Run(ctx context.Context, command string) error {
	var cmd *exec.Cmd
	if argv, ok := directArgv(command); ok {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	} else {
		cmd = exec.CommandContext(ctx, e.Shell, "-c", command)
	}
	cmd.Dir = e.Dir
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	cmd.Env = append(os.Environ(), ActiveEnv+"=1")
	return cmd.Run()
}

// directArgv returns the argument vector for commands that need no
// shell. Builtins and unknown names are left to the shell.
func directArgv(command string) ([]string, bool) {
	argv, ok := shellparse.Argv(command)
	if !ok {
		return nil, false
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, false
	}
	return argv, true
}

// ExitCode maps a Run error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 127
}
