// Package intercept is the session-side half of the pipeline: it asks a
// Checker about each command the shell is about to run and carries out
// the resulting decision.
//
// The host shell's hook is a thin adapter around one Interceptor; the
// interceptor itself holds no process-wide state beyond its own
// re-entrancy flag.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/gzhole/cmdauditor/internal/approval"
	"github.com/gzhole/cmdauditor/internal/decision"
	"github.com/gzhole/cmdauditor/internal/screen"
	"github.com/gzhole/cmdauditor/internal/shellparse"
)

// ActiveEnv is set to "1" in the environment of every command the
// interceptor runs itself, so a hook firing inside it is detected.
const ActiveEnv = "CMDAUDITOR_ACTIVE"

var ErrRecursion = errors.New("command interception re-entered")

type Checker interface {
	Check(ctx context.Context, command string) decision.Decision
}

type Executor interface {
	Run(ctx context.Context, command string) error
}

// Action is what the caller must do after Act returns.
type Action string

const (
	ActionRunOriginal    Action = "run_original"
	ActionRanReplacement Action = "ran_replacement"
	ActionBlocked        Action = "blocked"
	ActionManual         Action = "manual" // replacement printed for the user to run
)

// Config holds the optional collaborators. Zero values select the live
// terminal and process environment.
type Config struct {
	Interactive func() bool
	Getenv      func(string) string
	Out         io.Writer
	Limits      screen.Limits
}

type Interceptor struct {
	checker     Checker
	exec        Executor
	interactive func() bool
	getenv      func(string) string
	out         io.Writer
	limits      screen.Limits
	active      atomic.Bool
}

func New(c Checker, e Executor, cfg Config) *Interceptor {
	ic := &Interceptor{
		checker:     c,
		exec:        e,
		interactive: cfg.Interactive,
		getenv:      cfg.Getenv,
		out:         cfg.Out,
		limits:      cfg.Limits,
	}
	if ic.interactive == nil {
		ic.interactive = approval.IsInteractive
	}
	if ic.getenv == nil {
		ic.getenv = os.Getenv
	}
	if ic.out == nil {
		ic.out = os.Stderr
	}
	if ic.limits == (screen.Limits{}) {
		ic.limits = screen.DefaultLimits()
	}
	return ic
}

// Intercept decides on command, one whole line as typed at the prompt.
// Non-interactive sessions pass without evaluation. A call made while another is in flight, or from inside a
// command this package started, returns ErrRecursion.
func (ic *Interceptor) Intercept(ctx context.Context, command string) (decision.Decision, error) {
	if ic.getenv(ActiveEnv) == "1" {
		return decision.Decision{}, ErrRecursion
	}
	if !ic.active.CompareAndSwap(false, true) {
		return decision.Decision{}, ErrRecursion
	}
	defer ic.active.Store(false)

	if !ic.interactive() {
		return decision.Pass(decision.SourceSkipped), nil
	}
	// A line the shell would continue is the start of a multiline command.
	if shellparse.Incomplete(command) {
		command += "\n"
	}
	return ic.checker.Check(ctx, command), nil
}

// Act carries out d for original. For a replacement the returned error
// is the replacement's own exit error, if any.
func (ic *Interceptor) Act(ctx context.Context, original string, d decision.Decision) (Action, error) {
	switch d.Kind {
	case decision.KindError:
		fmt.Fprintln(ic.out, approval.BlockNotice(d.Reason))
		return ActionBlocked, nil

	case decision.KindExecute:
		if rej, rejected := screen.Check(d.Replacement, ic.limits); rejected {
			fmt.Fprintln(ic.out, approval.BlockNotice("replacement "+rej.Message))
			return ActionBlocked, nil
		}
		fmt.Fprintln(ic.out, approval.RewriteNotice(original, d.Replacement))

		if shellparse.ChangesShellState(d.Replacement) {
			fmt.Fprintln(ic.out, approval.Warning("this changes shell state; run it yourself:"))
			fmt.Fprintln(ic.out, "  "+d.Replacement)
			return ActionManual, nil
		}

		ic.active.Store(true)
		defer ic.active.Store(false)
		return ActionRanReplacement, ic.exec.Run(ctx, d.Replacement)

	default:
		return ActionRunOriginal, nil
	}
}
