package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/decision"
	"github.com/gzhole/cmdauditor/internal/intercept"
)

type fixedChecker struct {
	d     decision.Decision
	calls []string
}

func (f *fixedChecker) Check(ctx context.Context, command string) decision.Decision {
	f.calls = append(f.calls, command)
	return f.d
}

type fakeExecutor struct {
	ran []string
	err error
}

func (f *fakeExecutor) Run(ctx context.Context, command string) error {
	f.ran = append(f.ran, command)
	return f.err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestRunHook_ExitStatus(t *testing.T) {
	tests := []struct {
		name    string
		d       decision.Decision
		env     map[string]string
		execErr error
		code    int
		ran     []string
		checked bool
	}{
		{name: "pass runs original", d: decision.Pass(decision.SourceAI), code: 0, checked: true},
		{name: "fallback pass runs original", d: decision.Pass(decision.SourceFallback), code: 0, checked: true},
		{name: "error skips original", d: decision.Reject("dangerous delete", decision.SourceRule), code: 1, checked: true},
		{name: "execute runs replacement and skips original", d: decision.Execute("rm -ri build", decision.SourceRule), code: 1, ran: []string{"rm -ri build"}, checked: true},
		{name: "failing replacement still skips original", d: decision.Execute("make -n", decision.SourceAI), execErr: errors.New("exit status 2"), code: 1, ran: []string{"make -n"}, checked: true},
		{name: "shell-state replacement is printed only", d: decision.Execute("cd /tmp", decision.SourceAI), code: 1, checked: true},
		{name: "nested hook runs original unchecked", d: decision.Reject("x", decision.SourceRule), env: map[string]string{intercept.ActiveEnv: "1"}, code: 0},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		c := &fixedChecker{d: tt.d}
		e := &fakeExecutor{err: tt.execErr}
		var out bytes.Buffer
		ic := intercept.New(c, e, intercept.Config{
			Interactive: func() bool { return true },
			Getenv:      func(k string) string { return tt.env[k] },
			Out:         &out,
		})

		err := runHook(context.Background(), ic, "rm -rf build", log)
		if got := exitCode(err); got != tt.code {
			t.Errorf("%s: expected exit %d, got %d (%v)", tt.name, tt.code, got, err)
		}
		if !reflect.DeepEqual(e.ran, tt.ran) {
			t.Errorf("%s: expected executor runs %q, got %q", tt.name, tt.ran, e.ran)
		}
		if checked := len(c.calls) > 0; checked != tt.checked {
			t.Errorf("%s: expected checked=%v", tt.name, tt.checked)
		}
	}
}

// withoutCredential points HOME at an empty directory and clears every
// variable that would supply an API key or skip the checks.
func withoutCredential(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvBypass, "")
	t.Setenv(config.EnvRules, "")
	return home
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestMissingCredential_RefusesToCheck(t *testing.T) {
	home := withoutCredential(t)
	script := filepath.Join(home, "deploy.sh")
	if err := os.WriteFile(script, []byte("ls -la\n"), 0600); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		{"check-command", "ls -la"},
		{"run", "--", "true"},
		{"scan", script},
	} {
		err := execute(args...)
		if !errors.Is(err, config.ErrMissingCredential) {
			t.Errorf("%v: expected missing credential error, got %v", args, err)
		}
	}
}

func TestMissingCredential_HookExitsZero(t *testing.T) {
	withoutCredential(t)

	if err := execute("hook", "--", "rm -rf /"); err != nil {
		t.Errorf("hook must exit 0 when it cannot check, got %v", err)
	}
}

func TestAIDisabled_ChecksWithoutCredential(t *testing.T) {
	home := withoutCredential(t)
	cfgPath := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ai:\n  enabled: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvConfig, cfgPath)

	if err := execute("check-command", "ls -la"); err != nil {
		t.Errorf("rules-only config needs no credential, got %v", err)
	}
}
