// Package checker runs one command through the validation pipeline:
// screening, the rule engine, then the AI fallback, and resolves the
// result into a single decision.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gzhole/cmdauditor/internal/cache"
	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/decision"
	"github.com/gzhole/cmdauditor/internal/guardian"
	"github.com/gzhole/cmdauditor/internal/logger"
	"github.com/gzhole/cmdauditor/internal/metrics"
	"github.com/gzhole/cmdauditor/internal/policy"
	"github.com/gzhole/cmdauditor/internal/prompt"
	"github.com/gzhole/cmdauditor/internal/redact"
	"github.com/gzhole/cmdauditor/internal/screen"
)

// AuditSink receives one event per checked command.
type AuditSink interface {
	Log(event logger.AuditEvent) error
}

// Options carries the collaborators New does not build from the config.
// Zero values select the defaults.
type Options struct {
	Logger *slog.Logger
	Audit  AuditSink
	// Origin tags audit events with the entry point (check, hook, run, scan).
	Origin string
	// Provider replaces the HTTP client built from cfg.AI.
	Provider guardian.Provider
	// Cache replaces the sqlite store opened from cfg.Cache.
	Cache guardian.Cache
}

type Checker struct {
	engine    *policy.Engine
	packs     []policy.PackInfo
	limits    screen.Limits
	template  string
	rulesText string
	provider  guardian.Provider
	bypass    bool

	logger  *slog.Logger
	audit   AuditSink
	origin  string
	closers []io.Closer
}

// New loads every rule source and the prompt, and builds the AI
// provider. Any malformed rule, unreadable configured file or missing AI
// credential fails here, before a single command is processed.
func New(cfg *config.Config, opts Options) (*Checker, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	rules, err := policy.LoadFiles(cfg.Rules.Files)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	packRules, packs, err := policy.LoadPacks(cfg.Rules.PacksDir)
	if err != nil {
		return nil, fmt.Errorf("load packs: %w", err)
	}
	rules = append(rules, packRules...)
	rules = append(rules, policy.BlockedPatterns(cfg.Security.BlockedPatterns)...)
	if cfg.Security.BuiltinGuards {
		rules = append(rules, policy.BuiltinGuards()...)
	}

	engine, err := policy.NewEngine(rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	metrics.SetRulesLoaded(engine.Len())

	tmpl, err := prompt.LoadTemplate(cfg.AI.PromptFile)
	if err != nil {
		return nil, err
	}
	rulesText, found, err := prompt.LoadRulesText(cfg.AI.RulesFile)
	if err != nil {
		return nil, err
	}
	if !found && cfg.AI.Enabled {
		log.Warn("no AI rules document, using placeholder", "path", cfg.AI.RulesFile)
	}

	c := &Checker{
		engine:    engine,
		packs:     packs,
		limits:    screen.Limits{MaxLength: cfg.Security.MaxCommandLength, AllowInvisible: cfg.Security.AllowInvisible},
		template:  tmpl,
		rulesText: rulesText,
		bypass:    cfg.Bypass,
		logger:    log,
		audit:     opts.Audit,
		origin:    opts.Origin,
	}

	c.provider, err = c.buildProvider(cfg, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Checker) buildProvider(cfg *config.Config, opts Options) (guardian.Provider, error) {
	provider := opts.Provider
	switch {
	case provider != nil:
	case !cfg.AI.Enabled:
		return guardian.Unavailable{Why: "AI analysis disabled"}, nil
	case cfg.Bypass:
		return guardian.Unavailable{Why: "checks bypassed"}, nil
	case cfg.APIKey == "":
		return nil, fmt.Errorf("%w: set %s or disable ai.enabled", config.ErrMissingCredential, cfg.AI.APIKeyEnv)
	default:
		client, err := guardian.NewClient(guardian.ClientConfig{
			BaseURL:    cfg.AI.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.AI.Model,
			Timeout:    cfg.AI.Timeout,
			MaxRetries: cfg.AI.MaxRetries,
			RetryDelay: cfg.AI.RetryDelay,
			MaxTokens:  cfg.AI.MaxTokens,
			Logger:     c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("ai client: %w", err)
		}
		provider = client
	}

	if !cfg.Cache.Enabled {
		return provider, nil
	}
	store := opts.Cache
	if store == nil {
		s, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL)
		if err != nil {
			c.logger.Warn("ai cache unavailable, continuing without it", "path", cfg.Cache.Path, "error", err)
			return provider, nil
		}
		c.closers = append(c.closers, s)
		if n, err := s.Prune(context.Background()); err != nil {
			c.logger.Warn("ai cache prune failed", "error", err)
		} else if n > 0 {
			c.logger.Debug("expired ai cache entries removed", "count", n)
		}
		store = s
	}
	return guardian.NewCaching(provider, store, cfg.AI.Model, c.logger), nil
}

// Check returns the decision for command. It never fails: load problems
// surface from New, and AI failures resolve to a fallback Pass.
func (c *Checker) Check(ctx context.Context, command string) decision.Decision {
	start := time.Now()
	d, suspicious, aiErr := c.evaluate(ctx, command)
	elapsed := time.Since(start)

	metrics.RecordDecision(string(d.Kind), string(d.Source), elapsed)
	if d.Source == decision.SourceFallback {
		metrics.RecordFallback(d.Fallback)
	}
	c.record(command, d, suspicious, aiErr, elapsed)
	return d
}

// evaluate also returns the AI failure behind a fallback decision.
func (c *Checker) evaluate(ctx context.Context, command string) (decision.Decision, []string, error) {
	if c.bypass {
		return decision.Pass(decision.SourceSkipped), nil, nil
	}
	// A bare line break is still a multiline command, not an empty one.
	if strings.TrimSpace(command) == "" && !screen.IsMultiline(command) {
		return decision.Pass(decision.SourceEmpty), nil, nil
	}

	if rej, rejected := screen.Check(command, c.limits); rejected {
		d := decision.Reject(rej.Message, decision.SourceScreen)
		d.Note = rej.Check
		return d, nil, nil
	}

	suspicious := screen.Suspicious(command)
	for _, name := range redact.Detect(command) {
		suspicious = append(suspicious, "secret "+name)
	}
	if len(suspicious) > 0 {
		c.logger.Warn("suspicious command", "patterns", suspicious)
	}

	if outcome, matched := c.engine.Evaluate(command); matched {
		c.logger.Debug("rule matched", "rule", outcome.RuleID, "outcome", outcome.Kind.String())
		return decision.Resolve(decision.Inputs{Command: command, Rule: &outcome}), suspicious, nil
	}

	in := decision.Inputs{Command: command}
	resp, err := c.provider.Analyze(ctx, prompt.Render(c.template, c.rulesText, command))
	if err != nil {
		in.AIErr = err
		c.logAIFailure(err)
	} else {
		in.AI = &resp
	}
	return decision.Resolve(in), suspicious, in.AIErr
}

func (c *Checker) logAIFailure(err error) {
	kind := guardian.KindOf(err)
	if kind == guardian.KindUnavailable {
		c.logger.Debug("AI analysis skipped", "reason", err)
		return
	}
	attrs := []any{"kind", string(kind), "error", err}
	var gerr *guardian.Error
	if errors.As(err, &gerr) && gerr.Attempts > 0 {
		attrs = append(attrs, "attempts", gerr.Attempts)
	}
	c.logger.Warn("AI analysis failed, allowing command", attrs...)
}

func (c *Checker) record(command string, d decision.Decision, suspicious []string, aiErr error, elapsed time.Duration) {
	if c.audit == nil || d.Source == decision.SourceEmpty {
		return
	}
	cwd, _ := os.Getwd()
	event := logger.AuditEvent{
		Command:     command,
		Cwd:         cwd,
		Origin:      c.origin,
		Decision:    string(d.Kind),
		Source:      string(d.Source),
		RuleID:      d.RuleID,
		Replacement: d.Replacement,
		Message:     d.Reason,
		Reason:      d.Note,
		Fallback:    d.Fallback,
		Suspicious:  suspicious,
		DurationMS:  elapsed.Milliseconds(),
	}
	if aiErr != nil && guardian.KindOf(aiErr) != guardian.KindUnavailable {
		event.Error = aiErr.Error()
	}
	if err := c.audit.Log(event); err != nil {
		c.logger.Warn("audit log write failed", "error", err)
	}
}

// Rules returns the compiled rule set in evaluation order.
func (c *Checker) Rules() policy.RuleSet { return c.engine.Rules() }

// Packs describes the policy packs found at load time.
func (c *Checker) Packs() []policy.PackInfo { return c.packs }

// Provider names the AI backend, "none" when disabled.
func (c *Checker) Provider() string { return c.provider.Name() }

func (c *Checker) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}
