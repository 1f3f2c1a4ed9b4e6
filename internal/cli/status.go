package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/cache"
	"github.com/gzhole/cmdauditor/internal/checker"
	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/policy"
	"github.com/gzhole/cmdauditor/internal/shellhook"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cmdauditor status: shell hooks, rules, AI backend, audit log",
	RunE:  statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if cfg == nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  cmdauditor status")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()

	binPath, binErr := os.Executable()
	if binErr != nil {
		binPath = "unknown"
	}
	fmt.Printf("  Binary:    %s (%s)\n", binPath, Version)
	fmt.Printf("  Config:    %s\n", cfg.ConfigFile)
	if cfg.Bypass {
		fmt.Printf("  ⚠  %s=1: all checks are bypassed\n", config.EnvBypass)
	}
	fmt.Println()

	fmt.Println("─── Shell Hooks ───────────────────────────────────────")
	if inst, err := newInstaller(); err == nil {
		for _, sh := range []shellhook.Shell{shellhook.Bash, shellhook.Zsh} {
			st := inst.Status(sh)
			switch {
			case st.ScriptExists && st.LinePresent:
				fmt.Printf("  ✅ %-5s enabled (%s)\n", sh, st.RCFile)
			case st.ScriptExists:
				fmt.Printf("  ⚠  %-5s script installed but not sourced from %s\n", sh, st.RCFile)
			default:
				fmt.Printf("  ❌ %-5s not installed (run: cmdauditor setup %s)\n", sh, sh)
			}
		}
	}
	fmt.Println()

	fmt.Println("─── Rules ─────────────────────────────────────────────")
	for _, path := range cfg.Rules.Files {
		checkRulesFile(path)
	}
	checkPipeline(cfg)
	fmt.Println()

	fmt.Println("─── AI Fallback ───────────────────────────────────────")
	switch {
	case !cfg.AI.Enabled:
		fmt.Println("  ⚠  Disabled (ai.enabled: false)")
	case errors.Is(err, config.ErrMissingCredential):
		fmt.Printf("  ❌ %s is not set; commands are not checked until it is, or ai.enabled is false\n", cfg.AI.APIKeyEnv)
	default:
		fmt.Printf("  ✅ %s at %s\n", cfg.AI.Model, cfg.AI.BaseURL)
	}
	if cfg.Cache.Enabled {
		checkCache(cmd.Context(), cfg.Cache.Path, cfg.Cache.TTL)
	}
	fmt.Println()

	fmt.Println("─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(cfg.Logging.AuditLog)
	fmt.Println()
	return nil
}

func checkRulesFile(path string) {
	rules, err := policy.Load(path)
	switch {
	case err != nil:
		fmt.Printf("  ❌ %s: %v\n", path, err)
	case rules == nil:
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Printf("  ⚠  %s not found\n", path)
			return
		}
		fmt.Printf("  ⚠  %s has no rules\n", path)
	default:
		fmt.Printf("  ✅ %s (%d rules)\n", path, len(rules))
	}
}

func checkAuditLog(path string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("  ⚠  No audit log yet (%s)\n", path)
		return
	}
	sizeKB := float64(info.Size()) / 1024
	fmt.Printf("  ✅ %s (%.1f KB)\n", path, sizeKB)
}

// checkPipeline loads every rule source the way a check would, with the
// AI left out so status works without a credential.
func checkPipeline(cfg *config.Config) {
	rulesOnly := *cfg
	rulesOnly.AI.Enabled = false
	rulesOnly.Cache.Enabled = false

	c, err := checker.New(&rulesOnly, checker.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		fmt.Printf("  ❌ Rules do not load: %v\n", err)
		return
	}
	defer c.Close()

	guards := 0
	for _, r := range c.Rules() {
		if strings.HasPrefix(r.ID, "guard-") {
			guards++
		}
	}
	enabled := 0
	for _, info := range c.Packs() {
		if info.Enabled {
			enabled++
		}
	}
	fmt.Printf("  ✅ %d rules loaded, %d of them built-in guards\n", len(c.Rules()), guards)
	if len(c.Packs()) > 0 {
		fmt.Printf("  ✅ Packs: %d installed, %d enabled\n", len(c.Packs()), enabled)
	}
	if n := len(cfg.Security.BlockedPatterns); n > 0 {
		fmt.Printf("  ✅ Blocked patterns: %d\n", n)
	}
}

func checkCache(ctx context.Context, path string, ttl time.Duration) {
	store, err := cache.Open(path, ttl)
	if err != nil {
		fmt.Printf("  ❌ Cache: %v\n", err)
		return
	}
	defer store.Close()
	n, err := store.Len(ctx)
	if err != nil {
		fmt.Printf("  ❌ Cache: %v\n", err)
		return
	}
	fmt.Printf("  ✅ Cache: %s (%d verdicts, ttl %s)\n", path, n, ttl)
}
