package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/checker"
	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/logger"
)

var (
	configPath string
	logPath    string
)

var rootCmd = &cobra.Command{
	Use:   "cmdauditor",
	Short: "cmdauditor - rule and AI validation for shell commands",
	Long: `cmdauditor checks every command an interactive shell is about to run.
Deterministic regex rules are tried first; commands no rule matches are
sent to an AI model, which may pass, rewrite or reject them. If the AI is
unreachable or answers nonsense, the command is allowed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.cmdauditor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "Path to audit log file (default: ~/.cmdauditor/audit.jsonl)")
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the CLI with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig applies the --log override on top of config.Load. With a
// missing credential the config is still returned alongside the error,
// which status uses to report it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if cfg != nil && logPath != "" {
		cfg.Logging.AuditLog = logPath
	}
	return cfg, err
}

// session bundles what every checking command needs.
type session struct {
	cfg     *config.Config
	checker *checker.Checker
	audit   *logger.AuditLogger
	log     *slog.Logger
}

func openSession(origin string) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	log := logger.NewDiagnostic(os.Stderr, level)
	slog.SetDefault(log)

	s := &session{cfg: cfg, log: log}
	opts := checker.Options{Logger: log, Origin: origin}
	if audit, err := logger.New(cfg.Logging.AuditLog); err != nil {
		log.Warn("audit log unavailable", "path", cfg.Logging.AuditLog, "error", err)
	} else {
		s.audit = audit
		opts.Audit = audit
	}

	s.checker, err = checker.New(cfg, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.checker != nil {
		if err := s.checker.Close(); err != nil {
			s.log.Warn("closing checker", "error", err)
		}
	}
	if s.audit != nil {
		_ = s.audit.Close()
	}
}
