package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gzhole/cmdauditor/internal/logger"
)

const (
	DefaultConfigDir  = ".cmdauditor"
	DefaultConfigFile = "config.yaml"
	DefaultRulesFile  = "rules.yaml"
	DefaultPacksDir   = "packs"
	DefaultAIRules    = "ai_rules.md"
	DefaultCacheFile  = "cache.db"
	DefaultLogFile    = "audit.jsonl"
)

// Environment overrides.
const (
	EnvConfig   = "CMDAUDITOR_CONFIG"
	EnvRules    = "CMDAUDITOR_RULES"
	EnvPrompt   = "CMDAUDITOR_PROMPT"
	EnvModel    = "CMDAUDITOR_MODEL"
	EnvLogLevel = "CMDAUDITOR_LOG_LEVEL"
	EnvBypass   = "CMDAUDITOR_BYPASS"
)

// ErrMissingCredential is returned by Load when the AI fallback is
// enabled but its API key variable is unset.
var ErrMissingCredential = errors.New("AI credential not set")

type Config struct {
	Rules    RulesConfig    `yaml:"rules"`
	AI       AIConfig       `yaml:"ai"`
	Cache    CacheConfig    `yaml:"cache"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`

	ConfigDir  string `yaml:"-"`
	ConfigFile string `yaml:"-"`
	// Bypass disables every check for this process.
	Bypass bool `yaml:"-"`
	// APIKey is read from the AI.APIKeyEnv variable, never from the file.
	APIKey string `yaml:"-"`
}

type RulesConfig struct {
	// Files are concatenated in order; a missing file contributes nothing.
	Files    []string `yaml:"files"`
	PacksDir string   `yaml:"packs_dir"`
}

type AIConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxTokens  int           `yaml:"max_tokens"`
	RulesFile  string        `yaml:"rules_file"`
	// PromptFile empty means the embedded template.
	PromptFile string `yaml:"prompt_file"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	TTL     time.Duration `yaml:"ttl"`
}

type SecurityConfig struct {
	MaxCommandLength int      `yaml:"max_command_length"`
	AllowInvisible   bool     `yaml:"allow_invisible"`
	BuiltinGuards    bool     `yaml:"builtin_guards"`
	BlockedPatterns  []string `yaml:"blocked_patterns"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	AuditLog string `yaml:"audit_log"`
}

// Defaults returns the configuration used when no file is present.
// Paths are relative to the config directory until Load resolves them.
func Defaults() *Config {
	return &Config{
		Rules: RulesConfig{
			Files:    []string{DefaultRulesFile},
			PacksDir: DefaultPacksDir,
		},
		AI: AIConfig{
			Enabled:    true,
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o",
			APIKeyEnv:  "OPENAI_API_KEY",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			MaxTokens:  500,
			RulesFile:  DefaultAIRules,
		},
		Cache: CacheConfig{
			Path: DefaultCacheFile,
			TTL:  24 * time.Hour,
		},
		Security: SecurityConfig{
			MaxCommandLength: 1000,
			BuiltinGuards:    true,
		},
		Logging: LoggingConfig{
			Level:    "warn",
			AuditLog: DefaultLogFile,
		},
	}
}

// Load reads the config file at path, or $CMDAUDITOR_CONFIG, or
// ~/.cmdauditor/config.yaml, onto Defaults and applies environment
// overrides. Only the default file may be absent.
//
// When the credential is missing the resolved config is still returned
// together with an error wrapping ErrMissingCredential.
func Load(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	cfg.ConfigDir = filepath.Join(homeDir, DefaultConfigDir)

	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		explicit = false
		if err := ensureDir(cfg.ConfigDir); err != nil {
			return nil, err
		}
		path = filepath.Join(cfg.ConfigDir, DefaultConfigFile)
	}
	cfg.ConfigFile = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	cfg.resolvePaths(homeDir)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if cfg.AI.Enabled && !cfg.Bypass {
		cfg.APIKey = strings.TrimSpace(os.Getenv(cfg.AI.APIKeyEnv))
		if cfg.APIKey == "" {
			return cfg, fmt.Errorf("%w: set %s or disable ai.enabled", ErrMissingCredential, cfg.AI.APIKeyEnv)
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRules); v != "" {
		c.Rules.Files = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvPrompt); v != "" {
		c.AI.PromptFile = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	c.Bypass = os.Getenv(EnvBypass) == "1"
}

func (c *Config) resolvePaths(homeDir string) {
	for i, f := range c.Rules.Files {
		c.Rules.Files[i] = c.resolve(homeDir, f)
	}
	c.Rules.PacksDir = c.resolve(homeDir, c.Rules.PacksDir)
	c.AI.RulesFile = c.resolve(homeDir, c.AI.RulesFile)
	c.AI.PromptFile = c.resolve(homeDir, c.AI.PromptFile)
	c.Cache.Path = c.resolve(homeDir, c.Cache.Path)
	c.Logging.AuditLog = c.resolve(homeDir, c.Logging.AuditLog)
}

// resolve expands a leading ~/ and anchors relative paths in the config
// directory. Empty stays empty.
func (c *Config) resolve(homeDir, p string) string {
	switch {
	case p == "":
		return ""
	case p == "~":
		return homeDir
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(homeDir, p[2:])
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(c.ConfigDir, p)
	}
}

// Validate checks value ranges. It does not touch the filesystem.
func Validate(c *Config) error {
	if c.Security.MaxCommandLength < 1 || c.Security.MaxCommandLength > 1<<20 {
		return fmt.Errorf("security.max_command_length must be between 1 and %d, got %d", 1<<20, c.Security.MaxCommandLength)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if !c.AI.Enabled {
		return nil
	}

	u, err := url.Parse(c.AI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ai.base_url must be an http(s) URL, got %q", c.AI.BaseURL)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model must be set")
	}
	if c.AI.APIKeyEnv == "" {
		return fmt.Errorf("ai.api_key_env must be set")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive, got %s", c.AI.Timeout)
	}
	if c.AI.MaxRetries < 0 || c.AI.MaxRetries > 10 {
		return fmt.Errorf("ai.max_retries must be between 0 and 10, got %d", c.AI.MaxRetries)
	}
	if c.AI.RetryDelay < 0 {
		return fmt.Errorf("ai.retry_delay must not be negative")
	}
	if c.AI.MaxTokens < 1 {
		return fmt.Errorf("ai.max_tokens must be positive, got %d", c.AI.MaxTokens)
	}
	return nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
