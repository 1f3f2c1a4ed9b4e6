package guardian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
)

// Cache is a string key/value store; internal/cache provides the
// sqlite implementation.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Caching serves repeated prompts from a Cache. Only parsed verdicts are
// stored, so failures are always retried on the next command.
type Caching struct {
	next   Provider
	cache  Cache
	scope  string
	logger *slog.Logger
}

// NewCaching wraps next. scope is mixed into every key, typically the
// model name, so switching models does not serve stale verdicts.
func NewCaching(next Provider, cache Cache, scope string, logger *slog.Logger) *Caching {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caching{next: next, cache: cache, scope: scope, logger: logger}
}

func (c *Caching) Name() string { return c.next.Name() + "+cache" }

func (c *Caching) Analyze(ctx context.Context, prompt string) (Response, error) {
	key := cacheKey(c.scope, prompt)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("ai cache read failed", "error", err)
	} else if ok {
		var resp Response
		if err := json.Unmarshal([]byte(raw), &resp); err == nil && resp.Action.Valid() {
			return resp, nil
		}
	}

	resp, err := c.next.Analyze(ctx, prompt)
	if err != nil {
		return resp, err
	}

	if raw, err := json.Marshal(resp); err == nil {
		if err := c.cache.Put(ctx, key, string(raw)); err != nil {
			c.logger.Warn("ai cache write failed", "error", err)
		}
	}
	return resp, nil
}

func cacheKey(scope, prompt string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
