package llm

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spherical/slide-creator/internal/cache"
	"github.com/spherical/slide-creator/internal/domain"
	"github.com/spherical/slide-creator/internal/observability"
	"github.com/spherical/slide-creator/internal/validate"
)

const cacheNamespace = "completion"

// Forgetter drops a stored completion so the next identical request reaches
// the provider again.
type Forgetter interface {
	Forget(ctx context.Context, req domain.CompletionRequest) error
}

var _ Forgetter = (*CachedCompleter)(nil)

// CachedCompleter serves repeated completions from a cache. Only responses
// whose text parses as JSON are stored, so a malformed answer is never replayed.
// Callers evict answers that parse but fail validation with Forget.
type CachedCompleter struct {
	next   domain.TextCompleter
	cache  cache.Client
	parser validate.Parser
	ttl    time.Duration
	model  string
	logger *observability.Logger
}

// NewCachedCompleter wraps next. model is folded into the cache key.
func NewCachedCompleter(next domain.TextCompleter, c cache.Client, parser validate.Parser, ttl time.Duration, model string, logger *observability.Logger) *CachedCompleter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedCompleter{
		next:   next,
		cache:  c,
		parser: parser,
		ttl:    ttl,
		model:  model,
		logger: logger,
	}
}

// Complete returns a cached completion when one exists
func (c *CachedCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	key, err := c.key(req)
	if err != nil {
		return c.next.Complete(ctx, req)
	}

	if data, err := c.cache.Get(ctx, key); err == nil {
		var hit domain.Completion
		if err := json.Unmarshal(data, &hit); err == nil {
			c.logger.Debug().Str("key", key).Msg("Completion cache hit")
			return &hit, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Msg("Completion cache read failed")
	}

	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, _, perr := c.parser.Parse(resp.Text); perr != nil {
		return resp, nil
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("Completion cache write failed")
		}
	}
	return resp, nil
}

// Forget removes the cached completion for req
func (c *CachedCompleter) Forget(ctx context.Context, req domain.CompletionRequest) error {
	key, err := c.key(req)
	if err != nil {
		return err
	}
	return c.cache.Delete(ctx, key)
}

func (c *CachedCompleter) key(req domain.CompletionRequest) (string, error) {
	media := ""
	if req.Media != nil {
		data, err := os.ReadFile(req.Media.Path)
		if err != nil {
			return "", err
		}
		media = cache.Fingerprint(string(data))
	}
	jsonMode := "text"
	if req.JSONMode {
		jsonMode = "json"
	}
	return cache.CacheKey(cacheNamespace, cache.Fingerprint(c.model, jsonMode, req.SystemInstruction, req.UserInstruction, media)), nil
}
