package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/pkg/circuitbreaker"
)

type CircuitBreakerCache struct {
	cache Cache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerCache(cache Cache, cfg config.CircuitBreakerConfig) *CircuitBreakerCache {
	if !cfg.Enabled {
		return &CircuitBreakerCache{
			cache: cache,
			cb:    nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-dedupe")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (c *CircuitBreakerCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.execute(ctx, func() (interface{}, error) {
		return c.cache.Exists(ctx, key)
	})
}

func (c *CircuitBreakerCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.execute(ctx, func() (interface{}, error) {
		return c.cache.SetNX(ctx, key, value, ttl)
	})
}

func (c *CircuitBreakerCache) execute(ctx context.Context, fn func() (interface{}, error)) (bool, error) {
	var result interface{}
	var err error

	if c.cb == nil {
		result, err = fn()
	} else {
		result, err = c.cb.ExecuteWithContext(ctx, fn)
		c.cb.RecordRequest(err == nil)
		if err != nil && c.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for redis-dedupe: %w", err)
		}
	}
	if err != nil {
		return false, err
	}

	success, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("cache returned invalid result type")
	}
	return success, nil
}

func (c *CircuitBreakerCache) IsOpen() bool {
	if c.cb == nil {
		return false
	}
	return c.cb.IsOpen()
}
