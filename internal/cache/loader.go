package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSkipStore is returned by a load function whose value is good to serve
// but must not be cached, such as a search cut short by its deadline.
var ErrSkipStore = errors.New("cache: skip store")

const defaultLoadTimeout = 30 * time.Second

// Loader reads JSON values through a Cache and coalesces concurrent misses
// for the same key into one load.
type Loader struct {
	cache   Cache
	group   singleflight.Group
	timeout time.Duration
}

// NewLoader bounds every shared load by loadTimeout, or 30s when it is not
// positive.
func NewLoader(c Cache, loadTimeout time.Duration) *Loader {
	if c == nil {
		c = NewNoOpCache()
	}
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	return &Loader{cache: c, timeout: loadTimeout}
}

// Fetch fills out from the cache, or from load on a miss and stores the
// result for ttl. hit reports whether the value came from the cache.
// Cache errors are logged and treated as a miss.
//
// The load runs detached from any single caller so that one caller going
// away does not fail the others waiting on the same key; each caller still
// stops waiting when its own ctx is done.
func Fetch[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, load func(context.Context) (T, error)) (out T, hit bool, err error) {
	if data, err := l.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(data, &out); err == nil {
			return out, true, nil
		}
		slog.Warn("discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, ErrMiss) {
		slog.Warn("cache read failed", "key", key, "err", err)
	}

	ch := l.group.DoChan(key, func() (v any, err error) {
		// DoChan re-panics on a fresh goroutine where nothing can recover.
		defer func() {
			if r := recover(); r != nil {
				v, err = nil, fmt.Errorf("cache load %s panicked: %v", key, r)
			}
		}()
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		val, lerr := load(lctx)
		if errors.Is(lerr, ErrSkipStore) {
			return val, nil
		}
		if lerr != nil {
			return val, lerr
		}
		if lctx.Err() != nil {
			return val, nil
		}
		data, merr := json.Marshal(val)
		if merr != nil {
			slog.Warn("cache encode failed", "key", key, "err", merr)
			return val, nil
		}
		if err := l.cache.Set(lctx, key, data, ttl); err != nil {
			slog.Warn("cache write failed", "key", key, "err", err)
		}
		return val, nil
	})

	select {
	case <-ctx.Done():
		return out, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return out, false, r.Err
		}
		return r.Val.(T), false, nil
	}
}
