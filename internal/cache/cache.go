// Package cache stores search results for the HTTP layer. The aggregator
// itself never caches.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (NoOpCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrMiss
}

func (NoOpCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoOpCache) Close() error {
	return nil
}

// SearchKey identifies one flight search. An empty ret means one-way.
func SearchKey(origin, destination, dep, ret string, passengers int, cabin string, direct bool, strategy string) string {
	if ret == "" {
		ret = "oneway"
	}
	return strings.Join([]string{
		"flights", origin, destination, dep, ret,
		strconv.Itoa(passengers), cabin, strconv.FormatBool(direct), strategy,
	}, ":")
}

func CalendarKey(origin, destination string, year, month int) string {
	return fmt.Sprintf("cheapest:%s:%s:%04d-%02d", origin, destination, year, month)
}
