package aggregator

import (
	"sync"
	"time"

	"github.com/you/go-flightshark/internal/providers"
)

// ProviderStats is the operator view of one provider.
type ProviderStats struct {
	Name                string           `json:"name"`
	Priority            int              `json:"priority"`
	Status              providers.Status `json:"status"`
	IsConfigured        bool             `json:"is_configured"`
	IsAvailable         bool             `json:"is_available"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	TotalSearches       int              `json:"total_searches"`
	SuccessfulSearches  int              `json:"successful_searches"`
	TotalResults        int              `json:"total_results"`
	AvgResponseTimeMs   float64          `json:"avg_response_time_ms"`
	SuccessRate         float64          `json:"success_rate"`
}

type counters struct {
	mu         sync.Mutex
	total      int
	successful int
	results    int
	avgMs      float64
}

func (c *counters) success(results int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.successful++
	c.results += results
	ms := float64(elapsed) / float64(time.Millisecond)
	c.avgMs += (ms - c.avgMs) / float64(c.successful)
}

func (c *counters) failure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
}

func (c *counters) snapshot(into *ProviderStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	into.TotalSearches = c.total
	into.SuccessfulSearches = c.successful
	into.TotalResults = c.results
	into.AvgResponseTimeMs = c.avgMs
	if c.total > 0 {
		into.SuccessRate = float64(c.successful) / float64(c.total) * 100
	}
}

// statsRegistry creates counters lazily, one record per provider name.
type statsRegistry struct {
	mu   sync.RWMutex
	byID map[string]*counters
}

func newStatsRegistry() *statsRegistry {
	return &statsRegistry{byID: make(map[string]*counters)}
}

func (r *statsRegistry) get(name string) *counters {
	r.mu.RLock()
	c, ok := r.byID[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.byID[name]; ok {
		return c
	}
	c = &counters{}
	r.byID[name] = c
	return c
}
