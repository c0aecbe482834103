package providers

import "sync"

type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

const (
	DefaultDegradedAfter    = 3
	DefaultUnavailableAfter = 10
)

// Thresholds configure after how many consecutive failures a provider is
// demoted.
type Thresholds struct {
	DegradedAfter    int
	UnavailableAfter int
}

func (t Thresholds) withDefaults() Thresholds {
	if t.DegradedAfter <= 0 {
		t.DegradedAfter = DefaultDegradedAfter
	}
	if t.UnavailableAfter <= 0 {
		t.UnavailableAfter = DefaultUnavailableAfter
	}
	if t.UnavailableAfter < t.DegradedAfter {
		t.UnavailableAfter = t.DegradedAfter
	}
	return t
}

// Health is the per-provider circuit state. There is no time-based recovery:
// only a success or an explicit Reset brings a provider back.
type Health struct {
	mu         sync.Mutex
	thresholds Thresholds
	status     Status
	failures   int
	lastErr    error
}

func NewHealth(t Thresholds) *Health {
	return &Health{thresholds: t.withDefaults(), status: StatusHealthy}
}

func (h *Health) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Health) IsAvailable() bool {
	return h.Status() != StatusUnavailable
}

func (h *Health) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// LastError is the error passed to the most recent RecordFailure, cleared on success.
func (h *Health) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = nil
	h.status = StatusHealthy
}

// RecordFailure counts a failure and returns the resulting status.
func (h *Health) RecordFailure(err error) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err
	switch {
	case h.failures >= h.thresholds.UnavailableAfter:
		h.status = StatusUnavailable
	case h.failures >= h.thresholds.DegradedAfter:
		h.status = StatusDegraded
	}
	return h.status
}

func (h *Health) Reset() {
	h.RecordSuccess()
}
