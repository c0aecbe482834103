// Package aggregator fans flight searches out to the configured providers,
// tracks their health and merges what comes back.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/you/go-flightshark/internal/providers"
)

type Strategy string

const (
	Fallback  Strategy = "fallback"
	Parallel  Strategy = "parallel"
	BestPrice Strategy = "best_price"
)

// ParseStrategy maps unknown values to Fallback.
func ParseStrategy(s string) Strategy {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case Parallel, BestPrice:
		return st
	default:
		return Fallback
	}
}

const DefaultMaxProviders = 3

var ErrUnknownProvider = errors.New("unknown provider")

type Config struct {
	// MaxProviders caps how many available providers take part in a search.
	// Zero means DefaultMaxProviders, negative means no cap.
	MaxProviders int
}

// Attempt records one provider call made during a search.
type Attempt struct {
	Provider string
	Offers   int
	Elapsed  time.Duration
	Err      error
}

type Result struct {
	Strategy Strategy
	Offers   []providers.FlightOffer
	Attempts []Attempt
}

// Failed reports whether providers were asked and every one of them failed.
func (r *Result) Failed() bool {
	if len(r.Attempts) == 0 {
		return false
	}
	for _, a := range r.Attempts {
		if a.Err == nil {
			return false
		}
	}
	return true
}

type Manager struct {
	providers    []providers.FlightProvider
	maxProviders int
	stats        *statsRegistry
}

func New(provs []providers.FlightProvider, cfg Config) *Manager {
	sorted := append([]providers.FlightProvider(nil), provs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	maxProviders := cfg.MaxProviders
	if maxProviders == 0 {
		maxProviders = DefaultMaxProviders
	}
	return &Manager{providers: sorted, maxProviders: maxProviders, stats: newStatsRegistry()}
}

// Providers returns every registered provider in priority order.
func (m *Manager) Providers() []providers.FlightProvider {
	return append([]providers.FlightProvider(nil), m.providers...)
}

func (m *Manager) Provider(name string) (providers.FlightProvider, bool) {
	for _, p := range m.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Available returns configured providers that are not unavailable, capped at
// MaxProviders, in priority order.
func (m *Manager) Available() []providers.FlightProvider {
	var out []providers.FlightProvider
	for _, p := range m.providers {
		if m.maxProviders > 0 && len(out) == m.maxProviders {
			break
		}
		if p.IsConfigured() && p.IsAvailable() {
			out = append(out, p)
		}
	}
	return out
}

// Search runs the strategy against the available providers. Provider failures
// never surface as an error; they show up in Result.Attempts.
func (m *Manager) Search(ctx context.Context, req providers.SearchRequest, strategy Strategy) *Result {
	res := &Result{Strategy: strategy}
	log := slog.With("search_id", uuid.NewString(), "strategy", string(strategy),
		"origin", req.Origin, "destination", req.Destination)

	avail := m.Available()
	if len(avail) == 0 {
		log.Warn("no flight providers available")
		return res
	}

	switch strategy {
	case Parallel, BestPrice:
		var all []providers.FlightOffer
		for _, r := range m.fanOut(ctx, log, avail, req) {
			res.Attempts = append(res.Attempts, r.Attempt)
			all = append(all, r.offers...)
		}
		if strategy == BestPrice {
			res.Offers = SortByPrice(DeduplicateCheapest(all))
		} else {
			res.Offers = SortByPrice(Deduplicate(all))
		}
	default:
		res.Strategy = Fallback
		res.Offers, res.Attempts = m.fallback(ctx, log, avail, req)
	}

	log.Info("search finished", "providers", len(res.Attempts), "offers", len(res.Offers))
	return res
}

func (m *Manager) fallback(ctx context.Context, log *slog.Logger, avail []providers.FlightProvider, req providers.SearchRequest) ([]providers.FlightOffer, []Attempt) {
	var attempts []Attempt
	for _, p := range avail {
		if ctx.Err() != nil {
			break
		}
		offers, a := m.call(ctx, log, p, func(ctx context.Context) ([]providers.FlightOffer, error) {
			return p.Search(ctx, req)
		})
		attempts = append(attempts, a)
		if a.Err == nil && len(offers) > 0 {
			return SortByPrice(offers), attempts
		}
		log.Info("falling back to next provider", "provider", p.Name(), "err", a.Err)
	}
	return nil, attempts
}

type attemptResult struct {
	Attempt
	offers []providers.FlightOffer
}

// fanOut queries every provider at once and keeps results in priority order.
func (m *Manager) fanOut(ctx context.Context, log *slog.Logger, avail []providers.FlightProvider, req providers.SearchRequest) []attemptResult {
	results := make([]attemptResult, len(avail))
	// A plain Group: one provider failing must not cancel the others.
	var g errgroup.Group
	for i, p := range avail {
		g.Go(func() error {
			offers, a := m.call(ctx, log, p, func(ctx context.Context) ([]providers.FlightOffer, error) {
				return p.Search(ctx, req)
			})
			results[i] = attemptResult{Attempt: a, offers: offers}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// call times one provider call and records its outcome.
func (m *Manager) call(ctx context.Context, log *slog.Logger, p providers.FlightProvider,
	fn func(context.Context) ([]providers.FlightOffer, error)) (offers []providers.FlightOffer, a Attempt) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			offers = nil
			a.Err = fmt.Errorf("%s: panic: %v", p.Name(), r)
		}
		a.Provider = p.Name()
		a.Elapsed = time.Since(start)
		a.Offers = len(offers)
		m.record(log, p, a)
	}()
	offers, a.Err = fn(ctx)
	if a.Err != nil {
		offers = nil
	}
	return offers, a
}

func (m *Manager) record(log *slog.Logger, p providers.FlightProvider, a Attempt) {
	c := m.stats.get(p.Name())
	if a.Err == nil {
		c.success(a.Offers, a.Elapsed)
		p.RecordSuccess()
		log.Debug("provider answered", "provider", p.Name(), "offers", a.Offers, "elapsed", a.Elapsed)
		return
	}

	c.failure()
	if errors.Is(a.Err, context.Canceled) {
		log.Debug("provider call cancelled", "provider", p.Name())
		return
	}
	switch status := p.RecordFailure(a.Err); status {
	case providers.StatusUnavailable:
		log.Error("provider marked unavailable", "provider", p.Name(),
			"consecutive_failures", p.ConsecutiveFailures(), "err", a.Err)
	case providers.StatusDegraded:
		log.Warn("provider degraded", "provider", p.Name(),
			"consecutive_failures", p.ConsecutiveFailures(), "err", a.Err)
	default:
		log.Warn("provider search failed", "provider", p.Name(), "err", a.Err)
	}
}

// Stats returns the counters and health of every registered provider.
func (m *Manager) Stats() map[string]ProviderStats {
	out := make(map[string]ProviderStats, len(m.providers))
	for _, p := range m.providers {
		s := ProviderStats{
			Name:                p.Name(),
			Priority:            p.Priority(),
			Status:              p.Status(),
			IsConfigured:        p.IsConfigured(),
			IsAvailable:         p.IsAvailable(),
			ConsecutiveFailures: p.ConsecutiveFailures(),
		}
		m.stats.get(p.Name()).snapshot(&s)
		out[p.Name()] = s
	}
	return out
}

// PriceCalendar asks configured, available providers in priority order and
// returns the first non-empty calendar. MaxProviders does not apply.
func (m *Manager) PriceCalendar(ctx context.Context, origin, destination string, year int, month time.Month) []providers.PricePoint {
	for _, p := range m.providers {
		if !p.IsConfigured() || !p.IsAvailable() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		points, err := p.PriceCalendar(ctx, origin, destination, year, month)
		if err != nil {
			slog.Warn("price calendar failed", "provider", p.Name(), "err", err)
			continue
		}
		if len(points) > 0 {
			return points
		}
	}
	return nil
}

// HealthCheck checks every registered provider concurrently.
func (m *Manager) HealthCheck(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(m.providers))
	var mu sync.Mutex
	var g errgroup.Group
	for _, p := range m.providers {
		g.Go(func() error {
			ok := healthy(ctx, p)
			mu.Lock()
			out[p.Name()] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func healthy(ctx context.Context, p providers.FlightProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("health check panicked", "provider", p.Name(), "panic", r)
			ok = false
		}
	}()
	if err := p.HealthCheck(ctx); err != nil {
		slog.Info("health check failed", "provider", p.Name(), "err", err)
		return false
	}
	return true
}

// Reset returns the named provider to healthy.
func (m *Manager) Reset(name string) error {
	p, ok := m.Provider(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p.Reset()
	slog.Info("provider reset", "provider", name)
	return nil
}

// SearchMultiCity goes to the highest-priority provider able to price
// multi-city itineraries. There is no fallback to providers without it.
func (m *Manager) SearchMultiCity(ctx context.Context, legs []providers.Leg, passengers int) []providers.FlightOffer {
	for _, p := range m.providers {
		mc, ok := p.(providers.MultiCitySearcher)
		if !ok {
			continue
		}
		return m.capability(ctx, p, "multi_city", func(ctx context.Context) ([]providers.FlightOffer, error) {
			return mc.SearchMultiCity(ctx, legs, passengers)
		})
	}
	slog.Warn("no provider supports multi-city search")
	return nil
}

// SearchFlexibleDates goes to the highest-priority provider able to search a
// date window.
func (m *Manager) SearchFlexibleDates(ctx context.Context, req providers.FlexibleRequest) []providers.FlightOffer {
	for _, p := range m.providers {
		fd, ok := p.(providers.FlexibleDateSearcher)
		if !ok {
			continue
		}
		return m.capability(ctx, p, "flexible_dates", func(ctx context.Context) ([]providers.FlightOffer, error) {
			return fd.SearchFlexibleDates(ctx, req)
		})
	}
	slog.Warn("no provider supports flexible-date search")
	return nil
}

func (m *Manager) capability(ctx context.Context, p providers.FlightProvider, kind string,
	fn func(context.Context) ([]providers.FlightOffer, error)) []providers.FlightOffer {
	log := slog.With("search_id", uuid.NewString(), "kind", kind)
	if !p.IsConfigured() || !p.IsAvailable() {
		log.Warn("capable provider not usable", "provider", p.Name(),
			"configured", p.IsConfigured(), "status", p.Status())
		return nil
	}
	offers, a := m.call(ctx, log, p, fn)
	if a.Err != nil {
		return nil
	}
	return SortByPrice(offers)
}
