package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/you/go-flightshark/internal/config"
)

const defaultHTTPTimeout = 30 * time.Second

// Base carries what every backend shares: identity, health state, the local
// rate limiter and an HTTP client.
type Base struct {
	*Health
	name     string
	priority int
	limits   RateLimits
	limiter  *rate.Limiter
	client   *http.Client
}

func newBase(name string, priority int, limits RateLimits, cfg *config.Config) Base {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return Base{
		Health: NewHealth(Thresholds{
			DegradedAfter:    cfg.HealthDegradedAfter,
			UnavailableAfter: cfg.HealthUnavailableAfter,
		}),
		name:     name,
		priority: priority,
		limits:   limits,
		limiter:  NewLimiter(limits),
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *Base) Name() string       { return b.name }
func (b *Base) Priority() int      { return b.priority }
func (b *Base) Limits() RateLimits { return b.limits }

// PriceCalendar is the default for backends without a calendar endpoint.
func (b *Base) PriceCalendar(context.Context, string, string, int, time.Month) ([]PricePoint, error) {
	return nil, nil
}

func (b *Base) fail(message string, err error) error {
	return NewProviderError(b.name, message, err)
}

// send waits for a rate-limit token and performs req. Non-2xx answers are
// returned as ErrUnexpectedStatus with the start of the body.
func (b *Base) send(req *http.Request) (*http.Response, error) {
	if err := Wait(req.Context(), b.limiter); err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// do sends req and decodes a JSON body into out. A nil out discards the body.
func (b *Base) do(req *http.Request, out any) error {
	resp, err := b.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// keep drops offers breaking an invariant and normalizes the rest.
func (b *Base) keep(offers []FlightOffer) []FlightOffer {
	out := make([]FlightOffer, 0, len(offers))
	for _, o := range offers {
		o.Source = b.name
		o.Normalize()
		if err := o.Validate(); err != nil {
			slog.Debug("dropping offer", "provider", b.name, "offer", o.ID, "err", err)
			continue
		}
		out = append(out, o)
	}
	return out
}
