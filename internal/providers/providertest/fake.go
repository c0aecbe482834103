// Package providertest offers a scriptable in-memory FlightProvider.
package providertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/you/go-flightshark/internal/providers"
)

type Fake struct {
	*providers.Health
	name     string
	priority int

	Configured  bool
	Offers      []providers.FlightOffer
	Err         error
	Delay       time.Duration
	Calendar    []providers.PricePoint
	CalendarErr error
	HealthErr   error
	HealthPanic bool

	calls         atomic.Int32
	calendarCalls atomic.Int32

	mu   sync.Mutex
	last providers.SearchRequest
}

func New(name string, priority int) *Fake {
	return &Fake{
		Health:     providers.NewHealth(providers.Thresholds{}),
		name:       name,
		priority:   priority,
		Configured: true,
	}
}

func (f *Fake) Name() string                 { return f.name }
func (f *Fake) Priority() int                { return f.priority }
func (f *Fake) Limits() providers.RateLimits { return providers.RateLimits{} }
func (f *Fake) IsConfigured() bool           { return f.Configured }

func (f *Fake) Calls() int         { return int(f.calls.Load()) }
func (f *Fake) CalendarCalls() int { return int(f.calendarCalls.Load()) }

func (f *Fake) LastRequest() providers.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *Fake) Search(ctx context.Context, req providers.SearchRequest) ([]providers.FlightOffer, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.respond(ctx, f.Offers, f.Err)
}

func (f *Fake) respond(ctx context.Context, offers []providers.FlightOffer, err error) ([]providers.FlightOffer, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]providers.FlightOffer(nil), offers...), nil
}

func (f *Fake) PriceCalendar(context.Context, string, string, int, time.Month) ([]providers.PricePoint, error) {
	f.calendarCalls.Add(1)
	if f.CalendarErr != nil {
		return nil, f.CalendarErr
	}
	return f.Calendar, nil
}

func (f *Fake) HealthCheck(context.Context) error {
	if f.HealthPanic {
		panic("health check exploded")
	}
	return f.HealthErr
}

// Capable is a Fake that also supports multi-city and flexible-date searches.
type Capable struct {
	*Fake
	MultiCityOffers []providers.FlightOffer
	FlexibleOffers  []providers.FlightOffer
	CapabilityErr   error

	capabilityCalls atomic.Int32
}

func NewCapable(name string, priority int) *Capable {
	return &Capable{Fake: New(name, priority)}
}

func (c *Capable) CapabilityCalls() int { return int(c.capabilityCalls.Load()) }

func (c *Capable) SearchMultiCity(ctx context.Context, _ []providers.Leg, _ int) ([]providers.FlightOffer, error) {
	c.capabilityCalls.Add(1)
	return c.respond(ctx, c.MultiCityOffers, c.CapabilityErr)
}

func (c *Capable) SearchFlexibleDates(ctx context.Context, _ providers.FlexibleRequest) ([]providers.FlightOffer, error) {
	c.capabilityCalls.Add(1)
	return c.respond(ctx, c.FlexibleOffers, c.CapabilityErr)
}

// Offer builds a normalized single-segment offer.
func Offer(source, airline, flight string, dep time.Time, price float64) providers.FlightOffer {
	seg := providers.NewSegment("DUB", "BCN", dep, dep.Add(150*time.Minute), airline, flight)
	o := providers.FlightOffer{
		Price:            price,
		Currency:         "EUR",
		Airline:          airline,
		OutboundSegments: []providers.FlightSegment{seg},
		Source:           source,
	}
	o.Normalize()
	return o
}

// Connecting builds a normalized offer with one stop in LHR.
func Connecting(source, airline string, dep time.Time, price float64) providers.FlightOffer {
	first := providers.NewSegment("DUB", "LHR", dep, dep.Add(80*time.Minute), airline, airline+"100")
	second := providers.NewSegment("LHR", "BCN", dep.Add(3*time.Hour), dep.Add(5*time.Hour), airline, airline+"200")
	o := providers.FlightOffer{
		Price:            price,
		Currency:         "EUR",
		Airline:          airline,
		OutboundSegments: []providers.FlightSegment{first, second},
		Source:           source,
	}
	o.Normalize()
	return o
}

var (
	_ providers.FlightProvider       = (*Fake)(nil)
	_ providers.MultiCitySearcher    = (*Capable)(nil)
	_ providers.FlexibleDateSearcher = (*Capable)(nil)
)
