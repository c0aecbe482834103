package providers

import (
	"context"
	"errors"
	"strings"
	"time"
)

type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

// ParseCabinClass maps free-form input to a cabin class, falling back to economy.
func ParseCabinClass(s string) CabinClass {
	switch c := CabinClass(strings.ToLower(strings.TrimSpace(s))); c {
	case CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return c
	default:
		return CabinEconomy
	}
}

// SearchRequest is what every backend receives. Airport codes are already
// upper-cased and validated by the caller.
type SearchRequest struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	ReturnDate    *time.Time
	Passengers    int
	CabinClass    CabinClass
}

// Leg is one hop of a multi-city itinerary.
type Leg struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Date time.Time `json:"date"`
}

type FlexibleRequest struct {
	Origin      string
	Destination string
	DateFrom    time.Time
	DateTo      time.Time
	NightsFrom  int
	NightsTo    int
	Passengers  int
}

// RateLimits are the quotas a backend is allowed to use.
type RateLimits struct {
	PerMinute int `json:"per_minute"`
	PerDay    int `json:"per_day"`
}

// FlightProvider is a single upstream flight search source together with its
// health bookkeeping. Search, PriceCalendar and HealthCheck must be safe for
// concurrent use.
type FlightProvider interface {
	Name() string
	Priority() int
	Limits() RateLimits
	IsConfigured() bool
	IsAvailable() bool
	Status() Status
	ConsecutiveFailures() int

	RecordSuccess()
	RecordFailure(err error) Status
	Reset()

	Search(ctx context.Context, req SearchRequest) ([]FlightOffer, error)
	PriceCalendar(ctx context.Context, origin, destination string, year int, month time.Month) ([]PricePoint, error)
	HealthCheck(ctx context.Context) error
}

// MultiCitySearcher is implemented by providers able to price open-jaw itineraries.
type MultiCitySearcher interface {
	SearchMultiCity(ctx context.Context, legs []Leg, passengers int) ([]FlightOffer, error)
}

// FlexibleDateSearcher is implemented by providers able to search a date window.
type FlexibleDateSearcher interface {
	SearchFlexibleDates(ctx context.Context, req FlexibleRequest) ([]FlightOffer, error)
}

var (
	ErrNotConfigured    = errors.New("provider credentials missing")
	ErrRateLimited      = errors.New("provider rate limit exceeded")
	ErrUnexpectedStatus = errors.New("unexpected upstream status")
)

// ProviderError wraps any failure coming out of a backend.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Provider + ": " + e.Message
	}
	if e.Message == "" {
		return e.Provider + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Err: err}
}

var (
	_ FlightProvider = (*Amadeus)(nil)
	_ FlightProvider = (*Skyscanner)(nil)
	_ FlightProvider = (*Kiwi)(nil)
	_ FlightProvider = (*Duffel)(nil)
)
