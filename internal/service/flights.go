package service

import (
	"context"
	"strings"
	"time"

	"github.com/you/go-flightshark/internal/aggregator"
	"github.com/you/go-flightshark/internal/providers"
)

const maxPassengers = 9

type SearchRequest struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
	ReturnDate    *time.Time
	Passengers    int
	CabinClass    string
	DirectOnly    bool
	Strategy      string
}

type Options struct {
	// SearchTimeout bounds a whole search, including every provider call.
	SearchTimeout   time.Duration
	DefaultStrategy aggregator.Strategy
}

// FlightService is the entry point used by transports. It normalizes and
// validates input, then hands the work to the aggregator.
type FlightService struct {
	manager *aggregator.Manager
	opts    Options
}

func New(manager *aggregator.Manager, opts Options) *FlightService {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = aggregator.Fallback
	}
	return &FlightService{manager: manager, opts: opts}
}

func (s *FlightService) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.SearchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.SearchTimeout)
}

// ResolveStrategy returns the strategy a request naming s would run with.
func (s *FlightService) ResolveStrategy(name string) aggregator.Strategy {
	if strings.TrimSpace(name) == "" {
		return s.opts.DefaultStrategy
	}
	return aggregator.ParseStrategy(name)
}

// SearchResult is a search outcome. Complete is false when the deadline cut
// the search short or every provider asked failed; such results are fine to
// show but not to cache.
type SearchResult struct {
	Offers   []providers.FlightOffer
	Complete bool
}

// Search runs a one-way or round-trip search. It fails with the context error
// only when the context ended before any offer was found.
func (s *FlightService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	req.Origin = normalizeCode(req.Origin)
	req.Destination = normalizeCode(req.Destination)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	res := s.manager.Search(ctx, providers.SearchRequest{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
		ReturnDate:    req.ReturnDate,
		Passengers:    req.Passengers,
		CabinClass:    providers.ParseCabinClass(req.CabinClass),
	}, s.ResolveStrategy(req.Strategy))

	if len(res.Offers) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	offers := res.Offers
	if req.DirectOnly {
		offers = directOnly(offers)
	}
	return &SearchResult{
		Offers:   orEmpty(offers),
		Complete: ctx.Err() == nil && !res.Failed(),
	}, nil
}

func (s *FlightService) SearchFlights(ctx context.Context, req SearchRequest) ([]providers.FlightOffer, error) {
	res, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Offers, nil
}

func directOnly(offers []providers.FlightOffer) []providers.FlightOffer {
	out := make([]providers.FlightOffer, 0, len(offers))
	for _, o := range offers {
		if o.IsDirect {
			out = append(out, o)
		}
	}
	return out
}

func (s *FlightService) SearchMultiCity(ctx context.Context, legs []providers.Leg, passengers int) ([]providers.FlightOffer, error) {
	if len(legs) < 2 {
		return nil, ErrTooFewLegs
	}
	normalized := make([]providers.Leg, len(legs))
	for i, l := range legs {
		l.From, l.To = normalizeCode(l.From), normalizeCode(l.To)
		if !isIATA(l.From) || !isIATA(l.To) {
			return nil, ErrInvalidLeg
		}
		if l.Date.IsZero() {
			return nil, ErrMissingDepartureDate
		}
		normalized[i] = l
	}
	if err := validPassengers(passengers); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return orEmpty(s.manager.SearchMultiCity(ctx, normalized, passengers)), nil
}

func (s *FlightService) SearchFlexibleDates(ctx context.Context, req providers.FlexibleRequest) ([]providers.FlightOffer, error) {
	req.Origin, req.Destination = normalizeCode(req.Origin), normalizeCode(req.Destination)
	if !isIATA(req.Origin) {
		return nil, ErrInvalidOrigin
	}
	if !isIATA(req.Destination) {
		return nil, ErrInvalidDestination
	}
	if req.DateFrom.IsZero() || req.DateTo.IsZero() || req.DateTo.Before(req.DateFrom) {
		return nil, ErrInvalidDateRange
	}
	if req.Passengers == 0 {
		req.Passengers = 1
	}
	if err := validPassengers(req.Passengers); err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	return orEmpty(s.manager.SearchFlexibleDates(ctx, req)), nil
}

// CheapestDates returns the per-day price calendar of the first provider that
// has one for the month.
func (s *FlightService) CheapestDates(ctx context.Context, origin, destination string, year, month int) ([]providers.PricePoint, error) {
	origin, destination = normalizeCode(origin), normalizeCode(destination)
	if !isIATA(origin) {
		return nil, ErrInvalidOrigin
	}
	if !isIATA(destination) {
		return nil, ErrInvalidDestination
	}
	if month < 1 || month > 12 || year < 1 {
		return nil, ErrInvalidMonth
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()
	points := s.manager.PriceCalendar(ctx, origin, destination, year, time.Month(month))
	if points == nil {
		points = []providers.PricePoint{}
	}
	return points, nil
}

// Status is the operator snapshot of the provider pool.
type Status struct {
	Providers          map[string]aggregator.ProviderStats `json:"providers"`
	Health             map[string]bool                     `json:"health"`
	AvailableProviders []string                            `json:"available_providers"`
}

func (s *FlightService) ProviderStatus(ctx context.Context) Status {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	st := Status{
		Providers:          s.manager.Stats(),
		Health:             s.manager.HealthCheck(ctx),
		AvailableProviders: []string{},
	}
	for _, p := range s.manager.Available() {
		st.AvailableProviders = append(st.AvailableProviders, p.Name())
	}
	return st
}

func (s *FlightService) ResetProvider(name string) error {
	return s.manager.Reset(strings.ToLower(strings.TrimSpace(name)))
}

func orEmpty(offers []providers.FlightOffer) []providers.FlightOffer {
	if offers == nil {
		return []providers.FlightOffer{}
	}
	return offers
}
