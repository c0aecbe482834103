package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/you/go-flightshark/internal/config"
)

var amadeusCabins = map[CabinClass]string{
	CabinEconomy:        "ECONOMY",
	CabinPremiumEconomy: "PREMIUM_ECONOMY",
	CabinBusiness:       "BUSINESS",
	CabinFirst:          "FIRST",
}

// Amadeus is the primary GDS backend (Self-Service APIs).
type Amadeus struct {
	Base
	host         string
	authPath     string
	searchPath   string
	calendarPath string
	id           string
	secret       string

	mu      sync.Mutex
	tok     string
	expires time.Time
	refresh singleflight.Group
}

func NewAmadeus(cfg *config.Config) *Amadeus {
	return &Amadeus{
		Base:         newBase("amadeus", 1, RateLimits{PerMinute: 30, PerDay: 2000}, cfg),
		host:         strings.TrimRight(cfg.AmadeusURL, "/"),
		authPath:     "/v1/security/oauth2/token",
		searchPath:   "/v2/shopping/flight-offers",
		calendarPath: "/v1/shopping/flight-dates",
		id:           cfg.AmadeusClientID,
		secret:       cfg.AmadeusClientSecret,
	}
}

func (a *Amadeus) IsConfigured() bool { return a.id != "" && a.secret != "" }

// token returns the cached OAuth token, refreshing it a minute before expiry.
// Concurrent callers share one refresh and never hold the lock across it.
func (a *Amadeus) token(ctx context.Context) (string, error) {
	if tok, ok := a.cachedToken(); ok {
		return tok, nil
	}
	v, err, _ := a.refresh.Do("token", func() (any, error) {
		if tok, ok := a.cachedToken(); ok {
			return tok, nil
		}
		// Shared by every waiter, so one caller going away must not fail the rest.
		return a.fetchToken(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *Amadeus) cachedToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tok != "" && time.Now().Before(a.expires) {
		return a.tok, true
	}
	return "", false
}

func (a *Amadeus) fetchToken(ctx context.Context) (string, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", a.id)
	data.Set("client_secret", a.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+a.authPath, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := a.do(req, &tr); err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tok = tr.AccessToken
	a.expires = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return a.tok, nil
}

func (a *Amadeus) get(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.host+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return a.do(req, out)
}

type amadeusSegment struct {
	Departure struct {
		IataCode string `json:"iataCode"`
		At       string `json:"at"`
	} `json:"departure"`
	Arrival struct {
		IataCode string `json:"iataCode"`
		At       string `json:"at"`
	} `json:"arrival"`
	CarrierCode string `json:"carrierCode"`
	Number      string `json:"number"`
	Aircraft    struct {
		Code string `json:"code"`
	} `json:"aircraft"`
	Duration string `json:"duration"`
}

type amadeusOffer struct {
	ID    string `json:"id"`
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Itineraries []struct {
		Duration string           `json:"duration"`
		Segments []amadeusSegment `json:"segments"`
	} `json:"itineraries"`
	TravelerPricings []struct {
		FareDetailsBySegment []struct {
			Cabin string `json:"cabin"`
		} `json:"fareDetailsBySegment"`
	} `json:"travelerPricings"`
}

func (a *Amadeus) Search(ctx context.Context, req SearchRequest) ([]FlightOffer, error) {
	if !a.IsConfigured() {
		return nil, a.fail("search", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("originLocationCode", req.Origin)
	q.Set("destinationLocationCode", req.Destination)
	q.Set("departureDate", req.DepartureDate.Format(time.DateOnly))
	if req.ReturnDate != nil {
		q.Set("returnDate", req.ReturnDate.Format(time.DateOnly))
	}
	q.Set("adults", strconv.Itoa(max(req.Passengers, 1)))
	q.Set("travelClass", amadeusCabins[ParseCabinClass(string(req.CabinClass))])
	q.Set("currencyCode", "EUR")
	q.Set("max", "50")

	var payload struct {
		Data []amadeusOffer `json:"data"`
	}
	if err := a.get(ctx, a.searchPath, q, &payload); err != nil {
		return nil, a.fail("search", err)
	}

	out := make([]FlightOffer, 0, len(payload.Data))
	for _, d := range payload.Data {
		if len(d.Itineraries) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(d.Price.Total, 64)
		if err != nil {
			continue
		}
		outbound, err := amadeusSegments(d.Itineraries[0].Segments)
		if err != nil {
			slog.Debug("dropping offer", "provider", a.Name(), "offer", d.ID, "err", err)
			continue
		}
		o := FlightOffer{
			ID:               "amadeus-" + d.ID,
			Price:            price,
			Currency:         d.Price.Currency,
			CabinClass:       CabinEconomy,
			OutboundSegments: outbound,
		}
		o.TotalDurationMinutes = parseISODurationMinutes(d.Itineraries[0].Duration)
		if len(d.Itineraries) > 1 {
			if o.ReturnSegments, err = amadeusSegments(d.Itineraries[1].Segments); err != nil {
				slog.Debug("dropping offer", "provider", a.Name(), "offer", d.ID, "err", err)
				continue
			}
			o.TotalDurationMinutes += parseISODurationMinutes(d.Itineraries[1].Duration)
		}
		if len(d.TravelerPricings) > 0 && len(d.TravelerPricings[0].FareDetailsBySegment) > 0 {
			o.CabinClass = ParseCabinClass(d.TravelerPricings[0].FareDetailsBySegment[0].Cabin)
		}
		if o.Currency == "" {
			o.Currency = "EUR"
		}
		out = append(out, o)
	}
	return a.keep(out), nil
}

func amadeusSegments(in []amadeusSegment) ([]FlightSegment, error) {
	out := make([]FlightSegment, 0, len(in))
	for _, s := range in {
		dep, arr, err := parseNaivePair(s.Departure.At, s.Arrival.At)
		if err != nil {
			return nil, err
		}
		seg := NewLocalSegment(s.Departure.IataCode, s.Arrival.IataCode, dep, arr,
			s.CarrierCode, s.CarrierCode+s.Number, parseISODurationMinutes(s.Duration))
		if s.Aircraft.Code != "" {
			code := s.Aircraft.Code
			seg.Aircraft = &code
		}
		out = append(out, seg)
	}
	return out, nil
}

func (a *Amadeus) PriceCalendar(ctx context.Context, origin, destination string, year int, month time.Month) ([]PricePoint, error) {
	if !a.IsConfigured() {
		return nil, nil
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("departureDate", first.Format(time.DateOnly)+","+last.Format(time.DateOnly))
	q.Set("oneWay", "true")

	var payload struct {
		Data []struct {
			DepartureDate string `json:"departureDate"`
			Price         struct {
				Total string `json:"total"`
			} `json:"price"`
		} `json:"data"`
	}
	if err := a.get(ctx, a.calendarPath, q, &payload); err != nil {
		return nil, a.fail("price calendar", err)
	}
	out := make([]PricePoint, 0, len(payload.Data))
	for _, d := range payload.Data {
		price, err := strconv.ParseFloat(d.Price.Total, 64)
		if err != nil {
			continue
		}
		out = append(out, PricePoint{Date: d.DepartureDate, Price: price, Currency: "EUR"})
	}
	return out, nil
}

// HealthCheck obtains (or reuses) an access token.
func (a *Amadeus) HealthCheck(ctx context.Context) error {
	if !a.IsConfigured() {
		return a.fail("health", ErrNotConfigured)
	}
	if _, err := a.token(ctx); err != nil {
		return a.fail("health", err)
	}
	return nil
}

// parseISODurationMinutes handles the PT#H#M subset Amadeus and Duffel emit.
func parseISODurationMinutes(s string) int {
	s = strings.TrimPrefix(s, "PT")
	total := 0
	var num strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			num.WriteRune(r)
			continue
		}
		v, _ := strconv.Atoi(num.String())
		num.Reset()
		switch r {
		case 'H':
			total += v * 60
		case 'M':
			total += v
		}
	}
	return total
}

// parseNaiveTime reads airport-local timestamps without offset as UTC. Only
// times at the same airport may be compared afterwards.
func parseNaiveTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

func parseNaivePair(dep, arr string) (time.Time, time.Time, error) {
	d, err := parseNaiveTime(dep)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("departure: %w", err)
	}
	a, err := parseNaiveTime(arr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("arrival: %w", err)
	}
	return d, a, nil
}
