package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/you/go-flightshark/internal/config"
)

var kiwiCabins = map[CabinClass]string{
	CabinEconomy:        "M",
	CabinPremiumEconomy: "W",
	CabinBusiness:       "C",
	CabinFirst:          "F",
}

const kiwiDate = "02/01/2006"

// Kiwi is the Tequila backend. Besides plain searches it prices multi-city
// itineraries and flexible date windows, and mixes carriers without an
// interline agreement (virtual interlining).
type Kiwi struct {
	Base
	baseURL  string
	apiKey   string
	currency string
	locale   string
}

var (
	_ MultiCitySearcher    = (*Kiwi)(nil)
	_ FlexibleDateSearcher = (*Kiwi)(nil)
)

func NewKiwi(cfg *config.Config) *Kiwi {
	return &Kiwi{
		Base:     newBase("kiwi", 3, RateLimits{PerMinute: 100, PerDay: 1000}, cfg),
		baseURL:  strings.TrimRight(cfg.KiwiURL, "/"),
		apiKey:   cfg.KiwiAPIKey,
		currency: "EUR",
		locale:   "en",
	}
}

func (k *Kiwi) IsConfigured() bool { return k.apiKey != "" }

func (k *Kiwi) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	target := k.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", k.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type kiwiFlight struct {
	ID       string   `json:"id"`
	Price    float64  `json:"price"`
	Airlines []string `json:"airlines"`
	DTimeUTC int64    `json:"dTimeUTC"`
	Duration struct {
		Departure int `json:"departure"`
		Return    int `json:"return"`
	} `json:"duration"`
	Route []struct {
		FlyFrom   string  `json:"flyFrom"`
		FlyTo     string  `json:"flyTo"`
		DTimeUTC  int64   `json:"dTimeUTC"`
		ATimeUTC  int64   `json:"aTimeUTC"`
		Airline   string  `json:"airline"`
		FlightNo  int     `json:"flight_no"`
		Equipment *string `json:"equipment"`
		Return    int     `json:"return"`
	} `json:"route"`
	DeepLink           string `json:"deep_link"`
	VirtualInterlining bool   `json:"virtual_interlining"`
}

func (k *Kiwi) search(req *http.Request, roundTrip bool) ([]FlightOffer, error) {
	var payload struct {
		Data []kiwiFlight `json:"data"`
	}
	if err := k.do(req, &payload); err != nil {
		return nil, err
	}
	out := make([]FlightOffer, 0, len(payload.Data))
	for _, f := range payload.Data {
		out = append(out, k.toOffer(f, roundTrip))
	}
	return k.keep(out), nil
}

func (k *Kiwi) toOffer(f kiwiFlight, roundTrip bool) FlightOffer {
	o := FlightOffer{
		ID:                   "kiwi-" + f.ID,
		Price:                f.Price,
		Currency:             k.currency,
		CabinClass:           CabinEconomy,
		TotalDurationMinutes: (f.Duration.Departure + f.Duration.Return) / 60,
		VirtualInterlining:   f.VirtualInterlining,
	}
	if len(f.Airlines) > 0 {
		o.Airline = f.Airlines[0]
	}
	if f.DeepLink != "" {
		link := f.DeepLink
		o.BookingURL = &link
	}
	for _, r := range f.Route {
		seg := NewSegment(r.FlyFrom, r.FlyTo,
			time.Unix(r.DTimeUTC, 0).UTC(), time.Unix(r.ATimeUTC, 0).UTC(),
			r.Airline, r.Airline+strconv.Itoa(r.FlightNo))
		seg.Aircraft = r.Equipment
		if roundTrip && r.Return != 0 {
			o.ReturnSegments = append(o.ReturnSegments, seg)
		} else {
			o.OutboundSegments = append(o.OutboundSegments, seg)
		}
	}
	return o
}

func (k *Kiwi) Search(ctx context.Context, sr SearchRequest) ([]FlightOffer, error) {
	if !k.IsConfigured() {
		return nil, k.fail("search", ErrNotConfigured)
	}
	q := url.Values{}
	q.Set("fly_from", sr.Origin)
	q.Set("fly_to", sr.Destination)
	q.Set("date_from", sr.DepartureDate.Format(kiwiDate))
	q.Set("date_to", sr.DepartureDate.Format(kiwiDate))
	q.Set("adults", strconv.Itoa(max(sr.Passengers, 1)))
	q.Set("curr", k.currency)
	q.Set("locale", k.locale)
	q.Set("selected_cabins", kiwiCabins[ParseCabinClass(string(sr.CabinClass))])
	q.Set("limit", "50")
	q.Set("sort", "price")
	if sr.ReturnDate != nil {
		q.Set("return_from", sr.ReturnDate.Format(kiwiDate))
		q.Set("return_to", sr.ReturnDate.Format(kiwiDate))
		q.Set("flight_type", "round")
	} else {
		q.Set("flight_type", "oneway")
	}

	req, err := k.newRequest(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, k.fail("search", err)
	}
	offers, err := k.search(req, sr.ReturnDate != nil)
	if err != nil {
		return nil, k.fail("search", err)
	}
	return offers, nil
}

func (k *Kiwi) SearchMultiCity(ctx context.Context, legs []Leg, passengers int) ([]FlightOffer, error) {
	if !k.IsConfigured() {
		return nil, k.fail("multi-city", ErrNotConfigured)
	}
	type leg struct {
		FlyFrom  string `json:"fly_from"`
		FlyTo    string `json:"fly_to"`
		DateFrom string `json:"date_from"`
		DateTo   string `json:"date_to"`
	}
	body := struct {
		Requests []leg  `json:"requests"`
		Adults   int    `json:"adults"`
		Curr     string `json:"curr"`
		Limit    int    `json:"limit"`
	}{Adults: max(passengers, 1), Curr: k.currency, Limit: 30}
	for _, l := range legs {
		d := l.Date.Format(kiwiDate)
		body.Requests = append(body.Requests, leg{FlyFrom: l.From, FlyTo: l.To, DateFrom: d, DateTo: d})
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, k.fail("multi-city", err)
	}

	req, err := k.newRequest(ctx, http.MethodPost, "/flights_multi", nil, bytes.NewReader(b))
	if err != nil {
		return nil, k.fail("multi-city", err)
	}
	offers, err := k.search(req, false)
	if err != nil {
		return nil, k.fail("multi-city", err)
	}
	return offers, nil
}

func (k *Kiwi) SearchFlexibleDates(ctx context.Context, fr FlexibleRequest) ([]FlightOffer, error) {
	if !k.IsConfigured() {
		return nil, k.fail("flexible dates", ErrNotConfigured)
	}
	nightsFrom, nightsTo := fr.NightsFrom, fr.NightsTo
	if nightsFrom <= 0 {
		nightsFrom = 3
	}
	if nightsTo < nightsFrom {
		nightsTo = max(nightsFrom, 7)
	}

	q := url.Values{}
	q.Set("fly_from", fr.Origin)
	q.Set("fly_to", fr.Destination)
	q.Set("date_from", fr.DateFrom.Format(kiwiDate))
	q.Set("date_to", fr.DateTo.Format(kiwiDate))
	q.Set("nights_in_dst_from", strconv.Itoa(nightsFrom))
	q.Set("nights_in_dst_to", strconv.Itoa(nightsTo))
	q.Set("adults", strconv.Itoa(max(fr.Passengers, 1)))
	q.Set("curr", k.currency)
	q.Set("limit", "50")
	q.Set("sort", "price")
	q.Set("flight_type", "round")

	req, err := k.newRequest(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, k.fail("flexible dates", err)
	}
	offers, err := k.search(req, true)
	if err != nil {
		return nil, k.fail("flexible dates", err)
	}
	return offers, nil
}

// PriceCalendar searches the whole month and keeps the cheapest flight per
// departure day.
func (k *Kiwi) PriceCalendar(ctx context.Context, origin, destination string, year int, month time.Month) ([]PricePoint, error) {
	if !k.IsConfigured() {
		return nil, nil
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	q := url.Values{}
	q.Set("fly_from", origin)
	q.Set("fly_to", destination)
	q.Set("date_from", first.Format(kiwiDate))
	q.Set("date_to", last.Format(kiwiDate))
	q.Set("one_for_city", "0")
	q.Set("curr", k.currency)
	q.Set("limit", strconv.Itoa(last.Day()))
	q.Set("sort", "price")

	req, err := k.newRequest(ctx, http.MethodGet, "/search", q, nil)
	if err != nil {
		return nil, k.fail("price calendar", err)
	}
	var payload struct {
		Data []kiwiFlight `json:"data"`
	}
	if err := k.do(req, &payload); err != nil {
		return nil, k.fail("price calendar", err)
	}

	cheapest := map[string]float64{}
	for _, f := range payload.Data {
		day := time.Unix(f.DTimeUTC, 0).UTC().Format(time.DateOnly)
		if p, ok := cheapest[day]; !ok || f.Price < p {
			cheapest[day] = f.Price
		}
	}
	out := make([]PricePoint, 0, len(cheapest))
	for day, price := range cheapest {
		out = append(out, PricePoint{Date: day, Price: price, Currency: k.currency})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (k *Kiwi) HealthCheck(ctx context.Context) error {
	if !k.IsConfigured() {
		return k.fail("health", ErrNotConfigured)
	}
	req, err := k.newRequest(ctx, http.MethodGet, "/locations/query", url.Values{"term": {"DUB"}}, nil)
	if err != nil {
		return k.fail("health", err)
	}
	if err := k.do(req, nil); err != nil {
		return k.fail("health", fmt.Errorf("locations query: %w", err))
	}
	return nil
}
