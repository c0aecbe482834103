package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/you/go-flightshark/internal/config"
)

var skyscannerCabins = map[CabinClass]string{
	CabinEconomy:        "economy",
	CabinPremiumEconomy: "premiumeconomy",
	CabinBusiness:       "business",
	CabinFirst:          "first",
}

// Skyscanner is the meta-search backend reached through RapidAPI. Searches
// open a pricing session and poll it until the upstream reports completion.
type Skyscanner struct {
	Base
	baseURL     string
	host        string
	rapidAPIKey string
	market      string
	currency    string
	locale      string

	pollAttempts int
	pollInterval time.Duration
}

func NewSkyscanner(cfg *config.Config) *Skyscanner {
	base := strings.TrimRight(cfg.SkyscannerURL, "/")
	host := ""
	if u, err := url.Parse(base); err == nil {
		host = u.Host
	}
	return &Skyscanner{
		Base:         newBase("skyscanner", 2, RateLimits{PerMinute: 50, PerDay: 500}, cfg),
		baseURL:      base,
		host:         host,
		rapidAPIKey:  cfg.SkyscannerRapidAPIKey,
		market:       "IE",
		currency:     "EUR",
		locale:       "en-US",
		pollAttempts: 5,
		pollInterval: time.Second,
	}
}

func (s *Skyscanner) IsConfigured() bool { return s.rapidAPIKey != "" }

func (s *Skyscanner) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", s.rapidAPIKey)
	req.Header.Set("X-RapidAPI-Host", s.host)
	return req, nil
}

func (s *Skyscanner) Search(ctx context.Context, req SearchRequest) ([]FlightOffer, error) {
	if !s.IsConfigured() {
		return nil, s.fail("search", ErrNotConfigured)
	}
	key, err := s.createSession(ctx, req)
	if err != nil {
		return nil, s.fail("create session", err)
	}
	if key == "" {
		return nil, nil
	}
	offers, err := s.poll(ctx, key)
	if err != nil {
		return nil, s.fail("poll session", err)
	}
	return s.keep(offers), nil
}

func (s *Skyscanner) createSession(ctx context.Context, sr SearchRequest) (string, error) {
	form := url.Values{}
	form.Set("country", s.market)
	form.Set("currency", s.currency)
	form.Set("locale", s.locale)
	form.Set("originPlace", sr.Origin+"-sky")
	form.Set("destinationPlace", sr.Destination+"-sky")
	form.Set("outboundDate", sr.DepartureDate.Format(time.DateOnly))
	if sr.ReturnDate != nil {
		form.Set("inboundDate", sr.ReturnDate.Format(time.DateOnly))
	}
	form.Set("adults", strconv.Itoa(max(sr.Passengers, 1)))
	form.Set("cabinClass", skyscannerCabins[ParseCabinClass(string(sr.CabinClass))])

	req, err := s.newRequest(ctx, http.MethodPost, s.baseURL+"/pricing/v1.0", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.send(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", nil
	}
	return path.Base(loc), nil
}

type skyscannerPoll struct {
	Status      string `json:"Status"`
	Itineraries []struct {
		OutboundLegID  string `json:"OutboundLegId"`
		InboundLegID   string `json:"InboundLegId"`
		PricingOptions []struct {
			Price       float64 `json:"Price"`
			DeeplinkURL string  `json:"DeeplinkUrl"`
		} `json:"PricingOptions"`
	} `json:"Itineraries"`
	Legs []struct {
		ID         string `json:"Id"`
		SegmentIDs []int  `json:"SegmentIds"`
		Duration   int    `json:"Duration"`
		Carriers   []int  `json:"Carriers"`
	} `json:"Legs"`
	Segments []struct {
		ID                 int    `json:"Id"`
		OriginStation      int    `json:"OriginStation"`
		DestinationStation int    `json:"DestinationStation"`
		DepartureDateTime  string `json:"DepartureDateTime"`
		ArrivalDateTime    string `json:"ArrivalDateTime"`
		Carrier            int    `json:"Carrier"`
		FlightNumber       string `json:"FlightNumber"`
		Duration           int    `json:"Duration"`
	} `json:"Segments"`
	Carriers []struct {
		ID   int    `json:"Id"`
		Code string `json:"Code"`
	} `json:"Carriers"`
	Places []struct {
		ID   int    `json:"Id"`
		Code string `json:"Code"`
	} `json:"Places"`
}

func (s *Skyscanner) poll(ctx context.Context, key string) ([]FlightOffer, error) {
	q := url.Values{}
	q.Set("sortType", "price")
	q.Set("sortOrder", "asc")
	q.Set("pageIndex", "0")
	q.Set("pageSize", "50")
	target := s.baseURL + "/pricing/uk2/v1.0/" + url.PathEscape(key) + "?" + q.Encode()

	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		req, err := s.newRequest(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		var payload skyscannerPoll
		if err := s.do(req, &payload); err != nil {
			return nil, err
		}
		if payload.Status == "UpdatesComplete" {
			return s.parse(payload), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return nil, nil
}

func (s *Skyscanner) parse(p skyscannerPoll) []FlightOffer {
	type leg struct {
		segments []int
		duration int
		carriers []int
	}
	legs := make(map[string]leg, len(p.Legs))
	for _, l := range p.Legs {
		legs[l.ID] = leg{segments: l.SegmentIDs, duration: l.Duration, carriers: l.Carriers}
	}
	carriers := make(map[int]string, len(p.Carriers))
	for _, c := range p.Carriers {
		carriers[c.ID] = c.Code
	}
	places := make(map[int]string, len(p.Places))
	for _, pl := range p.Places {
		places[pl.ID] = pl.Code
	}
	segIndex := make(map[int]int, len(p.Segments))
	for i, sg := range p.Segments {
		segIndex[sg.ID] = i
	}
	segmentsOf := func(l leg) ([]FlightSegment, error) {
		out := make([]FlightSegment, 0, len(l.segments))
		for _, id := range l.segments {
			i, ok := segIndex[id]
			if !ok {
				return nil, fmt.Errorf("unknown segment %d", id)
			}
			sg := p.Segments[i]
			dep, arr, err := parseNaivePair(sg.DepartureDateTime, sg.ArrivalDateTime)
			if err != nil {
				return nil, err
			}
			code := carriers[sg.Carrier]
			out = append(out, NewLocalSegment(places[sg.OriginStation], places[sg.DestinationStation],
				dep, arr, code, code+sg.FlightNumber, sg.Duration))
		}
		return out, nil
	}

	var out []FlightOffer
	for _, it := range p.Itineraries {
		if len(it.PricingOptions) == 0 {
			continue
		}
		outbound, ok := legs[it.OutboundLegID]
		if !ok {
			continue
		}
		segs, err := segmentsOf(outbound)
		if err != nil {
			slog.Debug("dropping offer", "provider", s.Name(), "leg", it.OutboundLegID, "err", err)
			continue
		}
		o := FlightOffer{
			ID:                   fmt.Sprintf("skyscanner-%s", it.OutboundLegID),
			Price:                it.PricingOptions[0].Price,
			Currency:             s.currency,
			CabinClass:           CabinEconomy,
			OutboundSegments:     segs,
			TotalDurationMinutes: outbound.duration,
		}
		if len(outbound.carriers) > 0 {
			o.Airline = carriers[outbound.carriers[0]]
		}
		if inbound, ok := legs[it.InboundLegID]; ok && it.InboundLegID != "" {
			if o.ReturnSegments, err = segmentsOf(inbound); err != nil {
				slog.Debug("dropping offer", "provider", s.Name(), "leg", it.InboundLegID, "err", err)
				continue
			}
			o.ID += "-" + it.InboundLegID
			o.TotalDurationMinutes += inbound.duration
		}
		if link := it.PricingOptions[0].DeeplinkURL; link != "" {
			o.BookingURL = &link
		}
		out = append(out, o)
		if len(out) == 50 {
			break
		}
	}
	return out
}

func (s *Skyscanner) PriceCalendar(ctx context.Context, origin, destination string, year int, month time.Month) ([]PricePoint, error) {
	if !s.IsConfigured() {
		return nil, nil
	}
	target := fmt.Sprintf("%s/browsedates/v1.0/%s/%s/%s/%s/%s/%04d-%02d",
		s.baseURL, s.market, s.currency, s.locale, origin, destination, year, int(month))
	req, err := s.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, s.fail("price calendar", err)
	}
	var payload struct {
		Quotes []struct {
			MinPrice    float64 `json:"MinPrice"`
			OutboundLeg struct {
				DepartureDate string `json:"DepartureDate"`
			} `json:"OutboundLeg"`
		} `json:"Quotes"`
	}
	if err := s.do(req, &payload); err != nil {
		return nil, s.fail("price calendar", err)
	}
	out := make([]PricePoint, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		date, _, _ := strings.Cut(q.OutboundLeg.DepartureDate, "T")
		out = append(out, PricePoint{Date: date, Price: q.MinPrice, Currency: s.currency})
	}
	return out, nil
}

func (s *Skyscanner) HealthCheck(ctx context.Context) error {
	if !s.IsConfigured() {
		return s.fail("health", ErrNotConfigured)
	}
	req, err := s.newRequest(ctx, http.MethodGet, s.baseURL+"/reference/v1.0/currencies", nil)
	if err != nil {
		return s.fail("health", err)
	}
	if err := s.do(req, nil); err != nil {
		return s.fail("health", err)
	}
	return nil
}
