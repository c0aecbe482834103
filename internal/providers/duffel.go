package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/you/go-flightshark/internal/config"
)

// Duffel is the NDC backend, last in line.
type Duffel struct {
	Base
	host  string
	token string
}

func NewDuffel(cfg *config.Config) *Duffel {
	return &Duffel{
		Base:  newBase("duffel", 4, RateLimits{PerMinute: 60, PerDay: 1000}, cfg),
		host:  strings.TrimRight(cfg.DuffelHost, "/"),
		token: cfg.DuffelToken,
	}
}

func (d *Duffel) IsConfigured() bool { return d.token != "" }

func (d *Duffel) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.host+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Duffel-Version", "v2")
	return req, nil
}

type duffelSlice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type duffelPassenger struct {
	Type string `json:"type"`
}

type duffelOfferRequest struct {
	Slices     []duffelSlice     `json:"slices"`
	Passengers []duffelPassenger `json:"passengers"`
	CabinClass string            `json:"cabin_class"`
}

type duffelPlace struct {
	IataCode string `json:"iata_code"`
}

type duffelSlicePayload struct {
	Duration string `json:"duration"`
	Segments []struct {
		Origin                       duffelPlace `json:"origin"`
		Destination                  duffelPlace `json:"destination"`
		DepartingAt                  string      `json:"departing_at"`
		ArrivingAt                   string      `json:"arriving_at"`
		Duration                     string      `json:"duration"`
		MarketingCarrier             duffelPlace `json:"marketing_carrier"`
		MarketingCarrierFlightNumber string      `json:"marketing_carrier_flight_number"`
		Aircraft                     *struct {
			IataCode string `json:"iata_code"`
		} `json:"aircraft"`
	} `json:"segments"`
}

type duffelOffer struct {
	ID            string               `json:"id"`
	TotalAmount   string               `json:"total_amount"`
	TotalCurrency string               `json:"total_currency"`
	Owner         duffelPlace          `json:"owner"`
	Slices        []duffelSlicePayload `json:"slices"`
}

func (d *Duffel) Search(ctx context.Context, sr SearchRequest) ([]FlightOffer, error) {
	if !d.IsConfigured() {
		return nil, d.fail("search", ErrNotConfigured)
	}

	body := duffelOfferRequest{
		Slices: []duffelSlice{{
			Origin:        sr.Origin,
			Destination:   sr.Destination,
			DepartureDate: sr.DepartureDate.Format(time.DateOnly),
		}},
		CabinClass: string(ParseCabinClass(string(sr.CabinClass))),
	}
	if sr.ReturnDate != nil {
		body.Slices = append(body.Slices, duffelSlice{
			Origin:        sr.Destination,
			Destination:   sr.Origin,
			DepartureDate: sr.ReturnDate.Format(time.DateOnly),
		})
	}
	for i := 0; i < max(sr.Passengers, 1); i++ {
		body.Passengers = append(body.Passengers, duffelPassenger{Type: "adult"})
	}
	b, err := json.Marshal(struct {
		Data duffelOfferRequest `json:"data"`
	}{Data: body})
	if err != nil {
		return nil, d.fail("search", err)
	}

	req, err := d.newRequest(ctx, http.MethodPost, "/air/offer_requests?return_offers=true", bytes.NewReader(b))
	if err != nil {
		return nil, d.fail("search", err)
	}
	var payload struct {
		Data struct {
			Offers []duffelOffer `json:"offers"`
		} `json:"data"`
	}
	if err := d.do(req, &payload); err != nil {
		return nil, d.fail("search", err)
	}

	out := make([]FlightOffer, 0, len(payload.Data.Offers))
	for _, o := range payload.Data.Offers {
		if len(o.Slices) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(o.TotalAmount, 64)
		if err != nil {
			continue
		}
		offer := FlightOffer{
			ID:         "duffel-" + o.ID,
			Price:      price,
			Currency:   o.TotalCurrency,
			CabinClass: ParseCabinClass(body.CabinClass),
			Airline:    o.Owner.IataCode,
		}
		if err := d.fillSlices(&offer, o.Slices); err != nil {
			slog.Debug("dropping offer", "provider", d.Name(), "offer", o.ID, "err", err)
			continue
		}
		out = append(out, offer)
	}
	return d.keep(out), nil
}

// fillSlices maps the first slice to the outbound and the second to the return.
func (d *Duffel) fillSlices(offer *FlightOffer, slices []duffelSlicePayload) error {
	for i, sl := range slices {
		segs := make([]FlightSegment, 0, len(sl.Segments))
		for _, s := range sl.Segments {
			dep, arr, err := parseNaivePair(s.DepartingAt, s.ArrivingAt)
			if err != nil {
				return err
			}
			carrier := s.MarketingCarrier.IataCode
			seg := NewLocalSegment(s.Origin.IataCode, s.Destination.IataCode, dep, arr,
				carrier, carrier+s.MarketingCarrierFlightNumber, parseISODurationMinutes(s.Duration))
			if s.Aircraft != nil && s.Aircraft.IataCode != "" {
				code := s.Aircraft.IataCode
				seg.Aircraft = &code
			}
			segs = append(segs, seg)
		}
		offer.TotalDurationMinutes += parseISODurationMinutes(sl.Duration)
		switch i {
		case 0:
			offer.OutboundSegments = segs
		case 1:
			offer.ReturnSegments = segs
		}
	}
	return nil
}

func (d *Duffel) HealthCheck(ctx context.Context) error {
	if !d.IsConfigured() {
		return d.fail("health", ErrNotConfigured)
	}
	req, err := d.newRequest(ctx, http.MethodGet, "/air/airlines?limit=1", nil)
	if err != nil {
		return d.fail("health", err)
	}
	if err := d.do(req, nil); err != nil {
		return d.fail("health", err)
	}
	return nil
}
