package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flightshark/internal/config"
)

func TestDuffelSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/air/offer_requests", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("return_offers"))
		require.Equal(t, "Bearer duffel-token", r.Header.Get("Authorization"))
		require.Equal(t, "v2", r.Header.Get("Duffel-Version"))

		var body struct {
			Data duffelOfferRequest `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Data.Slices, 1)
		require.Len(t, body.Data.Passengers, 3)
		require.Equal(t, "first", body.Data.CabinClass)

		fmt.Fprint(w, `{"data":{"offers":[
		 {"id":"off_1","total_amount":"212.30","total_currency":"EUR","owner":{"iata_code":"IB"},
		  "slices":[{"duration":"PT4H","segments":[
		   {"origin":{"iata_code":"DUB"},"destination":{"iata_code":"MAD"},"departing_at":"2026-03-14T06:00:00","arriving_at":"2026-03-14T09:30:00","duration":"PT2H30M","marketing_carrier":{"iata_code":"IB"},"marketing_carrier_flight_number":"3551","aircraft":{"iata_code":"320"}},
		   {"origin":{"iata_code":"MAD"},"destination":{"iata_code":"BCN"},"departing_at":"2026-03-14T10:30:00","arriving_at":"2026-03-14T11:45:00","duration":"PT1H15M","marketing_carrier":{"iata_code":"IB"},"marketing_carrier_flight_number":"1020"}
		  ]}]},
		 {"id":"off_2","total_amount":"x","total_currency":"EUR","slices":[]}
		]}}`)
	}))
	defer srv.Close()

	d := NewDuffel(&config.Config{DuffelHost: srv.URL, DuffelToken: "duffel-token"})
	require.Equal(t, 4, d.Priority())

	offers, err := d.Search(context.Background(), SearchRequest{
		Origin: "DUB", Destination: "BCN",
		DepartureDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Passengers:    3,
		CabinClass:    CabinFirst,
	})
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	require.Equal(t, "duffel-off_1", o.ID)
	require.Equal(t, 212.30, o.Price)
	require.Equal(t, "IB", o.Airline)
	require.Equal(t, 1, o.Stops)
	require.Equal(t, 240, o.TotalDurationMinutes)
	require.Equal(t, "IB3551", o.OutboundSegments[0].FlightNumber)
	require.Equal(t, 150, o.OutboundSegments[0].DurationMinutes)
}

func TestDuffelPriceCalendarIsEmpty(t *testing.T) {
	d := NewDuffel(&config.Config{DuffelToken: "t"})
	points, err := d.PriceCalendar(context.Background(), "DUB", "BCN", 2026, time.March)
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestDuffelHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/air/airlines", r.URL.Path)
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	require.NoError(t, NewDuffel(&config.Config{DuffelHost: srv.URL, DuffelToken: "t"}).HealthCheck(context.Background()))
	require.ErrorIs(t, NewDuffel(&config.Config{DuffelHost: srv.URL}).HealthCheck(context.Background()), ErrNotConfigured)
}
