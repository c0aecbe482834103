package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/you/go-flightshark/internal/config"
)

const skyscannerSession = `{
 "Status":"UpdatesComplete",
 "Itineraries":[
  {"OutboundLegId":"out-1","PricingOptions":[{"Price":74.5,"DeeplinkUrl":"https://example.test/book/1"}]},
  {"OutboundLegId":"out-2","PricingOptions":[{"Price":55}]},
  {"OutboundLegId":"missing","PricingOptions":[{"Price":10}]}
 ],
 "Legs":[
  {"Id":"out-1","SegmentIds":[1],"Duration":150,"Carriers":[7]},
  {"Id":"out-2","SegmentIds":[2,3],"Duration":320,"Carriers":[8]}
 ],
 "Segments":[
  {"Id":1,"OriginStation":100,"DestinationStation":200,"DepartureDateTime":"2026-03-14T07:00:00","ArrivalDateTime":"2026-03-14T10:30:00","Carrier":7,"FlightNumber":"8722","Duration":150},
  {"Id":2,"OriginStation":100,"DestinationStation":300,"DepartureDateTime":"2026-03-14T06:00:00","ArrivalDateTime":"2026-03-14T07:20:00","Carrier":8,"FlightNumber":"100","Duration":80},
  {"Id":3,"OriginStation":300,"DestinationStation":200,"DepartureDateTime":"2026-03-14T09:00:00","ArrivalDateTime":"2026-03-14T12:20:00","Carrier":8,"FlightNumber":"200","Duration":140}
 ],
 "Carriers":[{"Id":7,"Code":"VY"},{"Id":8,"Code":"BA"}],
 "Places":[{"Id":100,"Code":"DUB"},{"Id":200,"Code":"BCN"},{"Id":300,"Code":"LHR"}]
}`

func TestSkyscannerSearchPollsUntilComplete(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/apiservices/pricing/v1.0", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "key", r.Header.Get("X-RapidAPI-Key"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "DUB-sky", r.PostForm.Get("originPlace"))
		require.Equal(t, "premiumeconomy", r.PostForm.Get("cabinClass"))
		w.Header().Set("Location", "http://upstream/apiservices/pricing/uk2/v1.0/session-42")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/apiservices/pricing/uk2/v1.0/session-42", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) == 1 {
			fmt.Fprint(w, `{"Status":"UpdatesPending"}`)
			return
		}
		fmt.Fprint(w, skyscannerSession)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSkyscanner(&config.Config{SkyscannerURL: srv.URL + "/apiservices", SkyscannerRapidAPIKey: "key"})
	s.pollInterval = 10 * time.Millisecond

	offers, err := s.Search(context.Background(), SearchRequest{
		Origin: "DUB", Destination: "BCN",
		DepartureDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		Passengers:    1,
		CabinClass:    CabinPremiumEconomy,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&polls))
	require.Len(t, offers, 2)

	require.Equal(t, "VY", offers[0].Airline)
	require.True(t, offers[0].IsDirect)
	require.Equal(t, "VY8722", offers[0].OutboundSegments[0].FlightNumber)
	require.Equal(t, "https://example.test/book/1", *offers[0].BookingURL)

	require.Equal(t, 1, offers[1].Stops)
	require.Equal(t, "LHR", offers[1].OutboundSegments[0].ArrivalAirport)
	require.Equal(t, 320, offers[1].TotalDurationMinutes)
}

func TestSkyscannerSessionWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSkyscanner(&config.Config{SkyscannerURL: srv.URL, SkyscannerRapidAPIKey: "key"})
	offers, err := s.Search(context.Background(), SearchRequest{Origin: "DUB", Destination: "BCN", DepartureDate: time.Now()})
	require.NoError(t, err)
	require.Empty(t, offers)
}

func TestSkyscannerPriceCalendarAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/browsedates/v1.0/IE/EUR/en-US/DUB/BCN/2026-03", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Quotes":[{"MinPrice":42,"OutboundLeg":{"DepartureDate":"2026-03-09T00:00:00"}}]}`)
	})
	mux.HandleFunc("/reference/v1.0/currencies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Currencies":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSkyscanner(&config.Config{SkyscannerURL: srv.URL, SkyscannerRapidAPIKey: "key"})
	points, err := s.PriceCalendar(context.Background(), "DUB", "BCN", 2026, time.March)
	require.NoError(t, err)
	require.Equal(t, []PricePoint{{Date: "2026-03-09", Price: 42, Currency: "EUR"}}, points)
	require.NoError(t, s.HealthCheck(context.Background()))
}

func TestSkyscannerNotConfigured(t *testing.T) {
	s := NewSkyscanner(&config.Config{SkyscannerURL: "http://127.0.0.1:0"})
	_, err := s.Search(context.Background(), SearchRequest{})
	require.ErrorIs(t, err, ErrNotConfigured)
}
