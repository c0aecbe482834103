package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flightshark/internal/aggregator"
	"github.com/you/go-flightshark/internal/auth"
	"github.com/you/go-flightshark/internal/cache"
	"github.com/you/go-flightshark/internal/config"
	"github.com/you/go-flightshark/internal/providers"
	"github.com/you/go-flightshark/internal/providers/providertest"
	"github.com/you/go-flightshark/internal/service"
)

var dep = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

type fixture struct {
	e     *echo.Echo
	auth  *auth.Authenticator
	first *providertest.Fake
	kiwi  *providertest.Capable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	first := providertest.New("amadeus", 1)
	first.Offers = []providers.FlightOffer{
		providertest.Offer("amadeus", "FR", "FR2", dep, 210),
		providertest.Offer("amadeus", "FR", "FR1", dep, 120),
		providertest.Connecting("amadeus", "BA", dep, 99),
	}
	first.Calendar = []providers.PricePoint{
		{Date: "2026-03-01", Price: 40, Currency: "EUR"},
		{Date: "2026-03-02", Price: 25, Currency: "EUR"},
		{Date: "2026-03-03", Price: 25, Currency: "EUR"},
	}
	kiwi := providertest.NewCapable("kiwi", 3)
	kiwi.MultiCityOffers = []providers.FlightOffer{providertest.Offer("kiwi", "FR", "FR9", dep, 300)}
	kiwi.FlexibleOffers = []providers.FlightOffer{providertest.Offer("kiwi", "FR", "FR8", dep, 70)}

	mgr := aggregator.New([]providers.FlightProvider{first, kiwi}, aggregator.Config{})
	svc := service.New(mgr, service.Options{SearchTimeout: 5 * time.Second})
	a := auth.New(&config.Config{JWTSecret: "test-secret", JWTUser: "demo", JWTPassword: "demo123"})
	srv := NewServer(svc, cache.NewMemoryCache(), a, Options{
		CacheTTL:           time.Minute,
		CalendarCacheTTL:   time.Hour,
		StatusPushInterval: 20 * time.Millisecond,
	})
	return &fixture{e: srv.Echo(), auth: a, first: first, kiwi: kiwi}
}

func (f *fixture) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) bearer(t *testing.T) map[string]string {
	t.Helper()
	tok, err := f.auth.IssueToken("demo")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSearchFlights(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/flights/search?origin=dub&destination=bcn&departure_date=2026-03-14&passengers=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[searchResponse](t, rec)
	require.Equal(t, "DUB", resp.Origin)
	require.Equal(t, "BCN", resp.Destination)
	require.Equal(t, "2026-03-14", resp.DepartureDate)
	require.Nil(t, resp.ReturnDate)
	require.Equal(t, 2, resp.Passengers)
	require.Equal(t, aggregator.Fallback, resp.Strategy)
	require.Equal(t, 3, resp.TotalResults)
	require.Equal(t, 99.0, resp.Offers[0].Price)
	require.False(t, resp.Cached)

	rec = f.do(http.MethodGet, "/api/v1/flights/search?origin=DUB&destination=BCN&departure_date=2026-03-14&passengers=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[searchResponse](t, rec)
	require.True(t, resp.Cached)
	require.Equal(t, 1, f.first.Calls())
}

func TestSearchFlightsDirectOnlyAndReturn(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/flights/search?origin=DUB&destination=BCN&departure_date=2026-03-14&return_date=2026-03-20&direct_only=true&strategy=parallel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[searchResponse](t, rec)
	require.Equal(t, aggregator.Parallel, resp.Strategy)
	require.NotNil(t, resp.ReturnDate)
	require.Equal(t, "2026-03-20", *resp.ReturnDate)
	require.Equal(t, 2, resp.TotalResults)
	for _, o := range resp.Offers {
		require.True(t, o.IsDirect)
	}
	require.NotNil(t, f.first.LastRequest().ReturnDate)
}

func TestSearchFlightsBadInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"bad date", "origin=DUB&destination=BCN&departure_date=14-03-2026", "invalid_request"},
		{"missing date", "origin=DUB&destination=BCN", "validation_error"},
		{"bad origin", "origin=DUBLIN&destination=BCN&departure_date=2026-03-14", "validation_error"},
		{"return first", "origin=DUB&destination=BCN&departure_date=2026-03-14&return_date=2026-03-10", "validation_error"},
		{"passengers", "origin=DUB&destination=BCN&departure_date=2026-03-14&passengers=12", "validation_error"},
		{"passengers not int", "origin=DUB&destination=BCN&departure_date=2026-03-14&passengers=two", "invalid_request"},
		{"direct flag", "origin=DUB&destination=BCN&departure_date=2026-03-14&direct_only=maybe", "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/api/v1/flights/search?"+tt.query, "", nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.code, decode[errorResponse](t, rec).Error)
		})
	}
	require.Zero(t, f.first.Calls())
}

func TestCheapestDates(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/flights/cheapest-dates?origin=dub&destination=bcn&year=2026&month=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[calendarResponse](t, rec)
	require.Equal(t, "2026-03", resp.Month)
	require.Len(t, resp.Dates, 3)
	require.NotNil(t, resp.CheapestDate)
	require.Equal(t, "2026-03-02", resp.CheapestDate.Date)

	rec = f.do(http.MethodGet, "/api/v1/flights/cheapest-dates?origin=DUB&destination=BCN&year=2026&month=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.first.CalendarCalls())

	rec = f.do(http.MethodGet, "/api/v1/flights/cheapest-dates?origin=DUB&destination=BCN&year=2026&month=13", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/flights/cheapest-dates?origin=DUB&destination=BCN&month=3", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheapestDatesEmpty(t *testing.T) {
	f := newFixture(t)
	f.first.Calendar = nil

	rec := f.do(http.MethodGet, "/api/v1/flights/cheapest-dates?origin=DUB&destination=BCN&year=2026&month=4", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"origin":"DUB","destination":"BCN","month":"2026-04","dates":[],"cheapest_date":null}`, rec.Body.String())
}

func TestMultiCity(t *testing.T) {
	f := newFixture(t)

	body := `{"legs":[{"from":"DUB","to":"BCN","date":"2026-03-14"},{"from":"BCN","to":"FCO","date":"2026-03-18"}],"passengers":2}`
	rec := f.do(http.MethodPost, "/api/v1/flights/multi-city", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[offersResponse](t, rec)
	require.Equal(t, 1, resp.TotalResults)
	require.Equal(t, "kiwi", resp.Offers[0].Source)

	rec = f.do(http.MethodPost, "/api/v1/flights/multi-city", `{"legs":[{"from":"DUB","to":"BCN","date":"2026-03-14"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/flights/multi-city", `{"legs":[{"from":"DUB","to":"BCN","date":"soon"},{"from":"BCN","to":"FCO","date":"2026-03-18"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlexibleDates(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/flights/flexible?origin=DUB&destination=BCN&date_from=2026-03-01&date_to=2026-03-31&nights_from=2&nights_to=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[offersResponse](t, rec)
	require.Equal(t, 1, resp.TotalResults)
	require.Equal(t, 1, f.kiwi.CapabilityCalls())

	rec = f.do(http.MethodGet, "/api/v1/flights/flexible?origin=DUB&destination=BCN&date_from=2026-03-31&date_to=2026-03-01", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", decode[errorResponse](t, rec).Error)
}

func TestAdminRequiresToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/admin/providers", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/admin/providers/kiwi/reset", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminProviderStatusAndReset(t *testing.T) {
	f := newFixture(t)
	f.first.Err = errors.New("upstream down")
	for i := 0; i < providers.DefaultDegradedAfter; i++ {
		f.first.RecordFailure(f.first.Err)
	}

	rec := f.do(http.MethodGet, "/admin/providers", "", f.bearer(t))
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[service.Status](t, rec)
	require.Equal(t, providers.StatusDegraded, st.Providers["amadeus"].Status)
	require.Equal(t, []string{"amadeus", "kiwi"}, st.AvailableProviders)
	require.True(t, st.Health["kiwi"])

	rec = f.do(http.MethodPost, "/admin/providers/amadeus/reset", "", f.bearer(t))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, providers.StatusHealthy, f.first.Status())

	rec = f.do(http.MethodPost, "/admin/providers/galileo/reset", "", f.bearer(t))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/auth/login", `{"username":"demo","password":"demo123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"token"`)
}

func TestProviderStatusStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.e)
	t.Cleanup(ts.Close)

	tok, err := f.auth.IssueToken("demo")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/admin/providers/stream?token=" + tok

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var st service.Status
		require.NoError(t, conn.ReadJSON(&st))
		require.Len(t, st.Providers, 2)
		require.Contains(t, st.Health, "amadeus")
	}

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/admin/providers/stream", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
