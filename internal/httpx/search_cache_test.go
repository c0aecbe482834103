package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

const searchURL = "/api/v1/flights/search?origin=DUB&destination=BCN&departure_date=2026-03-14&strategy=parallel"

func newSearchServer(timeout time.Duration, provs ...providers.FlightProvider) *echo.Echo {
	svc := service.New(aggregator.New(provs, aggregator.Config{}), service.Options{SearchTimeout: timeout})
	a := auth.New(&config.Config{JWTSecret: "test-secret"})
	return NewServer(svc, cache.NewMemoryCache(), a, Options{CacheTTL: time.Minute, LoadTimeout: time.Second}).Echo()
}

func search(ctx context.Context, e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, searchURL, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSearchTimeoutWithoutOffersIsGatewayTimeout(t *testing.T) {
	slow := providertest.New("amadeus", 1)
	slow.Delay = 2 * time.Second
	slow.Offers = []providers.FlightOffer{providertest.Offer("amadeus", "FR", "FR1", dep, 120)}
	e := newSearchServer(50*time.Millisecond, slow)

	rec := search(context.Background(), e)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, "timeout", decode[errorResponse](t, rec).Error)

	slow.Delay = 0
	rec = search(context.Background(), e)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchResponse](t, rec)
	require.False(t, body.Cached)
	require.Len(t, body.Offers, 1)
}

func TestPartialSearchIsServedButNotCached(t *testing.T) {
	slow := providertest.New("amadeus", 1)
	slow.Delay = 2 * time.Second
	fast := providertest.New("skyscanner", 2)
	fast.Offers = []providers.FlightOffer{providertest.Offer("skyscanner", "FR", "FR1", dep, 120)}
	e := newSearchServer(50*time.Millisecond, slow, fast)

	for i := 0; i < 2; i++ {
		rec := search(context.Background(), e)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[searchResponse](t, rec)
		require.False(t, body.Cached)
		require.Len(t, body.Offers, 1)
	}
	require.Equal(t, 2, fast.Calls())
}

func TestCancelledSearchDoesNotPoisonCache(t *testing.T) {
	p := providertest.New("amadeus", 1)
	p.Delay = 100 * time.Millisecond
	p.Offers = []providers.FlightOffer{providertest.Offer("amadeus", "FR", "FR1", dep, 120)}
	e := newSearchServer(5*time.Second, p)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	rec := search(ctx, e)
	require.NotEqual(t, http.StatusOK, rec.Code)

	// The shared load finishes on its own and stores the full result.
	require.Eventually(t, func() bool {
		rec := search(context.Background(), e)
		return rec.Code == http.StatusOK && decode[searchResponse](t, rec).Cached
	}, 2*time.Second, 20*time.Millisecond)

	body := decode[searchResponse](t, search(context.Background(), e))
	require.True(t, body.Cached)
	require.Len(t, body.Offers, 1)
	require.Equal(t, 1, p.Calls())
}
