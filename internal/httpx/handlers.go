package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/you/go-flightshark/internal/aggregator"
	"github.com/you/go-flightshark/internal/cache"
	"github.com/you/go-flightshark/internal/providers"
	"github.com/you/go-flightshark/internal/service"
)

const dateLayout = "2006-01-02"

type searchResponse struct {
	Origin        string                  `json:"origin"`
	Destination   string                  `json:"destination"`
	DepartureDate string                  `json:"departure_date"`
	ReturnDate    *string                 `json:"return_date"`
	Passengers    int                     `json:"passengers"`
	Strategy      aggregator.Strategy     `json:"strategy"`
	Offers        []providers.FlightOffer `json:"offers"`
	TotalResults  int                     `json:"total_results"`
	Cached        bool                    `json:"cached"`
	SearchedAt    time.Time               `json:"searched_at"`
}

func (s *Server) searchFlights(c echo.Context) error {
	origin := strings.ToUpper(strings.TrimSpace(c.QueryParam("origin")))
	dest := strings.ToUpper(strings.TrimSpace(c.QueryParam("destination")))

	dep, err := parseDate(c.QueryParam("departure_date"))
	if err != nil {
		return badRequest(c, "departure_date must be YYYY-MM-DD")
	}
	var ret *time.Time
	if raw := c.QueryParam("return_date"); raw != "" {
		r, err := parseDate(raw)
		if err != nil {
			return badRequest(c, "return_date must be YYYY-MM-DD")
		}
		ret = &r
	}
	passengers, err := intParam(c, "passengers", 1)
	if err != nil {
		return badRequest(c, err.Error())
	}
	direct := false
	if raw := c.QueryParam("direct_only"); raw != "" {
		if direct, err = strconv.ParseBool(raw); err != nil {
			return badRequest(c, "direct_only must be a boolean")
		}
	}
	cabin := providers.ParseCabinClass(c.QueryParam("cabin_class"))
	strategy := s.svc.ResolveStrategy(c.QueryParam("strategy"))

	req := service.SearchRequest{
		Origin:        origin,
		Destination:   dest,
		DepartureDate: dep,
		ReturnDate:    ret,
		Passengers:    passengers,
		CabinClass:    string(cabin),
		DirectOnly:    direct,
		Strategy:      string(strategy),
	}
	retKey := ""
	if ret != nil {
		retKey = ret.Format(dateLayout)
	}
	key := cache.SearchKey(origin, dest, dep.Format(dateLayout), retKey, passengers, string(cabin), direct, string(strategy))

	resp, hit, err := cache.Fetch(c.Request().Context(), s.loader, key, s.opts.CacheTTL,
		func(ctx context.Context) (searchResponse, error) {
			res, err := s.svc.Search(ctx, req)
			if err != nil {
				return searchResponse{}, err
			}
			var retOut *string
			if ret != nil {
				r := ret.Format(dateLayout)
				retOut = &r
			}
			out := searchResponse{
				Origin:        origin,
				Destination:   dest,
				DepartureDate: dep.Format(dateLayout),
				ReturnDate:    retOut,
				Passengers:    passengers,
				Strategy:      strategy,
				Offers:        res.Offers,
				TotalResults:  len(res.Offers),
				SearchedAt:    time.Now().UTC(),
			}
			if !res.Complete {
				return out, cache.ErrSkipStore
			}
			return out, nil
		})
	if err != nil {
		return fail(c, err)
	}
	resp.Cached = hit
	return c.JSON(http.StatusOK, resp)
}

type calendarResponse struct {
	Origin       string                 `json:"origin"`
	Destination  string                 `json:"destination"`
	Month        string                 `json:"month"`
	Dates        []providers.PricePoint `json:"dates"`
	CheapestDate *providers.PricePoint  `json:"cheapest_date"`
}

func (s *Server) cheapestDates(c echo.Context) error {
	origin := strings.ToUpper(strings.TrimSpace(c.QueryParam("origin")))
	dest := strings.ToUpper(strings.TrimSpace(c.QueryParam("destination")))
	year, err := intParam(c, "year", 0)
	if err != nil || year == 0 {
		return badRequest(c, "year is required")
	}
	month, err := intParam(c, "month", 0)
	if err != nil {
		return badRequest(c, err.Error())
	}

	key := cache.CalendarKey(origin, dest, year, month)
	resp, _, err := cache.Fetch(c.Request().Context(), s.loader, key, s.opts.CalendarCacheTTL,
		func(ctx context.Context) (calendarResponse, error) {
			points, err := s.svc.CheapestDates(ctx, origin, dest, year, month)
			if err != nil {
				return calendarResponse{}, err
			}
			return calendarResponse{
				Origin:       origin,
				Destination:  dest,
				Month:        fmt.Sprintf("%04d-%02d", year, month),
				Dates:        points,
				CheapestDate: cheapest(points),
			}, nil
		})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// cheapest returns the lowest price, the earliest listed one on ties.
func cheapest(points []providers.PricePoint) *providers.PricePoint {
	if len(points) == 0 {
		return nil
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return &best
}

type legRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date"`
}

type multiCityRequest struct {
	Legs       []legRequest `json:"legs"`
	Passengers int          `json:"passengers"`
}

type offersResponse struct {
	Offers       []providers.FlightOffer `json:"offers"`
	TotalResults int                     `json:"total_results"`
	SearchedAt   time.Time               `json:"searched_at"`
}

func (s *Server) multiCity(c echo.Context) error {
	var body multiCityRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	legs := make([]providers.Leg, 0, len(body.Legs))
	for i, l := range body.Legs {
		d, err := parseDate(l.Date)
		if err != nil {
			return badRequest(c, fmt.Sprintf("legs[%d].date must be YYYY-MM-DD", i))
		}
		legs = append(legs, providers.Leg{From: l.From, To: l.To, Date: d})
	}
	if body.Passengers == 0 {
		body.Passengers = 1
	}

	offers, err := s.svc.SearchMultiCity(c.Request().Context(), legs, body.Passengers)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, offersResponse{Offers: offers, TotalResults: len(offers), SearchedAt: time.Now().UTC()})
}

func (s *Server) flexibleDates(c echo.Context) error {
	from, err := parseDate(c.QueryParam("date_from"))
	if err != nil {
		return badRequest(c, "date_from must be YYYY-MM-DD")
	}
	to, err := parseDate(c.QueryParam("date_to"))
	if err != nil {
		return badRequest(c, "date_to must be YYYY-MM-DD")
	}
	req := providers.FlexibleRequest{
		Origin:      c.QueryParam("origin"),
		Destination: c.QueryParam("destination"),
		DateFrom:    from,
		DateTo:      to,
	}
	for name, dst := range map[string]*int{
		"nights_from": &req.NightsFrom,
		"nights_to":   &req.NightsTo,
		"passengers":  &req.Passengers,
	} {
		if *dst, err = intParam(c, name, 0); err != nil {
			return badRequest(c, err.Error())
		}
	}

	offers, err := s.svc.SearchFlexibleDates(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, offersResponse{Offers: offers, TotalResults: len(offers), SearchedAt: time.Now().UTC()})
}

// parseDate returns the zero time for an empty value.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
