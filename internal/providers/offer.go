package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlightSegment is one leg flown on a single flight number.
type FlightSegment struct {
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	DepartureTime    time.Time `json:"departure_time"`
	ArrivalTime      time.Time `json:"arrival_time"`
	FlightNumber     string    `json:"flight_number"`
	Airline          string    `json:"airline"`
	DurationMinutes  int       `json:"duration_minutes"`
	Aircraft         *string   `json:"aircraft,omitempty"`

	// local marks wall-clock times of two possibly different airport zones.
	local bool
}

// NewSegment builds a segment whose duration is taken from the timestamps.
func NewSegment(from, to string, dep, arr time.Time, airline, number string) FlightSegment {
	return FlightSegment{
		DepartureAirport: from,
		ArrivalAirport:   to,
		DepartureTime:    dep,
		ArrivalTime:      arr,
		FlightNumber:     number,
		Airline:          airline,
		DurationMinutes:  minutesBetween(dep, arr),
	}
}

// NewLocalSegment builds a segment from airport-local times that carry no
// offset. Departure and arrival may sit in different zones, so minutes must be
// the duration reported upstream; the timestamp difference is used only when
// minutes is not positive.
func NewLocalSegment(from, to string, dep, arr time.Time, airline, number string, minutes int) FlightSegment {
	s := NewSegment(from, to, dep, arr, airline, number)
	if minutes > 0 {
		s.DurationMinutes = minutes
	}
	s.local = true
	return s
}

// FlightOffer is a bookable itinerary at a price, normalized across backends.
type FlightOffer struct {
	ID                   string          `json:"id"`
	Price                float64         `json:"price"`
	Currency             string          `json:"currency"`
	CabinClass           CabinClass      `json:"cabin_class"`
	Airline              string          `json:"airline"`
	OutboundSegments     []FlightSegment `json:"outbound_segments"`
	ReturnSegments       []FlightSegment `json:"return_segments,omitempty"`
	TotalDurationMinutes int             `json:"total_duration_minutes"`
	Stops                int             `json:"stops"`
	IsDirect             bool            `json:"is_direct"`
	Source               string          `json:"source"`
	BookingURL           *string         `json:"booking_url,omitempty"`
	VirtualInterlining   bool            `json:"virtual_interlining"`
}

// PricePoint is the cheapest known price for a single departure day.
type PricePoint struct {
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

var (
	errNoOutbound    = errors.New("offer has no outbound segments")
	errNegativePrice = errors.New("offer price is negative")
	errMissingTime   = errors.New("segment has no departure or arrival time")
)

// Normalize fills the fields derived from the segments.
func (o *FlightOffer) Normalize() {
	o.Stops = len(o.OutboundSegments) - 1
	if o.Stops < 0 {
		o.Stops = 0
	}
	o.IsDirect = len(o.OutboundSegments) == 1
	if o.Airline == "" && len(o.OutboundSegments) > 0 {
		o.Airline = o.OutboundSegments[0].Airline
	}
	if o.TotalDurationMinutes == 0 {
		o.TotalDurationMinutes = itineraryMinutes(o.OutboundSegments) + itineraryMinutes(o.ReturnSegments)
	}
	if o.CabinClass == "" {
		o.CabinClass = CabinEconomy
	}
	if o.ID == "" {
		o.ID = o.Source + "-" + uuid.New().String()
	}
}

// Validate reports the first broken invariant of the offer.
func (o FlightOffer) Validate() error {
	if o.Price < 0 {
		return errNegativePrice
	}
	if len(o.OutboundSegments) == 0 {
		return errNoOutbound
	}
	if err := validateItinerary(o.OutboundSegments); err != nil {
		return fmt.Errorf("outbound: %w", err)
	}
	if err := validateItinerary(o.ReturnSegments); err != nil {
		return fmt.Errorf("return: %w", err)
	}
	return nil
}

func validateItinerary(segs []FlightSegment) error {
	for i, s := range segs {
		if s.DepartureTime.IsZero() || s.ArrivalTime.IsZero() {
			return fmt.Errorf("segment %d: %w", i, errMissingTime)
		}
		// Local times at two airports cannot be ordered against each other.
		if (s.local && s.DurationMinutes < 0) || (!s.local && s.ArrivalTime.Before(s.DepartureTime)) {
			return fmt.Errorf("segment %d arrives before it departs", i)
		}
		if i == 0 {
			continue
		}
		prev := segs[i-1]
		if prev.ArrivalAirport != s.DepartureAirport {
			return fmt.Errorf("segment %d departs %s, previous arrives %s", i, s.DepartureAirport, prev.ArrivalAirport)
		}
		// A connection happens at one airport, so even local times compare.
		if s.DepartureTime.Before(prev.ArrivalTime) {
			return fmt.Errorf("segment %d departs before segment %d arrives", i, i-1)
		}
	}
	return nil
}

// itineraryMinutes adds flying time and layovers. Layovers are measured at a
// single airport, which keeps the sum right for local times too.
func itineraryMinutes(segs []FlightSegment) int {
	total := 0
	for i, s := range segs {
		total += s.DurationMinutes
		if i > 0 {
			total += minutesBetween(segs[i-1].ArrivalTime, s.DepartureTime)
		}
	}
	return total
}

func minutesBetween(from, to time.Time) int {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return int(to.Sub(from).Minutes())
}
