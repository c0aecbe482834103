package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/you/go-flightshark/internal/providers"
)

// Signature identifies the same physical itinerary across providers: primary
// airline plus flight number and departure instant of every segment.
func Signature(o providers.FlightOffer) string {
	parts := make([]string, 0, 1+len(o.OutboundSegments)+len(o.ReturnSegments))
	parts = append(parts, o.Airline)
	for _, s := range o.OutboundSegments {
		parts = append(parts, s.FlightNumber+"-"+s.DepartureTime.UTC().Format(time.RFC3339))
	}
	for _, s := range o.ReturnSegments {
		parts = append(parts, s.FlightNumber+"-"+s.DepartureTime.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, "|")
}

// Deduplicate keeps the first offer seen for each signature.
func Deduplicate(offers []providers.FlightOffer) []providers.FlightOffer {
	seen := make(map[string]struct{}, len(offers))
	out := make([]providers.FlightOffer, 0, len(offers))
	for _, o := range offers {
		sig := Signature(o)
		if _, ok := seen[sig]; ok {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, o)
	}
	return out
}

// DeduplicateCheapest keeps the lowest-priced offer for each signature. On a
// price tie the earlier offer stays.
func DeduplicateCheapest(offers []providers.FlightOffer) []providers.FlightOffer {
	index := make(map[string]int, len(offers))
	out := make([]providers.FlightOffer, 0, len(offers))
	for _, o := range offers {
		sig := Signature(o)
		if i, ok := index[sig]; ok {
			if o.Price < out[i].Price {
				out[i] = o
			}
			continue
		}
		index[sig] = len(out)
		out = append(out, o)
	}
	return out
}

// SortByPrice orders offers by ascending price, keeping input order on ties.
func SortByPrice(offers []providers.FlightOffer) []providers.FlightOffer {
	sort.SliceStable(offers, func(i, j int) bool { return offers[i].Price < offers[j].Price })
	return offers
}
