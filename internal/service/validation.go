package service

import "strings"

type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

const (
	ErrInvalidOrigin         ValidationError = "origin must be a 3-letter IATA code"
	ErrInvalidDestination    ValidationError = "destination must be a 3-letter IATA code"
	ErrMissingDepartureDate  ValidationError = "departure_date is required"
	ErrReturnBeforeDeparture ValidationError = "return_date must not be before departure_date"
	ErrInvalidPassengers     ValidationError = "passengers must be between 1 and 9"
	ErrInvalidMonth          ValidationError = "month must be between 1 and 12"
	ErrInvalidDateRange      ValidationError = "date_to must not be before date_from"
	ErrTooFewLegs            ValidationError = "multi-city search needs at least two legs"
	ErrInvalidLeg            ValidationError = "every leg needs 3-letter IATA from and to codes"
)

// Validate checks the shape of the request only. Codes must already be
// normalized.
func (r SearchRequest) Validate() error {
	if !isIATA(r.Origin) {
		return ErrInvalidOrigin
	}
	if !isIATA(r.Destination) {
		return ErrInvalidDestination
	}
	if r.DepartureDate.IsZero() {
		return ErrMissingDepartureDate
	}
	if r.ReturnDate != nil && r.ReturnDate.Before(r.DepartureDate) {
		return ErrReturnBeforeDeparture
	}
	return validPassengers(r.Passengers)
}

func validPassengers(n int) error {
	if n < 1 || n > maxPassengers {
		return ErrInvalidPassengers
	}
	return nil
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func isIATA(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
