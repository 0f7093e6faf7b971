package session

import "context"

// Location is an approximate visitor location from IP geolocation.
type Location struct {
	Country     string  `json:"country"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryName string  `json:"countryName"`
}

// Locator resolves an IP address to a location. It returns nil without error
// when the address is private, unknown, or the lookup service declines.
type Locator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// Locatable reports whether ip is worth a geolocation lookup.
func Locatable(ip string) bool {
	switch ip {
	case "", Unknown, "::1", "127.0.0.1":
		return false
	}
	return true
}
