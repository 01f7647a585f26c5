package model

import "tkgateway/internal/core/geo"

// Geozone is a circular region used for arrive/depart simulation. An empty
// AccountID makes the zone visible to every account.
type Geozone struct {
	ID          string  `json:"id" yaml:"id"`
	AccountID   string  `json:"accountId,omitempty" yaml:"account_id"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Latitude    float64 `json:"latitude" yaml:"latitude"`
	Longitude   float64 `json:"longitude" yaml:"longitude"`
	RadiusM     float64 `json:"radiusM" yaml:"radius_m"`
}

func (z *Geozone) Center() geo.Point {
	return geo.Point{Latitude: z.Latitude, Longitude: z.Longitude}
}

// Contains reports whether p is inside the zone.
func (z *Geozone) Contains(p geo.Point) bool {
	if z.RadiusM <= 0 || !p.IsValid() {
		return false
	}
	return z.Center().MetersTo(p) <= z.RadiusM
}
