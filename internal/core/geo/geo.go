// Package geo provides the small amount of spherical geometry the gateway
// needs: point validity, great-circle distance and initial bearing.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used for distance estimates.
const EarthRadiusMeters = 6371008.8

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

// IsValid reports whether lat/lon is a usable fix. The poles, the
// antimeridian sentinels and the 0/0 origin are rejected.
func IsValid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat <= -90 || lat >= 90 || lon <= -180 || lon >= 180 {
		return false
	}
	return !(math.Abs(lat) < 0.0001 && math.Abs(lon) < 0.0001)
}

// IsValid reports whether p is a usable fix.
func (p Point) IsValid() bool {
	return IsValid(p.Latitude, p.Longitude)
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }
func degrees(rad float64) float64 { return rad * 180.0 / math.Pi }

// MetersTo returns the haversine distance from p to q.
func (p Point) MetersTo(q Point) float64 {
	lat1, lat2 := radians(p.Latitude), radians(q.Latitude)
	dLat := lat2 - lat1
	dLon := radians(q.Longitude - p.Longitude)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// KilometersTo returns the distance from p to q in kilometers.
func (p Point) KilometersTo(q Point) float64 {
	return p.MetersTo(q) / 1000.0
}

// HeadingTo returns the initial bearing from p to q in degrees [0,360).
func (p Point) HeadingTo(q Point) float64 {
	lat1, lat2 := radians(p.Latitude), radians(q.Latitude)
	dLon := radians(q.Longitude - p.Longitude)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	h := math.Mod(degrees(math.Atan2(y, x))+360.0, 360.0)
	return h
}
