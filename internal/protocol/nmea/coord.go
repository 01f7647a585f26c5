package nmea

// Sentinel returned by the float parser for an unparseable coordinate.
const invalidCoordinate = 99999.0

// Values returned for coordinates that could not be parsed. Both are
// rejected by geo.IsValid.
const (
	InvalidLatitude  = 90.0
	InvalidLongitude = 180.0
)

// ParseLatitude converts a DDmm.mmmm latitude and its hemisphere letter into
// signed decimal degrees. "S" negates the value.
func ParseLatitude(s, hemi string) float64 {
	v := ParseFloat(s, invalidCoordinate)
	if v >= invalidCoordinate {
		return InvalidLatitude
	}
	lat := degreesMinutes(v)
	if hemi == "S" {
		return -lat
	}
	return lat
}

// ParseLongitude converts a DDDmm.mmmm longitude and its hemisphere letter
// into signed decimal degrees. "W" negates the value.
func ParseLongitude(s, hemi string) float64 {
	v := ParseFloat(s, invalidCoordinate)
	if v >= invalidCoordinate {
		return InvalidLongitude
	}
	lon := degreesMinutes(v)
	if hemi == "W" {
		return -lon
	}
	return lon
}

func degreesMinutes(v float64) float64 {
	deg := float64(int64(v) / 100)
	return deg + (v-deg*100.0)/60.0
}
