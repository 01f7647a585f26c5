// Package protocol holds the contract shared by the TK10x dialect decoders.
package protocol

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"tkgateway/internal/core/geo"
	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol/nmea"
)

// KilometersPerKnot converts knots to km/h.
const KilometersPerKnot = 1.852

var (
	ErrTooFewFields       = errors.New("too few fields")
	ErrMissingModemID     = errors.New("modem id is missing")
	ErrUnsupportedMessage = errors.New("unsupported message type")
	ErrShortPacket        = errors.New("unexpected packet length")
	ErrUnsupported        = errors.New("dialect decoding not supported")
)

// Result is the outcome of one decode. Record is nil for frames that only
// carry identity or need an acknowledgment. ModemID is the identity the
// session should keep for later frames.
type Result struct {
	ModemID string
	Record  *model.Telemetry
	Ack     []byte
}

// StatusTable maps a raw device event code to a status code.
type StatusTable interface {
	Translate(eventCode string) (int, bool)
}

// StatusMap is a StatusTable backed by a map.
type StatusMap map[string]int

func (m StatusMap) Translate(eventCode string) (int, bool) {
	code, ok := m[eventCode]
	return code, ok
}

// Options configure every decoder.
type Options struct {
	MinSpeedKPH float64
	Codes       StatusTable
	Now         func() time.Time
}

// Clock returns the current time, honouring an injected clock.
func (o Options) Clock() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Timestamp returns ts, or the current time when ts is undetermined.
func (o Options) Timestamp(ts int64) int64 {
	if ts <= 0 {
		return o.Clock().Unix()
	}
	return ts
}

// LookupStatus translates eventCode through the injected table. Blank codes
// and codes without an entry are reported as not found.
func (o Options) LookupStatus(eventCode string) (int, bool) {
	if o.Codes == nil || strings.TrimSpace(eventCode) == "" {
		return 0, false
	}
	return o.Codes.Translate(eventCode)
}

// StatusCode translates eventCode, defaulting to StatusLocation.
func (o Options) StatusCode(eventCode string) int {
	if code, ok := o.LookupStatus(eventCode); ok {
		return code
	}
	return model.StatusLocation
}

// ApplyMinSpeed suppresses jitter: below the minimum speed both speed and
// heading are forced to zero. Otherwise an unknown heading is left alone
// unless clampHeading is set.
func (o Options) ApplyMinSpeed(rec *model.Telemetry, clampHeading bool) {
	if rec.SpeedKPH < o.MinSpeedKPH {
		rec.SpeedKPH = 0
		rec.Heading = 0
		return
	}
	if clampHeading && rec.Heading < 0 {
		rec.Heading = 0
	}
}

// SetFix stores the position on rec. Coordinates are parsed only for a
// valid fix; an out of range position demotes the fix to invalid.
func SetFix(rec *model.Telemetry, valid bool, lat, latHemi, lon, lonHemi string) {
	rec.Valid = false
	rec.Latitude, rec.Longitude = 0, 0
	if !valid {
		return
	}
	la := nmea.ParseLatitude(lat, latHemi)
	lo := nmea.ParseLongitude(lon, lonHemi)
	if !geo.IsValid(la, lo) {
		return
	}
	rec.Valid = true
	rec.Latitude, rec.Longitude = la, lo
}

// ResolveModemID applies sticky identity: the frame value wins, then the
// session value.
func ResolveModemID(frameID, sessionID string) (string, error) {
	if id := strings.TrimSpace(frameID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(sessionID); id != "" {
		return id, nil
	}
	return "", ErrMissingModemID
}

// Fields splits a frame on commas.
func Fields(frame string) []string {
	return strings.Split(frame, ",")
}
