package model

import (
	"time"

	"tkgateway/internal/core/geo"
)

// Sentinels for values a dialect did not supply.
const (
	UnknownSpeed   = -1.0
	UnknownHeading = -1.0
	NoInputMask    = int64(-1)
)

// Telemetry is the normalized output of every dialect decoder.
type Telemetry struct {
	DeviceID   string  `json:"deviceId"`
	Timestamp  int64   `json:"timestamp"`
	Valid      bool    `json:"valid"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	SpeedKPH   float64 `json:"speedKph"`
	Heading    float64 `json:"heading"`
	AltitudeM  float64 `json:"altitudeM"`
	OdometerKM float64 `json:"odometerKm"`
	BatteryV   float64 `json:"batteryV"`
	InputMask  int64   `json:"inputMask"`
	EventCode  string  `json:"eventCode,omitempty"`
	StatusCode int     `json:"statusCode"`

	Satellites    int    `json:"satellites,omitempty"`
	Charging      bool   `json:"charging,omitempty"`
	VehicleStatus int64  `json:"vehicleStatus,omitempty"`
	Cell          *Cell  `json:"cell,omitempty"`
	Protocol      string `json:"protocol"`
}

// Cell is the serving cell tower reported alongside some fixes.
type Cell struct {
	MCC int `json:"mcc"`
	MNC int `json:"mnc"`
	LAC int `json:"lac"`
	CID int `json:"cid"`
}

// NewTelemetry returns a record with every optional value unset.
func NewTelemetry(deviceID, protocol string) *Telemetry {
	return &Telemetry{
		DeviceID:   deviceID,
		SpeedKPH:   UnknownSpeed,
		Heading:    UnknownHeading,
		InputMask:  NoInputMask,
		StatusCode: StatusLocation,
		Protocol:   protocol,
	}
}

// Time returns the fix time.
func (t *Telemetry) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// HasFix reports whether the record carries a usable position. Coordinates
// of an invalid record are never used, whatever their value.
func (t *Telemetry) HasFix() bool {
	return t.Valid
}

// Point returns the fix position.
func (t *Telemetry) Point() geo.Point {
	return geo.Point{Latitude: t.Latitude, Longitude: t.Longitude}
}

// HasInputMask reports whether the dialect supplied a digital input state.
func (t *Telemetry) HasInputMask() bool {
	return t.InputMask >= 0
}
