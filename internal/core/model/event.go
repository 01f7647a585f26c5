package model

import (
	"time"

	"tkgateway/internal/core/util"
)

// Event is one persisted status record. (AccountID, DeviceID, Timestamp,
// StatusCode) is unique.
type Event struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	DeviceID   string    `json:"deviceId"`
	UniqueID   string    `json:"uniqueId"`
	Timestamp  int64     `json:"timestamp"`
	StatusCode int       `json:"statusCode"`
	GeozoneID  string    `json:"geozoneId,omitempty"`
	Valid      bool      `json:"valid"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKPH   float64   `json:"speedKph"`
	Heading    float64   `json:"heading"`
	AltitudeM  float64   `json:"altitudeM"`
	OdometerKM float64   `json:"odometerKm"`
	BatteryV   float64   `json:"batteryV"`
	InputMask  int64     `json:"inputMask"`
	Satellites int       `json:"satellites"`
	Protocol   string    `json:"protocol"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EventKey is the uniqueness key of an Event.
type EventKey struct {
	AccountID  string
	DeviceID   string
	Timestamp  int64
	StatusCode int
}

// NewEvent builds an event for device from the kinematic values of rec.
func NewEvent(device *Device, rec *Telemetry, ts int64, statusCode int, geozoneID string) *Event {
	ev := &Event{
		ID:         util.GenerateID(),
		AccountID:  device.AccountID,
		DeviceID:   device.DeviceID,
		UniqueID:   device.UniqueID,
		Timestamp:  ts,
		StatusCode: statusCode,
		GeozoneID:  geozoneID,
		Valid:      rec.Valid,
		SpeedKPH:   rec.SpeedKPH,
		Heading:    rec.Heading,
		AltitudeM:  rec.AltitudeM,
		OdometerKM: rec.OdometerKM,
		BatteryV:   rec.BatteryV,
		InputMask:  rec.InputMask,
		Satellites: rec.Satellites,
		Protocol:   rec.Protocol,
		CreatedAt:  time.Now(),
	}
	if rec.Valid {
		ev.Latitude = rec.Latitude
		ev.Longitude = rec.Longitude
	}
	return ev
}

func (e *Event) Key() EventKey {
	return EventKey{AccountID: e.AccountID, DeviceID: e.DeviceID, Timestamp: e.Timestamp, StatusCode: e.StatusCode}
}

func (e *Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}
