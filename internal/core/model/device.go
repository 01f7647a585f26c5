package model

import (
	"net/netip"
	"strings"
	"time"

	"tkgateway/internal/core/geo"
)

// Device is the registry record of one tracker. The gateway reads it to
// authorize and enrich a decode, and writes back connectivity and last-state
// fields afterwards.
type Device struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	DeviceID    string    `json:"deviceId"`
	UniqueID    string    `json:"uniqueId"`
	Description string    `json:"description,omitempty"`
	AllowedIPs  []string  `json:"allowedIps,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	LastIPAddress   string `json:"lastIpAddress,omitempty"`
	LastPort        int    `json:"lastPort,omitempty"`
	LastConnectTime int64  `json:"lastConnectTime,omitempty"`
	ServerID        string `json:"serverId,omitempty"`

	LastValidLatitude  float64 `json:"lastValidLatitude"`
	LastValidLongitude float64 `json:"lastValidLongitude"`
	LastGPSTimestamp   int64   `json:"lastGpsTimestamp"`
	LastOdometerKM     float64 `json:"lastOdometerKm"`
	OdometerOffsetKM   float64 `json:"odometerOffsetKm"`
	LastInputMask      int64   `json:"lastInputMask"`
	GeozoneID          string  `json:"geozoneId,omitempty"`
	LastEventTime      int64   `json:"lastEventTime"`
}

func NewDevice(accountID, deviceID, uniqueID string) *Device {
	return &Device{
		ID:        accountID + "/" + deviceID,
		AccountID: accountID,
		DeviceID:  deviceID,
		UniqueID:  uniqueID,
		CreatedAt: time.Now(),
	}
}

// Clone returns a copy that can be mutated without touching d.
func (d *Device) Clone() *Device {
	c := *d
	if d.AllowedIPs != nil {
		c.AllowedIPs = append([]string(nil), d.AllowedIPs...)
	}
	return &c
}

// IsValidIPAddress reports whether ip may report for this device. An empty
// allow-list or an unknown peer address is accepted. Entries are either
// exact addresses or CIDR prefixes.
func (d *Device) IsValidIPAddress(ip string) bool {
	if len(d.AllowedIPs) == 0 || ip == "" {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range d.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if allowed, err := netip.ParseAddr(entry); err == nil && allowed.Unmap() == addr {
			return true
		}
	}
	return false
}

// LastValidLocation returns the last stored valid fix, which may itself be
// invalid when the device never reported one.
func (d *Device) LastValidLocation() geo.Point {
	return geo.Point{Latitude: d.LastValidLatitude, Longitude: d.LastValidLongitude}
}

func (d *Device) SetLastValidLocation(p geo.Point, ts int64) {
	d.LastValidLatitude = p.Latitude
	d.LastValidLongitude = p.Longitude
	d.LastGPSTimestamp = ts
}

// IsNearLastValidLocation reports whether p lies within meters of the last
// valid fix. A non-positive radius or a missing last fix is never near.
func (d *Device) IsNearLastValidLocation(p geo.Point, meters float64) bool {
	if meters <= 0 {
		return false
	}
	last := d.LastValidLocation()
	if !last.IsValid() || !p.IsValid() {
		return false
	}
	return last.MetersTo(p) < meters
}

// NextOdometerKM returns the last odometer advanced by the distance from the
// last valid fix to p.
func (d *Device) NextOdometerKM(p geo.Point) float64 {
	last := d.LastValidLocation()
	if !last.IsValid() || !p.IsValid() {
		return d.LastOdometerKM
	}
	return d.LastOdometerKM + last.KilometersTo(p)
}

// AdjustOdometerKM applies the device odometer offset to a reported value.
// Values that would move the odometer backwards keep the last value.
func (d *Device) AdjustOdometerKM(odomKM float64) float64 {
	v := odomKM + d.OdometerOffsetKM
	if v < 0 || v < d.LastOdometerKM {
		return d.LastOdometerKM
	}
	return v
}

// GeozoneTransition is one simulated arrive or depart.
type GeozoneTransition struct {
	Timestamp  int64
	StatusCode int
	GeozoneID  string
}

// CheckGeozoneTransitions compares the stored geozone membership against the
// zone containing p and returns the departure from the old zone followed by
// the arrival in the new one. The stored membership is updated.
func (d *Device) CheckGeozoneTransitions(ts int64, p geo.Point, zones []*Geozone) []GeozoneTransition {
	var inside *Geozone
	for _, z := range zones {
		if z.Contains(p) {
			inside = z
			break
		}
	}
	newID := ""
	if inside != nil {
		newID = inside.ID
	}
	if newID == d.GeozoneID {
		return nil
	}

	var out []GeozoneTransition
	if d.GeozoneID != "" {
		out = append(out, GeozoneTransition{Timestamp: ts, StatusCode: StatusGeofenceDepart, GeozoneID: d.GeozoneID})
	}
	if newID != "" {
		out = append(out, GeozoneTransition{Timestamp: ts, StatusCode: StatusGeofenceArrive, GeozoneID: newID})
	}
	d.GeozoneID = newID
	return out
}
