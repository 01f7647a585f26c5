// Package tk102 decodes the legacy compact-ASCII reports of TK102 and
// TK103-1 trackers, which embed a GPRMC sentence next to an "imei:" field.
package tk102

import (
	"strings"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/nmea"
)

const (
	Protocol   = "tk102"
	minFields  = 15
	imeiPrefix = "imei:"
	gprmcTag   = "GPRMC"
	maxSats    = 13
)

var (
	ErrNoGPRMC    = errors.New("GPRMC not found")
	ErrShortGPRMC = errors.New("insufficient GPRMC fields")
)

type Decoder struct {
	opts protocol.Options
}

func NewDecoder(opts protocol.Options) *Decoder {
	return &Decoder{opts: opts}
}

// Decode parses one frame. modemID is the identity already learned by the
// session and is used when the frame does not carry one. A frame whose
// identity was read but whose GPRMC part is unusable returns both the
// identity and an error.
func (d *Decoder) Decode(frame string, modemID string) (*protocol.Result, error) {
	fld := protocol.Fields(frame)
	if len(fld) < minFields {
		return nil, errors.Wrapf(protocol.ErrTooFewFields, "tk102: %d fields", len(fld))
	}

	imeiNdx := -1
	frameID := ""
	for i, f := range fld {
		if strings.HasPrefix(f, imeiPrefix) {
			frameID = strings.TrimSpace(f[len(imeiPrefix):])
			imeiNdx = i
			break
		}
	}
	id, err := protocol.ResolveModemID(frameID, modemID)
	if err != nil {
		return nil, errors.Wrap(err, "tk102")
	}

	gpx := 0
	for gpx < len(fld) && !strings.EqualFold(fld[gpx], gprmcTag) {
		gpx++
	}
	if gpx >= len(fld) {
		return &protocol.Result{ModemID: id}, ErrNoGPRMC
	}
	if gpx+12 >= len(fld) {
		return &protocol.Result{ModemID: id}, ErrShortGPRMC
	}

	rec := model.NewTelemetry(id, Protocol)
	hms := nmea.ParseInt(fld[gpx+1], 0)
	dmy := nmea.ParseInt(fld[gpx+9], 0)
	rec.Timestamp = d.opts.Timestamp(nmea.UTCSecondsDMYHMS(dmy, hms, d.opts.Clock()))

	valid := strings.EqualFold(fld[gpx+2], "A")
	protocol.SetFix(rec, valid, fld[gpx+3], fld[gpx+4], fld[gpx+5], fld[gpx+6])
	if valid {
		knots := nmea.ParseFloat(fld[gpx+7], -1)
		if knots >= 0 {
			rec.SpeedKPH = knots * protocol.KilometersPerKnot
		}
		rec.Heading = nmea.ParseFloat(fld[gpx+8], -1)
	} else {
		rec.SpeedKPH = 0
		rec.Heading = 0
	}

	field := func(off int) string {
		if imeiNdx < 0 || imeiNdx+off >= len(fld) {
			return ""
		}
		return strings.TrimSpace(fld[imeiNdx+off])
	}
	rec.Satellites = int(nmea.ParseInt(field(1), 0))
	if rec.Satellites > maxSats {
		rec.Satellites = 0
	}
	rec.AltitudeM = nmea.ParseFloat(field(2), 0)
	if batt := field(3); strings.HasPrefix(batt, "F:") || strings.HasPrefix(batt, "L:") {
		rec.BatteryV = nmea.ParseFloat(batt[2:], 0)
	}
	rec.Charging = field(4) == "1"
	if field(7) != "" {
		rec.Cell = &model.Cell{
			MCC: int(nmea.ParseInt(field(7), 0)),
			MNC: int(nmea.ParseInt(field(8), 0)),
			LAC: int(nmea.ParseHex(field(9), 0)),
			CID: int(nmea.ParseHex(field(10), 0)),
		}
	}

	if gpx+14 < len(fld) {
		rec.EventCode = strings.TrimSpace(fld[gpx+14])
	}

	d.opts.ApplyMinSpeed(rec, true)
	rec.StatusCode = d.opts.StatusCode(rec.EventCode)

	return &protocol.Result{ModemID: id, Record: rec}, nil
}
