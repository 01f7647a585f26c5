// Package tk103 decodes the two TK103 report formats that are not covered by
// the legacy TK102 grammar: the comma-delimited "imei:" reports (TK103-2)
// and the fixed-width parenthesized reports (TK103-3).
package tk103

import (
	"strings"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/nmea"
)

const (
	Protocol   = "tk103-2"
	minFields  = 12
	imeiPrefix = "imei:"
)

// Decoder handles TK103-2 reports such as
//
//	imei:123451042191239,tracker,1107090553,9735551234,F,215314.000,A,4103.7641,N,14244.9450,W,0.08,;
//
// Field 2 holds the local date and time, field 5 the GMT time of day.
type Decoder struct {
	opts protocol.Options
}

func NewDecoder(opts protocol.Options) *Decoder {
	return &Decoder{opts: opts}
}

func (d *Decoder) Decode(frame string, modemID string) (*protocol.Result, error) {
	fld := protocol.Fields(frame)
	if len(fld) < minFields {
		return nil, errors.Wrapf(protocol.ErrTooFewFields, "tk103-2: %d fields", len(fld))
	}

	frameID := ""
	if strings.HasPrefix(fld[0], imeiPrefix) {
		frameID = fld[0][len(imeiPrefix):]
	}
	id, err := protocol.ResolveModemID(frameID, modemID)
	if err != nil {
		return nil, errors.Wrap(err, "tk103-2")
	}

	rec := model.NewTelemetry(id, Protocol)

	var locYMDhm int64
	if len(fld[2]) >= 10 {
		locYMDhm = nmea.ParseInt(fld[2][:10], 0)
	}
	gmtHMS := nmea.ParseInt(fld[5], 0)
	rec.Timestamp = d.opts.Timestamp(nmea.UTCSecondsLocalGMT(locYMDhm*100, gmtHMS, d.opts.Clock()))

	valid := strings.EqualFold(fld[6], "A")
	protocol.SetFix(rec, valid, fld[7], fld[8], fld[9], fld[10])
	if valid {
		if knots := nmea.ParseFloat(fld[11], -1); knots >= 0 {
			rec.SpeedKPH = knots * protocol.KilometersPerKnot
		}
		if len(fld) > 12 {
			rec.Heading = nmea.ParseFloat(fld[12], -1)
		}
	}

	rec.EventCode = strings.TrimSuffix(strings.TrimSpace(fld[1]), "!")

	// An unknown heading stays negative so it can be derived from the track.
	d.opts.ApplyMinSpeed(rec, false)
	rec.StatusCode = d.opts.StatusCode(rec.EventCode)

	return &protocol.Result{ModemID: id, Record: rec}, nil
}
