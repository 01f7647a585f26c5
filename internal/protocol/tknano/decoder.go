// Package tknano decodes reports of the TK-nano family. The ASCII variant
// (TKnano-1) is an H02 style "*HQ" sentence; the binary variant (TKnano-2)
// is framed but not decoded.
package tknano

import (
	"strings"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/nmea"
)

const (
	Protocol       = "tknano-1"
	ProtocolBinary = "tknano-2"

	startSequence = "*"
	terminator    = "#"
	minFields     = 13

	// BinaryPacketLength is the fixed frame size of TKnano-2.
	BinaryPacketLength = 32
)

// Vehicle status bits of the TKnano-1 status word. The device reports them
// inverted: a cleared bit means the condition is active.
const (
	StatusACC       = 0x0001
	StatusEngine    = 0x0002
	StatusOnBattery = 0x0008
	StatusSensor1   = 0x0010
	StatusSensor2   = 0x0020
)

// Decoder handles TKnano-1 reports:
//
//	*HQ,<id>,<cmd>,<hhmmss>,<A|V>,<lat>,<N|S>,<lon>,<E|W>,<knots>,<heading>,<ddmmyy>,<status>#
type Decoder struct {
	opts protocol.Options
}

func NewDecoder(opts protocol.Options) *Decoder {
	return &Decoder{opts: opts}
}

func (d *Decoder) Decode(frame string, modemID string) (*protocol.Result, error) {
	if !strings.HasPrefix(frame, startSequence) {
		return nil, errors.Wrap(protocol.ErrUnsupportedMessage, "tknano: missing '*'")
	}
	fld := protocol.Fields(strings.TrimSuffix(frame, terminator))
	if len(fld) < minFields {
		return nil, errors.Wrapf(protocol.ErrTooFewFields, "tknano: %d fields", len(fld))
	}

	id, err := protocol.ResolveModemID(fld[1], modemID)
	if err != nil {
		return nil, errors.Wrap(err, "tknano")
	}

	rec := model.NewTelemetry(id, Protocol)
	rec.EventCode = strings.TrimSpace(fld[2])

	hms := nmea.ParseInt(fld[3], 0)
	dmy := nmea.ParseInt(fld[11], 0)
	rec.Timestamp = d.opts.Timestamp(nmea.UTCSecondsDMY(dmy, hms))

	protocol.SetFix(rec, strings.EqualFold(fld[4], "A"), fld[5], fld[6], fld[7], fld[8])
	rec.SpeedKPH = nmea.ParseFloat(fld[9], 0) * protocol.KilometersPerKnot
	rec.Heading = nmea.ParseFloat(fld[10], 0)
	rec.VehicleStatus = nmea.ParseHex(fld[12], 0)

	d.opts.ApplyMinSpeed(rec, true)
	rec.StatusCode = d.opts.StatusCode(rec.EventCode)

	return &protocol.Result{ModemID: id, Record: rec}, nil
}

// VehicleStatusActive reports whether the inverted status bit is active.
func VehicleStatusActive(status int64, bit int64) bool {
	return status&bit == 0
}

// DecodeBinary accepts a TKnano-2 frame. The binary grammar is not
// implemented, so every frame is reported as unsupported and no
// acknowledgment is produced.
func DecodeBinary(frame []byte) error {
	return errors.Wrapf(protocol.ErrUnsupported, "%s: %d byte frame", ProtocolBinary, len(frame))
}
