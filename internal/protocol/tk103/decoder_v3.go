package tk103

import (
	"strings"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/protocol"
	"tkgateway/internal/protocol/nmea"
)

const ProtocolV3 = "tk103-3"

// TK103-3 message types
const (
	msgHandshake = "BP00"
	msgLogin     = "BP05"
	msgFeedback  = "BR00"
	msgContinue  = "BR02"
	msgAnswer    = "BP04"
	msgAlarm     = "BO01"
)

const (
	headerLen   = 17 // "(" + 12 digit run number + 4 character type
	identityLen = 15
	bodyLen     = 62
	ackSuffix   = "AP01HSO"
)

// Alarm codes carried by BO01 when the status table has no entry.
var alarmStatus = map[byte]int{
	'0': model.StatusPowerOff,
	'1': model.StatusGeoboundsEnter,
	'2': model.StatusPanicOn,
	'3': model.StatusIntrusionOn,
	'4': model.StatusLocation,
	'5': model.StatusMotionExcessSpeed,
	'6': model.StatusGeoboundsExit,
}

// DecoderV3 handles the parenthesized TK103-3 reports:
//
//	(<run:12><type:4><payload>)
//
// Telemetry carrying types share a 62 byte fixed layout starting right after
// the type (BR00, BR02, BP04) or after a one byte alarm code (BO01).
type DecoderV3 struct {
	opts protocol.Options
}

func NewDecoderV3(opts protocol.Options) *DecoderV3 {
	return &DecoderV3{opts: opts}
}

// HandshakeAck returns the acknowledgment for a BP00 handshake.
func HandshakeAck(runNumber string) []byte {
	return []byte("(" + runNumber + ackSuffix + ")")
}

func (d *DecoderV3) Decode(frame string, modemID string) (*protocol.Result, error) {
	if !strings.HasPrefix(frame, "(") {
		return nil, errors.Wrap(protocol.ErrUnsupportedMessage, "tk103-3: missing '('")
	}
	if len(frame) < headerLen {
		return nil, errors.Wrapf(protocol.ErrShortPacket, "tk103-3: %d bytes", len(frame))
	}

	closing := 0
	if strings.HasSuffix(frame, ")") {
		closing = 1
	}
	runNumber := frame[1:13]
	msgType := frame[13:17]

	var g int
	eventCode := ""
	switch msgType {
	case msgHandshake:
		return &protocol.Result{ModemID: modemID, Ack: HandshakeAck(runNumber)}, nil
	case msgLogin:
		if len(frame) < headerLen+identityLen {
			return nil, errors.Wrapf(protocol.ErrShortPacket, "tk103-3 %s: %d bytes", msgType, len(frame))
		}
		id, err := protocol.ResolveModemID(frame[headerLen:headerLen+identityLen], modemID)
		if err != nil {
			return nil, errors.Wrap(err, "tk103-3")
		}
		return &protocol.Result{ModemID: id}, nil
	case msgFeedback, msgContinue, msgAnswer:
		g = headerLen
	case msgAlarm:
		if len(frame) > headerLen {
			eventCode = frame[headerLen : headerLen+1]
		}
		g = headerLen + 1
	default:
		return nil, errors.Wrapf(protocol.ErrUnsupportedMessage, "tk103-3: %q", msgType)
	}

	if want := g + bodyLen + closing; len(frame) < want {
		return nil, errors.Wrapf(protocol.ErrShortPacket, "tk103-3 %s: %d bytes, expected %d", msgType, len(frame), want)
	}
	id, err := protocol.ResolveModemID("", modemID)
	if err != nil {
		return nil, errors.Wrap(err, "tk103-3")
	}

	body := frame[g : g+bodyLen]
	rec := model.NewTelemetry(id, ProtocolV3)
	rec.EventCode = eventCode
	rec.Timestamp = d.opts.Timestamp(nmea.UTCSecondsYMD(body[0:6], body[33:39]))

	valid := strings.EqualFold(body[6:7], "A")
	protocol.SetFix(rec, valid, body[7:16], body[16:17], body[17:27], body[27:28])
	rec.SpeedKPH = nmea.ParseFloat(body[28:33], 0)
	rec.Heading = nmea.ParseFloat(body[39:45], 0)
	rec.InputMask = parseGPIO(body[45:53])
	if strings.EqualFold(body[53:54], "L") {
		rec.OdometerKM = float64(nmea.ParseHex(body[54:62], 0)) / 1000.0
	}

	d.opts.ApplyMinSpeed(rec, true)
	rec.StatusCode = d.alarmStatusCode(eventCode)

	return &protocol.Result{ModemID: id, Record: rec}, nil
}

// parseGPIO reads the 8 character GPIO field. The last character is bit 0;
// any character other than '0' sets its bit.
func parseGPIO(s string) int64 {
	if len(s) < 8 {
		return model.NoInputMask
	}
	var mask int64
	for i := 0; i < 8; i++ {
		if s[7-i] != '0' {
			mask |= 1 << i
		}
	}
	return mask
}

func (d *DecoderV3) alarmStatusCode(eventCode string) int {
	if strings.TrimSpace(eventCode) == "" {
		return model.StatusLocation
	}
	if code, ok := d.opts.LookupStatus(eventCode); ok {
		return code
	}
	if code, ok := alarmStatus[eventCode[0]]; ok {
		return code
	}
	return model.StatusLocation
}
