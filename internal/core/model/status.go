package model

import "fmt"

// Status codes. The numbering follows the GTS status-code space so event
// tables exported from existing installations keep their meaning.
const (
	StatusIgnore = -1
	StatusNone   = 0x0000

	StatusLocation          = 0xF020
	StatusMotionInMotion    = 0xF113
	StatusMotionExcessSpeed = 0xF11A

	StatusGeofenceArrive = 0xF210
	StatusGeoboundsEnter = 0xF220
	StatusGeofenceDepart = 0xF230
	StatusGeoboundsExit  = 0xF240

	StatusPowerOff    = 0xF603
	StatusPanicOn     = 0xF831
	StatusIntrusionOn = 0xF851

	StatusInputOn00  = 0xFA00
	StatusInputOff00 = 0xFC00
)

// MaxInputBits is the number of digital inputs with dedicated status codes.
const MaxInputBits = 16

var statusNames = map[int]string{
	StatusIgnore:            "Ignore",
	StatusNone:              "None",
	StatusLocation:          "Location",
	StatusMotionInMotion:    "InMotion",
	StatusMotionExcessSpeed: "Speeding",
	StatusGeofenceArrive:    "Arrive",
	StatusGeoboundsEnter:    "Enter",
	StatusGeofenceDepart:    "Depart",
	StatusGeoboundsExit:     "Exit",
	StatusPowerOff:          "PowerOff",
	StatusPanicOn:           "Panic",
	StatusIntrusionOn:       "Intrusion",
}

// InputStatusCode returns the input-on or input-off status code for bit.
func InputStatusCode(bit int, on bool) int {
	if on {
		return StatusInputOn00 + bit
	}
	return StatusInputOff00 + bit
}

// StatusDescription returns a short name for code, used in logs and
// forwarded payloads.
func StatusDescription(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	switch {
	case code >= StatusInputOn00 && code < StatusInputOn00+MaxInputBits:
		return fmt.Sprintf("InputOn_%02d", code-StatusInputOn00)
	case code >= StatusInputOff00 && code < StatusInputOff00+MaxInputBits:
		return fmt.Sprintf("InputOff_%02d", code-StatusInputOff00)
	}
	return fmt.Sprintf("0x%04X", code)
}
