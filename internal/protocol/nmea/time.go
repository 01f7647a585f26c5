package nmea

import "time"

const (
	daySeconds     = int64(24 * 60 * 60)
	halfDaySeconds = int64(12 * 60 * 60)
)

// DayNumber returns the number of days since 1970-01-01 for a proleptic
// Gregorian date. Out of range days roll over into the next month.
func DayNumber(year, month, day int64) int64 {
	yr := year*1000 + ((month-3)*1000)/12
	return (367*yr+625)/1000 - 2*(yr/1000) + yr/4000 - yr/100000 + yr/400000 + day - 719469
}

func validDate(yy, mm, dd int64) bool {
	return yy >= 0 && mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31
}

func validTime(hh, mi, ss int64) bool {
	return hh >= 0 && hh <= 23 && mi >= 0 && mi <= 59 && ss >= 0 && ss <= 59
}

// splitHMS splits an hhmmss integer into its components.
func splitHMS(hms int64) (int64, int64, int64) {
	return (hms / 10000) % 100, (hms / 100) % 100, hms % 100
}

func timeOfDay(hms int64) int64 {
	hh, mi, ss := splitHMS(hms)
	return hh*3600 + mi*60 + ss
}

// UTCSecondsYMD converts "YYMMDD" and "hhmmss" strings into epoch seconds.
// It returns 0 when either value is short or out of range.
func UTCSecondsYMD(yymmdd, hhmmss string) int64 {
	if len(yymmdd) < 6 || len(hhmmss) < 6 {
		return 0
	}
	yy := ParseInt(yymmdd[0:2], -1)
	mm := ParseInt(yymmdd[2:4], -1)
	dd := ParseInt(yymmdd[4:6], -1)
	hh := ParseInt(hhmmss[0:2], -1)
	mi := ParseInt(hhmmss[2:4], -1)
	ss := ParseInt(hhmmss[4:6], -1)
	if !validDate(yy, mm, dd) || !validTime(hh, mi, ss) {
		return 0
	}
	return DayNumber(yy+2000, mm, dd)*daySeconds + hh*3600 + mi*60 + ss
}

// UTCSecondsDMY converts ddmmyy and hhmmss integers into epoch seconds.
// It returns 0 when the date is missing or any component is out of range.
func UTCSecondsDMY(ddmmyy, hhmmss int64) int64 {
	if ddmmyy <= 0 || hhmmss < 0 {
		return 0
	}
	dd := (ddmmyy / 10000) % 100
	mm := (ddmmyy / 100) % 100
	yy := ddmmyy % 100
	hh, mi, ss := splitHMS(hhmmss)
	if !validDate(yy, mm, dd) || !validTime(hh, mi, ss) {
		return 0
	}
	return DayNumber(yy+2000, mm, dd)*daySeconds + hh*3600 + mi*60 + ss
}

// UTCSecondsDMYHMS converts a GPRMC ddmmyy date and hhmmss time into epoch
// seconds. A zero date falls back to UTCSecondsTimeOfDay.
func UTCSecondsDMYHMS(dmy, hms int64, now time.Time) int64 {
	if dmy > 0 {
		return UTCSecondsDMY(dmy, hms)
	}
	return UTCSecondsTimeOfDay(hms, now)
}

// UTCSecondsTimeOfDay places a bare hhmmss GMT time on the current UTC day.
// When the time of day is more than 12 hours away from now, the day is moved
// by exactly one in the direction of the closer midnight.
func UTCSecondsTimeOfDay(hms int64, now time.Time) int64 {
	hh, mi, ss := splitHMS(hms)
	if hms < 0 || !validTime(hh, mi, ss) {
		return 0
	}
	tod := timeOfDay(hms)
	utc := now.Unix()
	day := utc / daySeconds
	return adjustDay(day, utc%daySeconds, tod)*daySeconds + tod
}

// UTCSecondsLocalGMT resolves a YYMMDDhhmmss date/time expressed in the
// device's local timezone together with a separate hhmmss GMT time of day.
// The local date selects the day; the gap between local and GMT times of
// day decides whether GMT has already crossed midnight either way. A zero
// date falls back to UTCSecondsTimeOfDay for the GMT time.
func UTCSecondsLocalGMT(locYMDhms, gmtHMS int64, now time.Time) int64 {
	ymd := locYMDhms / 1000000
	if ymd <= 0 {
		return UTCSecondsTimeOfDay(gmtHMS, now)
	}
	gh, gm, gs := splitHMS(gmtHMS)
	if gmtHMS < 0 || !validTime(gh, gm, gs) {
		return 0
	}
	dd := ymd % 100
	mm := (ymd / 100) % 100
	yy := (ymd / 10000) % 100
	if !validDate(yy, mm, dd) {
		return 0
	}
	gmtTOD := timeOfDay(gmtHMS)
	locTOD := timeOfDay(locYMDhms % 1000000)
	day := adjustDay(DayNumber(yy+2000, mm, dd), locTOD, gmtTOD)
	return day*daySeconds + gmtTOD
}

// adjustDay moves day by one when reference and actual times of day are more
// than 12 hours apart.
func adjustDay(day, refTOD, actualTOD int64) int64 {
	dif := refTOD - actualTOD
	if dif < 0 {
		dif = -dif
	}
	if dif <= halfDaySeconds {
		return day
	}
	if refTOD > actualTOD {
		return day + 1
	}
	return day - 1
}
