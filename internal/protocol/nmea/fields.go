// Package nmea parses the NMEA-style coordinate, date and time fields shared
// by the TK10x ASCII dialects, and the lenient numeric fields they carry.
package nmea

import (
	"strconv"
	"strings"
)

// numericPrefix returns the leading decimal number of s (optional sign,
// digits, optional fraction). Devices pad fields with units or garbage, so
// "215314.000" and "4.06V" are both accepted.
func numericPrefix(s string, allowFraction bool) string {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if allowFraction && end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	return strings.TrimSuffix(s[:end], ".")
}

// ParseFloat returns the leading decimal value of s, or def.
func ParseFloat(s string, def float64) float64 {
	p := numericPrefix(s, true)
	if p == "" {
		return def
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return def
	}
	return v
}

// ParseInt returns the leading integer value of s, or def.
func ParseInt(s string, def int64) int64 {
	p := numericPrefix(s, false)
	if p == "" {
		return def
	}
	v, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// ParseHex parses s as a hexadecimal integer (optional 0x prefix), or def.
func ParseHex(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return def
	}
	return v
}

// IsNumeric reports whether s is non-empty and made only of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
