// Package printtime converts slicer-estimated print durations into hours.
package printtime

import (
	"regexp"
	"strconv"
)

// Slicers report estimates like "1d 3h 25m 10s". Components are optional
// and order-independent; each one that parses contributes its share.
var (
	dayRe    = regexp.MustCompile(`(\d+)\s*d`)
	hourRe   = regexp.MustCompile(`(\d+)\s*h`)
	minuteRe = regexp.MustCompile(`(\d+)\s*m`)
	secondRe = regexp.MustCompile(`(\d+)\s*s`)
)

// Hours parses a free-form elapsed-time string into fractional hours.
// A token whose digits fail to parse is skipped; the other tokens still
// count. Strings with no recognizable token, including "", yield 0.
func Hours(s string) float64 {
	hours := 0.0
	hours += tokenValue(dayRe, s) * 24.0
	hours += tokenValue(hourRe, s)
	hours += tokenValue(minuteRe, s) / 60.0
	hours += tokenValue(secondRe, s) / 3600.0
	return hours
}

func tokenValue(re *regexp.Regexp, s string) float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
