// Package validate holds the field-level AIS validity checks.
package validate

import (
	"math"
	"strconv"
	"strings"
)

// SOGNotAvailable is the speed-over-ground "not available" sentinel.
const SOGNotAvailable = 102.2

// HeadingNotAvailable is the true heading "not available" sentinel.
const HeadingNotAvailable = 511

var navStatuses = map[int]bool{
	0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true,
	11: true, 12: true, 14: true, 15: true,
}

// MMSI reports whether x is set and its decimal form is 9 characters long.
func MMSI(x *int64) bool {
	return x != nil && len(strconv.FormatInt(*x, 10)) == 9
}

// MessageType reports whether x is set and in [1,27].
func MessageType(x *int) bool {
	return x != nil && *x >= 1 && *x <= 27
}

// NavStatus reports whether x is a defined navigational status.
func NavStatus(x int) bool {
	return navStatuses[x]
}

// Longitude reports whether x is set and in [-180,180].
func Longitude(x *float64) bool {
	return x != nil && *x >= -180 && *x <= 180
}

// Latitude reports whether x is set and in [-90,90].
func Latitude(x *float64) bool {
	return x != nil && *x >= -90 && *x <= 90
}

// IMO checks the 7-digit IMO number check digit. The weighted sum of the
// first six digits (weights 7 down to 2) must end in the seventh digit.
func IMO(x int64) bool {
	s := strconv.FormatInt(x, 10)
	if len(s) != 7 || x < 0 {
		return false
	}
	sum := 0
	for i := 0; i < 6; i++ {
		sum += (7 - i) * int(s[i]-'0')
	}
	return int(s[6]-'0') == sum%10
}

// IMOString parses s as an integer and checks it with IMO.
func IMOString(s string) bool {
	x, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return false
	}
	return IMO(x)
}

// SOG reports whether x is a valid speed over ground, the sentinel included.
func SOG(x float64) bool {
	return x >= 0 && x <= SOGNotAvailable
}

// COG reports whether x is a valid course over ground.
func COG(x float64) bool {
	return x >= 0 && x < 360
}

// Heading reports whether x is a valid true heading or the 511 sentinel.
func Heading(x float64) bool {
	if math.IsNaN(x) {
		return false
	}
	return (x >= 0 && x < 360) || x == HeadingNotAvailable
}
