// Package outlier flags implausible position reports in a vessel's message
// stream.
package outlier

import (
	"time"

	"ais_parser/internal/ais"
)

// Thresholds of the speed test.
const (
	// MaxGap is the elapsed time above which two reports are treated as
	// separate voyages rather than a jump.
	MaxGap = 215 * time.Hour

	// MinDistance in metres below which movement is jitter.
	MinDistance = 100.0

	// MaxSpeed in knots above which a leg is implausible.
	MaxSpeed = 50.0

	// UnavailableSpeed is reported for legs with zero elapsed time.
	UnavailableSpeed = 102.2

	metresToNauticalMiles = 0.0005399568
)

// Leg is the movement between two positioned reports.
type Leg struct {
	Elapsed  time.Duration
	Distance float64 // metres
	Speed    float64 // knots
}

// Measure computes the leg from a to b. Both messages must have a position.
func Measure(a, b ais.Message) Leg {
	elapsed := b.Timestamp.Sub(a.Timestamp)
	if elapsed < 0 {
		elapsed = -elapsed
	}
	dist := Distance(*a.Longitude, *a.Latitude, *b.Longitude, *b.Latitude)

	speed := UnavailableSpeed
	if elapsed > 0 {
		speed = dist * metresToNauticalMiles / elapsed.Hours()
	}
	return Leg{Elapsed: elapsed, Distance: dist, Speed: speed}
}

// Plausible reports whether the leg passes the gap, jitter or speed test.
func (l Leg) Plausible() bool {
	return l.Elapsed <= MaxGap && (l.Distance < MinDistance || l.Speed <= MaxSpeed)
}

// Detect returns one flag per message, true for location outliers. msgs
// must be in ascending time order; messages without a position are skipped
// over and never flagged.
func Detect(msgs []ais.Message) []bool {
	flags := make([]bool, len(msgs))

	// next[i] is the index of the next positioned message after i, or -1.
	next := make([]int, len(msgs))
	link, positioned := -1, 0
	for i := len(msgs) - 1; i >= 0; i-- {
		next[i] = -1
		if msgs[i].HasPosition() {
			next[i] = link
			link = i
			positioned++
		}
	}
	if positioned < 2 {
		return flags
	}

	cur := link
	atStart := true
	for next[cur] >= 0 {
		succ := next[cur]
		leg := Measure(msgs[cur], msgs[succ])

		switch {
		case leg.Elapsed > MaxGap:
			cur = succ
			atStart = true
		case leg.Distance < MinDistance:
			cur = succ
		case leg.Speed > MaxSpeed:
			switch {
			case !atStart:
				// Drop the successor and retry against the one after it.
				flags[succ] = true
				next[cur] = next[succ]
			case next[succ] < 0:
				flags[cur] = true
				flags[succ] = true
				cur = succ
			default:
				a, b, c := cur, succ, next[succ]
				switch {
				case Measure(msgs[a], msgs[c]).Plausible():
					flags[b] = true
					atStart = false
				case Measure(msgs[b], msgs[c]).Plausible():
					flags[a] = true
					atStart = false
				default:
					flags[a] = true
					flags[b] = true
					atStart = true
				}
				cur = c
			}
		default:
			cur = succ
			atStart = false
		}
	}
	return flags
}

// Partition splits msgs into accepted and rejected by flags, keeping order.
func Partition(msgs []ais.Message, flags []bool) (valid, invalid []ais.Message) {
	for i := range msgs {
		if i < len(flags) && flags[i] {
			invalid = append(invalid, msgs[i])
		} else {
			valid = append(valid, msgs[i])
		}
	}
	return valid, invalid
}

// Interpolate returns artificial messages bridging long gaps in a valid
// track. Gap filling is not implemented yet; it always returns nil.
func Interpolate(valid []ais.Message) []ais.Message {
	return nil
}
