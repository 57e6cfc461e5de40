package reconcile

import (
	"errors"
	"time"

	"ais_parser/internal/ais"
)

// ErrNonContiguous is returned when the imported window lies strictly inside
// the requested one, leaving work on both sides.
var ErrNonContiguous = errors.New("result of range difference would not be contiguous")

// importMargin widens an imported window so boundary messages are not
// imported twice.
const importMargin = time.Second

// Span is a half-open time range [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the span contains no instant.
func (s Span) Empty() bool {
	return !s.Start.Before(s.End)
}

// Remaining subtracts the already imported window prior, widened by one
// second on each side, from req. ok is false when nothing is left to import.
// A nil prior leaves req untouched.
func Remaining(req Span, prior *ais.MMSIInterval) (rest Span, ok bool, err error) {
	if req.Empty() {
		return Span{}, false, nil
	}
	if prior == nil {
		return req, true, nil
	}

	done := Span{Start: prior.FirstSeen.Add(-importMargin), End: prior.LastSeen.Add(importMargin)}
	overlap := Span{Start: later(req.Start, done.Start), End: earlier(req.End, done.End)}
	switch {
	case overlap.Empty():
		return req, true, nil
	case overlap.Start.Equal(req.Start) && overlap.End.Equal(req.End):
		return Span{}, false, nil
	case overlap.Start.After(req.Start) && overlap.End.Before(req.End):
		return Span{}, false, ErrNonContiguous
	case overlap.Start.Equal(req.Start):
		return Span{Start: overlap.End, End: req.End}, true, nil
	default:
		return Span{Start: req.Start, End: overlap.Start}, true, nil
	}
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
