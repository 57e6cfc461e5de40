// Package normalize converts raw AIS records into typed messages and applies
// the routing validation that splits them into clean and dirty partitions.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ais_parser/internal/ais"
	"ais_parser/internal/validate"
)

// TimestampLayout is the Complete_Sys_Date format (DD/MM/YYYY HH:MM:SS).
const TimestampLayout = "02/01/2006 15:04:05"

// parseLayout accepts single-digit day, month and time parts as well.
const parseLayout = "2/1/2006 15:4:5"

// MaxStringLen bounds the destination and vessel name columns.
const MaxStringLen = 255

// MaxIMOStringLen is the longest raw IMO string kept by IMOString.
const MaxIMOStringLen = 20

// Routing errors. ErrRowInvalid and ErrRowInvalidLatLon send a message to the
// dirty partition; ErrBadRowLength and *FieldError drop the record.
var (
	ErrRowInvalid       = errors.New("Row Invalid")
	ErrRowInvalidLatLon = errors.New("Row Invalid (lat,lon)")
	ErrBadRowLength     = errors.New("Bad Row Length")
)

// FieldError reports a field that could not be parsed.
type FieldError struct {
	Column ais.Column
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Column, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Normalize parses every column of rec into a typed message tagged with source.
// Any parse failure is fatal for the record.
func Normalize(rec ais.RawRecord, source int16) (*ais.Message, error) {
	if !rec.Complete() {
		return nil, ErrBadRowLength
	}
	p := parser{fields: rec.Fields}

	msg := &ais.Message{
		MMSI:        p.int64(ais.MMSI),
		Timestamp:   p.timestamp(ais.Time),
		MessageType: p.int(ais.MessageType),
		NavStatus:   p.int(ais.NavStatus),
		SOG:         p.float(ais.SOG),
		Longitude:   p.float(ais.Longitude),
		Latitude:    p.float(ais.Latitude),
		COG:         p.float(ais.COG),
		Heading:     p.float(ais.Heading),
		IMO:         p.int64(ais.IMO),
		Draught:     p.float(ais.Draught),
		Destination: LongString(rec.Fields[ais.Destination]),
		VesselName:  LongString(rec.Fields[ais.VesselName]),
		ShipType:    p.int(ais.ShipType),
		ETAMonth:    p.int(ais.ETAMonth),
		ETADay:      p.int(ais.ETADay),
		ETAHour:     p.int(ais.ETAHour),
		ETAMinute:   p.int(ais.ETAMinute),
		Source:      source,
	}
	if p.err != nil {
		return nil, p.err
	}
	return msg, nil
}

// parser keeps the first error so the column conversions read as a list.
type parser struct {
	fields map[ais.Column]string
	err    error
}

func (p *parser) fail(c ais.Column, v string, err error) {
	if p.err == nil {
		p.err = &FieldError{Column: c, Value: v, Err: err}
	}
}

func (p *parser) int64(c ais.Column) *int64 {
	s := p.fields[c]
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		p.fail(c, s, err)
		return nil
	}
	return &v
}

func (p *parser) int(c ais.Column) *int {
	v := p.int64(c)
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func (p *parser) float(c ais.Column) *float64 {
	s := p.fields[c]
	if s == "" || s == "None" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64)
	if err != nil {
		p.fail(c, s, err)
		return nil
	}
	return &v
}

func (p *parser) timestamp(c ais.Column) time.Time {
	s := p.fields[c]
	t, err := time.Parse(parseLayout, s)
	if err != nil {
		p.fail(c, s, err)
	}
	return t
}

// LongString truncates s to MaxStringLen characters.
func LongString(s string) string {
	if len(s) <= MaxStringLen {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxStringLen {
		return s
	}
	return string(r[:MaxStringLen])
}

// IMOString returns s, or "" when it is too long to be an IMO number.
func IMOString(s string) string {
	if len([]rune(s)) > MaxIMOStringLen {
		return ""
	}
	return s
}

// Validate applies the mandatory checks and nulls optional fields that fail
// theirs. It returns ErrRowInvalid or ErrRowInvalidLatLon when msg belongs in
// the dirty partition, in which case msg is left unchanged.
func Validate(msg *ais.Message) error {
	if !validate.MMSI(msg.MMSI) || !validate.MessageType(msg.MessageType) {
		return ErrRowInvalid
	}
	if msg.IMO != nil && !validate.IMO(*msg.IMO) {
		return ErrRowInvalid
	}

	if ais.PositionTypes[*msg.MessageType] {
		if !validate.Longitude(msg.Longitude) || !validate.Latitude(msg.Latitude) {
			return ErrRowInvalidLatLon
		}
	} else {
		msg.Longitude = nil
		msg.Latitude = nil
	}

	if msg.NavStatus != nil && !validate.NavStatus(*msg.NavStatus) {
		msg.NavStatus = nil
	}
	if msg.SOG != nil && !validate.SOG(*msg.SOG) {
		msg.SOG = nil
	}
	if msg.COG != nil && !validate.COG(*msg.COG) {
		msg.COG = nil
	}
	if msg.Heading != nil && !validate.Heading(*msg.Heading) {
		msg.Heading = nil
	}
	return nil
}

// Outcome is where a record ends up.
type Outcome int

// Record outcomes.
const (
	OutcomeInvalid Outcome = iota
	OutcomeClean
	OutcomeDirty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeDirty:
		return "dirty"
	default:
		return "invalid"
	}
}

// Route normalises and validates rec. For OutcomeInvalid the error is the
// reason to log; for OutcomeDirty it is the validation failure.
func Route(rec ais.RawRecord, source int16) (*ais.Message, Outcome, error) {
	msg, err := Normalize(rec, source)
	if err != nil {
		return nil, OutcomeInvalid, err
	}
	if err := Validate(msg); err != nil {
		return msg, OutcomeDirty, err
	}
	return msg, OutcomeClean, nil
}
