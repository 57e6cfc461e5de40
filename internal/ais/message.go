// Package ais provides AIS message types and column definitions.
package ais

import (
	"strings"
	"time"
)

// Column is an AIS CSV header name.
type Column string

// Columns extracted from raw AIS files.
const (
	MMSI        Column = "MMSI"
	Time        Column = "Complete_Sys_Date"
	MessageType Column = "Message_Type"
	NavStatus   Column = "Navigation_Status"
	SOG         Column = "Speed_Over_Ground"
	Longitude   Column = "Longitude"
	Latitude    Column = "Latitude"
	COG         Column = "Course_Over_Ground"
	Heading     Column = "True_Heading"
	IMO         Column = "IMO_Number"
	Draught     Column = "Draught"
	Destination Column = "Destination"
	VesselName  Column = "Vessel_Name"
	ShipType    Column = "Ship_Type"
	ETAMonth    Column = "ETA_Month"
	ETADay      Column = "ETA_Day"
	ETAHour     Column = "ETA_Hour"
	ETAMinute   Column = "ETA_Minute"
)

// CSVColumns lists the required CSV header columns in storage order.
var CSVColumns = []Column{
	MMSI, Time, MessageType, NavStatus, SOG, Longitude, Latitude, COG, Heading,
	IMO, Draught, Destination, VesselName, ShipType, ETAMonth, ETADay, ETAHour, ETAMinute,
}

// XMLNames lists the XML element names, index-aligned with CSVColumns.
var XMLNames = []string{
	"mmsi", "date_time", "msg_type", "nav_status", "sog", "lon", "lat", "cog", "heading",
	"imo", "draught", "destination", "vessel_name", "ship_type", "eta_month", "eta_day", "eta_hour", "eta_minute",
}

// XMLRecordElement is the element that closes one message in XML input.
const XMLRecordElement = "aismessage"

var xmlToColumn = func() map[string]Column {
	m := make(map[string]Column, len(XMLNames))
	for i, name := range XMLNames {
		m[name] = CSVColumns[i]
	}
	return m
}()

// ColumnForXML maps an XML element name to its CSV column.
func ColumnForXML(name string) (Column, bool) {
	c, ok := xmlToColumn[name]
	return c, ok
}

// PositionTypes are the message types that carry a position report.
var PositionTypes = map[int]bool{
	1: true, 2: true, 3: true, 4: true, 9: true, 11: true,
	17: true, 18: true, 19: true, 21: true, 27: true,
}

// StaticDataType is the "static and voyage related data" message type.
const StaticDataType = 5

// Receiver source ids.
const (
	SourceSatellite   int16 = 0
	SourceTerrestrial int16 = 1
)

// SourceFromFilename infers the receiver source from a file name.
func SourceFromFilename(name string) int16 {
	if strings.Contains(name, "terr") {
		return SourceTerrestrial
	}
	return SourceSatellite
}

// RawRecord is one untyped record read from an input file.
type RawRecord struct {
	Fields map[Column]string
	Raw    []string // Original fields, used for bad-data logging.
}

// NewRawRecord returns a record with every column set to the empty string.
func NewRawRecord() RawRecord {
	fields := make(map[Column]string, len(CSVColumns))
	for _, c := range CSVColumns {
		fields[c] = ""
	}
	return RawRecord{Fields: fields}
}

// Complete reports whether every required column is present.
func (r RawRecord) Complete() bool {
	for _, c := range CSVColumns {
		if _, ok := r.Fields[c]; !ok {
			return false
		}
	}
	return true
}

// RawFields returns the original fields, or the column values in order when
// the record has no raw form (XML input).
func (r RawRecord) RawFields() []string {
	if r.Raw != nil {
		return r.Raw
	}
	out := make([]string, len(CSVColumns))
	for i, c := range CSVColumns {
		out[i] = r.Fields[c]
	}
	return out
}

// Message is a normalised AIS message. Nil pointers are SQL NULLs; MMSI and
// MessageType are only guaranteed set on clean messages.
type Message struct {
	MMSI        *int64    `json:"mmsi"`
	Timestamp   time.Time `json:"complete_sys_date"`
	MessageType *int      `json:"message_type"`
	NavStatus   *int      `json:"navigation_status,omitempty"`
	SOG         *float64  `json:"speed_over_ground,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	COG         *float64  `json:"course_over_ground,omitempty"`
	Heading     *float64  `json:"true_heading,omitempty"`
	IMO         *int64    `json:"imo_number,omitempty"`
	Draught     *float64  `json:"draught,omitempty"`
	Destination string    `json:"destination,omitempty"`
	VesselName  string    `json:"vessel_name,omitempty"`
	ShipType    *int      `json:"ship_type,omitempty"`
	ETAMonth    *int      `json:"eta_month,omitempty"`
	ETADay      *int      `json:"eta_day,omitempty"`
	ETAHour     *int      `json:"eta_hour,omitempty"`
	ETAMinute   *int      `json:"eta_minute,omitempty"`
	Source      int16     `json:"source"`
}

// HasPosition reports whether both longitude and latitude are set.
func (m *Message) HasPosition() bool {
	return m.Longitude != nil && m.Latitude != nil
}

// Values returns the message fields in storage column order, followed by source.
func (m *Message) Values() []any {
	return []any{
		m.MMSI, m.Timestamp, m.MessageType, m.NavStatus, m.SOG, m.Longitude, m.Latitude,
		m.COG, m.Heading, m.IMO, m.Draught, m.Destination, m.VesselName, m.ShipType,
		m.ETAMonth, m.ETADay, m.ETAHour, m.ETAMinute, m.Source,
	}
}

// StorageColumns returns the lower-cased storage column names matching Values.
func StorageColumns() []string {
	cols := make([]string, 0, len(CSVColumns)+1)
	for _, c := range CSVColumns {
		cols = append(cols, strings.ToLower(string(c)))
	}
	return append(cols, "source")
}

// Partition names a message store partition.
type Partition string

// Message partitions.
const (
	Clean    Partition = "clean"
	Dirty    Partition = "dirty"
	Extended Partition = "extended"
)
