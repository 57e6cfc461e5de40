package ais

import "time"

// MMSIInterval is the window during which an MMSI was seen with an IMO number.
// A nil IMO means the MMSI was seen without one.
type MMSIInterval struct {
	MMSI      int64
	IMO       *int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// ShipInterval is a reconciled (mmsi, imo) pair and the time range to extract.
type ShipInterval struct {
	MMSI  int64     `json:"mmsi"`
	IMO   int64     `json:"imo_number"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SourceFile is one row of the file import ledger.
type SourceFile struct {
	Filename  string    `json:"filename"`
	Ext       string    `json:"ext"`
	Invalid   int       `json:"invalid"`
	Clean     int       `json:"clean"`
	Dirty     int       `json:"dirty"`
	Source    int16     `json:"source"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Action is one row of the audit action log.
type Action struct {
	Action string
	MMSI   int64
	From   time.Time
	To     time.Time
	Count  int
}

// Action names written by the vessel importer.
const (
	ActionImport        = "import"
	ActionOutliers      = "outlier detection (noop)"
	ActionInterpolation = "interpolation (noop)"
)

// IdentityRange is an (mmsi, imo) window joined with the window in which the
// same MMSI was seen without an IMO number. Start and End span both windows.
type IdentityRange struct {
	MMSI     int64
	IMO      int64
	Overlaps bool
	Start    time.Time
	End      time.Time
}
