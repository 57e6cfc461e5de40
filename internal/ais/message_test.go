package ais

import "testing"

func TestSourceFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want int16
	}{
		{"exactEarth_terr_2016-01-01.csv", SourceTerrestrial},
		{"terrestrial.xml", SourceTerrestrial},
		{"exactEarth_sat_2016-01-01.csv", SourceSatellite},
		{"", SourceSatellite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SourceFromFilename(tt.name); got != tt.want {
				t.Errorf("SourceFromFilename(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestColumnForXML(t *testing.T) {
	if len(XMLNames) != len(CSVColumns) {
		t.Fatalf("XMLNames has %d entries, CSVColumns has %d", len(XMLNames), len(CSVColumns))
	}

	c, ok := ColumnForXML("date_time")
	if !ok || c != Time {
		t.Errorf("ColumnForXML(date_time) = %q, %v", c, ok)
	}
	if _, ok := ColumnForXML("aismessage"); ok {
		t.Error("aismessage should not map to a column")
	}
}

func TestRawRecord(t *testing.T) {
	rec := NewRawRecord()
	if !rec.Complete() {
		t.Error("new record should be complete")
	}
	if got := len(rec.RawFields()); got != len(CSVColumns) {
		t.Errorf("RawFields() len = %d, want %d", got, len(CSVColumns))
	}

	short := RawRecord{Fields: map[Column]string{}, Raw: []string{"1", "2"}}
	if short.Complete() {
		t.Error("record without columns should not be complete")
	}
	if got := short.RawFields(); len(got) != 2 {
		t.Errorf("RawFields() = %v, want raw fields", got)
	}
}

func TestStorageColumns(t *testing.T) {
	cols := StorageColumns()
	m := Message{}
	if len(cols) != len(m.Values()) {
		t.Fatalf("columns %d != values %d", len(cols), len(m.Values()))
	}
	if cols[0] != "mmsi" || cols[1] != "complete_sys_date" || cols[len(cols)-1] != "source" {
		t.Errorf("unexpected columns: %v", cols)
	}
}
