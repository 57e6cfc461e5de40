package storage

import (
	"fmt"
	"strings"
)

// Table names.
const (
	TableClean        = "ais_clean"
	TableDirty        = "ais_dirty"
	TableSources      = "ais_sources"
	TableIMOList      = "imo_list"
	TableIMOListClean = "imo_list_clean"
	TableActionLog    = "action_log"
	TableExtended     = "ais_extended"
)

type column struct {
	name string
	typ  string
}

type index struct {
	name    string
	columns []string
	method  string // btree unless set
}

// table describes a PostgreSQL table and its secondary indices.
type table struct {
	name        string
	columns     []column
	indices     []index
	constraints []string
}

func messageColumns(intType string) []column {
	return []column{
		{"mmsi", intType},
		{"complete_sys_date", "timestamp without time zone"},
		{"message_type", intType},
		{"navigation_status", intType},
		{"speed_over_ground", "double precision"},
		{"longitude", "double precision"},
		{"latitude", "double precision"},
		{"course_over_ground", "double precision"},
		{"true_heading", "double precision"},
		{"imo_number", intType},
		{"draught", "double precision"},
		{"destination", "character varying(255)"},
		{"vessel_name", "character varying(255)"},
		{"ship_type", intType},
		{"eta_month", intType},
		{"eta_day", intType},
		{"eta_hour", intType},
		{"eta_minute", intType},
		{"source", "smallint"},
		{"id", "BIGSERIAL PRIMARY KEY"},
	}
}

var messageIndices = []index{
	{name: "dt_idx", columns: []string{"complete_sys_date"}},
	{name: "imo_idx", columns: []string{"imo_number"}},
	{name: "lonlat_idx", columns: []string{"longitude", "latitude"}},
	{name: "mmsi_idx", columns: []string{"mmsi"}},
	{name: "msg_idx", columns: []string{"message_type"}},
	{name: "source_idx", columns: []string{"source"}},
	{name: "mmsi_imo_idx", columns: []string{"mmsi", "imo_number"}},
}

var (
	cleanTable = table{name: TableClean, columns: messageColumns("integer"), indices: messageIndices}

	// Dirty rows failed validation, so their integers may not fit in 32 bits.
	dirtyTable = table{name: TableDirty, columns: messageColumns("bigint"), indices: messageIndices}

	sourcesTable = table{
		name: TableSources,
		columns: []column{
			{"id", "SERIAL PRIMARY KEY"},
			{"timestamp", "timestamp without time zone DEFAULT now()"},
			{"filename", "TEXT"},
			{"ext", "TEXT"},
			{"invalid", "integer"},
			{"clean", "integer"},
			{"dirty", "integer"},
			{"source", "integer"},
		},
		indices: []index{{name: "filename_idx", columns: []string{"filename", "source"}}},
	}

	imoListColumns = []column{
		{"mmsi", "bigint NOT NULL"},
		{"imo_number", "bigint NULL"},
		{"first_seen", "timestamp without time zone"},
		{"last_seen", "timestamp without time zone"},
	}

	imoListTable = table{
		name:        TableIMOList,
		columns:     imoListColumns,
		constraints: []string{"CONSTRAINT imo_list_key UNIQUE (mmsi, imo_number)"},
	}

	imoListCleanTable = table{
		name:        TableIMOListClean,
		columns:     imoListColumns,
		constraints: []string{"CONSTRAINT imo_list_pkey PRIMARY KEY (mmsi, imo_number)"},
	}

	actionLogTable = table{
		name: TableActionLog,
		columns: []column{
			{"timestamp", "timestamp without time zone DEFAULT now()"},
			{"action", "TEXT"},
			{"mmsi", "integer NOT NULL"},
			{"ts_from", "timestamp without time zone"},
			{"ts_to", "timestamp without time zone"},
			{"count", "integer NULL"},
		},
		indices: []index{
			{name: "ts_idx", columns: []string{"timestamp"}},
			{name: "action_idx", columns: []string{"action"}},
			{name: "mmsi_idx", columns: []string{"mmsi"}},
		},
		constraints: []string{"CONSTRAINT action_log_pkey PRIMARY KEY (timestamp, action, mmsi)"},
	}

	extendedTable = table{
		name:    TableExtended,
		columns: append(messageColumns("integer"), column{"location", "geography(POINT, 4326)"}),
		indices: append(append([]index{}, messageIndices...),
			index{name: "location_idx", columns: []string{"location"}, method: "GIST"}),
	}
)

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (t table) createSQL() string {
	defs := make([]string, 0, len(t.columns)+len(t.constraints))
	for _, c := range t.columns {
		defs = append(defs, quote(c.name)+" "+c.typ)
	}
	defs = append(defs, t.constraints...)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(t.name), strings.Join(defs, ", "))
}

func (t table) indexName(idx index) string {
	return strings.ToLower(t.name) + "_" + idx.name
}

func (t table) createIndexSQL() []string {
	out := make([]string, 0, len(t.indices))
	for _, idx := range t.indices {
		method := idx.method
		if method == "" {
			method = "btree"
		}
		cols := make([]string, len(idx.columns))
		for i, c := range idx.columns {
			cols[i] = quote(c)
		}
		out = append(out, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING %s (%s)",
			quote(t.indexName(idx)), quote(t.name), method, strings.Join(cols, ",")))
	}
	return out
}

func (t table) dropIndexSQL() []string {
	out := make([]string, 0, len(t.indices))
	for _, idx := range t.indices {
		out = append(out, "DROP INDEX IF EXISTS "+quote(t.indexName(idx)))
	}
	return out
}

// locationTriggerSQL fills ais_extended.location from longitude/latitude.
const locationTriggerSQL = `
CREATE OR REPLACE FUNCTION location_insert() RETURNS trigger AS $$
BEGIN
	NEW."location" := ST_SetSRID(ST_MakePoint(NEW.longitude, NEW.latitude), 4326);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ais_extended_gis_insert ON ais_extended;
CREATE TRIGGER ais_extended_gis_insert
	BEFORE INSERT OR UPDATE ON ais_extended
	FOR EACH ROW EXECUTE PROCEDURE location_insert();
`
