package components

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ais_parser/internal/config"
	"ais_parser/internal/registry"
)

const sample = "MMSI;Complete_Sys_Date;Message_Type;Navigation_Status;Speed_Over_Ground;Longitude;Latitude;" +
	"Course_Over_Ground;True_Heading;IMO_Number;Draught;Destination;Vessel_Name;Ship_Type;" +
	"ETA_Month;ETA_Day;ETA_Hour;ETA_Minute\n" +
	"235012340;14/03/2016 08:10:30;1;0;12,5;-1.2;50.5;181;180;;;;;;;;;\n" +
	"235012340;14/03/2016 09:10:30;5;;;;;;;9074729;5,5;SOUTHAMPTON;SEA SPIRIT;70;3;15;12;0\n" +
	"235012340;14/03/2016 10:00:00;1;0;10;-1.2;95.0;181;180;;;;;;;;;\n" +
	"235012340;short;row\n"

func testEnv(t *testing.T) (*registry.Env, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AISCSV.Path = filepath.Join(dir, "input")
	cfg.BadData.Path = filepath.Join(dir, "baddata")
	cfg.SQLite.Path = filepath.Join(dir, "ais.db")
	cfg.AISParser.Backend = "sqlite"
	for _, d := range []string{cfg.AISCSV.Path, cfg.BadData.Path} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	var out bytes.Buffer
	return &registry.Env{Config: cfg, Out: &out}, &out
}

func TestRegistered(t *testing.T) {
	want := []string{"aiscsv", "aisdb", "aisparser", "baddata", "clickhouse", "imolist", "vesselimporter"}
	all := registry.Default().All()
	if len(all) != len(want) {
		t.Fatalf("registered %d components, want %d", len(all), len(want))
	}
	for i, c := range all {
		if c.Name() != want[i] {
			t.Errorf("component %d = %s, want %s", i, c.Name(), want[i])
		}
	}

	env, _ := testEnv(t)
	for _, c := range registry.Default().Available(env) {
		if c.Name() == "clickhouse" {
			t.Error("clickhouse should be unavailable without configuration")
		}
	}
}

func TestAISParserRunSQLite(t *testing.T) {
	env, out := testEnv(t)
	cfg := env.Config
	if err := os.WriteFile(filepath.Join(cfg.AISCSV.Path, "terr_201603.csv"), []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := registry.Default().Dispatch(ctx, "aisparser", "run", env, []string{"-source-from-name"}); err != nil {
		t.Fatalf("aisparser run error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "terr_201603.csv") || !strings.Contains(got, "1 ingested") {
		t.Errorf("summary:\n%s", got)
	}

	out.Reset()
	if _, err := registry.Default().Dispatch(ctx, "aisparser", "run", env, []string{"-source-from-name"}); err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if !strings.Contains(out.String(), "1 skipped") {
		t.Errorf("second run should skip the ingested file:\n%s", out.String())
	}

	out.Reset()
	if _, err := registry.Default().Dispatch(ctx, "baddata", "status", env, nil); err != nil {
		t.Fatalf("baddata status error = %v", err)
	}
	if !strings.Contains(out.String(), "1 logs") {
		t.Errorf("baddata status = %q", out.String())
	}
}

func TestAISCSVStatus(t *testing.T) {
	env, out := testEnv(t)
	if err := os.WriteFile(filepath.Join(env.Config.AISCSV.Path, "a.csv"), []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.Default().Dispatch(context.Background(), "aiscsv", "status", env, nil); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out.String(), "1 files, 0 archives") {
		t.Errorf("status = %q", out.String())
	}
}

func TestBadFlags(t *testing.T) {
	env, _ := testEnv(t)
	if _, err := registry.Default().Dispatch(context.Background(), "aisparser", "run", env, []string{"-nope"}); err == nil {
		t.Error("expected flag error")
	}
	if _, err := registry.Default().Dispatch(context.Background(), "aisparser", "run", env, []string{"-backend", "mysql"}); err == nil {
		t.Error("expected backend error")
	}
}

func TestParseIMO(t *testing.T) {
	tests := []struct {
		args    []string
		want    int64
		wantErr bool
	}{
		{[]string{"9074729"}, 9074729, false},
		{nil, 0, true},
		{[]string{"ship"}, 0, true},
		{[]string{"1234568"}, 0, true},
		{[]string{"90747290000000000000009"}, 0, true},
	}
	for _, tt := range tests {
		got, err := parseIMO(tt.args)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseIMO(%v) = %d, %v", tt.args, got, err)
		}
	}
}
