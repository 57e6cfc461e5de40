package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every mapped variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envMappings {
		name := strings.ToUpper(key)
		if v, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { _ = os.Setenv(name, v) })
			_ = os.Unsetenv(name)
		}
	}
	t.Setenv(ConfigPathEnvVar, "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.AISDB.Host != "localhost" || cfg.AISDB.Database != "test_aisdb" {
		t.Errorf("AISDB = %+v", cfg.AISDB)
	}
	if !cfg.AISDB.PostGIS {
		t.Error("PostGIS should default to enabled")
	}
	if cfg.AISParser.QueueSize != 1_000_000 || cfg.AISParser.BatchSize != 50_000 {
		t.Errorf("QueueSize = %d, BatchSize = %d", cfg.AISParser.QueueSize, cfg.AISParser.BatchSize)
	}
	if cfg.AISParser.DrainGrace != 500*time.Millisecond {
		t.Errorf("DrainGrace = %v", cfg.AISParser.DrainGrace)
	}
	if cfg.VesselImporter.Workers != 2 || cfg.VesselImporter.ProgressInterval != 5*time.Second {
		t.Errorf("VesselImporter = %+v", cfg.VesselImporter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("AIS_INPUT_EXTENSIONS", ".csv, .xml")
	t.Setenv("AIS_BACKEND", "sqlite")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AISDB.Host != "db.internal" || cfg.AISDB.Port != 6543 {
		t.Errorf("AISDB = %s:%d", cfg.AISDB.Host, cfg.AISDB.Port)
	}
	if len(cfg.AISCSV.Extensions) != 2 || cfg.AISCSV.Extensions[1] != ".xml" {
		t.Errorf("Extensions = %v", cfg.AISCSV.Extensions)
	}
	if cfg.AISParser.Backend != "sqlite" {
		t.Errorf("Backend = %q", cfg.AISParser.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
aisdb:
  host: filehost
aisparser:
  drain_grace: 2s
vesselimporter:
  workers: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("POSTGRES_HOST", "envhost")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AISDB.Host != "envhost" {
		t.Errorf("env should win over file, got %q", cfg.AISDB.Host)
	}
	if cfg.AISParser.DrainGrace != 2*time.Second {
		t.Errorf("DrainGrace = %v", cfg.AISParser.DrainGrace)
	}
	if cfg.VesselImporter.Workers != 4 {
		t.Errorf("Workers = %d", cfg.VesselImporter.Workers)
	}
	if cfg.AISDB.Database != "test_aisdb" {
		t.Errorf("unset keys keep defaults, got %q", cfg.AISDB.Database)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad backend", func(c *Config) { c.AISParser.Backend = "mysql" }},
		{"bad source", func(c *Config) { c.AISParser.Source = 3 }},
		{"no workers", func(c *Config) { c.VesselImporter.Workers = 0 }},
		{"pool too small", func(c *Config) { c.AISDB.MaxConns = 2; c.VesselImporter.Workers = 2 }},
		{"clickhouse without host", func(c *Config) { c.ClickHouse.Enabled = true; c.ClickHouse.Host = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ais_parser.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "drain_grace: 500ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}
	for _, sub := range []string{"data/ais", "data/baddata"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("directory %s not created: %v", sub, err)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(written) error = %v", err)
	}
	if cfg.AISParser.DrainGrace != 500*time.Millisecond {
		t.Errorf("round trip DrainGrace = %v", cfg.AISParser.DrainGrace)
	}
}

func TestHasRepository(t *testing.T) {
	cfg := defaultConfig()
	for _, name := range []string{"aisdb", "aiscsv", "baddata", "sqlite"} {
		if !cfg.HasRepository(name) {
			t.Errorf("%s should be configured by default", name)
		}
	}
	if cfg.HasRepository("clickhouse") {
		t.Error("clickhouse is disabled by default")
	}
	if cfg.HasRepository("unknown") {
		t.Error("unknown repository reported as configured")
	}
	cfg.AISCSV.Path = ""
	if cfg.HasRepository("aiscsv") {
		t.Error("aiscsv without a path should not be configured")
	}
}
