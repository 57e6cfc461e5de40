package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"ais_parser.yaml",
	"ais_parser.yml",
	"/etc/ais_parser/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "AIS_PARSER_CONFIG"

// Load builds the configuration from defaults, the config file at path (or
// the first default path found when path is empty) and the environment.
func Load(path string) (*Config, error) {
	k, err := load(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional unless named explicitly).
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables, e.g. POSTGRES_HOST -> aisdb.host.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	return k, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set by env.
var sliceConfigPaths = []string{
	"aiscsv.extensions",
	"api.api_keys",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"log_level":  "log.level",
	"log_format": "log.format",
	"log_caller": "log.caller",

	"postgres_host":        "aisdb.host",
	"postgres_port":        "aisdb.port",
	"postgres_db":          "aisdb.db",
	"postgres_user":        "aisdb.user",
	"postgres_password":    "aisdb.pass",
	"postgres_ro_user":     "aisdb.ro_user",
	"postgres_ro_password": "aisdb.ro_pass",
	"postgres_max_conns":   "aisdb.max_conns",
	"aisdb_postgis":        "aisdb.postgis",

	"clickhouse_enabled":  "clickhouse.enabled",
	"clickhouse_host":     "clickhouse.host",
	"clickhouse_port":     "clickhouse.port",
	"clickhouse_db":       "clickhouse.db",
	"clickhouse_user":     "clickhouse.user",
	"clickhouse_password": "clickhouse.pass",

	"sqlite_path": "sqlite.path",

	"nats_url":            "nats.url",
	"nats_subject_prefix": "nats.subject_prefix",

	"ais_input_path":       "aiscsv.path",
	"ais_input_extensions": "aiscsv.extensions",
	"ais_input_recursive":  "aiscsv.recursive",
	"ais_input_unzip":      "aiscsv.unzip",
	"bad_data_path":        "baddata.path",

	"ais_source":           "aisparser.source",
	"ais_source_from_name": "aisparser.source_from_name",
	"ais_drop_indices":     "aisparser.drop_indices",
	"ais_queue_size":       "aisparser.queue_size",
	"ais_batch_size":       "aisparser.batch_size",
	"ais_backend":          "aisparser.backend",

	"importer_workers":      "vesselimporter.workers",
	"importer_drop_indices": "vesselimporter.drop_indices",

	"http_host": "api.host",
	"http_port": "api.port",
	"api_keys":  "api.api_keys",
}

// envTransformFunc maps environment variable names to config paths. Unmapped
// variables are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WriteDefault writes the default configuration as YAML to path and creates
// the input and bad-data directories it names.
func WriteDefault(path string) error {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	for key, v := range k.All() {
		if d, ok := v.(time.Duration); ok {
			if err := k.Set(key, d.String()); err != nil {
				return err
			}
		}
	}

	out, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	cfg := defaultConfig()
	for _, dir := range []string{cfg.AISCSV.Path, cfg.BadData.Path} {
		if err := os.MkdirAll(filepath.Join(filepath.Dir(path), dir), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
