// Package config loads ais_parser settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ais_parser/internal/events"
	"ais_parser/internal/logging"
	"ais_parser/internal/storage"
)

// Config is the complete ais_parser configuration. Top-level keys name the
// components that read them.
type Config struct {
	Log            logging.Config           `koanf:"log"`
	AISDB          storage.PostgresConfig   `koanf:"aisdb"`
	ClickHouse     storage.ClickHouseConfig `koanf:"clickhouse"`
	SQLite         storage.SQLiteConfig     `koanf:"sqlite"`
	NATS           events.Config            `koanf:"nats"`
	AISCSV         FileRepoConfig           `koanf:"aiscsv"`
	BadData        BadDataConfig            `koanf:"baddata"`
	AISParser      AISParserConfig          `koanf:"aisparser"`
	VesselImporter VesselImporterConfig     `koanf:"vesselimporter"`
	API            APIConfig                `koanf:"api"`
}

// FileRepoConfig configures a directory of input files.
type FileRepoConfig struct {
	Path       string   `koanf:"path" validate:"required"`
	Extensions []string `koanf:"extensions"`
	Recursive  bool     `koanf:"recursive"`
	Unzip      bool     `koanf:"unzip"`
}

// BadDataConfig configures where rejected records are logged.
type BadDataConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// AISParserConfig configures file ingestion.
type AISParserConfig struct {
	// Source is the receiver id stored with every message: 0 satellite, 1 terrestrial.
	Source int16 `koanf:"source" validate:"oneof=0 1"`

	// SourceFromName derives the receiver id from each file name instead.
	SourceFromName bool `koanf:"source_from_name"`

	DropIndices bool          `koanf:"drop_indices"`
	QueueSize   int           `koanf:"queue_size" validate:"min=1"`
	BatchSize   int           `koanf:"batch_size" validate:"min=1"`
	DrainGrace  time.Duration `koanf:"drain_grace" validate:"min=0"`

	// Backend selects the store: postgres or sqlite.
	Backend string `koanf:"backend" validate:"oneof=postgres sqlite"`

	// BreakerFailures consecutive failed batch writes open the circuit
	// for BreakerTimeout.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// VesselImporterConfig configures the identity reconciler.
type VesselImporterConfig struct {
	Workers          int           `koanf:"workers" validate:"min=1"`
	DropIndices      bool          `koanf:"drop_indices"`
	ProgressInterval time.Duration `koanf:"progress_interval" validate:"min=0"`
}

// APIConfig configures the status HTTP server.
type APIConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	// APIKeys enables key authentication when non-empty.
	APIKeys []string `koanf:"api_keys"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaultConfig returns the built-in defaults. They are applied first, then
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	db := storage.DefaultConfig()
	return &Config{
		Log:        logging.DefaultConfig(),
		AISDB:      db.Postgres,
		ClickHouse: db.ClickHouse,
		SQLite:     db.SQLite,
		NATS: events.Config{
			SubjectPrefix: "ais",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		AISCSV: FileRepoConfig{
			Path:       "data/ais",
			Extensions: []string{".csv"},
			Recursive:  true,
			Unzip:      true,
		},
		BadData: BadDataConfig{
			Path: "data/baddata",
		},
		AISParser: AISParserConfig{
			DropIndices:     true,
			QueueSize:       1_000_000,
			BatchSize:       50_000,
			DrainGrace:      500 * time.Millisecond,
			Backend:         "postgres",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		VesselImporter: VesselImporterConfig{
			Workers:          2,
			ProgressInterval: 5 * time.Second,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
	}
}

// HasRepository reports whether the named repository is configured.
func (c *Config) HasRepository(name string) bool {
	switch name {
	case "aisdb":
		return c.AISDB.Host != "" && c.AISDB.Database != ""
	case "aiscsv":
		return c.AISCSV.Path != ""
	case "baddata":
		return c.BadData.Path != ""
	case "clickhouse":
		return c.ClickHouse.Enabled
	case "sqlite":
		return c.SQLite.Path != ""
	}
	return false
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if int(c.AISDB.MaxConns) <= c.VesselImporter.Workers {
		return fmt.Errorf("aisdb.max_conns (%d) must exceed vesselimporter.workers (%d)",
			c.AISDB.MaxConns, c.VesselImporter.Workers)
	}
	if c.AISParser.Backend == "sqlite" && c.SQLite.Path == "" {
		return errors.New("sqlite.path is required when aisparser.backend=sqlite")
	}
	return nil
}
