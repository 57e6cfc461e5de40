// Package storage provides the AIS databases: the PostgreSQL message store,
// an optional ClickHouse analytics mirror and an embedded SQLite backend for
// local ingestion runs.
package storage

import (
	"errors"
	"time"
)

// Config holds connection settings for every backend.
type Config struct {
	Postgres   PostgresConfig   `koanf:"aisdb"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse"`
	SQLite     SQLiteConfig     `koanf:"sqlite"`
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:       "localhost",
			Port:       5432,
			Database:   "test_aisdb",
			User:       "test_ais",
			Password:   "test_ais",
			ROUser:     "test_ais",
			ROPassword: "test_ais",
			PostGIS:    true,
			MaxConns:   10,
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "ais",
			User:     "default",
		},
		SQLite: SQLiteConfig{
			Path: "ais_local.db",
		},
	}
}

// ErrNotCreated is returned by Status for tables that do not exist yet.
var ErrNotCreated = errors.New("not yet created")

// TableStatus is the row count of one table, or -1 when it does not exist.
type TableStatus struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Created reports whether the table exists.
func (s TableStatus) Created() bool { return s.Rows >= 0 }

// VesselName is one name a vessel has broadcast and when.
type VesselName struct {
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ShipInfo summarises what is known about an IMO number.
type ShipInfo struct {
	IMO   int64              `json:"imo_number"`
	Names []VesselName       `json:"names"`
	MMSIs []MMSIObservations `json:"mmsis"`
}

// MMSIObservations is an MMSI seen with an IMO number and when.
type MMSIObservations struct {
	MMSI      int64      `json:"mmsi"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}
