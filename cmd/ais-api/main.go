// Package main provides a standalone status API for an AIS database.
//
// Usage:
//
//	ais-api [options]
//
// Options:
//
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: test_aisdb, env: POSTGRES_DB)
//	-pg-user USER       Read-only PostgreSQL user (default: test_ais, env: POSTGRES_RO_USER)
//	-pg-password PASS   Read-only PostgreSQL password (default: test_ais, env: POSTGRES_RO_PASSWORD)
//	-clickhouse HOST    ClickHouse host for track summaries (env: CLICKHOUSE_HOST)
//	-port N             HTTP port (default: 8090, env: HTTP_PORT)
//	-api-keys KEYS      Comma-separated API keys; enables authentication (env: API_KEYS)
//
// API Endpoints:
//
//	GET /api/v1/health
//	GET /api/v1/status
//	GET /api/v1/sources?limit=N
//	GET /api/v1/ships/{imo}
//	GET /api/v1/ships/{imo}/messages?clean=true
//	GET /api/v1/ships/{imo}/track?clean=true   (GeoJSON)
//	GET /api/v1/tracks?limit=N
//	GET /metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"ais_parser/internal/api"
	"ais_parser/internal/logging"
	"ais_parser/internal/storage"
)

func main() {
	def := storage.DefaultConfig()

	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", def.Postgres.Host), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", def.Postgres.Port), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_RO_USER", def.Postgres.ROUser), "Read-only PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_RO_PASSWORD", def.Postgres.ROPassword), "Read-only PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DB", def.Postgres.Database), "PostgreSQL database")

	chHost := flag.String("clickhouse", envOrDefault("CLICKHOUSE_HOST", ""), "ClickHouse host (empty disables track summaries)")

	// API server flags.
	port := flag.Int("port", envOrDefaultInt("HTTP_PORT", 8090), "HTTP port for API server")
	apiKeys := flag.String("api-keys", envOrDefault("API_KEYS", ""), "Comma-separated list of valid API keys")
	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level")

	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logging.Init(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgCfg := def.Postgres
	pgCfg.Host, pgCfg.Port, pgCfg.Database = *pgHost, *pgPort, *pgDB
	pgCfg.ROUser, pgCfg.ROPassword = *pgUser, *pgPassword

	db, err := storage.OpenPostgresReadOnly(ctx, pgCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var tracks api.TrackStore
	if *chHost != "" {
		chCfg := def.ClickHouse
		chCfg.Enabled, chCfg.Host = true, *chHost
		ch, err := storage.OpenClickHouse(ctx, chCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = ch.Close() }()
		tracks = ch
	}

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	server := api.NewServer(db, tracks, api.Config{
		Addr:    fmt.Sprintf(":%d", *port),
		APIKeys: keys,
	})
	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
