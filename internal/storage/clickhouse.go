package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"ais_parser/internal/ais"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host" validate:"required_if=Enabled true"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	Database string `koanf:"db"`
	User     string `koanf:"user"`
	Password string `koanf:"pass"`
}

// ClickHouseDB mirrors reconciled vessel tracks for analytical queries.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS ais_extended (
		vessel_imo          Int64,
		mmsi                Int64,
		complete_sys_date   DateTime64(3),
		message_type        Int32,
		navigation_status   Nullable(Int32),
		speed_over_ground   Nullable(Float64),
		longitude           Nullable(Float64),
		latitude            Nullable(Float64),
		course_over_ground  Nullable(Float64),
		true_heading        Nullable(Float64),
		imo_number          Nullable(Int64),
		draught             Nullable(Float64),
		destination         String,
		vessel_name         LowCardinality(String),
		ship_type           Nullable(Int32),
		source              Int16,
		inserted_at         DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(complete_sys_date)
	ORDER BY (mmsi, complete_sys_date)
	SETTINGS index_granularity = 8192`

	if err := d.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertTrack appends the accepted messages of a reconciled interval.
func (d *ClickHouseDB) InsertTrack(ctx context.Context, iv ais.ShipInterval, msgs []ais.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO ais_extended (vessel_imo, mmsi, complete_sys_date, message_type, navigation_status,
			speed_over_ground, longitude, latitude, course_over_ground, true_heading, imo_number,
			draught, destination, vessel_name, ship_type, source)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range msgs {
		var msgType int32
		if m.MessageType != nil {
			msgType = int32(*m.MessageType)
		}
		err = batch.Append(iv.IMO, iv.MMSI, m.Timestamp, msgType, int32Ptr(m.NavStatus),
			m.SOG, m.Longitude, m.Latitude, m.COG, m.Heading, m.IMO,
			m.Draught, m.Destination, m.VesselName, int32Ptr(m.ShipType), m.Source)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	i := int32(*v)
	return &i
}

// TrackSummary is the per-vessel message count held in ClickHouse.
type TrackSummary struct {
	IMO       int64     `json:"imo_number"`
	MMSI      int64     `json:"mmsi"`
	Messages  uint64    `json:"messages"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// TrackSummaries returns the vessels with the most mirrored messages.
func (d *ClickHouseDB) TrackSummaries(ctx context.Context, limit int) ([]TrackSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(ctx, `
		SELECT vessel_imo, mmsi, count() AS messages, min(complete_sys_date), max(complete_sys_date)
		FROM ais_extended
		GROUP BY vessel_imo, mmsi
		ORDER BY messages DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query track summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TrackSummary
	for rows.Next() {
		var s TrackSummary
		if err := rows.Scan(&s.IMO, &s.MMSI, &s.Messages, &s.FirstSeen, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("scan track summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
