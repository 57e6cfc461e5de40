package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings for the AIS database.
type PostgresConfig struct {
	Host       string `koanf:"host" validate:"required"`
	Port       int    `koanf:"port" validate:"min=1,max=65535"`
	Database   string `koanf:"db" validate:"required"`
	User       string `koanf:"user" validate:"required"`
	Password   string `koanf:"pass"`
	ROUser     string `koanf:"ro_user"`
	ROPassword string `koanf:"ro_pass"`

	// PostGIS enables the ais_extended table and its location trigger.
	PostGIS bool `koanf:"postgis"`

	// MaxConns bounds the pool. The vessel importer holds one connection
	// per worker plus one for planning.
	MaxConns int32 `koanf:"max_conns" validate:"min=2"`
}

// DSN returns the connection string, using the read-only account when readOnly is set.
func (c PostgresConfig) DSN(readOnly bool) string {
	user, pass := c.User, c.Password
	if readOnly && c.ROUser != "" {
		user, pass = c.ROUser, c.ROPassword
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		user, pass, c.Host, c.Port, c.Database)
}

// querier is the subset of pgx shared by pools, pooled connections and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// AISDB wraps a PostgreSQL connection pool holding the AIS tables.
type AISDB struct {
	queries
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// OpenPostgres opens a connection pool to the AIS database.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*AISDB, error) {
	return openPostgres(ctx, cfg, false)
}

// OpenPostgresReadOnly opens a pool using the read-only account.
func OpenPostgresReadOnly(ctx context.Context, cfg PostgresConfig) (*AISDB, error) {
	return openPostgres(ctx, cfg, true)
}

func openPostgres(ctx context.Context, cfg PostgresConfig, readOnly bool) (*AISDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN(readOnly))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &AISDB{
		queries: queries{q: pool, postgis: cfg.PostGIS},
		pool:    pool,
		cfg:     cfg,
	}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *AISDB) Close() {
	d.pool.Close()
}

// Conn is a connection taken from the pool for exclusive use by one worker.
type Conn struct {
	queries
	conn *pgxpool.Conn
}

// Acquire takes a dedicated connection from the pool. Callers must Release it.
func (d *AISDB) Acquire(ctx context.Context) (*Conn, error) {
	c, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{queries: queries{q: c, postgis: d.postgis}, conn: c}, nil
}

// Release returns the connection to the pool.
func (c *Conn) Release() {
	c.conn.Release()
}

// Tx is a transaction over the AIS tables.
type Tx struct {
	queries
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (q *queries) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := q.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Tx{queries: queries{q: tx, postgis: q.postgis}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// queries implements every statement against whichever querier it wraps.
type queries struct {
	q       querier
	postgis bool
}

// tables returns the managed tables in creation order.
func (q *queries) tables() []table {
	ts := []table{cleanTable, dirtyTable, sourcesTable, imoListTable, imoListCleanTable, actionLogTable}
	if q.postgis {
		ts = append(ts, extendedTable)
	}
	return ts
}

func (q *queries) table(name string) (table, error) {
	for _, t := range q.tables() {
		if t.name == name {
			return t, nil
		}
	}
	return table{}, fmt.Errorf("unknown table %q", name)
}

// partitionTable maps a message partition to its table.
func partitionTable(p string) (table, error) {
	switch p {
	case "clean":
		return cleanTable, nil
	case "dirty":
		return dirtyTable, nil
	case "extended":
		return extendedTable, nil
	}
	return table{}, fmt.Errorf("unknown partition %q", p)
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
