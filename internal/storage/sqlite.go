package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ais_parser/internal/ais"
)

// SQLiteConfig holds settings for the embedded ingest backend.
type SQLiteConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// SQLiteDB is an embedded store for the clean, dirty and source tables,
// used to run ingestion without a PostgreSQL server.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; both ingest consumers share this connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func sqliteMessageTable(name string) string {
	return `
	CREATE TABLE IF NOT EXISTS ` + name + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mmsi INTEGER,
		complete_sys_date TEXT NOT NULL,
		message_type INTEGER,
		navigation_status INTEGER,
		speed_over_ground REAL,
		longitude REAL,
		latitude REAL,
		course_over_ground REAL,
		true_heading REAL,
		imo_number INTEGER,
		draught REAL,
		destination TEXT,
		vessel_name TEXT,
		ship_type INTEGER,
		eta_month INTEGER,
		eta_day INTEGER,
		eta_hour INTEGER,
		eta_minute INTEGER,
		source INTEGER
	);`
}

func createSQLiteSchema(db *sql.DB) error {
	schema := sqliteMessageTable(TableClean) + sqliteMessageTable(TableDirty) + `
	CREATE TABLE IF NOT EXISTS ais_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		filename TEXT,
		ext TEXT,
		invalid INTEGER,
		clean INTEGER,
		dirty INTEGER,
		source INTEGER
	);

	CREATE INDEX IF NOT EXISTS ais_sources_filename_idx ON ais_sources(filename, source);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	for _, p := range []ais.Partition{ais.Clean, ais.Dirty} {
		if err := createSQLiteIndices(context.Background(), db, p); err != nil {
			return err
		}
	}
	return nil
}

func sqliteTable(p ais.Partition) (string, error) {
	switch p {
	case ais.Clean:
		return TableClean, nil
	case ais.Dirty:
		return TableDirty, nil
	}
	return "", fmt.Errorf("sqlite: unsupported partition %q", p)
}

func createSQLiteIndices(ctx context.Context, db *sql.DB, p ais.Partition) error {
	name, err := sqliteTable(p)
	if err != nil {
		return err
	}
	for _, idx := range messageIndices {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s(%s)",
			name, idx.name, name, strings.Join(idx.columns, ", "))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// SourceSeen reports whether a file is already in the import ledger for source.
func (d *SQLiteDB) SourceSeen(ctx context.Context, filename string, source int16) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ais_sources WHERE filename = ? AND source = ?`, filename, source).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check source ledger: %w", err)
	}
	return n > 0, nil
}

// RecordSource adds a file to the import ledger.
func (d *SQLiteDB) RecordSource(ctx context.Context, f ais.SourceFile) error {
	return recordSQLiteSource(ctx, d.db, f)
}

// sqlExecer is implemented by *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func recordSQLiteSource(ctx context.Context, db sqlExecer, f ais.SourceFile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ais_sources (filename, ext, invalid, clean, dirty, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.Filename, f.Ext, f.Invalid, f.Clean, f.Dirty, f.Source)
	if err != nil {
		return fmt.Errorf("record source %s: %w", f.Filename, err)
	}
	return nil
}

// Sources lists the import ledger, most recent first.
func (d *SQLiteDB) Sources(ctx context.Context, limit int) ([]ais.SourceFile, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT filename, ext, invalid, clean, dirty, source, timestamp
		FROM ais_sources
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ais.SourceFile
	for rows.Next() {
		var f ais.SourceFile
		var ts string
		if err := rows.Scan(&f.Filename, &f.Ext, &f.Invalid, &f.Clean, &f.Dirty, &f.Source, &ts); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		f.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertMessages writes messages into a partition in one transaction.
func (d *SQLiteDB) InsertMessages(ctx context.Context, p ais.Partition, msgs []ais.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSQLite(ctx, tx, p, msgs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertSQLite(ctx context.Context, db sqlExecer, p ais.Partition, msgs []ais.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	name, err := sqliteTable(p)
	if err != nil {
		return err
	}

	cols := ais.StorageColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := db.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range msgs {
		vals := msgs[i].Values()
		for j, v := range vals {
			vals[j] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	return nil
}

// sqliteValue flattens nullable message fields into driver values.
func sqliteValue(v any) any {
	switch x := v.(type) {
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return int64(*x)
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}

// DropIndices drops the secondary indices of a partition.
func (d *SQLiteDB) DropIndices(ctx context.Context, p ais.Partition) error {
	name, err := sqliteTable(p)
	if err != nil {
		return err
	}
	for _, idx := range messageIndices {
		if _, err := d.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name+"_"+idx.name); err != nil {
			return fmt.Errorf("drop index %s: %w", idx.name, err)
		}
	}
	return nil
}

// CreateIndices rebuilds the secondary indices of a partition.
func (d *SQLiteDB) CreateIndices(ctx context.Context, p ais.Partition) error {
	return createSQLiteIndices(ctx, d.db, p)
}

// Count returns the number of rows in a partition.
func (d *SQLiteDB) Count(ctx context.Context, p ais.Partition) (int64, error) {
	name, err := sqliteTable(p)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Status returns the row count of every table.
func (d *SQLiteDB) Status(ctx context.Context) ([]TableStatus, error) {
	var out []TableStatus
	for _, name := range []string{TableClean, TableDirty, TableSources} {
		var n int64
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
			return nil, fmt.Errorf("status %s: %w", name, err)
		}
		out = append(out, TableStatus{Table: name, Rows: n})
	}
	return out, nil
}
