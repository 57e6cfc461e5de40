package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"ais_parser/internal/ais"
)

// IngestTx holds the rows and ledger entry of one input file until Commit.
// It is safe for concurrent use by the clean and dirty writers.
type IngestTx interface {
	InsertMessages(ctx context.Context, p ais.Partition, msgs []ais.Message) error
	RecordSource(ctx context.Context, f ais.SourceFile) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type pgIngestTx struct {
	mu sync.Mutex
	tx pgx.Tx
	q  queries
}

// BeginIngest starts the transaction for one input file.
func (d *AISDB) BeginIngest(ctx context.Context) (IngestTx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgIngestTx{tx: tx, q: queries{q: tx, postgis: d.postgis}}, nil
}

func (t *pgIngestTx) InsertMessages(ctx context.Context, p ais.Partition, msgs []ais.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.InsertMessages(ctx, p, msgs)
}

func (t *pgIngestTx) RecordSource(ctx context.Context, f ais.SourceFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.q.RecordSource(ctx, f)
}

func (t *pgIngestTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *pgIngestTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx.Rollback(ctx)
}

type sqliteIngestTx struct {
	mu sync.Mutex
	tx *sql.Tx
}

// BeginIngest starts the transaction for one input file.
func (d *SQLiteDB) BeginIngest(ctx context.Context) (IngestTx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &sqliteIngestTx{tx: tx}, nil
}

func (t *sqliteIngestTx) InsertMessages(ctx context.Context, p ais.Partition, msgs []ais.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return insertSQLite(ctx, t.tx, p, msgs)
}

func (t *sqliteIngestTx) RecordSource(ctx context.Context, f ais.SourceFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return recordSQLiteSource(ctx, t.tx, f)
}

func (t *sqliteIngestTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqliteIngestTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tx.Rollback()
}
