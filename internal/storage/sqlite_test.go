package storage

import (
	"context"
	"testing"
	"time"

	"ais_parser/internal/ais"
)

func setupTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int        { return &v }
func floatPtr(v float64) *float64 {
	return &v
}

func TestSQLiteSources(t *testing.T) {
	db := setupTestSQLite(t)
	ctx := context.Background()

	seen, err := db.SourceSeen(ctx, "a.csv", 0)
	if err != nil || seen {
		t.Fatalf("SourceSeen() = %v, %v", seen, err)
	}

	if err := db.RecordSource(ctx, ais.SourceFile{Filename: "a.csv", Ext: ".csv", Invalid: 1, Clean: 4, Dirty: 2}); err != nil {
		t.Fatalf("RecordSource() error = %v", err)
	}

	seen, _ = db.SourceSeen(ctx, "a.csv", 0)
	if !seen {
		t.Error("file should be in the ledger")
	}
	seen, _ = db.SourceSeen(ctx, "a.csv", 1)
	if seen {
		t.Error("ledger is keyed by source too")
	}

	sources, err := db.Sources(ctx, 10)
	if err != nil {
		t.Fatalf("Sources() error = %v", err)
	}
	if len(sources) != 1 || sources[0].Clean != 4 || sources[0].Timestamp.IsZero() {
		t.Errorf("Sources() = %+v", sources)
	}
}

func TestSQLiteInsertMessages(t *testing.T) {
	db := setupTestSQLite(t)
	ctx := context.Background()

	msgs := []ais.Message{
		{
			MMSI:        int64Ptr(235012345),
			Timestamp:   time.Date(2016, 3, 14, 8, 15, 30, 0, time.UTC),
			MessageType: intPtr(1),
			Longitude:   floatPtr(-1.2),
			Latitude:    floatPtr(50.5),
		},
		{
			MMSI:        int64Ptr(235012345),
			Timestamp:   time.Date(2016, 3, 14, 8, 16, 30, 0, time.UTC),
			MessageType: intPtr(5),
			IMO:         int64Ptr(9074729),
			VesselName:  "SEA SPIRIT",
		},
	}
	if err := db.InsertMessages(ctx, ais.Clean, msgs); err != nil {
		t.Fatalf("InsertMessages() error = %v", err)
	}
	if err := db.InsertMessages(ctx, ais.Dirty, []ais.Message{{Timestamp: time.Now()}}); err != nil {
		t.Fatalf("InsertMessages(dirty) error = %v", err)
	}

	if n, _ := db.Count(ctx, ais.Clean); n != 2 {
		t.Errorf("clean count = %d", n)
	}
	if n, _ := db.Count(ctx, ais.Dirty); n != 1 {
		t.Errorf("dirty count = %d", n)
	}
	if err := db.InsertMessages(ctx, ais.Extended, msgs); err == nil {
		t.Error("extended partition is not stored in sqlite")
	}
}

func TestSQLiteIndices(t *testing.T) {
	db := setupTestSQLite(t)
	ctx := context.Background()

	if err := db.DropIndices(ctx, ais.Clean); err != nil {
		t.Fatalf("DropIndices() error = %v", err)
	}
	if err := db.CreateIndices(ctx, ais.Clean); err != nil {
		t.Fatalf("CreateIndices() error = %v", err)
	}
	status, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status) != 3 || !status[0].Created() {
		t.Errorf("Status() = %+v", status)
	}
}

func TestSQLiteIngestTx(t *testing.T) {
	db := setupTestSQLite(t)
	ctx := context.Background()
	msgs := []ais.Message{{MMSI: int64Ptr(235012345), Timestamp: time.Date(2016, 3, 14, 8, 15, 30, 0, time.UTC), MessageType: intPtr(1)}}

	tx, err := db.BeginIngest(ctx)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := tx.InsertMessages(ctx, ais.Clean, msgs); err != nil {
		t.Fatalf("InsertMessages() error = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if n, _ := db.Count(ctx, ais.Clean); n != 0 {
		t.Errorf("rolled back rows were kept, count = %d", n)
	}

	tx, err = db.BeginIngest(ctx)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := tx.InsertMessages(ctx, ais.Clean, msgs); err != nil {
		t.Fatalf("InsertMessages() error = %v", err)
	}
	if err := tx.RecordSource(ctx, ais.SourceFile{Filename: "a.csv", Ext: ".csv", Clean: 1}); err != nil {
		t.Fatalf("RecordSource() error = %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if n, _ := db.Count(ctx, ais.Clean); n != 1 {
		t.Errorf("clean count = %d, want 1", n)
	}
	if seen, _ := db.SourceSeen(ctx, "a.csv", 0); !seen {
		t.Error("ledger row not committed")
	}
}
