package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
)

// Status returns the row count of every managed table.
func (q *queries) Status(ctx context.Context) ([]TableStatus, error) {
	var out []TableStatus
	for _, t := range q.tables() {
		var n int64
		err := q.q.QueryRow(ctx, "SELECT COUNT(*) FROM "+quote(t.name)).Scan(&n)
		if isUndefinedTable(err) {
			// A failed statement aborts an enclosing transaction, so
			// Status is only meaningful on a pool or bare connection.
			out = append(out, TableStatus{Table: t.name, Rows: -1})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("status %s: %w", t.name, err)
		}
		out = append(out, TableStatus{Table: t.name, Rows: n})
	}
	return out, nil
}

// Create creates every table, its indices and, with PostGIS, the location trigger.
func (q *queries) Create(ctx context.Context) error {
	if q.postgis {
		if _, err := q.q.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
			return fmt.Errorf("create postgis extension: %w", err)
		}
	}
	for _, t := range q.tables() {
		if _, err := q.q.Exec(ctx, t.createSQL()); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
		if err := q.createIndices(ctx, t); err != nil {
			return err
		}
		logging.Info().Str("table", t.name).Msg("table created")
	}
	if q.postgis {
		if _, err := q.q.Exec(ctx, locationTriggerSQL); err != nil {
			return fmt.Errorf("create location trigger: %w", err)
		}
	}
	return nil
}

// Truncate deletes all rows from every table.
func (q *queries) Truncate(ctx context.Context) error {
	for _, t := range q.tables() {
		if _, err := q.q.Exec(ctx, "TRUNCATE TABLE "+quote(t.name)+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", t.name, err)
		}
	}
	return nil
}

// Update migrates existing message tables to the current schema.
func (q *queries) Update(ctx context.Context) error {
	for _, t := range []table{cleanTable, dirtyTable} {
		logging.Debug().Str("table", t.name).Msg("updating schema")
		if _, err := q.q.Exec(ctx, "ALTER TABLE "+quote(t.name)+" ALTER COLUMN id SET DATA TYPE BIGINT"); err != nil {
			return fmt.Errorf("update %s: %w", t.name, err)
		}
	}
	return nil
}

// DropIndices drops the secondary indices of a message partition.
func (q *queries) DropIndices(ctx context.Context, p ais.Partition) error {
	t, err := partitionTable(string(p))
	if err != nil {
		return err
	}
	for _, stmt := range t.dropIndexSQL() {
		if _, err := q.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop indices on %s: %w", t.name, err)
		}
	}
	logging.Info().Str("table", t.name).Msg("indices dropped")
	return nil
}

// CreateIndices (re)builds the secondary indices of a message partition.
func (q *queries) CreateIndices(ctx context.Context, p ais.Partition) error {
	t, err := partitionTable(string(p))
	if err != nil {
		return err
	}
	return q.createIndices(ctx, t)
}

func (q *queries) createIndices(ctx context.Context, t table) error {
	for _, stmt := range t.createIndexSQL() {
		if _, err := q.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create indices on %s: %w", t.name, err)
		}
	}
	return nil
}

// Cluster physically reorders a message partition on its MMSI index.
func (q *queries) Cluster(ctx context.Context, p ais.Partition) error {
	t, err := partitionTable(string(p))
	if err != nil {
		return err
	}
	idx := t.indexName(index{name: "mmsi_idx"})
	logging.Info().Str("table", t.name).Str("index", idx).Msg("clustering table, this may take a while")
	if _, err := q.q.Exec(ctx, "CLUSTER "+quote(t.name)+" USING "+quote(idx)); err != nil {
		return fmt.Errorf("cluster %s: %w", t.name, err)
	}
	return nil
}

// SourceSeen reports whether a file is already in the import ledger for source.
func (q *queries) SourceSeen(ctx context.Context, filename string, source int16) (bool, error) {
	var seen bool
	err := q.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ais_sources WHERE filename = $1 AND source = $2)`,
		filename, source).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check source ledger: %w", err)
	}
	return seen, nil
}

// RecordSource adds a file to the import ledger.
func (q *queries) RecordSource(ctx context.Context, f ais.SourceFile) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO ais_sources (filename, ext, invalid, clean, dirty, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.Filename, f.Ext, f.Invalid, f.Clean, f.Dirty, f.Source)
	if err != nil {
		return fmt.Errorf("record source %s: %w", f.Filename, err)
	}
	return nil
}

// Sources lists the import ledger, most recent first.
func (q *queries) Sources(ctx context.Context, limit int) ([]ais.SourceFile, error) {
	rows, err := q.q.Query(ctx, `
		SELECT filename, ext, invalid, clean, dirty, source, timestamp
		FROM ais_sources
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []ais.SourceFile
	for rows.Next() {
		var f ais.SourceFile
		var source int32
		if err := rows.Scan(&f.Filename, &f.Ext, &f.Invalid, &f.Clean, &f.Dirty, &source, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		f.Source = int16(source)
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertMessages bulk-loads messages into a partition with COPY.
func (q *queries) InsertMessages(ctx context.Context, p ais.Partition, msgs []ais.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	t, err := partitionTable(string(p))
	if err != nil {
		return err
	}
	_, err = q.q.CopyFrom(ctx, pgx.Identifier{t.name}, ais.StorageColumns(),
		pgx.CopyFromSlice(len(msgs), func(i int) ([]any, error) {
			return msgs[i].Values(), nil
		}))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", t.name, err)
	}
	return nil
}

// MessageStream returns the messages of one MMSI in [from, to], ordered by time.
// Zero times leave that side of the range open.
func (q *queries) MessageStream(ctx context.Context, mmsi int64, from, to time.Time, p ais.Partition) ([]ais.Message, error) {
	t, err := partitionTable(string(p))
	if err != nil {
		return nil, err
	}

	where := []string{"mmsi = $1"}
	args := []any{mmsi}
	if !from.IsZero() {
		args = append(args, from)
		where = append(where, fmt.Sprintf("complete_sys_date >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		where = append(where, fmt.Sprintf("complete_sys_date <= $%d", len(args)))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY complete_sys_date ASC",
		strings.Join(ais.StorageColumns(), ", "), quote(t.name), strings.Join(where, " AND "))

	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s stream for %d: %w", t.name, mmsi, err)
	}
	defer rows.Close()

	var out []ais.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (ais.Message, error) {
	var (
		m          ais.Message
		dest, name *string
	)
	err := row.Scan(&m.MMSI, &m.Timestamp, &m.MessageType, &m.NavStatus, &m.SOG, &m.Longitude, &m.Latitude,
		&m.COG, &m.Heading, &m.IMO, &m.Draught, &dest, &name, &m.ShipType,
		&m.ETAMonth, &m.ETADay, &m.ETAHour, &m.ETAMinute, &m.Source)
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	if dest != nil {
		m.Destination = *dest
	}
	if name != nil {
		m.VesselName = *name
	}
	return m, nil
}

// ShipInfo returns the names and MMSIs seen with an IMO number.
func (q *queries) ShipInfo(ctx context.Context, imo int64) (*ShipInfo, error) {
	info := &ShipInfo{IMO: imo}

	rows, err := q.q.Query(ctx, `
		SELECT vessel_name, MIN(complete_sys_date), MAX(complete_sys_date)
		FROM ais_clean
		WHERE message_type = 5 AND imo_number = $1
		GROUP BY vessel_name
		ORDER BY MIN(complete_sys_date)
	`, imo)
	if err != nil {
		return nil, fmt.Errorf("query vessel names: %w", err)
	}
	for rows.Next() {
		var n VesselName
		var name *string
		if err := rows.Scan(&name, &n.FirstSeen, &n.LastSeen); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan vessel name: %w", err)
		}
		if name != nil {
			n.Name = *name
		}
		info.Names = append(info.Names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := q.imoListFor(ctx, TableIMOList, imo)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		first, last := e.FirstSeen, e.LastSeen
		info.MMSIs = append(info.MMSIs, MMSIObservations{MMSI: e.MMSI, FirstSeen: &first, LastSeen: &last})
	}
	return info, nil
}

func (q *queries) imoListFor(ctx context.Context, tableName string, imo int64) ([]ais.MMSIInterval, error) {
	rows, err := q.q.Query(ctx, fmt.Sprintf(`
		SELECT mmsi, imo_number, first_seen, last_seen
		FROM %s
		WHERE imo_number = $1
		ORDER BY first_seen
	`, quote(tableName)), imo)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", tableName, err)
	}
	return collectIntervals(rows)
}

// MessagesForVessel concatenates the message streams of every MMSI used by a
// vessel. With useClean the raw imo_list and ais_clean are read; otherwise the
// reconciled imo_list_clean and ais_extended.
func (q *queries) MessagesForVessel(ctx context.Context, imo int64, useClean bool) ([]ais.Message, error) {
	list, partition := TableIMOListClean, ais.Extended
	if useClean {
		list, partition = TableIMOList, ais.Clean
	}
	entries, err := q.imoListFor(ctx, list, imo)
	if err != nil {
		return nil, err
	}

	var out []ais.Message
	for _, e := range entries {
		stream, err := q.MessageStream(ctx, e.MMSI, e.FirstSeen, e.LastSeen, partition)
		if err != nil {
			return nil, err
		}
		out = append(out, stream...)
	}
	return out, nil
}

// IMOListEntries returns every row of imo_list.
func (q *queries) IMOListEntries(ctx context.Context) ([]ais.MMSIInterval, error) {
	rows, err := q.q.Query(ctx, `SELECT mmsi, imo_number, first_seen, last_seen FROM imo_list`)
	if err != nil {
		return nil, fmt.Errorf("query imo_list: %w", err)
	}
	return collectIntervals(rows)
}

// AggregateIntervals groups a partition by (mmsi, imo_number) with the first
// and last time each pair was seen. The dirty partition only contributes
// static data messages.
func (q *queries) AggregateIntervals(ctx context.Context, p ais.Partition) ([]ais.MMSIInterval, error) {
	var sql string
	switch p {
	case ais.Clean:
		sql = `SELECT mmsi, imo_number, MIN(complete_sys_date), MAX(complete_sys_date)
			FROM ais_clean
			GROUP BY mmsi, imo_number`
	case ais.Dirty:
		sql = `SELECT mmsi, imo_number, MIN(complete_sys_date), MAX(complete_sys_date)
			FROM ais_dirty
			WHERE message_type = 5 AND mmsi IS NOT NULL
			GROUP BY mmsi, imo_number`
	default:
		return nil, fmt.Errorf("aggregate intervals: unsupported partition %q", p)
	}
	rows, err := q.q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", p, err)
	}
	return collectIntervals(rows)
}

func collectIntervals(rows pgx.Rows) ([]ais.MMSIInterval, error) {
	defer rows.Close()
	var out []ais.MMSIInterval
	for rows.Next() {
		var iv ais.MMSIInterval
		if err := rows.Scan(&iv.MMSI, &iv.IMO, &iv.FirstSeen, &iv.LastSeen); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// InsertIMOList adds a new (mmsi, imo_number) window to imo_list.
func (q *queries) InsertIMOList(ctx context.Context, iv ais.MMSIInterval) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO imo_list (mmsi, imo_number, first_seen, last_seen)
		VALUES ($1, $2, $3, $4)
	`, iv.MMSI, iv.IMO, iv.FirstSeen, iv.LastSeen)
	if err != nil {
		return fmt.Errorf("insert imo_list: %w", err)
	}
	return nil
}

// MergeIMOList widens an existing imo_list window. It reports whether a row matched.
func (q *queries) MergeIMOList(ctx context.Context, iv ais.MMSIInterval) (bool, error) {
	tag, err := q.q.Exec(ctx, `
		UPDATE imo_list SET
			first_seen = LEAST(first_seen, $1),
			last_seen = GREATEST(last_seen, $2)
		WHERE mmsi = $3 AND imo_number IS NOT DISTINCT FROM $4
	`, iv.FirstSeen, iv.LastSeen, iv.MMSI, iv.IMO)
	if err != nil {
		return false, fmt.Errorf("update imo_list: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DistinctIMOs returns every IMO number in imo_list.
func (q *queries) DistinctIMOs(ctx context.Context) ([]int64, error) {
	rows, err := q.q.Query(ctx, `SELECT DISTINCT imo_number FROM imo_list WHERE imo_number IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query distinct imos: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var imo int64
		if err := rows.Scan(&imo); err != nil {
			return nil, fmt.Errorf("scan imo: %w", err)
		}
		out = append(out, imo)
	}
	return out, rows.Err()
}

// MMSIRanges pairs every MMSI window of an IMO with the window in which the
// same MMSI was seen without an IMO, ordered by combined start then MMSI.
func (q *queries) MMSIRanges(ctx context.Context, imo int64) ([]ais.IdentityRange, error) {
	rows, err := q.q.Query(ctx, `
		SELECT a.mmsi, a.imo_number,
			(a.first_seen, a.last_seen) OVERLAPS (b.first_seen, b.last_seen),
			LEAST(a.first_seen, b.first_seen),
			GREATEST(a.last_seen, b.last_seen)
		FROM imo_list AS a
		JOIN imo_list AS b ON a.mmsi = b.mmsi AND b.imo_number IS NULL
		WHERE a.imo_number = $1
		ORDER BY LEAST(a.first_seen, b.first_seen) ASC, a.mmsi ASC
	`, imo)
	if err != nil {
		return nil, fmt.Errorf("query mmsi ranges for %d: %w", imo, err)
	}
	defer rows.Close()

	var out []ais.IdentityRange
	for rows.Next() {
		var r ais.IdentityRange
		if err := rows.Scan(&r.MMSI, &r.IMO, &r.Overlaps, &r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("scan mmsi range: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SharedMMSIClaims counts pairs of distinct IMO numbers claiming any of mmsis.
func (q *queries) SharedMMSIClaims(ctx context.Context, mmsis []int64) (int, error) {
	var n int
	err := q.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM imo_list AS a
		JOIN imo_list AS b ON a.mmsi = b.mmsi AND a.imo_number < b.imo_number
		WHERE a.mmsi = ANY($1)
	`, mmsis).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query shared mmsi claims: %w", err)
	}
	return n, nil
}

// ImportedRange returns the already imported window of an (mmsi, imo) pair,
// or nil when nothing was imported yet.
func (q *queries) ImportedRange(ctx context.Context, mmsi, imo int64) (*ais.MMSIInterval, error) {
	iv := ais.MMSIInterval{MMSI: mmsi}
	err := q.q.QueryRow(ctx, `
		SELECT imo_number, first_seen, last_seen
		FROM imo_list_clean
		WHERE mmsi = $1 AND imo_number = $2
	`, mmsi, imo).Scan(&iv.IMO, &iv.FirstSeen, &iv.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query imported range: %w", err)
	}
	return &iv, nil
}

// CommitInterval writes one reconciled interval in a single transaction: the
// accepted rows into ais_extended, the audit actions, and the imo_list_clean
// window widened to cover the interval.
func (q *queries) CommitInterval(ctx context.Context, iv ais.ShipInterval, rows []ais.Message, actions []ais.Action) error {
	return q.InTx(ctx, func(tx *Tx) error {
		if err := tx.InsertMessages(ctx, ais.Extended, rows); err != nil {
			return err
		}
		for _, a := range actions {
			if _, err := tx.q.Exec(ctx, `
				INSERT INTO action_log (action, mmsi, ts_from, ts_to, count)
				VALUES ($1, $2, $3, $4, $5)
			`, a.Action, a.MMSI, a.From, a.To, a.Count); err != nil {
				return fmt.Errorf("insert action %q: %w", a.Action, err)
			}
		}
		if _, err := tx.q.Exec(ctx, `
			INSERT INTO imo_list_clean (mmsi, imo_number, first_seen, last_seen)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (mmsi, imo_number) DO UPDATE SET
				first_seen = LEAST(imo_list_clean.first_seen, EXCLUDED.first_seen),
				last_seen = GREATEST(imo_list_clean.last_seen, EXCLUDED.last_seen)
		`, iv.MMSI, iv.IMO, iv.Start, iv.End); err != nil {
			return fmt.Errorf("upsert imo_list_clean: %w", err)
		}
		return nil
	})
}
