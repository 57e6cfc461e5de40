package reconcile

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ais_parser/internal/ais"
	"ais_parser/internal/events"
	"ais_parser/internal/logging"
	"ais_parser/internal/metrics"
	"ais_parser/internal/outlier"
)

// Conn is a worker-owned connection.
type Conn interface {
	ImportedRange(ctx context.Context, mmsi, imo int64) (*ais.MMSIInterval, error)
	MessageStream(ctx context.Context, mmsi int64, from, to time.Time, p ais.Partition) ([]ais.Message, error)
	CommitInterval(ctx context.Context, iv ais.ShipInterval, rows []ais.Message, actions []ais.Action) error
	Release()
}

// Mirror receives accepted tracks after they are committed.
type Mirror interface {
	InsertTrack(ctx context.Context, iv ais.ShipInterval, msgs []ais.Message) error
}

// Options configures an Importer.
type Options struct {
	Workers          int
	DropIndices      bool
	ProgressInterval time.Duration
}

// Importer copies the clean messages of reconciled vessels into the
// extended table.
type Importer struct {
	Store  Store
	Open   func(ctx context.Context) (Conn, error)
	Mirror Mirror            // optional
	Events *events.Publisher // optional
	Opts   Options
}

// Summary totals an import run.
type Summary struct {
	RunID     string
	IMOs      int
	Intervals int
	Pending   int
	Imported  int
	Empty     int
	Skipped   int
	Failed    int
	Rows      int
	Outliers  int
	Duration  time.Duration
}

type outcome int

const (
	outcomeImported outcome = iota
	outcomeEmpty
	outcomeSkipped
	outcomeFailed
)

var outcomeLabels = map[outcome]string{
	outcomeImported: "imported",
	outcomeEmpty:    "empty",
	outcomeSkipped:  "skipped",
	outcomeFailed:   "failed",
}

// Run reconciles every IMO number and imports the remaining work of each
// accepted interval.
func (im *Importer) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.NewString()}
	log := logging.With().Str("run_id", sum.RunID).Logger()

	imos, intervals, err := FilterGoodShips(ctx, im.Store)
	if err != nil {
		return nil, err
	}
	sum.IMOs, sum.Intervals = len(imos), len(intervals)
	log.Info().Int("imos", len(imos)).Int("mmsis", len(intervals)).Msg("got valid imo numbers")

	pending := make([]ais.ShipInterval, 0, len(intervals))
	for _, iv := range intervals {
		prior, err := im.Store.ImportedRange(ctx, iv.MMSI, iv.IMO)
		if err != nil {
			log.Warn().Err(err).Int64("mmsi", iv.MMSI).Msg("error reading imported range")
			continue
		}
		rest, ok, err := Remaining(Span{Start: iv.Start, End: iv.End}, prior)
		if err != nil {
			log.Warn().Err(err).Int64("mmsi", iv.MMSI).Int64("imo", iv.IMO).Msg("error calculating remaining interval")
			continue
		}
		if ok {
			iv.Start, iv.End = rest.Start, rest.End
			pending = append(pending, iv)
		}
	}
	// Sorting by MMSI keeps reads sequential on a table clustered by mmsi.
	slices.SortStableFunc(pending, func(a, b ais.ShipInterval) int {
		if c := cmp.Compare(a.MMSI, b.MMSI); c != 0 {
			return c
		}
		return a.Start.Compare(b.Start)
	})
	sum.Pending = len(pending)
	log.Info().Int("count", len(pending)).Msg("intervals to import")

	if len(pending) > 0 {
		if im.Opts.DropIndices {
			if err := im.Store.DropIndices(ctx, ais.Extended); err != nil {
				return sum, err
			}
		}
		if err := im.importAll(ctx, sum, pending); err != nil {
			return sum, err
		}
		if im.Opts.DropIndices {
			if err := im.Store.CreateIndices(ctx, ais.Extended); err != nil {
				return sum, err
			}
		}
	}

	sum.Duration = time.Since(start)
	log.Info().
		Int("imported", sum.Imported).
		Int("empty", sum.Empty).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("rows", sum.Rows).
		Int("outliers", sum.Outliers).
		Dur("elapsed", sum.Duration).
		Msg("vessel importer done")
	return sum, nil
}

// queue hands intervals to workers in order.
type queue struct {
	mu    sync.Mutex
	items []ais.ShipInterval
	next  int
}

func (q *queue) pop() (ais.ShipInterval, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.items) {
		return ais.ShipInterval{}, false
	}
	iv := q.items[q.next]
	q.next++
	return iv, true
}

func (q *queue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.next
}

func (im *Importer) importAll(ctx context.Context, sum *Summary, intervals []ais.ShipInterval) error {
	workers := im.Opts.Workers
	if workers < 1 {
		workers = 2
	}
	logging.Info().Int("count", len(intervals)).Int("workers", workers).Msg("inserting clean intervals")

	q := &queue{items: intervals}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			conn, err := im.Open(gctx)
			if err != nil {
				return err
			}
			defer conn.Release()

			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				iv, ok := q.pop()
				if !ok {
					return nil
				}
				res := im.process(gctx, conn, sum.RunID, iv)
				metrics.IntervalsTotal.WithLabelValues(outcomeLabels[res.outcome]).Inc()

				mu.Lock()
				switch res.outcome {
				case outcomeImported:
					sum.Imported++
					sum.Rows += res.rows
					sum.Outliers += res.outliers
				case outcomeEmpty:
					sum.Empty++
				case outcomeSkipped:
					sum.Skipped++
				case outcomeFailed:
					sum.Failed++
				}
				mu.Unlock()
			}
		})
	}

	done := make(chan struct{})
	go im.reportProgress(done, q, len(intervals))
	err := g.Wait()
	close(done)
	return err
}

func (im *Importer) reportProgress(done <-chan struct{}, q *queue, total int) {
	every := im.Opts.ProgressInterval
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	start := time.Now()
	last := total
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			remain := q.remaining()
			if remain >= last {
				continue
			}
			last = remain
			completed := total - remain
			logging.Info().
				Int("completed", completed).
				Int("total", total).
				Float64("rate", float64(completed)/time.Since(start).Seconds()).
				Msg("mmsis completed")
		}
	}
}

type result struct {
	outcome  outcome
	rows     int
	outliers int
}

// process imports one interval on conn.
func (im *Importer) process(ctx context.Context, conn Conn, runID string, iv ais.ShipInterval) result {
	log := logging.With().Int64("mmsi", iv.MMSI).Int64("imo", iv.IMO).Logger()
	started := time.Now()

	// Another run may have imported part of the interval since it was queued.
	prior, err := conn.ImportedRange(ctx, iv.MMSI, iv.IMO)
	if err != nil {
		log.Warn().Err(err).Msg("error reading imported range")
		return result{outcome: outcomeFailed}
	}
	rest, ok, err := Remaining(Span{Start: iv.Start, End: iv.End}, prior)
	if err != nil {
		log.Warn().Err(err).Msg("error calculating remaining interval")
		return result{outcome: outcomeSkipped}
	}
	if !ok {
		return result{outcome: outcomeSkipped}
	}
	iv.Start, iv.End = rest.Start, rest.End

	msgs, err := conn.MessageStream(ctx, iv.MMSI, iv.Start, iv.End, ais.Clean)
	if err != nil {
		log.Warn().Err(err).Msg("error loading message stream")
		return result{outcome: outcomeFailed}
	}
	if len(msgs) == 0 {
		log.Warn().Time("start", iv.Start).Time("end", iv.End).Msg("no rows to insert for interval")
		return result{outcome: outcomeEmpty}
	}

	valid, invalid := outlier.Partition(msgs, outlier.Detect(msgs))
	artificial := outlier.Interpolate(valid)
	rows := append(valid, artificial...)

	actions := []ais.Action{
		{Action: ais.ActionImport, MMSI: iv.MMSI, From: iv.Start, To: iv.End, Count: len(valid)},
		{Action: ais.ActionOutliers, MMSI: iv.MMSI, From: iv.Start, To: iv.End, Count: len(invalid)},
		{Action: ais.ActionInterpolation, MMSI: iv.MMSI, From: iv.Start, To: iv.End, Count: len(artificial)},
	}
	if err := conn.CommitInterval(ctx, iv, rows, actions); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("error committing interval")
		}
		return result{outcome: outcomeFailed}
	}
	metrics.OutliersTotal.Add(float64(len(invalid)))

	if im.Mirror != nil {
		if err := im.Mirror.InsertTrack(ctx, iv, rows); err != nil {
			log.Warn().Err(err).Msg("error mirroring track")
		}
	}
	if err := im.Events.IntervalImported(events.IntervalImported{
		RunID:      runID,
		MMSI:       iv.MMSI,
		IMO:        iv.IMO,
		Start:      iv.Start,
		End:        iv.End,
		Valid:      len(valid),
		Outliers:   len(invalid),
		Artificial: len(artificial),
		At:         time.Now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Msg("error publishing interval event")
	}

	log.Debug().Int("count", len(rows)).Dur("elapsed", time.Since(started)).Msg("inserted rows")
	return result{outcome: outcomeImported, rows: len(rows), outliers: len(invalid)}
}
