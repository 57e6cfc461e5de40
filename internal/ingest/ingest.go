// Package ingest reads AIS input files, routes every record to the clean or
// dirty partition and records each completed file in the source ledger.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ais_parser/internal/ais"
	"ais_parser/internal/events"
	"ais_parser/internal/filerepo"
	"ais_parser/internal/logging"
	"ais_parser/internal/metrics"
	"ais_parser/internal/normalize"
	"ais_parser/internal/source"
	"ais_parser/internal/storage"
)

// FileTx holds one file's messages and ledger entry until Commit.
type FileTx = storage.IngestTx

// Store persists messages and the source ledger.
type Store interface {
	SourceSeen(ctx context.Context, filename string, source int16) (bool, error)
	BeginIngest(ctx context.Context) (FileTx, error)
	DropIndices(ctx context.Context, p ais.Partition) error
	CreateIndices(ctx context.Context, p ais.Partition) error
}

// Files yields the input files of a run.
type Files interface {
	Walk(ctx context.Context, fn func(filerepo.File) error) error
}

// Options configures a pipeline.
type Options struct {
	Source         int16
	SourceFromName bool
	DropIndices    bool
	QueueSize      int
	BatchSize      int
	DrainGrace     time.Duration
	BadDataDir     string

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultOptions returns the default pipeline options.
func DefaultOptions() Options {
	return Options{
		QueueSize:       1_000_000,
		BatchSize:       50_000,
		DrainGrace:      500 * time.Millisecond,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Result is the outcome of one input file.
type Result struct {
	File     string
	Ext      string
	Source   int16
	Invalid  int
	Clean    int
	Dirty    int
	Duration time.Duration
	Skipped  bool
	Err      error
}

// Summary totals a run.
type Summary struct {
	RunID    string
	Files    []Result
	Ingested int
	Skipped  int
	Failed   int
	Invalid  int
	Clean    int
	Dirty    int
	Duration time.Duration
}

func (s *Summary) add(r Result) {
	s.Files = append(s.Files, r)
	switch {
	case r.Err != nil:
		s.Failed++
	case r.Skipped:
		s.Skipped++
	default:
		s.Ingested++
		s.Invalid += r.Invalid
		s.Clean += r.Clean
		s.Dirty += r.Dirty
	}
}

// Pipeline ingests input files into a Store.
type Pipeline struct {
	store  Store
	opts   Options
	events *events.Publisher
}

// New creates a pipeline. A nil publisher disables events.
func New(store Store, opts Options, pub *events.Publisher) *Pipeline {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = def.DrainGrace
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = def.BreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = def.BreakerTimeout
	}
	return &Pipeline{store: store, opts: opts, events: pub}
}

var partitions = []ais.Partition{ais.Clean, ais.Dirty}

// Run ingests every file not already in the ledger. File errors are logged
// and counted; only context cancellation or index maintenance failures
// abort the run. Dropped indices are rebuilt however the run ends.
func (p *Pipeline) Run(ctx context.Context, files Files) (sum *Summary, err error) {
	sum = &Summary{RunID: uuid.NewString()}
	start := time.Now()
	log := logging.With().Str("run_id", sum.RunID).Logger()

	if p.opts.DropIndices {
		defer func() {
			err = errors.Join(err, p.rebuildIndices(ctx))
		}()
		for _, part := range partitions {
			if err := p.store.DropIndices(ctx, part); err != nil {
				return sum, fmt.Errorf("drop %s indices: %w", part, err)
			}
		}
	}

	clean := newWriter(ais.Clean, p.opts)
	dirty := newWriter(ais.Dirty, p.opts)
	go clean.run(ctx)
	go dirty.run(ctx)

	walkErr := files.Walk(ctx, func(f filerepo.File) error {
		res, err := p.ingestFile(ctx, f, clean, dirty)
		if err != nil {
			return err
		}
		sum.add(res)
		switch {
		case res.Err != nil:
			metrics.FilesTotal.WithLabelValues("failed").Inc()
			log.Warn().Err(res.Err).Str("file", res.File).Msg("error parsing file, rolled back")
		case res.Skipped:
			metrics.FilesTotal.WithLabelValues("skipped").Inc()
			log.Info().Str("file", res.File).Msg("already parsed, skipping")
		default:
			metrics.FilesTotal.WithLabelValues("ingested").Inc()
			log.Info().
				Str("file", res.File).
				Int("clean", res.Clean).
				Int("dirty", res.Dirty).
				Int("invalid", res.Invalid).
				Dur("duration", res.Duration).
				Msg("completed")
			p.publish(sum.RunID, res)
		}
		return nil
	})

	clean.close()
	dirty.close()
	sum.Duration = time.Since(start)
	if walkErr != nil {
		return sum, walkErr
	}
	log.Info().
		Int("files", sum.Ingested).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur("elapsed", sum.Duration).
		Msg("parsing complete")
	return sum, nil
}

// rebuildIndices runs even after cancellation so a run never leaves the
// partitions without their indices.
func (p *Pipeline) rebuildIndices(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	logging.Info().Msg("rebuilding table indices")
	var errs []error
	for _, part := range partitions {
		if err := p.store.CreateIndices(ctx, part); err != nil {
			errs = append(errs, fmt.Errorf("create %s indices: %w", part, err))
		}
	}
	logging.Info().Dur("elapsed", time.Since(start)).Msg("finished building indices")
	return errors.Join(errs...)
}

func (p *Pipeline) sourceFor(name string) int16 {
	if p.opts.SourceFromName {
		return ais.SourceFromFilename(name)
	}
	return p.opts.Source
}

// ingestFile parses one file inside a single store transaction, so a file
// either lands whole with its ledger row or leaves nothing behind. Problems
// with the file are reported in the Result; the returned error is reserved
// for cancellation.
func (p *Pipeline) ingestFile(ctx context.Context, f filerepo.File, clean, dirty *writer) (Result, error) {
	res := Result{File: f.Name, Ext: f.Ext, Source: p.sourceFor(f.Name)}
	start := time.Now()

	seen, err := p.store.SourceSeen(ctx, f.Name, res.Source)
	if err != nil {
		res.Err = err
		return res, ctx.Err()
	}
	if seen {
		res.Skipped = true
		return res, nil
	}

	logging.Info().Str("file", f.Name).Msg("parsing")
	bad, err := openBadData(p.opts.BadDataDir, f.Name)
	if err != nil {
		res.Err = err
		return res, nil
	}

	tx, err := p.store.BeginIngest(ctx)
	if err != nil {
		_ = bad.close(0)
		res.Err = fmt.Errorf("begin: %w", err)
		return res, ctx.Err()
	}
	clean.begin(tx)
	dirty.begin(tx)

	err = p.parse(ctx, f, &res, bad, clean, dirty)
	if cerr := bad.close(res.Invalid); cerr != nil {
		logging.Warn().Err(cerr).Str("file", f.Name).Msg("error closing bad data log")
	}
	err = errors.Join(err, clean.end(), dirty.end())

	if err == nil {
		res.Duration = time.Since(start)
		err = tx.RecordSource(ctx, ais.SourceFile{
			Filename: res.File,
			Ext:      res.Ext,
			Invalid:  res.Invalid,
			Clean:    res.Clean,
			Dirty:    res.Dirty,
			Source:   res.Source,
		})
	}
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			logging.Warn().Err(rerr).Str("file", f.Name).Msg("error rolling back file")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Err = err
	}
	return res, nil
}

func (p *Pipeline) parse(ctx context.Context, f filerepo.File, res *Result, bad *badDataLog, clean, dirty *writer) error {
	rd, err := source.NewReader(f.Reader, f.Ext)
	if err != nil {
		return err
	}
	return source.Each(rd, func(rec ais.RawRecord) error {
		msg, outcome, err := normalize.Route(rec, res.Source)
		metrics.RecordsTotal.WithLabelValues(outcome.String()).Inc()
		switch outcome {
		case normalize.OutcomeClean:
			res.Clean++
			return clean.enqueue(ctx, *msg)
		case normalize.OutcomeDirty:
			res.Dirty++
			return dirty.enqueue(ctx, *msg)
		}
		res.Invalid++
		if werr := bad.write(rec.RawFields(), err.Error()); werr != nil {
			logging.Warn().Err(werr).Str("file", f.Name).Msg("error writing bad data log")
		}
		return nil
	})
}

func (p *Pipeline) publish(runID string, res Result) {
	err := p.events.FileIngested(events.FileIngested{
		RunID:    runID,
		Filename: res.File,
		Ext:      res.Ext,
		Source:   res.Source,
		Invalid:  res.Invalid,
		Clean:    res.Clean,
		Dirty:    res.Dirty,
		Duration: res.Duration,
		At:       time.Now().UTC(),
	})
	if err != nil {
		logging.Warn().Err(err).Str("file", res.File).Msg("error publishing file event")
	}
}
