package components

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"ais_parser/internal/imolist"
	"ais_parser/internal/ingest"
	"ais_parser/internal/logging"
	"ais_parser/internal/reconcile"
	"ais_parser/internal/registry"
	"ais_parser/internal/storage"
)

func aisparserComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "aisparser",
		ComponentKind: registry.KindProgram,
		In:            []string{"aiscsv"},
		Out:           []string{"aisdb", "baddata"},
		Exports: []registry.Command{
			{Name: "run", Description: "Parse, validate and store every new input file.", Run: runAISParser},
		},
	}
}

// ingestStore is an ingest.Store that must be closed after the run.
type ingestStore struct {
	ingest.Store
	close func()
}

func openIngestStore(ctx context.Context, env *registry.Env, backend string) (*ingestStore, error) {
	switch backend {
	case "sqlite":
		db, err := storage.OpenSQLite(env.Config.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &ingestStore{Store: db, close: func() { _ = db.Close() }}, nil
	case "postgres", "":
		db, err := openAISDB(ctx, env)
		if err != nil {
			return nil, err
		}
		return &ingestStore{Store: db, close: db.Close}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

func runAISParser(ctx context.Context, env *registry.Env, args []string) error {
	cfg := env.Config.AISParser
	fs := flags("run", env)
	source := fs.Int("source", int(cfg.Source), "Receiver id for every message: 0 satellite, 1 terrestrial")
	fromName := fs.Bool("source-from-name", cfg.SourceFromName, "Derive the receiver id from each file name")
	dropIndices := fs.Bool("drop-indices", cfg.DropIndices, "Drop message indices during the run")
	backend := fs.String("backend", cfg.Backend, "Message store: postgres or sqlite")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openIngestStore(ctx, env, *backend)
	if err != nil {
		return err
	}
	defer store.close()

	pub := openEvents(env)
	defer pub.Close()

	pipeline := ingest.New(store, ingest.Options{
		Source:          int16(*source),
		SourceFromName:  *fromName,
		DropIndices:     *dropIndices,
		QueueSize:       cfg.QueueSize,
		BatchSize:       cfg.BatchSize,
		DrainGrace:      cfg.DrainGrace,
		BadDataDir:      env.Config.BadData.Path,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
	}, pub)

	sum, err := pipeline.Run(ctx, inputRepository(env))
	if sum != nil {
		printIngestSummary(env.Out, sum)
	}
	return err
}

func printIngestSummary(w io.Writer, sum *ingest.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tCLEAN\tDIRTY\tINVALID\tSTATUS")
	for _, r := range sum.Files {
		status := "ok"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", r.File, r.Clean, r.Dirty, r.Invalid, status)
	}
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d ingested, %d skipped, %d failed in %s\n",
		sum.Clean, sum.Dirty, sum.Invalid, sum.Ingested, sum.Skipped, sum.Failed, sum.Duration.Round(time.Millisecond))
	_ = tw.Flush()
}

func imolistComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "imolist",
		ComponentKind: registry.KindProgram,
		Out:           []string{"aisdb"},
		Exports: []registry.Command{
			{Name: "run", Description: "Aggregate MMSI/IMO observation windows into imo_list.", Run: noArgs(runIMOList)},
		},
	}
}

func runIMOList(ctx context.Context, env *registry.Env) error {
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	b := imolist.New(func(ctx context.Context, fn func(imolist.Tx) error) error {
		return db.InTx(ctx, func(tx *storage.Tx) error { return fn(tx) })
	})
	res, err := b.Run(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.Out, "imo_list: %d existing, %d inserted, %d updated\n",
		res.Existing, res.Inserted, res.Updated)
	return err
}

func vesselImporterComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "vesselimporter",
		ComponentKind: registry.KindProgram,
		Out:           []string{"aisdb"},
		Exports: []registry.Command{
			{Name: "run", Description: "Reconcile identities and import vessel tracks into ais_extended.", Run: runVesselImporter},
		},
	}
}

func runVesselImporter(ctx context.Context, env *registry.Env, args []string) error {
	cfg := env.Config.VesselImporter
	fs := flags("run", env)
	workers := fs.Int("workers", cfg.Workers, "Number of import workers")
	dropIndices := fs.Bool("drop-indices", cfg.DropIndices, "Drop ais_extended indices during the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workers < 1 || int32(*workers) >= env.Config.AISDB.MaxConns {
		return fmt.Errorf("workers must be between 1 and %d", env.Config.AISDB.MaxConns-1)
	}

	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	im := &reconcile.Importer{
		Store: db,
		Open: func(ctx context.Context) (reconcile.Conn, error) {
			return db.Acquire(ctx)
		},
		Opts: reconcile.Options{
			Workers:          *workers,
			DropIndices:      *dropIndices,
			ProgressInterval: cfg.ProgressInterval,
		},
	}

	if env.Config.HasRepository("clickhouse") {
		ch, err := storage.OpenClickHouse(ctx, env.Config.ClickHouse)
		if err != nil {
			logging.Warn().Err(err).Msg("clickhouse mirror disabled")
		} else {
			defer func() { _ = ch.Close() }()
			im.Mirror = ch
		}
	}

	pub := openEvents(env)
	defer pub.Close()
	im.Events = pub

	sum, err := im.Run(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.Out,
		"%d imo numbers, %d intervals, %d pending: %d imported, %d empty, %d skipped, %d failed; %d rows, %d outliers in %s\n",
		sum.IMOs, sum.Intervals, sum.Pending, sum.Imported, sum.Empty, sum.Skipped, sum.Failed,
		sum.Rows, sum.Outliers, sum.Duration.Round(time.Millisecond))
	return err
}
