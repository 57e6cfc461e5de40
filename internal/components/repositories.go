package components

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
	"ais_parser/internal/normalize"
	"ais_parser/internal/registry"
	"ais_parser/internal/storage"
	"ais_parser/internal/validate"
)

func aisdbComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "aisdb",
		ComponentKind: registry.KindRepository,
		Out:           []string{"aisdb"},
		Exports: []registry.Command{
			{Name: "status", Description: "Report the row count of every table.", Run: noArgs(aisdbStatus)},
			{Name: "create", Description: "Create the tables, indices and triggers.", Run: withAISDB(func(ctx context.Context, db *storage.AISDB) error {
				return db.Create(ctx)
			})},
			{Name: "truncate", Description: "Delete every row of every table.", Run: withAISDB(func(ctx context.Context, db *storage.AISDB) error {
				return db.Truncate(ctx)
			})},
			{Name: "update", Description: "Widen message ids to BIGINT.", Run: withAISDB(func(ctx context.Context, db *storage.AISDB) error {
				return db.Update(ctx)
			})},
			{Name: "cluster", Description: "Cluster a message table on its mmsi index.", Run: aisdbCluster},
			{Name: "ship_info", Description: "Show names and MMSIs known for an IMO number.", Run: aisdbShipInfo},
			{Name: "messages", Description: "Dump the messages of a vessel by IMO number.", Run: aisdbMessages},
			{Name: "sources", Description: "List the most recently ingested files.", Run: aisdbSources},
		},
	}
}

func withAISDB(fn func(ctx context.Context, db *storage.AISDB) error) func(context.Context, *registry.Env, []string) error {
	return func(ctx context.Context, env *registry.Env, _ []string) error {
		db, err := openAISDB(ctx, env)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(ctx, db)
	}
}

func aisdbStatus(ctx context.Context, env *registry.Env) error {
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Status(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	for _, s := range status {
		if s.Created() {
			fmt.Fprintf(tw, "%s\t%d rows\n", s.Table, s.Rows)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", s.Table, storage.ErrNotCreated)
		}
	}
	return tw.Flush()
}

func aisdbCluster(ctx context.Context, env *registry.Env, args []string) error {
	fs := flags("cluster", env)
	partition := fs.String("table", string(ais.Clean), "Partition to cluster: clean, dirty or extended")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()
	logging.Info().Str("partition", *partition).Msg("clustering table, this may take a while")
	return db.Cluster(ctx, ais.Partition(*partition))
}

func parseIMO(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing imo number")
	}
	raw := normalize.IMOString(args[0])
	if !validate.IMOString(raw) {
		return 0, fmt.Errorf("invalid imo number %q", args[0])
	}
	imo, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return imo, nil
}

func aisdbShipInfo(ctx context.Context, env *registry.Env, args []string) error {
	imo, err := parseIMO(args)
	if err != nil {
		return err
	}
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.ShipInfo(ctx, imo)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, info)
}

func aisdbMessages(ctx context.Context, env *registry.Env, args []string) error {
	fs := flags("messages", env)
	useClean := fs.Bool("clean", false, "Read from ais_clean via imo_list instead of ais_extended")
	if err := fs.Parse(args); err != nil {
		return err
	}
	imo, err := parseIMO(fs.Args())
	if err != nil {
		return err
	}
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	msgs, err := db.MessagesForVessel(ctx, imo, *useClean)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, msgs)
}

func aisdbSources(ctx context.Context, env *registry.Env, args []string) error {
	fs := flags("sources", env)
	limit := fs.Int("limit", 20, "Number of ledger rows to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := openAISDB(ctx, env)
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.Sources(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSOURCE\tCLEAN\tDIRTY\tINVALID\tINGESTED")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Filename, s.Source, s.Clean, s.Dirty, s.Invalid, s.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func clickhouseComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "clickhouse",
		ComponentKind: registry.KindRepository,
		Out:           []string{"clickhouse"},
		Exports: []registry.Command{
			{Name: "create", Description: "Create the ais_extended mirror table.", Run: noArgs(func(ctx context.Context, env *registry.Env) error {
				ch, err := storage.OpenClickHouse(ctx, env.Config.ClickHouse)
				if err != nil {
					return err
				}
				defer func() { _ = ch.Close() }()
				return ch.CreateSchema(ctx)
			})},
			{Name: "tracks", Description: "Summarise mirrored vessel tracks.", Run: clickhouseTracks},
		},
	}
}

func clickhouseTracks(ctx context.Context, env *registry.Env, args []string) error {
	fs := flags("tracks", env)
	limit := fs.Int("limit", 50, "Number of tracks to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ch, err := storage.OpenClickHouse(ctx, env.Config.ClickHouse)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	tracks, err := ch.TrackSummaries(ctx, *limit)
	if err != nil {
		return err
	}
	return writeJSON(env.Out, tracks)
}

func aiscsvComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "aiscsv",
		ComponentKind: registry.KindRepository,
		In:            []string{"aiscsv"},
		Exports: []registry.Command{
			{Name: "status", Description: "Count the input files.", Run: noArgs(func(_ context.Context, env *registry.Env) error {
				st, err := inputRepository(env).Status()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(env.Out, "%s: %d files, %d archives\n", st.Root, st.Files, st.Archives)
				return err
			})},
		},
	}
}

func baddataComponent() registry.Component {
	return &registry.Spec{
		ComponentName: "baddata",
		ComponentKind: registry.KindRepository,
		Out:           []string{"baddata"},
		Exports: []registry.Command{
			{Name: "status", Description: "Count the bad data logs.", Run: noArgs(func(_ context.Context, env *registry.Env) error {
				dir := env.Config.BadData.Path
				entries, err := os.ReadDir(dir)
				if err != nil && !os.IsNotExist(err) {
					return err
				}
				n := 0
				for _, e := range entries {
					if e.Type().IsRegular() {
						n++
					}
				}
				_, err = fmt.Fprintf(env.Out, "%s: %d logs\n", dir, n)
				return err
			})},
		},
	}
}
