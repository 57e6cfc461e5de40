// Command ais_parser ingests AIS message files into a PostgreSQL database,
// builds the MMSI/IMO identity list and imports reconciled vessel tracks.
//
// Usage:
//
//	ais_parser [-config FILE] list
//	ais_parser [-config FILE] init-config [-path FILE]
//	ais_parser [-config FILE] serve
//	ais_parser [-config FILE] <component> <command> [flags] [args]
//
// Typical run order:
//
//	ais_parser aisdb create
//	ais_parser aisparser run
//	ais_parser imolist run
//	ais_parser vesselimporter run -workers 4
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"ais_parser/internal/api"
	_ "ais_parser/internal/components" // register repositories and programs via init()
	"ais_parser/internal/config"
	"ais_parser/internal/logging"
	"ais_parser/internal/registry"
	"ais_parser/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "ais_parser - commands:")
	fmt.Fprintln(w, "  list                      - list available components and their commands")
	fmt.Fprintln(w, "  init-config               - write the default configuration file")
	fmt.Fprintln(w, "  serve                     - run the status API")
	fmt.Fprintln(w, "  <component> <command>     - run a component command")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ais_parser [-config ais_parser.yaml] aisparser run [-source 1] [-source-from-name] [-backend sqlite]")
	fmt.Fprintln(w, "  ais_parser vesselimporter run [-workers 4] [-drop-indices]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Settings are read from defaults, the config file, then environment variables.")
	fmt.Fprintln(w, "  - Components whose repositories are not configured are not listed.")
	fmt.Fprintln(w, "")
}

func main() {
	args := os.Args[1:]
	configPath := ""
	if len(args) >= 2 && (args[0] == "-config" || args[0] == "--config") {
		configPath, args = args[1], args[2:]
	}
	if len(args) < 1 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	case "init-config":
		runInitConfig(args[1:])
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &registry.Env{Config: cfg, Out: os.Stdout}

	switch cmd {
	case "list":
		runList(env)
	case "serve":
		if err := runServe(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	default:
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Missing command for %s\n\n", cmd)
			usage(os.Stderr)
			os.Exit(2)
		}
		tr, err := registry.Default().Dispatch(ctx, cmd, args[1], env, args[2:])
		if err != nil {
			if errors.Is(err, registry.ErrUnknownComponent) || errors.Is(err, registry.ErrUnknownCommand) {
				fmt.Fprintf(os.Stderr, "%v\n\n", err)
				usage(os.Stderr)
				os.Exit(2)
			}
			logging.Error().Err(err).Str("component", tr.Component).Str("command", tr.Command).
				Dur("elapsed", tr.Elapsed).Msg("command failed")
			os.Exit(1)
		}
		logging.Info().Str("component", tr.Component).Str("command", tr.Command).
			Dur("elapsed", tr.Elapsed).Msg("command finished")
	}
}

func runInitConfig(args []string) {
	path := config.DefaultConfigPaths[0]
	if len(args) == 2 && args[0] == "-path" {
		path = args[1]
	} else if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "Usage: ais_parser init-config [-path FILE]")
		os.Exit(2)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "%s already exists\n", path)
		os.Exit(1)
	}
	if err := config.WriteDefault(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}

func runList(env *registry.Env) {
	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	for _, c := range registry.Default().Available(env) {
		fmt.Fprintf(tw, "%s (%s)\t\n", c.Name(), c.Kind())
		for _, cmd := range c.Commands() {
			fmt.Fprintf(tw, "  %s\t%s\n", cmd.Name, cmd.Description)
		}
	}
	_ = tw.Flush()
}

func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := storage.OpenPostgresReadOnly(ctx, cfg.AISDB)
	if err != nil {
		return fmt.Errorf("open aisdb: %w", err)
	}
	defer db.Close()

	var tracks api.TrackStore
	if cfg.HasRepository("clickhouse") {
		ch, err := storage.OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			logging.Warn().Err(err).Msg("track summaries disabled")
		} else {
			defer func() { _ = ch.Close() }()
			tracks = ch
		}
	}

	return api.NewServer(db, tracks, api.Config{
		Addr:    cfg.API.Addr(),
		APIKeys: cfg.API.APIKeys,
	}).Run(ctx)
}
