// Package components registers the ais_parser repositories and programs
// with the command registry. Import it for its side effects.
package components

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"ais_parser/internal/events"
	"ais_parser/internal/filerepo"
	"ais_parser/internal/logging"
	"ais_parser/internal/registry"
	"ais_parser/internal/storage"
)

func init() {
	registry.Register(aisdbComponent())
	registry.Register(clickhouseComponent())
	registry.Register(aiscsvComponent())
	registry.Register(baddataComponent())
	registry.Register(aisparserComponent())
	registry.Register(imolistComponent())
	registry.Register(vesselImporterComponent())
}

func openAISDB(ctx context.Context, env *registry.Env) (*storage.AISDB, error) {
	db, err := storage.OpenPostgres(ctx, env.Config.AISDB)
	if err != nil {
		return nil, fmt.Errorf("open aisdb: %w", err)
	}
	return db, nil
}

func openEvents(env *registry.Env) *events.Publisher {
	pub, err := events.Connect(env.Config.NATS)
	if err != nil {
		logging.Warn().Err(err).Msg("events disabled")
		return nil
	}
	return pub
}

func inputRepository(env *registry.Env) *filerepo.Repository {
	c := env.Config.AISCSV
	return &filerepo.Repository{
		Root:       c.Path,
		Extensions: c.Extensions,
		Recursive:  c.Recursive,
		Unzip:      c.Unzip,
	}
}

func flags(name string, env *registry.Env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Out)
	return fs
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func noArgs(fn func(ctx context.Context, env *registry.Env) error) func(context.Context, *registry.Env, []string) error {
	return func(ctx context.Context, env *registry.Env, _ []string) error {
		return fn(ctx, env)
	}
}
