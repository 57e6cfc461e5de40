// Package imolist builds the imo_list table: the time window in which each
// (mmsi, imo_number) pair was seen in the clean and dirty partitions.
package imolist

import (
	"context"
	"fmt"
	"time"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
)

// Tx is the imo_list access the builder needs inside one transaction.
type Tx interface {
	IMOListEntries(ctx context.Context) ([]ais.MMSIInterval, error)
	AggregateIntervals(ctx context.Context, p ais.Partition) ([]ais.MMSIInterval, error)
	InsertIMOList(ctx context.Context, iv ais.MMSIInterval) error
	MergeIMOList(ctx context.Context, iv ais.MMSIInterval) (bool, error)
}

// TxRunner runs fn in a transaction, committing when it returns nil.
type TxRunner func(ctx context.Context, fn func(Tx) error) error

// Result counts the rows touched by a build.
type Result struct {
	Existing int
	Inserted int
	Updated  int
}

// Builder upserts (mmsi, imo_number) intervals into imo_list.
type Builder struct {
	inTx TxRunner
}

// New creates a Builder.
func New(inTx TxRunner) *Builder {
	return &Builder{inTx: inTx}
}

type pair struct {
	mmsi   int64
	imo    int64
	hasIMO bool
}

func keyOf(iv ais.MMSIInterval) pair {
	if iv.IMO == nil {
		return pair{mmsi: iv.MMSI}
	}
	return pair{mmsi: iv.MMSI, imo: *iv.IMO, hasIMO: true}
}

// Run aggregates the clean partition, then static data messages of the
// dirty partition, into imo_list in a single transaction.
func (b *Builder) Run(ctx context.Context) (Result, error) {
	var res Result
	err := b.inTx(ctx, func(tx Tx) error {
		start := time.Now()
		entries, err := tx.IMOListEntries(ctx)
		if err != nil {
			return err
		}
		existing := make(map[pair]bool, len(entries))
		for _, iv := range entries {
			existing[keyOf(iv)] = true
		}
		res.Existing = len(existing)
		logging.Info().Int("count", res.Existing).Dur("elapsed", time.Since(start)).Msg("existing mmsi, imo_number pairs")

		for _, p := range []ais.Partition{ais.Clean, ais.Dirty} {
			start := time.Now()
			intervals, err := tx.AggregateIntervals(ctx, p)
			if err != nil {
				return err
			}
			logging.Info().
				Str("partition", string(p)).
				Int("count", len(intervals)).
				Dur("elapsed", time.Since(start)).
				Msg("got mmsi, imo_number pairs")

			inserted, updated, err := upsert(ctx, tx, intervals, existing)
			if err != nil {
				return fmt.Errorf("upsert %s pairs: %w", p, err)
			}
			res.Inserted += inserted
			res.Updated += updated
			logging.Info().
				Str("partition", string(p)).
				Int("inserted", inserted).
				Int("updated", updated).
				Dur("elapsed", time.Since(start)).
				Msg("upserted imo_list rows")
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// upsert inserts unseen pairs and widens the window of known ones. Inserted
// pairs join existing so a pair present in both partitions is merged.
func upsert(ctx context.Context, tx Tx, intervals []ais.MMSIInterval, existing map[pair]bool) (inserted, updated int, err error) {
	for _, iv := range intervals {
		k := keyOf(iv)
		if existing[k] {
			ok, err := tx.MergeIMOList(ctx, iv)
			if err != nil {
				return inserted, updated, err
			}
			if ok {
				updated++
			}
			continue
		}
		if err := tx.InsertIMOList(ctx, iv); err != nil {
			return inserted, updated, err
		}
		existing[k] = true
		inserted++
	}
	return inserted, updated, nil
}
