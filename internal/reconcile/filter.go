// Package reconcile decides which IMO numbers map to one vessel through an
// unambiguous chain of MMSI numbers, and imports the clean messages of
// accepted vessels into the extended table after outlier detection.
package reconcile

import (
	"context"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
	"ais_parser/internal/metrics"
	"ais_parser/internal/validate"
)

// Store answers the reconciler's identity queries.
type Store interface {
	DistinctIMOs(ctx context.Context) ([]int64, error)
	MMSIRanges(ctx context.Context, imo int64) ([]ais.IdentityRange, error)
	SharedMMSIClaims(ctx context.Context, mmsis []int64) (int, error)
	ImportedRange(ctx context.Context, mmsi, imo int64) (*ais.MMSIInterval, error)
	DropIndices(ctx context.Context, p ais.Partition) error
	CreateIndices(ctx context.Context, p ais.Partition) error
}

// FilterGoodShips returns the IMO numbers whose MMSI chain is unambiguous,
// and one interval per MMSI of each accepted chain.
func FilterGoodShips(ctx context.Context, store Store) ([]int64, []ais.ShipInterval, error) {
	all, err := store.DistinctIMOs(ctx)
	if err != nil {
		return nil, nil, err
	}
	imos := all[:0:0]
	for _, imo := range all {
		if validate.IMO(imo) {
			imos = append(imos, imo)
		}
	}
	logging.Info().Int("count", len(imos)).Msg("checking imos")

	var accepted []int64
	var intervals []ais.ShipInterval
	for _, imo := range imos {
		ranges, err := store.MMSIRanges(ctx, imo)
		if err != nil {
			return nil, nil, err
		}
		if len(ranges) == 0 {
			metrics.IMOsChecked.WithLabelValues("no_ranges").Inc()
			continue
		}
		if !chainValid(ranges) {
			metrics.IMOsChecked.WithLabelValues("rejected").Inc()
			logging.Debug().Int64("imo", imo).Msg("ambiguous mmsi chain")
			continue
		}

		mmsis := make([]int64, len(ranges))
		for i, r := range ranges {
			mmsis[i] = r.MMSI
		}
		claims, err := store.SharedMMSIClaims(ctx, mmsis)
		if err != nil {
			return nil, nil, err
		}
		if claims > 0 {
			metrics.IMOsChecked.WithLabelValues("rejected").Inc()
			logging.Debug().Int64("imo", imo).Msg("mmsi reused by another imo")
			continue
		}

		metrics.IMOsChecked.WithLabelValues("accepted").Inc()
		accepted = append(accepted, imo)
		for _, r := range ranges {
			intervals = append(intervals, ais.ShipInterval{MMSI: r.MMSI, IMO: imo, Start: r.Start, End: r.End})
		}
	}
	return accepted, intervals, nil
}

// chainValid reports whether every range overlaps its no-IMO window and no
// range starts before the previous one ends. ranges must be ordered by start.
func chainValid(ranges []ais.IdentityRange) bool {
	for i, r := range ranges {
		if !r.Overlaps {
			return false
		}
		if i > 0 && r.Start.Before(ranges[i-1].End) {
			return false
		}
	}
	return true
}
