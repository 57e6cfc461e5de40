package api

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"ais_parser/internal/ais"
)

// TrackFeatures converts a vessel's messages into one feature per
// contiguous run of a single MMSI. Messages without a position are skipped.
// A run of one position becomes a Point, longer runs a LineString.
func TrackFeatures(msgs []ais.Message) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	var (
		line       orb.LineString
		mmsi       int64
		start, end time.Time
	)
	flushRun := func() {
		if len(line) == 0 {
			return
		}
		var g orb.Geometry = line
		if len(line) == 1 {
			g = line[0]
		}
		f := geojson.NewFeature(g)
		f.Properties["mmsi"] = mmsi
		f.Properties["start"] = start.UTC().Format(time.RFC3339)
		f.Properties["end"] = end.UTC().Format(time.RFC3339)
		f.Properties["points"] = len(line)
		fc.Append(f)
		line = nil
	}

	for i := range msgs {
		m := &msgs[i]
		if !m.HasPosition() || m.MMSI == nil {
			continue
		}
		if len(line) > 0 && *m.MMSI != mmsi {
			flushRun()
		}
		if len(line) == 0 {
			mmsi, start = *m.MMSI, m.Timestamp
		}
		line = append(line, orb.Point{*m.Longitude, *m.Latitude})
		end = m.Timestamp
	}
	flushRun()
	return fc
}
