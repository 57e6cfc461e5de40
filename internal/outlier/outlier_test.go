package outlier

import (
	"math"
	"testing"
	"time"

	"ais_parser/internal/ais"
)

var t0 = time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC)

func pos(hours float64, lon, lat float64) ais.Message {
	return ais.Message{
		Timestamp: t0.Add(time.Duration(hours * float64(time.Hour))),
		Longitude: &lon,
		Latitude:  &lat,
	}
}

func noPos(hours float64) ais.Message {
	return ais.Message{Timestamp: t0.Add(time.Duration(hours * float64(time.Hour)))}
}

func flagged(flags []bool) []int {
	var out []int
	for i, f := range flags {
		if f {
			out = append(out, i)
		}
	}
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		msgs []ais.Message
		want []int
	}{
		{
			name: "empty",
		},
		{
			name: "single positioned message",
			msgs: []ais.Message{noPos(0), pos(1, 0, 0), noPos(2)},
		},
		{
			name: "plausible track",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 0.1), pos(2, 0, 0.2)},
		},
		{
			name: "middle point jumps",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 1), pos(2, 0, 0.01)},
			want: []int{1},
		},
		{
			name: "first point jumps",
			msgs: []ais.Message{pos(0, 0, 1), pos(1, 0, 0), pos(1.1, 0, 0.01)},
			want: []int{0},
		},
		{
			name: "both start points inconsistent",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 1), pos(2, 0, 2), pos(3, 0, 2.001)},
			want: []int{0, 1},
		},
		{
			name: "two points at start",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 1)},
			want: []int{0, 1},
		},
		{
			name: "outlier after plausible leg is spliced out",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 0.01), pos(2, 0, 2), pos(3, 0, 0.02)},
			want: []int{2},
		},
		{
			name: "unpositioned messages are skipped",
			msgs: []ais.Message{pos(0, 0, 0), noPos(0.5), pos(1, 0, 1), noPos(1.5), pos(2, 0, 0.01)},
			want: []int{2},
		},
		{
			name: "long gap is not a jump",
			msgs: []ais.Message{pos(0, 0, 0), pos(1, 0, 0.01), pos(301, 0, 10), pos(302, 0, 10.01)},
		},
		{
			name: "jitter keeps start state",
			msgs: []ais.Message{pos(0, 0, 0), pos(0.001, 0, 0.0001), pos(1, 0, 0.01)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := Detect(tt.msgs)
			if len(flags) != len(tt.msgs) {
				t.Fatalf("len(flags) = %d, want %d", len(flags), len(tt.msgs))
			}
			got := flagged(flags)
			if len(got) != len(tt.want) {
				t.Fatalf("flagged = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("flagged = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestMeasure(t *testing.T) {
	leg := Measure(pos(0, 0, 0), pos(2, 0, 1))
	if leg.Elapsed != 2*time.Hour {
		t.Errorf("Elapsed = %v", leg.Elapsed)
	}
	// One degree of latitude at the equator on WGS84.
	if math.Abs(leg.Distance-110574.389) > 1 {
		t.Errorf("Distance = %f", leg.Distance)
	}
	wantSpeed := leg.Distance * metresToNauticalMiles / 2
	if math.Abs(leg.Speed-wantSpeed) > 1e-9 {
		t.Errorf("Speed = %f, want %f", leg.Speed, wantSpeed)
	}

	reversed := Measure(pos(2, 0, 1), pos(0, 0, 0))
	if reversed.Elapsed != 2*time.Hour {
		t.Errorf("reversed Elapsed = %v", reversed.Elapsed)
	}

	same := Measure(pos(1, 0, 0), pos(1, 0, 1))
	if same.Speed != UnavailableSpeed {
		t.Errorf("zero elapsed Speed = %f, want %f", same.Speed, UnavailableSpeed)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lon1, lat1, lon2, lat2 float64
		min, max               float64
	}{
		{"same point", 1, 1, 1, 1, 0, 0},
		{"one degree of longitude at equator", 0, 0, 1, 0, 111319, 111320},
		{"nearly antipodal", 0, 0, 179.5, 0.5, 1.9e7, 2.01e7},
		{"antipodal on the equator", 0, 0, 180, 0, 20003931, 20003932},
		{"one degree of latitude", 0, 0, 0, 1, 110574, 110575},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Distance(tt.lon1, tt.lat1, tt.lon2, tt.lat2)
			if math.IsNaN(d) || d < tt.min || d > tt.max {
				t.Errorf("Distance() = %f, want in [%f, %f]", d, tt.min, tt.max)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	msgs := []ais.Message{pos(0, 0, 0), pos(1, 0, 1), noPos(2), pos(3, 0, 0.01)}
	valid, invalid := Partition(msgs, []bool{false, true, false, false})

	if len(valid) != 3 || len(invalid) != 1 {
		t.Fatalf("Partition() = %d valid, %d invalid", len(valid), len(invalid))
	}
	if !valid[1].Timestamp.Equal(msgs[2].Timestamp) || !valid[2].Timestamp.Equal(msgs[3].Timestamp) {
		t.Error("valid messages out of order")
	}
	if Interpolate(valid) != nil {
		t.Error("Interpolate() should not synthesise messages")
	}
}
