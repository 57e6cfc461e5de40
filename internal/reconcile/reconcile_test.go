package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ais_parser/internal/ais"
)

func day(d int) time.Time {
	return time.Date(2016, 3, d, 0, 0, 0, 0, time.UTC)
}

const (
	imoA = 9074729
	imoB = 9176187
	imoC = 9321172
)

type memDB struct {
	mu       sync.Mutex
	imos     []int64
	ranges   map[int64][]ais.IdentityRange
	claims   map[int64]int // mmsi -> other IMOs claiming it
	imported map[[2]int64]ais.MMSIInterval
	streams  map[int64][]ais.Message
	commits  []commit
	dropped  int
	created  int
	open     int
}

type commit struct {
	iv      ais.ShipInterval
	rows    []ais.Message
	actions []ais.Action
}

func newMemDB() *memDB {
	return &memDB{
		ranges:   map[int64][]ais.IdentityRange{},
		claims:   map[int64]int{},
		imported: map[[2]int64]ais.MMSIInterval{},
		streams:  map[int64][]ais.Message{},
	}
}

func (m *memDB) DistinctIMOs(context.Context) ([]int64, error) { return m.imos, nil }

func (m *memDB) MMSIRanges(_ context.Context, imo int64) ([]ais.IdentityRange, error) {
	return m.ranges[imo], nil
}

func (m *memDB) SharedMMSIClaims(_ context.Context, mmsis []int64) (int, error) {
	n := 0
	for _, mmsi := range mmsis {
		n += m.claims[mmsi]
	}
	return n, nil
}

func (m *memDB) ImportedRange(_ context.Context, mmsi, imo int64) (*ais.MMSIInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	iv, ok := m.imported[[2]int64{mmsi, imo}]
	if !ok {
		return nil, nil
	}
	return &iv, nil
}

func (m *memDB) DropIndices(context.Context, ais.Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
	return nil
}

func (m *memDB) CreateIndices(context.Context, ais.Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	return nil
}

func (m *memDB) MessageStream(_ context.Context, mmsi int64, from, to time.Time, _ ais.Partition) ([]ais.Message, error) {
	var out []ais.Message
	for _, msg := range m.streams[mmsi] {
		if !msg.Timestamp.Before(from) && !msg.Timestamp.After(to) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memDB) CommitInterval(_ context.Context, iv ais.ShipInterval, rows []ais.Message, actions []ais.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, commit{iv, rows, actions})
	key := [2]int64{iv.MMSI, iv.IMO}
	cur, ok := m.imported[key]
	if !ok {
		imo := iv.IMO
		m.imported[key] = ais.MMSIInterval{MMSI: iv.MMSI, IMO: &imo, FirstSeen: iv.Start, LastSeen: iv.End}
		return nil
	}
	if iv.Start.Before(cur.FirstSeen) {
		cur.FirstSeen = iv.Start
	}
	if iv.End.After(cur.LastSeen) {
		cur.LastSeen = iv.End
	}
	m.imported[key] = cur
	return nil
}

func (m *memDB) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open--
}

func (m *memDB) Open(context.Context) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open++
	return m, nil
}

type memMirror struct {
	mu   sync.Mutex
	rows int
}

func (m *memMirror) InsertTrack(_ context.Context, _ ais.ShipInterval, msgs []ais.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows += len(msgs)
	return nil
}

func identity(mmsi int64, overlaps bool, start, end time.Time) ais.IdentityRange {
	return ais.IdentityRange{MMSI: mmsi, Overlaps: overlaps, Start: start, End: end}
}

func TestFilterGoodShips(t *testing.T) {
	tests := []struct {
		name      string
		ranges    []ais.IdentityRange
		claims    map[int64]int
		accepted  bool
		intervals int
	}{
		{
			name:      "single mmsi",
			ranges:    []ais.IdentityRange{identity(235012345, true, day(1), day(10))},
			accepted:  true,
			intervals: 1,
		},
		{
			name: "consecutive mmsis",
			ranges: []ais.IdentityRange{
				identity(235012345, true, day(1), day(10)),
				identity(235099999, true, day(10), day(20)),
			},
			accepted:  true,
			intervals: 2,
		},
		{
			name: "no ranges",
		},
		{
			name:   "gap to no-imo window",
			ranges: []ais.IdentityRange{identity(235012345, false, day(1), day(10))},
		},
		{
			name: "mmsi windows overlap",
			ranges: []ais.IdentityRange{
				identity(235012345, true, day(1), day(10)),
				identity(235099999, true, day(5), day(20)),
			},
		},
		{
			name:   "mmsi claimed by another imo",
			ranges: []ais.IdentityRange{identity(235012345, true, day(1), day(10))},
			claims: map[int64]int{235012345: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemDB()
			db.imos = []int64{imoA, 1234568}
			db.ranges[imoA] = tt.ranges
			db.ranges[1234568] = []ais.IdentityRange{identity(111111111, true, day(1), day(2))}
			if tt.claims != nil {
				db.claims = tt.claims
			}

			imos, intervals, err := FilterGoodShips(context.Background(), db)
			if err != nil {
				t.Fatalf("FilterGoodShips() error = %v", err)
			}
			if got := len(imos) == 1 && imos[0] == imoA; got != tt.accepted {
				t.Errorf("accepted imos = %v, want accepted=%v", imos, tt.accepted)
			}
			if len(intervals) != tt.intervals {
				t.Fatalf("intervals = %+v, want %d", intervals, tt.intervals)
			}
			for i, iv := range intervals {
				r := tt.ranges[i]
				if iv.MMSI != r.MMSI || iv.IMO != imoA || !iv.Start.Equal(r.Start) || !iv.End.Equal(r.End) {
					t.Errorf("interval %d = %+v", i, iv)
				}
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	req := Span{Start: day(1), End: day(10)}
	prior := func(first, last time.Time) *ais.MMSIInterval {
		return &ais.MMSIInterval{FirstSeen: first, LastSeen: last}
	}

	tests := []struct {
		name    string
		req     Span
		prior   *ais.MMSIInterval
		want    Span
		ok      bool
		wantErr error
	}{
		{name: "nothing imported", req: req, want: req, ok: true},
		{name: "empty request", req: Span{Start: day(1), End: day(1)}},
		{name: "fully imported", req: req, prior: prior(day(1), day(10))},
		{name: "disjoint", req: req, prior: prior(day(12), day(14)), want: req, ok: true},
		{
			name:  "head imported",
			req:   req,
			prior: prior(day(0), day(5)),
			want:  Span{Start: day(5).Add(time.Second), End: day(10)},
			ok:    true,
		},
		{
			name:  "tail imported",
			req:   req,
			prior: prior(day(5), day(12)),
			want:  Span{Start: day(1), End: day(5).Add(-time.Second)},
			ok:    true,
		},
		{name: "middle imported", req: req, prior: prior(day(3), day(5)), wantErr: ErrNonContiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Remaining(tt.req, tt.prior)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Remaining() error = %v, want %v", err, tt.wantErr)
			}
			if ok != tt.ok {
				t.Fatalf("Remaining() ok = %v, want %v", ok, tt.ok)
			}
			if ok && (!got.Start.Equal(tt.want.Start) || !got.End.Equal(tt.want.End)) {
				t.Errorf("Remaining() = %v - %v, want %v - %v", got.Start, got.End, tt.want.Start, tt.want.End)
			}
		})
	}
}

func track(mmsi int64, points ...[3]float64) []ais.Message {
	var out []ais.Message
	for _, p := range points {
		lon, lat := p[1], p[2]
		id := mmsi
		out = append(out, ais.Message{
			MMSI:      &id,
			Timestamp: day(2).Add(time.Duration(p[0] * float64(time.Hour))),
			Longitude: &lon,
			Latitude:  &lat,
		})
	}
	return out
}

func TestImporterRun(t *testing.T) {
	db := newMemDB()
	db.imos = []int64{imoA, imoB, imoC}
	db.ranges[imoA] = []ais.IdentityRange{identity(235012345, true, day(1), day(10))}
	db.ranges[imoB] = []ais.IdentityRange{identity(235099999, true, day(1), day(10))}
	db.ranges[imoC] = []ais.IdentityRange{identity(211111111, true, day(1), day(10))}
	// The middle report jumps a degree of latitude in an hour.
	db.streams[235012345] = track(235012345, [3]float64{0, 0, 0}, [3]float64{1, 0, 1}, [3]float64{2, 0, 0.01})
	// imoC was imported by an earlier run.
	imo := int64(imoC)
	db.imported[[2]int64{211111111, imoC}] = ais.MMSIInterval{MMSI: 211111111, IMO: &imo, FirstSeen: day(1), LastSeen: day(10)}

	mirror := &memMirror{}
	im := &Importer{
		Store:  db,
		Open:   db.Open,
		Mirror: mirror,
		Opts:   Options{Workers: 2, DropIndices: true, ProgressInterval: time.Millisecond},
	}

	sum, err := im.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.IMOs != 3 || sum.Intervals != 3 || sum.Pending != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Imported != 1 || sum.Empty != 1 || sum.Rows != 2 || sum.Outliers != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if db.open != 0 {
		t.Errorf("%d connections not released", db.open)
	}
	if db.dropped != 1 || db.created != 1 {
		t.Errorf("indices dropped %d, created %d", db.dropped, db.created)
	}
	if mirror.rows != 2 {
		t.Errorf("mirrored rows = %d", mirror.rows)
	}

	if len(db.commits) != 1 {
		t.Fatalf("commits = %d", len(db.commits))
	}
	c := db.commits[0]
	if c.iv.MMSI != 235012345 || c.iv.IMO != imoA {
		t.Errorf("committed interval = %+v", c.iv)
	}
	wantActions := map[string]int{
		ais.ActionImport:        2,
		ais.ActionOutliers:      1,
		ais.ActionInterpolation: 0,
	}
	if len(c.actions) != 3 {
		t.Fatalf("actions = %+v", c.actions)
	}
	for _, a := range c.actions {
		if want, ok := wantActions[a.Action]; !ok || a.Count != want {
			t.Errorf("action %q count = %d", a.Action, a.Count)
		}
	}

	// Everything is in the ledger now.
	sum, err = im.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if sum.Pending != 1 || sum.Imported != 0 {
		t.Errorf("second summary = %+v", sum)
	}
}

func TestImporterOpenError(t *testing.T) {
	db := newMemDB()
	db.imos = []int64{imoA}
	db.ranges[imoA] = []ais.IdentityRange{identity(235012345, true, day(1), day(10))}

	im := &Importer{
		Store: db,
		Open: func(context.Context) (Conn, error) {
			return nil, errors.New("too many connections")
		},
		Opts: Options{Workers: 1},
	}
	if _, err := im.Run(context.Background()); err == nil {
		t.Error("expected connection error")
	}
}
