package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// badDataLog records rejected rows of one input file as ';' separated CSV:
// the original fields followed by the reason.
type badDataLog struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// openBadData creates the log for name under dir. An empty dir discards.
func openBadData(dir, name string) (*badDataLog, error) {
	if dir == "" {
		w := csv.NewWriter(io.Discard)
		w.Comma = ';'
		return &badDataLog{w: w}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bad data dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create bad data log: %w", err)
	}
	w := csv.NewWriter(f)
	w.Comma = ';'
	return &badDataLog{path: path, f: f, w: w}, nil
}

func (b *badDataLog) write(raw []string, reason string) error {
	row := make([]string, 0, len(raw)+1)
	row = append(row, raw...)
	return b.w.Write(append(row, reason))
}

// close flushes the log and removes it when nothing was written.
func (b *badDataLog) close(invalid int) error {
	b.w.Flush()
	err := b.w.Error()
	if b.f == nil {
		return err
	}
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	if invalid == 0 {
		if rerr := os.Remove(b.path); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
