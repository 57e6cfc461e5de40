// Package source reads raw AIS records from CSV and XML input.
package source

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ais_parser/internal/ais"
)

// ErrUnsupportedExtension is returned for input files that are neither CSV nor XML.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// FileError is an error that makes the rest of a file unreadable.
type FileError struct {
	Err error
}

func (e *FileError) Error() string { return e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

func fileErrorf(format string, args ...any) error {
	return &FileError{Err: fmt.Errorf(format, args...)}
}

// Reader yields raw records one at a time. Next returns io.EOF after the
// last record; any other error is a *FileError.
type Reader interface {
	Next() (ais.RawRecord, error)
}

// NewReader returns a Reader for r according to the file extension.
func NewReader(r io.Reader, ext string) (Reader, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		return NewCSVReader(r)
	case ".xml":
		return NewXMLReader(r), nil
	default:
		return nil, &FileError{Err: fmt.Errorf("cannot parse file with extension %q: %w", ext, ErrUnsupportedExtension)}
	}
}

// Each calls fn for every record in r.
func Each(r Reader, fn func(ais.RawRecord) error) error {
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
