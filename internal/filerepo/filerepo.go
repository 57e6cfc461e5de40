// Package filerepo walks a directory of AIS input files, optionally
// expanding zip archives, and decodes them as ISO-8859-1.
package filerepo

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"ais_parser/internal/logging"
)

// File is one input file opened for reading.
type File struct {
	Name   string // Base name, or the entry name inside an archive.
	Ext    string
	Path   string // Path on disk; for archive entries, the archive path.
	Reader io.Reader
}

// Repository is a directory of input files.
type Repository struct {
	Root       string
	Extensions []string // Empty allows every extension.
	Recursive  bool
	Unzip      bool
}

// Allowed reports whether ext passes the extension filter.
func (r *Repository) Allowed(ext string) bool {
	if len(r.Extensions) == 0 {
		return true
	}
	for _, e := range r.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (r *Repository) expand(ext string) bool {
	return r.Unzip && strings.EqualFold(ext, ".zip")
}

// paths lists the candidate files in lexical order.
func (r *Repository) paths() ([]string, error) {
	var out []string
	err := filepath.WalkDir(r.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.Root && !r.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if r.Allowed(ext) || r.expand(ext) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", r.Root, err)
	}
	return out, nil
}

// Walk calls fn for every allowed file, decoded as ISO-8859-1. Archives
// that cannot be read are logged and skipped. An error from fn stops the walk.
func (r *Repository) Walk(ctx context.Context, fn func(File) error) error {
	logging.Debug().Str("root", r.Root).Msg("iterating files")

	paths, err := r.paths()
	if err != nil {
		return err
	}

	var failed []string
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		name, ext := filepath.Base(path), filepath.Ext(path)
		if r.Allowed(ext) {
			if err := r.walkFile(path, name, ext, fn); err != nil {
				return err
			}
			continue
		}

		err := r.walkArchive(ctx, path, fn)
		if err == nil {
			continue
		}
		var ae *archiveError
		if !errors.As(err, &ae) {
			return err
		}
		logging.Warn().Str("file", name).Err(ae.err).Msg("unable to extract zip file")
		failed = append(failed, name)
	}

	if len(failed) > 0 {
		logging.Warn().Int("count", len(failed)).Strs("files", failed).Msg("skipped files due to errors")
	}
	return nil
}

func decode(rd io.Reader) io.Reader {
	return charmap.ISO8859_1.NewDecoder().Reader(rd)
}

func (r *Repository) walkFile(path, name, ext string, fn func(File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return fn(File{Name: name, Ext: ext, Path: path, Reader: decode(f)})
}

// archiveError marks a zip that could not be read, as opposed to an error
// returned by the callback.
type archiveError struct {
	err error
}

func (e *archiveError) Error() string { return e.err.Error() }
func (e *archiveError) Unwrap() error { return e.err }

func (r *Repository) walkArchive(ctx context.Context, path string, fn func(File) error) error {
	z, err := zip.OpenReader(path)
	if err != nil {
		return &archiveError{err: err}
	}
	defer func() { _ = z.Close() }()

	for _, entry := range z.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name)
		if !r.Allowed(ext) {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return &archiveError{err: err}
		}
		err = fn(File{Name: entry.Name, Ext: ext, Path: path, Reader: decode(rc)})
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Status summarises the repository contents.
type Status struct {
	Root     string `json:"root"`
	Files    int    `json:"files"`
	Archives int    `json:"archives"`
}

// Status counts the matching files and archives under Root.
func (r *Repository) Status() (Status, error) {
	st := Status{Root: r.Root}
	paths, err := r.paths()
	if err != nil {
		return st, err
	}
	for _, p := range paths {
		if r.Allowed(filepath.Ext(p)) {
			st.Files++
		} else {
			st.Archives++
		}
	}
	return st, nil
}
