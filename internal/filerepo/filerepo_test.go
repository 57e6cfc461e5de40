package filerepo

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
}

type seen struct {
	name, ext, body string
}

func collect(t *testing.T, r *Repository) []seen {
	t.Helper()
	var out []seen
	err := r.Walk(context.Background(), func(f File) error {
		b, err := io.ReadAll(f.Reader)
		if err != nil {
			return err
		}
		out = append(out, seen{f.Name, f.Ext, string(b)})
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	return out
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), []byte("a"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("skip"))
	writeFile(t, filepath.Join(root, "sub", "b.csv"), []byte("b"))
	writeZip(t, filepath.Join(root, "c.zip"), map[string]string{"inner.csv": "c", "readme.md": "skip"})
	writeFile(t, filepath.Join(root, "d.zip"), []byte("not a zip"))

	tests := []struct {
		name  string
		repo  Repository
		names []string
	}{
		{
			name:  "recursive with unzip",
			repo:  Repository{Root: root, Extensions: []string{".csv"}, Recursive: true, Unzip: true},
			names: []string{"a.csv", "inner.csv", "b.csv"},
		},
		{
			name:  "top level only",
			repo:  Repository{Root: root, Extensions: []string{".csv"}},
			names: []string{"a.csv"},
		},
		{
			name:  "no filter",
			repo:  Repository{Root: root, Recursive: false},
			names: []string{"a.csv", "c.zip", "d.zip", "notes.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, &tt.repo)
			if len(got) != len(tt.names) {
				t.Fatalf("got %v, want %v", got, tt.names)
			}
			for i, name := range tt.names {
				if got[i].name != name {
					t.Errorf("file %d = %q, want %q", i, got[i].name, name)
				}
			}
		})
	}
}

func TestWalkDecodesLatin1(t *testing.T) {
	root := t.TempDir()
	// "CAFÉ" in ISO-8859-1.
	writeFile(t, filepath.Join(root, "x.csv"), []byte{'C', 'A', 'F', 0xC9})

	got := collect(t, &Repository{Root: root, Extensions: []string{".csv"}})
	if len(got) != 1 || got[0].body != "CAFÉ" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestWalkCallbackError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), []byte("a"))

	r := &Repository{Root: root}
	err := r.Walk(context.Background(), func(File) error { return io.ErrUnexpectedEOF })
	if err != io.ErrUnexpectedEOF {
		t.Errorf("Walk() error = %v, want callback error", err)
	}
}

func TestStatus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), []byte("a"))
	writeFile(t, filepath.Join(root, "b.CSV"), []byte("b"))
	writeZip(t, filepath.Join(root, "c.zip"), map[string]string{"inner.csv": "c"})

	st, err := (&Repository{Root: root, Extensions: []string{".csv"}, Unzip: true}).Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Files != 2 || st.Archives != 1 {
		t.Errorf("Status() = %+v", st)
	}
}
