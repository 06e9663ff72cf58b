package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

type testFile struct {
	name    string
	content string
	dir     bool
}

var bundleFiles = []testFile{
	{name: "suite/", dir: true},
	{name: "suite/sum.vdbe", content: "Integer 1 1\nHalt\n"},
	{name: "suite/README", content: "not a listing"},
	{name: "suite/cmp.xml", content: "<program/>"},
}

func writeTar(t *testing.T, w io.Writer, files []testFile) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: 0644, Size: int64(len(f.content)), Typeflag: tar.TypeReg}
		if f.dir {
			hdr = &tar.Header{Name: f.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if !f.dir {
			if _, err := tw.Write([]byte(f.content)); err != nil {
				t.Fatalf("write content: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}

func createTestTarGz(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	writeTar(t, gw, bundleFiles)
	gw.Close()
	return path
}

func createTestTarXz(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test.tar.xz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	xw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	writeTar(t, xw, bundleFiles)
	xw.Close()
	return path
}

func TestNewReader(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"TarGz", createTestTarGz(t, dir), false},
		{"TarXz", createTestTarXz(t, dir), false},
		{"Missing", filepath.Join(dir, "missing.tar.gz"), true},
		{"PlainListing", filepath.Join(dir, "x.vdbe"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewReader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if err := r.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}

func TestIterateStops(t *testing.T) {
	path := createTestTarGz(t, t.TempDir())
	var seen []string
	err := IterateBundle(path, func(h *tar.Header, _ io.Reader) (bool, error) {
		seen = append(seen, h.Name)
		return len(seen) == 2, nil
	})
	if err != nil {
		t.Fatalf("IterateBundle() error = %v", err)
	}
	if len(seen) != 2 || seen[1] != "suite/sum.vdbe" {
		t.Errorf("visited %v, want the first two entries", seen)
	}
}

func TestListings(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{createTestTarGz(t, dir), createTestTarXz(t, dir)} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			entries, err := Listings(path)
			if err != nil {
				t.Fatalf("Listings() error = %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("Listings() = %d entries, want 2", len(entries))
			}
			if entries[0].Name != "sum.vdbe" || entries[1].Name != "cmp.xml" {
				t.Errorf("names = %s, %s, want sum.vdbe, cmp.xml", entries[0].Name, entries[1].Name)
			}
			if string(entries[0].Content) != "Integer 1 1\nHalt\n" {
				t.Errorf("content = %q", entries[0].Content)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	path := createTestTarXz(t, t.TempDir())

	got, err := ReadFile(path, "cmp.xml")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "<program/>" {
		t.Errorf("ReadFile() = %q, want <program/>", got)
	}

	got, err = ReadFile(path, "suite/README")
	if err != nil || string(got) != "not a listing" {
		t.Errorf("ReadFile(full name) = %q, %v", got, err)
	}

	if _, err := ReadFile(path, "nope.vdbe"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("ReadFile() of a missing entry error = %v, want ErrNotFound", err)
	}

	var ioErr *errors.IOError
	if _, err := ReadListing(filepath.Join(t.TempDir(), "gone.vdbe")); !errors.As(err, &ioErr) || ioErr.Operation != "open" {
		t.Errorf("ReadListing() of a missing file error = %v, want an IOError", err)
	}
}

func TestReadListing(t *testing.T) {
	dir := t.TempDir()
	want := []byte("Noop\nHalt\n")

	plain := filepath.Join(dir, "a.vdbe")
	if err := os.WriteFile(plain, want, 0644); err != nil {
		t.Fatal(err)
	}

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(want)
	gw.Close()
	gzPath := filepath.Join(dir, "a.vdbe.gz")
	if err := os.WriteFile(gzPath, gz.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write(want)
	xw.Close()
	xzPath := filepath.Join(dir, "a.vdbe.xz")
	if err := os.WriteFile(xzPath, xzBuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, gzPath, xzPath} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			got, err := ReadListing(path)
			if err != nil {
				t.Fatalf("ReadListing() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("ReadListing() = %q, want %q", got, want)
			}
		})
	}

	if _, err := ReadListing(filepath.Join(dir, "b.tar.gz")); err == nil {
		t.Error("ReadListing() of a bundle should fail")
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		name              string
		listing, xml, bun bool
	}{
		{"a.vdbe", true, false, false},
		{"a.vdbe.xz", true, false, false},
		{"dir/a.xml.gz", true, true, false},
		{"a.tar.gz", false, false, true},
		{"a.tar.xz", false, false, true},
		{"README", false, false, false},
	}
	for _, tt := range tests {
		if got := IsListing(tt.name); got != tt.listing {
			t.Errorf("IsListing(%q) = %v, want %v", tt.name, got, tt.listing)
		}
		if got := IsXML(tt.name); got != tt.xml {
			t.Errorf("IsXML(%q) = %v, want %v", tt.name, got, tt.xml)
		}
		if got := IsBundle(tt.name); got != tt.bun {
			t.Errorf("IsBundle(%q) = %v, want %v", tt.name, got, tt.bun)
		}
	}
}
