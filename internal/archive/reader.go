// Package archive reads and writes compressed program listings and
// bundles of listings. Single listings may be stored plain, .gz or .xz;
// bundles are .tar.gz or .tar.xz archives.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// Listing file extensions.
const (
	TextExt = ".vdbe"
	XMLExt  = ".xml"
)

// IsListing reports whether name looks like a listing, ignoring any
// compression suffix.
func IsListing(name string) bool {
	base := TrimCompression(name)
	return strings.HasSuffix(base, TextExt) || strings.HasSuffix(base, XMLExt)
}

// IsXML reports whether name is an XML listing, ignoring any compression
// suffix.
func IsXML(name string) bool {
	return strings.HasSuffix(TrimCompression(name), XMLExt)
}

// IsBundle reports whether name is a compressed tar archive.
func IsBundle(name string) bool {
	return strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tar.xz")
}

// TrimCompression strips a trailing .gz or .xz.
func TrimCompression(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".xz")
}

// readCloser closes a decompressor before its file.
type readCloser struct {
	io.Reader
	file         *os.File
	decompressor io.Closer
}

func (r *readCloser) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// open opens path and wraps it in the decompressor its suffix names.
func open(p string) (*readCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.NewIO("open", p, err)
	}

	rc := &readCloser{Reader: f, file: f}
	switch {
	case strings.HasSuffix(p, ".xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		rc.Reader = xzr // xz reader doesn't need closing
	case strings.HasSuffix(p, ".gz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		rc.Reader = gzr
		rc.decompressor = gzr
	}
	return rc, nil
}

// OpenListing opens a listing file, decompressing .gz and .xz files.
func OpenListing(p string) (io.ReadCloser, error) {
	if IsBundle(p) {
		return nil, fmt.Errorf("%s is a bundle, not a listing", p)
	}
	return open(p)
}

// ReadListing reads a whole listing file.
func ReadListing(p string) ([]byte, error) {
	r, err := OpenListing(p)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	rc *readCloser
}

// NewReader creates a new bundle reader for the given path.
// It automatically detects and handles .tar.gz and .tar.xz compression.
func NewReader(p string) (*Reader, error) {
	if !IsBundle(p) {
		return nil, fmt.Errorf("unsupported archive format: %s", p)
	}
	rc, err := open(p)
	if err != nil {
		return nil, err
	}
	return &Reader{Reader: tar.NewReader(rc), rc: rc}, nil
}

// Close closes the bundle reader and any underlying decompressors.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateBundle opens a bundle and iterates through its entries.
func IterateBundle(p string, visitor Visitor) error {
	r, err := NewReader(p)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// Entry is one listing read from a bundle.
type Entry struct {
	Name    string // Path inside the bundle without the leading directory
	Content []byte
}

// Listings returns every listing in a bundle in archive order. Entries
// that are not listings are skipped.
func Listings(p string) ([]Entry, error) {
	var entries []Entry
	err := IterateBundle(p, func(header *tar.Header, r io.Reader) (bool, error) {
		// Entries are stored uncompressed inside a bundle.
		if header.Typeflag != tar.TypeReg || !IsListing(header.Name) || TrimCompression(header.Name) != header.Name {
			return false, nil
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return true, err
		}
		entries = append(entries, Entry{Name: stripBase(header.Name), Content: content})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile reads a specific file from the bundle.
func ReadFile(bundlePath, filename string) ([]byte, error) {
	var content []byte
	err := IterateBundle(bundlePath, func(header *tar.Header, r io.Reader) (bool, error) {
		// Handle archives with or without leading directory
		if stripBase(header.Name) == filename || header.Name == filename {
			var err error
			content, err = io.ReadAll(r)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, errors.NewNotFound("bundle entry", filename)
	}
	return content, nil
}

func stripBase(name string) string {
	name = path.Clean(name)
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
