package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/vdbecore/core/errors"
)

// CreateBundle creates a .tar.gz or .tar.xz bundle from a source
// directory, picking the compression from dstPath. The baseDir parameter
// specifies the directory name inside the archive. If createParentDir is
// true, parent directories of dstPath are created.
func CreateBundle(srcDir, dstPath, baseDir string, createParentDir bool) error {
	if !IsBundle(dstPath) {
		return fmt.Errorf("unsupported archive format: %s", dstPath)
	}
	if createParentDir {
		if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
			return fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	var compressor io.WriteCloser
	if strings.HasSuffix(dstPath, ".xz") {
		compressor, err = xz.NewWriter(outFile)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
	} else {
		compressor = gzip.NewWriter(outFile)
	}

	tw := tar.NewWriter(compressor)
	if err := writeTree(tw, srcDir, baseDir); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return nil
}

func writeTree(tw *tar.Writer, srcDir, baseDir string) error {
	now := time.Now()

	return filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}

		// Skip root directory
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		header.Name = baseDir + "/" + filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.IsDir() {
			file, err := os.Open(p)
			if err != nil {
				return err
			}
			defer file.Close()

			if _, err := io.Copy(tw, file); err != nil {
				return err
			}
		}

		return nil
	})
}

// CreateBundleFromPath creates a bundle deriving the base dir from dstPath
// by removing the .tar.gz or .tar.xz suffix.
func CreateBundleFromPath(srcDir, dstPath string) error {
	base := strings.TrimSuffix(strings.TrimSuffix(dstPath, ".tar.gz"), ".tar.xz")
	return CreateBundle(srcDir, dstPath, filepath.Base(base), true)
}

// WriteListing writes a listing to p, compressing it when p ends in .gz
// or .xz.
func WriteListing(p string, data []byte) error {
	f, err := os.Create(p)
	if err != nil {
		return errors.NewIO("create", p, err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch {
	case strings.HasSuffix(p, ".xz"):
		if w, err = xz.NewWriter(f); err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
	case strings.HasSuffix(p, ".gz"):
		w = gzip.NewWriter(f)
	default:
		_, err = f.Write(data)
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}
