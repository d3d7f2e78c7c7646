package filestore

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// packResult describes an archive written by packDir.
type packResult struct {
	Files  int
	Size   int64
	Digest string
}

// packDir writes srcDir as a zstd compressed tarball to w and returns the
// blake3 digest of the compressed bytes. A missing srcDir produces an empty
// archive.
func packDir(srcDir string, w io.Writer) (*packResult, error) {
	hasher := blake3.New()
	counter := &countingWriter{w: io.MultiWriter(w, hasher)}

	zw, err := zstd.NewWriter(counter)
	if err != nil {
		return nil, fmt.Errorf("creating zstd writer: %w", err)
	}

	tw := tar.NewWriter(zw)

	files, err := writeTree(tw, srcDir)
	if err != nil {
		_ = tw.Close()
		_ = zw.Close()

		return nil, err
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()

		return nil, fmt.Errorf("closing tar writer: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing zstd writer: %w", err)
	}

	return &packResult{
		Files:  files,
		Size:   counter.n,
		Digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// writeTree adds every directory and regular file below root to tw.
// Symlinks and other special files are skipped.
func writeTree(tw *tar.Writer, root string) (int, error) {
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	var files int

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		if rel == "." {
			return nil
		}

		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("creating header for %s: %w", rel, err)
		}

		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("writing header for %s: %w", rel, err)
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("opening %s: %w", rel, err)
		}

		_, err = io.Copy(tw, f)
		_ = f.Close()

		if err != nil {
			return fmt.Errorf("archiving %s: %w", rel, err)
		}

		files++

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking directory %s: %w", root, err)
	}

	return files, nil
}

// unpackArchive extracts a zstd compressed tarball into targetDir.
func unpackArchive(r io.Reader, targetDir string) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating target directory: %w", err)
	}

	cleanTarget := filepath.Clean(targetDir)

	var files int

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return files, fmt.Errorf("reading tar: %w", err)
		}

		// Reject entries escaping the target directory.
		target := filepath.Join(cleanTarget, filepath.Clean(header.Name))
		if !strings.HasPrefix(target, cleanTarget+string(os.PathSeparator)) {
			return files, fmt.Errorf("invalid tar entry: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("creating directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return files, fmt.Errorf("creating parent directory: %w", err)
			}

			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return files, fmt.Errorf("creating file: %w", err)
			}

			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()

				return files, fmt.Errorf("extracting file: %w", err)
			}

			_ = f.Close()
			files++
		}
	}

	return files, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}
