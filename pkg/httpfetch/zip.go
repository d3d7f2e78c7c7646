package httpfetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FetchAndUnpack downloads the zip archive at url and extracts it into
// dstDir. The archive is spooled to a temporary file because zip needs
// random access.
func (f *Fetcher) FetchAndUnpack(ctx context.Context, url, dstDir string) error {
	log := f.log.WithFields(logrus.Fields{"url": url, "dir": dstDir})

	tmp, err := os.CreateTemp("", "fuzzsync-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}

	size, err := io.Copy(tmp, f.throttle(ctx, resp.Body))
	_ = resp.Body.Close()

	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}

	log.WithField("size", units.HumanSize(float64(size))).Debug("Downloaded archive")

	files, err := f.unzip(ctx, tmp, size, dstDir)
	if err != nil {
		return fmt.Errorf("unpacking %s: %w", url, err)
	}

	log.WithField("files", files).Debug("Unpacked archive")

	return nil
}

// unzip extracts all regular files of the archive into dstDir.
func (f *Fetcher) unzip(ctx context.Context, ra io.ReaderAt, size int64, dstDir string) (int, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return 0, fmt.Errorf("opening zip: %w", err)
	}

	cleanTarget := filepath.Clean(dstDir)

	if err := os.MkdirAll(cleanTarget, 0o755); err != nil {
		return 0, fmt.Errorf("creating target directory: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	var files int

	for _, entry := range zr.File {
		target := filepath.Join(cleanTarget, filepath.Clean(filepath.FromSlash(entry.Name)))
		if target == cleanTarget {
			// "./" and "." name the extraction root itself.
			continue
		}

		if !strings.HasPrefix(target, cleanTarget+string(os.PathSeparator)) {
			_ = g.Wait()

			return 0, fmt.Errorf("invalid zip entry: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				_ = g.Wait()

				return 0, fmt.Errorf("creating directory: %w", err)
			}

			continue
		}

		if !entry.Mode().IsRegular() {
			continue
		}

		files++

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			return extractFile(entry, target)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	return files, nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", entry.Name, err)
	}
	defer func() { _ = rc.Close() }()

	perm := entry.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()

		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}

	return out.Close()
}
