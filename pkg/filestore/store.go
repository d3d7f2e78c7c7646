package filestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// metaDigest is the metadata key holding the blake3 digest of an archive.
const metaDigest = "blake3"

// archiveStore implements Store on top of any object Backend.
type archiveStore struct {
	log     logrus.FieldLogger
	backend Backend
	prefix  string
}

// Ensure interface compliance.
var _ Store = (*archiveStore)(nil)

// NewArchiveStore creates a Store that keeps one archive object per
// artifact in backend, below prefix.
func NewArchiveStore(log logrus.FieldLogger, backend Backend, prefix string) Store {
	return &archiveStore{
		log:     log.WithField("component", "filestore").WithField("backend", backend.String()),
		backend: backend,
		prefix:  prefix,
	}
}

func (s *archiveStore) DownloadBuild(ctx context.Context, name, dstDir string) error {
	return s.download(ctx, KindBuild, name, dstDir)
}

func (s *archiveStore) UploadBuild(ctx context.Context, name, srcDir string) error {
	return s.upload(ctx, KindBuild, name, srcDir)
}

func (s *archiveStore) DownloadCorpus(ctx context.Context, name, dstDir string) error {
	return s.download(ctx, KindCorpus, name, dstDir)
}

func (s *archiveStore) UploadCorpus(ctx context.Context, name, srcDir string) error {
	return s.upload(ctx, KindCorpus, name, srcDir)
}

func (s *archiveStore) UploadCrashes(ctx context.Context, name, srcDir string) error {
	return s.upload(ctx, KindCrashes, name, srcDir)
}

func (s *archiveStore) DownloadCoverage(ctx context.Context, name, dstDir string) error {
	return s.download(ctx, KindCoverage, name, dstDir)
}

func (s *archiveStore) UploadCoverage(ctx context.Context, name, srcDir string) error {
	return s.upload(ctx, KindCoverage, name, srcDir)
}

// upload packs srcDir into a temporary archive and stores it.
func (s *archiveStore) upload(ctx context.Context, kind Kind, name, srcDir string) error {
	key := ObjectKey(s.prefix, kind, name)

	tmp, err := os.CreateTemp("", "fuzzsync-upload-*"+archiveExt)
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	packed, err := packDir(srcDir, tmp)
	if err != nil {
		return fmt.Errorf("packing %s: %w", srcDir, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding temp archive: %w", err)
	}

	meta := map[string]string{metaDigest: packed.Digest}

	if err := s.backend.Put(ctx, key, tmp, packed.Size, meta); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":   key,
		"files": packed.Files,
		"size":  units.HumanSize(float64(packed.Size)),
	}).Debug("Stored artifact")

	return nil
}

// download fetches an archive, verifies its digest when the backend kept
// one, and unpacks it into dstDir.
func (s *archiveStore) download(ctx context.Context, kind Kind, name, dstDir string) error {
	key := ObjectKey(s.prefix, kind, name)

	body, meta, err := s.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp("", "fuzzsync-download-*"+archiveExt)
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hasher := blake3.New()

	size, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	if want := metaValue(meta, metaDigest); want != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != want {
			return fmt.Errorf("digest mismatch for %s: got %s, want %s", key, got, want)
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding temp archive: %w", err)
	}

	files, err := unpackArchive(tmp, dstDir)
	if err != nil {
		return fmt.Errorf("unpacking %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":   key,
		"files": files,
		"size":  units.HumanSize(float64(size)),
	}).Debug("Fetched artifact")

	return nil
}
