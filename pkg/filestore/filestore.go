// Package filestore moves fuzzing artifacts between local directories and
// a remote object store. Each artifact is a whole directory packed into a
// single compressed archive object.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the requested artifact does not exist in
// the store.
var ErrNotFound = errors.New("artifact not found")

// Kind is the category of an artifact. It is part of the object key so
// artifacts of different kinds never collide.
type Kind string

const (
	KindBuild    Kind = "build"
	KindCorpus   Kind = "corpus"
	KindCrashes  Kind = "crashes"
	KindCoverage Kind = "coverage"
)

// archiveExt is the file extension of every stored archive.
const archiveExt = ".tar.zst"

// Store is the capability deployments use to move artifacts. Every method
// transfers a whole directory; downloads return ErrNotFound when the named
// artifact is missing.
type Store interface {
	DownloadBuild(ctx context.Context, name, dstDir string) error
	UploadBuild(ctx context.Context, name, srcDir string) error
	DownloadCorpus(ctx context.Context, name, dstDir string) error
	UploadCorpus(ctx context.Context, name, srcDir string) error
	UploadCrashes(ctx context.Context, name, srcDir string) error
	DownloadCoverage(ctx context.Context, name, dstDir string) error
	UploadCoverage(ctx context.Context, name, srcDir string) error
}

// Backend stores opaque objects by key. Get returns ErrNotFound for
// missing keys. Metadata keys are compared case-insensitively.
type Backend interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, meta map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, map[string]string, error)
	String() string
}

// New creates the Store configured by cfg.
func New(log logrus.FieldLogger, cfg *config.FilestoreConfig) (Store, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Kind {
	case config.FilestoreNone, "":
		return NewNoopStore(log), nil
	case config.FilestoreS3:
		backend = NewS3Backend(log, &cfg.S3)
	case config.FilestoreMinio:
		backend, err = NewMinioBackend(log, &cfg.Minio)
	case config.FilestoreFilesystem:
		backend, err = NewFilesystemBackend(cfg.Filesystem.Path)
	default:
		return nil, fmt.Errorf("unsupported filestore kind %q", cfg.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("creating %s filestore: %w", cfg.Kind, err)
	}

	return NewArchiveStore(log, backend, cfg.Prefix), nil
}

// ObjectKey returns the key under which an artifact is stored.
func ObjectKey(prefix string, kind Kind, name string) string {
	object := string(kind) + "-" + name + archiveExt

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return object
	}

	return path.Join(prefix, object)
}

// metaValue looks up a metadata key case-insensitively. Object stores
// differ in how they canonicalize user metadata names.
func metaValue(meta map[string]string, key string) string {
	for k, v := range meta {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == key {
			return v
		}
	}

	return ""
}
