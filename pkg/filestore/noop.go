package filestore

import (
	"context"

	"github.com/sirupsen/logrus"
)

// noopStore is used when no filestore is configured. Downloads find
// nothing and uploads are discarded.
type noopStore struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Store = (*noopStore)(nil)

// NewNoopStore creates a Store that keeps nothing.
func NewNoopStore(log logrus.FieldLogger) Store {
	return &noopStore{log: log.WithField("component", "filestore").WithField("backend", "none")}
}

func (s *noopStore) download(kind Kind, name string) error {
	s.log.WithFields(logrus.Fields{"kind": kind, "name": name}).
		Debug("No filestore configured, nothing to download")

	return ErrNotFound
}

func (s *noopStore) upload(kind Kind, name string) error {
	s.log.WithFields(logrus.Fields{"kind": kind, "name": name}).
		Debug("No filestore configured, discarding upload")

	return nil
}

func (s *noopStore) DownloadBuild(_ context.Context, name, _ string) error {
	return s.download(KindBuild, name)
}

func (s *noopStore) UploadBuild(_ context.Context, name, _ string) error {
	return s.upload(KindBuild, name)
}

func (s *noopStore) DownloadCorpus(_ context.Context, name, _ string) error {
	return s.download(KindCorpus, name)
}

func (s *noopStore) UploadCorpus(_ context.Context, name, _ string) error {
	return s.upload(KindCorpus, name)
}

func (s *noopStore) UploadCrashes(_ context.Context, name, _ string) error {
	return s.upload(KindCrashes, name)
}

func (s *noopStore) DownloadCoverage(_ context.Context, name, _ string) error {
	return s.download(KindCoverage, name)
}

func (s *noopStore) UploadCoverage(_ context.Context, name, _ string) error {
	return s.upload(KindCoverage, name)
}
