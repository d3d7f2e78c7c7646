package deployment

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/ethpandaops/fuzzsync/pkg/filestore"
	"github.com/stretchr/testify/require"
)

// storeCall records a single filestore.Store invocation.
type storeCall struct {
	method string
	name   string
	dir    string
}

// fakeStore records calls and serves artifacts from memory, keyed by
// method kind and name.
type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall
	// files maps "kind/name" to the files written on download.
	files map[string]map[string]string
	err   error
}

var _ filestore.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]map[string]string, 4)}
}

func (s *fakeStore) record(method, name, dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, storeCall{method: method, name: name, dir: dir})
}

func (s *fakeStore) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	for _, c := range s.calls {
		if c.method == method {
			n++
		}
	}

	return n
}

func (s *fakeStore) download(kind, name, dir string) error {
	if s.err != nil {
		return s.err
	}

	files, ok := s.files[kind+"/"+name]
	if !ok {
		return filestore.ErrNotFound
	}

	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}

		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}

	return nil
}

func (s *fakeStore) DownloadBuild(_ context.Context, name, dir string) error {
	s.record("DownloadBuild", name, dir)

	return s.download("build", name, dir)
}

func (s *fakeStore) UploadBuild(_ context.Context, name, dir string) error {
	s.record("UploadBuild", name, dir)

	return s.err
}

func (s *fakeStore) DownloadCorpus(_ context.Context, name, dir string) error {
	s.record("DownloadCorpus", name, dir)

	return s.download("corpus", name, dir)
}

func (s *fakeStore) UploadCorpus(_ context.Context, name, dir string) error {
	s.record("UploadCorpus", name, dir)

	return s.err
}

func (s *fakeStore) UploadCrashes(_ context.Context, name, dir string) error {
	s.record("UploadCrashes", name, dir)

	return s.err
}

func (s *fakeStore) DownloadCoverage(_ context.Context, name, dir string) error {
	s.record("DownloadCoverage", name, dir)

	return s.download("coverage", name, dir)
}

func (s *fakeStore) UploadCoverage(_ context.Context, name, dir string) error {
	s.record("UploadCoverage", name, dir)

	return s.err
}

// fakeCoverage is a Coverage returning a fixed file list.
type fakeCoverage struct {
	files []string
}

func (c *fakeCoverage) FilesCoveredByTarget(context.Context, string) ([]string, error) {
	return c.files, nil
}

// fakeFactory records which constructor was used.
type fakeFactory struct {
	fromDirectory []string
	fromProject   []string
	err           error
}

var _ coverage.Factory = (*fakeFactory)(nil)

func (f *fakeFactory) FromDirectory(_, reportDir string) (coverage.Coverage, error) {
	f.fromDirectory = append(f.fromDirectory, reportDir)
	if f.err != nil {
		return nil, f.err
	}

	return &fakeCoverage{files: []string{"src/a.c"}}, nil
}

func (f *fakeFactory) FromProject(_ context.Context, _, project string) (coverage.Coverage, error) {
	f.fromProject = append(f.fromProject, project)
	if f.err != nil {
		return nil, f.err
	}

	return &fakeCoverage{files: []string{"src/b.c"}}, nil
}

// fakeFetcher counts public downloads.
type fakeFetcher struct {
	mu       sync.Mutex
	versions int
	archives []string
	text     string
	textErr  error
	zipErr   error
}

func (f *fakeFetcher) FetchText(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.versions++

	return f.text, f.textErr
}

func (f *fakeFetcher) FetchAndUnpack(_ context.Context, url, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.archives = append(f.archives, url)

	return f.zipErr
}

// recorder collects observed results.
type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) Observe(_ context.Context, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)
}

func testConfig(platform config.Platform, project string) *config.Config {
	return &config.Config{
		Platform:     platform,
		PlatformName: platform.String(),
		ProjectName:  project,
		Sanitizer:    "address",
		Public: config.PublicConfig{
			BaseURL:        "https://storage.example.com",
			BuildsBucket:   config.DefaultBuildsBucket,
			CoverageBucket: config.DefaultCoverageBucket,
		},
		HTTP: config.HTTPConfig{
			Timeout:            "10s",
			ExtractConcurrency: 2,
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
