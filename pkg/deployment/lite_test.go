package deployment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLite(t *testing.T) (*Lite, *fakeStore, *fakeFactory, *workspace.Workspace, *recorder) {
	t.Helper()

	ws := workspace.New(t.TempDir())
	store := newFakeStore()
	factory := &fakeFactory{}
	rec := &recorder{}

	d := NewLite(logrus.New(), testConfig(config.PlatformExternalGitHub, ""), ws, store, factory, rec)

	return d, store, factory, ws, rec
}

func TestLite_DownloadLatestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads once", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)
		store.files["build/address-latest"] = map[string]string{"fuzz_one": "bin"}

		res := d.DownloadLatestBuild(ctx)
		assert.Equal(t, OutcomePerformed, res.Outcome)
		assert.Equal(t, ws.BuildDir(), res.Path)
		assert.FileExists(t, filepath.Join(ws.BuildDir(), "fuzz_one"))

		again := d.DownloadLatestBuild(ctx)
		assert.Equal(t, OutcomeSkipped, again.Outcome)
		assert.Equal(t, ws.BuildDir(), again.Path)
		assert.Equal(t, 1, store.count("DownloadBuild"))
	})

	t.Run("missing build", func(t *testing.T) {
		d, _, _, _, _ := newTestLite(t)

		res := d.DownloadLatestBuild(ctx)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, res.Path)
		assert.False(t, res.OK())
	})
}

func TestLite_UploadLatestBuild(t *testing.T) {
	d, store, _, ws, _ := newTestLite(t)

	res := d.UploadLatestBuild(context.Background())
	assert.Equal(t, OutcomePerformed, res.Outcome)
	require.Len(t, store.calls, 1)
	assert.Equal(t, storeCall{method: "UploadBuild", name: "address-latest", dir: ws.OutputDir()}, store.calls[0])
}

func TestLite_DownloadCorpus(t *testing.T) {
	ctx := context.Background()

	t.Run("restores corpus", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)
		store.files["corpus/fuzz_one"] = map[string]string{"seed1": "a", "seed2": "b"}

		dir := ws.CorpusDir("fuzz_one")
		res := d.DownloadCorpus(ctx, "fuzz_one", dir)

		assert.Equal(t, OutcomePerformed, res.Outcome)
		assert.Equal(t, dir, res.Path)
		assert.FileExists(t, filepath.Join(dir, "seed2"))
	})

	t.Run("missing corpus is tolerated", func(t *testing.T) {
		d, _, _, ws, _ := newTestLite(t)

		dir := ws.CorpusDir("fuzz_two")
		res := d.DownloadCorpus(ctx, "fuzz_two", dir)

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.True(t, res.Tolerable)
		assert.Equal(t, dir, res.Path)
		assert.DirExists(t, dir)
	})

	t.Run("store error is not tolerated", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)
		store.err = errors.New("connection reset")

		dir := ws.CorpusDir("fuzz_three")
		res := d.DownloadCorpus(ctx, "fuzz_three", dir)

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.False(t, res.Tolerable)
		assert.DirExists(t, dir)
	})
}

func TestLite_UploadCorpus(t *testing.T) {
	d, store, _, _, _ := newTestLite(t)
	dir := t.TempDir()

	res := d.UploadCorpus(context.Background(), "fuzz_one", dir)
	assert.Equal(t, OutcomePerformed, res.Outcome)
	assert.Equal(t, []storeCall{{method: "UploadCorpus", name: "fuzz_one", dir: dir}}, store.calls)
}

func TestLite_UploadCrashes(t *testing.T) {
	ctx := context.Background()

	t.Run("no crashes", func(t *testing.T) {
		d, store, _, _, _ := newTestLite(t)

		res := d.UploadCrashes(ctx)
		assert.Equal(t, OutcomeSkipped, res.Outcome)
		assert.Zero(t, store.count("UploadCrashes"))
	})

	t.Run("uploads crashes", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)
		writeFile(t, filepath.Join(ws.ArtifactsDir(), "crash-1"), "boom")

		res := d.UploadCrashes(ctx)
		assert.Equal(t, OutcomePerformed, res.Outcome)
		require.Equal(t, 1, store.count("UploadCrashes"))
		assert.Equal(t, CrashesArtifactName, store.calls[0].name)
	})

	t.Run("store failure", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)
		store.err = errors.New("denied")
		writeFile(t, filepath.Join(ws.ArtifactsDir(), "crash-1"), "boom")

		res := d.UploadCrashes(ctx)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, store.err)
	})
}

func TestLite_Coverage(t *testing.T) {
	ctx := context.Background()

	t.Run("upload", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)

		res := d.UploadCoverage(ctx)
		assert.Equal(t, OutcomePerformed, res.Outcome)
		assert.Equal(t, []storeCall{{method: "UploadCoverage", name: CoverageArtifactName, dir: ws.CoverageReportDir()}}, store.calls)
	})

	t.Run("get", func(t *testing.T) {
		d, store, factory, ws, _ := newTestLite(t)
		store.files["coverage/latest"] = map[string]string{"fuzzer_stats/fuzz_one.json": "{}"}

		cov, res := d.GetCoverage(ctx, "/src/demo")
		require.NotNil(t, cov)
		assert.Equal(t, OutcomePerformed, res.Outcome)
		assert.Equal(t, []string{ws.RemoteCoverageCacheDir()}, factory.fromDirectory)
	})

	t.Run("get replaces stale cache", func(t *testing.T) {
		d, store, _, ws, _ := newTestLite(t)

		stale := filepath.Join(ws.RemoteCoverageCacheDir(), "fuzzer_stats", "fuzz_removed.json")
		require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
		require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))

		store.files["coverage/latest"] = map[string]string{"fuzzer_stats/fuzz_one.json": "{}"}

		_, res := d.GetCoverage(ctx, "/src/demo")
		require.Equal(t, OutcomePerformed, res.Outcome)

		assert.NoFileExists(t, stale)
		assert.FileExists(t, filepath.Join(ws.RemoteCoverageCacheDir(), "fuzzer_stats", "fuzz_one.json"))
	})

	t.Run("get without stored report", func(t *testing.T) {
		d, _, factory, _, _ := newTestLite(t)

		cov, res := d.GetCoverage(ctx, "/src/demo")
		assert.Nil(t, cov)
		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Empty(t, factory.fromDirectory)
	})
}

func TestLite_ReportsToObserver(t *testing.T) {
	d, _, _, _, rec := newTestLite(t)
	ctx := context.Background()

	d.UploadCrashes(ctx)
	d.UploadCoverage(ctx)

	require.Len(t, rec.results, 2)
	assert.Equal(t, OpUploadCrashes, rec.results[0].Op)
	assert.Equal(t, OpUploadCoverage, rec.results[1].Op)

	for _, res := range rec.results {
		assert.Equal(t, "lite", res.Deployment)
	}
}
