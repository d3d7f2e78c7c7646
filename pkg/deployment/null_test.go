package deployment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNull(t *testing.T) {
	rec := &recorder{}
	d := NewNull(logrus.New(), nil, rec)
	ctx := context.Background()

	assert.Equal(t, "none", d.Name())

	build := d.DownloadLatestBuild(ctx)
	assert.Equal(t, OutcomeSkipped, build.Outcome)
	assert.Empty(t, build.Path)

	dir := filepath.Join(t.TempDir(), "corpus", "fuzz_one")
	corpus := d.DownloadCorpus(ctx, "fuzz_one", dir)
	assert.Equal(t, OutcomeSkipped, corpus.Outcome)
	assert.Equal(t, dir, corpus.Path)
	assert.DirExists(t, dir)

	cov, res := d.GetCoverage(ctx, "/src/demo")
	assert.Nil(t, cov)
	assert.Equal(t, OutcomeSkipped, res.Outcome)

	for _, res := range []Result{
		d.UploadLatestBuild(ctx),
		d.UploadCorpus(ctx, "fuzz_one", dir),
		d.UploadCrashes(ctx),
		d.UploadCoverage(ctx),
	} {
		assert.Equal(t, OutcomeSkipped, res.Outcome, res.Op)
		assert.True(t, res.OK())
		assert.Contains(t, res.Reason, "no deployment")
	}

	require.Len(t, rec.results, 7)
}
