package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/ethpandaops/fuzzsync/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// Null is used when the platform has neither an artifact store nor a
// public build. Jobs fuzz without history: nothing is downloaded and
// nothing is kept.
type Null struct {
	reporter

	owner *fsutil.OwnerConfig
}

// Ensure interface compliance.
var _ Deployment = (*Null)(nil)

// NewNull creates a Null deployment. owner may be nil.
func NewNull(log logrus.FieldLogger, owner *fsutil.OwnerConfig, observer Observer) *Null {
	return &Null{
		reporter: newReporter(log, "none", observer),
		owner:    owner,
	}
}

func (d *Null) skip(ctx context.Context, res Result, action string) Result {
	res.Outcome = OutcomeSkipped
	res.Reason = fmt.Sprintf("Not %s because no deployment", action)

	return d.report(ctx, time.Now(), res)
}

func (d *Null) DownloadLatestBuild(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpDownloadLatestBuild}, "downloading latest build")
}

func (d *Null) UploadLatestBuild(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadLatestBuild}, "uploading latest build")
}

// DownloadCorpus still creates dir so callers can rely on it existing.
func (d *Null) DownloadCorpus(ctx context.Context, target, dir string) Result {
	res := Result{Op: OpDownloadCorpus, Target: target, Path: dir}

	if err := fsutil.EnsureDir(dir, d.owner); err != nil {
		return d.report(ctx, time.Now(), failed(res, err, "Could not create corpus directory"))
	}

	return d.skip(ctx, res, "downloading corpus")
}

func (d *Null) UploadCorpus(ctx context.Context, target, dir string) Result {
	return d.skip(ctx, Result{Op: OpUploadCorpus, Target: target, Path: dir}, "uploading corpus")
}

func (d *Null) UploadCrashes(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadCrashes}, "uploading crashes")
}

func (d *Null) UploadCoverage(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadCoverage}, "uploading coverage report")
}

func (d *Null) GetCoverage(ctx context.Context, _ string) (coverage.Coverage, Result) {
	return nil, d.skip(ctx, Result{Op: OpGetCoverage}, "getting project coverage")
}
