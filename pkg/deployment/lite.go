package deployment

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/ethpandaops/fuzzsync/pkg/filestore"
	"github.com/ethpandaops/fuzzsync/pkg/fsutil"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/sirupsen/logrus"
)

// Lite keeps build, corpus, crash and coverage history in the job's own
// artifact store.
type Lite struct {
	reporter

	cfg      *config.Config
	ws       *workspace.Workspace
	store    filestore.Store
	coverage coverage.Factory
	owner    *fsutil.OwnerConfig
}

// Ensure interface compliance.
var _ Deployment = (*Lite)(nil)

// NewLite creates a Lite deployment on top of store.
func NewLite(
	log logrus.FieldLogger,
	cfg *config.Config,
	ws *workspace.Workspace,
	store filestore.Store,
	cov coverage.Factory,
	observer Observer,
) *Lite {
	owner, _ := fsutil.ParseOwner(cfg.WorkspaceOwner)

	return &Lite{
		reporter: newReporter(log, "lite", observer),
		cfg:      cfg,
		ws:       ws,
		store:    store,
		coverage: cov,
		owner:    owner,
	}
}

func (d *Lite) buildName() string {
	return BuildName(d.cfg.Sanitizer)
}

// corpusName is the store name of a target's corpus: the raw target name.
func (d *Lite) corpusName(target string) string {
	return target
}

func (d *Lite) DownloadLatestBuild(ctx context.Context) Result {
	started := time.Now()
	buildDir := d.ws.BuildDir()
	res := Result{Op: OpDownloadLatestBuild}

	// The build is only needed once a crash must be checked for novelty,
	// which may happen several times per job.
	if fsutil.Exists(buildDir) {
		res.Outcome = OutcomeSkipped
		res.Path = buildDir
		res.Reason = "Latest build already present"

		return d.report(ctx, started, res)
	}

	if err := fsutil.EnsureDir(buildDir, d.owner); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not create build directory"))
	}

	d.log.Info("Downloading latest build")

	if err := d.store.DownloadBuild(ctx, d.buildName(), buildDir); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not download latest build"))
	}

	res.Outcome = OutcomePerformed
	res.Path = buildDir
	res.Reason = "Done downloading latest build"

	return d.report(ctx, started, res)
}

func (d *Lite) UploadLatestBuild(ctx context.Context) Result {
	started := time.Now()
	outDir := d.ws.OutputDir()
	res := Result{Op: OpUploadLatestBuild, Path: outDir}

	d.log.WithField("dir", outDir).Info("Uploading latest build")

	if err := d.store.UploadBuild(ctx, d.buildName(), outDir); err != nil {
		return d.report(ctx, started, failed(res, err, "Failed to upload latest build"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Done uploading latest build"

	return d.report(ctx, started, res)
}

func (d *Lite) DownloadCorpus(ctx context.Context, target, dir string) Result {
	started := time.Now()
	res := Result{Op: OpDownloadCorpus, Target: target, Path: dir}

	if err := fsutil.EnsureDir(dir, d.owner); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not create corpus directory"))
	}

	d.log.WithFields(logrus.Fields{"target": target, "dir": dir}).Info("Downloading corpus")

	if err := d.store.DownloadCorpus(ctx, d.corpusName(target), dir); err != nil {
		res = failed(res, err, "Failed to download corpus")
		if errors.Is(err, filestore.ErrNotFound) {
			res.Reason = "No corpus stored for target"
			res.Tolerable = true
		}

		return d.report(ctx, started, res)
	}

	entries, err := fsutil.CountEntries(dir)
	if err != nil {
		d.log.WithError(err).WithField("dir", dir).Debug("Could not count corpus entries")
	}

	d.log.WithField("entries", entries).Debug("Corpus downloaded")

	res.Outcome = OutcomePerformed
	res.Reason = "Done downloading corpus"

	return d.report(ctx, started, res)
}

func (d *Lite) UploadCorpus(ctx context.Context, target, dir string) Result {
	started := time.Now()
	res := Result{Op: OpUploadCorpus, Target: target, Path: dir}

	d.log.WithFields(logrus.Fields{"target": target, "dir": dir}).Info("Uploading corpus")

	if err := d.store.UploadCorpus(ctx, d.corpusName(target), dir); err != nil {
		return d.report(ctx, started, failed(res, err, "Failed to upload corpus"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Done uploading corpus"

	return d.report(ctx, started, res)
}

func (d *Lite) UploadCrashes(ctx context.Context) Result {
	started := time.Now()
	artifactsDir := d.ws.ArtifactsDir()
	res := Result{Op: OpUploadCrashes, Path: artifactsDir}

	empty, err := fsutil.IsEmptyDir(artifactsDir)
	if err != nil {
		return d.report(ctx, started, failed(res, err, "Could not inspect crashes directory"))
	}

	if empty {
		res.Outcome = OutcomeSkipped
		res.Reason = "No crashes, not uploading"

		return d.report(ctx, started, res)
	}

	d.log.WithField("dir", artifactsDir).Info("Uploading crashes")

	if err := d.store.UploadCrashes(ctx, CrashesArtifactName, artifactsDir); err != nil {
		return d.report(ctx, started, failed(res, err, "Failed to upload crashes"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Done uploading crashes"

	return d.report(ctx, started, res)
}

func (d *Lite) UploadCoverage(ctx context.Context) Result {
	started := time.Now()
	reportDir := d.ws.CoverageReportDir()
	res := Result{Op: OpUploadCoverage, Path: reportDir}

	if err := d.store.UploadCoverage(ctx, CoverageArtifactName, reportDir); err != nil {
		return d.report(ctx, started, failed(res, err, "Failed to upload coverage report"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Done uploading coverage report"

	return d.report(ctx, started, res)
}

func (d *Lite) GetCoverage(ctx context.Context, repoPath string) (coverage.Coverage, Result) {
	started := time.Now()
	cacheDir := d.ws.RemoteCoverageCacheDir()
	res := Result{Op: OpGetCoverage, Path: cacheDir}

	// Reports left by an earlier download must not mix with this one.
	if err := os.RemoveAll(cacheDir); err != nil {
		return nil, d.report(ctx, started, failed(res, err, "Could not clear coverage cache"))
	}

	if err := fsutil.EnsureDir(cacheDir, d.owner); err != nil {
		return nil, d.report(ctx, started, failed(res, err, "Could not create coverage cache"))
	}

	if err := d.store.DownloadCoverage(ctx, CoverageArtifactName, cacheDir); err != nil {
		return nil, d.report(ctx, started, failed(res, err, "Could not download coverage"))
	}

	cov, err := d.coverage.FromDirectory(repoPath, cacheDir)
	if err != nil {
		return nil, d.report(ctx, started, failed(res, err, "Could not get coverage"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Loaded coverage report"

	return cov, d.report(ctx, started, res)
}

// failed marks res as failed with err and reason.
func failed(res Result, err error, reason string) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	res.Reason = reason

	return res
}
