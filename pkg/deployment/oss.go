package deployment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/ethpandaops/fuzzsync/pkg/fsutil"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/sirupsen/logrus"
)

// VersionFetcher reads small text objects such as version descriptors.
type VersionFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// ZipFetcher downloads a zip archive and unpacks it into a directory.
type ZipFetcher interface {
	FetchAndUnpack(ctx context.Context, url, dstDir string) error
}

// skippedOnOSS is the reason given for uploads the public backend never
// accepts.
const skippedOnOSS = "Not uploading %s because on OSS-Fuzz"

// OSS reads builds, corpora and coverage published for a public project.
// The public build is authoritative, so every upload is a no-op.
type OSS struct {
	reporter

	cfg      *config.Config
	ws       *workspace.Workspace
	layout   publicLayout
	versions VersionFetcher
	archives ZipFetcher
	coverage coverage.Factory
	owner    *fsutil.OwnerConfig
}

// Ensure interface compliance.
var _ Deployment = (*OSS)(nil)

// NewOSS creates an OSS deployment for cfg.ProjectName.
func NewOSS(
	log logrus.FieldLogger,
	cfg *config.Config,
	ws *workspace.Workspace,
	versions VersionFetcher,
	archives ZipFetcher,
	cov coverage.Factory,
	observer Observer,
) *OSS {
	owner, _ := fsutil.ParseOwner(cfg.WorkspaceOwner)

	return &OSS{
		reporter: newReporter(log, "oss", observer),
		cfg:      cfg,
		ws:       ws,
		layout: newPublicLayout(
			cfg.Public.BaseURL, cfg.Public.BuildsBucket, cfg.ProjectName, cfg.Sanitizer,
		),
		versions: versions,
		archives: archives,
		coverage: cov,
		owner:    owner,
	}
}

// LatestBuildName resolves the archive name of the latest public build
// from its version descriptor. It is fetched on every call.
func (d *OSS) LatestBuildName(ctx context.Context) (string, error) {
	url := d.layout.VersionURL()

	body, err := d.versions.FetchText(ctx, url)
	if err != nil {
		return "", fmt.Errorf("getting latest build version for %s from %s: %w",
			d.cfg.ProjectName, url, err)
	}

	name := strings.TrimSpace(body)
	if name == "" {
		return "", fmt.Errorf("empty version descriptor at %s", url)
	}

	return name, nil
}

func (d *OSS) DownloadLatestBuild(ctx context.Context) Result {
	started := time.Now()
	buildDir := d.ws.BuildDir()
	res := Result{Op: OpDownloadLatestBuild}

	if fsutil.Exists(buildDir) {
		res.Outcome = OutcomeSkipped
		res.Path = buildDir
		res.Reason = "Latest build already present"

		return d.report(ctx, started, res)
	}

	if err := fsutil.EnsureDir(buildDir, d.owner); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not create build directory"))
	}

	version, err := d.LatestBuildName(ctx)
	if err != nil {
		return d.report(ctx, started, failed(res, err, "Error getting latest build version"))
	}

	url := d.layout.BuildURL(version)

	d.log.WithField("url", url).Info("Downloading latest build")

	if err := d.archives.FetchAndUnpack(ctx, url, buildDir); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not download latest build"))
	}

	res.Outcome = OutcomePerformed
	res.Path = buildDir
	res.Reason = "Done downloading latest build"

	return d.report(ctx, started, res)
}

func (d *OSS) DownloadCorpus(ctx context.Context, target, dir string) Result {
	started := time.Now()
	res := Result{Op: OpDownloadCorpus, Target: target, Path: dir}

	if err := fsutil.EnsureDir(dir, d.owner); err != nil {
		return d.report(ctx, started, failed(res, err, "Could not create corpus directory"))
	}

	url := d.layout.CorpusURL(target)

	d.log.WithFields(logrus.Fields{"target": target, "url": url}).Info("Downloading corpus")

	// Targets without a public corpus are common; fuzzing starts from an
	// empty corpus instead.
	if err := d.archives.FetchAndUnpack(ctx, url, dir); err != nil {
		res = failed(res, err, "Failed to download corpus")
		res.Tolerable = true

		return d.report(ctx, started, res)
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Done downloading corpus"

	return d.report(ctx, started, res)
}

func (d *OSS) GetCoverage(ctx context.Context, repoPath string) (coverage.Coverage, Result) {
	started := time.Now()
	res := Result{Op: OpGetCoverage}

	cov, err := d.coverage.FromProject(ctx, repoPath, d.cfg.ProjectName)
	if err != nil {
		return nil, d.report(ctx, started, failed(res, err, "Could not get project coverage"))
	}

	res.Outcome = OutcomePerformed
	res.Reason = "Loaded project coverage"

	return cov, d.report(ctx, started, res)
}

func (d *OSS) UploadLatestBuild(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadLatestBuild}, "latest build")
}

func (d *OSS) UploadCorpus(ctx context.Context, target, dir string) Result {
	return d.skip(ctx, Result{Op: OpUploadCorpus, Target: target, Path: dir}, "corpus")
}

func (d *OSS) UploadCrashes(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadCrashes}, "crashes")
}

func (d *OSS) UploadCoverage(ctx context.Context) Result {
	return d.skip(ctx, Result{Op: OpUploadCoverage}, "coverage report")
}

func (d *OSS) skip(ctx context.Context, res Result, what string) Result {
	res.Outcome = OutcomeSkipped
	res.Reason = fmt.Sprintf(skippedOnOSS, what)

	return d.report(ctx, time.Now(), res)
}
