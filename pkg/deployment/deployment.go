// Package deployment synchronizes fuzzing artifacts between the local
// workspace and the remote store that backs the CI platform a job runs on.
//
// A Deployment never returns an error across its methods: every failure is
// logged, reported to the Observer and folded into the returned Result, so
// a missing corpus or build never aborts the surrounding fuzzing job.
package deployment

import (
	"context"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/sirupsen/logrus"
)

// Deployment is the artifact synchronization contract shared by every
// backend.
type Deployment interface {
	// Name identifies the backend in logs.
	Name() string

	// DownloadLatestBuild materializes the latest known build in the
	// workspace build directory. Result.Path is empty when no build is
	// available. Calls after the directory exists return it immediately.
	DownloadLatestBuild(ctx context.Context) Result

	// UploadLatestBuild publishes the current job's build output.
	UploadLatestBuild(ctx context.Context) Result

	// DownloadCorpus fills dir with the target's remote corpus. dir exists
	// afterwards and Result.Path is always dir.
	DownloadCorpus(ctx context.Context, target, dir string) Result

	// UploadCorpus publishes the corpus in dir for target.
	UploadCorpus(ctx context.Context, target, dir string) Result

	// UploadCrashes publishes the crash artifacts, if any.
	UploadCrashes(ctx context.Context) Result

	// UploadCoverage publishes the current job's coverage report.
	UploadCoverage(ctx context.Context) Result

	// GetCoverage returns coverage data for the repository at repoPath, or
	// nil when none is available.
	GetCoverage(ctx context.Context, repoPath string) (coverage.Coverage, Result)
}

// Operation names a contract method.
type Operation string

const (
	OpDownloadLatestBuild Operation = "download_latest_build"
	OpUploadLatestBuild   Operation = "upload_latest_build"
	OpDownloadCorpus      Operation = "download_corpus"
	OpUploadCorpus        Operation = "upload_corpus"
	OpUploadCrashes       Operation = "upload_crashes"
	OpUploadCoverage      Operation = "upload_coverage"
	OpGetCoverage         Operation = "get_coverage"
)

// Outcome is what happened during an operation.
type Outcome int

const (
	// OutcomePerformed means the transfer happened.
	OutcomePerformed Outcome = iota + 1
	// OutcomeSkipped means no transfer was needed or the backend does not
	// support the operation.
	OutcomeSkipped
	// OutcomeFailed means the transfer was attempted and did not succeed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePerformed:
		return "performed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes the outcome of one contract operation.
type Result struct {
	Deployment string
	Op         Operation
	Outcome    Outcome
	// Target is the fuzz target for corpus operations.
	Target string
	// Path is the local directory the operation produced or read.
	Path string
	// Reason is a human readable explanation, also used as log message.
	Reason string
	// Err is the underlying error of a failed operation.
	Err error
	// Tolerable marks failures that are expected in normal operation,
	// such as a target without a published corpus. They log as warnings.
	Tolerable bool
	Duration  time.Duration
}

// OK reports whether the operation did not fail.
func (r Result) OK() bool {
	return r.Outcome != OutcomeFailed
}

// Observer receives every Result a Deployment produces.
type Observer interface {
	Observe(ctx context.Context, res Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, res Result)

// Observe calls fn.
func (fn ObserverFunc) Observe(ctx context.Context, res Result) {
	fn(ctx, res)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Result) {}

// reporter logs results and forwards them to the observer.
type reporter struct {
	name     string
	log      logrus.FieldLogger
	observer Observer
}

func newReporter(log logrus.FieldLogger, name string, observer Observer) reporter {
	if observer == nil {
		observer = nopObserver{}
	}

	return reporter{
		name:     name,
		log:      log.WithField("deployment", name),
		observer: observer,
	}
}

// Name returns the deployment name.
func (r *reporter) Name() string {
	return r.name
}

// report finalizes res, logs it at a severity matching its outcome and
// notifies the observer.
func (r *reporter) report(ctx context.Context, started time.Time, res Result) Result {
	res.Deployment = r.name
	res.Duration = time.Since(started)

	fields := logrus.Fields{"op": res.Op}
	if res.Target != "" {
		fields["target"] = res.Target
	}

	if res.Path != "" {
		fields["path"] = res.Path
	}

	entry := r.log.WithFields(fields)

	switch res.Outcome {
	case OutcomeFailed:
		if res.Err != nil {
			entry = entry.WithError(res.Err)
		}

		if res.Tolerable {
			entry.Warn(res.Reason)
		} else {
			entry.Error(res.Reason)
		}
	default:
		entry.WithField("duration", res.Duration).Info(res.Reason)
	}

	r.observer.Observe(ctx, res)

	return res
}
