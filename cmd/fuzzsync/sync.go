package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/fuzzsync/pkg/deployment"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	phasePrepare = "prepare"
	phaseFinish  = "finish"
)

var (
	syncPhase       string
	syncTargets     []string
	syncConcurrency int
	syncSkipBuild   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run all transfers of a fuzzing job phase",
	Long: `Run every transfer of one phase of a fuzzing job.

The prepare phase downloads the latest build and the corpus of each target.
The finish phase uploads each target's corpus, the crashes, the coverage
report and the build output.`,
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		var results []deployment.Result

		switch syncPhase {
		case phasePrepare:
			results = a.prepare(ctx)
		case phaseFinish:
			results = a.finish(ctx)
		default:
			return fmt.Errorf("unknown phase %q (expected %s or %s)", syncPhase, phasePrepare, phaseFinish)
		}

		summarize(results)

		return check(results...)
	}),
}

func init() {
	syncCmd.Flags().StringVar(&syncPhase, "phase", phasePrepare,
		"job phase ("+phasePrepare+" or "+phaseFinish+")")
	syncCmd.Flags().StringSliceVar(&syncTargets, "targets", nil, "fuzz targets")
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", 1,
		"maximum number of concurrent corpus transfers (1 runs them sequentially)")
	syncCmd.Flags().BoolVar(&syncSkipBuild, "skip-build", false,
		"do not transfer the build")

	rootCmd.AddCommand(syncCmd)
}

func (a *app) prepare(ctx context.Context) []deployment.Result {
	var results []deployment.Result

	if !syncSkipBuild {
		results = append(results, a.deployment.DownloadLatestBuild(ctx))
	}

	return append(results, a.forEachTarget(ctx, a.deployment.DownloadCorpus)...)
}

func (a *app) finish(ctx context.Context) []deployment.Result {
	results := a.forEachTarget(ctx, a.deployment.UploadCorpus)

	results = append(results,
		a.deployment.UploadCrashes(ctx),
		a.deployment.UploadCoverage(ctx),
	)

	if !syncSkipBuild {
		results = append(results, a.deployment.UploadLatestBuild(ctx))
	}

	return results
}

// forEachTarget runs op for every target, at most syncConcurrency at a time,
// and returns the results in target order. Each goroutine owns one slot of
// the result slice.
func (a *app) forEachTarget(
	ctx context.Context,
	op func(ctx context.Context, target, dir string) deployment.Result,
) []deployment.Result {
	results := make([]deployment.Result, len(syncTargets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(syncConcurrency, 1))

	for i, target := range syncTargets {
		g.Go(func() error {
			results[i] = op(gctx, target, a.ws.CorpusDir(target))

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// summarize logs the number of results per outcome.
func summarize(results []deployment.Result) {
	counts := make(map[deployment.Outcome]int, 3)
	for _, res := range results {
		counts[res.Outcome]++
	}

	log.WithFields(logrus.Fields{
		"performed": counts[deployment.OutcomePerformed],
		"skipped":   counts[deployment.OutcomeSkipped],
		"failed":    counts[deployment.OutcomeFailed],
	}).Info("Sync finished")
}
