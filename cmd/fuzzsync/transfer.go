package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	corpusTarget string
	corpusDir    string
	coverageRepo string
	coverageFor  []string
)

var downloadBuildCmd = &cobra.Command{
	Use:   "download-build",
	Short: "Download the latest build into the workspace",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		res := a.deployment.DownloadLatestBuild(ctx)
		if res.Path != "" {
			fmt.Println(res.Path)
		}

		return check(res)
	}),
}

var uploadBuildCmd = &cobra.Command{
	Use:   "upload-build",
	Short: "Upload the workspace build output as the latest build",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		return check(a.deployment.UploadLatestBuild(ctx))
	}),
}

var downloadCorpusCmd = &cobra.Command{
	Use:   "download-corpus",
	Short: "Download the corpus of a fuzz target",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		res := a.deployment.DownloadCorpus(ctx, corpusTarget, a.corpusDir())
		fmt.Println(res.Path)

		return check(res)
	}),
}

var uploadCorpusCmd = &cobra.Command{
	Use:   "upload-corpus",
	Short: "Upload the corpus of a fuzz target",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		return check(a.deployment.UploadCorpus(ctx, corpusTarget, a.corpusDir()))
	}),
}

var uploadCrashesCmd = &cobra.Command{
	Use:   "upload-crashes",
	Short: "Upload crash artifacts, if any",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		return check(a.deployment.UploadCrashes(ctx))
	}),
}

var uploadCoverageCmd = &cobra.Command{
	Use:   "upload-coverage",
	Short: "Upload the workspace coverage report",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		return check(a.deployment.UploadCoverage(ctx))
	}),
}

var getCoverageCmd = &cobra.Command{
	Use:   "get-coverage",
	Short: "Print the source files covered by fuzz targets",
	RunE: runWithApp(func(ctx context.Context, a *app) error {
		cov, res := a.deployment.GetCoverage(ctx, coverageRepo)
		if cov == nil {
			return check(res)
		}

		for _, target := range coverageFor {
			files, err := cov.FilesCoveredByTarget(ctx, target)
			if err != nil {
				log.WithError(err).WithField("target", target).Warn("No coverage for target")

				continue
			}

			for _, file := range files {
				fmt.Printf("%s\t%s\n", target, file)
			}
		}

		return check(res)
	}),
}

// corpusDir returns --dir or the workspace corpus directory of the target.
func (a *app) corpusDir() string {
	if corpusDir != "" {
		return corpusDir
	}

	return a.ws.CorpusDir(corpusTarget)
}

func init() {
	for _, cmd := range []*cobra.Command{downloadCorpusCmd, uploadCorpusCmd} {
		cmd.Flags().StringVar(&corpusTarget, "target", "", "fuzz target name")
		cmd.Flags().StringVar(&corpusDir, "dir", "",
			"corpus directory (default: workspace corpus directory of the target)")

		_ = cmd.MarkFlagRequired("target")
	}

	getCoverageCmd.Flags().StringVar(&coverageRepo, "repo", ".", "path of the repository checkout")
	getCoverageCmd.Flags().StringSliceVar(&coverageFor, "target", nil, "fuzz targets to report")

	rootCmd.AddCommand(
		downloadBuildCmd,
		uploadBuildCmd,
		downloadCorpusCmd,
		uploadCorpusCmd,
		uploadCrashesCmd,
		uploadCoverageCmd,
		getCoverageCmd,
	)
}
