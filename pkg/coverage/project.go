package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// reportInfo is the latest_report_info document of a public project.
type reportInfo struct {
	FuzzerStatsDir string `json:"fuzzer_stats_dir"`
	HTMLReportURL  string `json:"html_report_url,omitempty"`
	ReportDate     string `json:"report_date,omitempty"`
}

// projectCoverage reads per-target exports from the public coverage bucket.
type projectCoverage struct {
	log      logrus.FieldLogger
	getter   Getter
	repoPath string
	statsURL string
}

// FromProject resolves the latest coverage report of project. It fails
// with ErrCoverage when the report info cannot be fetched or parsed.
func (f *factory) FromProject(ctx context.Context, repoPath, project string) (Coverage, error) {
	url := f.reportInfoURL(project)

	data, err := f.getter.FetchBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrCoverage, url, err)
	}

	var info reportInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding report info: %w", ErrCoverage, err)
	}

	if info.FuzzerStatsDir == "" {
		return nil, fmt.Errorf("%w: report info for %s has no fuzzer_stats_dir", ErrCoverage, project)
	}

	statsURL := f.httpURL(info.FuzzerStatsDir)

	f.log.WithFields(logrus.Fields{
		"project": project,
		"stats":   statsURL,
		"date":    info.ReportDate,
	}).Debug("Resolved latest coverage report")

	return &projectCoverage{
		log:      f.log,
		getter:   f.getter,
		repoPath: repoPath,
		statsURL: statsURL,
	}, nil
}

// reportInfoURL returns {base}/{bucket}/{project}/latest_report_info/{project}.json.
func (f *factory) reportInfoURL(project string) string {
	return strings.Join([]string{
		f.baseURL, f.bucket, project, "latest_report_info", project + ".json",
	}, "/")
}

// httpURL rewrites gs://bucket/path locations to the HTTP base URL.
func (f *factory) httpURL(location string) string {
	if rest, ok := strings.CutPrefix(location, "gs://"); ok {
		return f.baseURL + "/" + rest
	}

	return strings.TrimRight(location, "/")
}

func (c *projectCoverage) FilesCoveredByTarget(ctx context.Context, target string) ([]string, error) {
	url := strings.TrimRight(c.statsURL, "/") + "/" + target + ".json"

	data, err := c.getter.FetchBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %w", ErrCoverage, url, err)
	}

	return coveredFiles(data, c.repoPath)
}
