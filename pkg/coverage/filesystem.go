package coverage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// filesystemCoverage reads per-target exports from a local report
// directory laid out as <dir>/fuzzer_stats/<target>.json.
type filesystemCoverage struct {
	repoPath  string
	reportDir string
}

// FromDirectory checks that reportDir exists and returns a Coverage
// reading from it.
func (f *factory) FromDirectory(repoPath, reportDir string) (Coverage, error) {
	info, err := os.Stat(reportDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCoverage, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCoverage, reportDir)
	}

	return &filesystemCoverage{repoPath: repoPath, reportDir: reportDir}, nil
}

func (c *filesystemCoverage) FilesCoveredByTarget(_ context.Context, target string) ([]string, error) {
	p := filepath.Join(c.reportDir, fuzzerStatsDir, target+".json")

	data, err := os.ReadFile(p) //nolint:gosec // path built from the workspace
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrCoverage, p, err)
	}

	return coveredFiles(data, c.repoPath)
}
