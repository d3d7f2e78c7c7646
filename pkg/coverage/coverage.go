// Package coverage exposes which source files a fuzz target covers, read
// from llvm-cov JSON exports kept either on disk or in the public coverage
// bucket.
package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrCoverage wraps every failure to load or parse coverage data.
var ErrCoverage = errors.New("coverage unavailable")

// fuzzerStatsDir is the report subdirectory holding per-target exports.
const fuzzerStatsDir = "fuzzer_stats"

// Coverage answers per-target coverage questions about a repository.
type Coverage interface {
	// FilesCoveredByTarget returns repository-relative paths of the source
	// files the target reaches, sorted.
	FilesCoveredByTarget(ctx context.Context, target string) ([]string, error)
}

// Factory builds Coverage objects.
type Factory interface {
	// FromDirectory reads a coverage report stored in reportDir.
	FromDirectory(repoPath, reportDir string) (Coverage, error)
	// FromProject reads the latest public coverage report of project.
	FromProject(ctx context.Context, repoPath, project string) (Coverage, error)
}

// Getter downloads small remote objects.
type Getter interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

type factory struct {
	log     logrus.FieldLogger
	getter  Getter
	baseURL string
	bucket  string
}

// Ensure interface compliance.
var _ Factory = (*factory)(nil)

// NewFactory creates a Factory. baseURL and bucket locate the public
// coverage reports, e.g. https://storage.googleapis.com and
// oss-fuzz-coverage.
func NewFactory(log logrus.FieldLogger, getter Getter, baseURL, bucket string) Factory {
	return &factory{
		log:     log.WithField("component", "coverage"),
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  strings.Trim(bucket, "/"),
	}
}

// exportData is the subset of the llvm-cov export format that is used.
type exportData struct {
	Data []struct {
		Files []struct {
			Filename string  `json:"filename"`
			Segments [][]any `json:"segments"`
		} `json:"files"`
	} `json:"data"`
}

// coveredFiles parses an llvm-cov export and returns the covered files
// that live inside repoPath.
func coveredFiles(data []byte, repoPath string) ([]string, error) {
	var export exportData
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: decoding coverage export: %w", ErrCoverage, err)
	}

	if len(export.Data) == 0 {
		return nil, fmt.Errorf("%w: coverage export has no data", ErrCoverage)
	}

	seen := make(map[string]struct{}, len(export.Data[0].Files))

	for _, file := range export.Data[0].Files {
		if !isCovered(file.Segments) {
			continue
		}

		rel, ok := relativeToRepo(file.Filename, repoPath)
		if !ok {
			continue
		}

		seen[rel] = struct{}{}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}

	sort.Strings(files)

	return files, nil
}

// isCovered reports whether any segment has a non-zero execution count.
// Segments are [line, col, count, hasCount, isRegionEntry, ...].
func isCovered(segments [][]any) bool {
	for _, seg := range segments {
		if len(seg) < 3 {
			continue
		}

		if count, ok := seg[2].(float64); ok && count > 0 {
			return true
		}
	}

	return false
}

// relativeToRepo maps a path from the build environment (usually
// /src/<repo>/...) to a path relative to the repository checkout.
func relativeToRepo(filename, repoPath string) (string, bool) {
	filename = filepath.ToSlash(filename)
	repo := strings.TrimRight(filepath.ToSlash(filepath.Clean(repoPath)), "/")

	if rel, ok := strings.CutPrefix(filename, repo+"/"); ok {
		return rel, true
	}

	marker := "/" + filepath.Base(repo) + "/"
	if i := strings.Index(filename, marker); i >= 0 {
		return filename[i+len(marker):], true
	}

	return "", false
}
