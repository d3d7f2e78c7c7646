package workspace

import (
	"path/filepath"
)

// Directory names below the workspace root.
const (
	buildDirName          = "previous-build"
	outputDirName         = "build-out"
	artifactsDirName      = "out/artifacts"
	coverageReportDirName = "coverage-report"
	coverageCacheDirName  = "previous-coverage"
	corpusDirName         = "corpus"
)

// Workspace is the table of filesystem locations a fuzzing job uses.
// Paths are derived once from the root and never change; the directories
// themselves are created lazily by whoever writes to them.
type Workspace struct {
	root string
}

// New creates a Workspace rooted at root. The root is made absolute so
// paths stay valid if the process changes directory.
func New(root string) *Workspace {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Workspace{root: root}
}

// Root returns the workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// BuildDir is where the latest remote build is unpacked. Its presence
// marks the build as already downloaded.
func (w *Workspace) BuildDir() string {
	return filepath.Join(w.root, buildDirName)
}

// OutputDir holds the build produced by the current job.
func (w *Workspace) OutputDir() string {
	return filepath.Join(w.root, outputDirName)
}

// ArtifactsDir holds crash reproducers found by the current job.
func (w *Workspace) ArtifactsDir() string {
	return filepath.Join(w.root, filepath.FromSlash(artifactsDirName))
}

// CoverageReportDir holds the coverage report produced by the current job.
func (w *Workspace) CoverageReportDir() string {
	return filepath.Join(w.root, coverageReportDirName)
}

// RemoteCoverageCacheDir receives coverage reports downloaded from the store.
func (w *Workspace) RemoteCoverageCacheDir() string {
	return filepath.Join(w.root, coverageCacheDirName)
}

// CorpusDir is the default corpus location for a fuzz target.
func (w *Workspace) CorpusDir(target string) string {
	return filepath.Join(w.root, corpusDirName, target)
}
