package deployment

import (
	"strings"
)

const (
	// CrashesArtifactName is the store name of the crash artifacts.
	CrashesArtifactName = "current"

	// CoverageArtifactName is the store name of the coverage report.
	CoverageArtifactName = "latest"

	// corpusArchiveName is the public corpus object of every target.
	corpusArchiveName = "public.zip"

	// corpusBucketSuffix completes the public corpus backup bucket name
	// of a project.
	corpusBucketSuffix = "-backup.clusterfuzz-external.appspot.com"

	// corpusEnginePath is the corpus path for libFuzzer targets.
	corpusEnginePath = "corpus/libFuzzer"
)

// BuildName returns the store name of the latest build for a sanitizer.
func BuildName(sanitizer string) string {
	return sanitizer + "-latest"
}

// QualifyTarget prefixes target with the project name, unless it already
// carries the prefix. Qualifying twice yields the same name.
func QualifyTarget(project, target string) string {
	prefix := project + "_"
	if strings.HasPrefix(target, prefix) {
		return target
	}

	return prefix + target
}

// publicLayout builds URLs into the public build storage.
type publicLayout struct {
	baseURL      string
	buildsBucket string
	project      string
	sanitizer    string
}

func newPublicLayout(baseURL, buildsBucket, project, sanitizer string) publicLayout {
	return publicLayout{
		baseURL:      strings.TrimRight(baseURL, "/"),
		buildsBucket: strings.Trim(buildsBucket, "/"),
		project:      project,
		sanitizer:    sanitizer,
	}
}

// VersionURL locates the descriptor naming the latest build archive:
// {base}/{bucket}/{project}/{project}-{sanitizer}-latest.version.
func (l publicLayout) VersionURL() string {
	file := l.project + "-" + l.sanitizer + "-latest.version"

	return join(l.baseURL, l.buildsBucket, l.project, file)
}

// BuildURL locates a build archive named by a version descriptor.
func (l publicLayout) BuildURL(version string) string {
	return join(l.baseURL, l.buildsBucket, l.project, version)
}

// CorpusURL locates the public corpus archive of a target.
func (l publicLayout) CorpusURL(target string) string {
	return join(
		l.baseURL,
		l.project+corpusBucketSuffix,
		corpusEnginePath,
		QualifyTarget(l.project, target),
		corpusArchiveName,
	)
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}
