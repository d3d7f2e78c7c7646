package coverage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/fuzzsync/pkg/httpfetch"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportJSON = `{
  "data": [{
    "files": [
      {"filename": "/src/demo/lib/parse.c", "segments": [[1, 1, 12, true, true], [4, 2, 0, true, false]]},
      {"filename": "/src/demo/lib/unused.c", "segments": [[1, 1, 0, true, true]]},
      {"filename": "/src/demo/fuzz/fuzz_one.c", "segments": [[3, 1, 1, true, true]]},
      {"filename": "/usr/include/stdio.h", "segments": [[1, 1, 9, true, true]]}
    ]
  }]
}`

// fakeGetter serves canned bodies by URL.
type fakeGetter struct {
	bodies map[string]string
	calls  []string
}

func (g *fakeGetter) FetchBytes(_ context.Context, url string) ([]byte, error) {
	g.calls = append(g.calls, url)

	body, ok := g.bodies[url]
	if !ok {
		return nil, fmt.Errorf("%s: not found", url)
	}

	return []byte(body), nil
}

func TestCoveredFiles(t *testing.T) {
	files, err := coveredFiles([]byte(exportJSON), "/home/runner/work/demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"fuzz/fuzz_one.c", "lib/parse.c"}, files)
}

func TestCoveredFiles_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "<html>"},
		{name: "no data", data: `{"data": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coveredFiles([]byte(tt.data), "/src/demo")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCoverage))
		})
	}
}

func TestRelativeToRepo(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		repo     string
		want     string
		ok       bool
	}{
		{name: "direct prefix", filename: "/src/demo/a/b.c", repo: "/src/demo", want: "a/b.c", ok: true},
		{name: "repo name marker", filename: "/src/demo/a/b.c", repo: "/checkout/demo/", want: "a/b.c", ok: true},
		{name: "outside repo", filename: "/usr/include/x.h", repo: "/src/demo", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := relativeToRepo(tt.filename, tt.repo)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDirectory(t *testing.T) {
	f := NewFactory(logrus.New(), &fakeGetter{}, "https://storage.example", "coverage")

	t.Run("missing directory", func(t *testing.T) {
		_, err := f.FromDirectory("/src/demo", filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCoverage))
	})

	t.Run("reads target export", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "fuzzer_stats"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, "fuzzer_stats", "fuzz_one.json"), []byte(exportJSON), 0o644,
		))

		cov, err := f.FromDirectory("/src/demo", dir)
		require.NoError(t, err)

		files, err := cov.FilesCoveredByTarget(context.Background(), "fuzz_one")
		require.NoError(t, err)
		assert.Contains(t, files, "lib/parse.c")

		_, err = cov.FilesCoveredByTarget(context.Background(), "fuzz_two")
		assert.True(t, errors.Is(err, ErrCoverage))
	})
}

func TestFromProject(t *testing.T) {
	ctx := context.Background()
	infoURL := "https://storage.example/oss-fuzz-coverage/demo/latest_report_info/demo.json"
	statsURL := "https://storage.example/oss-fuzz-coverage/demo/fuzzer_stats/20240101"

	getter := &fakeGetter{bodies: map[string]string{
		infoURL:                     `{"fuzzer_stats_dir": "gs://oss-fuzz-coverage/demo/fuzzer_stats/20240101"}`,
		statsURL + "/fuzz_one.json": exportJSON,
	}}

	f := NewFactory(logrus.New(), getter, "https://storage.example/", "oss-fuzz-coverage")

	cov, err := f.FromProject(ctx, "/src/demo", "demo")
	require.NoError(t, err)

	files, err := cov.FilesCoveredByTarget(ctx, "fuzz_one")
	require.NoError(t, err)
	assert.Equal(t, []string{"fuzz/fuzz_one.c", "lib/parse.c"}, files)
	assert.Equal(t, []string{infoURL, statsURL + "/fuzz_one.json"}, getter.calls)
}

func TestFromProject_Errors(t *testing.T) {
	infoURL := "https://storage.example/oss-fuzz-coverage/demo/latest_report_info/demo.json"

	tests := []struct {
		name   string
		bodies map[string]string
	}{
		{name: "report info missing", bodies: map[string]string{}},
		{name: "report info malformed", bodies: map[string]string{infoURL: "{"}},
		{name: "no stats dir", bodies: map[string]string{infoURL: `{"report_date": "20240101"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFactory(logrus.New(), &fakeGetter{bodies: tt.bodies}, "https://storage.example", "oss-fuzz-coverage")

			_, err := f.FromProject(context.Background(), "/src/demo", "demo")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCoverage))
		})
	}
}

func TestFromProject_LargeExport(t *testing.T) {
	const covered = 60000

	var export strings.Builder

	export.WriteString(`{"data": [{"files": [`)

	for i := 0; i < covered; i++ {
		if i > 0 {
			export.WriteString(",")
		}

		fmt.Fprintf(&export, `{"filename": "/src/demo/gen/file_%05d.c", "segments": [[1, 1, 3, true, true]]}`, i)
	}

	export.WriteString(`]}]}`)
	require.Greater(t, export.Len(), 4<<20)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oss-fuzz-coverage/demo/latest_report_info/demo.json":
			_, _ = w.Write([]byte(`{"fuzzer_stats_dir": "gs://oss-fuzz-coverage/demo/fuzzer_stats/20240101"}`))
		case "/oss-fuzz-coverage/demo/fuzzer_stats/20240101/fuzz_one.json":
			_, _ = w.Write([]byte(export.String()))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	fetcher := httpfetch.New(logrus.New(), httpfetch.Options{})
	f := NewFactory(logrus.New(), fetcher, srv.URL, "oss-fuzz-coverage")

	cov, err := f.FromProject(context.Background(), "/src/demo", "demo")
	require.NoError(t, err)

	files, err := cov.FilesCoveredByTarget(context.Background(), "fuzz_one")
	require.NoError(t, err)
	assert.Len(t, files, covered)
}
