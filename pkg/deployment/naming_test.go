package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildName(t *testing.T) {
	assert.Equal(t, "address-latest", BuildName("address"))
	assert.Equal(t, "undefined-latest", BuildName("undefined"))
}

func TestQualifyTarget(t *testing.T) {
	tests := []struct {
		name    string
		project string
		target  string
		want    string
	}{
		{name: "raw target", project: "proj", target: "target", want: "proj_target"},
		{name: "already qualified", project: "proj", target: "proj_target", want: "proj_target"},
		{name: "similar prefix without underscore", project: "proj", target: "projtarget", want: "proj_projtarget"},
		{name: "other project prefix", project: "proj", target: "other_target", want: "proj_other_target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualifyTarget(tt.project, tt.target)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, QualifyTarget(tt.project, got), "qualification must be idempotent")
		})
	}
}

func TestPublicLayout(t *testing.T) {
	l := newPublicLayout("https://storage.googleapis.com/", "clusterfuzz-builds", "demo", "address")

	assert.Equal(t,
		"https://storage.googleapis.com/clusterfuzz-builds/demo/demo-address-latest.version",
		l.VersionURL())
	assert.Equal(t,
		"https://storage.googleapis.com/clusterfuzz-builds/demo/demo-address-20240101.zip",
		l.BuildURL("demo-address-20240101.zip"))
	assert.Equal(t,
		"https://storage.googleapis.com/demo-backup.clusterfuzz-external.appspot.com/corpus/libFuzzer/demo_fuzz_one/public.zip",
		l.CorpusURL("fuzz_one"))
	assert.Equal(t, l.CorpusURL("fuzz_one"), l.CorpusURL("demo_fuzz_one"))
}
