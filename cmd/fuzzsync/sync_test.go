package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/deployment"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	ok := deployment.Result{Outcome: deployment.OutcomePerformed}
	bad := deployment.Result{Outcome: deployment.OutcomeFailed}

	tests := []struct {
		name    string
		strict  bool
		results []deployment.Result
		wantErr bool
	}{
		{name: "lenient with failure", strict: false, results: []deployment.Result{ok, bad}},
		{name: "strict without failure", strict: true, results: []deployment.Result{ok, ok}},
		{name: "strict with failure", strict: true, results: []deployment.Result{ok, bad}, wantErr: true},
		{name: "strict with nothing", strict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strict = tt.strict
			t.Cleanup(func() { strict = false })

			err := check(tt.results...)
			if tt.wantErr {
				require.ErrorIs(t, err, errTransferFailed)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestForEachTarget_KeepsOrder(t *testing.T) {
	syncTargets = []string{"fuzz_a", "fuzz_b", "fuzz_c", "fuzz_d"}
	syncConcurrency = 2

	t.Cleanup(func() {
		syncTargets = nil
		syncConcurrency = 1
	})

	a := &app{ws: workspace.New(t.TempDir())}

	results := a.forEachTarget(context.Background(), func(_ context.Context, target, dir string) deployment.Result {
		return deployment.Result{Outcome: deployment.OutcomeSkipped, Target: target, Path: dir}
	})

	require.Len(t, results, 4)

	for i, target := range syncTargets {
		assert.Equal(t, target, results[i].Target)
		assert.Equal(t, a.ws.CorpusDir(target), results[i].Path)
	}
}

func TestSyncCmd_SequentialByDefault(t *testing.T) {
	flag := syncCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)

	syncTargets = []string{"fuzz_a", "fuzz_b", "fuzz_c"}
	syncConcurrency = 1

	t.Cleanup(func() { syncTargets = nil })

	a := &app{ws: workspace.New(t.TempDir())}

	var running, peak atomic.Int32

	a.forEachTarget(context.Background(), func(_ context.Context, target, _ string) deployment.Result {
		n := running.Add(1)
		defer running.Add(-1)

		if n > peak.Load() {
			peak.Store(n)
		}

		time.Sleep(5 * time.Millisecond)

		return deployment.Result{Outcome: deployment.OutcomePerformed, Target: target}
	})

	assert.Equal(t, int32(1), peak.Load())
}
