package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		want    *OwnerConfig
		wantErr bool
	}{
		{name: "empty", owner: "", want: nil},
		{name: "valid", owner: "1000:1001", want: &OwnerConfig{UID: 1000, GID: 1001}},
		{name: "missing gid", owner: "1000", wantErr: true},
		{name: "non numeric uid", owner: "root:0", wantErr: true},
		{name: "non numeric gid", owner: "0:wheel", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOwner(tt.owner)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()

	t.Run("creates nested directory", func(t *testing.T) {
		dir := filepath.Join(base, "a", "b")
		require.NoError(t, EnsureDir(dir, nil))
		assert.DirExists(t, dir)
	})

	t.Run("keeps existing content", func(t *testing.T) {
		dir := filepath.Join(base, "keep")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "seed"), []byte("x"), 0o644))

		require.NoError(t, EnsureDir(dir, nil))
		assert.FileExists(t, filepath.Join(dir, "seed"))
	})

	t.Run("rejects regular file", func(t *testing.T) {
		file := filepath.Join(base, "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		require.Error(t, EnsureDir(file, nil))
	})
}

func TestIsEmptyDir(t *testing.T) {
	base := t.TempDir()

	empty, err := IsEmptyDir(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.True(t, empty, "missing directory counts as empty")

	empty, err = IsEmptyDir(base)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(base, "crash-1"), []byte("x"), 0o644))

	empty, err = IsEmptyDir(base)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestCountEntries(t *testing.T) {
	base := t.TempDir()

	n, err := CountEntries(filepath.Join(base, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, os.WriteFile(filepath.Join(base, "a"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(base, "b"), 0o755))

	n, err = CountEntries(base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
