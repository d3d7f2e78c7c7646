package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// metaSuffix names the sidecar file holding an object's metadata.
const metaSuffix = ".meta.json"

// filesystemBackend stores objects as plain files below a root directory.
type filesystemBackend struct {
	root string
}

// Ensure interface compliance.
var _ Backend = (*filesystemBackend)(nil)

// NewFilesystemBackend creates a Backend storing objects below root.
func NewFilesystemBackend(root string) (Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	return &filesystemBackend{root: abs}, nil
}

func (b *filesystemBackend) String() string {
	return "file://" + filepath.ToSlash(b.root)
}

func (b *filesystemBackend) objectPath(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// Put writes the object and its metadata sidecar to temp files next to the
// target and renames them into place, object first, so readers never observe
// a partial object or metadata describing an object that is not there yet.
func (b *filesystemBackend) Put(
	_ context.Context, key string, body io.ReadSeeker, _ int64, meta map[string]string,
) error {
	target := b.objectPath(key)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	objTmp, err := writeTemp(filepath.Dir(target), body)
	if err != nil {
		return fmt.Errorf("writing object %q: %w", key, err)
	}

	defer func() { _ = os.Remove(objTmp) }()

	metaTmp, err := writeTemp(filepath.Dir(target), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("writing metadata for %q: %w", key, err)
	}

	defer func() { _ = os.Remove(metaTmp) }()

	if err := os.Rename(objTmp, target); err != nil {
		return fmt.Errorf("renaming object %q: %w", key, err)
	}

	if err := os.Rename(metaTmp, target+metaSuffix); err != nil {
		return fmt.Errorf("renaming metadata for %q: %w", key, err)
	}

	return nil
}

// writeTemp copies r into a new hidden temp file in dir and returns its path.
// The file is removed again on failure.
func writeTemp(dir string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return "", err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return "", err
	}

	return tmp.Name(), nil
}

// Get opens the object file. Missing metadata is not an error.
func (b *filesystemBackend) Get(_ context.Context, key string) (io.ReadCloser, map[string]string, error) {
	target := b.objectPath(key)

	f, err := os.Open(target) //nolint:gosec // keys are built by ObjectKey
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}

		return nil, nil, fmt.Errorf("opening object %q: %w", key, err)
	}

	meta := map[string]string{}

	data, err := os.ReadFile(target + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			_ = f.Close()

			return nil, nil, fmt.Errorf("decoding metadata for %q: %w", key, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		_ = f.Close()

		return nil, nil, fmt.Errorf("reading metadata for %q: %w", key, err)
	}

	return f, meta, nil
}
