// Package local manages the destination directory on the local filesystem:
// validating it, reserving collision-free file names, and writing whole
// objects such as run reports.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxSuffix bounds the name_N search so a pathological directory cannot spin forever.
const maxSuffix = 100000

// Config captures the parameters for the local store.
type Config struct {
	// BaseDir is the directory files are written into.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes artifacts below a single directory.
type BlobStore struct {
	baseDir string
}

// New validates (creating if needed) the base directory and checks that it is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path %q is not a directory", cfg.BaseDir)
	}

	marker := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(marker, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	abs, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	return &BlobStore{baseDir: abs}, nil
}

// Dir returns the absolute base directory.
func (s *BlobStore) Dir() string {
	return s.baseDir
}

// Path resolves name inside the base directory, rejecting traversal.
func (s *BlobStore) Path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	full := filepath.Clean(filepath.Join(s.baseDir, name))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

// Reserve atomically creates the first free variant of name (name, name_1,
// name_2, ...) and returns the open file. The caller owns the file and must
// close it, and remove it if the write fails.
func (s *BlobStore) Reserve(name string) (*os.File, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 0; i < maxSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		full, err := s.Path(candidate)
		if err != nil {
			return nil, err
		}
		// #nosec G304 -- full is confined to baseDir by Path.
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("reserve %s: %w", candidate, err)
		}
	}
	return nil, fmt.Errorf("reserve %s: no free name after %d tries", base, maxSuffix)
}

// Adopt moves an existing file in the base directory to the first free
// variant of name and returns the new path. A file already holding name is
// returned unchanged.
func (s *BlobStore) Adopt(current, name string) (string, error) {
	want, err := s.Path(filepath.Base(name))
	if err != nil {
		return "", err
	}
	if filepath.Clean(current) == want {
		return current, nil
	}
	f, err := s.Reserve(name)
	if err != nil {
		return "", err
	}
	target := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close placeholder: %w", err)
	}
	if err := os.Rename(current, target); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("rename %s: %w", filepath.Base(current), err)
	}
	return target, nil
}

// PutObject writes data to path under the base directory and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	full, err := s.Path(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	// #nosec G304 -- full is confined to baseDir by Path.
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return "file://" + full, nil
}
