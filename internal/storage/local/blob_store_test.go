// Package local_test tests the destination directory store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/doc-harvester/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "downloads")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, store.Dir())
		assert.NoFileExists(t, filepath.Join(dir, ".writable_test"))
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.ErrorContains(t, err, "not a directory")
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestReserveDisambiguates(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "report.pdf"), []byte("a"), 0o600))

	first, err := store.Reserve("report.pdf")
	require.NoError(t, err)
	require.NoError(t, first.Close())
	second, err := store.Reserve("report.pdf")
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, "report_1.pdf", filepath.Base(first.Name()))
	assert.Equal(t, "report_2.pdf", filepath.Base(second.Name()))
}

func TestReserveConcurrentNamesAreUnique(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = map[string]struct{}{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := store.Reserve("doc.pdf")
			if !assert.NoError(t, err) {
				return
			}
			_ = f.Close()
			mu.Lock()
			names[filepath.Base(f.Name())] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, names, 10)
}

func TestReserveRejectsTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	// Reserve keeps only the base name, so traversal collapses into the directory.
	f, err := store.Reserve("../../escape.pdf")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, store.Dir(), filepath.Dir(f.Name()))

	_, err = store.Path("../escape.pdf")
	assert.ErrorContains(t, err, "path traversal")
}

func TestAdopt(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	dir := store.Dir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.pdf"), []byte("old"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book (1).pdf"), []byte("new"), 0o600))

	got, err := store.Adopt(filepath.Join(dir, "book (1).pdf"), "book.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "book_1.pdf"), got)
	assert.NoFileExists(t, filepath.Join(dir, "book (1).pdf"))

	same, err := store.Adopt(filepath.Join(dir, "book.pdf"), "book.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "book.pdf"), same)
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "reports/run.txt", "text/plain", bytes.NewReader([]byte("hello world")))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(store.Dir(), "reports/run.txt"), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		content, err := os.ReadFile(filepath.Join(tempDir, "reports/run.txt"))
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(content))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../evil.txt", "text/plain", bytes.NewReader(nil))
		assert.ErrorContains(t, err, "path traversal")
	})
}
