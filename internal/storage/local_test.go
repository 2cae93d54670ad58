package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(LocalConfig{BasePath: tempDir})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage, tempDir
}

func TestLocalStorage_Upload(t *testing.T) {
	storage, tempDir := newTestLocalStorage(t)
	ctx := context.Background()
	content := []byte("%PDF-1.7 guide")

	err := storage.Upload(ctx, "guides/example.com/abc.pdf", bytes.NewReader(content), "application/pdf", map[string]string{"url": "https://example.com/a.pdf"})
	require.NoError(t, err)

	filePath := filepath.Join(tempDir, "guides", "example.com", "abc.pdf")
	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	raw, err := os.ReadFile(filePath + metadataSuffix)
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "https://example.com/a.pdf", meta["url"])
	assert.Equal(t, "application/pdf", meta["content-type"])
}

func TestLocalStorage_Upload_Overwrite(t *testing.T) {
	storage, tempDir := newTestLocalStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Upload(ctx, "a.pdf", bytes.NewReader([]byte("first")), "", nil))
	require.NoError(t, storage.Upload(ctx, "a.pdf", bytes.NewReader([]byte("second")), "", nil))

	data, err := os.ReadFile(filepath.Join(tempDir, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".upload-", "temp file left behind")
	}
}

func TestLocalStorage_Upload_EmptyKey(t *testing.T) {
	storage, _ := newTestLocalStorage(t)

	err := storage.Upload(context.Background(), "", bytes.NewReader([]byte("test")), "text/plain", nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "key cannot be empty")
}

func TestLocalStorage_DirectoryTraversal(t *testing.T) {
	storage, _ := newTestLocalStorage(t)
	ctx := context.Background()

	for _, key := range []string{"../../../etc/passwd", "guides/../../escape.pdf", ".."} {
		err := storage.Upload(ctx, key, bytes.NewReader([]byte("test")), "text/plain", nil)
		assert.Error(t, err, key)
		assert.Contains(t, err.Error(), "escapes the storage directory")

		_, err = storage.Download(ctx, key)
		assert.Error(t, err, key)
	}

	// Cleaned paths that stay inside the base are fine
	require.NoError(t, storage.Upload(ctx, "guides/../inside.pdf", bytes.NewReader([]byte("ok")), "", nil))
	exists, err := storage.Exists(ctx, "inside.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorage_Download(t *testing.T) {
	storage, _ := newTestLocalStorage(t)
	ctx := context.Background()
	content := []byte("test content")

	require.NoError(t, storage.Upload(ctx, "test/file.pdf", bytes.NewReader(content), "application/pdf", nil))

	reader, err := storage.Download(ctx, "test/file.pdf")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalStorage_Download_NotFound(t *testing.T) {
	storage, _ := newTestLocalStorage(t)

	_, err := storage.Download(context.Background(), "nonexistent.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Delete(t *testing.T) {
	storage, tempDir := newTestLocalStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Upload(ctx, "test/file.pdf", bytes.NewReader([]byte("test")), "application/pdf", map[string]string{"key": "value"}))
	require.NoError(t, storage.Delete(ctx, "test/file.pdf"))

	exists, err := storage.Exists(ctx, "test/file.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = os.Stat(filepath.Join(tempDir, "test", "file.pdf"+metadataSuffix))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error
	assert.NoError(t, storage.Delete(ctx, "test/file.pdf"))
}

func TestLocalStorage_Exists(t *testing.T) {
	storage, _ := newTestLocalStorage(t)
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "test/file.pdf")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, storage.Upload(ctx, "test/file.pdf", bytes.NewReader([]byte("test")), "application/pdf", nil))

	exists, err = storage.Exists(ctx, "test/file.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStorage_GetMetadata(t *testing.T) {
	storage, _ := newTestLocalStorage(t)
	ctx := context.Background()

	metadata := map[string]string{
		"foo": "bar",
		"baz": "qux",
	}
	require.NoError(t, storage.Upload(ctx, "test/file.pdf", bytes.NewReader([]byte("test")), "application/pdf", metadata))

	retrieved, err := storage.GetMetadata(ctx, "test/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "bar", retrieved["foo"])
	assert.Equal(t, "qux", retrieved["baz"])
	assert.Equal(t, "application/pdf", retrieved["content-type"])
}

func TestLocalStorage_GetMetadata_NoMetadata(t *testing.T) {
	storage, tempDir := newTestLocalStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Upload(ctx, "test/file.pdf", bytes.NewReader([]byte("test")), "", nil))

	retrieved, err := storage.GetMetadata(ctx, "test/file.pdf")
	require.NoError(t, err)
	assert.Empty(t, retrieved)

	// Objects written by something else have no sidecar at all
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "foreign.pdf"), []byte("x"), 0644))
	retrieved, err = storage.GetMetadata(ctx, "foreign.pdf")
	require.NoError(t, err)
	assert.Empty(t, retrieved)
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, _ := newTestLocalStorage(t)
	ctx := context.Background()

	files := []string{
		"guides/docs.example.com/b.pdf",
		"guides/docs.example.com/a.pdf",
		"guides/manuals.example.org/c.pdf",
	}
	for _, file := range files {
		require.NoError(t, storage.Upload(ctx, file, bytes.NewReader([]byte("test")), "application/pdf", map[string]string{"k": "v"}))
	}

	keys, err := storage.ListObjects(ctx, "guides")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"guides/docs.example.com/a.pdf",
		"guides/docs.example.com/b.pdf",
		"guides/manuals.example.org/c.pdf",
	}, keys, "sidecars are not listed")

	keys, err = storage.ListObjects(ctx, "guides/docs.example.com")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = storage.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestNewLocalStorage_EmptyBasePath(t *testing.T) {
	_, err := NewLocalStorage(LocalConfig{BasePath: ""})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "base path is required")
}

func TestNewLocalStorage_CreatesDirectory(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "new", "storage", "path")

	storage, err := NewLocalStorage(LocalConfig{BasePath: newDir})
	require.NoError(t, err)
	defer storage.Close()

	info, err := os.Stat(newDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
