package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_WriteAndReadChunkRoundTrip(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	result, err := ls.WriteChunk(ctx, "upload-1", 0, []byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, "uploads/upload-1/chunk_0", result.Key)

	data, err := ls.ReadChunk(ctx, result.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestLocalStorage_ReadRangeRespectsOffsetAndLength(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	result, err := ls.WriteChunk(ctx, "upload-1", 0, []byte("0123456789"), "")
	require.NoError(t, err)

	rc, err := ls.ReadRange(ctx, result.Key, 3, 4)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), data)
}

func TestLocalStorage_FinalizeUploadConcatenatesInIndexOrderAndCleansUpChunks(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ls.WriteChunk(ctx, "upload-1", 1, []byte("world"), "")
	require.NoError(t, err)
	_, err = ls.WriteChunk(ctx, "upload-1", 0, []byte("hello "), "")
	require.NoError(t, err)

	require.NoError(t, ls.FinalizeUpload(ctx, "upload-1", "", nil))

	assembled, err := ls.ReadChunk(ctx, ls.AssembledKey("upload-1"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(assembled))

	_, err = ls.ReadChunk(ctx, ls.ChunkKey("upload-1", 0))
	assert.Error(t, err)
	_, err = ls.ReadChunk(ctx, ls.ChunkKey("upload-1", 1))
	assert.Error(t, err)
}

func TestLocalStorage_DeletePrefixRemovesAllMatchingKeys(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ls.WriteChunk(ctx, "upload-1", 0, []byte("a"), "")
	require.NoError(t, err)
	_, err = ls.WriteChunk(ctx, "upload-1", 1, []byte("b"), "")
	require.NoError(t, err)

	require.NoError(t, ls.DeletePrefix(ctx, "uploads/upload-1/"))

	keys, err := ls.ListKeys(ctx, "uploads/upload-1/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStorage_DeleteKeyOnMissingFileIsNotAnError(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ls.DeleteKey(context.Background(), "uploads/nope/chunk_0"))
}

func TestNewLocalStorage_CreatesRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "storage-root")
	_, err := os.Stat(root)
	require.True(t, os.IsNotExist(err))

	_, err = NewLocalStorage(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
