package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LocalStorage persists chunks under a root directory, grounded on
// original_source/app/storage.py's LocalChunkStorage.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

func (l *LocalStorage) InitializeUpload(ctx context.Context, uploadID string) (string, error) {
	return "", nil
}

func (l *LocalStorage) ChunkKey(uploadID string, chunkIndex int) string {
	return fmt.Sprintf("uploads/%s/chunk_%d", uploadID, chunkIndex)
}

func (l *LocalStorage) AssembledKey(uploadID string) string {
	return fmt.Sprintf("uploads/%s/assembled", uploadID)
}

func (l *LocalStorage) WriteChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (WriteResult, error) {
	key := l.ChunkKey(uploadID, chunkIndex)
	path := filepath.Join(l.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteResult{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Key: key}, nil
}

func (l *LocalStorage) ReadChunk(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.root, filepath.FromSlash(key)))
}

func (l *LocalStorage) OpenChunk(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(l.root, filepath.FromSlash(key)))
}

func (l *LocalStorage) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{Reader: io.LimitReader(f, length), Closer: f}, nil
}

// FinalizeUpload concatenates the upload's chunk files, in index order,
// into a single assembled file, then removes the per-chunk files.
func (l *LocalStorage) FinalizeUpload(ctx context.Context, uploadID string, multipartUploadID string, parts []Part) error {
	prefix := fmt.Sprintf("uploads/%s/", uploadID)
	keys, err := l.ListKeys(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	sort.Slice(keys, func(i, j int) bool {
		return extractChunkIndex(keys[i]) < extractChunkIndex(keys[j])
	})

	assembledPath := filepath.Join(l.root, filepath.FromSlash(l.AssembledKey(uploadID)))
	if err := os.MkdirAll(filepath.Dir(assembledPath), 0o755); err != nil {
		return err
	}

	out, err := os.Create(assembledPath)
	if err != nil {
		return fmt.Errorf("create assembled file: %w", err)
	}
	defer out.Close()

	for _, key := range keys {
		if strings.HasSuffix(key, "/assembled") {
			continue
		}
		in, err := l.OpenChunk(ctx, key)
		if err != nil {
			return fmt.Errorf("open chunk %s: %w", key, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			return fmt.Errorf("copy chunk %s: %w", key, copyErr)
		}
	}

	for _, key := range keys {
		if strings.HasSuffix(key, "/assembled") {
			continue
		}
		_ = l.DeleteKey(ctx, key)
	}
	return nil
}

func extractChunkIndex(key string) int {
	idx := strings.LastIndex(key, "chunk_")
	if idx == -1 {
		return -1
	}
	i, _ := strconv.Atoi(key[idx+len("chunk_"):])
	return i
}

func (l *LocalStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	base := filepath.Join(l.root, filepath.FromSlash(prefix))
	var keys []string

	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return keys, nil
}

func (l *LocalStorage) DeleteKey(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(l.root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := l.ListKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := l.DeleteKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
