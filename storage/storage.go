// Package storage defines chunkvault's chunk storage contract and its
// local-filesystem and S3/R2 implementations. The S3 backend is heavily
// grounded on the teacher's store/s3.go FinalizeUpload strategy selection
// (single-chunk copy / stream merge / multipart copy, chosen by chunk count
// and total size against a configurable threshold); the local backend
// follows original_source/app/storage.py's LocalChunkStorage.
package storage

import (
	"context"
	"io"
)

// WriteResult is returned by WriteChunk, carrying whatever the backend can
// offer as a part identifier for a later multipart CompleteMultipartUpload
// call (S3's ETag; empty for the local backend).
type WriteResult struct {
	Key  string
	ETag string
}

// ChunkStorage is chunkvault's durable chunk byte storage contract.
type ChunkStorage interface {
	// InitializeUpload prepares backend-side state for a new upload (an S3
	// CreateMultipartUpload, for backends that support it) and returns an
	// opaque multipart handle, or "" if the backend needs none.
	InitializeUpload(ctx context.Context, uploadID string) (multipartUploadID string, err error)

	ChunkKey(uploadID string, chunkIndex int) string

	WriteChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (WriteResult, error)

	ReadChunk(ctx context.Context, key string) ([]byte, error)
	OpenChunk(ctx context.Context, key string) (io.ReadCloser, error)

	// ReadRange opens a [offset, offset+length) byte window of key, used by
	// the download assembler to stream a completed upload's assembled
	// object without re-reading the per-chunk blobs FinalizeUpload already
	// consolidated and removed.
	ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// FinalizeUpload assembles the uploaded chunks of uploadID into a single
	// object/file and removes the per-chunk objects, choosing a strategy by
	// chunk count and size the way the teacher's FinalizeUpload does.
	FinalizeUpload(ctx context.Context, uploadID string, multipartUploadID string, parts []Part) error

	AssembledKey(uploadID string) string

	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteKey(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Part identifies one committed multipart part, the Go-side analogue of
// original_source's {"PartNumber":..., "ETag":...} dict built in
// complete_upload.
type Part struct {
	PartNumber int32
	ETag       string
}
