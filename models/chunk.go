package models

import "time"

// ChunkStatus mirrors original_source/app/models.py's ChunkStatus enum.
type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "PENDING"
	ChunkUploading ChunkStatus = "UPLOADING"
	ChunkUploaded  ChunkStatus = "UPLOADED"
	ChunkFailed    ChunkStatus = "FAILED"
)

// Chunk is one piece of an Upload, equivalent to original_source's Chunk
// model. The (UploadID, ChunkIndex) pair is unique, enforced at the store
// layer the way original_source declares uq_upload_chunk_index.
type Chunk struct {
	ID                  int64       `gorm:"primaryKey;autoIncrement" dynamodbav:"-"`
	UploadID            string      `gorm:"size:36;not null;index:idx_chunks_upload_status" dynamodbav:"upload_id"`
	ChunkIndex          int         `gorm:"not null" dynamodbav:"chunk_index"`
	SizeBytes           int64       `gorm:"not null" dynamodbav:"size_bytes"`
	ChunkChecksumSHA256 string      `gorm:"size:64" dynamodbav:"chunk_checksum_sha256,omitempty"`
	StorageKey          string      `gorm:"not null" dynamodbav:"storage_key"`
	StorageETag         string      `dynamodbav:"storage_etag,omitempty"`
	Status              ChunkStatus `gorm:"size:32;not null;index:idx_chunks_upload_status" dynamodbav:"status"`
	RetryCount          int         `gorm:"not null;default:0" dynamodbav:"retry_count"`
	CreatedAt           time.Time   `gorm:"not null" dynamodbav:"created_at"`
	UpdatedAt           time.Time   `gorm:"not null" dynamodbav:"updated_at"`
}
