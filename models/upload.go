// Package models holds chunkvault's persisted entities. Field tags carry
// both gorm column mappings (for the relational MetadataStore) and
// dynamodbav mappings (for the DynamoDB MetadataStore), the way the
// teacher's models/sessions.go and models/files.go tag DynamoDB attributes
// directly on the struct consumed by both store and service layers.
package models

import "time"

// UploadStatus mirrors original_source/app/models.py's UploadStatus enum.
type UploadStatus string

const (
	UploadInitiated  UploadStatus = "INITIATED"
	UploadInProgress UploadStatus = "IN_PROGRESS"
	UploadCompleted  UploadStatus = "COMPLETED"
	UploadFailed     UploadStatus = "FAILED"
	UploadAborted    UploadStatus = "ABORTED"
)

// IsTerminal reports whether status admits no further transitions.
func (s UploadStatus) IsTerminal() bool {
	switch s {
	case UploadCompleted, UploadFailed, UploadAborted:
		return true
	default:
		return false
	}
}

// Upload is the root record of a chunked transfer, equivalent to
// original_source's Upload SQLAlchemy model and grounded on the shape of
// the teacher's UploadSession DynamoDB struct.
type Upload struct {
	ID                 string       `gorm:"primaryKey;size:36" dynamodbav:"upload_id"`
	OwnerID            string       `gorm:"size:128;not null;index" dynamodbav:"owner_id"`
	FileName           string       `gorm:"not null" dynamodbav:"file_name"`
	FileSize           int64        `gorm:"not null" dynamodbav:"file_size"`
	ChunkSize          int64        `gorm:"not null" dynamodbav:"chunk_size"`
	TotalChunks        int          `gorm:"not null" dynamodbav:"total_chunks"`
	FileChecksumSHA256 string       `gorm:"size:64" dynamodbav:"file_checksum_sha256,omitempty"`
	Status             UploadStatus `gorm:"size:32;not null;index" dynamodbav:"status"`
	MultipartUploadID  string       `dynamodbav:"multipart_upload_id,omitempty"`
	FailureReason      string       `dynamodbav:"failure_reason,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" dynamodbav:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" dynamodbav:"updated_at"`
}

// Progress returns the completion fraction in [0, 1], the way the
// teacher's GetStatus computes a progress percentage. No handler calls it.
func (u *Upload) Progress(uploadedChunks int) float64 {
	if u.TotalChunks == 0 {
		return 0
	}
	return float64(uploadedChunks) / float64(u.TotalChunks)
}
