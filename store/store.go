// Package store defines chunkvault's metadata persistence contract and two
// implementations: a relational one (gorm over sqlite/postgres, grounded on
// Terminal-Terrace's internal/database/postgres.go) and a DynamoDB one
// (grounded on the teacher's store/session.go and store/file.go, including
// its ConditionExpression-based optimistic writes). Idempotency-key
// bookkeeping lives entirely in the idempotency package, not here.
package store

import (
	"context"
	"time"

	"github.com/halvardsen/chunkvault/internal/health"
	"github.com/halvardsen/chunkvault/models"
)

// ErrNotFound is returned by store lookups that find no matching row,
// equivalent to the teacher's apperror.ErrSessionNotFound.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }

// ErrConditionFailed is returned when a conditional write's precondition
// does not hold, equivalent to a DynamoDB ConditionalCheckFailedException
// or a relational CAS UPDATE affecting zero rows.
var ErrConditionFailed = errConditionFailed{}

type errConditionFailed struct{}

func (errConditionFailed) Error() string { return "store: condition failed" }

// MetadataStore is chunkvault's persistence contract for uploads and
// chunks. It composes health.ReadinessCheck the way the teacher's
// SessionStore interface embeds one, so the store can be polled by the
// readiness aggregator without a separate wiring step.
type MetadataStore interface {
	health.ReadinessCheck

	CreateUpload(ctx context.Context, upload *models.Upload) error
	GetUpload(ctx context.Context, uploadID string) (*models.Upload, error)
	// TransitionUploadStatus performs a compare-and-swap: the update only
	// applies if the stored status equals from. Returns ErrConditionFailed
	// otherwise.
	TransitionUploadStatus(ctx context.Context, uploadID string, from, to models.UploadStatus) error
	SetUploadFailureReason(ctx context.Context, uploadID, reason string) error
	DeleteUpload(ctx context.Context, uploadID string) error
	ListStaleUploads(ctx context.Context, olderThan time.Time) ([]*models.Upload, error)

	UpsertChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*models.Chunk, error)
	ListChunks(ctx context.Context, uploadID string) ([]*models.Chunk, error)
	CountUploadedChunks(ctx context.Context, uploadID string) (int, error)
	MissingChunkIndexes(ctx context.Context, uploadID string, totalChunks int) ([]int, error)
}
