package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/halvardsen/chunkvault/models"
)

// GormStore implements MetadataStore over gorm, following the connection
// setup in Terminal-Terrace's internal/database/postgres.go (driver
// selection by DSN scheme, pooled *sql.DB underneath).
type GormStore struct {
	db *gorm.DB
}

// OpenGorm opens a sqlite or postgres database depending on dsn's scheme
// ("sqlite://" or "postgres://"/"postgresql://") and migrates the schema.
func OpenGorm(dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch {
	case hasPrefix(dsn, "sqlite://"):
		dialector = sqlite.Open(dsn[len("sqlite://"):])
	case hasPrefix(dsn, "postgres://"), hasPrefix(dsn, "postgresql://"):
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Upload{}, &models.Chunk{}); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (g *GormStore) Name() string { return "MetadataStore[gorm]" }

func (g *GormStore) IsReady(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormStore) CreateUpload(ctx context.Context, upload *models.Upload) error {
	return g.db.WithContext(ctx).Create(upload).Error
}

func (g *GormStore) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	var upload models.Upload
	err := g.db.WithContext(ctx).First(&upload, "id = ?", uploadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (g *GormStore) TransitionUploadStatus(ctx context.Context, uploadID string, from, to models.UploadStatus) error {
	result := g.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ? AND status = ?", uploadID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (g *GormStore) SetUploadFailureReason(ctx context.Context, uploadID, reason string) error {
	return g.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ?", uploadID).
		Updates(map[string]any{"failure_reason": reason, "updated_at": time.Now().UTC()}).Error
}

func (g *GormStore) DeleteUpload(ctx context.Context, uploadID string) error {
	result := g.db.WithContext(ctx).Delete(&models.Upload{}, "id = ?", uploadID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStore) ListStaleUploads(ctx context.Context, olderThan time.Time) ([]*models.Upload, error) {
	var uploads []*models.Upload
	err := g.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []models.UploadStatus{models.UploadInitiated, models.UploadInProgress}, olderThan).
		Find(&uploads).Error
	return uploads, err
}

// UpsertChunk inserts a chunk row, or overwrites it on a (upload_id,
// chunk_index) conflict, mirroring main.py's upload_chunk handler which
// looks up the existing row by (upload_id, chunk_index) and either updates
// or inserts.
func (g *GormStore) UpsertChunk(ctx context.Context, chunk *models.Chunk) error {
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "upload_id"}, {Name: "chunk_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"size_bytes", "chunk_checksum_sha256", "storage_key", "storage_etag", "status", "retry_count", "updated_at"}),
		}).
		Create(chunk).Error
}

func (g *GormStore) GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*models.Chunk, error) {
	var chunk models.Chunk
	err := g.db.WithContext(ctx).First(&chunk, "upload_id = ? AND chunk_index = ?", uploadID, chunkIndex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (g *GormStore) ListChunks(ctx context.Context, uploadID string) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	err := g.db.WithContext(ctx).Where("upload_id = ?", uploadID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

func (g *GormStore) CountUploadedChunks(ctx context.Context, uploadID string) (int, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("upload_id = ? AND status = ?", uploadID, models.ChunkUploaded).
		Count(&count).Error
	return int(count), err
}

func (g *GormStore) MissingChunkIndexes(ctx context.Context, uploadID string, totalChunks int) ([]int, error) {
	var uploaded []int
	if err := g.db.WithContext(ctx).Model(&models.Chunk{}).
		Where("upload_id = ? AND status = ?", uploadID, models.ChunkUploaded).
		Pluck("chunk_index", &uploaded).Error; err != nil {
		return nil, err
	}

	have := make(map[int]struct{}, len(uploaded))
	for _, idx := range uploaded {
		have[idx] = struct{}{}
	}

	missing := make([]int, 0, totalChunks-len(have))
	for i := 0; i < totalChunks; i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

