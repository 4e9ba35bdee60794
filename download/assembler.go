// Package download streams a COMPLETED upload's bytes, whole or by HTTP
// byte range, grounded on original_source/app/main.py's download route,
// _parse_range, and _stream_bytes_for_range. Since storage.ChunkStorage's
// FinalizeUpload consolidates per-chunk blobs into one assembled object and
// removes the originals (the teacher's FinalizeUpload strategy), chunk rows
// here supply ordering and size bookkeeping for range math rather than
// being read individually; bytes are fetched with one ranged read against
// the assembled object.
package download

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/halvardsen/chunkvault/internal/apperror"
	"github.com/halvardsen/chunkvault/models"
	"github.com/halvardsen/chunkvault/storage"
	"github.com/halvardsen/chunkvault/store"
)

// Range is an inclusive, validated byte range.
type Range struct {
	Start int64
	End   int64
}

// Result carries everything an HTTP handler needs to write a response:
// the content stream, its length, and whether it represents a partial
// (206) or whole (200) body.
type Result struct {
	Body        io.ReadCloser
	ContentLen  int64
	TotalSize   int64
	Partial     bool
	Range       Range
	FileName    string
}

// Assembler streams completed uploads from a ChunkStorage backend.
type Assembler struct {
	metaStore store.MetadataStore
	storage   storage.ChunkStorage
}

func NewAssembler(metaStore store.MetadataStore, chunkStorage storage.ChunkStorage) *Assembler {
	return &Assembler{metaStore: metaStore, storage: chunkStorage}
}

// Stream opens upload for reading, honoring an optional HTTP Range header
// value (e.g. "bytes=0-1023"). rangeHeader == "" streams the whole file.
func (a *Assembler) Stream(ctx context.Context, ownerID, uploadID, rangeHeader string) (*Result, error) {
	upload, err := a.ownedUpload(ctx, uploadID, ownerID)
	if err != nil {
		return nil, err
	}
	if upload.Status != models.UploadCompleted {
		return nil, apperror.New(apperror.KindConflict, "upload_not_completed", "upload is not completed")
	}

	chunks, err := a.metaStore.ListChunks(ctx, uploadID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "list_chunks_failed", "failed to list chunks", err)
	}
	if len(chunks) != upload.TotalChunks {
		return nil, apperror.New(apperror.KindInternal, "inconsistent_upload_metadata", "upload metadata is inconsistent")
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	fileSize := upload.FileSize
	byteRange := Range{Start: 0, End: fileSize - 1}
	partial := false

	if rangeHeader != "" {
		parsed, err := ParseRange(rangeHeader, fileSize)
		if err != nil {
			return nil, err
		}
		byteRange = parsed
		partial = true
	}

	assembledKey := a.storage.AssembledKey(uploadID)
	length := byteRange.End - byteRange.Start + 1
	body, err := a.storage.ReadRange(ctx, assembledKey, byteRange.Start, length)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindTransientStorage, "read_range_failed", "failed to read upload bytes", err)
	}

	return &Result{
		Body:       body,
		ContentLen: length,
		TotalSize:  fileSize,
		Partial:    partial,
		Range:      byteRange,
		FileName:   upload.FileName,
	}, nil
}

func (a *Assembler) ownedUpload(ctx context.Context, uploadID, ownerID string) (*models.Upload, error) {
	upload, err := a.metaStore.GetUpload(ctx, uploadID)
	if err == store.ErrNotFound {
		return nil, apperror.ErrUploadNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "get_upload_failed", "failed to load upload", err)
	}
	if upload.OwnerID != ownerID {
		return nil, apperror.ErrForbidden
	}
	return upload, nil
}

// ParseRange parses a single "bytes=start-end" HTTP Range header value,
// the Go port of _parse_range. Only a single range is supported, matching
// the original.
func ParseRange(rangeHeader string, fileSize int64) (Range, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(rangeHeader, prefix) {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "invalid range header")
	}

	spec := strings.TrimPrefix(rangeHeader, prefix)
	dash := strings.IndexByte(spec, '-')
	if dash == -1 {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "invalid range format")
	}

	startPart, endPart := spec[:dash], spec[dash+1:]

	var start, end int64
	var err error
	if startPart == "" {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "invalid range format")
	} else if start, err = strconv.ParseInt(startPart, 10, 64); err != nil {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "invalid range format")
	}
	if endPart == "" {
		end = fileSize - 1
	} else if end, err = strconv.ParseInt(endPart, 10, 64); err != nil {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "invalid range format")
	}

	if start < 0 || end < start || end >= fileSize {
		return Range{}, apperror.New(apperror.KindRange, "range_not_satisfiable", "range out of bounds")
	}
	return Range{Start: start, End: end}, nil
}

// ContentRangeHeader formats the Content-Range header value for a partial
// response, e.g. "bytes 0-1023/4096".
func ContentRangeHeader(r Range, totalSize int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, totalSize)
}
