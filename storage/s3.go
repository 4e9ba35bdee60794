package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/halvardsen/chunkvault/internal/logging"
)

// S3Storage persists chunks in an S3-compatible bucket (AWS S3 or
// Cloudflare R2 via a custom endpoint), directly grounded on the teacher's
// store/s3.go S3FileStorageImpl: the same FinalizeUpload strategy
// selection (copySingleChunk / streamMergeAndPut / multipartCopy),
// listChunks/deletePrefix/fileExists helpers, and abort-on-error semantics.
type S3Storage struct {
	client             *s3.Client
	bucket             string
	multipartThreshold int64

	log logging.Logger
}

func NewS3Storage(client *s3.Client, bucket string, multipartThreshold int64, log logging.Logger) *S3Storage {
	if multipartThreshold <= 0 {
		multipartThreshold = 64 * 1024 * 1024
	}
	return &S3Storage{client: client, bucket: bucket, multipartThreshold: multipartThreshold, log: log}
}

func (s *S3Storage) ChunkKey(uploadID string, chunkIndex int) string {
	return fmt.Sprintf("uploads/%s/chunk_%d", uploadID, chunkIndex)
}

func (s *S3Storage) AssembledKey(uploadID string) string {
	return fmt.Sprintf("uploads/%s/assembled", uploadID)
}

func (s *S3Storage) InitializeUpload(ctx context.Context, uploadID string) (string, error) {
	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.AssembledKey(uploadID)),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload: %w", err)
	}
	return *out.UploadId, nil
}

// WriteChunk always writes the chunk to its own key so the assembled object
// can later be built by any of the three finalize strategies; when a
// multipart upload is in flight it additionally streams the same bytes in
// as part multipartUploadID's PartNumber=chunkIndex+1, the way the
// teacher's write_chunk dual-writes the per-chunk key and the assembled
// multipart part.
func (s *S3Storage) WriteChunk(ctx context.Context, uploadID string, chunkIndex int, data []byte, multipartUploadID string) (WriteResult, error) {
	key := s.ChunkKey(uploadID, chunkIndex)

	if multipartUploadID == "" {
		out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return WriteResult{}, fmt.Errorf("put chunk object: %w", err)
		}
		return WriteResult{Key: key, ETag: aws.ToString(out.ETag)}, nil
	}

	partOut, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.AssembledKey(uploadID)),
		UploadId:   aws.String(multipartUploadID),
		PartNumber: aws.Int32(int32(chunkIndex + 1)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("upload part %d: %w", chunkIndex+1, err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return WriteResult{}, fmt.Errorf("put chunk object: %w", err)
	}

	return WriteResult{Key: key, ETag: aws.ToString(partOut.ETag)}, nil
}

func (s *S3Storage) ReadChunk(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Storage) OpenChunk(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Storage) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	byteRange := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(byteRange),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// FinalizeUpload mirrors the teacher's FinalizeUpload: skip if the
// assembled object already exists (idempotent retries), otherwise pick a
// strategy by chunk count and total size.
func (s *S3Storage) FinalizeUpload(ctx context.Context, uploadID string, multipartUploadID string, parts []Part) error {
	finalKey := s.AssembledKey(uploadID)

	exists, err := s.fileExists(ctx, finalKey)
	if err != nil {
		return fmt.Errorf("check final object existence: %w", err)
	}
	if exists {
		s.log.Info("finalized object already exists, skipping", "upload_id", uploadID, "final_key", finalKey)
		return nil
	}

	if multipartUploadID != "" && len(parts) > 0 {
		return s.completeMultipart(ctx, uploadID, finalKey, multipartUploadID, parts)
	}

	chunkPrefix := fmt.Sprintf("uploads/%s/", uploadID)
	chunks, err := s.listChunks(ctx, chunkPrefix)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks found for upload %s", uploadID)
	}

	var totalSize int64
	for _, c := range chunks {
		totalSize += aws.ToInt64(c.Size)
	}

	switch {
	case len(chunks) == 1:
		return s.copySingleChunk(ctx, chunks[0], finalKey, chunkPrefix)
	case totalSize < s.multipartThreshold:
		return s.streamMergeAndPut(ctx, chunks, finalKey, chunkPrefix, totalSize)
	default:
		return s.multipartCopy(ctx, chunks, finalKey, chunkPrefix)
	}
}

func (s *S3Storage) completeMultipart(ctx context.Context, uploadID, finalKey, multipartUploadID string, parts []Part) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(finalKey),
		UploadId:        aws.String(multipartUploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		s.log.Error("failed to complete multipart upload", "upload_id", uploadID, "error", err)
		if abortErr := s.abortMultipartUpload(ctx, finalKey, multipartUploadID); abortErr != nil {
			s.log.Error("failed to abort multipart upload", "upload_id", uploadID, "error", abortErr)
		}
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	return s.DeletePrefix(ctx, fmt.Sprintf("uploads/%s/chunk_", uploadID))
}

func (s *S3Storage) copySingleChunk(ctx context.Context, chunk types.Object, finalKey, chunkPrefix string) error {
	src := s.bucket + "/" + aws.ToString(chunk.Key)

	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(finalKey),
		CopySource: aws.String(src),
	}); err != nil {
		return fmt.Errorf("copy single chunk: %w", err)
	}

	if err := s.DeletePrefix(ctx, chunkPrefix); err != nil {
		s.log.Warn("failed to delete chunks after copy", "prefix", chunkPrefix, "error", err)
	}
	return nil
}

func (s *S3Storage) multipartCopy(ctx context.Context, chunks []types.Object, finalKey, chunkPrefix string) error {
	createOut, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(finalKey),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := aws.ToString(createOut.UploadId)

	var completedParts []types.CompletedPart
	for i, obj := range chunks {
		select {
		case <-ctx.Done():
			_ = s.abortMultipartUpload(ctx, finalKey, uploadID)
			return ctx.Err()
		default:
		}

		partNumber := int32(i + 1)
		src := s.bucket + "/" + aws.ToString(obj.Key)

		upOut, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(finalKey),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			CopySource: aws.String(src),
		})
		if err != nil {
			_ = s.abortMultipartUpload(ctx, finalKey, uploadID)
			return fmt.Errorf("upload part copy %d: %w", partNumber, err)
		}

		completedParts = append(completedParts, types.CompletedPart{
			ETag:       upOut.CopyPartResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(finalKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completedParts},
	}); err != nil {
		_ = s.abortMultipartUpload(ctx, finalKey, uploadID)
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	if err := s.DeletePrefix(ctx, chunkPrefix); err != nil {
		s.log.Warn("failed to delete chunks after multipart copy", "prefix", chunkPrefix, "error", err)
	}
	return nil
}

func (s *S3Storage) abortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return err
}

func (s *S3Storage) streamMergeAndPut(ctx context.Context, chunks []types.Object, finalKey, chunkPrefix string, totalSize int64) error {
	pr, pw := io.Pipe()

	go func() {
		defer pw.Close()
		for _, obj := range chunks {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			default:
			}

			out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key})
			if err != nil {
				pw.CloseWithError(fmt.Errorf("get chunk object %s: %w", aws.ToString(obj.Key), err))
				return
			}
			_, err = io.Copy(pw, out.Body)
			out.Body.Close()
			if err != nil {
				pw.CloseWithError(fmt.Errorf("copy chunk %s: %w", aws.ToString(obj.Key), err))
				return
			}
		}
	}()

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(finalKey),
		Body:          pr,
		ContentLength: aws.Int64(totalSize),
	}); err != nil {
		return fmt.Errorf("put merged object: %w", err)
	}

	if err := s.DeletePrefix(ctx, chunkPrefix); err != nil {
		s.log.Warn("failed to delete chunks after stream merge", "prefix", chunkPrefix, "error", err)
	}
	return nil
}

func (s *S3Storage) listChunks(ctx context.Context, prefix string) ([]types.Object, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)})
	if err != nil {
		return nil, err
	}

	objects := out.Contents
	sort.Slice(objects, func(i, j int) bool {
		return extractChunkIndex(aws.ToString(objects[i].Key)) < extractChunkIndex(aws.ToString(objects[j].Key))
	})
	return objects, nil
}

func (s *S3Storage) fileExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Contents {
			if item.Key != nil {
				keys = append(keys, *item.Key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}
	return keys, nil
}

func (s *S3Storage) DeleteKey(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	return err
}

func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects for deletion: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
	}
	return nil
}

