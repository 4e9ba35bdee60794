package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/halvardsen/chunkvault/internal/retry"
	"github.com/halvardsen/chunkvault/models"
)

// DynamoStore implements MetadataStore against two DynamoDB tables,
// grounded directly on the teacher's store/session.go (CAS writes via
// ConditionExpression, retries.Retry-wrapped client calls) and
// store/file.go (GSI query pattern, adapted here for chunk listing).
type DynamoStore struct {
	client       *dynamodb.Client
	uploadsTable string
	chunksTable  string
}

func NewDynamoStore(client *dynamodb.Client, uploadsTable, chunksTable string) *DynamoStore {
	return &DynamoStore{
		client:       client,
		uploadsTable: uploadsTable,
		chunksTable:  chunksTable,
	}
}

func (d *DynamoStore) Name() string { return "MetadataStore[dynamodb]" }

func (d *DynamoStore) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retry.Do(ctx, retry.HealthAttempts, retry.HealthBaseDelay, func() error {
		_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.uploadsTable)})
		return err
	}, isRetriableDbError)
}

func isRetriableDbError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.ErrorCode() {
	case "ConditionalCheckFailedException", "ResourceNotFoundException":
		return false
	default:
		return true
	}
}

func isConditionalCheckFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ConditionalCheckFailedException"
	}
	return false
}

func (d *DynamoStore) CreateUpload(ctx context.Context, upload *models.Upload) error {
	item, err := attributevalue.MarshalMap(upload)
	if err != nil {
		return err
	}

	return retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(d.uploadsTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(upload_id)"),
		})
		return err
	}, isRetriableDbError)
}

func (d *DynamoStore) GetUpload(ctx context.Context, uploadID string) (*models.Upload, error) {
	var upload models.Upload

	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(d.uploadsTable),
			Key:       map[string]types.AttributeValue{"upload_id": &types.AttributeValueMemberS{Value: uploadID}},
		})
		if err != nil {
			return err
		}
		if out.Item == nil {
			return ErrNotFound
		}
		return attributevalue.UnmarshalMap(out.Item, &upload)
	}, isRetriableDbError)

	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (d *DynamoStore) TransitionUploadStatus(ctx context.Context, uploadID string, from, to models.UploadStatus) error {
	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(d.uploadsTable),
			Key:       map[string]types.AttributeValue{"upload_id": &types.AttributeValueMemberS{Value: uploadID}},
			UpdateExpression:    aws.String("SET #st = :to, updated_at = :now"),
			ConditionExpression: aws.String("#st = :from"),
			ExpressionAttributeNames: map[string]string{
				"#st": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":to":   &types.AttributeValueMemberS{Value: string(to)},
				":from": &types.AttributeValueMemberS{Value: string(from)},
				":now":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		return err
	}, isRetriableDbError)

	if isConditionalCheckFailed(err) {
		return ErrConditionFailed
	}
	return err
}

func (d *DynamoStore) SetUploadFailureReason(ctx context.Context, uploadID, reason string) error {
	return retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(d.uploadsTable),
			Key:       map[string]types.AttributeValue{"upload_id": &types.AttributeValueMemberS{Value: uploadID}},
			UpdateExpression: aws.String("SET failure_reason = :reason, updated_at = :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":reason": &types.AttributeValueMemberS{Value: reason},
				":now":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
			},
		})
		return err
	}, isRetriableDbError)
}

func (d *DynamoStore) DeleteUpload(ctx context.Context, uploadID string) error {
	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:           aws.String(d.uploadsTable),
			Key:                 map[string]types.AttributeValue{"upload_id": &types.AttributeValueMemberS{Value: uploadID}},
			ConditionExpression: aws.String("attribute_exists(upload_id)"),
		})
		return err
	}, isRetriableDbError)

	if isConditionalCheckFailed(err) {
		return ErrNotFound
	}
	return err
}

// ListStaleUploads scans the uploads table; acceptable at chunkvault's
// scale since it only runs from the periodic maintenance sweep, not a
// request path, the same tradeoff the teacher accepts for Query-backed GSI
// reads elsewhere.
func (d *DynamoStore) ListStaleUploads(ctx context.Context, olderThan time.Time) ([]*models.Upload, error) {
	var uploads []*models.Upload

	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		uploads = nil
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(d.uploadsTable),
			FilterExpression: aws.String("(#st = :initiated OR #st = :inprogress) AND updated_at < :before"),
			ExpressionAttributeNames: map[string]string{
				"#st": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":initiated":  &types.AttributeValueMemberS{Value: string(models.UploadInitiated)},
				":inprogress": &types.AttributeValueMemberS{Value: string(models.UploadInProgress)},
				":before":     &types.AttributeValueMemberS{Value: olderThan.Format(time.RFC3339Nano)},
			},
		})
		if err != nil {
			return err
		}
		return attributevalue.UnmarshalListOfMaps(out.Items, &uploads)
	}, isRetriableDbError)

	return uploads, err
}

func (d *DynamoStore) UpsertChunk(ctx context.Context, chunk *models.Chunk) error {
	item, err := attributevalue.MarshalMap(chunk)
	if err != nil {
		return err
	}

	return retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.chunksTable),
			Item:      item,
		})
		return err
	}, isRetriableDbError)
}

func (d *DynamoStore) GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*models.Chunk, error) {
	var chunk models.Chunk

	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(d.chunksTable),
			Key: map[string]types.AttributeValue{
				"upload_id":   &types.AttributeValueMemberS{Value: uploadID},
				"chunk_index": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", chunkIndex)},
			},
		})
		if err != nil {
			return err
		}
		if out.Item == nil {
			return ErrNotFound
		}
		return attributevalue.UnmarshalMap(out.Item, &chunk)
	}, isRetriableDbError)

	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (d *DynamoStore) ListChunks(ctx context.Context, uploadID string) ([]*models.Chunk, error) {
	var chunks []*models.Chunk

	err := retry.Do(ctx, retry.DefaultAttempts, retry.DefaultBaseDelay, func() error {
		chunks = nil
		out, err := d.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(d.chunksTable),
			KeyConditionExpression: aws.String("upload_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: uploadID},
			},
		})
		if err != nil {
			return err
		}
		return attributevalue.UnmarshalListOfMaps(out.Items, &chunks)
	}, isRetriableDbError)

	return chunks, err
}

func (d *DynamoStore) CountUploadedChunks(ctx context.Context, uploadID string) (int, error) {
	chunks, err := d.ListChunks(ctx, uploadID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, c := range chunks {
		if c.Status == models.ChunkUploaded {
			count++
		}
	}
	return count, nil
}

func (d *DynamoStore) MissingChunkIndexes(ctx context.Context, uploadID string, totalChunks int) ([]int, error) {
	chunks, err := d.ListChunks(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	have := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if c.Status == models.ChunkUploaded {
			have[c.ChunkIndex] = struct{}{}
		}
	}

	missing := make([]int, 0, totalChunks-len(have))
	for i := 0; i < totalChunks; i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

