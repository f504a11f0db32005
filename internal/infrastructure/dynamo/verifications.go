package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopnest-api/internal/domain"
	"github.com/shopnest-api/internal/otp"
)

// verificationAPI is the subset of the DynamoDB client the verification repo uses.
type verificationAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// VerificationRepo is an otp.Store backed by the pending_verifications table.
// PK: identifier. The ttl attribute lets DynamoDB reap abandoned rows; expiry
// itself is still decided from expires_at on read.
type VerificationRepo struct {
	client    verificationAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

var _ otp.Store = (*VerificationRepo)(nil)

func NewVerificationRepo(client *dynamodb.Client, tableName string, ttl time.Duration) *VerificationRepo {
	return newVerificationRepo(client, tableName, ttl, time.Now)
}

func newVerificationRepo(client verificationAPI, tableName string, ttl time.Duration, now func() time.Time) *VerificationRepo {
	if ttl <= 0 {
		ttl = otp.DefaultTTL
	}
	return &VerificationRepo{client: client, tableName: tableName, ttl: ttl, now: now}
}

func (r *VerificationRepo) Put(ctx context.Context, v *domain.PendingVerification) error {
	otp.Stamp(v, r.now().UTC(), r.ttl)
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRepo) Peek(ctx context.Context, identifier string) (*domain.PendingVerification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentifier, identifier),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, domain.ErrCodeNotFound
	}
	var v domain.PendingVerification
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Verify reads the entry, evaluates the code, and on success or expiry
// deletes exactly the entry it evaluated. If a concurrent Put replaced it in
// between, the conditional delete fails and the caller sees ErrCodeNotFound
// (or ErrCodeExpired), so a superseded code can never be consumed.
func (r *VerificationRepo) Verify(ctx context.Context, identifier, code string) (*domain.PendingVerification, error) {
	v, err := r.Peek(ctx, identifier)
	if err != nil {
		return nil, err
	}
	checkErr := v.Check(code, r.now())
	if errors.Is(checkErr, domain.ErrCodeMismatch) {
		return nil, checkErr
	}

	consumed, err := r.deleteIfUnchanged(ctx, v)
	if err != nil {
		return nil, err
	}
	if checkErr != nil {
		return nil, checkErr
	}
	if !consumed {
		return nil, domain.ErrCodeNotFound
	}
	return v, nil
}

func (r *VerificationRepo) Delete(ctx context.Context, identifier string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIdentifier, identifier),
	})
	return err
}

func (r *VerificationRepo) deleteIfUnchanged(ctx context.Context, v *domain.PendingVerification) (bool, error) {
	createdAt, err := attributevalue.Marshal(v.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("marshal created_at: %w", err)
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentifier, v.Identifier),
		ConditionExpression: aws.String("#c = :code AND #t = :created"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCode,
			"#t": fieldCreatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code":    &types.AttributeValueMemberS{Value: v.Code},
			":created": createdAt,
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
