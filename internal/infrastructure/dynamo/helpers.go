package dynamo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verification-nosql/internal/domain"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// rowKey addresses one item of a partition/row table.
func rowKey(partition, key string) map[string]types.AttributeValue {
	return compositeKey(domain.AttrPartitionKey, partition, domain.AttrRowKey, key)
}

// buildQuery returns a consistent-read query over one partition, AND-ing every
// condition into the filter expression.
func buildQuery(table, partition string, conds []domain.Condition) (*dynamodb.QueryInput, error) {
	b := expression.NewBuilder().
		WithKeyCondition(expression.Key(domain.AttrPartitionKey).Equal(expression.Value(partition)))
	if len(conds) > 0 {
		filter := equals(conds[0])
		for _, c := range conds[1:] {
			filter = filter.And(equals(c))
		}
		b = b.WithFilter(filter)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}
	return &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}, nil
}

func equals(c domain.Condition) expression.ConditionBuilder {
	return expression.Name(c.Attribute).Equal(expression.Value(c.Value))
}

// etagCondition guards a write on the item still carrying etag. Items written
// before etags existed have none; they must still exist to be replaced.
func etagCondition(etag string) (expression.Expression, error) {
	var cond expression.ConditionBuilder
	if etag == "" {
		cond = expression.AttributeExists(expression.Name(domain.AttrRowKey)).
			And(expression.AttributeNotExists(expression.Name(attrETag)))
	} else {
		cond = expression.Name(attrETag).Equal(expression.Value(etag))
	}
	return expression.NewBuilder().WithCondition(cond).Build()
}

// unavailable wraps an SDK failure so callers can match domain.ErrStorageUnavailable
// while the SDK cause stays reachable through errors.As.
func unavailable(op string, err error) error {
	return fmt.Errorf("dynamo %s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

// backoff grows linearly with the attempt number, with up to one step of jitter.
func backoff(step time.Duration, attempt int) time.Duration {
	if step <= 0 {
		return 0
	}
	return step*time.Duration(attempt) + rand.N(step)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
