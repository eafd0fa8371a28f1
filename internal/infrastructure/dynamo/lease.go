package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/id"
)

// LeasePartition holds lock records next to the codes they serialize.
const LeasePartition = "RegisterVerificationCodeLease"

// LeaseStore hands out named locks stored as items of a partition/row table.
// A lease is free when its item is absent or its lease_until_ms has passed;
// expires_at lets DynamoDB TTL sweep abandoned leases.
type LeaseStore struct {
	client    API
	tableName string
	wait      time.Duration
	poll      time.Duration
	now       func() time.Time
}

func NewLeaseStore(client API, tableName string, wait time.Duration) *LeaseStore {
	return &LeaseStore{
		client:    client,
		tableName: tableName,
		wait:      wait,
		poll:      50 * time.Millisecond,
		now:       time.Now,
	}
}

func (s *LeaseStore) Acquire(ctx context.Context, name string, ttl time.Duration) (domain.Lease, error) {
	holder := id.New()
	deadline := s.now().Add(s.wait)
	for {
		now := s.now()
		until := now.Add(ttl)
		cond, err := expression.NewBuilder().WithCondition(
			expression.AttributeNotExists(expression.Name(domain.AttrRowKey)).
				Or(expression.Name(attrLeaseUntil).LessThan(expression.Value(now.UnixMilli()))),
		).Build()
		if err != nil {
			return nil, fmt.Errorf("build lease condition: %w", err)
		}
		item := rowKey(LeasePartition, name)
		item[attrHolder] = &types.AttributeValueMemberS{Value: holder}
		item[attrLeaseUntil] = &types.AttributeValueMemberN{Value: strconv.FormatInt(until.UnixMilli(), 10)}
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(until.Add(time.Minute).Unix(), 10)}

		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       cond.Condition(),
			ExpressionAttributeNames:  cond.Names(),
			ExpressionAttributeValues: cond.Values(),
		})
		if err == nil {
			return &lease{store: s, name: name, holder: holder}, nil
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, unavailable("acquire lease", err)
		}
		if !s.now().Before(deadline) {
			return nil, fmt.Errorf("lease %q is held: %w", name, domain.ErrConflict)
		}
		if err := sleepCtx(ctx, s.poll); err != nil {
			return nil, err
		}
	}
}

type lease struct {
	store  *LeaseStore
	name   string
	holder string
}

// Release deletes the lease only while this holder still owns it.
func (l *lease) Release(ctx context.Context) error {
	cond, err := expression.NewBuilder().WithCondition(
		expression.Name(attrHolder).Equal(expression.Value(l.holder)),
	).Build()
	if err != nil {
		return fmt.Errorf("build release condition: %w", err)
	}
	_, err = l.store.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(l.store.tableName),
		Key:                       rowKey(LeasePartition, l.name),
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		slog.Warn("lease expired before release", "lease", l.name)
		return nil
	}
	return unavailable("release lease", err)
}
