package dynamo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verification-nosql/internal/domain"
	"github.com/go-verification-nosql/internal/pkg/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/go-verification-nosql/internal/infrastructure/dynamo")

// TableOptions bounds the optimistic-concurrency loop of Merge.
type TableOptions struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Table is a DynamoDB-backed domain.KeyValueStore.
// PK: partition_key, SK: row_key. Every write stamps a fresh etag that Merge
// uses as its compare-and-swap token.
type Table[R domain.Entity] struct {
	client    API
	tableName string
	opts      TableOptions
}

func NewTable[R domain.Entity](client API, tableName string, opts TableOptions) *Table[R] {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Table[R]{client: client, tableName: tableName, opts: opts}
}

func (t *Table[R]) Get(ctx context.Context, partition, key string) (*R, error) {
	ctx, span := t.start(ctx, "GetItem", partition)
	rec, _, err := t.get(ctx, partition, key)
	endSpan(span, err)
	return rec, err
}

func (t *Table[R]) Scan(ctx context.Context, partition string, conds ...domain.Condition) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		ctx, span := t.start(ctx, "Query", partition)
		input, err := buildQuery(t.tableName, partition, conds)
		if err != nil {
			endSpan(span, err)
			yield(zero, err)
			return
		}

		pages := 0
		p := dynamodb.NewQueryPaginator(t.client, input)
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			if err != nil {
				err = unavailable("query", err)
				endSpan(span, err)
				yield(zero, err)
				return
			}
			pages++
			var recs []R
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
				err = fmt.Errorf("unmarshal items: %w", err)
				endSpan(span, err)
				yield(zero, err)
				return
			}
			for _, rec := range recs {
				if !yield(rec, nil) {
					span.SetAttributes(attribute.Int("kv.pages", pages))
					endSpan(span, nil)
					return
				}
			}
		}
		span.SetAttributes(attribute.Int("kv.pages", pages))
		endSpan(span, nil)
	}
}

func (t *Table[R]) Upsert(ctx context.Context, rec R) error {
	ctx, span := t.start(ctx, "PutItem", rec.PartitionKey())
	err := t.upsert(ctx, rec)
	endSpan(span, err)
	return err
}

func (t *Table[R]) upsert(ctx context.Context, rec R) error {
	item, err := t.marshal(rec)
	if err != nil {
		return err
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      item,
	})
	if err != nil {
		return unavailable("put item", err)
	}
	return nil
}

func (t *Table[R]) Merge(ctx context.Context, partition, key string, transform func(R) (R, error)) (R, error) {
	ctx, span := t.start(ctx, "Merge", partition)
	rec, attempts, err := t.merge(ctx, partition, key, transform)
	span.SetAttributes(attribute.Int("kv.merge.attempts", attempts))
	endSpan(span, err)
	return rec, err
}

func (t *Table[R]) merge(ctx context.Context, partition, key string, transform func(R) (R, error)) (R, int, error) {
	var zero R
	for attempt := 1; ; attempt++ {
		cur, etag, err := t.get(ctx, partition, key)
		if err != nil {
			return zero, attempt, err
		}
		if cur == nil {
			return zero, attempt, fmt.Errorf("merge %s/%s: %w", partition, key, domain.ErrNotFound)
		}
		next, err := transform(*cur)
		if err != nil {
			return zero, attempt, err
		}
		if next.PartitionKey() != partition || next.RowKey() != key {
			return zero, attempt, fmt.Errorf("merge %s/%s: transform changed the record key: %w", partition, key, domain.ErrBadRequest)
		}
		item, err := t.marshal(next)
		if err != nil {
			return zero, attempt, err
		}
		cond, err := etagCondition(etag)
		if err != nil {
			return zero, attempt, fmt.Errorf("build merge condition: %w", err)
		}
		_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(t.tableName),
			Item:                      item,
			ConditionExpression:       cond.Condition(),
			ExpressionAttributeNames:  cond.Names(),
			ExpressionAttributeValues: cond.Values(),
		})
		if err == nil {
			return next, attempt, nil
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return zero, attempt, unavailable("put item", err)
		}
		if attempt >= t.opts.MaxAttempts {
			return zero, attempt, fmt.Errorf("merge %s/%s after %d attempts: %w", partition, key, attempt, domain.ErrConflictRetryExhausted)
		}
		if err := sleepCtx(ctx, backoff(t.opts.RetryBackoff, attempt)); err != nil {
			return zero, attempt, err
		}
	}
}

func (t *Table[R]) DeleteIfExists(ctx context.Context, partition, key string) error {
	ctx, span := t.start(ctx, "DeleteItem", partition)
	_, err := t.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.tableName),
		Key:       rowKey(partition, key),
	})
	if err != nil {
		err = unavailable("delete item", err)
	}
	endSpan(span, err)
	return err
}

// get returns the record and its etag, or a nil record when the item is absent.
func (t *Table[R]) get(ctx context.Context, partition, key string) (*R, string, error) {
	out, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            rowKey(partition, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, "", unavailable("get item", err)
	}
	if out.Item == nil {
		return nil, "", nil
	}
	var rec R
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, "", fmt.Errorf("unmarshal item: %w", err)
	}
	var etag string
	if v, ok := out.Item[attrETag].(*types.AttributeValueMemberS); ok {
		etag = v.Value
	}
	return &rec, etag, nil
}

func (t *Table[R]) marshal(rec R) (map[string]types.AttributeValue, error) {
	if rec.PartitionKey() == "" || rec.RowKey() == "" {
		return nil, fmt.Errorf("record without partition or row key: %w", domain.ErrBadRequest)
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	item[attrETag] = &types.AttributeValueMemberS{Value: id.New()}
	return item, nil
}

func (t *Table[R]) start(ctx context.Context, op, partition string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dynamo."+op, trace.WithAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("aws.dynamodb.table_names", t.tableName),
		attribute.String("kv.partition", partition),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
