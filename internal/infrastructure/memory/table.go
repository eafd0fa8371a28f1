// Package memory provides in-process implementations of the storage contracts,
// used with STORAGE_DRIVER=memory for local development and by service tests.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-verification-nosql/internal/domain"
)

type rowID struct{ partition, key string }

// Table is an in-memory domain.KeyValueStore. Merge holds a per-key lock for the
// whole read-transform-write, so concurrent merges on one key serialize.
type Table[R domain.Entity] struct {
	mu    sync.RWMutex
	rows  map[rowID]R
	locks sync.Map // rowID -> *sync.Mutex
}

func NewTable[R domain.Entity]() *Table[R] {
	return &Table[R]{rows: make(map[rowID]R)}
}

func (t *Table[R]) Get(ctx context.Context, partition, key string) (*R, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.rows[rowID{partition, key}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Scan takes a snapshot of the partition when iteration starts; records written
// while the caller iterates are not observed.
func (t *Table[R]) Scan(ctx context.Context, partition string, conds ...domain.Condition) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		if err := ctx.Err(); err != nil {
			yield(zero, err)
			return
		}
		t.mu.RLock()
		snapshot := make([]R, 0)
		for id, rec := range t.rows {
			if id.partition == partition {
				snapshot = append(snapshot, rec)
			}
		}
		t.mu.RUnlock()

		for _, rec := range snapshot {
			ok, err := matches(rec, conds)
			if err != nil {
				yield(zero, err)
				return
			}
			if ok && !yield(rec, nil) {
				return
			}
		}
	}
}

func (t *Table[R]) Upsert(ctx context.Context, rec R) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.PartitionKey() == "" || rec.RowKey() == "" {
		return fmt.Errorf("record without partition or row key: %w", domain.ErrBadRequest)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[rowID{rec.PartitionKey(), rec.RowKey()}] = rec
	return nil
}

func (t *Table[R]) Merge(ctx context.Context, partition, key string, transform func(R) (R, error)) (R, error) {
	var zero R
	id := rowID{partition, key}
	l, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	keyLock := l.(*sync.Mutex)
	keyLock.Lock()
	defer keyLock.Unlock()

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	t.mu.RLock()
	cur, ok := t.rows[id]
	t.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("merge %s/%s: %w", partition, key, domain.ErrNotFound)
	}
	next, err := transform(cur)
	if err != nil {
		return zero, err
	}
	if next.PartitionKey() != partition || next.RowKey() != key {
		return zero, fmt.Errorf("merge %s/%s: transform changed the record key: %w", partition, key, domain.ErrBadRequest)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		// Deleted while the transform ran.
		return zero, fmt.Errorf("merge %s/%s: %w", partition, key, domain.ErrNotFound)
	}
	t.rows[id] = next
	return next, nil
}

func (t *Table[R]) DeleteIfExists(ctx context.Context, partition, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, rowID{partition, key})
	return nil
}

// matches evaluates conds against the record's stored attribute names, the
// same names the DynamoDB filter expression sees.
func matches[R any](rec R, conds []domain.Condition) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}
	for _, c := range conds {
		var got string
		switch v := item[c.Attribute].(type) {
		case *types.AttributeValueMemberS:
			got = v.Value
		case *types.AttributeValueMemberN:
			got = v.Value
		case *types.AttributeValueMemberNULL, nil:
			got = ""
		default:
			return false, nil
		}
		if got != c.Value {
			return false, nil
		}
	}
	return true, nil
}
