package domain

import (
	"context"
	"iter"
	"time"
)

// Entity is any record addressable by a partition key and a row key.
type Entity interface {
	PartitionKey() string
	RowKey() string
}

// Condition is an attribute equality predicate evaluated by Scan.
// Attribute is the stored (dynamodbav) attribute name.
type Condition struct {
	Attribute string
	Value     string
}

// Eq builds a Condition matching records whose attribute equals value.
func Eq(attribute, value string) Condition {
	return Condition{Attribute: attribute, Value: value}
}

// KeyValueStore is the partition/row-keyed storage contract shared by every backend.
//
// Get and Scan treat absence as an empty result, never as an error. Merge commits
// atomically with respect to other Merge calls on the same key and returns
// ErrNotFound when the record does not exist or ErrConflictRetryExhausted when it
// could not commit within its retry budget. Backend failures wrap ErrStorageUnavailable.
type KeyValueStore[R Entity] interface {
	Get(ctx context.Context, partition, key string) (*R, error)
	// Scan yields every record in partition that satisfies all conds. Backend
	// pages are followed to completion; a non-nil error ends the sequence.
	Scan(ctx context.Context, partition string, conds ...Condition) iter.Seq2[R, error]
	Upsert(ctx context.Context, rec R) error
	// Merge reads the current record, applies transform and commits the result.
	// An error returned by transform aborts the merge and is returned unchanged.
	Merge(ctx context.Context, partition, key string, transform func(R) (R, error)) (R, error)
	DeleteIfExists(ctx context.Context, partition, key string) error
}

// Lease is a held storage-resident lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Leaser hands out short-lived named locks. Acquire returns ErrConflict when
// another holder keeps the lease past the acquisition wait.
type Leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}
