// Package kv provides the key-value storage layer backing the course registry.
//
// It exposes a flat string-keyed namespace for record values, named sets for
// membership indexes, and a batch primitive that executes a group of mutations
// as a single indivisible unit. All concurrency safety is delegated to the
// store implementation; callers perform no locking of their own.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get when no value exists at the key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrBatchFailed is returned by Batch when the group of operations could
	// not be executed as a unit. No partial state is left behind by the
	// in-memory engine, but callers must not assume the mutations are visible.
	ErrBatchFailed = errors.New("batch did not execute as a unit")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// OpType identifies a batched mutation.
type OpType int

const (
	SetOp OpType = iota
	DeleteOp
	SAddOp
	SRemOp
)

// Op is a single mutation inside a batch. Key is the record key for SetOp and
// DeleteOp; for SAddOp and SRemOp, Set names the target set and Key the member.
type Op struct {
	Type  OpType
	Key   string
	Set   string
	Value []byte
}

// Store is a key-value database with set-typed entries and batched writes.
type Store interface {
	// Exists reports whether a value is present at key. No side effects.
	Exists(ctx context.Context, key string) (bool, error)

	// Get returns the value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts the value at key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// MultiGet returns one result per input key in the same order. A missing
	// key yields a nil placeholder, not an error.
	MultiGet(ctx context.Context, keys []string) ([][]byte, error)

	// Delete removes the value at key and returns the number of values
	// removed (0 or 1).
	Delete(ctx context.Context, key string) (int, error)

	// SAdd adds member to the named set. Adding a present member is a no-op.
	SAdd(ctx context.Context, set, member string) error

	// SRem removes member from the named set. Removing an absent member is a
	// no-op, not an error.
	SRem(ctx context.Context, set, member string) error

	// SMembers returns all members of the named set in no particular order.
	// An absent set yields an empty slice.
	SMembers(ctx context.Context, set string) ([]string, error)

	// Batch executes ops as one atomic unit: either every mutation is applied
	// or none is, and in the failure case ErrBatchFailed is returned. On
	// success it returns one count per op, 1 if the op changed state and 0 if
	// it was a no-op (deleting an absent key, re-adding a present member), so
	// callers can tell what the unit actually did without a racy pre-check.
	Batch(ctx context.Context, ops []Op) ([]int, error)

	// Close releases the store's resources, flushing any pending log writes.
	Close() error
}
