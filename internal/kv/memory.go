package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/yigit/courseregistry/internal/pkg/metrics"
)

// Config configures the store engine.
type Config struct {
	// AOFPath is the append-only log file used for durability. Empty disables
	// persistence and the store lives purely in memory.
	AOFPath string
	// SyncWrites forces an fsync after every logged mutation.
	SyncWrites bool
}

// memoryStore is an in-process Store engine. A single RWMutex guards both the
// record namespace and the set namespace so Batch can apply its operations
// under one critical section.
type memoryStore struct {
	mu     sync.RWMutex
	keys   btree.Map[string, []byte]
	sets   map[string]map[string]struct{}
	log    *appendLog
	closed bool
}

// Open creates a store engine, replaying the append-only log when one is
// configured and present.
func Open(cfg Config) (Store, error) {
	s := &memoryStore{
		sets: make(map[string]map[string]struct{}),
	}

	if cfg.AOFPath == "" {
		return s, nil
	}

	if err := replayAppendLog(cfg.AOFPath, func(rec logRecord) {
		for _, op := range rec.Ops {
			s.applyLocked(op.toOp())
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to replay append-only log: %w", err)
	}

	log, err := openAppendLog(cfg.AOFPath, cfg.SyncWrites)
	if err != nil {
		return nil, err
	}
	s.log = log
	return s, nil
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.keys.Get(key)
	metrics.StoreOpsTotal.WithLabelValues("exists", "ok").Inc()
	return ok, nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	value, ok := s.keys.Get(key)
	if !ok {
		metrics.StoreOpsTotal.WithLabelValues("get", "miss").Inc()
		return nil, ErrKeyNotFound
	}
	metrics.StoreOpsTotal.WithLabelValues("get", "ok").Inc()
	return cloneBytes(value), nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	op := Op{Type: SetOp, Key: key, Value: value}
	if err := s.logLocked([]Op{op}); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("set", "error").Inc()
		return err
	}
	s.applyLocked(op)
	metrics.StoreOpsTotal.WithLabelValues("set", "ok").Inc()
	return nil
}

func (s *memoryStore) MultiGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	// One result per input key, order preserved; absent keys stay nil.
	values := make([][]byte, len(keys))
	for i, key := range keys {
		if value, ok := s.keys.Get(key); ok {
			values[i] = cloneBytes(value)
		}
	}
	metrics.StoreOpsTotal.WithLabelValues("multiget", "ok").Inc()
	return values, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if _, ok := s.keys.Get(key); !ok {
		metrics.StoreOpsTotal.WithLabelValues("delete", "miss").Inc()
		return 0, nil
	}
	op := Op{Type: DeleteOp, Key: key}
	if err := s.logLocked([]Op{op}); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("delete", "error").Inc()
		return 0, err
	}
	s.applyLocked(op)
	metrics.StoreOpsTotal.WithLabelValues("delete", "ok").Inc()
	return 1, nil
}

func (s *memoryStore) SAdd(ctx context.Context, set, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	op := Op{Type: SAddOp, Set: set, Key: member}
	if err := s.logLocked([]Op{op}); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("sadd", "error").Inc()
		return err
	}
	s.applyLocked(op)
	metrics.StoreOpsTotal.WithLabelValues("sadd", "ok").Inc()
	return nil
}

func (s *memoryStore) SRem(ctx context.Context, set, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	op := Op{Type: SRemOp, Set: set, Key: member}
	if err := s.logLocked([]Op{op}); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("srem", "error").Inc()
		return err
	}
	s.applyLocked(op)
	metrics.StoreOpsTotal.WithLabelValues("srem", "ok").Inc()
	return nil
}

func (s *memoryStore) SMembers(ctx context.Context, set string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	members := make([]string, 0, len(s.sets[set]))
	for member := range s.sets[set] {
		members = append(members, member)
	}
	metrics.StoreOpsTotal.WithLabelValues("smembers", "ok").Inc()
	return members, nil
}

// Batch executes ops under a single critical section. The batch is logged as
// one record before anything is applied, so a log failure leaves the store
// untouched; once logged, the in-memory apply cannot fail.
func (s *memoryStore) Batch(ctx context.Context, ops []Op) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	for _, op := range ops {
		switch op.Type {
		case SetOp, DeleteOp, SAddOp, SRemOp:
		default:
			return nil, fmt.Errorf("%w: unknown op type %d", ErrBatchFailed, op.Type)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.logLocked(ops); err != nil {
		metrics.StoreOpsTotal.WithLabelValues("batch", "error").Inc()
		return nil, err
	}
	counts := make([]int, len(ops))
	for i, op := range ops {
		counts[i] = s.applyLocked(op)
	}
	metrics.StoreOpsTotal.WithLabelValues("batch", "ok").Inc()
	return counts, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.log != nil {
		return s.log.close()
	}
	return nil
}

// applyLocked mutates the in-memory state and reports whether the op changed
// anything (1) or was a no-op (0). Callers hold the write lock (or, at
// startup, exclusive ownership during replay).
func (s *memoryStore) applyLocked(op Op) int {
	switch op.Type {
	case SetOp:
		s.keys.Set(op.Key, cloneBytes(op.Value))
		return 1
	case DeleteOp:
		if _, ok := s.keys.Delete(op.Key); ok {
			return 1
		}
		return 0
	case SAddOp:
		members, ok := s.sets[op.Set]
		if !ok {
			members = make(map[string]struct{})
			s.sets[op.Set] = members
		}
		if _, present := members[op.Key]; present {
			return 0
		}
		members[op.Key] = struct{}{}
		return 1
	case SRemOp:
		if _, present := s.sets[op.Set][op.Key]; !present {
			return 0
		}
		delete(s.sets[op.Set], op.Key)
		return 1
	}
	return 0
}

func (s *memoryStore) logLocked(ops []Op) error {
	if s.log == nil {
		return nil
	}
	if err := s.log.append(newLogRecord(ops)); err != nil {
		return fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
