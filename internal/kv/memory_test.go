package kv

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("one")))

	exists, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	// Set is an upsert
	require.NoError(t, store.Set(ctx, "a", []byte("two")))
	value, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)

	removed, err := store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	exists, err = store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMultiGetPreservesOrderAndPlaceholders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "a", []byte("one")))
	require.NoError(t, store.Set(ctx, "c", []byte("three")))

	values, err := store.MultiGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, []byte("one"), values[0])
	assert.Nil(t, values[1])
	assert.Equal(t, []byte("three"), values[2])
}

func TestSetMembershipIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SAdd(ctx, "s", "m1"))
	require.NoError(t, store.SAdd(ctx, "s", "m1"))
	require.NoError(t, store.SAdd(ctx, "s", "m2"))

	members, err := store.SMembers(ctx, "s")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"m1", "m2"}, members)

	// Removing an absent member is a no-op, not an error
	require.NoError(t, store.SRem(ctx, "s", "m1"))
	require.NoError(t, store.SRem(ctx, "s", "m1"))
	require.NoError(t, store.SRem(ctx, "other", "m1"))

	members, err = store.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, members)

	members, err = store.SMembers(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestBatchAppliesAllOps(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	counts, err := store.Batch(ctx, []Op{
		{Type: SetOp, Key: "a", Value: []byte("one")},
		{Type: SAddOp, Set: "s", Key: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, counts)

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	members, err := store.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)

	counts, err = store.Batch(ctx, []Op{
		{Type: DeleteOp, Key: "a"},
		{Type: SRemOp, Set: "s", Key: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, counts)

	exists, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	members, err = store.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestBatchReportsNoOpCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SAdd(ctx, "s", "a"))

	// Deleting an absent key and re-adding a present member are no-ops; the
	// counts say so while the batch still succeeds as a unit.
	counts, err := store.Batch(ctx, []Op{
		{Type: DeleteOp, Key: "absent"},
		{Type: SAddOp, Set: "s", Key: "a"},
		{Type: SRemOp, Set: "s", Key: "a"},
		{Type: SRemOp, Set: "s", Key: "absent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 0}, counts)
}

func TestBatchRejectsUnknownOpWithoutApplying(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Batch(ctx, []Op{
		{Type: SetOp, Key: "a", Value: []byte("one")},
		{Type: OpType(99), Key: "b"},
	})
	require.ErrorIs(t, err, ErrBatchFailed)

	// Nothing from the failed batch is visible
	exists, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAppendLogReplay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.aof")

	store, err := Open(Config{AOFPath: path})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a", []byte("one")))
	_, err = store.Batch(ctx, []Op{
		{Type: SetOp, Key: "b", Value: []byte("two")},
		{Type: SAddOp, Set: "s", Key: "b"},
	})
	require.NoError(t, err)
	removed, err := store.Delete(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoError(t, store.Close())

	reopened, err := Open(Config{AOFPath: path})
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, "a")
	require.ErrorIs(t, err, ErrKeyNotFound)

	value, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)

	members, err := reopened.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestReplayDropsTornTailRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.aof")

	store, err := Open(Config{AOFPath: path})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", []byte("one")))
	require.NoError(t, store.Close())

	// A crash mid-append leaves an unterminated, unparseable final line.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(`{"ops":[{"type":"set","k`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	reopened, err := Open(Config{AOFPath: path})
	require.NoError(t, err)

	value, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	// The torn tail was truncated away, so new writes replay cleanly.
	require.NoError(t, reopened.Set(ctx, "b", []byte("two")))
	require.NoError(t, reopened.Close())

	again, err := Open(Config{AOFPath: path})
	require.NoError(t, err)
	defer again.Close()

	value, err = again.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)
}

func TestReplayRepairsMissingFinalNewline(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.aof")

	// A whole record whose terminator never made it to disk.
	data := `{"ops":[{"type":"set","key":"a","value":"b25l"}]}` + "\n" +
		`{"ops":[{"type":"set","key":"b","value":"dHdv"}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	store, err := Open(Config{AOFPath: path})
	require.NoError(t, err)

	value, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)

	require.NoError(t, store.Set(ctx, "c", []byte("three")))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{AOFPath: path})
	require.NoError(t, err)
	defer reopened.Close()

	for key, want := range map[string]string{"a": "one", "b": "two", "c": "three"} {
		value, err := reopened.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte(want), value)
	}
}

func TestReplayRejectsMidLogCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")

	// A terminated record was flushed whole, so failing to parse it is real
	// corruption, not a crash artifact.
	data := "not json\n" +
		`{"ops":[{"type":"set","key":"a","value":"b25l"}]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Open(Config{AOFPath: path})
	require.ErrorContains(t, err, "corrupt log record")
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	ctx := context.Background()
	store, err := Open(Config{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, store.Set(ctx, "a", nil), ErrClosed)
	_, err = store.Batch(ctx, []Op{{Type: SetOp, Key: "a"}})
	require.ErrorIs(t, err, ErrClosed)

	// Closing twice is fine
	require.NoError(t, store.Close())
}
