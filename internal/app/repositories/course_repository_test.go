package repositories

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/courseregistry/internal/app/models"
	"github.com/yigit/courseregistry/internal/kv"
)

func newTestRepo(t *testing.T) (*CourseRepository, kv.Store) {
	t.Helper()
	store, err := kv.Open(kv.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewCourseRepository(store), store
}

func testCourse(code string) *models.Course {
	return &models.Course{
		ID:            "id-" + code,
		Code:          code,
		Program:       "CS",
		Title:         "Algorithms",
		Semester:      3,
		Credits:       4,
		Prerequisites: []string{},
	}
}

// requireConsistent asserts that index membership and record existence agree
// for every key in either store.
func requireConsistent(t *testing.T, repo *CourseRepository, store kv.Store, codes ...string) {
	t.Helper()
	ctx := context.Background()

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)

	indexed := make(map[string]bool, len(keys))
	for _, key := range keys {
		indexed[key] = true
		exists, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists, "indexed key %q has no record", key)
	}
	for _, code := range codes {
		exists, err := repo.Exists(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, indexed[CourseKey(code)], exists,
			"record existence and index membership diverge for %q", code)
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	course := testCourse("CS301")
	require.NoError(t, repo.Create(ctx, course))

	got, err := repo.GetByCode(ctx, "CS301")
	require.NoError(t, err)
	assert.Equal(t, course, got)

	requireConsistent(t, repo, store, "CS301")
}

func TestCreateIndexesKey(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testCourse("CS301")))
	require.NoError(t, repo.Create(ctx, testCourse("CS302")))

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"course:CS301", "course:CS302"}, keys)
}

func TestDeleteRemovesRecordAndIndexEntry(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testCourse("CS301")))
	require.NoError(t, repo.Create(ctx, testCourse("CS302")))

	existed, err := repo.Delete(ctx, "CS301")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = repo.GetByCode(ctx, "CS301")
	require.ErrorIs(t, err, ErrCourseNotFound)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"course:CS302"}, keys)

	requireConsistent(t, repo, store, "CS301", "CS302")
}

func TestDeleteAbsentCourse(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	existed, err := repo.Delete(ctx, "CS999")
	require.NoError(t, err)
	assert.False(t, existed)

	requireConsistent(t, repo, store, "CS999")
}

func TestCreateDeleteSequencesKeepInvariant(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	codes := []string{"CS101", "CS201", "CS301", "CS401"}
	for _, code := range codes {
		require.NoError(t, repo.Create(ctx, testCourse(code)))
		requireConsistent(t, repo, store, codes...)
	}
	for _, code := range []string{"CS201", "CS401"} {
		_, err := repo.Delete(ctx, code)
		require.NoError(t, err)
		requireConsistent(t, repo, store, codes...)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMultiGetSurfacesDivergence(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testCourse("CS301")))

	// Force the divergence the combined write protocol prevents: an indexed
	// key with no backing record.
	require.NoError(t, store.SAdd(ctx, "courses", CourseKey("GHOST")))

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	sort.Strings(keys)

	courses, err := repo.MultiGet(ctx, keys)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	require.NotNil(t, courses[0])
	assert.Equal(t, "CS301", courses[0].Code)
	assert.Nil(t, courses[1], "missing record must surface as a placeholder, not be dropped")
}

// brokenBatchStore fails every batch, simulating a backend that cannot
// execute the combined write as a unit.
type brokenBatchStore struct {
	kv.Store
}

func (s *brokenBatchStore) Batch(ctx context.Context, ops []kv.Op) ([]int, error) {
	return nil, fmt.Errorf("%w: backend unavailable", kv.ErrBatchFailed)
}

func TestCreateSurfacesPartialWrite(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRepo(t)
	repo := NewCourseRepository(&brokenBatchStore{Store: store})

	err := repo.Create(ctx, testCourse("CS301"))
	require.ErrorIs(t, err, ErrPartialWrite)

	// The failed unit left nothing behind
	exists, err := store.Exists(ctx, CourseKey("CS301"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteSurfacesPartialWrite(t *testing.T) {
	ctx := context.Background()
	realRepo, store := newTestRepo(t)
	require.NoError(t, realRepo.Create(ctx, testCourse("CS301")))

	repo := NewCourseRepository(&brokenBatchStore{Store: store})
	_, err := repo.Delete(ctx, "CS301")
	require.ErrorIs(t, err, ErrPartialWrite)

	// The record is still fully present
	got, err := realRepo.GetByCode(ctx, "CS301")
	require.NoError(t, err)
	assert.Equal(t, "CS301", got.Code)
}

func TestDeleteReportsMissingRecordDespiteIndexEntry(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testCourse("CS301")))

	// Remove the record out from under the index, as a racing delete would.
	removed, err := store.Delete(ctx, CourseKey("CS301"))
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	// The outcome comes from the delete count inside the unit, not from any
	// earlier existence read, so the removal is not claimed twice; the stale
	// index entry is still swept out.
	existed, err := repo.Delete(ctx, "CS301")
	require.NoError(t, err)
	assert.False(t, existed)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSaveDoesNotTouchIndex(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	course := testCourse("CS301")
	require.NoError(t, repo.Create(ctx, course))

	course.Credits = 5
	require.NoError(t, repo.Save(ctx, course))

	got, err := repo.GetByCode(ctx, "CS301")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Credits)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"course:CS301"}, keys)
}
