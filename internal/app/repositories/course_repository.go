package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yigit/courseregistry/internal/app/models"
	"github.com/yigit/courseregistry/internal/kv"
	"github.com/yigit/courseregistry/internal/pkg/metrics"
)

const (
	// courseKeyPrefix derives the storage key from a course code. The same
	// key is stored as the member of the index set, which is what keeps the
	// record namespace and the index in lockstep.
	courseKeyPrefix = "course:"

	// courseIndexSet is the set holding the key of every live course record.
	courseIndexSet = "courses"
)

// Course error types
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrPartialWrite   = errors.New("course record and index set were not updated as a unit")
)

// CourseRepository handles key-value store operations for courses. Every
// mutation that changes which keys exist goes through a batch so the record
// namespace and the index set cannot diverge.
type CourseRepository struct {
	store kv.Store
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(store kv.Store) *CourseRepository {
	return &CourseRepository{
		store: store,
	}
}

// CourseKey returns the storage key for a course code.
func CourseKey(code string) string {
	return courseKeyPrefix + code
}

// Exists reports whether a record is stored for the given code.
func (r *CourseRepository) Exists(ctx context.Context, code string) (bool, error) {
	return r.store.Exists(ctx, CourseKey(code))
}

// GetByCode retrieves a course record by its code.
func (r *CourseRepository) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	value, err := r.store.Get(ctx, CourseKey(code))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("error retrieving course: %w", err)
	}

	var course models.Course
	if err := json.Unmarshal(value, &course); err != nil {
		return nil, fmt.Errorf("error decoding course record: %w", err)
	}
	return &course, nil
}

// Create writes the record and adds its key to the index set as one atomic
// unit. On failure neither store is modified and ErrPartialWrite is returned.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	key := CourseKey(course.Code)
	value, err := json.Marshal(course)
	if err != nil {
		return fmt.Errorf("error encoding course record: %w", err)
	}

	ops := []kv.Op{
		{Type: kv.SetOp, Key: key, Value: value},
		{Type: kv.SAddOp, Set: courseIndexSet, Key: key},
	}
	if _, err := r.store.Batch(ctx, ops); err != nil {
		if errors.Is(err, kv.ErrBatchFailed) {
			return fmt.Errorf("%w: %v", ErrPartialWrite, err)
		}
		return fmt.Errorf("error creating course: %w", err)
	}

	metrics.CoursesTotal.Inc()
	return nil
}

// Save overwrites the record under its existing key. The index set is left
// untouched: the key does not change, so no membership change is needed.
func (r *CourseRepository) Save(ctx context.Context, course *models.Course) error {
	value, err := json.Marshal(course)
	if err != nil {
		return fmt.Errorf("error encoding course record: %w", err)
	}
	if err := r.store.Set(ctx, CourseKey(course.Code), value); err != nil {
		return fmt.Errorf("error saving course: %w", err)
	}
	return nil
}

// Delete removes the record and its index membership as one atomic unit. It
// reports whether a record was removed, taken from the delete count inside
// the unit so two racing deletes cannot both claim the removal; the index
// removal is idempotent, so running the unit against an absent key is
// harmless.
func (r *CourseRepository) Delete(ctx context.Context, code string) (bool, error) {
	key := CourseKey(code)

	ops := []kv.Op{
		{Type: kv.DeleteOp, Key: key},
		{Type: kv.SRemOp, Set: courseIndexSet, Key: key},
	}
	counts, err := r.store.Batch(ctx, ops)
	if err != nil {
		if errors.Is(err, kv.ErrBatchFailed) {
			return false, fmt.Errorf("%w: %v", ErrPartialWrite, err)
		}
		return false, fmt.Errorf("error deleting course: %w", err)
	}

	existed := counts[0] == 1
	if existed {
		metrics.CoursesTotal.Dec()
	}
	return existed, nil
}

// ListKeys enumerates the index set. Order is not meaningful.
func (r *CourseRepository) ListKeys(ctx context.Context) ([]string, error) {
	return r.store.SMembers(ctx, courseIndexSet)
}

// MultiGet fetches one record per key, preserving order. A key present in the
// index but absent from the record namespace yields a nil placeholder rather
// than being dropped, so an index divergence stays visible to callers.
func (r *CourseRepository) MultiGet(ctx context.Context, keys []string) ([]*models.Course, error) {
	values, err := r.store.MultiGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("error retrieving courses: %w", err)
	}

	courses := make([]*models.Course, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		var course models.Course
		if err := json.Unmarshal(value, &course); err != nil {
			return nil, fmt.Errorf("error decoding course record %q: %w", keys[i], err)
		}
		courses[i] = &course
	}
	return courses, nil
}

// Count returns the number of keys in the index set.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	keys, err := r.store.SMembers(ctx, courseIndexSet)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
