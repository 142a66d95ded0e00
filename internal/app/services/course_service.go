package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yigit/courseregistry/internal/app/models"
	"github.com/yigit/courseregistry/internal/app/models/dto"
	"github.com/yigit/courseregistry/internal/app/repositories"
	"github.com/yigit/courseregistry/internal/pkg/apperrors"
)

// CourseService coordinates course CRUD against the record store and the
// index set. Every mutating operation leaves both consistent or reports that
// the record's terminal state is unknown.
type CourseService interface {
	CreateCourse(ctx context.Context, req *dto.CreateCourseRequest) (*models.Course, error)
	GetAllCourses(ctx context.Context) ([]*models.Course, error)
	GetCourseByCode(ctx context.Context, code string) (*models.Course, error)
	UpdateCourse(ctx context.Context, code string, req *dto.UpdateCourseRequest) (*models.Course, error)
	DeleteCourse(ctx context.Context, code string) error
}

type courseService struct {
	courseRepo *repositories.CourseRepository
	logger     zerolog.Logger
}

// NewCourseService creates a new course service instance
func NewCourseService(courseRepo *repositories.CourseRepository, logger zerolog.Logger) CourseService {
	return &courseService{
		courseRepo: courseRepo,
		logger:     logger,
	}
}

// validateCreateRequest checks the request beyond what JSON binding enforces.
func validateCreateRequest(req *dto.CreateCourseRequest) error {
	if req == nil {
		return apperrors.NewValidationError("request body is required")
	}
	if strings.TrimSpace(req.Program) == "" {
		return apperrors.NewValidationError("program cannot be empty")
	}
	if strings.TrimSpace(req.Code) == "" {
		return apperrors.NewValidationError("code cannot be empty")
	}
	if strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("title cannot be empty")
	}
	if req.Semester == nil {
		return apperrors.NewValidationError("semester is required")
	}
	if req.Credits == nil {
		return apperrors.NewValidationError("credits is required")
	}
	return nil
}

// CreateCourse creates a new course record and indexes its key.
func (s *courseService) CreateCourse(ctx context.Context, req *dto.CreateCourseRequest) (*models.Course, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	exists, err := s.courseRepo.Exists(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("error checking course existence: %w", err)
	}
	if exists {
		return nil, apperrors.NewConflictError(fmt.Sprintf("course with code %s already exists", req.Code))
	}

	course := &models.Course{
		ID:            uuid.NewString(),
		Code:          req.Code,
		Program:       req.Program,
		Title:         req.Title,
		Semester:      *req.Semester,
		Credits:       *req.Credits,
		Prerequisites: req.Prerequisites,
	}
	if course.Prerequisites == nil {
		course.Prerequisites = []string{}
	}

	if err := s.courseRepo.Create(ctx, course); err != nil {
		if errors.Is(err, repositories.ErrPartialWrite) {
			s.logger.Error().Err(err).Str("code", course.Code).Msg("Combined record and index write failed")
			return nil, apperrors.NewPartialWriteError("course creation did not complete as a unit")
		}
		return nil, fmt.Errorf("error creating course: %w", err)
	}

	s.logger.Info().Str("code", course.Code).Str("id", course.ID).Msg("Course created")
	return course, nil
}

// GetAllCourses enumerates the index set and fetches every record. A key that
// is indexed but has no record surfaces as a nil entry in the result, with a
// warning logged, so an index divergence is never silently hidden.
func (s *courseService) GetAllCourses(ctx context.Context) ([]*models.Course, error) {
	keys, err := s.courseRepo.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing course keys: %w", err)
	}
	if len(keys) == 0 {
		return []*models.Course{}, nil
	}

	courses, err := s.courseRepo.MultiGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("error retrieving courses: %w", err)
	}

	for i, course := range courses {
		if course == nil {
			s.logger.Warn().Str("key", keys[i]).Msg("Indexed key has no course record")
		}
	}
	return courses, nil
}

// GetCourseByCode retrieves a single course directly from the record store,
// bypassing the index.
func (s *courseService) GetCourseByCode(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.courseRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrCourseNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("course with code %s not found", code))
		}
		return nil, fmt.Errorf("error retrieving course: %w", err)
	}
	return course, nil
}

// UpdateCourse shallow-merges the request over the stored record. Fields
// omitted from the body are preserved. Changing the code is rejected: the
// code derives the storage key, and re-keying is not supported.
func (s *courseService) UpdateCourse(ctx context.Context, code string, req *dto.UpdateCourseRequest) (*models.Course, error) {
	if req == nil {
		return nil, apperrors.NewValidationError("request body is required")
	}
	if req.Code != nil && *req.Code != code {
		return nil, apperrors.NewValidationError("course code cannot be changed")
	}

	course, err := s.courseRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrCourseNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("course with code %s not found", code))
		}
		return nil, fmt.Errorf("error retrieving course: %w", err)
	}

	if req.Program != nil {
		course.Program = *req.Program
	}
	if req.Title != nil {
		course.Title = *req.Title
	}
	if req.Semester != nil {
		course.Semester = *req.Semester
	}
	if req.Credits != nil {
		course.Credits = *req.Credits
	}
	if req.Prerequisites != nil {
		course.Prerequisites = *req.Prerequisites
		if course.Prerequisites == nil {
			course.Prerequisites = []string{}
		}
	}

	if err := s.courseRepo.Save(ctx, course); err != nil {
		return nil, fmt.Errorf("error updating course: %w", err)
	}

	s.logger.Info().Str("code", course.Code).Msg("Course updated")
	return course, nil
}

// DeleteCourse removes the record and its index membership as one unit.
func (s *courseService) DeleteCourse(ctx context.Context, code string) error {
	existed, err := s.courseRepo.Delete(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrPartialWrite) {
			s.logger.Error().Err(err).Str("code", code).Msg("Combined record and index removal failed")
			return apperrors.NewPartialWriteError("course deletion did not complete as a unit")
		}
		return fmt.Errorf("error deleting course: %w", err)
	}
	if !existed {
		return apperrors.NewNotFoundError(fmt.Sprintf("course with code %s not found", code))
	}

	s.logger.Info().Str("code", code).Msg("Course deleted")
	return nil
}
