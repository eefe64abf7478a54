package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"studentapi/internal/model"
	"studentapi/internal/repository"
)

var (
	ErrNotFound           = errors.New("student not found")
	ErrStorageUnavailable = errors.New("object storage is not configured")
	ErrInvalidRoster      = errors.New("invalid roster")
)

// StudentService defines the use cases for handling students.
type StudentService interface {
	// List returns every stored student.
	List(ctx context.Context) ([]model.Student, error)

	// Get returns a single student by its ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Student, error)

	// Create validates the input and stores a new student with a store-generated ID.
	Create(ctx context.Context, in model.StudentInput) (*model.Student, error)

	// Upsert inserts a student under id if none exists, otherwise updates its
	// first and last name. The stored program is never changed by the update
	// path. The boolean result reports whether a new record was created.
	Upsert(ctx context.Context, id uuid.UUID, in model.StudentInput) (*model.Student, bool, error)

	// Delete removes a student by ID, returning ErrNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// studentService is a concrete implementation of StudentService.
type studentService struct {
	repo repository.StudentRepository
}

// NewStudentService constructs a new StudentService.
func NewStudentService(repo repository.StudentRepository) StudentService {
	return &studentService{repo: repo}
}

func (s *studentService) List(ctx context.Context) (_ []model.Student, err error) {
	ctx, span := tracer.Start(ctx, "StudentService.List")
	defer func() { endSpan(span, err) }()

	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	span.SetAttributes(attribute.Int("student.count", len(items)))
	return items, nil
}

func (s *studentService) Get(ctx context.Context, id uuid.UUID) (_ *model.Student, err error) {
	ctx, span := tracer.Start(ctx, "StudentService.Get", withStudentID(id))
	defer func() { endSpan(span, err) }()

	return s.find(ctx, id)
}

func (s *studentService) Create(ctx context.Context, in model.StudentInput) (_ *model.Student, err error) {
	ctx, span := tracer.Start(ctx, "StudentService.Create")
	defer func() { endSpan(span, err) }()

	if err := ValidateStudent(in); err != nil {
		return nil, err
	}

	stored, err := s.repo.Create(ctx, model.NewStudent(uuid.Nil, in))
	if err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	span.SetAttributes(attribute.String("student.id", stored.ID.String()))
	return stored, nil
}

func (s *studentService) Upsert(ctx context.Context, id uuid.UUID, in model.StudentInput) (_ *model.Student, created bool, err error) {
	ctx, span := tracer.Start(ctx, "StudentService.Upsert", withStudentID(id))
	defer func() {
		span.SetAttributes(attribute.Bool("student.created", created))
		endSpan(span, err)
	}()

	if err := ValidateStudent(in); err != nil {
		return nil, false, err
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("check student %s: %w", id, err)
	}

	if !exists {
		stored, err := s.repo.Create(ctx, model.NewStudent(id, in))
		if err == nil {
			return stored, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicateID) {
			return nil, false, fmt.Errorf("create student %s: %w", id, err)
		}
		// A concurrent request inserted the same id; update it instead.
	}

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	current.FirstName = in.FirstName
	current.LastName = in.LastName
	// Program keeps its stored value on update.

	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("update student %s: %w", id, err)
	}
	return updated, false, nil
}

func (s *studentService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "StudentService.Delete", withStudentID(id))
	defer func() { endSpan(span, err) }()

	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		// Removed by someone else between the lookup and the delete.
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete student %s: %w", id, err)
	}
	return nil
}

func (s *studentService) find(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find student %s: %w", id, err)
	}
	return st, nil
}

func withStudentID(id uuid.UUID) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("student.id", id.String()))
}
