package repository

import (
	"context"

	"github.com/google/uuid"

	"studentapi/internal/model"
)

// StudentRepository defines data access for students using SQL queries only.
// No business logic here, only persistence.
//
// Lookups of a missing row return sql.ErrNoRows so callers can translate it.
type StudentRepository interface {
	// List returns every student in store-defined order.
	List(ctx context.Context) ([]model.Student, error)

	// FindByID returns a student by its ID.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Student, error)

	// Exists reports whether a student with the given ID is stored.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// Create inserts a new student. When s.ID is uuid.Nil the database
	// generates the key; otherwise the given ID is used and ErrDuplicateID
	// is returned if it is already taken.
	Create(ctx context.Context, s *model.Student) (*model.Student, error)

	// Update overwrites all mutable columns of an existing student.
	Update(ctx context.Context, s *model.Student) (*model.Student, error)

	// Delete removes a student by ID.
	Delete(ctx context.Context, id uuid.UUID) error
}
