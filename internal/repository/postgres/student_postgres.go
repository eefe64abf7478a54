package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"studentapi/internal/model"
	"studentapi/internal/repository"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// StudentPostgres is a PostgreSQL implementation of repository.StudentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type StudentPostgres struct {
	db *sql.DB
}

// NewStudentPostgres creates a new StudentPostgres repository.
func NewStudentPostgres(db *sql.DB) *StudentPostgres {
	return &StudentPostgres{db: db}
}

var _ repository.StudentRepository = (*StudentPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*model.Student, error) {
	var s model.Student
	if err := row.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Program); err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all students. No ORDER BY: the order is whatever the store yields.
func (r *StudentPostgres) List(ctx context.Context) ([]model.Student, error) {
	const q = `SELECT id, first_name, last_name, program FROM students`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Student, 0)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID fetches a single student by its ID.
func (r *StudentPostgres) FindByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	const q = `
		SELECT id, first_name, last_name, program
		FROM students
		WHERE id = $1
	`
	return scanStudent(r.db.QueryRowContext(ctx, q, id))
}

// Exists reports whether a row with the given ID is present.
func (r *StudentPostgres) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a student row and returns the stored record.
func (r *StudentPostgres) Create(ctx context.Context, s *model.Student) (*model.Student, error) {
	const (
		qGenerated = `
		INSERT INTO students (first_name, last_name, program)
		VALUES ($1, $2, $3)
		RETURNING id, first_name, last_name, program
	`
		qWithID = `
		INSERT INTO students (id, first_name, last_name, program)
		VALUES ($1, $2, $3, $4)
		RETURNING id, first_name, last_name, program
	`
	)

	var row *sql.Row
	if s.ID == uuid.Nil {
		row = r.db.QueryRowContext(ctx, qGenerated, s.FirstName, s.LastName, s.Program)
	} else {
		row = r.db.QueryRowContext(ctx, qWithID, s.ID, s.FirstName, s.LastName, s.Program)
	}

	out, err := scanStudent(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", repository.ErrDuplicateID, s.ID)
		}
		return nil, err
	}
	return out, nil
}

// Update overwrites first_name, last_name and program of an existing row.
// It returns sql.ErrNoRows if the row does not exist.
func (r *StudentPostgres) Update(ctx context.Context, s *model.Student) (*model.Student, error) {
	const q = `
		UPDATE students
		SET first_name = $2, last_name = $3, program = $4
		WHERE id = $1
		RETURNING id, first_name, last_name, program
	`
	return scanStudent(r.db.QueryRowContext(ctx, q, s.ID, s.FirstName, s.LastName, s.Program))
}

// Delete removes a student by ID. It returns sql.ErrNoRows if nothing was deleted.
func (r *StudentPostgres) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM students WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
