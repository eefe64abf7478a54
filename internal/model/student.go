package model

import "github.com/google/uuid"

// Student is a persisted student record.
// This is a pure domain model with no database-specific dependencies or tags.
type Student struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Program   string    `json:"program"`
}

// StudentInput carries the caller-editable fields of a Student.
// The validate tags are evaluated by service.ValidateStudent.
type StudentInput struct {
	FirstName string `json:"firstName" validate:"required,notblank,max=50"`
	LastName  string `json:"lastName" validate:"required,notblank,max=50"`
	Program   string `json:"program" validate:"required,notblank,max=50"`
}

// NewStudent builds a Student from input. A uuid.Nil id leaves key
// generation to the store.
func NewStudent(id uuid.UUID, in StudentInput) *Student {
	return &Student{
		ID:        id,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Program:   in.Program,
	}
}
