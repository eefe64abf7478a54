// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import "errors"

// ErrDuplicateID is returned by Create when a row with the same primary key
// already exists.
var ErrDuplicateID = errors.New("duplicate id")
