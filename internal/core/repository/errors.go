package repository

import "github.com/pkg/errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrDuplicateEvent = errors.New("duplicate event key")
)
