package tasks

import "github.com/pkg/errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("task not found")
)
