package stash

import (
	"errors"

	"github.com/aweris/stash/internal/budget"
	"github.com/aweris/stash/internal/fsgate"
)

var (
	ErrInvalidPath        = errors.New("stash: invalid path")
	ErrNoData             = errors.New("stash: codec produced no data")
	ErrUnsupported        = errors.New("stash: unsupported payload")
	ErrMalformed          = errors.New("stash: malformed payload")
	ErrDuplicateStoreName = errors.New("stash: duplicate store name")
	ErrBlankStoreName     = errors.New("stash: blank store name")

	ErrFileNotFound      = fsgate.ErrNotFound
	ErrNotDirectory      = fsgate.ErrNotDirectory
	ErrFileTooLarge      = budget.ErrFileTooLarge
	ErrBudgetExceeded    = budget.ErrBudgetExceeded
	ErrDirectoryNotFound = budget.ErrDirectoryNotFound
)

// TooLargeError is returned when a single entry reaches a budget.
type TooLargeError = budget.TooLargeError

// EvictionError is returned when eviction could not make room for a write.
// It needs operator attention: everything eviction was willing to delete
// was not enough.
type EvictionError = budget.EvictionError
