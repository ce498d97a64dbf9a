package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrRootMissing is returned when the source or destination root does not exist.
	ErrRootMissing = errors.New("root not found")
	// ErrRootNotDir is returned when a root exists but is not a directory.
	ErrRootNotDir = errors.New("root is not a directory")
	// ErrRootsOverlap is returned when one root lies inside the other.
	ErrRootsOverlap = errors.New("roots overlap")

	ErrCreateDir = errors.New("create directory failed")
	ErrCopy      = errors.New("copy failed")
	ErrList      = errors.New("list failed")
	ErrRemove    = errors.New("remove failed")
)

// RootMissingError identifies which root is missing.
type RootMissingError struct {
	Role string // "source" or "destination"
	Path string
}

func (e *RootMissingError) Error() string {
	return fmt.Sprintf("%s root not found: %s", e.Role, e.Path)
}

func (e *RootMissingError) Unwrap() error { return ErrRootMissing }

// OpError records a fatal filesystem failure during traversal.
// Kind is one of ErrCreateDir, ErrCopy, ErrList or ErrRemove.
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() []error { return []error{e.Kind, e.Err} }
