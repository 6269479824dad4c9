// Package store persists users' notebooks, their ordered cells and the
// encoded namespace of each notebook.
//
// Implementations live in subpackages: memory (process maps), badger (one
// document per user in an embedded key-value store) and postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/isdmx/cellbox/model"
)

// Sentinel errors for storage operations
var (
	// ErrNotFound is wrapped by every lookup miss
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a user already has a notebook with the name
	ErrConflict = errors.New("notebook name already exists")
)

// Lookup misses, each wrapping ErrNotFound
var (
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrNotebookNotFound = fmt.Errorf("notebook %w", ErrNotFound)
	ErrCellNotFound     = fmt.Errorf("cell %w", ErrNotFound)
)

// Store is the persistence contract shared by all backends
type Store interface {
	// ListNotebooks returns the user's notebooks in creation order. An
	// unknown user has none.
	ListNotebooks(ctx context.Context, userID string) ([]model.Summary, error)

	// CreateNotebook adds a notebook, failing with ErrConflict when the user
	// already has one with the same name.
	CreateNotebook(ctx context.Context, nb *model.Notebook) error

	GetNotebook(ctx context.Context, userID, notebookID string) (*model.Notebook, error)

	AppendCell(ctx context.Context, userID, notebookID string, cell model.Cell) error

	DeleteCell(ctx context.Context, userID, notebookID, cellID string) error

	// DeleteNotebook removes the notebook and its namespace. The user record
	// goes away with their last notebook.
	DeleteNotebook(ctx context.Context, userID, notebookID string) error

	LoadNamespace(ctx context.Context, userID, notebookID string) ([]byte, error)

	SaveNamespace(ctx context.Context, userID, notebookID string, blob []byte) error

	Close() error
}
