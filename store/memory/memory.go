// Package memory provides an in-process store.Store. Everything is lost on
// restart.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/store"
)

type record struct {
	notebook *model.Notebook
	blob     []byte
}

// Store keeps each user's notebooks in creation order
type Store struct {
	mu    sync.RWMutex
	users map[string][]*record
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	return &Store{users: make(map[string][]*record)}
}

// ListNotebooks returns the user's notebooks in creation order
func (s *Store) ListNotebooks(_ context.Context, userID string) ([]model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.users[userID]
	summaries := make([]model.Summary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, r.notebook.Summary())
	}
	return summaries, nil
}

// CreateNotebook adds a notebook unless the name is taken
func (s *Store) CreateNotebook(_ context.Context, nb *model.Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.users[nb.UserID] {
		if r.notebook.Name == nb.Name {
			return store.ErrConflict
		}
	}
	s.users[nb.UserID] = append(s.users[nb.UserID], &record{notebook: clone(nb)})
	return nil
}

// GetNotebook returns a copy of the notebook
func (s *Store) GetNotebook(_ context.Context, userID, notebookID string) (*model.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, _, err := s.find(userID, notebookID)
	if err != nil {
		return nil, err
	}
	return clone(r.notebook), nil
}

// AppendCell adds a cell at the end of the notebook
func (s *Store) AppendCell(_ context.Context, userID, notebookID string, cell model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.find(userID, notebookID)
	if err != nil {
		return err
	}
	r.notebook.Cells = append(r.notebook.Cells, cell)
	return nil
}

// DeleteCell removes one cell, keeping the order of the rest
func (s *Store) DeleteCell(_ context.Context, userID, notebookID, cellID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.find(userID, notebookID)
	if err != nil {
		return err
	}
	i := r.notebook.CellIndex(cellID)
	if i < 0 {
		return store.ErrCellNotFound
	}
	r.notebook.Cells = slices.Delete(r.notebook.Cells, i, i+1)
	return nil
}

// DeleteNotebook removes the notebook and drops the user with their last one
func (s *Store) DeleteNotebook(_ context.Context, userID, notebookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, i, err := s.find(userID, notebookID)
	if err != nil {
		return err
	}
	records := slices.Delete(s.users[userID], i, i+1)
	if len(records) == 0 {
		delete(s.users, userID)
		return nil
	}
	s.users[userID] = records
	return nil
}

// LoadNamespace returns the notebook's namespace blob, nil if none was saved
func (s *Store) LoadNamespace(_ context.Context, userID, notebookID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, _, err := s.find(userID, notebookID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(r.blob), nil
}

// SaveNamespace replaces the notebook's namespace blob
func (s *Store) SaveNamespace(_ context.Context, userID, notebookID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, _, err := s.find(userID, notebookID)
	if err != nil {
		return err
	}
	r.blob = slices.Clone(blob)
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) find(userID, notebookID string) (*record, int, error) {
	records, ok := s.users[userID]
	if !ok {
		return nil, -1, store.ErrUserNotFound
	}
	for i, r := range records {
		if r.notebook.NotebookID == notebookID {
			return r, i, nil
		}
	}
	return nil, -1, store.ErrNotebookNotFound
}

func clone(nb *model.Notebook) *model.Notebook {
	out := *nb
	out.Cells = slices.Clone(nb.Cells)
	return &out
}
