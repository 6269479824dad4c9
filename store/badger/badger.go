// Package badger provides a store.Store on top of an embedded BadgerDB.
//
// Each user is one JSON document under the key "user/<id>" holding their
// notebooks in creation order together with each notebook's namespace blob.
// Writes are read-modify-write transactions retried on conflict.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/store"
)

// Defaults for the value log garbage collector
const (
	DefaultGCInterval     = 5 * time.Minute
	DefaultGCDiscardRatio = 0.5
	maxConflictRetries    = 16
	dirPermission         = 0o750
)

// UserKeyPrefix prefixes every user document key
const UserKeyPrefix = "user/"

// Config holds configuration for the badger store
type Config struct {
	// Path is ignored when InMemory is set
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
}

type storedNotebook struct {
	model.Notebook
	Namespace []byte `json:"namespace_blob,omitempty"`
}

type userDoc struct {
	UserID    string           `json:"user_id"`
	Notebooks []storedNotebook `json:"notebooks"`
}

func (d *userDoc) index(notebookID string) int {
	return slices.IndexFunc(d.Notebooks, func(nb storedNotebook) bool {
		return nb.NotebookID == notebookID
	})
}

func (d *userDoc) notebook(notebookID string) (*storedNotebook, error) {
	if len(d.Notebooks) == 0 {
		return nil, store.ErrUserNotFound
	}
	i := d.index(notebookID)
	if i < 0 {
		return nil, store.ErrNotebookNotFound
	}
	return &d.Notebooks[i], nil
}

// Store is a BadgerDB backed store.Store
type Store struct {
	db     *badger.DB
	logger *zap.Logger
	stopGC chan struct{}
	gcDone chan struct{}
}

var _ store.Store = (*Store)(nil)

// zapLogger adapts zap to BadgerDB's Logger interface
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...any)    { l.sugar.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...any)   { l.sugar.Debugf(format, args...) }

// Open opens the database and starts value log garbage collection for
// persistent databases
func Open(logger *zap.Logger, cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, dirPermission); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(zapLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, logger: logger}

	if !cfg.InMemory {
		interval := cfg.GCInterval
		if interval <= 0 {
			interval = DefaultGCInterval
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(interval)
	}

	return s, nil
}

// ListNotebooks returns the user's notebooks in creation order
func (s *Store) ListNotebooks(_ context.Context, userID string) ([]model.Summary, error) {
	var summaries []model.Summary
	err := s.db.View(func(txn *badger.Txn) error {
		doc, err := readUser(txn, userID)
		if err != nil {
			return err
		}
		summaries = make([]model.Summary, 0, len(doc.Notebooks))
		for i := range doc.Notebooks {
			summaries = append(summaries, doc.Notebooks[i].Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// CreateNotebook adds a notebook unless the name is taken
func (s *Store) CreateNotebook(_ context.Context, nb *model.Notebook) error {
	return s.update(nb.UserID, func(doc *userDoc) error {
		for i := range doc.Notebooks {
			if doc.Notebooks[i].Name == nb.Name {
				return store.ErrConflict
			}
		}
		stored := storedNotebook{Notebook: *nb}
		stored.Cells = slices.Clone(nb.Cells)
		doc.Notebooks = append(doc.Notebooks, stored)
		return nil
	})
}

// GetNotebook returns the notebook without its namespace blob
func (s *Store) GetNotebook(_ context.Context, userID, notebookID string) (*model.Notebook, error) {
	var out *model.Notebook
	err := s.db.View(func(txn *badger.Txn) error {
		doc, err := readUser(txn, userID)
		if err != nil {
			return err
		}
		nb, err := doc.notebook(notebookID)
		if err != nil {
			return err
		}
		out = &nb.Notebook
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendCell adds a cell at the end of the notebook
func (s *Store) AppendCell(_ context.Context, userID, notebookID string, cell model.Cell) error {
	return s.update(userID, func(doc *userDoc) error {
		nb, err := doc.notebook(notebookID)
		if err != nil {
			return err
		}
		nb.Cells = append(nb.Cells, cell)
		return nil
	})
}

// DeleteCell removes one cell, keeping the order of the rest
func (s *Store) DeleteCell(_ context.Context, userID, notebookID, cellID string) error {
	return s.update(userID, func(doc *userDoc) error {
		nb, err := doc.notebook(notebookID)
		if err != nil {
			return err
		}
		i := nb.CellIndex(cellID)
		if i < 0 {
			return store.ErrCellNotFound
		}
		nb.Cells = slices.Delete(nb.Cells, i, i+1)
		return nil
	})
}

// DeleteNotebook removes the notebook. The user document is deleted with
// the last notebook.
func (s *Store) DeleteNotebook(_ context.Context, userID, notebookID string) error {
	return s.update(userID, func(doc *userDoc) error {
		if _, err := doc.notebook(notebookID); err != nil {
			return err
		}
		i := doc.index(notebookID)
		doc.Notebooks = slices.Delete(doc.Notebooks, i, i+1)
		return nil
	})
}

// LoadNamespace returns the notebook's namespace blob, nil if none was saved
func (s *Store) LoadNamespace(_ context.Context, userID, notebookID string) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		doc, err := readUser(txn, userID)
		if err != nil {
			return err
		}
		nb, err := doc.notebook(notebookID)
		if err != nil {
			return err
		}
		blob = nb.Namespace
		return nil
	})
	return blob, err
}

// SaveNamespace replaces the notebook's namespace blob
func (s *Store) SaveNamespace(_ context.Context, userID, notebookID string, blob []byte) error {
	return s.update(userID, func(doc *userDoc) error {
		nb, err := doc.notebook(notebookID)
		if err != nil {
			return err
		}
		nb.Namespace = slices.Clone(blob)
		return nil
	})
}

// Close stops garbage collection and closes the database
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}
	return s.db.Close()
}

func userKey(userID string) []byte {
	return []byte(UserKeyPrefix + userID)
}

func readUser(txn *badger.Txn, userID string) (*userDoc, error) {
	doc := &userDoc{UserID: userID}

	item, err := txn.Get(userKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user %s: %w", userID, err)
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return doc, nil
}

// update applies fn to the user's document inside a write transaction,
// retrying when a concurrent transaction committed first
func (s *Store) update(userID string, fn func(doc *userDoc) error) error {
	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			doc, err := readUser(txn, userID)
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}

			if len(doc.Notebooks) == 0 {
				return txn.Delete(userKey(userID))
			}

			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode user %s: %w", userID, err)
			}
			return txn.Set(userKey(userID), data)
		})

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			s.logger.Debug("Retrying conflicting transaction",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return err
	}
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(DefaultGCDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("Badger value log GC failed", zap.Error(err))
			}
		}
	}
}
