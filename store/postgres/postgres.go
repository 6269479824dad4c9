// Package postgres provides a PostgreSQL store.Store using pgx/v5.
//
// Notebooks and cells live in separate tables; insertion order is kept by
// BIGSERIAL sequence columns. Cell outputs are stored as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Config holds PostgreSQL connection settings
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MigrateOnStart  bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}

// Store is a PostgreSQL backed store.Store
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to the database and optionally applies migrations
func New(ctx context.Context, logger *zap.Logger, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// ListNotebooks returns the user's notebooks in creation order
func (s *Store) ListNotebooks(ctx context.Context, userID string) ([]model.Summary, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT notebook_id, name FROM notebooks WHERE user_id = $1 ORDER BY seq",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notebooks: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Summary, error) {
		var sum model.Summary
		err := row.Scan(&sum.NotebookID, &sum.Name)
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning notebooks: %w", err)
	}
	return summaries, nil
}

// CreateNotebook inserts a notebook unless the name is taken
func (s *Store) CreateNotebook(ctx context.Context, nb *model.Notebook) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notebooks (user_id, notebook_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, nb.UserID, nb.NotebookID, nb.Name, nb.CreatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return store.ErrConflict
		}
		return fmt.Errorf("inserting notebook: %w", err)
	}

	for _, cell := range nb.Cells {
		if err := s.AppendCell(ctx, nb.UserID, nb.NotebookID, cell); err != nil {
			return err
		}
	}
	return nil
}

// GetNotebook returns the notebook with its cells in insertion order
func (s *Store) GetNotebook(ctx context.Context, userID, notebookID string) (*model.Notebook, error) {
	nb := &model.Notebook{UserID: userID, NotebookID: notebookID}

	err := s.pool.QueryRow(ctx,
		"SELECT name, created_at FROM notebooks WHERE user_id = $1 AND notebook_id = $2",
		userID, notebookID,
	).Scan(&nb.Name, &nb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missing(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying notebook: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT cell_id, cell_type, source, output, created_at
		FROM cells
		WHERE user_id = $1 AND notebook_id = $2
		ORDER BY seq
	`, userID, notebookID)
	if err != nil {
		return nil, fmt.Errorf("querying cells: %w", err)
	}

	nb.Cells, err = pgx.CollectRows(rows, scanCell)
	if err != nil {
		return nil, fmt.Errorf("scanning cells: %w", err)
	}
	return nb, nil
}

// AppendCell adds a cell at the end of the notebook
func (s *Store) AppendCell(ctx context.Context, userID, notebookID string, cell model.Cell) error {
	output, err := json.Marshal(cell.Output)
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cells (user_id, notebook_id, cell_id, cell_type, source, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, notebookID, cell.CellID, string(cell.CellType), cell.Source, output, cell.CreatedAt)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return s.missing(ctx, userID)
		}
		return fmt.Errorf("inserting cell: %w", err)
	}
	return nil
}

// DeleteCell removes one cell
func (s *Store) DeleteCell(ctx context.Context, userID, notebookID, cellID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM cells WHERE user_id = $1 AND notebook_id = $2 AND cell_id = $3",
		userID, notebookID, cellID,
	)
	if err != nil {
		return fmt.Errorf("deleting cell: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := s.notebookExists(ctx, userID, notebookID)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrCellNotFound
	}
	return s.missing(ctx, userID)
}

// DeleteNotebook removes the notebook; its cells and namespace go with it
func (s *Store) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM notebooks WHERE user_id = $1 AND notebook_id = $2",
		userID, notebookID,
	)
	if err != nil {
		return fmt.Errorf("deleting notebook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, userID)
	}
	return nil
}

// LoadNamespace returns the notebook's namespace blob, nil if none was saved
func (s *Store) LoadNamespace(ctx context.Context, userID, notebookID string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		"SELECT namespace_blob FROM notebooks WHERE user_id = $1 AND notebook_id = $2",
		userID, notebookID,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missing(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading namespace: %w", err)
	}
	return blob, nil
}

// SaveNamespace replaces the notebook's namespace blob
func (s *Store) SaveNamespace(ctx context.Context, userID, notebookID string, blob []byte) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE notebooks SET namespace_blob = $3 WHERE user_id = $1 AND notebook_id = $2",
		userID, notebookID, blob,
	)
	if err != nil {
		return fmt.Errorf("saving namespace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missing(ctx, userID)
	}
	return nil
}

// HealthCheck verifies database connectivity
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// missing tells a missing user apart from a missing notebook
func (s *Store) missing(ctx context.Context, userID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM notebooks WHERE user_id = $1)",
		userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("querying user: %w", err)
	}
	if exists {
		return store.ErrNotebookNotFound
	}
	return store.ErrUserNotFound
}

func (s *Store) notebookExists(ctx context.Context, userID, notebookID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM notebooks WHERE user_id = $1 AND notebook_id = $2)",
		userID, notebookID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying notebook: %w", err)
	}
	return exists, nil
}

func scanCell(row pgx.CollectableRow) (model.Cell, error) {
	var (
		cell     model.Cell
		cellType string
		output   []byte
	)
	if err := row.Scan(&cell.CellID, &cellType, &cell.Source, &output, &cell.CreatedAt); err != nil {
		return model.Cell{}, err
	}
	cell.CellType = model.CellType(cellType)

	var result sandbox.ExecutionResult
	if err := json.Unmarshal(output, &result); err != nil {
		return model.Cell{}, fmt.Errorf("unmarshaling output of %s: %w", cell.CellID, err)
	}
	cell.Output = result
	return cell, nil
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
