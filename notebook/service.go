package notebook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/namespace"
	"github.com/isdmx/cellbox/observability"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store"
)

// Validation errors
var (
	ErrUserIDRequired     = errors.New("user id is required")
	ErrNotebookIDRequired = errors.New("notebook id is required")
	ErrCellIDRequired     = errors.New("cell id is required")
	ErrCodeRequired       = errors.New("code is required")
	ErrContentRequired    = errors.New("markdown content is required")
)

// Runner executes a snippet against a namespace
type Runner interface {
	Execute(ctx context.Context, source string, ns sandbox.Namespace) sandbox.ExecutionResult
}

// Service coordinates the store, the namespace lifecycle and the executor
type Service struct {
	logger    *zap.Logger
	store     store.Store
	lifecycle namespace.Lifecycle
	runner    Runner
	now       func() time.Time
}

// NewService creates a notebook service
func NewService(logger *zap.Logger, st store.Store, lifecycle namespace.Lifecycle, runner Runner) *Service {
	return &Service{
		logger:    logger.Named("notebook"),
		store:     st,
		lifecycle: lifecycle,
		runner:    runner,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewFromExecutor adapts the fx graph, which provides a concrete executor
func NewFromExecutor(logger *zap.Logger, st store.Store, lifecycle namespace.Lifecycle, executor *sandbox.Executor) *Service {
	return NewService(logger, st, lifecycle, executor)
}

// ListNotebooks returns the user's notebooks in creation order
func (s *Service) ListNotebooks(ctx context.Context, userID string) ([]model.Summary, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	summaries, err := s.store.ListNotebooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []model.Summary{}
	}
	return summaries, nil
}

// CreateNotebook creates an empty notebook. An empty name is replaced by a
// name derived from the new notebook's ID.
func (s *Service) CreateNotebook(ctx context.Context, userID, name string) (*model.Notebook, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	nb := &model.Notebook{
		UserID:     userID,
		NotebookID: model.NewNotebookID(),
		Name:       name,
		CreatedAt:  s.now(),
		Cells:      []model.Cell{},
	}
	if nb.Name == "" {
		nb.Name = model.DefaultName(nb.NotebookID)
	}

	if err := s.store.CreateNotebook(ctx, nb); err != nil {
		return nil, err
	}
	observability.NotebooksTotal.WithLabelValues("create").Inc()

	s.logger.Info("Notebook created",
		zap.String("user_id", userID),
		zap.String("notebook_id", nb.NotebookID),
		zap.String("name", nb.Name))
	return nb, nil
}

// GetNotebook returns the notebook with its cells in insertion order
func (s *Service) GetNotebook(ctx context.Context, userID, notebookID string) (*model.Notebook, error) {
	if err := requireIDs(userID, notebookID); err != nil {
		return nil, err
	}
	nb, err := s.store.GetNotebook(ctx, userID, notebookID)
	if err != nil {
		return nil, err
	}
	if nb.Cells == nil {
		nb.Cells = []model.Cell{}
	}
	return nb, nil
}

// Execute runs code against the notebook's namespace and appends the code
// cell with its result. A failing snippet is not an error: its failure is
// part of the returned result and of the recorded cell.
func (s *Service) Execute(ctx context.Context, userID, notebookID, code string) (sandbox.ExecutionResult, error) {
	if err := requireIDs(userID, notebookID); err != nil {
		return sandbox.ExecutionResult{}, err
	}
	if code == "" {
		return sandbox.ExecutionResult{}, ErrCodeRequired
	}

	if _, err := s.store.GetNotebook(ctx, userID, notebookID); err != nil {
		return sandbox.ExecutionResult{}, err
	}

	start := time.Now()
	key := namespace.Key{UserID: userID, NotebookID: notebookID}

	var result sandbox.ExecutionResult
	err := s.lifecycle.Run(ctx, key, func(ns sandbox.Namespace) error {
		result = s.runner.Execute(ctx, code, ns)
		cell := model.NewCodeCell(code, result, s.now())
		if err := s.store.AppendCell(ctx, userID, notebookID, cell); err != nil {
			return fmt.Errorf("failed to record cell: %w", err)
		}
		return nil
	})
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}

	outcome := observability.OutcomeOK
	switch {
	case result.ErrorMessage() == sandbox.InputDisabledMessage:
		outcome = observability.OutcomeRejected
	case result.Failed():
		outcome = observability.OutcomeError
	}
	observability.ObserveExecution(outcome, len(result.Images), time.Since(start))

	s.logger.Debug("Cell executed",
		zap.Stringer("notebook", key),
		zap.String("outcome", outcome),
		zap.Int("text_len", len(result.Text)),
		zap.Int("images", len(result.Images)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// SaveMarkdown appends a markdown cell. Markdown is never executed.
func (s *Service) SaveMarkdown(ctx context.Context, userID, notebookID, content string) (model.Cell, error) {
	if err := requireIDs(userID, notebookID); err != nil {
		return model.Cell{}, err
	}
	if content == "" {
		return model.Cell{}, ErrContentRequired
	}

	cell := model.NewMarkdownCell(content, s.now())
	if err := s.store.AppendCell(ctx, userID, notebookID, cell); err != nil {
		return model.Cell{}, err
	}
	return cell, nil
}

// DeleteCell removes a cell. Bindings the cell created stay in the namespace.
func (s *Service) DeleteCell(ctx context.Context, userID, notebookID, cellID string) error {
	if err := requireIDs(userID, notebookID); err != nil {
		return err
	}
	if cellID == "" {
		return ErrCellIDRequired
	}
	return s.store.DeleteCell(ctx, userID, notebookID, cellID)
}

// DeleteNotebook removes the notebook and forgets its namespace
func (s *Service) DeleteNotebook(ctx context.Context, userID, notebookID string) error {
	if err := requireIDs(userID, notebookID); err != nil {
		return err
	}
	if err := s.store.DeleteNotebook(ctx, userID, notebookID); err != nil {
		return err
	}
	observability.NotebooksTotal.WithLabelValues("delete").Inc()

	key := namespace.Key{UserID: userID, NotebookID: notebookID}
	if err := s.lifecycle.Discard(ctx, key); err != nil {
		s.logger.Warn("Failed to discard namespace", zap.Stringer("notebook", key), zap.Error(err))
	}

	s.logger.Info("Notebook deleted", zap.Stringer("notebook", key))
	return nil
}

// Export renders the notebook as an nbformat 4.5 document and returns the
// download file name with it
func (s *Service) Export(ctx context.Context, userID, notebookID string) (string, []byte, error) {
	nb, err := s.GetNotebook(ctx, userID, notebookID)
	if err != nil {
		return "", nil, err
	}
	data, err := Export(nb)
	if err != nil {
		return "", nil, err
	}
	return FileName(nb), data, nil
}

func requireIDs(userID, notebookID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if notebookID == "" {
		return ErrNotebookIDRequired
	}
	return nil
}

// IsValidation reports whether err rejects the request's input
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUserIDRequired,
		ErrNotebookIDRequired,
		ErrCellIDRequired,
		ErrCodeRequired,
		ErrContentRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
