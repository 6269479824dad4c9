// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/cellbox/model"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// NewNotebook builds an empty notebook for the user
func NewNotebook(userID, name string) *model.Notebook {
	return &model.Notebook{
		UserID:     userID,
		NotebookID: model.NewNotebookID(),
		Name:       name,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

// Run exercises a backend against the store contract
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) store.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("ListUnknownUser", func(t *testing.T) {
		s := open(t)
		summaries, err := s.ListNotebooks(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, summaries)
	})

	t.Run("CreateAndListInOrder", func(t *testing.T) {
		s := open(t)
		var want []model.Summary
		for i := range 3 {
			nb := NewNotebook("u", fmt.Sprintf("nb-%d", i))
			require.NoError(t, s.CreateNotebook(ctx, nb))
			want = append(want, nb.Summary())
		}

		got, err := s.ListNotebooks(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("NameConflictPerUser", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateNotebook(ctx, NewNotebook("u", "same")))

		err := s.CreateNotebook(ctx, NewNotebook("u", "same"))
		require.ErrorIs(t, err, store.ErrConflict)

		require.NoError(t, s.CreateNotebook(ctx, NewNotebook("other", "same")))
		require.NoError(t, s.CreateNotebook(ctx, NewNotebook("u", "Same")))
	})

	t.Run("GetNotebook", func(t *testing.T) {
		s := open(t)
		nb := NewNotebook("u", "n")
		require.NoError(t, s.CreateNotebook(ctx, nb))

		got, err := s.GetNotebook(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		assert.Equal(t, nb.NotebookID, got.NotebookID)
		assert.Equal(t, "n", got.Name)
		assert.Equal(t, "u", got.UserID)
		assert.True(t, nb.CreatedAt.Equal(got.CreatedAt))
		assert.Empty(t, got.Cells)

		_, err = s.GetNotebook(ctx, "u", "notebook_missing")
		require.ErrorIs(t, err, store.ErrNotebookNotFound)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetNotebook(ctx, "ghost", nb.NotebookID)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("AppendAndDeleteCells", func(t *testing.T) {
		s := open(t)
		nb := NewNotebook("u", "n")
		require.NoError(t, s.CreateNotebook(ctx, nb))

		now := time.Now().UTC().Truncate(time.Microsecond)
		msg := "fail: boom"
		cells := []model.Cell{
			model.NewCodeCell("x = 10", sandbox.ExecutionResult{}, now),
			model.NewMarkdownCell("# notes", now),
			model.NewCodeCell("print(x)", sandbox.ExecutionResult{
				Text:   "10\n",
				Error:  &msg,
				Images: []string{"data:image/png;base64,AAAA"},
			}, now),
		}
		for _, c := range cells {
			require.NoError(t, s.AppendCell(ctx, "u", nb.NotebookID, c))
		}

		got, err := s.GetNotebook(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		require.Len(t, got.Cells, 3)
		for i, c := range cells {
			assert.Equal(t, c.CellID, got.Cells[i].CellID)
			assert.Equal(t, c.CellType, got.Cells[i].CellType)
			assert.Equal(t, c.Source, got.Cells[i].Source)
			assert.Equal(t, c.Output, got.Cells[i].Output)
		}

		require.NoError(t, s.DeleteCell(ctx, "u", nb.NotebookID, cells[1].CellID))
		err = s.DeleteCell(ctx, "u", nb.NotebookID, cells[1].CellID)
		require.ErrorIs(t, err, store.ErrCellNotFound)

		got, err = s.GetNotebook(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		require.Len(t, got.Cells, 2)
		assert.Equal(t, cells[0].CellID, got.Cells[0].CellID)
		assert.Equal(t, cells[2].CellID, got.Cells[1].CellID)

		err = s.AppendCell(ctx, "u", "notebook_missing", cells[0])
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DeleteNotebook", func(t *testing.T) {
		s := open(t)
		first := NewNotebook("u", "first")
		second := NewNotebook("u", "second")
		third := NewNotebook("u", "third")
		for _, nb := range []*model.Notebook{first, second, third} {
			require.NoError(t, s.CreateNotebook(ctx, nb))
		}

		require.NoError(t, s.DeleteNotebook(ctx, "u", second.NotebookID))
		got, err := s.ListNotebooks(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, []model.Summary{first.Summary(), third.Summary()}, got)

		err = s.DeleteNotebook(ctx, "u", second.NotebookID)
		require.ErrorIs(t, err, store.ErrNotebookNotFound)

		require.NoError(t, s.DeleteNotebook(ctx, "u", first.NotebookID))
		require.NoError(t, s.DeleteNotebook(ctx, "u", third.NotebookID))

		got, err = s.ListNotebooks(ctx, "u")
		require.NoError(t, err)
		assert.Empty(t, got)

		err = s.DeleteNotebook(ctx, "u", third.NotebookID)
		require.ErrorIs(t, err, store.ErrUserNotFound)

		require.NoError(t, s.CreateNotebook(ctx, NewNotebook("u", "first")))
	})

	t.Run("Namespace", func(t *testing.T) {
		s := open(t)
		nb := NewNotebook("u", "n")
		require.NoError(t, s.CreateNotebook(ctx, nb))

		blob, err := s.LoadNamespace(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		assert.Empty(t, blob)

		require.NoError(t, s.SaveNamespace(ctx, "u", nb.NotebookID, []byte{1, 2, 3}))
		blob, err = s.LoadNamespace(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, blob)

		_, err = s.LoadNamespace(ctx, "u", "notebook_missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		err = s.SaveNamespace(ctx, "u", "notebook_missing", []byte{1})
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.DeleteNotebook(ctx, "u", nb.NotebookID))
		_, err = s.LoadNamespace(ctx, "u", nb.NotebookID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := open(t)
		nb := NewNotebook("u", "n")
		require.NoError(t, s.CreateNotebook(ctx, nb))

		const writers = 10
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				cell := model.NewMarkdownCell("note", time.Now())
				assert.NoError(t, s.AppendCell(ctx, "u", nb.NotebookID, cell))
			}()
		}
		wg.Wait()

		got, err := s.GetNotebook(ctx, "u", nb.NotebookID)
		require.NoError(t, err)
		assert.Len(t, got.Cells, writers)
	})
}
