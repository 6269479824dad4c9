package badger

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/cellbox/store"
	"github.com/isdmx/cellbox/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(zaptest.NewLogger(t), Config{InMemory: true})
		require.NoError(t, err)
		return s
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	s, err := Open(logger, Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)

	nb := storetest.NewNotebook("u", "durable")
	require.NoError(t, s.CreateNotebook(ctx, nb))
	require.NoError(t, s.SaveNamespace(ctx, "u", nb.NotebookID, []byte("blob")))
	require.NoError(t, s.Close())

	reopened, err := Open(logger, Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	summaries, err := reopened.ListNotebooks(ctx, "u")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "durable", summaries[0].Name)

	blob, err := reopened.LoadNamespace(ctx, "u", nb.NotebookID)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), blob)
}

func TestUserDocumentRemovedWithLastNotebook(t *testing.T) {
	ctx := context.Background()
	s, err := Open(zaptest.NewLogger(t), Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	nb := storetest.NewNotebook("u", "only")
	require.NoError(t, s.CreateNotebook(ctx, nb))
	require.NoError(t, s.DeleteNotebook(ctx, "u", nb.NotebookID))

	err = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey("u"))
		return err
	})
	require.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(zaptest.NewLogger(t), Config{})
	require.Error(t, err)
}
