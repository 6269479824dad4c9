package namespace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/sandbox"
)

// MockBlobStore implements BlobStore for testing
type MockBlobStore struct {
	mu      sync.Mutex
	blobs   map[Key][]byte
	loadErr error
	saveErr error
	saves   int
}

func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{blobs: make(map[Key][]byte)}
}

func (m *MockBlobStore) LoadNamespace(_ context.Context, userID, notebookID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.blobs[Key{UserID: userID, NotebookID: notebookID}], nil
}

func (m *MockBlobStore) SaveNamespace(_ context.Context, userID, notebookID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.blobs[Key{UserID: userID, NotebookID: notebookID}] = blob
	return nil
}

func TestDurableLifecycle(t *testing.T) {
	ctx := context.Background()
	key := Key{UserID: "u", NotebookID: "n"}

	t.Run("SurvivesNewInstance", func(t *testing.T) {
		blobs := NewMockBlobStore()

		first := NewDurable(zaptest.NewLogger(t), blobs)
		require.NoError(t, first.Run(ctx, key, func(ns sandbox.Namespace) error {
			ns["x"] = starlark.MakeInt(10)
			ns["fn"] = starlark.NewBuiltin("fn", nil)
			return nil
		}))

		second := NewDurable(zaptest.NewLogger(t), blobs)
		require.NoError(t, second.Run(ctx, key, func(ns sandbox.Namespace) error {
			assert.Equal(t, []string{"x"}, ns.Names())
			return nil
		}))
	})

	t.Run("WithExecutor", func(t *testing.T) {
		blobs := NewMockBlobStore()
		lc := NewDurable(zaptest.NewLogger(t), blobs)
		executor := sandbox.NewExecutor(zaptest.NewLogger(t), &sandbox.Config{TimeoutSec: 5})

		var result sandbox.ExecutionResult
		for _, src := range []string{"x = 10", "y = x * 2", "print(y)"} {
			require.NoError(t, lc.Run(ctx, key, func(ns sandbox.Namespace) error {
				result = executor.Execute(ctx, src, ns)
				return nil
			}))
		}
		assert.Equal(t, "20\n", result.Text)
		assert.False(t, result.Failed())
	})

	t.Run("SharedValuesMatchMemory", func(t *testing.T) {
		executor := sandbox.NewExecutor(zaptest.NewLogger(t), &sandbox.Config{TimeoutSec: 5})
		cells := []string{
			"a = [1]\nb = a\nloop = []\nloop.append(loop)",
			"b.append(2)",
			"print(a)\nprint(len(loop[0][0][0]))",
		}

		lifecycles := map[string]Lifecycle{
			"memory":  NewMemory(zaptest.NewLogger(t), time.Minute, time.Minute),
			"durable": NewDurable(zaptest.NewLogger(t), NewMockBlobStore()),
		}
		outputs := make(map[string]string, len(lifecycles))
		for name, lc := range lifecycles {
			var result sandbox.ExecutionResult
			for _, src := range cells {
				require.NoError(t, lc.Run(ctx, key, func(ns sandbox.Namespace) error {
					result = executor.Execute(ctx, src, ns)
					return nil
				}))
				require.False(t, result.Failed(), "%s: %s", name, result.ErrorMessage())
			}
			outputs[name] = result.Text
		}

		assert.Equal(t, "[1, 2]\n1\n", outputs["durable"])
		assert.Equal(t, outputs["memory"], outputs["durable"])
	})

	t.Run("PersistsOnFnError", func(t *testing.T) {
		blobs := NewMockBlobStore()
		lc := NewDurable(zaptest.NewLogger(t), blobs)
		boom := errors.New("boom")

		err := lc.Run(ctx, key, func(ns sandbox.Namespace) error {
			ns["a"] = starlark.True
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, blobs.saves)
	})

	t.Run("UndecodableBlobDegrades", func(t *testing.T) {
		blobs := NewMockBlobStore()
		blobs.blobs[key] = []byte{0xff, 0x00}
		lc := NewDurable(zaptest.NewLogger(t), blobs)

		require.NoError(t, lc.Run(ctx, key, func(ns sandbox.Namespace) error {
			assert.Empty(t, ns)
			ns["fresh"] = starlark.True
			return nil
		}))

		restored, err := NewCodec().Decode(blobs.blobs[key])
		require.NoError(t, err)
		assert.Contains(t, restored, "fresh")
	})

	t.Run("LoadError", func(t *testing.T) {
		blobs := NewMockBlobStore()
		blobs.loadErr = errors.New("store down")
		lc := NewDurable(zaptest.NewLogger(t), blobs)

		called := false
		err := lc.Run(ctx, key, func(sandbox.Namespace) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, blobs.loadErr)
		assert.False(t, called)
	})

	t.Run("SaveError", func(t *testing.T) {
		blobs := NewMockBlobStore()
		blobs.saveErr = errors.New("disk full")
		lc := NewDurable(zaptest.NewLogger(t), blobs)

		err := lc.Run(ctx, key, func(sandbox.Namespace) error { return nil })
		require.ErrorIs(t, err, blobs.saveErr)
	})

	t.Run("Discard", func(t *testing.T) {
		lc := NewDurable(zaptest.NewLogger(t), NewMockBlobStore())
		require.NoError(t, lc.Discard(ctx, key))
	})
}

func TestNew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Memory", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Strategy: config.StrategyMemory, Timeout: 1, SweepInterval: 1}}
		lc, err := New(logger, cfg, nil)
		require.NoError(t, err)
		assert.IsType(t, &MemoryLifecycle{}, lc)
	})

	t.Run("Durable", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Strategy: config.StrategyDurable}}
		lc, err := New(logger, cfg, NewMockBlobStore())
		require.NoError(t, err)
		assert.IsType(t, &DurableLifecycle{}, lc)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := &config.Config{Session: config.SessionConfig{Strategy: "redis"}}
		_, err := New(logger, cfg, nil)
		require.Error(t, err)
	})
}
