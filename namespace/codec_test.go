package namespace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/isdmx/cellbox/sandbox"
)

func mustDict(t *testing.T, kvs ...starlark.Value) *starlark.Dict {
	t.Helper()
	d := starlark.NewDict(len(kvs) / 2)
	for i := 0; i < len(kvs); i += 2 {
		require.NoError(t, d.SetKey(kvs[i], kvs[i+1]))
	}
	return d
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec()

	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	set := starlark.NewSet(2)
	require.NoError(t, set.Insert(starlark.MakeInt(1)))
	require.NoError(t, set.Insert(starlark.String("two")))

	ns := sandbox.Namespace{
		"none":   starlark.None,
		"flag":   starlark.True,
		"zero":   starlark.MakeInt(0),
		"neg":    starlark.MakeInt(-42),
		"huge":   starlark.MakeBigInt(huge),
		"pi":     starlark.Float(3.14159),
		"name":   starlark.String("cellbox"),
		"empty":  starlark.String(""),
		"raw":    starlark.Bytes("\x00\x01"),
		"list":   starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.NewList(nil)}),
		"tuple":  starlark.Tuple{starlark.String("a"), starlark.False},
		"set":    set,
		"nested": mustDict(t, starlark.String("k"), mustDict(t, starlark.Tuple{starlark.MakeInt(1)}, starlark.None)),
	}

	blob, skipped, err := codec.Encode(ns)
	require.NoError(t, err)
	assert.Empty(t, skipped)

	restored, err := codec.Decode(blob)
	require.NoError(t, err)
	require.ElementsMatch(t, ns.Names(), restored.Names())

	for name, want := range ns {
		eq, err := starlark.Equal(want, restored[name])
		require.NoError(t, err, name)
		assert.True(t, eq, "binding %s: want %s, got %s", name, want, restored[name])
		assert.Equal(t, want.Type(), restored[name].Type(), name)
	}
}

func TestCodecSkipsUnserializable(t *testing.T) {
	codec := NewCodec()
	builtin := starlark.NewBuiltin("f", nil)

	ns := sandbox.Namespace{
		"x":       starlark.MakeInt(1),
		"fn":      builtin,
		"wrapped": starlark.NewList([]starlark.Value{builtin}),
	}

	blob, skipped, err := codec.Encode(ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"fn", "wrapped"}, skipped)

	restored, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, restored.Names())
}

func TestCodecSharedValues(t *testing.T) {
	codec := NewCodec()

	t.Run("AliasesKeepIdentity", func(t *testing.T) {
		shared := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
		ns := sandbox.Namespace{
			"a":       shared,
			"b":       shared,
			"inDict":  mustDict(t, starlark.String("k"), shared),
			"inTuple": starlark.Tuple{shared},
		}

		blob, skipped, err := codec.Encode(ns)
		require.NoError(t, err)
		assert.Empty(t, skipped)

		restored, err := codec.Decode(blob)
		require.NoError(t, err)

		a := restored["a"].(*starlark.List)
		assert.Same(t, a, restored["b"])
		inDict, found, err := restored["inDict"].(*starlark.Dict).Get(starlark.String("k"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Same(t, a, inDict)
		assert.Same(t, a, restored["inTuple"].(starlark.Tuple)[0])

		require.NoError(t, a.Append(starlark.MakeInt(2)))
		assert.Equal(t, "[1, 2]", restored["b"].String())
	})

	t.Run("SelfReference", func(t *testing.T) {
		loop := starlark.NewList(nil)
		require.NoError(t, loop.Append(loop))
		dict := starlark.NewDict(1)
		require.NoError(t, dict.SetKey(starlark.String("me"), dict))

		blob, skipped, err := codec.Encode(sandbox.Namespace{"loop": loop, "dict": dict})
		require.NoError(t, err)
		assert.Empty(t, skipped)

		restored, err := codec.Decode(blob)
		require.NoError(t, err)

		restoredLoop := restored["loop"].(*starlark.List)
		require.Equal(t, 1, restoredLoop.Len())
		assert.Same(t, restoredLoop, restoredLoop.Index(0))

		restoredDict := restored["dict"].(*starlark.Dict)
		me, found, err := restoredDict.Get(starlark.String("me"))
		require.NoError(t, err)
		require.True(t, found)
		assert.Same(t, restoredDict, me)
	})

	t.Run("SharedNestingStaysSmall", func(t *testing.T) {
		row := starlark.NewList(nil)
		for range 100 {
			require.NoError(t, row.Append(starlark.MakeInt(0)))
		}
		grid := starlark.NewList(nil)
		cube := starlark.NewList(nil)
		for range 100 {
			require.NoError(t, grid.Append(row))
		}
		for range 100 {
			require.NoError(t, cube.Append(grid))
		}

		blob, skipped, err := codec.Encode(sandbox.Namespace{"a": row, "b": grid, "c": cube})
		require.NoError(t, err)
		assert.Empty(t, skipped)
		assert.Less(t, len(blob), 8*1024)

		restored, err := codec.Decode(blob)
		require.NoError(t, err)
		c := restored["c"].(*starlark.List)
		require.Equal(t, 100, c.Len())
		assert.Same(t, restored["b"], c.Index(99))
	})

	t.Run("FailedBindingRolledBack", func(t *testing.T) {
		inner := starlark.NewList([]starlark.Value{starlark.MakeInt(7)})
		ns := sandbox.Namespace{
			"a_bad":  starlark.NewList([]starlark.Value{inner, starlark.NewBuiltin("f", nil)}),
			"z_good": inner,
		}

		blob, skipped, err := codec.Encode(ns)
		require.NoError(t, err)
		assert.Equal(t, []string{"a_bad"}, skipped)

		restored, err := codec.Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, []string{"z_good"}, restored.Names())
		assert.Equal(t, "[7]", restored["z_good"].String())
	})
}

func TestCodecNodeLimit(t *testing.T) {
	codec := NewCodec()
	codec.maxNodes = 50

	// Tuples are values, so nested tuples expand on every reference.
	leaf := make(starlark.Tuple, 10)
	for i := range leaf {
		leaf[i] = starlark.MakeInt(i)
	}
	nested := starlark.Tuple{leaf, leaf, leaf, leaf, leaf, leaf}

	blob, skipped, err := codec.Encode(sandbox.Namespace{"big": nested, "small": leaf})
	require.NoError(t, err)
	assert.Equal(t, []string{"big"}, skipped)

	restored, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"small"}, restored.Names())
}

func TestCodecCapabilitiesNeverSerialized(t *testing.T) {
	for name, capability := range sandbox.NewStarlarkEvaluator().Capabilities() {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Serializable(capability))
		})
	}
}

func TestCodecDecode(t *testing.T) {
	codec := NewCodec()

	t.Run("EmptyBlob", func(t *testing.T) {
		ns, err := codec.Decode(nil)
		require.NoError(t, err)
		assert.Empty(t, ns)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := codec.Decode([]byte("not cbor at all"))
		require.Error(t, err)
	})

	t.Run("WrongVersion", func(t *testing.T) {
		blob, err := codec.enc.Marshal(document{Version: CodecVersion + 1})
		require.NoError(t, err)

		_, err = codec.Decode(blob)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported namespace version")
	})

	t.Run("Deterministic", func(t *testing.T) {
		ns := sandbox.Namespace{"a": starlark.MakeInt(1), "b": starlark.String("x"), "c": starlark.None}
		first, _, err := codec.Encode(ns)
		require.NoError(t, err)
		second, _, err := codec.Encode(ns)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
