package namespace

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"go.starlark.net/starlark"

	"github.com/isdmx/cellbox/sandbox"
)

// CodecVersion is written into every blob. Version 1 blobs, which inline
// every container, still decode.
const CodecVersion = 2

// MaxDepth bounds how deeply nested a serializable value may be
const MaxDepth = 64

// DefaultMaxNodes bounds the number of nodes a single binding may encode to.
// Larger bindings are skipped like unserializable ones.
const DefaultMaxNodes = 1 << 20

type kind uint8

const (
	kindNone kind = iota
	kindBool
	kindInt
	kindFloat
	kindString
	kindBytes
	kindList
	kindTuple
	kindDict
	kindSet
	kindRef
)

// node is the tagged tree a Starlark value is flattened into. Dict items are
// stored as alternating keys and values. Lists, dicts and sets live in the
// document's object table and are referenced by index, so shared and self
// referencing containers keep their identity.
type node struct {
	Kind  kind     `cbor:"k"`
	Bool  bool     `cbor:"b,omitempty"`
	Int   *big.Int `cbor:"i,omitempty"`
	Float float64  `cbor:"f,omitempty"`
	Str   string   `cbor:"s,omitempty"`
	Bytes []byte   `cbor:"y,omitempty"`
	Items []node   `cbor:"l,omitempty"`
	Ref   int      `cbor:"r,omitempty"`
}

type document struct {
	Version  int             `cbor:"v"`
	Objects  []node          `cbor:"o,omitempty"`
	Bindings map[string]node `cbor:"n"`
}

var (
	// ErrUnserializable is returned for values the codec cannot represent
	ErrUnserializable = errors.New("value is not serializable")

	// ErrTooLarge is returned for bindings above the node limit
	ErrTooLarge = errors.New("value is too large to serialize")
)

// Codec converts namespaces to and from CBOR blobs
type Codec struct {
	enc      cbor.EncMode
	dec      cbor.DecMode
	maxNodes int
}

// NewCodec creates a codec with canonical map ordering
func NewCodec() *Codec {
	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder options: %v", err))
	}
	dec, err := cbor.DecOptions{MaxNestedLevels: 4*MaxDepth + 8}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder options: %v", err))
	}
	return &Codec{enc: enc, dec: dec, maxNodes: DefaultMaxNodes}
}

// Encode serializes every binding it can represent and returns the names of
// the bindings it skipped, in sorted order.
func (c *Codec) Encode(ns sandbox.Namespace) ([]byte, []string, error) {
	e := newEncoder(c.maxNodes)
	bindings := make(map[string]node, len(ns))

	var skipped []string
	for _, name := range ns.Names() {
		n, err := e.binding(ns[name])
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		bindings[name] = n
	}

	doc := document{Version: CodecVersion, Objects: e.objects, Bindings: bindings}
	blob, err := c.enc.Marshal(doc)
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to encode namespace: %w", err)
	}
	return blob, skipped, nil
}

// Decode restores a namespace. An empty blob yields an empty namespace.
func (c *Codec) Decode(blob []byte) (sandbox.Namespace, error) {
	ns := sandbox.Namespace{}
	if len(blob) == 0 {
		return ns, nil
	}

	var doc document
	if err := c.dec.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode namespace: %w", err)
	}
	if doc.Version < 1 || doc.Version > CodecVersion {
		return nil, fmt.Errorf("unsupported namespace version %d", doc.Version)
	}

	d, err := newDecoder(doc.Objects)
	if err != nil {
		return nil, err
	}
	for name, n := range doc.Bindings {
		value, err := d.value(n)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
		ns[name] = value
	}
	return ns, nil
}

// Serializable reports whether the codec can represent v
func Serializable(v starlark.Value) bool {
	_, err := newEncoder(DefaultMaxNodes).binding(v)
	return err == nil
}

type encoder struct {
	objects  []node
	ids      map[starlark.Value]int
	maxNodes int

	// state of the binding being encoded, rolled back when it fails
	added []starlark.Value
	nodes int
}

func newEncoder(maxNodes int) *encoder {
	return &encoder{ids: make(map[starlark.Value]int), maxNodes: maxNodes}
}

// binding encodes one top level value. On failure every object it added is
// removed again so later bindings cannot reference a half written one.
func (e *encoder) binding(v starlark.Value) (node, error) {
	mark := len(e.objects)
	e.added = e.added[:0]
	e.nodes = 0

	n, err := e.value(v, 0)
	if err != nil {
		e.objects = e.objects[:mark]
		for _, obj := range e.added {
			delete(e.ids, obj)
		}
		return node{}, err
	}
	return n, nil
}

func (e *encoder) value(v starlark.Value, depth int) (node, error) {
	if depth > MaxDepth {
		return node{}, fmt.Errorf("%w: nested deeper than %d", ErrUnserializable, MaxDepth)
	}
	e.nodes++
	if e.nodes > e.maxNodes {
		return node{}, fmt.Errorf("%w: more than %d nodes", ErrTooLarge, e.maxNodes)
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return node{Kind: kindNone}, nil
	case starlark.Bool:
		return node{Kind: kindBool, Bool: bool(v)}, nil
	case starlark.Int:
		return node{Kind: kindInt, Int: v.BigInt()}, nil
	case starlark.Float:
		return node{Kind: kindFloat, Float: float64(v)}, nil
	case starlark.String:
		return node{Kind: kindString, Str: string(v)}, nil
	case starlark.Bytes:
		return node{Kind: kindBytes, Bytes: []byte(v)}, nil
	case starlark.Tuple:
		items, err := e.values(v, v.Len(), depth)
		return node{Kind: kindTuple, Items: items}, err
	case *starlark.List, *starlark.Dict, *starlark.Set:
		return e.object(v, depth)
	default:
		return node{}, fmt.Errorf("%w: %s", ErrUnserializable, v.Type())
	}
}

// object writes a mutable container into the object table on first sight
// and returns a reference to it
func (e *encoder) object(v starlark.Value, depth int) (node, error) {
	if id, ok := e.ids[v]; ok {
		return node{Kind: kindRef, Ref: id}, nil
	}

	// Registered before its items so cycles resolve to the same entry.
	id := len(e.objects)
	e.objects = append(e.objects, node{})
	e.ids[v] = id
	e.added = append(e.added, v)

	var (
		n   node
		err error
	)
	switch v := v.(type) {
	case *starlark.List:
		n.Kind = kindList
		n.Items, err = e.values(v, v.Len(), depth)
	case *starlark.Set:
		n.Kind = kindSet
		n.Items, err = e.iterate(v, v.Len(), depth)
	case *starlark.Dict:
		n.Kind = kindDict
		n.Items = make([]node, 0, 2*v.Len())
		for _, kv := range v.Items() {
			var k, val node
			if k, err = e.value(kv[0], depth+1); err != nil {
				break
			}
			if val, err = e.value(kv[1], depth+1); err != nil {
				break
			}
			n.Items = append(n.Items, k, val)
		}
	}
	if err != nil {
		return node{}, err
	}

	e.objects[id] = n
	return node{Kind: kindRef, Ref: id}, nil
}

func (e *encoder) values(seq starlark.Indexable, n, depth int) ([]node, error) {
	items := make([]node, 0, n)
	for i := range n {
		item, err := e.value(seq.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *encoder) iterate(seq starlark.Iterable, n, depth int) ([]node, error) {
	items := make([]node, 0, n)
	iter := seq.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		item, err := e.value(x, depth+1)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type decoder struct {
	objects []starlark.Value
}

// newDecoder creates every table object empty first and fills them
// afterwards, so references between objects and cycles resolve.
func newDecoder(table []node) (*decoder, error) {
	d := &decoder{objects: make([]starlark.Value, len(table))}
	for i, n := range table {
		switch n.Kind {
		case kindList:
			d.objects[i] = starlark.NewList(nil)
		case kindDict:
			d.objects[i] = starlark.NewDict(len(n.Items) / 2)
		case kindSet:
			d.objects[i] = starlark.NewSet(len(n.Items))
		default:
			return nil, fmt.Errorf("object %d: unexpected kind %d", i, n.Kind)
		}
	}

	for i, n := range table {
		if err := d.fill(d.objects[i], n); err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
	}
	return d, nil
}

func (d *decoder) fill(obj starlark.Value, n node) error {
	elems, err := d.values(n.Items)
	if err != nil {
		return err
	}

	switch obj := obj.(type) {
	case *starlark.List:
		for _, e := range elems {
			if err := obj.Append(e); err != nil {
				return err
			}
		}
	case *starlark.Set:
		for _, e := range elems {
			if err := obj.Insert(e); err != nil {
				return err
			}
		}
	case *starlark.Dict:
		if len(elems)%2 != 0 {
			return errors.New("dict with odd number of items")
		}
		for i := 0; i < len(elems); i += 2 {
			if err := obj.SetKey(elems[i], elems[i+1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *decoder) value(n node) (starlark.Value, error) {
	switch n.Kind {
	case kindNone:
		return starlark.None, nil
	case kindBool:
		return starlark.Bool(n.Bool), nil
	case kindInt:
		if n.Int == nil {
			return starlark.MakeInt(0), nil
		}
		return starlark.MakeBigInt(n.Int), nil
	case kindFloat:
		return starlark.Float(n.Float), nil
	case kindString:
		return starlark.String(n.Str), nil
	case kindBytes:
		return starlark.Bytes(n.Bytes), nil
	case kindTuple:
		elems, err := d.values(n.Items)
		if err != nil {
			return nil, err
		}
		return starlark.Tuple(elems), nil
	case kindRef:
		if n.Ref < 0 || n.Ref >= len(d.objects) {
			return nil, fmt.Errorf("reference %d out of range", n.Ref)
		}
		return d.objects[n.Ref], nil
	case kindList:
		list := starlark.NewList(nil)
		return list, d.fill(list, n)
	case kindDict:
		dict := starlark.NewDict(len(n.Items) / 2)
		return dict, d.fill(dict, n)
	case kindSet:
		set := starlark.NewSet(len(n.Items))
		return set, d.fill(set, n)
	default:
		return nil, fmt.Errorf("unknown value kind %d", n.Kind)
	}
}

func (d *decoder) values(nodes []node) ([]starlark.Value, error) {
	values := make([]starlark.Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := d.value(n)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
