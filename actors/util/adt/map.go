package adt

import (
	"bytes"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/cbor"
	hamt "github.com/filecoin-project/go-hamt-ipld/v3"
	cid "github.com/ipfs/go-cid"
	sha256simd "github.com/minio/sha256-simd"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

// DefaultHamtBitwidth is the bitwidth of every HAMT created by this package.
const DefaultHamtBitwidth = 5

// DefaultHamtOptions configure the hash function and bitwidth of all HAMTs.
var DefaultHamtOptions = []hamt.Option{
	hamt.UseHashFunction(func(input []byte) []byte {
		res := sha256simd.Sum256(input)
		return res[:]
	}),
	hamt.UseTreeBitWidth(DefaultHamtBitwidth),
}

// Map stores key-value pairs in a HAMT.
type Map struct {
	lastCid cid.Cid
	root    *hamt.Node
	store   Store
}

// AsMap interprets a store as a HAMT-based map with root `r`.
func AsMap(s Store, root cid.Cid) (*Map, error) {
	nd, err := hamt.LoadNode(s.Context(), s, root, DefaultHamtOptions...)
	if err != nil {
		return nil, xerrors.Errorf("failed to load hamt node %v: %w", root, err)
	}

	return &Map{
		lastCid: root,
		root:    nd,
		store:   s,
	}, nil
}

// Creates a new map backed by an empty HAMT.
func MakeEmptyMap(s Store) (*Map, error) {
	nd, err := hamt.NewNode(s, DefaultHamtOptions...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create empty hamt: %w", err)
	}
	return &Map{
		lastCid: cid.Undef,
		root:    nd,
		store:   s,
	}, nil
}

// Creates and stores a new empty map, returning its CID.
func StoreEmptyMap(s Store) (cid.Cid, error) {
	m, err := MakeEmptyMap(s)
	if err != nil {
		return cid.Undef, err
	}
	return m.Root()
}

// Returns the root cid of underlying HAMT.
func (m *Map) Root() (cid.Cid, error) {
	if err := m.root.Flush(m.store.Context()); err != nil {
		return cid.Undef, xerrors.Errorf("failed to flush map root %v: %w", m.lastCid, err)
	}

	c, err := m.store.Put(m.store.Context(), m.root)
	if err != nil {
		return cid.Undef, xerrors.Errorf("writing map root object: %w", err)
	}
	m.lastCid = c

	return c, nil
}

// Put adds value `v` with key `k` to the hamt store.
func (m *Map) Put(k abi.Keyer, v cbor.Marshaler) error {
	if err := m.root.Set(m.store.Context(), k.Key(), v); err != nil {
		return xerrors.Errorf("failed to set key %v value %v in node %v: %w", k.Key(), v, m.lastCid, err)
	}
	return nil
}

// Get retrieves the value at `k` into `out`, if the `k` is present and `out` is non-nil.
// Returns whether the key was found.
func (m *Map) Get(k abi.Keyer, out cbor.Unmarshaler) (bool, error) {
	if found, err := m.root.Find(m.store.Context(), k.Key(), out); err != nil {
		return false, xerrors.Errorf("failed to get key %v in node %v: %w", k.Key(), m.lastCid, err)
	} else {
		return found, nil
	}
}

// Has checks for the existence of a key without deserializing its value.
func (m *Map) Has(k abi.Keyer) (bool, error) {
	var discard cbg.Deferred
	if found, err := m.root.Find(m.store.Context(), k.Key(), &discard); err != nil {
		return false, xerrors.Errorf("failed to check key %v in node %v: %w", k.Key(), m.lastCid, err)
	} else {
		return found, nil
	}
}

// Removes the value at `k` from the hamt store, if it exists.
// Returns whether the key was previously present.
func (m *Map) TryDelete(k abi.Keyer) (bool, error) {
	if found, err := m.root.Delete(m.store.Context(), k.Key()); err != nil {
		return false, xerrors.Errorf("failed to delete key %v in node %v: %w", k.Key(), m.lastCid, err)
	} else {
		return found, nil
	}
}

// Removes the value at `k` from the hamt store, expecting it to exist.
func (m *Map) Delete(k abi.Keyer) error {
	if found, err := m.TryDelete(k); err != nil {
		return err
	} else if !found {
		return xerrors.Errorf("failed to find key %v to delete", k.Key())
	}
	return nil
}

// Iterates all entries in the map, deserializing each value in turn into `out` and then
// calling a function with the corresponding key.
// Iteration halts if the function returns an error.
// If the output parameter is nil, deserialization is skipped.
func (m *Map) ForEach(out cbor.Unmarshaler, fn func(key string) error) error {
	return m.root.ForEach(m.store.Context(), func(k string, val *cbg.Deferred) error {
		if out != nil {
			if err := out.UnmarshalCBOR(bytes.NewReader(val.Raw)); err != nil {
				return err
			}
		}
		return fn(k)
	})
}

// Collects all the keys from the map into a slice of strings.
func (m *Map) CollectKeys() (out []string, err error) {
	err = m.ForEach(nil, func(key string) error {
		out = append(out, key)
		return nil
	})
	return
}
