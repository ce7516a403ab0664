package adt

import (
	"bytes"
	"io"
	"sort"

	cid "github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Keyer is implemented by every type used as a Map key, mirroring
// actors/util/adt.Keyer in the teacher package.
type Keyer interface {
	Key() string
}

type StringKey string

func (k StringKey) Key() string { return string(k) }

// entry is one key/value pair inside a Map's serialized node, encoded
// by hand (cbor_gen.go-style) so Map never depends on reflection-based
// CBOR.
type entry struct {
	Key string
	Val []byte
}

func (e *entry) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajTextString, uint64(len(e.Key))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, e.Key); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(e.Val))); err != nil {
		return err
	}
	_, err := w.Write(e.Val)
	return err
}

func (e *entry) UnmarshalCBOR(r io.Reader) error {
	if _, _, err := cbg.CborReadHeader(r); err != nil {
		return errors.Wrap(err, "adt entry: read array header")
	}
	_, kl, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "adt entry: read key header")
	}
	kbuf := make([]byte, kl)
	if _, err := io.ReadFull(r, kbuf); err != nil {
		return errors.Wrap(err, "adt entry: read key")
	}
	_, vl, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "adt entry: read value header")
	}
	vbuf := make([]byte, vl)
	if vl > 0 {
		if _, err := io.ReadFull(r, vbuf); err != nil {
			return errors.Wrap(err, "adt entry: read value")
		}
	}
	e.Key = string(kbuf)
	e.Val = vbuf
	return nil
}

// node is the flat association-table backing a Map, CBOR-encoded and
// content-addressed the way a HAMT node would be, without the trie
// structure (see DESIGN.md "Dropped teacher dependencies").
type node struct {
	Entries []entry
}

func (n *node) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(n.Entries))); err != nil {
		return err
	}
	for i := range n.Entries {
		if err := n.Entries[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) UnmarshalCBOR(r io.Reader) error {
	_, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return err
	}
	n.Entries = make([]entry, 0, l)
	for i := uint64(0); i < l; i++ {
		var e entry
		if err := e.UnmarshalCBOR(r); err != nil {
			return err
		}
		n.Entries = append(n.Entries, e)
	}
	return nil
}

func (n *node) find(key string) int {
	return sort.Search(len(n.Entries), func(i int) bool { return n.Entries[i].Key >= key })
}

// Map is a typed, content-addressed key/value collection, standing in
// for the HAMT adt.Map the teacher package builds via adt.MakeEmptyMap
// (see util/adt/store.go and DESIGN.md). Root() persists the current
// node and returns its CID; Map is not safe for concurrent use, which
// matches the single-threaded-per-transaction model of spec.md §5.
type Map struct {
	store Store
	n     *node
}

func NewMap(store Store) *Map {
	return &Map{store: store, n: &node{}}
}

func AsMap(store Store, root cid.Cid) (*Map, error) {
	var n node
	if err := store.Get(store.Context(), root, &n); err != nil {
		return nil, errors.Wrap(err, "adt.Map: load root")
	}
	return &Map{store: store, n: &n}, nil
}

func (m *Map) Root() (cid.Cid, error) {
	return m.store.Put(m.store.Context(), m.n)
}

func (m *Map) Put(key Keyer, value CBORMarshaler) error {
	var buf bytes.Buffer
	if err := value.MarshalCBOR(&buf); err != nil {
		return errors.Wrap(err, "adt.Map: marshal value")
	}
	k := key.Key()
	i := m.n.find(k)
	if i < len(m.n.Entries) && m.n.Entries[i].Key == k {
		m.n.Entries[i].Val = buf.Bytes()
		return nil
	}
	m.n.Entries = append(m.n.Entries, entry{})
	copy(m.n.Entries[i+1:], m.n.Entries[i:])
	m.n.Entries[i] = entry{Key: k, Val: buf.Bytes()}
	return nil
}

// Get loads value for key, returning found=false (no error) when absent.
func (m *Map) Get(key Keyer, value CBORUnmarshaler) (bool, error) {
	k := key.Key()
	i := m.n.find(k)
	if i >= len(m.n.Entries) || m.n.Entries[i].Key != k {
		return false, nil
	}
	if err := value.UnmarshalCBOR(bytes.NewReader(m.n.Entries[i].Val)); err != nil {
		return false, errors.Wrap(err, "adt.Map: unmarshal value")
	}
	return true, nil
}

func (m *Map) Delete(key Keyer) error {
	k := key.Key()
	i := m.n.find(k)
	if i >= len(m.n.Entries) || m.n.Entries[i].Key != k {
		return nil
	}
	m.n.Entries = append(m.n.Entries[:i], m.n.Entries[i+1:]...)
	return nil
}

// ForEach visits every entry in key order, decoding into a fresh value
// each iteration via valueFactory (so callers get a distinct pointer
// per entry rather than a reused buffer).
func (m *Map) ForEach(valueFactory func() CBORUnmarshaler, fn func(key string, value CBORUnmarshaler) error) error {
	for _, e := range m.n.Entries {
		v := valueFactory()
		if err := v.UnmarshalCBOR(bytes.NewReader(e.Val)); err != nil {
			return errors.Wrap(err, "adt.Map: unmarshal during ForEach")
		}
		if err := fn(e.Key, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) Len() int {
	return len(m.n.Entries)
}
