package adt

import (
	"bytes"
	"io"

	cid "github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// slot is one occupied index inside an Array's serialized node.
type slot struct {
	Index uint64
	Val   []byte
}

func (s *slot) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, s.Index); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(s.Val))); err != nil {
		return err
	}
	_, err := w.Write(s.Val)
	return err
}

func (s *slot) UnmarshalCBOR(r io.Reader) error {
	if _, _, err := cbg.CborReadHeader(r); err != nil {
		return errors.Wrap(err, "adt slot: read array header")
	}
	_, idx, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "adt slot: read index")
	}
	_, vl, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "adt slot: read value header")
	}
	vbuf := make([]byte, vl)
	if vl > 0 {
		if _, err := io.ReadFull(r, vbuf); err != nil {
			return errors.Wrap(err, "adt slot: read value")
		}
	}
	s.Index = idx
	s.Val = vbuf
	return nil
}

type arrayNode struct {
	Slots []slot
}

func (n *arrayNode) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, uint64(len(n.Slots))); err != nil {
		return err
	}
	for i := range n.Slots {
		if err := n.Slots[i].MarshalCBOR(w); err != nil {
			return err
		}
	}
	return nil
}

func (n *arrayNode) UnmarshalCBOR(r io.Reader) error {
	_, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return err
	}
	n.Slots = make([]slot, 0, l)
	for i := uint64(0); i < l; i++ {
		var s slot
		if err := s.UnmarshalCBOR(r); err != nil {
			return err
		}
		n.Slots = append(n.Slots, s)
	}
	return nil
}

// Array is a typed, content-addressed, sparse ordered collection,
// standing in for the AMT adt.Array the teacher package builds via
// adt.MakeEmptyArray (see DESIGN.md). Indices are stable under
// deletion elsewhere in the array, matching AMT semantics.
type Array struct {
	store Store
	n     *arrayNode
	next  uint64
}

func NewArray(store Store) *Array {
	return &Array{store: store, n: &arrayNode{}}
}

func AsArray(store Store, root cid.Cid) (*Array, error) {
	var n arrayNode
	if err := store.Get(store.Context(), root, &n); err != nil {
		return nil, errors.Wrap(err, "adt.Array: load root")
	}
	a := &Array{store: store, n: &n}
	for _, s := range n.Slots {
		if s.Index >= a.next {
			a.next = s.Index + 1
		}
	}
	return a, nil
}

func (a *Array) Root() (cid.Cid, error) {
	return a.store.Put(a.store.Context(), a.n)
}

func (a *Array) indexOf(i uint64) int {
	for idx, s := range a.n.Slots {
		if s.Index == i {
			return idx
		}
	}
	return -1
}

func (a *Array) Set(i uint64, value CBORMarshaler) error {
	var buf bytes.Buffer
	if err := value.MarshalCBOR(&buf); err != nil {
		return errors.Wrap(err, "adt.Array: marshal value")
	}
	if idx := a.indexOf(i); idx >= 0 {
		a.n.Slots[idx].Val = buf.Bytes()
	} else {
		a.n.Slots = append(a.n.Slots, slot{Index: i, Val: buf.Bytes()})
	}
	if i >= a.next {
		a.next = i + 1
	}
	return nil
}

// Push appends value at the next free index, mirroring an AMT's
// typical append usage for an ordered sequence (the validator set).
func (a *Array) Push(value CBORMarshaler) (uint64, error) {
	i := a.next
	return i, a.Set(i, value)
}

func (a *Array) Get(i uint64, value CBORUnmarshaler) (bool, error) {
	idx := a.indexOf(i)
	if idx < 0 {
		return false, nil
	}
	if err := value.UnmarshalCBOR(bytes.NewReader(a.n.Slots[idx].Val)); err != nil {
		return false, errors.Wrap(err, "adt.Array: unmarshal value")
	}
	return true, nil
}

func (a *Array) Delete(i uint64) error {
	idx := a.indexOf(i)
	if idx < 0 {
		return nil
	}
	a.n.Slots = append(a.n.Slots[:idx], a.n.Slots[idx+1:]...)
	return nil
}

func (a *Array) Len() int {
	return len(a.n.Slots)
}

// ForEach visits every occupied index in ascending order.
func (a *Array) ForEach(valueFactory func() CBORUnmarshaler, fn func(i uint64, value CBORUnmarshaler) error) error {
	ordered := make([]slot, len(a.n.Slots))
	copy(ordered, a.n.Slots)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Index < ordered[i].Index {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for _, s := range ordered {
		v := valueFactory()
		if err := v.UnmarshalCBOR(bytes.NewReader(s.Val)); err != nil {
			return errors.Wrap(err, "adt.Array: unmarshal during ForEach")
		}
		if err := fn(s.Index, v); err != nil {
			return err
		}
	}
	return nil
}
