// Package adt provides typed, content-addressed accessors over the
// hub's persistent state (spec.md §3 "Persistent state"): a Store
// backing a flat-table Map standing in for a HAMT (previous_batches,
// unbond_requests, exchange_history) and a flat-table Array standing
// in for an AMT (the validator set), the same role actors/util/adt plays for
// actors/builtin/miner in the teacher package.
package adt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/minio/blake2b-simd"
	"github.com/pkg/errors"
)

// cborCodec is the CID multicodec for CBOR-encoded IPLD nodes (0x71,
// "dag-cbor"), the same codec go-ipld-cbor/go-hamt-ipld/go-amt-ipld
// expect their backing blocks to carry.
const cborCodec = 0x71

// hashCode identifies blake2b-256 in the multihash table, matching the
// hash function the teacher's own test harness wires in
// (miner_test.go: builder.WithHasher(blake2b.Sum256)).
const hashCode = mh.BLAKE2B_MIN + 31

// CBORMarshaler/CBORUnmarshaler mirror whyrusleeping/cbor-gen's cbg
// runtime interfaces, so every persisted hub type's hand-written
// MarshalCBOR/UnmarshalCBOR (cbor_gen.go) can be stored directly.
type CBORMarshaler interface {
	MarshalCBOR(w io.Writer) error
}

type CBORUnmarshaler interface {
	UnmarshalCBOR(r io.Reader) error
}

// Store is the content-addressed get/put interface Map and Array are
// built on, mirroring actors/util/adt.Store / adt.AsStore(rt) in the
// teacher package.
type Store interface {
	Context() context.Context
	Put(ctx context.Context, v CBORMarshaler) (cid.Cid, error)
	Get(ctx context.Context, c cid.Cid, out CBORUnmarshaler) error
}

type memBlockstore struct {
	mu     sync.Mutex
	blocks map[cid.Cid]blocks.Block
}

func newMemBlockstore() *memBlockstore {
	return &memBlockstore{blocks: make(map[cid.Cid]blocks.Block)}
}

func (b *memBlockstore) put(blk blocks.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[blk.Cid()] = blk
}

func (b *memBlockstore) get(c cid.Cid) (blocks.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blk, ok := b.blocks[c]
	return blk, ok
}

// store is the default, in-memory Store implementation. The hub has no
// long-lived chain state of its own outside the runtime's persistence
// layer; this plays the same role as the mock blockstore used by
// support/mock in tests, and by a real deployment's KV-backed store in
// production (see Runtime.Store in actors/runtime).
type store struct {
	ctx context.Context
	bs  *memBlockstore
}

func NewStore(ctx context.Context) Store {
	return &store{ctx: ctx, bs: newMemBlockstore()}
}

func (s *store) Context() context.Context {
	return s.ctx
}

func (s *store) Put(ctx context.Context, v CBORMarshaler) (cid.Cid, error) {
	var buf bytes.Buffer
	if err := v.MarshalCBOR(&buf); err != nil {
		return cid.Undef, errors.Wrap(err, "adt store: marshal")
	}
	sum := blake2b.Sum256(buf.Bytes())
	digest, err := mh.Encode(sum[:], hashCode)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "adt store: multihash encode")
	}
	c := cid.NewCidV1(cborCodec, digest)
	blk, err := blocks.NewBlockWithCid(buf.Bytes(), c)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "adt store: wrap block")
	}
	s.bs.put(blk)
	return c, nil
}

func (s *store) Get(ctx context.Context, c cid.Cid, out CBORUnmarshaler) error {
	blk, ok := s.bs.get(c)
	if !ok {
		return fmt.Errorf("adt store: not found: %s", c)
	}
	return out.UnmarshalCBOR(bytes.NewReader(blk.RawData()))
}

// EmptyValue is the CBOR-null sentinel used by methods that take no
// parameters or return nothing, matching adt.EmptyValue's role in the
// teacher package's miner_actor.go method signatures.
type EmptyValue struct{}

func (*EmptyValue) MarshalCBOR(w io.Writer) error {
	_, err := w.Write([]byte{0xf6})
	return err
}

func (*EmptyValue) UnmarshalCBOR(r io.Reader) error {
	buf := make([]byte, 1)
	_, err := r.Read(buf)
	return err
}
