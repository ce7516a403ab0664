// Package testing provides address/CID fixture helpers for tests,
// mirroring support/testing (tutil) in the teacher package.
package testing

import (
	address "github.com/filecoin-project/go-address"
	cid "github.com/ipfs/go-cid"
	"github.com/minio/sha256-simd"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// NewIDAddr builds a deterministic ID-type address for test fixtures,
// matching tutil.NewIDAddr in miner_test.go.
func NewIDAddr(id uint64) address.Address {
	a, err := address.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return a
}

// NewBLSAddr builds a deterministic BLS-type address seeded by pk,
// matching tutil.NewBLSAddr.
func NewBLSAddr(seed byte) address.Address {
	buf := make([]byte, 48)
	for i := range buf {
		buf[i] = seed
	}
	a, err := address.NewBLSAddress(buf)
	if err != nil {
		panic(err)
	}
	return a
}

// MakeCID derives a deterministic CID from an arbitrary seed string,
// for fixtures that need a stand-in content identifier without going
// through the real adt.Store (e.g. a fake STAKE-token code CID). Uses
// sha256-simd rather than the store's own blake2b so a fixture CID can
// never collide with one the store itself produced, mirroring
// miner_test.go's use of a distinct hash from the mock builder's own
// `WithHasher`.
func MakeCID(seed string) cid.Cid {
	sum := sha256.Sum256([]byte(seed))
	digest, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		panic(errors.Wrap(err, "support/testing: encode multihash"))
	}
	return cid.NewCidV1(cid.Raw, digest)
}
