package abi

import "github.com/strake-network/stakehub/actors/abi/big"

// TokenAmount is a quantity of the native staking denom or of the STAKE
// receipt denom, always integer and always non-negative once it leaves
// this package's arithmetic helpers.
type TokenAmount = big.Int

// UnixSeconds is a block-time timestamp, taken from the transaction
// context's clock (spec.md §5 "Cancellation/timeouts").
type UnixSeconds = uint64

// Denom is a native coin denomination string, e.g. the chain's staking
// asset or a foreign reward denom awaiting swap.
type Denom = string

func NewTokenAmount(i int64) TokenAmount {
	return big.NewInt(i)
}
