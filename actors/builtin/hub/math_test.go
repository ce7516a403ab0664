package hub

import (
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strake-network/stakehub/actors/abi/big"
	htesting "github.com/strake-network/stakehub/support/testing"
)

func amounts(vals ...int64) []big.Int {
	out := make([]big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func int64s(t *testing.T, xs []big.Int) []int64 {
	out := make([]int64, len(xs))
	for i, x := range xs {
		out[i] = x.Int64()
	}
	return out
}

func TestMintAmountParity(t *testing.T) {
	// First bond into an empty pool mints 1:1.
	got := MintAmount(big.NewInt(1000), big.Zero(), big.Zero())
	assert.True(t, got.Equals(big.NewInt(1000)))
}

func TestMintAmountYieldPriced(t *testing.T) {
	// Pool already holds 2000 TOKEN backing 1000 STAKE (rate 2:1):
	// bonding 500 TOKEN should mint 250 STAKE.
	got := MintAmount(big.NewInt(500), big.NewInt(2000), big.NewInt(1000))
	assert.True(t, got.Equals(big.NewInt(250)))
}

func TestComputeUndelegationsSplit(t *testing.T) {
	delegations := amounts(400, 300, 200)
	got := ComputeUndelegations(delegations, big.NewInt(451))
	require.Equal(t, []int64{250, 150, 51}, int64s(t, got))
}

func TestComputeUndelegationsClampAndSpill(t *testing.T) {
	// A validator that can't absorb its share spills the remainder
	// forward rather than blocking the whole operation.
	delegations := amounts(10, 1000, 1000)
	got := ComputeUndelegations(delegations, big.NewInt(1000))
	total := big.Zero()
	for _, g := range got {
		total = big.Add(total, g)
		assert.True(t, g.Sign() >= 0)
	}
	assert.True(t, total.Equals(big.NewInt(1000)))
	assert.True(t, got[0].LessThanEqual(big.NewInt(10)))
}

func TestComputeRedelegationsForRemoval(t *testing.T) {
	alice := htesting.NewIDAddr(101)
	bob := htesting.NewIDAddr(102)
	charlie := htesting.NewIDAddr(103)
	dave := htesting.NewIDAddr(104)

	remaining := []address.Address{alice, bob, charlie}
	remainingDelegations := amounts(13000, 12000, 11000)

	got := ComputeRedelegationsForRemoval(dave, big.NewInt(10000), remaining, remainingDelegations)
	require.Len(t, got, 3)
	assert.Equal(t, dave, got[0].Src)
	assert.Equal(t, alice, got[0].Dst)
	assert.True(t, got[0].Amount.Equals(big.NewInt(2334)))
	assert.Equal(t, bob, got[1].Dst)
	assert.True(t, got[1].Amount.Equals(big.NewInt(3333)))
	assert.Equal(t, charlie, got[2].Dst)
	assert.True(t, got[2].Amount.Equals(big.NewInt(4333)))
}

func TestComputeRedelegationsForRebalancing(t *testing.T) {
	alice := htesting.NewIDAddr(201)
	bob := htesting.NewIDAddr(202)
	charlie := htesting.NewIDAddr(203)
	dave := htesting.NewIDAddr(204)
	evan := htesting.NewIDAddr(205)

	validators := []address.Address{alice, bob, charlie, dave, evan}
	delegations := amounts(69420, 1234, 88888, 40471, 2345)

	got := ComputeRedelegationsForRebalancing(validators, delegations)
	require.Len(t, got, 3)

	assert.Equal(t, alice, got[0].Src)
	assert.Equal(t, bob, got[0].Dst)
	assert.True(t, got[0].Amount.Equals(big.NewInt(28948)))

	assert.Equal(t, charlie, got[1].Src)
	assert.Equal(t, bob, got[1].Dst)
	assert.True(t, got[1].Amount.Equals(big.NewInt(10290)))

	assert.Equal(t, charlie, got[2].Src)
	assert.Equal(t, evan, got[2].Dst)
	assert.True(t, got[2].Amount.Equals(big.NewInt(38126)))
}

func TestReconcileShortfallDistribution(t *testing.T) {
	batches := []*Batch{
		{ID: 1, TokenUnclaimed: big.NewInt(1385)},
		{ID: 2, TokenUnclaimed: big.NewInt(1506)},
	}
	// expected = 10000 (unlocked) + 1385 + 1506 = 12891, actual = 12345
	// => shortfall of 546, split evenly as 273/273.
	shortfall := big.Sub(big.NewInt(12891), big.NewInt(12345))
	require.True(t, shortfall.Equals(big.NewInt(546)))

	ReconcileShortfall(batches, shortfall)
	assert.True(t, batches[0].TokenUnclaimed.Equals(big.NewInt(1385-273)))
	assert.True(t, batches[1].TokenUnclaimed.Equals(big.NewInt(1506-273)))
}
