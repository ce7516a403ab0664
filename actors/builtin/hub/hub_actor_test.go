package hub

import (
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/support/mock"
	htesting "github.com/strake-network/stakehub/support/testing"
	"github.com/strake-network/stakehub/util/adt"
)

var (
	owner      = htesting.NewIDAddr(100)
	hubAddr    = htesting.NewIDAddr(101)
	stakeToken = htesting.NewIDAddr(102)
	validator1 = htesting.NewIDAddr(201)
	validator2 = htesting.NewIDAddr(202)
	feeAddr    = htesting.NewIDAddr(300)
	bonder     = htesting.NewIDAddr(400)
)

func TestConstructorSeedsValidatorSet(t *testing.T) {
	rt := mock.NewRuntime(t, hubAddr).WithCaller(owner)
	a := Actor{}

	params := &ConstructorParams{
		Owner:        owner,
		NativeDenom:  "utoken",
		EpochPeriod:  3600,
		UnbondPeriod: 21 * 24 * 3600,
		FeeConfig:    FeeConfig{ProtocolFeeRecipient: feeAddr, ProtocolRewardFee: DecimalFromBps(500)},
		Validators:   []address.Address{validator1, validator2},
	}
	a.Constructor(rt, params)

	var st State
	rt.State().Readonly(&st)
	assert.Equal(t, owner, st.Owner)
	assert.False(t, st.StakeTokenSet)

	validators, err := st.validatorSet(rt.Store())
	require.NoError(t, err)
	assert.Equal(t, []address.Address{validator1, validator2}, validators)
}

func TestBondMintsAtParityBeforeAnyStake(t *testing.T) {
	rt := mock.NewRuntime(t, hubAddr).WithCaller(owner)
	a := Actor{}
	a.Constructor(rt, &ConstructorParams{
		Owner:        owner,
		NativeDenom:  "utoken",
		EpochPeriod:  3600,
		UnbondPeriod: 21 * 24 * 3600,
		FeeConfig:    FeeConfig{ProtocolFeeRecipient: feeAddr},
		Validators:   []address.Address{validator1, validator2},
	})
	a.RegisterStakeToken(rt, &RegisterStakeTokenParams{StakeToken: stakeToken})

	rt2 := rt.WithCaller(bonder).WithStakeSupply(big.Zero())
	a.Bond(rt2, &BondParams{Amount: big.NewInt(1000)})

	sent := rt.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, runtime.MethodStakingDelegate, sent[0].Method)
	assert.Equal(t, runtime.MethodSelfCallback, sent[1].Method)
	assert.Equal(t, runtime.MethodStakeTokenMint, sent[2].Method)
	mintMsg, ok := sent[2].Params.(*MintMsg)
	require.True(t, ok)
	assert.True(t, mintMsg.Amount.Equals(big.NewInt(1000)))
}

func TestQueueUnbondRejectsNonStakeTokenCaller(t *testing.T) {
	rt := mock.NewRuntime(t, hubAddr).WithCaller(owner)
	a := Actor{}
	a.Constructor(rt, &ConstructorParams{
		Owner:        owner,
		NativeDenom:  "utoken",
		EpochPeriod:  3600,
		UnbondPeriod: 21 * 24 * 3600,
		FeeConfig:    FeeConfig{ProtocolFeeRecipient: feeAddr},
		Validators:   []address.Address{validator1},
	})
	a.RegisterStakeToken(rt, &RegisterStakeTokenParams{StakeToken: stakeToken})

	rt2 := rt.WithCaller(bonder)
	mock.ExpectAbort(t, exitcode.ErrForbidden, func() {
		a.QueueUnbond(rt2, &QueueUnbondParams{User: bonder, Shares: big.NewInt(10)})
	})
}

func TestWithdrawUnbondedRejectsCallerWithNoRequests(t *testing.T) {
	rt := mock.NewRuntime(t, hubAddr).WithCaller(owner)
	a := Actor{}
	a.Constructor(rt, &ConstructorParams{
		Owner:        owner,
		NativeDenom:  "utoken",
		EpochPeriod:  3600,
		UnbondPeriod: 21 * 24 * 3600,
		FeeConfig:    FeeConfig{ProtocolFeeRecipient: feeAddr},
		Validators:   []address.Address{validator1},
	})
	a.RegisterStakeToken(rt, &RegisterStakeTokenParams{StakeToken: stakeToken})

	rt2 := rt.WithCaller(bonder)
	mock.ExpectAbort(t, exitcode.ErrIllegalState, func() {
		a.WithdrawUnbonded(rt2, &WithdrawUnbondedParams{})
	})
}

func TestWithdrawUnbondedSumsAcrossBatchesAndPurgesExhaustedBatch(t *testing.T) {
	rt := mock.NewRuntime(t, hubAddr).WithCaller(owner)
	a := Actor{}
	a.Constructor(rt, &ConstructorParams{
		Owner:        owner,
		NativeDenom:  "utoken",
		EpochPeriod:  3600,
		UnbondPeriod: 21 * 24 * 3600,
		FeeConfig:    FeeConfig{ProtocolFeeRecipient: feeAddr},
		Validators:   []address.Address{validator1},
	})
	a.RegisterStakeToken(rt, &RegisterStakeTokenParams{StakeToken: stakeToken})

	otherUser := htesting.NewIDAddr(401)

	var st State
	rt.State().Transaction(&st, func() {
		batches, err := st.loadPreviousBatches(rt.Store())
		require.NoError(t, err)
		require.NoError(t, batches.Put(adt.StringKey(uintToKey(1)),
			&Batch{ID: 1, Reconciled: true, TotalShares: big.NewInt(300), TokenUnclaimed: big.NewInt(300)}))
		require.NoError(t, batches.Put(adt.StringKey(uintToKey(2)),
			&Batch{ID: 2, Reconciled: true, TotalShares: big.NewInt(100), TokenUnclaimed: big.NewInt(200)}))
		st.PreviousBatches, err = batches.Root()
		require.NoError(t, err)

		requests, err := st.loadUnbondRequests(rt.Store())
		require.NoError(t, err)
		require.NoError(t, requests.Put(unbondRequestKey(1, bonder), &UnbondRequest{ID: 1, User: bonder, Shares: big.NewInt(200)}))
		require.NoError(t, requests.Put(unbondRequestKey(1, otherUser), &UnbondRequest{ID: 1, User: otherUser, Shares: big.NewInt(100)}))
		require.NoError(t, requests.Put(unbondRequestKey(2, bonder), &UnbondRequest{ID: 2, User: bonder, Shares: big.NewInt(100)}))
		st.UnbondRequests, err = requests.Root()
		require.NoError(t, err)
	})

	rt2 := rt.WithCaller(bonder)
	a.WithdrawUnbonded(rt2, &WithdrawUnbondedParams{})

	sent := rt.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, runtime.MethodSend, sent[0].Method)
	assert.True(t, sent[0].Value.Equals(big.NewInt(400))) // 200/300*300 + 100/100*200

	var after State
	rt.State().Readonly(&after)
	batches, err := after.loadPreviousBatches(rt.Store())
	require.NoError(t, err)

	var b1 Batch
	found, err := batches.Get(adt.StringKey(uintToKey(1)), &b1)
	require.NoError(t, err)
	require.True(t, found, "batch 1 still has otherUser's open shares")
	assert.True(t, b1.TotalShares.Equals(big.NewInt(100)))
	assert.True(t, b1.TokenUnclaimed.Equals(big.NewInt(100)))

	var b2 Batch
	found, err = batches.Get(adt.StringKey(uintToKey(2)), &b2)
	require.NoError(t, err)
	assert.False(t, found, "batch 2 should be purged once its last share is withdrawn")
}
