package hub

import (
	address "github.com/filecoin-project/go-address"
	bitfield "github.com/filecoin-project/go-bitfield"
	cid "github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/strake-network/stakehub/actors/abi"
	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/util/adt"
)

// State is the hub's entire persisted state, mirroring state.rs's
// State struct. Inline fields hold small/singleton values directly;
// larger collections are content-addressed roots loaded lazily via the
// actor's adt.Store, matching state.rs's Map/IndexedMap fields.
type State struct {
	Owner    address.Address
	NewOwner address.Address // zero address when no transfer is pending

	// StakeTokenSet is false until RegisterStakeToken is called
	// (spec.md §9 "Child-contract address discovery"); StakeToken is
	// meaningless until then, matching the Rust `Item<Addr>` left
	// unset pre-registration.
	StakeTokenSet bool
	StakeToken    address.Address

	// NativeDenom is the chain's staking asset denom — the TOKEN side
	// of the TOKEN/STAKE pair this hub manages (spec.md §2 "TOKEN").
	NativeDenom string

	EpochPeriod  uint64
	UnbondPeriod uint64

	FeeConfig  FeeConfig
	SwapConfig []SwapConfigEntry

	PendingBatch  PendingBatch
	UnlockedCoins *Coins

	// Validators is an ordered Array of addresses (validator set),
	// standing in for state.rs's `validators: Item<Vec<Addr>>`.
	Validators cid.Cid

	// PreviousBatches is keyed by decimal batch id, mirroring
	// state.rs's `previous_batches: IndexedMap<u64, Batch, ...>`. The
	// `reconciled` secondary index is reconstructed on demand via
	// UnreconciledBatches below, rather than a real secondary index
	// table (see DESIGN.md).
	PreviousBatches cid.Cid

	// UnreconciledBatches mirrors the `reconciled` MultiIndex's
	// `false` bucket: the set of previous-batch ids not yet
	// reconciled, consulted by Reconcile.
	UnreconciledBatches bitfield.BitField

	// UnbondRequests is keyed by "batch_id:user", mirroring
	// state.rs's `unbond_requests: IndexedMap<(u64, Addr), ...>`
	// composite primary key. The `user` MultiIndex is reconstructed by
	// scanning (see hub_queries.go), rather than a real secondary
	// index table (see DESIGN.md).
	UnbondRequests cid.Cid

	// ExchangeHistory is keyed by decimal timestamp, mirroring
	// state.rs's `exchange_history: Map<u64, Decimal>`.
	ExchangeHistory cid.Cid

	NextBatchID uint64
}

// ConstructState builds the hub's initial state at instantiation time,
// mirroring execute.rs's `instantiate` handler. The STAKE token is not
// yet known (set later by RegisterStakeToken); the validator
// set, batch tables and exchange history all start empty.
func ConstructState(store adt.Store, owner address.Address, nativeDenom string, epochPeriod, unbondPeriod uint64, feeConfig FeeConfig, swapConfig []SwapConfigEntry) (*State, error) {
	emptyValidators, err := adt.NewArray(store).Root()
	if err != nil {
		return nil, xerrors.Errorf("hub: construct empty validators array: %w", err)
	}
	emptyBatches, err := adt.NewMap(store).Root()
	if err != nil {
		return nil, xerrors.Errorf("hub: construct empty previous batches map: %w", err)
	}
	emptyRequests, err := adt.NewMap(store).Root()
	if err != nil {
		return nil, xerrors.Errorf("hub: construct empty unbond requests map: %w", err)
	}
	emptyHistory, err := adt.NewMap(store).Root()
	if err != nil {
		return nil, xerrors.Errorf("hub: construct empty exchange history map: %w", err)
	}
	return &State{
		Owner:               owner,
		NativeDenom:         nativeDenom,
		EpochPeriod:         epochPeriod,
		UnbondPeriod:        unbondPeriod,
		FeeConfig:           feeConfig,
		SwapConfig:          swapConfig,
		PendingBatch:        PendingBatch{ID: 1, StakeToBurn: big.Zero()},
		UnlockedCoins:       NewCoins(),
		Validators:          emptyValidators,
		PreviousBatches:     emptyBatches,
		UnbondRequests:      emptyRequests,
		ExchangeHistory:     emptyHistory,
		UnreconciledBatches: bitfield.NewFromSet(nil),
		NextBatchID:         2,
	}, nil
}

// assertOwner aborts unless rt's caller is st.Owner, mirroring
// state.rs's `State::assert_owner`.
func (st *State) assertOwner(rt runtime.Runtime) {
	rt.ValidateImmediateCallerIs(st.Owner)
}

// assertStakeTokenRegistered aborts unless the STAKE child contract's
// address has been captured, the precondition every bond/unbond
// operation shares (spec.md §9).
func (st *State) assertStakeTokenRegistered(rt runtime.Runtime) {
	if !st.StakeTokenSet {
		rt.Abortf(exitcode.ErrIllegalState, "stake token not yet registered")
	}
}

// loadValidators opens the validator-set Array for reading/mutation.
func (st *State) loadValidators(store adt.Store) (*adt.Array, error) {
	return adt.AsArray(store, st.Validators)
}

// validatorSet returns the current validator set as a plain slice, in
// array order.
func (st *State) validatorSet(store adt.Store) ([]address.Address, error) {
	arr, err := st.loadValidators(store)
	if err != nil {
		return nil, err
	}
	out := make([]address.Address, 0, arr.Len())
	err = arr.ForEach(func() adt.CBORUnmarshaler { return new(addressEntry) }, func(_ uint64, v adt.CBORUnmarshaler) error {
		out = append(out, address.Address(*v.(*addressEntry)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// hasValidator reports whether addr is a member of the current
// validator set.
func (st *State) hasValidator(store adt.Store, addr address.Address) (bool, error) {
	vs, err := st.validatorSet(store)
	if err != nil {
		return false, err
	}
	for _, v := range vs {
		if v == addr {
			return true, nil
		}
	}
	return false, nil
}

func (st *State) loadPreviousBatches(store adt.Store) (*adt.Map, error) {
	return adt.AsMap(store, st.PreviousBatches)
}

func (st *State) loadUnbondRequests(store adt.Store) (*adt.Map, error) {
	return adt.AsMap(store, st.UnbondRequests)
}

func (st *State) loadExchangeHistory(store adt.Store) (*adt.Map, error) {
	return adt.AsMap(store, st.ExchangeHistory)
}

// markReconciled clears batchID's bit in UnreconciledBatches.
func (st *State) markReconciled(batchID uint64) {
	st.UnreconciledBatches.Unset(batchID)
}

// markUnreconciled sets batchID's bit in UnreconciledBatches.
func (st *State) markUnreconciled(batchID uint64) {
	st.UnreconciledBatches.Set(batchID)
}

func (st *State) isUnreconciled(batchID uint64) (bool, error) {
	return st.UnreconciledBatches.IsSet(batchID)
}
