// Package hub implements the liquid-staking hub: it pools the chain's
// native staking TOKEN, delegates it to validators, and mints/burns a
// STAKE receipt token against that pool, mirroring
// actors/builtin/miner's Actor in the teacher package but generalized
// from a storage-power state machine to a liquid-staking one.
package hub

import (
	address "github.com/filecoin-project/go-address"

	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/builtin"
	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/util/adt"
)

// Method numbers this actor exports, mirroring the numeric dispatch
// table convention of miner_actor.go's Exports(), generalized from the
// Rust implementation's string-keyed ExecuteMsg match arms.
const (
	MethodConstructor        runtime.MethodNum = 1
	MethodRegisterStakeToken runtime.MethodNum = 2
	MethodBond               runtime.MethodNum = 3
	MethodDonate             runtime.MethodNum = 4
	MethodQueueUnbond        runtime.MethodNum = 5
	MethodSubmitBatch        runtime.MethodNum = 6
	MethodReconcile          runtime.MethodNum = 7
	MethodWithdrawUnbonded   runtime.MethodNum = 8
	MethodHarvest            runtime.MethodNum = 9
	MethodRebalance          runtime.MethodNum = 10
	MethodAddValidator       runtime.MethodNum = 11
	MethodRemoveValidator    runtime.MethodNum = 12
	MethodTransferOwnership  runtime.MethodNum = 13
	MethodAcceptOwnership    runtime.MethodNum = 14
	MethodUpdateConfig       runtime.MethodNum = 15
	MethodCallback           runtime.MethodNum = 16
	MethodMigrate            runtime.MethodNum = 17

	// Query methods are read-only and never appear inside a
	// Transaction's mutation closure, mirroring queries.rs's `query`
	// entry point (contract.rs dispatches it separately from
	// `execute`, but this Actor exposes both through one Exports
	// table for simplicity).
	MethodConfig                      runtime.MethodNum = 18
	MethodState                       runtime.MethodNum = 19
	MethodPendingBatch                runtime.MethodNum = 20
	MethodPreviousBatch               runtime.MethodNum = 21
	MethodPreviousBatches             runtime.MethodNum = 22
	MethodUnbondRequestsByBatch       runtime.MethodNum = 23
	MethodUnbondRequestsByUser        runtime.MethodNum = 24
	MethodUnbondRequestsByUserDetails runtime.MethodNum = 25
	MethodExchangeRates               runtime.MethodNum = 26
)

type Actor struct{}

func (a Actor) Exports() []interface{} {
	return []interface{}{
		MethodConstructor:        a.Constructor,
		MethodRegisterStakeToken: a.RegisterStakeToken,
		MethodBond:               a.Bond,
		MethodDonate:             a.Donate,
		MethodQueueUnbond:        a.QueueUnbond,
		MethodSubmitBatch:        a.SubmitBatch,
		MethodReconcile:          a.Reconcile,
		MethodWithdrawUnbonded:   a.WithdrawUnbonded,
		MethodHarvest:            a.Harvest,
		MethodRebalance:          a.Rebalance,
		MethodAddValidator:       a.AddValidator,
		MethodRemoveValidator:    a.RemoveValidator,
		MethodTransferOwnership:  a.TransferOwnership,
		MethodAcceptOwnership:    a.AcceptOwnership,
		MethodUpdateConfig:       a.UpdateConfig,
		MethodCallback:           a.Callback,
		MethodMigrate:            a.Migrate,

		MethodConfig:                      a.Config,
		MethodState:                       a.State,
		MethodPendingBatch:                a.PendingBatchQuery,
		MethodPreviousBatch:               a.PreviousBatchQuery,
		MethodPreviousBatches:             a.PreviousBatchesQuery,
		MethodUnbondRequestsByBatch:       a.UnbondRequestsByBatchQuery,
		MethodUnbondRequestsByUser:        a.UnbondRequestsByUserQuery,
		MethodUnbondRequestsByUserDetails: a.UnbondRequestsByUserDetailsQuery,
		MethodExchangeRates:               a.ExchangeRatesQuery,
	}
}

/////////////////
// Constructor //
/////////////////

// ConstructorParams mirrors execute.rs's InstantiateMsg.
type ConstructorParams struct {
	Owner        address.Address
	NativeDenom  string
	EpochPeriod  uint64
	UnbondPeriod uint64
	FeeConfig    FeeConfig
	SwapConfig   []SwapConfigEntry
	Validators   []address.Address
}

func (a Actor) Constructor(rt runtime.Runtime, params *ConstructorParams) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	builtin.RequireArg(rt, params.EpochPeriod > 0, "epoch period must be positive")
	builtin.RequireArg(rt, params.UnbondPeriod > 0, "unbond period must be positive")
	builtin.RequireArg(rt, params.FeeConfig.ProtocolRewardFee.LessThanEqual(DecimalFromBps(1000)),
		"protocol reward fee exceeds the 10%% cap")
	builtin.RequireArg(rt, len(params.Validators) > 0, "at least one validator is required")
	seenValidators := make(map[address.Address]bool, len(params.Validators))
	for _, v := range params.Validators {
		builtin.RequireArg(rt, !seenValidators[v], "duplicate validator %s", v)
		seenValidators[v] = true
	}
	seenDenoms := make(map[string]bool, len(params.SwapConfig))
	for _, entry := range params.SwapConfig {
		builtin.RequireArg(rt, !seenDenoms[entry.Denom], "duplicate swap denom %s", entry.Denom)
		seenDenoms[entry.Denom] = true
	}

	st, err := ConstructState(rt.Store(), params.Owner, params.NativeDenom, params.EpochPeriod, params.UnbondPeriod, params.FeeConfig, params.SwapConfig)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct initial state")

	validators, err := adt.AsArray(rt.Store(), st.Validators)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load empty validator array")
	for _, v := range params.Validators {
		ae := addressEntry(v)
		_, err := validators.Push(&ae)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to seed validator set")
	}
	st.Validators, err = validators.Root()
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush validator set")
	st.PendingBatch.EstUnbondStartTime = rt.CurrentTime() + params.EpochPeriod

	rt.State().Create(st)
	return nil
}

//////////////////////////////
// Child-address discovery  //
//////////////////////////////

// RegisterStakeTokenParams carries the newly-instantiated STAKE child
// contract's address. It stands in for the reply(id=1) handler in
// contract.rs's `reply` entry point: this Runtime abstraction
// delivers a sub-invocation's result synchronously from Send rather
// than as an asynchronous SubMsg reply, so the discovered address
// arrives as a direct call instead (spec.md §9 "Child-contract address
// discovery").
type RegisterStakeTokenParams struct {
	StakeToken address.Address
}

func (a Actor) RegisterStakeToken(rt runtime.Runtime, params *RegisterStakeTokenParams) *adt.EmptyValue {
	var st State
	rt.State().Transaction(&st, func() {
		st.assertOwner(rt)
		if st.StakeTokenSet {
			rt.Abortf(exitcode.ErrIllegalState, "stake token already registered")
		}
		st.StakeToken = params.StakeToken
		st.StakeTokenSet = true
	})
	return nil
}

///////////
// Bond  //
///////////

// BondParams mirrors execute.rs's `bond`/`donate` shared entry point.
type BondParams struct {
	Amount   big.Int
	Receiver address.Address // defaults to the caller when zero-value
	Donate   bool
}

// Bond deposits native TOKEN, delegates it to the least-delegated
// validator, and mints STAKE proportional to the current exchange
// rate (spec.md §4.2 "Bond"). Donate skips the mint: the deposited
// TOKEN still backs every STAKE holder's exchange rate, but the
// depositor receives nothing in return (execute.rs's `donate` entry
// point, spec.md §5 "Supplemented features" Donate).
func (a Actor) Bond(rt runtime.Runtime, params *BondParams) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	builtin.RequireArg(rt, params.Amount.Sign() > 0, "bond amount must be positive")

	receiver := params.Receiver
	if receiver == address.Undef {
		receiver = rt.Caller()
	}

	var st State
	var mintAmount big.Int
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)

		validators, err := st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		builtin.RequireState(rt, len(validators) > 0, "no validators to delegate to")

		target := leastDelegated(rt, validators)

		totalStaked := totalDelegated(rt, validators)
		stakeSupply := rt.StakeSupply()
		mintAmount = MintAmount(params.Amount, totalStaked, stakeSupply)

		rt.Send(target, runtime.MethodStakingDelegate, nil, params.Amount)
	})

	appendCheckReceivedCoinMsg(rt, st.NativeDenom, params.Amount)

	if !params.Donate && mintAmount.Sign() > 0 {
		rt.Send(st.StakeToken, runtime.MethodStakeTokenMint, &MintMsg{Recipient: receiver, Amount: mintAmount}, big.Zero())
	}
	return nil
}

// Donate is Bond with Donate forced true, matching execute.rs's
// separate `donate` ExecuteMsg variant (same handler body, no mint).
func (a Actor) Donate(rt runtime.Runtime, params *BondParams) *adt.EmptyValue {
	params.Donate = true
	return a.Bond(rt, params)
}

// MintMsg is the params payload sent to the STAKE child contract's
// mint method.
type MintMsg struct {
	Recipient address.Address
	Amount    big.Int
}

// leastDelegated returns the validator currently holding the smallest
// delegation, the target of every Bond (spec.md §4.2).
func leastDelegated(rt runtime.Runtime, validators []address.Address) address.Address {
	delegations := rt.Delegations(validators)
	byAddr := make(map[address.Address]big.Int, len(delegations))
	for _, d := range delegations {
		byAddr[d.Validator] = d.Amount
	}
	best := validators[0]
	bestAmount, ok := byAddr[best]
	if !ok {
		bestAmount = big.Zero()
	}
	for _, v := range validators[1:] {
		amt, ok := byAddr[v]
		if !ok {
			amt = big.Zero()
		}
		if amt.LessThan(bestAmount) {
			best, bestAmount = v, amt
		}
	}
	return best
}

// totalDelegated sums current delegations across validators.
func totalDelegated(rt runtime.Runtime, validators []address.Address) big.Int {
	total := big.Zero()
	for _, d := range rt.Delegations(validators) {
		total = big.Add(total, d.Amount)
	}
	return total
}

////////////////////
// Queue unbond    //
////////////////////

// QueueUnbondParams mirrors execute.rs's `queue_unbond`, invoked via
// the STAKE child contract's CW20 Receive hook in the original Rust;
// here it is a direct call the hub validates is from the STAKE
// contract (the sender having already burned/escrowed the shares).
type QueueUnbondParams struct {
	User   address.Address
	Shares big.Int
}

func (a Actor) QueueUnbond(rt runtime.Runtime, params *QueueUnbondParams) *adt.EmptyValue {
	builtin.RequireArg(rt, params.Shares.Sign() > 0, "unbond shares must be positive")

	var st State
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)
		rt.ValidateImmediateCallerIs(st.StakeToken)

		st.PendingBatch.StakeToBurn = big.Add(st.PendingBatch.StakeToBurn, params.Shares)

		requests, err := st.loadUnbondRequests(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load unbond requests")

		key := unbondRequestKey(st.PendingBatch.ID, params.User)
		var existing UnbondRequest
		found, err := requests.Get(key, &existing)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to look up existing unbond request")
		if found {
			existing.Shares = big.Add(existing.Shares, params.Shares)
		} else {
			existing = UnbondRequest{ID: st.PendingBatch.ID, User: params.User, Shares: params.Shares}
		}
		err = requests.Put(key, &existing)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to persist unbond request")

		st.UnbondRequests, err = requests.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush unbond requests")
	})
	return nil
}

func unbondRequestKey(batchID uint64, user address.Address) adt.Keyer {
	return adt.StringKey(uintToKey(batchID) + ":" + user.String())
}

////////////////////
// Submit batch    //
////////////////////

// SubmitBatch closes the current pending batch once its unbonding
// start time has arrived, splitting the aggregate undelegation across
// validators and promoting the batch into previous_batches (spec.md
// §4.2 "Submit batch").
func (a Actor) SubmitBatch(rt runtime.Runtime, _ *adt.EmptyValue) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	var redelegateTargets []address.Address
	var undelegateAmounts []big.Int
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)
		builtin.RequireState(rt, st.PendingBatch.StakeToBurn.Sign() > 0, "pending batch has nothing to unbond")
		builtin.RequireState(rt, rt.CurrentTime() >= st.PendingBatch.EstUnbondStartTime || st.PendingBatch.EstUnbondStartTime == 0,
			"pending batch is not yet due for submission")

		validators, err := st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		builtin.RequireState(rt, len(validators) > 0, "no validators to undelegate from")

		totalStaked := totalDelegated(rt, validators)
		stakeSupply := rt.StakeSupply()
		tokenAmount := UnbondAmount(st.PendingBatch.StakeToBurn, totalStaked, stakeSupply)

		delegationAmounts := make([]big.Int, len(validators))
		for i, d := range rt.Delegations(validators) {
			delegationAmounts[i] = d.Amount
		}
		undelegateAmounts = ComputeUndelegations(delegationAmounts, tokenAmount)
		redelegateTargets = validators

		batches, err := st.loadPreviousBatches(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")

		batch := &Batch{
			ID:               st.PendingBatch.ID,
			Reconciled:       false,
			TotalShares:      st.PendingBatch.StakeToBurn,
			TokenUnclaimed:   tokenAmount,
			EstUnbondEndTime: rt.CurrentTime() + st.UnbondPeriod,
		}
		err = batches.Put(adt.StringKey(uintToKey(batch.ID)), batch)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to persist promoted batch")
		st.PreviousBatches, err = batches.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush previous batches")

		st.markUnreconciled(batch.ID)

		rt.Send(st.StakeToken, runtime.MethodStakeTokenBurn, &BurnMsg{Amount: st.PendingBatch.StakeToBurn}, big.Zero())

		st.PendingBatch = PendingBatch{ID: st.NextBatchID, StakeToBurn: big.Zero(), EstUnbondStartTime: rt.CurrentTime() + st.EpochPeriod}
		st.NextBatchID++
	})

	for i, target := range redelegateTargets {
		if undelegateAmounts[i].Sign() > 0 {
			rt.Send(target, runtime.MethodStakingUndelegate, nil, undelegateAmounts[i])
		}
	}
	return nil
}

// BurnMsg is the params payload sent to the STAKE child contract's
// burn method.
type BurnMsg struct {
	Amount big.Int
}

////////////////
// Reconcile  //
////////////////

// Reconcile settles a previously-submitted batch once its unbonding
// period has elapsed: it compares the batch's recorded
// token_unclaimed estimate against the TOKEN that actually arrived
// back in the hub (its current native balance, net of the TOKEN
// already held in unlocked_coins) and, on a shortfall, spreads the
// difference evenly across every unreconciled batch whose unbonding
// end time has passed (spec.md §4.2 "Reconcile").
func (a Actor) Reconcile(rt runtime.Runtime, _ *adt.EmptyValue) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)

		batches, err := st.loadPreviousBatches(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")

		var due []*Batch
		expected := big.Zero()
		err = batches.ForEach(func() adt.CBORUnmarshaler { return new(Batch) }, func(_ string, v adt.CBORUnmarshaler) error {
			b := v.(*Batch)
			unreconciled, err := st.isUnreconciled(b.ID)
			if err != nil {
				return err
			}
			if unreconciled && rt.CurrentTime() >= b.EstUnbondEndTime {
				due = append(due, b)
				expected = big.Add(expected, b.TokenUnclaimed)
			}
			return nil
		})
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan previous batches")
		if len(due) == 0 {
			return
		}

		expectedTotal := big.Add(expected, st.UnlockedCoins.Amount(st.NativeDenom))
		actual := rt.Balance(st.NativeDenom)
		if expectedTotal.GreaterThan(actual) {
			shortfall := big.Sub(expectedTotal, actual)
			ReconcileShortfall(due, shortfall)
		}

		for _, b := range due {
			b.Reconciled = true
			st.markReconciled(b.ID)
			err := batches.Put(adt.StringKey(uintToKey(b.ID)), b)
			builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to persist reconciled batch")
		}
		st.PreviousBatches, err = batches.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush previous batches")
	})
	return nil
}

/////////////////////////
// Withdraw unbonded   //
/////////////////////////

// WithdrawUnbondedParams optionally redirects the payout to a receiver
// other than the caller, mirroring execute.rs's `withdraw_unbonded
// { receiver }`.
type WithdrawUnbondedParams struct {
	Receiver address.Address // defaults to the caller when zero-value
}

// unbondClaim is one of the caller's requests discovered while scanning
// unbond_requests, paired with its map key for later deletion.
type unbondClaim struct {
	key     adt.Keyer
	batchID uint64
	shares  big.Int
}

// WithdrawUnbonded settles every one of the caller's requests against a
// reconciled batch in a single payout: it sums the claimable token
// across all such batches, decrements each touched batch's
// total_shares/token_unclaimed, and purges any batch whose shares are
// fully claimed (spec.md §4.2 "Withdraw unbonded", execute.rs's
// `withdraw_unbonded`). A request whose batch hasn't been submitted yet
// or is still unbonding is left untouched for a future call; the call
// aborts when nothing is claimable.
func (a Actor) WithdrawUnbonded(rt runtime.Runtime, params *WithdrawUnbondedParams) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	caller := rt.Caller()
	receiver := params.Receiver
	if receiver == address.Undef {
		receiver = caller
	}

	var st State
	var payout big.Int
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)

		requests, err := st.loadUnbondRequests(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load unbond requests")
		batches, err := st.loadPreviousBatches(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")

		var claims []unbondClaim
		err = requests.ForEach(func() adt.CBORUnmarshaler { return new(UnbondRequest) }, func(key string, v adt.CBORUnmarshaler) error {
			r := v.(*UnbondRequest)
			if r.User == caller {
				claims = append(claims, unbondClaim{key: adt.StringKey(key), batchID: r.ID, shares: r.Shares})
			}
			return nil
		})
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan unbond requests")
		builtin.RequireState(rt, len(claims) > 0, "no unbond requests for this caller")

		touched := make(map[uint64]*Batch)
		payout = big.Zero()
		for _, c := range claims {
			batch, ok := touched[c.batchID]
			if !ok {
				var b Batch
				found, err := batches.Get(adt.StringKey(uintToKey(c.batchID)), &b)
				builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to look up batch")
				if !found {
					continue // not yet submitted
				}
				batch = &b
				touched[c.batchID] = batch
			}
			if !batch.Reconciled {
				continue // submitted but still unbonding
			}

			share := big.Div(big.Mul(c.shares, batch.TokenUnclaimed), batch.TotalShares)
			payout = big.Add(payout, share)
			batch.TokenUnclaimed = big.SubNonNegative(batch.TokenUnclaimed, share)
			batch.TotalShares = big.SubNonNegative(batch.TotalShares, c.shares)

			err = requests.Delete(c.key)
			builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to delete unbond request")
		}
		if payout.IsZero() {
			rt.Abortf(exitcode.ErrInsufficientFunds, "nothing is claimable yet")
		}

		for batchID, batch := range touched {
			if batch.TotalShares.IsZero() {
				err := batches.Delete(adt.StringKey(uintToKey(batchID)))
				builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to purge exhausted batch")
				continue
			}
			err := batches.Put(adt.StringKey(uintToKey(batchID)), batch)
			builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to persist updated batch")
		}

		st.UnbondRequests, err = requests.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush unbond requests")
		st.PreviousBatches, err = batches.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush previous batches")
	})

	if payout.Sign() > 0 {
		rt.Send(receiver, runtime.MethodSend, nil, payout)
	}
	return nil
}

///////////////
// Harvest   //
///////////////

// Harvest withdraws pending staking rewards from every validator, and
// appends self-callbacks that will swap any foreign reward denoms into
// the native TOKEN and reinvest the result (spec.md §4.2 "Harvest").
func (a Actor) Harvest(rt runtime.Runtime, _ *adt.EmptyValue) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	var validators []address.Address
	var swapConfig []SwapConfigEntry
	var nativeDenom string
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)
		var err error
		validators, err = st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		swapConfig = st.SwapConfig
		nativeDenom = st.NativeDenom
	})

	for _, v := range validators {
		rt.Send(v, runtime.MethodStakingWithdrawReward, nil, big.Zero())
	}

	for _, entry := range swapConfig {
		appendCheckReceivedCoinMsg(rt, entry.Denom, big.Zero())
		rt.Send(rt.Receiver(), runtime.MethodSelfCallback, &CallbackMsg{Kind: CallbackSwap, Denom: entry.Denom}, big.Zero())
	}
	// Native-denom rewards (no swap required) still need their own
	// snapshot diff so handleReinvest sees them credited into
	// unlocked_coins before it runs.
	appendCheckReceivedCoinMsg(rt, nativeDenom, big.Zero())
	rt.Send(rt.Receiver(), runtime.MethodSelfCallback, &CallbackMsg{Kind: CallbackReinvest}, big.Zero())
	return nil
}

// handleSwap is CallbackMsg::Swap's handler: it sends the hub's entire
// unlocked balance of msg.Denom to that denom's configured swap
// venue. The native TOKEN the venue returns is credited to
// unlocked_coins by the native-denom CheckReceivedCoin that Harvest
// appends after every Swap callback.
func handleSwap(rt runtime.Runtime, st *State, msg *CallbackMsg) {
	amount := st.UnlockedCoins.Amount(msg.Denom)
	if amount.Sign() <= 0 {
		return
	}
	var venue address.Address
	for _, entry := range st.SwapConfig {
		if entry.Denom == msg.Denom {
			venue = entry.Venue
			break
		}
	}
	if venue == address.Undef {
		rt.Abortf(exitcode.ErrIllegalState, "no swap venue configured for denom %s", msg.Denom)
	}
	st.UnlockedCoins.Remove(msg.Denom)
	rt.Send(venue, runtime.MethodSwapVenueSwap, nil, amount)
}

// handleReinvest is CallbackMsg::Reinvest's handler: it takes the
// hub's current unlocked balance of the native TOKEN (net of the
// protocol's reward fee, sent to fee_config.protocol_fee_recipient),
// redelegates the remainder to the least-delegated validator, and
// records a fresh exchange-rate sample (spec.md §4.2 "Harvest" /
// §4.1 "Reward fee").
func handleReinvest(rt runtime.Runtime, st *State) {
	amount := st.UnlockedCoins.Amount(st.NativeDenom)
	if amount.Sign() <= 0 {
		rt.Abortf(exitcode.ErrInsufficientFunds, "no unlocked %s to reinvest", st.NativeDenom)
	}
	fee := st.FeeConfig.ProtocolRewardFee.MulInt(amount)
	reinvestAmount := big.Sub(amount, fee)
	st.UnlockedCoins.Remove(st.NativeDenom)

	if fee.Sign() > 0 {
		rt.Send(st.FeeConfig.ProtocolFeeRecipient, runtime.MethodSend, nil, fee)
	}
	if reinvestAmount.Sign() > 0 {
		validators, err := st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		if len(validators) > 0 {
			target := leastDelegated(rt, validators)
			rt.Send(target, runtime.MethodStakingDelegate, nil, reinvestAmount)
		}
	}

	recordExchangeRateSample(rt, st)
}

// recordExchangeRateSample appends the current total_delegated/
// stake_supply ratio to exchange_history, consulted by the
// ExchangeRates query's APR derivation (spec.md §6).
func recordExchangeRateSample(rt runtime.Runtime, st *State) {
	validators, err := st.validatorSet(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
	totalStaked := totalDelegated(rt, validators)
	stakeSupply := rt.StakeSupply()
	if stakeSupply.IsZero() {
		return
	}
	rate := DecimalFromRatio(totalStaked, stakeSupply)

	history, err := st.loadExchangeHistory(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load exchange history")
	now := rt.CurrentTime()
	sample := &ExchangeRateSample{Timestamp: now, Rate: rate}
	err = history.Put(adt.StringKey(uintToKey(now)), sample)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to persist exchange rate sample")
	st.ExchangeHistory, err = history.Root()
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush exchange history")
}

/////////////////
// Rebalance   //
/////////////////

// Rebalance computes and emits the redelegations that bring every
// validator's delegation as close as possible to an even share
// (spec.md §4.2 "Rebalance").
func (a Actor) Rebalance(rt runtime.Runtime, _ *adt.EmptyValue) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()

	var st State
	var redelegations []Redelegation
	rt.State().Transaction(&st, func() {
		st.assertStakeTokenRegistered(rt)
		validators, err := st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		delegations := make([]big.Int, len(validators))
		for i, d := range rt.Delegations(validators) {
			delegations[i] = d.Amount
		}
		redelegations = ComputeRedelegationsForRebalancing(validators, delegations)
	})

	for _, r := range redelegations {
		rt.Send(r.Dst, runtime.MethodStakingRedelegate, &RedelegateMsg{Src: r.Src}, r.Amount)
	}
	if len(redelegations) > 0 {
		appendCheckReceivedCoinMsg(rt, st.NativeDenom, big.Zero())
	}
	return nil
}

// RedelegateMsg is the params payload sent to the destination
// validator's redelegate method, naming the validator the stake is
// moving from.
type RedelegateMsg struct {
	Src address.Address
}

///////////////////////
// Validator set ops  //
///////////////////////

// AddValidatorParams names the validator to add.
type AddValidatorParams struct {
	Validator address.Address
}

func (a Actor) AddValidator(rt runtime.Runtime, params *AddValidatorParams) *adt.EmptyValue {
	var st State
	rt.State().Transaction(&st, func() {
		st.assertOwner(rt)
		already, err := st.hasValidator(rt.Store(), params.Validator)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to check validator set")
		builtin.RequireArg(rt, !already, "validator is already in the set")

		validators, err := st.loadValidators(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		ae := addressEntry(params.Validator)
		_, err = validators.Push(&ae)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to add validator")
		st.Validators, err = validators.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush validators")
	})
	return nil
}

// RemoveValidatorParams names the validator to remove.
type RemoveValidatorParams struct {
	Validator address.Address
}

// RemoveValidator evicts a validator from the set, emitting the
// redelegations that move its entire delegation out to the remaining
// validators (spec.md §4.2 "Remove validator").
func (a Actor) RemoveValidator(rt runtime.Runtime, params *RemoveValidatorParams) *adt.EmptyValue {
	var st State
	var redelegations []Redelegation
	rt.State().Transaction(&st, func() {
		st.assertOwner(rt)
		validators, err := st.validatorSet(rt.Store())
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
		builtin.RequireArg(rt, len(validators) > 1, "cannot remove the last validator")

		idx := -1
		for i, v := range validators {
			if v == params.Validator {
				idx = i
				break
			}
		}
		builtin.RequireArg(rt, idx >= 0, "validator is not in the set")

		delegations := rt.Delegations(validators)
		byAddr := make(map[address.Address]big.Int, len(delegations))
		for _, d := range delegations {
			byAddr[d.Validator] = d.Amount
		}
		removedAmount := byAddr[params.Validator]

		remaining := append(append([]address.Address{}, validators[:idx]...), validators[idx+1:]...)
		remainingDelegations := make([]big.Int, len(remaining))
		for i, v := range remaining {
			remainingDelegations[i] = byAddr[v]
		}
		redelegations = ComputeRedelegationsForRemoval(params.Validator, removedAmount, remaining, remainingDelegations)

		arr, err := adt.NewArray(rt.Store()).Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to construct new validator array")
		newArr, err := adt.AsArray(rt.Store(), arr)
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load new validator array")
		for _, v := range remaining {
			ae := addressEntry(v)
			_, err := newArr.Push(&ae)
			builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to rebuild validator set")
		}
		st.Validators, err = newArr.Root()
		builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to flush validator set")
	})

	for _, r := range redelegations {
		rt.Send(r.Dst, runtime.MethodStakingRedelegate, &RedelegateMsg{Src: r.Src}, r.Amount)
	}
	if len(redelegations) > 0 {
		appendCheckReceivedCoinMsg(rt, st.NativeDenom, big.Zero())
	}
	return nil
}

////////////////////////
// Ownership handshake //
////////////////////////

// TransferOwnershipParams names the proposed new owner.
type TransferOwnershipParams struct {
	NewOwner address.Address
}

// TransferOwnership proposes a new owner; the transfer only takes
// effect once that address calls AcceptOwnership, a two-step handshake
// that prevents locking the contract out via a typo'd address
// (execute.rs's `transfer_ownership`/`accept_ownership` pair, spec.md
// §5 "Supplemented features").
func (a Actor) TransferOwnership(rt runtime.Runtime, params *TransferOwnershipParams) *adt.EmptyValue {
	var st State
	rt.State().Transaction(&st, func() {
		st.assertOwner(rt)
		st.NewOwner = params.NewOwner
	})
	return nil
}

func (a Actor) AcceptOwnership(rt runtime.Runtime, _ *adt.EmptyValue) *adt.EmptyValue {
	var st State
	rt.State().Transaction(&st, func() {
		if st.NewOwner == address.Undef {
			rt.Abortf(exitcode.ErrIllegalState, "no ownership transfer is pending")
		}
		rt.ValidateImmediateCallerIs(st.NewOwner)
		st.Owner = st.NewOwner
		st.NewOwner = address.Undef
	})
	return nil
}

//////////////////////
// Update config    //
//////////////////////

// UpdateConfigParams carries the subset of config.rs's UpdateConfigMsg
// fields the caller wants to change; a nil field leaves that setting
// unchanged.
type UpdateConfigParams struct {
	FeeConfig  *FeeConfig
	SwapConfig []SwapConfigEntry
}

func (a Actor) UpdateConfig(rt runtime.Runtime, params *UpdateConfigParams) *adt.EmptyValue {
	var st State
	rt.State().Transaction(&st, func() {
		st.assertOwner(rt)
		if params.FeeConfig != nil {
			builtin.RequireArg(rt, params.FeeConfig.ProtocolRewardFee.LessThanEqual(DecimalFromBps(1000)),
				"protocol reward fee exceeds the 10%% cap")
			st.FeeConfig = *params.FeeConfig
		}
		if params.SwapConfig != nil {
			seen := make(map[string]bool, len(params.SwapConfig))
			for _, entry := range params.SwapConfig {
				builtin.RequireArg(rt, !seen[entry.Denom], "duplicate swap denom %s", entry.Denom)
				seen[entry.Denom] = true
			}
			st.SwapConfig = params.SwapConfig
		}
	})
	return nil
}

//////////////
// Callback //
//////////////

// Callback dispatches the hub's self-addressed continuation messages
// (spec.md component C7 plus the Harvest swap/reinvest chain),
// mirroring contract.rs's `callback` entry point. Only the hub itself
// may invoke it.
func (a Actor) Callback(rt runtime.Runtime, params *CallbackMsg) *adt.EmptyValue {
	rt.ValidateImmediateCallerIs(rt.Receiver())

	var st State
	rt.State().Transaction(&st, func() {
		switch params.Kind {
		case CallbackCheckReceivedCoin:
			handleCheckReceivedCoin(rt, &st, params)
		case CallbackSwap:
			handleSwap(rt, &st, params)
		case CallbackReinvest:
			handleReinvest(rt, &st)
		default:
			rt.Abortf(exitcode.ErrIllegalArgument, "unknown callback kind %d", params.Kind)
		}
	})
	return nil
}

///////////////
// Migrate   //
///////////////

// supportedMigrations lists the prior state-schema versions this
// actor code can migrate from, the set contract.rs's `migrate` entry
// point checks via `assert!(CONTRACT_VERSION ... )` before running any
// storage-layout fixups. A version outside this set is rejected rather
// than silently accepted, per this system's resolved migration
// open question (see DESIGN.md).
var supportedMigrations = map[string]bool{
	"0.1.0": true,
	"0.2.0": true,
}

// MigrateParams carries the version string the caller believes the
// actor is migrating from.
type MigrateParams struct {
	FromVersion string
}

func (a Actor) Migrate(rt runtime.Runtime, params *MigrateParams) *adt.EmptyValue {
	rt.ValidateImmediateCallerAcceptAny()
	if !supportedMigrations[params.FromVersion] {
		rt.Abortf(exitcode.ErrIllegalArgument, "unsupported migration source version %q", params.FromVersion)
	}
	return nil
}

// uintToKey renders n as a fixed-width, zero-padded decimal string so
// Map keys sort lexicographically in numeric order, matching the
// ordering previous_batches/exchange_history need for their range
// queries.
func uintToKey(n uint64) string {
	const width = 20 // len(strconv.FormatUint(math.MaxUint64, 10))
	const digits = "0123456789"
	buf := [width]byte{}
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[:])
}
