package hub

import (
	address "github.com/filecoin-project/go-address"

	"github.com/strake-network/stakehub/actors/abi"
	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/builtin"
	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/util/adt"
)

// All query handlers validate the caller via
// ValidateImmediateCallerAcceptAny and never mutate state, mirroring
// queries.rs's read-only `query` entry point and contract.rs's
// dispatch into it.

// ConfigResponse mirrors queries.rs's ConfigResponse.
type ConfigResponse struct {
	Owner        address.Address
	NewOwner     address.Address
	StakeToken   address.Address
	NativeDenom  string
	EpochPeriod  uint64
	UnbondPeriod uint64
	FeeConfig    FeeConfig
	SwapConfig   []SwapConfigEntry
	Validators   []address.Address
}

func (a Actor) Config(rt runtime.Runtime, _ *adt.EmptyValue) *ConfigResponse {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	validators, err := st.validatorSet(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
	return &ConfigResponse{
		Owner:        st.Owner,
		NewOwner:     st.NewOwner,
		StakeToken:   st.StakeToken,
		NativeDenom:  st.NativeDenom,
		EpochPeriod:  st.EpochPeriod,
		UnbondPeriod: st.UnbondPeriod,
		FeeConfig:    st.FeeConfig,
		SwapConfig:   st.SwapConfig,
		Validators:   validators,
	}
}

// StateResponse mirrors queries.rs's StateResponse ("total staked
// TOKEN", "total STAKE supply", "exchange rate", "unlocked coins",
// "available/TVL").
type StateResponse struct {
	TotalStaked   big.Int
	TotalStake    big.Int
	ExchangeRate  Decimal
	UnlockedCoins []Coin
	TVL           big.Int
}

func (a Actor) State(rt runtime.Runtime, _ *adt.EmptyValue) *StateResponse {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)

	validators, err := st.validatorSet(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load validators")
	totalStaked := totalDelegated(rt, validators)
	stakeSupply := rt.StakeSupply()

	var rate Decimal
	if stakeSupply.IsZero() {
		rate = DecimalOne()
	} else {
		rate = DecimalFromRatio(totalStaked, stakeSupply)
	}

	unlocked := st.UnlockedCoins.ToSlice()
	tvl := totalStaked
	for _, c := range unlocked {
		if c.Denom == st.NativeDenom {
			tvl = big.Add(tvl, c.Amount)
		}
	}

	return &StateResponse{
		TotalStaked:   totalStaked,
		TotalStake:    stakeSupply,
		ExchangeRate:  rate,
		UnlockedCoins: unlocked,
		TVL:           tvl,
	}
}

func (a Actor) PendingBatchQuery(rt runtime.Runtime, _ *adt.EmptyValue) *PendingBatch {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	return &st.PendingBatch
}

// BatchIDParams names a single previous batch, used by the queries that
// look one up directly rather than by pagination or by user.
type BatchIDParams struct {
	BatchID uint64
}

func (a Actor) PreviousBatchQuery(rt runtime.Runtime, params *BatchIDParams) *Batch {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	batches, err := st.loadPreviousBatches(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")
	var batch Batch
	found, err := batches.Get(adt.StringKey(uintToKey(params.BatchID)), &batch)
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to look up batch")
	if !found {
		rt.Abortf(exitcode.ErrNotFound, "no such batch: %d", params.BatchID)
	}
	return &batch
}

// PreviousBatchesParams mirrors queries.rs's pagination parameters,
// clamped the way queries.rs clamps `limit` ("default 10, max 30").
type PreviousBatchesParams struct {
	StartAfter uint64
	Limit      uint32
	HasStart   bool
}

func (p *PreviousBatchesParams) limit() int {
	const defaultLimit, maxLimit = 10, 30
	if p.Limit == 0 {
		return defaultLimit
	}
	if p.Limit > maxLimit {
		return maxLimit
	}
	return int(p.Limit)
}

func (a Actor) PreviousBatchesQuery(rt runtime.Runtime, params *PreviousBatchesParams) []*Batch {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	batches, err := st.loadPreviousBatches(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")

	out := make([]*Batch, 0, params.limit())
	err = batches.ForEach(func() adt.CBORUnmarshaler { return new(Batch) }, func(_ string, v adt.CBORUnmarshaler) error {
		b := v.(*Batch)
		if params.HasStart && b.ID <= params.StartAfter {
			return nil
		}
		if len(out) >= params.limit() {
			return nil
		}
		out = append(out, b)
		return nil
	})
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan previous batches")
	return out
}

func (a Actor) UnbondRequestsByBatchQuery(rt runtime.Runtime, params *BatchIDParams) []*UnbondRequest {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	requests, err := st.loadUnbondRequests(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load unbond requests")

	var out []*UnbondRequest
	err = requests.ForEach(func() adt.CBORUnmarshaler { return new(UnbondRequest) }, func(_ string, v adt.CBORUnmarshaler) error {
		r := v.(*UnbondRequest)
		if r.ID == params.BatchID {
			out = append(out, r)
		}
		return nil
	})
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan unbond requests")
	return out
}

// UnbondRequestsByUserParams names the user whose requests to list.
type UnbondRequestsByUserParams struct {
	User address.Address
}

func (a Actor) UnbondRequestsByUserQuery(rt runtime.Runtime, params *UnbondRequestsByUserParams) []*UnbondRequest {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	requests, err := st.loadUnbondRequests(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load unbond requests")

	var out []*UnbondRequest
	err = requests.ForEach(func() adt.CBORUnmarshaler { return new(UnbondRequest) }, func(_ string, v adt.CBORUnmarshaler) error {
		r := v.(*UnbondRequest)
		if r.User == params.User {
			out = append(out, r)
		}
		return nil
	})
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan unbond requests")
	return out
}

// UnbondRequestDetail classifies one request relative to its batch,
// mirroring queries.rs's `unbond_requests_by_user_details` response.
type UnbondRequestDetail struct {
	BatchID uint64
	Shares  big.Int
	State   RequestState
	Payout  big.Int // zero unless State == RequestCompleted
}

// UnbondRequestsByUserDetailsQuery classifies every one of user's
// requests as PENDING (batch still open), UNBONDING (batch submitted
// but not yet reconciled) or COMPLETED (reconciled, ready for
// withdraw_unbonded) — spec.md §5 "Supplemented features",
// queries.rs's richer variant of unbond_requests_by_user.
func (a Actor) UnbondRequestsByUserDetailsQuery(rt runtime.Runtime, params *UnbondRequestsByUserParams) []*UnbondRequestDetail {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)

	requests, err := st.loadUnbondRequests(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load unbond requests")
	batches, err := st.loadPreviousBatches(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load previous batches")

	var out []*UnbondRequestDetail
	err = requests.ForEach(func() adt.CBORUnmarshaler { return new(UnbondRequest) }, func(_ string, v adt.CBORUnmarshaler) error {
		r := v.(*UnbondRequest)
		if r.User != params.User {
			return nil
		}
		detail := &UnbondRequestDetail{BatchID: r.ID, Shares: r.Shares}
		if r.ID == st.PendingBatch.ID {
			detail.State = RequestPending
			out = append(out, detail)
			return nil
		}
		var batch Batch
		found, err := batches.Get(adt.StringKey(uintToKey(r.ID)), &batch)
		if err != nil {
			return err
		}
		if !found {
			detail.State = RequestPending
			out = append(out, detail)
			return nil
		}
		if !batch.Reconciled {
			detail.State = RequestUnbonding
		} else {
			detail.State = RequestCompleted
			detail.Payout = big.Div(big.Mul(r.Shares, batch.TokenUnclaimed), batch.TotalShares)
		}
		out = append(out, detail)
		return nil
	})
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan unbond requests")
	return out
}

// ExchangeRatesParams mirrors queries.rs's exchange-rate-history
// pagination parameters.
type ExchangeRatesParams struct {
	StartAfter abi.UnixSeconds
	Limit      uint32
	HasStart   bool
}

func (p *ExchangeRatesParams) limit() int {
	const defaultLimit, maxLimit = 10, 30
	if p.Limit == 0 {
		return defaultLimit
	}
	if p.Limit > maxLimit {
		return maxLimit
	}
	return int(p.Limit)
}

// ExchangeRateEntry pairs a historical sample with the APR implied by
// the change since the previous sample, matching queries.rs's
// `query_exchange_rates` formula:
// delta_rate * (seconds-per-day / delta_time_seconds) / previous_rate.
type ExchangeRateEntry struct {
	Timestamp abi.UnixSeconds
	Rate      Decimal
	APR       Decimal // zero for the oldest sample in the window (no prior point)
}

const secondsPerDay = 86400

func (a Actor) ExchangeRatesQuery(rt runtime.Runtime, params *ExchangeRatesParams) []*ExchangeRateEntry {
	rt.ValidateImmediateCallerAcceptAny()
	var st State
	rt.State().Readonly(&st)
	history, err := st.loadExchangeHistory(rt.Store())
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to load exchange history")

	var samples []*ExchangeRateSample
	err = history.ForEach(func() adt.CBORUnmarshaler { return new(ExchangeRateSample) }, func(_ string, v adt.CBORUnmarshaler) error {
		s := v.(*ExchangeRateSample)
		if params.HasStart && s.Timestamp <= params.StartAfter {
			return nil
		}
		if len(samples) >= params.limit() {
			return nil
		}
		samples = append(samples, s)
		return nil
	})
	builtin.RequireNoErr(rt, err, exitcode.ErrIllegalState, "failed to scan exchange history")

	out := make([]*ExchangeRateEntry, 0, len(samples))
	var prev *ExchangeRateSample
	for _, s := range samples {
		entry := &ExchangeRateEntry{Timestamp: s.Timestamp, Rate: s.Rate}
		// A non-positive elapsed time (duplicate or out-of-order
		// timestamp) leaves APR at zero rather than dividing by a
		// non-positive delta, this system's resolved decision for an
		// open question queries.rs's formula left implicit.
		if prev != nil && s.Timestamp > prev.Timestamp && !prev.Rate.IsZero() {
			deltaRate := s.Rate.Sub(prev.Rate)
			deltaTime := s.Timestamp - prev.Timestamp
			entry.APR = deltaRate.MulRatio(secondsPerDay, uint64(deltaTime)).DivDecimal(prev.Rate)
		}
		out = append(out, entry)
		prev = s
	}
	return out
}
