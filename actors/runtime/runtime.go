// Package runtime defines the execution context every hub operation
// runs inside, mirroring actors/runtime (vmr.Runtime, aliased as
// `Runtime` at the top of miner_actor.go) in the teacher package.
package runtime

import (
	address "github.com/filecoin-project/go-address"

	"github.com/strake-network/stakehub/actors/abi"
	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/util/adt"
)

// MethodNum identifies an outbound message's target method the way
// abi.MethodNum does in the teacher package: a small integer, not a
// string selector, matching spec.md §5's "appended outbound messages"
// model.
type MethodNum uint64

// Outbound message targets/methods the hub sends to its collaborators
// (spec.md §6 "Outbound dependencies"). These are opaque identifiers
// from the hub's perspective — the receiving module (staking,
// STAKE-token, swap venue) defines their real semantics.
const (
	MethodSend                      MethodNum = 0
	MethodStakingDelegate            MethodNum = 1
	MethodStakingUndelegate          MethodNum = 2
	MethodStakingRedelegate          MethodNum = 3
	MethodStakingWithdrawReward      MethodNum = 4
	MethodStakeTokenMint             MethodNum = 5
	MethodStakeTokenBurn             MethodNum = 6
	MethodSwapVenueSwap              MethodNum = 7
	MethodStakeTokenInstantiateReply MethodNum = 8
	MethodSelfCallback               MethodNum = 9
)

// StateHandle mirrors rt.State() in the teacher package: a handle onto
// the actor's own versioned state blob, loaded/saved atomically around
// a mutation closure.
type StateHandle interface {
	// Readonly loads current state into out without allowing mutation.
	Readonly(out interface{})
	// Transaction loads current state into st, runs f (which may
	// mutate *st in place), then persists the possibly-mutated value.
	// Matches rt.State().Transaction(&st, func(){ ... }) in
	// miner_actor.go.
	Transaction(st interface{}, f func())
	// Create persists the initial state at construction time, matching
	// rt.State().Create(state) in Actor.Constructor.
	Create(st interface{})
}

// Runtime is the dependency every hub operation handler takes,
// standing in for vmr.Runtime in miner_actor.go. A production
// deployment backs this with the host chain's module router; tests
// back it with support/mock.
type Runtime interface {
	// CurrentTime reads the same deterministic clock spec.md
	// §5 requires ("comparisons use the same context clock").
	CurrentTime() abi.UnixSeconds

	// Caller is the immediate message sender (info.sender in the
	// original Rust), Receiver is the hub's own address.
	Caller() address.Address
	Receiver() address.Address

	// ValidateImmediateCallerIs aborts with ErrForbidden unless Caller()
	// is one of addrs, matching rt.ValidateImmediateCallerIs.
	ValidateImmediateCallerIs(addrs ...address.Address)
	// ValidateImmediateCallerAcceptAny is used by queries/permissionless
	// operations, matching rt.ValidateImmediateCallerAcceptAny.
	ValidateImmediateCallerAcceptAny()

	State() StateHandle
	Store() adt.Store

	// Send enqueues an outbound message; in the real runtime these
	// execute, in append order, as trailing sub-invocations of the
	// current transaction (spec.md §5). Returns the receiver's return
	// value and exit code for synchronous-style outbound queries (e.g.
	// balance/delegation queries on collaborator modules).
	Send(to address.Address, method MethodNum, params interface{}, value big.Int) (interface{}, exitcode.ExitCode)

	// Abortf raises a typed, fatal abort — the transaction rolls back
	// in full (spec.md §7 "errors abort the current transaction").
	Abortf(code exitcode.ExitCode, msg string, args ...interface{})

	// Balance returns the hub's own current balance of denom (the
	// native staking denom or any foreign reward denom awaiting swap),
	// standing in for a `BankQuerier` / `deps.querier.query_balance`
	// call in the original Rust.
	Balance(denom abi.Denom) big.Int

	// Delegations returns the current (validator, amount) pairs for
	// the hub's own delegator address, from the staking module,
	// standing in for `query_delegations` in the original Rust.
	Delegations(validators []address.Address) []Delegation

	// StakeSupply returns the STAKE child contract's current total
	// supply, standing in for `query_cw20_total_supply`.
	StakeSupply() big.Int
}

// Delegation is a (validator, amount) pair as returned by the staking
// module, mirroring the Rust `Delegation` helper type.
type Delegation struct {
	Validator address.Address
	Amount    big.Int
}
