// Package mock provides an in-memory runtime.Runtime implementation
// for unit tests, mirroring support/mock's Runtime builder
// (mock.NewBuilder(ctx, receiver).WithCaller(...).Build(t)) in the
// teacher package.
package mock

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	address "github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/require"

	"github.com/strake-network/stakehub/actors/abi"
	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
	"github.com/strake-network/stakehub/util/adt"
)

// SentMessage records one outbound Send call, returned by Sent for
// tests to assert on.
type SentMessage struct {
	To     address.Address
	Method runtime.MethodNum
	Params interface{}
	Value  big.Int
}

// abortError is recovered by Runtime's test helpers so a handler's
// rt.Abortf can be asserted on without the whole test process dying,
// mirroring mock.Runtime's own recover-based ExpectAbort.
type abortError struct {
	code exitcode.ExitCode
	msg  string
}

// Runtime is a single-threaded, in-memory stand-in for the production
// Runtime, built directly rather than through a network/chain stack —
// the same role support/mock.Runtime plays against vmr.Runtime in the
// teacher's miner_test.go.
type Runtime struct {
	t testing.TB

	receiver address.Address
	caller   address.Address
	now      abi.UnixSeconds

	store adt.Store
	state interface{}
	has   bool

	balances    map[abi.Denom]big.Int
	delegations map[address.Address]big.Int
	stakeSupply big.Int

	sent []SentMessage
}

func NewRuntime(t testing.TB, receiver address.Address) *Runtime {
	return &Runtime{
		t:           t,
		receiver:    receiver,
		store:       adt.NewStore(context.Background()),
		delegations: make(map[address.Address]big.Int),
		balances:    make(map[abi.Denom]big.Int),
		stakeSupply: big.Zero(),
	}
}

func (rt *Runtime) WithCaller(addr address.Address) *Runtime {
	rt.caller = addr
	return rt
}

func (rt *Runtime) WithEpoch(t abi.UnixSeconds) *Runtime {
	rt.now = t
	return rt
}

func (rt *Runtime) WithBalance(denom abi.Denom, amount big.Int) *Runtime {
	rt.balances[denom] = amount
	return rt
}

func (rt *Runtime) WithDelegation(validator address.Address, amount big.Int) *Runtime {
	rt.delegations[validator] = amount
	return rt
}

func (rt *Runtime) WithStakeSupply(amount big.Int) *Runtime {
	rt.stakeSupply = amount
	return rt
}

func (rt *Runtime) CurrentTime() abi.UnixSeconds { return rt.now }
func (rt *Runtime) Caller() address.Address      { return rt.caller }
func (rt *Runtime) Receiver() address.Address    { return rt.receiver }

func (rt *Runtime) ValidateImmediateCallerIs(addrs ...address.Address) {
	for _, a := range addrs {
		if a == rt.caller {
			return
		}
	}
	rt.Abortf(exitcode.ErrForbidden, "caller %s is not among the expected callers", rt.caller)
}

func (rt *Runtime) ValidateImmediateCallerAcceptAny() {}

type stateHandle struct{ rt *Runtime }

func (rt *Runtime) State() runtime.StateHandle { return &stateHandle{rt} }
func (rt *Runtime) Store() adt.Store           { return rt.store }

func (h *stateHandle) Create(st interface{}) {
	require.False(h.rt.t, h.rt.has, "mock: state already created")
	h.rt.state = st
	h.rt.has = true
}

func (h *stateHandle) Readonly(out interface{}) {
	require.True(h.rt.t, h.rt.has, "mock: state not yet created")
	copyState(h.rt.t, h.rt.state, out)
}

func (h *stateHandle) Transaction(st interface{}, f func()) {
	require.True(h.rt.t, h.rt.has, "mock: state not yet created")
	copyState(h.rt.t, h.rt.state, st)
	f()
	copyState(h.rt.t, st, h.rt.state)
}

// copyState assigns *from into *to via reflection, so the mock stays
// agnostic to which actor's state type it's holding (the hub is the
// only actor in this module, but the mock package mirrors
// support/mock's actor-agnostic Runtime in the teacher package).
func copyState(t testing.TB, from, to interface{}) {
	fv := reflect.Indirect(reflect.ValueOf(from))
	tv := reflect.Indirect(reflect.ValueOf(to))
	require.True(t, tv.CanSet(), "mock: state destination is not settable")
	tv.Set(fv)
}

func (rt *Runtime) Send(to address.Address, method runtime.MethodNum, params interface{}, value big.Int) (interface{}, exitcode.ExitCode) {
	rt.sent = append(rt.sent, SentMessage{To: to, Method: method, Params: params, Value: value})
	return nil, exitcode.Ok
}

func (rt *Runtime) Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	panic(abortError{code: code, msg: fmt.Sprintf(msg, args...)})
}

func (rt *Runtime) Balance(denom abi.Denom) big.Int {
	amt, ok := rt.balances[denom]
	if !ok {
		return big.Zero()
	}
	return amt
}

func (rt *Runtime) Delegations(validators []address.Address) []runtime.Delegation {
	out := make([]runtime.Delegation, 0, len(validators))
	for _, v := range validators {
		amt, ok := rt.delegations[v]
		if !ok {
			amt = big.Zero()
		}
		out = append(out, runtime.Delegation{Validator: v, Amount: amt})
	}
	return out
}

func (rt *Runtime) StakeSupply() big.Int { return rt.stakeSupply }

// Sent returns every message appended via Send since construction, in
// order, for assertions in place of the teacher's ExpectSend/Verify
// pairing.
func (rt *Runtime) Sent() []SentMessage { return rt.sent }

// ExpectAbort runs f and requires it to call rt.Abortf with code,
// mirroring mock.Runtime's ExpectAbort.
func ExpectAbort(t testing.TB, code exitcode.ExitCode, f func()) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected an abort, got none")
		ab, ok := r.(abortError)
		require.True(t, ok, "expected an abort, got panic: %v", r)
		require.Equal(t, code, ab.code, "abort: %s", ab.msg)
	}()
	f()
}
