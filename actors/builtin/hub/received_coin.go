package hub

import (
	"github.com/strake-network/stakehub/actors/abi/big"
	"github.com/strake-network/stakehub/actors/runtime"
)

// CallbackKind distinguishes the hub's self-addressed continuation
// messages, the Go analogue of the Rust `CallbackMsg` enum
// (`Swap`, `Reinvest`, `CheckReceivedCoin`).
type CallbackKind uint64

const (
	CallbackSwap CallbackKind = iota
	CallbackReinvest
	CallbackCheckReceivedCoin
)

// CallbackMsg is the params payload every self-callback carries,
// dispatched by Actor.Callback (spec.md component C7 "received-coin
// reconciliation" plus the Harvest continuation chain).
type CallbackMsg struct {
	Kind CallbackKind

	// CheckReceivedCoin fields: Denom is the coin whose balance is
	// being reconciled, Snapshot is the hub's balance of Denom at the
	// time this message was appended, minus any amount already known
	// to be in flight (e.g. a deposit the triggering operation itself
	// contributed).
	Denom    string
	Snapshot big.Int
}

// appendCheckReceivedCoinMsg appends a CheckReceivedCoin self-callback
// that will, once executed as a trailing sub-invocation of the current
// transaction, diff the hub's balance of denom against snapshot and
// accrue any positive delta to unlocked_coins (spec.md component C7).
// knownIncoming is subtracted from the present balance before it is
// recorded as the snapshot, so a deposit the caller itself is
// concurrently making (e.g. Bond's native coin) is not mistaken for an
// external reward arriving out-of-band.
func appendCheckReceivedCoinMsg(rt runtime.Runtime, denom string, knownIncoming big.Int) {
	current := rt.Balance(denom)
	snapshot := big.SubNonNegative(current, knownIncoming)
	rt.Send(rt.Receiver(), runtime.MethodSelfCallback, &CallbackMsg{
		Kind:     CallbackCheckReceivedCoin,
		Denom:    denom,
		Snapshot: snapshot,
	}, big.Zero())
}

// handleCheckReceivedCoin is CallbackMsg::CheckReceivedCoin's handler:
// it compares the hub's current balance of msg.Denom against the
// snapshot taken when the message was appended, and accrues any
// positive delta to st.UnlockedCoins (spec.md component C7). A
// non-positive delta (balance unchanged or even lower, e.g. another
// concurrent withdrawal) is a no-op, never a negative accrual.
func handleCheckReceivedCoin(rt runtime.Runtime, st *State, msg *CallbackMsg) {
	current := rt.Balance(msg.Denom)
	delta := big.SubNonNegative(current, msg.Snapshot)
	if delta.IsZero() {
		return
	}
	st.UnlockedCoins.Add(msg.Denom, delta)
}
