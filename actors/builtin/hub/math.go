package hub

import (
	address "github.com/filecoin-project/go-address"

	"github.com/strake-network/stakehub/actors/abi/big"
)

// Redelegation is one validator-to-validator stake move, the Go
// analogue of the Rust `Redelegation { src, dst, amount }` helper
// emitted by Rebalance and RemoveValidator.
type Redelegation struct {
	Src    address.Address
	Dst    address.Address
	Amount big.Int
}

// MintAmount computes how much STAKE to mint for a bond of
// bondAmount native TOKEN, given the hub's current totalStaked TOKEN
// and the STAKE child contract's current stakeSupply (spec.md §4.1
// "Mint amount"). At supply zero the exchange rate is defined as 1:1
// parity (the very first bond).
func MintAmount(bondAmount, totalStaked, stakeSupply big.Int) big.Int {
	if stakeSupply.IsZero() || totalStaked.IsZero() {
		return bondAmount
	}
	return big.Div(big.Mul(bondAmount, stakeSupply), totalStaked)
}

// UnbondAmount computes how much native TOKEN a burn of stakeAmount
// STAKE is worth, the inverse of MintAmount (spec.md §4.1 "Unbond
// amount").
func UnbondAmount(stakeAmount, totalStaked, stakeSupply big.Int) big.Int {
	if stakeSupply.IsZero() {
		return big.Zero()
	}
	return big.Div(big.Mul(stakeAmount, totalStaked), stakeSupply)
}

// distributeEvenly splits total across n slots as evenly as possible:
// floor(total/n) per slot, with the remainder (total - n*floor)
// added one-each to the first `remainder` slots in the caller's given
// order (spec.md §4.1's "target, plus 1 for the first remainder
// entries" distribution, component C1, used identically by
// undelegation-split, rebalance, removal-redelegation and shortfall
// distribution).
func distributeEvenly(total big.Int, n int) []big.Int {
	if n == 0 {
		return nil
	}
	nBig := big.NewInt(int64(n))
	base := big.Div(total, nBig)
	remainder := big.Sub(total, big.Mul(base, nBig)).Int64()
	out := make([]big.Int, n)
	for i := 0; i < n; i++ {
		if int64(i) < remainder {
			out[i] = big.Add(base, big.NewInt(1))
		} else {
			out[i] = base
		}
	}
	return out
}

// ComputeUndelegations splits an undelegation of amount native TOKEN
// across delegations (current per-validator amounts, in validator-set
// order) so that the post-undelegation delegations are as even as
// possible (spec.md §4.1 "Undelegation split"). Each validator's
// target delegation is floor((sum-amount)/n) with the remainder
// spread across the first entries; the per-validator undelegation is
// current-target, clamped at zero. A validator already below its
// target undelegates nothing, and the total by which such validators
// fall short of their targets is taken off the undelegations of the
// validators above target, in order, so the result still sums to
// amount — the clamp-and-spill resolution of this system's "partial
// unbonding" open question, chosen over rejecting the whole operation
// so a submit_batch can never be blocked by one under-delegated
// validator.
func ComputeUndelegations(delegations []big.Int, amount big.Int) []big.Int {
	n := len(delegations)
	out := make([]big.Int, n)
	if n == 0 {
		return out
	}
	total := big.Zero()
	for _, d := range delegations {
		total = big.Add(total, d)
	}
	newTotal := big.SubNonNegative(total, amount)
	targets := distributeEvenly(newTotal, n)

	excess := big.Zero()
	for i := 0; i < n; i++ {
		excess = big.Add(excess, big.SubNonNegative(targets[i], delegations[i]))
	}
	for i := 0; i < n; i++ {
		want := big.SubNonNegative(delegations[i], targets[i])
		cut := big.Min(want, excess)
		out[i] = big.Sub(want, cut)
		excess = big.Sub(excess, cut)
	}
	return out
}

// ComputeRedelegationsForRebalancing computes the minimal set of
// validator-to-validator moves that brings every validator's
// delegation as close as possible to the even target share (spec.md
// §4.1 "Rebalance"), in validator-set order: surplus validators (above
// target) are matched greedily to deficit validators (below target),
// each move taking min(remaining surplus, remaining deficit).
func ComputeRedelegationsForRebalancing(validators []address.Address, delegations []big.Int) []Redelegation {
	n := len(validators)
	if n == 0 {
		return nil
	}
	total := big.Zero()
	for _, d := range delegations {
		total = big.Add(total, d)
	}
	targets := distributeEvenly(total, n)

	type party struct {
		addr   address.Address
		amount big.Int
	}
	var surplus, deficit []party
	for i := 0; i < n; i++ {
		if delegations[i].GreaterThan(targets[i]) {
			surplus = append(surplus, party{validators[i], big.Sub(delegations[i], targets[i])})
		} else if targets[i].GreaterThan(delegations[i]) {
			deficit = append(deficit, party{validators[i], big.Sub(targets[i], delegations[i])})
		}
	}

	var out []Redelegation
	si, di := 0, 0
	for si < len(surplus) && di < len(deficit) {
		amt := big.Min(surplus[si].amount, deficit[di].amount)
		if amt.Sign() > 0 {
			out = append(out, Redelegation{Src: surplus[si].addr, Dst: deficit[di].addr, Amount: amt})
		}
		surplus[si].amount = big.Sub(surplus[si].amount, amt)
		deficit[di].amount = big.Sub(deficit[di].amount, amt)
		if surplus[si].amount.IsZero() {
			si++
		}
		if deficit[di].amount.IsZero() {
			di++
		}
	}
	return out
}

// ComputeRedelegationsForRemoval computes the moves that empty
// removed's entire delegation out to the remaining validators so that
// the remaining set ends up as even as possible (spec.md §4.1 "Removal
// redelegation"): the remaining validators' combined total (including
// removed's former stake) is distributed evenly across them in
// validator-set order, and each remaining validator's increment
// (target - its current delegation) becomes a single redelegation from
// removed.
func ComputeRedelegationsForRemoval(removed address.Address, removedAmount big.Int, remaining []address.Address, remainingDelegations []big.Int) []Redelegation {
	n := len(remaining)
	if n == 0 {
		return nil
	}
	total := removedAmount
	for _, d := range remainingDelegations {
		total = big.Add(total, d)
	}
	targets := distributeEvenly(total, n)

	out := make([]Redelegation, 0, n)
	for i := 0; i < n; i++ {
		inc := big.Sub(targets[i], remainingDelegations[i])
		if inc.Sign() > 0 {
			out = append(out, Redelegation{Src: removed, Dst: remaining[i], Amount: inc})
		}
	}
	return out
}

// ReconcileShortfall distributes a reconciliation shortfall (expected
// unbonded TOKEN minus what was actually received, spec.md §4.1
// "Shortfall distribution") evenly across the given batches'
// token_unclaimed amounts, in batch-id order: floor(shortfall/n) is
// deducted from every batch, with the remainder deducted (one extra
// unit each) from the first batches in that order. A shortfall larger
// than a given batch's own token_unclaimed floors that batch at zero
// (SubNonNegative) rather than going negative.
func ReconcileShortfall(batches []*Batch, shortfall big.Int) {
	n := len(batches)
	if n == 0 || shortfall.IsZero() {
		return
	}
	deductions := distributeEvenly(shortfall, n)
	for i, b := range batches {
		b.TokenUnclaimed = big.SubNonNegative(b.TokenUnclaimed, deductions[i])
	}
}
