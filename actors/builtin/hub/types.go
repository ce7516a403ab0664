package hub

import (
	stdbig "math/big"

	address "github.com/filecoin-project/go-address"

	"github.com/strake-network/stakehub/actors/abi"
	"github.com/strake-network/stakehub/actors/abi/big"
)

// decimalPrecision is the fixed-point scale used by Decimal, matching
// cosmwasm_std::Decimal's 18 decimal places in the original Rust
// (erisprotocol/contracts-terra-classic).
var decimalPrecision = stdbig.NewInt(1_000_000_000_000_000_000)

// Decimal is a fixed-point ratio used for protocol_reward_fee and the
// exchange rate, standing in for cosmwasm_std::Decimal.
type Decimal struct {
	scaled *stdbig.Int // value * 1e18
}

func DecimalOne() Decimal {
	return Decimal{scaled: new(stdbig.Int).Set(decimalPrecision)}
}

func DecimalZero() Decimal {
	return Decimal{scaled: stdbig.NewInt(0)}
}

// DecimalFromRatio computes num/denom as a Decimal, flooring to 1e-18
// precision. denom must be nonzero.
func DecimalFromRatio(num, denom big.Int) Decimal {
	n := new(stdbig.Int).Mul(num.BigInt(), decimalPrecision)
	d := denom.BigInt()
	q := new(stdbig.Int).Div(n, d)
	return Decimal{scaled: q}
}

// DecimalFromBps constructs a Decimal from basis points (1/10000ths),
// e.g. DecimalFromBps(1000) = 10%, used for protocol_reward_fee caps.
func DecimalFromBps(bps int64) Decimal {
	n := new(stdbig.Int).Mul(stdbig.NewInt(bps), decimalPrecision)
	return Decimal{scaled: n.Div(n, stdbig.NewInt(10000))}
}

func (d Decimal) ensure() *stdbig.Int {
	if d.scaled == nil {
		return stdbig.NewInt(0)
	}
	return d.scaled
}

func (d Decimal) IsZero() bool {
	return d.ensure().Sign() == 0
}

func (d Decimal) GreaterThan(o Decimal) bool {
	return d.ensure().Cmp(o.ensure()) > 0
}

func (d Decimal) LessThanEqual(o Decimal) bool {
	return d.ensure().Cmp(o.ensure()) <= 0
}

func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{scaled: new(stdbig.Int).Sub(d.ensure(), o.ensure())}
}

// MulInt computes floor(d * x).
func (d Decimal) MulInt(x big.Int) big.Int {
	n := new(stdbig.Int).Mul(d.ensure(), x.BigInt())
	n.Div(n, decimalPrecision)
	return big.NewFromGo(n)
}

// MulRatio computes d * (numSeconds / denomSeconds), used by the APR
// derivation in hub_queries.go.
func (d Decimal) MulRatio(num, denom uint64) Decimal {
	n := new(stdbig.Int).Mul(d.ensure(), stdbig.NewInt(int64(num)))
	n.Div(n, stdbig.NewInt(int64(denom)))
	return Decimal{scaled: n}
}

// DivDecimal computes d / o at full precision (d.scaled * 1e18 / o.scaled).
func (d Decimal) DivDecimal(o Decimal) Decimal {
	n := new(stdbig.Int).Mul(d.ensure(), decimalPrecision)
	n.Div(n, o.ensure())
	return Decimal{scaled: n}
}

func (d Decimal) String() string {
	return new(stdbig.Rat).SetFrac(d.ensure(), decimalPrecision).FloatString(18)
}

// Coin is a single-denom amount, the Go analogue of cosmwasm_std::Coin.
type Coin struct {
	Denom  abi.Denom
	Amount big.Int
}

// Coins is a normalized, denom-keyed multi-asset balance with additive
// merge (spec.md §2 component C2), mirroring the Rust `types::Coins`
// helper (`Coins(Vec<Coin>)`).
type Coins struct {
	byDenom map[abi.Denom]big.Int
	order   []abi.Denom
}

func NewCoins() *Coins {
	return &Coins{byDenom: make(map[abi.Denom]big.Int)}
}

func CoinsFromSlice(coins []Coin) *Coins {
	c := NewCoins()
	for _, coin := range coins {
		c.Add(coin.Denom, coin.Amount)
	}
	return c
}

// Add merges amount into denom's balance, creating the entry if absent.
func (c *Coins) Add(denom abi.Denom, amount big.Int) {
	cur, ok := c.byDenom[denom]
	if !ok {
		c.order = append(c.order, denom)
		c.byDenom[denom] = amount
		return
	}
	c.byDenom[denom] = big.Add(cur, amount)
}

// Remove deletes denom's entry entirely (used once its amount has been
// fully committed to reinvestment, matching `unlocked_coins.retain`).
func (c *Coins) Remove(denom abi.Denom) {
	if _, ok := c.byDenom[denom]; !ok {
		return
	}
	delete(c.byDenom, denom)
	for i, d := range c.order {
		if d == denom {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Amount returns denom's balance, zero if absent.
func (c *Coins) Amount(denom abi.Denom) big.Int {
	if v, ok := c.byDenom[denom]; ok {
		return v
	}
	return big.Zero()
}

// ToSlice returns the bag's contents in insertion order, matching the
// Rust `Vec<Coin>` persisted representation.
func (c *Coins) ToSlice() []Coin {
	out := make([]Coin, 0, len(c.order))
	for _, d := range c.order {
		out = append(out, Coin{Denom: d, Amount: c.byDenom[d]})
	}
	return out
}

// PendingBatch is the single, always-present in-progress unbonding
// batch (spec.md §3 "PendingBatch").
type PendingBatch struct {
	ID                 uint64
	StakeToBurn        big.Int
	EstUnbondStartTime abi.UnixSeconds
}

// Batch is a promoted, previously-submitted unbonding batch (spec.md
// §3 "Batch (previous)").
type Batch struct {
	ID               uint64
	Reconciled       bool
	TotalShares      big.Int
	TokenUnclaimed   big.Int
	EstUnbondEndTime abi.UnixSeconds
}

// UnbondRequest is one user's claim against a batch (spec.md §3
// "UnbondRequest").
type UnbondRequest struct {
	ID     uint64
	User   address.Address
	Shares big.Int
}

// FeeConfig is the protocol's reward-fee configuration (spec.md §3
// "Config" fee_config).
type FeeConfig struct {
	ProtocolFeeRecipient address.Address
	ProtocolRewardFee    Decimal
}

// SwapConfigEntry maps a foreign reward denom to the venue that swaps
// it into the native staking denom (spec.md §3 "swap config").
type SwapConfigEntry struct {
	Denom abi.Denom
	Venue address.Address
}

// ExchangeRateSample is one point in the exchange-rate history used by
// the ExchangeRates query's APR derivation (spec.md §6).
type ExchangeRateSample struct {
	Timestamp abi.UnixSeconds
	Rate      Decimal
}

// RequestState classifies an UnbondRequest relative to its batch, the
// three states UnbondRequestsByUserDetails reports (spec.md §6).
type RequestState string

const (
	RequestPending   RequestState = "PENDING"
	RequestUnbonding RequestState = "UNBONDING"
	RequestCompleted RequestState = "COMPLETED"
)
