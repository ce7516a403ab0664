// Package big wraps math/big.Int the way actors/abi/big does in the
// teacher actor package: a minimal, deterministic, floor-dividing
// integer type safe to use in consensus-critical arithmetic (spec.md
// §4.1 "pure, integer-exact, and deterministic").
package big

import (
	"fmt"
	"math/big"
)

// Int is a thin handle over math/big.Int. Values are always copied on
// the way in/out of arithmetic helpers so callers can't alias internal
// state across operations.
type Int struct {
	i *big.Int
}

func NewInt(n int64) Int {
	return Int{big.NewInt(n)}
}

func NewFromGo(n *big.Int) Int {
	return Int{new(big.Int).Set(n)}
}

// BigInt exposes a defensive copy of the underlying math/big.Int, for
// callers (e.g. the hub's fixed-point Decimal type) that need general
// math/big operations this package doesn't wrap.
func (i Int) BigInt() *big.Int {
	return new(big.Int).Set(i.val())
}

func Zero() Int {
	return NewInt(0)
}

func (i Int) Int64() int64 {
	return i.val().Int64()
}

func (i Int) Uint64() uint64 {
	return i.val().Uint64()
}

func (i Int) val() *big.Int {
	if i.i == nil {
		return big.NewInt(0)
	}
	return i.i
}

func (i Int) IsZero() bool {
	return i.val().Sign() == 0
}

func (i Int) Sign() int {
	return i.val().Sign()
}

func (i Int) GreaterThan(o Int) bool {
	return i.val().Cmp(o.val()) > 0
}

func (i Int) GreaterThanEqual(o Int) bool {
	return i.val().Cmp(o.val()) >= 0
}

func (i Int) LessThan(o Int) bool {
	return i.val().Cmp(o.val()) < 0
}

func (i Int) LessThanEqual(o Int) bool {
	return i.val().Cmp(o.val()) <= 0
}

func (i Int) Equals(o Int) bool {
	return i.val().Cmp(o.val()) == 0
}

func Add(a, b Int) Int {
	return Int{new(big.Int).Add(a.val(), b.val())}
}

func Sub(a, b Int) Int {
	return Int{new(big.Int).Sub(a.val(), b.val())}
}

// SubNonNegative subtracts and floors at zero, used where a deduction
// must never be allowed to drive a balance negative (e.g. shortfall
// distribution against a single batch's token_unclaimed).
func SubNonNegative(a, b Int) Int {
	r := Sub(a, b)
	if r.Sign() < 0 {
		return Zero()
	}
	return r
}

func Mul(a, b Int) Int {
	return Int{new(big.Int).Mul(a.val(), b.val())}
}

// Div performs floored integer division, matching the Rust
// implementation's `Uint128` division (which is already floor division
// since it operates on unsigned integers) — spec.md §4.1 and §9
// "Deterministic integer arithmetic: all divisions floor".
func Div(a, b Int) Int {
	if b.IsZero() {
		panic("big: division by zero")
	}
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(a.val(), b.val(), m)
	return Int{q}
}

// Mod returns the remainder of floored division.
func Mod(a, b Int) Int {
	if b.IsZero() {
		panic("big: division by zero")
	}
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(a.val(), b.val(), m)
	return Int{m}
}

func Max(a, b Int) Int {
	if a.GreaterThanEqual(b) {
		return a
	}
	return b
}

func Min(a, b Int) Int {
	if a.LessThanEqual(b) {
		return a
	}
	return b
}

func (i Int) String() string {
	return i.val().String()
}

func (i Int) GoString() string {
	return fmt.Sprintf("big.Int{%s}", i.val().String())
}

// MarshalCBOR/UnmarshalCBOR let Int sit directly inside CBOR-encoded
// state structs (cbor_gen.go) the way abi.TokenAmount does in the
// teacher's generated code, without depending on cbor-gen codegen.
func (i Int) MarshalCBOR(w interface{ Write([]byte) (int, error) }) error {
	b := i.val().Bytes()
	neg := i.val().Sign() < 0
	hdr := make([]byte, 0, len(b)+2)
	if neg {
		hdr = append(hdr, 1)
	} else {
		hdr = append(hdr, 0)
	}
	length := len(b)
	hdr = append(hdr, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func (i *Int) UnmarshalCBOR(r interface {
	Read([]byte) (int, error)
}) error {
	hdr := make([]byte, 5)
	if _, err := r.Read(hdr); err != nil {
		return err
	}
	neg := hdr[0] == 1
	length := int(hdr[1])<<24 | int(hdr[2])<<16 | int(hdr[3])<<8 | int(hdr[4])
	buf := make([]byte, length)
	if length > 0 {
		if _, err := r.Read(buf); err != nil {
			return err
		}
	}
	v := new(big.Int).SetBytes(buf)
	if neg {
		v.Neg(v)
	}
	*i = Int{v}
	return nil
}
