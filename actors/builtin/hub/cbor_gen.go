package hub

import (
	"io"

	address "github.com/filecoin-project/go-address"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/strake-network/stakehub/actors/abi/big"
)

// addressEntry adapts address.Address to adt's CBORMarshaler/
// CBORUnmarshaler so it can sit directly inside an adt.Array slot (the
// validator set), the way a hand-generated cbor_gen.go file wraps a
// foreign type for a cbor-gen-backed struct field.
type addressEntry address.Address

func (a *addressEntry) MarshalCBOR(w io.Writer) error {
	b := address.Address(*a).Bytes()
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajByteString, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func (a *addressEntry) UnmarshalCBOR(r io.Reader) error {
	_, l, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "addressEntry: read header")
	}
	buf := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Wrap(err, "addressEntry: read bytes")
		}
	}
	addr, err := address.NewFromBytes(buf)
	if err != nil {
		return errors.Wrap(err, "addressEntry: decode address")
	}
	*a = addressEntry(addr)
	return nil
}

// MarshalCBOR/UnmarshalCBOR for Batch, UnbondRequest and
// ExchangeRateSample follow the same hand-rolled, field-ordered
// encoding cbor-gen emits for a plain struct: a fixed-length array
// header followed by each field in declaration order.

func (b *Batch) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 5); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, b.ID); err != nil {
		return err
	}
	reconciled := uint64(0)
	if b.Reconciled {
		reconciled = 1
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, reconciled); err != nil {
		return err
	}
	if err := b.TotalShares.MarshalCBOR(w); err != nil {
		return err
	}
	if err := b.TokenUnclaimed.MarshalCBOR(w); err != nil {
		return err
	}
	return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, b.EstUnbondEndTime)
}

func (b *Batch) UnmarshalCBOR(r io.Reader) error {
	if _, _, err := cbg.CborReadHeader(r); err != nil {
		return errors.Wrap(err, "Batch: read array header")
	}
	_, id, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "Batch: read id")
	}
	_, reconciled, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "Batch: read reconciled")
	}
	var shares, unclaimed big.Int
	if err := shares.UnmarshalCBOR(r); err != nil {
		return errors.Wrap(err, "Batch: read total shares")
	}
	if err := unclaimed.UnmarshalCBOR(r); err != nil {
		return errors.Wrap(err, "Batch: read token unclaimed")
	}
	_, endTime, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "Batch: read end time")
	}
	b.ID = id
	b.Reconciled = reconciled == 1
	b.TotalShares = shares
	b.TokenUnclaimed = unclaimed
	b.EstUnbondEndTime = endTime
	return nil
}

func (u *UnbondRequest) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 3); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, u.ID); err != nil {
		return err
	}
	ae := addressEntry(u.User)
	if err := ae.MarshalCBOR(w); err != nil {
		return err
	}
	return u.Shares.MarshalCBOR(w)
}

func (u *UnbondRequest) UnmarshalCBOR(r io.Reader) error {
	if _, _, err := cbg.CborReadHeader(r); err != nil {
		return errors.Wrap(err, "UnbondRequest: read array header")
	}
	_, id, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "UnbondRequest: read id")
	}
	var ae addressEntry
	if err := ae.UnmarshalCBOR(r); err != nil {
		return errors.Wrap(err, "UnbondRequest: read user")
	}
	var shares big.Int
	if err := shares.UnmarshalCBOR(r); err != nil {
		return errors.Wrap(err, "UnbondRequest: read shares")
	}
	u.ID = id
	u.User = address.Address(ae)
	u.Shares = shares
	return nil
}

func (e *ExchangeRateSample) MarshalCBOR(w io.Writer) error {
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajArray, 2); err != nil {
		return err
	}
	if err := cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, e.Timestamp); err != nil {
		return err
	}
	scaled := big.NewFromGo(e.Rate.ensure())
	return scaled.MarshalCBOR(w)
}

func (e *ExchangeRateSample) UnmarshalCBOR(r io.Reader) error {
	if _, _, err := cbg.CborReadHeader(r); err != nil {
		return errors.Wrap(err, "ExchangeRateSample: read array header")
	}
	_, ts, err := cbg.CborReadHeader(r)
	if err != nil {
		return errors.Wrap(err, "ExchangeRateSample: read timestamp")
	}
	var scaled big.Int
	if err := scaled.UnmarshalCBOR(r); err != nil {
		return errors.Wrap(err, "ExchangeRateSample: read rate")
	}
	e.Timestamp = ts
	e.Rate = Decimal{scaled: scaled.BigInt()}
	return nil
}
