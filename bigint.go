package stdb

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"lukechampine.com/uint128"
)

// U128 is an unsigned 128-bit integer.
type U128 = uint128.Uint128

// U256 is an unsigned 256-bit integer, least significant limb first.
type U256 = uint256.Int

// I128 is a two's complement signed 128-bit integer.
type I128 struct {
	Lo uint64
	Hi uint64
}

// I256 is a two's complement signed 256-bit integer, least significant limb first.
type I256 [4]uint64

func U128From64(v uint64) U128 {
	return uint128.From64(v)
}

func U256From64(v uint64) U256 {
	return U256{v, 0, 0, 0}
}

func U128FromBig(b *big.Int) (U128, error) {
	if b.Sign() < 0 || b.BitLen() > 128 {
		return U128{}, fmt.Errorf("%v does not fit into u128", b)
	}
	return uint128.FromBig(b), nil
}

func U256FromBig(b *big.Int) (U256, error) {
	v, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return U256{}, fmt.Errorf("%v does not fit into u256", b)
	}
	return *v, nil
}

func I128FromInt64(v int64) I128 {
	hi := uint64(0)
	if v < 0 {
		hi = ^uint64(0)
	}
	return I128{Lo: uint64(v), Hi: hi}
}

func I128FromBig(b *big.Int) (I128, error) {
	if b.BitLen() > 127 && !(b.Sign() < 0 && b.BitLen() == 128 && b.TrailingZeroBits() == 127) {
		return I128{}, fmt.Errorf("%v does not fit into i128", b)
	}
	abs := uint128.FromBig(new(big.Int).Abs(b))
	v := I128{Lo: abs.Lo, Hi: abs.Hi}
	if b.Sign() < 0 {
		v = v.Neg()
	}
	return v, nil
}

func (v I128) IsNeg() bool {
	return v.Hi>>63 == 1
}

// Neg returns -v modulo 2^128.
func (v I128) Neg() I128 {
	lo := ^v.Lo + 1
	hi := ^v.Hi
	if lo == 0 {
		hi++
	}
	return I128{Lo: lo, Hi: hi}
}

func (v I128) Big() *big.Int {
	if v.IsNeg() {
		m := v.Neg()
		b := uint128.New(m.Lo, m.Hi).Big()
		return b.Neg(b)
	}
	return uint128.New(v.Lo, v.Hi).Big()
}

func (v I128) String() string {
	return v.Big().String()
}

func I256FromInt64(v int64) I256 {
	fill := uint64(0)
	if v < 0 {
		fill = ^uint64(0)
	}
	return I256{uint64(v), fill, fill, fill}
}

func I256FromBig(b *big.Int) (I256, error) {
	if b.BitLen() > 255 && !(b.Sign() < 0 && b.BitLen() == 256 && b.TrailingZeroBits() == 255) {
		return I256{}, fmt.Errorf("%v does not fit into i256", b)
	}
	abs, _ := uint256.FromBig(new(big.Int).Abs(b))
	if b.Sign() < 0 {
		abs.Neg(abs)
	}
	return I256(*abs), nil
}

func (v I256) IsNeg() bool {
	return v[3]>>63 == 1
}

func (v I256) Big() *big.Int {
	u := uint256.Int(v)
	if v.IsNeg() {
		var m uint256.Int
		m.Neg(&u)
		b := m.ToBig()
		return b.Neg(b)
	}
	return u.ToBig()
}

func (v I256) String() string {
	return v.Big().String()
}
