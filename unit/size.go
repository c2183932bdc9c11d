// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides types for expressing transaction sizes and fee
// rates.
package unit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// WeightUnit expresses a transaction size in weight units. One weight unit
// is 1/4_000_000 of the max block size; the weight of a transaction is
// `base size * 3 + total size`.
type WeightUnit uint64

// ToVB converts the weight to virtual bytes, rounding up.
func (w WeightUnit) ToVB() VByte {
	return VByte(
		(uint64(w) + blockchain.WitnessScaleFactor - 1) /
			blockchain.WitnessScaleFactor,
	)
}

// String returns the string representation of the weight.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", uint64(w))
}

// VByte expresses a transaction size in virtual bytes. One virtual byte
// carries the cost of one weight unit scale factor's worth of weight.
type VByte uint64

// ToWU converts the virtual bytes to weight units.
func (v VByte) ToWU() WeightUnit {
	return WeightUnit(uint64(v) * blockchain.WitnessScaleFactor)
}

// String returns the string representation of the virtual bytes.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", uint64(v))
}
