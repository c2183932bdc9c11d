// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// SatPerVByte represents a fee rate in sat/vbyte.
type SatPerVByte float64

// NewSatPerVByte derives the fee rate paid by a transaction of the given
// virtual size.
func NewSatPerVByte(fee btcutil.Amount, size VByte) SatPerVByte {
	if size == 0 {
		return 0
	}

	return SatPerVByte(float64(fee) / float64(size))
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return fmt.Sprintf("%.1f sat/vb", float64(s))
}
