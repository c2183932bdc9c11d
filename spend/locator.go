// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrOutputNotFound is returned when the funding transaction carries
	// no output whose pkScript matches the policy's.
	ErrOutputNotFound = errors.New("no funding output pays to the policy " +
		"script")

	// ErrInvalidFundingTx is returned when the funding transaction bytes
	// cannot be deserialized.
	ErrInvalidFundingTx = errors.New("invalid funding transaction")
)

// DecodeFundingTx deserializes a raw funding transaction. The bytes must hold
// exactly one serialized transaction, witness data included if present.
func DecodeFundingTx(rawTx []byte) (*wire.MsgTx, error) {
	r := bytes.NewReader(rawTx)
	tx := &wire.MsgTx{}
	if err := tx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFundingTx, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrInvalidFundingTx, r.Len())
	}

	return tx, nil
}

// LocateOutput scans the funding transaction's outputs in index order and
// returns the outpoint and output of the first one whose pkScript is
// byte-for-byte equal to the given script. The value of the output is not
// inspected, only the script. ErrOutputNotFound is returned when no output
// matches.
func LocateOutput(fundingTx *wire.MsgTx,
	pkScript []byte) (wire.OutPoint, *wire.TxOut, error) {

	txHash := fundingTx.TxHash()
	for i, txOut := range fundingTx.TxOut {
		if !bytes.Equal(txOut.PkScript, pkScript) {
			continue
		}

		log.Debugf("Located funding output %v:%d, value=%d", txHash,
			i, txOut.Value)

		return wire.OutPoint{
			Hash:  txHash,
			Index: uint32(i),
		}, txOut, nil
	}

	return wire.OutPoint{}, nil, fmt.Errorf("%w: script=%x in tx %v",
		ErrOutputNotFound, pkScript, txHash)
}
