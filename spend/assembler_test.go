// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestAssembleSpend checks the shape of the assembled transaction and its
// PSBT packet.
func TestAssembleSpend(t *testing.T) {
	t.Parallel()

	_, pubKeys := testKeys(t, 2)
	twoOfTwo := fmt.Sprintf("wsh(and(pk(%s),pk(%s)))", pubKeys[0],
		pubKeys[1])

	t.Run("segwit packet", func(t *testing.T) {
		t.Parallel()

		desc := parsePolicy(t, twoOfTwo)
		fundingTx := fundingTxFor(t, desc, 100_000)

		packet, err := AssembleSpend(&SpendRequest{
			FundingTx:   fundingTx,
			Desc:        desc,
			Destination: destAddr(t),
			Amount:      100_000,
			Fee:         500,
			SigHashType: txscript.SigHashAll,
		})
		require.NoError(t, err)

		tx := packet.UnsignedTx
		require.EqualValues(t, 2, tx.Version)
		require.Zero(t, tx.LockTime)
		require.Len(t, tx.TxIn, 1)
		require.Len(t, tx.TxOut, 1)
		require.Equal(t, uint32(wire.MaxTxInSequenceNum),
			tx.TxIn[0].Sequence)
		require.EqualValues(t, 99_500, tx.TxOut[0].Value)
		require.Equal(t, fundingTx.TxHash(),
			tx.TxIn[0].PreviousOutPoint.Hash)
		require.Equal(t, uint32(1), tx.TxIn[0].PreviousOutPoint.Index)

		pIn := packet.Inputs[0]
		require.NotNil(t, pIn.WitnessUtxo)
		require.NotNil(t, pIn.WitnessScript)
		require.Equal(t, txscript.SigHashAll, pIn.SighashType)

		script, err := desc.Script()
		require.NoError(t, err)
		require.Equal(t, script, pIn.WitnessScript)
	})

	t.Run("legacy packet", func(t *testing.T) {
		t.Parallel()

		desc := parsePolicy(t, fmt.Sprintf("sh(multi(2,%s,%s))",
			pubKeys[0], pubKeys[1]))
		fundingTx := fundingTxFor(t, desc, 100_000)

		packet, err := AssembleSpend(&SpendRequest{
			FundingTx:   fundingTx,
			Desc:        desc,
			Destination: destAddr(t),
			Amount:      100_000,
			Fee:         500,
			SigHashType: txscript.SigHashAll,
		})
		require.NoError(t, err)

		pIn := packet.Inputs[0]
		require.Nil(t, pIn.WitnessUtxo)
		require.NotNil(t, pIn.NonWitnessUtxo)
		require.NotNil(t, pIn.RedeemScript)
	})

	t.Run("absolute timelock raises lock time", func(t *testing.T) {
		t.Parallel()

		desc := parsePolicy(t, fmt.Sprintf(
			"wsh(and(pk(%s),after(250)))", pubKeys[0],
		))
		fundingTx := fundingTxFor(t, desc, 100_000)

		packet, err := AssembleSpend(&SpendRequest{
			FundingTx:   fundingTx,
			Desc:        desc,
			Destination: destAddr(t),
			Amount:      100_000,
			Fee:         500,
			SigHashType: txscript.SigHashAll,
		})
		require.NoError(t, err)

		tx := packet.UnsignedTx
		require.EqualValues(t, 250, tx.LockTime)

		// CLTV only passes with a non-final sequence.
		require.Equal(t, uint32(wire.MaxTxInSequenceNum-1),
			tx.TxIn[0].Sequence)
	})

	t.Run("relative timelock sets sequence", func(t *testing.T) {
		t.Parallel()

		desc := parsePolicy(t, fmt.Sprintf(
			"wsh(and(pk(%s),older(144)))", pubKeys[0],
		))
		fundingTx := fundingTxFor(t, desc, 100_000)

		packet, err := AssembleSpend(&SpendRequest{
			FundingTx:   fundingTx,
			Desc:        desc,
			Destination: destAddr(t),
			Amount:      100_000,
			Fee:         500,
			SigHashType: txscript.SigHashAll,
		})
		require.NoError(t, err)
		require.Equal(t, uint32(144),
			packet.UnsignedTx.TxIn[0].Sequence)
	})
}

// TestAssembleSpendErrors checks the request validation boundaries.
func TestAssembleSpendErrors(t *testing.T) {
	t.Parallel()

	_, pubKeys := testKeys(t, 2)
	desc := parsePolicy(t, fmt.Sprintf("wsh(and(pk(%s),pk(%s)))",
		pubKeys[0], pubKeys[1]))
	fundingTx := fundingTxFor(t, desc, 100_000)

	baseReq := func() *SpendRequest {
		return &SpendRequest{
			FundingTx:   fundingTx,
			Desc:        desc,
			Destination: destAddr(t),
			Amount:      100_000,
			Fee:         500,
			SigHashType: txscript.SigHashAll,
		}
	}

	testCases := []struct {
		name        string
		mutate      func(req *SpendRequest)
		expectedErr error
	}{{
		name: "amount equal to fee",
		mutate: func(req *SpendRequest) {
			req.Amount = 500
		},
		expectedErr: ErrInsufficientAmount,
	}, {
		name: "amount below fee",
		mutate: func(req *SpendRequest) {
			req.Amount = 499
		},
		expectedErr: ErrInsufficientAmount,
	}, {
		name: "amount exceeds funding",
		mutate: func(req *SpendRequest) {
			req.Amount = 100_001
		},
		expectedErr: ErrExceedsFunding,
	}, {
		name: "dust output",
		mutate: func(req *SpendRequest) {
			req.Amount = 600
		},
		expectedErr: ErrDustOutput,
	}, {
		name: "invalid sighash type",
		mutate: func(req *SpendRequest) {
			req.SigHashType = txscript.SigHashType(0x04)
		},
		expectedErr: ErrInvalidSigHashType,
	}, {
		name: "no matching output",
		mutate: func(req *SpendRequest) {
			otherTx := fundingTxFor(t, desc, 100_000)
			otherTx.TxOut = otherTx.TxOut[:1]
			req.FundingTx = otherTx
		},
		expectedErr: ErrOutputNotFound,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := baseReq()
			tc.mutate(req)

			_, err := AssembleSpend(req)
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}
}
