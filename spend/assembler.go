// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/spender/policy"
)

var (
	// ErrInsufficientAmount is returned when the requested spend amount
	// does not exceed the fee, leaving nothing for the destination.
	ErrInsufficientAmount = errors.New("spend amount does not exceed fee")

	// ErrExceedsFunding is returned when the requested spend amount is
	// larger than the located funding output's value.
	ErrExceedsFunding = errors.New("spend amount exceeds funding output " +
		"value")

	// ErrDustOutput is returned when the destination output after fee
	// deduction would be considered dust by standard relay policy.
	ErrDustOutput = errors.New("destination output is dust")
)

// SpendRequest describes a single-input, single-output spend of a policy
// controlled funding output.
type SpendRequest struct {
	// FundingTx is the transaction holding the output to spend.
	FundingTx *wire.MsgTx

	// Desc is the spending policy the funding output pays to.
	Desc *policy.Descriptor

	// Destination is where the spent value, less the fee, is sent.
	Destination btcutil.Address

	// Amount is the value drawn from the funding output. The destination
	// receives Amount minus Fee.
	Amount btcutil.Amount

	// Fee is the absolute fee the spend pays.
	Fee btcutil.Amount

	// SigHashType is the sighash type every collected signature must
	// commit to.
	SigHashType txscript.SigHashType
}

// AssembleSpend builds the unsigned spending transaction for the request and
// wraps it into a PSBT packet ready to be passed to the signers. The packet
// carries the previous output, the policy script and the sighash type on its
// single input so each signer can recompute the digest independently.
//
// The transaction's lock time and input sequence are derived from the
// policy: an absolute timelock raises the lock time to the policy's value
// and forces a non-final sequence so the lock time is enforced, a relative
// timelock sets the sequence to the required BIP0068 value.
func AssembleSpend(req *SpendRequest) (*psbt.Packet, error) {
	switch {
	case req.FundingTx == nil:
		return nil, errors.New("nil funding transaction")
	case req.Desc == nil:
		return nil, errors.New("nil policy descriptor")
	case req.Destination == nil:
		return nil, errors.New("nil destination address")
	case req.Fee < 0:
		return nil, errors.New("negative fee")
	}

	if err := ValidateSigHashType(req.SigHashType); err != nil {
		return nil, err
	}

	// The fee comes out of the spent amount, so the amount must strictly
	// exceed it for the destination to receive anything at all.
	if req.Amount <= req.Fee {
		return nil, fmt.Errorf("%w: amount=%v, fee=%v",
			ErrInsufficientAmount, req.Amount, req.Fee)
	}

	pkScript, err := req.Desc.PkScript()
	if err != nil {
		return nil, err
	}

	outPoint, utxo, err := LocateOutput(req.FundingTx, pkScript)
	if err != nil {
		return nil, err
	}

	if req.Amount > btcutil.Amount(utxo.Value) {
		return nil, fmt.Errorf("%w: amount=%v, funding=%v",
			ErrExceedsFunding, req.Amount,
			btcutil.Amount(utxo.Value))
	}

	destScript, err := txscript.PayToAddrScript(req.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}

	txOut := wire.NewTxOut(int64(req.Amount-req.Fee), destScript)
	if txrules.IsDustOutput(txOut, txrules.DefaultRelayFeePerKb) {
		return nil, fmt.Errorf("%w: value=%v", ErrDustOutput,
			btcutil.Amount(txOut.Value))
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = req.Desc.RequiredLockTime()

	sequence := uint32(wire.MaxTxInSequenceNum)
	if seq, ok := req.Desc.RequiredSequence(); ok {
		sequence = seq
	} else if tx.LockTime > 0 {
		// CLTV requires the input to opt in to lock time enforcement
		// by using a non-final sequence.
		sequence = wire.MaxTxInSequenceNum - 1
	}

	txIn := wire.NewTxIn(&outPoint, nil, nil)
	txIn.Sequence = sequence
	tx.AddTxIn(txIn)
	tx.AddTxOut(txOut)

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("error creating PSBT: %w", err)
	}

	script, err := req.Desc.Script()
	if err != nil {
		return nil, err
	}

	pIn := &packet.Inputs[0]
	pIn.SighashType = req.SigHashType
	if req.Desc.Segwit() {
		pIn.WitnessUtxo = wire.NewTxOut(utxo.Value, utxo.PkScript)
		pIn.WitnessScript = script

		// The full funding tx is attached as well so verifiers can
		// check the spent amount against it.
		pIn.NonWitnessUtxo = req.FundingTx
	} else {
		pIn.NonWitnessUtxo = req.FundingTx
		pIn.RedeemScript = script
	}

	log.Debugf("Assembled spend of %v (fee %v) from %v, lock_time=%d, "+
		"sequence=%d", req.Amount, req.Fee, outPoint, tx.LockTime,
		sequence)

	return packet, nil
}
