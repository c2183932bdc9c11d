// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInvalidSigHashType is returned when the requested sighash type is
	// not one of the defined base types, with or without the anyone-can-pay
	// flag.
	ErrInvalidSigHashType = errors.New("invalid sighash type")

	// ErrUnsupportedScript is returned when a previous output's pkScript
	// is neither P2WSH nor P2SH, so no sighash variant applies.
	ErrUnsupportedScript = errors.New("previous output script is neither " +
		"P2WSH nor P2SH")

	// ErrMissingInputInfo is returned when a packet input lacks the
	// previous output or script data needed to compute its digest.
	ErrMissingInputInfo = errors.New("packet input is missing utxo or " +
		"script information")
)

// ValidateSigHashType checks that the given type is one txscript can sign
// for: SigHashAll, SigHashNone or SigHashSingle, each optionally combined
// with SigHashAnyOneCanPay. SigHashAll commits to all outputs, SigHashNone
// to none of them and SigHashSingle only to the output at the same index as
// the input. The anyone-can-pay flag removes all other inputs from the
// commitment. SigHashDefault is rejected here as it only has meaning for
// taproot spends.
func ValidateSigHashType(hashType txscript.SigHashType) error {
	base := hashType &^ txscript.SigHashAnyOneCanPay
	switch base {
	case txscript.SigHashAll, txscript.SigHashNone,
		txscript.SigHashSingle:

		return nil

	default:
		return fmt.Errorf("%w: %v", ErrInvalidSigHashType, hashType)
	}
}

// SigHashDigest computes the 32-byte digest that every signature on the given
// input must commit to. The digest variant follows from the previous output's
// script structure: a P2WSH output uses the BIP0143 algorithm, which also
// commits to the spent amount, while a P2SH output uses the original
// algorithm that does not. The script argument is the policy script itself,
// the witness script for P2WSH and the redeem script for P2SH.
func SigHashDigest(tx *wire.MsgTx, idx int, prevOut *wire.TxOut,
	script []byte, hashType txscript.SigHashType) ([]byte, error) {

	if err := ValidateSigHashType(hashType); err != nil {
		return nil, err
	}

	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range", idx)
	}

	// SigHashSingle with no matching output signs the digest of one under
	// the legacy algorithm, a known hole we refuse to step into.
	if hashType&^txscript.SigHashAnyOneCanPay == txscript.SigHashSingle &&
		idx >= len(tx.TxOut) {

		return nil, fmt.Errorf("%w: SigHashSingle input %d has no "+
			"matching output", ErrInvalidSigHashType, idx)
	}

	switch {
	case txscript.IsPayToWitnessScriptHash(prevOut.PkScript):
		fetcher := txscript.NewCannedPrevOutputFetcher(
			prevOut.PkScript, prevOut.Value,
		)
		sigHashes := txscript.NewTxSigHashes(tx, fetcher)

		return txscript.CalcWitnessSigHash(
			script, sigHashes, hashType, tx, idx, prevOut.Value,
		)

	case txscript.IsPayToScriptHash(prevOut.PkScript):
		return txscript.CalcSignatureHash(script, hashType, tx, idx)

	default:
		return nil, fmt.Errorf("%w: %x", ErrUnsupportedScript,
			prevOut.PkScript)
	}
}

// inputDigest resolves a packet input's previous output, policy script and
// sighash type, then computes the digest its signatures must commit to.
func inputDigest(packet *psbt.Packet,
	idx int) ([]byte, *wire.TxOut, []byte, txscript.SigHashType, error) {

	if idx < 0 || idx >= len(packet.Inputs) {
		return nil, nil, nil, 0, fmt.Errorf("input index %d out of "+
			"range", idx)
	}
	pIn := &packet.Inputs[idx]

	var prevOut *wire.TxOut
	switch {
	case pIn.WitnessUtxo != nil:
		prevOut = pIn.WitnessUtxo

	case pIn.NonWitnessUtxo != nil:
		prevIndex := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		if prevIndex >= uint32(len(pIn.NonWitnessUtxo.TxOut)) {
			return nil, nil, nil, 0, fmt.Errorf("%w: outpoint "+
				"index %d out of range", ErrMissingInputInfo,
				prevIndex)
		}
		prevOut = pIn.NonWitnessUtxo.TxOut[prevIndex]

	default:
		return nil, nil, nil, 0, fmt.Errorf("%w: no utxo on input "+
			"%d", ErrMissingInputInfo, idx)
	}

	var script []byte
	switch {
	case pIn.WitnessScript != nil:
		script = pIn.WitnessScript

	case pIn.RedeemScript != nil:
		script = pIn.RedeemScript

	default:
		return nil, nil, nil, 0, fmt.Errorf("%w: no policy script "+
			"on input %d", ErrMissingInputInfo, idx)
	}

	digest, err := SigHashDigest(
		packet.UnsignedTx, idx, prevOut, script, pIn.SighashType,
	)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	return digest, prevOut, script, pIn.SighashType, nil
}
