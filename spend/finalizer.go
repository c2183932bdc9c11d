// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spender/policy"
	"github.com/btcsuite/spender/unit"
)

// FinalizeOption customizes the satisfaction data available when finalizing
// a packet.
type FinalizeOption func(*finalizeOpts)

type finalizeOpts struct {
	preimages [][]byte
}

// WithPreimage makes a 32-byte hash preimage available to the satisfaction
// algorithm. The preimage is matched to hash lock leaves by its SHA256 and
// HASH160 digests.
func WithPreimage(preimage []byte) FinalizeOption {
	return func(o *finalizeOpts) {
		o.preimages = append(o.preimages, preimage)
	}
}

// Finalize turns the collected partial signatures into the final unlocking
// data for every input, verifies the result against the script engine and
// extracts the fully signed transaction.
//
// Each partial signature is re-verified against the input's digest before it
// is offered to the satisfaction algorithm; a signature that does not verify
// is dropped rather than trusted, which leaves its policy leaf unsatisfiable.
func Finalize(packet *psbt.Packet, desc *policy.Descriptor,
	opts ...FinalizeOption) (*wire.MsgTx, error) {

	var fOpts finalizeOpts
	for _, opt := range opts {
		opt(&fOpts)
	}

	for idx := range packet.Inputs {
		err := finalizeInput(packet, idx, desc, &fOpts)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", idx, err)
		}
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("error extracting final tx: %w", err)
	}

	if err := validateSpendTx(finalTx, packet); err != nil {
		return nil, err
	}

	weight := unit.WeightUnit(
		blockchain.GetTransactionWeight(btcutil.NewTx(finalTx)),
	)
	log.Infof("Finalized spend %v, size=%v (%v)", finalTx.TxHash(),
		weight, weight.ToVB())

	return finalTx, nil
}

// finalizeInput builds the unlocking witness or scriptSig for one input from
// its verified partial signatures.
func finalizeInput(packet *psbt.Packet, idx int, desc *policy.Descriptor,
	fOpts *finalizeOpts) error {

	digest, _, script, _, err := inputDigest(packet, idx)
	if err != nil {
		return err
	}

	tx := packet.UnsignedTx
	sf := policy.NewSatisfier(tx.LockTime, tx.TxIn[idx].Sequence)
	for _, preimage := range fOpts.preimages {
		sf.AddPreimage(preimage)
	}

	pIn := &packet.Inputs[idx]
	for _, ps := range pIn.PartialSigs {
		pubKey, err := btcec.ParsePubKey(ps.PubKey)
		if err != nil {
			return fmt.Errorf("invalid public key in partial "+
				"sig: %w", err)
		}

		if !verifyPartialSig(ps.Signature, digest, pubKey,
			pIn.SighashType) {

			log.Warnf("Dropping unverifiable signature for key "+
				"%x on input %d", ps.PubKey, idx)
			continue
		}

		sf.AddSignature(pubKey, ps.Signature)
	}

	witness, err := desc.Satisfy(sf)
	if err != nil {
		return err
	}

	if desc.Segwit() {
		// The witness script rides the stack as the final element.
		finalWitness := append(witness, script)

		var buf bytes.Buffer
		err := psbt.WriteTxWitness(&buf, finalWitness)
		if err != nil {
			return err
		}
		pIn.FinalScriptWitness = buf.Bytes()
	} else {
		builder := txscript.NewScriptBuilder()
		for _, elem := range witness {
			builder.AddData(elem)
		}
		builder.AddData(script)

		sigScript, err := builder.Script()
		if err != nil {
			return err
		}
		pIn.FinalScriptSig = sigScript
	}

	// The partial signatures served their purpose, the finalized input
	// carries only the unlocking data.
	pIn.PartialSigs = nil
	pIn.SighashType = 0

	return nil
}

// verifyPartialSig checks a DER signature with appended sighash type byte
// against the digest. The appended type must match the one the packet input
// declares, otherwise the signature committed to a different digest than the
// one computed here.
func verifyPartialSig(sig, digest []byte, pubKey *btcec.PublicKey,
	hashType txscript.SigHashType) bool {

	if len(sig) < 2 {
		return false
	}
	if txscript.SigHashType(sig[len(sig)-1]) != hashType {
		return false
	}

	parsed, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return false
	}

	return parsed.Verify(digest, pubKey)
}

// validateSpendTx executes every input of the final transaction against the
// script engine with standard verification flags, using the previous outputs
// recorded in the packet.
func validateSpendTx(tx *wire.MsgTx, packet *psbt.Packet) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range tx.TxIn {
		prevOut, err := packetPrevOut(packet, idx)
		if err != nil {
			return err
		}
		fetcher.AddPrevOut(txIn.PreviousOutPoint, prevOut)
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for idx, txIn := range tx.TxIn {
		prevOut := fetcher.FetchPrevOutput(txIn.PreviousOutPoint)

		vm, err := txscript.NewEngine(
			prevOut.PkScript, tx, idx,
			txscript.StandardVerifyFlags, nil, sigHashes,
			prevOut.Value, fetcher,
		)
		if err != nil {
			return fmt.Errorf("error creating script engine "+
				"for input %d: %w", idx, err)
		}

		if err := vm.Execute(); err != nil {
			return fmt.Errorf("spend tx rejected by script "+
				"engine on input %d: %w", idx, err)
		}
	}

	return nil
}

// packetPrevOut returns the previous output a packet input spends.
func packetPrevOut(packet *psbt.Packet, idx int) (*wire.TxOut, error) {
	pIn := &packet.Inputs[idx]
	switch {
	case pIn.WitnessUtxo != nil:
		return pIn.WitnessUtxo, nil

	case pIn.NonWitnessUtxo != nil:
		prevIndex := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		if prevIndex >= uint32(len(pIn.NonWitnessUtxo.TxOut)) {
			return nil, fmt.Errorf("%w: outpoint index %d out "+
				"of range", ErrMissingInputInfo, prevIndex)
		}

		return pIn.NonWitnessUtxo.TxOut[prevIndex], nil

	default:
		return nil, fmt.Errorf("%w: no utxo on input %d",
			ErrMissingInputInfo, idx)
	}
}
