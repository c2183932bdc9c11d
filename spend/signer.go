// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrSigSelfVerify is returned when a freshly produced signature does
	// not verify against the signer's own public key. This should never
	// happen with a healthy signing backend and always aborts the spend.
	ErrSigSelfVerify = errors.New("signature failed self-verification")

	// ErrWrongNetwork is returned when a WIF encoded key belongs to a
	// different network than the one the spend targets.
	ErrWrongNetwork = errors.New("private key is for a different network")

	// ErrConflictingSignature is returned when a signer delivers a second,
	// different signature for a public key that already signed.
	ErrConflictingSignature = errors.New("conflicting signature for " +
		"public key")
)

// Signer produces partial signatures over spend digests with a single
// private key. Each signer acts independently and only ever sees the digest,
// never another signer's key material.
type Signer struct {
	privKey *btcec.PrivateKey
	pubKey  *btcec.PublicKey
}

// NewSigner creates a signer from a raw private key.
func NewSigner(privKey *btcec.PrivateKey) *Signer {
	return &Signer{
		privKey: privKey,
		pubKey:  privKey.PubKey(),
	}
}

// NewSignerFromWIF decodes a WIF encoded private key and checks it belongs to
// the given network.
func NewSignerFromWIF(wifStr string, params *chaincfg.Params) (*Signer,
	error) {

	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WIF key: %w", err)
	}
	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("%w: want %v", ErrWrongNetwork,
			params.Name)
	}

	return NewSigner(wif.PrivKey), nil
}

// PubKey returns the signer's public key.
func (s *Signer) PubKey() *btcec.PublicKey {
	return s.pubKey
}

// SignDigest signs the 32-byte digest and returns the DER encoded signature
// with the sighash type byte appended, the form the witness carries. The
// signature is verified against the signer's own public key before it is
// returned, a corrupt signature is never handed to the collector.
func (s *Signer) SignDigest(digest []byte,
	hashType txscript.SigHashType) ([]byte, error) {

	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d",
			len(digest))
	}
	if err := ValidateSigHashType(hashType); err != nil {
		return nil, err
	}

	sig := ecdsa.Sign(s.privKey, digest)
	if !sig.Verify(digest, s.pubKey) {
		return nil, fmt.Errorf("%w: key %x", ErrSigSelfVerify,
			s.pubKey.SerializeCompressed())
	}

	return append(sig.Serialize(), byte(hashType)), nil
}

// SignInput computes the digest for the packet's input, signs it and records
// the partial signature on the packet. The sighash type committed to is the
// one carried by the packet input.
func SignInput(packet *psbt.Packet, idx int, signer *Signer) error {
	digest, _, _, hashType, err := inputDigest(packet, idx)
	if err != nil {
		return err
	}

	sig, err := signer.SignDigest(digest, hashType)
	if err != nil {
		return err
	}

	log.Debugf("Signed input %d with key %x", idx,
		signer.PubKey().SerializeCompressed())

	return CollectSignature(packet, idx, signer.PubKey(), sig)
}

// CollectSignature records a partial signature for the given public key on
// the packet input. Signatures are keyed by the compressed public key: a
// repeated identical signature is a no-op while a different one for the same
// key is rejected. The set is kept sorted by public key so the packet
// serializes deterministically regardless of signing order.
func CollectSignature(packet *psbt.Packet, idx int,
	pubKey *btcec.PublicKey, sig []byte) error {

	if idx < 0 || idx >= len(packet.Inputs) {
		return fmt.Errorf("input index %d out of range", idx)
	}
	if len(sig) == 0 {
		return errors.New("empty signature")
	}

	pIn := &packet.Inputs[idx]
	serialized := pubKey.SerializeCompressed()
	for _, ps := range pIn.PartialSigs {
		if !bytes.Equal(ps.PubKey, serialized) {
			continue
		}
		if bytes.Equal(ps.Signature, sig) {
			return nil
		}

		return fmt.Errorf("%w: %x", ErrConflictingSignature,
			serialized)
	}

	pIn.PartialSigs = append(pIn.PartialSigs, &psbt.PartialSig{
		PubKey:    serialized,
		Signature: sig,
	})
	sort.Slice(pIn.PartialSigs, func(i, j int) bool {
		return bytes.Compare(
			pIn.PartialSigs[i].PubKey, pIn.PartialSigs[j].PubKey,
		) < 0
	})

	return nil
}
