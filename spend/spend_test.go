// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spend

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/spender/policy"
	"github.com/stretchr/testify/require"
)

var testParams = &chaincfg.RegressionNetParams

// testKeys derives n deterministic keys along with their hex encoded
// compressed public keys.
func testKeys(t *testing.T, n int) ([]*btcec.PrivateKey, []string) {
	t.Helper()

	privKeys := make([]*btcec.PrivateKey, n)
	pubKeys := make([]string, n)
	for i := range privKeys {
		var seed [32]byte
		seed[31] = byte(i + 1)

		privKey, _ := btcec.PrivKeyFromBytes(seed[:])
		privKeys[i] = privKey
		pubKeys[i] = fmt.Sprintf(
			"%x", privKey.PubKey().SerializeCompressed(),
		)
	}

	return privKeys, pubKeys
}

// fundingTxFor builds a funding transaction with a decoy output at index 0
// and the policy output at index 1.
func fundingTxFor(t *testing.T, desc *policy.Descriptor,
	value int64) *wire.MsgTx {

	t.Helper()

	pkScript, err := desc.PkScript()
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	prevHash := chainhash.Hash{0x01}
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: prevHash}, nil, nil))

	decoy, err := policy.Parse(fmt.Sprintf("wsh(pk(%s))",
		decoyPubKey(t)))
	require.NoError(t, err)
	decoyScript, err := decoy.PkScript()
	require.NoError(t, err)

	tx.AddTxOut(wire.NewTxOut(1_000, decoyScript))
	tx.AddTxOut(wire.NewTxOut(value, pkScript))

	return tx
}

// decoyPubKey returns a key not used by any test policy.
func decoyPubKey(t *testing.T) string {
	t.Helper()

	var seed [32]byte
	seed[0] = 0x7f

	privKey, _ := btcec.PrivKeyFromBytes(seed[:])
	return fmt.Sprintf("%x", privKey.PubKey().SerializeCompressed())
}

// destAddr returns a P2WPKH destination address unrelated to the policy
// keys.
func destAddr(t *testing.T) btcutil.Address {
	t.Helper()

	var seed [32]byte
	seed[0] = 0x5a

	privKey, _ := btcec.PrivKeyFromBytes(seed[:])
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(privKey.PubKey().SerializeCompressed()),
		testParams,
	)
	require.NoError(t, err)

	return addr
}

// parsePolicy parses and sanity checks a policy string.
func parsePolicy(t *testing.T, policyStr string) *policy.Descriptor {
	t.Helper()

	desc, err := policy.Parse(policyStr)
	require.NoError(t, err)
	require.NoError(t, desc.SanityCheck())

	return desc
}
