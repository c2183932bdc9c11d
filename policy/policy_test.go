// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

// testKeys derives n deterministic keys and returns them along with their
// hex encoded compressed public keys for use in policy strings.
func testKeys(t *testing.T, n int) ([]*btcec.PrivateKey, []string) {
	t.Helper()

	privKeys := make([]*btcec.PrivateKey, n)
	pubKeys := make([]string, n)
	for i := range privKeys {
		var seed [32]byte
		seed[31] = byte(i + 1)

		privKey, _ := btcec.PrivKeyFromBytes(seed[:])
		privKeys[i] = privKey
		pubKeys[i] = hex.EncodeToString(
			privKey.PubKey().SerializeCompressed(),
		)
	}

	return privKeys, pubKeys
}

// TestParsePolicy checks that well formed policies parse into the expected
// tree and that malformed ones are rejected with the right error.
func TestParsePolicy(t *testing.T) {
	t.Parallel()

	_, pubKeys := testKeys(t, 3)
	sha256Hash := "1111111111111111111111111111111111111111111111111111" +
		"111111111111"
	hash160Hash := "2222222222222222222222222222222222222222"

	testCases := []struct {
		name        string
		policy      string
		expectedErr error
		check       func(t *testing.T, desc *Descriptor)
	}{{
		name:   "single key wsh",
		policy: fmt.Sprintf("wsh(pk(%s))", pubKeys[0]),
		check: func(t *testing.T, desc *Descriptor) {
			require.True(t, desc.Segwit())
			require.Equal(t, KindPk, desc.Root().Kind)
		},
	}, {
		name: "two of two",
		policy: fmt.Sprintf("wsh(and(pk(%s),pk(%s)))", pubKeys[0],
			pubKeys[1]),
		check: func(t *testing.T, desc *Descriptor) {
			require.Equal(t, KindAnd, desc.Root().Kind)
			require.Len(t, desc.Root().Children, 2)
		},
	}, {
		name: "multisig legacy",
		policy: fmt.Sprintf("sh(multi(2,%s,%s,%s))", pubKeys[0],
			pubKeys[1], pubKeys[2]),
		check: func(t *testing.T, desc *Descriptor) {
			require.False(t, desc.Segwit())
			require.Equal(t, KindMulti, desc.Root().Kind)
			require.Equal(t, 2, desc.Root().K)
			require.Len(t, desc.Root().Keys, 3)
		},
	}, {
		name: "nested or with timelock",
		policy: fmt.Sprintf("wsh(or(pk(%s),and(pk(%s),older(144))))",
			pubKeys[0], pubKeys[1]),
		check: func(t *testing.T, desc *Descriptor) {
			root := desc.Root()
			require.Equal(t, KindOr, root.Kind)
			require.Equal(t, KindOlder,
				root.Children[1].Children[1].Kind)
			require.Equal(t, uint32(144),
				root.Children[1].Children[1].LockValue)
		},
	}, {
		name: "threshold",
		policy: fmt.Sprintf("wsh(thresh(2,pk(%s),pk(%s),pk(%s)))",
			pubKeys[0], pubKeys[1], pubKeys[2]),
		check: func(t *testing.T, desc *Descriptor) {
			require.Equal(t, KindThresh, desc.Root().Kind)
			require.Equal(t, 2, desc.Root().K)
		},
	}, {
		name: "hash locks",
		policy: fmt.Sprintf("wsh(and(pk(%s),sha256(%s)))", pubKeys[0],
			sha256Hash),
		check: func(t *testing.T, desc *Descriptor) {
			hashNode := desc.Root().Children[1]
			require.Equal(t, KindSha256, hashNode.Kind)
			require.Len(t, hashNode.Hash, 32)
		},
	}, {
		name: "hash160 lock",
		policy: fmt.Sprintf("wsh(and(pk(%s),hash160(%s)))",
			pubKeys[0], hash160Hash),
		check: func(t *testing.T, desc *Descriptor) {
			require.Equal(t, KindHash160,
				desc.Root().Children[1].Kind)
		},
	}, {
		name:        "missing wrapper",
		policy:      fmt.Sprintf("pk(%s)", pubKeys[0]),
		expectedErr: ErrParse,
	}, {
		name:        "unknown fragment",
		policy:      fmt.Sprintf("wsh(xyzzy(%s))", pubKeys[0]),
		expectedErr: ErrParse,
	}, {
		name:        "unbalanced parens",
		policy:      fmt.Sprintf("wsh(pk(%s)", pubKeys[0]),
		expectedErr: ErrParse,
	}, {
		name:        "empty argument",
		policy:      fmt.Sprintf("wsh(and(pk(%s),))", pubKeys[0]),
		expectedErr: ErrParse,
	}, {
		name:        "invalid key hex",
		policy:      "wsh(pk(zzzz))",
		expectedErr: ErrParse,
	}, {
		name:        "uncompressed key length",
		policy:      "wsh(pk(" + pubKeys[0] + "ff))",
		expectedErr: ErrParse,
	}, {
		name: "duplicate key",
		policy: fmt.Sprintf("wsh(and(pk(%s),pk(%s)))", pubKeys[0],
			pubKeys[0]),
		expectedErr: ErrDuplicateKey,
	}, {
		name: "threshold k too large",
		policy: fmt.Sprintf("wsh(thresh(3,pk(%s),pk(%s)))",
			pubKeys[0], pubKeys[1]),
		expectedErr: ErrParse,
	}, {
		name:        "multi k zero",
		policy:      fmt.Sprintf("wsh(multi(0,%s))", pubKeys[0]),
		expectedErr: ErrParse,
	}, {
		name:        "lock value zero",
		policy:      "wsh(after(0))",
		expectedErr: ErrParse,
	}, {
		name:        "lock value too large",
		policy:      "wsh(older(2147483648))",
		expectedErr: ErrParse,
	}, {
		name:        "hash wrong length",
		policy:      "wsh(sha256(ffff))",
		expectedErr: ErrParse,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			desc, err := Parse(tc.policy)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}

			require.NoError(t, err)
			tc.check(t, desc)

			// Re-serializing the parsed tree must give back the
			// input.
			require.Equal(t, tc.policy, desc.String())
		})
	}
}
