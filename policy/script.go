// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// compileScript builds the script for a policy tree. The same compilation is
// used for the witness script of a wsh descriptor and the redeem script of an
// sh descriptor; pk keys are compressed in both cases.
//
// verify is true when an ancestor consumes this node's result through a
// VERIFY. Nodes whose final opcode has a VERIFY form (CHECKSIG,
// CHECKMULTISIG, EQUAL) collapse the two opcodes into one; for all other
// nodes the caller appends an explicit OP_VERIFY, see buildVerify.
func compileScript(node *Node, b *txscript.ScriptBuilder, verify bool) error {
	switch node.Kind {
	case KindPk:
		b.AddData(node.Keys[0].SerializeCompressed())
		addVerifyOp(b, verify, txscript.OP_CHECKSIG,
			txscript.OP_CHECKSIGVERIFY)

	case KindMulti:
		b.AddInt64(int64(node.K))
		for _, key := range node.Keys {
			b.AddData(key.SerializeCompressed())
		}
		b.AddInt64(int64(len(node.Keys)))
		addVerifyOp(b, verify, txscript.OP_CHECKMULTISIG,
			txscript.OP_CHECKMULTISIGVERIFY)

	case KindAnd:
		// The first child runs under a VERIFY so that only the second
		// child's result remains on the stack.
		err := buildVerify(node.Children[0], b)
		if err != nil {
			return err
		}
		err = compileScript(node.Children[1], b, verify)
		if err != nil {
			return err
		}

	case KindOr:
		// The witness selects the branch: a true selector takes the
		// first child, an empty selector the second.
		b.AddOp(txscript.OP_IF)
		err := compileScript(node.Children[0], b, false)
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_ELSE)
		err = compileScript(node.Children[1], b, false)
		if err != nil {
			return err
		}
		b.AddOp(txscript.OP_ENDIF)

	case KindThresh:
		// Children after the first run with the accumulated count
		// parked on the alt stack, then add their own result to it.
		err := compileScript(node.Children[0], b, false)
		if err != nil {
			return err
		}
		for _, child := range node.Children[1:] {
			b.AddOp(txscript.OP_TOALTSTACK)
			err := compileScript(child, b, false)
			if err != nil {
				return err
			}
			b.AddOp(txscript.OP_FROMALTSTACK)
			b.AddOp(txscript.OP_ADD)
		}
		b.AddInt64(int64(node.K))
		addVerifyOp(b, verify, txscript.OP_EQUAL,
			txscript.OP_EQUALVERIFY)

	case KindAfter:
		b.AddInt64(int64(node.LockValue))
		b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)

	case KindOlder:
		b.AddInt64(int64(node.LockValue))
		b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)

	case KindSha256, KindHash160:
		hashOp := byte(txscript.OP_SHA256)
		if node.Kind == KindHash160 {
			hashOp = txscript.OP_HASH160
		}
		b.AddOp(txscript.OP_SIZE)
		b.AddInt64(preimageLen)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddOp(hashOp)
		b.AddData(node.Hash)
		addVerifyOp(b, verify, txscript.OP_EQUAL,
			txscript.OP_EQUALVERIFY)

	default:
		return fmt.Errorf("unknown node kind %v", node.Kind)
	}

	return nil
}

// buildVerify compiles a node whose result is consumed rather than left on
// the stack. Nodes that cannot collapse their final opcode into a VERIFY
// form get an explicit OP_VERIFY appended.
func buildVerify(node *Node, b *txscript.ScriptBuilder) error {
	err := compileScript(node, b, true)
	if err != nil {
		return err
	}
	if !canCollapseVerify(node) {
		b.AddOp(txscript.OP_VERIFY)
	}
	return nil
}

// canCollapseVerify reports whether the rightmost opcode produced by the node
// has a VERIFY variant (OP_CHECKSIGVERIFY, OP_CHECKMULTISIGVERIFY,
// OP_EQUALVERIFY).
func canCollapseVerify(node *Node) bool {
	switch node.Kind {
	case KindPk, KindMulti, KindThresh, KindSha256, KindHash160:
		return true

	case KindAnd:
		// and compiles to v(X) Y, so the rightmost opcode is Y's.
		return canCollapseVerify(node.Children[1])

	default:
		// or ends with OP_ENDIF, timelocks leave their lock value.
		return false
	}
}

func addVerifyOp(b *txscript.ScriptBuilder, verify bool, op, verifyOp byte) {
	if verify {
		b.AddOp(verifyOp)
	} else {
		b.AddOp(op)
	}
}

// opCount returns an upper bound on the number of executed non-push
// operations for the node's script, counting the extra per-key cost of
// CHECKMULTISIG, for checking against the 201-op consensus limit.
func opCount(node *Node) int {
	switch node.Kind {
	case KindPk:
		return 1

	case KindMulti:
		// CHECKMULTISIG costs one op plus one per listed key.
		return 1 + len(node.Keys)

	case KindAnd:
		// Possible trailing OP_VERIFY on the first child.
		n := opCount(node.Children[0]) + opCount(node.Children[1])
		if !canCollapseVerify(node.Children[0]) {
			n++
		}
		return n

	case KindOr:
		return 3 + opCount(node.Children[0]) + opCount(node.Children[1])

	case KindThresh:
		n := opCount(node.Children[0]) + 1
		for _, child := range node.Children[1:] {
			n += 3 + opCount(child)
		}
		return n

	case KindAfter, KindOlder:
		return 1

	case KindSha256, KindHash160:
		return 4

	default:
		return 0
	}
}
