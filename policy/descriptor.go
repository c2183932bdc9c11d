// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// maxWitnessScriptSize is the maximum size in bytes of a standard
	// P2WSH witness script.
	maxWitnessScriptSize = 3600

	// maxRedeemScriptSize is the maximum size in bytes of a P2SH redeem
	// script, bounded by the single push that reveals it.
	maxRedeemScriptSize = 520

	// maxOpsPerScript is the maximum number of executed non-push
	// operations per script.
	maxOpsPerScript = 201

	// maxWitnessStackItems is the maximum number of elements on a
	// standard P2WSH witness stack, including the witness script itself.
	maxWitnessStackItems = 100
)

// Descriptor is a parsed spending policy together with the output type it
// compiles to: wsh(...) for SegWit v0 P2WSH or sh(...) for legacy P2SH.
// Immutable once returned from Parse.
type Descriptor struct {
	root   *Node
	segwit bool
}

// Parse parses a textual descriptor of the form wsh(EXPR) or sh(EXPR). The
// returned tree is syntactically and semantically well-formed (fragment
// arities, key and hash encodings, no duplicate keys); callers that go on to
// derive a spendable script must also run SanityCheck.
func Parse(desc string) (*Descriptor, error) {
	raw, err := parseRaw(strings.TrimSpace(desc))
	if err != nil {
		return nil, err
	}

	var segwit bool
	switch raw.name {
	case "wsh":
		segwit = true
	case "sh":
		segwit = false
	default:
		return nil, fmt.Errorf("%w: descriptor must be wrapped in "+
			"wsh() or sh(), got %q", ErrParse, raw.name)
	}
	if len(raw.args) != 1 {
		return nil, fmt.Errorf("%w: %s expects exactly one policy "+
			"expression", ErrParse, raw.name)
	}

	root, err := buildNode(raw.args[0], make(map[string]struct{}))
	if err != nil {
		return nil, err
	}

	d := &Descriptor{root: root, segwit: segwit}
	log.Debugf("Parsed descriptor %s", d)
	return d, nil
}

// Root returns the root node of the policy tree.
func (d *Descriptor) Root() *Node {
	return d.root
}

// Segwit reports whether the descriptor compiles to a SegWit v0 P2WSH
// output rather than a legacy P2SH output.
func (d *Descriptor) Segwit() bool {
	return d.segwit
}

// String re-serializes the descriptor.
func (d *Descriptor) String() string {
	wrapper := "sh"
	if d.segwit {
		wrapper = "wsh"
	}
	return fmt.Sprintf("%s(%s)", wrapper, d.root)
}

// Script compiles the policy tree to its canonical byte script: the witness
// script of a wsh descriptor or the redeem script of an sh descriptor. The
// compilation is a pure function of the tree, so repeated calls yield
// byte-identical scripts.
func (d *Descriptor) Script() ([]byte, error) {
	b := txscript.NewScriptBuilder()
	if err := compileScript(d.root, b, false); err != nil {
		return nil, err
	}
	return b.Script()
}

// PkScript returns the output script a funding transaction must pay to:
// OP_0 <sha256(witnessScript)> for wsh, or HASH160 <hash160(redeemScript)>
// EQUAL for sh. The encoding is network independent.
func (d *Descriptor) PkScript() ([]byte, error) {
	script, err := d.Script()
	if err != nil {
		return nil, err
	}

	if d.segwit {
		scriptHash := sha256.Sum256(script)
		return txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(scriptHash[:]).
			Script()
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(script)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// Address returns the human-readable address for the descriptor's output
// script on the given network.
func (d *Descriptor) Address(params *chaincfg.Params) (btcutil.Address, error) {
	script, err := d.Script()
	if err != nil {
		return nil, err
	}

	if d.segwit {
		scriptHash := sha256.Sum256(script)
		return btcutil.NewAddressWitnessScriptHash(
			scriptHash[:], params,
		)
	}
	return btcutil.NewAddressScriptHash(script, params)
}

// SanityCheck verifies that the policy can actually be satisfied on-chain and
// that its script stays inside protocol limits. A descriptor that fails this
// check would produce an output that is unspendable or non-standard, so the
// caller must treat the error as fatal.
func (d *Descriptor) SanityCheck() error {
	// Every satisfaction path must include at least one signature;
	// otherwise anyone observing the other witness material could spend
	// the output.
	if !needsSig(d.root) {
		return fmt.Errorf("%w: some satisfaction path requires no "+
			"signature", ErrSanity)
	}

	// Threshold children must be independently dissatisfiable, since a
	// satisfaction has to provide explicit dissatisfactions for the n-k
	// children left unmet.
	if err := checkDissatisfiable(d.root); err != nil {
		return err
	}

	script, err := d.Script()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSanity, err)
	}
	maxScriptSize := maxRedeemScriptSize
	if d.segwit {
		maxScriptSize = maxWitnessScriptSize
	}
	if len(script) > maxScriptSize {
		return fmt.Errorf("%w: script is %d bytes, limit is %d",
			ErrSanity, len(script), maxScriptSize)
	}

	if ops := opCount(d.root); ops > maxOpsPerScript {
		return fmt.Errorf("%w: script requires up to %d ops, limit "+
			"is %d", ErrSanity, ops, maxOpsPerScript)
	}

	if d.segwit {
		cost := maxSatCost(d.root)
		if cost.elems+1 > maxWitnessStackItems {
			return fmt.Errorf("%w: satisfaction needs up to %d "+
				"witness items, limit is %d", ErrSanity,
				cost.elems+1, maxWitnessStackItems)
		}
	}

	log.Debugf("Descriptor %s passed sanity check, script size %d", d,
		len(script))
	return nil
}

// needsSig reports whether every satisfaction of the node includes at least
// one signature.
func needsSig(node *Node) bool {
	switch node.Kind {
	case KindPk, KindMulti:
		return true

	case KindAnd:
		return needsSig(node.Children[0]) || needsSig(node.Children[1])

	case KindOr:
		return needsSig(node.Children[0]) && needsSig(node.Children[1])

	case KindThresh:
		// A satisfaction picks any k children, so signatures are
		// guaranteed only when fewer than k children can be satisfied
		// without one.
		withoutSig := 0
		for _, child := range node.Children {
			if !needsSig(child) {
				withoutSig++
			}
		}
		return withoutSig <= node.K-1

	default:
		return false
	}
}

// dissatisfiable reports whether the node has a canonical dissatisfaction
// that leaves a zero on the stack without meeting the condition.
func dissatisfiable(node *Node) bool {
	switch node.Kind {
	case KindPk, KindMulti, KindSha256, KindHash160:
		return true

	case KindOr:
		return dissatisfiable(node.Children[0]) ||
			dissatisfiable(node.Children[1])

	case KindThresh:
		for _, child := range node.Children {
			if !dissatisfiable(child) {
				return false
			}
		}
		return true

	default:
		// and compiles its first child under a VERIFY; timelocks
		// abort the script when unmet.
		return false
	}
}

// checkDissatisfiable walks the tree and rejects thresh nodes with children
// that cannot be dissatisfied.
func checkDissatisfiable(node *Node) error {
	if node.Kind == KindThresh {
		for i, child := range node.Children {
			if !dissatisfiable(child) {
				return fmt.Errorf("%w: thresh sub-policy %d "+
					"(%s) cannot be dissatisfied; wrap "+
					"it in an or() with a key branch",
					ErrSanity, i+1, child.Kind)
			}
		}
	}
	for _, child := range node.Children {
		if err := checkDissatisfiable(child); err != nil {
			return err
		}
	}
	return nil
}

// RequiredLockTime returns the minimum transaction lock time the policy can
// demand, i.e. the largest after() value anywhere in the tree, or zero when
// the policy carries no absolute timelock.
func (d *Descriptor) RequiredLockTime() uint32 {
	var maxLock uint32
	walk(d.root, func(node *Node) {
		if node.Kind == KindAfter && node.LockValue > maxLock {
			maxLock = node.LockValue
		}
	})
	return maxLock
}

// RequiredSequence returns the input sequence number needed to satisfy the
// policy's relative timelocks, i.e. the largest older() value anywhere in the
// tree. The second return value is false when the policy carries no relative
// timelock.
func (d *Descriptor) RequiredSequence() (uint32, bool) {
	var (
		maxSeq uint32
		found  bool
	)
	walk(d.root, func(node *Node) {
		if node.Kind == KindOlder {
			found = true
			if node.LockValue > maxSeq {
				maxSeq = node.LockValue
			}
		}
	})
	return maxSeq, found
}

func walk(node *Node, visit func(*Node)) {
	visit(node)
	for _, child := range node.Children {
		walk(child, visit)
	}
}

// Satisfy produces the minimal witness stack satisfying the policy with the
// material in the satisfier. The returned stack excludes the trailing
// witness/redeem script, which the caller appends according to the
// descriptor type. When the policy cannot be met, the returned error wraps
// ErrUnsatisfied and names the failing sub-condition.
func (d *Descriptor) Satisfy(sf *Satisfier) (wire.TxWitness, error) {
	sat, _ := satisfy(d.root, sf)
	if !sat.ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsatisfied, sat.why)
	}

	log.Tracef("Satisfied %s with %d witness elements", d,
		len(sat.stack))
	return sat.stack, nil
}
