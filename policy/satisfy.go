// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Satisfier carries the witness material available when satisfying a policy:
// collected signatures, revealed hash preimages and the lock values of the
// spending transaction. It holds no global state; every value it consults is
// set explicitly by the caller.
type Satisfier struct {
	// signatures maps a hex-encoded compressed public key to the
	// signature produced over the input's digest, in the on-stack
	// encoding (DER with the sighash type byte appended).
	signatures map[string][]byte

	// preimages maps a hex-encoded policy digest to its 32-byte
	// preimage. Each added preimage is indexed under both its SHA-256
	// and its HASH-160 digest.
	preimages map[string][]byte

	// lockTime is the spending transaction's lock time, consulted by
	// after nodes.
	lockTime uint32

	// sequence is the spending input's sequence number, consulted by
	// older nodes and by the CLTV finality rule.
	sequence uint32
}

// NewSatisfier returns a Satisfier for an input with the given transaction
// lock time and input sequence number.
func NewSatisfier(lockTime, sequence uint32) *Satisfier {
	return &Satisfier{
		signatures: make(map[string][]byte),
		preimages:  make(map[string][]byte),
		lockTime:   lockTime,
		sequence:   sequence,
	}
}

// AddSignature records a signature for the given public key. sig must be in
// the on-stack encoding, i.e. DER with the sighash type byte appended.
func (s *Satisfier) AddSignature(pubKey *btcec.PublicKey, sig []byte) {
	keyHex := hex.EncodeToString(pubKey.SerializeCompressed())
	s.signatures[keyHex] = sig
}

// AddPreimage records a 32-byte hash lock preimage. The preimage is indexed
// under both its SHA-256 and HASH-160 digests so it can satisfy either lock
// kind.
func (s *Satisfier) AddPreimage(preimage []byte) {
	shaDigest := sha256.Sum256(preimage)
	s.preimages[hex.EncodeToString(shaDigest[:])] = preimage
	s.preimages[hex.EncodeToString(btcutil.Hash160(preimage))] = preimage
}

// satisfaction is a candidate witness fragment for one policy node, together
// with its availability. why describes the unmet condition when the fragment
// is unavailable, so threshold failures can be reported precisely.
type satisfaction struct {
	stack wire.TxWitness
	ok    bool
	why   string
}

// size returns the encoded size of the fragment: one length byte per element
// plus the element bytes. Elements in satisfactions never exceed 73 bytes, so
// a single length byte per element is exact.
func (s satisfaction) size() int {
	n := 0
	for _, elem := range s.stack {
		n += 1 + len(elem)
	}
	return n
}

func unavailable(format string, args ...interface{}) satisfaction {
	return satisfaction{why: fmt.Sprintf(format, args...)}
}

// Selector elements for or branches: a single 0x01 byte takes the IF branch,
// an empty push takes the ELSE branch.
var (
	selectorTrue  = []byte{0x01}
	selectorFalse = []byte{}
)

// satisfy recursively computes the minimal satisfaction and the canonical
// dissatisfaction of a node under the given satisfier.
//
// Witness stacks are ordered bottom-first, as in wire.TxWitness. Because
// script fragments execute left to right and consume from the top of the
// stack, the fragment compiled first consumes the elements pushed last:
// composite nodes therefore concatenate child fragments in reverse child
// order.
func satisfy(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	switch node.Kind {
	case KindPk:
		return satisfyPk(node, sf)

	case KindMulti:
		return satisfyMulti(node, sf)

	case KindAnd:
		return satisfyAnd(node, sf)

	case KindOr:
		return satisfyOr(node, sf)

	case KindThresh:
		return satisfyThresh(node, sf)

	case KindAfter:
		return satisfyAfter(node, sf)

	case KindOlder:
		return satisfyOlder(node, sf)

	case KindSha256, KindHash160:
		return satisfyHashLock(node, sf)

	default:
		bad := unavailable("unknown node kind %v", node.Kind)
		return bad, bad
	}
}

func satisfyPk(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	keyHex := hex.EncodeToString(node.Keys[0].SerializeCompressed())
	dissat := satisfaction{stack: wire.TxWitness{{}}, ok: true}

	sig, ok := sf.signatures[keyHex]
	if !ok {
		return unavailable("no signature for key %s", keyHex), dissat
	}
	return satisfaction{stack: wire.TxWitness{sig}, ok: true}, dissat
}

func satisfyMulti(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	// Dissatisfying k-of-n CHECKMULTISIG takes k empty signatures plus
	// the empty dummy element.
	dissatStack := make(wire.TxWitness, node.K+1)
	for i := range dissatStack {
		dissatStack[i] = []byte{}
	}
	dissat := satisfaction{stack: dissatStack, ok: true}

	// Collect signatures in key order until the threshold is met. With
	// equal-size signatures the minimal witness is any k of them, so the
	// fixed tie-break is to prefer keys earlier in the list.
	sigs := make(wire.TxWitness, 0, node.K)
	for _, key := range node.Keys {
		keyHex := hex.EncodeToString(key.SerializeCompressed())
		if sig, ok := sf.signatures[keyHex]; ok {
			sigs = append(sigs, sig)
			if len(sigs) == node.K {
				break
			}
		}
	}
	if len(sigs) < node.K {
		return unavailable("multi(%d of %d): only %d signatures "+
			"available", node.K, len(node.Keys), len(sigs)), dissat
	}

	// CHECKMULTISIG pops one extra element due to the off-by-one
	// consensus bug; it must be the empty push for standardness.
	stack := append(wire.TxWitness{{}}, sigs...)
	return satisfaction{stack: stack, ok: true}, dissat
}

func satisfyAnd(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	satX, _ := satisfy(node.Children[0], sf)
	satY, _ := satisfy(node.Children[1], sf)

	// and is compiled with a VERIFY on the first child, so there is no
	// dissatisfaction.
	dissat := unavailable("and cannot be dissatisfied")

	switch {
	case !satX.ok:
		return unavailable("and: %s", satX.why), dissat
	case !satY.ok:
		return unavailable("and: %s", satY.why), dissat
	}

	// The first child executes first, so its elements sit on top of the
	// stack, i.e. at the end of the witness.
	stack := append(append(wire.TxWitness{}, satY.stack...), satX.stack...)
	return satisfaction{stack: stack, ok: true}, dissat
}

func satisfyOr(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	satX, dissatX := satisfy(node.Children[0], sf)
	satY, dissatY := satisfy(node.Children[1], sf)

	branch := func(inner satisfaction, selector []byte) satisfaction {
		stack := append(
			append(wire.TxWitness{}, inner.stack...), selector,
		)
		return satisfaction{stack: stack, ok: true}
	}

	var sat satisfaction
	switch {
	case satX.ok && satY.ok:
		// Both branches work: pick the smaller witness, preferring
		// the first child on a tie.
		a, b := branch(satX, selectorTrue), branch(satY, selectorFalse)
		sat = a
		if b.size() < a.size() {
			sat = b
		}

	case satX.ok:
		sat = branch(satX, selectorTrue)

	case satY.ok:
		sat = branch(satY, selectorFalse)

	default:
		sat = unavailable("or: neither branch satisfiable (%s; %s)",
			satX.why, satY.why)
	}

	var dissat satisfaction
	switch {
	case dissatX.ok && dissatY.ok:
		a := branch(dissatX, selectorTrue)
		b := branch(dissatY, selectorFalse)
		dissat = a
		if b.size() < a.size() {
			dissat = b
		}

	case dissatX.ok:
		dissat = branch(dissatX, selectorTrue)

	case dissatY.ok:
		dissat = branch(dissatY, selectorFalse)

	default:
		dissat = unavailable("or: neither branch dissatisfiable")
	}

	return sat, dissat
}

func satisfyThresh(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	type childResult struct {
		index  int
		sat    satisfaction
		dissat satisfaction
	}

	results := make([]childResult, len(node.Children))
	available := 0
	for i, child := range node.Children {
		sat, dissat := satisfy(child, sf)
		results[i] = childResult{index: i, sat: sat, dissat: dissat}
		if sat.ok {
			available++
		}
		if !dissat.ok {
			// SanityCheck rejects such trees; fail loudly in case
			// a caller skipped it.
			bad := unavailable("thresh child %d cannot be "+
				"dissatisfied: %s", i, dissat.why)
			return bad, bad
		}
	}

	// The dissatisfaction of thresh dissatisfies every child.
	dissatStack := wire.TxWitness{}
	for i := len(results) - 1; i >= 0; i-- {
		dissatStack = append(dissatStack, results[i].dissat.stack...)
	}
	dissat := satisfaction{stack: dissatStack, ok: true}

	if available < node.K {
		return unavailable("thresh(%d of %d): only %d sub-policies "+
			"satisfiable", node.K, len(node.Children), available),
			dissat
	}

	// Choose the k satisfiable children that minimize the total witness
	// size: order by the size increase of satisfying over dissatisfying,
	// breaking ties by child index.
	candidates := make([]childResult, 0, available)
	for _, res := range results {
		if res.sat.ok {
			candidates = append(candidates, res)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di := candidates[i].sat.size() - candidates[i].dissat.size()
		dj := candidates[j].sat.size() - candidates[j].dissat.size()
		if di != dj {
			return di < dj
		}
		return candidates[i].index < candidates[j].index
	})

	chosen := make(map[int]struct{}, node.K)
	for _, res := range candidates[:node.K] {
		chosen[res.index] = struct{}{}
	}

	stack := wire.TxWitness{}
	for i := len(results) - 1; i >= 0; i-- {
		if _, ok := chosen[results[i].index]; ok {
			stack = append(stack, results[i].sat.stack...)
		} else {
			stack = append(stack, results[i].dissat.stack...)
		}
	}
	return satisfaction{stack: stack, ok: true}, dissat
}

func satisfyAfter(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	dissat := unavailable("after cannot be dissatisfied")

	// CHECKLOCKTIMEVERIFY requires a non-final input sequence, a lock
	// time of the same class (height vs. time) and a lock time at or past
	// the required value.
	if sf.sequence == wire.MaxTxInSequenceNum {
		return unavailable("after(%d): input sequence is final",
			node.LockValue), dissat
	}
	sameClass := (sf.lockTime < txscript.LockTimeThreshold) ==
		(node.LockValue < txscript.LockTimeThreshold)
	if !sameClass {
		return unavailable("after(%d): lock time %d is of a "+
			"different class", node.LockValue, sf.lockTime), dissat
	}
	if sf.lockTime < node.LockValue {
		return unavailable("after(%d): tx lock time is %d",
			node.LockValue, sf.lockTime), dissat
	}

	return satisfaction{stack: wire.TxWitness{}, ok: true}, dissat
}

func satisfyOlder(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	dissat := unavailable("older cannot be dissatisfied")

	// BIP 68: the sequence must opt in to relative lock times, match the
	// lock's unit class and cover the required value.
	if sf.sequence&wire.SequenceLockTimeDisabled != 0 {
		return unavailable("older(%d): relative lock time disabled "+
			"by sequence %x", node.LockValue, sf.sequence), dissat
	}
	if sf.sequence&wire.SequenceLockTimeIsSeconds !=
		node.LockValue&wire.SequenceLockTimeIsSeconds {

		return unavailable("older(%d): sequence %x is of a different "+
			"class", node.LockValue, sf.sequence), dissat
	}
	if sf.sequence&wire.SequenceLockTimeMask <
		node.LockValue&wire.SequenceLockTimeMask {

		return unavailable("older(%d): input sequence is %d",
			node.LockValue,
			sf.sequence&wire.SequenceLockTimeMask), dissat
	}

	return satisfaction{stack: wire.TxWitness{}, ok: true}, dissat
}

func satisfyHashLock(node *Node, sf *Satisfier) (satisfaction, satisfaction) {
	// The dissatisfaction is any 32-byte value that is not the preimage;
	// the all-zero value serves. The SIZE check in the script forces 32
	// bytes even on the dissatisfaction path.
	dissat := satisfaction{
		stack: wire.TxWitness{make([]byte, preimageLen)},
		ok:    true,
	}

	preimage, ok := sf.preimages[hex.EncodeToString(node.Hash)]
	if !ok {
		return unavailable("%v(%x): no preimage available", node.Kind,
			node.Hash), dissat
	}
	return satisfaction{stack: wire.TxWitness{preimage}, ok: true}, dissat
}
