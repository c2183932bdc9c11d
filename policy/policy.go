// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package policy implements a tree-structured spending policy language for
// bitcoin outputs, along with the machinery to compile a policy to a script,
// derive its address, bound its worst-case witness size and produce a minimal
// satisfying witness from a set of collected signatures.
//
// A policy expression is a composition of the following fragments:
//
//	pk(KEY)               a single compressed public key must sign
//	multi(k,KEY1,...)     k of the listed keys must sign (CHECKMULTISIG)
//	and(X,Y)              both sub-policies must be satisfied
//	or(X,Y)               either sub-policy may be satisfied
//	thresh(k,X1,...,Xn)   any k of the n sub-policies must be satisfied
//	after(n)              the spending tx lock time must reach n (CLTV)
//	older(n)              the input must age n blocks/time units (CSV)
//	sha256(H)             a 32-byte preimage of H must be revealed
//	hash160(H)            a 32-byte preimage of H must be revealed
//
// A complete descriptor wraps one expression in either wsh(...), producing a
// SegWit v0 pay-to-witness-script-hash output, or sh(...), producing a legacy
// pay-to-script-hash output.
package policy

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// compressedKeyLen is the length of a serialized compressed public
	// key. Policies only admit compressed keys, matching the standardness
	// rules for P2WSH.
	compressedKeyLen = 33

	// preimageLen is the length of the preimage revealed to satisfy a
	// hash lock. Both sha256 and hash160 locks hash a 32-byte preimage.
	preimageLen = 32

	// maxLockValue is the exclusive upper bound for after/older lock
	// values, matching the consensus encoding of lock times.
	maxLockValue = 1 << 31

	// maxMultiKeys is the maximum number of keys accepted by a multi
	// fragment, a CHECKMULTISIG consensus limit.
	maxMultiKeys = 20
)

// Kind identifies the fragment type of a policy tree node.
type Kind uint8

// The set of policy node kinds.
const (
	// KindPk is a single-key signature condition.
	KindPk Kind = iota

	// KindMulti is a k-of-n CHECKMULTISIG signature condition.
	KindMulti

	// KindAnd requires both children to be satisfied.
	KindAnd

	// KindOr requires exactly one child to be satisfied.
	KindOr

	// KindThresh requires k of its children to be satisfied.
	KindThresh

	// KindAfter is an absolute lock time condition (CLTV).
	KindAfter

	// KindOlder is a relative lock time condition (CSV).
	KindOlder

	// KindSha256 is a SHA-256 hash lock condition.
	KindSha256

	// KindHash160 is a HASH-160 hash lock condition.
	KindHash160
)

// String returns the descriptor fragment name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPk:
		return "pk"
	case KindMulti:
		return "multi"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindThresh:
		return "thresh"
	case KindAfter:
		return "after"
	case KindOlder:
		return "older"
	case KindSha256:
		return "sha256"
	case KindHash160:
		return "hash160"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Node is a single vertex of a parsed policy tree. A Node and everything
// below it is immutable once returned from Parse.
type Node struct {
	// Kind is the fragment type of this node.
	Kind Kind

	// K is the threshold count for multi and thresh nodes.
	K int

	// LockValue is the lock time or sequence value for after and older
	// nodes.
	LockValue uint32

	// Keys holds the single key of a pk node or the ordered key list of a
	// multi node.
	Keys []*btcec.PublicKey

	// Hash holds the expected digest of a sha256 or hash160 node.
	Hash []byte

	// Children are the sub-policies of and, or and thresh nodes, in
	// descriptor order.
	Children []*Node
}

// String re-serializes the node as a descriptor expression.
func (n *Node) String() string {
	var sb strings.Builder
	sb.WriteString(n.Kind.String())
	sb.WriteByte('(')

	switch n.Kind {
	case KindPk:
		sb.WriteString(hex.EncodeToString(
			n.Keys[0].SerializeCompressed(),
		))

	case KindMulti:
		sb.WriteString(strconv.Itoa(n.K))
		for _, key := range n.Keys {
			sb.WriteByte(',')
			sb.WriteString(hex.EncodeToString(
				key.SerializeCompressed(),
			))
		}

	case KindAfter, KindOlder:
		sb.WriteString(strconv.FormatUint(uint64(n.LockValue), 10))

	case KindSha256, KindHash160:
		sb.WriteString(hex.EncodeToString(n.Hash))

	case KindThresh:
		sb.WriteString(strconv.Itoa(n.K))
		for _, child := range n.Children {
			sb.WriteByte(',')
			sb.WriteString(child.String())
		}

	default:
		for i, child := range n.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(child.String())
		}
	}

	sb.WriteByte(')')
	return sb.String()
}

// rawNode is the untyped call tree produced by the tokenizer, before fragment
// names and literal arguments have been validated.
type rawNode struct {
	name string
	args []*rawNode
}

// parseRaw tokenizes a policy expression into an untyped call tree. The
// tokenizer splits on the three structural characters and runs a small stack
// machine: an opening paren leaves the preceding identifier on the stack as
// the pending parent, while a comma or closing paren pops the completed
// argument and appends it to that parent.
func parseRaw(expr string) (*rawNode, error) {
	var (
		stack []*rawNode
		ident strings.Builder
	)

	push := func() {
		if ident.Len() > 0 {
			stack = append(stack, &rawNode{name: ident.String()})
			ident.Reset()
		}
	}

	// popArg moves the completed top-of-stack expression into the argument
	// list of its parent. Returns false when the expression is unbalanced.
	popArg := func() bool {
		push()
		if len(stack) < 2 {
			return false
		}
		arg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parent := stack[len(stack)-1]
		parent.args = append(parent.args, arg)
		return true
	}

	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; c {
		case '(':
			if ident.Len() == 0 {
				return nil, fmt.Errorf("%w: empty fragment "+
					"name at offset %d", ErrParse, i)
			}
			push()

		case ',', ')':
			if ident.Len() == 0 && (i == 0 ||
				expr[i-1] == '(' || expr[i-1] == ',') {

				return nil, fmt.Errorf("%w: empty argument "+
					"at offset %d", ErrParse, i)
			}
			if !popArg() {
				return nil, fmt.Errorf("%w: unbalanced "+
					"expression at offset %d", ErrParse, i)
			}

		default:
			if !isIdentChar(c) {
				return nil, fmt.Errorf("%w: unexpected "+
					"character %q at offset %d", ErrParse,
					c, i)
			}
			ident.WriteByte(c)
		}
	}

	if ident.Len() > 0 {
		// A trailing bare identifier means a missing open paren, e.g.
		// "pk". Every fragment takes arguments.
		return nil, fmt.Errorf("%w: trailing identifier %q", ErrParse,
			ident.String())
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unbalanced expression", ErrParse)
	}
	return stack[0], nil
}

func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'F', c >= '0' && c <= '9',
		c == '_':

		return true
	}
	return false
}

// buildNode converts an untyped call tree into a typed policy Node,
// validating fragment names, argument counts and literal encodings. seenKeys
// tracks every public key in the tree so duplicates can be rejected.
func buildNode(raw *rawNode, seenKeys map[string]struct{}) (*Node, error) {
	switch raw.name {
	case "pk":
		if len(raw.args) != 1 {
			return nil, fmt.Errorf("%w: pk expects 1 argument, "+
				"got %d", ErrParse, len(raw.args))
		}
		key, err := parseKeyArg(raw.args[0], seenKeys)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindPk, Keys: []*btcec.PublicKey{key}}, nil

	case "multi":
		if len(raw.args) < 2 {
			return nil, fmt.Errorf("%w: multi expects a threshold "+
				"and at least one key", ErrParse)
		}
		numKeys := len(raw.args) - 1
		if numKeys > maxMultiKeys {
			return nil, fmt.Errorf("%w: multi accepts at most %d "+
				"keys, got %d", ErrParse, maxMultiKeys, numKeys)
		}
		k, err := parseThresholdArg(raw.args[0], numKeys)
		if err != nil {
			return nil, err
		}
		keys := make([]*btcec.PublicKey, 0, numKeys)
		for _, arg := range raw.args[1:] {
			key, err := parseKeyArg(arg, seenKeys)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return &Node{Kind: KindMulti, K: k, Keys: keys}, nil

	case "and", "or":
		if len(raw.args) != 2 {
			return nil, fmt.Errorf("%w: %s expects 2 arguments, "+
				"got %d", ErrParse, raw.name, len(raw.args))
		}
		kind := KindAnd
		if raw.name == "or" {
			kind = KindOr
		}
		children, err := buildChildren(raw.args, seenKeys)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kind, Children: children}, nil

	case "thresh":
		if len(raw.args) < 3 {
			return nil, fmt.Errorf("%w: thresh expects a "+
				"threshold and at least two sub-policies",
				ErrParse)
		}
		k, err := parseThresholdArg(raw.args[0], len(raw.args)-1)
		if err != nil {
			return nil, err
		}
		children, err := buildChildren(raw.args[1:], seenKeys)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindThresh, K: k, Children: children}, nil

	case "after", "older":
		if len(raw.args) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 argument, "+
				"got %d", ErrParse, raw.name, len(raw.args))
		}
		value, err := parseLockArg(raw.name, raw.args[0])
		if err != nil {
			return nil, err
		}
		kind := KindAfter
		if raw.name == "older" {
			kind = KindOlder
		}
		return &Node{Kind: kind, LockValue: value}, nil

	case "sha256", "hash160":
		if len(raw.args) != 1 {
			return nil, fmt.Errorf("%w: %s expects 1 argument, "+
				"got %d", ErrParse, raw.name, len(raw.args))
		}
		digestLen := 32
		kind := KindSha256
		if raw.name == "hash160" {
			digestLen = 20
			kind = KindHash160
		}
		digest, err := parseHashArg(raw.name, raw.args[0], digestLen)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kind, Hash: digest}, nil

	default:
		return nil, fmt.Errorf("%w: unknown fragment %q", ErrParse,
			raw.name)
	}
}

func buildChildren(args []*rawNode,
	seenKeys map[string]struct{}) ([]*Node, error) {

	children := make([]*Node, 0, len(args))
	for _, arg := range args {
		child, err := buildNode(arg, seenKeys)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// parseKeyArg decodes a hex compressed public key literal, rejecting keys
// that are off-curve or already present elsewhere in the tree.
func parseKeyArg(arg *rawNode,
	seenKeys map[string]struct{}) (*btcec.PublicKey, error) {

	if len(arg.args) > 0 {
		return nil, fmt.Errorf("%w: key argument must be a literal, "+
			"not a sub-expression", ErrParse)
	}
	keyBytes, err := hex.DecodeString(arg.name)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key hex %q: %v", ErrParse,
			arg.name, err)
	}
	if len(keyBytes) != compressedKeyLen {
		return nil, fmt.Errorf("%w: key must be a %d-byte compressed "+
			"public key, got %d bytes", ErrParse, compressedKeyLen,
			len(keyBytes))
	}
	key, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid public key %q: %v",
			ErrParse, arg.name, err)
	}

	keyHex := strings.ToLower(arg.name)
	if _, ok := seenKeys[keyHex]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, keyHex)
	}
	seenKeys[keyHex] = struct{}{}

	return key, nil
}

func parseThresholdArg(arg *rawNode, numChildren int) (int, error) {
	if len(arg.args) > 0 {
		return 0, fmt.Errorf("%w: threshold must be a literal",
			ErrParse)
	}
	k, err := strconv.Atoi(arg.name)
	if err != nil {
		return 0, fmt.Errorf("%w: threshold %q is not an integer",
			ErrParse, arg.name)
	}
	if k < 1 || k > numChildren {
		return 0, fmt.Errorf("%w: threshold must satisfy 1 <= k <= "+
			"%d, got %d", ErrParse, numChildren, k)
	}
	return k, nil
}

func parseLockArg(name string, arg *rawNode) (uint32, error) {
	if len(arg.args) > 0 {
		return 0, fmt.Errorf("%w: %s argument must be a literal",
			ErrParse, name)
	}
	value, err := strconv.ParseUint(arg.name, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s value %q is not an unsigned "+
			"integer", ErrParse, name, arg.name)
	}
	if value < 1 || value >= maxLockValue {
		return 0, fmt.Errorf("%w: %s value must satisfy 1 <= n < "+
			"2^31, got %d", ErrParse, name, value)
	}
	return uint32(value), nil
}

func parseHashArg(name string, arg *rawNode, digestLen int) ([]byte, error) {
	if len(arg.args) > 0 {
		return nil, fmt.Errorf("%w: %s argument must be a literal",
			ErrParse, name)
	}
	digest, err := hex.DecodeString(arg.name)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s hex %q: %v", ErrParse,
			name, arg.name, err)
	}
	if len(digest) != digestLen {
		return nil, fmt.Errorf("%w: %s expects a %d-byte digest, got "+
			"%d bytes", ErrParse, name, digestLen, len(digest))
	}
	return digest, nil
}
