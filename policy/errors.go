// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import "errors"

var (
	// ErrParse is returned when a policy descriptor cannot be parsed into
	// a tree. It covers unbalanced combinators, unknown fragments, wrong
	// argument counts and malformed key or hash literals.
	ErrParse = errors.New("malformed policy descriptor")

	// ErrDuplicateKey is returned when the same public key appears more
	// than once in a policy tree. Reusing a key across branches makes
	// satisfactions ambiguous, so it is rejected at parse time.
	ErrDuplicateKey = errors.New("duplicate key in policy")

	// ErrSanity is returned by SanityCheck when a policy parses correctly
	// but can never be satisfied on-chain, or when its script or witness
	// would exceed protocol limits.
	ErrSanity = errors.New("policy failed sanity check")

	// ErrUnsatisfied is returned by Satisfy when the available signatures,
	// preimages and lock values are not sufficient to meet the policy.
	ErrUnsatisfied = errors.New("policy not satisfiable with available " +
		"witness material")
)
