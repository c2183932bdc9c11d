// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

const (
	// maxSigStackSize is the worst-case size of a signature stack
	// element: 72 bytes of DER plus the sighash type byte.
	maxSigStackSize = 73

	// selectorTrueSize and selectorFalseSize are the encoded sizes of
	// the two or-branch selector elements (length byte included).
	selectorTrueSize  = 2
	selectorFalseSize = 1
)

// satCost is the worst-case encoded size and element count of a node's
// satisfaction or dissatisfaction. ok is false where no such fragment exists.
type satCost struct {
	size  int
	elems int
	ok    bool
}

func (c satCost) add(other satCost) satCost {
	return satCost{
		size:  c.size + other.size,
		elems: c.elems + other.elems,
		ok:    c.ok && other.ok,
	}
}

// maxSatCost returns the worst-case satisfaction cost of a node, assuming
// every condition is eventually met with maximal-size witness material.
func maxSatCost(node *Node) satCost {
	sat, _ := satDissatCost(node)
	return sat
}

// satDissatCost computes worst-case satisfaction and dissatisfaction costs.
// It mirrors the shapes produced by satisfy; keep the two in sync.
func satDissatCost(node *Node) (satCost, satCost) {
	none := satCost{}

	switch node.Kind {
	case KindPk:
		sat := satCost{size: 1 + maxSigStackSize, elems: 1, ok: true}
		return sat, satCost{size: 1, elems: 1, ok: true}

	case KindMulti:
		sat := satCost{
			size:  1 + node.K*(1+maxSigStackSize),
			elems: node.K + 1,
			ok:    true,
		}
		dissat := satCost{
			size:  node.K + 1,
			elems: node.K + 1,
			ok:    true,
		}
		return sat, dissat

	case KindAnd:
		satX, _ := satDissatCost(node.Children[0])
		satY, _ := satDissatCost(node.Children[1])
		return satX.add(satY), none

	case KindOr:
		satX, dissatX := satDissatCost(node.Children[0])
		satY, dissatY := satDissatCost(node.Children[1])

		branchX := satX.add(satCost{
			size: selectorTrueSize, elems: 1, ok: true,
		})
		branchY := satY.add(satCost{
			size: selectorFalseSize, elems: 1, ok: true,
		})
		sat := maxCost(branchX, branchY)

		dissat := maxCost(
			dissatX.add(satCost{
				size: selectorTrueSize, elems: 1, ok: true,
			}),
			dissatY.add(satCost{
				size: selectorFalseSize, elems: 1, ok: true,
			}),
		)
		return sat, dissat

	case KindThresh:
		// Start from dissatisfying everything, then upgrade the k
		// children with the largest satisfaction overhead.
		sat := satCost{ok: true}
		dissat := satCost{ok: true}
		deltas := make([]satCost, 0, len(node.Children))
		for _, child := range node.Children {
			childSat, childDissat := satDissatCost(child)
			sat = sat.add(childDissat)
			dissat = dissat.add(childDissat)
			deltas = append(deltas, satCost{
				size:  childSat.size - childDissat.size,
				elems: childSat.elems - childDissat.elems,
				ok:    childSat.ok,
			})
		}
		// Worst case picks the k largest size deltas.
		for i := 0; i < node.K; i++ {
			best := -1
			for j, delta := range deltas {
				if !delta.ok {
					continue
				}
				if best == -1 || delta.size > deltas[best].size {
					best = j
				}
			}
			sat.size += deltas[best].size
			sat.elems += deltas[best].elems
			deltas[best].ok = false
		}
		return sat, dissat

	case KindAfter, KindOlder:
		return satCost{ok: true}, none

	case KindSha256, KindHash160:
		cost := satCost{size: 1 + preimageLen, elems: 1, ok: true}
		return cost, cost

	default:
		return none, none
	}
}

func maxCost(a, b satCost) satCost {
	switch {
	case !a.ok:
		return b
	case !b.ok:
		return a
	case b.size > a.size:
		return b
	default:
		return a
	}
}

// MaxSatisfactionWeight returns an upper bound, in weight units, of the
// unlocking data required to spend the descriptor's output: the complete
// witness (satisfaction stack plus witness script) for wsh, or four times the
// signature script size for sh. The bound is intended for fee and weight
// reasoning, not as an exact prediction.
func (d *Descriptor) MaxSatisfactionWeight() (int, error) {
	script, err := d.Script()
	if err != nil {
		return 0, err
	}
	cost := maxSatCost(d.root)

	// Worst-case serialized size of the trailing script element,
	// including its compact-size length prefix.
	scriptElem := len(script) + compactSizeLen(len(script))

	if d.segwit {
		// Witness bytes count one weight unit each: item count prefix,
		// satisfaction elements, witness script.
		return compactSizeLen(cost.elems+1) + cost.size +
			scriptElem, nil
	}

	// A signature script is non-witness data, four weight units per byte.
	return 4 * (cost.size + scriptElem), nil
}

func compactSizeLen(n int) int {
	if n < 0xfd {
		return 1
	}
	return 3
}
