package trie

import "github.com/katana-sh/katana/core/felt"

// MultiProof is an unordered bag of encoded nodes sufficient to walk
// from a known root down to a set of keys, per spec.md §4.5. It carries
// no root of its own — callers always verify against a root obtained
// independently (the trie's own Root(), or an externally supplied
// original_root for the partial-trie path).
type MultiProof struct {
	Nodes [][]byte
}

func indexProof(h HashFn, nodes [][]byte) (map[[felt.Bytes]byte]*node, error) {
	idx := make(map[[felt.Bytes]byte]*node, len(nodes))
	for _, raw := range nodes {
		n, err := decodeNode(raw)
		if err != nil {
			return nil, err
		}
		idx[n.Hash(h).Bytes32()] = n
	}
	return idx, nil
}

// Multiproof collects every node visited while looking up keys,
// deduplicated by hash. Full-trie only: a partial trie may not hold
// every node on the path for a key it has not itself inserted.
func (t *Trie) Multiproof(keys []*felt.Felt) (MultiProof, error) {
	if t.partial {
		return MultiProof{}, errInvalidOnPartial
	}
	seen := make(map[[felt.Bytes]byte]bool)
	var out [][]byte
	for _, key := range keys {
		cur := t.root
		depth := 0
		for !isEmpty(cur) {
			n, err := t.getNode(cur)
			if err != nil {
				return MultiProof{}, err
			}
			hb := cur.Bytes32()
			if !seen[hb] {
				seen[hb] = true
				out = append(out, n.encode())
			}
			switch n.Kind {
			case kindEdge:
				depth += n.Path.Len
				if depth >= Height {
					cur = nil
				} else {
					cur = n.Child
				}
			case kindBinary:
				if bitAt(key, depth) == 0 {
					cur = n.Left
				} else {
					cur = n.Right
				}
				depth++
			}
		}
	}
	return MultiProof{Nodes: out}, nil
}

// Verify checks inclusion of keys under root using only the nodes proof
// supplies. Per spec.md §4.5, a proof inconsistency (a node the walk
// needs is missing) yields the zero felt for that key rather than an
// error — the protocol's absent-leaf convention, not a verification
// failure.
func Verify(h HashFn, proof MultiProof, root *felt.Felt, keys []*felt.Felt) ([]*felt.Felt, error) {
	idx, err := indexProof(h, proof.Nodes)
	if err != nil {
		return nil, err
	}
	out := make([]*felt.Felt, len(keys))
	for i, key := range keys {
		out[i] = verifyOne(idx, root, key)
	}
	return out, nil
}

func verifyOne(idx map[[felt.Bytes]byte]*node, root, key *felt.Felt) *felt.Felt {
	cur := root
	depth := 0
	for {
		if isEmpty(cur) {
			return &felt.Zero
		}
		n, ok := idx[cur.Bytes32()]
		if !ok {
			return &felt.Zero
		}
		switch n.Kind {
		case kindEdge:
			rem := suffix(key, depth)
			common := commonPrefixLen(n.Path, rem, n.Path.Len)
			if common != n.Path.Len {
				return &felt.Zero
			}
			depth += n.Path.Len
			if depth == Height {
				return n.Child
			}
			cur = n.Child
		case kindBinary:
			if bitAt(key, depth) == 0 {
				cur = n.Left
			} else {
				cur = n.Right
			}
			depth++
		}
	}
}
