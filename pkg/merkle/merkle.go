// Package merkle implements the binary Merkle tree used for evidence
// commitments. Leaves are opaque strings hashed individually; internal nodes
// hash the concatenation of their children's hex digests. Odd levels
// duplicate their last node so every parent has two children, and the empty
// tree commits to sha256("empty"). Inclusion proofs carry positioned sibling
// hashes so verification is a straight fold back to the root.
package merkle

import (
	"fmt"

	"irrl/pkg/canonical"
)

// Position tells the verifier which side a sibling hash sits on.
type Position string

const (
	Left  Position = "left"
	Right Position = "right"
)

// Sibling is one step of an inclusion proof.
type Sibling struct {
	Hash     string   `json:"hash"`
	Position Position `json:"position"`
}

// Proof is a self-contained inclusion proof for one leaf.
type Proof struct {
	Root      string    `json:"root"`
	Leaf      string    `json:"leaf"`
	LeafIndex int       `json:"leafIndex"`
	Siblings  []Sibling `json:"siblings"`
}

const emptyRootInput = "empty"

// Root computes the Merkle root over the ordered leaf list.
func Root(leaves []string) string {
	if len(leaves) == 0 {
		return canonical.SHA256Hex([]byte(emptyRootInput))
	}
	level := hashLeaves(leaves)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// GenerateProof builds an inclusion proof for leaves[index].
func GenerateProof(leaves []string, index int) (Proof, error) {
	if index < 0 || index >= len(leaves) {
		return Proof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(leaves))
	}

	level := hashLeaves(leaves)
	proof := Proof{
		Leaf:      level[index],
		LeafIndex: index,
	}

	pos := index
	for len(level) > 1 {
		// Odd level: the last node pairs with itself.
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if pos%2 == 0 {
			proof.Siblings = append(proof.Siblings, Sibling{Hash: level[pos+1], Position: Right})
		} else {
			proof.Siblings = append(proof.Siblings, Sibling{Hash: level[pos-1], Position: Left})
		}
		level = pairUp(level)
		pos /= 2
	}

	proof.Root = level[0]
	return proof, nil
}

// VerifyProof folds the siblings back up and checks the recomputed root.
func VerifyProof(p Proof) bool {
	current := p.Leaf
	for _, s := range p.Siblings {
		switch s.Position {
		case Left:
			current = canonical.SHA256Hex([]byte(s.Hash + current))
		case Right:
			current = canonical.SHA256Hex([]byte(current + s.Hash))
		default:
			return false
		}
	}
	return current == p.Root
}

func hashLeaves(leaves []string) []string {
	hashed := make([]string, len(leaves))
	for i, leaf := range leaves {
		hashed[i] = canonical.SHA256Hex([]byte(leaf))
	}
	return hashed
}

func nextLevel(level []string) []string {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}
	return pairUp(level)
}

func pairUp(level []string) []string {
	parents := make([]string, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		parents = append(parents, canonical.SHA256Hex([]byte(level[i]+level[i+1])))
	}
	return parents
}
