package util

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// EligibilityLeaf is the merkle leaf for an account: keccak256 of its 20 address bytes
func EligibilityLeaf(account common.Address) common.Hash {
	return crypto.Keccak256Hash(account.Bytes())
}

// hashPair hashes two nodes in sorted order so proofs need no left/right flags
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// VerifyMerkleProof reports whether leaf is included under root
func VerifyMerkleProof(root, leaf common.Hash, siblings []common.Hash) bool {
	node := leaf
	for _, sibling := range siblings {
		node = hashPair(node, sibling)
	}
	return node == root
}

// MerkleTree is a sorted-pair keccak tree built over eligibility leaves.
// An odd node at any level is carried up unchanged.
type MerkleTree struct {
	levels [][]common.Hash
}

// NewMerkleTree builds a tree over the eligibility leaves of accounts
func NewMerkleTree(accounts []common.Address) (*MerkleTree, error) {
	if len(accounts) == 0 {
		return nil, errors.New("merkle tree needs at least one account")
	}
	leaves := make([]common.Hash, len(accounts))
	for i, account := range accounts {
		leaves[i] = EligibilityLeaf(account)
	}

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &MerkleTree{levels: levels}, nil
}

// Root returns the tree root
func (t *MerkleTree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Proof returns the sibling path of the account at index
func (t *MerkleTree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, errors.Errorf("leaf index %d out of range [0, %d)", index, len(t.levels[0]))
	}
	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index /= 2
	}
	return proof, nil
}
