// Package merkle builds and verifies the Merkle claim trees that commit a
// weekly payout on-chain. The construction is deterministic: the same
// recipient list always yields the same root, so any third party can audit a
// payout from the published list alone.
package merkle

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rewards-settlement/internal/types"
)

// Recipient is one (address, amount) claim entry. Amount is an integer
// base-unit string. The leaf index is the recipient's position in the list.
type Recipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Tree is a Merkle tree over (index, address, amount) leaves.
//
// Leaf encoding is fixed: keccak256(keccak256(abi.encode(uint256 index,
// address, uint256 amount))). Interior nodes hash their children in sorted
// byte order, so a proof verifies regardless of sibling position.
type Tree struct {
	recipients []Recipient
	// levels[0] holds the leaf hashes in index order; the last level is the root.
	levels [][][]byte
}

// NewTree builds a tree from the recipient list. Addresses are validated and
// lower-cased; amounts must parse as non-negative integers.
func NewTree(recipients []Recipient) (*Tree, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("recipient list cannot be empty")
	}

	normalized := make([]Recipient, len(recipients))
	leaves := make([][]byte, len(recipients))
	for i, r := range recipients {
		if !types.ValidAddress(r.Address) {
			return nil, fmt.Errorf("invalid recipient address at index %d: %s", i, r.Address)
		}
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("invalid recipient amount at index %d: %s", i, r.Amount)
		}
		normalized[i] = Recipient{
			Address: types.NormalizeAddress(r.Address),
			Amount:  amount.String(),
		}
		leaves[i] = LeafHash(i, normalized[i].Address, amount)
	}

	levels := [][][]byte{leaves}
	for level := leaves; len(level) > 1; {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Odd node is promoted unchanged.
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{recipients: normalized, levels: levels}, nil
}

// LeafHash computes the leaf hash for (index, address, amount) using the
// double-keccak encoding.
func LeafHash(index int, address string, amount *big.Int) []byte {
	encoded := make([]byte, 0, 96)
	encoded = append(encoded, common.BigToHash(big.NewInt(int64(index))).Bytes()...)
	encoded = append(encoded, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)
	encoded = append(encoded, common.BigToHash(amount).Bytes()...)
	inner := crypto.Keccak256(encoded)
	return crypto.Keccak256(inner)
}

// hashPair hashes two sibling nodes in sorted byte order.
func hashPair(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256(a, b)
}

// Root returns the hex-encoded Merkle root.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return "0x" + hex.EncodeToString(top[0])
}

// Recipients returns the normalized recipient list in leaf-index order.
func (t *Tree) Recipients() []Recipient {
	return t.recipients
}

// IndexOf returns the leaf index for an address, or -1 when the address is
// not in the value set.
func (t *Tree) IndexOf(address string) int {
	address = types.NormalizeAddress(address)
	for i, r := range t.recipients {
		if r.Address == address {
			return i
		}
	}
	return -1
}

// Proof generates the sibling path for the leaf at index.
func (t *Tree) Proof(index int) ([]string, error) {
	if index < 0 || index >= len(t.recipients) {
		return nil, fmt.Errorf("leaf index %d out of range", index)
	}

	proof := []string{}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof = append(proof, "0x"+hex.EncodeToString(level[sibling]))
		}
		pos /= 2
	}
	return proof, nil
}

// VerifyProof checks a proof for (index, address, amount) against a root.
// This is the same fold a claim contract performs on-chain.
func VerifyProof(root string, index int, address string, amount *big.Int, proof []string) bool {
	node := LeafHash(index, types.NormalizeAddress(address), amount)
	for _, p := range proof {
		sibling, err := hexToBytes(p)
		if err != nil {
			return false
		}
		node = hashPair(node, sibling)
	}
	return "0x"+hex.EncodeToString(node) == types.NormalizeAddress(root)
}

func hexToBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// Export is the off-chain JSON representation of a tree. The root is stored
// alongside the values so a loader can detect a tampered or truncated export.
type Export struct {
	Root       string      `json:"root"`
	Recipients []Recipient `json:"recipients"`
}

// Export serializes the tree for off-chain storage.
func (t *Tree) Export() *Export {
	return &Export{Root: t.Root(), Recipients: t.recipients}
}

// MarshalJSON implements json.Marshaler via the export form.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Export())
}

// Load rebuilds a tree from an export and re-verifies the recorded root.
// A mismatch means the export was corrupted and must not be trusted.
func Load(export *Export) (*Tree, error) {
	tree, err := NewTree(export.Recipients)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild tree from export: %w", err)
	}
	if tree.Root() != types.NormalizeAddress(export.Root) {
		return nil, fmt.Errorf("export root mismatch: recorded %s, rebuilt %s", export.Root, tree.Root())
	}
	return tree, nil
}
