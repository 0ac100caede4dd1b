package merkle

import (
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecipients() []Recipient {
	return []Recipient{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Amount: "100"},
		{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Amount: "250"},
		{Address: "0xcccccccccccccccccccccccccccccccccccccccc", Amount: "75"},
	}
}

// TestLeafHash_Encoding pins the exact abi.encode layout a claim contract
// hashes on-chain: three 32-byte words, the address left-padded with zeros.
func TestLeafHash_Encoding(t *testing.T) {
	address := "0xAbCdEf0123456789aBcDeF0123456789abcdef01"
	amount := big.NewInt(250)

	var encoded []byte
	encoded = append(encoded, common.BigToHash(big.NewInt(7)).Bytes()...)
	encoded = append(encoded, make([]byte, 12)...)
	encoded = append(encoded, common.HexToAddress(address).Bytes()...)
	encoded = append(encoded, common.BigToHash(amount).Bytes()...)
	require.Len(t, encoded, 96)
	expected := crypto.Keccak256(crypto.Keccak256(encoded))

	assert.Equal(t, expected, LeafHash(7, address, amount))
}

func TestNewTree_EmptyList(t *testing.T) {
	_, err := NewTree(nil)
	assert.Error(t, err)
}

func TestNewTree_InvalidAddress(t *testing.T) {
	_, err := NewTree([]Recipient{{Address: "not-an-address", Amount: "1"}})
	assert.Error(t, err)
}

func TestNewTree_InvalidAmount(t *testing.T) {
	_, err := NewTree([]Recipient{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Amount: "-5"},
	})
	assert.Error(t, err)

	_, err = NewTree([]Recipient{
		{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Amount: "1.5"},
	})
	assert.Error(t, err)
}

func TestTree_DeterministicRoot(t *testing.T) {
	tree1, err := NewTree(testRecipients())
	require.NoError(t, err)
	tree2, err := NewTree(testRecipients())
	require.NoError(t, err)

	assert.Equal(t, tree1.Root(), tree2.Root())
	assert.Len(t, tree1.Root(), 66)
}

func TestTree_AddressCaseInsensitive(t *testing.T) {
	lower, err := NewTree(testRecipients())
	require.NoError(t, err)

	upper := testRecipients()
	upper[0].Address = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	mixed, err := NewTree(upper)
	require.NoError(t, err)

	assert.Equal(t, lower.Root(), mixed.Root())
}

func TestTree_ProofsVerify(t *testing.T) {
	recipients := testRecipients()
	tree, err := NewTree(recipients)
	require.NoError(t, err)

	for i, r := range recipients {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		amount, _ := new(big.Int).SetString(r.Amount, 10)
		assert.True(t, VerifyProof(tree.Root(), i, r.Address, amount, proof),
			"proof for leaf %d must verify", i)
	}
}

func TestTree_TamperedProofFails(t *testing.T) {
	recipients := testRecipients()
	tree, err := NewTree(recipients)
	require.NoError(t, err)

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	amount, _ := new(big.Int).SetString(recipients[0].Amount, 10)

	// Wrong amount.
	assert.False(t, VerifyProof(tree.Root(), 0, recipients[0].Address, big.NewInt(999), proof))
	// Wrong index.
	assert.False(t, VerifyProof(tree.Root(), 1, recipients[0].Address, amount, proof))
	// Wrong address.
	assert.False(t, VerifyProof(tree.Root(), 0, recipients[1].Address, amount, proof))
	// Corrupted sibling.
	bad := append([]string{}, proof...)
	bad[0] = "0x" + "00" + bad[0][4:]
	assert.False(t, VerifyProof(tree.Root(), 0, recipients[0].Address, amount, bad))
}

func TestTree_SingleRecipient(t *testing.T) {
	tree, err := NewTree(testRecipients()[:1])
	require.NoError(t, err)

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.True(t, VerifyProof(tree.Root(), 0, tree.Recipients()[0].Address, big.NewInt(100), proof))
}

func TestTree_OddLeafCount(t *testing.T) {
	recipients := make([]Recipient, 5)
	for i := range recipients {
		recipients[i] = Recipient{
			Address: fmt.Sprintf("0x%040x", i+1),
			Amount:  fmt.Sprintf("%d", (i+1)*10),
		}
	}
	tree, err := NewTree(recipients)
	require.NoError(t, err)

	for i, r := range recipients {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		amount, _ := new(big.Int).SetString(r.Amount, 10)
		assert.True(t, VerifyProof(tree.Root(), i, r.Address, amount, proof))
	}
}

func TestTree_IndexOf(t *testing.T) {
	tree, err := NewTree(testRecipients())
	require.NoError(t, err)

	assert.Equal(t, 1, tree.IndexOf("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"))
	assert.Equal(t, -1, tree.IndexOf("0xdddddddddddddddddddddddddddddddddddddddd"))
}

func TestExport_RoundTrip(t *testing.T) {
	tree, err := NewTree(testRecipients())
	require.NoError(t, err)

	export := tree.Export()
	loaded, err := Load(export)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), loaded.Root())
}

func TestLoad_TamperedExport(t *testing.T) {
	tree, err := NewTree(testRecipients())
	require.NoError(t, err)

	export := tree.Export()
	export.Recipients[1].Amount = "9999"
	_, err = Load(export)
	assert.Error(t, err)
}

// genRecipients builds random recipient lists with distinct addresses.
func genRecipients() gopter.Gen {
	return gen.SliceOfN(8, gen.Int64Range(1, 1_000_000_000)).Map(func(amounts []int64) []Recipient {
		rng := rand.New(rand.NewSource(amounts[0]))
		recipients := make([]Recipient, len(amounts))
		for i, amount := range amounts {
			recipients[i] = Recipient{
				Address: fmt.Sprintf("0x%040x", rng.Uint64()+uint64(i)+1),
				Amount:  fmt.Sprintf("%d", amount),
			}
		}
		return recipients
	})
}

func TestTree_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same recipients always yield the same root", prop.ForAll(
		func(recipients []Recipient) bool {
			a, err := NewTree(recipients)
			if err != nil {
				return false
			}
			b, err := NewTree(recipients)
			if err != nil {
				return false
			}
			return a.Root() == b.Root()
		},
		genRecipients(),
	))

	properties.Property("every leaf proof verifies against the root", prop.ForAll(
		func(recipients []Recipient) bool {
			tree, err := NewTree(recipients)
			if err != nil {
				return false
			}
			for i, r := range tree.Recipients() {
				proof, err := tree.Proof(i)
				if err != nil {
					return false
				}
				amount, _ := new(big.Int).SetString(r.Amount, 10)
				if !VerifyProof(tree.Root(), i, r.Address, amount, proof) {
					return false
				}
			}
			return true
		},
		genRecipients(),
	))

	properties.TestingRun(t)
}
