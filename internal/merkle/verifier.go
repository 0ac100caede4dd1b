package merkle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rewards-settlement/internal/chain"
	"github.com/rewards-settlement/internal/types"
)

// EligibilityReason is the typed outcome of an eligibility check. Failing
// eligibility is an expected, common outcome for an end user, so reasons are
// returned as data rather than errors.
type EligibilityReason string

const (
	// ReasonEligible means a claim can proceed with the returned proof
	ReasonEligible EligibilityReason = "eligible"
	// ReasonExpired means the on-chain campaign has expired
	ReasonExpired EligibilityReason = "expired"
	// ReasonNotEligible means the address is absent from the tree's value set
	ReasonNotEligible EligibilityReason = "not_eligible"
	// ReasonAlreadyClaimed means the leaf index is marked claimed on-chain
	ReasonAlreadyClaimed EligibilityReason = "already_claimed"
	// ReasonProofInvalid means the regenerated proof failed local verification
	ReasonProofInvalid EligibilityReason = "proof_invalid"
)

// EligibilityResult carries the claim arguments for an eligible address, or
// the reason the claim is blocked. The verifier never submits a transaction.
type EligibilityResult struct {
	Reason EligibilityReason `json:"reason"`
	Index  int               `json:"index,omitempty"`
	Amount string            `json:"amount,omitempty"`
	Proof  []string          `json:"proof,omitempty"`
}

// Eligible is a convenience accessor.
func (r *EligibilityResult) Eligible() bool {
	return r.Reason == ReasonEligible
}

var (
	hasExpiredSelector = crypto.Keccak256([]byte("hasExpired()"))[:4]
	isClaimedSelector  = crypto.Keccak256([]byte("isClaimed(uint256)"))[:4]
)

// Verifier checks claim eligibility against an off-chain tree export and the
// on-chain expiry/claim state of the deployed claim contract.
//
// The tree is loaded from an off-chain export, not fetched trustlessly:
// callers remain responsible for comparing the loaded root to the root
// committed on-chain before acting on a proof.
type Verifier struct {
	client chain.Client
}

// NewVerifier creates a verifier over a chain client.
func NewVerifier(client chain.Client) *Verifier {
	return &Verifier{client: client}
}

// CheckEligibility runs the precondition chain in order, each a distinct
// failure mode: campaign expiry, tree membership, on-chain claim status,
// local proof verification.
func (v *Verifier) CheckEligibility(ctx context.Context, address string, contractAddress string, chainID types.ChainID, export *Export) (*EligibilityResult, error) {
	if !types.ValidAddress(address) {
		return nil, fmt.Errorf("invalid wallet address: %s", address)
	}
	if !types.ValidAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddress)
	}
	if !chainID.Supported() {
		return nil, fmt.Errorf("unsupported chain id: %s", chainID)
	}

	tree, err := Load(export)
	if err != nil {
		return nil, err
	}

	expired, err := v.hasExpired(ctx, contractAddress)
	if err != nil {
		return nil, err
	}
	if expired {
		return &EligibilityResult{Reason: ReasonExpired}, nil
	}

	index := tree.IndexOf(address)
	if index < 0 {
		return &EligibilityResult{Reason: ReasonNotEligible}, nil
	}

	claimed, err := v.isClaimed(ctx, contractAddress, index)
	if err != nil {
		return nil, err
	}
	if claimed {
		return &EligibilityResult{Reason: ReasonAlreadyClaimed}, nil
	}

	recipient := tree.Recipients()[index]
	proof, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}
	amount, _ := new(big.Int).SetString(recipient.Amount, 10)
	if !VerifyProof(tree.Root(), index, recipient.Address, amount, proof) {
		return &EligibilityResult{Reason: ReasonProofInvalid}, nil
	}

	return &EligibilityResult{
		Reason: ReasonEligible,
		Index:  index,
		Amount: recipient.Amount,
		Proof:  proof,
	}, nil
}

func (v *Verifier) hasExpired(ctx context.Context, contractAddress string) (bool, error) {
	out, err := v.readContract(ctx, contractAddress, hasExpiredSelector)
	if err != nil {
		return false, err
	}
	return decodeBool(out), nil
}

func (v *Verifier) isClaimed(ctx context.Context, contractAddress string, index int) (bool, error) {
	data := append(append([]byte{}, isClaimedSelector...), common.BigToHash(big.NewInt(int64(index))).Bytes()...)
	out, err := v.readContract(ctx, contractAddress, data)
	if err != nil {
		return false, err
	}
	return decodeBool(out), nil
}

func (v *Verifier) readContract(ctx context.Context, contractAddress string, data []byte) ([]byte, error) {
	to := common.HexToAddress(contractAddress)
	return v.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func decodeBool(out []byte) bool {
	for _, b := range out {
		if b != 0 {
			return true
		}
	}
	return false
}
