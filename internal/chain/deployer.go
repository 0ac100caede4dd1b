package chain

import (
	"context"

	"github.com/rewards-settlement/internal/types"
)

// DeployRecipient is one (address, amount) entry in a claim deployment.
// Amount is an integer base-unit string.
type DeployRecipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// DeployRequest describes the claim contract to deploy for a weekly payout.
type DeployRequest struct {
	ChainID      types.ChainID
	TokenAddress string
	MerkleRoot   string
	Recipients   []DeployRecipient
	ExpiryUnix   int64
}

// Deployment is the result of a successful claim-contract deployment.
type Deployment struct {
	ContractAddress string
	DeployTxHash    string
	BlockNumber     uint64
}

// AirdropDeployer is the signer-backed contract-deployment capability the
// payout orchestrator calls once per payout. Implementations are expected to
// be externally provided (a signing service or SDK); the core never holds
// private keys. Deployments are not cancellable once submitted, so all
// validation happens before Deploy is called.
type AirdropDeployer interface {
	Deploy(ctx context.Context, req *DeployRequest) (*Deployment, error)
}
