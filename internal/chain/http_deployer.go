package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/types"
)

// HTTPDeployer implements AirdropDeployer against an external signing
// service. The service holds the deployment key and submits the transaction;
// this client only ships the request and records the result.
type HTTPDeployer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDeployer creates a deployer client for a signing service endpoint.
func NewHTTPDeployer(baseURL string, timeout time.Duration) (*HTTPDeployer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("signer url cannot be empty")
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPDeployer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type deployResponse struct {
	ContractAddress string `json:"contractAddress"`
	DeployTxHash    string `json:"deployTxHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	Error           string `json:"error,omitempty"`
}

// Deploy submits the claim-contract deployment to the signing service and
// waits for the mined result.
func (d *HTTPDeployer) Deploy(ctx context.Context, req *DeployRequest) (*Deployment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deploy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/deploy", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build deploy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewChainUnavailableError("airdrop deploy", err)
	}
	defer resp.Body.Close() // nolint:errcheck // read-only body

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewChainUnavailableError("airdrop deploy", err)
	}

	var result deployResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode deploy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewChainUnavailableError("airdrop deploy",
			fmt.Errorf("signer returned status %d: %s", resp.StatusCode, result.Error))
	}
	if !types.ValidAddress(result.ContractAddress) || !types.ValidTxHash(result.DeployTxHash) {
		return nil, fmt.Errorf("signer returned malformed deployment: address %q, hash %q",
			result.ContractAddress, result.DeployTxHash)
	}

	return &Deployment{
		ContractAddress: types.NormalizeAddress(result.ContractAddress),
		DeployTxHash:    types.NormalizeAddress(result.DeployTxHash),
		BlockNumber:     result.BlockNumber,
	}, nil
}
