package api

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/rewards-settlement/internal/errors"
	"github.com/rewards-settlement/internal/merkle"
	"github.com/rewards-settlement/internal/storage"
	"github.com/rewards-settlement/internal/types"
)

// ClaimableResponse is the response for the claimable-rewards endpoint.
type ClaimableResponse struct {
	Wallet    string                     `json:"wallet"`
	Claimable []*storage.ClaimableReward `json:"claimable"`
}

// handleGetClaimable returns a wallet's unclaimed payouts under active
// contracts. Results are cached briefly; the ledger remains authoritative.
func (s *Server) handleGetClaimable(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	if !types.ValidAddress(wallet) {
		respondAppError(w, apperrors.NewValidationError("wallet", "malformed address"))
		return
	}
	wallet = types.NormalizeAddress(wallet)

	if s.cache != nil {
		if claimable, ok := s.cache.GetClaimable(r.Context(), wallet); ok {
			respondJSON(w, http.StatusOK, ClaimableResponse{Wallet: wallet, Claimable: claimable})
			return
		}
	}

	claimable, err := s.payouts.ClaimableByWallet(r.Context(), wallet)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if claimable == nil {
		claimable = []*storage.ClaimableReward{}
	}

	if s.cache != nil {
		s.cache.SetClaimable(r.Context(), wallet, claimable)
	}

	respondJSON(w, http.StatusOK, ClaimableResponse{Wallet: wallet, Claimable: claimable})
}

// MarkClaimedRequest is the body of the claim-recording endpoint.
type MarkClaimedRequest struct {
	Wallet      string `json:"wallet"`
	ClaimTxHash string `json:"claimTxHash"`
}

// handleMarkClaimed records a submitted claim transaction against a payout
// row. Recording is idempotent-hostile on purpose: a second call conflicts.
func (s *Server) handleMarkClaimed(w http.ResponseWriter, r *http.Request) {
	payoutID := mux.Vars(r)["id"]

	var req MarkClaimedRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}

	if err := s.payouts.MarkClaimed(r.Context(), payoutID, req.ClaimTxHash); err != nil {
		respondAppError(w, err)
		return
	}

	if s.cache != nil && types.ValidAddress(req.Wallet) {
		s.cache.InvalidateWallet(r.Context(), req.Wallet)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "claimed", "payoutId": payoutID})
}

// EligibilityResponse is the response for the eligibility endpoint.
type EligibilityResponse struct {
	Wallet          string                   `json:"wallet"`
	Week            types.ISOWeek            `json:"week"`
	PartnerID       string                   `json:"partnerId"`
	ContractAddress string                   `json:"contractAddress"`
	ChainID         types.ChainID            `json:"chainId"`
	Result          *merkle.EligibilityResult `json:"result"`
}

// handleCheckEligibility rebuilds the week's claim tree from the payout rows
// and checks the wallet's eligibility against the deployed contract.
func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	if !types.ValidAddress(wallet) {
		respondAppError(w, apperrors.NewValidationError("wallet", "malformed address"))
		return
	}
	wallet = types.NormalizeAddress(wallet)

	week := types.ISOWeek(r.URL.Query().Get("week"))
	if err := week.Validate(); err != nil {
		respondAppError(w, apperrors.NewValidationError("week", err.Error()))
		return
	}

	partnerID := r.URL.Query().Get("partner")
	if partnerID == "" && len(s.config.Partners) > 0 {
		partnerID = s.config.Partners[0].ID
	}

	if s.cache != nil {
		var cached EligibilityResponse
		if s.cache.GetEligibility(r.Context(), wallet, week, partnerID, &cached) {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	contract, err := s.payouts.ActiveContract(r.Context(), week, partnerID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if contract == nil {
		respondAppError(w, apperrors.NewNotFoundError("payout contract", week.String()))
		return
	}

	verifier, ok := s.verifiers[contract.ChainID]
	if !ok {
		respondAppError(w, apperrors.NewValidationError("chain", "no verifier configured for chain "+contract.ChainID.String()))
		return
	}

	payouts, err := s.payouts.PayoutsForContract(r.Context(), contract.ID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	export := &merkle.Export{Root: contract.MerkleRoot}
	for _, p := range payouts {
		export.Recipients = append(export.Recipients, merkle.Recipient{
			Address: p.WalletAddress,
			Amount:  p.Amount,
		})
	}

	result, err := verifier.CheckEligibility(r.Context(), wallet, contract.ContractAddress, contract.ChainID, export)
	if err != nil {
		respondAppError(w, apperrors.NewChainUnavailableError("eligibility check", err))
		return
	}

	response := EligibilityResponse{
		Wallet:          wallet,
		Week:            week,
		PartnerID:       partnerID,
		ContractAddress: contract.ContractAddress,
		ChainID:         contract.ChainID,
		Result:          result,
	}

	if s.cache != nil {
		s.cache.SetEligibility(r.Context(), wallet, week, partnerID, response)
	}

	respondJSON(w, http.StatusOK, response)
}
