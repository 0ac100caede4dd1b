package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rewards-settlement/internal/models"
)

// PurchaseRequest is the body of the listing purchase endpoint.
type PurchaseRequest struct {
	AccountID   string `json:"accountId"`
	BuyerWallet string `json:"buyerWallet"`
	TxHash      string `json:"txHash"`
}

// PurchaseResponse is the response of the listing purchase endpoint.
type PurchaseResponse struct {
	Listing *models.Listing       `json:"listing"`
	Event   *models.PurchaseEvent `json:"event"`
}

// handlePurchaseListing executes a secondary-market purchase through the
// ownership ledger. Validation and the atomic balance transfer live in the
// ledger; this handler only shapes the wire format.
func (s *Server) handlePurchaseListing(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	var req PurchaseRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body", nil)
		return
	}
	if req.AccountID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "accountId is required", nil)
		return
	}

	listing, event, err := s.ledger.TransferOnPurchase(r.Context(), listingID, req.AccountID, req.BuyerWallet, req.TxHash)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if s.cache != nil {
		s.cache.InvalidateWallet(r.Context(), req.BuyerWallet)
	}

	respondJSON(w, http.StatusOK, PurchaseResponse{Listing: listing, Event: event})
}
