package models

import (
	"time"

	"github.com/rewards-settlement/internal/types"
)

// Listing is a secondary-market sale offer for builder NFTs.
type Listing struct {
	ID           string              `json:"id"`
	NftID        string              `json:"nftId"`
	SellerWallet string              `json:"sellerWallet"`
	Amount       int64               `json:"amount"`
	Price        string              `json:"price"`
	Payment      types.PaymentMethod `json:"payment"`
	Season       string              `json:"season"`
	Status       types.ListingStatus `json:"status"`
	BuyerWallet  *string             `json:"buyerWallet,omitempty"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// PurchaseEvent records a completed secondary purchase, consumed by the
// clawback path and downstream accounting.
type PurchaseEvent struct {
	ID          string              `json:"id"`
	ListingID   string              `json:"listingId"`
	NftID       string              `json:"nftId"`
	BuyerWallet string              `json:"buyerWallet"`
	TxHash      string              `json:"txHash"`
	Amount      int64               `json:"amount"`
	Payment     types.PaymentMethod `json:"payment"`
	Season      string              `json:"season"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// NftBalance is the per-(nftId, wallet) holding. Total balance per nftId is
// conserved across transfers.
type NftBalance struct {
	NftID         string    `json:"nftId"`
	WalletAddress string    `json:"walletAddress"`
	Balance       int64     `json:"balance"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
