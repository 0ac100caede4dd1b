package models

import (
	"time"

	"github.com/rewards-settlement/internal/types"
)

// PollEvent is the reconciliation watermark for one scanned subject.
// Ranges for a subject are contiguous and non-overlapping; the next scan
// starts at ToBlockNumber + 1.
type PollEvent struct {
	ID              string        `json:"id"`
	SubjectID       string        `json:"subjectId"`
	ChainID         types.ChainID `json:"chainId"`
	FromBlockNumber uint64        `json:"fromBlockNumber"`
	ToBlockNumber   uint64        `json:"toBlockNumber"`
	ProcessedAt     time.Time     `json:"processedAt"`
	ProcessTime     time.Duration `json:"processTime"`
}

// OnchainTransactionRecord is one normalized on-chain transaction ingested
// during reconciliation. Unique per (subject, txHash) so retried or
// overlapping scans never duplicate rows.
type OnchainTransactionRecord struct {
	SubjectID   string                  `json:"subjectId"`
	ChainID     types.ChainID           `json:"chainId"`
	TxHash      string                  `json:"txHash"`
	BlockNumber uint64                  `json:"blockNumber"`
	From        string                  `json:"from"`
	To          string                  `json:"to"`
	GasUsed     uint64                  `json:"gasUsed"`
	GasPrice    string                  `json:"gasPrice"`
	GasCost     string                  `json:"gasCost"`
	Status      types.TransactionStatus `json:"status"`
	Timestamp   int64                   `json:"timestamp"`
	CreatedAt   time.Time               `json:"createdAt"`
}
