package models

import "time"

// TokenRecord represents one detected liquidity pool creation
type TokenRecord struct {
	// Signature is the pool creation transaction signature. Natural key of the record.
	Signature string `json:"lpSignature"`
	// Creator is the first signer of the transaction.
	Creator string `json:"creator"`
	// DetectedAt is the processing time, not the block time. Set once at creation.
	DetectedAt time.Time `json:"timestamp"`
	// BaseAsset is the new token side of the pool.
	BaseAsset AssetInfo `json:"baseInfo"`
	// QuoteAsset is the reference token side of the pool (wrapped SOL by default).
	QuoteAsset AssetInfo `json:"quoteInfo"`
	// RawLogLines are the program logs delivered with the notification. Diagnostic only.
	RawLogLines []string `json:"logs"`
	// RiskReport is attached after the oracle has been consulted; nil until then.
	RiskReport *RiskReport `json:"rugCheckResult"`
}

// AssetInfo describes one side of a pool at creation time
type AssetInfo struct {
	Address         string  `json:"address"`
	Decimals        int     `json:"decimals"`
	LiquidityAmount float64 `json:"lpAmount"`
}

// Complete reports whether both pool sides were resolved.
func (t *TokenRecord) Complete() bool {
	return t.BaseAsset.Address != "" && t.QuoteAsset.Address != ""
}

// WithRiskReport returns a copy of the record carrying the given report.
// The receiver is left untouched so stored copies never change.
func (t TokenRecord) WithRiskReport(report *RiskReport) TokenRecord {
	t.RawLogLines = append([]string(nil), t.RawLogLines...)
	t.RiskReport = report
	return t
}
