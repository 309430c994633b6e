package models

import "context"

// BlockchainService represents the ledger data source.
type BlockchainService interface {
	// SubscribeLogs streams log notifications for transactions mentioning the account.
	// The stream is unsubscribed and the channel closed when ctx is cancelled.
	SubscribeLogs(ctx context.Context, mention string) (<-chan LogNotification, error)
	// GetParsedTransaction returns nil without error when the transaction is unknown.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)
}
