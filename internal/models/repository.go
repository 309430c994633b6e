package models

import "context"

// EventStore is the append-only record of detected tokens.
// Read methods degrade to empty results; only Append reports failures.
type EventStore interface {
	Append(ctx context.Context, record *TokenRecord) error
	// Latest returns up to limit records detected within the trailing maxAgeDays, newest first.
	Latest(ctx context.Context, limit int, maxAgeDays int) []TokenRecord
	FindBySignature(ctx context.Context, signature string, maxAgeDays int) *TokenRecord
	FindByAssetAddress(ctx context.Context, address string, maxAgeDays int) *TokenRecord
	Close() error
}

// ErrorRecorder keeps the plain-text error trail.
type ErrorRecorder interface {
	Record(context string, err error)
}
