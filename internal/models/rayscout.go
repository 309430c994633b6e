package models

import (
	"context"
	"time"
)

// Status is the answer to the gateway's status command
type Status struct {
	IsActive      bool          `json:"isActive"`
	LatestRecords []TokenRecord `json:"latestRecords"`
}

// RayscoutI is the command surface the gateway and the HTTP API drive
type RayscoutI interface {
	Status(ctx context.Context) Status
	// Report looks a token up inside the retention window and re-assesses it.
	// Returns nil without error when the token is unknown.
	Report(ctx context.Context, address string) (*Analysis, error)
	// SnipeWait delivers the next detected token, or closes empty after timeout.
	SnipeWait(timeout time.Duration) <-chan TokenRecord
	StartMonitoring(ctx context.Context) error
	StopMonitoring()
	IsMonitoring() bool
	ScanRecent(ctx context.Context, limit int) []Analysis
}

// APIServer is the HTTP surface of the service
type APIServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}
