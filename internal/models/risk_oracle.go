package models

import "context"

// RiskOracle fetches risk reports. Every failure degrades to a nil report.
type RiskOracle interface {
	Check(ctx context.Context, address string) *RiskReport
	CheckBatch(ctx context.Context, addresses []string, onProgress func(done, total int)) []*RiskReport
}
