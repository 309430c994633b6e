package sniper

import (
	"time"

	"github.com/rayscout/rayscout/internal/models"
)

const (
	maxSafeScore        = 50000
	minBaseLiquidity    = 1_000_000
	maxTokenAge         = time.Hour
	defaultAmountSOL    = 0.05
	lowRiskAmountSOL    = 0.2
	mediumRiskAmountSOL = 0.1
)

// Planner runs the pre-trade checks for tokens that passed the security gate.
// It never submits transactions.
type Planner struct {
	now func() time.Time
}

func NewPlanner() *Planner {
	return &Planner{now: time.Now}
}

// Plan evaluates an analysed token and sizes the position.
func (p *Planner) Plan(analysis models.Analysis) models.SnipePlan {
	token := analysis.Token
	reasons := make([]string, 0)

	if token.RiskReport == nil {
		reasons = append(reasons, "No rug analysis available")
	} else if token.RiskReport.Score > maxSafeScore {
		reasons = append(reasons, "Risk score too high")
	}

	if token.BaseAsset.LiquidityAmount < minBaseLiquidity {
		reasons = append(reasons, "LP amount too low")
	}

	if p.now().Sub(token.DetectedAt) > maxTokenAge {
		reasons = append(reasons, "Token too old for sniping")
	}

	return models.SnipePlan{
		Mint:      token.BaseAsset.Address,
		Safe:      len(reasons) == 0,
		Reasons:   reasons,
		AmountSOL: TradeAmount(token.RiskReport),
	}
}

// TradeAmount sizes a trade in SOL from the oracle score.
func TradeAmount(report *models.RiskReport) float64 {
	if report == nil {
		return defaultAmountSOL
	}
	switch {
	case report.Score < 10000:
		return lowRiskAmountSOL
	case report.Score < 30000:
		return mediumRiskAmountSOL
	default:
		return defaultAmountSOL
	}
}
