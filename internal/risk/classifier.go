package risk

import (
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/rayscout/rayscout/internal/models"
)

const (
	// DefaultMaxScore is the security gate ceiling used when none is configured
	DefaultMaxScore = 50000

	lowScoreLimit    = 10000
	mediumScoreLimit = 30000
	highScoreLimit   = 50000

	// TopRisksShown is how many findings are rendered with a token
	TopRisksShown = 3
)

var printer = message.NewPrinter(language.English)

// Assess derives a verdict from an oracle report. A missing report yields a cautious
// MEDIUM/HOLD rather than an optimistic one.
func Assess(report *models.RiskReport) models.Verdict {
	if report == nil {
		return models.Verdict{
			Level:          models.LevelMedium,
			Recommendation: models.RecommendHold,
			Summary:        "Unable to assess risk - proceed with caution",
		}
	}

	score := report.Score
	dangers := report.DangerCount()

	switch {
	case score < lowScoreLimit && dangers == 0:
		return models.Verdict{
			Level:          models.LevelLow,
			Recommendation: models.RecommendBuy,
			Summary:        printer.Sprintf("Low risk token with score %d. Generally safe for investment.", score),
		}
	case score < mediumScoreLimit && dangers <= 1:
		return models.Verdict{
			Level:          models.LevelMedium,
			Recommendation: models.RecommendHold,
			Summary:        printer.Sprintf("Medium risk token with score %d. Consider carefully before investing.", score),
		}
	case score < highScoreLimit || dangers <= 3:
		return models.Verdict{
			Level:          models.LevelHigh,
			Recommendation: models.RecommendAvoid,
			Summary:        printer.Sprintf("High risk token with score %d and %d danger risks. Investment not recommended.", score, dangers),
		}
	default:
		return models.Verdict{
			Level:          models.LevelCritical,
			Recommendation: models.RecommendAvoid,
			Summary:        printer.Sprintf("Critical risk token with score %d and %d danger risks. Avoid at all costs!", score, dangers),
		}
	}
}

// Classifier applies the security gate on top of Assess
type Classifier struct {
	MaxScore int64
}

func NewClassifier(maxScore int64) *Classifier {
	return &Classifier{MaxScore: maxScore}
}

// PassesGate decides automated-action eligibility. Fails closed on a missing report.
func (c *Classifier) PassesGate(report *models.RiskReport) bool {
	if report == nil {
		return false
	}
	return Assess(report).Level == models.LevelLow && report.Score <= c.MaxScore
}

// Analyze bundles a token with its verdict and gate decision.
func (c *Classifier) Analyze(token models.TokenRecord) models.Analysis {
	return models.Analysis{
		Token:      token,
		Verdict:    Assess(token.RiskReport),
		PassesGate: c.PassesGate(token.RiskReport),
	}
}

// TopRisks returns the n highest scoring findings; equal scores keep report order.
func TopRisks(report *models.RiskReport, n int) []models.Risk {
	if report == nil || n <= 0 {
		return nil
	}
	risks := make([]models.Risk, len(report.Risks))
	copy(risks, report.Risks)
	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].Score > risks[j].Score
	})
	if len(risks) > n {
		risks = risks[:n]
	}
	return risks
}

// LevelLabel renders a score band for chat output. Unlike Assess it looks at the score only.
func LevelLabel(report *models.RiskReport) string {
	if report == nil {
		return "❓ Unknown"
	}
	switch {
	case report.Score < lowScoreLimit:
		return "🟢 Low Risk"
	case report.Score < mediumScoreLimit:
		return "🟡 Medium Risk"
	case report.Score < highScoreLimit:
		return "🟠 High Risk"
	default:
		return "🔴 Critical Risk"
	}
}

// FormatNumber renders n with thousands separators.
func FormatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatAmount renders a UI token amount with thousands separators and at most
// three fraction digits.
func FormatAmount(v float64) string {
	return printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(3)))
}
