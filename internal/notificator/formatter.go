package notificator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/internal/risk"
)

const (
	timeLayout = "2006-01-02 15:04:05 UTC"

	welcomeText        = "🤖 Welcome to the Solana Token Bot! You can monitor tokens and check their risk level here."
	monitoringActive   = "🔍 Monitoring is active. Looking for new tokens..."
	monitoringInactive = "⏹️ Monitoring is not active. Please try again later."
	latestHeader       = "Here are the latest tokens detected:"
	noTokensText       = "No tokens detected yet."
	stoppingText       = "⏹️ Stopping token monitoring..."
	adminOnlyText      = "⛔ This command is restricted to the bot admin."
	unsubscribedText   = "🔕 This chat will no longer receive token alerts. Send /start to subscribe again."
	notSubscribedText  = "This chat is not subscribed. Send /start to receive token alerts."

	helpText = "🤖 Available commands:\n" +
		"/start - subscribe this chat to token alerts\n" +
		"/unsubscribe - stop token alerts in this chat\n" +
		"/status - monitoring state and latest tokens\n" +
		"/report <mint> - fresh risk report for a detected token\n" +
		"/snipe - wait for the next detected token\n" +
		"/help - this message\n\n" +
		"Admin:\n" +
		"/monitor - start monitoring\n" +
		"/stop - stop monitoring\n" +
		"/scan - re-check the latest tokens (progress goes to the admin chat)\n" +
		"/config - show the running configuration"
)

// FormatToken renders the token card shown for every detected token.
func FormatToken(token models.TokenRecord) string {
	var b strings.Builder
	b.WriteString("🪙 **Token Detected**\n")
	fmt.Fprintf(&b, "📍 Mint: `%s`\n", token.BaseAsset.Address)
	fmt.Fprintf(&b, "👤 Creator: `%s`\n", token.Creator)
	fmt.Fprintf(&b, "⏰ Time: %s\n", token.DetectedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "💧 LP Amount: %s\n", risk.FormatAmount(token.BaseAsset.LiquidityAmount))
	fmt.Fprintf(&b, "💰 Quote Amount: %s SOL\n", strconv.FormatFloat(token.QuoteAsset.LiquidityAmount, 'f', -1, 64))
	fmt.Fprintf(&b, "🔍 Risk Level: %s\n", risk.LevelLabel(token.RiskReport))

	if token.RiskReport != nil {
		fmt.Fprintf(&b, "📊 Risk Score: %s\n", risk.FormatNumber(token.RiskReport.Score))

		top := risk.TopRisks(token.RiskReport, risk.TopRisksShown)
		if len(top) > 0 {
			b.WriteString("\n⚠️ **Top Risks:**\n")
			for i, r := range top {
				fmt.Fprintf(&b, "%d. %s %s (%s)\n", i+1, riskEmoji(r.Level), r.Name, risk.FormatNumber(r.Score))
			}
		}
	}
	return b.String()
}

func riskEmoji(level string) string {
	switch level {
	case models.RiskDanger:
		return "🔴"
	case models.RiskWarn:
		return "🟡"
	default:
		return "🔵"
	}
}

// FormatAnalysis is the token card followed by the verdict block.
func FormatAnalysis(a models.Analysis) string {
	var b strings.Builder
	b.WriteString(FormatToken(a.Token))
	fmt.Fprintf(&b, "\n%s Verdict: %s / %s\n", verdictEmoji(a.Verdict.Level), a.Verdict.Level, a.Verdict.Recommendation)
	b.WriteString(a.Verdict.Summary)
	b.WriteString("\n")
	if a.PassesGate {
		b.WriteString("✅ Passed security check")
	} else {
		b.WriteString("⚠️ Did not pass security check")
	}
	return b.String()
}

func verdictEmoji(level models.RiskLevel) string {
	switch level {
	case models.LevelLow:
		return "🟢"
	case models.LevelMedium:
		return "🟡"
	case models.LevelHigh:
		return "🟠"
	default:
		return "🔴"
	}
}

// FormatStatus renders the status command as separate messages: the monitoring
// state, then either the latest-tokens header with one card per token or the
// empty notice.
func FormatStatus(status models.Status) []models.Notification {
	out := make([]models.Notification, 0, len(status.LatestRecords)+2)
	if status.IsActive {
		out = append(out, models.Notification{Text: monitoringActive})
	} else {
		out = append(out, models.Notification{Text: monitoringInactive})
	}

	if len(status.LatestRecords) == 0 {
		return append(out, models.Notification{Text: noTokensText})
	}
	out = append(out, models.Notification{Text: latestHeader})
	for _, token := range status.LatestRecords {
		out = append(out, models.Notification{Text: FormatToken(token), Mint: token.BaseAsset.Address})
	}
	return out
}

func FormatProgress(done, total int) string {
	return fmt.Sprintf("📊 Analysis progress: %d/%d", done, total)
}

// FormatBatch summarises a scan, one line per token.
func FormatBatch(analyses []models.Analysis) string {
	if len(analyses) == 0 {
		return noTokensText
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Batch analysis complete: %d tokens\n", len(analyses))
	for i, a := range analyses {
		score := "n/a"
		if a.Token.RiskReport != nil {
			score = risk.FormatNumber(a.Token.RiskReport.Score)
		}
		fmt.Fprintf(&b, "%d. `%s` %s %s (%s)\n", i+1, a.Token.BaseAsset.Address, verdictEmoji(a.Verdict.Level), a.Verdict.Level, score)
	}
	return b.String()
}

func FormatSnipePlan(plan models.SnipePlan) string {
	var b strings.Builder
	if plan.Safe {
		fmt.Fprintf(&b, "🎯 Snipe ready: `%s`\n", plan.Mint)
	} else {
		fmt.Fprintf(&b, "⛔ Snipe blocked: `%s`\n", plan.Mint)
		for _, reason := range plan.Reasons {
			fmt.Fprintf(&b, "- %s\n", reason)
		}
	}
	fmt.Fprintf(&b, "💵 Suggested amount: %s SOL", strconv.FormatFloat(plan.AmountSOL, 'f', -1, 64))
	return b.String()
}

func FormatMonitoringError(err error) string {
	return fmt.Sprintf("❌ Token monitoring error: %v", err)
}

// FormatConfig renders a configuration summary with keys in sorted order.
func FormatConfig(summary map[string]interface{}) string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("⚙️ Configuration:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, summary[k])
	}
	return b.String()
}
