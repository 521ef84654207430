package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"PortfolioSentinel/internal/model"
	"PortfolioSentinel/internal/valuation"
)

func actionIcon(a model.Action) string {
	switch a {
	case model.ActionStrongBuy:
		return "🟢🟢"
	case model.ActionBuy:
		return "🟢"
	case model.ActionSell:
		return "🔴"
	case model.ActionStrongSell:
		return "🔴🔴"
	default:
		return "⚪"
	}
}

func actionLabel(a model.Action) string {
	return strings.ReplaceAll(string(a), "_", " ")
}

// FormatRecommendation formats one recommendation into a Telegram message.
func FormatRecommendation(rec *model.Recommendation) string {
	var b strings.Builder

	ticker := html.EscapeString(rec.Ticker)
	if rec.Exchange != "" {
		ticker += " (" + html.EscapeString(rec.Exchange) + ")"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s</b> | %s\n\n", actionIcon(rec.Action), actionLabel(rec.Action), ticker))
	b.WriteString(fmt.Sprintf("Score: <b>%d</b>/100\n", rec.CombinedScore))
	b.WriteString(fmt.Sprintf("Price: %.2f %s\n", rec.Price, rec.Currency))

	switch {
	case rec.ShareDelta > 0:
		b.WriteString(fmt.Sprintf("Suggested: buy %d shares\n", rec.ShareDelta))
	case rec.ShareDelta < 0:
		b.WriteString(fmt.Sprintf("Suggested: sell %d shares\n", -rec.ShareDelta))
	default:
		b.WriteString("Suggested: no change in shares\n")
	}
	if rec.StopLoss > 0 {
		b.WriteString(fmt.Sprintf("Stop-loss: %.2f %s\n", rec.StopLoss, rec.StopCurrency))
	}

	bd := rec.Breakdown
	b.WriteString("\n📈 <b>Breakdown:</b>\n")
	b.WriteString(fmt.Sprintf("  Technical: %.0f\n", bd.Technical))
	b.WriteString(fmt.Sprintf("  Fundamental: %.0f\n", bd.Fundamental))
	b.WriteString(fmt.Sprintf("  Sentiment: %.0f\n", bd.Sentiment))
	b.WriteString(fmt.Sprintf("  Risk-adjusted: %.0f\n", bd.RiskAdjusted))

	if rec.Reasoning != "" {
		b.WriteString("\n" + html.EscapeString(rec.Reasoning) + "\n")
	}
	return b.String()
}

// FormatCycleSummary formats a cycle report for a manual run reply.
func FormatCycleSummary(report *model.CycleReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔎 <b>Cycle finished</b> | %s\n\n", report.FinishedAt.Format("2006-01-02 15:04")))
	v := report.Valuation
	b.WriteString(fmt.Sprintf("Portfolio: %.2f %s (cash %.2f)\n", v.TotalBaseValue, v.BaseCurrency, v.CashBaseTotal))
	b.WriteString(fmt.Sprintf("Evaluated: %d | emitted: %d | suppressed: %d\n",
		len(report.Recommendations), report.Count(model.StatusEmitted), report.Count(model.StatusSuppressed)))

	if len(report.Recommendations) > 0 {
		b.WriteString("\n")
		for _, rec := range report.Recommendations {
			line := fmt.Sprintf("%s %s %s %d", actionIcon(rec.Action), html.EscapeString(rec.Ticker), actionLabel(rec.Action), rec.CombinedScore)
			if rec.Status == model.StatusSuppressed {
				line += " (" + html.EscapeString(rec.StatusReason) + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	if len(v.Excluded) > 0 {
		b.WriteString("\n⚠️ Excluded from valuation:\n")
		for _, e := range v.Excluded {
			b.WriteString("  " + html.EscapeString(e) + "\n")
		}
	}
	if len(report.Warnings) > 0 {
		b.WriteString("\n⚠️ Skipped:\n")
		for _, w := range report.Warnings {
			if w.Ticker == "" {
				b.WriteString("  " + html.EscapeString(w.Reason) + "\n")
				continue
			}
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(w.Ticker), html.EscapeString(w.Reason)))
		}
	}
	return b.String()
}

// FormatStatus formats the gate state for display.
func FormatStatus(state model.GateState, dailyCap int) string {
	var b strings.Builder
	b.WriteString("📦 <b>Sentinel status</b>\n\n")
	if state.Active {
		b.WriteString("Alerts: active ✅\n")
	} else {
		b.WriteString("Alerts: paused ⏸\n")
	}
	b.WriteString(fmt.Sprintf("Day: %s\n", state.Day))
	b.WriteString(fmt.Sprintf("Sent today: %d/%d\n", state.EmittedToday, dailyCap))
	if len(state.LastEmitted) > 0 {
		tickers := make([]string, 0, len(state.LastEmitted))
		for t := range state.LastEmitted {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		b.WriteString("\nLast alerts:\n")
		for _, t := range tickers {
			e := state.LastEmitted[t]
			b.WriteString(fmt.Sprintf("  %s %s %d at %s\n", html.EscapeString(t), actionLabel(e.Action), e.Score, e.At.Format("01-02 15:04")))
		}
	}
	if !state.UpdatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("\nUpdated: %s\n", state.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatPortfolio formats a valuation for the /portfolio command.
func FormatPortfolio(v *valuation.PortfolioValuation) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💼 <b>Portfolio</b> | %.2f %s\n\n", v.TotalBaseValue, v.BaseCurrency))

	tickers := make([]string, 0, len(v.HoldingValues))
	for t := range v.HoldingValues {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		b.WriteString(fmt.Sprintf("  %s: %.2f (%.1f%%)\n", html.EscapeString(t), v.HoldingValues[t], v.Weights[t]*100))
	}
	b.WriteString(fmt.Sprintf("  Cash: %.2f\n", v.CashBaseTotal))
	for _, e := range v.Excluded {
		b.WriteString("  ⚠️ " + html.EscapeString(e.String()) + "\n")
	}
	return b.String()
}

// HelpText lists the supported commands.
func HelpText() string {
	return "Available commands:\n" +
		"• /run: evaluate the portfolio now\n" +
		"• /pause: suppress alerts\n" +
		"• /resume: resume alerts\n" +
		"• /status: gate status\n" +
		"• /portfolio: current valuation"
}
