package analysis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dvloznov/financio/internal/domain"
)

// PeriodDays is the window the on-demand analysis covers.
const PeriodDays = 30

const promptIntro = "You are a financial advisor for Small and Medium Enterprises (SMEs) and startups globally.\n" +
	"Analyze the following financial data and provide actionable advice in English.\n\n"

const promptInstructions = "**Please provide:**\n" +
	"1. **Financial Analysis**: Provide a brief analysis of the business's financial health.\n" +
	"2. **Areas for Savings**: Identify expense categories that can be optimized.\n" +
	"3. **Recommendations**: Give 3-5 specific, actionable recommendations to improve cash flow and profitability.\n" +
	"4. **Warnings**: Highlight any critical issues (e.g., expenses exceeding income, concerning spending patterns).\n\n" +
	"Format your response in clear markdown with proper headings and structure for easy readability.\n" +
	"Focus on practical, global business advice applicable to SMEs and startups worldwide.\n"

// BuildPrompt renders the advisory prompt for summary. The output depends
// only on summary.
func BuildPrompt(summary domain.AnalysisSummary) string {
	var b strings.Builder

	b.WriteString(promptIntro)
	fmt.Fprintf(&b, "**Financial Summary (Last %d Days):**\n", PeriodDays)
	fmt.Fprintf(&b, "- Total Income: $%s\n", FormatAmount(summary.TotalIncome))
	fmt.Fprintf(&b, "- Total Expense: $%s\n", FormatAmount(summary.TotalExpense))
	fmt.Fprintf(&b, "- Net Balance: $%s\n", FormatAmount(summary.NetBalance))
	fmt.Fprintf(&b, "- Number of Transactions: %d\n\n", summary.TransactionCount)

	b.WriteString("**Expense Breakdown by Category:**\n")
	for _, share := range Breakdown(summary) {
		fmt.Fprintf(&b, "- %s: $%s (%s%%)\n", share.Name, FormatAmount(share.Amount), FormatPercent(share.Percent))
	}
	b.WriteString("\n")

	b.WriteString(promptInstructions)
	return b.String()
}

// FormatAmount renders a whole-unit amount with thousands separators,
// rounding half to even.
func FormatAmount(d decimal.Decimal) string {
	return message.NewPrinter(language.English).Sprintf("%d", d.RoundBank(0).IntPart())
}

// FormatPercent renders a percentage with one decimal place.
func FormatPercent(d decimal.Decimal) string {
	return d.RoundBank(1).StringFixed(1)
}
