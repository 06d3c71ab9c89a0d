// Package prompt renders an analytics snapshot into the instruction text sent
// to the language model. Build is pure: the same snapshot, period and
// currency always produce a byte-identical prompt.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-insights-backend/internal/analytics"
)

// TrendWindow is how many of the most recent trend points are included.
const TrendWindow = 7

// Sentinel lines for absent sections.
const (
	NoCategoriesLine = "- no spending recorded"
	NoMerchantsLine  = "Top merchants: no merchant data available"
	NoBudgetsLine    = "Budget status: no budgets configured"
)

const schemaInstructions = `Respond with a single JSON object and nothing else. Use exactly this shape:
{
  "monthlySummary": string (required, non-empty),
  "categoryInsights": [ (required, may be empty)
    {
      "category": string (required),
      "total_spent": number (required),
      "percentage_of_total": number (required),
      "insight": string (required)
    }
  ],
  "spendingSpikes": [ (optional)
    {
      "date": string YYYY-MM-DD,
      "amount": number,
      "category": string,
      "description": string
    }
  ],
  "recommendations": [string] (optional),
  "projections": { (optional; include all four fields or omit the object)
    "nextWeek": number,
    "nextMonth": number,
    "confidence": "high" | "medium" | "low",
    "explanation": string
  }
}`

// Build renders snap for period p using currency cur.
func Build(snap *analytics.Snapshot, p analytics.Period, cur Currency) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a personal finance analyst. Analyze the user's spending from %s to %s and produce actionable insights.\n\n",
		p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))

	fmt.Fprintf(&b, "Total spending: %s across %d transactions (currency %s)\n\n",
		cur.Format(snap.TotalSpending), snap.TransactionCount, cur.Code)

	b.WriteString("Spending by category:\n")
	if len(snap.Categories) == 0 {
		b.WriteString(NoCategoriesLine + "\n")
	}
	for _, c := range snap.Categories {
		fmt.Fprintf(&b, "- %s: %s (%.1f%%)\n", c.Category, cur.Format(c.Total), c.Percentage)
	}
	b.WriteString("\n")

	if len(snap.TopMerchants) == 0 {
		b.WriteString(NoMerchantsLine + "\n")
	} else {
		b.WriteString("Top merchants:\n")
		for _, m := range snap.TopMerchants {
			fmt.Fprintf(&b, "- %s: %s (%d transactions)\n", m.Merchant, cur.Format(m.Total), m.Count)
		}
	}
	b.WriteString("\n")

	if len(snap.Budgets) == 0 {
		b.WriteString(NoBudgetsLine + "\n")
	} else {
		b.WriteString("Budget status:\n")
		for _, bs := range snap.Budgets {
			fmt.Fprintf(&b, "- %s: %s of %s (%.1f%% used)\n", bs.Name, cur.Format(bs.Spent), cur.Format(bs.Limit), bs.PercentUsed)
		}
	}

	if n := len(snap.Trend); n > 0 {
		from := 0
		if n > TrendWindow {
			from = n - TrendWindow
		}
		b.WriteString("\nRecent daily spending:\n")
		for _, tp := range snap.Trend[from:] {
			fmt.Fprintf(&b, "- %s: %s\n", tp.Date.Format(time.DateOnly), cur.Format(tp.Total))
		}
	}

	b.WriteString("\n")
	b.WriteString(schemaInstructions)
	b.WriteString("\n")
	return b.String()
}

// Hash returns the hex SHA-256 digest of prompt.
func Hash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
