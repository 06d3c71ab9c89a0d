package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-insights-backend/internal/analytics"
)

func jan() analytics.Period {
	return analytics.Period{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

func sampleSnapshot() *analytics.Snapshot {
	return &analytics.Snapshot{
		TotalSpending:    decimal.NewFromInt(1500),
		TransactionCount: 12,
		Categories: []analytics.CategoryBreakdown{
			{Category: "Food", Total: decimal.NewFromInt(600), Count: 8, Percentage: 40},
			{Category: "Rent", Total: decimal.NewFromInt(900), Count: 4, Percentage: 60},
		},
	}
}

func TestBuild_GBPCategoryLine(t *testing.T) {
	out := Build(sampleSnapshot(), jan(), MustCurrency("GBP"))
	for _, want := range []string{
		"Food: £600.00 (40.0%)",
		"Rent: £900.00 (60.0%)",
		"Total spending: £1,500.00 across 12 transactions",
		"2024-01-01 to 2024-01-31",
		NoMerchantsLine,
		NoBudgetsLine,
		`"monthlySummary"`,
		`"percentage_of_total"`,
		`"confidence": "high" | "medium" | "low"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Recent daily spending") {
		t.Fatalf("trend section must be omitted without trend data")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	cur := MustCurrency("USD")
	a := Build(sampleSnapshot(), jan(), cur)
	b := Build(sampleSnapshot(), jan(), cur)
	if a != b || Hash(a) != Hash(b) {
		t.Fatalf("Build should be byte-identical for identical input")
	}
	if Build(sampleSnapshot(), jan(), MustCurrency("GBP")) == a {
		t.Fatalf("currency must affect the prompt")
	}
}

func TestBuild_EmptySnapshotUsesSentinels(t *testing.T) {
	out := Build(&analytics.Snapshot{TotalSpending: decimal.Zero}, jan(), MustCurrency("USD"))
	for _, want := range []string{NoCategoriesLine, NoMerchantsLine, NoBudgetsLine, "$0.00 across 0 transactions"} {
		if !strings.Contains(out, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestBuild_MerchantsBudgetsAndTrendWindow(t *testing.T) {
	snap := sampleSnapshot()
	snap.TopMerchants = []analytics.MerchantTotal{{Merchant: "Tesco", Total: decimal.NewFromInt(300), Count: 3}}
	snap.Budgets = []analytics.BudgetStatus{{Name: "Groceries", Spent: decimal.NewFromInt(600), Limit: decimal.NewFromInt(800), PercentUsed: 75}}
	for i := 1; i <= 10; i++ {
		snap.Trend = append(snap.Trend, analytics.TrendPoint{
			Date:  time.Date(2024, 1, i, 0, 0, 0, 0, time.UTC),
			Total: decimal.NewFromInt(int64(i)),
		})
	}
	out := Build(snap, jan(), MustCurrency("USD"))
	if !strings.Contains(out, "- Tesco: $300.00 (3 transactions)") {
		t.Fatalf("merchant line missing:\n%s", out)
	}
	if !strings.Contains(out, "- Groceries: $600.00 of $800.00 (75.0% used)") {
		t.Fatalf("budget line missing:\n%s", out)
	}
	if strings.Contains(out, "2024-01-03:") || !strings.Contains(out, "2024-01-04: $4.00") || !strings.Contains(out, "2024-01-10: $10.00") {
		t.Fatalf("trend window should hold the last %d points:\n%s", TrendWindow, out)
	}
}

func TestResolveCurrency(t *testing.T) {
	c, err := ResolveCurrency(" jpy ")
	if err != nil {
		t.Fatalf("ResolveCurrency: %v", err)
	}
	if c.Code != "JPY" || c.Scale != 0 || c.Format(decimal.NewFromInt(1500)) != "¥1,500" {
		t.Fatalf("unexpected JPY formatting: %+v %q", c, c.Format(decimal.NewFromInt(1500)))
	}
	if _, err := ResolveCurrency("XXQ"); err == nil {
		t.Fatalf("expected error for unknown code")
	}
	if MustCurrency("nope").Code != "USD" {
		t.Fatalf("MustCurrency should fall back to USD")
	}
	sek := MustCurrency("SEK")
	if sek.Symbol != "SEK " {
		t.Fatalf("unexpected fallback symbol %q", sek.Symbol)
	}
	if got := MustCurrency("GBP").Format(decimal.RequireFromString("-12.345")); got != "-£12.35" {
		t.Fatalf("negative format = %q", got)
	}
}

func TestHash_Stable(t *testing.T) {
	if Hash("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256")
	}
}
