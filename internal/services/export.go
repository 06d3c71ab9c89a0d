package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-insights-backend/internal/domain"
	"github.com/tbourn/go-insights-backend/internal/prompt"
	"github.com/tbourn/go-insights-backend/internal/repo"
)

// Export formats.
const (
	FormatText = "text"
	FormatPDF  = "pdf"
)

// Export renders a stored insight. Only the text format is built; pdf
// returns ErrNotImplemented.
func (s *InsightService) Export(ctx context.Context, insightID, userID, format string) (string, error) {
	tr := otel.Tracer("services/InsightService")
	ctx, span := tr.Start(ctx, "Export",
		trace.WithAttributes(
			attribute.String("insight.id", insightID),
			attribute.String("user.id", userID),
			attribute.String("format", format),
		),
	)
	defer span.End()

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
	case FormatPDF:
		return "", ErrNotImplemented
	default:
		return "", ErrUnsupportedFormat
	}

	in, err := s.Store.GetInsight(ctx, insightID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInsightNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get insight: %w", ErrPersistence, err)
	}

	cur := prompt.MustCurrency(repo.DefaultCurrency)
	if st, err := s.Store.GetUserSettings(ctx, userID); err == nil {
		cur = prompt.MustCurrency(st.Currency)
	}
	return RenderText(in, cur), nil
}

// RenderText formats an insight as a plain-text report.
func RenderText(in *domain.Insight, cur prompt.Currency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Financial insights %s to %s\n", in.PeriodStart.Format(time.DateOnly), in.PeriodEnd.Format(time.DateOnly))
	fmt.Fprintf(&b, "Generated %s\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	if in.Placeholder {
		b.WriteString("(placeholder: detailed insights were unavailable)\n")
	}
	b.WriteString("\nSummary\n")
	b.WriteString(in.MonthlySummary + "\n")

	if len(in.CategoryInsights) > 0 {
		b.WriteString("\nCategories\n")
		for _, c := range in.CategoryInsights {
			fmt.Fprintf(&b, "- %s: %s (%.1f%%) %s\n", c.Category, cur.Format(decimal.NewFromFloat(c.TotalSpent)), c.PercentageOfTotal, c.Insight)
		}
	}
	if len(in.SpendingSpikes) > 0 {
		b.WriteString("\nSpending spikes\n")
		for _, sp := range in.SpendingSpikes {
			fmt.Fprintf(&b, "- %s %s %s: %s\n", sp.Date, cur.Format(decimal.NewFromFloat(sp.Amount)), sp.Category, sp.Description)
		}
	}
	if len(in.Recommendations) > 0 {
		b.WriteString("\nRecommendations\n")
		for i, r := range in.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	if p := in.Projections; p != nil {
		b.WriteString("\nProjections\n")
		fmt.Fprintf(&b, "Next week: %s\nNext month: %s\nConfidence: %s\n%s\n",
			cur.Format(decimal.NewFromFloat(p.NextWeek)), cur.Format(decimal.NewFromFloat(p.NextMonth)), p.Confidence, p.Explanation)
	}
	return b.String()
}
