// Package validate turns a free-form model reply into a structurally valid
// domain.ParsedInsight. It does not judge whether the content is correct,
// only that it has the expected shape.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

// Structural failure reasons.
const (
	ReasonNoJSON         = "no JSON found"
	ReasonMissingSummary = "missing monthlySummary"
)

// StructureError reports a reply that could not be turned into an insight.
type StructureError struct {
	Reason string
}

func (e *StructureError) Error() string { return "invalid model reply: " + e.Reason }

// Greedy: first '{' through the last '}'.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the JSON object embedded in raw, or a StructureError
// when none can be found or it does not parse.
func ExtractJSON(raw string) (string, error) {
	body := jsonObject.FindString(raw)
	if body == "" || !gjson.Valid(body) {
		return "", &StructureError{Reason: ReasonNoJSON}
	}
	if !gjson.Parse(body).IsObject() {
		return "", &StructureError{Reason: ReasonNoJSON}
	}
	return body, nil
}

// Parse validates raw and returns the parsed insight. There is no partial
// success: any structural violation yields a *StructureError.
func Parse(raw string) (*domain.ParsedInsight, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	doc := gjson.Parse(body)

	summary := doc.Get("monthlySummary")
	if summary.Type != gjson.String || strings.TrimSpace(summary.Str) == "" {
		return nil, &StructureError{Reason: ReasonMissingSummary}
	}

	out := &domain.ParsedInsight{
		MonthlySummary:   strings.TrimSpace(summary.Str),
		CategoryInsights: []domain.CategoryInsight{},
		SpendingSpikes:   []domain.SpendingSpike{},
		Recommendations:  []string{},
	}

	cats := doc.Get("categoryInsights")
	if !cats.IsArray() {
		return nil, &StructureError{Reason: "categoryInsights must be an array"}
	}
	for i, el := range cats.Array() {
		ci, err := categoryInsight(i, el)
		if err != nil {
			return nil, err
		}
		out.CategoryInsights = append(out.CategoryInsights, ci)
	}

	if spikes := doc.Get("spendingSpikes"); spikes.IsArray() {
		for _, el := range spikes.Array() {
			if s, ok := spendingSpike(el); ok {
				out.SpendingSpikes = append(out.SpendingSpikes, s)
			}
		}
	}

	if recs := doc.Get("recommendations"); recs.IsArray() {
		for _, el := range recs.Array() {
			if el.Type == gjson.String && strings.TrimSpace(el.Str) != "" {
				out.Recommendations = append(out.Recommendations, strings.TrimSpace(el.Str))
			}
		}
	}

	if p := doc.Get("projections"); p.IsObject() {
		out.Projections = projections(p)
	}
	return out, nil
}

func categoryInsight(i int, el gjson.Result) (domain.CategoryInsight, error) {
	bad := func(field string) error {
		return &StructureError{Reason: fmt.Sprintf("categoryInsights[%d]: %s", i, field)}
	}
	if !el.IsObject() {
		return domain.CategoryInsight{}, bad("not an object")
	}
	cat, total, pct, text := el.Get("category"), el.Get("total_spent"), el.Get("percentage_of_total"), el.Get("insight")
	switch {
	case cat.Type != gjson.String:
		return domain.CategoryInsight{}, bad("category must be a string")
	case total.Type != gjson.Number:
		return domain.CategoryInsight{}, bad("total_spent must be a number")
	case pct.Type != gjson.Number:
		return domain.CategoryInsight{}, bad("percentage_of_total must be a number")
	case text.Type != gjson.String:
		return domain.CategoryInsight{}, bad("insight must be a string")
	}
	return domain.CategoryInsight{
		Category:          cat.Str,
		TotalSpent:        total.Num,
		PercentageOfTotal: pct.Num,
		Insight:           text.Str,
	}, nil
}

func spendingSpike(el gjson.Result) (domain.SpendingSpike, bool) {
	if !el.IsObject() {
		return domain.SpendingSpike{}, false
	}
	date, amount := el.Get("date"), el.Get("amount")
	if date.Type != gjson.String || amount.Type != gjson.Number {
		return domain.SpendingSpike{}, false
	}
	return domain.SpendingSpike{
		Date:        date.Str,
		Amount:      amount.Num,
		Category:    el.Get("category").String(),
		Description: el.Get("description").String(),
	}, true
}

// projections returns nil unless every sub-field is well-typed.
func projections(p gjson.Result) *domain.Projections {
	week, month, conf, expl := p.Get("nextWeek"), p.Get("nextMonth"), p.Get("confidence"), p.Get("explanation")
	if week.Type != gjson.Number || month.Type != gjson.Number || expl.Type != gjson.String || conf.Type != gjson.String {
		return nil
	}
	switch conf.Str {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	default:
		return nil
	}
	return &domain.Projections{
		NextWeek:    week.Num,
		NextMonth:   month.Num,
		Confidence:  conf.Str,
		Explanation: expl.Str,
	}
}
