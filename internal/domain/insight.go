package domain

import "time"

// Projection confidence levels accepted from the model.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// CategoryInsight is the model's commentary on a single spending category.
type CategoryInsight struct {
	Category          string  `json:"category"`
	TotalSpent        float64 `json:"total_spent"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
	Insight           string  `json:"insight"`
}

// SpendingSpike is an unusual spend flagged by the model.
type SpendingSpike struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// Projections forecast near-term spending. It is either fully populated or
// absent; partial projections are never stored.
type Projections struct {
	NextWeek    float64 `json:"next_week"`
	NextMonth   float64 `json:"next_month"`
	Confidence  string  `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ParsedInsight is a structurally validated model reply. CategoryInsights,
// SpendingSpikes and Recommendations are never nil.
type ParsedInsight struct {
	MonthlySummary   string
	CategoryInsights []CategoryInsight
	SpendingSpikes   []SpendingSpike
	Recommendations  []string
	Projections      *Projections
}

// Insight is a persisted, generated insight for one user and period.
// Records are created and deleted but never updated in place.
//
// Fields:
//   - ID: UUID primary key (char(36)); lookups by period use
//     (UserID, PeriodStart, PeriodEnd).
//   - PeriodStart / PeriodEnd: inclusive calendar dates, start <= end.
//   - Placeholder: true when the record was synthesized after generation
//     failed.
//   - GeneratedAt: drives "latest" lookups and retention pruning.
type Insight struct {
	ID               string            `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID           string            `json:"user_id"           gorm:"type:varchar(64);not null;index:idx_user_insight_period,priority:1;index:idx_user_insight_generated,priority:1"`
	PeriodStart      time.Time         `json:"period_start"      gorm:"not null;index:idx_user_insight_period,priority:2"`
	PeriodEnd        time.Time         `json:"period_end"        gorm:"not null;index:idx_user_insight_period,priority:3"`
	MonthlySummary   string            `json:"monthly_summary"   gorm:"type:text;not null"`
	CategoryInsights []CategoryInsight `json:"category_insights" gorm:"type:text;serializer:json"`
	SpendingSpikes   []SpendingSpike   `json:"spending_spikes"   gorm:"type:text;serializer:json"`
	Recommendations  []string          `json:"recommendations"   gorm:"type:text;serializer:json"`
	Projections      *Projections      `json:"projections"       gorm:"type:text;serializer:json"`
	Placeholder      bool              `json:"placeholder"       gorm:"not null;default:false"`
	GeneratedAt      time.Time         `json:"generated_at"      gorm:"not null;index:idx_user_insight_generated,priority:2"`
}

// TableName returns the database table name for Insight.
func (Insight) TableName() string { return "insights" }

// Normalize replaces nil slices with empty ones so JSON output always carries
// arrays.
func (i *Insight) Normalize() {
	if i.CategoryInsights == nil {
		i.CategoryInsights = []CategoryInsight{}
	}
	if i.SpendingSpikes == nil {
		i.SpendingSpikes = []SpendingSpike{}
	}
	if i.Recommendations == nil {
		i.Recommendations = []string{}
	}
}
