// Package domain defines the persistence models for transactions, budgets,
// user settings, and generated insights. These types are mapped with GORM
// and form the core data layer of the insights service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction kinds.
const (
	TransactionExpense = "expense"
	TransactionIncome  = "income"
)

// Transaction is a single ledger entry owned by a user. Only expenses count
// towards spending analytics.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owner; indexed together with Date for range scans.
//   - Date: calendar date of the entry (time component is ignored).
//   - Amount: positive magnitude; the direction is carried by Type.
//   - Type: "expense" or "income" (enforced by DB constraint).
//   - Category / Merchant / Description: free text.
type Transaction struct {
	ID          string          `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string          `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_tx_date,priority:1"`
	Date        time.Time       `json:"date"        gorm:"not null;index:idx_user_tx_date,priority:2"`
	Amount      decimal.Decimal `json:"amount"      gorm:"type:decimal(14,2);not null"`
	Type        string          `json:"type"        gorm:"type:varchar(16);not null;default:'expense';check:type IN ('expense','income')"`
	Category    string          `json:"category"    gorm:"type:varchar(64);not null;default:'Uncategorized'"`
	Merchant    string          `json:"merchant"    gorm:"type:varchar(128)"`
	Description string          `json:"description" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// Budget caps spending in one category for a user.
type Budget struct {
	ID        string          `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string          `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Name      string          `json:"name"       gorm:"type:varchar(128);not null"`
	Category  string          `json:"category"   gorm:"type:varchar(64);not null"`
	Limit     decimal.Decimal `json:"limit"      gorm:"column:limit_amount;type:decimal(14,2);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Budget.
func (Budget) TableName() string { return "budgets" }

// BudgetProgress is the spend measured against a budget over a period.
type BudgetProgress struct {
	BudgetID    string
	Spent       decimal.Decimal
	Limit       decimal.Decimal
	PercentUsed float64
}

// UserSettings holds per-user presentation preferences.
type UserSettings struct {
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);primaryKey"`
	Currency  string    `json:"currency" gorm:"type:char(3);not null;default:'USD'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }
