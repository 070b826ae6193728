// Package domain holds the types shared by the cache, chat session, API
// client and devbackend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Transaction is one ledger entry as the backend returns it.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId,omitempty"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Date        string          `json:"date"` // YYYY-MM-DD
}

// CategoryTotals maps category name to the summed amount.
type CategoryTotals map[string]decimal.Decimal

// Total sums every category.
func (c CategoryTotals) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range c {
		total = total.Add(v)
	}
	return total
}

// FinancialSummary is derived from the income and expense summaries.
type FinancialSummary struct {
	TotalIncome  decimal.Decimal `json:"totalIncome"`
	TotalExpense decimal.Decimal `json:"totalExpense"`
	Balance      decimal.Decimal `json:"balance"`
}

// Summarize builds the financial summary from per-category totals.
func Summarize(income, expense CategoryTotals) FinancialSummary {
	in, out := income.Total(), expense.Total()
	return FinancialSummary{
		TotalIncome:  in,
		TotalExpense: out,
		Balance:      in.Sub(out),
	}
}

// Category is a user-defined transaction category.
type Category struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Type TransactionType `json:"type"`
}

// User is the profile of the authenticated account.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Role names understood by the backend.
const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleAccountant = "ACCOUNTANT"
)
