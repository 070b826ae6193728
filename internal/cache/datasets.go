package cache

import (
	"time"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

// Default lifetimes per dataset.
const (
	TransactionsTTL     = 5 * time.Minute
	IncomeDataTTL       = 5 * time.Minute
	ExpenseDataTTL      = 5 * time.Minute
	FinancialSummaryTTL = 5 * time.Minute
	UserDataTTL         = 10 * time.Minute
)

// MutationKeys are invalidated whenever a transaction is created, edited,
// deleted or imported.
var MutationKeys = []Key{KeyTransactions, KeyIncomeData, KeyExpenseData}

// DerivedKeys hold values computed from the mutation keys. They go stale
// together with their sources.
var DerivedKeys = []Key{KeyFinancialSummary}

// CacheTransactions stores the transaction list for TransactionsTTL.
func (c *ExpiringCache) CacheTransactions(txs []domain.Transaction) error {
	return c.Set(KeyTransactions, txs, TransactionsTTL)
}

// GetCachedTransactions returns the cached transaction list, if fresh.
func (c *ExpiringCache) GetCachedTransactions() ([]domain.Transaction, bool) {
	var txs []domain.Transaction
	ok := c.Get(KeyTransactions, &txs)
	return txs, ok
}

// CacheIncomeData stores income totals for IncomeDataTTL.
func (c *ExpiringCache) CacheIncomeData(totals domain.CategoryTotals) error {
	return c.Set(KeyIncomeData, totals, IncomeDataTTL)
}

// GetCachedIncomeData returns cached income totals, if fresh.
func (c *ExpiringCache) GetCachedIncomeData() (domain.CategoryTotals, bool) {
	var totals domain.CategoryTotals
	ok := c.Get(KeyIncomeData, &totals)
	return totals, ok
}

// CacheExpenseData stores expense totals for ExpenseDataTTL.
func (c *ExpiringCache) CacheExpenseData(totals domain.CategoryTotals) error {
	return c.Set(KeyExpenseData, totals, ExpenseDataTTL)
}

// GetCachedExpenseData returns cached expense totals, if fresh.
func (c *ExpiringCache) GetCachedExpenseData() (domain.CategoryTotals, bool) {
	var totals domain.CategoryTotals
	ok := c.Get(KeyExpenseData, &totals)
	return totals, ok
}

// CacheUserData stores the logged in user for UserDataTTL.
func (c *ExpiringCache) CacheUserData(user domain.User) error {
	return c.Set(KeyUserData, user, UserDataTTL)
}

// GetCachedUserData returns the cached user, if fresh.
func (c *ExpiringCache) GetCachedUserData() (domain.User, bool) {
	var user domain.User
	ok := c.Get(KeyUserData, &user)
	return user, ok
}

// CacheFinancialSummary stores the derived summary for FinancialSummaryTTL.
func (c *ExpiringCache) CacheFinancialSummary(summary domain.FinancialSummary) error {
	return c.Set(KeyFinancialSummary, summary, FinancialSummaryTTL)
}

// GetCachedFinancialSummary returns the cached summary, if fresh.
func (c *ExpiringCache) GetCachedFinancialSummary() (domain.FinancialSummary, bool) {
	var summary domain.FinancialSummary
	ok := c.Get(KeyFinancialSummary, &summary)
	return summary, ok
}

// InvalidateTransactionData drops every dataset derived from transactions:
// the mutation keys and the summaries computed from them.
func (c *ExpiringCache) InvalidateTransactionData() {
	for _, k := range MutationKeys {
		c.Invalidate(k)
	}
	for _, k := range DerivedKeys {
		c.Invalidate(k)
	}
}
