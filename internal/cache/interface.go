// Package cache implements a time-to-live cache over a flat, durable
// string-to-string store. Expiry is embedded in each stored value so any
// store without native expiry can back it.
package cache

import "errors"

// ErrStoreUnavailable is returned by stores that cannot be reached.
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Store is a synchronous string-keyed persistent map.
type Store interface {
	// GetItem returns the value under key and whether it exists.
	GetItem(key string) (string, bool, error)
	// SetItem overwrites the value under key.
	SetItem(key, value string) error
	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error
}

// Key names one cached dataset.
type Key string

const (
	KeyTransactions     Key = "TRANSACTIONS"
	KeyIncomeData       Key = "INCOME_DATA"
	KeyExpenseData      Key = "EXPENSE_DATA"
	KeyUserData         Key = "USER_DATA"
	KeyFinancialSummary Key = "FINANCIAL_SUMMARY"
)

// Keys is the fixed enumeration Clear and Inspect operate on.
var Keys = []Key{
	KeyTransactions,
	KeyIncomeData,
	KeyExpenseData,
	KeyUserData,
	KeyFinancialSummary,
}

// ParseKey maps a key name to its Key.
func ParseKey(name string) (Key, bool) {
	for _, k := range Keys {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}
