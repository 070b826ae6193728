package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	c, store, clock := newTestCache(t)

	require.NoError(t, c.Set(KeyTransactions, []int{1}, time.Minute))
	require.NoError(t, c.Set(KeyIncomeData, map[string]int{"a": 1}, 10*time.Minute))
	require.NoError(t, store.SetItem(DefaultNamespace+string(KeyUserData), "garbage"))

	clock.Advance(2 * time.Minute)

	byKey := make(map[Key]EntryStatus)
	for _, st := range c.Inspect() {
		byKey[st.Key] = st
	}
	require.Len(t, byKey, len(Keys))

	assert.Equal(t, StateExpired, byKey[KeyTransactions].State)
	assert.Equal(t, StateValid, byKey[KeyIncomeData].State)
	assert.Equal(t, 8*time.Minute, byKey[KeyIncomeData].Remaining)
	assert.Equal(t, StateCorrupt, byKey[KeyUserData].State)
	assert.NotEmpty(t, byKey[KeyUserData].Err)
	assert.Equal(t, StateAbsent, byKey[KeyExpenseData].State)

	// Inspect does not evict.
	_, ok, err := store.GetItem(DefaultNamespace + string(KeyTransactions))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("INCOME_DATA")
	assert.True(t, ok)
	assert.Equal(t, KeyIncomeData, k)

	_, ok = ParseKey("income")
	assert.False(t, ok)
}
