package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeMonotonicAndUnique(t *testing.T) {
	g, err := NewSnowflake(7, DefaultEpoch)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				id, err := g.Next()
				assert.NoError(t, err)
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 4000)
}

func TestSnowflakeTime(t *testing.T) {
	g, err := NewSnowflake(1, DefaultEpoch)
	require.NoError(t, err)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	id, err := g.Next()
	require.NoError(t, err)
	assert.True(t, IsNumeric(id))

	got, err := Time(id, DefaultEpoch)
	require.NoError(t, err)
	assert.Equal(t, fixed, got)
}

func TestSnowflakeRejectsMachineID(t *testing.T) {
	_, err := NewSnowflake(1024, DefaultEpoch)
	assert.Error(t, err)
}

func TestLocalID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a, b := LocalID(now), LocalID(now)

	assert.True(t, strings.HasPrefix(a, "1700000000123-"))
	assert.NotEqual(t, a, b)
	assert.False(t, IsNumeric(a))
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("12345"))
	assert.False(t, IsNumeric(""))
	assert.False(t, IsNumeric("12a"))
}
