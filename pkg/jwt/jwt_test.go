package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, now time.Time) *Manager {
	t.Helper()
	m, err := NewManager("0123456789abcdef-secret", time.Hour, "test")
	require.NoError(t, err)
	m.now = func() time.Time { return now }
	return m
}

func TestManager_GenerateValidate(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, now)

	token, exp, err := m.Generate("u-1", "alice", []string{"USER", "ADMIN"})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.HasRole("ADMIN"))
	assert.False(t, claims.HasRole("ACCOUNTANT"))
}

func TestManager_Rejects(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, now)
	token, _, err := m.Generate("u-1", "alice", nil)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := newTestManager(t, now.Add(2*time.Hour))
		_, err := later.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewManager("another-secret-0123456", time.Hour, "test")
		require.NoError(t, err)
		_, err = other.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewManager_ShortSecret(t *testing.T) {
	_, err := NewManager("short", time.Hour, "test")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, now)
	token, exp, err := m.Generate("u-9", "bob", []string{"USER"})
	require.NoError(t, err)

	claims, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "u-9", claims.UserID)
	assert.Equal(t, "bob", claims.Username)
	assert.False(t, claims.Expired(now))
	assert.True(t, claims.Expired(exp.Add(time.Minute)))

	_, err = Inspect("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.False(t, (&Claims{}).Expired(now), "no expiry never expires")
}
