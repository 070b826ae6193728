package chat

import "time"

// Backoff is the reconnect policy: Base doubled per attempt, capped at Max,
// at most MaxAttempts retries.
type Backoff struct {
	Base        time.Duration `mapstructure:"base"`
	Max         time.Duration `mapstructure:"max"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// DefaultBackoff retries 5 times starting at one second.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 5}
}

// Delay returns the wait before retry attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Allows reports whether attempt is within budget.
func (b Backoff) Allows(attempt int) bool {
	return attempt <= b.MaxAttempts
}
