package cache

import (
	"time"
)

// EntryState classifies a cache slot for the monitor.
type EntryState string

const (
	StateAbsent  EntryState = "absent"
	StateValid   EntryState = "valid"
	StateExpired EntryState = "expired"
	StateCorrupt EntryState = "corrupt"
)

// EntryStatus describes one slot without touching it.
type EntryStatus struct {
	Key       Key           `json:"key"`
	State     EntryState    `json:"state"`
	ExpiresAt time.Time     `json:"expiresAt,omitempty"`
	Remaining time.Duration `json:"remaining"`
	Size      int           `json:"size"`
	Err       string        `json:"error,omitempty"`
}

// Inspect reports the state of every key in Keys. Unlike Get it never
// evicts, so expired and corrupt entries stay visible.
func (c *ExpiringCache) Inspect() []EntryStatus {
	now := c.now()
	out := make([]EntryStatus, 0, len(Keys))

	for _, k := range Keys {
		st := EntryStatus{Key: k, State: StateAbsent}

		data, ok, err := c.store.GetItem(c.storeKey(k))
		switch {
		case err != nil:
			st.State = StateCorrupt
			st.Err = err.Error()
		case !ok:
		default:
			st.Size = len(data)
			e, err := decodeEntry(data)
			if err != nil {
				st.State = StateCorrupt
				st.Err = err.Error()
				break
			}
			st.ExpiresAt = time.UnixMilli(*e.Expiry)
			if now.UnixMilli() > *e.Expiry {
				st.State = StateExpired
			} else {
				st.State = StateValid
				st.Remaining = st.ExpiresAt.Sub(now)
			}
		}
		out = append(out, st)
	}
	return out
}
