package server

import (
	"sync"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

// History keeps the most recent chat messages in a fixed-size ring.
type History struct {
	mu    sync.RWMutex
	buf   []domain.Message
	start int
	n     int
}

// NewHistory returns a ring holding at most size messages.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]domain.Message, size)}
}

// Append adds m, dropping the oldest message when full.
func (h *History) Append(m domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = m
		h.n++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// List returns the messages oldest first.
func (h *History) List() []domain.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.Message, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}
