// Package idgen produces the two identifier spaces chat messages live in:
// numeric server ids and client-side correlation ids.
package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Bit layout, high to low: 41 bits of milliseconds since the epoch, 10 bits
// of machine id, 12 bits of per-millisecond sequence.
const (
	seqBits     = 12
	machineBits = 10
	tickBits    = 41

	seqMask     = 1<<seqBits - 1
	machineMask = 1<<machineBits - 1
	tickMask    = 1<<tickBits - 1
)

// DefaultEpoch is 2024-01-01T00:00:00Z in unix milliseconds.
const DefaultEpoch int64 = 1704067200000

var (
	ErrBeforeEpoch   = errors.New("idgen: clock is before epoch")
	ErrClockBackward = errors.New("idgen: clock moved backwards")
)

// Snowflake hands out time-ordered 64-bit ids as decimal strings. It is safe
// for concurrent use.
type Snowflake struct {
	epoch   int64
	machine int64
	now     func() time.Time

	mu   sync.Mutex
	tick int64
	seq  int64
}

func NewSnowflake(machineID int64, epoch int64) (*Snowflake, error) {
	if machineID&^machineMask != 0 {
		return nil, fmt.Errorf("idgen: machine id %d outside [0, %d]", machineID, machineMask)
	}
	return &Snowflake{epoch: epoch, machine: machineID, now: time.Now}, nil
}

func (g *Snowflake) elapsed() int64 {
	return g.now().UnixMilli() - g.epoch
}

// Next returns a fresh id. When the sequence for the current millisecond is
// exhausted it blocks until the clock advances.
func (g *Snowflake) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tick := g.elapsed()
	switch {
	case tick < 0:
		return "", ErrBeforeEpoch
	case tick < g.tick:
		return "", fmt.Errorf("%w by %dms", ErrClockBackward, g.tick-tick)
	case tick > g.tick:
		g.tick, g.seq = tick, 0
	default:
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for tick <= g.tick {
				tick = g.elapsed()
			}
			g.tick = tick
		}
	}

	id := g.tick<<(machineBits+seqBits) | g.machine<<seqBits | g.seq
	return strconv.FormatInt(id, 10), nil
}

// Time recovers the wall time encoded in an id generated against epoch.
func Time(id string, epoch int64) (time.Time, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("idgen: not a snowflake id: %q", id)
	}
	tick := n >> (machineBits + seqBits) & tickMask
	return time.UnixMilli(epoch + tick).UTC(), nil
}
