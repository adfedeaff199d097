package chain

import "time"

// Clock supplies the ledger timestamp handlers read at commit time.
// Handlers never call time.Now themselves: production wires SystemClock,
// tests wire FixedClock for deterministic transcripts.
type Clock interface {
	// Unix returns the current ledger time in seconds since the epoch.
	Unix() int64
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) Unix() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant. Advance moves it forward.
type FixedClock struct {
	Time int64
}

func NewFixedClock(unix int64) *FixedClock { return &FixedClock{Time: unix} }

func (c *FixedClock) Unix() int64 { return c.Time }

// Advance moves the clock forward by d seconds.
func (c *FixedClock) Advance(d int64) { c.Time += d }
