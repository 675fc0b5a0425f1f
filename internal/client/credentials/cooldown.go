package credentials

import (
	"sync"
	"time"
)

// Cooldown enforces a minimum interval between calls of one action.
type Cooldown struct {
	period time.Duration
	now    func() time.Time

	mu    sync.Mutex
	until time.Time
}

// NewCooldown constructs an idle cooldown of period.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, now: time.Now}
}

// Start begins a new period and returns zero, or returns the time left
// when a period is still running.
func (c *Cooldown) Start() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if left := c.until.Sub(now); left > 0 {
		return left
	}
	c.until = now.Add(c.period)
	return 0
}

// Cancel ends the running period, used when the guarded request never
// reached the server.
func (c *Cooldown) Cancel() {
	c.mu.Lock()
	c.until = time.Time{}
	c.mu.Unlock()
}

// Remaining returns the countdown shown next to the guarded action.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if left := c.until.Sub(c.now()); left > 0 {
		return left
	}
	return 0
}

// seconds rounds a remaining duration up to whole seconds.
func seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
