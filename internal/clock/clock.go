// Package clock provides a wall-clock ports.Clock backed by time.AfterFunc,
// feeding timer expiry onto a single channel the Engine's event loop selects
// on alongside frames and command replies.
package clock

import (
	"sync"
	"time"

	"github.com/kestrelwifi/apd/internal/core/ports"
)

// WallClock is the reference ports.Clock implementation for cmd/apd.
type WallClock struct {
	mu      sync.Mutex
	next    uint64
	timers  map[uint64]*time.Timer
	fires   chan ports.TimerFired
}

func New() *WallClock {
	return &WallClock{
		timers: make(map[uint64]*time.Timer),
		fires:  make(chan ports.TimerFired, 16),
	}
}

func (c *WallClock) Fires() <-chan ports.TimerFired { return c.fires }

func (c *WallClock) After(d time.Duration) uint64 {
	c.mu.Lock()
	c.next++
	token := c.next
	c.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		_, live := c.timers[token]
		delete(c.timers, token)
		c.mu.Unlock()
		if !live {
			return
		}
		select {
		case c.fires <- ports.TimerFired{Token: token}:
		default:
		}
	})

	c.mu.Lock()
	c.timers[token] = timer
	c.mu.Unlock()
	return token
}

func (c *WallClock) Cancel(token uint64) {
	c.mu.Lock()
	timer, ok := c.timers[token]
	delete(c.timers, token)
	c.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

func (c *WallClock) Now() time.Time { return time.Now() }
