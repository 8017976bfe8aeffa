// Package countdown runs a fixed number of one-interval ticks and then a single
// completion callback. Once started it cannot be stopped.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTicks    = 3
	DefaultInterval = time.Second
)

type Countdown struct {
	clock      clockwork.Clock
	interval   time.Duration
	onTick     func(remaining int)
	onComplete func()

	mu        sync.Mutex
	remaining int
	started   bool
	canceled  bool
	done      chan struct{}
}

// New builds a countdown of ticks steps. onTick receives the remaining count
// after each step (ticks-1 … 0); onComplete runs once after the last step.
// Either callback may be nil.
func New(clock clockwork.Clock, ticks int, interval time.Duration, onTick func(remaining int), onComplete func()) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ticks < 0 {
		ticks = 0
	}
	return &Countdown{
		clock:      clock,
		interval:   interval,
		onTick:     onTick,
		onComplete: onComplete,
		remaining:  ticks,
		done:       make(chan struct{}),
	}
}

// Start begins ticking. Calling it again, or after Cancel, does nothing.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.started || c.canceled {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
}

// Cancel prevents a countdown that has not started yet from ever running.
func (c *Countdown) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return false
	}
	if !c.canceled {
		c.canceled = true
		close(c.done)
	}
	return true
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Done is closed after onComplete returned, or immediately on Cancel.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

func (c *Countdown) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		left := c.remaining
		c.mu.Unlock()
		if left == 0 {
			break
		}

		<-c.clock.After(c.interval)

		c.mu.Lock()
		c.remaining--
		left = c.remaining
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(left)
		}
	}

	if c.onComplete != nil {
		c.onComplete()
	}
}
