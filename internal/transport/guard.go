// internal/transport/guard.go
package transport

import (
	"fmt"
	"sync"
	"time"
)

// DefaultSpacing is the minimum gap the inverters need between requests.
const DefaultSpacing = time.Second

// Guard owns a Transport. It runs one session at a time and keeps
// consecutive requests at least spacing apart, whatever issued them.
type Guard struct {
	mu      sync.Mutex
	t       Transport
	spacing time.Duration
	last    time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func NewGuard(t Transport, spacing time.Duration) *Guard {
	return NewGuardWithClock(t, spacing, time.Now, time.Sleep)
}

// NewGuardWithClock is NewGuard with an injected clock.
func NewGuardWithClock(t Transport, spacing time.Duration, now func() time.Time, sleep func(time.Duration)) *Guard {
	return &Guard{
		t:       t,
		spacing: spacing,
		now:     now,
		sleep:   sleep,
	}
}

// Session connects, runs fn and disconnects, holding the guard throughout.
// A connect failure is returned wrapped in ErrUnreachable.
func (g *Guard) Session(fn func(Conn) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.t.Connect(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer g.t.Disconnect()

	return fn(spacedConn{g})
}

// wait blocks until spacing has elapsed since the previous request.
// Caller holds g.mu.
func (g *Guard) wait() {
	if g.last.IsZero() || g.spacing <= 0 {
		return
	}
	if d := g.spacing - g.now().Sub(g.last); d > 0 {
		g.sleep(d)
	}
}

func (g *Guard) done() {
	g.last = g.now()
}

type spacedConn struct {
	g *Guard
}

func (c spacedConn) ReadInput(start, count uint16) ([]uint16, error) {
	c.g.wait()
	defer c.g.done()

	words, err := c.g.t.ReadInput(start, count)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: input %d+%d", ErrEmptyResponse, start, count)
	}
	return words, nil
}

func (c spacedConn) ReadHolding(start, count uint16) ([]uint16, error) {
	c.g.wait()
	defer c.g.done()

	words, err := c.g.t.ReadHolding(start, count)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: holding %d+%d", ErrEmptyResponse, start, count)
	}
	return words, nil
}

func (c spacedConn) WriteHolding(addr, value uint16) error {
	c.g.wait()
	defer c.g.done()

	return c.g.t.WriteHolding(addr, value)
}
