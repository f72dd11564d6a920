package transport_test

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/tamzrod/inverter-poller/internal/transport"
	"github.com/tamzrod/inverter-poller/internal/transport/transporttest"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func TestGuardSpacesEveryRequest(t *testing.T) {
	is := is.New(t)

	dev := transporttest.New()
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := transport.NewGuardWithClock(dev, time.Second, clk.Now, clk.Sleep)

	err := g.Session(func(c transport.Conn) error {
		if _, err := c.ReadInput(0, 10); err != nil {
			return err
		}
		clk.now = clk.now.Add(300 * time.Millisecond)
		if _, err := c.ReadHolding(0, 10); err != nil {
			return err
		}
		return c.WriteHolding(3, 50)
	})
	is.NoErr(err)

	// first request immediate, then 700ms to fill up the 1s gap, then a full second
	is.Equal(clk.slept, []time.Duration{700 * time.Millisecond, time.Second})
}

func TestGuardSpacingSpansSessions(t *testing.T) {
	is := is.New(t)

	dev := transporttest.New()
	clk := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	g := transport.NewGuardWithClock(dev, time.Second, clk.Now, clk.Sleep)

	read := func(c transport.Conn) error {
		_, err := c.ReadInput(0, 1)
		return err
	}
	is.NoErr(g.Session(read))
	is.NoErr(g.Session(func(c transport.Conn) error { return c.WriteHolding(0, 1) }))

	is.Equal(len(clk.slept), 1) // a write right after a poll still waits
}

func TestGuardConnectFailure(t *testing.T) {
	is := is.New(t)

	dev := transporttest.New()
	dev.Offline = true
	g := transport.NewGuard(dev, 0)

	called := false
	err := g.Session(func(transport.Conn) error { called = true; return nil })

	is.True(errors.Is(err, transport.ErrUnreachable))
	is.True(!called)
	is.Equal(dev.Disconnects, 0)
}

func TestGuardDisconnectsAfterSession(t *testing.T) {
	is := is.New(t)

	dev := transporttest.New()
	g := transport.NewGuard(dev, 0)

	boom := errors.New("boom")
	err := g.Session(func(transport.Conn) error { return boom })

	is.Equal(err, boom)
	is.Equal(dev.Connects, 1)
	is.Equal(dev.Disconnects, 1)
}

type emptyTransport struct{ *transporttest.Device }

func (e *emptyTransport) ReadInput(start, count uint16) ([]uint16, error) { return nil, nil }

func TestGuardEmptyReadIsFailure(t *testing.T) {
	is := is.New(t)

	tr := &emptyTransport{Device: transporttest.New()}
	g := transport.NewGuard(tr, 0)

	err := g.Session(func(c transport.Conn) error {
		_, err := c.ReadInput(0, 5)
		return err
	})
	is.True(errors.Is(err, transport.ErrEmptyResponse))
}
