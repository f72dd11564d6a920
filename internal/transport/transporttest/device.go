// internal/transport/transporttest/device.go

// Package transporttest provides an in-memory device for tests.
package transporttest

import (
	"errors"
	"sync"

	"github.com/tamzrod/inverter-poller/internal/transport"
)

var ErrInjected = errors.New("transporttest: injected failure")

// Call records one request seen by the Device.
type Call struct {
	Op    string // "input", "holding", "write"
	Start uint16
	Count uint16
	Value uint16
}

// Device is a fake inverter. The zero value is not usable; use New.
type Device struct {
	mu sync.Mutex

	Input   map[uint16]uint16
	Holding map[uint16]uint16

	// Offline makes Connect fail.
	Offline bool
	// FailInput and FailHolding fail reads whose start address is listed.
	FailInput   map[uint16]bool
	FailHolding map[uint16]bool
	// FailWrites fails every write.
	FailWrites bool

	Calls       []Call
	Connects    int
	Disconnects int
	connected   bool
}

func New() *Device {
	return &Device{
		Input:       map[uint16]uint16{},
		Holding:     map[uint16]uint16{},
		FailInput:   map[uint16]bool{},
		FailHolding: map[uint16]bool{},
	}
}

var _ transport.Transport = (*Device)(nil)

func (d *Device) SetOffline(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Offline = v
}

func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Connects++
	if d.Offline {
		return ErrInjected
	}
	d.connected = true
	return nil
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Disconnects++
	d.connected = false
	return nil
}

func (d *Device) ReadInput(start, count uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Op: "input", Start: start, Count: count})
	if !d.connected || d.Offline || d.FailInput[start] {
		return nil, ErrInjected
	}
	return read(d.Input, start, count), nil
}

func (d *Device) ReadHolding(start, count uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Op: "holding", Start: start, Count: count})
	if !d.connected || d.Offline || d.FailHolding[start] {
		return nil, ErrInjected
	}
	return read(d.Holding, start, count), nil
}

func (d *Device) WriteHolding(addr, value uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, Call{Op: "write", Start: addr, Count: 1, Value: value})
	if !d.connected || d.Offline || d.FailWrites {
		return ErrInjected
	}
	d.Holding[addr] = value
	return nil
}

// CallsOf returns the recorded calls of one kind.
func (d *Device) CallsOf(op string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func read(m map[uint16]uint16, start, count uint16) []uint16 {
	out := make([]uint16, count)
	for i := range out {
		out[i] = m[start+uint16(i)]
	}
	return out
}

// Direct runs sessions against a Transport without spacing.
type Direct struct {
	T transport.Transport
}

func (s Direct) Session(fn func(transport.Conn) error) error {
	if err := s.T.Connect(); err != nil {
		return errors.Join(transport.ErrUnreachable, err)
	}
	defer s.T.Disconnect()
	return fn(s.T)
}
