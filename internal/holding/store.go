// internal/holding/store.go
package holding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/cache"
	"github.com/tamzrod/inverter-poller/internal/decoder"
	"github.com/tamzrod/inverter-poller/internal/poller"
	"github.com/tamzrod/inverter-poller/internal/registermap"
	"github.com/tamzrod/inverter-poller/internal/transport"
)

var (
	ErrUnknownRegister = errors.New("holding: unknown register")
	ErrReadOnly        = errors.New("holding: register is read-only")
	ErrOutOfRange      = errors.New("holding: value out of range")
	ErrWriteFailed     = errors.New("holding: write failed")
	ErrNothingLoaded   = errors.New("holding: no register could be read")
)

// MaxChunk is the largest startup read. Some firmwares refuse longer
// holding reads.
const MaxChunk = 10

// PlanChunks splits addrs into contiguous runs of at most max addresses.
func PlanChunks(addrs []uint16, max int) []poller.ReadBlock {
	return poller.PlanSpans(addrs, max, 0)
}

// Store caches one device's holding registers and mediates writes.
type Store struct {
	m   *registermap.Map
	s   transport.Sessioner
	log zerolog.Logger

	mu    sync.RWMutex
	cache *cache.Cache
}

func New(m *registermap.Map, s transport.Sessioner, log zerolog.Logger) *Store {
	return &Store{
		m:     m,
		s:     s,
		log:   log,
		cache: cache.New(),
	}
}

// ------------------------------------------------------------
// READS
// ------------------------------------------------------------

// Load reads every declared holding register in chunks. A failed chunk is
// logged and skipped. Load fails when the device is unreachable or when
// no chunk could be read at all.
func (st *Store) Load(ctx context.Context) error {
	chunks := PlanChunks(st.m.Holding.Addresses(), MaxChunk)
	if len(chunks) == 0 {
		return nil
	}

	return st.s.Session(func(conn transport.Conn) error {
		var last error
		read := 0
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := st.Refresh(conn, c.Address, c.Quantity); err != nil {
				st.log.Debug().
					Uint16("address", c.Address).
					Uint16("quantity", c.Quantity).
					Err(err).
					Msg("holding chunk skipped")
				last = err
				continue
			}
			read++
		}
		if read == 0 {
			return fmt.Errorf("%w: %w", ErrNothingLoaded, last)
		}
		return nil
	})
}

// Refresh reads count registers at start on an open session and caches them.
func (st *Store) Refresh(conn transport.Conn, start, count uint16) error {
	words, err := conn.ReadHolding(start, count)
	if err != nil {
		return fmt.Errorf("holding: read %d+%d: %w", start, count, err)
	}

	st.mu.Lock()
	st.cache.Store(start, words)
	st.mu.Unlock()
	return nil
}

// Read returns the cached words for addrs. Uncached addresses are omitted.
func (st *Store) Read(addrs []uint16) map[uint16]uint16 {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make(map[uint16]uint16, len(addrs))
	for _, a := range addrs {
		if w, ok := st.cache.Word(a); ok {
			out[a] = w
		}
	}
	return out
}

// View returns an immutable copy of the cache.
func (st *Store) View() cache.View {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cache.Snapshot()
}

// Value returns the cached physical value of a named register.
func (st *Store) Value(name string) (float64, bool) {
	q, ok := st.m.Holding.Quantity(name)
	if !ok {
		return 0, false
	}
	return decoder.Value(q, st.View())
}

// Setting is one holding quantity as exposed to operators.
type Setting struct {
	Name     string  `json:"name"`
	Address  uint16  `json:"address"`
	Value    float64 `json:"value"`
	Present  bool    `json:"present"`
	Unit     string  `json:"unit,omitempty"`
	Writable bool    `json:"writable"`
	Desc     string  `json:"desc,omitempty"`
}

// Settings lists every declared holding quantity in address order.
func (st *Store) Settings() []Setting {
	view := st.View()
	qs := st.m.Holding.Quantities()

	out := make([]Setting, 0, len(qs))
	for _, q := range qs {
		v, ok := decoder.Value(q, view)
		out = append(out, Setting{
			Name:     q.Name,
			Address:  q.Address,
			Value:    v,
			Present:  ok,
			Unit:     q.Unit,
			Writable: q.Writable(),
			Desc:     q.Desc,
		})
	}
	return out
}

// ------------------------------------------------------------
// WRITES
// ------------------------------------------------------------

// Write sends one raw word. Undeclared and read-only addresses are
// rejected before any I/O. The cache is updated only after the device
// accepted it. Writes are never retried.
func (st *Store) Write(ctx context.Context, addr, raw uint16) error {
	q, ok := st.m.Holding.At(addr)
	if !ok {
		return fmt.Errorf("%w: address %d", ErrUnknownRegister, addr)
	}
	if !q.Writable() {
		return fmt.Errorf("%w: %q (%d)", ErrReadOnly, q.Name, addr)
	}
	return st.writeWords(ctx, []uint16{addr}, []uint16{raw})
}

// Set writes a physical value to a named register. Unknown and read-only
// names are rejected before any I/O.
func (st *Store) Set(ctx context.Context, name string, value float64) error {
	q, ok := st.m.Holding.Quantity(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	if !q.Writable() {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	if q.Min != nil && value < *q.Min {
		return fmt.Errorf("%w: %q %v < %v", ErrOutOfRange, name, value, *q.Min)
	}
	if q.Max != nil && value > *q.Max {
		return fmt.Errorf("%w: %q %v > %v", ErrOutOfRange, name, value, *q.Max)
	}

	words, err := Encode(q, value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrOutOfRange, name, err)
	}

	if err := st.writeWords(ctx, q.Addresses(), words); err != nil {
		st.log.Warn().Str("register", name).Float64("value", value).Err(err).Msg("write failed")
		return err
	}
	st.log.Info().Str("register", name).Float64("value", value).Msg("register written")
	return nil
}

func (st *Store) writeWords(ctx context.Context, addrs, words []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := st.s.Session(func(conn transport.Conn) error {
		for i, a := range addrs {
			if err := conn.WriteHolding(a, words[i]); err != nil {
				return fmt.Errorf("address %d: %w", a, err)
			}
			st.mu.Lock()
			st.cache.Set(a, words[i])
			st.mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Encode converts a physical value to register words, high word first for
// pairs: raw = round(value / scale).
func Encode(q registermap.Quantity, value float64) ([]uint16, error) {
	scale := q.Scale
	if scale == 0 {
		scale = 1
	}
	raw := math.Round(value / scale)

	if !q.Paired {
		lo, hi := 0.0, float64(math.MaxUint16)
		if q.Signed {
			lo, hi = math.MinInt16, math.MaxInt16
		}
		if raw < lo || raw > hi {
			return nil, fmt.Errorf("raw %v outside %v..%v", raw, lo, hi)
		}
		return []uint16{uint16(int64(raw))}, nil
	}

	lo, hi := 0.0, float64(math.MaxUint32)
	if q.Signed {
		lo, hi = math.MinInt32, math.MaxInt32
	}
	if raw < lo || raw > hi {
		return nil, fmt.Errorf("raw %v outside %v..%v", raw, lo, hi)
	}
	v := uint32(int64(raw))
	return []uint16{uint16(v >> 16), uint16(v)}, nil
}
