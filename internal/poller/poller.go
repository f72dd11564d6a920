// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/cache"
	"github.com/tamzrod/inverter-poller/internal/transport"
)

// ErrEmptyResult is returned when a cycle completed without reading a word.
var ErrEmptyResult = errors.New("poller: no registers read")

// Config is the minimal runtime config the poller needs.
type Config struct {
	DeviceID string
	Reads    []ReadBlock
}

// Poller is a dumb reader. It knows geometry, not meaning.
type Poller struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, log zerolog.Logger) (*Poller, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("poller: device id required")
	}
	if len(cfg.Reads) == 0 {
		return nil, errors.New("poller: at least one read block required")
	}
	for _, rb := range cfg.Reads {
		if rb.Quantity == 0 || rb.Quantity > MaxSpan {
			return nil, fmt.Errorf("poller: read at %d has quantity %d", rb.Address, rb.Quantity)
		}
	}
	return &Poller{cfg: cfg, log: log, now: time.Now}, nil
}

// Reads returns the planned read blocks.
func (p *Poller) Reads() []ReadBlock {
	return p.cfg.Reads
}

// PollOnce performs exactly one poll cycle on an open session.
// A failed mandatory read aborts the cycle. A failed optional read is
// skipped. A cycle that read nothing is a failure.
func (p *Poller) PollOnce(conn transport.Conn) PollResult {
	res := PollResult{
		DeviceID: p.cfg.DeviceID,
		At:       p.now(),
	}

	var blocks []BlockResult

	for _, rb := range p.cfg.Reads {
		regs, err := conn.ReadInput(rb.Address, rb.Quantity)
		if err != nil {
			if rb.Optional {
				p.log.Debug().
					Uint16("address", rb.Address).
					Uint16("quantity", rb.Quantity).
					Err(err).
					Msg("optional read skipped")
				res.Skipped = append(res.Skipped, rb)
				continue
			}
			res.Err = fmt.Errorf("poller: read %d+%d: %w", rb.Address, rb.Quantity, err)
			return res
		}
		blocks = append(blocks, BlockResult{
			Address: rb.Address, Quantity: rb.Quantity, Registers: regs,
		})
	}

	if len(blocks) == 0 {
		res.Err = ErrEmptyResult
		return res
	}

	// Commit only if every mandatory read succeeded
	res.Blocks = blocks
	return res
}

// Fill resets c and stores every block of a successful result.
func Fill(c *cache.Cache, res PollResult) {
	c.Reset()
	for _, b := range res.Blocks {
		c.Store(b.Address, b.Registers)
	}
}
