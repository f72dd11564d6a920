// internal/poller/types.go
package poller

import "time"

// ReadBlock describes one input register read.
// Geometry only: no semantics.
type ReadBlock struct {
	Address  uint16
	Quantity uint16

	// Optional blocks may fail without failing the cycle.
	Optional bool
}

// End returns the last address covered by the block.
func (b ReadBlock) End() uint16 {
	return b.Address + b.Quantity - 1
}

// BlockResult is the raw result of a single read.
type BlockResult struct {
	Address   uint16
	Quantity  uint16
	Registers []uint16
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	DeviceID string
	At       time.Time

	Blocks []BlockResult

	// Skipped lists optional blocks the device refused this cycle.
	Skipped []ReadBlock

	Err error // non-nil means the poll cycle failed
}

// Words returns the number of registers read.
func (r PollResult) Words() int {
	n := 0
	for _, b := range r.Blocks {
		n += len(b.Registers)
	}
	return n
}
