// internal/poller/plan.go
package poller

import (
	"slices"

	"github.com/tamzrod/inverter-poller/internal/registermap"
)

// MaxSpan is the largest register count one Modbus read may request.
const MaxSpan = 125

// PlanSpans groups addresses into reads of at most maxSpan registers.
// Two neighbours share a read when at most maxGap undeclared addresses lie
// between them; maxGap 0 yields strictly contiguous runs.
func PlanSpans(addrs []uint16, maxSpan, maxGap int) []ReadBlock {
	if len(addrs) == 0 {
		return nil
	}
	if maxSpan <= 0 || maxSpan > MaxSpan {
		maxSpan = MaxSpan
	}
	if maxGap < 0 {
		maxGap = 0
	}

	sorted := slices.Clone(addrs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var out []ReadBlock
	start, end := sorted[0], sorted[0]

	for _, a := range sorted[1:] {
		gap := int(a) - int(end) - 1
		span := int(a) - int(start) + 1
		if gap <= maxGap && span <= maxSpan {
			end = a
			continue
		}
		out = append(out, ReadBlock{Address: start, Quantity: end - start + 1})
		start, end = a, a
	}
	out = append(out, ReadBlock{Address: start, Quantity: end - start + 1})

	return out
}

// Plan builds the input reads for a map. Mandatory and optional addresses
// are planned separately so no read mixes the two.
func Plan(m *registermap.Map, maxSpan, maxGap int) []ReadBlock {
	var mandatory, optional []uint16
	for _, a := range m.Input.Addresses() {
		if m.IsOptional(a) {
			optional = append(optional, a)
		} else {
			mandatory = append(mandatory, a)
		}
	}

	reads := PlanSpans(mandatory, maxSpan, maxGap)
	for _, b := range PlanSpans(optional, maxSpan, maxGap) {
		b.Optional = true
		reads = append(reads, b)
	}
	return reads
}
