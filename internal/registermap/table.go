// internal/registermap/table.go
package registermap

import (
	"fmt"
	"sort"
)

// Table indexes one register namespace (input or holding).
// Name and address lookups are O(1); iteration is in canonical address order.
type Table struct {
	descriptors map[uint16]Descriptor
	quantities  []Quantity
	byName      map[string]int
	byAddr      map[uint16]int
	addrs       []uint16
}

func newTable(in map[uint16]Descriptor) (*Table, error) {
	t := &Table{
		descriptors: make(map[uint16]Descriptor, len(in)),
		byName:      make(map[string]int, len(in)),
		byAddr:      make(map[uint16]int, len(in)),
		addrs:       make([]uint16, 0, len(in)),
	}

	for addr, d := range in {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: address %d has no name", ErrBadDescriptor, addr)
		}
		d.Address = addr
		if d.Scale == 0 {
			d.Scale = 1
		}
		t.descriptors[addr] = d
		t.addrs = append(t.addrs, addr)
	}
	sort.Slice(t.addrs, func(i, j int) bool { return t.addrs[i] < t.addrs[j] })

	// ---- pair symmetry ----
	for _, addr := range t.addrs {
		d := t.descriptors[addr]
		if !d.HasPair {
			continue
		}
		if d.Pair == addr {
			return nil, fmt.Errorf("%w: %s (%d) pairs with itself", ErrBadPair, d.Name, addr)
		}
		other, ok := t.descriptors[d.Pair]
		if !ok {
			return nil, fmt.Errorf("%w: %s (%d) pairs with undeclared address %d", ErrBadPair, d.Name, addr, d.Pair)
		}
		if !other.HasPair || other.Pair != addr {
			return nil, fmt.Errorf("%w: %s (%d) -> %d is not mirrored", ErrBadPair, d.Name, addr, d.Pair)
		}
	}

	// ---- fold into quantities ----
	for _, addr := range t.addrs {
		if _, done := t.byAddr[addr]; done {
			continue
		}
		d := t.descriptors[addr]

		var q Quantity
		if d.HasPair {
			q = pairQuantity(d, t.descriptors[d.Pair])
		} else {
			q = Quantity{
				Name:     d.Name,
				Address:  addr,
				Scale:    d.Scale,
				Unit:     d.Unit,
				Signed:   d.Signed,
				Access:   d.Access,
				Min:      d.Min,
				Max:      d.Max,
				Category: d.Category,
				Desc:     d.Desc,
			}
		}

		if _, dup := t.byName[q.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, q.Name)
		}

		idx := len(t.quantities)
		t.quantities = append(t.quantities, q)
		t.byName[q.Name] = idx
		for _, a := range q.Addresses() {
			t.byAddr[a] = idx
		}
	}

	sort.SliceStable(t.quantities, func(i, j int) bool {
		return t.quantities[i].Address < t.quantities[j].Address
	})
	for i, q := range t.quantities {
		t.byName[q.Name] = i
		for _, a := range q.Addresses() {
			t.byAddr[a] = i
		}
	}

	return t, nil
}

// pairQuantity combines two halves. The lower address is always the high word.
func pairQuantity(a, b Descriptor) Quantity {
	hi, lo := a, b
	if hi.Address > lo.Address {
		hi, lo = lo, hi
	}

	scale := lo.CombinedScale
	if scale == 0 {
		scale = hi.CombinedScale
	}
	if scale == 0 {
		scale = 1
	}

	unit := lo.CombinedUnit
	if unit == "" {
		unit = hi.CombinedUnit
	}
	if unit == "" {
		unit = lo.Unit
	}

	category := lo.Category
	if category == "" {
		category = hi.Category
	}

	access := lo.Access
	if hi.Access == AccessReadWrite {
		access = AccessReadWrite
	}

	return Quantity{
		Name:     logicalName(lo),
		Address:  lo.Address,
		Paired:   true,
		High:     hi.Address,
		Low:      lo.Address,
		Scale:    scale,
		Unit:     unit,
		Signed:   hi.Signed || lo.Signed,
		Access:   access,
		Min:      lo.Min,
		Max:      lo.Max,
		Category: category,
		Desc:     lo.Desc,
	}
}

// Len returns the number of logical quantities.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.quantities)
}

// Quantities returns the quantities in canonical address order.
// Callers must not modify the returned slice.
func (t *Table) Quantities() []Quantity {
	if t == nil {
		return nil
	}
	return t.quantities
}

func (t *Table) Quantity(name string) (Quantity, bool) {
	if t == nil {
		return Quantity{}, false
	}
	i, ok := t.byName[name]
	if !ok {
		return Quantity{}, false
	}
	return t.quantities[i], true
}

// At resolves the quantity occupying addr, including either half of a pair.
func (t *Table) At(addr uint16) (Quantity, bool) {
	if t == nil {
		return Quantity{}, false
	}
	i, ok := t.byAddr[addr]
	if !ok {
		return Quantity{}, false
	}
	return t.quantities[i], true
}

func (t *Table) Descriptor(addr uint16) (Descriptor, bool) {
	if t == nil {
		return Descriptor{}, false
	}
	d, ok := t.descriptors[addr]
	return d, ok
}

// Addresses returns every declared word address, sorted.
func (t *Table) Addresses() []uint16 {
	if t == nil {
		return nil
	}
	return append([]uint16(nil), t.addrs...)
}
