// internal/registermap/registermap.go
package registermap

import (
	"errors"
	"strings"
)

var (
	ErrUnknownMap       = errors.New("registermap: unknown map")
	ErrBadPair          = errors.New("registermap: malformed pair")
	ErrDuplicateName    = errors.New("registermap: duplicate logical name")
	ErrNoStatusRegister = errors.New("registermap: status quantity not resolvable")
	ErrBadDescriptor    = errors.New("registermap: malformed descriptor")
)

// DefaultStatusQuantity is the logical name decoded as the device status
// unless a map declares otherwise.
const DefaultStatusQuantity = "inverter_status"

// Access marks a holding register as read-only or writable.
type Access uint8

const (
	AccessRead Access = iota
	AccessReadWrite
)

func (a Access) String() string {
	if a == AccessReadWrite {
		return "rw"
	}
	return "r"
}

// Descriptor is one declared register word.
type Descriptor struct {
	Address uint16
	Name    string
	Scale   float64
	Unit    string

	// 32-bit pairing. Pair is the other half's address when HasPair is set.
	HasPair       bool
	Pair          uint16
	CombinedScale float64
	CombinedUnit  string

	Signed bool
	Access Access

	// Optional physical bounds for writable registers.
	Min *float64
	Max *float64

	// Category overrides the retention class derived from the name.
	Category string
	Desc     string
}

// Quantity is a logical value resolved from one descriptor or one pair.
type Quantity struct {
	Name string

	// Address is the canonical address: the low word of a pair
	// (the higher address), otherwise the sole address.
	Address uint16

	Paired bool
	High   uint16 // lower address of a pair
	Low    uint16 // higher address of a pair

	Scale    float64 // effective scale
	Unit     string
	Signed   bool
	Access   Access
	Min      *float64
	Max      *float64
	Category string
	Desc     string
}

// Writable reports whether the quantity accepts writes.
func (q Quantity) Writable() bool { return q.Access == AccessReadWrite }

// Addresses returns every register word the quantity occupies.
func (q Quantity) Addresses() []uint16 {
	if q.Paired {
		return []uint16{q.High, q.Low}
	}
	return []uint16{q.Address}
}

// Range is an inclusive address interval.
type Range struct {
	Start uint16 `yaml:"start"`
	End   uint16 `yaml:"end"`
}

func (r Range) Contains(addr uint16) bool {
	return addr >= r.Start && addr <= r.End
}

// Map is one fully resolved device model. It is immutable after Build.
type Map struct {
	Key         string
	Name        string
	Description string
	Notes       string

	StatusQuantity string
	Optional       []Range

	Input   *Table
	Holding *Table
}

// Status resolves the map's status quantity in the input namespace.
func (m *Map) Status() (Quantity, bool) {
	if m == nil || m.Input == nil {
		return Quantity{}, false
	}
	name := m.StatusQuantity
	if name == "" {
		name = DefaultStatusQuantity
	}
	return m.Input.Quantity(name)
}

// IsOptional reports whether an input address lies in a range the device
// may legitimately refuse to serve.
func (m *Map) IsOptional(addr uint16) bool {
	for _, r := range m.Optional {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Spec is the unresolved form of a map handed to Build.
type Spec struct {
	Key            string
	Name           string
	Description    string
	Notes          string
	StatusQuantity string
	Optional       []Range
	Input          map[uint16]Descriptor
	Holding        map[uint16]Descriptor
}

// Build validates a spec and indexes both namespaces.
// It does not require the status quantity to exist; Decode reports that.
func Build(s Spec) (*Map, error) {
	if s.Key == "" {
		return nil, errors.New("registermap: map key required")
	}

	in, err := newTable(s.Input)
	if err != nil {
		return nil, wrapKey(s.Key, "input", err)
	}
	hold, err := newTable(s.Holding)
	if err != nil {
		return nil, wrapKey(s.Key, "holding", err)
	}

	for _, r := range s.Optional {
		if r.End < r.Start {
			return nil, wrapKey(s.Key, "optional", errors.New("range end before start"))
		}
	}

	status := s.StatusQuantity
	if status == "" {
		status = DefaultStatusQuantity
	}

	return &Map{
		Key:            s.Key,
		Name:           s.Name,
		Description:    s.Description,
		Notes:          s.Notes,
		StatusQuantity: status,
		Optional:       append([]Range(nil), s.Optional...),
		Input:          in,
		Holding:        hold,
	}, nil
}

// logicalName folds the _high/_low suffix of a pair half.
func logicalName(d Descriptor) string {
	if !d.HasPair {
		return d.Name
	}
	for _, suffix := range []string{"_high", "_low"} {
		if strings.HasSuffix(d.Name, suffix) {
			return strings.TrimSuffix(d.Name, suffix)
		}
	}
	return d.Name
}
