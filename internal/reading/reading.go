// internal/reading/reading.go
package reading

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Kind tells which field of a Value is meaningful.
type Kind uint8

const (
	KindNumber Kind = iota
	KindText
)

// Value is one decoded quantity.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
	Unit   string
}

func Number(v float64, unit string) Value {
	return Value{Kind: KindNumber, Number: v, Unit: unit}
}

func Text(s string) Value {
	return Value{Kind: KindText, Text: s}
}

func (v Value) IsText() bool { return v.Kind == KindText }

func (v Value) String() string {
	if v.Kind == KindText {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

// Reading is an immutable snapshot of named quantities.
// A quantity missing from the Reading was not available; that is
// different from a quantity that reads as zero.
type Reading struct {
	values map[string]Value
	At     time.Time
	Online bool
}

// Get returns the named value and whether it is present.
func (r Reading) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Number returns the numeric value of name. Text and absent values report false.
func (r Reading) Number(name string) (float64, bool) {
	v, ok := r.values[name]
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return v.Number, true
}

func (r Reading) Len() int { return len(r.values) }

// Names returns the present quantity names, sorted.
func (r Reading) Names() []string {
	out := make([]string, 0, len(r.values))
	for k := range r.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Each calls fn for every present value in name order.
func (r Reading) Each(fn func(name string, v Value)) {
	for _, k := range r.Names() {
		fn(k, r.values[k])
	}
}

// WithTime returns the same values stamped with a new time and online flag.
// Values are shared; a Reading never mutates its map after Build.
func (r Reading) WithTime(at time.Time, online bool) Reading {
	r.At = at
	r.Online = online
	return r
}

// Edit returns a Builder seeded with a copy of r's values.
func (r Reading) Edit() *Builder {
	b := NewBuilder(len(r.values))
	for k, v := range r.values {
		b.values[k] = v
	}
	b.at = r.At
	b.online = r.Online
	return b
}

func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		At     time.Time        `json:"at"`
		Online bool             `json:"online"`
		Values map[string]Value `json:"values"`
	}{r.At, r.Online, r.values})
}

// ------------------------------------------------------------
// Builder
// ------------------------------------------------------------

// Builder accumulates values before they are frozen into a Reading.
type Builder struct {
	values map[string]Value
	at     time.Time
	online bool
}

func NewBuilder(capacity int) *Builder {
	return &Builder{values: make(map[string]Value, capacity), online: true}
}

func (b *Builder) Set(name string, v Value) *Builder {
	b.values[name] = v
	return b
}

func (b *Builder) Delete(name string) *Builder {
	delete(b.values, name)
	return b
}

func (b *Builder) Get(name string) (Value, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Names returns the names currently held, unsorted.
func (b *Builder) Names() []string {
	out := make([]string, 0, len(b.values))
	for k := range b.values {
		out = append(out, k)
	}
	return out
}

// Build freezes the builder. The builder must not be used afterwards.
func (b *Builder) Build() Reading {
	r := Reading{values: b.values, At: b.at, Online: b.online}
	b.values = nil
	return r
}
