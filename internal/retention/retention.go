// internal/retention/retention.go
package retention

import (
	"strings"

	"github.com/tamzrod/inverter-poller/internal/decoder"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/registermap"
)

// Category selects what a quantity shows while the device is offline.
type Category uint8

const (
	Diagnostic    Category = iota // absent
	Power                         // forced to 0
	DailyTotal                    // retained until midnight, then 0
	LifetimeTotal                 // retained
	Status                        // "offline"
	Identity                      // retained
)

// OfflineText replaces status values while the device is unreachable.
const OfflineText = "offline"

func (c Category) String() string {
	switch c {
	case Power:
		return "power"
	case DailyTotal:
		return "daily_total"
	case LifetimeTotal:
		return "lifetime_total"
	case Status:
		return "status"
	case Identity:
		return "identity"
	default:
		return "diagnostic"
	}
}

// Parse maps a category name to a Category. Unknown names are diagnostic.
func Parse(s string) Category {
	switch s {
	case "power":
		return Power
	case "daily_total":
		return DailyTotal
	case "lifetime_total":
		return LifetimeTotal
	case "status":
		return Status
	case "identity":
		return Identity
	default:
		return Diagnostic
	}
}

var builtin = map[string]Category{}

func init() {
	for _, n := range []string{
		"pv1_power", "pv2_power", "pv3_power", "pv_total_power",
		"ac_power", "grid_power", "grid_export_power", "grid_import_power",
		"power_to_grid", "power_to_load", "power_to_user",
		"self_consumption", "house_consumption",
		"battery_power", "battery_charge_power", "battery_discharge_power",
		"ac_power_r", "ac_power_s", "ac_power_t",
	} {
		builtin[n] = Power
	}
	for _, n := range []string{
		"energy_today", "energy_to_grid_today", "grid_import_energy_today",
		"load_energy_today", "energy_to_user_today", "grid_energy_today",
		"battery_charge_today", "battery_discharge_today",
	} {
		builtin[n] = DailyTotal
	}
	for _, n := range []string{
		"energy_total", "energy_to_grid_total", "grid_import_energy_total",
		"load_energy_total", "energy_to_user_total", "grid_energy_total",
		"battery_charge_total", "battery_discharge_total",
	} {
		builtin[n] = LifetimeTotal
	}
	for _, n := range []string{
		"status", "inverter_status", decoder.StatusText,
		"derating_mode", "fault_code", "warning_code", "priority_mode", "battery_derating_mode",
	} {
		builtin[n] = Status
	}
	builtin["self_consumption_percentage"] = Diagnostic
	builtin[decoder.SerialNumber] = Identity
	builtin[decoder.FirmwareVersion] = Identity
}

// Classify assigns a category from the name alone: the known-name table
// first, then name suffixes, then diagnostic.
func Classify(name string) Category {
	if c, ok := builtin[name]; ok {
		return c
	}
	switch {
	case strings.HasSuffix(name, "_today"):
		return DailyTotal
	case strings.HasSuffix(name, "_total"):
		return LifetimeTotal
	case strings.HasSuffix(name, "_power"):
		return Power
	case strings.HasSuffix(name, "_code"), strings.HasSuffix(name, "_subcode"), strings.HasSuffix(name, "_mode"):
		return Status
	}
	return Diagnostic
}

// Policy classifies the quantities of one map.
type Policy struct {
	overrides map[string]Category
}

// NewPolicy honours per-descriptor category overrides and the map's
// status quantity. A nil map yields name-only classification.
func NewPolicy(m *registermap.Map) *Policy {
	p := &Policy{overrides: map[string]Category{}}
	if m == nil {
		return p
	}
	for _, q := range m.Input.Quantities() {
		if q.Category != "" {
			p.overrides[q.Name] = Parse(q.Category)
		}
	}
	if q, ok := m.Status(); ok {
		if _, set := p.overrides[q.Name]; !set {
			p.overrides[q.Name] = Status
		}
	}
	return p
}

func (p *Policy) Category(name string) Category {
	if c, ok := p.overrides[name]; ok {
		return c
	}
	return Classify(name)
}

// Apply derives the Reading published while the device is offline.
// Applying it to its own output is a no-op.
func (p *Policy) Apply(prev reading.Reading) reading.Reading {
	b := prev.Edit()
	for _, name := range prev.Names() {
		v, _ := prev.Get(name)
		switch p.Category(name) {
		case Power:
			b.Set(name, reading.Number(0, v.Unit))
		case Status:
			b.Set(name, reading.Text(OfflineText))
		case Diagnostic:
			b.Delete(name)
		}
	}
	return b.Build()
}

// ZeroDaily resets every daily total in r to 0.
func (p *Policy) ZeroDaily(r reading.Reading) reading.Reading {
	b := r.Edit()
	for _, name := range r.Names() {
		if p.Category(name) != DailyTotal {
			continue
		}
		v, _ := r.Get(name)
		b.Set(name, reading.Number(0, v.Unit))
	}
	return b.Build()
}
