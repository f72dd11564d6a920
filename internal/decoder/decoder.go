// internal/decoder/decoder.go
package decoder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tamzrod/inverter-poller/internal/cache"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/registermap"
)

// Names of quantities the decoder derives rather than reads.
const (
	SerialNumber    = "serial_number"
	FirmwareVersion = "firmware_version"
	StatusText      = "status_text"
	PVTotalPower    = "pv_total_power"
)

// Holding words carrying device identity.
const (
	firmwareAddr    uint16 = 3
	serialFirstAddr uint16 = 9
	serialLastAddr  uint16 = 13
)

// IdentitySpan is the holding range read for identity fields.
const (
	IdentityStart uint16 = 0
	IdentityCount uint16 = 20
)

var pvStringPower = regexp.MustCompile(`^pv[0-9]+_power$`)

// Decode turns raw input and holding words into a Reading.
// Quantities whose words were not read are absent. Decode fails only when
// the map cannot resolve its status quantity.
func Decode(m *registermap.Map, input, holding cache.View) (reading.Reading, error) {
	status, ok := m.Status()
	if !ok {
		return reading.Reading{}, fmt.Errorf("%w: map %s has no %q",
			registermap.ErrNoStatusRegister, m.Key, m.StatusQuantity)
	}
	if input == nil {
		input = cache.Empty
	}
	if holding == nil {
		holding = cache.Empty
	}

	b := reading.NewBuilder(m.Input.Len() + 4)

	for _, q := range m.Input.Quantities() {
		v, ok := Value(q, input)
		if !ok {
			continue
		}
		b.Set(q.Name, reading.Number(v, q.Unit))
	}

	if code, ok := b.Get(status.Name); ok && status.Name == registermap.DefaultStatusQuantity {
		b.Set(StatusText, reading.Text(StatusName(int(code.Number))))
	}

	if _, declared := m.Input.Quantity(PVTotalPower); !declared {
		if sum, ok := sumStrings(b); ok {
			b.Set(PVTotalPower, reading.Number(sum, "W"))
		}
	}

	if fw, ok := Firmware(m, holding); ok {
		b.Set(FirmwareVersion, reading.Text(fw))
	}
	if sn, ok := Serial(holding); ok {
		b.Set(SerialNumber, reading.Text(sn))
	}

	return b.Build(), nil
}

// Value decodes one quantity. It reports false when none of the
// quantity's words are present.
//
// A pair with only one half present decodes with the missing half as 0.
// A missing high word therefore truncates values above 0xFFFF.
func Value(q registermap.Quantity, v cache.View) (float64, bool) {
	if !q.Paired {
		w, ok := v.Word(q.Address)
		if !ok {
			return 0, false
		}
		return float64(Signed16(w, q.Signed)) * q.Scale, true
	}

	hi, hiOK := v.Word(q.High)
	lo, loOK := v.Word(q.Low)
	if !hiOK && !loOK {
		return 0, false
	}
	return float64(Signed32(Combine(hi, lo), q.Signed)) * q.Scale, true
}

// Combine joins a high and a low word.
func Combine(high, low uint16) uint32 {
	return uint32(high)<<16 | uint32(low)
}

// Signed32 applies two's complement when signed is set.
func Signed32(v uint32, signed bool) int64 {
	if signed && v >= 1<<31 {
		return int64(v) - 1<<32
	}
	return int64(v)
}

// Signed16 applies two's complement when signed is set.
func Signed16(v uint16, signed bool) int64 {
	if signed && v >= 1<<15 {
		return int64(v) - 1<<16
	}
	return int64(v)
}

// Firmware renders holding word 3 as "major.minor" when the map declares it.
func Firmware(m *registermap.Map, holding cache.View) (string, bool) {
	if _, declared := m.Holding.Descriptor(firmwareAddr); !declared {
		return "", false
	}
	w, ok := holding.Word(firmwareAddr)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d.%d", w>>8, w&0xFF), true
}

// Serial assembles the printable ASCII characters of holding words 9..13.
func Serial(holding cache.View) (string, bool) {
	var sb strings.Builder
	seen := false
	for addr := serialFirstAddr; addr <= serialLastAddr; addr++ {
		w, ok := holding.Word(addr)
		if !ok {
			continue
		}
		seen = true
		for _, c := range []byte{byte(w >> 8), byte(w)} {
			if c >= 32 && c <= 126 {
				sb.WriteByte(c)
			}
		}
	}
	if !seen || sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}

func sumStrings(b *reading.Builder) (float64, bool) {
	var sum float64
	found := false
	for _, name := range b.Names() {
		if !pvStringPower.MatchString(name) {
			continue
		}
		v, _ := b.Get(name)
		sum += v.Number
		found = true
	}
	return sum, found
}
