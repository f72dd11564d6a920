package decoder

import (
	"errors"
	"math"
	"testing"

	"github.com/matryer/is"

	"github.com/tamzrod/inverter-poller/internal/cache"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/registermap"
)

func testMap(t *testing.T) *registermap.Map {
	t.Helper()
	m, err := registermap.Build(registermap.Spec{
		Key: "TEST",
		Input: map[uint16]registermap.Descriptor{
			0:  {Name: "inverter_status"},
			1:  {Name: "pv1_voltage", Scale: 0.1, Unit: "V"},
			2:  {Name: "temperature", Scale: 0.1, Signed: true},
			10: {Name: "energy_total_high", HasPair: true, Pair: 11},
			11: {Name: "energy_total_low", HasPair: true, Pair: 10, CombinedScale: 0.1, CombinedUnit: "kWh"},
			20: {Name: "grid_power_high", HasPair: true, Pair: 21},
			21: {Name: "grid_power_low", HasPair: true, Pair: 20, CombinedScale: 0.1, CombinedUnit: "W", Signed: true},
			30: {Name: "pv1_power_high", HasPair: true, Pair: 31},
			31: {Name: "pv1_power_low", HasPair: true, Pair: 30, CombinedScale: 0.1},
			32: {Name: "pv2_power_high", HasPair: true, Pair: 33},
			33: {Name: "pv2_power_low", HasPair: true, Pair: 32, CombinedScale: 0.1},
		},
		Holding: map[uint16]registermap.Descriptor{
			3: {Name: "firmware_version"},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestPairCombination(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Set(0, 1)
	in.Set(10, 0x0001)
	in.Set(11, 0x86A0) // 0x186A0 = 100000

	r, err := Decode(m, in, nil)
	is.NoErr(err)

	v, ok := r.Number("energy_total")
	is.True(ok)
	is.True(math.Abs(v-10000.0) < 1e-9)
}

func TestSignBoundary32(t *testing.T) {
	is := is.New(t)
	m := testMap(t)
	q, _ := m.Input.Quantity("grid_power")

	in := cache.New()
	in.Set(20, 0x7FFF)
	in.Set(21, 0xFFFF)
	v, ok := Value(q, in)
	is.True(ok)
	is.True(v > 0) // 0x7FFFFFFF stays positive

	in.Set(20, 0x8000)
	in.Set(21, 0x0000)
	v, _ = Value(q, in)
	is.True(math.Abs(v-(-2147483648*0.1)) < 1e-3) // 0x80000000 is the most negative value

	in.Set(20, 0xFFFF)
	in.Set(21, 0xFFF6) // -10
	v, _ = Value(q, in)
	is.True(math.Abs(v-(-1.0)) < 1e-9)
}

func TestSignBoundary16(t *testing.T) {
	is := is.New(t)

	is.Equal(Signed16(0x7FFF, true), int64(32767))
	is.Equal(Signed16(0x8000, true), int64(-32768))
	is.Equal(Signed16(0x8000, false), int64(32768))
	is.Equal(Signed32(0x80000000, false), int64(2147483648))
}

func TestUnsignedPairIgnoresTopBit(t *testing.T) {
	is := is.New(t)
	m := testMap(t)
	q, _ := m.Input.Quantity("energy_total")

	in := cache.New()
	in.Set(10, 0x8000)
	in.Set(11, 0x0000)
	v, _ := Value(q, in)
	is.True(v > 0)
}

func TestMissingHighWordDefaultsToZero(t *testing.T) {
	is := is.New(t)
	m := testMap(t)
	q, _ := m.Input.Quantity("energy_total")

	in := cache.New()
	in.Set(11, 500)

	v, ok := Value(q, in)
	is.True(ok)
	is.True(math.Abs(v-50.0) < 1e-9)
}

func TestAbsentQuantitiesAreOmitted(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Set(0, 1)
	in.Set(1, 2305)

	r, err := Decode(m, in, nil)
	is.NoErr(err)

	_, ok := r.Get("energy_total")
	is.True(!ok)
	_, ok = r.Get("temperature")
	is.True(!ok)

	v, ok := r.Number("pv1_voltage")
	is.True(ok)
	is.True(math.Abs(v-230.5) < 1e-9)
}

func TestSigned16Scaled(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Set(0, 1)
	in.Set(2, 0xFFCE) // -50

	r, _ := Decode(m, in, nil)
	v, _ := r.Number("temperature")
	is.True(math.Abs(v-(-5.0)) < 1e-9)
}

func TestDecodeIsIdempotent(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Store(0, []uint16{1, 2300, 251})
	in.Store(10, []uint16{0, 9104})
	in.Store(20, []uint16{0xFFFF, 0xFF00})
	hold := cache.New()
	hold.Store(0, []uint16{0, 0, 0, 0x0203, 0, 0, 0, 0, 0, 0x4142, 0x4344, 0, 0, 0})

	a, err := Decode(m, in.Snapshot(), hold)
	is.NoErr(err)
	b, err := Decode(m, in.Snapshot(), hold)
	is.NoErr(err)

	is.Equal(a.Names(), b.Names())
	for _, n := range a.Names() {
		va, _ := a.Get(n)
		vb, _ := b.Get(n)
		is.Equal(va, vb)
	}
}

func TestStatusRequired(t *testing.T) {
	is := is.New(t)

	m, err := registermap.Build(registermap.Spec{
		Key:   "NOSTATUS",
		Input: map[uint16]registermap.Descriptor{1: {Name: "pv1_voltage"}},
	})
	is.NoErr(err)

	_, err = Decode(m, cache.New(), nil)
	is.True(errors.Is(err, registermap.ErrNoStatusRegister))
}

func TestStatusTextAndIdentity(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Set(0, 5)
	hold := cache.New()
	hold.Store(0, []uint16{0, 0, 0, 0x0A03, 0, 0, 0, 0, 0, 0x4142, 0x4331, 0x0032, 0x0000, 0x2020})

	r, err := Decode(m, in, hold)
	is.NoErr(err)

	st, _ := r.Get(StatusText)
	is.Equal(st, reading.Text("Standby"))

	fw, _ := r.Get(FirmwareVersion)
	is.Equal(fw.Text, "10.3")

	sn, _ := r.Get(SerialNumber)
	is.Equal(sn.Text, "ABC12  ") // NULs dropped, spaces are printable
}

func TestDerivedPVTotal(t *testing.T) {
	is := is.New(t)
	m := testMap(t)

	in := cache.New()
	in.Set(0, 1)
	in.Store(30, []uint16{0, 1000, 0, 500})

	r, _ := Decode(m, in, nil)
	v, ok := r.Number(PVTotalPower)
	is.True(ok)
	is.True(math.Abs(v-150.0) < 1e-9)
}

func TestStatusName(t *testing.T) {
	is := is.New(t)

	is.Equal(StatusName(0), "Waiting")
	is.Equal(StatusName(1), "Normal")
	is.Equal(StatusName(3), "Fault")
	is.Equal(StatusName(7), "Unknown (7)")
}

func TestBuiltinMapDecode(t *testing.T) {
	is := is.New(t)

	m, err := registermap.Lookup("MIN_7000_10000TL_X")
	is.NoErr(err)

	in := cache.New()
	in.Set(3000, 1)
	in.Set(3005, 0)
	in.Set(3006, 12450)
	in.Set(3049, 0)
	in.Set(3050, 32)

	r, err := Decode(m, in, nil)
	is.NoErr(err)

	pv1, _ := r.Number("pv1_power")
	is.True(math.Abs(pv1-1245.0) < 1e-9)
	today, _ := r.Number("energy_today")
	is.True(math.Abs(today-3.2) < 1e-9)
	_, ok := r.Get("pv_total_power")
	is.True(!ok) // declared by the map but not read, so not derived either
}
