package config

import (
	"errors"
	"testing"

	"github.com/tamzrod/inverter-poller/internal/registermap"
)

// helper to build a device quickly
func device(id, regMap, kind, endpoint string, unitID uint8) DeviceConfig {
	return DeviceConfig{
		ID:          id,
		RegisterMap: regMap,
		Transport: TransportConfig{
			Kind:     kind,
			Endpoint: endpoint,
			UnitID:   unitID,
		},
	}
}

func withDevices(ds ...DeviceConfig) *Config {
	return &Config{Poller: PollerConfig{Devices: ds}}
}

// ---- tests ----

func TestValidate_OK(t *testing.T) {
	cfg := withDevices(
		device("roof", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1),
		device("garage", "SPH_3000_10000", "rtuovertcp", "10.0.0.6:8899", 1),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownMapFails(t *testing.T) {
	cfg := withDevices(device("roof", "MIN_10000_TL_X_OFFICIAL", "tcp", "10.0.0.5:502", 1))

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected unknown map error, got nil")
	}
	if !errors.Is(err, registermap.ErrUnknownMap) {
		t.Fatalf("expected ErrUnknownMap, got %v", err)
	}
}

func TestValidate_DuplicateID(t *testing.T) {
	cfg := withDevices(
		device("roof", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1),
		device("roof", "MIN_7000_10000TL_X", "tcp", "10.0.0.6:502", 1),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error, got nil")
	}
}

func TestValidate_SameEndpointDifferentUnitAllowed(t *testing.T) {
	cfg := withDevices(
		device("a", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1),
		device("b", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 2),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_EndpointCollision(t *testing.T) {
	cfg := withDevices(
		device("a", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1),
		device("b", "MID_15000_25000TL3_X", "tcp", "10.0.0.5:502", 1),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected collision error, got nil")
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	cfg := withDevices(device("a", "MIN_7000_10000TL_X", "udp", "10.0.0.5:502", 1))

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected kind error, got nil")
	}
}

func TestValidate_RTUNeedsDevice(t *testing.T) {
	d := device("a", "MIN_7000_10000TL_X", "rtu", "", 1)
	if err := Validate(withDevices(d)); err == nil {
		t.Fatalf("expected missing device error, got nil")
	}

	d.Transport.Device = "/dev/ttyUSB0"
	if err := Validate(withDevices(d)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MaxSpanBounds(t *testing.T) {
	d := device("a", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1)
	d.Poll.MaxSpan = 200

	if err := Validate(withDevices(d)); err == nil {
		t.Fatalf("expected max_span error, got nil")
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := withDevices(device("a", "MIN_7000_10000TL_X", "", "10.0.0.5:502", 0))

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Poller.Devices[0].Transport.Kind != "" || cfg.Poller.Devices[0].Poll.MaxGap != nil {
		t.Fatalf("Validate mutated config")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := withDevices(device("a", "MIN_7000_10000TL_X", "", "10.0.0.5:502", 0))
	Normalize(cfg)

	d := cfg.Poller.Devices[0]
	if d.Transport.Kind != KindTCP || d.Transport.UnitID != 1 {
		t.Fatalf("transport defaults not applied: %+v", d.Transport)
	}
	if d.Poll.IntervalMs != DefaultIntervalMs || d.Poll.MinRequestSpacingMs != DefaultMinRequestSpacingMs {
		t.Fatalf("poll defaults not applied: %+v", d.Poll)
	}
	if d.Poll.MaxGap == nil || *d.Poll.MaxGap != DefaultMaxGap {
		t.Fatalf("max_gap default not applied")
	}
	if cfg.Poller.LogLevel != DefaultLogLevel {
		t.Fatalf("log level default not applied")
	}
}

func TestNormalize_ExplicitGapKept(t *testing.T) {
	gap := 4
	d := device("a", "MIN_7000_10000TL_X", "tcp", "10.0.0.5:502", 1)
	d.Poll.MaxGap = &gap
	cfg := withDevices(d)

	Normalize(cfg)
	if *cfg.Poller.Devices[0].Poll.MaxGap != 4 {
		t.Fatalf("explicit max_gap overwritten")
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
poller:
  devices:
    - id: a
      registermap: MIN_7000_10000TL_X
`))
	if err == nil {
		t.Fatalf("expected unknown field error, got nil")
	}
}

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(`
poller:
  log_level: debug
  http:
    listen: ":9090"
  mqtt:
    broker: "tcp://broker:1883"
  devices:
    - id: roof
      register_map: MIN_7000_10000TL_X
      timezone: Europe/Berlin
      transport:
        kind: tcp
        endpoint: "192.168.1.50:502"
        unit_id: 1
      poll:
        interval_ms: 10000
        max_gap: 0
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	Normalize(cfg)

	d := cfg.Poller.Devices[0]
	if d.Poll.IntervalMs != 10000 || *d.Poll.MaxGap != 0 {
		t.Fatalf("unexpected poll config: %+v", d.Poll)
	}
	if cfg.Poller.MQTT.Topic != DefaultTopic {
		t.Fatalf("expected default topic, got %q", cfg.Poller.MQTT.Topic)
	}
}
