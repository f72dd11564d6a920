// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/inverter-poller/internal/registermap"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	if len(cfg.Poller.Devices) == 0 {
		return errors.New("config: at least one device required")
	}

	switch cfg.Poller.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", cfg.Poller.LogLevel)
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	seen := make(map[string]struct{}, len(cfg.Poller.Devices))

	for _, d := range cfg.Poller.Devices {
		if d.ID == "" {
			return errors.New("config: device id required")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}

		// unknown maps fail here, never fall back to a default
		if d.RegisterMap == "" {
			return fmt.Errorf("device %q: register_map required", d.ID)
		}
		if _, err := registermap.Lookup(d.RegisterMap); err != nil {
			return fmt.Errorf("device %q: %w", d.ID, err)
		}

		if d.Timezone != "" {
			if _, err := time.LoadLocation(d.Timezone); err != nil {
				return fmt.Errorf("device %q: timezone: %w", d.ID, err)
			}
		}

		if err := validateTransport(d.ID, d.Transport); err != nil {
			return err
		}
		if err := validatePoll(d.ID, d.Poll); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// ENDPOINT OWNERSHIP
	// ------------------------------------------------------------

	// key = endpoint | unit_id; two devices on one address would race
	owner := make(map[string]string)
	for _, d := range cfg.Poller.Devices {
		ep := d.Transport.Endpoint
		if d.Transport.Kind == KindRTU {
			ep = d.Transport.Device
		}
		key := fmt.Sprintf("%s|%d", ep, d.Transport.UnitID)
		if prev, exists := owner[key]; exists {
			return fmt.Errorf(
				"endpoint collision: %s unit_id=%d used by devices %q and %q",
				ep,
				d.Transport.UnitID,
				prev,
				d.ID,
			)
		}
		owner[key] = d.ID
	}

	return nil
}

func validateTransport(id string, t TransportConfig) error {
	switch t.Kind {
	case "", KindTCP, KindRTUOverTCP:
		if t.Endpoint == "" {
			return fmt.Errorf("device %q: transport endpoint required", id)
		}
	case KindRTU:
		if t.Device == "" {
			return fmt.Errorf("device %q: transport device required for rtu", id)
		}
	default:
		return fmt.Errorf("device %q: unknown transport kind %q", id, t.Kind)
	}

	if t.UnitID > 247 {
		return fmt.Errorf("device %q: unit_id must be 1..247", id)
	}
	if t.TimeoutMs < 0 {
		return fmt.Errorf("device %q: timeout_ms must be >= 0", id)
	}
	switch t.Parity {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("device %q: parity must be N, E or O", id)
	}
	return nil
}

func validatePoll(id string, p PollConfig) error {
	if p.IntervalMs < 0 {
		return fmt.Errorf("device %q: interval_ms must be > 0 when set", id)
	}
	if p.MinRequestSpacingMs < 0 {
		return fmt.Errorf("device %q: min_request_spacing_ms must be >= 0", id)
	}
	if p.MaxSpan < 0 || p.MaxSpan > 125 {
		return fmt.Errorf("device %q: max_span must be 1..125 when set", id)
	}
	if p.MaxGap != nil && *p.MaxGap < 0 {
		return fmt.Errorf("device %q: max_gap must be >= 0", id)
	}
	return nil
}
