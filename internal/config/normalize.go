// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs           = 3000
	DefaultIntervalMs          = 30000
	DefaultMinRequestSpacingMs = 1000
	DefaultMaxSpan             = 125
	DefaultMaxGap              = 0
	DefaultBaudRate            = 9600
	DefaultTopic               = "growatt"
	DefaultLogLevel            = "info"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	p := &cfg.Poller
	if p.LogLevel == "" {
		p.LogLevel = DefaultLogLevel
	}
	if p.MQTT.Broker != "" && p.MQTT.Topic == "" {
		p.MQTT.Topic = DefaultTopic
	}

	for i := range p.Devices {
		d := &p.Devices[i]

		// ---- transport ----
		if d.Transport.Kind == "" {
			d.Transport.Kind = KindTCP
		}
		if d.Transport.UnitID == 0 {
			d.Transport.UnitID = 1
		}
		if d.Transport.TimeoutMs == 0 {
			d.Transport.TimeoutMs = DefaultTimeoutMs
		}
		if d.Transport.Kind != KindTCP {
			if d.Transport.BaudRate == 0 {
				d.Transport.BaudRate = DefaultBaudRate
			}
			if d.Transport.DataBits == 0 {
				d.Transport.DataBits = 8
			}
			if d.Transport.Parity == "" {
				d.Transport.Parity = "N"
			}
			if d.Transport.StopBits == 0 {
				d.Transport.StopBits = 1
			}
		}

		// ---- poll ----
		if d.Poll.IntervalMs == 0 {
			d.Poll.IntervalMs = DefaultIntervalMs
		}
		if d.Poll.MinRequestSpacingMs == 0 {
			d.Poll.MinRequestSpacingMs = DefaultMinRequestSpacingMs
		}
		if d.Poll.MaxSpan == 0 {
			d.Poll.MaxSpan = DefaultMaxSpan
		}
		if d.Poll.MaxGap == nil {
			gap := DefaultMaxGap
			d.Poll.MaxGap = &gap
		}
	}
}
