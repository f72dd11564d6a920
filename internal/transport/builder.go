// internal/transport/builder.go
package transport

import (
	"fmt"
	"time"

	"github.com/tamzrod/inverter-poller/internal/config"
)

// Build constructs the transport for one device and wraps it in a Guard.
// Nothing is dialled here; each session connects on demand.
func Build(d config.DeviceConfig) (*Guard, error) {
	t := d.Transport
	timeout := time.Duration(t.TimeoutMs) * time.Millisecond

	var (
		tr  Transport
		err error
	)

	switch t.Kind {
	case config.KindTCP, "":
		tr, err = NewTCP(TCPConfig{
			Endpoint: t.Endpoint,
			UnitID:   t.UnitID,
			Timeout:  timeout,
		})
	case config.KindRTU:
		tr, err = NewRTU(SerialConfig{
			Device:   t.Device,
			BaudRate: t.BaudRate,
			DataBits: t.DataBits,
			Parity:   t.Parity,
			StopBits: t.StopBits,
			UnitID:   t.UnitID,
			Timeout:  timeout,
		})
	case config.KindRTUOverTCP:
		tr, err = NewRTUOverTCP(RTUOverTCPConfig{
			Endpoint: t.Endpoint,
			BaudRate: t.BaudRate,
			UnitID:   t.UnitID,
			Timeout:  timeout,
		})
	default:
		return nil, fmt.Errorf("transport: unknown kind %q", t.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: device %s: %w", d.ID, err)
	}

	spacing := time.Duration(d.Poll.MinRequestSpacingMs) * time.Millisecond
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	return NewGuard(tr, spacing), nil
}
