// internal/status/constants.go
package status

// State is the device-level connectivity state.
type State uint8

// ---- STATES ----

// StateUninitialized is the boot state, before any cycle finished.
const StateUninitialized State = 0

// StateOnline means the last cycle read the device.
const StateOnline State = 1

// StateOffline means the last cycle could not read the device.
// This is the nightly steady state for solar inverters, not a fault.
const StateOffline State = 2

// ---- LIMITS ----

// SecondsOfflineMax caps the offline counter so it never wraps.
const SecondsOfflineMax = 1<<32 - 1

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
