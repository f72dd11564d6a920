// internal/status/snapshot.go
package status

import "time"

// Snapshot is the observable device state.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	State       State     `json:"state"`
	LastSuccess time.Time `json:"last_success"`

	// LastDate is the local calendar date the daily counters belong to.
	LastDate time.Time `json:"last_date"`

	SecondsOffline uint32 `json:"seconds_offline"`
	LastError      string `json:"last_error,omitempty"`
}

// Online reports whether the device answered the last cycle.
func (s Snapshot) Online() bool {
	return s.State == StateOnline
}
