// internal/status/tracker.go
package status

import "time"

// Tracker owns one device's Snapshot. It is driven solely by cycle
// outcomes and the seconds ticker. Not safe for concurrent use.
type Tracker struct {
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Snapshot() Snapshot {
	return t.snap
}

// Success records a cycle that read the device. It reports whether the
// state changed.
func (t *Tracker) Success(at time.Time) bool {
	changed := t.snap.State != StateOnline

	t.snap.State = StateOnline
	t.snap.LastSuccess = at
	t.snap.SecondsOffline = 0
	t.snap.LastError = ""

	return changed
}

// Failure records a cycle that could not read the device. It reports
// whether the state changed.
func (t *Tracker) Failure(err error) bool {
	changed := t.snap.State != StateOffline

	t.snap.State = StateOffline
	if err != nil {
		t.snap.LastError = err.Error()
	}

	return changed
}

// Tick advances the offline counter by d. No-op while online.
func (t *Tracker) Tick(d time.Duration) {
	if t.snap.State != StateOffline {
		return
	}
	n := uint64(t.snap.SecondsOffline) + uint64(d/time.Second)
	if n > SecondsOfflineMax {
		n = SecondsOfflineMax
	}
	t.snap.SecondsOffline = uint32(n)
}

// SetDate records the calendar date daily counters belong to.
func (t *Tracker) SetDate(d time.Time) {
	t.snap.LastDate = d
}
