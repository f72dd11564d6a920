// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/cache"
	"github.com/tamzrod/inverter-poller/internal/decoder"
	"github.com/tamzrod/inverter-poller/internal/holding"
	"github.com/tamzrod/inverter-poller/internal/poller"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/registermap"
	"github.com/tamzrod/inverter-poller/internal/retention"
	"github.com/tamzrod/inverter-poller/internal/status"
	"github.com/tamzrod/inverter-poller/internal/transport"
)

// ErrFirstContact is returned when the device is unreachable and there is
// no earlier Reading to retain.
var ErrFirstContact = errors.New("coordinator: device unreachable on first contact")

// Config is the per-device runtime config.
type Config struct {
	DeviceID string
	Map      *registermap.Map
	Interval time.Duration

	MaxSpan int
	MaxGap  int

	// Location decides where midnight is. Nil means time.Local.
	Location *time.Location

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Update is emitted after every cycle and every midnight rollover.
type Update struct {
	DeviceID string
	Reading  reading.Reading
	Status   status.Snapshot

	// Changed is set when the online state flipped.
	Changed bool

	// Midnight marks a rollover update rather than a poll cycle.
	Midnight bool

	Err error
}

// Coordinator owns one device: its transport, caches, state and the
// Reading it publishes.
type Coordinator struct {
	cfg  Config
	log  zerolog.Logger
	sess transport.Sessioner
	now  func() time.Time
	loc  *time.Location

	poller  *poller.Poller
	holding *holding.Store
	policy  *retention.Policy

	// io serializes every exchange with the device. input, loaded and
	// identityDone are only touched under io.
	io           sync.Mutex
	input        *cache.Cache
	loaded       bool
	identity     bool
	identityDone bool

	mu      sync.RWMutex
	latest  *reading.Reading
	tracker *status.Tracker
}

func New(cfg Config, sess transport.Sessioner, log zerolog.Logger) (*Coordinator, error) {
	if cfg.Map == nil {
		return nil, errors.New("coordinator: register map required")
	}
	if _, ok := cfg.Map.Status(); !ok {
		return nil, fmt.Errorf("coordinator: map %s: %w", cfg.Map.Key, registermap.ErrNoStatusRegister)
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("coordinator: interval must be > 0")
	}

	log = log.With().Str("device", cfg.DeviceID).Logger()

	p, err := poller.New(poller.Config{
		DeviceID: cfg.DeviceID,
		Reads:    poller.Plan(cfg.Map, cfg.MaxSpan, cfg.MaxGap),
	}, log)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		log:     log,
		sess:    sess,
		now:     cfg.Now,
		loc:     cfg.Location,
		poller:  p,
		holding: holding.New(cfg.Map, sess, log),
		policy:  retention.NewPolicy(cfg.Map),
		input:   cache.New(),
		tracker: status.NewTracker(),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	for _, a := range cfg.Map.Holding.Addresses() {
		if a >= decoder.IdentityStart && a < decoder.IdentityStart+decoder.IdentityCount {
			c.identity = true
			break
		}
	}
	return c, nil
}

func (c *Coordinator) DeviceID() string { return c.cfg.DeviceID }

func (c *Coordinator) Map() *registermap.Map { return c.cfg.Map }

// Latest returns the published Reading, if any.
func (c *Coordinator) Latest() (reading.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return reading.Reading{}, false
	}
	return *c.latest, true
}

func (c *Coordinator) Status() status.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tracker.Snapshot()
}

// Settings returns the cached holding registers.
func (c *Coordinator) Settings() []holding.Setting {
	return c.holding.Settings()
}

// Setting returns one cached holding value.
func (c *Coordinator) Setting(name string) (float64, bool) {
	return c.holding.Value(name)
}

// Set writes a configuration value. It waits for any cycle in flight.
// Unknown and read-only names are rejected without I/O.
func (c *Coordinator) Set(ctx context.Context, name string, value float64) error {
	c.io.Lock()
	defer c.io.Unlock()
	return c.holding.Set(ctx, name, value)
}

// ------------------------------------------------------------
// CYCLE
// ------------------------------------------------------------

// Poll runs one cycle and returns the Reading it published.
// Offline with an earlier Reading is not an error; the retained Reading is
// returned. Offline on first contact returns ErrFirstContact.
func (c *Coordinator) Poll(ctx context.Context) (reading.Reading, error) {
	u := c.cycle(ctx)
	return u.Reading, u.Err
}

func (c *Coordinator) cycle(ctx context.Context) Update {
	c.io.Lock()
	defer c.io.Unlock()

	if err := ctx.Err(); err != nil {
		return c.update(false, err)
	}

	wantIdentity := c.identity && !c.identityDone

	var res poller.PollResult
	err := c.sess.Session(func(conn transport.Conn) error {
		res = c.poller.PollOnce(conn)
		if res.Err != nil {
			return res.Err
		}
		if wantIdentity {
			if err := c.holding.Refresh(conn, decoder.IdentityStart, decoder.IdentityCount); err != nil {
				c.log.Debug().Err(err).Msg("identity read skipped")
			} else {
				c.identityDone = true
			}
		}
		return nil
	})

	now := c.now()

	if err != nil {
		return c.offline(err, now)
	}

	poller.Fill(c.input, res)
	r, err := decoder.Decode(c.cfg.Map, c.input.Snapshot(), c.holding.View())
	if err != nil {
		return c.update(false, err)
	}

	u := c.online(r.WithTime(now, true), now)

	if !c.loaded {
		if err := c.holding.Load(ctx); err != nil {
			c.log.Debug().Err(err).Msg("holding load deferred")
		} else {
			c.loaded = true
		}
	}
	return u
}

func (c *Coordinator) online(r reading.Reading, now time.Time) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.tracker.Snapshot()
	changed := c.tracker.Success(now)
	if changed {
		c.log.Info().Str("state", status.StateOnline.String()).Msg("device online")
	}

	today := c.date(now)
	if !prev.LastDate.Equal(today) {
		if prev.State == status.StateOffline {
			c.log.Debug().Time("date", today).Msg("date advanced while offline")
		}
		c.tracker.SetDate(today)
	}

	c.latest = &r
	return Update{DeviceID: c.cfg.DeviceID, Reading: r, Status: c.tracker.Snapshot(), Changed: changed}
}

func (c *Coordinator) offline(cause error, now time.Time) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.tracker.Failure(cause)
	ev := c.log.Debug()
	if changed {
		ev = c.log.Info().Str("state", status.StateOffline.String())
	}
	ev.Err(cause).Msg("device offline")

	if c.latest == nil {
		return Update{
			DeviceID: c.cfg.DeviceID,
			Status:   c.tracker.Snapshot(),
			Changed:  changed,
			Err:      fmt.Errorf("%w: %w", ErrFirstContact, cause),
		}
	}

	// daily totals belong to the day the retained Reading was taken
	prev := *c.latest
	today := c.date(now)
	if c.date(prev.At).Before(today) {
		prev = c.policy.ZeroDaily(prev)
	}
	if c.tracker.Snapshot().LastDate.Before(today) {
		c.tracker.SetDate(today)
	}

	r := c.policy.Apply(prev).WithTime(now, false)
	c.latest = &r
	return Update{DeviceID: c.cfg.DeviceID, Reading: r, Status: c.tracker.Snapshot(), Changed: changed}
}

// update reports an error without touching state.
func (c *Coordinator) update(changed bool, err error) Update {
	r, _ := c.Latest()
	return Update{DeviceID: c.cfg.DeviceID, Reading: r, Status: c.Status(), Changed: changed, Err: err}
}

// ------------------------------------------------------------
// MIDNIGHT
// ------------------------------------------------------------

// Rollover handles local midnight. An offline device cannot reset its own
// daily counters, so the retained ones are zeroed here. The new date is
// always recorded.
func (c *Coordinator) Rollover(now time.Time) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.date(now)
	snap := c.tracker.Snapshot()

	if snap.State == status.StateOffline && c.latest != nil && c.date(c.latest.At).Before(today) {
		r := c.policy.ZeroDaily(*c.latest)
		c.latest = &r
		c.log.Info().Time("date", today).Msg("daily totals reset")
	}
	c.tracker.SetDate(today)

	var r reading.Reading
	if c.latest != nil {
		r = *c.latest
	}
	return Update{DeviceID: c.cfg.DeviceID, Reading: r, Status: c.tracker.Snapshot(), Midnight: true}
}

// date truncates t to local midnight.
func (c *Coordinator) date(t time.Time) time.Time {
	t = t.In(c.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

// untilMidnight returns the time left until the next local midnight.
func (c *Coordinator) untilMidnight(now time.Time) time.Duration {
	next := c.date(now).AddDate(0, 0, 1)
	return next.Sub(now)
}
