// internal/mqttbridge/bridge.go
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/config"
	"github.com/tamzrod/inverter-poller/internal/coordinator"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/status"
)

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Setter routes a write to one device.
type Setter interface {
	DeviceID() string
	Set(ctx context.Context, name string, value float64) error
}

const (
	// WriteTimeout bounds one write triggered by a set topic.
	WriteTimeout = 30 * time.Second

	publishTimeout = 5 * time.Second
	setSuffix      = "/set"
)

// Bridge publishes Readings as retained topics and turns
// <topic>/<device>/<setting>/set messages into writes.
type Bridge struct {
	c     Client
	topic string
	log   zerolog.Logger

	devices map[string]Setter

	mu        sync.Mutex
	published map[string]map[string]struct{} // device -> quantity topics holding a value
	state     map[string]status.State
}

func New(c Client, topic string, devices []Setter, log zerolog.Logger) *Bridge {
	b := &Bridge{
		c:         c,
		topic:     strings.TrimSuffix(topic, "/"),
		log:       log,
		devices:   make(map[string]Setter, len(devices)),
		published: map[string]map[string]struct{}{},
		state:     map[string]status.State{},
	}
	for _, d := range devices {
		b.devices[d.DeviceID()] = d
	}
	return b
}

// Dial connects to the broker. The bridge announces itself and
// resubscribes on every (re)connect.
func Dial(cfg config.MQTTConfig, devices []Setter, log zerolog.Logger) (*Bridge, error) {
	b := New(nil, cfg.Topic, devices, log)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "inverter-poller"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(30*time.Second).
		SetWill(b.topic+"/status", "offline", 0, true).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		if err := b.announce(); err != nil {
			log.Warn().Err(err).Msg("mqtt announce failed")
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	c := mqtt.NewClient(opts)
	b.c = c

	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttbridge: connect %s: %w", cfg.Broker, token.Error())
	}
	return b, nil
}

// announce marks the bridge online and subscribes to every device's set
// topics.
func (b *Bridge) announce() error {
	if err := wait(b.c.Publish(b.topic+"/status", 0, true, "online")); err != nil {
		return err
	}
	for id := range b.devices {
		filter := fmt.Sprintf("%s/%s/+%s", b.topic, id, setSuffix)
		if err := wait(b.c.Subscribe(filter, 0, b.handleSet)); err != nil {
			return fmt.Errorf("mqttbridge: subscribe %s: %w", filter, err)
		}
	}
	return nil
}

// Close marks the bridge offline and disconnects.
func (b *Bridge) Close() {
	_ = wait(b.c.Publish(b.topic+"/status", 0, true, "offline"))
	b.c.Disconnect(250)
}

// ------------------------------------------------------------
// PUBLISH
// ------------------------------------------------------------

// Publish sends the device state and every quantity as retained messages.
// A quantity that disappeared is cleared with an empty retained payload.
func (b *Bridge) Publish(u coordinator.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	base := b.topic + "/" + u.DeviceID

	if prev, ok := b.state[u.DeviceID]; !ok || prev != u.Status.State {
		if err := wait(b.c.Publish(base+"/status", 0, true, u.Status.State.String())); err != nil {
			errs = append(errs, err)
		} else {
			b.state[u.DeviceID] = u.Status.State
		}
	}

	if u.Reading.Len() == 0 {
		return errors.Join(errs...)
	}

	now := make(map[string]struct{}, u.Reading.Len())
	u.Reading.Each(func(name string, v reading.Value) {
		now[name] = struct{}{}
		if err := wait(b.c.Publish(base+"/"+name, 0, true, v.String())); err != nil {
			errs = append(errs, err)
		}
	})
	for name := range b.published[u.DeviceID] {
		if _, ok := now[name]; ok {
			continue
		}
		if err := wait(b.c.Publish(base+"/"+name, 0, true, "")); err != nil {
			errs = append(errs, err)
		}
	}
	b.published[u.DeviceID] = now

	return errors.Join(errs...)
}

// ------------------------------------------------------------
// SUBSCRIBE
// ------------------------------------------------------------

func (b *Bridge) handleSet(_ mqtt.Client, msg mqtt.Message) {
	defer msg.Ack()

	id, name, ok := b.parseSetTopic(msg.Topic())
	if !ok {
		b.log.Debug().Str("topic", msg.Topic()).Msg("ignoring topic")
		return
	}
	dev, ok := b.devices[id]
	if !ok {
		b.log.Debug().Str("device", id).Msg("set for unknown device")
		return
	}

	log := b.log.With().Str("device", id).Str("register", name).Logger()

	value, err := ParseValue(string(msg.Payload()))
	if err != nil {
		log.Warn().Err(err).Msg("invalid value")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
	defer cancel()

	if err := dev.Set(ctx, name, value); err != nil {
		log.Warn().Err(err).Float64("value", value).Msg("write failed")
		return
	}
	log.Info().Float64("value", value).Msg("write ok")
}

// parseSetTopic splits <topic>/<device>/<setting>/set.
func (b *Bridge) parseSetTopic(topic string) (string, string, bool) {
	rest, ok := strings.CutPrefix(topic, b.topic+"/")
	if !ok {
		return "", "", false
	}
	rest, ok = strings.CutSuffix(rest, setSuffix)
	if !ok {
		return "", "", false
	}
	id, name, ok := strings.Cut(rest, "/")
	if !ok || id == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return id, name, true
}

// ParseValue accepts a number, or on/off and true/false for switches.
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("mqttbridge: invalid value %q", s)
	}
	return v, nil
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return errors.New("mqttbridge: timeout")
	}
	return t.Error()
}
