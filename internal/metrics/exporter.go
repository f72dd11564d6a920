// internal/metrics/exporter.go
package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/inverter-poller/internal/coordinator"
	"github.com/tamzrod/inverter-poller/internal/reading"
)

// Poll result labels.
const (
	ResultOnline       = "online"
	ResultOffline      = "offline"
	ResultFirstContact = "first_contact"
	ResultError        = "error"
)

// Exporter turns coordinator updates into Prometheus series.
type Exporter struct {
	reg *prometheus.Registry

	quantity       *prometheus.GaugeVec
	online         *prometheus.GaugeVec
	lastSuccess    *prometheus.GaugeVec
	secondsOffline *prometheus.GaugeVec
	polls          *prometheus.CounterVec

	mu   sync.Mutex
	seen map[string]map[string]struct{} // device -> quantity names exported
}

func New() *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		quantity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_quantity",
			Help: "Last published value of a decoded quantity",
		}, []string{"device", "quantity"}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_online",
			Help: "1 when the last cycle read the device",
		}, []string{"device"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		}, []string{"device"}),
		secondsOffline: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inverter_offline_seconds",
			Help: "Seconds the device has been offline",
		}, []string{"device"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inverter_poll_total",
			Help: "Poll cycles by outcome",
		}, []string{"device", "result"}),
		seen: map[string]map[string]struct{}{},
	}

	e.reg.MustRegister(e.quantity, e.online, e.lastSuccess, e.secondsOffline, e.polls)
	return e
}

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.reg
}

// Observe records one update. Quantities missing from the Reading are
// removed so absent never reads as zero.
func (e *Exporter) Observe(u coordinator.Update) {
	dev := u.DeviceID

	if !u.Midnight {
		e.polls.WithLabelValues(dev, result(u)).Inc()
	}

	if u.Status.Online() {
		e.online.WithLabelValues(dev).Set(1)
	} else {
		e.online.WithLabelValues(dev).Set(0)
	}
	if !u.Status.LastSuccess.IsZero() {
		e.lastSuccess.WithLabelValues(dev).Set(float64(u.Status.LastSuccess.Unix()))
	}
	e.secondsOffline.WithLabelValues(dev).Set(float64(u.Status.SecondsOffline))

	if u.Reading.Len() == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := map[string]struct{}{}
	u.Reading.Each(func(name string, v reading.Value) {
		if v.IsText() {
			return
		}
		e.quantity.WithLabelValues(dev, name).Set(v.Number)
		now[name] = struct{}{}
	})
	for name := range e.seen[dev] {
		if _, ok := now[name]; !ok {
			e.quantity.DeleteLabelValues(dev, name)
		}
	}
	e.seen[dev] = now
}

func result(u coordinator.Update) string {
	switch {
	case errors.Is(u.Err, coordinator.ErrFirstContact):
		return ResultFirstContact
	case u.Err != nil:
		return ResultError
	case u.Status.Online():
		return ResultOnline
	default:
		return ResultOffline
	}
}
