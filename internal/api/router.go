// internal/api/router.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/holding"
	"github.com/tamzrod/inverter-poller/internal/reading"
	"github.com/tamzrod/inverter-poller/internal/status"
)

// Device is what the router needs from a coordinator.
type Device interface {
	DeviceID() string
	Latest() (reading.Reading, bool)
	Status() status.Snapshot
	Settings() []holding.Setting
	Set(ctx context.Context, name string, value float64) error
}

// WriteTimeout bounds one configuration write, spacing included.
const WriteTimeout = 30 * time.Second

type Router struct {
	router  chi.Router
	log     zerolog.Logger
	devices map[string]Device
}

// SetupRouter mounts every route on chiRouter. metrics may be nil.
func SetupRouter(chiRouter chi.Router, devices []Device, metrics http.Handler, log zerolog.Logger) *Router {
	r := &Router{
		router:  chiRouter,
		log:     log,
		devices: make(map[string]Device, len(devices)),
	}
	for _, d := range devices {
		r.devices[d.DeviceID()] = d
	}

	chiRouter.Use(middleware.Recoverer)
	chiRouter.Get("/health", r.health)
	if metrics != nil {
		chiRouter.Method(http.MethodGet, "/metrics", metrics)
	}

	chiRouter.Route("/devices", func(cr chi.Router) {
		cr.Get("/", r.listDevices)
		cr.Route("/{id}", func(dr chi.Router) {
			dr.Get("/reading", r.getReading)
			dr.Get("/reading/{name}", r.getValue)
			dr.Get("/settings", r.getSettings)
			dr.Put("/settings/{name}", r.putSetting)
		})
	})

	return r
}

func (r *Router) Handler() http.Handler {
	return r.router
}

// Start serves until ctx is cancelled.
func (r *Router) Start(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: r.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	r.log.Info().Str("listen", listen).Msg("starting to listen for connections")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ------------------------------------------------------------
// HANDLERS
// ------------------------------------------------------------

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type deviceSummary struct {
	ID     string          `json:"id"`
	Status status.Snapshot `json:"status"`
}

func (r *Router) listDevices(w http.ResponseWriter, req *http.Request) {
	out := make([]deviceSummary, 0, len(r.devices))
	for id, d := range r.devices {
		out = append(out, deviceSummary{ID: id, Status: d.Status()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

type readingResponse struct {
	ID      string          `json:"id"`
	Status  status.Snapshot `json:"status"`
	Reading reading.Reading `json:"reading"`
}

func (r *Router) getReading(w http.ResponseWriter, req *http.Request) {
	d, ok := r.device(w, req)
	if !ok {
		return
	}
	rd, ok := d.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, readingResponse{ID: d.DeviceID(), Status: d.Status(), Reading: rd})
}

type valueResponse struct {
	Name  string        `json:"name"`
	Value reading.Value `json:"value"`
	Unit  string        `json:"unit,omitempty"`
	At    time.Time     `json:"at"`
}

func (r *Router) getValue(w http.ResponseWriter, req *http.Request) {
	d, ok := r.device(w, req)
	if !ok {
		return
	}
	name := chi.URLParam(req, "name")

	rd, ok := d.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no reading yet")
		return
	}
	v, ok := rd.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "quantity not available")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Name: name, Value: v, Unit: v.Unit, At: rd.At})
}

func (r *Router) getSettings(w http.ResponseWriter, req *http.Request) {
	d, ok := r.device(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.Settings())
}

type setRequest struct {
	Value *float64 `json:"value"`
}

func (r *Router) putSetting(w http.ResponseWriter, req *http.Request) {
	d, ok := r.device(w, req)
	if !ok {
		return
	}
	name := chi.URLParam(req, "name")

	var body setRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Value == nil {
		writeError(w, http.StatusBadRequest, `body must be {"value": <number>}`)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), WriteTimeout)
	defer cancel()

	log := r.log.With().Str("device", d.DeviceID()).Str("register", name).Logger()

	err := d.Set(ctx, name, *body.Value)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, holding.ErrUnknownRegister),
		errors.Is(err, holding.ErrReadOnly),
		errors.Is(err, holding.ErrOutOfRange):
		log.Warn().Err(err).Msg("write rejected")
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Warn().Err(err).Msg("write failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// ------------------------------------------------------------
// HELPERS
// ------------------------------------------------------------

func (r *Router) device(w http.ResponseWriter, req *http.Request) (Device, bool) {
	d, ok := r.devices[chi.URLParam(req, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown device")
	}
	return d, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
