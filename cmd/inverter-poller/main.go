// cmd/inverter-poller/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"

	"github.com/tamzrod/inverter-poller/internal/api"
	"github.com/tamzrod/inverter-poller/internal/config"
	"github.com/tamzrod/inverter-poller/internal/coordinator"
	"github.com/tamzrod/inverter-poller/internal/metrics"
	"github.com/tamzrod/inverter-poller/internal/mqttbridge"
	"github.com/tamzrod/inverter-poller/internal/registermap"
	"github.com/tamzrod/inverter-poller/internal/transport"
)

func main() {
	listMaps := flag.Bool("list-maps", false, "print the built-in register maps and exit")
	once := flag.Bool("once", false, "poll every device once, print the readings as JSON and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: inverter-poller [-once] [-list-maps] <config.yaml>")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *listMaps {
		if err := printMaps(); err != nil {
			log.Fatal().Err(err).Msg("register maps failed to load")
		}
		return
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	cfgPath := flag.Arg(0)

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	if level, err := zerolog.ParseLevel(cfg.Poller.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Build per-device coordinators
	// --------------------

	coords := make([]*coordinator.Coordinator, 0, len(cfg.Poller.Devices))
	for _, d := range cfg.Poller.Devices {
		c, err := build(d, log)
		if err != nil {
			log.Fatal().Err(err).Str("device", d.ID).Msg("device build failed")
		}
		coords = append(coords, c)
	}

	if *once {
		code := pollOnce(ctx, coords, log)
		stop()
		os.Exit(code)
	}

	// --------------------
	// Consumers
	// --------------------

	exporter := metrics.New()

	var bridge *mqttbridge.Bridge
	if cfg.Poller.MQTT.Broker != "" {
		setters := make([]mqttbridge.Setter, 0, len(coords))
		for _, c := range coords {
			setters = append(setters, c)
		}
		bridge, err = mqttbridge.Dial(cfg.Poller.MQTT, setters, log)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect failed")
		}
		defer bridge.Close()
	}

	if cfg.Poller.HTTP.Listen != "" {
		devices := make([]api.Device, 0, len(coords))
		for _, c := range coords {
			devices = append(devices, c)
		}
		router := api.SetupRouter(chi.NewRouter(), devices, exporter.Handler(), log)
		go func() {
			if err := router.Start(ctx, cfg.Poller.HTTP.Listen); err != nil {
				log.Error().Err(err).Msg("http server stopped")
				stop()
			}
		}()
	}

	// --------------------
	// Run
	// --------------------

	var wg sync.WaitGroup
	for _, c := range coords {
		out := make(chan coordinator.Update)

		// coordinator producer
		wg.Add(1)
		go func(c *coordinator.Coordinator) {
			defer wg.Done()
			c.Run(ctx, out)
		}(c)

		// delivery
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case u := <-out:
					exporter.Observe(u)
					if bridge == nil {
						continue
					}
					if err := bridge.Publish(u); err != nil {
						log.Warn().Err(err).Str("device", id).Msg("mqtt publish failed")
					}
				}
			}
		}(c.DeviceID())
	}

	log.Info().Int("devices", len(coords)).Msg("polling started")
	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("stopped")
}

func build(d config.DeviceConfig, log zerolog.Logger) (*coordinator.Coordinator, error) {
	m, err := registermap.Lookup(d.RegisterMap)
	if err != nil {
		return nil, err
	}

	guard, err := transport.Build(d)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if d.Timezone != "" {
		if loc, err = time.LoadLocation(d.Timezone); err != nil {
			return nil, err
		}
	}

	return coordinator.New(coordinator.Config{
		DeviceID: d.ID,
		Map:      m,
		Interval: time.Duration(d.Poll.IntervalMs) * time.Millisecond,
		MaxSpan:  d.Poll.MaxSpan,
		MaxGap:   *d.Poll.MaxGap,
		Location: loc,
	}, guard, log)
}

// pollOnce runs one cycle per device and prints the readings.
// It returns a non-zero exit code if any device failed first contact.
func pollOnce(ctx context.Context, coords []*coordinator.Coordinator, log zerolog.Logger) int {
	type result struct {
		Status  any    `json:"status"`
		Reading any    `json:"reading,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	code := 0
	out := make(map[string]result, len(coords))

	for _, c := range coords {
		r, err := c.Poll(ctx)
		res := result{Status: c.Status()}
		if err != nil {
			code = 1
			res.Error = err.Error()
			if !errors.Is(err, coordinator.ErrFirstContact) {
				log.Error().Err(err).Str("device", c.DeviceID()).Msg("poll failed")
			}
		} else {
			res.Reading = r
		}
		out[c.DeviceID()] = res
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error().Err(err).Msg("encode failed")
		return 1
	}
	return code
}

func printMaps() error {
	maps, err := registermap.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tINPUT\tHOLDING\tDESCRIPTION")
	for _, m := range maps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", m.Key, m.Name, m.Input.Len(), m.Holding.Len(), m.Description)
	}
	return w.Flush()
}
