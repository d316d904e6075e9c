// Command reptile-core samples enclosure sensors, drives heater, light and
// mister relays to the active profile, and reports conditions over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/config"
	"github.com/sweeney/reptile-core/internal/core"
	"github.com/sweeney/reptile-core/internal/gpio"
	"github.com/sweeney/reptile-core/internal/history"
	"github.com/sweeney/reptile-core/internal/influx"
	"github.com/sweeney/reptile-core/internal/logging"
	"github.com/sweeney/reptile-core/internal/mqtt"
	"github.com/sweeney/reptile-core/internal/profile"
	"github.com/sweeney/reptile-core/internal/regulator"
	"github.com/sweeney/reptile-core/internal/sensor"
	"github.com/sweeney/reptile-core/internal/settings"
	"github.com/sweeney/reptile-core/internal/status"
	"github.com/sweeney/reptile-core/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	statusRefresh = 30 * time.Second
	printWait     = 5 * time.Second
)

// simulated is the reading served by -simulate.
var simulated = core.Measurement{Temperature: 28, Humidity: 50}

type options struct {
	settingsPath    string
	configPath      string
	printConditions bool
	simulate        bool
	console         bool
}

func main() {
	var o options
	flag.StringVar(&o.settingsPath, "settings", "", "daemon settings YAML (empty for built-in defaults)")
	flag.StringVar(&o.configPath, "config", config.DefaultPath, "enclosure configuration TOML")
	flag.BoolVar(&o.printConditions, "print-conditions", false, "Sample sensors once, print conditions and exit")
	flag.BoolVar(&o.simulate, "simulate", false, "Use a fixed sensor and in-memory relays and MQTT")
	flag.BoolVar(&o.console, "console", false, "Read commands from stdin")
	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func loadSettings(path string) (settings.Settings, error) {
	if path == "" {
		return settings.FromEnv()
	}
	return settings.Load(path)
}

// closer collects cleanup functions and runs them in reverse order.
type closer struct {
	fns    []func() error
	logger *slog.Logger
}

func (c *closer) add(name string, fn func() error) {
	c.fns = append(c.fns, func() error {
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

func (c *closer) close() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			c.logger.Warn("cleanup failed", "error", err)
		}
	}
}

func run(o options) error {
	s, err := loadSettings(o.settingsPath)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	logger := logging.New(s.Logging, version)
	slog.SetDefault(logger)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	p, err := profile.Load(cfg.ProfilePath())
	if err != nil {
		return fmt.Errorf("default profile: %w", err)
	}

	instanceID := uuid.NewString()
	logger = logger.With("instance", instanceID)
	cleanup := &closer{logger: logger}
	defer cleanup.close()

	// MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.Subscriber
		mqtt.ConnectionStatus
	}
	if o.simulate {
		publisher = newSimulatedBroker()
	} else {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:    s.MQTT.Broker,
			ClientID:  s.MQTT.ClientID + "-" + instanceID[:8],
			Username:  s.MQTT.Username,
			Password:  s.MQTT.Password,
			BufferLen: s.MQTT.BufferLen,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = rp
	}
	cleanup.add("mqtt", publisher.Close)

	store := conditions.NewStore()
	orch := core.New(cfg, p, store, core.WithLogger(logger))

	// Sensors
	var sensorNames []string
	if o.simulate {
		orch.RegisterSensor(sensor.Fixed{M: simulated})
		sensorNames = append(sensorNames, "simulated")
	} else {
		for _, sc := range s.Sensors {
			sn, err := sensor.NewMQTTSensor(publisher, sc.Name, sc.Topic, sc.MaxAge, logger)
			if err != nil {
				return fmt.Errorf("init sensor: %w", err)
			}
			orch.RegisterSensor(sn)
			sensorNames = append(sensorNames, sc.Name)
		}
	}
	if len(sensorNames) == 0 {
		logger.Warn("no sensors configured, conditions will never update")
	}

	if o.printConditions {
		return printConditions(orch, len(s.Sensors) > 0 && !o.simulate, os.Stdout)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Interval:   cfg.Interval(),
		ConfigPath: o.configPath,
		Broker:     s.MQTT.Broker,
		HTTPAddr:   s.HTTP.Addr,
		Sensors:    sensorNames,
		InstanceID: instanceID,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Relay regulators
	relays, err := openRelays(s.GPIO, o.simulate, cleanup)
	if err != nil {
		return err
	}
	regOpts := []regulator.Option{regulator.WithLogger(logger)}
	if r, ok := relays["heater"]; ok {
		h := regulator.NewHeater(r, regOpts...)
		orch.RegisterRegulator(h)
		tracker.AddRelay(h)
	}
	if r, ok := relays["light"]; ok {
		l := regulator.NewLight(r, regOpts...)
		orch.RegisterRegulator(l)
		tracker.AddRelay(l)
	}
	if r, ok := relays["mister"]; ok {
		m := regulator.NewMister(r, regOpts...)
		orch.RegisterRegulator(m)
		tracker.AddRelay(m)
	}

	orch.RegisterRegulator(tracker)
	orch.RegisterRegulator(mqtt.NewReporter(publisher, logger))

	// History
	var (
		hist   web.History
		pruner historyPruner
	)
	if s.History.Path != "" {
		rec, err := history.Open(history.Config{Path: s.History.Path, BusyTimeout: s.History.BusyTimeout}, logger)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		cleanup.add("history", rec.Close)
		orch.RegisterRegulator(rec)
		hist = rec
		if s.History.Retention > 0 {
			pruner = rec
		}
	}

	// InfluxDB is optional; a server that is down at startup is logged, not fatal.
	if s.Influx.Enabled {
		w, err := influx.Connect(influx.Config{
			URL:           s.Influx.URL,
			Token:         s.Influx.Token,
			Org:           s.Influx.Org,
			Bucket:        s.Influx.Bucket,
			BatchSize:     s.Influx.BatchSize,
			FlushInterval: s.Influx.FlushInterval,
			Enclosure:     s.MQTT.ClientID,
		}, logger)
		if err != nil {
			logger.Warn("influxdb disabled", "error", err)
		} else {
			cleanup.add("influxdb", w.Close)
			orch.RegisterRegulator(w)
		}
	}

	// HTTP status server
	if s.HTTP.Addr != "" {
		srv := web.New(s.HTTP.Addr, tracker, hist)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		cleanup.add("http", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		logger.Info("http status server listening", "addr", s.HTTP.Addr)
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(publisher.IsConnected())
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	}

	logger.Info("started",
		"config", o.configPath,
		"profile", p.Name,
		"interval", cfg.Interval(),
		"sensors", len(sensorNames),
		"relays", len(relays))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var lines <-chan string
	if o.console {
		lines = readLines(os.Stdin)
	}

	heartbeat := time.NewTicker(statusRefresh)
	defer heartbeat.Stop()

	d := &daemon{
		orch:       orch,
		client:     core.NewClient(2 * core.DefaultReplyTimeout),
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		configPath: o.configPath,
		history:    pruner,
		retention:  s.History.Retention,
		logger:     logger,
		now:        time.Now,
		out:        os.Stdout,
	}
	return d.runLoop(sigCh, lines, heartbeat.C)
}

// openRelays returns the configured relays by name. Without GPIO and without
// -simulate there are none and the daemon only monitors.
func openRelays(g settings.GPIOSettings, simulate bool, cleanup *closer) (map[string]gpio.Relay, error) {
	pins := map[string]int{"heater": g.Heater, "light": g.Light, "mister": g.Mister}
	relays := make(map[string]gpio.Relay)

	if simulate {
		for name, pin := range pins {
			if pin >= 0 {
				relays[name] = gpio.NewFakeRelay()
			}
		}
		return relays, nil
	}
	if !g.Enabled {
		return relays, nil
	}

	bank, err := gpio.NewBank(g.Chip, g.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	cleanup.add("gpio chip", bank.Close)

	for name, pin := range pins {
		if pin < 0 {
			continue
		}
		r, err := bank.Relay(pin)
		if err != nil {
			return nil, fmt.Errorf("init %s relay: %w", name, err)
		}
		cleanup.add(name+" relay", r.Close)
		relays[name] = r
	}
	return relays, nil
}

// printConditions samples once and prints the snapshot. MQTT sensors only
// hold a reading after their first message, so wait briefly for one.
func printConditions(orch *core.Orchestrator, waitForMQTT bool, w io.Writer) error {
	if waitForMQTT {
		time.Sleep(printWait)
	}
	orch.Tick()
	if orch.Store().MissedTicks() > 0 {
		return errors.New("no sensor produced a reading")
	}
	snap := orch.Store().Snapshot()
	light := "OFF"
	if snap.LightOn {
		light = "ON"
	}
	fmt.Fprintf(w, "Temperature: %d, Humidity: %d, Light: %s, Profile: %s\n",
		snap.Temperature, snap.Humidity, light, orch.Profile().Name)
	return nil
}

// newSimulatedBroker stands in for the broker under -simulate.
func newSimulatedBroker() *simulatedBroker {
	f := mqtt.NewFakePublisher()
	f.Connected = true
	return &simulatedBroker{FakePublisher: f, FakeSubscriber: mqtt.NewFakeSubscriber()}
}

type simulatedBroker struct {
	*mqtt.FakePublisher
	*mqtt.FakeSubscriber
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanLines(r, ch)
	}()
	return ch
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
