package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/reptile-core/internal/core"
	"github.com/sweeney/reptile-core/internal/mqtt"
	"github.com/sweeney/reptile-core/internal/status"
)

// pruneEvery is the minimum gap between history prunes.
const pruneEvery = time.Hour

// historyPruner deletes stored snapshots older than a cutoff.
type historyPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// daemon ties the orchestrator to process signals, the console and the
// periodic heartbeat.
type daemon struct {
	orch       *core.Orchestrator
	client     *core.Client
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	configPath string
	history    historyPruner // nil disables retention
	retention  time.Duration
	lastPrune  time.Time
	logger     *slog.Logger
	now        func() time.Time
	out        io.Writer
}

// runLoop starts the orchestrator and serves signals, console lines and
// heartbeats until SIGINT or SIGTERM. SIGHUP reloads the configuration.
// lines and heartbeat may be nil.
func (d *daemon) runLoop(sig <-chan os.Signal, lines <-chan string, heartbeat <-chan time.Time) error {
	runErr := make(chan error, 1)
	go func() {
		runErr <- d.orch.Run(d.client.Commands(), d.client.Responses())
	}()

	for {
		select {
		case err := <-runErr:
			return err

		case s := <-sig:
			if s == syscall.SIGHUP {
				d.reload()
				continue
			}
			d.logger.Info("shutting down", "signal", s.String())
			d.publishEvent("SHUTDOWN", signalName(s), true)
			d.client.Close()
			return <-runErr

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			d.console(line)

		case <-heartbeat:
			d.refreshStatus()
			d.publishEvent("HEARTBEAT", "", false)
			d.pruneHistory()
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGHUP:
		return "SIGHUP"
	default:
		return "UNKNOWN"
	}
}

// reload re-reads the configuration file and its default profile. A failed
// reload keeps the running configuration.
func (d *daemon) reload() {
	if err := d.client.OpenConfig(d.configPath); err != nil {
		d.logger.Error("config reload failed", "path", d.configPath, "error", err)
		return
	}
	cfg := d.orch.Configuration()
	d.tracker.SetInterval(cfg.Interval())
	d.logger.Info("config reloaded",
		"path", d.configPath,
		"interval", cfg.Interval(),
		"profile", d.orch.Profile().Name)
	d.publishEvent("RELOAD", "SIGHUP", false)
}

// pruneHistory drops snapshots older than the retention window, at most once
// per pruneEvery.
func (d *daemon) pruneHistory() {
	if d.history == nil || d.retention <= 0 {
		return
	}
	now := d.now()
	if !d.lastPrune.IsZero() && now.Sub(d.lastPrune) < pruneEvery {
		return
	}
	d.lastPrune = now

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := d.history.Prune(ctx, now.Add(-d.retention))
	if err != nil {
		d.logger.Warn("history prune failed", "error", err)
		return
	}
	if n > 0 {
		d.logger.Info("history pruned", "rows", n, "retention", d.retention)
	}
}

func (d *daemon) refreshStatus() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
}

func (d *daemon) publishEvent(event, reason string, retained bool) {
	d.refreshStatus()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.logger.Warn("failed to publish system event", "event", event, "error", err)
	}
}

// console runs one console line against the orchestrator and prints the result.
func (d *daemon) console(line string) {
	cmd, err := parseConsole(line)
	if err != nil {
		fmt.Fprintln(d.out, err)
		return
	}
	if cmd.Kind == 0 {
		return
	}

	resp, err := d.client.Do(cmd)
	if err != nil {
		fmt.Fprintf(d.out, "%s: error: %v\n", cmd.Kind, err)
		return
	}
	switch cmd.Kind {
	case core.GetTemperature:
		fmt.Fprintf(d.out, "temperature: %d\n", resp.Value)
	case core.GetHumidity:
		fmt.Fprintf(d.out, "humidity: %d\n", resp.Value)
	case core.GetConditions:
		c := resp.Conditions
		if c.Timestamp.IsZero() {
			fmt.Fprintln(d.out, "conditions: no measurement yet")
			return
		}
		fmt.Fprintf(d.out, "conditions: temperature=%d humidity=%d light=%s at=%s\n",
			c.Temperature, c.Humidity, onOff(c.LightOn), c.Timestamp.UTC().Format(time.RFC3339))
	case core.OpenConfig:
		d.tracker.SetInterval(d.orch.Configuration().Interval())
		fmt.Fprintf(d.out, "config loaded, profile %q\n", d.orch.Profile().Name)
	case core.OpenProfile:
		fmt.Fprintf(d.out, "profile %q active\n", d.orch.Profile().Name)
	case core.SaveProfile:
		fmt.Fprintf(d.out, "profile saved to %s\n", cmd.Path)
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
