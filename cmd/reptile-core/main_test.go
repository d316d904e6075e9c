package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/config"
	"github.com/sweeney/reptile-core/internal/core"
	"github.com/sweeney/reptile-core/internal/history"
	"github.com/sweeney/reptile-core/internal/mqtt"
	"github.com/sweeney/reptile-core/internal/profile"
	"github.com/sweeney/reptile-core/internal/sensor"
	"github.com/sweeney/reptile-core/internal/settings"
	"github.com/sweeney/reptile-core/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Vivarium")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Vivarium",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "ethernet")
	t.Setenv(envNetworkIP, "10.0.0.5")
	t.Setenv(envNetworkGateway, "")
	t.Setenv(envNetworkWifiStatus, "")
	t.Setenv(envNetworkWifiSSID, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.Type != "ethernet" || info.IP != "10.0.0.5" {
		t.Errorf("got %+v", info)
	}
	if info.SSID != "" || info.Gateway != "" {
		t.Errorf("expected empty optional fields, got %+v", info)
	}
}

func TestParseConsole(t *testing.T) {
	tests := []struct {
		line    string
		want    core.Command
		wantErr string
	}{
		{"", core.Command{}, ""},
		{"   ", core.Command{}, ""},
		{"temp", core.Command{Kind: core.GetTemperature}, ""},
		{"TEMPERATURE", core.Command{Kind: core.GetTemperature}, ""},
		{"humidity", core.Command{Kind: core.GetHumidity}, ""},
		{"conditions", core.Command{Kind: core.GetConditions}, ""},
		{"profile gecko.toml", core.Command{Kind: core.OpenProfile, Path: "gecko.toml"}, ""},
		{"  open  /etc/reptile/my gecko.toml ", core.Command{Kind: core.OpenProfile, Path: "/etc/reptile/my gecko.toml"}, ""},
		{"config other.toml", core.Command{Kind: core.OpenConfig, Path: "other.toml"}, ""},
		{"save out.toml", core.Command{Kind: core.SaveProfile, Path: "out.toml"}, ""},
		{"profile", core.Command{}, "missing path"},
		{"temp now", core.Command{}, "takes no arguments"},
		{"feed", core.Command{}, "unknown command"},
		{"help", core.Command{}, "commands:"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseConsole(tt.line)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err: got %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadSettingsDefault(t *testing.T) {
	s, err := loadSettings("")
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.MQTT.Broker != settings.Default().MQTT.Broker {
		t.Errorf("Broker: got %q", s.MQTT.Broker)
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := loadSettings(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing settings file")
	}
}

func TestCloserRunsInReverseOrder(t *testing.T) {
	var order []string
	c := &closer{logger: discardLogger()}
	c.add("first", func() error { order = append(order, "first"); return nil })
	c.add("second", func() error { order = append(order, "second"); return errors.New("boom") })
	c.add("third", func() error { order = append(order, "third"); return nil })
	c.close()

	if got := strings.Join(order, ","); got != "third,second,first" {
		t.Errorf("order: got %s", got)
	}
}

func TestOpenRelaysSimulate(t *testing.T) {
	g := settings.Default().GPIO
	g.Mister = -1
	relays, err := openRelays(g, true, &closer{logger: discardLogger()})
	if err != nil {
		t.Fatalf("openRelays: %v", err)
	}
	if len(relays) != 2 {
		t.Fatalf("relays: got %d, want 2", len(relays))
	}
	if _, ok := relays["mister"]; ok {
		t.Error("disabled mister pin should not get a relay")
	}
}

func TestOpenRelaysGPIODisabled(t *testing.T) {
	g := settings.Default().GPIO
	g.Enabled = false
	relays, err := openRelays(g, false, &closer{logger: discardLogger()})
	if err != nil {
		t.Fatalf("openRelays: %v", err)
	}
	if len(relays) != 0 {
		t.Errorf("expected no relays with gpio disabled, got %d", len(relays))
	}
}

func TestPrintConditions(t *testing.T) {
	orch := core.New(config.Configuration{TimeDelay: 60}, profile.Default(), conditions.NewStore(),
		core.WithLogger(discardLogger()),
		core.WithClock(func() time.Time { return time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC) }))
	orch.RegisterSensor(sensor.Fixed{M: core.Measurement{Temperature: 28, Humidity: 44}})

	var buf bytes.Buffer
	if err := printConditions(orch, false, &buf); err != nil {
		t.Fatalf("printConditions: %v", err)
	}
	want := "Temperature: 28, Humidity: 44, Light: ON, Profile: Default Reptile\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintConditionsNoReadings(t *testing.T) {
	orch := core.New(config.Configuration{TimeDelay: 60}, profile.Default(), conditions.NewStore(),
		core.WithLogger(discardLogger()))

	var buf bytes.Buffer
	if err := printConditions(orch, false, &buf); err == nil {
		t.Error("expected error with no sensors")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

// --- runLoop ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeEnclosure writes a profile and a configuration pointing at it and
// returns the configuration path. The interval is long enough that the
// orchestrator's own ticker never fires during a test.
func writeEnclosure(t *testing.T, dir string, p profile.Profile, delay int) string {
	t.Helper()
	profilePath := filepath.Join(dir, "profile.toml")
	if err := profile.Save(profilePath, p); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf("time_delay = %d\ndefault_profile = \"profile.toml\"\n", delay)
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

type testDaemon struct {
	*daemon
	pub *mqtt.FakePublisher
	out *bytes.Buffer
}

func newTestDaemon(t *testing.T, cfgPath string) *testDaemon {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	p, err := profile.Load(cfg.ProfilePath())
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	return newTestDaemonWith(t, cfg, p, cfgPath)
}

func newTestDaemonWith(t *testing.T, cfg config.Configuration, p profile.Profile, cfgPath string) *testDaemon {
	t.Helper()
	logger := discardLogger()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return start }

	orch := core.New(cfg, p, conditions.NewStore(), core.WithLogger(logger), core.WithClock(clock))
	orch.RegisterSensor(sensor.Fixed{M: core.Measurement{Temperature: 28, Humidity: 55}})

	tracker := status.NewTracker(start, status.Config{Interval: cfg.Interval(), ConfigPath: cfgPath})
	orch.RegisterRegulator(tracker)

	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	out := &bytes.Buffer{}

	return &testDaemon{
		daemon: &daemon{
			orch:       orch,
			client:     core.NewClient(time.Second),
			publisher:  pub,
			mqttStatus: pub,
			tracker:    tracker,
			configPath: cfgPath,
			logger:     logger,
			now:        clock,
			out:        out,
		},
		pub: pub,
		out: out,
	}
}

func runWithSignals(t *testing.T, d *testDaemon, sigs ...os.Signal) error {
	t.Helper()
	sig := make(chan os.Signal, len(sigs))
	for _, s := range sigs {
		sig <- s
	}
	done := make(chan error, 1)
	go func() { done <- d.runLoop(sig, nil, nil) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func events(pub *mqtt.FakePublisher) []string {
	_, _, n := pub.Counts()
	out := make([]string, 0, n)
	for _, ev := range pub.SystemEvents {
		out = append(out, ev.Event)
	}
	return out
}

func TestRunLoopShutdown(t *testing.T) {
	for _, tc := range []struct {
		sig    os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	} {
		t.Run(tc.reason, func(t *testing.T) {
			d := newTestDaemon(t, writeEnclosure(t, t.TempDir(), profile.Default(), 3600))
			if err := runWithSignals(t, d, tc.sig); err != nil {
				t.Fatalf("runLoop: %v", err)
			}

			if got := events(d.pub); len(got) != 1 || got[0] != "SHUTDOWN" {
				t.Fatalf("events: got %v, want [SHUTDOWN]", got)
			}
			ev := d.pub.SystemEvents[0]
			if ev.Reason != tc.reason || !ev.Retained {
				t.Errorf("event: got reason=%q retained=%v", ev.Reason, ev.Retained)
			}
			if !strings.Contains(string(ev.RawPayload), `"event":"SHUTDOWN"`) {
				t.Errorf("payload: %s", ev.RawPayload)
			}
			if !strings.Contains(string(ev.RawPayload), `"connected":true`) {
				t.Errorf("payload should carry MQTT state: %s", ev.RawPayload)
			}
		})
	}
}

func TestRunLoopShutdownPublishError(t *testing.T) {
	d := newTestDaemon(t, writeEnclosure(t, t.TempDir(), profile.Default(), 3600))
	d.pub.PublishSystemError = errors.New("broker gone")

	if err := runWithSignals(t, d, syscall.SIGTERM); err != nil {
		t.Errorf("publish failure should not fail shutdown: %v", err)
	}
}

func TestRunLoopSIGHUPReloadsConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeEnclosure(t, dir, profile.Default(), 3600)
	d := newTestDaemon(t, cfgPath)

	gecko := profile.Default()
	gecko.Name = "Leopard Gecko"
	gecko.Temps = profile.Range{Min: 26, Max: 32}
	writeEnclosure(t, dir, gecko, 1800)

	if err := runWithSignals(t, d, syscall.SIGHUP, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if got := d.orch.Profile().Name; got != "Leopard Gecko" {
		t.Errorf("profile after reload: got %q", got)
	}
	if got := d.orch.Configuration().Interval(); got != 30*time.Minute {
		t.Errorf("interval after reload: got %v", got)
	}
	snap := d.tracker.Snapshot()
	if snap.Config.Interval != 30*time.Minute {
		t.Errorf("tracker interval: got %v", snap.Config.Interval)
	}
	if snap.Profile.Name != "Leopard Gecko" {
		t.Errorf("tracker profile: got %q", snap.Profile.Name)
	}
	if got := strings.Join(events(d.pub), ","); got != "RELOAD,SHUTDOWN" {
		t.Errorf("events: got %s", got)
	}
	if d.pub.SystemEvents[0].Retained {
		t.Error("RELOAD should not be retained")
	}
}

func TestRunLoopSIGHUPBadConfigKeepsRunning(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeEnclosure(t, dir, profile.Default(), 3600)
	d := newTestDaemon(t, cfgPath)

	if err := os.WriteFile(cfgPath, []byte("time_delay = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runWithSignals(t, d, syscall.SIGHUP, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if got := d.orch.Configuration().Interval(); got != time.Hour {
		t.Errorf("interval should be unchanged, got %v", got)
	}
	if got := strings.Join(events(d.pub), ","); got != "SHUTDOWN" {
		t.Errorf("events: got %s", got)
	}
}

func TestRunLoopReturnsRunError(t *testing.T) {
	d := newTestDaemonWith(t, config.Configuration{}, profile.Default(), "config.toml")

	err := d.runLoop(make(chan os.Signal), nil, nil)
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err: got %v, want ErrInvalid", err)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	d := newTestDaemon(t, writeEnclosure(t, t.TempDir(), profile.Default(), 3600))
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")

	sig := make(chan os.Signal)
	heartbeat := make(chan time.Time)
	go func() {
		heartbeat <- time.Now()
		sig <- syscall.SIGTERM
	}()
	if err := d.runLoop(sig, nil, heartbeat); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if got := strings.Join(events(d.pub), ","); got != "HEARTBEAT,SHUTDOWN" {
		t.Fatalf("events: got %s", got)
	}
	hb := d.pub.SystemEvents[0]
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
	if !strings.Contains(string(hb.RawPayload), `"10.0.0.7"`) {
		t.Errorf("heartbeat should include network info: %s", hb.RawPayload)
	}
	if !d.tracker.Snapshot().MQTTConnected {
		t.Error("heartbeat should refresh MQTT state")
	}
}

func TestRunLoopHeartbeatPrunesHistory(t *testing.T) {
	d := newTestDaemon(t, writeEnclosure(t, t.TempDir(), profile.Default(), 3600))
	rec, err := history.Open(history.Config{Path: history.MemoryPath}, discardLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer rec.Close()

	now := d.now()
	rec.Tick(conditions.Snapshot{Temperature: 24, Humidity: 50, Timestamp: now.Add(-40 * 24 * time.Hour)})
	rec.Tick(conditions.Snapshot{Temperature: 27, Humidity: 55, Timestamp: now.Add(-time.Hour)})
	d.history = rec
	d.retention = 30 * 24 * time.Hour

	sig := make(chan os.Signal)
	heartbeat := make(chan time.Time)
	go func() {
		heartbeat <- now
		sig <- syscall.SIGTERM
	}()
	if err := d.runLoop(sig, nil, heartbeat); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	recs, err := rec.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 || recs[0].Temperature != 27 {
		t.Errorf("expected only the recent row to survive, got %+v", recs)
	}
}

type countingPruner struct {
	calls   int
	befores []time.Time
	err     error
}

func (p *countingPruner) Prune(ctx context.Context, before time.Time) (int64, error) {
	p.calls++
	p.befores = append(p.befores, before)
	return 0, p.err
}

func TestPruneHistoryAtMostHourly(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &countingPruner{}
	d := &daemon{
		history:   p,
		retention: 24 * time.Hour,
		logger:    discardLogger(),
		now:       func() time.Time { return now },
	}

	d.pruneHistory()
	now = now.Add(30 * time.Minute)
	d.pruneHistory()
	now = now.Add(30 * time.Minute)
	d.pruneHistory()

	if p.calls != 2 {
		t.Fatalf("Prune calls: got %d, want 2", p.calls)
	}
	if want := now.Add(-24 * time.Hour); !p.befores[1].Equal(want) {
		t.Errorf("cutoff: got %v, want %v", p.befores[1], want)
	}
}

func TestPruneHistoryDisabled(t *testing.T) {
	p := &countingPruner{}
	d := &daemon{history: p, logger: discardLogger(), now: time.Now}
	d.pruneHistory()
	if p.calls != 0 {
		t.Errorf("zero retention should not prune, got %d calls", p.calls)
	}
}

func TestPruneHistoryErrorIsLogged(t *testing.T) {
	p := &countingPruner{err: errors.New("database is locked")}
	d := &daemon{history: p, retention: time.Hour, logger: discardLogger(), now: time.Now}
	d.pruneHistory()
	if p.calls != 1 {
		t.Errorf("Prune calls: got %d", p.calls)
	}
}

func TestLoadSettingsDefaultAppliesEnv(t *testing.T) {
	t.Setenv("REPTILE_MQTT_BROKER", "tcp://env-broker:1883")
	s, err := loadSettings("")
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.MQTT.Broker != "tcp://env-broker:1883" {
		t.Errorf("Broker: got %q", s.MQTT.Broker)
	}
}

func TestRunLoopConsole(t *testing.T) {
	dir := t.TempDir()
	d := newTestDaemon(t, writeEnclosure(t, dir, profile.Default(), 3600))
	d.orch.Tick()

	gecko := profile.Default()
	gecko.Name = "Leopard Gecko"
	geckoPath := filepath.Join(dir, "gecko.toml")
	if err := profile.Save(geckoPath, gecko); err != nil {
		t.Fatal(err)
	}
	savedPath := filepath.Join(dir, "saved.toml")

	input := []string{
		"temp",
		"humidity",
		"conditions",
		"",
		"feed",
		"profile " + filepath.Join(dir, "missing.toml"),
		"profile " + geckoPath,
		"save " + savedPath,
	}

	sig := make(chan os.Signal)
	lines := make(chan string)
	go func() {
		for _, l := range input {
			lines <- l
		}
		close(lines)
		sig <- syscall.SIGTERM
	}()
	if err := d.runLoop(sig, lines, nil); err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	out := d.out.String()
	for _, want := range []string{
		"temperature: 28\n",
		"humidity: 55\n",
		"conditions: temperature=28 humidity=55 light=ON at=2026-01-01T09:00:00Z\n",
		`unknown command "feed"`,
		"OPEN_PROFILE: error:",
		`profile "Leopard Gecko" active`,
		"profile saved to " + savedPath,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}

	saved, err := profile.Load(savedPath)
	if err != nil {
		t.Fatalf("load saved profile: %v", err)
	}
	if saved.Name != "Leopard Gecko" {
		t.Errorf("saved profile: got %q", saved.Name)
	}
}

func TestRunLoopConsoleBeforeFirstMeasurement(t *testing.T) {
	d := newTestDaemon(t, writeEnclosure(t, t.TempDir(), profile.Default(), 3600))

	sig := make(chan os.Signal)
	lines := make(chan string)
	go func() {
		lines <- "conditions"
		sig <- syscall.SIGTERM
	}()
	if err := d.runLoop(sig, lines, nil); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if !strings.Contains(d.out.String(), "no measurement yet") {
		t.Errorf("output: %q", d.out.String())
	}
}

func TestReadLines(t *testing.T) {
	ch := readLines(strings.NewReader("temp\nprofile a.toml\n"))
	var got []string
	for l := range ch {
		got = append(got, l)
	}
	if strings.Join(got, "|") != "temp|profile a.toml" {
		t.Errorf("got %q", got)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGUSR1); got != "UNKNOWN" {
		t.Errorf("got %q", got)
	}
}
