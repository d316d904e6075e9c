package core

import (
	"fmt"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/config"
	"github.com/sweeney/reptile-core/internal/profile"
)

// Kind identifies a command.
type Kind int

const (
	GetTemperature Kind = iota + 1
	GetHumidity
	OpenProfile
	OpenConfig
	GetConditions
	SaveProfile
)

func (k Kind) String() string {
	switch k {
	case GetTemperature:
		return "GET_TEMPERATURE"
	case GetHumidity:
		return "GET_HUMIDITY"
	case OpenProfile:
		return "OPEN_PROFILE"
	case OpenConfig:
		return "OPEN_CONFIG"
	case GetConditions:
		return "GET_CONDITIONS"
	case SaveProfile:
		return "SAVE_PROFILE"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// Command is a request to the Orchestrator.
// Path is used by OpenProfile, OpenConfig and SaveProfile.
type Command struct {
	ID   uint64
	Kind Kind
	Path string
}

// Response answers a Command with the same ID.
type Response struct {
	ID         uint64
	Kind       Kind
	Value      int                 // GetTemperature, GetHumidity
	Conditions conditions.Snapshot // GetConditions
	Err        error               // nil means Ok
}

// handle executes one command. ok is false for kinds that get no response.
func (o *Orchestrator) handle(cmd Command, ticker Ticker) (resp Response, ok bool) {
	resp = Response{ID: cmd.ID, Kind: cmd.Kind}

	switch cmd.Kind {
	case GetTemperature:
		resp.Value = o.store.Snapshot().Temperature
	case GetHumidity:
		resp.Value = o.store.Snapshot().Humidity
	case GetConditions:
		resp.Conditions = o.store.Snapshot()
	case OpenProfile:
		resp.Err = o.openProfile(cmd.Path)
	case OpenConfig:
		resp.Err = o.openConfig(cmd.Path, ticker)
	case SaveProfile:
		resp.Err = profile.Save(cmd.Path, o.Profile())
	default:
		return Response{}, false
	}

	if resp.Err != nil {
		o.logger.Warn("command failed", "kind", cmd.Kind, "path", cmd.Path, "error", resp.Err)
	}
	return resp, true
}

func (o *Orchestrator) openProfile(path string) error {
	p, err := profile.Load(path)
	if err != nil {
		return err
	}
	o.replace(nil, p)
	o.logger.Info("profile loaded", "path", path, "name", p.Name)
	return nil
}

// openConfig replaces configuration and profile together, or neither.
func (o *Orchestrator) openConfig(path string, ticker Ticker) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	p, err := profile.Load(cfg.ProfilePath())
	if err != nil {
		return fmt.Errorf("config %s: default profile: %w", path, err)
	}

	old := o.Configuration().Interval()
	o.replace(&cfg, p)
	if ticker != nil && cfg.Interval() != old {
		ticker.Reset(cfg.Interval())
	}
	o.logger.Info("configuration loaded", "path", path, "interval", cfg.Interval(), "profile", p.Name)
	return nil
}

// reply delivers resp, dropping it if nobody takes it within the reply timeout.
func (o *Orchestrator) reply(out chan<- Response, resp Response) {
	if out == nil {
		return
	}
	timer := time.NewTimer(o.replyTimeout)
	defer timer.Stop()

	select {
	case out <- resp:
	case <-timer.C:
		o.logger.Warn("dropping response, no reader", "kind", resp.Kind, "id", resp.ID)
	}
}
