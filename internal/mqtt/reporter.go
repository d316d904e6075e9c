package mqtt

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

// Reporter is a regulator that mirrors the enclosure to MQTT: every fresh
// snapshot on TopicConditions, every profile on TopicProfile.
type Reporter struct {
	pub    Publisher
	logger *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewReporter creates a Reporter. A nil logger means slog.Default().
func NewReporter(pub Publisher, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{pub: pub, logger: logger.With("regulator", "mqtt")}
}

// ProfileChanged publishes the new profile.
func (r *Reporter) ProfileChanged(p profile.Profile) {
	if err := r.pub.PublishProfile(p); err != nil {
		r.logger.Warn("publish profile failed", "profile", p.Name, "error", err)
	}
}

// Tick publishes snap unless it was already published or nothing has been
// measured yet. A held snapshot after a missed tick is not republished.
func (r *Reporter) Tick(snap conditions.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Timestamp.IsZero() || snap.Timestamp.Equal(r.last) {
		return
	}
	if err := r.pub.PublishConditions(snap); err != nil {
		r.logger.Warn("publish conditions failed", "error", err)
		return
	}
	r.last = snap.Timestamp
}
