// Package history records conditions snapshots and profile changes in SQLite
// so the status page can show recent trends without an external database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/sweeney/reptile-core/internal/conditions"
	"github.com/sweeney/reptile-core/internal/profile"
)

const (
	dirPermissions = 0o750
	msPerSecond    = 1000
	writeTimeout   = 2 * time.Second
	openTimeout    = 5 * time.Second

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

const schema = `
CREATE TABLE IF NOT EXISTS conditions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	temperature INTEGER NOT NULL,
	humidity    INTEGER NOT NULL,
	light_on    INTEGER NOT NULL,
	profile     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conditions_ts ON conditions(ts);
CREATE TABLE IF NOT EXISTS profile_changes (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        INTEGER NOT NULL,
	name      TEXT    NOT NULL,
	temp_min  INTEGER NOT NULL,
	temp_max  INTEGER NOT NULL,
	hum_min   INTEGER NOT NULL,
	hum_max   INTEGER NOT NULL,
	light_on  TEXT    NOT NULL,
	light_off TEXT    NOT NULL
);`

// Config contains SQLite settings.
type Config struct {
	Path        string
	BusyTimeout int // seconds
}

// Record is one stored snapshot and the profile active when it was taken.
type Record struct {
	conditions.Snapshot
	Profile string
}

// ProfileChange is one stored profile activation.
type ProfileChange struct {
	At      time.Time
	Profile profile.Profile
}

// Recorder is a regulator that writes every new snapshot and profile to SQLite.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	profile string
	last    time.Time
}

// Open opens (creating if needed) the database at cfg.Path and ensures the schema.
func Open(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*msPerSecond)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite has one writer, and an in-memory database lives only as long
	// as its single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Recorder{
		db:     db,
		logger: logger.With("regulator", "history"),
		now:    time.Now,
	}, nil
}

// ProfileChanged stores the new profile and tags later snapshots with its name.
func (r *Recorder) ProfileChanged(p profile.Profile) {
	r.mu.Lock()
	r.profile = p.Name
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profile_changes (ts, name, temp_min, temp_max, hum_min, hum_max, light_on, light_off)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.now().UnixMilli(), p.Name, p.Temps.Min, p.Temps.Max, p.Humidity.Min, p.Humidity.Max,
		p.Light.On.String(), p.Light.Off.String())
	if err != nil {
		r.logger.Warn("record profile failed", "profile", p.Name, "error", err)
	}
}

// Tick stores snap unless it is empty or already stored.
func (r *Recorder) Tick(snap conditions.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Timestamp.IsZero() || snap.Timestamp.Equal(r.last) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conditions (ts, temperature, humidity, light_on, profile) VALUES (?, ?, ?, ?, ?)`,
		snap.Timestamp.UnixMilli(), snap.Temperature, snap.Humidity, snap.LightOn, r.profile)
	if err != nil {
		r.logger.Warn("record conditions failed", "error", err)
		return
	}
	r.last = snap.Timestamp
}

// Recent returns up to n stored snapshots, newest first.
func (r *Recorder) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, temperature, humidity, light_on, profile FROM conditions ORDER BY ts DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec Record
			ts  int64
		)
		if err := rows.Scan(&ts, &rec.Temperature, &rec.Humidity, &rec.LightOn, &rec.Profile); err != nil {
			return nil, fmt.Errorf("scanning conditions: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conditions: %w", err)
	}
	return out, nil
}

// Profiles returns up to n stored profile changes, newest first.
func (r *Recorder) Profiles(ctx context.Context, n int) ([]ProfileChange, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, name, temp_min, temp_max, hum_min, hum_max, light_on, light_off
		 FROM profile_changes ORDER BY ts DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying profile changes: %w", err)
	}
	defer rows.Close()

	var out []ProfileChange
	for rows.Next() {
		var (
			pc      ProfileChange
			ts      int64
			on, off string
		)
		p := &pc.Profile
		if err := rows.Scan(&ts, &p.Name, &p.Temps.Min, &p.Temps.Max, &p.Humidity.Min, &p.Humidity.Max, &on, &off); err != nil {
			return nil, fmt.Errorf("scanning profile change: %w", err)
		}
		if p.Light.On, err = profile.ParseClock(on); err != nil {
			return nil, fmt.Errorf("profile change light on: %w", err)
		}
		if p.Light.Off, err = profile.ParseClock(off); err != nil {
			return nil, fmt.Errorf("profile change light off: %w", err)
		}
		pc.At = time.UnixMilli(ts).UTC()
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profile changes: %w", err)
	}
	return out, nil
}

// Prune deletes snapshots older than before and reports how many were removed.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conditions WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning conditions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (r *Recorder) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
