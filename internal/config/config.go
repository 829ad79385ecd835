// Package config loads the lessonboard TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"LessonBoard/internal/state"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server      ServerConfig      `toml:"server"`
	Participant ParticipantConfig `toml:"participant"`
	Sync        SyncConfig        `toml:"sync"`
	Log         LogConfig         `toml:"log"`
}

type ServerConfig struct {
	Addr      string `toml:"addr"`
	Database  string `toml:"database"`
	Advertise bool   `toml:"advertise"`
	Instance  string `toml:"instance"`
}

type ParticipantConfig struct {
	ID        string `toml:"id"`
	Room      string `toml:"room"`
	DataDir   string `toml:"data_dir"`
	ServerURL string `toml:"server_url"`
}

type SyncConfig struct {
	DeltaInterval     time.Duration `toml:"delta_interval"`
	AutosaveInterval  time.Duration `toml:"autosave_interval"`
	ReconnectInterval time.Duration `toml:"reconnect_interval"`
	HydrateTimeout    time.Duration `toml:"hydrate_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     ":8888",
			Database: "lessonboard.sqlite3",
		},
		Participant: ParticipantConfig{
			Room:      "default",
			DataDir:   ".lessonboard",
			ServerURL: "http://127.0.0.1:8888",
		},
		Sync: SyncConfig{
			DeltaInterval:     state.DefaultDeltaInterval,
			AutosaveInterval:  10 * time.Second,
			ReconnectInterval: 2 * time.Second,
			HydrateTimeout:    10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults. A participant without an id gets a generated one.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return Config{}, fmt.Errorf("%w: %s: unknown key %s", ErrInvalid, path, undecoded[0])
			}
		}
	}
	if cfg.Participant.ID == "" {
		cfg.Participant.ID = state.NewParticipantID()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Participant.Room == "" || strings.Contains(c.Participant.Room, "/") {
		problems = append(problems, fmt.Sprintf("participant.room %q must be non-empty and contain no slash", c.Participant.Room))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"sync.delta_interval", c.Sync.DeltaInterval},
		{"sync.autosave_interval", c.Sync.AutosaveInterval},
		{"sync.reconnect_interval", c.Sync.ReconnectInterval},
		{"sync.hydrate_timeout", c.Sync.HydrateTimeout},
	} {
		if d.value <= 0 {
			problems = append(problems, d.name+" must be positive")
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger writing to w.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
