// Package config loads the handful of tunables spec.md §9 leaves as
// "policy, not guessed" — the tiny-geometry rescue thresholds and the
// per-tick ingest/drain caps — plus the frame metrics and desktop
// metadata the core needs but the spec leaves to configuration.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds every runtime tunable. The zero value is invalid;
// always start from Default().
type Config struct {
	// Tiny-geometry rescue (spec.md §4.F, §9).
	MinWidth      uint16 `toml:"min_width"`
	MinHeight     uint16 `toml:"min_height"`
	DefaultWidth  uint16 `toml:"default_width"`
	DefaultHeight uint16 `toml:"default_height"`

	// Per-tick caps (spec.md §4.C, §4.I, §9).
	MaxEventsPerTick  int `toml:"max_events_per_tick"`
	CookieDrainBudget int `toml:"cookie_drain_budget"`

	// Frame metrics for clients without CSD (spec.md §4.D).
	BorderWidth int32 `toml:"border_width"`
	TitleHeight int32 `toml:"title_height"`

	// RootPublisher desktop metadata (spec.md §4.H).
	NumberOfDesktops uint32   `toml:"number_of_desktops"`
	DesktopNames     []string `toml:"desktop_names"`

	// Display and logging, read by cmd/hxmwm.
	Display  string `toml:"display"`
	LogLevel string `toml:"log_level"`
}

// Default returns the documented defaults; a file-less run must behave
// identically to this.
func Default() Config {
	return Config{
		MinWidth:          50,
		MinHeight:         20,
		DefaultWidth:      800,
		DefaultHeight:     600,
		MaxEventsPerTick:  256,
		CookieDrainBudget: 32,
		BorderWidth:       1,
		TitleHeight:       24,
		NumberOfDesktops:  4,
		DesktopNames:      []string{"1", "2", "3", "4"},
		LogLevel:          "info",
	}
}

// Load reads a TOML file at path, layering it over Default() so a
// partial file only overrides the fields it sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %q", path)
	}
	return cfg, nil
}

// RescueGeometry expands a tiny Phase-1 GetGeometry reply to the
// configured default, per spec.md §4.F and §8 property 6.
func (c Config) RescueGeometry(w, h uint16) (uint16, uint16) {
	if w < c.MinWidth || h < c.MinHeight {
		return c.DefaultWidth, c.DefaultHeight
	}
	return w, h
}
