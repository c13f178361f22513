// Package config loads simulation settings from cellar.yaml.
// Secrets (the admin key) come from the environment, never the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds cellarsim configuration.
type Settings struct {
	DBPath       string  `yaml:"db_path"`
	Seed         int64   `yaml:"seed"`
	APIPort      int     `yaml:"api_port"`
	Speed        float64 `yaml:"speed"`
	TickInterval string  `yaml:"tick_interval"` // Go duration string, e.g. "2s"
	Vineyards    int     `yaml:"vineyards"`

	// TrueRandom switches the manifestation source from the seeded RNG to
	// random.org (RANDOM_ORG_KEY) with crypto/rand fallback. Runs stop
	// being replayable.
	TrueRandom bool `yaml:"true_random"`
}

// Default returns the settings used when no cellar.yaml exists.
func Default() *Settings {
	return &Settings{
		DBPath:       "data/cellar.db",
		Seed:         42,
		APIPort:      8080,
		Speed:        1.0,
		TickInterval: "2s",
		Vineyards:    3,
	}
}

// Load reads settings from path, filling unset fields from Default.
// Returns Default() (not an error) if the file does not exist.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if s.Vineyards < 1 {
		s.Vineyards = 1
	}
	return s, nil
}

// Interval parses the tick interval, falling back to 2 seconds.
func (s *Settings) Interval() time.Duration {
	d, err := time.ParseDuration(s.TickInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}
