// Package config loads the daemon's YAML configuration and binds CLI flag
// overrides on top of it, grounded on the teacher's yaml.v3-based
// deviceid.go loader and the pflag idiom used throughout cmd/direwolf.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// SensorMapping binds one OBIS code (in its canonical dotted-string form,
// e.g. "1-0:1.8.0") to a sensor name the daemon logs its readings under.
type SensorMapping struct {
	Obis string `yaml:"obis"`
	Name string `yaml:"name"`
}

// Config is the on-disk shape of the daemon's YAML configuration file.
type Config struct {
	Device             string          `yaml:"device"`
	Baud               int             `yaml:"baud"`
	IdleTimeoutSeconds int             `yaml:"idle_timeout_seconds"`
	DecryptionKey      string          `yaml:"decryption_key"` // hex-encoded, 32 chars for AES-128
	Sensors            []SensorMapping `yaml:"sensors"`
}

// IdleTimeout converts IdleTimeoutSeconds to a time.Duration, the teacher's
// convention for every other seconds-as-int config value (dedupe_time,
// rx2ig_dedupe_time, retain_time) multiplied by time.Second at the point of
// use rather than stored as a duration in the config struct itself.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*Config, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Overrides holds CLI flag values that, when set, take precedence over the
// matching Config field. Mirrors the teacher's pflag.StringP/IntP usage in
// cmd/direwolf/main.go, generalized into a struct the daemon applies after
// loading the YAML file instead of one enormous flat flag list.
type Overrides struct {
	Device *string
	Baud   *int
}

// BindFlags registers the override flags on fs and returns the values they
// will be parsed into. Call Apply after fs.Parse to layer them onto a
// loaded Config.
func BindFlags(fs *pflag.FlagSet) *Overrides {
	return &Overrides{
		Device: fs.StringP("device", "d", "", "Serial device path, overriding the config file."),
		Baud:   fs.IntP("baud", "b", 0, "Serial baud rate, overriding the config file."),
	}
}

// Apply layers any non-zero override values onto cfg, in place.
func (o *Overrides) Apply(cfg *Config) {
	if o.Device != nil && *o.Device != "" {
		cfg.Device = *o.Device
	}
	if o.Baud != nil && *o.Baud != 0 {
		cfg.Baud = *o.Baud
	}
}
