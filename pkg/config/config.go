// Package config loads the radbridge YAML configuration file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spotwall/radbridge/pkg/disconnect"
	"github.com/spotwall/radbridge/pkg/mikrotik"
	"github.com/spotwall/radbridge/pkg/reconcile"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in the disconnect section.
const (
	TransportUDP       = "udp"
	TransportSimulated = "simulated"
)

// Duration wraps time.Duration so YAML accepts "3s", "24h" and friends.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full radbridge configuration.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Disconnect struct {
		Port      int      `yaml:"port"`
		Timeout   Duration `yaml:"timeout"`
		Transport string   `yaml:"transport"`
	} `yaml:"disconnect"`

	Sweep struct {
		MaxAge   Duration `yaml:"max_age"`
		Interval Duration `yaml:"interval"`
	} `yaml:"sweep"`

	Router struct {
		DialTimeout Duration `yaml:"dial_timeout"`
	} `yaml:"router"`

	Cipher struct {
		// Key is the hex-encoded 32-byte credential key.
		Key string `yaml:"key"`
	} `yaml:"cipher"`

	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "/var/lib/radbridge/radbridge.db"
	cfg.Disconnect.Port = disconnect.DefaultPort
	cfg.Disconnect.Timeout = Duration(disconnect.DefaultTimeout)
	cfg.Disconnect.Transport = TransportUDP
	cfg.Sweep.MaxAge = Duration(reconcile.DefaultMaxSessionAge)
	cfg.Sweep.Interval = Duration(time.Hour)
	cfg.Router.DialTimeout = Duration(mikrotik.DefaultDialTimeout)
	cfg.Metrics.Listen = ":9641"
	return cfg
}

// Load reads path, applying file values over the defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Disconnect.Transport {
	case TransportUDP, TransportSimulated:
	default:
		return fmt.Errorf("disconnect transport must be %q or %q, got %q",
			TransportUDP, TransportSimulated, c.Disconnect.Transport)
	}
	if c.Cipher.Key != "" {
		if _, err := c.CipherKey(); err != nil {
			return err
		}
	}
	return nil
}

// CipherKey decodes the credential key.
func (c *Config) CipherKey() ([]byte, error) {
	if c.Cipher.Key == "" {
		return nil, fmt.Errorf("cipher key is not configured")
	}
	key, err := hex.DecodeString(c.Cipher.Key)
	if err != nil {
		return nil, fmt.Errorf("cipher key is not valid hex: %w", err)
	}
	return key, nil
}
