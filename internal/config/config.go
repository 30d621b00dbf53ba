// Package config loads the gateway's single YAML configuration file.
// Defaults are assigned to the struct literal before unmarshal, so a
// missing field in the user's file falls back sanely rather than
// zero-valuing.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	Serial      SerialConfig   `yaml:"serial"`
	Cloud       CloudConfig    `yaml:"cloud"`
	Location    LocationConfig `yaml:"location"`
	Data        DataConfig     `yaml:"data"`
	Diag        DiagConfig     `yaml:"diag"`
	Outbound    OutboundConfig `yaml:"outbound"`
	RadioConfig RadioConfig    `yaml:"radio_config"`
}

// SerialConfig describes the UART the RF co-processor is attached to.
type SerialConfig struct {
	Path     string `yaml:"path"`
	BaudRate uint   `yaml:"baud_rate"`
}

// CloudConfig describes how to reach the cloud REST API.
type CloudConfig struct {
	BaseURL string `yaml:"base_url"`
	HubID   string `yaml:"hub_id"`
	HubKey  string `yaml:"hub_key"`
}

// LocationConfig is used for the cloud time-server lookup and sun-time
// scene scheduling.
type LocationConfig struct {
	TimeZone  string  `yaml:"tz"`
	Latitude  float64 `yaml:"lat"`
	Longitude float64 `yaml:"lon"`
	HasLatLon bool    `yaml:"has_lat_lon"`
}

// DataConfig is where the gateway's persisted files live.
type DataConfig struct {
	Dir string `yaml:"dir"`
	PIN string `yaml:"pin"` // local admin PIN for future write-enabled surfaces
}

// DiagConfig configures the read-only diagnostics HTTP surface.
type DiagConfig struct {
	Port int `yaml:"port"`
}

// OutboundConfig overrides the default per-destination retry policy
// instead of burying retry counts as constants.
type OutboundConfig struct {
	RFRetries         int           `yaml:"rf_retries"`
	RFResponseTimeout time.Duration `yaml:"rf_response_timeout"`
	ConfigRetries     int           `yaml:"config_retries"`
}

// RadioConfig overrides the radio-config state machine's escalation
// policy.
type RadioConfig struct {
	MaxSequenceAttempts int `yaml:"max_sequence_attempts"`
}

// Load reads and parses path, applying defaults for anything the file
// doesn't specify.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Serial: SerialConfig{
			Path:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		Data: DataConfig{
			Dir: "/data",
		},
		Diag: DiagConfig{
			Port: 8080,
		},
		Outbound: OutboundConfig{
			RFRetries:         1,
			RFResponseTimeout: 2 * time.Second,
			ConfigRetries:     1,
		},
		RadioConfig: RadioConfig{
			MaxSequenceAttempts: 3,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
