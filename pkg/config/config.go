// Package config loads the service configuration from a YAML file, with
// environment overrides handled by the caller via godotenv before load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when COUPD_CONFIG is unset.
const DefaultPath = "coupd.yaml"

// Duration wraps time.Duration for YAML parsing of values like "5s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ClockConfig holds the phase clock settings.
type ClockConfig struct {
	WorkerCount  int      `yaml:"worker_count"`
	PollInterval Duration `yaml:"poll_interval"`
}

// BroadcastConfig holds the chat fan-out settings.
type BroadcastConfig struct {
	TickInterval    Duration `yaml:"tick_interval"`
	EndpointTimeout Duration `yaml:"endpoint_timeout"`
}

// LLMConfig holds the reasoning server push settings.
type LLMConfig struct {
	ReasoningURL string   `yaml:"reasoning_url"`
	PushTimeout  Duration `yaml:"push_timeout"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Clock     ClockConfig     `yaml:"clock"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	LLM       LLMConfig       `yaml:"llm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Clock: ClockConfig{
			WorkerCount:  2,
			PollInterval: Duration(5 * time.Second),
		},
		Broadcast: BroadcastConfig{
			TickInterval:    Duration(5 * time.Minute),
			EndpointTimeout: Duration(10 * time.Second),
		},
		LLM: LLMConfig{
			PushTimeout: Duration(5 * time.Second),
		},
	}
}

// Load reads the YAML config at path, falling back to the defaults when
// the file does not exist. An empty path consults COUPD_CONFIG, then
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("COUPD_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Clock.WorkerCount <= 0 {
		return errors.New("clock.worker_count must be positive")
	}
	if c.Clock.PollInterval.Std() <= 0 {
		return errors.New("clock.poll_interval must be positive")
	}
	if c.Broadcast.TickInterval.Std() <= 0 {
		return errors.New("broadcast.tick_interval must be positive")
	}
	if c.Broadcast.EndpointTimeout.Std() <= 0 {
		return errors.New("broadcast.endpoint_timeout must be positive")
	}
	if c.LLM.PushTimeout.Std() <= 0 {
		return errors.New("llm.push_timeout must be positive")
	}
	return nil
}
