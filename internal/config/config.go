package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Mood            MoodConfig     `yaml:"mood"`
	Database        DatabaseConfig `yaml:"database"`
	Control         ControlConfig  `yaml:"control"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge  string   `yaml:"bridge"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"` // Timeout applied to every bridge request
}

// MoodConfig contains mood engine settings
type MoodConfig struct {
	Bulbs         []string `yaml:"bulbs"`          // Bulb names; empty = discover extended color lights
	MaxTransition Duration `yaml:"max_transition"` // Upper bound for random transition duration
	StepInterval  Duration `yaml:"step_interval"`  // Delay between interpolation steps
	MaxRetries    int      `yaml:"max_retries"`    // Bounded retries for a single bridge call
	RetryBackoff  Duration `yaml:"retry_backoff"`  // Delay between retries
	RateLimitRPS  float64  `yaml:"rate_limit_rps"` // Shared rate limit for bridge writes
	StopGrace     Duration `yaml:"stop_grace"`     // Max wait for loops to restore on stop
	Script        string   `yaml:"script"`         // Optional Lua target generator script
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // How long session history is kept
}

// ControlConfig contains control/health server settings
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MQTTConfig contains optional MQTT status publishing settings
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MinTransition is the lower bound for a random transition duration.
const MinTransition = 500 * time.Millisecond

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./huemood.sqlite"
	}
	if c.Database.Retention == 0 {
		c.Database.Retention = Duration(30 * 24 * time.Hour)
	}

	// Hue defaults
	if c.Hue.Bridge == "" {
		c.Hue.Bridge = "192.168.1.2"
	}
	if c.Hue.Timeout == 0 {
		c.Hue.Timeout = Duration(5 * time.Second)
	}

	// Mood defaults
	if c.Mood.MaxTransition == 0 {
		c.Mood.MaxTransition = Duration(30 * time.Second)
	}
	if c.Mood.MaxTransition.Duration() < MinTransition {
		c.Mood.MaxTransition = Duration(MinTransition)
	}
	if c.Mood.StepInterval == 0 {
		c.Mood.StepInterval = Duration(100 * time.Millisecond)
	}
	if c.Mood.MaxRetries == 0 {
		c.Mood.MaxRetries = 3
	}
	if c.Mood.RetryBackoff == 0 {
		c.Mood.RetryBackoff = Duration(500 * time.Millisecond)
	}
	if c.Mood.RateLimitRPS == 0 {
		c.Mood.RateLimitRPS = 20.0
	}
	if c.Mood.StopGrace == 0 {
		c.Mood.StopGrace = Duration(10 * time.Second)
	}

	// Control defaults
	if c.Control.Port == 0 {
		c.Control.Port = 9090
	}
	if c.Control.Host == "" {
		c.Control.Host = "0.0.0.0"
	}

	// MQTT defaults
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "huemood"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "huemood"
	}

	// General shutdown timeout
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks required settings. It runs before any network activity so
// a missing credential fails fast with a non-zero exit.
func (c *Config) Validate() error {
	if c.Hue.Bridge == "" {
		return fmt.Errorf("hue.bridge is required")
	}
	if c.Hue.Token == "" {
		return fmt.Errorf("hue.token is required (set HUE_USER_ID or hue.token in config)")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// RedactToken returns a loggable form of a bridge token.
// Credentials never appear in log output verbatim.
func RedactToken(token string) string {
	if token == "" {
		return "<missing>"
	}
	if len(token) > 4 {
		return "***" + token[len(token)-4:]
	}
	return "***"
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
