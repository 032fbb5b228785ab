// Package config loads agentwatch settings from YAML, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. AGENTWATCH_SERVER_ORIGIN.
const EnvPrefix = "AGENTWATCH"

// Config is the root of the agentwatch configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Feed     FeedConfig     `mapstructure:"feed" yaml:"feed"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig locates the backend the dashboard observes.
type ServerConfig struct {
	// Origin is the page origin the push endpoint is derived from.
	Origin string `mapstructure:"origin" yaml:"origin"`
	WSPath string `mapstructure:"ws_path" yaml:"ws_path"`
}

// RealtimeConfig tunes the push channel client.
type RealtimeConfig struct {
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	BufferSize       int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// FeedConfig controls terminal rendering of the activity feed.
type FeedConfig struct {
	// DigestSchedule is a cron spec ("@every 1m", "0 */5 * * * *"); empty disables digests.
	DigestSchedule string `mapstructure:"digest_schedule" yaml:"digest_schedule"`
	ShowNoise      bool   `mapstructure:"show_noise" yaml:"show_noise"`
}

// RelayConfig configures the development relay server.
type RelayConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// Addr returns host:port.
func (c RelayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig mirrors logger.LogConfig for file based configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

var (
	current    *Config
	configPath string
	mu         sync.RWMutex
)

// Load reads the configuration. Precedence: environment > file > defaults.
// A path that does not exist is not an error; a file that fails to parse is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expanded

		viper.SetConfigFile(expanded)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("read config %s: %w", expanded, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	current = &cfg
	return &cfg, nil
}

// Validate rejects settings the realtime client cannot run with.
func (c *Config) Validate() error {
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive, got %s", c.Realtime.ReconnectDelay)
	}
	if c.Realtime.BufferSize <= 0 {
		return fmt.Errorf("realtime.buffer_size must be positive, got %d", c.Realtime.BufferSize)
	}
	if c.Server.Origin == "" {
		return errors.New("server.origin is required")
	}
	return nil
}

// Current returns the most recently loaded configuration, or nil.
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Path returns the file the configuration was loaded from.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// SaveTo writes cfg as YAML, creating parent directories.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Reset clears loaded state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
	configPath = ""
	viper.Reset()
}
