package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with code that runs without a loaded config.
const (
	DefaultOrigin           = "http://127.0.0.1:8000"
	DefaultWSPath           = "/ws"
	DefaultReconnectDelay   = 3 * time.Second
	DefaultBufferSize       = 100
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultHeartbeat        = 30 * time.Second
)

// SetDefaults registers default values for every key.
func SetDefaults() {
	viper.SetDefault("server.origin", DefaultOrigin)
	viper.SetDefault("server.ws_path", DefaultWSPath)

	viper.SetDefault("realtime.reconnect_delay", DefaultReconnectDelay)
	viper.SetDefault("realtime.buffer_size", DefaultBufferSize)
	viper.SetDefault("realtime.handshake_timeout", DefaultHandshakeTimeout)

	viper.SetDefault("feed.digest_schedule", "")
	viper.SetDefault("feed.show_noise", false)

	viper.SetDefault("relay.host", "127.0.0.1")
	viper.SetDefault("relay.port", 8000)
	viper.SetDefault("relay.heartbeat_interval", DefaultHeartbeat)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.file", "")
}
