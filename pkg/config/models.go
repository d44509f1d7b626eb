package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Heartbeat HeartbeatConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	// MaxPerIP caps concurrent connections per remote address; zero disables
	// the limiter.
	MaxPerIP int `mapstructure:"maxPerIP"`
}

type TransportConfig struct {
	// PingTimeout bounds how long a liveness ping waits for its pong.
	PingTimeout time.Duration `mapstructure:"pingTimeout"`
}

type HeartbeatConfig struct {
	// Interval between gateway-wide liveness sweeps.
	Interval time.Duration `mapstructure:"interval"`
}
