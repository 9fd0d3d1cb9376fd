package config

import "time"

// Config holds configuration for both the chat service and the client
// session. The two binaries read the same file; each uses its own section.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds chat service settings.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HistoryPageSize   int           `mapstructure:"history_page_size" yaml:"history_page_size"`
}

// SessionConfig holds client session settings.
type SessionConfig struct {
	ServerURL            string        `mapstructure:"server_url" yaml:"server_url"`
	APIBaseURL           string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	SendRetryDelay       time.Duration `mapstructure:"send_retry_delay" yaml:"send_retry_delay"`
	TypingQuietPeriod    time.Duration `mapstructure:"typing_quiet_period" yaml:"typing_quiet_period"`
	ConnectWaitTimeout   time.Duration `mapstructure:"connect_wait_timeout" yaml:"connect_wait_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			DatabasePath:      "velora-chat.db",
			JWTSecret:         "change-me",
			JWTIssuer:         "velora-chat",
			JWTAudience:       "velora-chat",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			HistoryPageSize:   50,
		},
		Session: SessionConfig{
			ServerURL:            "ws://localhost:8080/ws",
			APIBaseURL:           "http://localhost:8080",
			ReconnectInterval:    3 * time.Second,
			MaxReconnectAttempts: 5,
			SendRetryDelay:       2 * time.Second,
			TypingQuietPeriod:    time.Second,
			ConnectWaitTimeout:   5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.DatabasePath != "" {
		c.Server.DatabasePath = other.Server.DatabasePath
	}
	if other.Server.JWTSecret != "" {
		c.Server.JWTSecret = other.Server.JWTSecret
	}
	if other.Server.ReadHeaderTimeout != 0 {
		c.Server.ReadHeaderTimeout = other.Server.ReadHeaderTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if other.Session.ServerURL != "" {
		c.Session.ServerURL = other.Session.ServerURL
	}
	if other.Session.APIBaseURL != "" {
		c.Session.APIBaseURL = other.Session.APIBaseURL
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}
