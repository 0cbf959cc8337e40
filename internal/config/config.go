// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package config

import "time"

// Config holds all application configuration.
//
// Values are layered: struct defaults, then the optional YAML file, then
// environment variables (see envTransformFunc for the accepted names).
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Heartbeat  HeartbeatConfig  `koanf:"heartbeat"`
	Client     ClientConfig     `koanf:"client"`
	Session    SessionConfig    `koanf:"session"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	NATS       NATSConfig       `koanf:"nats"`
	Ingress    IngressConfig    `koanf:"ingress"`
	Presence   PresenceConfig   `koanf:"presence"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP and WebSocket listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// AllowedOrigins restricts the Origin header on WebSocket upgrades.
	// "*" accepts any origin. Empty accepts same-host requests only.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// HandshakeRateLimit is the number of upgrade requests a single IP may
	// make per minute. Zero disables the limit.
	HandshakeRateLimit int `koanf:"handshake_rate_limit"`

	// SendBuffer is the per-connection outbound frame queue length.
	SendBuffer int `koanf:"send_buffer"`

	// MaxFrameSize caps inbound frames in bytes.
	MaxFrameSize int64 `koanf:"max_frame_size"`

	// AuthTimeout bounds the session lookup behind each auth frame.
	AuthTimeout time.Duration `koanf:"auth_timeout"`
}

// HeartbeatConfig controls server side liveness detection.
type HeartbeatConfig struct {
	// Interval between control pings sent to each connection.
	Interval time.Duration `koanf:"interval"`

	// MissedLimit is how many intervals may pass without inbound traffic
	// before the connection is force-closed.
	MissedLimit int `koanf:"missed_limit"`
}

// ClientConfig holds the reconnection controller settings used by cmd/client.
type ClientConfig struct {
	ServerURL            string        `koanf:"server_url"`
	APIBaseURL           string        `koanf:"api_base_url"`
	SessionID            string        `koanf:"session_id"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `koanf:"reconnect_base_delay"`
	PollInterval         time.Duration `koanf:"poll_interval"`
	HeartbeatInterval    time.Duration `koanf:"heartbeat_interval"`
	TypingInterval       time.Duration `koanf:"typing_interval"`
}

// SessionConfig selects and configures the session store backend.
type SessionConfig struct {
	// Store is one of: memory, badger, redis.
	Store string `koanf:"store"`

	// Path is the badger data directory.
	Path string `koanf:"path"`

	// TTL is the lifetime given to sessions created through this service.
	TTL time.Duration `koanf:"ttl"`

	// CleanupInterval is how often expired badger sessions are purged.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// CookieName is read by the unread-count endpoint.
	CookieName string `koanf:"cookie_name"`

	// CacheTTL is how long a validated session is trusted without a store
	// lookup. Zero disables the cache.
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`
}

// DatabaseConfig holds the Postgres connection used for conversations,
// notifications and last-seen updates.
type DatabaseConfig struct {
	// URL is a pgx connection string. Empty selects the in-memory store.
	URL          string        `koanf:"url"`
	MaxConns     int32         `koanf:"max_conns"`
	QueryTimeout time.Duration `koanf:"query_timeout"`

	// Circuit breaker settings applied around every query.
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// RedisConfig is shared by the redis session store and the presence mirror.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NATSConfig controls the NATS event ingress (nats build tag).
type NATSConfig struct {
	Enabled             bool   `koanf:"enabled"`
	URL                 string `koanf:"url"`
	EmbeddedServer      bool   `koanf:"embedded_server"`
	EmbeddedPort        int    `koanf:"embedded_port"`
	NotificationSubject string `koanf:"notification_subject"`
	MessageSubject      string `koanf:"message_subject"`
	QueueGroup          string `koanf:"queue_group"`
}

// IngressConfig protects the internal HTTP API used by the CRUD backend.
type IngressConfig struct {
	Enabled bool `koanf:"enabled"`

	// Token is compared against "Authorization: Bearer <token>".
	Token string `koanf:"token"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// PresenceConfig controls the presence mirrors written on online/offline.
type PresenceConfig struct {
	// RedisMirror writes idem:presence:<user> keys when Redis is configured.
	RedisMirror bool          `koanf:"redis_mirror"`
	MirrorTTL   time.Duration `koanf:"mirror_ttl"`

	// RecordLastSeen updates users.last_seen when Postgres is configured.
	RecordLastSeen bool `koanf:"record_last_seen"`

	// QueueSize bounds pending recorder writes.
	QueueSize int `koanf:"queue_size"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// ReadDeadline is how long a connection may stay silent before it is closed.
func (h HeartbeatConfig) ReadDeadline() time.Duration {
	return h.Interval * time.Duration(h.MissedLimit)
}
