// IDEM Realtime - Presence and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/idem-realtime

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/idem-realtime/config.yaml",
	"/etc/idem-realtime/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. These are applied first, then
// overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			AllowedOrigins:     []string{},
			HandshakeRateLimit: 60,
			SendBuffer:         256,
			MaxFrameSize:       64 * 1024,
			AuthTimeout:        5 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:    30 * time.Second,
			MissedLimit: 2,
		},
		Client: ClientConfig{
			ServerURL:            "ws://127.0.0.1:8080/ws",
			APIBaseURL:           "http://127.0.0.1:8080",
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   time.Second,
			PollInterval:         30 * time.Second,
			HeartbeatInterval:    30 * time.Second,
			TypingInterval:       3 * time.Second,
		},
		Session: SessionConfig{
			Store:           "memory",
			Path:            "/data/sessions",
			TTL:             2 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			CookieName:      "idem_session",
			CacheTTL:        30 * time.Second,
			CacheSize:       10000,
		},
		Database: DatabaseConfig{
			URL:                 "",
			MaxConns:            10,
			QueryTimeout:        3 * time.Second,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      30 * time.Second,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Redis: RedisConfig{
			Addr: "",
			DB:   0,
		},
		NATS: NATSConfig{
			Enabled:             false,
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      false,
			EmbeddedPort:        4222,
			NotificationSubject: "idem.events.notification",
			MessageSubject:      "idem.events.message",
			QueueGroup:          "idem-realtime",
		},
		Ingress: IngressConfig{
			Enabled:     true,
			Token:       "",
			CORSOrigins: []string{},
		},
		Presence: PresenceConfig{
			RedisMirror:    true,
			MirrorTTL:      90 * time.Second,
			RecordLastSeen: true,
			QueueSize:      1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load reads configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"server.allowed_origins",
	"ingress.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// Unmapped variables are ignored so that unrelated environment does not
// leak into configuration.
var envMappings = map[string]string{
	"http_host":                     "server.host",
	"http_port":                     "server.port",
	"http_read_timeout":             "server.read_timeout",
	"http_write_timeout":            "server.write_timeout",
	"http_idle_timeout":             "server.idle_timeout",
	"shutdown_timeout":              "server.shutdown_timeout",
	"ws_allowed_origins":            "server.allowed_origins",
	"ws_handshake_rate_limit":       "server.handshake_rate_limit",
	"ws_send_buffer":                "server.send_buffer",
	"ws_max_frame_size":             "server.max_frame_size",
	"ws_auth_timeout":               "server.auth_timeout",
	"heartbeat_interval":            "heartbeat.interval",
	"heartbeat_missed_limit":        "heartbeat.missed_limit",
	"client_server_url":             "client.server_url",
	"client_api_base_url":           "client.api_base_url",
	"client_session_id":             "client.session_id",
	"client_max_reconnect_attempts": "client.max_reconnect_attempts",
	"client_reconnect_base_delay":   "client.reconnect_base_delay",
	"client_poll_interval":          "client.poll_interval",
	"client_heartbeat_interval":     "client.heartbeat_interval",
	"client_typing_interval":        "client.typing_interval",
	"session_store":                 "session.store",
	"session_path":                  "session.path",
	"session_ttl":                   "session.ttl",
	"session_cleanup_interval":      "session.cleanup_interval",
	"session_cookie_name":           "session.cookie_name",
	"session_cache_ttl":             "session.cache_ttl",
	"session_cache_size":            "session.cache_size",
	"database_url":                  "database.url",
	"database_max_conns":            "database.max_conns",
	"database_query_timeout":        "database.query_timeout",
	"redis_addr":                    "redis.addr",
	"redis_password":                "redis.password",
	"redis_db":                      "redis.db",
	"nats_enabled":                  "nats.enabled",
	"nats_url":                      "nats.url",
	"nats_embedded":                 "nats.embedded_server",
	"nats_embedded_port":            "nats.embedded_port",
	"nats_notification_subject":     "nats.notification_subject",
	"nats_message_subject":          "nats.message_subject",
	"nats_queue_group":              "nats.queue_group",
	"ingress_enabled":               "ingress.enabled",
	"ingress_token":                 "ingress.token",
	"ingress_cors_origins":          "ingress.cors_origins",
	"presence_redis_mirror":         "presence.redis_mirror",
	"presence_mirror_ttl":           "presence.mirror_ttl",
	"presence_record_last_seen":     "presence.record_last_seen",
	"log_level":                     "logging.level",
	"log_format":                    "logging.format",
	"log_caller":                    "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - HEARTBEAT_INTERVAL -> heartbeat.interval
//   - CLIENT_MAX_RECONNECT_ATTEMPTS -> client.max_reconnect_attempts
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
