package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Gateway struct {
		PingInterval           time.Duration `yaml:"ping_interval"`
		PongTimeout            time.Duration `yaml:"pong_timeout"`
		HandshakeTimeout       time.Duration `yaml:"handshake_timeout"`
		MaxConnectionsPerActor int           `yaml:"max_connections_per_actor"`
		MaxMessageSizeBytes    int64         `yaml:"max_message_size_bytes"`
	} `yaml:"gateway"`

	Namespaces struct {
		Chat       bool `yaml:"chat"`
		Voice      bool `yaml:"voice"`
		Events     bool `yaml:"events"`
		Moderation bool `yaml:"moderation"`
	} `yaml:"namespaces"`

	RateLimit struct {
		PublishLimit  int           `yaml:"publish_limit"`
		PublishWindow time.Duration `yaml:"publish_window"`

		Handshake struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"handshake"`
	} `yaml:"rate_limit"`

	Presence struct {
		Backend string        `yaml:"backend"` // "memory" or "redis"
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"presence"`

	Media struct {
		DefaultTTL      time.Duration `yaml:"default_ttl"`
		MaxTTL          time.Duration `yaml:"max_ttl"`
		MaxParticipants int           `yaml:"max_participants"`
	} `yaml:"media"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string   `yaml:"jwt_secret"`
		MediaSecret    string   `yaml:"media_secret"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"auth"`

	CatalogPath string `yaml:"catalog_path"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Gateway
	if c.Gateway.PingInterval <= 0 {
		return fmt.Errorf("gateway.ping_interval must be > 0")
	}
	if c.Gateway.PongTimeout <= 0 {
		return fmt.Errorf("gateway.pong_timeout must be > 0")
	}
	if c.Gateway.HandshakeTimeout <= 0 {
		return fmt.Errorf("gateway.handshake_timeout must be > 0")
	}
	if c.Gateway.MaxConnectionsPerActor <= 0 {
		return fmt.Errorf("gateway.max_connections_per_actor must be > 0")
	}
	if c.Gateway.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("gateway.max_message_size_bytes must be >= 0")
	}

	// Rate limiting
	if c.RateLimit.PublishLimit <= 0 {
		return fmt.Errorf("rate_limit.publish_limit must be > 0")
	}
	if c.RateLimit.PublishWindow <= 0 {
		return fmt.Errorf("rate_limit.publish_window must be > 0")
	}
	if c.RateLimit.Handshake.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.handshake.requests_per_second must be > 0")
	}
	if c.RateLimit.Handshake.Burst <= 0 {
		return fmt.Errorf("rate_limit.handshake.burst must be > 0")
	}

	// Presence
	switch c.Presence.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("presence.backend=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("presence.backend must be \"memory\" or \"redis\"")
	}
	if c.Presence.TTL <= 0 {
		return fmt.Errorf("presence.ttl must be > 0")
	}

	// Media
	if c.Media.DefaultTTL <= 0 {
		return fmt.Errorf("media.default_ttl must be > 0")
	}
	if c.Media.MaxTTL <= 0 || c.Media.MaxTTL > 24*time.Hour {
		return fmt.Errorf("media.max_ttl must be > 0 and <= 24h")
	}
	if c.Media.MaxParticipants <= 0 {
		return fmt.Errorf("media.max_participants must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.MediaSecret == "" {
		return fmt.Errorf("auth.media_secret must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Gateway.PingInterval = 25 * time.Second
	cfg.Gateway.PongTimeout = 60 * time.Second
	cfg.Gateway.HandshakeTimeout = 10 * time.Second
	cfg.Gateway.MaxConnectionsPerActor = 5
	cfg.Gateway.MaxMessageSizeBytes = 64 * 1024

	cfg.Namespaces.Chat = true
	cfg.Namespaces.Voice = true
	cfg.Namespaces.Events = true
	cfg.Namespaces.Moderation = true

	cfg.RateLimit.PublishLimit = 120
	cfg.RateLimit.PublishWindow = time.Minute
	cfg.RateLimit.Handshake.RequestsPerSecond = 10
	cfg.RateLimit.Handshake.Burst = 20

	cfg.Presence.Backend = "memory"
	cfg.Presence.TTL = 5 * time.Minute

	cfg.Media.DefaultTTL = 4 * time.Hour
	cfg.Media.MaxTTL = 24 * time.Hour
	cfg.Media.MaxParticipants = 48

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.MediaSecret = "change-me-in-production"
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.CatalogPath = "configs/catalog.yaml"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("RELAYGATE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("RELAYGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("RELAYGATE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("RELAYGATE_MEDIA_SECRET"); secret != "" {
		c.Auth.MediaSecret = secret
	}
	if addr := os.Getenv("RELAYGATE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if backend := os.Getenv("RELAYGATE_PRESENCE_BACKEND"); backend != "" {
		c.Presence.Backend = backend
	}
	if raw := os.Getenv("RELAYGATE_MAX_CONNECTIONS_PER_ACTOR"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			c.Gateway.MaxConnectionsPerActor = n
		}
	}
	if path := os.Getenv("RELAYGATE_CATALOG_PATH"); path != "" {
		c.CatalogPath = path
	}
}
