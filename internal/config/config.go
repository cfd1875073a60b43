// Package config loads server configuration from built-in defaults, an
// optional TOML file, and environment variables (highest precedence).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// MaxUploadBytes is the media size limit shared by the server and clients.
const MaxUploadBytes = 5 << 20

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Auth      AuthConfig      `toml:"auth"`
	Media     MediaConfig     `toml:"media"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Presence  PresenceConfig  `toml:"presence"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type RedisConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type MediaConfig struct {
	// Root is the directory holding the media bucket.
	Root string `toml:"root"`
	// PublicURL prefixes every issued media URL, e.g. "https://chat.example.com".
	PublicURL string `toml:"public_url"`
	MaxBytes  int64  `toml:"max_bytes"`
}

type RateLimitConfig struct {
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

type PresenceConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Media: MediaConfig{
			Root:      "./media",
			PublicURL: "http://localhost:8080",
			MaxBytes:  MaxUploadBytes,
		},
		RateLimit: RateLimitConfig{MessagesPerSecond: 5, Burst: 20},
		Presence:  PresenceConfig{TTLSeconds: 60},
	}
}

// Load builds a Config. path may be empty, in which case only defaults and
// the environment are consulted.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"SERVER_ADDR": &c.Server.Addr,
		"DB_DSN":      &c.Database.DSN,
		"REDIS_ADDR":  &c.Redis.Addr,
		"JWT_SECRET":  &c.Auth.JWTSecret,
		"MEDIA_ROOT":  &c.Media.Root,
		"PUBLIC_URL":  &c.Media.PublicURL,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("MEDIA_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MEDIA_MAX_BYTES: %w", err)
		}
		c.Media.MaxBytes = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Media.MaxBytes <= 0 {
		errs = append(errs, errors.New("media.max_bytes must be positive"))
	}
	if c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit values must be positive"))
	}
	if c.Presence.TTLSeconds <= 0 {
		errs = append(errs, errors.New("presence.ttl_seconds must be positive"))
	}
	c.Media.PublicURL = strings.TrimRight(c.Media.PublicURL, "/")
	return errors.Join(errs...)
}
