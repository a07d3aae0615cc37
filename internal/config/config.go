// Package config loads the YAML configuration for the identity and order
// servers. The JWT secret can be overridden with the JWT_SECRET environment
// variable so it never needs to live in the file.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	JWT      JWTConfig      `yaml:"jwt"`
	Security SecurityConfig `yaml:"security"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	// Per-peer client settings, keyed by peer name (e.g. "identity-service").
	Channels       map[string]ChannelConfig  `yaml:"channels"`
	CircuitBreaker map[string]BreakerConfig  `yaml:"circuitBreaker"`
	Retry          map[string]RetryConfig    `yaml:"retry"`
	Bulkhead       map[string]BulkheadConfig `yaml:"bulkhead"`

	Cache CacheConfig `yaml:"cache"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
	// Port for the HTTP metrics listener; 0 disables it.
	MetricsPort int `yaml:"metricsPort"`
}

type JWTConfig struct {
	// Base64-encoded symmetric key, >= 256 bits once decoded. Required.
	Secret       string `yaml:"secret"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
	ExpirationMs int64  `yaml:"expirationMs"`
	LeewayMs     int64  `yaml:"leewayMs"`
	// HS512 (default) or HS256.
	Algorithm string `yaml:"algorithm"`
}

func (j JWTConfig) Expiration() time.Duration { return time.Duration(j.ExpirationMs) * time.Millisecond }
func (j JWTConfig) Leeway() time.Duration     { return time.Duration(j.LeewayMs) * time.Millisecond }

// DecodeSecret returns the raw key bytes.
func (j JWTConfig) DecodeSecret() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(j.Secret)
	if err != nil {
		return nil, fmt.Errorf("jwt.secret is not valid base64: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("jwt.secret must decode to at least 256 bits, got %d", len(key)*8)
	}
	return key, nil
}

type SecurityConfig struct {
	GRPC GRPCSecurityConfig `yaml:"grpc"`
}

type GRPCSecurityConfig struct {
	// NONE, BASIC_VALIDATION or FULL.
	ServerMode string `yaml:"serverMode"`
	// NONE, PROPAGATE or VALIDATE.
	ClientMode string `yaml:"clientMode"`
	// Fully-qualified method names that bypass authentication and authorization.
	ExcludedMethods []string `yaml:"excludedMethods"`
}

type DatabaseConfig struct {
	// Postgres DSN. Empty selects the in-memory repositories (dev/test mode).
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	// Empty selects the in-process cache store (dev/test mode).
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ChannelConfig struct {
	Address        string `yaml:"address"`
	TLS            bool   `yaml:"tls"`
	DeadlineMs     int64  `yaml:"deadlineMs"`
	SoftLimitMs    int64  `yaml:"softLimitMs"`
	MaxRecvMsgMiB  int    `yaml:"maxRecvMsgMiB"`
	KeepaliveSecs  int    `yaml:"keepaliveSecs"`
	KeepaliveToSec int    `yaml:"keepaliveTimeoutSecs"`
}

func (c ChannelConfig) Deadline() time.Duration {
	if c.DeadlineMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.DeadlineMs) * time.Millisecond
}

func (c ChannelConfig) SoftLimit() time.Duration {
	if c.SoftLimitMs <= 0 {
		return 0 // disabled
	}
	return time.Duration(c.SoftLimitMs) * time.Millisecond
}

func (c ChannelConfig) MaxRecvBytes() int {
	mib := c.MaxRecvMsgMiB
	if mib <= 0 {
		mib = 16
	}
	if mib < 4 {
		mib = 4
	}
	if mib > 20 {
		mib = 20
	}
	return mib << 20
}

func (c ChannelConfig) Keepalive() time.Duration {
	if c.KeepaliveSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.KeepaliveSecs) * time.Second
}

func (c ChannelConfig) KeepaliveTimeout() time.Duration {
	if c.KeepaliveToSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.KeepaliveToSec) * time.Second
}

type BreakerConfig struct {
	WindowSize           int     `yaml:"windowSize"`
	MinCalls             int     `yaml:"minCalls"`
	FailureRateThreshold float64 `yaml:"failureRateThreshold"`
	OpenStateSeconds     int     `yaml:"openStateSeconds"`
	HalfOpenCalls        int     `yaml:"halfOpenCalls"`
}

// WithDefaults fills zero values with the documented defaults: a 10-call
// window evaluated from 5 calls on, a 50% threshold, 10 s open, 5 probes.
func (b BreakerConfig) WithDefaults() BreakerConfig {
	if b.WindowSize <= 0 {
		b.WindowSize = 10
	}
	if b.MinCalls <= 0 {
		b.MinCalls = 5
	}
	if b.FailureRateThreshold <= 0 {
		b.FailureRateThreshold = 0.5
	}
	if b.OpenStateSeconds <= 0 {
		b.OpenStateSeconds = 10
	}
	if b.HalfOpenCalls <= 0 {
		b.HalfOpenCalls = 5
	}
	return b
}

type RetryConfig struct {
	MaxAttempts      int     `yaml:"maxAttempts"`
	InitialBackoffMs int64   `yaml:"initialBackoffMs"`
	Multiplier       float64 `yaml:"multiplier"`
	MaxBackoffMs     int64   `yaml:"maxBackoffMs"`
}

func (r RetryConfig) WithDefaults() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.InitialBackoffMs <= 0 {
		r.InitialBackoffMs = 500
	}
	if r.Multiplier <= 0 {
		r.Multiplier = 2
	}
	if r.MaxBackoffMs <= 0 {
		r.MaxBackoffMs = 2000
	}
	return r
}

type BulkheadConfig struct {
	MaxConcurrentCalls int   `yaml:"maxConcurrentCalls"`
	MaxWaitMs          int64 `yaml:"maxWaitMs"`
}

func (b BulkheadConfig) WithDefaults() BulkheadConfig {
	if b.MaxConcurrentCalls <= 0 {
		b.MaxConcurrentCalls = 10
	}
	if b.MaxWaitMs <= 0 {
		b.MaxWaitMs = 1000
	}
	return b
}

type CacheConfig struct {
	Validation ValidationCacheConfig `yaml:"validation"`
}

type ValidationCacheConfig struct {
	TTL ValidationTTLConfig `yaml:"ttl"`
}

type ValidationTTLConfig struct {
	PostCreateHours   int `yaml:"postCreateHours"`
	PostLookupMinutes int `yaml:"postLookupMinutes"`
}

func (v ValidationTTLConfig) PostCreate() time.Duration {
	if v.PostCreateHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(v.PostCreateHours) * time.Hour
}

func (v ValidationTTLConfig) PostLookup() time.Duration {
	if v.PostLookupMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(v.PostLookupMinutes) * time.Minute
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required settings and fills the documented defaults.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := c.JWT.DecodeSecret(); err != nil {
		return err
	}
	if c.JWT.Issuer == "" || c.JWT.Audience == "" {
		return fmt.Errorf("jwt.issuer and jwt.audience are required")
	}
	if c.JWT.ExpirationMs <= 0 {
		c.JWT.ExpirationMs = 86_400_000
	}
	if c.JWT.Algorithm == "" {
		c.JWT.Algorithm = "HS512"
	}
	if c.JWT.Algorithm != "HS512" && c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("jwt.algorithm must be HS512 or HS256, got %q", c.JWT.Algorithm)
	}
	if c.Security.GRPC.ServerMode == "" {
		c.Security.GRPC.ServerMode = "FULL"
	}
	if c.Security.GRPC.ClientMode == "" {
		c.Security.GRPC.ClientMode = "PROPAGATE"
	}
	return nil
}
