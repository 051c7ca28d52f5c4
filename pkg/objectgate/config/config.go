// Package config loads object-gate settings and assembles a Service from them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/object-gate/pkg/objectgate"
	"github.com/tendant/object-gate/pkg/objectgate/objectkey"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		StorageURL:         "memory://",
		DatabaseURL:        "memory",
		MembershipCacheTTL: 30 * time.Second,
		UploadURLTTL:       objectgate.DefaultUploadURLTTL,
		ObjectCacheTTL:     objectgate.DefaultCacheTTL,
		ObjectKeyLayout:    "flat",
		AWSRegion:          "us-east-1",
	}
}

// ServerConfig represents the settings of an object-gate deployment
type ServerConfig struct {
	Port        string `yaml:"port" env:"PORT" env-description:"HTTP listen port"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-description:"development, production or testing"`

	// Storage roots, as [/]bucket[/dir]
	PublicSearchPaths []string `yaml:"public_object_search_paths" env:"PUBLIC_OBJECT_SEARCH_PATHS" env-separator:"," env-description:"public roots in probe order; the first receives public uploads"`
	LegacySearchPaths []string `yaml:"legacy_object_search_paths" env:"LEGACY_OBJECT_SEARCH_PATHS" env-separator:"," env-description:"read-only roots probed after the public roots"`
	PrivateObjectDir  string   `yaml:"private_object_dir" env:"PRIVATE_OBJECT_DIR" env-description:"root for private objects"`

	// Storage backend: memory://, file:///dir or s3://?region=..&endpoint=..
	StorageURL         string `yaml:"storage_url" env:"STORAGE_URL"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `yaml:"aws_region" env:"AWS_REGION"`

	// Subscription store: memory or postgres://
	DatabaseURL        string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL           string        `yaml:"redis_url" env:"REDIS_URL" env-description:"enables the membership cache"`
	MembershipCacheTTL time.Duration `yaml:"membership_cache_ttl" env:"MEMBERSHIP_CACHE_TTL"`

	// Identity and signing
	JWTSecret        string `yaml:"jwt_secret" env:"JWT_SECRET" env-description:"HS256 key for bearer tokens"`
	PresignSecretKey string `yaml:"presign_secret_key" env:"PRESIGN_SECRET_KEY" env-description:"HMAC key for local upload URLs"`
	PresignBaseURL   string `yaml:"presign_base_url" env:"PRESIGN_BASE_URL"`

	UploadURLTTL    time.Duration `yaml:"upload_url_ttl" env:"UPLOAD_URL_TTL"`
	ObjectCacheTTL  time.Duration `yaml:"object_cache_ttl" env:"OBJECT_CACHE_TTL"`
	ObjectKeyLayout string        `yaml:"object_key_layout" env:"OBJECT_KEY_LAYOUT" env-description:"flat or sharded"`
}

// Validate validates the server configuration. Missing storage roots are not
// rejected here; the operations needing them report a ConfigError.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("environment must be 'development', 'production' or 'testing', got: %s", c.Environment)
	}

	storageType, err := c.StorageType()
	if err != nil {
		return err
	}

	if _, err := c.DatabaseType(); err != nil {
		return err
	}

	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
	}

	if c.UploadURLTTL <= 0 {
		return errors.New("upload_url_ttl must be positive")
	}
	if c.ObjectCacheTTL <= 0 {
		return errors.New("object_cache_ttl must be positive")
	}

	if _, err := objectkey.NewForLayout(c.ObjectKeyLayout); err != nil {
		return err
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("jwt_secret is required in production")
		}
		if storageType != "s3" && c.PresignSecretKey == "" {
			return errors.New("presign_secret_key is required in production for memory and file storage")
		}
	}

	return nil
}

// IsProduction reports whether the deployment runs in production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// StorageType returns "memory", "fs" or "s3" for the configured STORAGE_URL
func (c *ServerConfig) StorageType() (string, error) {
	switch {
	case c.StorageURL == "" || c.StorageURL == "memory" || c.StorageURL == "memory://":
		return "memory", nil
	case strings.HasPrefix(c.StorageURL, "file://"):
		if strings.TrimPrefix(c.StorageURL, "file://") == "" {
			return "", errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return "fs", nil
	case strings.HasPrefix(c.StorageURL, "s3://"):
		if _, err := url.Parse(c.StorageURL); err != nil {
			return "", fmt.Errorf("invalid STORAGE_URL: %w", err)
		}
		return "s3", nil
	default:
		return "", fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", c.StorageURL)
	}
}

// DatabaseType returns "memory" or "postgres" for the configured DATABASE_URL
func (c *ServerConfig) DatabaseType() (string, error) {
	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		return "memory", nil
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", c.DatabaseURL)
	}
}

// PathConfig returns the storage roots for the translator
func (c *ServerConfig) PathConfig() objectgate.PathConfig {
	return objectgate.PathConfig{
		PublicSearchRoots: trimAll(c.PublicSearchPaths),
		LegacySearchRoots: trimAll(c.LegacySearchPaths),
		PrivateRoot:       strings.TrimSpace(c.PrivateObjectDir),
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
