package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads settings from the environment. Variables that are unset
// leave the current value in place.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads settings from a YAML, JSON, TOML or .env file, then from
// the environment
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithRoots sets the public, legacy and private storage roots
func WithRoots(public, legacy []string, private string) Option {
	return func(c *ServerConfig) error {
		c.PublicSearchPaths = public
		c.LegacySearchPaths = legacy
		c.PrivateObjectDir = private
		return nil
	}
}

// WithStorageURL sets the storage backend URL
func WithStorageURL(storageURL string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = storageURL
		return nil
	}
}

// WithDatabase sets the subscription database URL
func WithDatabase(databaseURL string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithRedis enables the membership cache
func WithRedis(redisURL string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = redisURL
		if ttl > 0 {
			c.MembershipCacheTTL = ttl
		}
		return nil
	}
}

// WithPresign configures local upload URL signing
func WithPresign(secretKey, baseURL string) Option {
	return func(c *ServerConfig) error {
		c.PresignSecretKey = secretKey
		c.PresignBaseURL = baseURL
		return nil
	}
}

// WithJWTSecret sets the bearer token key
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}
