package httpapi

import (
	"fmt"
	"net/url"
	"time"
)

// AuthScheme is the prefix of the Authorization header.
type AuthScheme string

const (
	// AuthSchemeBearer sends "Authorization: Bearer <token>".
	AuthSchemeBearer AuthScheme = "Bearer"
)

// Config holds HTTP transport configuration for one platform API.
type Config struct {
	// BaseURL is the API root, e.g. "https://console.neon.tech/api/v2".
	BaseURL string

	// Token is the API credential sent on every request.
	Token string

	// AuthScheme is the Authorization header scheme (default: Bearer).
	AuthScheme AuthScheme

	// UserAgent is sent on every request.
	UserAgent string

	// RequestTimeout bounds a single attempt, not the whole retry sequence.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// EnableCircuitBreaker trips after repeated 5xx or network failures.
	EnableCircuitBreaker bool

	// BreakerDelay is how long the breaker stays open before probing.
	BreakerDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:              baseURL,
		Token:                token,
		AuthScheme:           AuthSchemeBearer,
		UserAgent:            "trinity",
		RequestTimeout:       30 * time.Second,
		MaxRetries:           3,
		BaseDelay:            250 * time.Millisecond,
		MaxDelay:             5 * time.Second,
		EnableCircuitBreaker: true,
		BreakerDelay:         15 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be http or https: %s", c.BaseURL)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.MaxRetries > 0 && c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive when retries are enabled")
	}

	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}

	if c.EnableCircuitBreaker && c.BreakerDelay <= 0 {
		return fmt.Errorf("breaker delay must be positive when the circuit breaker is enabled")
	}

	if c.AuthScheme == "" {
		c.AuthScheme = AuthSchemeBearer
	}

	return nil
}
