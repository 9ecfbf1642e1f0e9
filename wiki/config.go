package wiki

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// UnlimitedRetries makes the client wait out replication lag indefinitely.
// This mirrors the server's own guidance: a lagged wiki wants clients to
// back off and try again, not to give up.
const UnlimitedRetries = -1

// Default protocol parameters
const (
	DefaultMaxLag  = 5 // seconds
	DefaultTimeout = 30 * time.Second
)

// Config holds wiki connection settings
type Config struct {
	// APIURL is the wiki API endpoint (e.g., https://wiki.example.com/api.php)
	APIURL string

	// Username for bot password authentication (optional, for editing)
	Username string

	// Password for bot password authentication (optional, for editing)
	Password string

	// Timeout for a single HTTP round trip
	Timeout time.Duration

	// UserAgent identifies the client to the wiki
	UserAgent string

	// MaxLag is the maximum replication lag in seconds the server may
	// report before it asks us to back off
	MaxLag int

	// MaxLagRetries bounds how many lag waits a single call tolerates.
	// UnlimitedRetries (-1) retries forever.
	MaxLagRetries int

	// Debug enables verbose request logging
	Debug bool
}

// NewConfig returns a Config for the given API endpoint with defaults applied
func NewConfig(apiURL string) *Config {
	return &Config{
		APIURL:        apiURL,
		Timeout:       DefaultTimeout,
		UserAgent:     defaultUserAgent,
		MaxLag:        DefaultMaxLag,
		MaxLagRetries: UnlimitedRetries,
	}
}

const defaultUserAgent = "Wikimate/1.0 (https://github.com/nineff/Wikimate)"

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	apiURL := os.Getenv("WIKIMATE_API_URL")
	if apiURL == "" {
		return nil, errors.New("WIKIMATE_API_URL environment variable is required")
	}

	config := NewConfig(apiURL)
	config.Username = os.Getenv("WIKIMATE_USERNAME")
	config.Password = os.Getenv("WIKIMATE_PASSWORD")
	config.Debug = os.Getenv("WIKIMATE_DEBUG") == "true"

	if t := os.Getenv("WIKIMATE_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			config.Timeout = d
		}
	}

	if l := os.Getenv("WIKIMATE_MAXLAG"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			config.MaxLag = n
		}
	}

	if r := os.Getenv("WIKIMATE_MAX_LAG_RETRIES"); r != "" {
		if n, err := strconv.Atoi(r); err == nil && n >= UnlimitedRetries {
			config.MaxLagRetries = n
		}
	}

	if ua := os.Getenv("WIKIMATE_USER_AGENT"); ua != "" {
		config.UserAgent = ua
	}

	return config, nil
}

// HasCredentials returns true if authentication credentials are configured
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}
