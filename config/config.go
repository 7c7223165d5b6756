// package config provides functions and values
// for reading and validating rpc edge proxy service configuration
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config wraps all the values needed by the proxy service to run.
// It is built once at startup and never mutated afterwards.
type Config struct {
	LogLevel         string
	ProxyServicePort string

	ProvidersRaw    string
	Providers       []url.URL
	ProviderTimeout time.Duration
	// maximum number of providers tried for a single request
	// before the request fails with an exhausted-pool error
	ProviderMaxAttempts    int
	ProviderInitialBackoff time.Duration

	EdgeCacheTTL    time.Duration
	BrowserCacheTTL time.Duration

	CacheEnabled     bool
	CachePrefix      string
	RedisEndpointURL string
	RedisPassword    string

	MetricDatabaseEnabled       bool
	DatabaseName                string
	DatabaseEndpointURL         string
	DatabaseUserName            string
	DatabasePassword            string
	DatabaseReadTimeoutSeconds  int64
	DatabaseSSLEnabled          bool
	DatabaseQueryLoggingEnabled bool
}

const (
	LOG_LEVEL_ENVIRONMENT_KEY = "LOG_LEVEL"
	DEFAULT_LOG_LEVEL         = "INFO"

	PROXY_SERVICE_PORT_ENVIRONMENT_KEY = "PROXY_SERVICE_PORT"
	DEFAULT_PROXY_SERVICE_PORT         = "7777"

	PROVIDERS_ENVIRONMENT_KEY                             = "PROVIDERS"
	PROVIDER_TIMEOUT_MILLISECONDS_ENVIRONMENT_KEY         = "PROVIDER_TIMEOUT_MILLISECONDS"
	DEFAULT_PROVIDER_TIMEOUT_MILLISECONDS                 = 5000
	PROVIDER_MAX_ATTEMPTS_ENVIRONMENT_KEY                 = "PROVIDER_MAX_ATTEMPTS"
	DEFAULT_PROVIDER_MAX_ATTEMPTS                         = 8
	PROVIDER_INITIAL_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY = "PROVIDER_INITIAL_BACKOFF_MILLISECONDS"
	DEFAULT_PROVIDER_INITIAL_BACKOFF_MILLISECONDS         = 50

	EDGE_CACHE_TTL_SECONDS_ENVIRONMENT_KEY    = "EDGE_CACHE_TTL_SECONDS"
	DEFAULT_EDGE_CACHE_TTL_SECONDS            = 60
	BROWSER_CACHE_TTL_SECONDS_ENVIRONMENT_KEY = "BROWSER_CACHE_TTL_SECONDS"
	DEFAULT_BROWSER_CACHE_TTL_SECONDS         = 0

	CACHE_ENABLED_ENVIRONMENT_KEY      = "CACHE_ENABLED"
	CACHE_PREFIX_ENVIRONMENT_KEY       = "CACHE_PREFIX"
	DEFAULT_CACHE_PREFIX               = "edge"
	REDIS_ENDPOINT_URL_ENVIRONMENT_KEY = "REDIS_ENDPOINT_URL"
	REDIS_PASSWORD_ENVIRONMENT_KEY     = "REDIS_PASSWORD"

	METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY        = "METRIC_DATABASE_ENABLED"
	DATABASE_NAME_ENVIRONMENT_KEY                  = "DATABASE_NAME"
	DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY          = "DATABASE_ENDPOINT_URL"
	DATABASE_USERNAME_ENVIRONMENT_KEY              = "DATABASE_USERNAME"
	DATABASE_PASSWORD_ENVIRONMENT_KEY              = "DATABASE_PASSWORD"
	DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY  = "DATABASE_READ_TIMEOUT_SECONDS"
	DEFAULT_DATABASE_READ_TIMEOUT_SECONDS          = 60
	DATABASE_SSL_ENABLED_ENVIRONMENT_KEY           = "DATABASE_SSL_ENABLED"
	DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY = "DATABASE_QUERY_LOGGING_ENABLED"
)

// EnvOrDefault fetches an environment variable value, or if not set returns the fallback value
func EnvOrDefault(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// EnvOrDefaultBool fetches a boolean environment variable value, or if not set
// or not parseable returns the fallback value
func EnvOrDefaultBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// EnvOrDefaultInt64 fetches an integer environment variable value, or if not set
// or not parseable returns the fallback value
func EnvOrDefaultInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

// ParseRawProviderURLs parses a comma separated list of provider endpoint URLs
// into parsed url values, returning the providers and error (if any)
func ParseRawProviderURLs(raw string) ([]url.URL, error) {
	var providers []url.URL

	for _, rawURL := range strings.Split(raw, ",") {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" {
			continue
		}

		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}

		providers = append(providers, *parsed)
	}

	return providers, nil
}

// ReadConfig attempts to parse service config from environment values
// the returned config may be invalid and should be validated via the `Validate`
// function of the config package before use
func ReadConfig() Config {
	providersRaw := os.Getenv(PROVIDERS_ENVIRONMENT_KEY)
	// parse errors are surfaced by Validate
	providers, _ := ParseRawProviderURLs(providersRaw)

	return Config{
		LogLevel:         EnvOrDefault(LOG_LEVEL_ENVIRONMENT_KEY, DEFAULT_LOG_LEVEL),
		ProxyServicePort: EnvOrDefault(PROXY_SERVICE_PORT_ENVIRONMENT_KEY, DEFAULT_PROXY_SERVICE_PORT),

		ProvidersRaw:           providersRaw,
		Providers:              providers,
		ProviderTimeout:        time.Duration(EnvOrDefaultInt64(PROVIDER_TIMEOUT_MILLISECONDS_ENVIRONMENT_KEY, DEFAULT_PROVIDER_TIMEOUT_MILLISECONDS)) * time.Millisecond,
		ProviderMaxAttempts:    int(EnvOrDefaultInt64(PROVIDER_MAX_ATTEMPTS_ENVIRONMENT_KEY, DEFAULT_PROVIDER_MAX_ATTEMPTS)),
		ProviderInitialBackoff: time.Duration(EnvOrDefaultInt64(PROVIDER_INITIAL_BACKOFF_MILLISECONDS_ENVIRONMENT_KEY, DEFAULT_PROVIDER_INITIAL_BACKOFF_MILLISECONDS)) * time.Millisecond,

		EdgeCacheTTL:    time.Duration(EnvOrDefaultInt64(EDGE_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, DEFAULT_EDGE_CACHE_TTL_SECONDS)) * time.Second,
		BrowserCacheTTL: time.Duration(EnvOrDefaultInt64(BROWSER_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, DEFAULT_BROWSER_CACHE_TTL_SECONDS)) * time.Second,

		CacheEnabled:     EnvOrDefaultBool(CACHE_ENABLED_ENVIRONMENT_KEY, true),
		CachePrefix:      EnvOrDefault(CACHE_PREFIX_ENVIRONMENT_KEY, DEFAULT_CACHE_PREFIX),
		RedisEndpointURL: os.Getenv(REDIS_ENDPOINT_URL_ENVIRONMENT_KEY),
		RedisPassword:    os.Getenv(REDIS_PASSWORD_ENVIRONMENT_KEY),

		MetricDatabaseEnabled:       EnvOrDefaultBool(METRIC_DATABASE_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseName:                os.Getenv(DATABASE_NAME_ENVIRONMENT_KEY),
		DatabaseEndpointURL:         os.Getenv(DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY),
		DatabaseUserName:            os.Getenv(DATABASE_USERNAME_ENVIRONMENT_KEY),
		DatabasePassword:            os.Getenv(DATABASE_PASSWORD_ENVIRONMENT_KEY),
		DatabaseReadTimeoutSeconds:  EnvOrDefaultInt64(DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_READ_TIMEOUT_SECONDS),
		DatabaseSSLEnabled:          EnvOrDefaultBool(DATABASE_SSL_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseQueryLoggingEnabled: EnvOrDefaultBool(DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY, false),
	}
}
