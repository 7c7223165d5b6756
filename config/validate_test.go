package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgerelay/rpc-edge-proxy/config"
)

func validConfig() config.Config {
	providersRaw := "https://rpc-a.example.com/v1,https://rpc-b.example.com/v1"
	providers, err := config.ParseRawProviderURLs(providersRaw)
	if err != nil {
		panic(err)
	}

	return config.Config{
		LogLevel:               "INFO",
		ProxyServicePort:       "7777",
		ProvidersRaw:           providersRaw,
		Providers:              providers,
		ProviderTimeout:        5 * time.Second,
		ProviderMaxAttempts:    8,
		ProviderInitialBackoff: 50 * time.Millisecond,
		EdgeCacheTTL:           60 * time.Second,
		BrowserCacheTTL:        0,
		CacheEnabled:           true,
		CachePrefix:            "edge",
	}
}

func TestUnitTestValidateAcceptsValidConfig(t *testing.T) {
	require.NoError(t, config.Validate(validConfig()))
}

func TestUnitTestValidateRejectsInvalidConfig(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		mutate func(*config.Config)
	}{
		{
			desc:   "unknown log level",
			mutate: func(c *config.Config) { c.LogLevel = "LOUD" },
		},
		{
			desc:   "non-numeric port",
			mutate: func(c *config.Config) { c.ProxyServicePort = "http" },
		},
		{
			desc:   "empty provider list",
			mutate: func(c *config.Config) { c.ProvidersRaw = "" },
		},
		{
			desc:   "provider with no host",
			mutate: func(c *config.Config) { c.ProvidersRaw = "/just/a/path" },
		},
		{
			desc:   "zero provider timeout",
			mutate: func(c *config.Config) { c.ProviderTimeout = 0 },
		},
		{
			desc:   "zero max attempts",
			mutate: func(c *config.Config) { c.ProviderMaxAttempts = 0 },
		},
		{
			desc:   "zero edge cache ttl",
			mutate: func(c *config.Config) { c.EdgeCacheTTL = 0 },
		},
		{
			desc:   "negative browser cache ttl",
			mutate: func(c *config.Config) { c.BrowserCacheTTL = -time.Second },
		},
		{
			desc:   "cache prefix with colon",
			mutate: func(c *config.Config) { c.CachePrefix = "edge:1" },
		},
		{
			desc:   "empty cache prefix",
			mutate: func(c *config.Config) { c.CachePrefix = "" },
		},
		{
			desc: "metric database enabled without name",
			mutate: func(c *config.Config) {
				c.MetricDatabaseEnabled = true
				c.DatabaseEndpointURL = "localhost:5432"
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			require.Error(t, config.Validate(cfg))
		})
	}
}

func TestUnitTestValidateAccumulatesAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "LOUD"
	cfg.ProxyServicePort = "http"
	cfg.ProviderMaxAttempts = 0

	err := config.Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), config.LOG_LEVEL_ENVIRONMENT_KEY)
	require.Contains(t, err.Error(), config.PROXY_SERVICE_PORT_ENVIRONMENT_KEY)
	require.Contains(t, err.Error(), config.PROVIDER_MAX_ATTEMPTS_ENVIRONMENT_KEY)
}

func TestUnitTestParseRawProviderURLs(t *testing.T) {
	providers, err := config.ParseRawProviderURLs(" https://rpc-a.example.com/v1 , https://rpc-b.example.com/v1,")
	require.NoError(t, err)
	require.Len(t, providers, 2)
	require.Equal(t, "rpc-a.example.com", providers[0].Host)
	require.Equal(t, "/v1", providers[1].Path)
}
