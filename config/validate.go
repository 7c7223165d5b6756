package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ValidLogLevels = [4]string{"TRACE", "DEBUG", "INFO", "ERROR"}
)

// Validate validates the provided config
// returning a list of errors that can be unwrapped with `errors.Unwrap`
// or nil if the config is valid
func Validate(config Config) error {
	var validLogLevel bool
	var allErrs error

	for _, validLevel := range ValidLogLevels {
		if config.LogLevel == validLevel {
			validLogLevel = true
			break
		}
	}

	if !validLogLevel {
		allErrs = fmt.Errorf("invalid %s specified %s, supported values are %v", LOG_LEVEL_ENVIRONMENT_KEY, config.LogLevel, ValidLogLevels)
	}

	_, err := strconv.Atoi(config.ProxyServicePort)

	if err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s", PROXY_SERVICE_PORT_ENVIRONMENT_KEY, config.ProxyServicePort))
	}

	providers, err := ParseRawProviderURLs(config.ProvidersRaw)

	if err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s", PROVIDERS_ENVIRONMENT_KEY, config.ProvidersRaw))
	}

	if err == nil && len(providers) == 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, at least one provider url is required", PROVIDERS_ENVIRONMENT_KEY, config.ProvidersRaw))
	}

	for _, provider := range providers {
		if provider.Host == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, provider url %s has no host", PROVIDERS_ENVIRONMENT_KEY, config.ProvidersRaw, provider.String()))
		}
	}

	if config.ProviderTimeout <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %v, must be greater than zero", PROVIDER_TIMEOUT_MILLISECONDS_ENVIRONMENT_KEY, config.ProviderTimeout))
	}

	if config.ProviderMaxAttempts < 1 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be at least one", PROVIDER_MAX_ATTEMPTS_ENVIRONMENT_KEY, config.ProviderMaxAttempts))
	}

	if config.EdgeCacheTTL <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %v, must be greater than zero", EDGE_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, config.EdgeCacheTTL))
	}

	if config.BrowserCacheTTL < 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %v, must not be negative", BROWSER_CACHE_TTL_SECONDS_ENVIRONMENT_KEY, config.BrowserCacheTTL))
	}

	if config.CacheEnabled {
		if strings.Contains(config.CachePrefix, ":") {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not contain colon symbol", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
		}
		if config.CachePrefix == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", CACHE_PREFIX_ENVIRONMENT_KEY, config.CachePrefix))
		}
	}

	if config.MetricDatabaseEnabled {
		if config.DatabaseName == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty when metric database is enabled", DATABASE_NAME_ENVIRONMENT_KEY, config.DatabaseName))
		}
		if config.DatabaseEndpointURL == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty when metric database is enabled", DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, config.DatabaseEndpointURL))
		}
	}

	return allErrs
}
