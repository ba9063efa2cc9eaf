package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/cm-well/bulk-consumer/modules/bulkconsume"
	"github.com/cm-well/bulk-consumer/modules/bulkconsume/indexclient"
)

// FieldCacheConfig selects and configures the field-types cache backing
// the qp resolver.
type FieldCacheConfig struct {
	// Backend is "lru" (default, in-process) or "redis" (shared across
	// replicas).
	Backend     string        `yaml:"backend"`
	LRUSize     int           `yaml:"lru_size"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`
}

// RateLimitConfig throttles the probe loop run by the range finder, so a
// pathological binary search cannot hammer the index.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the root config for the bulk consume coordinator.
type Config struct {
	HTTPListenAddress string `yaml:"http_listen_address"`
	HTTPListenPort    int    `yaml:"http_listen_port"`

	Index     indexclient.Config `yaml:"index"`
	SlowIndex indexclient.Config `yaml:"slow_index"`

	FieldCache FieldCacheConfig `yaml:"field_cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`

	Dispatcher bulkconsume.Config `yaml:"dispatcher"`
}

// NewDefaultConfig creates a new Config with default values applied.
func NewDefaultConfig() *Config {
	defaultConfig := &Config{}
	defaultFS := flag.NewFlagSet("", flag.PanicOnError)
	defaultConfig.RegisterFlagsAndApplyDefaults("", defaultFS)
	return defaultConfig
}

// RegisterFlagsAndApplyDefaults registers flags and sets default values.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddress, prefix+"server.http-listen-address", "0.0.0.0", "HTTP server listen address.")
	f.IntVar(&c.HTTPListenPort, prefix+"server.http-listen-port", 8080, "HTTP server listen port.")

	c.Index.RegisterFlagsAndApplyDefaults(prefix+"index.", f)
	c.SlowIndex.RegisterFlagsAndApplyDefaults(prefix+"slow-index.", f)

	f.StringVar(&c.FieldCache.Backend, prefix+"field-cache.backend", "lru", "Field-types cache backend: lru or redis.")
	f.IntVar(&c.FieldCache.LRUSize, prefix+"field-cache.lru-size", 10000, "Max entries in the in-process field-types cache.")
	f.StringVar(&c.FieldCache.RedisAddr, prefix+"field-cache.redis-addr", "", "Redis address for the shared field-types cache (required when backend is redis).")
	f.StringVar(&c.FieldCache.RedisPrefix, prefix+"field-cache.redis-prefix", "bulk-consumer", "Key prefix for the redis field-types cache.")
	f.DurationVar(&c.FieldCache.RedisTTL, prefix+"field-cache.redis-ttl", 24*time.Hour, "TTL for redis field-types cache entries. 0 disables expiry.")

	f.Float64Var(&c.RateLimit.RequestsPerSecond, prefix+"rate-limit.requests-per-second", 50, "Maximum probe requests per second issued by the range finder.")
	f.IntVar(&c.RateLimit.Burst, prefix+"rate-limit.burst", 10, "Burst size for the probe rate limiter.")

	c.Dispatcher.RegisterFlagsAndApplyDefaults(prefix+"dispatcher.", f)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Index.Endpoint == "" {
		return errNoIndexEndpoint
	}
	if c.FieldCache.Backend != "lru" && c.FieldCache.Backend != "redis" {
		return errInvalidFieldCacheBackend(c.FieldCache.Backend)
	}
	if c.FieldCache.Backend == "redis" && c.FieldCache.RedisAddr == "" {
		return errRedisAddrRequired
	}
	if c.Dispatcher.DefaultChunkSizeHint <= 0 {
		return errInvalidChunkSizeHint(c.Dispatcher.DefaultChunkSizeHint)
	}
	return nil
}

// CheckConfig checks if config values are suspect and returns a bundled
// list of warnings and explanation.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning

	if c.RateLimit.RequestsPerSecond <= 0 {
		warnings = append(warnings, warnRateLimitDisabled)
	}
	if c.Dispatcher.BinarySearchTimeout < time.Second {
		warnings = append(warnings, ConfigWarning{
			Message: fmt.Sprintf("dispatcher.binary-search-timeout is %s", c.Dispatcher.BinarySearchTimeout),
			Explain: "a timeout under one second will frequently fall back to the shrink early-exit instead of converging",
		})
	}
	if c.SlowIndex.Endpoint == "" {
		warnings = append(warnings, ConfigWarning{
			Message: "slow-index.endpoint is unset",
			Explain: "slow-bulk requests will be served by the fast index instead of a dedicated non-parallelised source",
		})
	}

	return warnings
}

// ConfigWarning bundles message and explanation strings in one structure.
type ConfigWarning struct {
	Message string
	Explain string
}

var warnRateLimitDisabled = ConfigWarning{
	Message: "rate-limit.requests-per-second is <= 0",
	Explain: "the range finder's probe loop will run unthrottled against the index",
}

// ExampleConfig returns an example configuration YAML.
func ExampleConfig() string {
	return `# Bulk Consume Coordinator configuration
http_listen_address: "0.0.0.0"
http_listen_port: 8080

index:
  endpoint: "http://thin-search:9000"
  timeout: 10s

slow_index:
  endpoint: "http://thin-search-slow:9000"
  timeout: 30s

field_cache:
  backend: "lru"
  lru_size: 10000
  redis_addr: ""
  redis_prefix: "bulk-consumer"
  redis_ttl: 24h

rate_limit:
  requests_per_second: 50
  burst: 10

dispatcher:
  binary_search_timeout: 5s
  default_chunk_size_hint: 100
`
}
