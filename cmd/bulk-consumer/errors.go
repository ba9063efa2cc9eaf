package main

import "fmt"

// Error definitions for the bulk consume coordinator.
var (
	errNoIndexEndpoint   = fmt.Errorf("index.endpoint must be set")
	errRedisAddrRequired = fmt.Errorf("field-cache.redis-addr is required when field-cache.backend is redis")
)

func errInvalidFieldCacheBackend(backend string) error {
	return fmt.Errorf("field-cache.backend %q is invalid, want lru or redis", backend)
}

func errInvalidChunkSizeHint(hint int) error {
	return fmt.Errorf("dispatcher.default-chunk-size-hint must be > 0, got %d", hint)
}
