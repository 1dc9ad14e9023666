// Package config provides 12-factor configuration for scripthost.
//
// Configuration is loaded from environment variables with defaults and
// validated with struct tags. CLI flags override individual values.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Sandbox: message-id prefix, yield switch, host round-trip timeouts,
//     execution watchdog, compile cache size, allowed host functions
//   - Host: function manifest, eval timeout, circuit breaker settings
//   - Store: snapshot file location
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - SANDBOX_MESSAGE_PREFIX, SANDBOX_DISABLE_YIELD, SANDBOX_CALL_TIMEOUT,
//     SANDBOX_YIELD_TIMEOUT, SANDBOX_EXEC_TIMEOUT, SANDBOX_CACHE_SIZE,
//     SANDBOX_MAX_CALL_STACK, SANDBOX_ALLOWED_FUNCS
//   - HOST_MANIFEST, HOST_EVAL_TIMEOUT, HOST_BREAKER_FAILURES, HOST_BREAKER_TIMEOUT
//   - STORE_PATH
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
