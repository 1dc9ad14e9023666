// Package middleware provides the HTTP middleware of the scripthost server:
// CORS that admits WebSocket upgrades and a per-IP token bucket rate limit.
package middleware
