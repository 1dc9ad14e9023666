// Package server assembles the scripthost HTTP server.
//
// Routes:
//   - GET /health: liveness and uptime
//   - GET /metrics: Prometheus exposition of the server registry
//   - GET /metrics/json: summary counters
//   - GET /ws: sandbox connections, see package ws
//
// Middleware, in order: panic recovery, request metrics, CORS and the
// optional per-IP rate limit.
package server
