/*
Package monitoring provides Prometheus metrics for scripthost.

# Overview

Every collector lives on a registry owned by the Metrics value, so tests
and multiple servers in one process never collide on registration. A nil
*Metrics is accepted everywhere and records nothing.

# Metrics

  - HTTP requests (count, latency, sizes)
  - Evaluations by status, evaluation latency, in-flight invocations
  - Compile cache hits and misses
  - Sandbox-to-host requests and host function calls
  - WebSocket connections and messages
  - Snapshot save/load operations

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics)
	// ... run evaluation ...
	timer.Stop("ok")
*/
package monitoring
