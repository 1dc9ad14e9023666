// Package main is the scripthost command.
//
// scripthost evaluates scripts in a sandbox whose global scope is
// synthetic. Reads and writes of globals are tracked, host functions are
// reached over a message protocol and results are normalized to plain
// data.
//
// Usage:
//
//	# Serve sandboxes over WebSocket, one per connection
//	scripthost serve --port 8000
//
//	# Evaluate once, in process
//	scripthost eval -c '1 + 2'
//	echo '{ return total * 2 }' | scripthost eval --var total=21
//
//	# Keep globals between runs and expose webhook functions
//	scripthost eval --state state.zst --funcs funcs.yaml script.js
//
//	# Evaluate against a running server
//	scripthost eval --remote ws://localhost:8000/ws -c 'Math.max(1, 2)'
//
//	# Interactive session
//	scripthost repl --instance dev
//
// Configuration is read from the environment (see package config); flags
// override it.
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown
package main
