// Package ws carries the sandbox protocol over WebSocket.
//
// Every connection gets its own sandbox. Frames are JSON protocol
// messages in both directions; the peer is the host, so it sends init,
// ping and eval and answers the call and yield requests its scripts make.
//
// Server side:
//   - one sandbox per connection, closed on disconnect
//   - per-connection message rate limit, excess frames answered with an error
//   - init frames naming functions outside the allowlist are rejected
//   - keep-alive pings and a read size limit
//
// Client side, Dial returns an endpoint usable with host.NewClient:
//
//	conn, err := ws.Dial(ctx, "ws://localhost:8000/ws")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	client := host.NewClient(conn, reg)
//
// Example Usage:
//
//	handler, err := ws.NewHandler(ws.DefaultHandlerConfig(), ws.WithLogger(logger))
//	router.GET("/ws", handler.HandleConnection)
package ws
