// Package sandbox runs untrusted script snippets against synthetic scopes
// and exchanges protocol messages with its host.
//
// A Sandbox owns one goja runtime. Messages go in through Post and come
// out through listeners registered with Listen:
//
//	sb, err := sandbox.New(sandbox.DefaultConfig(), sandbox.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer sb.Close()
//
//	stop := sb.Listen(func(msg protocol.Message) error {
//		return conn.Send(msg)
//	})
//	defer stop()
//
//	_ = sb.Post(protocol.Eval{Header: protocol.Header{MessageID: "req-1"}, Script: "'foobar'.length * 2"})
//
// Each eval runs as an async function whose free names resolve through the
// global scope of package scope and whose `this` is the instance scope.
// Host functions named by init become callables that send call messages
// and resolve with the matching call-result. delay(ms) yields to the host
// before waiting.
//
// All engine work happens under one lock. Outbound messages are delivered
// outside it, so listeners may post back into the sandbox.
package sandbox
