// Package host drives a sandbox from the embedding side.
//
// A Client speaks the sandbox protocol over any Endpoint: an in-process
// *sandbox.Sandbox or a WebSocket connection from the ws package. It sends
// init, ping and eval requests and answers the call and yield requests
// scripts make while they run.
//
// Host functions live in a Registry. Each one runs behind its own circuit
// breaker, so a failing backend stops being called for a while instead of
// stalling every script that touches it. Functions can also be declared in
// a YAML or TOML manifest and served as HTTP webhooks:
//
//	functions:
//	  - name: kv.get
//	    url: https://kv.internal/get
//	    timeout: 2s
//	    retries: 2
//
// Example Usage:
//
//	reg := host.NewRegistry()
//	reg.Register("add", func(ctx context.Context, call protocol.Call) (any, error) {
//		return call.Args[0].(float64) + call.Args[1].(float64), nil
//	})
//
//	client := host.NewClient(sb, reg)
//	defer client.Close()
//	if err := client.Init(ctx, false); err != nil {
//		return err
//	}
//	res, err := client.Eval(ctx, host.EvalRequest{Script: "await add(1, 2)"})
package host
