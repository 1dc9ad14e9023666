// Package protocol defines the messages exchanged between a script sandbox
// and its host.
//
// Every message carries a kind and a unique messageId. Responses also carry
// inResponseTo, the messageId of the request they answer. The host sends
// ping, init and eval requests. The sandbox sends call and yield requests
// while a script is running, and the host answers them with call-result and
// yield-ack. Any request can be answered with error.
//
// Messages are plain Go structs, one per variant. On the wire they are JSON
// objects discriminated by the "kind" field:
//
//	{"kind":"eval","messageId":"req_01J...","script":"value || 0","track":true}
//	{"kind":"result","messageId":"sandbox-1","inResponseTo":"req_01J...","result":0,"vars":{"value":{"read":0}}}
package protocol
