// Package gateway implements shard.Shard over a WebSocket connection to the
// remote gateway.
//
// The framing is the minimum needed to drive the shard lifecycle: the
// server opens with hello, the shard answers with identify (fresh session)
// or resume (known session), and a READY or RESUMED dispatch completes the
// handshake. Other dispatches that carry an "id" are forwarded as objects.
package gateway
