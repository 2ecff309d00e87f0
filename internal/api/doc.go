// Package api is the REST client for the remote gateway service.
//
// Only the bootstrap endpoint is used: GET /gateway/bot returns the
// recommended shard count, the WebSocket URL and the session-start limit
// that sizes the connection scheduler.
package api
