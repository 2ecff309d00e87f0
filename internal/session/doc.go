// Package session persists resumable shard sessions so a restarted process
// can resume instead of starting fresh sessions, which would otherwise
// consume the remote service's session-start budget.
package session
