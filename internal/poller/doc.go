// Package poller refreshes the remote session-start limit.
//
// The poller fetches gateway info on a fixed interval and hands each
// response to a Handler. The binary uses it to keep the scheduler's
// concurrency bucket and the remaining-budget gauge current.
package poller
