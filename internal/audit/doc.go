// Package audit defines the security event model and asynchronous
// dispatching used by the authcore engine.
//
// Events are emitted on every authentication decision that matters for
// forensics: login outcomes, admin MFA denials, refresh rotation, and
// reuse detection. Dispatch is fire-and-forget: a slow or failing sink
// must never block or fail an auth flow, so the dispatcher buffers events
// in a channel and a dedicated goroutine forwards them.
package audit
