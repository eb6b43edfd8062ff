package authcore

import "github.com/mindhaven/authcore/internal/metrics"

// MetricID identifies an engine counter. See the metric constants for
// the full set.
type MetricID = metrics.MetricID

// MetricsSnapshot is a point-in-time copy of all engine counters.
type MetricsSnapshot = metrics.Snapshot

// Counter identifiers re-exported for callers reading snapshots.
const (
	MetricLoginSuccess         = metrics.MetricLoginSuccess
	MetricLoginFailure         = metrics.MetricLoginFailure
	MetricAdminMFARequired     = metrics.MetricAdminMFARequired
	MetricAdminMFASuccess      = metrics.MetricAdminMFASuccess
	MetricAdminMFAFailure      = metrics.MetricAdminMFAFailure
	MetricMFAReplayAttempt     = metrics.MetricMFAReplayAttempt
	MetricDeviceRejected       = metrics.MetricDeviceRejected
	MetricMFAAttemptsExceeded  = metrics.MetricMFAAttemptsExceeded
	MetricRefreshSuccess       = metrics.MetricRefreshSuccess
	MetricRefreshFailure       = metrics.MetricRefreshFailure
	MetricRefreshReuseDetected = metrics.MetricRefreshReuseDetected
	MetricFamilyRevoked        = metrics.MetricFamilyRevoked
	MetricLogout               = metrics.MetricLogout
	MetricLogoutAll            = metrics.MetricLogoutAll
	MetricVerifySuccess        = metrics.MetricVerifySuccess
	MetricVerifyExpired        = metrics.MetricVerifyExpired
	MetricVerifyInvalid        = metrics.MetricVerifyInvalid
)

// MetricsSnapshot returns the current counter values. Zero-valued map
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// MetricValue reads one counter without copying the whole set.
func (e *Engine) MetricValue(id MetricID) uint64 {
	return e.metrics.Value(id)
}

// AuditDropped reports how many audit events were discarded because
// the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}
