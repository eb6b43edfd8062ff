// Package metrics implements the in-process counter set for the engine.
// Counters are padded atomics so hot-path increments do not share cache
// lines; a single latency histogram tracks access-token verification.
package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram bucket.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricAdminMFARequired
	MetricAdminMFASuccess
	MetricAdminMFAFailure
	MetricMFAReplayAttempt
	MetricDeviceRejected
	MetricMFAAttemptsExceeded
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricFamilyRevoked
	MetricLogout
	MetricLogoutAll
	MetricVerifySuccess
	MetricVerifyExpired
	MetricVerifyInvalid
	MetricVerifyLatency
	MetricIDCount
)

// Name returns the stable external name of a metric, used by exporters.
func (id MetricID) Name() string {
	switch id {
	case MetricLoginSuccess:
		return "login_success"
	case MetricLoginFailure:
		return "login_failure"
	case MetricAdminMFARequired:
		return "admin_mfa_required"
	case MetricAdminMFASuccess:
		return "admin_mfa_success"
	case MetricAdminMFAFailure:
		return "admin_mfa_failure"
	case MetricMFAReplayAttempt:
		return "mfa_replay_attempt"
	case MetricDeviceRejected:
		return "mfa_device_rejected"
	case MetricMFAAttemptsExceeded:
		return "mfa_attempts_exceeded"
	case MetricRefreshSuccess:
		return "refresh_success"
	case MetricRefreshFailure:
		return "refresh_failure"
	case MetricRefreshReuseDetected:
		return "refresh_reuse_detected"
	case MetricFamilyRevoked:
		return "refresh_family_revoked"
	case MetricLogout:
		return "logout"
	case MetricLogoutAll:
		return "logout_all"
	case MetricVerifySuccess:
		return "verify_success"
	case MetricVerifyExpired:
		return "verify_expired"
	case MetricVerifyInvalid:
		return "verify_invalid"
	case MetricVerifyLatency:
		return "verify_latency"
	default:
		return "unknown"
	}
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// BucketBoundsMillis are the upper bounds of the latency histogram buckets.
var BucketBoundsMillis = [histBucketCount]int64{5, 10, 25, 50, 100, 250, 500, 0}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config enables the counter set and, separately, the latency histogram.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds atomic counters and the verify-latency histogram.
// A nil *Metrics is valid and ignores all operations.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]paddedCounter
	latency       [histBucketCount]uint64
}

// Snapshot is a point-in-time deep copy of all metrics.
type Snapshot struct {
	Counters map[MetricID]uint64
	Latency  []uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a verify-path latency sample.
func (m *Metrics) Observe(d time.Duration) {
	if m == nil || !m.enableLatency {
		return
	}
	atomic.AddUint64(&m.latency[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}

	s := Snapshot{Counters: make(map[MetricID]uint64, int(MetricIDCount))}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		s.Latency = make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			s.Latency[i] = atomic.LoadUint64(&m.latency[i])
		}
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i := 0; i < histBucketCount-1; i++ {
		if ms <= BucketBoundsMillis[i] {
			return i
		}
	}
	return histBucketCount - 1
}
