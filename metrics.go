package goMembership

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process membership counter.
type MetricID uint16

const (
	// MetricUserCreated counts successful CreateUser calls.
	MetricUserCreated MetricID = iota
	// MetricUserCreateRejected counts CreateUser calls rejected for invalid input.
	MetricUserCreateRejected
	// MetricUserCreateDuplicate counts CreateUser calls rejected for a duplicate username or email.
	MetricUserCreateDuplicate
	// MetricValidateSuccess counts ValidateUser calls that returned true.
	MetricValidateSuccess
	// MetricValidateFailure counts ValidateUser calls that returned false.
	MetricValidateFailure
	// MetricAccountLocked counts accounts transitioning into the locked state.
	MetricAccountLocked
	// MetricAccountUnlocked counts UnlockUser calls that cleared a lock.
	MetricAccountUnlocked
	// MetricPasswordChanged counts successful ChangePassword calls.
	MetricPasswordChanged
	// MetricPasswordChangeFailure counts rejected ChangePassword calls.
	MetricPasswordChangeFailure
	// MetricQuestionAndAnswerChanged counts successful ChangePasswordQuestionAndAnswer calls.
	MetricQuestionAndAnswerChanged
	// MetricPasswordReset counts successful ResetPassword calls.
	MetricPasswordReset
	// MetricPasswordAnswerFailure counts wrong password answers.
	MetricPasswordAnswerFailure
	// MetricUserUpdated counts successful UpdateUser calls.
	MetricUserUpdated
	// MetricUserDeleted counts accounts removed by DeleteUser.
	MetricUserDeleted
	// MetricRoleCreated counts successful CreateRole calls.
	MetricRoleCreated
	// MetricRoleDeleted counts roles removed by DeleteRole.
	MetricRoleDeleted
	// MetricRoleMembershipChanged counts account documents rewritten by role membership changes.
	MetricRoleMembershipChanged
	// MetricStoreError counts store failures surfaced to callers.
	MetricStoreError
	// MetricValidateLatency is the ValidateUser latency histogram.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the validate latency histogram.
//
// A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of the counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Histograms are included only when latency
// recording is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

// scrypt dominates validate latency, so buckets start at 10ms.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 25:
		return 1
	case ms <= 50:
		return 2
	case ms <= 100:
		return 3
	case ms <= 250:
		return 4
	case ms <= 500:
		return 5
	case ms <= 1000:
		return 6
	default:
		return 7
	}
}
