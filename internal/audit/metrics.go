package audit

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	sweeps          int64
	incremental     int64
	failed          int64
	findings        int64
	sweepDurationNs int64
	startedNs       int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startedNs: time.Now().UnixNano(),
	}
}

func (m *Metrics) RecordSweep(duration time.Duration, findings int) {
	atomic.AddInt64(&m.sweeps, 1)
	atomic.AddInt64(&m.sweepDurationNs, int64(duration))
	atomic.AddInt64(&m.findings, int64(findings))
}

func (m *Metrics) RecordIncremental(findings int) {
	atomic.AddInt64(&m.incremental, 1)
	atomic.AddInt64(&m.findings, int64(findings))
}

func (m *Metrics) RecordFailure() {
	atomic.AddInt64(&m.failed, 1)
}

func (m *Metrics) GetStats() map[string]interface{} {
	sweeps := atomic.LoadInt64(&m.sweeps)
	durationNs := atomic.LoadInt64(&m.sweepDurationNs)

	avg := time.Duration(0)
	if sweeps > 0 {
		avg = time.Duration(durationNs / sweeps)
	}

	return map[string]interface{}{
		"sweeps":             sweeps,
		"incremental_checks": atomic.LoadInt64(&m.incremental),
		"failed":             atomic.LoadInt64(&m.failed),
		"findings":           atomic.LoadInt64(&m.findings),
		"avg_sweep_ms":       avg.Milliseconds(),
		"uptime_seconds":     time.Since(time.Unix(0, atomic.LoadInt64(&m.startedNs))).Seconds(),
	}
}
