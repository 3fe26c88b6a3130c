package memory

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const latencyWindow = 256

// PerformanceMonitor aggregates latency, throughput and cache
// statistics. It is entirely optional: a nil *PerformanceMonitor is
// valid everywhere one is accepted, and disables instrumentation.
type PerformanceMonitor struct {
	mu      sync.Mutex
	search  latencySamples
	storage latencySamples

	cacheHits      uint64
	cacheMisses    uint64
	consolidations uint64
	ops            uint64
	started        time.Time

	proc *process.Process
}

type latencySamples struct {
	values []float64 // milliseconds, ring buffer
	next   int
}

func (l *latencySamples) add(ms float64) {
	if len(l.values) < latencyWindow {
		l.values = append(l.values, ms)
		return
	}
	l.values[l.next] = ms
	l.next = (l.next + 1) % latencyWindow
}

func (l *latencySamples) mean() float64 {
	if len(l.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range l.values {
		sum += v
	}
	return sum / float64(len(l.values))
}

func NewPerformanceMonitor() *PerformanceMonitor {
	m := &PerformanceMonitor{started: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.proc = proc
	}
	return m
}

// RecordOperationTime files a timing under search or storage latency
// based on the operation name prefix.
func (m *PerformanceMonitor) RecordOperationTime(op string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d) / float64(time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	switch {
	case strings.HasPrefix(op, "search"):
		m.search.add(ms)
	case strings.HasPrefix(op, "store"), strings.HasPrefix(op, "consolidate"):
		m.storage.add(ms)
	}
}

func (m *PerformanceMonitor) RecordCacheHit() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

func (m *PerformanceMonitor) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

func (m *PerformanceMonitor) RecordConsolidation(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.mu.Lock()
	m.consolidations += uint64(count)
	m.mu.Unlock()
}

// Snapshot returns the aggregate metrics. Rates are computed over the
// monitor's lifetime; latencies over a rolling sample window.
func (m *PerformanceMonitor) Snapshot() PerformanceMetrics {
	if m == nil {
		return PerformanceMetrics{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Since(m.started).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	out := PerformanceMetrics{
		SearchLatencyMS:     m.search.mean(),
		StorageLatencyMS:    m.storage.mean(),
		MemoryUsageMB:       m.memoryUsageMB(),
		ConsolidationRate:   float64(m.consolidations) / elapsed,
		ThroughputOpsPerSec: float64(m.ops) / elapsed,
	}
	if total := m.cacheHits + m.cacheMisses; total > 0 {
		out.CacheHitRate = float64(m.cacheHits) / float64(total)
	}
	return out
}

func (m *PerformanceMonitor) memoryUsageMB() float64 {
	if m.proc == nil {
		return 0
	}
	info, err := m.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}
