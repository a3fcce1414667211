package database

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// 📊 统计快照
// =============================================================================

// latencyWindowSize 获取耗时滚动窗口大小
const latencyWindowSize = 1000

// Snapshot 连接池某一时刻的只读统计
type Snapshot struct {
	TotalConnections      int        `json:"total_connections"`
	IdleConnections       int        `json:"idle_connections"`
	ActiveConnections     int        `json:"active_connections"`
	WaitingRequests       int        `json:"waiting_requests"`
	TotalAcquisitions     int64      `json:"total_acquisitions"`
	TotalReleases         int64      `json:"total_releases"`
	AvgAcquisitionTimeMs  float64    `json:"avg_acquisition_time_ms"`
	PeakActiveConnections int        `json:"peak_active_connections"`
	PeakWaitTimeMs        float64    `json:"peak_wait_time_ms"`
	LeakCount             int        `json:"leak_count"`
	PoolCreatedAt         time.Time  `json:"pool_created_at"`
	CapturedAt            time.Time  `json:"captured_at"`
	LastError             string     `json:"last_error,omitempty"`
	LastErrorTime         *time.Time `json:"last_error_time,omitempty"`
}

// CapacityRatio 空闲连接占比，无连接时为 0
func (s Snapshot) CapacityRatio() float64 {
	if s.TotalConnections <= 0 {
		return 0
	}
	return float64(s.IdleConnections) / float64(s.TotalConnections)
}

// Counts 连接数摘要
func (s Snapshot) Counts() PoolCounts {
	return PoolCounts{
		Total:   s.TotalConnections,
		Idle:    s.IdleConnections,
		Active:  s.ActiveConnections,
		Waiting: s.WaitingRequests,
	}
}

// =============================================================================
// 🧮 运行时计数器
// =============================================================================

// latencyWindow 固定容量环形缓冲，维护滑动和
type latencyWindow struct {
	samples [latencyWindowSize]float64
	next    int
	count   int
	sum     float64
}

func (w *latencyWindow) add(ms float64) {
	if w.count == latencyWindowSize {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = ms
	w.sum += ms
	w.next = (w.next + 1) % latencyWindowSize
}

func (w *latencyWindow) mean() float64 {
	if w.count == 0 {
		return 0
	}
	m := w.sum / float64(w.count)
	if m < 0 {
		return 0
	}
	return m
}

// poolMetrics 由 acquire/release 并发更新的计数器
type poolMetrics struct {
	acquisitions atomic.Int64
	releases     atomic.Int64
	waiting      atomic.Int64
	peakActive   atomic.Int64

	mu          sync.Mutex
	window      latencyWindow
	peakWaitMs  float64
	lastError   string
	lastErrorAt time.Time
}

func (m *poolMetrics) recordAcquire(waitMs float64, active int) {
	m.mu.Lock()
	m.window.add(waitMs)
	if waitMs > m.peakWaitMs {
		m.peakWaitMs = waitMs
	}
	m.mu.Unlock()

	m.acquisitions.Add(1)
	m.observeActive(active)
}

func (m *poolMetrics) observeActive(active int) {
	for {
		peak := m.peakActive.Load()
		if int64(active) <= peak || m.peakActive.CompareAndSwap(peak, int64(active)) {
			return
		}
	}
}

func (m *poolMetrics) recordRelease() {
	m.releases.Add(1)
}

func (m *poolMetrics) recordError(err error, at time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastError = err.Error()
	m.lastErrorAt = at
	m.mu.Unlock()
}

// snapshot 从计数器与驱动池当前大小构造快照。
// 先读 releases 再读 acquisitions，保证 acquisitions >= releases。
func (m *poolMetrics) snapshot(total, idle, leaks int, createdAt, now time.Time) Snapshot {
	releases := m.releases.Load()
	acquisitions := m.acquisitions.Load()

	if total < 0 {
		total = 0
	}
	if idle < 0 {
		idle = 0
	}
	if idle > total {
		idle = total
	}
	active := total - idle

	peak := int(m.peakActive.Load())
	if active > peak {
		m.observeActive(active)
		peak = active
	}

	waiting := int(m.waiting.Load())
	if waiting < 0 {
		waiting = 0
	}

	m.mu.Lock()
	avg := m.window.mean()
	peakWait := m.peakWaitMs
	lastError := m.lastError
	lastErrorAt := m.lastErrorAt
	m.mu.Unlock()

	s := Snapshot{
		TotalConnections:      total,
		IdleConnections:       idle,
		ActiveConnections:     active,
		WaitingRequests:       waiting,
		TotalAcquisitions:     acquisitions,
		TotalReleases:         releases,
		AvgAcquisitionTimeMs:  avg,
		PeakActiveConnections: peak,
		PeakWaitTimeMs:        peakWait,
		LeakCount:             leaks,
		PoolCreatedAt:         createdAt,
		CapturedAt:            now,
		LastError:             lastError,
	}
	if !lastErrorAt.IsZero() {
		t := lastErrorAt
		s.LastErrorTime = &t
	}
	return s
}
