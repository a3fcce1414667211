package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/dbpool/internal/database"
)

// =============================================================================
// 🗄️ 连接池快照指标
// =============================================================================

// StatsSource 提供连接池快照，*database.PoolManager 实现该接口
type StatsSource interface {
	GetStatistics() (database.Snapshot, error)
	State() database.PoolState
}

var allStates = []database.PoolState{
	database.StateInitializing,
	database.StateHealthy,
	database.StateDegraded,
	database.StateUnhealthy,
	database.StateRecovering,
	database.StateShuttingDown,
	database.StateTerminated,
}

// PoolCollector 在每次抓取时读取快照，实现 prometheus.Collector
type PoolCollector struct {
	source StatsSource
	logger *zap.Logger

	connections      *prometheus.Desc
	waiting          *prometheus.Desc
	acquisitions     *prometheus.Desc
	releases         *prometheus.Desc
	avgAcquire       *prometheus.Desc
	peakActive       *prometheus.Desc
	peakWait         *prometheus.Desc
	leaks            *prometheus.Desc
	capacityRatio    *prometheus.Desc
	state            *prometheus.Desc
	uptime           *prometheus.Desc
	lastErrorSeconds *prometheus.Desc
}

// NewPoolCollector 创建快照指标收集器，pool 为常量 label
func NewPoolCollector(namespace, pool string, source StatsSource, logger *zap.Logger) *PoolCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	constLabels := prometheus.Labels{"pool": pool}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, labels, constLabels)
	}

	return &PoolCollector{
		source:           source,
		logger:           logger.With(zap.String("component", "metrics")),
		connections:      desc("connections", "Number of pooled connections by kind", "kind"),
		waiting:          desc("waiting_requests", "Number of callers waiting for a connection"),
		acquisitions:     desc("acquisitions_total", "Total number of connection acquisitions"),
		releases:         desc("releases_total", "Total number of connection releases"),
		avgAcquire:       desc("acquisition_avg_seconds", "Rolling average acquisition wait over the last 1000 acquisitions"),
		peakActive:       desc("peak_active_connections", "Highest number of simultaneously active connections"),
		peakWait:         desc("peak_wait_seconds", "Longest observed acquisition wait"),
		leaks:            desc("leaked_leases", "Number of leases currently held past the leak detection timeout"),
		capacityRatio:    desc("capacity_ratio", "Fraction of connections idle, 0 when the pool is empty"),
		state:            desc("state", "Current lifecycle state, 1 for the active state", "state"),
		uptime:           desc("uptime_seconds", "Seconds since the driver pool was created"),
		lastErrorSeconds: desc("last_error_timestamp_seconds", "Unix time of the most recent pool error"),
	}
}

// Describe 实现 prometheus.Collector
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.waiting
	ch <- c.acquisitions
	ch <- c.releases
	ch <- c.avgAcquire
	ch <- c.peakActive
	ch <- c.peakWait
	ch <- c.leaks
	ch <- c.capacityRatio
	ch <- c.state
	ch <- c.uptime
	ch <- c.lastErrorSeconds
}

// Collect 实现 prometheus.Collector。快照不可用时只上报状态
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	current := c.source.State()
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, string(s))
	}

	snap, err := c.source.GetStatistics()
	if err != nil {
		c.logger.Debug("pool statistics unavailable", zap.Error(err))
		return
	}

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.connections, float64(snap.TotalConnections), "total")
	gauge(c.connections, float64(snap.IdleConnections), "idle")
	gauge(c.connections, float64(snap.ActiveConnections), "active")
	gauge(c.waiting, float64(snap.WaitingRequests))
	counter(c.acquisitions, float64(snap.TotalAcquisitions))
	counter(c.releases, float64(snap.TotalReleases))
	gauge(c.avgAcquire, snap.AvgAcquisitionTimeMs/1000)
	gauge(c.peakActive, float64(snap.PeakActiveConnections))
	gauge(c.peakWait, snap.PeakWaitTimeMs/1000)
	gauge(c.leaks, float64(snap.LeakCount))
	gauge(c.capacityRatio, snap.CapacityRatio())
	if !snap.PoolCreatedAt.IsZero() {
		gauge(c.uptime, snap.CapturedAt.Sub(snap.PoolCreatedAt).Seconds())
	}
	if snap.LastErrorTime != nil {
		gauge(c.lastErrorSeconds, float64(snap.LastErrorTime.UnixNano())/1e9)
	}
}
