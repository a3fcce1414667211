package database

import "time"

// =============================================================================
// 🏥 健康分类
// =============================================================================

// HealthStatus 连接池健康分类
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// 固定阈值，目前不随配置变化
const (
	unhealthyCapacityPercent = 50
	degradedCapacityPercent  = 80
	errorRecoveryWindow      = 60 * time.Second
	waitTimeThresholdMs      = 100.0
)

// 连通性状态
const (
	ConnectivityConnected = "connected"
	ConnectivityDegraded  = "degraded"
)

// Classify 根据快照判定健康分类，按顺序首个命中即返回：
//
//  1. 无连接 → unhealthy
//  2. 空闲占比 < 50% → unhealthy
//  3. 空闲占比 < 80% → degraded
//  4. 60 秒内出现过错误 → degraded
//  5. 峰值等待 > 100ms → degraded
//  6. 其余 → healthy
//
// "当前时间"取快照的 CapturedAt，使结果只依赖输入；CapturedAt 为零值时退化为 time.Now()。
// cfg 保留给后续按配置调整阈值，当前不参与计算，可以为 nil。
func Classify(s Snapshot, cfg *PoolConfig) HealthStatus {
	_ = cfg

	total := s.TotalConnections
	if total <= 0 {
		return HealthUnhealthy
	}

	// 整数比较，避免浮点误差影响边界
	idlePercent := s.IdleConnections * 100
	if idlePercent < unhealthyCapacityPercent*total {
		return HealthUnhealthy
	}
	if idlePercent < degradedCapacityPercent*total {
		return HealthDegraded
	}

	if s.LastErrorTime != nil {
		now := s.CapturedAt
		if now.IsZero() {
			now = time.Now()
		}
		if now.Sub(*s.LastErrorTime) < errorRecoveryWindow {
			return HealthDegraded
		}
	}

	if s.PeakWaitTimeMs > waitTimeThresholdMs {
		return HealthDegraded
	}

	return HealthHealthy
}

// =============================================================================
// 📋 健康报告
// =============================================================================

// DatabaseStatus 数据库连通性与连接池计数
type DatabaseStatus struct {
	Status    string     `json:"status"`
	Pool      PoolCounts `json:"pool"`
	LatencyMs *float64   `json:"latency_ms,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	LeakCount int        `json:"leak_count"`
}

// HealthReport HealthCheck 返回的完整健康报告
type HealthReport struct {
	Status        HealthStatus   `json:"status"`
	State         PoolState      `json:"state"`
	Timestamp     time.Time      `json:"timestamp"`
	Database      DatabaseStatus `json:"database"`
	UptimeSeconds float64        `json:"uptime_seconds"`
}
