package database

// PoolState 连接池生命周期状态
type PoolState string

const (
	StateInitializing PoolState = "initializing"
	StateHealthy      PoolState = "healthy"
	StateDegraded     PoolState = "degraded"
	StateUnhealthy    PoolState = "unhealthy"
	StateRecovering   PoolState = "recovering"
	StateShuttingDown PoolState = "shutting_down"
	StateTerminated   PoolState = "terminated"
)

// IsClosing 关闭中或已终止
func (s PoolState) IsClosing() bool {
	return s == StateShuttingDown || s == StateTerminated
}

// isClassified 状态由健康分类驱动
func (s PoolState) isClassified() bool {
	return s == StateHealthy || s == StateDegraded || s == StateUnhealthy
}

// stateFor 将健康分类映射为生命周期状态
func stateFor(status HealthStatus) PoolState {
	switch status {
	case HealthHealthy:
		return StateHealthy
	case HealthDegraded:
		return StateDegraded
	default:
		return StateUnhealthy
	}
}
