package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/dbpool/internal/database"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// PoolSource 健康处理器依赖的连接池视图，*database.PoolManager 实现该接口
type PoolSource interface {
	HealthCheck(ctx context.Context) (database.HealthReport, error)
	GetStatistics() (database.Snapshot, error)
	State() database.PoolState
}

// HealthRecorder 记录健康检查结果，*metrics.Collector 实现该接口
type HealthRecorder interface {
	RecordHealthCheck(status database.HealthStatus, err error)
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	pool     PoolSource
	recorder HealthRecorder
	logger   *zap.Logger
	checks   []HealthCheck
	timeout  time.Duration
	mu       sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 就绪/存活探针响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	State     database.PoolState     `json:"state,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器，recorder 可以为 nil
func NewHealthHandler(pool PoolSource, recorder HealthRecorder, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		pool:     pool,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "health_handler")),
		checks:   make([]HealthCheck, 0),
		timeout:  5 * time.Second,
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求：执行一次连接池健康检查并返回完整报告。
// healthy/degraded 返回 200，unhealthy 或检查失败返回 503。
// @Summary 连接池健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} database.HealthReport "连接池可用"
// @Failure 503 {object} Response "连接池不可用"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.pool.HealthCheck(ctx)
	if h.recorder != nil {
		h.recorder.RecordHealthCheck(report.Status, err)
	}
	if err != nil {
		h.logger.Warn("pool health check failed", zap.Error(err))
		WriteError(w, r, err, nil)
		return
	}

	status := http.StatusOK
	if report.Status == database.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, report)
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 存活探针），只反映进程是否在运行
// @Summary Kubernetes 活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 或 /readyz 请求：连接池处于 healthy/degraded 且所有注册检查通过才就绪
// @Summary 准备情况检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	state := h.pool.State()
	status := ServiceHealthResponse{
		Status:    "healthy",
		State:     state,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	ready := true
	switch state {
	case database.StateHealthy:
	case database.StateDegraded:
		status.Status = "degraded"
	default:
		ready = false
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			ready = false

			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !ready {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleStats 处理 /stats 请求，返回统计快照
// @Summary 连接池统计
// @Tags 健康
// @Produce json
// @Success 200 {object} Response "统计快照"
// @Failure 503 {object} Response "连接池未初始化或已关闭"
// @Router /stats [get]
func (h *HealthHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.pool.GetStatistics()
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, snap)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// DatabaseHealthCheck 数据库连通性检查
type DatabaseHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewDatabaseHealthCheck 创建数据库健康检查
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{
		name: name,
		ping: ping,
	}
}

func (c *DatabaseHealthCheck) Name() string {
	return c.name
}

func (c *DatabaseHealthCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}
