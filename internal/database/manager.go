package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🗄️ 数据库连接池管理器
// =============================================================================

const (
	// DefaultShutdownTimeout ctx 未设置截止时间时的关闭上限
	DefaultShutdownTimeout = 30 * time.Second

	// driverCloseTimeout 失败路径上关闭驱动池的上限
	driverCloseTimeout = 5 * time.Second

	// usageCacheSize 按连接统计使用次数的 LRU 容量，需大于最大连接数
	usageCacheSize = 1024

	instrumentationName = "github.com/BaSui01/dbpool/internal/database"
)

// PoolManager 数据库连接池管理器，负责生命周期、连接借还、统计与健康分类
type PoolManager struct {
	logger         *zap.Logger
	opener         DriverOpener
	now            func() time.Time
	tracer         trace.Tracer
	acquireLatency metric.Float64Histogram
	onTransition   func(from, to PoolState)

	// 串行化 Initialize/Recover 以及 Shutdown 的关闭阶段
	lifecycle sync.Mutex

	mu         sync.RWMutex
	state      PoolState
	config     *PoolConfig
	driver     DriverPool
	createdAt  time.Time
	leases     map[string]*Lease
	drained    chan struct{}
	terminated chan struct{}
	cancelOp   context.CancelFunc

	stats *poolMetrics
	usage *lru.Cache[any, int]
}

type managerOptions struct {
	opener         DriverOpener
	clock          func() time.Time
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	observer       func(from, to PoolState)
}

// PoolManagerOption 管理器选项
type PoolManagerOption func(*managerOptions)

// WithDriverOpener 替换驱动池创建方式
func WithDriverOpener(opener DriverOpener) PoolManagerOption {
	return func(o *managerOptions) {
		if opener != nil {
			o.opener = opener
		}
	}
}

// WithClock 替换时钟，影响统计时间戳、健康分类与泄漏判定
func WithClock(clock func() time.Time) PoolManagerOption {
	return func(o *managerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTracerProvider 指定 TracerProvider，默认使用全局实例
func WithTracerProvider(tp trace.TracerProvider) PoolManagerOption {
	return func(o *managerOptions) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider 指定 MeterProvider，默认使用全局实例
func WithMeterProvider(mp metric.MeterProvider) PoolManagerOption {
	return func(o *managerOptions) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithStateObserver 注册状态迁移回调。回调在持锁期间同步执行，
// 只适合计数、打点这类轻量操作，不得回调管理器
func WithStateObserver(fn func(from, to PoolState)) PoolManagerOption {
	return func(o *managerOptions) {
		o.observer = fn
	}
}

// NewPoolManager 创建处于 initializing 状态的管理器，需调用 Initialize 建立连接
func NewPoolManager(logger *zap.Logger, opts ...PoolManagerOption) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "db_pool"))

	o := managerOptions{
		opener:         OpenDriverPool,
		clock:          time.Now,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	histogram, err := o.meterProvider.Meter(instrumentationName).Float64Histogram(
		"dbpool.acquire.duration",
		metric.WithDescription("Time spent waiting for a pooled connection"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logger.Warn("failed to create acquire latency histogram", zap.Error(err))
		histogram, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("dbpool.acquire.duration")
	}

	// size > 0 时不会返回错误
	usage, _ := lru.New[any, int](usageCacheSize)

	return &PoolManager{
		logger:         logger,
		opener:         o.opener,
		now:            o.clock,
		tracer:         o.tracerProvider.Tracer(instrumentationName),
		acquireLatency: histogram,
		onTransition:   o.observer,
		state:          StateInitializing,
		leases:         make(map[string]*Lease),
		terminated:     make(chan struct{}),
		stats:          &poolMetrics{},
		usage:          usage,
	}
}

// =============================================================================
// 🚀 初始化
// =============================================================================

// Initialize 创建驱动池并并发校验 min_size 个连接。
// 成功进入 healthy；失败进入 unhealthy 并返回 CodeInitialization 错误。
// 只允许在 initializing 或 unhealthy 状态调用。
func (m *PoolManager) Initialize(ctx context.Context, cfg *PoolConfig) error {
	if cfg == nil {
		return newConfigurationError(
			[]string{"config"},
			[]string{"pool configuration is required"},
			[]string{"build one with NewPoolConfig or ParsePoolConfig"},
		)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	switch state := m.state; {
	case state.IsClosing():
		m.mu.Unlock()
		return newClosedError("initialize", state)
	case state != StateInitializing && state != StateUnhealthy:
		m.mu.Unlock()
		return newInvalidStateError("initialize", state)
	}
	if m.driver != nil {
		m.mu.Unlock()
		return newInvalidStateError("initialize", m.state)
	}
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelOp = cancel
	m.config = cfg
	m.mu.Unlock()

	ctx, span := m.tracer.Start(opCtx, "dbpool.initialize", trace.WithAttributes(
		attribute.String("db.system", cfg.Target().Driver),
		attribute.Int("db.pool.min_size", cfg.MinSize()),
		attribute.Int("db.pool.max_size", cfg.MaxSize()),
	))
	defer span.End()

	m.logger.Info("initializing database pool",
		zap.String("target", cfg.Target().String()),
		zap.Int("min_size", cfg.MinSize()),
		zap.Int("max_size", cfg.MaxSize()),
		zap.Duration("acquire_timeout", cfg.AcquireTimeout()),
		zap.Duration("command_timeout", cfg.CommandTimeout()),
	)
	start := m.now()

	driver, err := m.establish(ctx, cfg)

	m.mu.Lock()
	m.cancelOp = nil
	if state := m.state; state.IsClosing() {
		m.mu.Unlock()
		if driver != nil {
			m.closeDriverQuietly(driver)
		}
		return newClosedError("initialize", state)
	}
	if err != nil {
		m.setStateLocked(StateUnhealthy)
		m.mu.Unlock()

		m.stats.recordError(err, m.now())
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialization failed")
		m.logger.Error("database pool initialization failed",
			zap.String("target", cfg.Target().String()),
			zap.Error(err),
		)
		return newInitializationError(cfg, err)
	}
	m.installLocked(driver)
	m.mu.Unlock()

	m.logger.Info("database pool initialized",
		zap.String("target", cfg.Target().String()),
		zap.Duration("duration", m.now().Sub(start)),
	)
	return nil
}

// establish 创建驱动池并完成预热校验，失败时驱动池已关闭
func (m *PoolManager) establish(ctx context.Context, cfg *PoolConfig) (DriverPool, error) {
	driver, err := m.opener(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create driver pool: %w", err)
	}
	if err := m.warmUp(ctx, driver, cfg); err != nil {
		m.closeDriverQuietly(driver)
		return nil, err
	}
	return driver, nil
}

// warmUp 并发借出 min_size 个连接逐一校验，无论成败全部归还
func (m *PoolManager) warmUp(ctx context.Context, driver DriverPool, cfg *PoolConfig) error {
	n := cfg.MinSize()
	conns := make([]DriverConn, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		g.Go(func() error {
			actx, cancel := context.WithTimeout(gctx, cfg.AcquireTimeout())
			defer cancel()

			conn, err := driver.Acquire(actx)
			if err != nil {
				return fmt.Errorf("acquire connection %d/%d: %w", i+1, n, err)
			}
			conns[i] = conn

			if err := ValidateConnection(gctx, conn, cfg.CommandTimeout()); err != nil {
				return fmt.Errorf("validate connection %d/%d: %w", i+1, n, err)
			}
			return nil
		})
	}
	err := g.Wait()

	for _, conn := range conns {
		if conn != nil {
			conn.Release()
		}
	}
	return err
}

// installLocked 切换到新的驱动池，调用方需持有 m.mu 写锁
func (m *PoolManager) installLocked(driver DriverPool) {
	m.driver = driver
	m.createdAt = m.now()
	m.setStateLocked(StateHealthy)
	m.usage.Purge()
}

// setStateLocked 切换状态并通知观察者，调用方需持有 m.mu 写锁
func (m *PoolManager) setStateLocked(to PoolState) {
	from := m.state
	m.state = to
	if from != to && m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// =============================================================================
// 🔑 借出与归还
// =============================================================================

// Acquire 借出一个连接，acquire_timeout 内无可用连接返回 CodeAcquireTimeout 错误。
// 调用方必须调用 Lease.Release，或改用 WithConn。
func (m *PoolManager) Acquire(ctx context.Context) (*Lease, error) {
	ctx, span := m.tracer.Start(ctx, "dbpool.acquire")
	defer span.End()

	lease, err := m.acquire(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetErrorCode(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("db.pool.lease_id", lease.id))
	return lease, nil
}

func (m *PoolManager) acquire(ctx context.Context) (*Lease, error) {
	const op = "acquire connection"

	m.mu.RLock()
	state, driver, cfg := m.state, m.driver, m.config
	m.mu.RUnlock()

	switch {
	case state.IsClosing():
		return nil, newClosedError(op, state)
	case state == StateRecovering:
		return nil, newUnavailableError(op, state)
	case driver == nil:
		return nil, newNotInitializedError(op)
	}

	start := m.now()
	conn, err := m.acquireDriverConn(ctx, driver, cfg)
	if err != nil {
		return nil, err
	}
	conn, err = m.recycleIfExhausted(ctx, driver, cfg, conn)
	if err != nil {
		return nil, err
	}

	acquiredAt := m.now()
	waitMs := float64(acquiredAt.Sub(start)) / float64(time.Millisecond)
	lease := &Lease{
		id:            uuid.NewString(),
		conn:          conn,
		acquiredAt:    acquiredAt,
		stack:         captureStack(cfg),
		manager:       m,
		leakThreshold: leakThreshold(cfg),
	}

	m.mu.Lock()
	if state := m.state; state.IsClosing() || m.driver != driver {
		m.mu.Unlock()
		conn.Release()
		if state.IsClosing() {
			return nil, newClosedError(op, state)
		}
		return nil, newUnavailableError(op, state)
	}
	m.leases[lease.id] = lease
	m.mu.Unlock()

	m.stats.recordAcquire(waitMs, driver.TotalConns()-driver.IdleConns())
	m.acquireLatency.Record(ctx, waitMs)
	return lease, nil
}

// acquireDriverConn 在 acquire_timeout 内从驱动池取连接，期间计入等待数
func (m *PoolManager) acquireDriverConn(ctx context.Context, driver DriverPool, cfg *PoolConfig) (DriverConn, error) {
	m.stats.waiting.Add(1)
	defer m.stats.waiting.Add(-1)

	actx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout())
	defer cancel()

	conn, err := driver.Acquire(actx)
	if err == nil {
		return conn, nil
	}

	// 调用方自己的取消或截止时间优先
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	m.stats.recordError(err, m.now())

	if state := m.State(); state.IsClosing() {
		return nil, newClosedError("acquire connection", state)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		total, idle := driver.TotalConns(), driver.IdleConns()
		counts := PoolCounts{
			Total:   total,
			Idle:    idle,
			Active:  total - idle,
			Waiting: int(m.stats.waiting.Load()),
		}
		m.logger.Warn("connection acquisition timed out",
			zap.Duration("acquire_timeout", cfg.AcquireTimeout()),
			zap.Int("total", counts.Total),
			zap.Int("active", counts.Active),
			zap.Int("idle", counts.Idle),
			zap.Int("waiting", counts.Waiting),
		)
		return nil, newAcquireTimeoutError(cfg.AcquireTimeout(), counts, err)
	}

	m.logger.Error("connection acquisition failed", zap.Error(err))
	return nil, fmt.Errorf("acquire connection: %w", err)
}

// recycleIfExhausted 按借出次数计数（一次借出计一次使用，不统计租约内的语句数），
// 超过 max_queries_per_connection 时销毁并换一个新连接
func (m *PoolManager) recycleIfExhausted(ctx context.Context, driver DriverPool, cfg *PoolConfig, conn DriverConn) (DriverConn, error) {
	id := conn.Identity()
	if id == nil {
		return conn, nil
	}

	uses, _ := m.usage.Get(id)
	uses++
	if uses <= cfg.MaxQueriesPerConnection() {
		m.usage.Add(id, uses)
		return conn, nil
	}

	m.usage.Remove(id)
	conn.Discard()
	m.logger.Debug("recycling connection after max uses",
		zap.Int("uses", uses),
		zap.Int("max_uses", cfg.MaxQueriesPerConnection()),
	)

	fresh, err := m.acquireDriverConn(ctx, driver, cfg)
	if err != nil {
		return nil, err
	}
	if err := ValidateConnection(ctx, fresh, cfg.CommandTimeout()); err != nil {
		fresh.Discard()
		m.stats.recordError(err, m.now())
		return nil, err
	}
	if freshID := fresh.Identity(); freshID != nil {
		m.usage.Add(freshID, 1)
	}
	return fresh, nil
}

// release 由 Lease.Release 调用，每个租约只执行一次
func (m *PoolManager) release(l *Lease) {
	now := m.now()
	l.conn.Release()
	m.stats.recordRelease()

	m.mu.Lock()
	delete(m.leases, l.id)
	leaked := l.heldTooLong(now) && !l.leakReported
	if leaked {
		l.leakReported = true
	}
	if m.drained != nil && len(m.leases) == 0 {
		close(m.drained)
		m.drained = nil
	}
	m.mu.Unlock()

	if leaked {
		m.reportLeak(now, l)
	}
}

// WithConn 借出连接执行 fn，返回（含 panic）时自动归还
func (m *PoolManager) WithConn(ctx context.Context, fn func(*Lease) error) error {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease)
}

// =============================================================================
// 📊 统计与健康
// =============================================================================

// GetStatistics 返回当前统计快照
func (m *PoolManager) GetStatistics() (Snapshot, error) {
	now := m.now()

	m.mu.RLock()
	state, driver, createdAt := m.state, m.driver, m.createdAt
	leaks, _ := m.leakedLocked(now, false)
	m.mu.RUnlock()

	switch {
	case state == StateTerminated:
		return Snapshot{}, newClosedError("get statistics", state)
	case driver == nil && state == StateRecovering:
		return m.stats.snapshot(0, 0, leaks, createdAt, now), nil
	case driver == nil:
		return Snapshot{}, newNotInitializedError("get statistics")
	}

	return m.stats.snapshot(driver.TotalConns(), driver.IdleConns(), leaks, createdAt, now), nil
}

// HealthCheck 采集快照并分类，healthy/degraded/unhealthy 状态下同步更新生命周期状态。
// recovering 期间只报告，不改写状态；同时对新发现的泄漏租约告警。
func (m *PoolManager) HealthCheck(ctx context.Context) (HealthReport, error) {
	_, span := m.tracer.Start(ctx, "dbpool.health_check")
	defer span.End()

	snap, err := m.GetStatistics()
	if err != nil {
		span.RecordError(err)
		return HealthReport{}, err
	}

	m.mu.Lock()
	status := Classify(snap, m.config)
	prev := m.state
	switch {
	case prev == StateRecovering:
		status = HealthDegraded
		if snap.TotalConnections == 0 {
			status = HealthUnhealthy
		}
	case prev.isClassified():
		m.setStateLocked(stateFor(status))
	}
	state := m.state
	_, newLeaks := m.leakedLocked(snap.CapturedAt, true)
	m.mu.Unlock()

	if state != prev {
		m.logger.Info("pool state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(state)),
			zap.Float64("capacity_ratio", snap.CapacityRatio()),
			zap.Float64("peak_wait_ms", snap.PeakWaitTimeMs),
		)
	}
	for _, l := range newLeaks {
		m.reportLeak(snap.CapturedAt, l)
	}

	connectivity := ConnectivityDegraded
	if state == StateHealthy {
		connectivity = ConnectivityConnected
	}

	report := HealthReport{
		Status:    status,
		State:     state,
		Timestamp: snap.CapturedAt,
		Database: DatabaseStatus{
			Status:    connectivity,
			Pool:      snap.Counts(),
			LastError: snap.LastError,
			LeakCount: snap.LeakCount,
		},
	}
	if snap.TotalAcquisitions > 0 {
		latency := snap.AvgAcquisitionTimeMs
		report.Database.LatencyMs = &latency
	}
	if !snap.PoolCreatedAt.IsZero() {
		report.UptimeSeconds = max(0, snap.CapturedAt.Sub(snap.PoolCreatedAt).Seconds())
	}

	span.SetAttributes(
		attribute.String("db.pool.health", string(status)),
		attribute.String("db.pool.state", string(state)),
	)
	return report, nil
}

// State 当前生命周期状态
func (m *PoolManager) State() PoolState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Config 当前配置，Initialize 之前为 nil
func (m *PoolManager) Config() *PoolConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Shutdown 停止借出新连接，等待已借出的连接归还（受 ctx 限制，未设置截止时间时为 30 秒），
// 关闭驱动池后进入 terminated。可重复调用。
func (m *PoolManager) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}
	ctx, span := m.tracer.Start(ctx, "dbpool.shutdown")
	defer span.End()

	start := m.now()

	m.mu.Lock()
	switch m.state {
	case StateTerminated:
		m.mu.Unlock()
		return nil
	case StateShuttingDown:
		terminated := m.terminated
		m.mu.Unlock()
		select {
		case <-terminated:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for shutdown: %w", ctx.Err())
		}
	}

	prev := m.state
	m.setStateLocked(StateShuttingDown)
	if m.cancelOp != nil {
		m.cancelOp()
	}
	active := len(m.leases)
	var drained chan struct{}
	if active > 0 {
		drained = make(chan struct{})
		m.drained = drained
	}
	m.mu.Unlock()

	m.logger.Info("database pool shutdown initiated",
		zap.String("previous_state", string(prev)),
		zap.Int("active_leases", active),
	)

	if drained != nil {
		select {
		case <-drained:
			m.logger.Info("all connections returned", zap.Duration("waited", m.now().Sub(start)))
		case <-ctx.Done():
			m.logger.Warn("shutdown timeout reached with connections still held",
				zap.Strings("lease_ids", m.heldLeaseIDs()),
			)
		}
	}

	// 等待被取消的 Initialize/Recover 退出
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	driver := m.driver
	m.mu.RUnlock()

	var closeErr error
	if driver != nil {
		if err := m.closeDriver(ctx, driver); err != nil {
			m.logger.Warn("driver pool did not close cleanly", zap.Error(err))
			if ctx.Err() == nil {
				closeErr = fmt.Errorf("close driver pool: %w", err)
			}
		}
	}

	m.mu.Lock()
	m.setStateLocked(StateTerminated)
	abandoned := len(m.leases)
	close(m.terminated)
	m.mu.Unlock()

	m.logger.Info("database pool terminated",
		zap.Duration("duration", m.now().Sub(start)),
		zap.Int("abandoned_leases", abandoned),
	)
	return closeErr
}

// closeDriver 在 ctx 内关闭驱动池，pgxpool 的 Close 会等待借出连接，超时后放弃等待
func (m *PoolManager) closeDriver(ctx context.Context, driver DriverPool) error {
	done := make(chan error, 1)
	go func() {
		done <- driver.Close()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *PoolManager) closeDriverQuietly(driver DriverPool) {
	ctx, cancel := context.WithTimeout(context.Background(), driverCloseTimeout)
	defer cancel()
	if err := m.closeDriver(ctx, driver); err != nil {
		m.logger.Warn("failed to close driver pool", zap.Error(err))
	}
}

func (m *PoolManager) heldLeaseIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.leases))
	for id := range m.leases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
