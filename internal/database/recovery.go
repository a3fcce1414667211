package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// =============================================================================
// 🔁 故障恢复
// =============================================================================

// RecoveryPolicy 重连退避策略，零值字段使用默认值
type RecoveryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter 随机抖动比例，0.1 表示 ±10%
	Jitter float64
}

// DefaultRecoveryPolicy 1s 起步、翻倍、上限 16s、±10% 抖动、最多 5 次
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     16 * time.Second,
		Multiplier:     2,
		Jitter:         0.1,
	}
}

func (p RecoveryPolicy) withDefaults() RecoveryPolicy {
	def := DefaultRecoveryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter <= 0 || p.Jitter >= 1 {
		p.Jitter = def.Jitter
	}
	return p
}

func (p RecoveryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	return b
}

// Recover 从 unhealthy 状态重建驱动池：进入 recovering，关闭旧池，按策略退避重试。
// 成功回到 healthy；重试耗尽回到 unhealthy 并返回 CodeInitialization 错误。
// 期间调用 Shutdown 会中止恢复。
func (m *PoolManager) Recover(ctx context.Context, policy RecoveryPolicy) error {
	policy = policy.withDefaults()

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	switch state := m.state; {
	case state.IsClosing():
		m.mu.Unlock()
		return newClosedError("recover", state)
	case state != StateUnhealthy:
		m.mu.Unlock()
		return newInvalidStateError("recover", state)
	case m.config == nil:
		m.mu.Unlock()
		return newNotInitializedError("recover")
	}
	cfg := m.config
	old := m.driver
	m.driver = nil
	m.setStateLocked(StateRecovering)
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelOp = cancel
	m.mu.Unlock()

	ctx, span := m.tracer.Start(opCtx, "dbpool.recover")
	defer span.End()

	m.logger.Warn("database pool recovery started",
		zap.String("target", cfg.Target().String()),
		zap.Int("max_attempts", policy.MaxAttempts),
		zap.Duration("initial_backoff", policy.InitialBackoff),
	)
	if old != nil {
		m.closeDriverQuietly(old)
	}

	attempts := 0
	driver, err := backoff.Retry(ctx,
		func() (DriverPool, error) {
			attempts++
			d, err := m.establish(ctx, cfg)
			if err != nil {
				m.stats.recordError(err, m.now())
				if ctx.Err() != nil {
					return nil, backoff.Permanent(err)
				}
				return nil, err
			}
			return d, nil
		},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn("reconnection attempt failed",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Duration("next_retry_in", next),
				zap.Error(err),
			)
		}),
	)

	m.mu.Lock()
	m.cancelOp = nil
	if state := m.state; state != StateRecovering {
		m.mu.Unlock()
		if driver != nil {
			m.closeDriverQuietly(driver)
		}
		return newClosedError("recover", state)
	}
	if err != nil {
		m.setStateLocked(StateUnhealthy)
		m.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, "recovery failed")
		m.logger.Error("database pool recovery failed",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return newInitializationError(cfg, fmt.Errorf("recovery gave up after %d attempts: %w", attempts, err))
	}
	m.installLocked(driver)
	m.mu.Unlock()

	m.logger.Info("database pool recovered", zap.Int("attempts", attempts))
	return nil
}

// =============================================================================
// 👀 后台监督
// =============================================================================

// Supervisor 定期执行健康检查，池处于 unhealthy 时触发 Recover
type Supervisor struct {
	manager  *PoolManager
	interval time.Duration
	policy   RecoveryPolicy
	logger   *zap.Logger
	onResult func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor 创建监督器，需调用 Start 启动
func NewSupervisor(manager *PoolManager, interval time.Duration, policy RecoveryPolicy, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		manager:  manager,
		interval: interval,
		policy:   policy,
		logger:   logger.With(zap.String("component", "db_pool_supervisor")),
	}
}

// OnRecovery 注册每次恢复尝试结束后的回调，需在 Start 之前调用
func (s *Supervisor) OnRecovery(fn func(err error)) *Supervisor {
	s.onResult = fn
	return s
}

// Start 启动后台循环
func (s *Supervisor) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("supervisor interval must be positive, got %s", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("supervisor already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	s.logger.Info("pool supervisor started", zap.Duration("interval", s.interval))
	return nil
}

// Stop 停止后台循环并等待退出，可重复调用
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(ctx) {
				s.logger.Info("pool closed, supervisor exiting")
				return
			}
		}
	}
}

// tick 返回 false 表示池已关闭
func (s *Supervisor) tick(ctx context.Context) bool {
	report, err := s.manager.HealthCheck(ctx)
	switch {
	case errors.Is(err, ErrPoolClosed):
		return false
	case err != nil && !errors.Is(err, ErrNotInitialized):
		s.logger.Warn("health check failed", zap.Error(err))
	case err == nil:
		s.logger.Debug("health check",
			zap.String("status", string(report.Status)),
			zap.Int("total", report.Database.Pool.Total),
			zap.Int("idle", report.Database.Pool.Idle),
		)
	}

	if s.manager.State() != StateUnhealthy {
		return !s.manager.State().IsClosing()
	}

	err = s.manager.Recover(ctx, s.policy)
	if errors.Is(err, ErrPoolClosed) {
		return false
	}
	if s.onResult != nil {
		s.onResult(err)
	}
	if err != nil {
		s.logger.Warn("pool recovery attempt failed", zap.Error(err))
	}
	return true
}
